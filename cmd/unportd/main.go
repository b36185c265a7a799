/*
 * MIT License
 *
 * Copyright (c) 2026 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Command unportd is the unport daemon and its CLI: "daemon start" brings
// up the control-plane and proxy listeners, "daemon stop" and "daemon
// status" talk to a running daemon over the rendezvous socket.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nabbar/unport/logger"
	logcfg "github.com/nabbar/unport/logger/config"
	loglvl "github.com/nabbar/unport/logger/level"
	"github.com/nabbar/unport/paths"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "unportd",
		Short: "unport routes local domains to dev servers over dynamic ports",
	}

	root.PersistentFlags().String("config", "", "path to a config file (default: $UNPORT_HOME/config.yaml)")
	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	viper.SetEnvPrefix("UNPORT")
	viper.AutomaticEnv()

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg := viper.GetString("config")
		if cfg == "" {
			if layout, err := paths.Resolve(); err == nil {
				def := filepath.Join(layout.Home, "config.yaml")
				if _, err = os.Stat(def); err == nil {
					cfg = def
				}
			}
		}

		if cfg != "" {
			viper.SetConfigFile(cfg)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config %s: %w", cfg, err)
			}

			// loadConfig() is re-read on every daemon start, so a live daemon
			// only needs to know a reload happened, not act on it mid-flight.
			viper.OnConfigChange(func(e fsnotify.Event) {
				fmt.Fprintf(os.Stderr, "config file changed: %s (restart the daemon to apply)\n", e.Name)
			})
			viper.WatchConfig()
		}
		return nil
	}

	daemon := &cobra.Command{
		Use:   "daemon",
		Short: "manage the unport daemon",
	}

	daemon.AddCommand(newDaemonStartCmd(), newDaemonStopCmd(), newDaemonStatusCmd())
	root.AddCommand(daemon)
	root.AddCommand(newCACmd())

	return root
}

func newCACmd() *cobra.Command {
	ca := &cobra.Command{
		Use:   "ca",
		Short: "manage unport's self-minted certificate authority",
	}

	ca.AddCommand(&cobra.Command{
		Use:   "trust",
		Short: "print the root CA certificate in PEM form",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := paths.Resolve()
			if err != nil {
				return err
			}
			return caTrust(layout)
		},
	})

	return ca
}

func newDaemonStartCmd() *cobra.Command {
	var detach, https bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the daemon in the foreground (or detached)",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := paths.Resolve()
			if err != nil {
				return err
			}

			if detach {
				dargs := []string{"daemon", "start"}
				if https {
					dargs = append(dargs, "--https")
				}
				return detachStart(layout, dargs)
			}

			return runForeground(layout, https)
		},
	}

	cmd.Flags().BoolVar(&detach, "detach", false, "fork the daemon into the background")
	cmd.Flags().BoolVar(&https, "https", false, "also serve an HTTPS proxy with a self-minted CA")

	return cmd
}

func newDaemonStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "ask a running daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := paths.Resolve()
			if err != nil {
				return err
			}
			return clientShutdown(layout)
		},
	}
}

func newDaemonStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "report whether the daemon is running and HTTPS state",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := paths.Resolve()
			if err != nil {
				return err
			}
			return clientStatus(layout)
		},
	}
}

func newLogger() logger.Logger {
	log := logger.New(context.Background())
	_ = log.SetOptions(&logcfg.Options{
		Stdout: &logcfg.OptionsStd{EnableTrace: false},
	})
	log.SetLevel(loglvl.InfoLevel)
	return log
}
