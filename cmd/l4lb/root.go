/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
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

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nabbar/l4lb/internal/config"
	"github.com/nabbar/l4lb/internal/logging"
)

// newRootCmd builds the single `l4lb` command: --config (default l4lb.yaml)
// and --log-level (overrides the config file's log.level).
func newRootCmd() *cobra.Command {
	var configPath string
	var logLevel string

	cmd := &cobra.Command{
		Use:   "l4lb",
		Short: "Layer-4 TCP reverse proxy and load balancer",
		Long: "l4lb terminates client TCP connections, selects a healthy backend per\n" +
			"connection, and relays bytes while enforcing per-client rate limits and\n" +
			"per-flow bandwidth ceilings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, logLevel)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "l4lb.yaml", "path to the configuration file")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override log.level from the configuration file")

	return cmd
}

// run loads the configuration, starts every component, and blocks until
// SIGINT/SIGTERM, then shuts everything down in reverse order.
func run(parent context.Context, configPath, logLevelFlag string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logging.New(os.Stderr, logging.InfoLevel)
	if logLevelFlag != "" {
		log.SetLevel(logging.LevelFromString(logLevelFlag))
	}

	a := newApp(ctx, log, logLevelFlag != "")

	mgr, err := config.NewManager(configPath, log, a.apply)
	if err != nil {
		log.Errorf("fatal: unable to load configuration from %s: %v", configPath, err)
		return err
	}

	watchErrCh := make(chan error, 1)
	go func() { watchErrCh <- mgr.Watch(ctx) }()

	log.Infof("l4lb started, config=%s", configPath)

	var runErr error
	select {
	case <-ctx.Done():
		log.Infof("shutdown signal received")
	case err := <-watchErrCh:
		if err != nil {
			log.Errorf("config watcher stopped: %v", err)
			runErr = err
		}
	case err := <-a.fatal:
		log.Errorf("fatal: %v", err)
		runErr = err
	}

	a.shutdown()
	log.Infof("l4lb stopped")
	return runErr
}
