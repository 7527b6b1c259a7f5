// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ik5/audengine/backend"
	"github.com/ik5/audengine/backend/auto"
	"github.com/ik5/audengine/backend/virtual"
	"github.com/ik5/audengine/config"
	"github.com/ik5/audengine/engine"
)

var (
	// persistent arguments
	argConfig   string
	argLogLevel string
	argRealTime bool

	cfg     *config.Config
	logFile *os.File

	rootCmd = &cobra.Command{
		Use:           "audengine",
		Short:         "Play, record and analyse audio",
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(argConfig)
			if err != nil {
				return err
			}
			if argLogLevel != "" {
				cfg.LogLevel = argLogLevel
			}

			logFile, err = config.ConfigureLogger(cfg.LogLevel, cfg.LogFile)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFile != nil {
				logFile.Close()
			}
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&argConfig, "config", "c", "", "Path to a config file (yaml, toml or json)")
	rootCmd.PersistentFlags().StringVarP(&argLogLevel, "log-level", "l", "", "Override the log level: debug, info, warn, error or none")
	rootCmd.PersistentFlags().BoolVarP(&argRealTime, "realtime", "", false, "Ask for real-time priority on the audio threads")
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "audengine:", err)
		os.Exit(1)
	}
}

// session is an engine bound to the command's lifetime.
type session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	manager *engine.Manager
}

// openSession starts an engine on the first configured backend that works.
// A virtual backend is clocked from a goroutine so commands also run
// headless.
func openSession(cmd *cobra.Command) (*session, error) {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)

	candidates := auto.Candidates(cfg.Backends, slog.Default(), argRealTime)
	m, err := engine.New(engine.Options{
		Config:   cfg,
		Backends: candidates,
		Logger:   slog.Default(),
	})
	if err != nil {
		cancel()
		return nil, err
	}

	if m.BackendKind() == backend.Virtual {
		for _, b := range candidates {
			if vb, ok := b.(*virtual.Backend); ok {
				go vb.Run(ctx, cfg.Stream.BlockDuration())
				break
			}
		}
	}

	go logEvents(ctx, m)
	return &session{ctx: ctx, cancel: cancel, manager: m}, nil
}

func (s *session) Close() {
	s.cancel()
	if err := s.manager.Close(); err != nil {
		slog.Warn("engine close", "error", err)
	}
}

// wait blocks for d, or until interrupted when d is zero. It reports
// whether the full time passed.
func (s *session) wait(d time.Duration) bool {
	if d <= 0 {
		<-s.ctx.Done()
		return false
	}

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func logEvents(ctx context.Context, m *engine.Manager) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.Events():
			level := slog.LevelInfo
			switch ev.Kind {
			case engine.EventError:
				level = slog.LevelError
			case engine.EventWarning, engine.EventDeviceLost, engine.EventUnderrun, engine.EventOverrun:
				level = slog.LevelWarn
			}
			slog.Log(ctx, level, ev.Title, "event", ev.Kind.String(), "message", ev.Message)
		}
	}
}
