package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/convtest/internal/audio"
	"github.com/roach88/convtest/internal/backend"
	"github.com/roach88/convtest/internal/config"
	"github.com/roach88/convtest/internal/harness"
	"github.com/roach88/convtest/internal/session"
	"github.com/roach88/convtest/internal/store"
)

// loadConfig reads the --config file, or the defaults when none is given.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. --verbose forces debug level.
func newLogger(cfg config.Log, verbose bool, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	if verbose {
		level = slog.LevelDebug
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// newQuietLogger logs parser warnings for commands that run no flows.
func newQuietLogger(f *OutputFormatter) *slog.Logger {
	level := slog.LevelWarn
	if f.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(f.diagWriter(), &slog.HandlerOptions{Level: level}))
}

// wiring is a harness plus whatever must be closed after it.
type wiring struct {
	harness *harness.Harness
	closers []io.Closer
	logger  *slog.Logger
}

func (w *wiring) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		if err := w.closers[i].Close(); err != nil {
			w.logger.Error("error closing resource", "error", err)
		}
	}
}

// harnessOverrides replaces parts of the configured wiring (for testing).
type harnessOverrides struct {
	Script string // forces the scripted backend with this file
	Clock  harness.Clock
	IDs    harness.IDGenerator
}

// buildHarness wires the backend, session manager and audio pipeline
// described by cfg into a Harness.
func buildHarness(ctx context.Context, cfg *config.Config, over harnessOverrides, logger *slog.Logger) (*wiring, error) {
	w := &wiring{logger: logger}
	opts := harness.Options{
		Clock:  over.Clock,
		IDs:    over.IDs,
		Logger: logger,
	}

	turns, err := newBackend(cfg.Backend, over.Script, logger)
	if err != nil {
		return nil, err
	}
	opts.Turns = turns

	switch cfg.Session.Kind {
	case config.SessionRedis:
		rs := session.NewRedis(cfg.Session)
		if err := rs.Ping(ctx); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Session.Addr, err)
		}
		w.closers = append(w.closers, rs)
		opts.Sessions = rs
	default:
		opts.Sessions = session.NewMemory()
	}

	if cfg.Audio.Enabled {
		renderer, err := audio.NewRenderer(cfg.Audio, cfg.Backend.Token)
		if err != nil {
			w.Close()
			return nil, err
		}
		sink, err := audio.OpenBlobSink(ctx, cfg.Audio.BucketURL, cfg.Audio.Prefix)
		if err != nil {
			w.Close()
			return nil, err
		}
		w.closers = append(w.closers, sink)
		opts.Renderer = renderer
		opts.Sink = sink
	}

	h, err := harness.New(opts)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.harness = h

	logger.Debug("harness ready",
		"backend", backendKind(cfg.Backend, over.Script),
		"sessions", cfg.Session.Kind,
		"audio", cfg.Audio.Enabled,
	)
	return w, nil
}

func newBackend(cfg config.Backend, script string, logger *slog.Logger) (harness.TurnExecutor, error) {
	if backendKind(cfg, script) == config.BackendScripted {
		if script == "" {
			script = cfg.Script
		}
		if script == "" {
			return nil, errors.New("scripted backend needs a script file (--script or backend.script)")
		}
		scripted, err := backend.LoadScript(script)
		if err != nil {
			return nil, err
		}
		return scripted, nil
	}

	client, err := backend.NewHTTP(cfg, logger)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func backendKind(cfg config.Backend, script string) string {
	if script != "" {
		return config.BackendScripted
	}
	return cfg.Kind
}

// openStore opens the report store, or returns nil when path is empty.
func openStore(path string) (*store.Store, error) {
	if path == "" {
		return nil, nil
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or when the
// command's own context ends.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
