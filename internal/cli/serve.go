package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/convtest/internal/server"
)

// shutdownTimeout bounds how long in-flight runs get after a signal.
const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr     string
	Database string
	Script   string
	NoStore  bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the run API over HTTP",
		Long: `Start an HTTP server that runs posted flows and serves stored reports.

Routes:
  GET  /health
  POST /v1/runs
  GET  /v1/runs
  GET  /v1/runs/:id
  POST /v1/flows/validate

Example:
  convtest serve --addr :8080 --db convtest.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default from config)")
	cmd.Flags().StringVar(&opts.Script, "script", "", "answer turns from a YAML script instead of the configured backend")
	cmd.Flags().BoolVar(&opts.NoStore, "no-store", false, "do not persist runs")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log, opts.Verbose, cmd.ErrOrStderr())

	addr := opts.Addr
	if addr == "" {
		addr = cfg.Server.Addr
	}
	dbPath := opts.Database
	if dbPath == "" {
		dbPath = cfg.Store.Path
	}
	if opts.NoStore {
		dbPath = ""
	}

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	w, err := buildHarness(ctx, cfg, harnessOverrides{Script: opts.Script}, logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up harness", err)
	}
	defer w.Close()

	st, err := openStore(dbPath)
	if err != nil {
		return err
	}

	var runs server.RunStore
	if st != nil {
		runs = st
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing database", "error", closeErr)
			}
		}()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.NewServer(w.harness, runs, logger).SetupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", addr, "db", dbPath)
		errCh <- srv.ListenAndServe()
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", addr)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitCommandError, "server error", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return WrapExitError(ExitFailure, "shutdown error", err)
	}
	logger.Info("server stopped gracefully")
	return nil
}
