package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lazypower/fungimap/internal/observability"
	"github.com/lazypower/fungimap/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, dbPath, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	catalog, err := loadCatalog(cfg)
	if err != nil {
		return err
	}

	metrics := observability.NewCollector("fungimap")
	ctx := context.Background()
	a := newApp(ctx, cfg, catalog, db, true, logger, metrics)
	a.store.StartAutosave(cfg.AutosaveInterval())

	srv := server.New(a.view, db, VersionString(), logger, metrics)
	addr := cfg.ListenAddr()
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("fungimap serving",
			zap.String("addr", addr),
			zap.String("db", dbPath),
			zap.Int("entities", len(catalog)),
			zap.Bool("remote_search", cfg.Search.URL != ""))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-done:
		logger.Info("shutting down")
	case err := <-errCh:
		a.close(ctx) //nolint:errcheck
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := a.close(shutdownCtx); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
