package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/questsync/internal/catalog"
	"github.com/example/questsync/internal/fixes"
	"github.com/example/questsync/internal/progress"
	"github.com/example/questsync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the save endpoint server",
	Long: `Serve loads the scraped catalog, runs the catalog fix resolver once,
then serves save submissions, the liveness side channel, the fix-status
report, and the aggregate health report.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := progress.NewSQLiteStore(cfg.Server.DBPath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	source := catalog.NewFileSource(cfg.Server.CatalogFile)
	records, err := source.Load(ctx)
	if err != nil {
		return err
	}
	if err := store.UpsertCatalog(ctx, records); err != nil {
		return err
	}

	holder := fixes.NewStatusHolder()
	specs, err := catalog.LoadFixSpecs(cfg.Server.FixesFile)
	if err != nil {
		return err
	}

	// One resolver pass per process start; its failures are non-fatal
	// and surface through the fix-status report instead.
	status, err := fixes.NewResolver(source, store, logger).Run(ctx, specs)
	if err != nil {
		return err
	}
	holder.Publish(status)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.New(store, holder, logger).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.Server.Addr).Info("Save endpoint listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
