package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/draftboard/draftboard/internal/api"
	"github.com/draftboard/draftboard/internal/collab"
	"github.com/draftboard/draftboard/internal/debug"
	"github.com/draftboard/draftboard/internal/storage/protected"
	"github.com/draftboard/draftboard/internal/storage/sqlite"
	"github.com/draftboard/draftboard/internal/telemetry"
	"github.com/draftboard/draftboard/internal/thumbs"
)

var listenAddrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Draftboard server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddrFlag, "listen", "", "listen address (default from config, :8400)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if listenAddrFlag != "" {
		cfg.ListenAddr = listenAddrFlag
	}
	if cfg.LogFile != "" {
		debug.SetLogFile(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
		defer debug.CloseLogFile()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := telemetry.Init(ctx, "draftd", Version); err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	store, err := sqlite.New(ctx, cfg.DBPath(), cfg.Quota.Limits())
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	thumbStore, err := thumbs.New(cfg.DataDir)
	if err != nil {
		return err
	}
	store.SetThumbnailDeleter(thumbStore)

	hub := collab.NewHub()
	hub.Start()
	store.SetSyncNotifier(hub)

	guarded := protected.Wrap(store, protected.Options{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
	})

	reaper := thumbs.NewReaper(thumbStore, func(ctx context.Context) (map[string]struct{}, error) {
		raw, err := store.DiagramIDs(ctx)
		if err != nil {
			return nil, err
		}
		ids := make(map[string]struct{}, len(raw))
		for id := range raw {
			ids[thumbs.SanitizeID(id)] = struct{}{}
		}
		return ids, nil
	})
	reaper.Start()
	defer reaper.Stop()

	mux := http.NewServeMux()
	mux.Handle("/ws", collab.NewHandler(hub, nil))
	api.NewServer(guarded, thumbStore, cfg.DevMode).Register(mux)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	debug.Infof("draftd %s listening on %s (data dir %s)", Version, cfg.ListenAddr, cfg.DataDir)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.CloseAll("server shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	debug.Infof("draftd stopped")
	return nil
}
