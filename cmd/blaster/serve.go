package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"whatsapp-blaster/internal/api"
	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/config"
	"whatsapp-blaster/internal/database"
	"whatsapp-blaster/internal/webhook"
	"whatsapp-blaster/internal/ws"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, webhook and progress websocket",
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg, verbose, logger.Named("db"))
	if err != nil {
		return err
	}
	if err := database.SyncSettings(ctx, db, cfg, logger.Named("db")); err != nil {
		return err
	}
	store := database.NewStore(db, logger.Named("store"))
	live := config.NewLive(cfg)

	hub := ws.NewHub(logger.Named("ws"))
	go hub.Run(ctx)

	observer := campaign.MultiObserver{campaign.LogObserver{Logger: logger.Named("progress")}, hub}
	service := campaign.NewService(controllerFactory(live, store, observer, logger), store, logger.Named("service"))

	snapshot := live.Snapshot()
	flusher := campaign.NewPersister(store, store, snapshot.Campaign.Persist(), logger.Named("persist"))
	router := api.NewRouter(api.Deps{
		Store:   store,
		Live:    live,
		Service: service,
		Webhook: webhook.NewHandler(snapshot.VerifyToken, store, flusher, hub, logger.Named("webhook")),
		Hub:     hub,
		Logger:  logger,
	})

	srv := &http.Server{Addr: ":" + snapshot.Port, Handler: router}
	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	service.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := service.Wait(shutdownCtx); err != nil {
		logger.Warn("campaign did not stop in time", zap.Error(err))
	}
	return srv.Shutdown(shutdownCtx)
}
