package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"whatsapp-blaster/internal/campaign"
	"whatsapp-blaster/internal/config"
	"whatsapp-blaster/internal/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one campaign in the foreground",
	Long: `Sends to every PENDING and RETRY contact, then retries whatever ended up
RETRY once more. Ctrl-C stops the lanes after their current contact; results
gathered so far are still written back.`,
	RunE: runCampaign,
}

func runCampaign(cmd *cobra.Command, args []string) error {
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

	observer := campaign.LogObserver{Logger: logger.Named("progress")}
	ctrl, err := controllerFactory(config.NewLive(cfg), store, observer, logger)(ctx)
	if err != nil {
		return err
	}

	report, runErr := ctrl.Run(ctx)
	ctrl.WaitFlushes()
	if err := store.SaveRun(cmd.Context(), report); err != nil {
		logger.Warn("save run report", zap.Error(err))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	return runErr
}
