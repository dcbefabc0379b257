package main

import (
	"errors"

	"whatsapp-blaster/internal/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import contacts and catalogs from a YAML workbook",
	RunE:  seed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "workbook.yaml", "workbook to import")
}

func seed(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	wb, err := database.LoadWorkbook(seedFile)
	if err != nil {
		return err
	}
	db, err := database.Open(cfg, verbose, logger.Named("db"))
	if err != nil {
		return err
	}
	store := database.NewStore(db, logger.Named("store"))

	res, err := store.Seed(ctx, wb)
	if err != nil {
		return err
	}
	if len(wb.Settings) > 0 {
		if err := database.SyncSettings(ctx, db, cfg, logger.Named("db")); err != nil {
			return err
		}
		if err := database.SaveSettings(ctx, db, cfg, wb.Settings); err != nil {
			return errors.Join(errors.New("workbook settings rejected"), err)
		}
	}
	logger.Info("workbook imported",
		zap.String("file", seedFile),
		zap.Int("contacts", res.Contacts),
		zap.Int("messages", res.Messages),
		zap.Int("documents", res.Documents),
		zap.Int("media", res.Media),
		zap.Int("placeholders", res.Placeholders),
		zap.Int("settings", len(wb.Settings)),
	)
	return nil
}
