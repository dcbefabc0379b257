package main

import (
	"errors"

	"whatsapp-blaster/internal/database"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	migrateFrom     string
	migrateSeqsOnly bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Copy the SQLite database into the configured PostgreSQL database",
	Long: `Reads every table from the SQLite file and writes it to the PostgreSQL
database described by DB_HOST, DB_USER, DB_PASSWORD, DB_NAME and DB_PORT,
then moves the id sequences past the copied rows.`,
	RunE: migrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFrom, "from", "", "SQLite file to copy (default DB_PATH)")
	migrateCmd.Flags().BoolVar(&migrateSeqsOnly, "sequences-only", false, "only resync PostgreSQL sequences")
}

func migrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if cfg.DBDriver != "postgres" {
		return errors.New("migrate needs DB_DRIVER=postgres for the destination")
	}
	from := migrateFrom
	if from == "" {
		from = cfg.DBPath
	}

	dst, err := database.Open(cfg, verbose, logger.Named("db"))
	if err != nil {
		return err
	}
	if !migrateSeqsOnly {
		src, err := database.OpenSQLite(from)
		if err != nil {
			return err
		}
		logger.Info("copying database", zap.String("from", from), zap.String("to", cfg.DBHost))
		if err := database.Migrate(ctx, src, dst, logger.Named("db")); err != nil {
			return err
		}
	}
	return database.SyncSequences(ctx, dst, logger.Named("db"))
}
