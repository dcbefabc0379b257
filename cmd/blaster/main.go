package main

import (
	"fmt"
	"os"

	"whatsapp-blaster/internal/config"
	"whatsapp-blaster/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose bool

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "blaster",
	Short: "Bulk WhatsApp campaign sender",
	Long: `blaster sends personalized WhatsApp messages, documents and media to a
contact list, either through WhatsApp Web (one browser per lane) or the
WhatsApp Cloud API (one phone number per lane).

Configuration comes from .env, the optional SETTINGS_FILE and the
system_settings table, in that order.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logger, err = logging.New(cfg.LogLevel, verbose)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.AddCommand(serveCmd, runCmd, seedCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
