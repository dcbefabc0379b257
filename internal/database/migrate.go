package database

import (
	"context"
	"fmt"

	"whatsapp-blaster/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Migrate copies every table from src to dst in batches. dst must already
// be migrated. Rows keep their primary keys, so serial sequences on a
// PostgreSQL destination have to be fixed afterwards with SyncSequences.
func Migrate(ctx context.Context, src, dst *gorm.DB, log *zap.Logger) error {
	log = orNop(log)
	steps := []struct {
		table string
		copy  func() (int, error)
	}{
		{"contacts", func() (int, error) { return copyTable[models.Contact](ctx, src, dst) }},
		{"message_templates", func() (int, error) { return copyTable[models.MessageTemplate](ctx, src, dst) }},
		{"attachments", func() (int, error) { return copyTable[models.Attachment](ctx, src, dst) }},
		{"placeholders", func() (int, error) { return copyTable[models.Placeholder](ctx, src, dst) }},
		{"system_settings", func() (int, error) { return copyTable[models.SystemSetting](ctx, src, dst) }},
		{"campaign_runs", func() (int, error) { return copyTable[models.CampaignRun](ctx, src, dst) }},
		{"messages", func() (int, error) { return copyTable[models.Message](ctx, src, dst) }},
	}

	log.Info("starting data migration")
	for _, step := range steps {
		log.Debug("migrating table", zap.String("table", step.table))
		n, err := step.copy()
		if err != nil {
			return fmt.Errorf("migrate %s: %w", step.table, err)
		}
		log.Info("migrated table", zap.String("table", step.table), zap.Int("rows", n))
	}
	log.Info("data migration completed")
	return nil
}

func copyTable[T any](ctx context.Context, src, dst *gorm.DB) (int, error) {
	var (
		batch []T
		total int
	)
	res := src.WithContext(ctx).FindInBatches(&batch, 500, func(_ *gorm.DB, _ int) error {
		err := dst.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.Create(&batch).Error
		})
		if err != nil {
			return err
		}
		total += len(batch)
		return nil
	})
	return total, res.Error
}

// SequenceTables are the tables with a serial id column.
var SequenceTables = []string{"attachments", "campaign_runs", "messages"}

// SyncSequences moves each PostgreSQL id sequence past the highest stored id.
func SyncSequences(ctx context.Context, db *gorm.DB, log *zap.Logger) error {
	log = orNop(log)
	log.Info("syncing PostgreSQL sequences")
	for _, table := range SequenceTables {
		query := "SELECT setval(pg_get_serial_sequence('" + table + "', 'id'), coalesce(max(id), 0) + 1, false) FROM " + table
		if err := db.WithContext(ctx).Exec(query).Error; err != nil {
			return fmt.Errorf("sync sequence for %s: %w", table, err)
		}
		log.Debug("synced sequence", zap.String("table", table))
	}
	return nil
}
