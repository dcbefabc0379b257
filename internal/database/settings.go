package database

import (
	"context"
	"errors"

	"whatsapp-blaster/internal/config"
	"whatsapp-blaster/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SyncSettings overlays values stored in system_settings onto cfg and
// stores the current value of every key that has no row yet.
func SyncSettings(ctx context.Context, db *gorm.DB, cfg *config.Config, log *zap.Logger) error {
	log = orNop(log)
	db = db.WithContext(ctx)
	var errs []error
	for _, key := range config.SettingKeys {
		var setting models.SystemSetting
		err := db.Where("key = ?", key).First(&setting).Error
		switch {
		case err == nil:
			// Found in DB, update memory config
			if setting.Value != "" {
				if err := cfg.Set(key, setting.Value); err != nil {
					log.Warn("ignoring stored setting", zap.String("key", key), zap.Error(err))
				}
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// Not found in DB, save current config to DB
			if value, _ := cfg.Get(key); value != "" {
				if err := db.Create(&models.SystemSetting{Key: key, Value: value}).Error; err != nil {
					errs = append(errs, err)
				}
			}
		default:
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	log.Info("system settings synchronized from database")
	return cfg.Validate()
}

// SaveSettings applies values to cfg, validates the result and persists
// them. cfg is left untouched when any value is rejected.
func SaveSettings(ctx context.Context, db *gorm.DB, cfg *config.Config, values map[string]string) error {
	next := cfg.Clone()
	for key, value := range values {
		if err := next.Set(key, value); err != nil {
			return err
		}
	}
	if err := next.Validate(); err != nil {
		return err
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, value := range values {
			row := models.SystemSetting{Key: key, Value: value}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "key"}},
				DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	*cfg = *next
	return nil
}
