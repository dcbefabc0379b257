package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"whatsapp-blaster/internal/config"
	"whatsapp-blaster/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// Open connects to the database selected by cfg.DBDriver and runs the
// auto-migration.
func Open(cfg *config.Config, verbose bool, lg *zap.Logger) (*gorm.DB, error) {
	lg = orNop(lg)
	var (
		dialector gorm.Dialector
		name      string
	)
	switch cfg.DBDriver {
	case "postgres":
		dialector, name = postgres.Open(cfg.PostgresDSN()), "PostgreSQL"
	default:
		if dir := filepath.Dir(cfg.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dialector, name = sqlite.Open(cfg.DBPath), "SQLite"
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLogger(verbose)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", name, err)
	}
	lg.Info("connected to database", zap.String("driver", name))

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	lg.Info("database migration completed")
	return db, nil
}

// OpenSQLite opens a SQLite file without migrating it.
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormLogger(false)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite at %s: %w", path, err)
	}
	return db, nil
}

func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.All()...); err != nil {
		return fmt.Errorf("failed to run auto-migration: %w", err)
	}
	return nil
}

func orNop(lg *zap.Logger) *zap.Logger {
	if lg == nil {
		return zap.NewNop()
	}
	return lg
}

func gormLogger(verbose bool) logger.Interface {
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	return logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
