package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"whatsapp-blaster/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Marker reports when the contacts lock row was placed.
func (s *Store) Marker(ctx context.Context) (time.Time, bool, error) {
	var row models.StoreLock
	err := s.db.WithContext(ctx).Where("name = ?", s.lockName).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return row.PlacedAt, true, nil
}

// Place inserts the lock row unless one already exists.
func (s *Store) Place(ctx context.Context, at time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.StoreLock{Name: s.lockName, PlacedAt: at, Holder: s.holder})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) Remove(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("name = ?", s.lockName).Delete(&models.StoreLock{}).Error
}

func lockHolder() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s:%d", host, os.Getpid())
}
