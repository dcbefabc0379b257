package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// PersistSettings controls the advisory lock protocol.
type PersistSettings struct {
	StaleAfter time.Duration
	Attempts   int
	RetryDelay time.Duration
}

// DefaultPersistSettings mirrors the lock file behaviour of the desktop tool.
var DefaultPersistSettings = PersistSettings{
	StaleAfter: 60 * time.Second,
	Attempts:   3,
	RetryDelay: 2 * time.Second,
}

// Persister writes a ledger snapshot into the Target under the Lock.
type Persister struct {
	target   Target
	lock     Lock
	settings PersistSettings
	logger   *zap.Logger

	now   func() time.Time
	sleep Sleeper
}

func NewPersister(target Target, lock Lock, settings PersistSettings, logger *zap.Logger) *Persister {
	if logger == nil {
		logger = zap.NewNop()
	}
	if settings.Attempts < 1 {
		settings.Attempts = 1
	}
	return &Persister{
		target:   target,
		lock:     lock,
		settings: settings,
		logger:   logger,
		now:      time.Now,
		sleep:    SleepContext,
	}
}

// Flush applies statuses to the target. A nil error means every update was
// written. Lock contention is retried; structural and read failures are not.
func (p *Persister) Flush(ctx context.Context, statuses map[string]Status) error {
	if len(statuses) == 0 {
		return nil
	}

	if err := p.acquire(ctx); err != nil {
		return err
	}
	defer func() {
		if err := p.lock.Remove(context.WithoutCancel(ctx)); err != nil {
			p.logger.Error("release store lock", zap.Error(err))
		}
	}()

	n, err := p.target.ApplyStatuses(ctx, statuses)
	if err != nil {
		p.logger.Error("flush failed", zap.Int("statuses", len(statuses)), zap.Error(err))
		return err
	}
	p.logger.Info("flush complete", zap.Int("statuses", len(statuses)), zap.Int("updated", n))
	return nil
}

func (p *Persister) acquire(ctx context.Context) error {
	for attempt := 1; attempt <= p.settings.Attempts; attempt++ {
		placed, held, err := p.lock.Marker(ctx)
		if err != nil {
			return fmt.Errorf("%w: read lock marker: %v", ErrStoreUnreadable, err)
		}
		if held && p.now().Sub(placed) > p.settings.StaleAfter {
			p.logger.Warn("removing stale store lock", zap.Time("placed_at", placed))
			if err := p.lock.Remove(ctx); err != nil {
				return fmt.Errorf("%w: remove stale lock: %v", ErrStoreUnreadable, err)
			}
			held = false
		}
		if !held {
			ok, err := p.lock.Place(ctx, p.now())
			if err != nil {
				return fmt.Errorf("%w: place lock: %v", ErrStoreUnreadable, err)
			}
			if ok {
				return nil
			}
		}

		if attempt == p.settings.Attempts {
			break
		}
		p.logger.Info("store locked, waiting", zap.Int("attempt", attempt), zap.Duration("delay", p.settings.RetryDelay))
		if err := p.sleep(ctx, p.settings.RetryDelay); err != nil {
			return errors.Join(ErrLockContention, err)
		}
	}
	return fmt.Errorf("%w after %d attempts", ErrLockContention, p.settings.Attempts)
}
