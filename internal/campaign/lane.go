package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Timing holds the randomized pacing bounds of a lane.
type Timing struct {
	MinDelay       time.Duration
	MaxDelay       time.Duration
	AttachMinDelay time.Duration
	AttachMaxDelay time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Progress counts processed contacts across all lanes of a phase.
type Progress struct {
	done     atomic.Int64
	total    int
	observer Observer
}

func NewProgress(total int, observer Observer) *Progress {
	return &Progress{total: total, observer: observer}
}

func (p *Progress) Step() {
	n := p.done.Add(1)
	p.observer.OnProgress(int(n), p.total)
}

func (p *Progress) Done() int { return int(p.done.Load()) }

// Lane processes one queue with one executor.
type Lane struct {
	ID           int
	Executor     Executor
	Catalog      *Catalog
	Personalizer *Personalizer
	Ledger       *Ledger
	Progress     *Progress
	Observer     Observer
	Timing       Timing
	Sleep        Sleeper
	Logger       *zap.Logger
}

// errAbandoned marks a contact whose delay was cut short by cancellation.
var errAbandoned = errors.New("contact abandoned")

// Run drains queue until it is empty, the executor reports the driver
// gone, or ctx is cancelled. queue must already be closed; Run never waits
// for new work.
func (l *Lane) Run(ctx context.Context, queue <-chan Contact) {
	if l.Sleep == nil {
		l.Sleep = SleepContext
	}
	if l.Logger == nil {
		l.Logger = zap.NewNop()
	}
	log := l.Logger.With(zap.Int("lane", l.ID))

	for {
		var ct Contact
		select {
		case c, ok := <-queue:
			if !ok {
				return
			}
			ct = c
		default:
			return
		}

		if ctx.Err() != nil {
			l.Observer.OnLaneLog(l.ID, "stop requested, leaving remaining contacts for retry")
			log.Info("lane stopped by cancellation")
			return
		}

		status, err := l.process(ctx, ct)
		switch {
		case errors.Is(err, errAbandoned):
			log.Info("contact abandoned", zap.String("phone", ct.Phone))
			return
		case errors.Is(err, ErrDriverUnavailable):
			l.Ledger.Set(ct.Phone, StatusRetry)
			l.Progress.Step()
			l.Observer.OnLaneLog(l.ID, "driver disconnected, lane exiting")
			log.Warn("driver unavailable, lane exiting", zap.String("phone", ct.Phone), zap.Error(err))
			return
		case err != nil:
			log.Warn("contact failed", zap.String("phone", ct.Phone), zap.Error(err))
		}

		l.Ledger.Set(ct.Phone, status)
		l.Progress.Step()
		l.Observer.OnLaneLog(l.ID, fmt.Sprintf("%s: %s", ct.Phone, status))
	}
}

// process runs the per-contact state machine. A non-nil error always comes
// with StatusRetry.
func (l *Lane) process(ctx context.Context, ct Contact) (status Status, err error) {
	defer func() {
		if r := recover(); r != nil {
			status, err = StatusRetry, fmt.Errorf("panic processing %s: %v", ct.Phone, r)
		}
	}()

	var (
		template string
		docs     []string
		media    []string
		ok       bool
	)

	if ct.MsgCode != NoAction {
		if template, ok = l.Catalog.Messages[ct.MsgCode]; !ok {
			l.Observer.OnLaneLog(l.ID, fmt.Sprintf("%s: unknown message code %s", ct.Phone, ct.MsgCode))
			return StatusInvalid, nil
		}
	}
	if ct.DocCode != NoAction {
		if docs, ok = l.Catalog.Docs[ct.DocCode]; !ok {
			l.Observer.OnLaneLog(l.ID, fmt.Sprintf("%s: unknown document code %s", ct.Phone, ct.DocCode))
			return StatusInvalid, nil
		}
	}
	if ct.MediaCode != NoAction {
		if media, ok = l.Catalog.Media[ct.MediaCode]; !ok {
			l.Observer.OnLaneLog(l.ID, fmt.Sprintf("%s: unknown media code %s", ct.Phone, ct.MediaCode))
			return StatusInvalid, nil
		}
	}

	sendText := ct.MsgCode != NoAction
	if !sendText && len(docs) == 0 && len(media) == 0 {
		return StatusSent, nil
	}

	if sendText {
		text := l.Personalizer.Render(template, l.Catalog.FieldValues(ct))
		if text == "" {
			return StatusInvalid, nil
		}
		if err := l.Sleep(ctx, l.Personalizer.Between(l.Timing.MinDelay, l.Timing.MaxDelay)); err != nil {
			return StatusRetry, errAbandoned
		}
		res, err := l.Executor.SendText(ctx, ct.Phone, text)
		if err != nil {
			return StatusRetry, err
		}
		switch res {
		case SendInvalid:
			return StatusInvalid, nil
		case SendFailed:
			return StatusRetry, nil
		}
	} else {
		if err := l.Sleep(ctx, l.Personalizer.Between(l.Timing.AttachMinDelay, l.Timing.AttachMaxDelay)); err != nil {
			return StatusRetry, errAbandoned
		}
	}

	for _, group := range []struct {
		kind  AttachmentKind
		paths []string
	}{{KindDocument, docs}, {KindMedia, media}} {
		if len(group.paths) == 0 {
			continue
		}
		sent, err := l.Executor.Attach(ctx, ct.Phone, group.paths, group.kind)
		if err != nil {
			return StatusRetry, err
		}
		if !sent {
			return StatusRetry, nil
		}
	}
	return StatusSent, nil
}
