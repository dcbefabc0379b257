package campaign

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options are the run-level settings of a Controller.
type Options struct {
	// Lanes is the number of driver slots; each live slot gets one goroutine.
	Lanes  int
	Timing Timing
	// FlushTimeout bounds how long the controller waits for a flush before
	// moving on. The flush itself keeps running in the background.
	FlushTimeout time.Duration
}

// PhaseReport summarizes one pass.
type PhaseReport struct {
	Phase     Phase     `json:"phase"`
	Eligible  int       `json:"eligible"`
	Lanes     int       `json:"lanes"`
	Processed int       `json:"processed"`
	Sent      int       `json:"sent"`
	Invalid   int       `json:"invalid"`
	Retry     int       `json:"retry"`
	Flushed   bool      `json:"flushed"`
	FlushErr  string    `json:"flush_error,omitempty"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

// Report is the outcome of Controller.Run.
type Report struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Contacts   int           `json:"contacts"`
	Phases     []PhaseReport `json:"phases"`
	Cancelled  bool          `json:"cancelled"`
	Error      string        `json:"error,omitempty"`
}

// Controller runs the Initial and Retry phases of one campaign.
type Controller struct {
	Source       Source
	Launcher     Launcher
	Persister    *Persister
	Personalizer *Personalizer
	Observer     Observer
	Options      Options
	Logger       *zap.Logger
	// RunID is generated when empty.
	RunID string
	// Sleep is handed to every lane; nil means SleepContext.
	Sleep Sleeper

	flushes sync.WaitGroup
}

// Run executes the whole campaign. The returned report is never nil.
// Cancelling ctx stops lanes at their next contact and skips any phase not
// yet started, but the ledger of the interrupted phase is still flushed.
func (c *Controller) Run(ctx context.Context) (*Report, error) {
	c.defaults()
	report := &Report{RunID: c.RunID, StartedAt: time.Now()}
	log := c.Logger.With(zap.String("run_id", c.RunID))

	finish := func(err error) (*Report, error) {
		report.FinishedAt = time.Now()
		report.Cancelled = ctx.Err() != nil
		if err != nil {
			report.Error = err.Error()
		}
		return report, err
	}

	contacts, catalog, err := c.load(ctx)
	if err != nil {
		return finish(err)
	}
	report.Contacts = len(contacts)

	batch := selectContacts(contacts, Status.Eligible, log)
	if len(batch) == 0 {
		c.Observer.OnSystemLog("No pending contacts")
		return finish(nil)
	}

	drivers := c.launch(ctx, log)
	defer c.closeAll(drivers, log)

	pr, err := c.phase(ctx, PhaseInitial, batch, drivers, catalog, log)
	report.Phases = append(report.Phases, pr)
	if err != nil {
		return finish(err)
	}
	if ctx.Err() != nil {
		c.Observer.OnSystemLog("Campaign stopped")
		return finish(nil)
	}

	reloaded, err := c.Source.Contacts(ctx)
	if err != nil {
		return finish(fmt.Errorf("reload contacts: %w", err))
	}
	retry := selectContacts(reloaded, func(s Status) bool { return s == StatusRetry }, log)
	if len(retry) == 0 {
		c.Observer.OnSystemLog("Nothing to retry")
		return finish(nil)
	}

	c.relaunch(ctx, drivers, log)
	if ctx.Err() != nil {
		return finish(nil)
	}

	pr, err = c.phase(ctx, PhaseRetry, retry, drivers, catalog, log)
	report.Phases = append(report.Phases, pr)
	if err == nil && ctx.Err() == nil {
		c.Observer.OnSystemLog("Campaign finished")
	}
	return finish(err)
}

// WaitFlushes blocks until every background flush started by Run is done.
func (c *Controller) WaitFlushes() {
	c.flushes.Wait()
}

func (c *Controller) defaults() {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.Observer == nil {
		c.Observer = NopObserver{}
	}
	if c.Personalizer == nil {
		c.Personalizer = NewPersonalizer(nil, c.Logger)
	}
	if c.Options.Lanes < 1 {
		c.Options.Lanes = 1
	}
	if c.Options.FlushTimeout <= 0 {
		c.Options.FlushTimeout = 30 * time.Second
	}
	if c.RunID == "" {
		c.RunID = uuid.NewString()
	}
}

func (c *Controller) load(ctx context.Context) ([]Contact, *Catalog, error) {
	contacts, err := c.Source.Contacts(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load contacts: %w", err)
	}
	catalog := &Catalog{}
	if catalog.Messages, err = c.Source.MessageCatalog(ctx); err != nil {
		return nil, nil, fmt.Errorf("load message catalog: %w", err)
	}
	if catalog.Docs, err = c.Source.AttachmentCatalog(ctx, KindDocument); err != nil {
		return nil, nil, fmt.Errorf("load document catalog: %w", err)
	}
	if catalog.Media, err = c.Source.AttachmentCatalog(ctx, KindMedia); err != nil {
		return nil, nil, fmt.Errorf("load media catalog: %w", err)
	}
	if catalog.FieldMap, err = c.Source.FieldMap(ctx); err != nil {
		return nil, nil, fmt.Errorf("load field map: %w", err)
	}
	return contacts, catalog, nil
}

// selectContacts keeps contacts whose status passes keep. Identities are
// normalized; blanks are dropped and only the first occurrence of an
// identity is considered.
func selectContacts(contacts []Contact, keep func(Status) bool, log *zap.Logger) []Contact {
	seen := make(map[string]struct{}, len(contacts))
	out := make([]Contact, 0, len(contacts))
	for _, ct := range contacts {
		ct.Phone = NormalizePhone(ct.Phone)
		if ct.Phone == "" {
			log.Warn("skipping contact without phone number")
			continue
		}
		if _, dup := seen[ct.Phone]; dup {
			log.Warn("skipping duplicate contact", zap.String("phone", ct.Phone))
			continue
		}
		seen[ct.Phone] = struct{}{}
		if keep(ct.Status) {
			out = append(out, ct)
		}
	}
	return out
}

// launch brings up every lane's driver concurrently. A slot whose launch
// fails stays nil.
func (c *Controller) launch(ctx context.Context, log *zap.Logger) []Driver {
	drivers := make([]Driver, c.Options.Lanes)
	if c.Launcher == nil {
		return drivers
	}
	var g errgroup.Group
	for i := range drivers {
		i := i
		g.Go(func() error {
			d, err := c.Launcher.Launch(ctx, i)
			if err != nil {
				log.Warn("driver launch failed", zap.Int("lane", i), zap.Error(err))
				c.Observer.OnLaneLog(i, "driver failed to start")
				return nil
			}
			drivers[i] = d
			c.Observer.OnLaneLog(i, "driver ready")
			return nil
		})
	}
	_ = g.Wait()
	return drivers
}

// relaunch replaces drivers that were running but died since.
func (c *Controller) relaunch(ctx context.Context, drivers []Driver, log *zap.Logger) {
	if c.Launcher == nil {
		return
	}
	var g errgroup.Group
	for i, d := range drivers {
		if d == nil || d.Alive(ctx) {
			continue
		}
		i, d := i, d
		g.Go(func() error {
			if err := d.Close(); err != nil {
				log.Debug("close dead driver", zap.Int("lane", i), zap.Error(err))
			}
			drivers[i] = nil
			nd, err := c.Launcher.Launch(ctx, i)
			if err != nil {
				log.Warn("driver relaunch failed", zap.Int("lane", i), zap.Error(err))
				c.Observer.OnLaneLog(i, "driver could not be restarted")
				return nil
			}
			drivers[i] = nd
			c.Observer.OnLaneLog(i, "driver restarted")
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Controller) closeAll(drivers []Driver, log *zap.Logger) {
	for i, d := range drivers {
		if d == nil {
			continue
		}
		if err := d.Close(); err != nil {
			log.Warn("close driver", zap.Int("lane", i), zap.Error(err))
		}
	}
}

func (c *Controller) phase(ctx context.Context, phase Phase, batch []Contact, drivers []Driver, catalog *Catalog, log *zap.Logger) (PhaseReport, error) {
	pr := PhaseReport{Phase: phase, Eligible: len(batch), StartedAt: time.Now()}
	log = log.With(zap.String("phase", string(phase)))

	live := make([]bool, len(drivers))
	for i, d := range drivers {
		if d != nil {
			live[i] = true
			pr.Lanes++
		}
	}

	ledger := NewLedger()
	queues := Assign(batch, live, ledger)

	if pr.Lanes == 0 {
		c.Observer.OnSystemLog(fmt.Sprintf("%s phase: no driver available, %d contacts left for retry", phase, len(batch)))
		log.Error("no live lanes", zap.Int("contacts", len(batch)))
		c.flush(ctx, &pr, ledger, log)
		pr.Duration = time.Since(pr.StartedAt).String()
		return pr, ErrNoLanes
	}

	c.Observer.OnSystemLog(fmt.Sprintf("%s phase: %d contacts across %d lanes", phase, len(batch), pr.Lanes))
	progress := NewProgress(len(batch), c.Observer)

	var wg sync.WaitGroup
	for i, q := range queues {
		if !live[i] {
			continue
		}
		ch := make(chan Contact, len(q))
		for _, ct := range q {
			ch <- ct
		}
		close(ch)

		lane := &Lane{
			ID:           i,
			Executor:     drivers[i],
			Catalog:      catalog,
			Personalizer: c.Personalizer,
			Ledger:       ledger,
			Progress:     progress,
			Observer:     c.Observer,
			Timing:       c.Options.Timing,
			Sleep:        c.Sleep,
			Logger:       log,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			lane.Run(ctx, ch)
		}()
	}
	wg.Wait()

	pr.Processed = progress.Done()
	c.flush(ctx, &pr, ledger, log)
	pr.Duration = time.Since(pr.StartedAt).String()
	return pr, nil
}

// flush persists the ledger in the background and waits up to
// FlushTimeout for it. On timeout the phase proceeds while the flush keeps
// going, so a following reload may still see the previous statuses.
func (c *Controller) flush(ctx context.Context, pr *PhaseReport, ledger *Ledger, log *zap.Logger) {
	snapshot := ledger.Snapshot()
	for _, s := range snapshot {
		switch s {
		case StatusSent:
			pr.Sent++
		case StatusInvalid:
			pr.Invalid++
		case StatusRetry:
			pr.Retry++
		}
	}

	done := make(chan error, 1)
	c.flushes.Add(1)
	go func() {
		defer c.flushes.Done()
		done <- c.Persister.Flush(context.WithoutCancel(ctx), snapshot)
	}()

	timer := time.NewTimer(c.Options.FlushTimeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			pr.FlushErr = err.Error()
			c.Observer.OnSystemLog(fmt.Sprintf("Saving statuses failed: %v", err))
			if errors.Is(err, ErrLockContention) {
				log.Warn("flush gave up on lock contention", zap.Error(err))
			} else {
				log.Error("flush failed", zap.Error(err))
			}
			return
		}
		pr.Flushed = true
		c.Observer.OnSystemLog(fmt.Sprintf("Saved %d statuses", len(snapshot)))
	case <-timer.C:
		pr.FlushErr = "flush still running after timeout"
		log.Warn("flush did not finish in time, continuing", zap.Duration("timeout", c.Options.FlushTimeout))
		c.Observer.OnSystemLog("Saving statuses is taking longer than expected")
	}
}
