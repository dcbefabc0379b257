package campaign

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunRecorder stores finished run reports.
type RunRecorder interface {
	SaveRun(ctx context.Context, report *Report) error
}

// ControllerFactory builds a fresh Controller for each run, so settings
// changed between runs are picked up.
type ControllerFactory func(ctx context.Context) (*Controller, error)

// State is a point-in-time view of the Service.
type State struct {
	Running   bool      `json:"running"`
	RunID     string    `json:"run_id,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Stopping  bool      `json:"stopping"`
	Last      *Report   `json:"last,omitempty"`
}

// Service supervises at most one campaign run at a time.
type Service struct {
	factory  ControllerFactory
	recorder RunRecorder
	logger   *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(factory ControllerFactory, recorder RunRecorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{factory: factory, recorder: recorder, logger: logger}
}

// Start launches a run in the background and returns its id.
func (s *Service) Start(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return "", ErrAlreadyRunning
	}

	ctrl, err := s.factory(ctx)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	ctrl.RunID = id
	if ctrl.Observer == nil {
		ctrl.Observer = progressTracker{s}
	} else {
		ctrl.Observer = MultiObserver{ctrl.Observer, progressTracker{s}}
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = State{Running: true, RunID: id, StartedAt: time.Now(), Last: s.state.Last}

	go s.run(runCtx, ctrl, s.done)
	s.logger.Info("campaign started", zap.String("run_id", id))
	return id, nil
}

func (s *Service) run(ctx context.Context, ctrl *Controller, done chan struct{}) {
	defer close(done)

	report, err := ctrl.Run(ctx)
	if err != nil {
		s.logger.Error("campaign run failed", zap.String("run_id", ctrl.RunID), zap.Error(err))
	}
	ctrl.WaitFlushes()

	if s.recorder != nil {
		if err := s.recorder.SaveRun(context.Background(), report); err != nil {
			s.logger.Error("save run report", zap.String("run_id", report.RunID), zap.Error(err))
		}
	}

	s.mu.Lock()
	s.cancel()
	s.cancel = nil
	s.state.Running = false
	s.state.Stopping = false
	s.state.Last = report
	s.mu.Unlock()
}

// Stop asks the active run to stop. It reports whether a run was active.
func (s *Service) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return false
	}
	s.cancel()
	s.state.Stopping = true
	return true
}

// Wait blocks until the active run, if any, has finished or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

type progressTracker struct{ s *Service }

func (p progressTracker) OnProgress(current, total int) {
	p.s.mu.Lock()
	p.s.state.Current, p.s.state.Total = current, total
	p.s.mu.Unlock()
}

func (progressTracker) OnLaneLog(int, string) {}
func (progressTracker) OnSystemLog(string) {}
