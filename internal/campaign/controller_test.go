package campaign

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestController(store *memStore, launcher Launcher, lanes int) *Controller {
	return &Controller{
		Source:       store,
		Launcher:     launcher,
		Persister:    NewPersister(store, store, DefaultPersistSettings, nil),
		Personalizer: NewPersonalizer(rand.NewSource(1), nil),
		Options:      Options{Lanes: lanes, FlushTimeout: 5 * time.Second},
		Sleep:        noSleep,
	}
}

func textContact(phone string, status Status) Contact {
	return Contact{Phone: phone, MsgCode: "1", DocCode: NoAction, MediaCode: NoAction, Status: status}
}

func scenarioStore() *memStore {
	return &memStore{
		contacts: []Contact{
			textContact("A", StatusPending),
			textContact("B", StatusRetry),
			textContact("C", StatusInvalid),
		},
		messages: map[string]string{"1": "Hello+%7Bname%7D"},
		fields:   map[string]string{"name": "Name"},
	}
}

func TestRunInitialThenRetry(t *testing.T) {
	store := scenarioStore()
	driver := &fakeDriver{results: map[string]SendResult{"B": SendFailed}}
	ctrl := newTestController(store, &fakeLauncher{drivers: map[int][]*fakeDriver{0: {driver}}}, 1)

	report, err := ctrl.Run(context.Background())
	ctrl.WaitFlushes()
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B", "B"}, driver.sentTexts())
	assert.Equal(t, StatusSent, store.status("A"))
	assert.Equal(t, StatusRetry, store.status("B"))
	assert.Equal(t, StatusInvalid, store.status("C"))

	require.Len(t, report.Phases, 2)
	initial, retry := report.Phases[0], report.Phases[1]
	assert.Equal(t, PhaseInitial, initial.Phase)
	assert.Equal(t, 2, initial.Eligible)
	assert.Equal(t, 1, initial.Sent)
	assert.Equal(t, 1, initial.Retry)
	assert.True(t, initial.Flushed)
	assert.Equal(t, PhaseRetry, retry.Phase)
	assert.Equal(t, 1, retry.Eligible)
	assert.False(t, report.Cancelled)
	assert.NotEmpty(t, report.RunID)
	assert.True(t, driver.closed.Load())
}

func TestRunInvalidIsNotRetried(t *testing.T) {
	store := scenarioStore()
	driver := &fakeDriver{results: map[string]SendResult{"A": SendInvalid, "B": SendSent}}
	ctrl := newTestController(store, &fakeLauncher{drivers: map[int][]*fakeDriver{0: {driver}}}, 1)

	report, err := ctrl.Run(context.Background())
	ctrl.WaitFlushes()
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, driver.sentTexts())
	assert.Equal(t, StatusInvalid, store.status("A"))
	assert.Equal(t, StatusSent, store.status("B"))
	assert.Len(t, report.Phases, 1)
}

func TestRunSpreadsAcrossLanes(t *testing.T) {
	store := &memStore{
		contacts: []Contact{
			textContact("A", StatusPending), textContact("B", StatusPending),
			textContact("C", StatusPending), textContact("D", StatusPending),
		},
		messages: map[string]string{"1": "Hi"},
	}
	d0, d1 := &fakeDriver{}, &fakeDriver{}
	obs := &recordingObserver{}
	ctrl := newTestController(store, &fakeLauncher{drivers: map[int][]*fakeDriver{0: {d0}, 1: {d1}}}, 2)
	ctrl.Observer = obs

	_, err := ctrl.Run(context.Background())
	ctrl.WaitFlushes()
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "C"}, d0.sentTexts())
	assert.Equal(t, []string{"B", "D"}, d1.sentTexts())
	for _, p := range []string{"A", "B", "C", "D"} {
		assert.Equal(t, StatusSent, store.status(p))
	}
	assert.Len(t, obs.progress, 4)
	assert.Contains(t, obs.progress, [2]int{4, 4})
}

func TestRunNoLanes(t *testing.T) {
	store := scenarioStore()
	ctrl := newTestController(store, &fakeLauncher{}, 2)

	report, err := ctrl.Run(context.Background())
	ctrl.WaitFlushes()

	require.ErrorIs(t, err, ErrNoLanes)
	assert.Equal(t, StatusRetry, store.status("A"))
	assert.Equal(t, StatusRetry, store.status("B"))
	assert.Equal(t, StatusInvalid, store.status("C"))
	require.Len(t, report.Phases, 1)
	assert.Zero(t, report.Phases[0].Lanes)
	assert.Equal(t, ErrNoLanes.Error(), report.Error)
}

func TestRunRelaunchesDeadDriver(t *testing.T) {
	store := &memStore{
		contacts: []Contact{textContact("A", StatusPending), textContact("B", StatusPending)},
		messages: map[string]string{"1": "Hi"},
	}
	first := &fakeDriver{errs: map[string]error{"A": fmt.Errorf("tab crashed: %w", ErrDriverUnavailable)}}
	second := &fakeDriver{}
	launcher := &fakeLauncher{drivers: map[int][]*fakeDriver{0: {first, second}}}
	ctrl := newTestController(store, launcher, 1)

	_, err := ctrl.Run(context.Background())
	ctrl.WaitFlushes()
	require.NoError(t, err)

	assert.Equal(t, []string{"A"}, first.sentTexts())
	assert.Equal(t, []string{"A", "B"}, second.sentTexts())
	assert.Equal(t, 2, launcher.launches[0])
	assert.True(t, first.closed.Load())
	assert.True(t, second.closed.Load())
	assert.Equal(t, StatusSent, store.status("A"))
	assert.Equal(t, StatusSent, store.status("B"))
}

func TestRunCancelledStillFlushes(t *testing.T) {
	store := scenarioStore()
	driver := &fakeDriver{}
	ctrl := newTestController(store, &fakeLauncher{drivers: map[int][]*fakeDriver{0: {driver}}}, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := ctrl.Run(ctx)
	ctrl.WaitFlushes()
	require.NoError(t, err)

	assert.True(t, report.Cancelled)
	assert.Len(t, report.Phases, 1)
	assert.Empty(t, driver.sentTexts())
	assert.Equal(t, StatusRetry, store.status("A"))
	assert.Equal(t, StatusRetry, store.status("B"))
}

func TestRunSkipsDuplicatesAndBlanks(t *testing.T) {
	store := &memStore{
		contacts: []Contact{
			textContact("+60 12-345", StatusPending),
			textContact("6012345", StatusPending),
			textContact("  ", StatusPending),
		},
		messages: map[string]string{"1": "Hi"},
	}
	driver := &fakeDriver{}
	ctrl := newTestController(store, &fakeLauncher{drivers: map[int][]*fakeDriver{0: {driver}}}, 1)

	report, err := ctrl.Run(context.Background())
	ctrl.WaitFlushes()
	require.NoError(t, err)

	assert.Equal(t, []string{"6012345"}, driver.sentTexts())
	assert.Equal(t, 1, report.Phases[0].Eligible)
}

func TestRunFlushTimeoutProceeds(t *testing.T) {
	store := scenarioStore()
	store.applyGate = make(chan struct{})
	driver := &fakeDriver{}
	ctrl := newTestController(store, &fakeLauncher{drivers: map[int][]*fakeDriver{0: {driver}}}, 1)
	ctrl.Options.FlushTimeout = 20 * time.Millisecond
	ctrl.Persister.sleep = noSleep

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.Phases)
	assert.False(t, report.Phases[0].Flushed)
	assert.NotEmpty(t, report.Phases[0].FlushErr)

	close(store.applyGate)
	ctrl.WaitFlushes()
	require.Eventually(t, func() bool {
		return store.status("A") == StatusSent && store.status("B") == StatusSent
	}, time.Second, 10*time.Millisecond)
}

func TestRunNothingPending(t *testing.T) {
	store := &memStore{contacts: []Contact{textContact("A", StatusSent)}}
	launcher := &fakeLauncher{}
	ctrl := newTestController(store, launcher, 2)

	report, err := ctrl.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Phases)
	assert.Empty(t, launcher.launches)
}
