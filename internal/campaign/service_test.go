package campaign

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRecorder struct {
	mu      sync.Mutex
	reports []*Report
}

func (r *memRecorder) SaveRun(_ context.Context, report *Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

func TestServiceSingleRunAndStop(t *testing.T) {
	store := scenarioStore()
	driver := &fakeDriver{block: make(chan struct{})}
	recorder := &memRecorder{}
	svc := NewService(func(context.Context) (*Controller, error) {
		return newTestController(store, &fakeLauncher{drivers: map[int][]*fakeDriver{0: {driver}}}, 1), nil
	}, recorder, nil)

	id, err := svc.Start(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.True(t, svc.State().Running)

	_, err = svc.Start(context.Background())
	require.ErrorIs(t, err, ErrAlreadyRunning)

	require.True(t, svc.Stop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))

	st := svc.State()
	assert.False(t, st.Running)
	require.NotNil(t, st.Last)
	assert.Equal(t, id, st.Last.RunID)
	assert.True(t, st.Last.Cancelled)
	assert.Len(t, recorder.reports, 1)
	assert.Equal(t, StatusRetry, store.status("A"))

	assert.False(t, svc.Stop())
}

func TestServiceTracksProgress(t *testing.T) {
	store := scenarioStore()
	driver := &fakeDriver{results: map[string]SendResult{"B": SendFailed}}
	svc := NewService(func(context.Context) (*Controller, error) {
		return newTestController(store, &fakeLauncher{drivers: map[int][]*fakeDriver{0: {driver}}}, 1), nil
	}, nil, nil)

	_, err := svc.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, svc.Wait(context.Background()))

	st := svc.State()
	assert.Equal(t, 1, st.Total, "last phase was the single-contact retry")
	assert.Equal(t, 1, st.Current)
	assert.Empty(t, st.Last.Error)
}

func TestServiceFactoryError(t *testing.T) {
	svc := NewService(func(context.Context) (*Controller, error) {
		return nil, errors.New("no phone number ids configured")
	}, nil, nil)

	_, err := svc.Start(context.Background())
	require.Error(t, err)
	assert.False(t, svc.State().Running)
	require.NoError(t, svc.Wait(context.Background()))
}
