package campaign

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPersister(store *memStore, now time.Time) (*Persister, *[]time.Duration) {
	p := NewPersister(store, store, DefaultPersistSettings, nil)
	p.now = func() time.Time { return now }
	var slept []time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return p, &slept
}

func TestFlushEmptyDoesNotTouchLock(t *testing.T) {
	store := &memStore{}
	p, _ := newTestPersister(store, time.Now())

	require.NoError(t, p.Flush(context.Background(), nil))
	require.NoError(t, p.Flush(context.Background(), map[string]Status{}))
	assert.Zero(t, store.markerCalls)
	assert.Zero(t, store.placeCalls)
	assert.Zero(t, store.applyCalls)
}

func TestFlushAppliesAndReleases(t *testing.T) {
	store := &memStore{contacts: []Contact{
		{Phone: "60123456789", Status: StatusPending},
		{Phone: "60111111111", Status: StatusPending},
	}}
	p, _ := newTestPersister(store, time.Now())

	err := p.Flush(context.Background(), map[string]Status{"60123456789": StatusSent, "999": StatusRetry})
	require.NoError(t, err)

	assert.Equal(t, StatusSent, store.status("60123456789"))
	assert.Equal(t, StatusPending, store.status("60111111111"))
	assert.Nil(t, store.lockAt)
	assert.Equal(t, 1, store.removeCalls)
}

func TestFlushFreshLockExhaustsAttempts(t *testing.T) {
	now := time.Now()
	held := now.Add(-10 * time.Second)
	store := &memStore{lockAt: &held, contacts: contactsOf("A")}
	p, slept := newTestPersister(store, now)

	err := p.Flush(context.Background(), map[string]Status{"A": StatusSent})

	require.ErrorIs(t, err, ErrLockContention)
	assert.Equal(t, 3, store.markerCalls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, *slept)
	assert.Zero(t, store.applyCalls)
	assert.Zero(t, store.removeCalls, "another holder's lock must stay")
	assert.Equal(t, StatusPending, store.status("A"))
}

func TestFlushRemovesStaleLock(t *testing.T) {
	now := time.Now()
	held := now.Add(-61 * time.Second)
	store := &memStore{lockAt: &held, contacts: contactsOf("A")}
	p, slept := newTestPersister(store, now)

	require.NoError(t, p.Flush(context.Background(), map[string]Status{"A": StatusSent}))

	assert.Empty(t, *slept)
	assert.Equal(t, StatusSent, store.status("A"))
	assert.Equal(t, 2, store.removeCalls)
	assert.Nil(t, store.lockAt)
}

func TestFlushStructuralFailureIsTerminal(t *testing.T) {
	store := &memStore{applyErr: fmt.Errorf("%w: no status column", ErrStructural)}
	p, slept := newTestPersister(store, time.Now())

	err := p.Flush(context.Background(), map[string]Status{"A": StatusSent})

	require.ErrorIs(t, err, ErrStructural)
	assert.Equal(t, 1, store.applyCalls)
	assert.Empty(t, *slept)
	assert.Nil(t, store.lockAt, "lock released after failure")
}

func TestFlushUnreadableMarker(t *testing.T) {
	store := &memStore{markerErr: errors.New("disk I/O error")}
	p, _ := newTestPersister(store, time.Now())

	err := p.Flush(context.Background(), map[string]Status{"A": StatusSent})

	require.ErrorIs(t, err, ErrStoreUnreadable)
	assert.False(t, errors.Is(err, ErrLockContention))
	assert.Equal(t, 1, store.markerCalls)
}
