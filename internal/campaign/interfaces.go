package campaign

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDriverUnavailable is returned (wrapped) by an Executor whose
	// automation channel is gone. The lane that sees it stops.
	ErrDriverUnavailable = errors.New("driver unavailable")
	// ErrNoLanes means no driver could be brought up for a phase.
	ErrNoLanes = errors.New("no live lanes")
	// ErrLockContention means the store lock could not be acquired within
	// the configured attempts.
	ErrLockContention = errors.New("store is locked")
	// ErrStructural means the store lacks the identity or status column.
	ErrStructural = errors.New("store structure invalid")
	// ErrStoreUnreadable means the store could not be read or written.
	ErrStoreUnreadable = errors.New("store unreadable")
	// ErrAlreadyRunning is returned by Service.Start while a run is active.
	ErrAlreadyRunning = errors.New("campaign already running")
)

// Source supplies the contact list and catalogs.
type Source interface {
	Contacts(ctx context.Context) ([]Contact, error)
	MessageCatalog(ctx context.Context) (map[string]string, error)
	AttachmentCatalog(ctx context.Context, kind AttachmentKind) (map[string][]string, error)
	FieldMap(ctx context.Context) (map[string]string, error)
}

// Executor performs the actual delivery actions for one lane.
type Executor interface {
	// SendText delivers the rendered (transport-encoded) text.
	SendText(ctx context.Context, phone, text string) (SendResult, error)
	// Attach delivers a group of files. An empty group is a no-op success.
	Attach(ctx context.Context, phone string, paths []string, kind AttachmentKind) (bool, error)
}

// Driver is an Executor bound to one automation instance.
type Driver interface {
	Executor
	Alive(ctx context.Context) bool
	Close() error
}

// Launcher brings up the driver for a lane slot.
type Launcher interface {
	Launch(ctx context.Context, lane int) (Driver, error)
}

// Target is the persisted record store that flushes write into.
type Target interface {
	// ApplyStatuses updates the status of every record whose normalized
	// identity is a key of statuses and returns how many were updated.
	ApplyStatuses(ctx context.Context, statuses map[string]Status) (int, error)
}

// Lock is the advisory marker guarding the Target across processes.
type Lock interface {
	// Marker reports when the current marker was placed; ok is false when
	// there is no marker.
	Marker(ctx context.Context) (placed time.Time, ok bool, err error)
	// Place creates the marker. It returns false when another holder got
	// there first.
	Place(ctx context.Context, at time.Time) (bool, error)
	Remove(ctx context.Context) error
}

// Observer receives progress and log lines. Implementations must not block.
type Observer interface {
	OnProgress(current, total int)
	OnLaneLog(lane int, msg string)
	OnSystemLog(msg string)
}
