package campaign

import (
	"fmt"
	"strconv"
	"strings"
)

// Status is the persisted outcome code of a contact. The numeric values are
// what the contacts table stores.
type Status int

const (
	StatusPending Status = -1
	StatusInvalid Status = 0
	StatusSent    Status = 1
	StatusRetry   Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusInvalid:
		return "INVALID"
	case StatusSent:
		return "SENT"
	case StatusRetry:
		return "RETRY"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInvalid, StatusSent, StatusRetry:
		return true
	}
	return false
}

// Eligible reports whether a contact with this status is picked up by a run.
func (s Status) Eligible() bool {
	return s == StatusPending || s == StatusRetry
}

// ParseStatus accepts either the numeric code or the status name.
// Anything unrecognized (including an empty value) is PENDING.
func ParseStatus(v string) Status {
	v = strings.TrimSpace(v)
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		if s := Status(int(n)); s.IsValid() {
			return s
		}
		return StatusPending
	}
	switch strings.ToUpper(v) {
	case "INVALID":
		return StatusInvalid
	case "SENT":
		return StatusSent
	case "RETRY":
		return StatusRetry
	}
	return StatusPending
}

// SendResult is what an Executor reports for a text send.
type SendResult int

const (
	SendSent SendResult = iota
	SendFailed
	SendInvalid
)

func (r SendResult) String() string {
	switch r {
	case SendSent:
		return "SENT"
	case SendFailed:
		return "FAILED"
	case SendInvalid:
		return "INVALID"
	}
	return fmt.Sprintf("SendResult(%d)", int(r))
}

// AttachmentKind selects the attachment catalog and the driver's attach flow.
type AttachmentKind string

const (
	KindDocument AttachmentKind = "DOCS"
	KindMedia    AttachmentKind = "MEDIA"
)

func (k AttachmentKind) IsValid() bool {
	return k == KindDocument || k == KindMedia
}

// Phase labels a pass over the eligible contacts. It is never persisted.
type Phase string

const (
	PhaseInitial Phase = "Initial"
	PhaseRetry   Phase = "Retry"
)
