package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by all storage backends and services.
var (
	ErrNotFound = errors.New("not found")

	// ErrStateConflict signals that a compare-and-set lost a race or the
	// database aborted a transaction (serialization failure, deadlock).
	// The whole operation is safe to retry.
	ErrStateConflict = errors.New("concurrent state change")

	// ErrStorageUnavailable wraps transient backend I/O failures.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrReportClosed rejects any mutation of a closed report.
	ErrReportClosed = errors.New("report is closed")
)

// ValidationError marks malformed caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string { return e.Field + ": " + e.Reason }

// InvalidTransitionError rejects a wallet state-machine operation attempted
// from a state that does not permit it.
type InvalidTransitionError struct {
	From RequestStatus
	To   RequestStatus
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

// Warning codes for non-fatal observer failures returned next to a
// successful primary result.
const (
	WarnAuditWriteFailed = "audit_write_failed"
	WarnPublishFailed    = "publish_failed"
)

// Warning reports that a best-effort side effect (audit write, bus publish)
// failed while the core operation itself committed.
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
