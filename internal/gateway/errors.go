package gateway

import (
	"fmt"
	"time"
)

// TimeoutError means the outbound call did not complete within its bound.
// The operation may or may not have been applied by the receiver.
type TimeoutError struct {
	After time.Duration
	Err   error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sync timed out after %s", e.After)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// SyncError means the receiver rejected the operation or could not be reached.
// StatusCode is zero when no response was received.
type SyncError struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *SyncError) Error() string {
	if e.StatusCode == 0 {
		return "sync failed: " + e.Message
	}
	return fmt.Sprintf("sync rejected (%d): %s", e.StatusCode, e.Message)
}

func (e *SyncError) Unwrap() error { return e.Err }
