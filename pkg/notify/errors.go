package notify

import "errors"

var (
	// ErrInvalidPayload is returned when a subscription or ticket payload
	// fails magic/version validation or cannot be mapped.
	ErrInvalidPayload = errors.New("payload rejected")
	// ErrInvalidID is returned when unregistering the sentinel id.
	ErrInvalidID = errors.New("invalid subscription id")
	// ErrWatchStartFailed is returned when a subscription's directory watch
	// could not be started.
	ErrWatchStartFailed = errors.New("directory watch failed to start")
	// ErrAllocationFailed is returned when the broker cannot clone a
	// subscription payload.
	ErrAllocationFailed = errors.New("shared allocation failed")
	// ErrTargetUnreachable is reported per subscriber when a delivery fails.
	ErrTargetUnreachable = errors.New("delivery target unreachable")
	// ErrServerClosed is returned for requests made after shutdown.
	ErrServerClosed = errors.New("notify server closed")
	// ErrQueueFull is returned by Post when the request channel is full.
	ErrQueueFull = errors.New("request queue full")
)
