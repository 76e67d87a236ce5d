package errors

import (
	sterrors "errors"
	"fmt"
	"time"
)

var (
	ErrServiceRequired     = sterrors.New("typedipc: service is required")
	ErrClientRequired      = sterrors.New("typedipc: client is required")
	ErrHandlerRequired     = sterrors.New("typedipc: handler function is required")
	ErrChannelRequired     = sterrors.New("typedipc: channel name is required")
	ErrPublisherRequired   = sterrors.New("typedipc: publisher is required")
	ErrConfigRequired      = sterrors.New("typedipc: config is required")
	ErrLoggerRequired      = sterrors.New("typedipc: logger is required")
	ErrNoHandler           = sterrors.New("typedipc: no handler registered for channel")
	ErrServiceClosed       = sterrors.New("typedipc: service is closed")
	ErrStreamClosed        = sterrors.New("typedipc: stream is closed")
	ErrStreamCancelled     = sterrors.New("typedipc: stream is cancelled")
	ErrStreamErrored       = sterrors.New("typedipc: stream is errored")
	ErrWindowRequired      = sterrors.New("typedipc: window id is required")
	ErrRouteTargetRequired = sterrors.New("typedipc: route target id or role is required")
	ErrPayloadTypeRequired = sterrors.New("typedipc: payload type must not be nil")
	ErrPayloadPointerType  = sterrors.New("typedipc: payload type must be a pointer")
)

// TargetNotFoundError is returned by the renderer router when no live window
// matches the requested id or role.
type TargetNotFoundError struct {
	TargetID   int64
	TargetRole string
}

func (e *TargetNotFoundError) Error() string {
	if e.TargetRole != "" {
		return fmt.Sprintf("typedipc: no window with role %q", e.TargetRole)
	}
	return fmt.Sprintf("typedipc: no window with id %d", e.TargetID)
}

// TargetUnresponsiveError is returned when a routed call times out before the
// target window replies. The pending slot is released regardless of whether
// the target ever answers.
type TargetUnresponsiveError struct {
	TargetID int64
	Channel  string
	Timeout  time.Duration
}

func (e *TargetUnresponsiveError) Error() string {
	return fmt.Sprintf("typedipc: window %d did not answer %q within %s", e.TargetID, e.Channel, e.Timeout)
}

// SequenceError reports an out-of-order or duplicate stream chunk. The
// carrying session is force-terminated as errored when this is raised.
type SequenceError struct {
	StreamID string
	Expected uint64
	Got      uint64
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("typedipc: stream %s expected seq %d, got %d", e.StreamID, e.Expected, e.Got)
}
