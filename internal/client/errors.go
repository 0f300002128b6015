package client

import (
	"errors"
	"fmt"
)

// ErrInvalidEpisode means the session behind the episode handle has ended.
// The current World is unusable; the caller must reconnect.
var ErrInvalidEpisode = errors.New("episode is invalid: session ended")

// ErrTimeout means a tick or wait did not complete in time. Recoverable;
// the caller may retry.
var ErrTimeout = errors.New("timeout")

// SpawnError covers every failure of the spawn protocol: collision at the
// spawn pose, invalid blueprint, or episode invalidity at spawn time. The
// session does not distinguish them beyond the code.
type SpawnError struct {
	Code    string // protocol error code, empty for local failures
	Message string
	Err     error
}

func (e *SpawnError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("spawn failed: %s: %s", e.Code, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("spawn failed: %v", e.Err)
	}
	return "spawn failed: " + e.Message
}

func (e *SpawnError) Unwrap() error { return e.Err }
