package broadcast

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is matching against the typed errors below
var (
	ErrValidation     = errors.New("invalid broadcast request")
	ErrAlreadyRunning = errors.New("broadcast already running")
	ErrSpawn          = errors.New("failed to spawn encoder")
	ErrProcessFailure = errors.New("encoder exited abnormally")
)

// ValidationError reports a malformed or incomplete BroadcastRequest.
// It is returned before any process is spawned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// AlreadyRunningError is returned by Start while another broadcast is starting or running
type AlreadyRunningError struct {
	ActiveID string
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("broadcast %s is already active, stop it first", e.ActiveID)
}

// Is matches ErrAlreadyRunning
func (e *AlreadyRunningError) Is(target error) bool {
	return target == ErrAlreadyRunning
}

// SpawnError means the OS could not create the encoder process
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Is matches ErrSpawn
func (e *SpawnError) Is(target error) bool {
	return target == ErrSpawn
}

// ProcessFailure describes an encoder that exited non-zero or on a signal after running
type ProcessFailure struct {
	ExitCode int
	Signal   string
}

func (e *ProcessFailure) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("encoder killed by signal %s", e.Signal)
	}
	return fmt.Sprintf("encoder exited with code %d", e.ExitCode)
}

// Is matches ErrProcessFailure
func (e *ProcessFailure) Is(target error) bool {
	return target == ErrProcessFailure
}
