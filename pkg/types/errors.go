package types

import (
	"errors"
	"fmt"
	"time"
)

// Stable error type identifiers used in JSON error bodies
const (
	ErrorTypeProvision               = "provision_error"
	ErrorTypeExecTimeout             = "exec_timeout"
	ErrorTypeUpstreamUnavailable     = "upstream_unavailable"
	ErrorTypeOrchestratorUnavailable = "orchestrator_unavailable"
	ErrorTypeCapacityExceeded        = "capacity_exceeded"
	ErrorTypeSessionNotRunning       = "session_not_running"
	ErrorTypeNotFound                = "not_found"
)

// ErrProvision is returned when the orchestrator rejects a sandbox spec
// (quota exceeded, image not found, invalid spec)
type ErrProvision struct {
	Reason string
	Err    error
}

func (e *ErrProvision) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provision failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("provision failed: %s", e.Reason)
}

func (e *ErrProvision) Unwrap() error { return e.Err }

func (e *ErrProvision) Type() string { return ErrorTypeProvision }

// From checks if the given error is an ErrProvision
func (e *ErrProvision) From(err error) bool {
	var target *ErrProvision
	return errors.As(err, &target)
}

// ErrExecTimeout is returned when a command exceeds the exec deadline
type ErrExecTimeout struct {
	Sandbox SandboxRef
	Timeout time.Duration
}

func (e *ErrExecTimeout) Error() string {
	return fmt.Sprintf("exec in %s timed out after %s", e.Sandbox, e.Timeout)
}

func (e *ErrExecTimeout) Type() string { return ErrorTypeExecTimeout }

// From checks if the given error is an ErrExecTimeout
func (e *ErrExecTimeout) From(err error) bool {
	var target *ErrExecTimeout
	return errors.As(err, &target)
}

// ErrUpstreamUnavailable is returned when the orchestrator control plane cannot be reached
type ErrUpstreamUnavailable struct {
	Op  string
	Err error
}

func (e *ErrUpstreamUnavailable) Error() string {
	return fmt.Sprintf("orchestrator unreachable during %s: %v", e.Op, e.Err)
}

func (e *ErrUpstreamUnavailable) Unwrap() error { return e.Err }

func (e *ErrUpstreamUnavailable) Type() string { return ErrorTypeUpstreamUnavailable }

// From checks if the given error is an ErrUpstreamUnavailable
func (e *ErrUpstreamUnavailable) From(err error) bool {
	var target *ErrUpstreamUnavailable
	return errors.As(err, &target)
}

// ErrOrchestratorUnavailable is returned by every sandbox operation when no
// credential strategy produced a usable client
type ErrOrchestratorUnavailable struct {
	Err error
}

func (e *ErrOrchestratorUnavailable) Error() string {
	if e.Err == nil {
		return "orchestrator unavailable"
	}
	return fmt.Sprintf("orchestrator unavailable: %v", e.Err)
}

func (e *ErrOrchestratorUnavailable) Unwrap() error { return e.Err }

func (e *ErrOrchestratorUnavailable) Type() string { return ErrorTypeOrchestratorUnavailable }

// From checks if the given error is an ErrOrchestratorUnavailable
func (e *ErrOrchestratorUnavailable) From(err error) bool {
	var target *ErrOrchestratorUnavailable
	return errors.As(err, &target)
}

// ErrCapacityExceeded is returned when the concurrent-session cap is reached
type ErrCapacityExceeded struct {
	Max int
}

func (e *ErrCapacityExceeded) Error() string {
	return fmt.Sprintf("session capacity exceeded (max %d)", e.Max)
}

func (e *ErrCapacityExceeded) Type() string { return ErrorTypeCapacityExceeded }

// From checks if the given error is an ErrCapacityExceeded
func (e *ErrCapacityExceeded) From(err error) bool {
	var target *ErrCapacityExceeded
	return errors.As(err, &target)
}

// ErrSessionNotRunning is returned when exec is attempted on a session that is not running
type ErrSessionNotRunning struct {
	SessionId string
	Status    SessionStatus
}

func (e *ErrSessionNotRunning) Error() string {
	return fmt.Sprintf("session %s is not running (status: %s)", e.SessionId, e.Status)
}

func (e *ErrSessionNotRunning) Type() string { return ErrorTypeSessionNotRunning }

// From checks if the given error is an ErrSessionNotRunning
func (e *ErrSessionNotRunning) From(err error) bool {
	var target *ErrSessionNotRunning
	return errors.As(err, &target)
}

// ErrSessionNotFound is returned when a session is not found
type ErrSessionNotFound struct {
	SessionId string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionId)
}

func (e *ErrSessionNotFound) Type() string { return ErrorTypeNotFound }

// From checks if the given error is an ErrSessionNotFound
func (e *ErrSessionNotFound) From(err error) bool {
	var target *ErrSessionNotFound
	return errors.As(err, &target)
}

// ErrInvalidTransition is returned when a session status change is not part of the lifecycle
type ErrInvalidTransition struct {
	SessionId string
	From      SessionStatus
	To        SessionStatus
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("session %s: invalid transition %s -> %s", e.SessionId, e.From, e.To)
}

// TypedError is implemented by errors that carry a stable JSON type identifier
type TypedError interface {
	error
	Type() string
}
