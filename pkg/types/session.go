package types

import "time"

// SessionStatus represents the lifecycle state of a session
type SessionStatus string

const (
	SessionStatusCreating    SessionStatus = "creating"
	SessionStatusRunning     SessionStatus = "running"
	SessionStatusTerminating SessionStatus = "terminating"
	SessionStatusTerminated  SessionStatus = "terminated"
)

// sessionTransitions lists every allowed status change
var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStatusCreating:    {SessionStatusRunning, SessionStatusTerminated},
	SessionStatusRunning:     {SessionStatusTerminating},
	SessionStatusTerminating: {SessionStatusTerminated},
}

// CanTransition reports whether a session may move from one status to another
func (s SessionStatus) CanTransition(to SessionStatus) bool {
	for _, next := range sessionTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsActive reports whether the status counts against the concurrent-session cap
func (s SessionStatus) IsActive() bool {
	return s == SessionStatusCreating || s == SessionStatusRunning
}

// IsTerminal returns true for the final status
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusTerminated
}

// Session is one user's isolated sandbox
type Session struct {
	Id            string        `json:"id"`
	SandboxRef    SandboxRef    `json:"sandbox_ref"`
	Status        SessionStatus `json:"status"`
	OwnerId       string        `json:"owner_id,omitempty"`
	SourceRepoUrl string        `json:"source_repo_url,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	TerminatedAt  *time.Time    `json:"terminated_at,omitempty"`
}

// CreateSessionRequest carries the optional metadata and overrides for a new session
type CreateSessionRequest struct {
	OwnerId       string `json:"owner_id"`
	SourceRepoUrl string `json:"source_repo_url"`
	Image         string `json:"image"`
}
