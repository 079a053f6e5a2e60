package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionTransitions(t *testing.T) {
	all := []SessionStatus{
		SessionStatusCreating,
		SessionStatusRunning,
		SessionStatusTerminating,
		SessionStatusTerminated,
	}
	allowed := map[[2]SessionStatus]bool{
		{SessionStatusCreating, SessionStatusRunning}:       true,
		{SessionStatusCreating, SessionStatusTerminated}:    true,
		{SessionStatusRunning, SessionStatusTerminating}:    true,
		{SessionStatusTerminating, SessionStatusTerminated}: true,
	}

	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]SessionStatus{from, to}], from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestSessionStatusActive(t *testing.T) {
	assert.True(t, SessionStatusCreating.IsActive())
	assert.True(t, SessionStatusRunning.IsActive())
	assert.False(t, SessionStatusTerminating.IsActive())
	assert.False(t, SessionStatusTerminated.IsActive())
	assert.True(t, SessionStatusTerminated.IsTerminal())
}

func TestProgressKeyField(t *testing.T) {
	stage := 3
	assert.Equal(t, "paper", ProgressKey{UserId: "u", PaperId: "p"}.Field())
	assert.Equal(t, "stage:3", ProgressKey{UserId: "u", PaperId: "p", StageNumber: &stage}.Field())
}
