package common

import (
	"strings"

	"github.com/google/uuid"
)

// GenerateSessionID generates a session ID that is never reused and is safe
// to embed in orchestrator resource names (lowercase, alphanumeric and dashes).
func GenerateSessionID() string {
	return "sess-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}
