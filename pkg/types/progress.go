package types

import (
	"fmt"
	"time"
)

// ProgressKey identifies a completion in the progress ledger. A nil StageNumber
// marks completion of the whole paper.
type ProgressKey struct {
	UserId      string `json:"user_id"`
	PaperId     string `json:"paper_id"`
	StageNumber *int   `json:"stage_number,omitempty"`
}

// Field returns the per-paper field name used by key-value ledgers
func (k ProgressKey) Field() string {
	if k.StageNumber == nil {
		return "paper"
	}
	return fmt.Sprintf("stage:%d", *k.StageNumber)
}

// Completion is one recorded completion
type Completion struct {
	StageNumber *int      `json:"stage_number,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Stage is a single stage object from a stage definition, kept as decoded JSON
type Stage map[string]any
