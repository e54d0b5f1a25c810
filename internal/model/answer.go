package model

import (
	"time"

	"github.com/google/uuid"
)

// Answer is the single logical row per (attempt, question). Repeated saves
// upsert it: the selection is replaced, time spent accumulates.
type Answer struct {
	AttemptID     uuid.UUID `json:"attempt_id"`
	QuestionID    uuid.UUID `json:"question_id"`
	SelectedIndex int       `json:"selected_index"`
	IsCorrect     bool      `json:"is_correct"`
	TimeSpentSec  int       `json:"time_spent_sec"`
	UpdatedAt     time.Time `json:"updated_at"`
}
