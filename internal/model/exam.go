package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam entity. DurationSec is the allowed time for a
// single attempt; attempts copy it at creation so later edits never affect
// sessions already in flight.
type Exam struct {
	ID          uuid.UUID       `json:"id"`
	CourseID    uuid.UUID       `json:"course_id"`
	Title       string          `json:"title"`
	DurationSec int             `json:"duration_sec"`
	Config      json.RawMessage `json:"config"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ExamSummary is the exam slice embedded in a start response.
type ExamSummary struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	DurationSec int             `json:"duration_sec"`
	Config      json.RawMessage `json:"config"`
}

// ExamPaper is the Redis-cached payload sent to candidates (no answer keys).
type ExamPaper struct {
	ExamID    uuid.UUID              `json:"exam_id"`
	Title     string                 `json:"title"`
	Questions []QuestionForCandidate `json:"questions"`
}

// Summary projects an Exam into its start-response shape.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:          e.ID,
		Title:       e.Title,
		DurationSec: e.DurationSec,
		Config:      e.Config,
	}
}
