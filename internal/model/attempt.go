package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Attempt represents one user's timed session against one exam.
// DurationSec is frozen at creation: a later exam-config edit cannot
// retroactively change an in-progress attempt's allowed time.
type Attempt struct {
	ID             uuid.UUID       `json:"id"`
	UserID         int             `json:"user_id"`
	ExamID         uuid.UUID       `json:"exam_id"`
	StartedAt      time.Time       `json:"started_at"`
	DurationSec    int             `json:"duration_sec"`
	LastSeenAt     time.Time       `json:"last_seen_at"`
	SubmittedAt    *time.Time      `json:"submitted_at,omitempty"`
	Score          *int            `json:"score,omitempty"`
	TopicBreakdown json.RawMessage `json:"topic_breakdown,omitempty"`
}

// EndsAt is the server-authoritative deadline for saves on this attempt.
func (a *Attempt) EndsAt() time.Time {
	return a.StartedAt.Add(time.Duration(a.DurationSec) * time.Second)
}

// Finished reports whether the attempt has been submitted and scored.
func (a *Attempt) Finished() bool {
	return a.SubmittedAt != nil
}

// StartAttemptRequest is the payload for opening an attempt.
type StartAttemptRequest struct {
	ExamID uuid.UUID `json:"exam_id" binding:"required"`
}

// StartAttemptResponse carries everything the client needs to render and
// time the session. EndsAt/StartedAt are epoch milliseconds.
type StartAttemptResponse struct {
	AttemptID uuid.UUID              `json:"attempt_id"`
	Exam      ExamSummary            `json:"exam"`
	Questions []QuestionForCandidate `json:"questions"`
	StartedAt int64                  `json:"started_at"`
	EndsAt    int64                  `json:"ends_at"`
}

// SaveAnswerRequest is the payload for one answer save. Chosen is a pointer
// so index 0 survives required-field validation.
type SaveAnswerRequest struct {
	QuestionID   uuid.UUID `json:"question_id" binding:"required"`
	Chosen       *int      `json:"chosen" binding:"required,min=0"`
	TimeSpentSec int       `json:"time_spent_sec"`
}
