// Package examclient is the attempt-taking client for the ExamGate backend.
// It owns the countdown timer, the local answer cache with save-on-switch
// flushing, and the proctoring escalation state machine. All server payload
// types are mirrored here so embedding applications never depend on server
// internals.
package examclient

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Question is a sanitized exam question. The answer key is never present.
type Question struct {
	ID         uuid.UUID `json:"id"`
	Text       string    `json:"text"`
	Type       string    `json:"type"`
	Options    []string  `json:"options"`
	Difficulty string    `json:"difficulty"`
	TopicSlug  string    `json:"topic_slug"`
	TopicName  string    `json:"topic_name"`
	Section    string    `json:"section"`
}

// Exam is the exam slice embedded in a start response.
type Exam struct {
	ID          uuid.UUID       `json:"id"`
	Title       string          `json:"title"`
	DurationSec int             `json:"duration_sec"`
	Config      json.RawMessage `json:"config"`
}

// Paper is the start-response payload: the question list plus the
// server-issued timing window in epoch milliseconds.
type Paper struct {
	AttemptID uuid.UUID  `json:"attempt_id"`
	Exam      Exam       `json:"exam"`
	Questions []Question `json:"questions"`
	StartedAt int64      `json:"started_at"`
	EndsAt    int64      `json:"ends_at"`
}

// TopicAccuracy is one section's aggregation in a scored result.
type TopicAccuracy struct {
	Section  string  `json:"section"`
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// AnswerReview is the per-question detail of a scored attempt.
type AnswerReview struct {
	ID            uuid.UUID `json:"id"`
	Text          string    `json:"text"`
	Options       []string  `json:"options"`
	CorrectIndex  int       `json:"correct_index"`
	CorrectText   string    `json:"correct_text"`
	SelectedIndex *int      `json:"selected_index,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
	IsCorrect     bool      `json:"is_correct"`
	Section       string    `json:"section"`
	TopicName     string    `json:"topic_name"`
}

// Result is the scored payload returned by finish.
type Result struct {
	Score       int             `json:"score"`
	Total       int             `json:"total"`
	Correct     int             `json:"correct"`
	Topics      []TopicAccuracy `json:"topics"`
	Suggestions []string        `json:"suggestions"`
	Answers     []AnswerReview  `json:"answers"`
}

// Machine-checkable reason codes returned by the server.
const (
	CodeExamNotFound    = "EXAM_NOT_FOUND"
	CodeNoCourseAccess  = "NO_COURSE_ACCESS"
	CodeAttemptNotFound = "ATTEMPT_NOT_FOUND"
	CodeAttemptFinished = "ATTEMPT_FINISHED"
	CodeTimeExpired     = "TIME_EXPIRED"
)

// APIError is a non-2xx server reply decoded from the response envelope.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d %s: %s", e.Status, e.Code, e.Message)
}

// EndsAtTime converts the epoch-ms deadline to a time.Time.
func (p *Paper) EndsAtTime() time.Time {
	return time.UnixMilli(p.EndsAt)
}
