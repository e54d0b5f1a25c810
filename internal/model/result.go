package model

import (
	"github.com/google/uuid"
)

// TopicAccuracy is the per-section aggregation computed once at finish time.
type TopicAccuracy struct {
	Section  string  `json:"section"`
	Total    int     `json:"total"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
}

// AnswerReview is the per-question detail of a scored attempt. The resolved
// correct answer text is included; the raw key structure is not.
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

// AttemptResult is the full scored payload returned by finish and by the
// review endpoint afterwards.
type AttemptResult struct {
	Score       int             `json:"score"`
	Total       int             `json:"total"`
	Correct     int             `json:"correct"`
	Topics      []TopicAccuracy `json:"topics"`
	Suggestions []string        `json:"suggestions"`
	Answers     []AnswerReview  `json:"answers"`
}
