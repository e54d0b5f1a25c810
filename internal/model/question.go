package model

import (
	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "SINGLE_CHOICE"
	QuestionTypeTrueFalse    QuestionType = "TRUE_FALSE"
)

// Question represents a single exam question. CorrectIndex and Explanation
// never leave the server before the attempt is finished.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	ExamID       uuid.UUID    `json:"exam_id"`
	Text         string       `json:"text"`
	Type         QuestionType `json:"type"`
	Options      []string     `json:"options"`
	CorrectIndex int          `json:"correct_index"`
	Difficulty   string       `json:"difficulty"`
	TopicSlug    string       `json:"topic_slug"`
	TopicName    string       `json:"topic_name"`
	Section      string       `json:"section"`
	Explanation  string       `json:"explanation"`
	OrderNum     int          `json:"order_num"`
}

// QuestionForCandidate is a question with the answer key stripped, sent to
// candidates at attempt start.
type QuestionForCandidate struct {
	ID         uuid.UUID    `json:"id"`
	Text       string       `json:"text"`
	Type       QuestionType `json:"type"`
	Options    []string     `json:"options"`
	Difficulty string       `json:"difficulty"`
	TopicSlug  string       `json:"topic_slug"`
	TopicName  string       `json:"topic_name"`
	Section    string       `json:"section"`
}

// Sanitize strips the answer key and explanation from a question.
func (q *Question) Sanitize() QuestionForCandidate {
	return QuestionForCandidate{
		ID:         q.ID,
		Text:       q.Text,
		Type:       q.Type,
		Options:    q.Options,
		Difficulty: q.Difficulty,
		TopicSlug:  q.TopicSlug,
		TopicName:  q.TopicName,
		Section:    q.Section,
	}
}
