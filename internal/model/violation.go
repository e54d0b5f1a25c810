package model

import (
	"github.com/google/uuid"
)

// ViolationEvent is the focus-violation heartbeat pushed onto the persist
// queue and fanned out to exam monitors. Observability only — escalation
// happens on the client.
type ViolationEvent struct {
	AttemptID uuid.UUID `json:"attempt_id"`
	ExamID    uuid.UUID `json:"exam_id"`
	UserID    int       `json:"user_id"`
	Timestamp int64     `json:"timestamp"`
}
