package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepworks/examgate-backend/internal/model"
)

// AnswerRepository handles the answer ledger: exactly one logical row per
// (attempt, question), maintained by upsert-with-accumulation.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert saves one answer. The INSERT..SELECT guard keeps the statement
// atomic against a concurrent finish or the deadline passing: a save that
// loses that race affects zero rows and the caller reports the precondition
// failure. On conflict the selection is replaced, correctness is taken from
// the freshly supplied value, and time spent accumulates. Non-positive
// time_spent reports accumulate zero rather than corrupting the total.
func (r *AnswerRepository) Upsert(ctx context.Context, attemptID, questionID uuid.UUID, selectedIndex int, isCorrect bool, timeSpentSec int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO attempt_answers (attempt_id, question_id, selected_index, is_correct, time_spent_sec)
		 SELECT a.id, $2, $3, $4, GREATEST($5, 0)
		 FROM attempts a
		 WHERE a.id = $1
		   AND a.submitted_at IS NULL
		   AND NOW() <= a.started_at + make_interval(secs => a.duration_sec)
		 ON CONFLICT (attempt_id, question_id) DO UPDATE
		 SET selected_index = EXCLUDED.selected_index,
		     is_correct     = EXCLUDED.is_correct,
		     time_spent_sec = attempt_answers.time_spent_sec + EXCLUDED.time_spent_sec,
		     updated_at     = NOW()`,
		attemptID, questionID, selectedIndex, isCorrect, timeSpentSec,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListByAttempt retrieves all recorded answers for an attempt.
func (r *AnswerRepository) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT attempt_id, question_id, selected_index, is_correct, time_spent_sec, updated_at
		 FROM attempt_answers
		 WHERE attempt_id = $1`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		var a model.Answer
		if err := rows.Scan(&a.AttemptID, &a.QuestionID, &a.SelectedIndex,
			&a.IsCorrect, &a.TimeSpentSec, &a.UpdatedAt); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
