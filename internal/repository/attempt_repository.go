package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepworks/examgate-backend/internal/model"
)

// AttemptListRow combines candidate data with their attempt details for
// the admin results view.
type AttemptListRow struct {
	AttemptID   uuid.UUID  `json:"attempt_id"`
	UserID      int        `json:"user_id"`
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Score       *int       `json:"score"`
	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at"`
}

// AttemptRepository handles attempt ledger data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt. started_at is stamped by the database and
// duration_sec is copied from the exam at this moment, freezing the allowed
// time for the whole session.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (user_id, exam_id, duration_sec)
		 VALUES ($1, $2, $3)
		 RETURNING id, started_at, last_seen_at`,
		a.UserID, a.ExamID, a.DurationSec,
	).Scan(&a.ID, &a.StartedAt, &a.LastSeenAt)
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, exam_id, started_at, duration_sec, last_seen_at,
		        submitted_at, score, topic_breakdown
		 FROM attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.UserID, &a.ExamID, &a.StartedAt, &a.DurationSec,
		&a.LastSeenAt, &a.SubmittedAt, &a.Score, &a.TopicBreakdown)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ClaimFinish stamps submitted_at in one statement guarded on
// submitted_at IS NULL. Returns false for the loser of a concurrent
// double-finish. Once the claim lands, the answer upsert guard rejects any
// late-arriving save, so scoring reads a frozen ledger.
func (r *AttemptRepository) ClaimFinish(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts SET submitted_at = NOW()
		 WHERE id = $1 AND submitted_at IS NULL`, id,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetResult persists the computed score and serialized topic breakdown on a
// claimed attempt.
func (r *AttemptRepository) SetResult(ctx context.Context, id uuid.UUID, score int, breakdown json.RawMessage) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET score = $1, topic_breakdown = $2
		 WHERE id = $3`, score, breakdown, id)
	return err
}

// TouchLastSeen records heartbeat activity on an in-progress attempt.
func (r *AttemptRepository) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts SET last_seen_at = NOW()
		 WHERE id = $1 AND submitted_at IS NULL`, id)
	return err
}

// ListByExam retrieves candidate attempts for an exam with pagination,
// submitted first, newest first within each group.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]AttemptListRow, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT a.id, u.id, u.name, u.email, a.score, a.started_at, a.submitted_at
		 FROM attempts a
		 JOIN users u ON a.user_id = u.id
		 WHERE a.exam_id = $1
		 ORDER BY a.submitted_at DESC NULLS LAST, a.started_at DESC
		 LIMIT $2 OFFSET $3`,
		examID, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptListRow
	for rows.Next() {
		var row AttemptListRow
		if err := rows.Scan(&row.AttemptID, &row.UserID, &row.Name, &row.Email,
			&row.Score, &row.StartedAt, &row.SubmittedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, row)
	}
	return results, total, rows.Err()
}
