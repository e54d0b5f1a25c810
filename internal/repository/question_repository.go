package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prepworks/examgate-backend/internal/model"
)

// QuestionRepository handles question data access. Questions are read-only
// to the attempt core; seeding and editing live elsewhere.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for a given exam, ordered by order_num.
// Answer keys are included — callers must sanitize before sending to clients.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, text, type, options, correct_index, difficulty,
		        topic_slug, topic_name, section, explanation, order_num
		 FROM questions
		 WHERE exam_id = $1
		 ORDER BY order_num`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(
			&q.ID, &q.ExamID, &q.Text, &q.Type, &q.Options, &q.CorrectIndex,
			&q.Difficulty, &q.TopicSlug, &q.TopicName, &q.Section, &q.Explanation, &q.OrderNum,
		); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
