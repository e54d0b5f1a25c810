package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// EnrollmentRepository answers the entitlement question the start endpoint
// asks: does this user hold access to the exam's parent course?
type EnrollmentRepository struct {
	pool *pgxpool.Pool
}

// NewEnrollmentRepository creates a new EnrollmentRepository.
func NewEnrollmentRepository(pool *pgxpool.Pool) *EnrollmentRepository {
	return &EnrollmentRepository{pool: pool}
}

// HasCourseAccess reports whether the user is enrolled in the course.
func (r *EnrollmentRepository) HasCourseAccess(ctx context.Context, userID int, courseID uuid.UUID) (bool, error) {
	var enrolled bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM enrollments
			WHERE user_id = $1 AND course_id = $2
		 )`, userID, courseID,
	).Scan(&enrolled)
	if err != nil {
		return false, err
	}
	return enrolled, nil
}

// Enroll grants a user access to a course. Idempotent.
func (r *EnrollmentRepository) Enroll(ctx context.Context, userID int, courseID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO enrollments (user_id, course_id)
		 VALUES ($1, $2)
		 ON CONFLICT (user_id, course_id) DO NOTHING`,
		userID, courseID,
	)
	return err
}
