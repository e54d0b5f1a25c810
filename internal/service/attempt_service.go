package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prepworks/examgate-backend/internal/model"
	"github.com/prepworks/examgate-backend/internal/repository"
	"github.com/rs/zerolog"
)

// Domain errors for the attempt lifecycle. Handlers map these to typed
// 4xx response codes.
var (
	ErrExamNotFound      = errors.New("exam not found")
	ErrNoCourseAccess    = errors.New("no access to the exam's course")
	ErrAttemptNotFound   = errors.New("attempt not found")
	ErrAttemptFinished   = errors.New("attempt already finished")
	ErrAttemptNotScored  = errors.New("attempt not finished yet")
	ErrQuestionNotInExam = errors.New("question not part of the attempt's exam")
	ErrTimeExpired       = errors.New("attempt time window expired")
)

// ExamStore is the exam lookup the attempt service needs.
type ExamStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// EnrollmentStore answers course entitlement checks.
type EnrollmentStore interface {
	HasCourseAccess(ctx context.Context, userID int, courseID uuid.UUID) (bool, error)
}

// AttemptStore is the attempt ledger surface.
type AttemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	ClaimFinish(ctx context.Context, id uuid.UUID) (bool, error)
	SetResult(ctx context.Context, id uuid.UUID, score int, breakdown json.RawMessage) error
	TouchLastSeen(ctx context.Context, id uuid.UUID) error
	ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptListRow, int64, error)
}

// AnswerStore is the answer ledger surface.
type AnswerStore interface {
	Upsert(ctx context.Context, attemptID, questionID uuid.UUID, selectedIndex int, isCorrect bool, timeSpentSec int) (bool, error)
	ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error)
}

// PaperCache provides the sanitized paper and the server-only answer key.
type PaperCache interface {
	GetPaper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error)
	GetAnswerKey(ctx context.Context, exam *model.Exam) (map[uuid.UUID]int, error)
}

// ViolationSink receives focus-violation heartbeats for persistence and
// live monitoring.
type ViolationSink interface {
	Push(ctx context.Context, ev model.ViolationEvent) error
}

// AttemptService orchestrates the attempt lifecycle: start, answer saves,
// finish/scoring, and the result review read.
type AttemptService struct {
	examStore     ExamStore
	enrollStore   EnrollmentStore
	attemptStore  AttemptStore
	answerStore   AnswerStore
	questionStore QuestionStore
	paperCache    PaperCache
	violations    ViolationSink
	log           zerolog.Logger

	weakThreshold  float64
	maxSuggestions int

	// now is swappable in tests.
	now func() time.Time
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	examStore ExamStore,
	enrollStore EnrollmentStore,
	attemptStore AttemptStore,
	answerStore AnswerStore,
	questionStore QuestionStore,
	paperCache PaperCache,
	violations ViolationSink,
	weakThreshold float64,
	maxSuggestions int,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		examStore:      examStore,
		enrollStore:    enrollStore,
		attemptStore:   attemptStore,
		answerStore:    answerStore,
		questionStore:  questionStore,
		paperCache:     paperCache,
		violations:     violations,
		weakThreshold:  weakThreshold,
		maxSuggestions: maxSuggestions,
		log:            log.With().Str("component", "attempt_service").Logger(),
		now:            time.Now,
	}
}

// Start opens an attempt: validates course access, creates the ledger row
// with duration_sec frozen from the exam, and returns the sanitized paper
// plus the server-issued deadline.
func (s *AttemptService) Start(ctx context.Context, userID int, examID uuid.UUID) (*model.StartAttemptResponse, error) {
	exam, err := s.examStore.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	enrolled, err := s.enrollStore.HasCourseAccess(ctx, userID, exam.CourseID)
	if err != nil {
		return nil, fmt.Errorf("check enrollment: %w", err)
	}
	if !enrolled {
		return nil, ErrNoCourseAccess
	}

	attempt := &model.Attempt{
		UserID:      userID,
		ExamID:      exam.ID,
		DurationSec: exam.DurationSec,
	}
	if err := s.attemptStore.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	paper, err := s.paperCache.GetPaper(ctx, exam)
	if err != nil {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", exam.ID.String()).
		Int("user_id", userID).
		Int("duration_sec", attempt.DurationSec).
		Msg("Attempt started")

	return &model.StartAttemptResponse{
		AttemptID: attempt.ID,
		Exam:      exam.Summary(),
		Questions: paper.Questions,
		StartedAt: attempt.StartedAt.UnixMilli(),
		EndsAt:    attempt.EndsAt().UnixMilli(),
	}, nil
}

// SaveAnswer upserts one answer. Correctness is recomputed from the freshly
// supplied value and time spent accumulates; the SQL guard makes the save
// atomic against a concurrent finish or the deadline passing.
func (s *AttemptService) SaveAnswer(ctx context.Context, userID int, attemptID uuid.UUID, req *model.SaveAnswerRequest) error {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	if attempt.Finished() {
		return ErrAttemptFinished
	}
	if s.now().After(attempt.EndsAt()) {
		return ErrTimeExpired
	}

	exam, err := s.examStore.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return fmt.Errorf("get exam: %w", err)
	}
	answerKey, err := s.paperCache.GetAnswerKey(ctx, exam)
	if err != nil {
		return fmt.Errorf("get answer key: %w", err)
	}

	correctIndex, ok := answerKey[req.QuestionID]
	if !ok {
		return ErrQuestionNotInExam
	}
	isCorrect := *req.Chosen == correctIndex

	saved, err := s.answerStore.Upsert(ctx, attemptID, req.QuestionID, *req.Chosen, isCorrect, req.TimeSpentSec)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	if !saved {
		// Lost the race against finish or expiry. Reload to report which.
		attempt, err := s.attemptStore.GetByID(ctx, attemptID)
		if err == nil && attempt.Finished() {
			return ErrAttemptFinished
		}
		return ErrTimeExpired
	}

	if err := s.attemptStore.TouchLastSeen(ctx, attemptID); err != nil {
		s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Heartbeat update failed")
	}
	return nil
}

// Finish claims the attempt, scores the frozen answer ledger against the
// full question list, persists score + topic breakdown, and returns the
// result payload. The claim makes double-finish a no-op error.
func (s *AttemptService) Finish(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptResult, error) {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.Finished() {
		return nil, ErrAttemptFinished
	}

	claimed, err := s.attemptStore.ClaimFinish(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("claim finish: %w", err)
	}
	if !claimed {
		return nil, ErrAttemptFinished
	}

	result, err := s.score(ctx, attempt)
	if err != nil {
		return nil, err
	}

	breakdown, err := json.Marshal(result.Topics)
	if err != nil {
		return nil, fmt.Errorf("marshal breakdown: %w", err)
	}
	if err := s.attemptStore.SetResult(ctx, attemptID, result.Score, breakdown); err != nil {
		return nil, fmt.Errorf("persist result: %w", err)
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("score", result.Score).
		Int("correct", result.Correct).
		Int("total", result.Total).
		Msg("Attempt finished")

	return result, nil
}

// GetResult returns the review payload for a finished attempt. Score and
// topic breakdown come from the row persisted at finish time; only the
// per-question detail is reassembled from the ledger.
func (s *AttemptService) GetResult(ctx context.Context, userID int, attemptID uuid.UUID) (*model.AttemptResult, error) {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return nil, err
	}
	if !attempt.Finished() {
		return nil, ErrAttemptNotScored
	}

	if attempt.Score == nil || len(attempt.TopicBreakdown) == 0 {
		// Finish claimed the attempt but crashed before persisting the
		// result. Rescore the frozen ledger and repair the row.
		result, err := s.score(ctx, attempt)
		if err != nil {
			return nil, err
		}
		breakdown, err := json.Marshal(result.Topics)
		if err != nil {
			return nil, fmt.Errorf("marshal breakdown: %w", err)
		}
		if err := s.attemptStore.SetResult(ctx, attempt.ID, result.Score, breakdown); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Result repair failed")
		}
		return result, nil
	}

	var topics []model.TopicAccuracy
	if err := json.Unmarshal(attempt.TopicBreakdown, &topics); err != nil {
		return nil, fmt.Errorf("decode breakdown: %w", err)
	}

	questions, answers, err := s.loadLedger(ctx, attempt)
	if err != nil {
		return nil, err
	}
	return StoredResult(questions, answers, *attempt.Score, topics, s.weakThreshold, s.maxSuggestions), nil
}

// RecordViolation accepts a focus-violation heartbeat. It has no effect on
// attempt state; escalation is the client's job. Unknown or finished
// attempts are rejected so the queue only carries live sessions.
func (s *AttemptService) RecordViolation(ctx context.Context, userID int, attemptID uuid.UUID) error {
	attempt, err := s.loadOwned(ctx, userID, attemptID)
	if err != nil {
		return err
	}
	if attempt.Finished() {
		return ErrAttemptFinished
	}

	ev := model.ViolationEvent{
		AttemptID: attempt.ID,
		ExamID:    attempt.ExamID,
		UserID:    userID,
		Timestamp: s.now().Unix(),
	}
	if err := s.violations.Push(ctx, ev); err != nil {
		// Observability-only path: log and accept rather than failing the
		// client out of an active exam.
		s.log.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("Violation enqueue failed")
	}
	return nil
}

// ListResults returns the paginated admin results view for an exam.
func (s *AttemptService) ListResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptListRow, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return s.attemptStore.ListByExam(ctx, examID, page, perPage)
}

// ExportResults walks every results page for an exam and returns the full
// row set. The xlsx export has no pagination surface, so the per-page clamp
// on ListResults must not apply here.
func (s *AttemptService) ExportResults(ctx context.Context, examID uuid.UUID) ([]repository.AttemptListRow, error) {
	const pageSize = 100

	var all []repository.AttemptListRow
	for page := 1; ; page++ {
		rows, total, err := s.attemptStore.ListByExam(ctx, examID, page, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, rows...)
		if len(rows) < pageSize || int64(len(all)) >= total {
			break
		}
	}
	return all, nil
}

func (s *AttemptService) loadOwned(ctx context.Context, userID int, attemptID uuid.UUID) (*model.Attempt, error) {
	attempt, err := s.attemptStore.GetByID(ctx, attemptID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAttemptNotFound
		}
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	// Not-owned is indistinguishable from not-found on purpose.
	if attempt.UserID != userID {
		return nil, ErrAttemptNotFound
	}
	return attempt, nil
}

func (s *AttemptService) score(ctx context.Context, attempt *model.Attempt) (*model.AttemptResult, error) {
	questions, answers, err := s.loadLedger(ctx, attempt)
	if err != nil {
		return nil, err
	}
	return BuildResult(questions, answers, s.weakThreshold, s.maxSuggestions), nil
}

func (s *AttemptService) loadLedger(ctx context.Context, attempt *model.Attempt) ([]model.Question, []model.Answer, error) {
	questions, err := s.questionStore.ListByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	answers, err := s.answerStore.ListByAttempt(ctx, attempt.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list answers: %w", err)
	}
	return questions, answers, nil
}
