package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/prepworks/examgate-backend/internal/model"
	"github.com/prepworks/examgate-backend/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Store mocks
// ============================================================================

type MockExamStore struct {
	mock.Mock
}

func (m *MockExamStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Exam), args.Error(1)
}

type MockEnrollmentStore struct {
	mock.Mock
}

func (m *MockEnrollmentStore) HasCourseAccess(ctx context.Context, userID int, courseID uuid.UUID) (bool, error) {
	args := m.Called(ctx, userID, courseID)
	return args.Bool(0), args.Error(1)
}

type MockAttemptStore struct {
	mock.Mock
}

func (m *MockAttemptStore) Create(ctx context.Context, a *model.Attempt) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockAttemptStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attempt), args.Error(1)
}

func (m *MockAttemptStore) ClaimFinish(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockAttemptStore) SetResult(ctx context.Context, id uuid.UUID, score int, breakdown json.RawMessage) error {
	args := m.Called(ctx, id, score, breakdown)
	return args.Error(0)
}

func (m *MockAttemptStore) TouchLastSeen(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAttemptStore) ListByExam(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptListRow, int64, error) {
	args := m.Called(ctx, examID, page, perPage)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]repository.AttemptListRow), args.Get(1).(int64), args.Error(2)
}

type MockAnswerStore struct {
	mock.Mock
}

func (m *MockAnswerStore) Upsert(ctx context.Context, attemptID, questionID uuid.UUID, selectedIndex int, isCorrect bool, timeSpentSec int) (bool, error) {
	args := m.Called(ctx, attemptID, questionID, selectedIndex, isCorrect, timeSpentSec)
	return args.Bool(0), args.Error(1)
}

func (m *MockAnswerStore) ListByAttempt(ctx context.Context, attemptID uuid.UUID) ([]model.Answer, error) {
	args := m.Called(ctx, attemptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Answer), args.Error(1)
}

type MockQuestionStore struct {
	mock.Mock
}

func (m *MockQuestionStore) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	args := m.Called(ctx, examID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Question), args.Error(1)
}

type MockPaperCache struct {
	mock.Mock
}

func (m *MockPaperCache) GetPaper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	args := m.Called(ctx, exam)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExamPaper), args.Error(1)
}

func (m *MockPaperCache) GetAnswerKey(ctx context.Context, exam *model.Exam) (map[uuid.UUID]int, error) {
	args := m.Called(ctx, exam)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID]int), args.Error(1)
}

type MockViolationSink struct {
	mock.Mock
}

func (m *MockViolationSink) Push(ctx context.Context, ev model.ViolationEvent) error {
	args := m.Called(ctx, ev)
	return args.Error(0)
}

// ============================================================================
// Fixture
// ============================================================================

type attemptServiceFixture struct {
	exams      *MockExamStore
	enrolls    *MockEnrollmentStore
	attempts   *MockAttemptStore
	answers    *MockAnswerStore
	questions  *MockQuestionStore
	paperCache *MockPaperCache
	violations *MockViolationSink
	svc        *AttemptService
}

func newAttemptServiceFixture(now time.Time) *attemptServiceFixture {
	f := &attemptServiceFixture{
		exams:      new(MockExamStore),
		enrolls:    new(MockEnrollmentStore),
		attempts:   new(MockAttemptStore),
		answers:    new(MockAnswerStore),
		questions:  new(MockQuestionStore),
		paperCache: new(MockPaperCache),
		violations: new(MockViolationSink),
	}
	f.svc = NewAttemptService(
		f.exams, f.enrolls, f.attempts, f.answers, f.questions,
		f.paperCache, f.violations,
		70, 3, zerolog.Nop(),
	)
	f.svc.now = func() time.Time { return now }
	return f
}

func (f *attemptServiceFixture) assertExpectations(t *testing.T) {
	f.exams.AssertExpectations(t)
	f.enrolls.AssertExpectations(t)
	f.attempts.AssertExpectations(t)
	f.answers.AssertExpectations(t)
	f.questions.AssertExpectations(t)
	f.paperCache.AssertExpectations(t)
	f.violations.AssertExpectations(t)
}

const testUserID = 42

func liveAttempt(startedAt time.Time, durationSec int) *model.Attempt {
	return &model.Attempt{
		ID:          uuid.New(),
		UserID:      testUserID,
		ExamID:      uuid.New(),
		StartedAt:   startedAt,
		DurationSec: durationSec,
	}
}

// ============================================================================
// Start
// ============================================================================

func TestAttemptService_Start_FreezesDuration(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newAttemptServiceFixture(t0)
	ctx := context.Background()

	exam := &model.Exam{ID: uuid.New(), CourseID: uuid.New(), Title: "Midterm", DurationSec: 5400}
	f.exams.On("GetByID", ctx, exam.ID).Return(exam, nil)
	f.enrolls.On("HasCourseAccess", ctx, testUserID, exam.CourseID).Return(true, nil)
	f.attempts.On("Create", ctx, mock.MatchedBy(func(a *model.Attempt) bool {
		return a.UserID == testUserID && a.ExamID == exam.ID && a.DurationSec == 5400
	})).Run(func(args mock.Arguments) {
		a := args.Get(1).(*model.Attempt)
		a.ID = uuid.New()
		a.StartedAt = t0
	}).Return(nil)
	f.paperCache.On("GetPaper", ctx, exam).Return(&model.ExamPaper{ExamID: exam.ID}, nil)

	resp, err := f.svc.Start(ctx, testUserID, exam.ID)

	require.NoError(t, err)
	assert.Equal(t, t0.UnixMilli(), resp.StartedAt)
	assert.Equal(t, t0.Add(5400*time.Second).UnixMilli(), resp.EndsAt)
	assert.Equal(t, 5400, resp.Exam.DurationSec)
	f.assertExpectations(t)
}

func TestAttemptService_Start_NoCourseAccess(t *testing.T) {
	f := newAttemptServiceFixture(time.Now())
	ctx := context.Background()

	exam := &model.Exam{ID: uuid.New(), CourseID: uuid.New(), DurationSec: 600}
	f.exams.On("GetByID", ctx, exam.ID).Return(exam, nil)
	f.enrolls.On("HasCourseAccess", ctx, testUserID, exam.CourseID).Return(false, nil)

	_, err := f.svc.Start(ctx, testUserID, exam.ID)

	assert.ErrorIs(t, err, ErrNoCourseAccess)
	f.attempts.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAttemptService_Start_UnknownExam(t *testing.T) {
	f := newAttemptServiceFixture(time.Now())
	ctx := context.Background()

	examID := uuid.New()
	f.exams.On("GetByID", ctx, examID).Return(nil, pgx.ErrNoRows)

	_, err := f.svc.Start(ctx, testUserID, examID)

	assert.ErrorIs(t, err, ErrExamNotFound)
}

// ============================================================================
// SaveAnswer
// ============================================================================

func TestAttemptService_SaveAnswer_RecomputesCorrectness(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newAttemptServiceFixture(t0.Add(25 * time.Second))
	ctx := context.Background()

	attempt := liveAttempt(t0, 5400)
	exam := &model.Exam{ID: attempt.ExamID, DurationSec: 5400}
	questionID := uuid.New()
	chosen := 2

	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)
	f.exams.On("GetByID", ctx, attempt.ExamID).Return(exam, nil)
	f.paperCache.On("GetAnswerKey", ctx, exam).Return(map[uuid.UUID]int{questionID: 2}, nil)
	f.answers.On("Upsert", ctx, attempt.ID, questionID, 2, true, 15).Return(true, nil)
	f.attempts.On("TouchLastSeen", ctx, attempt.ID).Return(nil)

	err := f.svc.SaveAnswer(ctx, testUserID, attempt.ID, &model.SaveAnswerRequest{
		QuestionID:   questionID,
		Chosen:       &chosen,
		TimeSpentSec: 15,
	})

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestAttemptService_SaveAnswer_NotOwned(t *testing.T) {
	f := newAttemptServiceFixture(time.Now())
	ctx := context.Background()

	attempt := liveAttempt(time.Now(), 600)
	attempt.UserID = testUserID + 1
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)

	chosen := 0
	err := f.svc.SaveAnswer(ctx, testUserID, attempt.ID, &model.SaveAnswerRequest{
		QuestionID: uuid.New(),
		Chosen:     &chosen,
	})

	// Not-owned is reported as not-found, never as forbidden.
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestAttemptService_SaveAnswer_AlreadyFinished(t *testing.T) {
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	attempt := liveAttempt(now.Add(-time.Minute), 5400)
	submitted := now.Add(-time.Second)
	attempt.SubmittedAt = &submitted
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)

	chosen := 1
	err := f.svc.SaveAnswer(ctx, testUserID, attempt.ID, &model.SaveAnswerRequest{
		QuestionID: uuid.New(),
		Chosen:     &chosen,
	})

	assert.ErrorIs(t, err, ErrAttemptFinished)
	f.answers.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAttemptService_SaveAnswer_TimeExpired(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	f := newAttemptServiceFixture(t0.Add(601 * time.Second))
	ctx := context.Background()

	attempt := liveAttempt(t0, 600)
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)

	chosen := 1
	err := f.svc.SaveAnswer(ctx, testUserID, attempt.ID, &model.SaveAnswerRequest{
		QuestionID: uuid.New(),
		Chosen:     &chosen,
	})

	assert.ErrorIs(t, err, ErrTimeExpired)
}

func TestAttemptService_SaveAnswer_UnknownQuestion(t *testing.T) {
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	attempt := liveAttempt(now, 5400)
	exam := &model.Exam{ID: attempt.ExamID}
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)
	f.exams.On("GetByID", ctx, attempt.ExamID).Return(exam, nil)
	f.paperCache.On("GetAnswerKey", ctx, exam).Return(map[uuid.UUID]int{uuid.New(): 0}, nil)

	chosen := 1
	err := f.svc.SaveAnswer(ctx, testUserID, attempt.ID, &model.SaveAnswerRequest{
		QuestionID: uuid.New(),
		Chosen:     &chosen,
	})

	assert.ErrorIs(t, err, ErrQuestionNotInExam)
}

func TestAttemptService_SaveAnswer_LostRaceAgainstFinish(t *testing.T) {
	// The guarded upsert affects zero rows when a concurrent finish claimed
	// the attempt between the precondition read and the write.
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	attempt := liveAttempt(now, 5400)
	exam := &model.Exam{ID: attempt.ExamID}
	questionID := uuid.New()

	finished := *attempt
	submitted := now
	finished.SubmittedAt = &submitted

	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil).Once()
	f.exams.On("GetByID", ctx, attempt.ExamID).Return(exam, nil)
	f.paperCache.On("GetAnswerKey", ctx, exam).Return(map[uuid.UUID]int{questionID: 0}, nil)
	f.answers.On("Upsert", ctx, attempt.ID, questionID, 0, true, 10).Return(false, nil)
	f.attempts.On("GetByID", ctx, attempt.ID).Return(&finished, nil).Once()

	chosen := 0
	err := f.svc.SaveAnswer(ctx, testUserID, attempt.ID, &model.SaveAnswerRequest{
		QuestionID:   questionID,
		Chosen:       &chosen,
		TimeSpentSec: 10,
	})

	assert.ErrorIs(t, err, ErrAttemptFinished)
	f.attempts.AssertNotCalled(t, "TouchLastSeen", mock.Anything, mock.Anything)
}

// ============================================================================
// Finish
// ============================================================================

func TestAttemptService_Finish_ScoresAndPersists(t *testing.T) {
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	attempt := liveAttempt(now.Add(-time.Minute), 5400)

	q1 := model.Question{ID: uuid.New(), Options: []string{"A", "B"}, CorrectIndex: 0, Section: "Algebra", TopicName: "Algebra"}
	q2 := model.Question{ID: uuid.New(), Options: []string{"A", "B"}, CorrectIndex: 1, Section: "Algebra", TopicName: "Algebra"}

	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)
	f.attempts.On("ClaimFinish", ctx, attempt.ID).Return(true, nil)
	f.questions.On("ListByExam", ctx, attempt.ExamID).Return([]model.Question{q1, q2}, nil)
	f.answers.On("ListByAttempt", ctx, attempt.ID).Return([]model.Answer{
		{QuestionID: q1.ID, SelectedIndex: 0, IsCorrect: true},
	}, nil)
	f.attempts.On("SetResult", ctx, attempt.ID, 50, mock.Anything).Return(nil)

	result, err := f.svc.Finish(ctx, testUserID, attempt.ID)

	require.NoError(t, err)
	assert.Equal(t, 50, result.Score)
	assert.Equal(t, 1, result.Correct)
	assert.Equal(t, 2, result.Total)
	f.assertExpectations(t)
}

func TestAttemptService_Finish_AlreadyFinished(t *testing.T) {
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	attempt := liveAttempt(now.Add(-time.Hour), 5400)
	submitted := now.Add(-time.Minute)
	attempt.SubmittedAt = &submitted
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)

	_, err := f.svc.Finish(ctx, testUserID, attempt.ID)

	assert.ErrorIs(t, err, ErrAttemptFinished)
	f.attempts.AssertNotCalled(t, "ClaimFinish", mock.Anything, mock.Anything)
}

func TestAttemptService_Finish_ConcurrentClaimLost(t *testing.T) {
	// Two finishes race: the precondition read sees an unfinished attempt
	// for both, but only one claim lands. The loser gets already-finished
	// and must not score a second time.
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	attempt := liveAttempt(now.Add(-time.Minute), 5400)
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)
	f.attempts.On("ClaimFinish", ctx, attempt.ID).Return(false, nil)

	_, err := f.svc.Finish(ctx, testUserID, attempt.ID)

	assert.ErrorIs(t, err, ErrAttemptFinished)
	f.attempts.AssertNotCalled(t, "SetResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.questions.AssertNotCalled(t, "ListByExam", mock.Anything, mock.Anything)
}

// ============================================================================
// GetResult / RecordViolation / ListResults
// ============================================================================

func TestAttemptService_GetResult_NotScoredYet(t *testing.T) {
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	attempt := liveAttempt(now, 5400)
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)

	_, err := f.svc.GetResult(ctx, testUserID, attempt.ID)

	assert.ErrorIs(t, err, ErrAttemptNotScored)
}

func TestAttemptService_RecordViolation_Enqueues(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	attempt := liveAttempt(now.Add(-time.Minute), 5400)
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)
	f.violations.On("Push", ctx, model.ViolationEvent{
		AttemptID: attempt.ID,
		ExamID:    attempt.ExamID,
		UserID:    testUserID,
		Timestamp: now.Unix(),
	}).Return(nil)

	err := f.svc.RecordViolation(ctx, testUserID, attempt.ID)

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestAttemptService_RecordViolation_EnqueueFailureIsSwallowed(t *testing.T) {
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	attempt := liveAttempt(now, 5400)
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)
	f.violations.On("Push", ctx, mock.Anything).Return(assert.AnError)

	err := f.svc.RecordViolation(ctx, testUserID, attempt.ID)

	// The heartbeat is observability only; a queue outage must not fail a
	// candidate out of an active exam.
	assert.NoError(t, err)
}

func TestAttemptService_GetResult_ServesPersistedScore(t *testing.T) {
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	// The stored row deliberately disagrees with what a rescore of the
	// ledger would produce: the review must reflect what finish persisted.
	attempt := liveAttempt(now.Add(-2*time.Hour), 5400)
	submitted := now.Add(-time.Hour)
	score := 75
	attempt.SubmittedAt = &submitted
	attempt.Score = &score
	attempt.TopicBreakdown = json.RawMessage(`[{"section":"Algebra","total":4,"correct":3,"accuracy":75}]`)

	q1 := makeQuestion("Algebra", 0)
	q2 := makeQuestion("Algebra", 1)
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)
	f.questions.On("ListByExam", ctx, attempt.ExamID).Return([]model.Question{q1, q2}, nil)
	f.answers.On("ListByAttempt", ctx, attempt.ID).Return([]model.Answer{correctAnswer(q1)}, nil)

	result, err := f.svc.GetResult(ctx, testUserID, attempt.ID)

	require.NoError(t, err)
	assert.Equal(t, 75, result.Score)
	assert.Equal(t, 3, result.Correct)
	require.Len(t, result.Topics, 1)
	assert.Equal(t, "Algebra", result.Topics[0].Section)
	assert.Equal(t, 4, result.Topics[0].Total)
	assert.Len(t, result.Answers, 2)
	f.attempts.AssertNotCalled(t, "SetResult", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	f.assertExpectations(t)
}

func TestAttemptService_GetResult_RepairsMissingResult(t *testing.T) {
	now := time.Now()
	f := newAttemptServiceFixture(now)
	ctx := context.Background()

	// Claimed but never scored (crash between claim and persist): the read
	// rescores the frozen ledger and writes the row back.
	attempt := liveAttempt(now.Add(-2*time.Hour), 5400)
	submitted := now.Add(-time.Hour)
	attempt.SubmittedAt = &submitted

	q1 := makeQuestion("Algebra", 0)
	q2 := makeQuestion("Geometry", 1)
	f.attempts.On("GetByID", ctx, attempt.ID).Return(attempt, nil)
	f.questions.On("ListByExam", ctx, attempt.ExamID).Return([]model.Question{q1, q2}, nil)
	f.answers.On("ListByAttempt", ctx, attempt.ID).Return([]model.Answer{correctAnswer(q1)}, nil)
	f.attempts.On("SetResult", ctx, attempt.ID, 50, mock.Anything).Return(nil)

	result, err := f.svc.GetResult(ctx, testUserID, attempt.ID)

	require.NoError(t, err)
	assert.Equal(t, 50, result.Score)
	assert.Equal(t, 1, result.Correct)
	f.assertExpectations(t)
}

func TestAttemptService_ListResults_ClampsPagination(t *testing.T) {
	f := newAttemptServiceFixture(time.Now())
	ctx := context.Background()
	examID := uuid.New()

	f.attempts.On("ListByExam", ctx, examID, 1, 100).Return([]repository.AttemptListRow{}, int64(0), nil)

	_, _, err := f.svc.ListResults(ctx, examID, 0, 500)

	require.NoError(t, err)
	f.assertExpectations(t)
}

func TestAttemptService_ExportResults_CollectsEveryPage(t *testing.T) {
	f := newAttemptServiceFixture(time.Now())
	ctx := context.Background()
	examID := uuid.New()

	// 250 attempts span three pages; the export must return all of them,
	// not just what one clamped list call can carry.
	all := make([]repository.AttemptListRow, 250)
	for i := range all {
		all[i] = repository.AttemptListRow{AttemptID: uuid.New(), UserID: i + 1}
	}
	f.attempts.On("ListByExam", ctx, examID, 1, 100).Return(all[:100], int64(250), nil).Once()
	f.attempts.On("ListByExam", ctx, examID, 2, 100).Return(all[100:200], int64(250), nil).Once()
	f.attempts.On("ListByExam", ctx, examID, 3, 100).Return(all[200:], int64(250), nil).Once()

	rows, err := f.svc.ExportResults(ctx, examID)

	require.NoError(t, err)
	require.Len(t, rows, 250)
	assert.Equal(t, all, rows)
	f.assertExpectations(t)
}

func TestAttemptService_ExportResults_EmptyExam(t *testing.T) {
	f := newAttemptServiceFixture(time.Now())
	ctx := context.Background()
	examID := uuid.New()

	f.attempts.On("ListByExam", ctx, examID, 1, 100).Return([]repository.AttemptListRow{}, int64(0), nil).Once()

	rows, err := f.svc.ExportResults(ctx, examID)

	require.NoError(t, err)
	assert.Empty(t, rows)
	f.assertExpectations(t)
}
