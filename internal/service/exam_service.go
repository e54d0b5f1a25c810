package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prepworks/examgate-backend/internal/config"
	"github.com/prepworks/examgate-backend/internal/model"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const examCacheTTL = 12 * time.Hour

// QuestionStore is the question lookup the exam service needs.
type QuestionStore interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// ExamService owns the Redis fast lane for exam content: the sanitized
// paper served to candidates and the answer-key map used to recompute
// correctness on every save. PostgreSQL stays the source of truth; cache
// misses self-heal.
type ExamService struct {
	questionStore QuestionStore
	rdb           *redis.Client
	log           zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(questionStore QuestionStore, rdb *redis.Client, log zerolog.Logger) *ExamService {
	return &ExamService{
		questionStore: questionStore,
		rdb:           rdb,
		log:           log.With().Str("component", "exam_service").Logger(),
	}
}

// GetPaper returns the sanitized question payload for an exam, serving from
// Redis when possible.
func (s *ExamService) GetPaper(ctx context.Context, exam *model.Exam) (*model.ExamPaper, error) {
	key := config.CacheKey.ExamPaperKey(exam.ID.String())

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var paper model.ExamPaper
		if err := json.Unmarshal([]byte(raw), &paper); err == nil {
			return &paper, nil
		}
		// Corrupt cache entry — fall through and rebuild.
		s.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get paper cache: %w", err)
	}

	paper, _, err := s.warm(ctx, exam)
	return paper, err
}

// GetAnswerKey returns the question→correct-index map for an exam, serving
// from Redis when possible. The map never leaves the server.
func (s *ExamService) GetAnswerKey(ctx context.Context, exam *model.Exam) (map[uuid.UUID]int, error) {
	key := config.CacheKey.ExamAnswerKey(exam.ID.String())

	raw, err := s.rdb.Get(ctx, key).Result()
	if err == nil {
		var answerKey map[uuid.UUID]int
		if err := json.Unmarshal([]byte(raw), &answerKey); err == nil {
			return answerKey, nil
		}
		s.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get answer key cache: %w", err)
	}

	_, answerKey, err := s.warm(ctx, exam)
	return answerKey, err
}

// WarmCache loads an exam's paper and answer key into Redis. Used at
// startup prewarm and after question edits.
func (s *ExamService) WarmCache(ctx context.Context, exam *model.Exam) error {
	_, _, err := s.warm(ctx, exam)
	return err
}

func (s *ExamService) warm(ctx context.Context, exam *model.Exam) (*model.ExamPaper, map[uuid.UUID]int, error) {
	questions, err := s.questionStore.ListByExam(ctx, exam.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}

	paper := &model.ExamPaper{
		ExamID:    exam.ID,
		Title:     exam.Title,
		Questions: make([]model.QuestionForCandidate, 0, len(questions)),
	}
	answerKey := make(map[uuid.UUID]int, len(questions))
	for i := range questions {
		paper.Questions = append(paper.Questions, questions[i].Sanitize())
		answerKey[questions[i].ID] = questions[i].CorrectIndex
	}

	paperRaw, err := json.Marshal(paper)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal paper: %w", err)
	}
	keyRaw, err := json.Marshal(answerKey)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal answer key: %w", err)
	}

	examID := exam.ID.String()
	if err := s.rdb.Set(ctx, config.CacheKey.ExamPaperKey(examID), paperRaw, examCacheTTL).Err(); err != nil {
		// Cache write failure is not fatal; the next request rebuilds.
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Paper cache write failed")
	}
	if err := s.rdb.Set(ctx, config.CacheKey.ExamAnswerKey(examID), keyRaw, examCacheTTL).Err(); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID).Msg("Answer key cache write failed")
	}

	return paper, answerKey, nil
}
