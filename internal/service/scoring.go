package service

import (
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/prepworks/examgate-backend/internal/model"
)

// BuildResult scores a finished attempt: every exam question appears exactly
// once (a left join — unanswered questions count as incorrect), correctness
// comes from the recorded answers, and sections aggregate into the topic
// breakdown. Sections keep question order; suggestions are the weakest
// sections below the threshold, ascending by accuracy, capped.
func BuildResult(questions []model.Question, answers []model.Answer, weakThreshold float64, maxSuggestions int) *model.AttemptResult {
	result := &model.AttemptResult{
		Total:       len(questions),
		Suggestions: []string{},
		Answers:     buildReviews(questions, answers),
	}

	topicIndex := make(map[string]int)

	for i, q := range questions {
		idx, ok := topicIndex[q.Section]
		if !ok {
			idx = len(result.Topics)
			topicIndex[q.Section] = idx
			result.Topics = append(result.Topics, model.TopicAccuracy{Section: q.Section})
		}
		result.Topics[idx].Total++
		if result.Answers[i].IsCorrect {
			result.Topics[idx].Correct++
			result.Correct++
		}
	}

	for i := range result.Topics {
		t := &result.Topics[i]
		if t.Total > 0 {
			t.Accuracy = math.Round(float64(t.Correct)/float64(t.Total)*10000) / 100
		}
	}

	if result.Total > 0 {
		result.Score = int(math.Round(float64(result.Correct) / float64(result.Total) * 100))
	}

	result.Suggestions = WeakTopics(result.Topics, weakThreshold, maxSuggestions)
	return result
}

// StoredResult reassembles a finished attempt's review payload around the
// score and topic breakdown persisted at finish time. Only the per-question
// detail is rebuilt; score, topics and the derived suggestions reflect what
// was stored, not a rescore.
func StoredResult(questions []model.Question, answers []model.Answer, score int, topics []model.TopicAccuracy, weakThreshold float64, maxSuggestions int) *model.AttemptResult {
	result := &model.AttemptResult{
		Score:       score,
		Total:       len(questions),
		Topics:      topics,
		Suggestions: WeakTopics(topics, weakThreshold, maxSuggestions),
		Answers:     buildReviews(questions, answers),
	}
	for _, t := range topics {
		result.Correct += t.Correct
	}
	return result
}

// buildReviews pairs every exam question with its recorded answer, in
// question order. Unanswered questions carry a nil SelectedIndex.
func buildReviews(questions []model.Question, answers []model.Answer) []model.AnswerReview {
	byQuestion := make(map[uuid.UUID]*model.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	reviews := make([]model.AnswerReview, 0, len(questions))
	for _, q := range questions {
		review := model.AnswerReview{
			ID:           q.ID,
			Text:         q.Text,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Explanation,
			Section:      q.Section,
			TopicName:    q.TopicName,
		}
		if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
			review.CorrectText = q.Options[q.CorrectIndex]
		}
		if ans, ok := byQuestion[q.ID]; ok {
			selected := ans.SelectedIndex
			review.SelectedIndex = &selected
			review.IsCorrect = ans.IsCorrect
		}
		reviews = append(reviews, review)
	}
	return reviews
}

// WeakTopics returns section names with accuracy below threshold, sorted
// ascending by accuracy (section name breaks ties), capped at max.
func WeakTopics(topics []model.TopicAccuracy, threshold float64, max int) []string {
	weak := make([]model.TopicAccuracy, 0, len(topics))
	for _, t := range topics {
		if t.Accuracy < threshold {
			weak = append(weak, t)
		}
	}

	sort.Slice(weak, func(i, j int) bool {
		if weak[i].Accuracy != weak[j].Accuracy {
			return weak[i].Accuracy < weak[j].Accuracy
		}
		return weak[i].Section < weak[j].Section
	})

	if max > 0 && len(weak) > max {
		weak = weak[:max]
	}

	names := make([]string, len(weak))
	for i, t := range weak {
		names[i] = t.Section
	}
	return names
}
