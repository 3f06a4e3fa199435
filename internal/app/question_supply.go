package app

import (
	"context"
	"errors"

	"quest-session-service/internal/domain"
)

// QuestionSource fetches candidate questions from the content store. Callers
// pass ids to exclude; the source honors them best-effort.
type QuestionSource interface {
	NextCandidate(ctx context.Context, topicID string, level int, exclude []string) (domain.Question, error)
}

// maxToolTypeRetries bounds the skip loop so a tool-only question pool cannot
// spin forever.
const maxToolTypeRetries = 5

// QuestionSupply delivers assessable questions for a topic at a difficulty
// level, filtering out interactive-tool placeholders.
type QuestionSupply struct {
	source QuestionSource
}

func NewQuestionSupply(source QuestionSource) *QuestionSupply {
	return &QuestionSupply{source: source}
}

// NextQuestion returns the next assessable question, excluding lastQuestionID
// so the same question is not served twice in a row when avoidable. Returns
// domain.ErrNoQuestionAvailable when the pool is exhausted.
func (s *QuestionSupply) NextQuestion(ctx context.Context, topicID string, level int, lastQuestionID string) (domain.Question, error) {
	exclude := make([]string, 0, maxToolTypeRetries+1)
	if lastQuestionID != "" {
		exclude = append(exclude, lastQuestionID)
	}

	for attempt := 0; attempt <= maxToolTypeRetries; attempt++ {
		q, err := s.source.NextCandidate(ctx, topicID, level, exclude)
		if errors.Is(err, domain.ErrNoQuestionAvailable) && lastQuestionID != "" && attempt == 0 {
			// Repeating the previous question beats having none at all.
			q, err = s.source.NextCandidate(ctx, topicID, level, nil)
		}
		if err != nil {
			return domain.Question{}, err
		}
		if q.ToolType == "" {
			return q, nil
		}
		exclude = append(exclude, q.ID)
	}
	return domain.Question{}, domain.ErrNoQuestionAvailable
}
