package app_test

import (
	"context"
	"errors"
	"testing"

	"quest-session-service/internal/app"
	"quest-session-service/internal/domain"
	"quest-session-service/internal/infra/memory"
)

var errStore = errors.New("store unavailable")

func TestNextQuestionSkipsToolTypeItems(t *testing.T) {
	source := memory.NewStaticQuestionSource(map[string][]domain.Question{
		"counting": {
			{ID: "tool-1", TopicID: "counting", DifficultyLevel: 1, ToolType: "number-line"},
			{ID: "q1", TopicID: "counting", DifficultyLevel: 1, Points: 10, CorrectAnswer: "3"},
		},
	})
	supply := app.NewQuestionSupply(source)

	q, err := supply.NextQuestion(context.Background(), "counting", 1, "")
	if err != nil {
		t.Fatalf("next question: %v", err)
	}
	if q.ID != "q1" {
		t.Fatalf("expected assessable question q1, got %s", q.ID)
	}
	if q.ToolType != "" {
		t.Fatalf("tool-type question leaked into delivery: %+v", q)
	}
}

func TestNextQuestionToolOnlyPoolExhausts(t *testing.T) {
	pool := make([]domain.Question, 0, 8)
	for _, id := range []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8"} {
		pool = append(pool, domain.Question{ID: id, TopicID: "counting", DifficultyLevel: 1, ToolType: "widget"})
	}
	supply := app.NewQuestionSupply(memory.NewStaticQuestionSource(map[string][]domain.Question{"counting": pool}))

	_, err := supply.NextQuestion(context.Background(), "counting", 1, "")
	if !errors.Is(err, domain.ErrNoQuestionAvailable) {
		t.Fatalf("expected pool exhaustion, got %v", err)
	}
}

func TestNextQuestionAvoidsImmediateRepeat(t *testing.T) {
	source := memory.NewStaticQuestionSource(map[string][]domain.Question{
		"counting": {
			{ID: "q1", TopicID: "counting", DifficultyLevel: 1},
			{ID: "q2", TopicID: "counting", DifficultyLevel: 1},
		},
	})
	supply := app.NewQuestionSupply(source)

	q, err := supply.NextQuestion(context.Background(), "counting", 1, "q1")
	if err != nil {
		t.Fatalf("next question: %v", err)
	}
	if q.ID == "q1" {
		t.Fatalf("served the same question twice in a row despite an alternative")
	}
}

func TestNextQuestionRepeatsWhenPoolHasOneQuestion(t *testing.T) {
	source := memory.NewStaticQuestionSource(map[string][]domain.Question{
		"counting": {{ID: "q1", TopicID: "counting", DifficultyLevel: 1}},
	})
	supply := app.NewQuestionSupply(source)

	q, err := supply.NextQuestion(context.Background(), "counting", 1, "q1")
	if err != nil {
		t.Fatalf("expected repeat over exhaustion, got %v", err)
	}
	if q.ID != "q1" {
		t.Fatalf("expected q1, got %s", q.ID)
	}
}

func TestNextQuestionNoMatchAtLevel(t *testing.T) {
	source := memory.NewStaticQuestionSource(map[string][]domain.Question{
		"counting": {{ID: "q1", TopicID: "counting", DifficultyLevel: 1}},
	})
	supply := app.NewQuestionSupply(source)

	_, err := supply.NextQuestion(context.Background(), "counting", 3, "")
	if !errors.Is(err, domain.ErrNoQuestionAvailable) {
		t.Fatalf("expected no question at level 3, got %v", err)
	}
}
