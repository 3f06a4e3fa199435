package app_test

import (
	"context"
	"math/rand"
	"testing"

	"quest-session-service/internal/app"
	"quest-session-service/internal/domain"
	"quest-session-service/internal/infra/memory"
)

func TestThreeCorrectAnswersRaiseLevel(t *testing.T) {
	state := domain.NewDifficultyState("u1", "counting")

	for i := 0; i < 3; i++ {
		state, _ = app.EvaluateDifficulty(state, true)
	}

	if state.Level != 2 {
		t.Fatalf("expected level 2 after 3 correct, got %d", state.Level)
	}
	if state.ConsecutiveCorrect != 0 || state.ConsecutiveIncorrect != 0 {
		t.Fatalf("expected counters reset, got correct=%d incorrect=%d",
			state.ConsecutiveCorrect, state.ConsecutiveIncorrect)
	}
}

func TestTwoIncorrectAnswersLowerLevel(t *testing.T) {
	state := domain.NewDifficultyState("u1", "counting")
	state.Level = 2

	state, _ = app.EvaluateDifficulty(state, false)
	if state.Level != 2 {
		t.Fatalf("level changed after a single incorrect answer: %d", state.Level)
	}
	state, change := app.EvaluateDifficulty(state, false)

	if state.Level != 1 {
		t.Fatalf("expected level 1 after 2 incorrect, got %d", state.Level)
	}
	if change != app.DifficultyEased {
		t.Fatalf("expected eased change, got %v", change)
	}
	if state.ConsecutiveCorrect != 0 || state.ConsecutiveIncorrect != 0 {
		t.Fatalf("expected counters reset, got %+v", state)
	}
}

func TestLevelStaysWithinBounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	state := domain.NewDifficultyState("u1", "counting")

	for i := 0; i < 500; i++ {
		state, _ = app.EvaluateDifficulty(state, rnd.Intn(2) == 0)
		if state.Level < domain.MinLevel || state.Level > domain.MaxLevel {
			t.Fatalf("level %d escaped bounds at step %d", state.Level, i)
		}
		if state.ConsecutiveCorrect != 0 && state.ConsecutiveIncorrect != 0 {
			t.Fatalf("both streak counters non-zero at step %d: %+v", i, state)
		}
	}
	if state.TotalAttempted != 500 {
		t.Fatalf("expected 500 attempts recorded, got %d", state.TotalAttempted)
	}
}

func TestLevelCappedAtMax(t *testing.T) {
	state := domain.NewDifficultyState("u1", "counting")
	for i := 0; i < 12; i++ {
		state, _ = app.EvaluateDifficulty(state, true)
	}
	if state.Level != domain.MaxLevel {
		t.Fatalf("expected level capped at %d, got %d", domain.MaxLevel, state.Level)
	}
	if state.SuccessRate != 100 {
		t.Fatalf("expected 100%% success rate, got %f", state.SuccessRate)
	}
}

func TestRecordPersistsAndNotifies(t *testing.T) {
	store := memory.NewDifficultyStore()
	controller := app.NewDifficultyController(store)
	notifier := &captureNotifier{}

	state := domain.NewDifficultyState("u1", "counting")
	for i := 0; i < 3; i++ {
		state = controller.Record(context.Background(), state, true, notifier)
	}

	persisted, ok, err := store.Get(context.Background(), "u1", "counting")
	if err != nil || !ok {
		t.Fatalf("expected persisted state, ok=%v err=%v", ok, err)
	}
	if persisted.Level != 2 {
		t.Fatalf("expected persisted level 2, got %d", persisted.Level)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("expected one level-up notification, got %d", len(notifier.messages))
	}
}

func TestRecordSurvivesStoreFailure(t *testing.T) {
	controller := app.NewDifficultyController(failingDifficultyStore{})
	state := domain.NewDifficultyState("u1", "counting")

	state = controller.Record(context.Background(), state, true, &captureNotifier{})
	if state.ConsecutiveCorrect != 1 || state.TotalAttempted != 1 {
		t.Fatalf("in-memory state lost on store failure: %+v", state)
	}
}

type captureNotifier struct {
	messages []string
}

func (n *captureNotifier) Notify(kind, title, message string) {
	n.messages = append(n.messages, kind+": "+title)
}

type failingDifficultyStore struct{}

func (failingDifficultyStore) Get(context.Context, string, string) (domain.DifficultyState, bool, error) {
	return domain.DifficultyState{}, false, errStore
}

func (failingDifficultyStore) Upsert(context.Context, domain.DifficultyState) error {
	return errStore
}
