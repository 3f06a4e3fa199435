package app

import (
	"context"
	"log"

	"quest-session-service/internal/domain"
)

// DifficultyStore persists adaptive difficulty keyed by (user, topic).
type DifficultyStore interface {
	Get(ctx context.Context, userID, topicID string) (domain.DifficultyState, bool, error)
	Upsert(ctx context.Context, state domain.DifficultyState) error
}

// Notifier is the user-facing notification sink.
type Notifier interface {
	Notify(kind, title, message string)
}

// LogNotifier writes notifications to the process log. It is the fallback when
// no user-facing sink is connected.
type LogNotifier struct{}

func (LogNotifier) Notify(kind, title, message string) {
	log.Printf("notify [%s] %s: %s", kind, title, message)
}

// DifficultyChange describes the level transition produced by one answer.
type DifficultyChange int

const (
	DifficultyUnchanged DifficultyChange = iota
	DifficultyRaised
	DifficultyEased
)

// EvaluateDifficulty applies one graded answer to the state machine. Three
// consecutive correct answers raise the level (capped at MaxLevel); two
// consecutive incorrect answers lower it (floored at MinLevel). The opposite
// counter resets on every outcome, and both reset on a level change.
func EvaluateDifficulty(state domain.DifficultyState, correct bool) (domain.DifficultyState, DifficultyChange) {
	correctSoFar := state.SuccessRate * float64(state.TotalAttempted) / 100

	change := DifficultyUnchanged
	if correct {
		state.ConsecutiveCorrect++
		state.ConsecutiveIncorrect = 0
		correctSoFar++
		if state.ConsecutiveCorrect >= domain.PromoteStreak {
			if state.Level < domain.MaxLevel {
				state.Level++
				change = DifficultyRaised
			}
			state.ConsecutiveCorrect = 0
		}
	} else {
		state.ConsecutiveIncorrect++
		state.ConsecutiveCorrect = 0
		if state.ConsecutiveIncorrect >= domain.DemoteStreak {
			if state.Level > domain.MinLevel {
				state.Level--
				change = DifficultyEased
			}
			state.ConsecutiveIncorrect = 0
		}
	}

	state.TotalAttempted++
	state.SuccessRate = correctSoFar / float64(state.TotalAttempted) * 100
	return state, change
}

// DifficultyController wraps the state machine with persistence and
// notifications. Storage failure is non-fatal: the in-memory state stays
// authoritative for the rest of the session.
type DifficultyController struct {
	store DifficultyStore
}

func NewDifficultyController(store DifficultyStore) *DifficultyController {
	return &DifficultyController{store: store}
}

// Load returns the persisted state for (user, topic), or a fresh level-1 state.
// A read failure degrades to the fresh state.
func (c *DifficultyController) Load(ctx context.Context, userID, topicID string) domain.DifficultyState {
	state, ok, err := c.store.Get(ctx, userID, topicID)
	if err != nil {
		log.Printf("difficulty: load %s/%s failed: %v", userID, topicID, err)
	}
	if err != nil || !ok {
		return domain.NewDifficultyState(userID, topicID)
	}
	return state
}

// Record evaluates one answer, persists the result, and notifies the learner
// on level transitions.
func (c *DifficultyController) Record(ctx context.Context, state domain.DifficultyState, correct bool, notifier Notifier) domain.DifficultyState {
	next, change := EvaluateDifficulty(state, correct)

	if err := c.store.Upsert(ctx, next); err != nil {
		log.Printf("difficulty: persist %s/%s failed: %v", next.UserID, next.TopicID, err)
	}

	switch change {
	case DifficultyRaised:
		notifier.Notify("info", "Level Up!", "Questions just got a bit harder. Keep it up!")
	case DifficultyEased:
		notifier.Notify("info", "Difficulty Eased", "Let's try some easier questions.")
	}
	return next
}
