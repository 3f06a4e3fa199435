package redis

import (
	"context"
	"testing"

	"quest-session-service/internal/domain"
)

func TestDifficultyStoreUpsertAndGet(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewDifficultyStore(client)
	ctx := context.Background()

	if _, ok, err := store.Get(ctx, "u1", "counting"); err != nil || ok {
		t.Fatalf("expected miss on fresh store, ok=%v err=%v", ok, err)
	}

	state := domain.NewDifficultyState("u1", "counting")
	state.Level = 2
	state.ConsecutiveCorrect = 1
	state.TotalAttempted = 4
	if err := store.Upsert(ctx, state); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, ok, err := store.Get(ctx, "u1", "counting")
	if err != nil || !ok {
		t.Fatalf("expected hit, ok=%v err=%v", ok, err)
	}
	if got.Level != 2 || got.ConsecutiveCorrect != 1 || got.TotalAttempted != 4 {
		t.Fatalf("state round trip lost fields: %+v", got)
	}

	// No TTL: the adaptive level persists between quests.
	if mr.TTL("quest:difficulty:u1:counting") != 0 {
		t.Fatalf("difficulty keys must not expire")
	}
}
