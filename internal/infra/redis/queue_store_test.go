package redis

import (
	"context"
	"testing"

	"quest-session-service/internal/domain"
)

func TestQueueStoreRoundTrip(t *testing.T) {
	_, client := newTestClient(t)
	store := NewQueueStore(client)
	ctx := context.Background()

	items, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load empty: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("expected empty queue, got %d items", len(items))
	}

	pending := []domain.AnalyticsEvent{
		{ID: "e1", EventType: "quest_progress", Payload: map[string]any{"score": float64(10)}, RetryCount: 1, MaxRetries: 3},
		{ID: "e2", EventType: "quest_completed", Payload: map[string]any{"finalScore": float64(80)}, MaxRetries: 3},
	}
	if err := store.Save(ctx, pending); err != nil {
		t.Fatalf("save: %v", err)
	}

	items, err = store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(items) != 2 || items[0].ID != "e1" || items[1].ID != "e2" {
		t.Fatalf("queue order lost across restart: %+v", items)
	}
	if items[0].RetryCount != 1 {
		t.Fatalf("retry count not persisted: %+v", items[0])
	}
}

func TestQueueStoreClearsKeyWhenDrained(t *testing.T) {
	mr, client := newTestClient(t)
	store := NewQueueStore(client)
	ctx := context.Background()

	if err := store.Save(ctx, []domain.AnalyticsEvent{{ID: "e1", EventType: "quest_progress"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if !mr.Exists("quest:analytics:queue") {
		t.Fatalf("expected queue key present")
	}

	if err := store.Save(ctx, nil); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	if mr.Exists("quest:analytics:queue") {
		t.Fatalf("expected queue key removed once drained")
	}
}
