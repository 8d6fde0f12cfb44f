package store

import (
	"context"
	"errors"
	"testing"

	"github.com/rcliao/meeting-rag/internal/model"
)

func TestIntentLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	a, err := s.BeginIntent(ctx, model.IntentRename, "m1", "New title")
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	b, _ := s.BeginIntent(ctx, model.IntentDelete, "m2", "")
	c, _ := s.BeginIntent(ctx, model.IntentReschedule, "m3", "2024-01-01 00:00:00")
	if a.Status != model.IntentPending || len(a.ID) != 26 {
		t.Errorf("unexpected intent %+v", a)
	}

	if err := s.FinishIntent(ctx, b.ID, model.IntentDone, ""); err != nil {
		t.Fatalf("finish: %v", err)
	}
	if err := s.FinishIntent(ctx, b.ID, "bogus", ""); err == nil {
		t.Error("expected invalid status error")
	}
	if err := s.FinishIntent(ctx, "nope", model.IntentFailed, "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	pending, err := s.PendingIntents(ctx)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != a.ID || pending[1].ID != c.ID {
		t.Fatalf("unexpected pending intents %+v", pending)
	}
	if pending[0].Payload != "New title" || pending[0].Op != model.IntentRename {
		t.Errorf("payload not kept: %+v", pending[0])
	}
}
