package embedding

import (
	"context"
	"math"
	"testing"
)

func TestHashEmbedder_Deterministic(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, _ := e.Embed(ctx, "Quarterly budget review")
	b, _ := e.Embed(ctx, "quarterly BUDGET, review!")
	if sim := CosineSimilarity(a, b); math.Abs(sim-1) > 1e-6 {
		t.Errorf("expected identical vectors for same tokens, similarity %f", sim)
	}
	if len(a) != 64 {
		t.Errorf("expected 64 dims, got %d", len(a))
	}
}

func TestHashEmbedder_Overlap(t *testing.T) {
	e := NewHashEmbedder(0)
	ctx := context.Background()

	q, _ := e.Embed(ctx, "hiring plan")
	near, _ := e.Embed(ctx, "the hiring plan for next year")
	far, _ := e.Embed(ctx, "server outage postmortem")

	if CosineSimilarity(q, near) <= CosineSimilarity(q, far) {
		t.Error("expected overlapping text to score higher")
	}
}

func TestHashEmbedder_EmptyText(t *testing.T) {
	v, err := NewHashEmbedder(8).Embed(context.Background(), "  ")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for _, x := range v {
		if x != 0 {
			t.Fatal("expected zero vector for empty text")
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	v := Vector{0.5, -1.25, 3}
	got, err := Decode(Encode(v))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("index %d: got %f want %f", i, got[i], v[i])
		}
	}
	if _, err := Decode([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
