package retrieval

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcliao/meeting-rag/internal/embedding"
	"github.com/rcliao/meeting-rag/internal/metrics"
	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

type seedDoc struct {
	meetingID string
	idx       int
	title     string
	text      string
}

func newTestStore(t *testing.T, docs ...seedDoc) vectorstore.Store {
	t.Helper()
	s, err := vectorstore.NewSQLiteStore(filepath.Join(t.TempDir(), "vectors.db"), embedding.NewHashEmbedder(0))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	var batch []model.Document
	for _, d := range docs {
		md := model.ChunkMetadata{
			MeetingID:   d.meetingID,
			DialogueID:  d.meetingID,
			ChunkIndex:  d.idx,
			Title:       d.title,
			MeetingDate: "2024-05-01 09:00:00",
		}
		batch = append(batch, model.Document{ID: model.ChunkID(d.meetingID, d.idx), Content: d.text, Metadata: md.Map()})
	}
	require.NoError(t, s.Upsert(context.Background(), model.CollectionChunks, batch))
	return s
}

func corpus() []seedDoc {
	return []seedDoc{
		{"m1", 0, "Budget", "quarterly budget review with finance"},
		{"m1", 1, "Budget", "budget forecast for next year"},
		{"m2", 0, "Ops", "incident review for the outage"},
		{"m2", 1, "Ops", "on call rotation and budget for tooling"},
		{"m3", 0, "Hiring", "hiring plan for designers"},
	}
}

func ptr[T any](v T) *T { return &v }

func TestRetrieve_Similarity(t *testing.T) {
	e := NewEngine(newTestStore(t, corpus()...), zerolog.Nop())

	res, err := e.Retrieve(context.Background(), Request{
		Collection: model.CollectionChunks,
		Query:      "budget review",
		K:          3,
	})
	require.NoError(t, err)
	assert.Equal(t, StrategySimilarity, res.Strategy)
	assert.False(t, res.Upgraded)
	require.Len(t, res.Matches, 3)
	assert.Equal(t, "m1_chunk_0", res.Matches[0].ID)
	for i := 1; i < len(res.Matches); i++ {
		assert.GreaterOrEqual(t, res.Matches[i-1].Score, res.Matches[i].Score)
	}
}

func TestRetrieve_DefaultsK(t *testing.T) {
	var docs []seedDoc
	for i := 0; i < 8; i++ {
		docs = append(docs, seedDoc{"m1", i, "Budget", "budget line item"})
	}
	e := NewEngine(newTestStore(t, docs...), zerolog.Nop())

	res, err := e.Retrieve(context.Background(), Request{Collection: model.CollectionChunks, Query: "budget"})
	require.NoError(t, err)
	assert.Len(t, res.Matches, DefaultK)
}

func TestRetrieve_ThresholdAutoUpgrade(t *testing.T) {
	e := NewEngine(newTestStore(t, corpus()...), zerolog.Nop())

	for _, thr := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1} {
		res, err := e.Retrieve(context.Background(), Request{
			Collection:     model.CollectionChunks,
			Query:          "budget review",
			K:              5,
			Strategy:       StrategySimilarity,
			ScoreThreshold: ptr(thr),
		})
		require.NoError(t, err)
		assert.Equal(t, StrategyScoreThreshold, res.Strategy)
		assert.True(t, res.Upgraded)
		for _, m := range res.Matches {
			assert.GreaterOrEqual(t, m.Score, thr, "threshold %v", thr)
		}
	}
}

func TestRetrieve_ThresholdRequired(t *testing.T) {
	e := NewEngine(newTestStore(t), zerolog.Nop())

	_, err := e.Retrieve(context.Background(), Request{
		Collection: model.CollectionChunks,
		Query:      "x",
		Strategy:   StrategyScoreThreshold,
	})
	assert.ErrorIs(t, err, ErrMissingThreshold)
}

func TestRetrieve_InvalidRequests(t *testing.T) {
	e := NewEngine(newTestStore(t), zerolog.Nop())
	ctx := context.Background()

	_, err := e.Retrieve(ctx, Request{Collection: model.CollectionChunks, Query: "x", Strategy: "bm25"})
	assert.ErrorIs(t, err, ErrUnknownStrategy)

	_, err = e.Retrieve(ctx, Request{Collection: "minutes", Query: "x"})
	assert.ErrorIs(t, err, vectorstore.ErrUnknownCollection)

	_, err = e.Retrieve(ctx, Request{Collection: model.CollectionChunks, Query: "x", Strategy: StrategyMMR, Lambda: ptr(1.5)})
	assert.Error(t, err)
}

func TestRetrieve_MMRPrefersDiversity(t *testing.T) {
	docs := []seedDoc{
		{"m1", 0, "Budget", "budget review"},
		{"m1", 1, "Budget", "budget review"},
		{"m1", 2, "Budget", "budget forecast"},
	}
	e := NewEngine(newTestStore(t, docs...), zerolog.Nop())
	ctx := context.Background()

	relevance, err := e.Retrieve(ctx, Request{
		Collection: model.CollectionChunks,
		Query:      "budget review",
		K:          2,
		Strategy:   StrategyMMR,
		Lambda:     ptr(1.0),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"m1_chunk_0", "m1_chunk_1"}, matchIDs(relevance.Matches))

	diverse, err := e.Retrieve(ctx, Request{
		Collection: model.CollectionChunks,
		Query:      "budget review",
		K:          2,
		Strategy:   StrategyMMR,
		Lambda:     ptr(0.3),
	})
	require.NoError(t, err)
	assert.Equal(t, StrategyMMR, diverse.Strategy)
	assert.Equal(t, []string{"m1_chunk_0", "m1_chunk_2"}, matchIDs(diverse.Matches))
}

func TestRetrieve_SelfQuery(t *testing.T) {
	var gotSchema Schema
	tr := TranslatorFunc(func(ctx context.Context, q string, s Schema) (*StructuredQuery, error) {
		gotSchema = s
		return &StructuredQuery{Query: "review", Filter: vectorstore.Eq(model.FieldTitle, "Ops")}, nil
	})
	e := NewEngine(newTestStore(t, corpus()...), zerolog.Nop(), WithTranslator(tr))

	res, err := e.Retrieve(context.Background(), Request{
		Collection: model.CollectionChunks,
		Query:      "what did the ops meeting review",
		K:          5,
		Strategy:   StrategySelfQuery,
	})
	require.NoError(t, err)
	assert.Equal(t, StrategySelfQuery, res.Strategy)
	assert.Equal(t, FallbackNone, res.Fallback)
	require.NotEmpty(t, res.Matches)
	for _, m := range res.Matches {
		assert.Equal(t, "Ops", m.Metadata.String(model.FieldTitle))
	}
	assert.Equal(t, SchemaFor(model.CollectionChunks), gotSchema)
}

func TestRetrieve_SelfQueryKeepsCallerFilter(t *testing.T) {
	tr := TranslatorFunc(func(ctx context.Context, q string, s Schema) (*StructuredQuery, error) {
		return &StructuredQuery{Query: "budget", Filter: vectorstore.Filter{
			{Field: model.FieldChunkIndex, Op: vectorstore.OpGte, Value: 1.0},
		}}, nil
	})
	e := NewEngine(newTestStore(t, corpus()...), zerolog.Nop(), WithTranslator(tr))

	res, err := e.Retrieve(context.Background(), Request{
		Collection: model.CollectionChunks,
		Query:      "later budget talk",
		K:          5,
		Strategy:   StrategySelfQuery,
		Filter:     vectorstore.Eq(model.FieldMeetingID, "m2"),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"m2_chunk_1"}, matchIDs(res.Matches))
}

func TestRetrieve_SelfQueryLimit(t *testing.T) {
	tr := TranslatorFunc(func(ctx context.Context, q string, s Schema) (*StructuredQuery, error) {
		return &StructuredQuery{Query: "budget", Limit: 1}, nil
	})
	e := NewEngine(newTestStore(t, corpus()...), zerolog.Nop(), WithTranslator(tr))

	res, err := e.Retrieve(context.Background(), Request{
		Collection: model.CollectionChunks,
		Query:      "the single best budget chunk",
		K:          4,
		Strategy:   StrategySelfQuery,
	})
	require.NoError(t, err)
	assert.Len(t, res.Matches, 1)
}

func TestRetrieve_SelfQueryFallbacks(t *testing.T) {
	tests := []struct {
		name       string
		translator Translator
		want       FallbackReason
	}{
		{"no translator", nil, FallbackNoTranslator},
		{"translator error", TranslatorFunc(func(context.Context, string, Schema) (*StructuredQuery, error) {
			return nil, errors.New("model unavailable")
		}), FallbackTranslation},
		{"empty translation", TranslatorFunc(func(context.Context, string, Schema) (*StructuredQuery, error) {
			return nil, nil
		}), FallbackTranslation},
		{"unknown field", TranslatorFunc(func(context.Context, string, Schema) (*StructuredQuery, error) {
			return &StructuredQuery{Query: "budget", Filter: vectorstore.Eq(model.FieldMeetingID, "m1")}, nil
		}), FallbackIncompatibleFilter},
		{"wrong type", TranslatorFunc(func(context.Context, string, Schema) (*StructuredQuery, error) {
			return &StructuredQuery{Query: "budget", Filter: vectorstore.Eq(model.FieldChunkIndex, "first")}, nil
		}), FallbackIncompatibleFilter},
		{"range on string", TranslatorFunc(func(context.Context, string, Schema) (*StructuredQuery, error) {
			return &StructuredQuery{Filter: vectorstore.Filter{{Field: model.FieldTitle, Op: vectorstore.OpGt, Value: "A"}}}, nil
		}), FallbackIncompatibleFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := metrics.New()
			opts := []Option{WithMetrics(m)}
			if tt.translator != nil {
				opts = append(opts, WithTranslator(tt.translator))
			}
			e := NewEngine(newTestStore(t, corpus()...), zerolog.Nop(), opts...)

			res, err := e.Retrieve(context.Background(), Request{
				Collection: model.CollectionChunks,
				Query:      "budget",
				K:          2,
				Strategy:   StrategySelfQuery,
				Filter:     vectorstore.Eq(model.FieldMeetingID, "m1"),
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Fallback)
			assert.Error(t, res.FallbackErr)
			assert.Equal(t, StrategySimilarity, res.Strategy)
			require.Len(t, res.Matches, 2)
			for _, m := range res.Matches {
				assert.Equal(t, "m1", m.Metadata.String(model.FieldMeetingID), "caller filter survives fallback")
			}
		})
	}
}

func matchIDs(ms []vectorstore.Match) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.ID
	}
	return out
}
