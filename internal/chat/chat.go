// Package chat answers questions over both vector collections: it retrieves
// from each, scopes the hits to the meetings a caller may see, and hands a
// formatted context to an answer generator.
package chat

import (
	"context"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/meeting-rag/internal/metrics"
	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/retrieval"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

const (
	DefaultResultsPerCollection = 3
	DefaultSearchMultiplier     = 10

	// Over-fetch sizes used without native set filtering.
	legacyUnscopedK = 10
	legacyMeetingK  = 20
)

// Config controls candidate fetching.
type Config struct {
	ResultsPerCollection int
	SearchMultiplier     int

	// NativeSetFilter pushes the meeting scope into the vector store as a
	// meeting_id filter instead of over-fetching and filtering afterwards.
	NativeSetFilter bool

	Strategy       retrieval.Strategy
	ScoreThreshold *float64
	FetchK         int
	Lambda         *float64
}

func (c Config) withDefaults() Config {
	if c.ResultsPerCollection <= 0 {
		c.ResultsPerCollection = DefaultResultsPerCollection
	}
	if c.SearchMultiplier <= 0 {
		c.SearchMultiplier = DefaultSearchMultiplier
	}
	return c
}

// Retriever is satisfied by *retrieval.Engine.
type Retriever interface {
	Retrieve(ctx context.Context, req retrieval.Request) (*retrieval.Result, error)
}

// Query is a chat question and its scope.
type Query struct {
	Text string

	// MeetingID restricts the search to one meeting.
	MeetingID string

	// AccessibleIDs lists the meetings the caller may see. Nil means no
	// restriction; an empty non-nil slice means the caller sees nothing.
	AccessibleIDs []string
}

// SearchResult holds the top documents of each collection in retrieval order.
type SearchResult struct {
	Chunks    []model.Document `json:"chunks"`
	Subtopics []model.Document `json:"subtopics"`

	// Fallbacks records collections whose self-query fell back to similarity.
	Fallbacks map[string]retrieval.FallbackReason `json:"fallbacks,omitempty"`
}

// Total returns the number of documents across both collections.
func (r *SearchResult) Total() int {
	return len(r.Chunks) + len(r.Subtopics)
}

// Service is the cross-collection aggregator.
type Service struct {
	retriever Retriever
	answerer  Answerer
	cfg       Config
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// NewService creates a chat service. answerer may be nil, in which case Ask
// reports that no answer generator is configured.
func NewService(r Retriever, answerer Answerer, cfg Config, log zerolog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		retriever: r,
		answerer:  answerer,
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("component", "chat").Logger(),
		metrics:   m,
	}
}

// plan is how one query is fetched from each collection.
type plan struct {
	k      int
	filter vectorstore.Filter
	keep   func(model.Metadata) bool
}

func (s *Service) plan(q Query) (plan, bool) {
	if q.AccessibleIDs != nil {
		allowed := make(map[string]bool, len(q.AccessibleIDs))
		for _, id := range q.AccessibleIDs {
			allowed[id] = true
		}
		if len(allowed) == 0 || (q.MeetingID != "" && !allowed[q.MeetingID]) {
			return plan{}, false
		}
		if q.MeetingID == "" {
			p := plan{keep: func(md model.Metadata) bool { return allowed[md.String(model.FieldMeetingID)] }}
			if s.cfg.NativeSetFilter {
				p.k = s.cfg.ResultsPerCollection
				p.filter = vectorstore.In(model.FieldMeetingID, q.AccessibleIDs)
			} else {
				p.k = len(q.AccessibleIDs) * s.cfg.SearchMultiplier
			}
			return p, true
		}
	}

	if q.MeetingID != "" {
		id := q.MeetingID
		p := plan{keep: func(md model.Metadata) bool { return md.String(model.FieldMeetingID) == id }}
		if s.cfg.NativeSetFilter {
			p.k = s.cfg.ResultsPerCollection
			p.filter = vectorstore.Eq(model.FieldMeetingID, id)
		} else {
			p.k = legacyMeetingK
		}
		return p, true
	}

	p := plan{keep: func(model.Metadata) bool { return true }, k: legacyUnscopedK}
	if s.cfg.NativeSetFilter {
		p.k = s.cfg.ResultsPerCollection
	}
	return p, true
}

// Search retrieves from both collections concurrently. A failing collection
// is logged and contributes no documents.
func (s *Service) Search(ctx context.Context, q Query) (*SearchResult, error) {
	res := &SearchResult{Chunks: []model.Document{}, Subtopics: []model.Document{}}
	p, ok := s.plan(q)
	if !ok {
		s.log.Debug().Str("meeting_id", q.MeetingID).Msg("caller has no accessible meetings in scope")
		return res, nil
	}

	var fallbacks [2]retrieval.FallbackReason
	g, gctx := errgroup.WithContext(ctx)
	for i, coll := range model.Collections {
		g.Go(func() error {
			docs, reason := s.searchCollection(gctx, coll, q.Text, p)
			fallbacks[i] = reason
			if coll == model.CollectionChunks {
				res.Chunks = docs
			} else {
				res.Subtopics = docs
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, reason := range fallbacks {
		if reason != retrieval.FallbackNone {
			if res.Fallbacks == nil {
				res.Fallbacks = map[string]retrieval.FallbackReason{}
			}
			res.Fallbacks[model.Collections[i]] = reason
		}
	}
	s.log.Info().
		Int("chunks", len(res.Chunks)).
		Int("subtopics", len(res.Subtopics)).
		Int("k", p.k).
		Msg("search complete")
	return res, nil
}

func (s *Service) searchCollection(ctx context.Context, collection, text string, p plan) ([]model.Document, retrieval.FallbackReason) {
	out, err := s.retriever.Retrieve(ctx, retrieval.Request{
		Collection:     collection,
		Query:          text,
		K:              p.k,
		Strategy:       s.cfg.Strategy,
		Filter:         p.filter,
		ScoreThreshold: s.cfg.ScoreThreshold,
		FetchK:         s.cfg.FetchK,
		Lambda:         s.cfg.Lambda,
	})
	if err != nil {
		s.log.Warn().Err(err).Str("collection", collection).Msg("retrieval failed, treating collection as empty")
		return []model.Document{}, retrieval.FallbackNone
	}

	docs := make([]model.Document, 0, s.cfg.ResultsPerCollection)
	for _, m := range out.Matches {
		if len(docs) == s.cfg.ResultsPerCollection {
			break
		}
		if p.keep(m.Metadata) {
			docs = append(docs, m.Document)
		}
	}
	return docs, out.Fallback
}
