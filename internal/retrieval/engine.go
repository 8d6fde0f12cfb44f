// Package retrieval runs similarity, score-threshold, MMR and self-query
// searches against one vector collection.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcliao/meeting-rag/internal/metrics"
	"github.com/rcliao/meeting-rag/internal/model"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

// Strategy selects how candidates are chosen.
type Strategy string

const (
	StrategySimilarity     Strategy = "similarity"
	StrategyScoreThreshold Strategy = "similarity_score_threshold"
	StrategyMMR            Strategy = "mmr"
	StrategySelfQuery      Strategy = "self_query"
)

// Strategies lists the supported strategies.
var Strategies = []Strategy{StrategySimilarity, StrategyScoreThreshold, StrategyMMR, StrategySelfQuery}

// ParseStrategy validates a strategy name. The empty string means similarity.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return StrategySimilarity, nil
	}
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStrategy, s)
}

var (
	ErrUnknownStrategy  = errors.New("unknown retrieval strategy")
	ErrMissingThreshold = errors.New("similarity_score_threshold requires a score threshold")
)

const (
	DefaultK      = 5
	DefaultFetchK = 20
	DefaultLambda = 0.5
)

// Request describes one retrieval.
type Request struct {
	Collection string
	Query      string
	K          int
	Strategy   Strategy
	Filter     vectorstore.Filter

	// ScoreThreshold turns a plain similarity request into
	// similarity_score_threshold.
	ScoreThreshold *float64

	// FetchK and Lambda only apply to mmr. A nil Lambda means DefaultLambda.
	FetchK int
	Lambda *float64
}

// FallbackReason says why a self-query retrieval used plain similarity instead.
type FallbackReason string

const (
	FallbackNone               FallbackReason = ""
	FallbackNoTranslator       FallbackReason = "no_translator"
	FallbackTranslation        FallbackReason = "translation_failed"
	FallbackIncompatibleFilter FallbackReason = "incompatible_filter"
	FallbackStructuredSearch   FallbackReason = "structured_search_failed"
)

// Result holds ranked matches and how they were produced.
type Result struct {
	Matches []vectorstore.Match

	// Strategy is the strategy that actually ran.
	Strategy Strategy
	Upgraded bool

	Fallback    FallbackReason
	FallbackErr error
}

// Documents returns the matched documents in rank order.
func (r *Result) Documents() []model.Document {
	docs := make([]model.Document, len(r.Matches))
	for i, m := range r.Matches {
		docs[i] = m.Document
	}
	return docs
}

// Engine executes retrieval requests against a vector store.
type Engine struct {
	store      vectorstore.Store
	translator Translator
	log        zerolog.Logger
	metrics    *metrics.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithTranslator enables the self_query strategy. Without one, self_query
// always falls back to similarity.
func WithTranslator(t Translator) Option {
	return func(e *Engine) { e.translator = t }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine over the given store.
func NewEngine(store vectorstore.Store, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{store: store, log: log.With().Str("component", "retrieval").Logger()}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Retrieve runs the request. Self-query translation problems never surface as
// errors; they are reported through Result.Fallback.
func (e *Engine) Retrieve(ctx context.Context, req Request) (*Result, error) {
	req, upgraded, err := e.normalize(req)
	if err != nil {
		return nil, err
	}
	start := time.Now()

	var res *Result
	switch req.Strategy {
	case StrategySimilarity:
		res, err = e.similarity(ctx, req)
	case StrategyScoreThreshold:
		res, err = e.scoreThreshold(ctx, req)
	case StrategyMMR:
		res, err = e.mmr(ctx, req)
	case StrategySelfQuery:
		res, err = e.selfQuery(ctx, req)
	}
	if err != nil {
		return nil, fmt.Errorf("%s retrieval on %s: %w", req.Strategy, req.Collection, err)
	}
	res.Upgraded = upgraded
	e.metrics.ObserveRetrieval(req.Collection, string(res.Strategy), time.Since(start))
	return res, nil
}

func (e *Engine) normalize(req Request) (Request, bool, error) {
	if !model.ValidCollection(req.Collection) {
		return req, false, fmt.Errorf("%w: %q", vectorstore.ErrUnknownCollection, req.Collection)
	}
	st, err := ParseStrategy(string(req.Strategy))
	if err != nil {
		return req, false, err
	}
	req.Strategy = st
	if req.K <= 0 {
		req.K = DefaultK
	}
	if req.FetchK <= 0 {
		req.FetchK = DefaultFetchK
	}
	if req.FetchK < req.K {
		req.FetchK = req.K
	}
	if req.Lambda == nil {
		l := DefaultLambda
		req.Lambda = &l
	}
	if *req.Lambda < 0 || *req.Lambda > 1 {
		return req, false, fmt.Errorf("mmr lambda must be within [0,1], got %v", *req.Lambda)
	}

	upgraded := false
	if req.ScoreThreshold != nil && req.Strategy == StrategySimilarity {
		req.Strategy = StrategyScoreThreshold
		upgraded = true
		e.log.Debug().
			Str("collection", req.Collection).
			Float64("threshold", *req.ScoreThreshold).
			Msg("score threshold given, upgrading similarity to similarity_score_threshold")
	}
	if req.Strategy == StrategyScoreThreshold && req.ScoreThreshold == nil {
		return req, false, ErrMissingThreshold
	}
	return req, upgraded, nil
}

func (e *Engine) similarity(ctx context.Context, req Request) (*Result, error) {
	matches, err := e.store.Search(ctx, vectorstore.SearchParams{
		Collection: req.Collection,
		Query:      req.Query,
		K:          req.K,
		Filter:     req.Filter,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Matches: matches, Strategy: StrategySimilarity}, nil
}

func (e *Engine) scoreThreshold(ctx context.Context, req Request) (*Result, error) {
	res, err := e.similarity(ctx, req)
	if err != nil {
		return nil, err
	}
	kept := res.Matches[:0]
	for _, m := range res.Matches {
		if m.Score >= *req.ScoreThreshold {
			kept = append(kept, m)
		}
	}
	return &Result{Matches: kept, Strategy: StrategyScoreThreshold}, nil
}

func (e *Engine) mmr(ctx context.Context, req Request) (*Result, error) {
	candidates, err := e.store.Search(ctx, vectorstore.SearchParams{
		Collection: req.Collection,
		Query:      req.Query,
		K:          req.FetchK,
		Filter:     req.Filter,
	})
	if err != nil {
		return nil, err
	}
	return &Result{Matches: selectMMR(candidates, req.K, *req.Lambda), Strategy: StrategyMMR}, nil
}

func (e *Engine) selfQuery(ctx context.Context, req Request) (*Result, error) {
	if e.translator == nil {
		return e.fallback(ctx, req, FallbackNoTranslator, errors.New("no query translator configured"))
	}
	schema := SchemaFor(req.Collection)

	sq, err := e.translator.Translate(ctx, req.Query, schema)
	if err != nil {
		return e.fallback(ctx, req, FallbackTranslation, err)
	}
	if sq == nil {
		return e.fallback(ctx, req, FallbackTranslation, errors.New("translator returned no query"))
	}
	if err := schema.Check(sq.Filter); err != nil {
		return e.fallback(ctx, req, FallbackIncompatibleFilter, err)
	}

	query := sq.Query
	if query == "" {
		query = req.Query
	}
	k := req.K
	if sq.Limit > 0 && sq.Limit < k {
		k = sq.Limit
	}
	matches, err := e.store.Search(ctx, vectorstore.SearchParams{
		Collection: req.Collection,
		Query:      query,
		K:          k,
		Filter:     req.Filter.And(sq.Filter),
	})
	if err != nil {
		return e.fallback(ctx, req, FallbackStructuredSearch, err)
	}
	if len(matches) > req.K {
		matches = matches[:req.K]
	}
	e.log.Debug().
		Str("collection", req.Collection).
		Str("query", query).
		Stringer("filter", sq.Filter).
		Int("results", len(matches)).
		Msg("self-query")
	return &Result{Matches: matches, Strategy: StrategySelfQuery}, nil
}

func (e *Engine) fallback(ctx context.Context, req Request, reason FallbackReason, cause error) (*Result, error) {
	e.log.Warn().
		Err(cause).
		Str("collection", req.Collection).
		Str("reason", string(reason)).
		Msg("self-query failed, falling back to similarity search")
	e.metrics.RetrievalFallback(req.Collection, string(reason))

	res, err := e.similarity(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Fallback = reason
	res.FallbackErr = cause
	return res, nil
}
