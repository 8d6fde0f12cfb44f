// Package app builds the service graph from configuration. Everything a
// command or the HTTP server needs is constructed once here and passed down.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rcliao/meeting-rag/internal/chat"
	"github.com/rcliao/meeting-rag/internal/chunker"
	"github.com/rcliao/meeting-rag/internal/config"
	"github.com/rcliao/meeting-rag/internal/embedding"
	"github.com/rcliao/meeting-rag/internal/llm"
	"github.com/rcliao/meeting-rag/internal/meeting"
	"github.com/rcliao/meeting-rag/internal/metrics"
	"github.com/rcliao/meeting-rag/internal/retrieval"
	"github.com/rcliao/meeting-rag/internal/store"
	"github.com/rcliao/meeting-rag/internal/vectorstore"
)

// App holds the constructed services.
type App struct {
	Config   *config.Config
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
	Store    store.Store
	Vectors  vectorstore.Store
	Engine   *retrieval.Engine
	Chat     *chat.Service
	Meetings *meeting.Service
	// LLM is nil when no API key is configured.
	LLM *llm.Client

	closers []func() error
}

// New wires every service. On error, whatever was opened is closed again.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Log: log, Metrics: metrics.New()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	if err := os.MkdirAll(cfg.General.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	emb, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}

	if a.Store, err = openStore(cfg.Database); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store.Close)

	if a.Vectors, err = openVectors(ctx, cfg.Vector, emb); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Vectors.Close)

	opts := []retrieval.Option{retrieval.WithMetrics(a.Metrics)}
	var answerer chat.Answerer
	client, err := llm.New(llm.Config{BaseURL: cfg.Chat.LLM.BaseURL, APIKey: cfg.Chat.LLM.APIKey, Model: cfg.Chat.LLM.Model})
	switch {
	case err == nil:
		a.LLM = client
		opts = append(opts, retrieval.WithTranslator(retrieval.NewLLMTranslator(client)))
		answerer = chat.NewLLMAnswerer(client)
	case errors.Is(err, llm.ErrNoAPIKey):
		log.Info().Msg("no LLM API key configured: self_query falls back to similarity and chat answers are disabled")
	default:
		return nil, err
	}
	a.Engine = retrieval.NewEngine(a.Vectors, log, opts...)

	strategy, _ := retrieval.ParseStrategy(cfg.Retrieval.Strategy)
	lambda := cfg.Retrieval.MMRLambda
	a.Chat = chat.NewService(a.Engine, answerer, chat.Config{
		ResultsPerCollection: cfg.Chat.ResultsPerCollection,
		SearchMultiplier:     cfg.Chat.SearchMultiplier,
		NativeSetFilter:      cfg.Chat.NativeSetFilter,
		Strategy:             strategy,
		ScoreThreshold:       cfg.Retrieval.ScoreThreshold,
		FetchK:               cfg.Retrieval.MMRFetchK,
		Lambda:               &lambda,
	}, log, a.Metrics)

	a.Meetings = meeting.NewService(a.Store, a.Vectors, chunker.Options{
		MaxChunkSize:     cfg.Chunking.MaxChunkSize,
		TimeGapThreshold: cfg.Chunking.TimeGap,
		FallbackOverlap:  cfg.Chunking.Overlap,
	}, cfg.General.UploadDir, log, a.Metrics)

	log.Debug().
		Str("database", cfg.Database.Driver).
		Str("vector", cfg.Vector.Backend).
		Str("embedding", cfg.Embedding.Provider).
		Msg("services ready")
	return a, nil
}

// embedder builds the configured embedder, wrapped in the Redis cache when
// enabled. An unreachable cache is logged and skipped.
func (a *App) embedder(ctx context.Context) (embedding.Embedder, error) {
	ec := a.Config.Embedding
	emb, err := embedding.New(embedding.Config{
		Provider: ec.Provider,
		Model:    ec.Model,
		URL:      ec.URL,
		APIKey:   ec.APIKey,
		Dims:     ec.Dims,
	})
	if err != nil {
		return nil, err
	}
	if !ec.Cache.Enabled {
		return emb, nil
	}

	rdb := redis.NewClient(&redis.Options{Addr: ec.Cache.Addr, Password: ec.Cache.Password, DB: ec.Cache.DB})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		a.Log.Warn().Err(err).Str("addr", ec.Cache.Addr).Msg("embedding cache unreachable, continuing without it")
		return emb, nil
	}
	a.closers = append(a.closers, rdb.Close)
	namespace := fmt.Sprintf("%s:%s:%d", ec.Provider, ec.Model, emb.Dims())
	return embedding.NewCachedEmbedder(emb, rdb, namespace, ec.Cache.TTL), nil
}

func openStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return store.NewPostgresStore(cfg.DSN)
	default:
		return store.NewSQLiteStore(cfg.Path)
	}
}

func openVectors(ctx context.Context, cfg config.VectorConfig, emb embedding.Embedder) (vectorstore.Store, error) {
	switch cfg.Backend {
	case "milvus":
		m := cfg.Milvus
		return vectorstore.NewMilvusStore(ctx, vectorstore.MilvusConfig{
			Address:  m.Address,
			Username: m.Username,
			Password: m.Password,
			DBName:   m.DBName,
			Prefix:   m.CollectionPrefix,
		}, emb)
	default:
		return vectorstore.NewSQLiteStore(cfg.Path, emb)
	}
}

// Close releases every opened resource, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
