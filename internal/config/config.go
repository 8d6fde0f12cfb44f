// Package config loads meeting-rag settings from a config file, defaults and
// MEETING_RAG_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rcliao/meeting-rag/internal/retrieval"
)

// EnvPrefix is the prefix of environment overrides: chat.llm.api_key is
// read from MEETING_RAG_CHAT_LLM_API_KEY.
const EnvPrefix = "MEETING_RAG"

// Config holds all settings.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Chunking  ChunkingConfig  `mapstructure:"chunking"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Chat      ChatConfig      `mapstructure:"chat"`
	Server    ServerConfig    `mapstructure:"server"`
}

type GeneralConfig struct {
	LogLevel  string `mapstructure:"log_level"`
	LogJSON   bool   `mapstructure:"log_json"`
	DataDir   string `mapstructure:"data_dir"`
	UploadDir string `mapstructure:"upload_dir"`
}

func (g GeneralConfig) Validate() error {
	if g.DataDir == "" {
		return errors.New("general.data_dir is required")
	}
	return nil
}

// DatabaseConfig selects the relational store.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite | postgres
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

func (d DatabaseConfig) Validate() error {
	switch d.Driver {
	case "sqlite":
		if d.Path == "" {
			return errors.New("database.path is required for sqlite")
		}
	case "postgres":
		if d.DSN == "" {
			return errors.New("database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("database.driver %q is invalid (valid: sqlite, postgres)", d.Driver)
	}
	return nil
}

type MilvusConfig struct {
	Address          string `mapstructure:"address"`
	Username         string `mapstructure:"username"`
	Password         string `mapstructure:"password"`
	DBName           string `mapstructure:"db_name"`
	CollectionPrefix string `mapstructure:"collection_prefix"`
}

// VectorConfig selects the vector backend.
type VectorConfig struct {
	Backend string       `mapstructure:"backend"` // sqlite | milvus
	Path    string       `mapstructure:"path"`
	Milvus  MilvusConfig `mapstructure:"milvus"`
}

func (v VectorConfig) Validate() error {
	switch v.Backend {
	case "sqlite":
		if v.Path == "" {
			return errors.New("vector.path is required for sqlite")
		}
	case "milvus":
		if v.Milvus.Address == "" {
			return errors.New("vector.milvus.address is required for milvus")
		}
	default:
		return fmt.Errorf("vector.backend %q is invalid (valid: sqlite, milvus)", v.Backend)
	}
	return nil
}

type CacheConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type EmbeddingConfig struct {
	Provider string      `mapstructure:"provider"` // ollama | openai | hash
	Model    string      `mapstructure:"model"`
	URL      string      `mapstructure:"url"`
	APIKey   string      `mapstructure:"api_key"`
	Dims     int         `mapstructure:"dims"`
	Cache    CacheConfig `mapstructure:"cache"`
}

func (e EmbeddingConfig) Validate() error {
	switch e.Provider {
	case "ollama", "openai", "hash":
	default:
		return fmt.Errorf("embedding.provider %q is invalid (valid: ollama, openai, hash)", e.Provider)
	}
	if e.Dims < 0 {
		return errors.New("embedding.dims must be >= 0")
	}
	if e.Cache.Enabled && e.Cache.Addr == "" {
		return errors.New("embedding.cache.addr is required when the cache is enabled")
	}
	return nil
}

type ChunkingConfig struct {
	MaxChunkSize int     `mapstructure:"max_chunk_size"`
	TimeGap      float64 `mapstructure:"time_gap"` // seconds
	Overlap      int     `mapstructure:"overlap"`
}

func (c ChunkingConfig) Validate() error {
	if c.MaxChunkSize <= 0 {
		return errors.New("chunking.max_chunk_size must be > 0")
	}
	if c.TimeGap <= 0 {
		return errors.New("chunking.time_gap must be > 0")
	}
	if c.Overlap < 0 || c.Overlap >= c.MaxChunkSize {
		return errors.New("chunking.overlap must be >= 0 and smaller than max_chunk_size")
	}
	return nil
}

type RetrievalConfig struct {
	Strategy       string   `mapstructure:"strategy"`
	K              int      `mapstructure:"k"`
	ScoreThreshold *float64 `mapstructure:"score_threshold"`
	MMRFetchK      int      `mapstructure:"mmr_fetch_k"`
	MMRLambda      float64  `mapstructure:"mmr_lambda"`
}

func (r RetrievalConfig) Validate() error {
	st, err := retrieval.ParseStrategy(r.Strategy)
	if err != nil {
		return fmt.Errorf("retrieval.strategy: %w", err)
	}
	if st == retrieval.StrategyScoreThreshold && r.ScoreThreshold == nil {
		return errors.New("retrieval.score_threshold is required for similarity_score_threshold")
	}
	if r.K <= 0 {
		return errors.New("retrieval.k must be > 0")
	}
	if r.MMRLambda < 0 || r.MMRLambda > 1 {
		return errors.New("retrieval.mmr_lambda must be within [0, 1]")
	}
	return nil
}

type LLMConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
}

type ChatConfig struct {
	ResultsPerCollection int       `mapstructure:"results_per_collection"`
	SearchMultiplier     int       `mapstructure:"search_multiplier"`
	NativeSetFilter      bool      `mapstructure:"native_set_filter"`
	LLM                  LLMConfig `mapstructure:"llm"`
}

func (c ChatConfig) Validate() error {
	if c.ResultsPerCollection <= 0 {
		return errors.New("chat.results_per_collection must be > 0")
	}
	if c.SearchMultiplier <= 0 {
		return errors.New("chat.search_multiplier must be > 0")
	}
	return nil
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
	// AdminEmails get the admin role when their account is first created.
	AdminEmails []string `mapstructure:"admin_emails"`
}

func (s ServerConfig) Validate() error {
	if s.Address == "" {
		return errors.New("server.address is required")
	}
	return nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []interface{ Validate() error }{
		c.General, c.Database, c.Vector, c.Embedding, c.Chunking, c.Retrieval, c.Chat, c.Server,
	}
	for _, v := range validators {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// DefaultDataDir is ~/.meeting-rag, or ./.meeting-rag without a home directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".meeting-rag"
	}
	return filepath.Join(home, ".meeting-rag")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.log_json", false)
	v.SetDefault("general.data_dir", DefaultDataDir())

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("vector.backend", "sqlite")
	v.SetDefault("vector.milvus.collection_prefix", "meeting_")

	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.dims", 256)
	v.SetDefault("embedding.cache.enabled", false)
	v.SetDefault("embedding.cache.ttl", 24*time.Hour)

	v.SetDefault("chunking.max_chunk_size", 1000)
	v.SetDefault("chunking.time_gap", 60.0)
	v.SetDefault("chunking.overlap", 200)

	v.SetDefault("retrieval.strategy", string(retrieval.StrategySimilarity))
	v.SetDefault("retrieval.k", retrieval.DefaultK)
	v.SetDefault("retrieval.mmr_fetch_k", retrieval.DefaultFetchK)
	v.SetDefault("retrieval.mmr_lambda", retrieval.DefaultLambda)

	v.SetDefault("chat.results_per_collection", 3)
	v.SetDefault("chat.search_multiplier", 10)
	v.SetDefault("chat.native_set_filter", true)

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.admin_emails", []string{})

	// Keys without a meaningful default are still registered so that
	// AutomaticEnv overrides reach Unmarshal.
	for _, key := range []string{
		"general.upload_dir",
		"database.path", "database.dsn",
		"vector.path",
		"vector.milvus.address", "vector.milvus.username", "vector.milvus.password", "vector.milvus.db_name",
		"embedding.model", "embedding.url", "embedding.api_key",
		"embedding.cache.addr", "embedding.cache.password",
		"chat.llm.base_url", "chat.llm.api_key", "chat.llm.model",
	} {
		v.SetDefault(key, "")
	}
	v.SetDefault("embedding.cache.db", 0)
}

// Load reads configuration. With an empty path, config.yaml is looked up in
// the working directory and ~/.meeting-rag; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(DefaultDataDir())
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.resolvePaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// resolvePaths places unset file locations under the data directory.
func (c *Config) resolvePaths() {
	if c.General.UploadDir == "" {
		c.General.UploadDir = filepath.Join(c.General.DataDir, "uploads")
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.General.DataDir, "meetings.db")
	}
	if c.Vector.Path == "" {
		c.Vector.Path = filepath.Join(c.General.DataDir, "vectors.db")
	}
}
