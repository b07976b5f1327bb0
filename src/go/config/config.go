// Package config loads the engine's tunables via viper, honoring the
// same environment variable names the reference implementation reads
// with os.getenv, plus an optional YAML file for the embedding provider
// identity and other settings the reference implementation hardcoded.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/kortix-ai/kb-fusion/src/go/engineerr"
)

// Tunables holds the engine's named constants, each loadable from the
// environment variable noted. The retrieval engine reads KSQL, KSQL2,
// KFinal, TopOAI and JaccardThreshold, and the CLI reads
// OAITimeoutSeconds; SpanWords, SpanStride, SentWords, RRFK, PRFK, PRFM
// and PRFAlpha are loaded but not read, since fusion and prf use their own
// constants (fusion.RRFConstant, prf.K, prf.M).
type Tunables struct {
	SpanWords         int     `mapstructure:"span_words"`        // KB_SPAN_WORDS
	SpanStride        int     `mapstructure:"span_stride"`       // KB_SPAN_STRIDE
	SentWords         int     `mapstructure:"sent_words"`        // KB_SENT_WORDS
	KSQL              int     `mapstructure:"k_sql"`             // KB_K_SQL
	KFinal            int     `mapstructure:"k_final"`           // KB_K_FINAL
	TopOAI            int     `mapstructure:"top_oai"`           // KB_TOP_OAI
	OAITimeoutSeconds float64 `mapstructure:"oai_timeout"`       // OAI_TIMEOUT
	JaccardThreshold  float64 `mapstructure:"jaccard_threshold"` // JACCARD_THRESHOLD
	RRFK              int     `mapstructure:"rrf_k"`             // RRF_K
	PRFK              int     `mapstructure:"prf_k"`             // PRF_K
	PRFM              int     `mapstructure:"prf_m"`             // PRF_M
	PRFAlpha          float64 `mapstructure:"prf_alpha"`         // PRF_ALPHA (carried, unused by fusion math)
	KSQL2             int     `mapstructure:"k_sql2"`            // K_SQL2
}

// EmbeddingConfig names the embedding backend and cache identity.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"` // "stub" | "http" | "onnx"
	Model      string `mapstructure:"model"`
	Dim        int    `mapstructure:"dim"`
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	VersionKey string `mapstructure:"version_key"`
}

// Config is the fully resolved configuration for one engine instance.
type Config struct {
	DataDir   string          `mapstructure:"data_dir"`
	Tunables  Tunables        `mapstructure:"tunables"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

// Load reads configuration from an optional YAML file at path (ignored
// if empty or missing), then applies environment variable overrides
// matching the reference implementation's names, then validates.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	bindEnv(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DataDir = expandPath(v.GetString("data_dir"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", filepath.Join(".", "kbfusion-data"))
	v.SetDefault("tunables.span_words", 220)
	v.SetDefault("tunables.span_stride", 200)
	v.SetDefault("tunables.sent_words", 60)
	v.SetDefault("tunables.k_sql", 600)
	v.SetDefault("tunables.k_final", 20)
	v.SetDefault("tunables.top_oai", 28)
	v.SetDefault("tunables.oai_timeout", 2.0)
	v.SetDefault("tunables.jaccard_threshold", 0.83)
	v.SetDefault("tunables.rrf_k", 60)
	v.SetDefault("tunables.prf_k", 10)
	v.SetDefault("tunables.prf_m", 20)
	v.SetDefault("tunables.prf_alpha", 0.7)
	v.SetDefault("tunables.k_sql2", 900)

	v.SetDefault("embedding.provider", "stub")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dim", 1536)
	v.SetDefault("embedding.version_key", "v1")
}

func bindEnv(v *viper.Viper) {
	pairs := map[string]string{
		"tunables.span_words":        "KB_SPAN_WORDS",
		"tunables.span_stride":       "KB_SPAN_STRIDE",
		"tunables.sent_words":        "KB_SENT_WORDS",
		"tunables.k_sql":             "KB_K_SQL",
		"tunables.k_final":           "KB_K_FINAL",
		"tunables.top_oai":           "KB_TOP_OAI",
		"tunables.oai_timeout":       "OAI_TIMEOUT",
		"tunables.jaccard_threshold": "JACCARD_THRESHOLD",
		"tunables.rrf_k":             "RRF_K",
		"tunables.prf_k":             "PRF_K",
		"tunables.prf_m":             "PRF_M",
		"tunables.prf_alpha":         "PRF_ALPHA",
		"tunables.k_sql2":            "K_SQL2",
		"embedding.provider":         "KB_EMBED_PROVIDER",
		"embedding.model":            "KB_EMBED_MODEL",
		"embedding.dim":              "KB_EMBED_DIM",
		"embedding.endpoint":         "KB_EMBED_ENDPOINT",
		"embedding.api_key":          "OPENAI_API_KEY",
		"embedding.version_key":      "KB_EMBED_VERSION",
		"data_dir":                   "KB_DATA_DIR",
	}
	for key, env := range pairs {
		_ = v.BindEnv(key, env)
	}
}

// Validate reports engineerr.ErrConfigMissing (wrapped with detail) for
// any tunable or identity field that cannot be sensibly defaulted.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir is empty", engineerr.ErrConfigMissing)
	}
	if c.Embedding.Provider == "http" && c.Embedding.Endpoint == "" {
		return fmt.Errorf("%w: embedding.endpoint required for http provider", engineerr.ErrConfigMissing)
	}
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("%w: embedding.dim must be positive", engineerr.ErrConfigMissing)
	}
	if c.Tunables.JaccardThreshold < 0 || c.Tunables.JaccardThreshold > 1 {
		return fmt.Errorf("%w: jaccard_threshold must be in [0,1]", engineerr.ErrConfigMissing)
	}
	if c.Tunables.KSQL <= 0 || c.Tunables.KFinal <= 0 || c.Tunables.TopOAI <= 0 {
		return fmt.Errorf("%w: k_sql, k_final, and top_oai must be positive", engineerr.ErrConfigMissing)
	}
	return nil
}

func expandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~") {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return os.ExpandEnv(path)
}
