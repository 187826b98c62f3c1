package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/docchat-backend/internal/inference/engine/oaihttp"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/envutil"
)

const (
	ProviderOpenAI = oaihttp.ProviderOpenAI
	ProviderGoogle = oaihttp.ProviderGoogle
	ProviderMock   = "mock"

	VectorProviderQdrant   = "qdrant"
	VectorProviderPinecone = "pinecone"
	VectorProviderMemory   = "memory"

	defaultLLMConfigPath = "llm.yaml"
)

// llmFile is the optional YAML overlay, e.g.
//
//	llm: {provider: google, model: gemini-2.5-flash, temperature: 0.2, max_tokens: 1024, top_p: 1.0}
//	embedding: {provider: google, model: text-embedding-004}
//	retrieval: {k: 4}
type llmFile struct {
	LLM struct {
		Provider    string   `yaml:"provider"`
		Model       string   `yaml:"model"`
		Temperature *float64 `yaml:"temperature"`
		MaxTokens   *int     `yaml:"max_tokens"`
		TopP        *float64 `yaml:"top_p"`
	} `yaml:"llm"`
	Embedding struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
	} `yaml:"embedding"`
	Retrieval struct {
		K int `yaml:"k"`
	} `yaml:"retrieval"`
}

type Config struct {
	Env     string
	LogMode string
	Port    string

	LLMProvider    string
	LLMModel       string
	Temperature    float64
	MaxTokens      int
	TopP           float64
	LLMTimeout     time.Duration
	EmbedProvider  string
	EmbedModel     string
	EmbedBatchSize int
	EmbedRPS       float64
	MockEmbedDims  int
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	GoogleAPIKey   string
	GoogleBaseURL  string

	RetrievalK int
	Persona    string

	VectorProvider  string
	VectorNamespace string

	RedisURL   string
	HistoryTTL time.Duration

	DocsDir           string
	ChunkSize         int
	ChunkOverlap      int
	BucketConcurrency int
	WatchDebounce     time.Duration

	AllowedOrigins []string
	ServiceName    string
}

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid config"
	}
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return apierr.ErrConfiguration }

// LoadConfig reads .env (never overriding the real environment), then the
// optional LLM_CONFIG YAML file, then environment overrides.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, &ConfigError{Field: ".env", Reason: err.Error()}
	}

	cfg := defaultConfig()

	path := envutil.String("LLM_CONFIG", "")
	explicit := path != ""
	if !explicit {
		path = defaultLLMConfigPath
	}
	file, err := readLLMFile(path)
	switch {
	case err == nil:
		cfg.applyFile(file)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return Config{}, &ConfigError{Field: "LLM_CONFIG", Reason: err.Error()}
	}

	cfg.applyEnv()
	return cfg, cfg.Validate()
}

func defaultConfig() Config {
	return Config{
		Env:               "development",
		LogMode:           "development",
		Port:              "8001",
		LLMProvider:       ProviderGoogle,
		LLMModel:          "gemini-2.5-flash",
		Temperature:       0.2,
		MaxTokens:         1024,
		TopP:              1.0,
		LLMTimeout:        60 * time.Second,
		EmbedProvider:     ProviderGoogle,
		EmbedModel:        "text-embedding-004",
		EmbedBatchSize:    64,
		MockEmbedDims:     64,
		RetrievalK:        4,
		VectorProvider:    VectorProviderQdrant,
		VectorNamespace:   "default",
		RedisURL:          "redis://localhost:6379/0",
		HistoryTTL:        24 * time.Hour,
		DocsDir:           "docs",
		ChunkSize:         900,
		ChunkOverlap:      150,
		BucketConcurrency: 1,
		WatchDebounce:     2 * time.Second,
		ServiceName:       "docchat",
	}
}

func readLLMFile(path string) (llmFile, error) {
	var f llmFile
	b, err := os.ReadFile(path)
	if err != nil {
		return f, err
	}
	if err := yaml.Unmarshal(b, &f); err != nil {
		return f, fmt.Errorf("parse %s: %w", path, err)
	}
	return f, nil
}

func (c *Config) applyFile(f llmFile) {
	if v := strings.TrimSpace(f.LLM.Provider); v != "" {
		c.LLMProvider = v
	}
	if v := strings.TrimSpace(f.LLM.Model); v != "" {
		c.LLMModel = v
	}
	if f.LLM.Temperature != nil {
		c.Temperature = *f.LLM.Temperature
	}
	if f.LLM.MaxTokens != nil {
		c.MaxTokens = *f.LLM.MaxTokens
	}
	if f.LLM.TopP != nil {
		c.TopP = *f.LLM.TopP
	}
	if v := strings.TrimSpace(f.Embedding.Provider); v != "" {
		c.EmbedProvider = v
	}
	if v := strings.TrimSpace(f.Embedding.Model); v != "" {
		c.EmbedModel = v
	}
	if f.Retrieval.K > 0 {
		c.RetrievalK = f.Retrieval.K
	}
}

func (c *Config) applyEnv() {
	c.Env = envutil.String("ENV", c.Env)
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.Port = envutil.String("PORT", c.Port)

	c.LLMProvider = strings.ToLower(envutil.String("LLM_PROVIDER", c.LLMProvider))
	c.LLMModel = envutil.String("LLM_MODEL", c.LLMModel)
	c.Temperature = envutil.Float("LLM_TEMPERATURE", c.Temperature)
	c.MaxTokens = envutil.Int("LLM_MAX_TOKENS", c.MaxTokens)
	c.TopP = envutil.Float("LLM_TOP_P", c.TopP)
	c.LLMTimeout = envutil.Duration("LLM_TIMEOUT", c.LLMTimeout)
	c.EmbedProvider = strings.ToLower(envutil.String("EMBEDDING_PROVIDER", c.EmbedProvider))
	c.EmbedModel = envutil.String("EMBEDDING_MODEL", c.EmbedModel)
	c.EmbedBatchSize = envutil.Int("EMBED_BATCH_SIZE", c.EmbedBatchSize)
	c.EmbedRPS = envutil.Float("EMBED_RPS", c.EmbedRPS)
	c.MockEmbedDims = envutil.Int("MOCK_EMBED_DIMS", c.MockEmbedDims)
	c.OpenAIAPIKey = envutil.String("OPENAI_API_KEY", c.OpenAIAPIKey)
	c.OpenAIBaseURL = envutil.String("OPENAI_BASE_URL", c.OpenAIBaseURL)
	c.GoogleAPIKey = envutil.String("GOOGLE_API_KEY", c.GoogleAPIKey)
	c.GoogleBaseURL = envutil.String("GOOGLE_BASE_URL", c.GoogleBaseURL)

	c.RetrievalK = envutil.Int("RETRIEVAL_K", c.RetrievalK)
	c.Persona = envutil.String("CHAT_PERSONA", c.Persona)

	c.VectorProvider = strings.ToLower(envutil.String("VECTOR_STORE_PROVIDER", c.VectorProvider))
	c.VectorNamespace = envutil.String("VECTOR_NAMESPACE", c.VectorNamespace)

	c.RedisURL = envutil.String("REDIS_URL", c.RedisURL)
	c.HistoryTTL = envutil.Duration("HISTORY_TTL", c.HistoryTTL)

	c.DocsDir = envutil.String("DOCS_DIR", c.DocsDir)
	c.ChunkSize = envutil.Int("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = envutil.Int("CHUNK_OVERLAP", c.ChunkOverlap)
	c.BucketConcurrency = envutil.Int("BUCKET_CONCURRENCY", c.BucketConcurrency)
	c.WatchDebounce = envutil.Duration("WATCH_DEBOUNCE", c.WatchDebounce)

	if raw := envutil.String("CORS_ALLOWED_ORIGINS", ""); raw != "" {
		c.AllowedOrigins = strings.Split(raw, ",")
	}
	c.ServiceName = envutil.String("OTEL_SERVICE_NAME", c.ServiceName)
}

// Validate checks provider names, provider credentials and numeric ranges.
func (c Config) Validate() error {
	for _, p := range []struct{ field, value string }{
		{"LLM_PROVIDER", c.LLMProvider},
		{"EMBEDDING_PROVIDER", c.EmbedProvider},
	} {
		switch p.value {
		case ProviderOpenAI:
			if strings.TrimSpace(c.OpenAIAPIKey) == "" {
				return &ConfigError{Field: "OPENAI_API_KEY", Reason: fmt.Sprintf("required when %s=%s", p.field, p.value)}
			}
		case ProviderGoogle:
			if strings.TrimSpace(c.GoogleAPIKey) == "" {
				return &ConfigError{Field: "GOOGLE_API_KEY", Reason: fmt.Sprintf("required when %s=%s", p.field, p.value)}
			}
		case ProviderMock:
		default:
			return &ConfigError{Field: p.field, Reason: fmt.Sprintf("unsupported provider %q", p.value)}
		}
	}
	switch c.VectorProvider {
	case VectorProviderQdrant, VectorProviderPinecone, VectorProviderMemory:
	default:
		return &ConfigError{Field: "VECTOR_STORE_PROVIDER", Reason: fmt.Sprintf("unsupported provider %q", c.VectorProvider)}
	}
	if strings.TrimSpace(c.LLMModel) == "" {
		return &ConfigError{Field: "LLM_MODEL", Reason: "must not be empty"}
	}
	if c.RetrievalK <= 0 {
		return &ConfigError{Field: "RETRIEVAL_K", Reason: "must be positive"}
	}
	if c.ChunkSize <= 0 || c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return &ConfigError{Field: "CHUNK_OVERLAP", Reason: "must be in [0, CHUNK_SIZE)"}
	}
	if c.HistoryTTL <= 0 {
		return &ConfigError{Field: "HISTORY_TTL", Reason: "must be positive"}
	}
	return nil
}

// APIKey returns the key for a provider name.
func (c Config) APIKey(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey
	case ProviderGoogle:
		return c.GoogleAPIKey
	default:
		return ""
	}
}

func (c Config) BaseURL(provider string) string {
	switch provider {
	case ProviderOpenAI:
		return c.OpenAIBaseURL
	case ProviderGoogle:
		return c.GoogleBaseURL
	default:
		return ""
	}
}
