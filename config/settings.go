// Package config provides application settings.
//
// Settings are resolved in layers, later layers winning:
// - built-in defaults
// - an optional YAML file
// - environment variables
// - command-line flags (applied by the cli package)

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/premjatin/LLM-WebSearch/llm"
)

// EnvConfigPath names the environment variable holding the YAML settings path.
const EnvConfigPath = "SEARCHY_CONFIG"

// Settings holds all application configuration.
type Settings struct {
	LLM     LLMConfig     `yaml:"llm"`
	Agent   AgentConfig   `yaml:"agent"`
	RAG     RAGConfig     `yaml:"rag"`
	Web     WebConfig     `yaml:"web"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"` // empty selects the provider default
	MaxTokens   uint32  `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
}

// AgentConfig holds run configuration.
type AgentConfig struct {
	MaxSteps        int    `yaml:"max_steps"`
	ParallelTools   int    `yaml:"parallel_tools"`
	HistoryLimit    int    `yaml:"history_limit"`
	ToolTimeoutSecs uint64 `yaml:"tool_timeout_secs"`
	ToolRetries     uint32 `yaml:"tool_retries"`
}

// RAGConfig holds vector store, embedding and ingestion configuration.
type RAGConfig struct {
	Dir               string `yaml:"dir"`
	IndexFile         string `yaml:"index_file"`
	MetadataFile      string `yaml:"metadata_file"`
	Backend           string `yaml:"backend"` // flat or chromem
	EmbeddingProvider string `yaml:"embedding_provider"`
	EmbeddingModel    string `yaml:"embedding_model"`
	Dimension         int    `yaml:"dimension"`
	ChunkSize         int    `yaml:"chunk_size"`
	ChunkOverlap      int    `yaml:"chunk_overlap"`
	Tokenizer         string `yaml:"tokenizer"` // empty counts runes
	TopK              int    `yaml:"top_k"`
}

// WebConfig holds web search configuration.
type WebConfig struct {
	SearchEndpoint string `yaml:"search_endpoint"`
	MaxResults     int    `yaml:"max_results"`
	MaxLinks       int    `yaml:"max_links"`
	TimeoutSecs    int    `yaml:"timeout_secs"`
	MaxChars       int    `yaml:"max_chars"`
	UserAgent      string `yaml:"user_agent"`
}

// StorageConfig holds conversation persistence configuration.
type StorageConfig struct {
	Path   string `yaml:"path"`
	UserID string `yaml:"user_id"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// MetricsConfig holds the Prometheus endpoint configuration.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// Defaults returns the built-in settings.
func Defaults() Settings {
	return Settings{
		LLM: LLMConfig{
			Provider:    llm.ProviderGroq.String(),
			MaxTokens:   4096,
			Temperature: 0.1,
		},
		Agent: AgentConfig{
			MaxSteps:        15,
			ParallelTools:   4,
			HistoryLimit:    50,
			ToolTimeoutSecs: 60,
			ToolRetries:     1,
		},
		RAG: RAGConfig{
			Dir:               "vector_store",
			IndexFile:         "vector_index.bin",
			MetadataFile:      "vector_metadata.json",
			Backend:           "flat",
			EmbeddingProvider: "local",
			Dimension:         384,
			ChunkSize:         1000,
			ChunkOverlap:      150,
			TopK:              3,
		},
		Web: WebConfig{
			SearchEndpoint: "https://html.duckduckgo.com/html/",
			MaxResults:     5,
			MaxLinks:       3,
			TimeoutSecs:    15,
			MaxChars:       3000,
			UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
		},
		Storage: StorageConfig{
			Path:   ".searchy/searchy.db",
			UserID: "local",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load resolves settings from defaults, the YAML file at path (or at
// $SEARCHY_CONFIG when path is empty) and the environment.
func Load(path string) (Settings, error) {
	settings := Defaults()

	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		if err := settings.mergeFile(path); err != nil {
			return Settings{}, err
		}
	}

	if err := settings.applyEnv(); err != nil {
		return Settings{}, err
	}
	if err := settings.SetProvider(settings.LLM.Provider); err != nil {
		return Settings{}, err
	}
	if err := settings.Validate(); err != nil {
		return Settings{}, err
	}
	return settings, nil
}

// New loads settings from the environment for the specified provider.
func New(provider string) (Settings, error) {
	settings, err := Load("")
	if err != nil {
		return Settings{}, err
	}
	if provider != "" {
		if err := settings.SetProvider(provider); err != nil {
			return Settings{}, err
		}
	}
	return settings, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

func (s *Settings) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	// An empty file decodes to io.EOF and leaves the defaults alone.
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// SetProvider switches to a provider, normalising aliases.
func (s *Settings) SetProvider(provider string) error {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return err
	}
	s.LLM.Provider = p.String()
	return nil
}

// ProviderType returns the parsed provider.
func (s Settings) ProviderType() llm.ProviderType {
	p, _ := llm.ParseProviderType(s.LLM.Provider)
	return p
}

// ResolvedModel returns the configured model, the provider's model
// environment variable, or the provider default, in that order.
func (s Settings) ResolvedModel() string {
	if s.LLM.Model != "" {
		return s.LLM.Model
	}
	model, _ := ModelFor(s.LLM.Provider)
	return model
}

// Validate checks cross-field constraints.
func (s Settings) Validate() error {
	var errs []error
	if s.Agent.MaxSteps <= 0 {
		errs = append(errs, fmt.Errorf("agent.max_steps must be positive, got %d", s.Agent.MaxSteps))
	}
	if s.Agent.ParallelTools <= 0 {
		errs = append(errs, fmt.Errorf("agent.parallel_tools must be positive, got %d", s.Agent.ParallelTools))
	}
	if s.RAG.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("rag.chunk_size must be positive, got %d", s.RAG.ChunkSize))
	}
	if s.RAG.ChunkOverlap < 0 || s.RAG.ChunkOverlap >= s.RAG.ChunkSize {
		errs = append(errs, fmt.Errorf("rag.chunk_overlap must be in [0, chunk_size), got %d", s.RAG.ChunkOverlap))
	}
	if s.RAG.TopK <= 0 {
		errs = append(errs, fmt.Errorf("rag.top_k must be positive, got %d", s.RAG.TopK))
	}
	switch s.RAG.Backend {
	case "flat", "chromem":
	default:
		errs = append(errs, fmt.Errorf("rag.backend must be flat or chromem, got %q", s.RAG.Backend))
	}
	if s.Web.MaxLinks <= 0 || s.Web.MaxResults <= 0 {
		errs = append(errs, fmt.Errorf("web.max_results and web.max_links must be positive"))
	}
	if s.Web.TimeoutSecs <= 0 {
		errs = append(errs, fmt.Errorf("web.timeout_secs must be positive, got %d", s.Web.TimeoutSecs))
	}
	return errors.Join(errs...)
}

func (s *Settings) applyEnv() error {
	return errors.Join(
		envString("LLM_PROVIDER", &s.LLM.Provider),
		envString("LLM_MODEL", &s.LLM.Model),
		envUint32("LLM_MAX_TOKENS", &s.LLM.MaxTokens),
		envFloat64("LLM_TEMPERATURE", &s.LLM.Temperature),

		envInt("AGENT_MAX_STEPS", &s.Agent.MaxSteps),
		envInt("AGENT_PARALLEL_TOOLS", &s.Agent.ParallelTools),
		envInt("AGENT_HISTORY_LIMIT", &s.Agent.HistoryLimit),
		envUint64("TOOL_TIMEOUT_SECS", &s.Agent.ToolTimeoutSecs),

		envString("RAG_DIR", &s.RAG.Dir),
		envString("RAG_BACKEND", &s.RAG.Backend),
		envString("EMBEDDING_PROVIDER", &s.RAG.EmbeddingProvider),
		envString("EMBEDDING_MODEL", &s.RAG.EmbeddingModel),
		envInt("EMBEDDING_DIMENSION", &s.RAG.Dimension),
		envInt("RAG_CHUNK_SIZE", &s.RAG.ChunkSize),
		envInt("RAG_CHUNK_OVERLAP", &s.RAG.ChunkOverlap),
		envInt("RAG_TOP_K", &s.RAG.TopK),

		envString("WEB_SEARCH_ENDPOINT", &s.Web.SearchEndpoint),
		envInt("WEB_MAX_RESULTS", &s.Web.MaxResults),
		envInt("WEB_MAX_LINKS", &s.Web.MaxLinks),
		envInt("WEB_TIMEOUT_SECS", &s.Web.TimeoutSecs),
		envInt("WEB_MAX_CHARS", &s.Web.MaxChars),
		envString("WEB_USER_AGENT", &s.Web.UserAgent),

		envString("SEARCHY_DB", &s.Storage.Path),
		envString("SEARCHY_USER", &s.Storage.UserID),
		envString("LOG_LEVEL", &s.Log.Level),
		envString("METRICS_ADDR", &s.Metrics.Addr),
	)
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(p.EnvVar())
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", p.EnvVar())
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking <PROVIDER>_MODEL first.
func ModelFor(provider string) (string, error) {
	p, err := llm.ParseProviderType(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(modelEnv(p)); val != "" {
		return val, nil
	}
	return p.DefaultModel(), nil
}

func modelEnv(p llm.ProviderType) string {
	return strings.ToUpper(p.String()) + "_MODEL"
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(llm.AllProviders))
	for _, p := range llm.AllProviders {
		result = append(result, p.String())
	}
	return result
}

// Environment variable helpers with proper error handling

func envString(key string, dst *string) error {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
	return nil
}

func envInt(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = i
	return nil
}

func envUint32(key string, dst *uint32) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = uint32(i)
	return nil
}

func envUint64(key string, dst *uint64) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	i, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = i
	return nil
}

func envFloat64(key string, dst *float64) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	*dst = f
	return nil
}
