// Component wiring for CLI commands.
//
// Information Hiding:
// - Provider, embedder and store construction hidden
// - Tool configuration hidden
// - Metrics endpoint lifecycle hidden

package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/premjatin/LLM-WebSearch/agent"
	"github.com/premjatin/LLM-WebSearch/config"
	"github.com/premjatin/LLM-WebSearch/internal/logger"
	"github.com/premjatin/LLM-WebSearch/internal/metrics"
	"github.com/premjatin/LLM-WebSearch/llm"
	"github.com/premjatin/LLM-WebSearch/rag"
	"github.com/premjatin/LLM-WebSearch/session"
	"github.com/premjatin/LLM-WebSearch/storage"
	"github.com/premjatin/LLM-WebSearch/tools"
	"github.com/premjatin/LLM-WebSearch/web"
)

// Options holds global CLI flags. Zero values leave the loaded settings alone.
type Options struct {
	ConfigPath  string
	Provider    string
	MaxSteps    int
	Verbose     bool
	MetricsAddr string
	DBPath      string
	UserID      string
}

// LoadSettings resolves settings and applies flag overrides on top.
func LoadSettings(opts Options) (config.Settings, error) {
	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Settings{}, err
	}
	if opts.Provider != "" {
		if err := settings.SetProvider(opts.Provider); err != nil {
			return config.Settings{}, err
		}
	}
	if opts.MaxSteps > 0 {
		settings.Agent.MaxSteps = opts.MaxSteps
	}
	if opts.Verbose {
		settings.Log.Level = "debug"
		settings.Log.Pretty = true
	}
	if opts.MetricsAddr != "" {
		settings.Metrics.Addr = opts.MetricsAddr
	}
	if opts.DBPath != "" {
		settings.Storage.Path = opts.DBPath
	}
	if opts.UserID != "" {
		settings.Storage.UserID = opts.UserID
	}
	return settings, settings.Validate()
}

// App holds the components shared by every command.
type App struct {
	Settings config.Settings
	Log      zerolog.Logger
	Metrics  *metrics.Metrics

	metricsServer *http.Server
}

// NewApp builds logging and metrics and starts the metrics endpoint if one is configured.
func NewApp(opts Options) (*App, error) {
	settings, err := LoadSettings(opts)
	if err != nil {
		return nil, err
	}

	app := &App{
		Settings: settings,
		Log: logger.New(logger.Config{
			Level:  settings.Log.Level,
			Pretty: settings.Log.Pretty,
		}),
		Metrics: metrics.New(),
	}

	if settings.Metrics.Addr != "" {
		if err := app.serveMetrics(settings.Metrics.Addr); err != nil {
			return nil, err
		}
	}
	return app, nil
}

func (a *App) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.Metrics.Handler())
	a.metricsServer = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	log := logger.Component(a.Log, "metrics")
	go func() {
		if err := a.metricsServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server stopped")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return nil
}

// Close stops the metrics endpoint.
func (a *App) Close() error {
	if a.metricsServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return a.metricsServer.Shutdown(ctx)
}

// Provider builds the configured language model backend.
func (a *App) Provider() (llm.Provider, error) {
	s := a.Settings
	apiKey, err := config.APIKeyFor(s.LLM.Provider)
	if err != nil {
		return nil, err
	}
	return s.ProviderType().
		Model(s.ResolvedModel()).
		MaxTokens(s.LLM.MaxTokens).
		Temperature(float32(s.LLM.Temperature)).
		APIKey(apiKey)
}

// Embedder builds the configured embedding model.
func (a *App) Embedder() (rag.Embedder, error) {
	s := a.Settings.RAG
	var apiKey string
	if s.EmbeddingProvider != "" && s.EmbeddingProvider != "local" {
		// A missing key is reported by NewEmbedder as ErrEmbedderUnavailable.
		apiKey, _ = config.APIKeyFor(s.EmbeddingProvider)
	}
	return rag.NewEmbedder(rag.EmbedderConfig{
		Provider:  s.EmbeddingProvider,
		Model:     s.EmbeddingModel,
		Dimension: s.Dimension,
		APIKey:    apiKey,
	})
}

// StoreConfig returns the vector store file layout.
func (a *App) StoreConfig() rag.StoreConfig {
	s := a.Settings.RAG
	return rag.StoreConfig{
		Dir:          s.Dir,
		IndexFile:    s.IndexFile,
		MetadataFile: s.MetadataFile,
		Backend:      s.Backend,
	}
}

// Knowledge opens the vector store. A missing or damaged store is not an
// error: it opens not ready and the retrieval tool reports it as unavailable.
func (a *App) Knowledge(ctx context.Context) (*rag.Store, error) {
	embedder, err := a.Embedder()
	if err != nil {
		return nil, err
	}
	return rag.Open(ctx, a.StoreConfig(), embedder,
		rag.WithStoreLogger(logger.Component(a.Log, "rag")),
		rag.WithStoreMetrics(a.Metrics),
	)
}

// Tools builds the tool set offered to the model, in registry order.
func (a *App) Tools(kb tools.KnowledgeBase) []tools.Tool {
	s := a.Settings.Web
	timeout := time.Duration(s.TimeoutSecs) * time.Second
	webLog := logger.Component(a.Log, "web")

	searcher := web.NewDuckDuckGo(s.SearchEndpoint, s.UserAgent, timeout).WithLogger(webLog)
	fetcher := web.NewFetcher(web.WithUserAgent(s.UserAgent), web.WithTimeout(timeout))
	scraper := web.NewScraper(fetcher, s.MaxChars, s.MaxLinks).
		WithLogger(webLog).
		WithMetrics(a.Metrics)

	toolLog := logger.Component(a.Log, "tools")
	return []tools.Tool{
		tools.NewRetrievalTool(kb, a.Settings.RAG.TopK).WithLogger(toolLog),
		tools.NewWebSearchTool(searcher, scraper, tools.WebSearchConfig{
			MaxResults: s.MaxResults,
			MaxLinks:   s.MaxLinks,
		}).WithLogger(toolLog),
	}
}

// Agent builds the orchestration state machine with both tools.
func (a *App) Agent(ctx context.Context) (*agent.Agent, error) {
	provider, err := a.Provider()
	if err != nil {
		return nil, err
	}
	kb, err := a.Knowledge(ctx)
	if err != nil {
		return nil, err
	}

	s := a.Settings.Agent
	cfg := agent.NewBuilder("searchy").
		MaxSteps(s.MaxSteps).
		ParallelTools(s.ParallelTools).
		Tools(a.Tools(kb)).
		ToolConfig(tools.ToolConfig{TimeoutSecs: s.ToolTimeoutSecs, MaxRetries: s.ToolRetries}).
		Build()

	return agent.New(cfg, provider).
		WithLogger(logger.Component(a.Log, "agent")).
		WithMetrics(a.Metrics), nil
}

// Conversations opens the conversation database.
func (a *App) Conversations() (*storage.SqliteStore, error) {
	store, err := storage.OpenSqlite(a.Settings.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// Driver builds a session driver over the given agent and store.
func (a *App) Driver(runner session.Runner, store session.HistoryStore) *session.Driver {
	return session.NewDriver(runner, store).
		WithHistoryLimit(a.Settings.Agent.HistoryLimit).
		WithLogger(logger.Component(a.Log, "session"))
}
