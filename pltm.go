// Package pltm is the public API for embedding the procedural long-term
// memory engine.
//
// Host applications import this package to construct and extend the engine
// without forking it:
//
//	eng, err := pltm.New(
//	    pltm.WithVersion(version),
//	    pltm.WithLogger(logger),
//	    pltm.WithEmbeddingProvider(myProvider),
//	)
//	if err != nil { ... }
//	if err := eng.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: pltm (root) imports
// internal/*, but internal/* never imports pltm (root). Public types (Atom,
// ScoredAtom, etc.) are standalone structs with no internal imports;
// conversion helpers (toPublicAtom, fromPublicAtom) live here, in a file
// that imports both sides of the boundary.
package pltm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/pgvector/pgvector-go"

	"github.com/pltm/engine/internal/auth"
	"github.com/pltm/engine/internal/clock"
	"github.com/pltm/engine/internal/config"
	"github.com/pltm/engine/internal/decay"
	"github.com/pltm/engine/internal/epistemic"
	"github.com/pltm/engine/internal/extractor"
	"github.com/pltm/engine/internal/mcp"
	"github.com/pltm/engine/internal/model"
	"github.com/pltm/engine/internal/ratelimit"
	"github.com/pltm/engine/internal/reconcile"
	"github.com/pltm/engine/internal/search"
	"github.com/pltm/engine/internal/service/embedding"
	pltmsvc "github.com/pltm/engine/internal/service/pltm"
	"github.com/pltm/engine/internal/storage"
	"github.com/pltm/engine/internal/telemetry"
	"github.com/pltm/engine/migrations"
)

// Engine is the procedural long-term memory engine's lifecycle. Construct
// with New(), run with Run(). Engine has no public fields — use New()
// options to configure it.
type Engine struct {
	cfg          config.Config
	db           *storage.DB
	svc          *pltmsvc.Service
	mcpSrv       *mcp.Server
	httpSrv      *http.Server
	decayEngine  *decay.Engine
	outbox       *search.OutboxWorker
	qdrantIndex  *search.QdrantIndex // nil when Qdrant is not configured
	jwtMgr       *auth.JWTManager
	limiter      *ratelimit.Limiter
	otelShutdown func(context.Context) error
	logger       *slog.Logger
	version      string
}

// New initializes the engine. It connects to the database, runs
// migrations, wires all subsystems, and returns a ready-to-run Engine. It
// does NOT start any goroutines or accept connections — call Run().
func New(opts ...Option) (*Engine, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.notifyURL != "" {
		cfg.NotifyURL = o.notifyURL
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	logger.Info("pltm starting", "version", version, "port", cfg.Port)

	otelShutdown, err := telemetry.Init(context.Background(), cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(context.Background(), cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("storage: %w", err)
	}

	if cfg.SkipEmbeddedMigrations {
		logger.Info("embedded migrations skipped by config")
	} else if err := db.RunMigrations(context.Background(), migrations.FS); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("migrations: %w", err)
	}

	for i, extraFS := range o.extraMigrations {
		if err := db.RunMigrations(context.Background(), extraFS); err != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("extra migrations[%d]: %w", i, err)
		}
	}

	var schemaOK bool
	if err := db.Pool().QueryRow(context.Background(),
		`SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_schema = 'public' AND table_name = 'atoms')`,
	).Scan(&schemaOK); err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("schema verification: %w", err)
	}
	if !schemaOK {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("critical table 'atoms' does not exist after migration — check that the pgvector extension is created")
	}

	jwtMgr, err := auth.NewJWTManager(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath, cfg.JWTExpiration)
	if err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("auth: %w", err)
	}

	var embedder embedding.Provider
	if o.embeddingProvider != nil {
		embedder = &embeddingProviderAdapter{p: o.embeddingProvider}
	} else {
		embedder = newEmbeddingProvider(cfg, logger)
	}

	var searcher search.Searcher
	var qdrantIndex *search.QdrantIndex
	var outboxWorker *search.OutboxWorker
	if cfg.QdrantURL != "" {
		var idxErr error
		qdrantIndex, idxErr = search.NewQdrantIndex(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dims:       uint64(cfg.EmbeddingDimensions), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if idxErr != nil {
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant: %w", idxErr)
		}
		if err := qdrantIndex.EnsureCollection(context.Background()); err != nil {
			_ = qdrantIndex.Close()
			db.Close(context.Background())
			_ = otelShutdown(context.Background())
			return nil, fmt.Errorf("qdrant ensure collection: %w", err)
		}
		searcher = qdrantIndex
		outboxWorker = search.NewOutboxWorker(db.Pool(), db, qdrantIndex, logger, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no QDRANT_URL)")
	}

	// External Searcher override (replaces Qdrant for retrieval).
	if o.searcher != nil {
		searcher = &searcherAdapter{s: o.searcher}
	}

	clk := clock.Real{}

	reconciler := reconcile.New(db, clk, logger, reconcile.Config{
		SimilarityThreshold: cfg.ReconcileSimilarityThreshold,
		DuplicateThreshold:  cfg.ReconcileDuplicateThreshold,
	})

	decayEngine := decay.New(db, clk, logger, decay.Config{
		IntervalHours:          cfg.DecayIntervalHours,
		DissolveThreshold:      cfg.DecayDissolveThreshold,
		ReconsolidateThreshold: cfg.DecayReconsolidateThreshold,
		SweepWorkers:           cfg.DecaySweepWorkers,
	})

	snapshotCache, err := epistemic.OpenSnapshotCache(cfg.SnapshotCachePath)
	if err != nil {
		db.Close(context.Background())
		_ = otelShutdown(context.Background())
		return nil, fmt.Errorf("epistemic snapshot cache: %w", err)
	}
	monitor := epistemic.New(db, clk, logger, cfg.EpistemicHighRiskDomains, snapshotCache)

	var extractorModel interface {
		Extract(ctx context.Context, sourceUser, text string) ([]model.Atom, error)
	}
	if o.extractor != nil {
		extractorModel = &extractorAdapter{e: o.extractor}
	} else {
		extractorModel = extractor.New(newExtractorFallback(cfg, logger), logger)
	}

	svc := pltmsvc.New(db, embedder, searcher, reconciler, decayEngine, monitor, extractorModel, clk, logger, pltmsvc.Config{
		AttentionWeights: cfg.RetrieveAttentionWeights,
		MMRLambda:        cfg.RetrieveMMRLambda,
		MMRMinDissim:     cfg.RetrieveMMRMinDissim,
		VectorEnabled:    cfg.StoreVectorEnabled,
		DefaultLimit:     20,
	})

	mcpSrv := mcp.New(svc, logger, version)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = newRateLimiter(cfg, logger)
	}

	mux := http.NewServeMux()
	mcpHTTP := mcpserverHandler(mcpSrv)
	mux.Handle("/mcp", authMiddleware(jwtMgr, db, rateLimitMiddleware(limiter, cfg, logger, mcpHTTP)))

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return &Engine{
		cfg:          cfg,
		db:           db,
		svc:          svc,
		mcpSrv:       mcpSrv,
		httpSrv:      httpSrv,
		decayEngine:  decayEngine,
		outbox:       outboxWorker,
		qdrantIndex:  qdrantIndex,
		jwtMgr:       jwtMgr,
		limiter:      limiter,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts all background goroutines and the MCP HTTP listener, then
// blocks until ctx is cancelled or a fatal server error occurs. On return,
// Shutdown is called automatically — callers should not call Shutdown
// separately.
func (e *Engine) Run(ctx context.Context) error {
	e.decayEngine.Start(ctx)
	if e.outbox != nil {
		e.outbox.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := e.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return e.Shutdown(context.Background())
}

// Shutdown performs a three-phase graceful shutdown: (1) stop accepting MCP
// connections and drain in-flight requests, (2) drain the decay engine's
// in-flight sweep, (3) drain remaining outbox entries to Qdrant. It then
// closes the database pool, rate limiter, and OTEL provider.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.logger.Info("pltm shutting down")

	httpCtx, httpCancel := contextWithOptionalTimeout(ctx, e.cfg.ShutdownHTTPTimeout)
	if err := e.httpSrv.Shutdown(httpCtx); err != nil {
		e.logger.Error("http shutdown error", "error", err)
	}
	httpCancel()

	e.decayEngine.Drain(ctx)

	if e.outbox != nil {
		outboxCtx, outboxCancel := contextWithOptionalTimeout(ctx, e.cfg.ShutdownOutboxDrainTimeout)
		e.outbox.Drain(outboxCtx)
		outboxCancel()
	}

	if e.limiter != nil {
		_ = e.limiter.Close()
	}
	if e.qdrantIndex != nil {
		_ = e.qdrantIndex.Close()
	}
	_ = e.otelShutdown(context.Background())
	e.db.Close(context.Background())

	e.logger.Info("pltm stopped")
	return nil
}

// ── Adapters (defined here because this file imports both sides of the boundary) ──

// embeddingProviderAdapter wraps a public EmbeddingProvider to satisfy
// embedding.Provider, which speaks pgvector.Vector rather than []float32 so
// external consumers never need the pgvector dependency.
type embeddingProviderAdapter struct {
	p EmbeddingProvider
}

func (a *embeddingProviderAdapter) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	v, err := a.p.Embed(ctx, text)
	if err != nil {
		return pgvector.Vector{}, err
	}
	return pgvector.NewVector(v), nil
}

func (a *embeddingProviderAdapter) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	vs, err := a.p.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	out := make([]pgvector.Vector, len(vs))
	for i, v := range vs {
		out[i] = pgvector.NewVector(v)
	}
	return out, nil
}

func (a *embeddingProviderAdapter) Dimensions() int { return a.p.Dimensions() }

// searcherAdapter wraps a public Searcher to satisfy search.Searcher.
type searcherAdapter struct {
	s Searcher
}

func (a *searcherAdapter) Search(ctx context.Context, sourceUser string, emb []float32, filters search.Filters, limit int) ([]search.Result, error) {
	pubFilters := SearchFilters{AtomType: filters.AtomType}
	if filters.Graph != nil {
		g := string(*filters.Graph)
		pubFilters.Graph = &g
	}
	results, err := a.s.Search(ctx, sourceUser, emb, pubFilters, limit)
	if err != nil {
		return nil, err
	}
	out := make([]search.Result, 0, len(results))
	for _, r := range results {
		id, err := uuid.Parse(r.AtomID)
		if err != nil {
			continue
		}
		out = append(out, search.Result{AtomID: id, Score: r.Score})
	}
	return out, nil
}

func (a *searcherAdapter) Healthy(ctx context.Context) error {
	return a.s.Healthy(ctx)
}

// extractorAdapter wraps a public Extractor to satisfy the internal
// extractor-shaped interface expected by service/pltm.Service.
type extractorAdapter struct {
	e Extractor
}

func (a *extractorAdapter) Extract(ctx context.Context, sourceUser, text string) ([]model.Atom, error) {
	atoms, err := a.e.Extract(ctx, sourceUser, text)
	if err != nil {
		return nil, err
	}
	out := make([]model.Atom, len(atoms))
	for i, at := range atoms {
		out[i] = fromPublicAtom(at)
	}
	return out, nil
}

// ── Type converters ──────────────────────────────────────────────────────

// toPublicAtom converts an internal model.Atom to the public pltm.Atom.
func toPublicAtom(a model.Atom) Atom {
	return Atom{
		ID:             a.ID.String(),
		Subject:        a.Subject,
		Predicate:      a.Predicate,
		Object:         a.Object,
		AtomType:       a.AtomType,
		Provenance:     string(a.Provenance),
		Graph:          string(a.Graph),
		Confidence:     a.Confidence,
		Strength:       a.Strength,
		FirstObserved:  a.FirstObserved,
		LastAccessed:   a.LastAccessed,
		AssertionCount: a.AssertionCount,
		AccessCount:    a.AccessCount,
		Contexts:       a.Contexts,
		SourceUser:     a.SourceUser,
		Metadata:       a.Metadata,
	}
}

// fromPublicAtom converts a public pltm.Atom (as produced by an external
// Extractor) back to the internal model.Atom. ID is freshly generated if
// unset or unparseable — external extractors are not expected to assign IDs.
func fromPublicAtom(a Atom) model.Atom {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		id = uuid.New()
	}
	return model.Atom{
		ID:             id,
		Subject:        a.Subject,
		Predicate:      a.Predicate,
		Object:         a.Object,
		AtomType:       a.AtomType,
		Provenance:     model.Provenance(a.Provenance),
		Graph:          model.GraphState(a.Graph),
		Confidence:     a.Confidence,
		Strength:       a.Strength,
		FirstObserved:  a.FirstObserved,
		LastAccessed:   a.LastAccessed,
		AssertionCount: a.AssertionCount,
		AccessCount:    a.AccessCount,
		Contexts:       a.Contexts,
		SourceUser:     a.SourceUser,
		Metadata:       a.Metadata,
	}
}

// ── Helpers ──────────────────────────────────────────────────────────────

func newEmbeddingProvider(cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when PLTM_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("openai provider init failed", "error", err)
			return embedding.NewNoopProvider(dims)
		}
		return p
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
	case "noop":
		logger.Info("embedding provider: noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)
	case "auto":
		fallthrough
	default:
		if ollamaReachable(cfg.OllamaURL) {
			logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
			return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims)
		}
		if cfg.OpenAIAPIKey != "" {
			logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel, "dimensions", dims)
			p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.EmbeddingModel, dims)
			if err != nil {
				logger.Error("openai provider init failed", "error", err)
				return embedding.NewNoopProvider(dims)
			}
			return p
		}
		logger.Warn("no embedding provider available, using noop (semantic search disabled)")
		return embedding.NewNoopProvider(dims)
	}
}

// newExtractorFallback selects the extractor's second-stage LLM backend
// from config, mirroring newEmbeddingProvider's provider-selection shape.
func newExtractorFallback(cfg config.Config, logger *slog.Logger) extractor.LLMExtractor {
	switch cfg.ExtractorLLMProvider {
	case "ollama":
		logger.Info("extractor fallback: ollama", "model", cfg.ExtractorLLMModel, "url", cfg.OllamaURL)
		return extractor.NewOllamaExtractor(cfg.OllamaURL, cfg.ExtractorLLMModel)
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when PLTM_EXTRACTOR_LLM_PROVIDER=openai")
			return extractor.NoopExtractor{}
		}
		logger.Info("extractor fallback: openai", "model", cfg.ExtractorLLMModel)
		return extractor.NewOpenAIExtractor(cfg.OpenAIAPIKey, cfg.ExtractorLLMModel)
	default:
		logger.Info("extractor fallback: disabled (rule stage only)")
		return extractor.NoopExtractor{}
	}
}

func ollamaReachable(baseURL string) bool {
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(c, http.MethodGet, baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	_ = resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func newRateLimiter(cfg config.Config, logger *slog.Logger) *ratelimit.Limiter {
	if cfg.RedisURL == "" {
		logger.Warn("rate limiting: enabled but REDIS_URL is unset — running noop (no shared state across processes)")
		return ratelimit.New(nil, logger, false)
	}
	opts, err := redisOptionsFromURL(cfg.RedisURL)
	if err != nil {
		logger.Error("rate limiting: invalid REDIS_URL, running noop", "error", err)
		return ratelimit.New(nil, logger, false)
	}
	logger.Info("rate limiting: redis-backed sliding window", "rps", cfg.RateLimitRPS, "burst", cfg.RateLimitBurst)
	return ratelimit.New(redisClientFrom(opts), logger, false)
}

func contextWithOptionalTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, timeout)
}
