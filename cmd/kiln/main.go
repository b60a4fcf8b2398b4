package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/kiln/internal/auth"
	"github.com/efebarandurmaz/kiln/internal/chunker"
	"github.com/efebarandurmaz/kiln/internal/config"
	"github.com/efebarandurmaz/kiln/internal/eval"
	"github.com/efebarandurmaz/kiln/internal/generator"
	"github.com/efebarandurmaz/kiln/internal/graph"
	"github.com/efebarandurmaz/kiln/internal/graph/neo4j"
	"github.com/efebarandurmaz/kiln/internal/history"
	"github.com/efebarandurmaz/kiln/internal/ingest"
	"github.com/efebarandurmaz/kiln/internal/llm"
	"github.com/efebarandurmaz/kiln/internal/llmutil"
	"github.com/efebarandurmaz/kiln/internal/metrics"
	"github.com/efebarandurmaz/kiln/internal/observability"
	"github.com/efebarandurmaz/kiln/internal/retriever"
	"github.com/efebarandurmaz/kiln/internal/server"
	"github.com/efebarandurmaz/kiln/internal/service"
	temporalmod "github.com/efebarandurmaz/kiln/internal/temporal"
	"github.com/efebarandurmaz/kiln/internal/vector"
)

const version = "0.1.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "kiln",
		Short: "Retrieval-augmented question answering over your documents",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/kiln.yaml", "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	var (
		inputPath   string
		jsonReport  bool
		viaTemporal bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Chunk, embed, and index documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, inputPath, jsonReport, viaTemporal)
		},
	}
	ingestCmd.Flags().StringVar(&inputPath, "input", "", "Input path (file or directory)")
	ingestCmd.Flags().BoolVar(&jsonReport, "json", false, "Output metrics as JSON")
	ingestCmd.Flags().BoolVar(&viaTemporal, "temporal", false, "Dispatch ingestion to the Temporal worker")
	_ = ingestCmd.MarkFlagRequired("input")

	var sessionID string
	queryCmd := &cobra.Command{
		Use:   "query [question]",
		Short: "Ask a question against the indexed corpus",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(configPath, sessionID, args[0])
		},
	}
	queryCmd.Flags().StringVar(&sessionID, "session", "", "Conversation session ID (empty starts a new session)")

	var (
		fixturesPath string
		useJudge     bool
		evalJSON     bool
		evalOutput   string
	)
	evalCmd := &cobra.Command{
		Use:   "eval",
		Short: "Compare pipeline answers against a no-retrieval baseline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEval(configPath, fixturesPath, evalOutput, useJudge, evalJSON)
		},
	}
	evalCmd.Flags().StringVar(&fixturesPath, "fixtures", "", "Path to fixtures JSONL file")
	evalCmd.Flags().BoolVar(&useJudge, "judge", false, "Score answers with an LLM judge")
	evalCmd.Flags().BoolVar(&evalJSON, "json", false, "Output report as JSON")
	evalCmd.Flags().StringVar(&evalOutput, "output", "", "Write the JSON report to a file")
	_ = evalCmd.MarkFlagRequired("fixtures")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available LLM providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available LLM providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-14s %s\n", name, url)
			}
			fmt.Println("  custom         (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in kiln.yaml or via environment:")
			fmt.Println("  KILN_LLM_PROVIDER=groq")
			fmt.Println("  KILN_LLM_API_KEY=gsk_...")
			fmt.Println("  KILN_LLM_MODEL=llama-3.3-70b-versatile")
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, queryCmd, evalCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and fills empty credentials from the
// configured secrets backend. Shared with cmd/worker via the config package.
func loadConfig(path string) (*config.Config, error) {
	return config.LoadWithSecrets(path)
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func buildProvider(llmCfg config.LLMConfig, embedModel string) (llm.Provider, error) {
	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)

	pcfg := llm.DefaultProviderConfig()
	pcfg.Provider = llmCfg.Provider
	pcfg.APIKey = llmCfg.APIKey
	pcfg.Model = llmCfg.Model
	pcfg.BaseURL = llmCfg.BaseURL
	pcfg.EmbedModel = embedModel

	provider, err := factory.Create(pcfg)
	if err != nil {
		return nil, err
	}
	if provider == nil {
		return nil, fmt.Errorf("provider %q produced no client", llmCfg.Provider)
	}
	provider = llm.WrapWithRetry(provider, pcfg)
	return llm.WithRateLimit(provider, llm.DefaultRateLimitConfig()), nil
}

// embedProvider builds the embedding client from the embedding section, which
// may point at a different provider than generation.
func embedProvider(cfg *config.Config) (llm.Provider, error) {
	return buildProvider(config.LLMConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
	}, cfg.Embedding.Model)
}

// components holds everything a command needs, with a single Close.
type components struct {
	svc     *service.Service
	repo    vector.Repository
	store   history.Store
	graph   graph.Repository
	gen     llm.Provider
	logger  *slog.Logger
	tracing *observability.TracerProvider
}

func (c *components) Close(ctx context.Context) {
	if c.store != nil {
		c.store.Close()
	}
	if c.repo != nil {
		c.repo.Close()
	}
	if c.graph != nil {
		c.graph.Close(ctx)
	}
	if c.tracing != nil {
		c.tracing.Shutdown(ctx)
	}
}

func buildComponents(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*components, error) {
	embedder, err := embedProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding provider: %w", err)
	}
	gen, err := buildProvider(cfg.LLM.ResolveForRole("generator"), "")
	if err != nil {
		return nil, fmt.Errorf("generation provider: %w", err)
	}

	var repo vector.Repository
	switch cfg.Vector.Backend {
	case "", "memory":
		repo = vector.NewMemory()
	case "qdrant":
		repo, err = vector.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection, cfg.Embedding.Dimensions)
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.Vector.Backend)
	}

	var store history.Store
	switch cfg.History.Backend {
	case "", "memory":
		store = history.NewMemory()
	case "sqlite":
		store, err = history.NewSQLite(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("history store: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}

	var graphRepo graph.Repository
	if cfg.Graph.URI != "" {
		graphRepo, err = neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			return nil, fmt.Errorf("provenance graph: %w", err)
		}
	} else {
		graphRepo = graph.NewMemory()
	}

	retrOpts := retriever.Options{
		TopK:     cfg.Retrieval.TopK,
		MinScore: cfg.Retrieval.MinScore,
	}
	if cfg.Retrieval.RerankEnabled {
		reranker, err := buildProvider(cfg.LLM.ResolveForRole("reranker"), "")
		if err != nil {
			return nil, fmt.Errorf("reranker provider: %w", err)
		}
		retrOpts.Reranker = retriever.NewReranker(reranker, cfg.Retrieval.RerankBlend, logger)
	}

	svc := service.New(service.Deps{
		Splitter:  chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap),
		Indexer:   vector.NewIndexer(embedder, repo, 0),
		Retriever: retriever.New(embedder, repo, retrOpts, logger),
		Generator: generator.New(gen, generator.Options{
			Persona:        cfg.Generation.Persona,
			ChainOfThought: cfg.Generation.ChainOfThought,
			ContextBudget:  cfg.Generation.ContextBudget,
			Temperature:    cfg.LLM.Temperature,
			TopP:           cfg.LLM.TopP,
			MaxTokens:      cfg.LLM.MaxTokens,
		}, logger),
		History:  store,
		Graph:    graphRepo,
		MaxTurns: cfg.History.MaxTurns,
		Logger:   logger,
	})

	if err := svc.LoadFingerprints(ctx); err != nil {
		logger.Warn("loading fingerprints", "error", err)
	}

	return &components{
		svc:    svc,
		repo:   repo,
		store:  store,
		graph:  graphRepo,
		gen:    gen,
		logger: logger,
	}, nil
}

func runServe(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log)
	ctx := context.Background()

	tracing, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:    "kiln",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Server.OTLPEndpoint,
		SampleRate:     1.0,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	comps.tracing = tracing

	var users auth.UserStore
	if cfg.History.Backend == "sqlite" && cfg.History.Path != "" {
		users, err = auth.NewSQLite(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("user store: %w", err)
		}
	} else {
		users = auth.NewMemory()
	}
	if cfg.Auth.UsersPath != "" {
		created, err := auth.SeedFromFile(ctx, users, cfg.Auth.UsersPath)
		if err != nil {
			return fmt.Errorf("seeding users: %w", err)
		}
		logger.Info("seeded users", "created", created, "path", cfg.Auth.UsersPath)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if err != nil {
		return fmt.Errorf("token manager: %w", err)
	}

	var audit *observability.AuditLogger
	if cfg.Server.AuditPath != "" {
		audit, err = observability.NewAuditLogger(cfg.Server.AuditPath)
		if err != nil {
			return fmt.Errorf("audit log: %w", err)
		}
	}

	srv := server.New(server.Config{Addr: cfg.Server.Addr, Version: version, Audit: audit}, comps.svc, users, tokens, logger)
	srv.Health().RegisterCheck("vector_store", func(ctx context.Context) server.HealthCheck {
		if _, err := comps.repo.Count(ctx); err != nil {
			return server.HealthCheck{Status: server.HealthStatusUnhealthy, Message: err.Error()}
		}
		return server.HealthCheck{Status: server.HealthStatusHealthy}
	})
	srv.Health().RegisterCheck("provenance_graph", func(ctx context.Context) server.HealthCheck {
		if _, err := comps.graph.Documents(ctx); err != nil {
			return server.HealthCheck{Status: server.HealthStatusDegraded, Message: err.Error()}
		}
		return server.HealthCheck{Status: server.HealthStatusHealthy}
	})

	if cfg.Ingest.Dir != "" {
		summary, err := comps.svc.IngestDir(ctx, cfg.Ingest.Dir)
		if err != nil {
			return fmt.Errorf("initial ingest: %w", err)
		}
		logger.Info("corpus indexed",
			"documents", summary.Documents,
			"skipped", summary.Skipped,
			"chunks", summary.Chunks,
		)
	}

	watchCtx, cancelWatch := context.WithCancel(ctx)
	defer cancelWatch()
	if cfg.Ingest.Watch && cfg.Ingest.Dir != "" {
		watcher := ingest.NewWatcher(cfg.Ingest.Dir, 0, func(path string) {
			if _, err := comps.svc.IngestPath(watchCtx, path); err != nil {
				logger.Error("re-ingest failed", "path", path, "error", err)
			}
		}, logger)
		go func() {
			if err := watcher.Run(watchCtx); err != nil {
				logger.Error("corpus watcher stopped", "error", err)
			}
		}()
	}

	shutdown := server.NewShutdownHandler(30*time.Second, logger)
	shutdown.RegisterHook("http", 0, srv.Stop)
	shutdown.RegisterHook("watcher", 5, func(context.Context) error {
		cancelWatch()
		return nil
	})
	shutdown.RegisterHook("stores", 10, func(ctx context.Context) error {
		comps.Close(ctx)
		return audit.Close()
	})
	shutdown.Start()

	srv.Health().SetReady(true)
	if err := srv.Start(); err != nil {
		return err
	}
	shutdown.Wait()
	return nil
}

func runIngest(configPath, inputPath string, jsonReport, viaTemporal bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log)
	ctx := context.Background()

	if viaTemporal {
		return dispatchIngest(ctx, cfg, inputPath)
	}

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close(ctx)

	m := metrics.New(inputPath)

	info, err := os.Stat(inputPath)
	if err != nil {
		return err
	}
	var docs []*ingest.Document
	if info.IsDir() {
		docs, err = ingest.LoadDir(inputPath)
	} else {
		var doc *ingest.Document
		doc, err = ingest.LoadFile(inputPath)
		docs = []*ingest.Document{doc}
	}
	if err != nil {
		return err
	}

	for _, doc := range docs {
		res, err := comps.svc.IngestDocument(ctx, doc)
		if err != nil {
			m.AddError(fmt.Sprintf("%s: %v", doc.Source, err))
			continue
		}
		m.AddDocument(len(doc.Text), res.Chunks, res.Skipped)
	}
	m.Finish()

	if jsonReport {
		data, _ := m.JSON()
		fmt.Println(string(data))
	} else {
		m.PrintSummary(os.Stdout)
	}
	if len(m.Errors) > 0 {
		return fmt.Errorf("%d of %d files failed", len(m.Errors), len(docs))
	}
	return nil
}

// dispatchIngest hands the run to a Temporal worker instead of ingesting
// in-process.
func dispatchIngest(ctx context.Context, cfg *config.Config, inputPath string) error {
	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		return fmt.Errorf("temporal client: %w", err)
	}
	defer c.Close()

	run, err := c.ExecuteWorkflow(ctx, temporalclient.StartWorkflowOptions{
		TaskQueue: cfg.Temporal.TaskQueue,
	}, temporalmod.IngestWorkflow, temporalmod.IngestInput{Path: inputPath})
	if err != nil {
		return fmt.Errorf("starting workflow: %w", err)
	}
	fmt.Printf("Started ingest workflow: %s\n", run.GetID())

	var out temporalmod.IngestOutput
	if err := run.Get(ctx, &out); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}
	fmt.Printf("Ingested %d documents (%d unchanged, %d chunks)\n", out.Documents, out.Skipped, out.Chunks)
	for _, e := range out.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	return nil
}

func runQuery(configPath, sessionID, question string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log)
	ctx := context.Background()

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close(ctx)

	if cfg.Ingest.Dir != "" {
		if _, err := comps.svc.IngestDir(ctx, cfg.Ingest.Dir); err != nil {
			return fmt.Errorf("indexing corpus: %w", err)
		}
	}

	res, err := comps.svc.Ask(ctx, sessionID, question)
	if err != nil {
		return err
	}

	fmt.Println(res.Answer)
	if len(res.Hits) > 0 {
		fmt.Println("\nSources:")
		for i, hit := range res.Hits {
			doc, err := comps.svc.Provenance(ctx, hit.ChunkID)
			source := hit.DocumentID
			if err == nil {
				source = doc.Source
			}
			fmt.Printf("  [%d] %s (score %.3f)\n", i+1, source, hit.Score)
		}
	}
	fmt.Printf("\nSession: %s\n", res.SessionID)
	return nil
}

func runEval(configPath, fixturesPath, outputPath string, useJudge, jsonReport bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Log)
	ctx := context.Background()

	comps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer comps.Close(ctx)

	if cfg.Ingest.Dir != "" {
		if _, err := comps.svc.IngestDir(ctx, cfg.Ingest.Dir); err != nil {
			return fmt.Errorf("indexing corpus: %w", err)
		}
	}

	fixtures, err := eval.ReadFixtures(fixturesPath)
	if err != nil {
		return err
	}

	var judge *eval.Judge
	if useJudge {
		judgeProvider, err := buildProvider(cfg.LLM.ResolveForRole("judge"), "")
		if err != nil {
			return fmt.Errorf("judge provider: %w", err)
		}
		judge = eval.NewJudge(judgeProvider)
	}

	runner := eval.NewRunner(comps.svc, comps.gen, judge, logger)
	report, err := runner.Run(ctx, fixtures)
	if err != nil {
		return err
	}

	if outputPath != "" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("creating report file: %w", err)
		}
		defer f.Close()
		if err := report.WriteJSON(f); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
	}

	if jsonReport {
		return report.WriteJSON(os.Stdout)
	}
	report.PrintSummary(os.Stdout)
	return nil
}
