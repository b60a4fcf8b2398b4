package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	temporalclient "go.temporal.io/sdk/client"

	"github.com/efebarandurmaz/kiln/internal/chunker"
	"github.com/efebarandurmaz/kiln/internal/config"
	"github.com/efebarandurmaz/kiln/internal/generator"
	"github.com/efebarandurmaz/kiln/internal/graph"
	"github.com/efebarandurmaz/kiln/internal/graph/neo4j"
	"github.com/efebarandurmaz/kiln/internal/llm"
	"github.com/efebarandurmaz/kiln/internal/llmutil"
	"github.com/efebarandurmaz/kiln/internal/retriever"
	"github.com/efebarandurmaz/kiln/internal/service"
	temporalmod "github.com/efebarandurmaz/kiln/internal/temporal"
	"github.com/efebarandurmaz/kiln/internal/vector"
)

func main() {
	configPath := "configs/kiln.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.LoadWithSecrets(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ctx := context.Background()

	factory := llm.NewFactory()
	llmutil.RegisterDefaultProviders(factory)

	embedder, err := newProvider(factory, config.LLMConfig{
		Provider: cfg.Embedding.Provider,
		Model:    cfg.Embedding.Model,
		APIKey:   cfg.Embedding.APIKey,
		BaseURL:  cfg.Embedding.BaseURL,
	}, cfg.Embedding.Model)
	if err != nil {
		log.Fatalf("embedding provider: %v", err)
	}
	gen, err := newProvider(factory, cfg.LLM.ResolveForRole("generator"), "")
	if err != nil {
		log.Fatalf("generation provider: %v", err)
	}

	var repo vector.Repository
	if cfg.Vector.Backend == "qdrant" {
		repo, err = vector.NewQdrant(ctx, cfg.Vector.Host, cfg.Vector.Port, cfg.Vector.Collection, cfg.Embedding.Dimensions)
		if err != nil {
			log.Fatalf("qdrant: %v", err)
		}
	} else {
		repo = vector.NewMemory()
	}
	defer repo.Close()

	var graphRepo graph.Repository
	if cfg.Graph.URI != "" {
		graphRepo, err = neo4j.New(ctx, cfg.Graph.URI, cfg.Graph.Username, cfg.Graph.Password)
		if err != nil {
			log.Fatalf("provenance graph: %v", err)
		}
		defer graphRepo.Close(ctx)
	} else {
		graphRepo = graph.NewMemory()
	}

	svc := service.New(service.Deps{
		Splitter:  chunker.New(cfg.Chunking.Size, cfg.Chunking.Overlap),
		Indexer:   vector.NewIndexer(embedder, repo, 0),
		Retriever: retriever.New(embedder, repo, retriever.Options{TopK: cfg.Retrieval.TopK}, nil),
		Generator: generator.New(gen, generator.Options{
			Persona:        cfg.Generation.Persona,
			ChainOfThought: cfg.Generation.ChainOfThought,
			ContextBudget:  cfg.Generation.ContextBudget,
			Temperature:    cfg.LLM.Temperature,
			TopP:           cfg.LLM.TopP,
			MaxTokens:      cfg.LLM.MaxTokens,
		}, nil),
		Graph:     graphRepo,
	})
	if err := svc.LoadFingerprints(ctx); err != nil {
		log.Printf("loading fingerprints: %v", err)
	}

	temporalmod.SetDependencies(&temporalmod.Dependencies{Service: svc})

	c, err := temporalclient.Dial(temporalclient.Options{
		HostPort:  cfg.Temporal.Host,
		Namespace: cfg.Temporal.Namespace,
	})
	if err != nil {
		log.Fatalf("temporal client: %v", err)
	}
	defer c.Close()

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	fmt.Printf("Worker started on task queue: %s\n", cfg.Temporal.TaskQueue)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	w.Stop()
	fmt.Println("Worker stopped")
}

func newProvider(factory *llm.Factory, llmCfg config.LLMConfig, embedModel string) (llm.Provider, error) {
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
