// Signaldesk - automated news signal pipeline
//
// Architecture overview:
//   Model (internal/model)       - SQLite store, source of truth
//   Ingest (internal/feeds, internal/ingest) - feed collection and admission
//   Cluster (internal/cluster)   - event clustering by embedding similarity
//   Triage (internal/triage)     - AI classification and scoring
//   Decide (internal/decision)   - rule-driven approval and publishing
//   Workflow (internal/workflow) - five-phase cycle orchestration
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/abelbrown/signaldesk/internal/brain"
	"github.com/abelbrown/signaldesk/internal/budget"
	"github.com/abelbrown/signaldesk/internal/cluster"
	"github.com/abelbrown/signaldesk/internal/config"
	"github.com/abelbrown/signaldesk/internal/decision"
	"github.com/abelbrown/signaldesk/internal/embed"
	"github.com/abelbrown/signaldesk/internal/feeds"
	"github.com/abelbrown/signaldesk/internal/ingest"
	"github.com/abelbrown/signaldesk/internal/logging"
	"github.com/abelbrown/signaldesk/internal/model"
	"github.com/abelbrown/signaldesk/internal/triage"
	"github.com/abelbrown/signaldesk/internal/workflow"

	"github.com/google/uuid"
)

func main() {
	var (
		once       = flag.Bool("once", false, "run one collection and cycle, then exit")
		dbPath     = flag.String("db", "", "database path (default ~/.signaldesk/signaldesk.db)")
		configPath = flag.String("config", "", "config path (default ~/.signaldesk/config.json)")
		rulesPath  = flag.String("rules", "", "decision rules YAML (default built-in rules)")
		console    = flag.Bool("console", false, "log to stderr instead of the log file")
	)
	flag.Parse()

	if *console {
		logging.InitConsole()
	} else if err := logging.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logging: %v\n", err)
	}
	defer logging.Close()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fatal("Failed to load config: %v", err)
	}

	store, err := openStore(*dbPath)
	if err != nil {
		fatal("Failed to initialize store: %v", err)
	}
	defer store.Close()

	if *rulesPath == "" {
		*rulesPath = cfg.RulesFile
	}
	rules, err := decision.LoadRules(*rulesPath)
	if err != nil {
		fatal("Failed to load rules: %v", err)
	}

	providers := buildProviders(cfg)
	logging.Info("providers configured", "available", providers.ListAvailable())

	guard := budget.New(cfg.Budget.MaxCalls, cfg.Budget.MaxTokens, cfg.Budget.CallsPerMinute)

	gate := ingest.NewGate(store)
	collector := feeds.NewCollector(gate, buildSources(cfg))

	clusterEngine := cluster.NewEngine(store, buildEmbedder(cfg), cluster.Config{
		AutoMatchThreshold: cfg.Pipeline.SimilarityAutoMatch,
		CandidateThreshold: cfg.Pipeline.SimilarityCandidate,
		Window:             time.Duration(cfg.Pipeline.WindowHours) * time.Hour,
		CandidateLimit:     cfg.Pipeline.CandidateLimit,
		MaxClusterSize:     cfg.Pipeline.MaxClusterSize,
		Enabled:            cfg.Pipeline.ClusteringEnabled,
	})

	orch := workflow.New(store,
		clusterEngine,
		triage.NewAnalyzer(store, providers, guard),
		decision.NewEngine(store, rules),
		workflow.NewBrainSynthesizer(store, providers, guard),
		workflow.NoopDistributor{},
		workflow.Config{
			BatchSize:      cfg.Pipeline.BatchSize,
			AutoPublish:    cfg.Pipeline.AutoPublish,
			AutoDistribute: cfg.Pipeline.AutoDistribute,
		})

	runner := &pipelineRunner{collector: collector, orch: orch, guard: guard}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *once {
		stats := runner.RunCycle(ctx)
		if len(stats.Errors) > 0 {
			for _, e := range stats.Errors {
				fmt.Fprintf(os.Stderr, "error: %s\n", e)
			}
			os.Exit(1)
		}
		return
	}

	interval := time.Duration(cfg.Pipeline.IntervalMinutes) * time.Minute
	workflow.NewScheduler(runner, interval).Run(ctx)
}

// pipelineRunner collects feeds, resets the per-cycle budget, then runs the
// orchestrator cycle.
type pipelineRunner struct {
	collector *feeds.Collector
	orch      *workflow.Orchestrator
	guard     *budget.Guard
}

func (r *pipelineRunner) RunCycle(ctx context.Context) model.WorkflowStats {
	r.collector.Collect(ctx, uuid.NewString())
	r.guard.Reset()
	return r.orch.RunCycle(ctx)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

func openStore(path string) (*model.Store, error) {
	if path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir := filepath.Join(homeDir, ".signaldesk")
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		path = filepath.Join(dataDir, "signaldesk.db")
	}

	store, err := model.Open(path)
	if err != nil {
		return nil, err
	}
	logging.Info("store initialized", "path", path)
	return store, nil
}

func buildProviders(cfg *config.Config) *brain.ProviderManager {
	pm := brain.NewProviderManager()

	type candidate struct {
		name     string
		priority int
		provider brain.Provider
	}
	var candidates []candidate
	if cfg.Models.Claude.Enabled && cfg.Models.Claude.APIKey != "" {
		candidates = append(candidates, candidate{"claude", cfg.Models.Claude.Priority,
			brain.NewClaudeProvider(cfg.Models.Claude.APIKey, cfg.Models.Claude.Model)})
	}
	if cfg.Models.OpenAI.Enabled && cfg.Models.OpenAI.APIKey != "" {
		candidates = append(candidates, candidate{"openai", cfg.Models.OpenAI.Priority,
			brain.NewOpenAIProvider(cfg.Models.OpenAI.APIKey, cfg.Models.OpenAI.Model)})
	}
	if cfg.Models.Ollama.Enabled {
		candidates = append(candidates, candidate{"ollama", cfg.Models.Ollama.Priority,
			brain.NewOllamaProvider(cfg.Models.Ollama.Endpoint, cfg.Models.Ollama.Model)})
	}

	best := ""
	bestPriority := 0
	for _, c := range candidates {
		pm.AddProvider(c.provider)
		if best == "" || c.priority < bestPriority {
			best = c.name
			bestPriority = c.priority
		}
	}
	if best != "" {
		pm.SetPreferred(best)
	}
	return pm
}

// buildEmbedder prefers the local Ollama endpoint and falls back to the
// OpenAI embeddings API when a key is configured.
func buildEmbedder(cfg *config.Config) embed.Embedder {
	ollama := embed.NewOllamaEmbedder(cfg.Embedding.Endpoint, cfg.Embedding.Model)
	if ollama.Available() {
		logging.Info("using ollama embedder", "endpoint", cfg.Embedding.Endpoint, "model", cfg.Embedding.Model)
		return ollama
	}
	if cfg.Models.OpenAI.APIKey != "" {
		logging.Info("using openai embedder")
		return embed.NewOpenAIEmbedder("", cfg.Models.OpenAI.APIKey, "")
	}
	logging.Warn("no embedder available, every item will start its own cluster")
	return nil
}

func buildSources(cfg *config.Config) []feeds.Source {
	var sources []feeds.Source
	for _, u := range cfg.Feeds {
		sources = append(sources, feeds.NewRSS("", u))
	}
	logging.Info("sources configured", "count", len(sources))
	return sources
}

func fatal(format string, args ...interface{}) {
	logging.Error(fmt.Sprintf(format, args...))
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
