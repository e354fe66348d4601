// Package workflow drives the five-phase automation cycle:
// ingest, approve, synthesize, publish, distribute.
package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/signaldesk/internal/cluster"
	"github.com/abelbrown/signaldesk/internal/decision"
	"github.com/abelbrown/signaldesk/internal/logging"
	"github.com/abelbrown/signaldesk/internal/model"
	"github.com/abelbrown/signaldesk/internal/triage"
)

// Assigner places a raw item into a cluster.
type Assigner interface {
	Assign(ctx context.Context, item model.RawItem) (cluster.Assignment, error)
}

// Analyzer classifies and scores a signal.
type Analyzer interface {
	Analyze(ctx context.Context, signalID string) (triage.Result, error)
}

// Decider evaluates approval and publishing rules.
type Decider interface {
	EvaluateApprovals() (decision.ApprovalOutcome, error)
	EvaluatePublishing() (decision.PublishOutcome, error)
}

// Synthesizer produces article content for an approved signal. The returned
// article needs only Title and Body set; the orchestrator fills in identity
// and draft state.
type Synthesizer interface {
	Synthesize(ctx context.Context, sig model.Signal) (model.Article, error)
}

// Distributor pushes a published article outward and reports how many
// destinations received it.
type Distributor interface {
	Distribute(ctx context.Context, article model.Article) (int, error)
}

// Config tunes the cycle.
type Config struct {
	// BatchSize bounds how many unprocessed items one cycle ingests.
	BatchSize      int
	AutoPublish    bool
	AutoDistribute bool
}

// Orchestrator runs cycles. It assumes at most one cycle in flight; the
// scheduler runs cycles sequentially and never overlaps them.
type Orchestrator struct {
	store       *model.Store
	assigner    Assigner
	analyzer    Analyzer
	decider     Decider
	synthesizer Synthesizer
	distributor Distributor
	cfg         Config
}

// New creates an orchestrator. Synthesizer and distributor may be nil, which
// disables their phases.
func New(store *model.Store, assigner Assigner, analyzer Analyzer, decider Decider,
	synthesizer Synthesizer, distributor Distributor, cfg Config) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Orchestrator{
		store:       store,
		assigner:    assigner,
		analyzer:    analyzer,
		decider:     decider,
		synthesizer: synthesizer,
		distributor: distributor,
		cfg:         cfg,
	}
}

// RunCycle executes the five phases in order under a fresh run id. A panic
// in any phase aborts the remainder of the cycle but is caught here, so a
// bad cycle never takes down the scheduler. Items in flight stay in their
// prior state and are retried next cycle.
func (o *Orchestrator) RunCycle(ctx context.Context) (stats model.WorkflowStats) {
	stats.RunID = uuid.NewString()
	stats.StartedAt = time.Now().UTC()
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		if r := recover(); r != nil {
			msg := fmt.Sprintf("cycle aborted: %v", r)
			stats.Errors = append(stats.Errors, msg)
			logging.Error("cycle panicked", "run", stats.RunID, "panic", r)
		}
		logging.Info("cycle finished",
			"run", stats.RunID,
			"duration", stats.Duration,
			"ingested", stats.Ingested,
			"approved", stats.Approved,
			"synthesized", stats.Synthesized,
			"published", stats.Published,
			"errors", len(stats.Errors))
	}()

	logging.Info("cycle starting", "run", stats.RunID)

	o.runPhase(stats.RunID, "ingest", &stats, func() error {
		return o.ingestPhase(ctx, &stats)
	})
	o.runPhase(stats.RunID, "approve", &stats, func() error {
		return o.approvePhase(&stats)
	})
	o.runPhase(stats.RunID, "synthesize", &stats, func() error {
		return o.synthesizePhase(ctx, &stats)
	})
	o.runPhase(stats.RunID, "publish", &stats, func() error {
		return o.publishPhase(&stats)
	})
	o.runPhase(stats.RunID, "distribute", &stats, func() error {
		return o.distributePhase(ctx, &stats)
	})

	return stats
}

// runPhase times one phase and records its outcome in the phase history.
// Phase errors land in the cycle error list. A panicking phase still gets
// its history row, with status error, before the panic continues up to
// RunCycle.
func (o *Orchestrator) runPhase(runID, name string, stats *model.WorkflowStats, fn func() error) {
	started := time.Now().UTC()
	rec := model.PhaseRecord{
		RunID:     runID,
		Phase:     name,
		Status:    "ok",
		StartedAt: started,
	}

	defer func() {
		r := recover()
		rec.Duration = time.Since(started)
		if r != nil {
			rec.Status = "error"
			rec.Detail = fmt.Sprintf("panic: %v", r)
		}
		if recErr := o.store.RecordPhase(rec); recErr != nil {
			logging.Warn("failed to record phase", "phase", name, "error", recErr)
		}
		if r != nil {
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		rec.Status = "error"
		rec.Detail = err.Error()
		stats.Errors = append(stats.Errors, fmt.Sprintf("%s: %v", name, err))
		logging.Error("phase failed", "run", runID, "phase", name, "error", err)
	}
}

// ingestPhase pulls a batch of unprocessed items, clusters each one and
// analyzes any newly created signal. An item whose assignment fails stays
// unprocessed and is retried next cycle; it has no cluster or signal yet, so
// marking it would drop it for good. Once assigned, the item is marked
// processed regardless of analysis outcome so a persistently failing
// analysis cannot wedge the queue.
func (o *Orchestrator) ingestPhase(ctx context.Context, stats *model.WorkflowStats) error {
	items, err := o.store.UnprocessedRawItems(o.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to load unprocessed items: %w", err)
	}
	stats.Ingested = len(items)

	for _, item := range items {
		assignment, err := o.assigner.Assign(ctx, item)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("assign %s: %v", item.ID, err))
			continue
		}
		if assignment.Created && assignment.SignalID != "" && o.analyzer != nil {
			if _, err := o.analyzer.Analyze(ctx, assignment.SignalID); err != nil {
				stats.Errors = append(stats.Errors, fmt.Sprintf("analyze %s: %v", assignment.SignalID, err))
			}
		}

		if err := o.store.MarkProcessed(item.ID); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("mark processed %s: %v", item.ID, err))
			continue
		}
		stats.Processed++
	}
	return nil
}

func (o *Orchestrator) approvePhase(stats *model.WorkflowStats) error {
	out, err := o.decider.EvaluateApprovals()
	if err != nil {
		return err
	}
	stats.Approved = out.Approved
	stats.Flagged = out.Flagged
	stats.Errors = append(stats.Errors, out.Errors...)
	return nil
}

// synthesizePhase drafts an article for every approved signal that has none.
// Synthesis errors are per-signal; the signal stays eligible next cycle.
func (o *Orchestrator) synthesizePhase(ctx context.Context, stats *model.WorkflowStats) error {
	if o.synthesizer == nil {
		return nil
	}

	signals, err := o.store.ApprovedSignalsWithoutArticle()
	if err != nil {
		return fmt.Errorf("failed to load approved signals: %w", err)
	}

	for _, sig := range signals {
		article, err := o.synthesizer.Synthesize(ctx, sig)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("synthesize %s: %v", sig.ID, err))
			continue
		}
		article.ID = uuid.NewString()
		article.SignalID = sig.ID
		article.IsDraft = true
		article.CreatedAt = time.Now().UTC()
		if err := o.store.CreateArticle(article); err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("save article for %s: %v", sig.ID, err))
			continue
		}
		stats.Synthesized++
	}
	return nil
}

func (o *Orchestrator) publishPhase(stats *model.WorkflowStats) error {
	if !o.cfg.AutoPublish {
		return nil
	}
	out, err := o.decider.EvaluatePublishing()
	if err != nil {
		return err
	}
	stats.Published = out.Published
	stats.Errors = append(stats.Errors, out.Errors...)
	return nil
}

// distributePhase pushes articles published during this cycle. Disabled by
// default; the stock distributor is a no-op placeholder.
func (o *Orchestrator) distributePhase(ctx context.Context, stats *model.WorkflowStats) error {
	if !o.cfg.AutoDistribute || o.distributor == nil {
		return nil
	}

	articles, err := o.store.PublishedSince(stats.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to load published articles: %w", err)
	}

	for _, article := range articles {
		count, err := o.distributor.Distribute(ctx, article)
		if err != nil {
			stats.Errors = append(stats.Errors, fmt.Sprintf("distribute %s: %v", article.ID, err))
			continue
		}
		stats.Distributed += count
	}
	return nil
}
