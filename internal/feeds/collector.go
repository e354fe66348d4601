package feeds

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/signaldesk/internal/ingest"
	"github.com/abelbrown/signaldesk/internal/logging"
	"github.com/abelbrown/signaldesk/internal/model"
)

// fetchTimeout bounds each individual source fetch.
const fetchTimeout = 30 * time.Second

// maxConcurrentFetches limits parallel fetch operations.
const maxConcurrentFetches = 5

// CollectStats summarizes one collection pass.
type CollectStats struct {
	Fetched  int
	Admitted int
	Skipped  int
	Failed   int
}

// Collector fetches all sources in parallel and pushes every item through
// the ingestion gate. Sources are immutable after construction.
type Collector struct {
	gate    *ingest.Gate
	sources []Source
}

// NewCollector creates a collector.
func NewCollector(gate *ingest.Gate, sources []Source) *Collector {
	return &Collector{gate: gate, sources: sources}
}

// Collect runs one pass over all sources. A failing source is logged and
// skipped; the rest still contribute. Admission outcomes are tallied, not
// treated as errors.
func (c *Collector) Collect(ctx context.Context, runID string) CollectStats {
	results := make([][]model.RawItemInput, len(c.sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFetches)
	for i, src := range c.sources {
		g.Go(func() error {
			fctx, cancel := context.WithTimeout(gctx, fetchTimeout)
			defer cancel()

			items, err := src.Fetch(fctx)
			if err != nil {
				logging.Warn("source fetch failed", "source", src.Name(), "error", err)
				return nil
			}
			logging.Debug("source fetched", "source", src.Name(), "items", len(items))
			results[i] = items
			return nil
		})
	}
	g.Wait()

	// Admission is serialized so log ordering stays readable
	var stats CollectStats
	for _, items := range results {
		for _, item := range items {
			stats.Fetched++
			switch res := c.gate.Admit(ctx, runID, item); res.Outcome {
			case ingest.OutcomeAdmitted:
				stats.Admitted++
			case ingest.OutcomeSkipped:
				stats.Skipped++
			case ingest.OutcomeFailed:
				stats.Failed++
			}
		}
	}

	logging.Info("collection finished",
		"run", runID,
		"fetched", stats.Fetched,
		"admitted", stats.Admitted,
		"skipped", stats.Skipped,
		"failed", stats.Failed)
	return stats
}
