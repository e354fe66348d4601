// Package ingest validates and deduplicates raw items entering the pipeline.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/signaldesk/internal/logging"
	"github.com/abelbrown/signaldesk/internal/model"
)

// MinBodyLength is the quality floor for admission. Items with less body
// text than this carry too little signal to cluster or classify.
const MinBodyLength = 100

// Outcome classifies the result of one admission attempt.
type Outcome string

const (
	OutcomeAdmitted Outcome = "admitted"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// Result reports what happened to one item at the gate.
type Result struct {
	Outcome   Outcome
	RawItemID string // Set only when admitted
	Reason    string // Set for skips and failures
}

// Gate admits raw items into the store, rejecting short, untitled and
// duplicate items. Skips are expected outcomes, not errors.
type Gate struct {
	store *model.Store
}

// NewGate creates an ingestion gate backed by the given store.
func NewGate(store *model.Store) *Gate {
	return &Gate{store: store}
}

// Admit validates one item and persists it if it passes. Every outcome is
// appended to the pipeline log under runID.
func (g *Gate) Admit(ctx context.Context, runID string, input model.RawItemInput) Result {
	if err := ctx.Err(); err != nil {
		return g.record(runID, input, Result{Outcome: OutcomeFailed, Reason: err.Error()})
	}

	if strings.TrimSpace(input.Title) == "" {
		return g.record(runID, input, Result{Outcome: OutcomeSkipped, Reason: "empty title"})
	}
	if len(input.Body) < MinBodyLength {
		return g.record(runID, input, Result{Outcome: OutcomeSkipped, Reason: "too short"})
	}

	item := model.RawItem{
		ID:          uuid.NewString(),
		SourceID:    input.SourceID,
		ExternalID:  input.ExternalID,
		URL:         input.URL,
		Title:       input.Title,
		Body:        input.Body,
		PublishedAt: input.PublishedAt,
		FetchedAt:   time.Now().UTC(),
	}

	// Uniqueness on URL and (source, external id) is enforced by the
	// insert itself, so two concurrent admissions of the same item
	// cannot both land.
	inserted, err := g.store.InsertRawItem(item)
	if err != nil {
		return g.record(runID, input, Result{Outcome: OutcomeFailed, Reason: err.Error()})
	}
	if !inserted {
		return g.record(runID, input, Result{Outcome: OutcomeSkipped, Reason: "duplicate"})
	}

	return g.record(runID, input, Result{Outcome: OutcomeAdmitted, RawItemID: item.ID})
}

func (g *Gate) record(runID string, input model.RawItemInput, res Result) Result {
	ref := res.RawItemID
	if ref == "" {
		ref = input.URL
	}
	entry := model.LogEntry{
		RunID:   runID,
		Stage:   "ingest",
		Outcome: string(res.Outcome),
		Reason:  res.Reason,
		ItemRef: ref,
	}
	if err := g.store.AppendLog(entry); err != nil {
		logging.Warn("failed to log admission", "url", input.URL, "error", err)
	}

	switch res.Outcome {
	case OutcomeAdmitted:
		logging.Debug("item admitted", "id", res.RawItemID, "url", input.URL)
	case OutcomeSkipped:
		logging.Debug("item skipped", "url", input.URL, "reason", res.Reason)
	case OutcomeFailed:
		logging.Error("admission failed", "url", input.URL, "reason", res.Reason)
	}
	return res
}
