package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/signaldesk/internal/cluster"
	"github.com/abelbrown/signaldesk/internal/decision"
	"github.com/abelbrown/signaldesk/internal/model"
	"github.com/abelbrown/signaldesk/internal/triage"
)

// passingAnalyzer stamps every signal with scores that satisfy the default
// approval rules.
type passingAnalyzer struct {
	store *model.Store
	err   error
	calls int
}

func (a *passingAnalyzer) Analyze(ctx context.Context, signalID string) (triage.Result, error) {
	a.calls++
	if a.err != nil {
		return triage.Result{}, a.err
	}
	if err := a.store.UpdateSignalAnalysis(signalID, model.SignalBreaking, 90, 80, "notes", 50); err != nil {
		return triage.Result{}, err
	}
	return triage.Result{SignalID: signalID, Type: model.SignalBreaking, Confidence: 90, Significance: 80}, nil
}

type fakeSynthesizer struct {
	err   error
	calls int
}

func (f *fakeSynthesizer) Synthesize(ctx context.Context, sig model.Signal) (model.Article, error) {
	f.calls++
	if f.err != nil {
		return model.Article{}, f.err
	}
	return model.Article{Title: "Brief: " + sig.ID, Body: "body"}, nil
}

type countingDistributor struct {
	calls int
}

func (d *countingDistributor) Distribute(ctx context.Context, article model.Article) (int, error) {
	d.calls++
	return 3, nil
}

// failingAssigner simulates a clustering outage where no cluster is created.
type failingAssigner struct{}

func (failingAssigner) Assign(ctx context.Context, item model.RawItem) (cluster.Assignment, error) {
	return cluster.Assignment{}, fmt.Errorf("store unavailable")
}

// panickingDecider simulates an unexpected fault inside a phase.
type panickingDecider struct{}

func (panickingDecider) EvaluateApprovals() (decision.ApprovalOutcome, error) {
	panic("decider exploded")
}

func (panickingDecider) EvaluatePublishing() (decision.PublishOutcome, error) {
	return decision.PublishOutcome{}, nil
}

func openTestStore(t *testing.T) *model.Store {
	t.Helper()
	s, err := model.Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertUnprocessed(t *testing.T, s *model.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		item := model.RawItem{
			ID:        fmt.Sprintf("item-%d", i),
			SourceID:  "src-1",
			URL:       fmt.Sprintf("https://example.com/%d", i),
			Title:     fmt.Sprintf("Story %d", i),
			Body:      strings.Repeat("x", 200),
			FetchedAt: time.Now().UTC(),
		}
		if _, err := s.InsertRawItem(item); err != nil {
			t.Fatalf("InsertRawItem failed: %v", err)
		}
	}
}

// newOrchestrator wires a full pipeline with a nil embedder, so every item
// gets its own cluster.
func newOrchestrator(t *testing.T, s *model.Store, syn Synthesizer, dist Distributor, cfg Config) (*Orchestrator, *passingAnalyzer) {
	t.Helper()
	assigner := cluster.NewEngine(s, nil, cluster.DefaultConfig())
	analyzer := &passingAnalyzer{store: s}
	decider := decision.NewEngine(s, decision.DefaultRuleSet())
	return New(s, assigner, analyzer, decider, syn, dist, cfg), analyzer
}

func TestRunCycleEmptyBacklog(t *testing.T) {
	s := openTestStore(t)
	o, _ := newOrchestrator(t, s, &fakeSynthesizer{}, &countingDistributor{}, Config{AutoPublish: true})

	stats := o.RunCycle(context.Background())
	if stats.RunID == "" {
		t.Error("cycle should carry a run id")
	}
	if stats.Ingested != 0 || stats.Processed != 0 || stats.Approved != 0 ||
		stats.Synthesized != 0 || stats.Published != 0 || stats.Distributed != 0 {
		t.Errorf("empty backlog should zero all counters: %+v", stats)
	}
	if len(stats.Errors) != 0 {
		t.Errorf("empty backlog should produce no errors: %v", stats.Errors)
	}
}

func TestRunCycleFullPipeline(t *testing.T) {
	s := openTestStore(t)
	syn := &fakeSynthesizer{}
	dist := &countingDistributor{}
	o, analyzer := newOrchestrator(t, s, syn, dist, Config{
		BatchSize:      10,
		AutoPublish:    true,
		AutoDistribute: true,
	})

	insertUnprocessed(t, s, 3)
	stats := o.RunCycle(context.Background())

	if stats.Ingested != 3 || stats.Processed != 3 {
		t.Errorf("expected 3 ingested and processed, got %d/%d", stats.Ingested, stats.Processed)
	}
	if analyzer.calls != 3 {
		t.Errorf("expected 3 analyze calls, got %d", analyzer.calls)
	}
	if stats.Approved != 3 {
		t.Errorf("expected 3 approvals, got %d", stats.Approved)
	}
	if stats.Synthesized != 3 || syn.calls != 3 {
		t.Errorf("expected 3 synthesized, got %d (calls %d)", stats.Synthesized, syn.calls)
	}
	if stats.Published != 3 {
		t.Errorf("expected 3 published, got %d", stats.Published)
	}
	if stats.Distributed != 9 || dist.calls != 3 {
		t.Errorf("expected 9 distributed across 3 calls, got %d/%d", stats.Distributed, dist.calls)
	}
	if len(stats.Errors) != 0 {
		t.Errorf("unexpected errors: %v", stats.Errors)
	}

	items, _ := s.UnprocessedRawItems(10)
	if len(items) != 0 {
		t.Errorf("all items should be processed, %d remain", len(items))
	}
}

func TestRunCycleBatchSize(t *testing.T) {
	s := openTestStore(t)
	o, _ := newOrchestrator(t, s, nil, nil, Config{BatchSize: 2})

	insertUnprocessed(t, s, 5)
	stats := o.RunCycle(context.Background())
	if stats.Ingested != 2 {
		t.Errorf("batch size 2 should ingest 2, got %d", stats.Ingested)
	}

	items, _ := s.UnprocessedRawItems(10)
	if len(items) != 3 {
		t.Errorf("expected 3 items left, got %d", len(items))
	}
}

func TestRunCycleAnalyzerFailureStillMarksProcessed(t *testing.T) {
	s := openTestStore(t)
	assigner := cluster.NewEngine(s, nil, cluster.DefaultConfig())
	analyzer := &passingAnalyzer{store: s, err: fmt.Errorf("provider down")}
	decider := decision.NewEngine(s, decision.DefaultRuleSet())
	o := New(s, assigner, analyzer, decider, nil, nil, Config{BatchSize: 10})

	insertUnprocessed(t, s, 2)
	stats := o.RunCycle(context.Background())

	if stats.Processed != 2 {
		t.Errorf("items must be marked processed despite analyzer failure, got %d", stats.Processed)
	}
	if len(stats.Errors) != 2 {
		t.Errorf("expected 2 analyze errors, got %v", stats.Errors)
	}
	items, _ := s.UnprocessedRawItems(10)
	if len(items) != 0 {
		t.Errorf("no items should remain unprocessed, got %d", len(items))
	}
}

func TestRunCycleAssignFailureLeavesUnprocessed(t *testing.T) {
	s := openTestStore(t)
	analyzer := &passingAnalyzer{store: s}
	decider := decision.NewEngine(s, decision.DefaultRuleSet())
	o := New(s, failingAssigner{}, analyzer, decider, nil, nil, Config{BatchSize: 10})

	insertUnprocessed(t, s, 2)
	stats := o.RunCycle(context.Background())

	if stats.Processed != 0 {
		t.Errorf("failed assignments must not count as processed, got %d", stats.Processed)
	}
	if len(stats.Errors) != 2 {
		t.Errorf("expected 2 assign errors, got %v", stats.Errors)
	}

	// The items keep their unprocessed flag so the next cycle retries them;
	// marking them now would drop them without a cluster or signal.
	items, err := s.UnprocessedRawItems(10)
	if err != nil {
		t.Fatalf("UnprocessedRawItems failed: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items still unprocessed, got %d", len(items))
	}
	pending, err := s.PendingSignals()
	if err != nil {
		t.Fatalf("PendingSignals failed: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("no signals should exist after failed assignments, got %d", len(pending))
	}
	if analyzer.calls != 0 {
		t.Errorf("analyzer must not run without an assignment, got %d calls", analyzer.calls)
	}
}

func TestRunCyclePublishDisabled(t *testing.T) {
	s := openTestStore(t)
	syn := &fakeSynthesizer{}
	o, _ := newOrchestrator(t, s, syn, nil, Config{BatchSize: 10, AutoPublish: false})

	insertUnprocessed(t, s, 1)
	stats := o.RunCycle(context.Background())

	if stats.Synthesized != 1 {
		t.Fatalf("expected 1 synthesized, got %d", stats.Synthesized)
	}
	if stats.Published != 0 {
		t.Errorf("publish disabled, got %d published", stats.Published)
	}
	drafts, _ := s.DraftArticles()
	if len(drafts) != 1 {
		t.Errorf("article should remain a draft, found %d drafts", len(drafts))
	}
}

func TestRunCycleRecoversFromPanic(t *testing.T) {
	s := openTestStore(t)
	assigner := cluster.NewEngine(s, nil, cluster.DefaultConfig())
	syn := &fakeSynthesizer{}
	o := New(s, assigner, &passingAnalyzer{store: s}, panickingDecider{}, syn, nil,
		Config{BatchSize: 10, AutoPublish: true})

	insertUnprocessed(t, s, 1)

	var stats model.WorkflowStats
	func() {
		defer func() {
			if r := recover(); r != nil {
				t.Fatalf("panic escaped RunCycle: %v", r)
			}
		}()
		stats = o.RunCycle(context.Background())
	}()

	found := false
	for _, e := range stats.Errors {
		if strings.Contains(e, "decider exploded") {
			found = true
		}
	}
	if !found {
		t.Errorf("panic should be recorded in errors: %v", stats.Errors)
	}
	// Phases after the panic never ran
	if syn.calls != 0 {
		t.Error("synthesize must not run after an aborting panic")
	}

	// The aborting phase still lands in the history with an error status
	records, err := s.PhaseHistory("approve", 10)
	if err != nil {
		t.Fatalf("PhaseHistory failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 approve record, got %d", len(records))
	}
	if records[0].Status != "error" {
		t.Errorf("panicking phase should record status error, got %s", records[0].Status)
	}
	if !strings.Contains(records[0].Detail, "decider exploded") {
		t.Errorf("record detail should carry the panic value, got %q", records[0].Detail)
	}
}

func TestRunCycleRecordsPhaseHistory(t *testing.T) {
	s := openTestStore(t)
	o, _ := newOrchestrator(t, s, nil, nil, Config{})

	stats := o.RunCycle(context.Background())

	for _, phase := range []string{"ingest", "approve", "synthesize", "publish", "distribute"} {
		records, err := s.PhaseHistory(phase, 10)
		if err != nil {
			t.Fatalf("PhaseHistory failed: %v", err)
		}
		if len(records) != 1 {
			t.Errorf("expected 1 record for phase %s, got %d", phase, len(records))
			continue
		}
		if records[0].RunID != stats.RunID {
			t.Errorf("phase %s recorded under wrong run id", phase)
		}
		if records[0].Status != "ok" {
			t.Errorf("phase %s should be ok, got %s", phase, records[0].Status)
		}
	}
}

func TestSplitBrief(t *testing.T) {
	title, body := splitBrief("Headline here\n\nFirst paragraph.\nSecond paragraph.")
	if title != "Headline here" {
		t.Errorf("unexpected title: %q", title)
	}
	if !strings.HasPrefix(body, "First paragraph.") {
		t.Errorf("unexpected body: %q", body)
	}

	title, body = splitBrief("only a headline")
	if title != "only a headline" || body != "" {
		t.Errorf("single line should be title only, got %q / %q", title, body)
	}
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	s := openTestStore(t)
	o, _ := newOrchestrator(t, s, nil, nil, Config{})
	sched := NewScheduler(o, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	// The first cycle runs immediately; wait for its phase records
	deadline := time.After(5 * time.Second)
	for {
		records, err := s.PhaseHistory("ingest", 1)
		if err != nil {
			t.Fatalf("PhaseHistory failed: %v", err)
		}
		if len(records) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first cycle never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop on cancellation")
	}
}
