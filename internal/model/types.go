package model

import "time"

// RawItemInput is what ingestion adapters hand to the gate. Everything except
// SourceID, URL, Title and Body is optional.
type RawItemInput struct {
	SourceID    string
	ExternalID  string
	URL         string
	Title       string
	Body        string
	PublishedAt time.Time
	RawPayload  string
}

// RawItem is one ingested candidate news item prior to clustering.
//
// The canonical URL is unique across all items; ExternalID is unique within a
// source when present. Items are never deleted - the only mutation is flipping
// Processed once a signal has been derived.
type RawItem struct {
	ID          string
	SourceID    string
	ExternalID  string
	URL         string
	Title       string
	Body        string
	PublishedAt time.Time
	FetchedAt   time.Time
	Processed   bool
	Embedding   []float32
}

// Cluster groups raw items believed to describe the same event.
// Clusters are never merged after creation.
type Cluster struct {
	ID            string
	PrimaryItemID string
	CreatedAt     time.Time
}

// ClusterMember is the membership edge between a cluster and a raw item.
type ClusterMember struct {
	ClusterID  string
	ItemID     string
	Similarity float64
	AddedAt    time.Time
}

// SignalType categorizes what kind of editorial interest a cluster represents.
type SignalType string

const (
	SignalBreaking      SignalType = "breaking"
	SignalRepetition    SignalType = "repetition"
	SignalContradiction SignalType = "contradiction"
	SignalShift         SignalType = "shift"
)

// ValidSignalType reports whether t is one of the known signal types.
func ValidSignalType(t SignalType) bool {
	switch t {
	case SignalBreaking, SignalRepetition, SignalContradiction, SignalShift:
		return true
	}
	return false
}

// SignalStatus is the signal lifecycle state.
//
// pending → approved (approval rule match)
// pending → archived (archive rule match)
// pending → flagged  (explicit action)
//
// approved, archived and flagged are terminal for the automated pipeline.
type SignalStatus string

const (
	StatusPending  SignalStatus = "pending"
	StatusApproved SignalStatus = "approved"
	StatusFlagged  SignalStatus = "flagged"
	StatusArchived SignalStatus = "archived"
)

// Signal is the scored, typed unit of editorial interest derived from a cluster.
// At most one signal exists per cluster.
type Signal struct {
	ID           string
	ClusterID    string
	Type         SignalType
	Confidence   int // 0-100
	Significance int // 0-100
	Status       SignalStatus
	Notes        string
	TokensUsed   int // running AI token total, for budget accounting
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Article is draft or published content, optionally tied to a signal.
// IsDraft transitions true→false exactly once, via publishing evaluation.
type Article struct {
	ID          string
	SignalID    string
	Title       string
	Body        string
	IsDraft     bool
	CreatedAt   time.Time
	PublishedAt time.Time
}

// WorkflowStats aggregates one automation cycle. Produced fresh each cycle
// and persisted only as log records.
type WorkflowStats struct {
	RunID       string
	StartedAt   time.Time
	Duration    time.Duration
	Ingested    int
	Processed   int
	Approved    int
	Flagged     int
	Synthesized int
	Published   int
	Distributed int
	Errors      []string
}

// LogEntry is one row of the append-only pipeline audit log.
type LogEntry struct {
	ID        int64
	RunID     string
	Stage     string // "ingest", "triage", "decision", ...
	Outcome   string // "admitted", "skipped", "failed", ...
	Reason    string
	ItemRef   string // id of the raw item / signal / article involved
	CreatedAt time.Time
}

// PhaseRecord captures one phase execution inside a cycle.
type PhaseRecord struct {
	ID        int64
	RunID     string
	Phase     string
	Status    string // "ok" or "error"
	Detail    string
	Duration  time.Duration
	StartedAt time.Time
}
