// Package cluster groups raw items into event clusters by semantic
// similarity over a recent time window.
package cluster

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/abelbrown/signaldesk/internal/embed"
	"github.com/abelbrown/signaldesk/internal/logging"
	"github.com/abelbrown/signaldesk/internal/model"
)

// bodyExcerptLength bounds how much body text feeds the embedding. Titles
// plus the lede carry most of the event identity.
const bodyExcerptLength = 800

// Config tunes assignment behavior.
type Config struct {
	// AutoMatchThreshold and CandidateThreshold are cosine similarity
	// floors. At or above candidate the item joins the best cluster,
	// at or above auto-match the join needs no review.
	AutoMatchThreshold float64
	CandidateThreshold float64

	// Window is how far back to search for candidate clusters.
	Window time.Duration

	// CandidateLimit caps how many recent clusters are compared.
	CandidateLimit int

	// MaxClusterSize stops cluster growth. Full clusters are skipped
	// during candidate search.
	MaxClusterSize int

	// Enabled false bypasses similarity search entirely and gives every
	// item its own cluster.
	Enabled bool
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{
		AutoMatchThreshold: 0.85,
		CandidateThreshold: 0.70,
		Window:             24 * time.Hour,
		CandidateLimit:     50,
		MaxClusterSize:     10,
		Enabled:            true,
	}
}

// Assignment reports where an item landed.
type Assignment struct {
	ClusterID  string
	SignalID   string // Set only when a new cluster (and signal) was created
	Created    bool
	Similarity float64
}

// Engine assigns raw items to clusters. Primary-item embeddings are cached
// in-process with a TTL equal to the search window, so an entry expires as
// its cluster ages out of candidacy.
type Engine struct {
	store    *model.Store
	embedder embed.Embedder
	cache    *expirable.LRU[string, []float32]
	cfg      Config
}

// NewEngine creates a clustering engine.
func NewEngine(store *model.Store, embedder embed.Embedder, cfg Config) *Engine {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 50
	}
	if cfg.MaxClusterSize <= 0 {
		cfg.MaxClusterSize = 10
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		cache:    expirable.NewLRU[string, []float32](cfg.CandidateLimit*2, nil, cfg.Window),
		cfg:      cfg,
	}
}

// Assign places an item into the best matching recent cluster, or creates a
// new cluster with the item as primary. A new cluster is created with a
// pending signal in the same transaction.
func (e *Engine) Assign(ctx context.Context, item model.RawItem) (Assignment, error) {
	embedding := e.embedItem(ctx, item)
	if embedding != nil {
		if err := e.store.SaveItemEmbedding(item.ID, embedding); err != nil {
			logging.Warn("failed to persist embedding", "item", item.ID, "error", err)
		}
	}

	if e.cfg.Enabled && embedding != nil {
		best, bestSim, err := e.findBestCluster(item.ID, embedding)
		if err != nil {
			return Assignment{}, err
		}
		if best != "" && bestSim >= e.cfg.CandidateThreshold {
			member := model.ClusterMember{
				ClusterID:  best,
				ItemID:     item.ID,
				Similarity: bestSim,
				AddedAt:    time.Now().UTC(),
			}
			if err := e.store.AddClusterMember(member); err != nil {
				return Assignment{}, fmt.Errorf("failed to join cluster: %w", err)
			}
			logging.Debug("item joined cluster",
				"item", item.ID, "cluster", best,
				"similarity", bestSim, "auto", bestSim >= e.cfg.AutoMatchThreshold)
			return Assignment{ClusterID: best, Similarity: bestSim}, nil
		}
	}

	return e.createCluster(item, embedding)
}

// embedItem computes the item's embedding, failing soft to nil so an
// embedding outage degrades to one-item clusters instead of halting ingest.
func (e *Engine) embedItem(ctx context.Context, item model.RawItem) []float32 {
	if e.embedder == nil {
		return nil
	}
	embedding, err := e.embedder.Embed(ctx, item.Title+"\n"+excerpt(item.Body, bodyExcerptLength))
	if err != nil {
		logging.Warn("embedding failed", "item", item.ID, "error", err)
		return nil
	}
	return embedding
}

// findBestCluster scans recent clusters newest-first for the highest
// similarity against each cluster's primary-item embedding. Strict greater-
// than comparison means ties go to the first (newest) cluster seen.
func (e *Engine) findBestCluster(itemID string, embedding []float32) (string, float64, error) {
	since := time.Now().UTC().Add(-e.cfg.Window)
	candidates, err := e.store.RecentClusters(since, e.cfg.CandidateLimit)
	if err != nil {
		return "", 0, fmt.Errorf("failed to load candidate clusters: %w", err)
	}

	var bestID string
	var bestSim float64
	for _, c := range candidates {
		count, err := e.store.ClusterMemberCount(c.ID)
		if err != nil {
			logging.Warn("failed to count cluster members", "cluster", c.ID, "error", err)
			continue
		}
		if count >= e.cfg.MaxClusterSize {
			continue
		}

		primary := e.primaryEmbedding(c)
		if primary == nil {
			continue
		}

		sim := embed.CosineSimilarity(embedding, primary)
		if sim > bestSim {
			bestID = c.ID
			bestSim = sim
		}
	}

	return bestID, bestSim, nil
}

// excerpt truncates s to at most max bytes, backing up so the cut never
// splits a multibyte rune.
func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// primaryEmbedding returns the cluster's primary-item embedding, from cache
// when possible.
func (e *Engine) primaryEmbedding(c model.Cluster) []float32 {
	if cached, ok := e.cache.Get(c.ID); ok {
		return cached
	}
	embedding, err := e.store.ItemEmbedding(c.PrimaryItemID)
	if err != nil {
		logging.Warn("failed to load primary embedding", "cluster", c.ID, "error", err)
		return nil
	}
	if embedding != nil {
		e.cache.Add(c.ID, embedding)
	}
	return embedding
}

func (e *Engine) createCluster(item model.RawItem, embedding []float32) (Assignment, error) {
	now := time.Now().UTC()
	c := model.Cluster{
		ID:            uuid.NewString(),
		PrimaryItemID: item.ID,
		CreatedAt:     now,
	}
	member := model.ClusterMember{
		ClusterID:  c.ID,
		ItemID:     item.ID,
		Similarity: 1.0,
		AddedAt:    now,
	}
	sig := model.Signal{
		ID:        uuid.NewString(),
		ClusterID: c.ID,
		Status:    model.StatusPending,
		CreatedAt: now,
	}
	if err := e.store.CreateClusterWithSignal(c, member, sig); err != nil {
		return Assignment{}, fmt.Errorf("failed to create cluster: %w", err)
	}

	if embedding != nil {
		e.cache.Add(c.ID, embedding)
	}

	logging.Debug("cluster created", "cluster", c.ID, "primary", item.ID)
	return Assignment{ClusterID: c.ID, SignalID: sig.ID, Created: true, Similarity: 1.0}, nil
}
