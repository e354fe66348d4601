package cluster

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/abelbrown/signaldesk/internal/model"
)

// fakeEmbedder returns a fixed vector per title prefix and remembers the
// last text it was asked to embed.
type fakeEmbedder struct {
	vectors  map[string][]float32
	err      error
	lastText string
}

func (f *fakeEmbedder) Available() bool { return true }

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.lastText = text
	if f.err != nil {
		return nil, f.err
	}
	for prefix, v := range f.vectors {
		if strings.HasPrefix(text, prefix) {
			return v, nil
		}
	}
	return []float32{0, 0, 1}, nil
}

// unitVector builds a 2d vector whose cosine similarity with [1,0] is cos.
func unitVector(cos float64) []float32 {
	sin := math.Sqrt(1 - cos*cos)
	return []float32{float32(cos), float32(sin)}
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

func insertItem(t *testing.T, s *model.Store, title string) model.RawItem {
	t.Helper()
	item := model.RawItem{
		ID:        uuid.NewString(),
		SourceID:  "src-1",
		URL:       "https://example.com/" + uuid.NewString(),
		Title:     title,
		Body:      strings.Repeat("x", 200),
		FetchedAt: time.Now().UTC(),
	}
	if _, err := s.InsertRawItem(item); err != nil {
		t.Fatalf("InsertRawItem failed: %v", err)
	}
	return item
}

func TestAssignCreatesClusterWhenEmpty(t *testing.T) {
	s := openTestStore(t)
	e := NewEngine(s, &fakeEmbedder{vectors: map[string][]float32{"first": {1, 0}}}, DefaultConfig())
	item := insertItem(t, s, "first story")

	a, err := e.Assign(context.Background(), item)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if !a.Created {
		t.Error("first item should create a cluster")
	}

	// The cluster is never empty and carries a pending signal
	count, err := s.ClusterMemberCount(a.ClusterID)
	if err != nil {
		t.Fatalf("ClusterMemberCount failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 member, got %d", count)
	}
	sig, err := s.SignalByCluster(a.ClusterID)
	if err != nil {
		t.Fatalf("SignalByCluster failed: %v", err)
	}
	if sig.Status != model.StatusPending {
		t.Errorf("new signal should be pending, got %s", sig.Status)
	}
}

func TestAssignJoinsSimilarCluster(t *testing.T) {
	s := openTestStore(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"first":   {1, 0},
		"similar": unitVector(0.90),
	}}
	e := NewEngine(s, emb, DefaultConfig())
	ctx := context.Background()

	first := insertItem(t, s, "first story")
	a1, err := e.Assign(ctx, first)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	similar := insertItem(t, s, "similar story")
	a2, err := e.Assign(ctx, similar)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if a2.Created {
		t.Error("item at 0.90 similarity should join, not create")
	}
	if a2.ClusterID != a1.ClusterID {
		t.Errorf("expected join into cluster %s, got %s", a1.ClusterID, a2.ClusterID)
	}
	if math.Abs(a2.Similarity-0.90) > 1e-3 {
		t.Errorf("expected similarity near 0.90, got %v", a2.Similarity)
	}

	count, _ := s.ClusterMemberCount(a1.ClusterID)
	if count != 2 {
		t.Errorf("expected 2 members, got %d", count)
	}
}

func TestAssignBelowThresholdCreatesNew(t *testing.T) {
	s := openTestStore(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"first":     {1, 0},
		"unrelated": unitVector(0.50),
	}}
	e := NewEngine(s, emb, DefaultConfig())
	ctx := context.Background()

	first := insertItem(t, s, "first story")
	a1, _ := e.Assign(ctx, first)

	unrelated := insertItem(t, s, "unrelated story")
	a2, err := e.Assign(ctx, unrelated)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if !a2.Created {
		t.Error("item at 0.50 similarity should create a new cluster")
	}
	if a2.ClusterID == a1.ClusterID {
		t.Error("new cluster id should differ")
	}
}

func TestAssignCandidateThresholdBoundary(t *testing.T) {
	s := openTestStore(t)
	// dot 7 against norms 1 and 10: every intermediate value is exact, so
	// the similarity computes to exactly 0.70 and the join is inclusive.
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"first":    {1, 0, 0, 0},
		"boundary": {7, 7, 1, 1},
	}}
	cfg := DefaultConfig()
	e := NewEngine(s, emb, cfg)
	ctx := context.Background()

	first := insertItem(t, s, "first story")
	a1, err := e.Assign(ctx, first)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	boundary := insertItem(t, s, "boundary story")
	a2, err := e.Assign(ctx, boundary)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if a2.Similarity != cfg.CandidateThreshold {
		t.Fatalf("fixture should land exactly on the threshold, got %v", a2.Similarity)
	}
	if a2.Created {
		t.Error("similarity at the threshold should join, not create")
	}
	if a2.ClusterID != a1.ClusterID {
		t.Errorf("expected join into cluster %s, got %s", a1.ClusterID, a2.ClusterID)
	}
}

func TestAssignRespectsMaxClusterSize(t *testing.T) {
	s := openTestStore(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"story": {1, 0},
	}}
	cfg := DefaultConfig()
	cfg.MaxClusterSize = 2
	e := NewEngine(s, emb, cfg)
	ctx := context.Background()

	var firstCluster string
	for i := 0; i < 3; i++ {
		item := insertItem(t, s, fmt.Sprintf("story %d", i))
		a, err := e.Assign(ctx, item)
		if err != nil {
			t.Fatalf("Assign %d failed: %v", i, err)
		}
		if i == 0 {
			firstCluster = a.ClusterID
		}
		if i == 1 && a.Created {
			t.Error("identical second item should join")
		}
		if i == 2 {
			if !a.Created {
				t.Error("full cluster should force a new cluster")
			}
			if a.ClusterID == firstCluster {
				t.Error("third item must not land in the full cluster")
			}
		}
	}
}

func TestAssignIgnoresClustersOutsideWindow(t *testing.T) {
	s := openTestStore(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"story": {1, 0},
	}}
	cfg := DefaultConfig()
	cfg.Window = time.Hour
	e := NewEngine(s, emb, cfg)
	ctx := context.Background()

	// Build an old cluster directly so its created_at predates the window
	old := insertItem(t, s, "story old")
	if err := s.SaveItemEmbedding(old.ID, []float32{1, 0}); err != nil {
		t.Fatalf("SaveItemEmbedding failed: %v", err)
	}
	oldTime := time.Now().UTC().Add(-2 * time.Hour)
	c := model.Cluster{ID: uuid.NewString(), PrimaryItemID: old.ID, CreatedAt: oldTime}
	if err := s.CreateClusterWithSignal(c,
		model.ClusterMember{ClusterID: c.ID, ItemID: old.ID, Similarity: 1, AddedAt: oldTime},
		model.Signal{ID: uuid.NewString(), ClusterID: c.ID, CreatedAt: oldTime}); err != nil {
		t.Fatalf("CreateClusterWithSignal failed: %v", err)
	}

	item := insertItem(t, s, "story new")
	a, err := e.Assign(ctx, item)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if !a.Created {
		t.Error("identical item outside the window should start a new cluster")
	}
}

func TestAssignDisabledClustering(t *testing.T) {
	s := openTestStore(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{
		"story": {1, 0},
	}}
	cfg := DefaultConfig()
	cfg.Enabled = false
	e := NewEngine(s, emb, cfg)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		item := insertItem(t, s, fmt.Sprintf("story %d", i))
		a, err := e.Assign(ctx, item)
		if err != nil {
			t.Fatalf("Assign failed: %v", err)
		}
		if !a.Created {
			t.Error("disabled clustering should give every item its own cluster")
		}
	}
}

func TestAssignEmbedFailureFailsSoft(t *testing.T) {
	s := openTestStore(t)
	e := NewEngine(s, &fakeEmbedder{err: fmt.Errorf("service down")}, DefaultConfig())

	item := insertItem(t, s, "story")
	a, err := e.Assign(context.Background(), item)
	if err != nil {
		t.Fatalf("Assign should not fail on embedding errors: %v", err)
	}
	if !a.Created {
		t.Error("item without embedding should get its own cluster")
	}
}

func TestAssignExcerptKeepsRuneBoundary(t *testing.T) {
	s := openTestStore(t)
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	e := NewEngine(s, emb, DefaultConfig())

	// 300 three-byte runes: a byte cut at 800 would split the 267th rune
	item := model.RawItem{
		ID:        uuid.NewString(),
		SourceID:  "src-1",
		URL:       "https://example.com/" + uuid.NewString(),
		Title:     "multibyte story",
		Body:      strings.Repeat("世", 300),
		FetchedAt: time.Now().UTC(),
	}
	if _, err := s.InsertRawItem(item); err != nil {
		t.Fatalf("InsertRawItem failed: %v", err)
	}

	if _, err := e.Assign(context.Background(), item); err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if !utf8.ValidString(emb.lastText) {
		t.Error("embedded text must stay valid UTF-8")
	}
	body := strings.TrimPrefix(emb.lastText, item.Title+"\n")
	if len(body) != 798 {
		t.Errorf("expected cut at the nearest rune boundary (798 bytes), got %d", len(body))
	}
}

func TestAssignNilEmbedder(t *testing.T) {
	s := openTestStore(t)
	e := NewEngine(s, nil, DefaultConfig())

	item := insertItem(t, s, "story")
	a, err := e.Assign(context.Background(), item)
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	if !a.Created {
		t.Error("expected new cluster without an embedder")
	}
}
