// Package model provides the data layer for signaldesk.
//
// Model is the source of truth - SQLite persistence with complete history.
//
// # Thread Safety
//
// Store is safe for concurrent use. The underlying sql.DB handles connection
// pooling and serialization. Individual operations are atomic, but sequences
// of operations (read-modify-write) require external synchronization.
//
// # Transactions
//
// CreateClusterWithSignal uses a transaction so a cluster, its first member
// and its pending signal appear together or not at all. Other operations are
// single statements and implicitly atomic.
package model

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver (no CGO required)
)

// Store handles persistence for the signal pipeline.
type Store struct {
	db *sql.DB
}

// Open creates a new SQLite store at the given path.
//
// The database is created if it doesn't exist, and migrations are applied
// automatically. Pass ":memory:" for an in-memory store (tests).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Shared cache so every pooled connection sees the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		// Enable WAL mode for better concurrent access
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS raw_items (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		external_id TEXT,
		url TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		body TEXT,
		published_at DATETIME,
		fetched_at DATETIME NOT NULL,
		processed INTEGER DEFAULT 0,
		embedding BLOB
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_raw_items_external
		ON raw_items(source_id, external_id)
		WHERE external_id IS NOT NULL AND external_id != '';
	CREATE INDEX IF NOT EXISTS idx_raw_items_unprocessed ON raw_items(processed, fetched_at);

	CREATE TABLE IF NOT EXISTS clusters (
		id TEXT PRIMARY KEY,
		primary_item_id TEXT NOT NULL REFERENCES raw_items(id),
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_clusters_created ON clusters(created_at DESC);

	CREATE TABLE IF NOT EXISTS cluster_members (
		cluster_id TEXT NOT NULL REFERENCES clusters(id),
		item_id TEXT NOT NULL REFERENCES raw_items(id),
		similarity REAL DEFAULT 0,
		added_at DATETIME NOT NULL,
		PRIMARY KEY (cluster_id, item_id)
	);

	CREATE TABLE IF NOT EXISTS signals (
		id TEXT PRIMARY KEY,
		cluster_id TEXT NOT NULL UNIQUE REFERENCES clusters(id),
		signal_type TEXT DEFAULT '',
		confidence INTEGER DEFAULT 0,
		significance INTEGER DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'pending',
		notes TEXT DEFAULT '',
		tokens_used INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_signals_status ON signals(status);

	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		signal_id TEXT DEFAULT '',
		title TEXT NOT NULL,
		body TEXT,
		is_draft INTEGER DEFAULT 1,
		created_at DATETIME NOT NULL,
		published_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_articles_draft ON articles(is_draft);

	-- Append-only audit log. Rows are never updated or deleted.
	CREATE TABLE IF NOT EXISTS pipeline_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		stage TEXT NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT DEFAULT '',
		item_ref TEXT DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS phase_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		phase TEXT NOT NULL,
		status TEXT NOT NULL,
		detail TEXT DEFAULT '',
		duration_ms INTEGER DEFAULT 0,
		started_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_phase_history_phase ON phase_history(phase, started_at DESC);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for advanced queries.
//
// Use with caution - prefer Store methods for common operations.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- raw items ---

// InsertRawItem inserts an item if no item with the same canonical URL or the
// same (source, external id) pair exists. Returns false when the item was a
// duplicate. The uniqueness check and the insert are a single statement, so
// concurrent admissions of the same URL cannot both succeed.
func (s *Store) InsertRawItem(item RawItem) (bool, error) {
	result, err := s.db.Exec(`
		INSERT OR IGNORE INTO raw_items
			(id, source_id, external_id, url, title, body, published_at, fetched_at, processed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, item.ID, item.SourceID, item.ExternalID, item.URL, item.Title, item.Body,
		nullableTime(item.PublishedAt), item.FetchedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert raw item: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to check rows affected: %w", err)
	}
	return rows > 0, nil
}

// RawItem retrieves a single raw item by id.
func (s *Store) RawItem(id string) (RawItem, error) {
	row := s.db.QueryRow(`
		SELECT id, source_id, external_id, url, title, body, published_at, fetched_at, processed, embedding
		FROM raw_items WHERE id = ?
	`, id)
	return scanRawItem(row)
}

// UnprocessedRawItems returns up to limit items that have not produced a
// signal yet, oldest fetch first so nothing starves.
func (s *Store) UnprocessedRawItems(limit int) ([]RawItem, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, source_id, external_id, url, title, body, published_at, fetched_at, processed, embedding
		FROM raw_items
		WHERE processed = 0
		ORDER BY fetched_at ASC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed items: %w", err)
	}
	defer rows.Close()
	return scanRawItems(rows)
}

// MarkProcessed flips the processed flag.
func (s *Store) MarkProcessed(id string) error {
	result, err := s.db.Exec("UPDATE raw_items SET processed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to mark item processed: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("raw item not found: %s", id)
	}
	return nil
}

// SaveItemEmbedding stores the embedding vector for a raw item.
func (s *Store) SaveItemEmbedding(id string, embedding []float32) error {
	result, err := s.db.Exec("UPDATE raw_items SET embedding = ? WHERE id = ?",
		serializeEmbedding(embedding), id)
	if err != nil {
		return fmt.Errorf("failed to save embedding: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("raw item not found: %s", id)
	}
	return nil
}

// ItemEmbedding retrieves the embedding for a raw item, nil if absent.
func (s *Store) ItemEmbedding(id string) ([]float32, error) {
	var blob []byte
	err := s.db.QueryRow("SELECT embedding FROM raw_items WHERE id = ?", id).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding: %w", err)
	}
	return deserializeEmbedding(blob), nil
}

// RawItemCount returns the total number of raw items.
func (s *Store) RawItemCount() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM raw_items").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count raw items: %w", err)
	}
	return count, nil
}

// --- clusters ---

// CreateClusterWithSignal creates a cluster, its primary membership edge and
// its pending signal in one transaction. Every cluster is born with at least
// one member and exactly one signal.
func (s *Store) CreateClusterWithSignal(c Cluster, m ClusterMember, sig Signal) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback is safe to call even after commit - it's a no-op
	defer tx.Rollback()

	if _, err := tx.Exec(
		"INSERT INTO clusters (id, primary_item_id, created_at) VALUES (?, ?, ?)",
		c.ID, c.PrimaryItemID, c.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert cluster: %w", err)
	}
	if _, err := tx.Exec(
		"INSERT INTO cluster_members (cluster_id, item_id, similarity, added_at) VALUES (?, ?, ?, ?)",
		m.ClusterID, m.ItemID, m.Similarity, m.AddedAt); err != nil {
		return fmt.Errorf("failed to insert primary member: %w", err)
	}
	if _, err := tx.Exec(`
		INSERT INTO signals (id, cluster_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, sig.ID, sig.ClusterID, string(StatusPending), sig.CreatedAt, sig.CreatedAt); err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// AddClusterMember adds an item to an existing cluster.
func (s *Store) AddClusterMember(m ClusterMember) error {
	_, err := s.db.Exec(
		"INSERT INTO cluster_members (cluster_id, item_id, similarity, added_at) VALUES (?, ?, ?, ?)",
		m.ClusterID, m.ItemID, m.Similarity, m.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to add cluster member: %w", err)
	}
	return nil
}

// ClusterMemberCount returns how many items a cluster holds.
func (s *Store) ClusterMemberCount(clusterID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM cluster_members WHERE cluster_id = ?", clusterID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count cluster members: %w", err)
	}
	return count, nil
}

// RecentClusters returns clusters created after since, newest first,
// capped at limit.
func (s *Store) RecentClusters(since time.Time, limit int) ([]Cluster, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, primary_item_id, created_at
		FROM clusters
		WHERE created_at > ?
		ORDER BY created_at DESC
		LIMIT ?
	`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var clusters []Cluster
	for rows.Next() {
		var c Cluster
		if err := rows.Scan(&c.ID, &c.PrimaryItemID, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		clusters = append(clusters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return clusters, nil
}

// Cluster retrieves a single cluster by id.
func (s *Store) Cluster(id string) (Cluster, error) {
	var c Cluster
	err := s.db.QueryRow(
		"SELECT id, primary_item_id, created_at FROM clusters WHERE id = ?", id).
		Scan(&c.ID, &c.PrimaryItemID, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return Cluster{}, fmt.Errorf("cluster not found: %s", id)
	}
	if err != nil {
		return Cluster{}, fmt.Errorf("failed to get cluster: %w", err)
	}
	return c, nil
}

// --- signals ---

// Signal retrieves a signal by id.
func (s *Store) Signal(id string) (Signal, error) {
	row := s.db.QueryRow(signalSelect+" WHERE id = ?", id)
	sig, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return Signal{}, fmt.Errorf("signal not found: %s", id)
	}
	if err != nil {
		return Signal{}, fmt.Errorf("failed to get signal: %w", err)
	}
	return sig, nil
}

// SignalByCluster retrieves the signal belonging to a cluster.
func (s *Store) SignalByCluster(clusterID string) (Signal, error) {
	row := s.db.QueryRow(signalSelect+" WHERE cluster_id = ?", clusterID)
	sig, err := scanSignal(row)
	if err == sql.ErrNoRows {
		return Signal{}, fmt.Errorf("no signal for cluster: %s", clusterID)
	}
	if err != nil {
		return Signal{}, fmt.Errorf("failed to get signal: %w", err)
	}
	return sig, nil
}

// PendingSignals returns all signals still awaiting a decision, oldest first.
func (s *Store) PendingSignals() ([]Signal, error) {
	rows, err := s.db.Query(signalSelect+" WHERE status = ? ORDER BY created_at ASC",
		string(StatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// ApprovedSignalsWithoutArticle returns approved signals that have not been
// synthesized into an article yet.
func (s *Store) ApprovedSignalsWithoutArticle() ([]Signal, error) {
	rows, err := s.db.Query(signalSelect+`
		WHERE status = ?
		  AND id NOT IN (SELECT signal_id FROM articles WHERE signal_id != '')
		ORDER BY created_at ASC
	`, string(StatusApproved))
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()
	return scanSignals(rows)
}

// UpdateSignalAnalysis writes triage results. Status is deliberately left
// untouched - analysis never approves.
func (s *Store) UpdateSignalAnalysis(id string, typ SignalType, confidence, significance int, notes string, tokens int) error {
	result, err := s.db.Exec(`
		UPDATE signals
		SET signal_type = ?, confidence = ?, significance = ?, notes = ?,
			tokens_used = tokens_used + ?, updated_at = ?
		WHERE id = ?
	`, string(typ), confidence, significance, notes, tokens, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update signal analysis: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("signal not found: %s", id)
	}
	return nil
}

// TransitionSignal moves a signal from one status to another. The WHERE
// clause carries the expected prior status, so an already-transitioned signal
// is reported rather than silently overwritten.
func (s *Store) TransitionSignal(id string, from, to SignalStatus) error {
	result, err := s.db.Exec(
		"UPDATE signals SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition signal: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("signal %s is not %s", id, from)
	}
	return nil
}

// --- articles ---

// CreateArticle stores a new draft article.
func (s *Store) CreateArticle(a Article) error {
	_, err := s.db.Exec(`
		INSERT INTO articles (id, signal_id, title, body, is_draft, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, a.ID, a.SignalID, a.Title, a.Body, boolToInt(a.IsDraft), a.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

// Article retrieves an article by id.
func (s *Store) Article(id string) (Article, error) {
	row := s.db.QueryRow(articleSelect+" WHERE id = ?", id)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return Article{}, fmt.Errorf("article not found: %s", id)
	}
	if err != nil {
		return Article{}, fmt.Errorf("failed to get article: %w", err)
	}
	return a, nil
}

// DraftArticles returns all unpublished articles, oldest first.
func (s *Store) DraftArticles() ([]Article, error) {
	rows, err := s.db.Query(articleSelect + " WHERE is_draft = 1 ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query drafts: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// PublishArticle flips is_draft and stamps published_at. The is_draft guard
// makes the flip a one-way, once-only transition.
func (s *Store) PublishArticle(id string, at time.Time) error {
	result, err := s.db.Exec(
		"UPDATE articles SET is_draft = 0, published_at = ? WHERE id = ? AND is_draft = 1",
		at, id)
	if err != nil {
		return fmt.Errorf("failed to publish article: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("article %s is not a draft", id)
	}
	return nil
}

// PublishedSince returns articles published after t, for distribution.
func (s *Store) PublishedSince(t time.Time) ([]Article, error) {
	rows, err := s.db.Query(articleSelect+
		" WHERE is_draft = 0 AND published_at > ? ORDER BY published_at ASC", t)
	if err != nil {
		return nil, fmt.Errorf("failed to query published articles: %w", err)
	}
	defer rows.Close()
	return scanArticles(rows)
}

// --- audit log ---

// AppendLog adds one row to the append-only pipeline log.
func (s *Store) AppendLog(e LogEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO pipeline_log (run_id, stage, outcome, reason, item_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.RunID, e.Stage, e.Outcome, e.Reason, e.ItemRef, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// RecentLog returns the newest limit log rows, for the audit surface.
func (s *Store) RecentLog(limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, run_id, stage, outcome, reason, item_ref, created_at
		FROM pipeline_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query log: %w", err)
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stage, &e.Outcome, &e.Reason, &e.ItemRef, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return entries, nil
}

// RecordPhase stores one phase execution.
func (s *Store) RecordPhase(p PhaseRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO phase_history (run_id, phase, status, detail, duration_ms, started_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.RunID, p.Phase, p.Status, p.Detail, p.Duration.Milliseconds(), p.StartedAt)
	if err != nil {
		return fmt.Errorf("failed to record phase: %w", err)
	}
	return nil
}

// PhaseHistory returns recent executions of one phase, newest first.
func (s *Store) PhaseHistory(phase string, limit int) ([]PhaseRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT id, run_id, phase, status, detail, duration_ms, started_at
		FROM phase_history WHERE phase = ?
		ORDER BY started_at DESC LIMIT ?
	`, phase, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query phase history: %w", err)
	}
	defer rows.Close()

	var records []PhaseRecord
	for rows.Next() {
		var p PhaseRecord
		var durationMs int64
		if err := rows.Scan(&p.ID, &p.RunID, &p.Phase, &p.Status, &p.Detail, &durationMs, &p.StartedAt); err != nil {
			return nil, fmt.Errorf("failed to scan phase record: %w", err)
		}
		p.Duration = time.Duration(durationMs) * time.Millisecond
		records = append(records, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}

// --- scanning helpers ---

const signalSelect = `
	SELECT id, cluster_id, signal_type, confidence, significance, status, notes, tokens_used, created_at, updated_at
	FROM signals`

const articleSelect = `
	SELECT id, signal_id, title, body, is_draft, created_at, published_at
	FROM articles`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRawItem(row rowScanner) (RawItem, error) {
	var item RawItem
	var published sql.NullTime
	var processed int
	var blob []byte
	err := row.Scan(&item.ID, &item.SourceID, &item.ExternalID, &item.URL,
		&item.Title, &item.Body, &published, &item.FetchedAt, &processed, &blob)
	if err == sql.ErrNoRows {
		return RawItem{}, fmt.Errorf("raw item not found")
	}
	if err != nil {
		return RawItem{}, fmt.Errorf("failed to scan raw item: %w", err)
	}
	if published.Valid {
		item.PublishedAt = published.Time
	}
	item.Processed = processed != 0
	item.Embedding = deserializeEmbedding(blob)
	return item, nil
}

func scanRawItems(rows *sql.Rows) ([]RawItem, error) {
	var items []RawItem
	for rows.Next() {
		item, err := scanRawItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return items, nil
}

func scanSignal(row rowScanner) (Signal, error) {
	var sig Signal
	var typ, status string
	err := row.Scan(&sig.ID, &sig.ClusterID, &typ, &sig.Confidence, &sig.Significance,
		&status, &sig.Notes, &sig.TokensUsed, &sig.CreatedAt, &sig.UpdatedAt)
	if err != nil {
		return Signal{}, err
	}
	sig.Type = SignalType(typ)
	sig.Status = SignalStatus(status)
	return sig, nil
}

func scanSignals(rows *sql.Rows) ([]Signal, error) {
	var signals []Signal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return signals, nil
}

func scanArticle(row rowScanner) (Article, error) {
	var a Article
	var draft int
	var published sql.NullTime
	err := row.Scan(&a.ID, &a.SignalID, &a.Title, &a.Body, &draft, &a.CreatedAt, &published)
	if err != nil {
		return Article{}, err
	}
	a.IsDraft = draft != 0
	if published.Valid {
		a.PublishedAt = published.Time
	}
	return a, nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return articles, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// serializeEmbedding converts a float32 slice to bytes for storage.
// Little-endian IEEE 754, 4 bytes per float.
func serializeEmbedding(embedding []float32) []byte {
	if embedding == nil {
		return nil
	}
	blob := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		bits := math.Float32bits(v)
		blob[i*4] = byte(bits)
		blob[i*4+1] = byte(bits >> 8)
		blob[i*4+2] = byte(bits >> 16)
		blob[i*4+3] = byte(bits >> 24)
	}
	return blob
}

// deserializeEmbedding converts stored bytes back to a float32 slice.
func deserializeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(blob)/4)
	for i := range embedding {
		bits := uint32(blob[i*4]) |
			uint32(blob[i*4+1])<<8 |
			uint32(blob[i*4+2])<<16 |
			uint32(blob[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}
