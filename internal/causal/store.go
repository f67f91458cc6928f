package causal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store provides local causal-relationship storage using SQLite.
// Relationships are persisted as JSON documents with the scalar fields the
// queries need promoted into indexed columns.
type Store struct {
	db       *sql.DB
	dataDir  string
	embedder Embedder

	// Vector index for node similarity lookups (nil ops if sqlite-vec unavailable)
	vecIdx *vecIndex
}

// GetDB returns the underlying SQL database handle
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// NewStore creates a new relationship store
func NewStore() (*Store, error) {
	// Determine data directory
	dataDir := os.Getenv("XYLEM_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home dir: %w", err)
		}
		dataDir = filepath.Join(home, ".xylem")
	}

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "causal.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:       db,
		dataDir:  dataDir,
		embedder: GetEmbedder(),
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init schema: %w", err)
	}

	// Vector index over node descriptions for related-node lookups
	store.vecIdx = newVecIndex(db, store.embedder.Dimensions())

	fmt.Fprintf(os.Stderr, "📁 Causal store: %s\n", dbPath)
	return store, nil
}

// initSchema creates the database tables
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS relationships (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		session_id TEXT,
		rel_type TEXT NOT NULL,
		category TEXT NOT NULL,
		strength REAL NOT NULL,
		confidence REAL NOT NULL,
		cause_id TEXT NOT NULL,
		effect_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		doc TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_relationships_agent_ts ON relationships(agent_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_relationships_cause ON relationships(cause_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_effect ON relationships(effect_id);
	CREATE INDEX IF NOT EXISTS idx_relationships_agent_type ON relationships(agent_id, rel_type);
	CREATE INDEX IF NOT EXISTS idx_relationships_agent_category ON relationships(agent_id, category);

	CREATE TABLE IF NOT EXISTS nodes (
		node_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		embedding TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// validate checks the caller-supplied fields of a relationship before it is
// persisted. Generated fields (id, timestamps) are not required.
func validate(rel *CausalRelationship) error {
	if rel == nil {
		return &ValidationError{Field: "relationship", Msg: "is nil"}
	}
	if strings.TrimSpace(rel.AgentID) == "" {
		return &ValidationError{Field: "agentId", Msg: "is required"}
	}
	if strings.TrimSpace(rel.Cause.ID) == "" {
		return &ValidationError{Field: "cause.id", Msg: "is required"}
	}
	if strings.TrimSpace(rel.Effect.ID) == "" {
		return &ValidationError{Field: "effect.id", Msg: "is required"}
	}
	if !validRelationTypes[rel.Type] {
		return &ValidationError{Field: "type", Msg: fmt.Sprintf("unknown relationship type %q", rel.Type)}
	}
	if !validCategories[rel.Category] {
		return &ValidationError{Field: "category", Msg: fmt.Sprintf("unknown category %q", rel.Category)}
	}
	if err := checkUnit("strength", rel.Strength); err != nil {
		return err
	}
	if err := checkUnit("confidence", rel.Confidence); err != nil {
		return err
	}
	if err := checkUnit("effect.probability", rel.Effect.Probability); err != nil {
		return err
	}
	if rel.Effect.Magnitude < -1 || rel.Effect.Magnitude > 1 {
		return &ValidationError{Field: "effect.magnitude", Msg: fmt.Sprintf("must be in [-1,1], got %v", rel.Effect.Magnitude)}
	}
	for i, p := range rel.Mechanism.Preconditions {
		if err := checkUnit(fmt.Sprintf("mechanism.preconditions[%d].probability", i), p.Probability); err != nil {
			return err
		}
	}
	for i, e := range rel.Evidence.Empirical {
		if err := checkUnit(fmt.Sprintf("evidence.empirical[%d].reliability", i), e.Reliability); err != nil {
			return err
		}
		if err := checkUnit(fmt.Sprintf("evidence.empirical[%d].confidence", i), e.Confidence); err != nil {
			return err
		}
	}
	return nil
}

func checkUnit(field string, v float64) error {
	if v < 0 || v > 1 {
		return &ValidationError{Field: field, Msg: fmt.Sprintf("must be in [0,1], got %v", v)}
	}
	return nil
}

// Store validates and persists a relationship, filling in the generated
// fields (id, created/updated timestamps). Returns the generated id.
// Safe under concurrent calls; each call creates an independent record.
func (s *Store) Store(ctx context.Context, rel *CausalRelationship) (string, error) {
	if err := validate(rel); err != nil {
		return "", err
	}

	if rel.ID == "" {
		rel.ID = generateID()
	}
	now := time.Now()
	if rel.Timestamp.IsZero() {
		rel.Timestamp = now
	}
	rel.CreatedAt = now
	rel.UpdatedAt = now

	doc, err := json.Marshal(rel)
	if err != nil {
		return "", fmt.Errorf("failed to marshal relationship: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO relationships (id, agent_id, session_id, rel_type, category, strength, confidence,
			cause_id, effect_id, timestamp, created_at, updated_at, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rel.ID, rel.AgentID, rel.SessionID, string(rel.Type), string(rel.Category), rel.Strength, rel.Confidence,
		rel.Cause.ID, rel.Effect.ID, rel.Timestamp, rel.CreatedAt, rel.UpdatedAt, string(doc))
	if err != nil {
		return "", storageErr("insert relationship", err)
	}

	// Keep the node catalog warm for related-node search
	s.upsertNode(ctx, rel.Cause.ID, rel.Cause.Name, rel.Cause.Description)
	s.upsertNode(ctx, rel.Effect.ID, rel.Effect.Name, rel.Effect.Description)

	return rel.ID, nil
}

// Filter narrows QueryByAgent results. Nil pointer fields mean "no bound".
type Filter struct {
	Type          RelationType
	Category      Category
	MinStrength   *float64
	MaxStrength   *float64
	MinConfidence *float64
	MaxConfidence *float64
	Since         time.Time
	Until         time.Time
}

// QueryByAgent returns all relationships for an agent matching the optional
// filter, most recent first. No implicit limit.
func (s *Store) QueryByAgent(ctx context.Context, agentID string, filter *Filter) ([]*CausalRelationship, error) {
	sqlQuery := `SELECT doc FROM relationships WHERE agent_id = ?`
	args := []interface{}{agentID}

	if filter != nil {
		if filter.Type != "" {
			sqlQuery += ` AND rel_type = ?`
			args = append(args, string(filter.Type))
		}
		if filter.Category != "" {
			sqlQuery += ` AND category = ?`
			args = append(args, string(filter.Category))
		}
		if filter.MinStrength != nil {
			sqlQuery += ` AND strength >= ?`
			args = append(args, *filter.MinStrength)
		}
		if filter.MaxStrength != nil {
			sqlQuery += ` AND strength <= ?`
			args = append(args, *filter.MaxStrength)
		}
		if filter.MinConfidence != nil {
			sqlQuery += ` AND confidence >= ?`
			args = append(args, *filter.MinConfidence)
		}
		if filter.MaxConfidence != nil {
			sqlQuery += ` AND confidence <= ?`
			args = append(args, *filter.MaxConfidence)
		}
		if !filter.Since.IsZero() {
			sqlQuery += ` AND timestamp >= ?`
			args = append(args, filter.Since)
		}
		if !filter.Until.IsZero() {
			sqlQuery += ` AND timestamp <= ?`
			args = append(args, filter.Until)
		}
	}

	sqlQuery += ` ORDER BY timestamp DESC, created_at DESC`

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, storageErr("query by agent", err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// Get returns a single relationship by id, or nil if not found.
func (s *Store) Get(ctx context.Context, id string) (*CausalRelationship, error) {
	if id == "" {
		return nil, nil
	}
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM relationships WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get relationship", err)
	}
	return unmarshalRelationship(doc)
}

// Delete removes a relationship and prunes catalog entries for any node
// it was the last reference to.
func (s *Store) Delete(ctx context.Context, id string) error {
	var causeID, effectID string
	err := s.db.QueryRowContext(ctx,
		`SELECT cause_id, effect_id FROM relationships WHERE id = ?`, id).Scan(&causeID, &effectID)
	if err == sql.ErrNoRows {
		return fmt.Errorf("relationship not found: %s", id)
	}
	if err != nil {
		return storageErr("delete relationship", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, id); err != nil {
		return storageErr("delete relationship", err)
	}

	s.pruneNode(ctx, causeID)
	s.pruneNode(ctx, effectID)
	return nil
}

// EdgesFrom returns all relationships whose cause is the given node id.
// This is the forward-expansion primitive for traversal.
func (s *Store) EdgesFrom(ctx context.Context, nodeID string) ([]*CausalRelationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM relationships WHERE cause_id = ? ORDER BY created_at ASC, id ASC`, nodeID)
	if err != nil {
		return nil, storageErr("edges from", err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// EdgesTo returns all relationships whose effect is the given node id.
// This is the backward-expansion primitive for traversal.
func (s *Store) EdgesTo(ctx context.Context, nodeID string) ([]*CausalRelationship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM relationships WHERE effect_id = ? ORDER BY created_at ASC, id ASC`, nodeID)
	if err != nil {
		return nil, storageErr("edges to", err)
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// ReviseLearning revises strength/confidence in place (external learning
// trigger). Identity and cause/effect ids are immutable; the revision is
// appended to the learning history.
func (s *Store) ReviseLearning(ctx context.Context, id string, strength, confidence float64, source string) (*CausalRelationship, error) {
	if err := checkUnit("strength", strength); err != nil {
		return nil, err
	}
	if err := checkUnit("confidence", confidence); err != nil {
		return nil, err
	}

	rel, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, fmt.Errorf("relationship not found: %s", id)
	}

	now := time.Now()
	rel.Strength = strength
	rel.Confidence = confidence
	rel.UpdatedAt = now
	rel.Learning.UpdateCount++
	rel.Learning.LastUpdated = now
	rel.Learning.History = append(rel.Learning.History, LearningUpdate{
		Timestamp:  now,
		Strength:   strength,
		Confidence: confidence,
		Source:     source,
	})

	doc, err := json.Marshal(rel)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal relationship: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE relationships SET strength = ?, confidence = ?, updated_at = ?, doc = ? WHERE id = ?
	`, strength, confidence, now, string(doc), id)
	if err != nil {
		return nil, storageErr("revise learning", err)
	}

	return rel, nil
}

// Count returns the total number of relationships
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&count)
	if err != nil {
		return 0, storageErr("count", err)
	}
	return count, nil
}

// CountByAgent returns the number of relationships owned by an agent
func (s *Store) CountByAgent(ctx context.Context, agentID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships WHERE agent_id = ?`, agentID).Scan(&count)
	if err != nil {
		return 0, storageErr("count by agent", err)
	}
	return count, nil
}

// Size returns the database file size as a human-readable string
func (s *Store) Size() (string, error) {
	dbPath := filepath.Join(s.dataDir, "causal.db")
	info, err := os.Stat(dbPath)
	if err != nil {
		return "unknown", err
	}

	size := info.Size()
	if size < 1024 {
		return fmt.Sprintf("%d B", size), nil
	} else if size < 1024*1024 {
		return fmt.Sprintf("%.1f KB", float64(size)/1024), nil
	}
	return fmt.Sprintf("%.1f MB", float64(size)/(1024*1024)), nil
}

// LastActivity returns the timestamp of the most recent write
func (s *Store) LastActivity(ctx context.Context) (time.Time, error) {
	var lastStr sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM relationships`).Scan(&lastStr)
	if err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, nil
		}
		return time.Time{}, storageErr("last activity", err)
	}
	if !lastStr.Valid || lastStr.String == "" {
		return time.Time{}, nil
	}
	// Parse SQLite datetime format
	last, err := time.Parse("2006-01-02 15:04:05.999999999-07:00", lastStr.String)
	if err != nil {
		last, err = time.Parse("2006-01-02T15:04:05Z", lastStr.String)
		if err != nil {
			last, err = time.Parse(time.RFC3339Nano, lastStr.String)
		}
	}
	return last, err
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRelationships(rows *sql.Rows) ([]*CausalRelationship, error) {
	var rels []*CausalRelationship
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			continue
		}
		rel, err := unmarshalRelationship(doc)
		if err != nil {
			continue
		}
		rels = append(rels, rel)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan relationships", err)
	}
	return rels, nil
}

func unmarshalRelationship(doc string) (*CausalRelationship, error) {
	var rel CausalRelationship
	if err := json.Unmarshal([]byte(doc), &rel); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relationship: %w", err)
	}
	return &rel, nil
}

func generateID() string {
	return uuid.NewString()
}
