package causal

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
)

func init() {
	sqlite_vec.Auto()
}

// vecIndex manages the sqlite-vec index over node embeddings for fast KNN
// queries. If the extension fails to load, all operations are no-ops and
// related-node search falls back to brute-force cosine similarity.
type vecIndex struct {
	db         *sql.DB
	dimensions int
	available  bool
}

type vecResult struct {
	NodeID   string
	Distance float64
}

func newVecIndex(db *sql.DB, dimensions int) *vecIndex {
	vi := &vecIndex{db: db, dimensions: dimensions}
	if err := vi.ensureSchema(); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  sqlite-vec not available, using linear scan: %v\n", err)
		vi.available = false
	} else {
		vi.available = true
	}
	return vi
}

func (vi *vecIndex) ensureSchema() error {
	var vecVersion string
	if err := vi.db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		return fmt.Errorf("vec_version() failed: %w", err)
	}

	if _, err := vi.db.Exec(`CREATE TABLE IF NOT EXISTS vec_metadata (key TEXT PRIMARY KEY, value TEXT)`); err != nil {
		return fmt.Errorf("failed to create vec_metadata: %w", err)
	}

	// vec0 requires integer rowids, nodes use text IDs
	if _, err := vi.db.Exec(`CREATE TABLE IF NOT EXISTS node_vec_ids (
		vec_id INTEGER PRIMARY KEY AUTOINCREMENT,
		node_id TEXT UNIQUE NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create vec ID mapping: %w", err)
	}

	vi.handleDimensionChange()

	createSQL := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS node_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		vi.dimensions,
	)
	if _, err := vi.db.Exec(createSQL); err != nil {
		return fmt.Errorf("failed to create vec0 table: %w", err)
	}

	vi.db.Exec(`INSERT OR REPLACE INTO vec_metadata (key, value) VALUES ('dimensions', ?)`,
		fmt.Sprintf("%d", vi.dimensions))

	return nil
}

// handleDimensionChange drops the vec0 table when the embedder dimensions
// changed since last run (e.g. switching between local and API embeddings).
func (vi *vecIndex) handleDimensionChange() {
	var storedDim string
	err := vi.db.QueryRow(`SELECT value FROM vec_metadata WHERE key = 'dimensions'`).Scan(&storedDim)
	if err != nil {
		return
	}
	if storedDim == fmt.Sprintf("%d", vi.dimensions) {
		return
	}

	fmt.Fprintf(os.Stderr, "⚠️  Embedding dimensions changed (%s -> %d), rebuilding vec index\n", storedDim, vi.dimensions)
	vi.db.Exec(`DROP TABLE IF EXISTS node_embeddings`)
	vi.db.Exec(`DELETE FROM node_vec_ids`)
}

// Insert adds or replaces a node's embedding in the vec0 index.
func (vi *vecIndex) Insert(nodeID string, embedding []float32) error {
	if !vi.available || len(embedding) == 0 || len(embedding) != vi.dimensions {
		return nil
	}

	var vecID int64
	err := vi.db.QueryRow(`SELECT vec_id FROM node_vec_ids WHERE node_id = ?`, nodeID).Scan(&vecID)
	if err == sql.ErrNoRows {
		result, err := vi.db.Exec(`INSERT INTO node_vec_ids (node_id) VALUES (?)`, nodeID)
		if err != nil {
			return fmt.Errorf("failed to create vec ID mapping: %w", err)
		}
		vecID, _ = result.LastInsertId()
	} else if err != nil {
		return err
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	// vec0 doesn't support ON CONFLICT, so delete first if exists
	vi.db.Exec(`DELETE FROM node_embeddings WHERE rowid = ?`, vecID)

	_, err = vi.db.Exec(`INSERT INTO node_embeddings (rowid, embedding) VALUES (?, ?)`, vecID, blob)
	if err != nil {
		return fmt.Errorf("failed to insert into vec0: %w", err)
	}
	return nil
}

// Search performs a KNN query and returns node IDs with cosine distances.
func (vi *vecIndex) Search(queryEmbedding []float32, limit int) ([]vecResult, error) {
	if !vi.available {
		return nil, fmt.Errorf("vec index not available")
	}

	blob, err := sqlite_vec.SerializeFloat32(queryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query: %w", err)
	}

	rows, err := vi.db.Query(`
		SELECT rowid, distance
		FROM node_embeddings
		WHERE embedding MATCH ?
		ORDER BY distance
		LIMIT ?
	`, blob, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type rowResult struct {
		rowID    int64
		distance float64
	}
	var rowResults []rowResult
	for rows.Next() {
		var r rowResult
		if err := rows.Scan(&r.rowID, &r.distance); err != nil {
			continue
		}
		rowResults = append(rowResults, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(rowResults) == 0 {
		return nil, nil
	}

	placeholders := make([]string, len(rowResults))
	args := make([]interface{}, len(rowResults))
	for i, rr := range rowResults {
		placeholders[i] = "?"
		args[i] = rr.rowID
	}

	mapRows, err := vi.db.Query(
		`SELECT vec_id, node_id FROM node_vec_ids WHERE vec_id IN (`+strings.Join(placeholders, ",")+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer mapRows.Close()

	idMap := make(map[int64]string)
	for mapRows.Next() {
		var vecID int64
		var nodeID string
		if err := mapRows.Scan(&vecID, &nodeID); err != nil {
			continue
		}
		idMap[vecID] = nodeID
	}

	// Preserve KNN order
	var results []vecResult
	for _, rr := range rowResults {
		if nodeID, ok := idMap[rr.rowID]; ok {
			results = append(results, vecResult{NodeID: nodeID, Distance: rr.distance})
		}
	}
	return results, nil
}

// Delete removes a node from the vec0 index.
func (vi *vecIndex) Delete(nodeID string) error {
	if !vi.available {
		return nil
	}
	var vecID int64
	if err := vi.db.QueryRow(`SELECT vec_id FROM node_vec_ids WHERE node_id = ?`, nodeID).Scan(&vecID); err != nil {
		return nil
	}
	vi.db.Exec(`DELETE FROM node_embeddings WHERE rowid = ?`, vecID)
	vi.db.Exec(`DELETE FROM node_vec_ids WHERE vec_id = ?`, vecID)
	return nil
}
