package causal

import (
	"context"
	"encoding/json"
	"sort"
	"time"
)

// Node is a cause or effect entity as last seen in a stored relationship.
// The node catalog is a derived cache for similarity search; the graph
// itself is always reconstructed from the relationship documents.
type Node struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Similarity  float64 `json:"similarity,omitempty"`
}

// upsertNode refreshes the node catalog entry and its embedding. Failures
// are swallowed: the catalog is advisory and must never block a write.
func (s *Store) upsertNode(ctx context.Context, id, name, description string) {
	if id == "" {
		return
	}

	text := name
	if description != "" {
		text += " " + description
	}
	embedding, err := s.embedder.Embed(text)
	if err != nil {
		embedding = nil
	}
	embJSON, _ := json.Marshal(embedding)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (node_id, name, description, embedding, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(node_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			embedding = excluded.embedding,
			updated_at = excluded.updated_at
	`, id, name, description, string(embJSON), time.Now())
	if err != nil {
		return
	}

	if s.vecIdx != nil && embedding != nil {
		s.vecIdx.Insert(id, embedding)
	}
}

// pruneNode drops a node's catalog entry and vec index row once no
// relationship references it. Best-effort, like upsertNode: the catalog
// is a derived cache and pruning failures never fail a delete.
func (s *Store) pruneNode(ctx context.Context, nodeID string) {
	if nodeID == "" {
		return
	}
	var refs int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relationships WHERE cause_id = ? OR effect_id = ?`, nodeID, nodeID).Scan(&refs)
	if err != nil || refs > 0 {
		return
	}
	s.db.ExecContext(ctx, `DELETE FROM nodes WHERE node_id = ?`, nodeID)
	if s.vecIdx != nil {
		s.vecIdx.Delete(nodeID)
	}
}

// FindRelatedNodes returns nodes whose name/description is semantically
// close to the query, best match first. Uses the sqlite-vec KNN index when
// available, otherwise a brute-force cosine scan over the node catalog.
func (s *Store) FindRelatedNodes(ctx context.Context, query string, limit int) ([]*Node, error) {
	if limit <= 0 {
		limit = 10
	}

	queryEmb, err := s.embedder.Embed(query)
	if err != nil {
		return nil, err
	}

	if s.vecIdx != nil && s.vecIdx.available {
		results, err := s.vecIdx.Search(queryEmb, limit)
		if err == nil {
			return s.hydrateNodes(ctx, results)
		}
	}

	return s.scanRelatedNodes(ctx, queryEmb, limit)
}

func (s *Store) hydrateNodes(ctx context.Context, results []vecResult) ([]*Node, error) {
	nodes := []*Node{}
	for _, r := range results {
		var node Node
		err := s.db.QueryRowContext(ctx,
			`SELECT node_id, name, COALESCE(description, '') FROM nodes WHERE node_id = ?`, r.NodeID).
			Scan(&node.ID, &node.Name, &node.Description)
		if err != nil {
			continue
		}
		node.Similarity = 1 - r.Distance
		nodes = append(nodes, &node)
	}
	return nodes, nil
}

// scanRelatedNodes is the brute-force fallback when sqlite-vec is missing.
func (s *Store) scanRelatedNodes(ctx context.Context, queryEmb []float32, limit int) ([]*Node, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT node_id, name, COALESCE(description, ''), COALESCE(embedding, '') FROM nodes`)
	if err != nil {
		return nil, storageErr("scan nodes", err)
	}
	defer rows.Close()

	nodes := []*Node{}
	for rows.Next() {
		var node Node
		var embJSON string
		if err := rows.Scan(&node.ID, &node.Name, &node.Description, &embJSON); err != nil {
			continue
		}
		var emb []float32
		if err := json.Unmarshal([]byte(embJSON), &emb); err != nil || len(emb) == 0 {
			continue
		}
		node.Similarity = cosineSimilarity(queryEmb, emb)
		nodes = append(nodes, &node)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan nodes", err)
	}

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].Similarity > nodes[j].Similarity
	})
	if len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}

// NodeCount returns the number of distinct nodes seen across relationships
func (s *Store) NodeCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&count)
	if err != nil {
		return 0, storageErr("node count", err)
	}
	return count, nil
}
