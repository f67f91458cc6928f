package causal

import (
	"context"
	"fmt"
	"sort"
)

// Direction controls which way chains are followed from the start node.
type Direction string

const (
	// DirectionForward follows effects: edges whose cause is the current node.
	DirectionForward Direction = "forward"
	// DirectionBackward follows causes: edges whose effect is the current node.
	DirectionBackward Direction = "backward"
	// DirectionBoth runs forward and backward independently and merges the
	// results. Chains never mix directions.
	DirectionBoth Direction = "both"
)

// DefaultMaxDepth is the traversal depth applied when a caller leaves it unset.
const DefaultMaxDepth = 5

// ChainEdge is one relationship inside a chain, tagged with its hop distance
// from the seed edge (the seed itself is depth 0).
type ChainEdge struct {
	Relationship *CausalRelationship `json:"relationship"`
	Depth        int                 `json:"depth"`
}

// ChainResult is one maximal causal chain discovered by Traverse.
type ChainResult struct {
	// Relationship is the seed edge the chain starts from.
	Relationship *CausalRelationship `json:"relationship"`
	Edges        []ChainEdge         `json:"edges"`
	// Depth is the number of hops beyond the seed (len(Edges)-1).
	Depth int `json:"depth"`
	// Path lists node ids in traversal order, starting at the start node.
	Path []string `json:"path"`
	// TotalStrength is the seed strength scaled by the mean strength of the
	// continuation edges. A chain of just the seed scores the seed strength.
	TotalStrength float64   `json:"totalStrength"`
	Direction     Direction `json:"direction"`
}

// Traverse discovers causal chains reachable from startID. Each chain holds
// at most maxDepth edges and stops at cycles (a node is never revisited
// within a chain). Only maximal chains are returned: a chain that can still
// be extended is not emitted as its own result. An unknown startID yields an
// empty result, not an error.
func (s *Store) Traverse(ctx context.Context, startID string, direction Direction, maxDepth int) ([]*ChainResult, error) {
	if maxDepth <= 0 {
		return nil, &InvalidArgumentError{Arg: "maxDepth", Msg: fmt.Sprintf("must be positive, got %d", maxDepth)}
	}
	switch direction {
	case DirectionForward, DirectionBackward:
		results, err := s.traverseDirected(ctx, startID, direction, maxDepth)
		if err != nil {
			return nil, err
		}
		sortChains(results)
		return results, nil
	case DirectionBoth:
		forward, err := s.traverseDirected(ctx, startID, DirectionForward, maxDepth)
		if err != nil {
			return nil, err
		}
		backward, err := s.traverseDirected(ctx, startID, DirectionBackward, maxDepth)
		if err != nil {
			return nil, err
		}
		results := append(forward, backward...)
		sortChains(results)
		return results, nil
	default:
		return nil, &InvalidArgumentError{Arg: "direction", Msg: fmt.Sprintf("unknown direction %q", direction)}
	}
}

func (s *Store) traverseDirected(ctx context.Context, startID string, dir Direction, maxDepth int) ([]*ChainResult, error) {
	seeds, err := s.expand(ctx, dir, startID)
	if err != nil {
		return nil, err
	}

	results := []*ChainResult{}
	for _, seed := range seeds {
		visited := map[string]bool{startID: true}
		next := nextNode(seed, dir)
		visited[next] = true
		path := []string{startID, next}
		if err := s.grow(ctx, dir, maxDepth, []*CausalRelationship{seed}, path, visited, &results); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// grow extends the chain one edge at a time, emitting it once no further
// extension is possible (depth limit, dead end, or only cycles remain).
func (s *Store) grow(ctx context.Context, dir Direction, maxDepth int, edges []*CausalRelationship, path []string, visited map[string]bool, out *[]*ChainResult) error {
	var conts []*CausalRelationship
	if len(edges) < maxDepth {
		tip := path[len(path)-1]
		candidates, err := s.expand(ctx, dir, tip)
		if err != nil {
			return err
		}
		for _, c := range candidates {
			if !visited[nextNode(c, dir)] {
				conts = append(conts, c)
			}
		}
	}

	if len(conts) == 0 {
		*out = append(*out, buildChain(dir, edges, path))
		return nil
	}

	for _, c := range conts {
		next := nextNode(c, dir)

		branchEdges := append(append([]*CausalRelationship{}, edges...), c)
		branchPath := append(append([]string{}, path...), next)
		branchVisited := make(map[string]bool, len(visited)+1)
		for k := range visited {
			branchVisited[k] = true
		}
		branchVisited[next] = true

		if err := s.grow(ctx, dir, maxDepth, branchEdges, branchPath, branchVisited, out); err != nil {
			return err
		}
	}
	return nil
}

// expand returns the edges leaving (forward) or entering (backward) a node.
func (s *Store) expand(ctx context.Context, dir Direction, nodeID string) ([]*CausalRelationship, error) {
	if dir == DirectionForward {
		return s.EdgesFrom(ctx, nodeID)
	}
	return s.EdgesTo(ctx, nodeID)
}

// nextNode is the node an edge leads to under the given direction.
func nextNode(rel *CausalRelationship, dir Direction) string {
	if dir == DirectionForward {
		return rel.Effect.ID
	}
	return rel.Cause.ID
}

func buildChain(dir Direction, edges []*CausalRelationship, path []string) *ChainResult {
	chainEdges := make([]ChainEdge, len(edges))
	for i, e := range edges {
		chainEdges[i] = ChainEdge{Relationship: e, Depth: i}
	}

	total := edges[0].Strength
	if len(edges) > 1 {
		var sum float64
		for _, e := range edges[1:] {
			sum += e.Strength
		}
		total *= sum / float64(len(edges)-1)
	}

	return &ChainResult{
		Relationship:  edges[0],
		Edges:         chainEdges,
		Depth:         len(edges) - 1,
		Path:          append([]string{}, path...),
		TotalStrength: total,
		Direction:     dir,
	}
}

// sortChains orders strongest first; ties go to the shallower chain.
func sortChains(results []*ChainResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].TotalStrength != results[j].TotalStrength {
			return results[i].TotalStrength > results[j].TotalStrength
		}
		return results[i].Depth < results[j].Depth
	})
}
