// Package mcp implements the Model Context Protocol server for Xylem
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/CanopyHQ/xylem/internal/causal"
)

// Version is set by the CLI at startup
var Version = "dev"

// Server implements the MCP protocol over stdio
type Server struct {
	store   *causal.Store
	scanner *bufio.Scanner
}

// CausalStats contains statistics about the relationship store
type CausalStats struct {
	TotalRelationships int    `json:"total_relationships"`
	TotalNodes         int    `json:"total_nodes"`
	DatabaseSize       string `json:"database_size"`
	LastActivity       string `json:"last_activity"`
}

// NewServer creates a new MCP server
func NewServer() (*Server, error) {
	store, err := causal.NewStore()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize causal store: %w", err)
	}
	return &Server{
		store:   store,
		scanner: bufio.NewScanner(os.Stdin),
	}, nil
}

// Start begins the MCP server loop
func (s *Server) Start() error {
	fmt.Fprintln(os.Stderr, "🌿 Xylem MCP server ready")

	for s.scanner.Scan() {
		line := s.scanner.Text()
		if line == "" {
			continue
		}

		var request JSONRPCRequest
		if err := json.Unmarshal([]byte(line), &request); err != nil {
			s.sendError(nil, -32700, "Parse error", err.Error())
			continue
		}

		s.handleRequest(&request)
	}

	return s.scanner.Err()
}

// Stop gracefully shuts down the server
func (s *Server) Stop() {
	if s.store != nil {
		s.store.Close()
	}
}

// GetCausalStats returns statistics about the relationship store
func (s *Server) GetCausalStats() CausalStats {
	ctx := context.Background()
	count, _ := s.store.Count(ctx)
	nodes, _ := s.store.NodeCount(ctx)
	size, _ := s.store.Size()
	lastActivity, _ := s.store.LastActivity(ctx)

	lastActivityStr := "never"
	if !lastActivity.IsZero() {
		lastActivityStr = lastActivity.Format(time.RFC3339)
	}

	return CausalStats{
		TotalRelationships: count,
		TotalNodes:         nodes,
		DatabaseSize:       size,
		LastActivity:       lastActivityStr,
	}
}

// handleRequest processes a JSON-RPC request
func (s *Server) handleRequest(req *JSONRPCRequest) {
	ctx := context.Background()

	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "tools/list":
		s.handleToolsList(req)
	case "tools/call":
		s.handleToolCall(ctx, req)
	case "resources/list":
		s.handleResourcesList(req)
	case "resources/read":
		s.handleResourceRead(ctx, req)
	case "prompts/list":
		s.handlePromptsList(req)
	case "prompts/get":
		s.handlePromptsGet(ctx, req)
	default:
		s.sendError(req.ID, -32601, "Method not found", req.Method)
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *JSONRPCRequest) {
	result := map[string]interface{}{
		"protocolVersion": "2024-11-05",
		"capabilities": map[string]interface{}{
			"tools":     map[string]interface{}{},
			"resources": map[string]interface{}{},
			"prompts":   map[string]interface{}{},
		},
		"serverInfo": map[string]interface{}{
			"name":    "xylem-mcp",
			"version": Version,
		},
	}
	s.sendResult(req.ID, result)
}

// handleToolsList returns available tools
func (s *Server) handleToolsList(req *JSONRPCRequest) {
	tools := []map[string]interface{}{
		{
			"name":        "record_relationship",
			"description": "Record a causal relationship (cause -> effect) observed by the agent. Use this whenever you learn that one thing causes another.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"relationship": map[string]interface{}{
						"type":        "object",
						"description": "The full relationship document. Requires cause.id, effect.id, type, category, strength and confidence in [0,1].",
					},
					"agent_id": map[string]interface{}{
						"type":        "string",
						"description": "Agent recording the relationship (default: 'default')",
					},
				},
				"required": []string{"relationship"},
			},
		},
		{
			"name":        "get_relationship",
			"description": "Fetch a single causal relationship by its ID",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "The relationship ID",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			"name":        "query_relationships",
			"description": "List an agent's causal relationships, newest first, optionally filtered by type, category, or minimum strength.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agent_id": map[string]interface{}{
						"type":        "string",
						"description": "Agent whose relationships to list (default: 'default')",
					},
					"type": map[string]interface{}{
						"type":        "string",
						"description": "Filter by relationship type: direct, indirect, conditional, probabilistic, temporal",
					},
					"category": map[string]interface{}{
						"type":        "string",
						"description": "Filter by category: physical, logical, social, economic, psychological, temporal",
					},
					"min_strength": map[string]interface{}{
						"type":        "number",
						"description": "Only relationships at least this strong",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of relationships to return (default: 20)",
					},
				},
			},
		},
		{
			"name":        "trace_chains",
			"description": "Trace causal chains from a node. 'forward' follows effects (what does this cause?), 'backward' follows causes (what causes this?), 'both' runs each independently. Chains are ranked by total strength.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"start_id": map[string]interface{}{
						"type":        "string",
						"description": "Node ID to start from (a cause or effect ID)",
					},
					"direction": map[string]interface{}{
						"type":        "string",
						"description": "One of: forward, backward, both (default: forward)",
					},
					"max_depth": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of edges per chain (default: 5)",
					},
				},
				"required": []string{"start_id"},
			},
		},
		{
			"name":        "analyze_patterns",
			"description": "Analyze an agent's causal history: strongest direct causes, common effects, per-category aggregates, and temporal cause->effect patterns.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"agent_id": map[string]interface{}{
						"type":        "string",
						"description": "Agent whose history to analyze (default: 'default')",
					},
				},
			},
		},
		{
			"name":        "related_nodes",
			"description": "Find cause/effect nodes semantically similar to a query. Useful to locate the right node ID before tracing chains.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "What you're looking for",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of nodes to return (default: 10)",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			"name":        "revise_relationship",
			"description": "Revise the strength and confidence of an existing relationship based on new evidence. The revision is appended to the relationship's learning history.",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "The relationship ID",
					},
					"strength": map[string]interface{}{
						"type":        "number",
						"description": "New strength in [0,1]",
					},
					"confidence": map[string]interface{}{
						"type":        "number",
						"description": "New confidence in [0,1]",
					},
					"source": map[string]interface{}{
						"type":        "string",
						"description": "What prompted the revision (e.g. 'new observation')",
					},
				},
				"required": []string{"id", "strength", "confidence"},
			},
		},
		{
			"name":        "forget_relationship",
			"description": "Delete a causal relationship by ID",
			"inputSchema": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"id": map[string]interface{}{
						"type":        "string",
						"description": "The ID of the relationship to forget",
					},
				},
				"required": []string{"id"},
			},
		},
		{
			"name":        "causal_stats",
			"description": "Get statistics about the causal store",
			"inputSchema": map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}

	s.sendResult(req.ID, map[string]interface{}{"tools": tools})
}

// handleToolCall executes a tool
func (s *Server) handleToolCall(ctx context.Context, req *JSONRPCRequest) {
	var params struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	var result interface{}
	var err error

	switch params.Name {
	case "record_relationship":
		result, err = s.toolRecordRelationship(ctx, params.Arguments)
	case "get_relationship":
		result, err = s.toolGetRelationship(ctx, params.Arguments)
	case "query_relationships":
		result, err = s.toolQueryRelationships(ctx, params.Arguments)
	case "trace_chains":
		result, err = s.toolTraceChains(ctx, params.Arguments)
	case "analyze_patterns":
		result, err = s.toolAnalyzePatterns(ctx, params.Arguments)
	case "related_nodes":
		result, err = s.toolRelatedNodes(ctx, params.Arguments)
	case "revise_relationship":
		result, err = s.toolReviseRelationship(ctx, params.Arguments)
	case "forget_relationship":
		result, err = s.toolForgetRelationship(ctx, params.Arguments)
	case "causal_stats":
		result, err = s.toolCausalStats(ctx)
	default:
		s.sendError(req.ID, -32602, "Unknown tool", params.Name)
		return
	}

	if err != nil {
		s.sendResult(req.ID, map[string]interface{}{
			"content": []map[string]interface{}{
				{"type": "text", "text": fmt.Sprintf("Error: %v", err)},
			},
			"isError": true,
		})
		return
	}

	// Format result as MCP content
	text, _ := json.MarshalIndent(result, "", "  ")
	s.sendResult(req.ID, map[string]interface{}{
		"content": []map[string]interface{}{
			{"type": "text", "text": string(text)},
		},
	})
}

// Tool implementations

func (s *Server) toolRecordRelationship(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	relRaw, ok := args["relationship"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("relationship is required")
	}

	// Round-trip through JSON so the document shape rules apply
	relJSON, err := json.Marshal(relRaw)
	if err != nil {
		return nil, fmt.Errorf("invalid relationship: %w", err)
	}
	var rel causal.CausalRelationship
	if err := json.Unmarshal(relJSON, &rel); err != nil {
		return nil, fmt.Errorf("invalid relationship: %w", err)
	}

	if agentID, ok := args["agent_id"].(string); ok && agentID != "" {
		rel.AgentID = agentID
	}
	if rel.AgentID == "" {
		rel.AgentID = "default"
	}

	id, err := s.store.Store(ctx, &rel)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":  "recorded",
		"id":      id,
		"message": fmt.Sprintf("Relationship %s -> %s stored with ID %s", rel.Cause.ID, rel.Effect.ID, id),
	}, nil
}

func (s *Server) toolGetRelationship(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("id is required")
	}

	rel, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rel == nil {
		return nil, fmt.Errorf("relationship not found: %s", id)
	}
	return rel, nil
}

func (s *Server) toolQueryRelationships(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	agentID := "default"
	if a, ok := args["agent_id"].(string); ok && a != "" {
		agentID = a
	}

	filter := &causal.Filter{}
	if t, ok := args["type"].(string); ok && t != "" {
		filter.Type = causal.RelationType(t)
	}
	if c, ok := args["category"].(string); ok && c != "" {
		filter.Category = causal.Category(c)
	}
	if m, ok := args["min_strength"].(float64); ok {
		filter.MinStrength = &m
	}

	limit := 20
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	rels, err := s.store.QueryByAgent(ctx, agentID, filter)
	if err != nil {
		return nil, err
	}
	if len(rels) > limit {
		rels = rels[:limit]
	}

	results := make([]map[string]interface{}, len(rels))
	for i, rel := range rels {
		results[i] = map[string]interface{}{
			"id":         rel.ID,
			"type":       rel.Type,
			"category":   rel.Category,
			"cause":      rel.Cause.ID,
			"effect":     rel.Effect.ID,
			"strength":   rel.Strength,
			"confidence": rel.Confidence,
			"timestamp":  rel.Timestamp.Format(time.RFC3339),
		}
	}

	return map[string]interface{}{
		"agent_id":      agentID,
		"count":         len(results),
		"relationships": results,
	}, nil
}

func (s *Server) toolTraceChains(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	startID, ok := args["start_id"].(string)
	if !ok || startID == "" {
		return nil, fmt.Errorf("start_id is required")
	}

	direction := causal.DirectionForward
	if d, ok := args["direction"].(string); ok && d != "" {
		direction = causal.Direction(d)
	}

	maxDepth := causal.DefaultMaxDepth
	if d, ok := args["max_depth"].(float64); ok {
		maxDepth = int(d)
	}

	chains, err := s.store.Traverse(ctx, startID, direction, maxDepth)
	if err != nil {
		return nil, err
	}

	results := make([]map[string]interface{}, len(chains))
	for i, chain := range chains {
		results[i] = map[string]interface{}{
			"path":           chain.Path,
			"depth":          chain.Depth,
			"total_strength": chain.TotalStrength,
			"direction":      chain.Direction,
			"edges":          len(chain.Edges),
			"seed_id":        chain.Relationship.ID,
		}
	}

	return map[string]interface{}{
		"start_id": startID,
		"count":    len(results),
		"chains":   results,
	}, nil
}

func (s *Server) toolAnalyzePatterns(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	agentID := "default"
	if a, ok := args["agent_id"].(string); ok && a != "" {
		agentID = a
	}
	return s.store.Analyze(ctx, agentID)
}

func (s *Server) toolRelatedNodes(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	query, ok := args["query"].(string)
	if !ok || query == "" {
		return nil, fmt.Errorf("query is required")
	}

	limit := 10
	if l, ok := args["limit"].(float64); ok && l > 0 {
		limit = int(l)
	}

	nodes, err := s.store.FindRelatedNodes(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"query": query,
		"count": len(nodes),
		"nodes": nodes,
	}, nil
}

func (s *Server) toolReviseRelationship(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("id is required")
	}
	strength, ok := args["strength"].(float64)
	if !ok {
		return nil, fmt.Errorf("strength is required")
	}
	confidence, ok := args["confidence"].(float64)
	if !ok {
		return nil, fmt.Errorf("confidence is required")
	}
	source, _ := args["source"].(string)

	rel, err := s.store.ReviseLearning(ctx, id, strength, confidence, source)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":       "revised",
		"id":           rel.ID,
		"strength":     rel.Strength,
		"confidence":   rel.Confidence,
		"update_count": rel.Learning.UpdateCount,
	}, nil
}

func (s *Server) toolForgetRelationship(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	id, ok := args["id"].(string)
	if !ok || id == "" {
		return nil, fmt.Errorf("id is required")
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":  "forgotten",
		"id":      id,
		"message": fmt.Sprintf("Relationship %s has been forgotten", id),
	}, nil
}

func (s *Server) toolCausalStats(ctx context.Context) (interface{}, error) {
	return s.GetCausalStats(), nil
}

// handleResourcesList returns available resources
func (s *Server) handleResourcesList(req *JSONRPCRequest) {
	resources := []map[string]interface{}{
		{
			"uri":         "xylem://relationships/recent",
			"name":        "Recent Relationships",
			"description": "Most recently recorded causal relationships",
			"mimeType":    "application/json",
		},
		{
			"uri":         "xylem://stats",
			"name":        "Causal Store Statistics",
			"description": "Statistics about the relationship store",
			"mimeType":    "application/json",
		},
	}

	s.sendResult(req.ID, map[string]interface{}{"resources": resources})
}

// handleResourceRead reads a resource
func (s *Server) handleResourceRead(ctx context.Context, req *JSONRPCRequest) {
	var params struct {
		URI string `json:"uri"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	var content interface{}
	var err error

	switch params.URI {
	case "xylem://relationships/recent":
		content, err = s.toolQueryRelationships(ctx, map[string]interface{}{"limit": float64(10)})
	case "xylem://stats":
		content, err = s.toolCausalStats(ctx)
	default:
		s.sendError(req.ID, -32602, "Unknown resource", params.URI)
		return
	}

	if err != nil {
		s.sendError(req.ID, -32603, "Internal error", err.Error())
		return
	}

	text, _ := json.MarshalIndent(content, "", "  ")
	s.sendResult(req.ID, map[string]interface{}{
		"contents": []map[string]interface{}{
			{
				"uri":      params.URI,
				"mimeType": "application/json",
				"text":     string(text),
			},
		},
	})
}

// handlePromptsList returns available prompts
func (s *Server) handlePromptsList(req *JSONRPCRequest) {
	prompts := []map[string]interface{}{
		{
			"name":        "with_causes",
			"description": "Enhance your prompt with known causal chains around a topic",
			"arguments": []map[string]interface{}{
				{
					"name":        "node_id",
					"description": "Node to trace causal context from",
					"required":    true,
				},
			},
		},
	}

	s.sendResult(req.ID, map[string]interface{}{"prompts": prompts})
}

// handlePromptsGet returns a prompt with causal context injected
func (s *Server) handlePromptsGet(ctx context.Context, req *JSONRPCRequest) {
	var params struct {
		Name      string            `json:"name"`
		Arguments map[string]string `json:"arguments"`
	}

	if err := json.Unmarshal(req.Params, &params); err != nil {
		s.sendError(req.ID, -32602, "Invalid params", err.Error())
		return
	}

	if params.Name != "with_causes" {
		s.sendError(req.ID, -32602, "Unknown prompt", params.Name)
		return
	}

	nodeID := params.Arguments["node_id"]
	if nodeID == "" {
		s.sendError(req.ID, -32602, "Missing required argument", "node_id")
		return
	}

	var causalContext string
	chains, err := s.store.Traverse(ctx, nodeID, causal.DirectionBoth, causal.DefaultMaxDepth)
	if err == nil && len(chains) > 0 {
		causalContext = "Known causal chains:\n"
		for i, chain := range chains {
			if i >= 5 {
				break
			}
			causalContext += fmt.Sprintf("- %s (%s, strength %.2f)\n",
				joinPath(chain.Path, chain.Direction), chain.Direction, chain.TotalStrength)
		}
		causalContext += "\n"
	}

	messages := []map[string]interface{}{
		{
			"role": "user",
			"content": map[string]interface{}{
				"type": "text",
				"text": causalContext + fmt.Sprintf("Consider the causal context around %s.", nodeID),
			},
		},
	}

	s.sendResult(req.ID, map[string]interface{}{
		"description": "Query enhanced with causal context",
		"messages":    messages,
	})
}

// joinPath renders a chain path with direction-appropriate arrows.
func joinPath(path []string, dir causal.Direction) string {
	sep := " -> "
	if dir == causal.DirectionBackward {
		sep = " <- "
	}
	out := ""
	for i, node := range path {
		if i > 0 {
			out += sep
		}
		out += node
	}
	return out
}

// JSON-RPC types and helpers

type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type JSONRPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

func (s *Server) sendResult(id interface{}, result interface{}) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Result:  result,
	}
	data, _ := json.Marshal(resp)
	fmt.Println(string(data))
}

func (s *Server) sendError(id interface{}, code int, message, data string) {
	resp := JSONRPCResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &RPCError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
	respData, _ := json.Marshal(resp)
	fmt.Println(string(respData))
}
