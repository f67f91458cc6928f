package mcp

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"strings"
	"testing"
)

// captureOutput redirects stdout during test and returns captured content
func captureOutput(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// setupTestServer creates a server with a temp data directory
func setupTestServer(t *testing.T) (*Server, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "xylem-mcp-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}

	originalDataDir := os.Getenv("XYLEM_DATA_DIR")
	os.Setenv("XYLEM_DATA_DIR", tmpDir)

	// Suppress stderr output during tests
	oldStderr := os.Stderr
	os.Stderr, _ = os.Open(os.DevNull)

	server, err := NewServer()

	os.Stderr = oldStderr

	if err != nil {
		os.RemoveAll(tmpDir)
		os.Setenv("XYLEM_DATA_DIR", originalDataDir)
		t.Fatalf("failed to create server: %v", err)
	}

	cleanup := func() {
		server.Stop()
		os.RemoveAll(tmpDir)
		os.Setenv("XYLEM_DATA_DIR", originalDataDir)
	}

	return server, cleanup
}

// callTool runs a tools/call request and returns the parsed response
func callTool(t *testing.T, server *Server, name string, args map[string]interface{}) JSONRPCResponse {
	t.Helper()

	params, _ := json.Marshal(map[string]interface{}{
		"name":      name,
		"arguments": args,
	})
	req := &JSONRPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  params,
	}

	output := captureOutput(func() {
		server.handleRequest(req)
	})

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		t.Fatalf("failed to parse response: %v\noutput: %s", err, output)
	}
	return resp
}

// toolText extracts the text content from a tool call response
func toolText(t *testing.T, resp JSONRPCResponse) (string, bool) {
	t.Helper()

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}
	content, ok := result["content"].([]interface{})
	if !ok || len(content) == 0 {
		t.Fatal("missing content")
	}
	first := content[0].(map[string]interface{})
	isError, _ := result["isError"].(bool)
	return first["text"].(string), isError
}

func relationshipDoc(causeID, effectID string, strength float64) map[string]interface{} {
	return map[string]interface{}{
		"type":       "direct",
		"category":   "physical",
		"strength":   strength,
		"confidence": 0.9,
		"cause":      map[string]interface{}{"id": causeID, "name": causeID},
		"effect": map[string]interface{}{
			"id": effectID, "name": effectID,
			"magnitude": 0.5, "probability": 0.9,
		},
	}
}

func TestNewServer(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	if server == nil {
		t.Fatal("expected non-nil server")
	}
	if server.store == nil {
		t.Error("expected non-nil store")
	}
}

func TestHandleInitialize(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := &JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "initialize"}
	output := captureOutput(func() {
		server.handleRequest(req)
	})

	var resp JSONRPCResponse
	if err := json.Unmarshal([]byte(output), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Error != nil {
		t.Errorf("unexpected error: %v", resp.Error)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatal("result is not a map")
	}
	if result["protocolVersion"] != "2024-11-05" {
		t.Errorf("protocol version = %v", result["protocolVersion"])
	}
	serverInfo := result["serverInfo"].(map[string]interface{})
	if serverInfo["name"] != "xylem-mcp" {
		t.Errorf("server name = %v", serverInfo["name"])
	}
}

func TestHandleToolsList(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	req := &JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"}
	output := captureOutput(func() {
		server.handleRequest(req)
	})

	for _, tool := range []string{
		"record_relationship", "trace_chains", "analyze_patterns",
		"query_relationships", "related_nodes", "revise_relationship",
		"forget_relationship", "causal_stats",
	} {
		if !strings.Contains(output, tool) {
			t.Errorf("tools/list missing %q", tool)
		}
	}
}

func TestRecordAndTraceChains(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "record_relationship", map[string]interface{}{
		"relationship": relationshipDoc("a", "b", 0.8),
	})
	text, isError := toolText(t, resp)
	if isError {
		t.Fatalf("record failed: %s", text)
	}
	if !strings.Contains(text, "recorded") {
		t.Errorf("unexpected record response: %s", text)
	}

	resp = callTool(t, server, "record_relationship", map[string]interface{}{
		"relationship": relationshipDoc("b", "c", 0.6),
	})
	if _, isError := toolText(t, resp); isError {
		t.Fatal("second record failed")
	}

	resp = callTool(t, server, "trace_chains", map[string]interface{}{
		"start_id": "a",
	})
	text, isError = toolText(t, resp)
	if isError {
		t.Fatalf("trace failed: %s", text)
	}

	var traced struct {
		Count  int `json:"count"`
		Chains []struct {
			Path          []string `json:"path"`
			TotalStrength float64  `json:"total_strength"`
		} `json:"chains"`
	}
	if err := json.Unmarshal([]byte(text), &traced); err != nil {
		t.Fatalf("failed to parse trace result: %v", err)
	}
	if traced.Count != 1 {
		t.Fatalf("got %d chains, want 1", traced.Count)
	}
	if len(traced.Chains[0].Path) != 3 || traced.Chains[0].Path[2] != "c" {
		t.Errorf("path = %v", traced.Chains[0].Path)
	}
}

func TestRecordRelationshipValidation(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	doc := relationshipDoc("a", "b", 1.5) // strength out of range
	resp := callTool(t, server, "record_relationship", map[string]interface{}{
		"relationship": doc,
	})
	text, isError := toolText(t, resp)
	if !isError {
		t.Fatalf("expected validation error, got: %s", text)
	}
	if !strings.Contains(text, "strength") {
		t.Errorf("error text should mention strength: %s", text)
	}
}

func TestAnalyzePatternsTool(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "record_relationship", map[string]interface{}{
		"relationship": relationshipDoc("a", "b", 0.8),
		"agent_id":     "agent-7",
	})
	if _, isError := toolText(t, resp); isError {
		t.Fatal("record failed")
	}

	resp = callTool(t, server, "analyze_patterns", map[string]interface{}{
		"agent_id": "agent-7",
	})
	text, isError := toolText(t, resp)
	if isError {
		t.Fatalf("analyze failed: %s", text)
	}
	if !strings.Contains(text, "strongestCauses") || !strings.Contains(text, "causalCategories") {
		t.Errorf("unexpected analysis payload: %s", text)
	}
}

func TestReviseAndForget(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "record_relationship", map[string]interface{}{
		"relationship": relationshipDoc("x", "y", 0.5),
	})
	text, _ := toolText(t, resp)
	var recorded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal([]byte(text), &recorded); err != nil || recorded.ID == "" {
		t.Fatalf("failed to get recorded id: %v / %s", err, text)
	}

	resp = callTool(t, server, "revise_relationship", map[string]interface{}{
		"id":         recorded.ID,
		"strength":   0.9,
		"confidence": 0.8,
		"source":     "new observation",
	})
	text, isError := toolText(t, resp)
	if isError {
		t.Fatalf("revise failed: %s", text)
	}
	if !strings.Contains(text, "revised") {
		t.Errorf("unexpected revise response: %s", text)
	}

	resp = callTool(t, server, "forget_relationship", map[string]interface{}{
		"id": recorded.ID,
	})
	text, isError = toolText(t, resp)
	if isError {
		t.Fatalf("forget failed: %s", text)
	}

	resp = callTool(t, server, "get_relationship", map[string]interface{}{
		"id": recorded.ID,
	})
	if _, isError := toolText(t, resp); !isError {
		t.Error("expected error fetching forgotten relationship")
	}
}

func TestUnknownToolAndMethod(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	resp := callTool(t, server, "does_not_exist", nil)
	if resp.Error == nil || resp.Error.Code != -32602 {
		t.Errorf("unknown tool: expected -32602, got %+v", resp.Error)
	}

	req := &JSONRPCRequest{JSONRPC: "2.0", ID: 2, Method: "nope"}
	output := captureOutput(func() {
		server.handleRequest(req)
	})
	var methodResp JSONRPCResponse
	if err := json.Unmarshal([]byte(output), &methodResp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if methodResp.Error == nil || methodResp.Error.Code != -32601 {
		t.Errorf("unknown method: expected -32601, got %+v", methodResp.Error)
	}
}

func TestResourceRead(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	params, _ := json.Marshal(map[string]string{"uri": "xylem://stats"})
	req := &JSONRPCRequest{JSONRPC: "2.0", ID: 1, Method: "resources/read", Params: params}

	output := captureOutput(func() {
		server.handleRequest(req)
	})

	if !strings.Contains(output, "total_relationships") {
		t.Errorf("stats resource missing counts: %s", output)
	}
}

func TestGetCausalStats(t *testing.T) {
	server, cleanup := setupTestServer(t)
	defer cleanup()

	stats := server.GetCausalStats()
	if stats.TotalRelationships != 0 {
		t.Errorf("fresh store count = %d", stats.TotalRelationships)
	}
	if stats.LastActivity != "never" {
		t.Errorf("fresh store last activity = %q", stats.LastActivity)
	}
}
