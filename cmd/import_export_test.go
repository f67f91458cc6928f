package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExecute_Import_Usage(t *testing.T) {
	defer setArgs("xylem", "import")()
	if err := Execute(); err == nil {
		t.Fatal("import without args should return error")
	}
}

func TestExecute_Import_InvalidFile(t *testing.T) {
	tmpDir := setTestDataDir(t)

	badPath := filepath.Join(tmpDir, "bad.json")
	os.WriteFile(badPath, []byte("not json"), 0644)

	defer setArgs("xylem", "import", badPath)()
	if err := Execute(); err == nil {
		t.Fatal("import of invalid JSON should return error")
	}
}

func TestExecute_Export_Empty(t *testing.T) {
	tmpDir := setTestDataDir(t)
	outPath := filepath.Join(tmpDir, "out.json")

	defer setArgs("xylem", "export", outPath)()
	if _, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(export): %v", e)
		}
	}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("expected export file to be created: %v", err)
	}
	var rels []json.RawMessage
	if err := json.Unmarshal(data, &rels); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if len(rels) != 0 {
		t.Errorf("empty store exported %d relationships", len(rels))
	}
}

func TestExecute_ImportExport_RoundTrip(t *testing.T) {
	tmpDir := setTestDataDir(t)
	exportPath := filepath.Join(tmpDir, "export.json")

	for _, pair := range [][2]string{{"deploy", "outage"}, {"outage", "page"}} {
		restore := setArgs("xylem", "record", pair[0], pair[1], "--strength", "0.8")
		if _, err := captureStdout(func() {
			if e := Execute(); e != nil {
				t.Fatalf("Execute(record): %v", e)
			}
		}); err != nil {
			t.Fatal(err)
		}
		restore()
	}

	restore := setArgs("xylem", "export", exportPath)
	if _, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(export): %v", e)
		}
	}); err != nil {
		t.Fatal(err)
	}
	restore()

	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("expected export file: %v", err)
	}
	var rels []json.RawMessage
	if err := json.Unmarshal(data, &rels); err != nil {
		t.Fatalf("export is not a JSON array: %v", err)
	}
	if len(rels) != 2 {
		t.Fatalf("exported %d relationships, want 2", len(rels))
	}

	// Import into a fresh store under a different agent id
	freshDir := t.TempDir()
	os.Setenv("XYLEM_DATA_DIR", freshDir)

	restore = setArgs("xylem", "import", exportPath, "--agent", "planner-1")
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(import): %v", e)
		}
	})
	restore()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Relationships imported: 2") {
		t.Errorf("import output = %q", out)
	}

	reExportPath := filepath.Join(freshDir, "reexport.json")
	restore = setArgs("xylem", "export", reExportPath, "--agent", "planner-1")
	if _, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(export --agent): %v", e)
		}
	}); err != nil {
		t.Fatal(err)
	}
	restore()

	data, err = os.ReadFile(reExportPath)
	if err != nil {
		t.Fatalf("expected re-export file: %v", err)
	}
	rels = nil
	if err := json.Unmarshal(data, &rels); err != nil {
		t.Fatalf("re-export is not a JSON array: %v", err)
	}
	if len(rels) != 2 {
		t.Errorf("agent override lost relationships: got %d, want 2", len(rels))
	}
}
