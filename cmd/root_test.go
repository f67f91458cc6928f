package cmd

import (
	"io"
	"os"
	"strings"
	"testing"
)

func setArgs(args ...string) func() {
	orig := os.Args
	os.Args = args
	return func() { os.Args = orig }
}

func setTestDataDir(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	os.Setenv("XYLEM_DATA_DIR", tmpDir)
	t.Cleanup(func() { os.Unsetenv("XYLEM_DATA_DIR") })
	return tmpDir
}

func captureStdout(f func()) (string, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return "", err
	}
	old := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = old; w.Close() }()
	f()
	w.Close()
	data, _ := io.ReadAll(r)
	return string(data), nil
}

func TestExecute_Help(t *testing.T) {
	defer setArgs("xylem", "help")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(help): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Xylem") {
		t.Errorf("help output should contain 'Xylem': %q", out)
	}
	for _, sub := range []string{"record", "trace", "analyze", "import", "export", "doctor"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output should list %q subcommand", sub)
		}
	}
}

func TestExecute_HelpShortFlag(t *testing.T) {
	defer setArgs("xylem", "-h")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(-h): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Error("help -h should print")
	}
}

func TestExecute_Version(t *testing.T) {
	defer setArgs("xylem", "version")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(version): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "xylem") || !strings.Contains(out, Version) {
		t.Errorf("version output = %q", out)
	}
}

func TestSetVersion(t *testing.T) {
	origV, origC, origD := Version, Commit, Date
	defer SetVersion(origV, origC, origD)

	SetVersion("1.2.3", "abc1234", "2026-08-23")
	if Version != "1.2.3" || Commit != "abc1234" || Date != "2026-08-23" {
		t.Errorf("SetVersion not applied: %s %s %s", Version, Commit, Date)
	}
}

func TestExecute_Record_And_Status(t *testing.T) {
	setTestDataDir(t)

	restore := setArgs("xylem", "record", "deploy-fail", "outage", "--strength", "0.8", "--confidence", "0.9")
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(record): %v", e)
		}
	})
	restore()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "deploy-fail -> outage") {
		t.Errorf("record output = %q", out)
	}

	defer setArgs("xylem", "status")()
	out, err = captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(status): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Total Relationships: 1") {
		t.Errorf("status output = %q", out)
	}
	if !strings.Contains(out, "Distinct Nodes: 2") {
		t.Errorf("status output = %q", out)
	}
}

func TestExecute_Record_InvalidStrength(t *testing.T) {
	setTestDataDir(t)

	defer setArgs("xylem", "record", "a", "b", "--strength", "1.5")()
	if err := Execute(); err == nil {
		t.Fatal("record with strength 1.5 should return error")
	}
}

func TestExecute_Trace(t *testing.T) {
	setTestDataDir(t)

	for _, pair := range [][2]string{{"a", "b"}, {"b", "c"}} {
		restore := setArgs("xylem", "record", pair[0], pair[1], "--strength", "0.8")
		if _, err := captureStdout(func() { _ = Execute() }); err != nil {
			t.Fatal(err)
		}
		restore()
	}

	defer setArgs("xylem", "trace", "a", "--direction", "forward", "--depth", "5")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(trace): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "a -> b -> c") {
		t.Errorf("trace output should show the chain: %q", out)
	}
}

func TestExecute_Doctor(t *testing.T) {
	setTestDataDir(t)

	defer setArgs("xylem", "doctor")()
	out, err := captureStdout(func() {
		if e := Execute(); e != nil {
			t.Fatalf("Execute(doctor): %v", e)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Error("doctor should print check results")
	}
}
