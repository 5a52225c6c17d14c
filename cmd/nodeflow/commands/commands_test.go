package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openfroyo/nodeflow/pkg/config"
)

const greeting = `{
  "name": "greeting",
  "version": 1,
  "nodes": [
    {"id": 1, "type": "String", "module": "core", "params": {"value": "hi"}},
    {"id": 2, "type": "SetType", "module": "core", "params": {"type": "String"}},
    {"id": 3, "type": "Number", "module": "core", "params": {"value": 4}},
    {"id": 4, "type": "SetType", "module": "core", "params": {}}
  ],
  "connections": [
    {"id": 1, "src": {"nodeId": 1, "key": "output", "slot": 0}, "target": {"nodeId": 2, "key": "input", "slot": 0}}
  ]
}`

func writeDocument(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "greeting.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write document: %v", err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return buf.String(), err
}

func TestEval(t *testing.T) {
	path := writeDocument(t, greeting)

	got, err := run(t, "eval", path)
	if err != nil {
		t.Fatalf("eval failed: %v\n%s", err, got)
	}
	if !strings.Contains(got, "document greeting:") || !strings.Contains(got, "0 mismatches") {
		t.Errorf("Expected a clean summary, got:\n%s", got)
	}
	if !strings.Contains(got, `"hi"`) {
		t.Errorf("Expected the literal in the output, got:\n%s", got)
	}
}

func TestEval_BrokenDocument(t *testing.T) {
	broken := strings.Replace(greeting, `"nodeId": 2, "key": "input"`, `"nodeId": 9, "key": "input"`, 1)
	path := writeDocument(t, broken)

	got, err := run(t, "eval", path)
	if err == nil {
		t.Fatalf("Expected an error, got output:\n%s", got)
	}
	if !strings.Contains(got, "document greeting:") {
		t.Errorf("Expected the failure to be reported per document, got:\n%s", got)
	}
}

func TestValidate(t *testing.T) {
	path := writeDocument(t, greeting)
	got, err := run(t, "validate", path)
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, got)
	}
	if !strings.Contains(got, path+": ok") {
		t.Errorf("Expected %s to be ok, got:\n%s", path, got)
	}

	broken := writeDocument(t, strings.Replace(greeting, `"nodeId": 2, "key": "input"`, `"nodeId": 9, "key": "input"`, 1))
	got, err = run(t, "validate", broken)
	if err == nil {
		t.Fatalf("Expected validation to fail, got:\n%s", got)
	}
	if !strings.Contains(got, broken+": invalid") {
		t.Errorf("Expected %s to be invalid, got:\n%s", broken, got)
	}
}

func TestDotLevels(t *testing.T) {
	path := writeDocument(t, greeting)

	got, err := run(t, "dot", path)
	if err != nil {
		t.Fatalf("dot failed: %v", err)
	}
	if !strings.Contains(got, `"1" -> "2"`) {
		t.Errorf("Expected an edge from 1 to 2, got:\n%s", got)
	}

	got, err = run(t, "dot", "--levels", path)
	if err != nil {
		t.Fatalf("dot --levels failed: %v", err)
	}
	if !strings.Contains(got, "level 0: 1, 3, 4") || !strings.Contains(got, "level 1: 2") {
		t.Errorf("Unexpected levels:\n%s", got)
	}
}

func TestModules(t *testing.T) {
	got, err := run(t, "modules")
	if err != nil {
		t.Fatalf("modules failed: %v", err)
	}
	for _, name := range []string{"core", "collection", "ui"} {
		if !strings.Contains(got, name) {
			t.Errorf("Expected module %s in:\n%s", name, got)
		}
	}
}

func TestConnect(t *testing.T) {
	path := writeDocument(t, greeting)

	got, err := run(t, "connect", "--check", path, "3.output", "2.input")
	if err != nil {
		t.Fatalf("connect --check failed: %v", err)
	}
	if !strings.HasPrefix(got, "refused: ") {
		t.Errorf("Expected a Number into a String port to be refused, got %q", got)
	}

	got, err = run(t, "connect", path, "3.output", "4.input")
	if err != nil {
		t.Fatalf("connect failed: %v\n%s", err, got)
	}
	if !strings.Contains(got, "3.output -> 4.input[0]") {
		t.Errorf("Unexpected output %q", got)
	}

	doc, err := config.NewLoader().LoadDocument(path)
	if err != nil {
		t.Fatalf("Failed to reload document: %v", err)
	}
	if len(doc.Connections) != 2 {
		t.Errorf("Expected 2 connections, got %d", len(doc.Connections))
	}
}

func TestConnect_RejectsBadPort(t *testing.T) {
	path := writeDocument(t, greeting)
	if _, err := run(t, "connect", path, "3", "4.input"); err == nil {
		t.Error("Expected an error for a port without a key")
	}
}

func TestSet(t *testing.T) {
	path := writeDocument(t, greeting)
	out := filepath.Join(t.TempDir(), "out.json")

	got, err := run(t, "set", "-o", out, path, "1", "value", "hello")
	if err != nil {
		t.Fatalf("set failed: %v\n%s", err, got)
	}
	if got != "node 1: value = \"hello\"\n" {
		t.Errorf("Unexpected output %q", got)
	}

	doc, err := config.NewLoader().LoadDocument(out)
	if err != nil {
		t.Fatalf("Failed to load output: %v", err)
	}
	if doc.Nodes[0].Params["value"] != "hello" {
		t.Errorf("Expected hello, got %v", doc.Nodes[0].Params["value"])
	}

	if _, err := run(t, "set", path, "99", "value", "1"); err == nil {
		t.Error("Expected an error for a missing node")
	}
}

func TestStore(t *testing.T) {
	path := writeDocument(t, greeting)
	db := filepath.Join(t.TempDir(), "snapshots.db")

	got, err := run(t, "store", "--db", db, "save", "-m", "first", path)
	if err != nil {
		t.Fatalf("store save failed: %v", err)
	}
	if !strings.HasPrefix(got, "saved greeting revision 1") {
		t.Errorf("Unexpected output %q", got)
	}

	got, err = run(t, "store", "--db", db, "save", path)
	if err != nil {
		t.Fatalf("store save failed: %v", err)
	}
	if got != "unchanged greeting revision 1\n" {
		t.Errorf("Unexpected output %q", got)
	}

	got, err = run(t, "store", "--db", db, "list")
	if err != nil {
		t.Fatalf("store list failed: %v", err)
	}
	if !strings.Contains(got, "greeting") {
		t.Errorf("Expected greeting in:\n%s", got)
	}

	got, err = run(t, "store", "--db", db, "history", "greeting")
	if err != nil {
		t.Fatalf("store history failed: %v", err)
	}
	if !strings.Contains(got, "first") {
		t.Errorf("Expected the revision message in:\n%s", got)
	}

	restored := filepath.Join(t.TempDir(), "restored.json")
	if _, err := run(t, "store", "--db", db, "load", "--rev", "1", "-o", restored, "greeting"); err != nil {
		t.Fatalf("store load failed: %v", err)
	}
	doc, err := config.NewLoader().LoadDocument(restored)
	if err != nil {
		t.Fatalf("Failed to load restored document: %v", err)
	}
	if doc.Name != "greeting" || len(doc.Nodes) != 4 {
		t.Errorf("Unexpected restored document: %+v", doc)
	}

	if _, err := run(t, "store", "--db", db, "history", "missing"); err == nil {
		t.Error("Expected an error for an unknown document")
	}
}

// syncBuffer lets the test read output while the command is still writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func waitFor(t *testing.T, buf *syncBuffer, want string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(buf.String(), want) {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %q, got:\n%s", want, buf.String())
}

func TestWatch(t *testing.T) {
	path := writeDocument(t, greeting)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var buf syncBuffer
	cmd := newRootCommand("test", "none", "today")
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"watch", "--debounce", "20ms", path})

	done := make(chan error, 1)
	go func() { done <- cmd.ExecuteContext(ctx) }()

	waitFor(t, &buf, "[1] greeting evaluated")

	// Let the watcher settle before changing the file.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(strings.Replace(greeting, `"hi"`, `"hello"`, 1)), 0o644); err != nil {
		t.Fatalf("Failed to rewrite document: %v", err)
	}
	waitFor(t, &buf, "[2] greeting evaluated")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Expected watch to stop cleanly, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}
}

func TestNewApp_LogLevel(t *testing.T) {
	saved, savedPath, savedVerbose := log.Logger, configPath, verbose
	t.Cleanup(func() {
		log.Logger, configPath, verbose = saved, savedPath, savedVerbose
	})

	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("telemetry:\n  logging:\n    level: warn\n"), 0o644); err != nil {
		t.Fatalf("Failed to write settings: %v", err)
	}
	configPath = path

	tests := []struct {
		verbose bool
		want    zerolog.Level
	}{
		{verbose: false, want: zerolog.WarnLevel},
		{verbose: true, want: zerolog.DebugLevel},
	}
	for _, tt := range tests {
		verbose = tt.verbose
		a, err := newApp()
		if err != nil {
			t.Fatalf("newApp() error = %v", err)
		}
		a.close()
		if got := log.Logger.GetLevel(); got != tt.want {
			t.Errorf("verbose=%v: logger level = %v, want %v", tt.verbose, got, tt.want)
		}
	}
}
