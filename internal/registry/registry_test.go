package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/openclaw/taskforge/internal/sandbox"
)

func newTestRegistry(t *testing.T) (*Registry, *sandbox.MockRunner, string) {
	t.Helper()
	runner := sandbox.NewMockRunner()
	workspace := t.TempDir()
	r := New(nil)
	r.RegisterBuiltins(runner, workspace)
	return r, runner, workspace
}

func TestRegisterBuiltins(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	want := []string{"http_get", "list_dir", "read_file", "shell", "write_file"}
	got := r.Names()
	if len(got) != len(want) {
		t.Fatalf("expected %d capabilities, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %s at position %d, got %s", want[i], i, got[i])
		}
	}

	if r.Get("shell") == nil {
		t.Error("shell capability not registered")
	}
	if r.Get("nonexistent") != nil {
		t.Error("expected nil for unregistered capability")
	}
}

func TestDescribeListsCapabilities(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	desc := r.Describe()
	if !strings.Contains(desc, "read_file: Read the contents of a file") {
		t.Errorf("expected read_file line in listing:\n%s", desc)
	}
	lines := strings.Split(desc, "\n")
	if len(lines) != r.Len() {
		t.Errorf("expected one line per capability, got %d lines for %d capabilities", len(lines), r.Len())
	}
}

func TestInvokeUnknownCapability(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if _, err := r.Invoke(context.Background(), "teleport", nil); err == nil {
		t.Error("expected error for unknown capability")
	}
}

func TestShellCapability(t *testing.T) {
	r, runner, _ := newTestRegistry(t)
	runner.SetObservation(sandbox.Observation{Result: "3 files"})

	result, err := r.Invoke(context.Background(), "shell", map[string]interface{}{
		"command": "ls | wc -l",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}

	obs, ok := result.(sandbox.Observation)
	if !ok {
		t.Fatalf("expected sandbox.Observation, got %T", result)
	}
	if obs.Result != "3 files" {
		t.Errorf("unexpected result: %q", obs.Result)
	}
	if runner.LastRun() != "ls | wc -l" {
		t.Errorf("unexpected command: %q", runner.LastRun())
	}
}

func TestShellRequiresCommand(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if _, err := r.Invoke(context.Background(), "shell", map[string]interface{}{}); err == nil {
		t.Error("expected error for missing command")
	}
}

func TestFileRoundTrip(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if _, err := r.Invoke(context.Background(), "write_file", map[string]interface{}{
		"path":    "notes/todo.txt",
		"content": "ship it",
	}); err != nil {
		t.Fatalf("write_file failed: %v", err)
	}

	result, err := r.Invoke(context.Background(), "read_file", map[string]interface{}{
		"path": "notes/todo.txt",
	})
	if err != nil {
		t.Fatalf("read_file failed: %v", err)
	}
	if result.(string) != "ship it" {
		t.Errorf("unexpected content: %q", result)
	}
}

func TestFileCapabilitiesStayInWorkspace(t *testing.T) {
	r, _, _ := newTestRegistry(t)

	if _, err := r.Invoke(context.Background(), "read_file", map[string]interface{}{
		"path": "../../etc/passwd",
	}); err == nil {
		t.Error("expected path escape to be rejected for read_file")
	}
	if _, err := r.Invoke(context.Background(), "write_file", map[string]interface{}{
		"path":    "../escape.txt",
		"content": "nope",
	}); err == nil {
		t.Error("expected path escape to be rejected for write_file")
	}
}

func TestListDir(t *testing.T) {
	r, _, workspace := newTestRegistry(t)

	if err := os.WriteFile(filepath.Join(workspace, "a.txt"), []byte("aaa"), 0644); err != nil {
		t.Fatalf("failed to seed workspace: %v", err)
	}
	if err := os.Mkdir(filepath.Join(workspace, "sub"), 0755); err != nil {
		t.Fatalf("failed to seed workspace: %v", err)
	}

	result, err := r.Invoke(context.Background(), "list_dir", map[string]interface{}{})
	if err != nil {
		t.Fatalf("list_dir failed: %v", err)
	}

	entries, ok := result.([]DirEntry)
	if !ok {
		t.Fatalf("expected []DirEntry, got %T", result)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	byName := make(map[string]DirEntry)
	for _, e := range entries {
		byName[e.Name] = e
	}
	if e := byName["a.txt"]; e.IsDir || e.Size != 3 {
		t.Errorf("unexpected entry for a.txt: %+v", e)
	}
	if e := byName["sub"]; !e.IsDir {
		t.Errorf("expected sub to be a directory: %+v", e)
	}
}

func TestHTTPGet(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/missing" {
			http.NotFound(w, req)
			return
		}
		w.Write([]byte("response body"))
	}))
	defer ts.Close()

	r, _, _ := newTestRegistry(t)

	result, err := r.Invoke(context.Background(), "http_get", map[string]interface{}{
		"url": ts.URL,
	})
	if err != nil {
		t.Fatalf("http_get failed: %v", err)
	}
	if result.(string) != "response body" {
		t.Errorf("unexpected body: %q", result)
	}

	if _, err := r.Invoke(context.Background(), "http_get", map[string]interface{}{
		"url": ts.URL + "/missing",
	}); err == nil {
		t.Error("expected error for 404 response")
	}
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()

	resolved, err := resolvePath(root, "foo/bar.txt")
	if err != nil {
		t.Fatalf("resolvePath failed: %v", err)
	}
	if resolved != filepath.Join(root, "foo/bar.txt") {
		t.Errorf("unexpected resolution: %q", resolved)
	}

	if _, err := resolvePath(root, "../../etc/passwd"); err == nil {
		t.Error("expected error for path escape")
	}
	if _, err := resolvePath(root, ""); err == nil {
		t.Error("expected error for empty path")
	}
}
