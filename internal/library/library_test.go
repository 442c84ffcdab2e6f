package library

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func openTestLibrary(t *testing.T) *Library {
	t.Helper()
	lib, err := Open(Config{Dir: filepath.Join(t.TempDir(), "library")})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return lib
}

func TestOpenCreatesEmptyLibrary(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "library")
	lib, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer lib.Close()

	if lib.Count() != 0 {
		t.Errorf("expected empty library, got %d actions", lib.Count())
	}

	for _, sub := range []string{"code", "descriptions", "args"} {
		if _, err := os.Stat(filepath.Join(dir, sub)); err != nil {
			t.Errorf("expected %s directory to exist: %v", sub, err)
		}
	}
}

func TestAddRoundTrip(t *testing.T) {
	lib := openTestLibrary(t)

	code := "compress_logs() {\n  gzip \"$1\"/*.log\n}"
	desc := "Compress rotated log files with gzip"
	if err := lib.Add("compress_logs", code, desc); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	got, err := lib.Code("compress_logs")
	if err != nil {
		t.Fatalf("Code failed: %v", err)
	}
	if got != code {
		t.Errorf("code mismatch:\ngot:  %q\nwant: %q", got, code)
	}

	gotDesc, err := lib.Description("compress_logs")
	if err != nil {
		t.Fatalf("Description failed: %v", err)
	}
	if gotDesc != desc {
		t.Errorf("description mismatch: got %q", gotDesc)
	}

	if !lib.Contains("compress_logs") {
		t.Error("Contains returned false for stored action")
	}

	// Mirror files should match the metadata.
	codeData, err := os.ReadFile(filepath.Join(lib.dir, "code", "compress_logs.sh"))
	if err != nil {
		t.Fatalf("code mirror file missing: %v", err)
	}
	if string(codeData) != code {
		t.Error("code mirror file does not match stored code")
	}
	descData, err := os.ReadFile(filepath.Join(lib.dir, "descriptions", "compress_logs.txt"))
	if err != nil {
		t.Fatalf("description mirror file missing: %v", err)
	}
	if string(descData) != desc {
		t.Error("description mirror file does not match stored description")
	}
}

func TestAddReplacesExisting(t *testing.T) {
	lib := openTestLibrary(t)

	if err := lib.Add("fetch_page", "curl -s \"$1\"", "Fetch a web page"); err != nil {
		t.Fatalf("first Add failed: %v", err)
	}
	if err := lib.Add("fetch_page", "curl -sL \"$1\"", "Fetch a web page, following redirects"); err != nil {
		t.Fatalf("second Add failed: %v", err)
	}

	if lib.Count() != 1 {
		t.Errorf("expected 1 action after replacement, got %d", lib.Count())
	}

	code, err := lib.Code("fetch_page")
	if err != nil {
		t.Fatalf("Code failed: %v", err)
	}
	if code != "curl -sL \"$1\"" {
		t.Errorf("expected replaced code, got %q", code)
	}

	n, err := lib.index.DocCount()
	if err != nil {
		t.Fatalf("DocCount failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 index entry after replacement, got %d", n)
	}
}

func TestAddRejectsInvalidNames(t *testing.T) {
	lib := openTestLibrary(t)

	for _, name := range []string{"", "9starts_with_digit", "Has_Upper", "has space", "_leading", "trailing_", "dots.not.ok"} {
		if err := lib.Add(name, "true", "noop"); err == nil {
			t.Errorf("expected Add(%q) to fail", name)
		}
	}
	if lib.Count() != 0 {
		t.Errorf("invalid adds must not store anything, got %d", lib.Count())
	}
}

func TestAddRejectsEmptyCode(t *testing.T) {
	lib := openTestLibrary(t)

	if err := lib.Add("noop", "   \n", "does nothing"); err == nil {
		t.Error("expected Add with blank code to fail")
	}
}

func TestRemove(t *testing.T) {
	lib := openTestLibrary(t)

	if err := lib.Add("list_dir", "ls -la \"$1\"", "List a directory"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := lib.SetArgsDoc("list_dir", "$1: directory to list"); err != nil {
		t.Fatalf("SetArgsDoc failed: %v", err)
	}

	if err := lib.Remove("list_dir"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}

	if lib.Contains("list_dir") {
		t.Error("action still present after Remove")
	}
	if _, err := lib.Code("list_dir"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	for _, path := range []string{
		filepath.Join(lib.dir, "code", "list_dir.sh"),
		filepath.Join(lib.dir, "descriptions", "list_dir.txt"),
		filepath.Join(lib.dir, "args", "list_dir.txt"),
	} {
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("expected %s to be gone", path)
		}
	}

	if err := lib.Remove("list_dir"); !errors.Is(err, ErrNotFound) {
		t.Errorf("removing a missing action: expected ErrNotFound, got %v", err)
	}
}

func TestRemoveToleratesMissingMirrorFiles(t *testing.T) {
	lib := openTestLibrary(t)

	if err := lib.Add("touch_marker", "touch /tmp/marker", "Create a marker file"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := os.Remove(filepath.Join(lib.dir, "code", "touch_marker.sh")); err != nil {
		t.Fatalf("failed to delete mirror file: %v", err)
	}

	if err := lib.Remove("touch_marker"); err != nil {
		t.Fatalf("Remove should tolerate missing mirror files: %v", err)
	}
}

func TestSearchEmptyLibrary(t *testing.T) {
	lib := openTestLibrary(t)

	matches, err := lib.Search(context.Background(), "anything at all", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no matches from empty library, got %d", len(matches))
	}
}

func TestSearchClampsToStoredCount(t *testing.T) {
	lib := openTestLibrary(t)

	if err := lib.Add("compress_logs", "gzip \"$1\"/*.log", "Compress rotated log files with gzip"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := lib.Add("rotate_logs", "mv app.log app.log.1", "Rotate the application log file"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	matches, err := lib.Search(context.Background(), "log files", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) > 2 {
		t.Errorf("expected at most 2 matches, got %d", len(matches))
	}
}

func TestSearchRanksRelevantFirst(t *testing.T) {
	lib := openTestLibrary(t)

	if err := lib.Add("compress_logs", "gzip \"$1\"/*.log", "Compress rotated log files with gzip"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := lib.Add("fetch_weather", "curl -s wttr.in", "Download the current weather report"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	matches, err := lib.Search(context.Background(), "compress old log files", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("expected at least one match")
	}
	if matches[0].Name != "compress_logs" {
		t.Errorf("expected compress_logs first, got %s", matches[0].Name)
	}
}

// pinnedEmbedder returns fixed vectors per text so re-rank order is
// fully controlled by the test.
type pinnedEmbedder struct {
	vectors map[string][]float32
}

func (e *pinnedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ok := e.vectors[text]
		if !ok {
			vec = []float32{0, 0}
		}
		out[i] = vec
	}
	return out, nil
}

func (e *pinnedEmbedder) Dimension() int { return 2 }

func TestSearchRerankWithEmbedder(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "library")
	embedder := &pinnedEmbedder{vectors: map[string][]float32{
		"archive old records":                   {1, 0},
		"Archive log records into a tarball":    {0, 1},
		"Archive old records into cold storage": {1, 0},
	}}
	lib, err := Open(Config{Dir: dir, Embedder: embedder})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer lib.Close()

	if err := lib.Add("archive_logs", "tar czf logs.tgz logs/", "Archive log records into a tarball"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := lib.Add("archive_records", "mv records/ /mnt/cold/", "Archive old records into cold storage"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	matches, err := lib.Search(context.Background(), "archive old records", 2)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Name != "archive_records" {
		t.Errorf("expected embedder to rank archive_records first, got %s", matches[0].Name)
	}
}

func TestOpenDetectsCorruption(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "library")
	lib, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := lib.Add("compress_logs", "gzip \"$1\"/*.log", "Compress rotated log files"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := lib.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Inject a metadata entry the index never saw.
	metaPath := filepath.Join(dir, "actions.json")
	data, err := os.ReadFile(metaPath)
	if err != nil {
		t.Fatalf("failed to read metadata: %v", err)
	}
	var meta map[string]map[string]string
	if err := json.Unmarshal(data, &meta); err != nil {
		t.Fatalf("failed to parse metadata: %v", err)
	}
	meta["phantom_action"] = map[string]string{"code": "true", "description": "never indexed"}
	data, err = json.Marshal(meta)
	if err != nil {
		t.Fatalf("failed to marshal metadata: %v", err)
	}
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		t.Fatalf("failed to rewrite metadata: %v", err)
	}

	if _, err := Open(Config{Dir: dir}); !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt, got %v", err)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "library")
	lib, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := lib.Add("compress_logs", "gzip \"$1\"/*.log", "Compress rotated log files with gzip"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := lib.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	code, err := reopened.Code("compress_logs")
	if err != nil {
		t.Fatalf("Code after reopen failed: %v", err)
	}
	if code != "gzip \"$1\"/*.log" {
		t.Errorf("unexpected code after reopen: %q", code)
	}

	matches, err := reopened.Search(context.Background(), "compress logs", 1)
	if err != nil {
		t.Fatalf("Search after reopen failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Name != "compress_logs" {
		t.Errorf("expected compress_logs from reopened index, got %v", matches)
	}
}

func TestArgsDoc(t *testing.T) {
	lib := openTestLibrary(t)

	if err := lib.Add("copy_tree", "cp -r \"$1\" \"$2\"", "Copy a directory tree"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	if err := lib.SetArgsDoc("copy_tree", "$1: source directory\n$2: destination directory"); err != nil {
		t.Fatalf("SetArgsDoc failed: %v", err)
	}
	if got := lib.ArgsDoc("copy_tree"); got != "$1: source directory\n$2: destination directory" {
		t.Errorf("unexpected args doc: %q", got)
	}

	if got := lib.ArgsDoc("unknown_action"); got != "" {
		t.Errorf("expected empty args doc for unknown action, got %q", got)
	}

	if err := lib.SetArgsDoc("unknown_action", "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDescriptionsAndNames(t *testing.T) {
	lib := openTestLibrary(t)

	if err := lib.Add("zeta_action", "true", "last alphabetically"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := lib.Add("alpha_action", "true", "first alphabetically"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	names := lib.Names()
	if len(names) != 2 || names[0] != "alpha_action" || names[1] != "zeta_action" {
		t.Errorf("expected sorted names, got %v", names)
	}

	descs := lib.Descriptions()
	if descs["alpha_action"] != "first alphabetically" {
		t.Errorf("unexpected descriptions map: %v", descs)
	}

	// The returned map is a copy.
	descs["alpha_action"] = "mutated"
	if d, _ := lib.Description("alpha_action"); d != "first alphabetically" {
		t.Error("Descriptions must return a copy")
	}
}
