package retriever

import (
	"context"
	"strings"
	"testing"

	"github.com/openclaw/taskforge/internal/library"
	"github.com/openclaw/taskforge/internal/llm"
)

func newTestRetriever(t *testing.T, provider llm.Provider) (*Retriever, *library.Library) {
	t.Helper()
	lib, err := library.Open(library.Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open library: %v", err)
	}
	t.Cleanup(func() { lib.Close() })
	return New(lib, provider, nil, 0), lib
}

func seedActions(t *testing.T, lib *library.Library) {
	t.Helper()
	actions := []struct{ name, code, description string }{
		{"compress_logs", "#!/bin/sh\ntar czf logs.tgz *.log", "Compress all log files into a tarball"},
		{"fetch_weather", "#!/bin/sh\ncurl -s wttr.in", "Fetch the current weather report"},
		{"rotate_backups", "#!/bin/sh\nls backups | head -n -5 | xargs rm", "Delete all but the newest five backups"},
	}
	for _, a := range actions {
		if err := lib.Add(a.name, a.code, a.description); err != nil {
			t.Fatalf("failed to seed %s: %v", a.name, err)
		}
	}
}

func TestFindCandidatesEmptyLibrary(t *testing.T) {
	r, _ := newTestRetriever(t, llm.NewMockProvider())

	candidates, err := r.FindCandidates(context.Background(), "archive the log files")
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates from empty library, got %d", len(candidates))
	}
}

func TestFindCandidatesReturnsStoredActions(t *testing.T) {
	r, lib := newTestRetriever(t, llm.NewMockProvider())
	seedActions(t, lib)

	candidates, err := r.FindCandidates(context.Background(), "compress the log files into an archive")
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	if len(candidates) == 0 {
		t.Fatal("expected candidates")
	}
	if len(candidates) > 3 {
		t.Errorf("candidate count %d exceeds stored count", len(candidates))
	}
	if candidates[0].Name != "compress_logs" {
		t.Errorf("expected compress_logs ranked first, got %s", candidates[0].Name)
	}
	if !strings.Contains(candidates[0].Code, "tar czf") {
		t.Errorf("candidate missing code: %q", candidates[0].Code)
	}
	if candidates[0].Description == "" {
		t.Error("candidate missing description")
	}
}

func TestSelectBestReturnsChosenCode(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("The tarball action fits.\n<action>compress_logs</action>")
	r, lib := newTestRetriever(t, provider)
	seedActions(t, lib)

	candidates, err := r.FindCandidates(context.Background(), "compress the log files")
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	code, err := r.SelectBest(context.Background(), "compress the log files", candidates)
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if !strings.Contains(code, "tar czf logs.tgz") {
		t.Errorf("expected compress_logs code, got %q", code)
	}

	user := provider.LastRequest().Messages[1].Content
	if !strings.Contains(user, "Subtask: compress the log files") {
		t.Errorf("prompt missing subtask:\n%s", user)
	}
	if !strings.Contains(user, "compress_logs: Compress all log files into a tarball") {
		t.Errorf("prompt missing candidate description:\n%s", user)
	}
}

func TestSelectBestNone(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("<action>none</action>")
	r, lib := newTestRetriever(t, provider)
	seedActions(t, lib)

	candidates, err := r.FindCandidates(context.Background(), "paint the fence")
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	code, err := r.SelectBest(context.Background(), "paint the fence", candidates)
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if code != "" {
		t.Errorf("expected empty code when model declines, got %q", code)
	}
}

func TestSelectBestUnknownName(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("<action>made_up_action</action>")
	r, lib := newTestRetriever(t, provider)
	seedActions(t, lib)

	candidates, err := r.FindCandidates(context.Background(), "compress the log files")
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	code, err := r.SelectBest(context.Background(), "compress the log files", candidates)
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if code != "" {
		t.Errorf("expected empty code for hallucinated name, got %q", code)
	}
}

func TestSelectBestMissingTag(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("I think compress_logs is a good fit for this.")
	r, lib := newTestRetriever(t, provider)
	seedActions(t, lib)

	candidates, err := r.FindCandidates(context.Background(), "compress the log files")
	if err != nil {
		t.Fatalf("FindCandidates failed: %v", err)
	}
	code, err := r.SelectBest(context.Background(), "compress the log files", candidates)
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if code != "" {
		t.Errorf("expected empty code when tag missing, got %q", code)
	}
}

func TestSelectBestEmptyCandidates(t *testing.T) {
	provider := llm.NewMockProvider()
	r, _ := newTestRetriever(t, provider)

	code, err := r.SelectBest(context.Background(), "anything", nil)
	if err != nil {
		t.Fatalf("SelectBest failed: %v", err)
	}
	if code != "" {
		t.Errorf("expected empty code, got %q", code)
	}
	if provider.CallCount() != 0 {
		t.Errorf("provider should not be called for empty candidate set, got %d calls", provider.CallCount())
	}
}
