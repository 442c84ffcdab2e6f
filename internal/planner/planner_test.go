package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/openclaw/taskforge/internal/graph"
	"github.com/openclaw/taskforge/internal/llm"
)

const decomposition = `{
	"download_dataset": {"description": "Download the dataset archive", "type": "shell", "dependencies": []},
	"extract_dataset": {"description": "Extract the downloaded archive", "type": "shell", "dependencies": ["download_dataset"]},
	"count_rows": {"description": "Count rows in the extracted CSV", "type": "shell", "dependencies": ["extract_dataset"]}
}`

func testEnv() Environment {
	return Environment{
		WorkingDir: "/work",
		Listing:    []string{"data.csv", "notes.txt"},
	}
}

func TestDecomposeBuildsGraph(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(decomposition)
	p := New(provider, nil)
	g := graph.New()

	order, err := p.Decompose(context.Background(), g, "summarize the dataset", nil, testEnv())
	if err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	want := []string{"download_dataset", "extract_dataset", "count_rows"}
	if len(order) != len(want) {
		t.Fatalf("expected order %v, got %v", want, order)
	}
	for i, name := range want {
		if order[i] != name {
			t.Errorf("order[%d] = %q, want %q", i, order[i], name)
		}
	}

	node, ok := g.Node("extract_dataset")
	if !ok {
		t.Fatal("extract_dataset missing from graph")
	}
	if node.Description != "Extract the downloaded archive" {
		t.Errorf("unexpected description %q", node.Description)
	}
	if node.Kind != "shell" {
		t.Errorf("unexpected kind %q", node.Kind)
	}
	deps := g.Dependencies("count_rows")
	if len(deps) != 1 || deps[0] != "extract_dataset" {
		t.Errorf("unexpected dependencies %v", deps)
	}
}

func TestDecomposePromptContents(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(decomposition)
	p := New(provider, nil)

	actions := map[string]string{
		"fetch_url":     "Download a URL to a local file",
		"archive_files": "Pack files into a tar archive",
	}
	env := testEnv()
	env.Capabilities = "shell: run a shell command"
	if _, err := p.Decompose(context.Background(), graph.New(), "summarize the dataset", actions, env); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	req := provider.LastRequest()
	if req == nil {
		t.Fatal("provider never called")
	}
	if len(req.Messages) != 2 {
		t.Fatalf("expected system+user messages, got %d", len(req.Messages))
	}
	user := req.Messages[1].Content
	for _, fragment := range []string{
		"Goal: summarize the dataset",
		"Working directory: /work",
		"- data.csv",
		"- archive_files: Pack files into a tar archive",
		"- fetch_url: Download a URL to a local file",
		"shell: run a shell command",
	} {
		if !strings.Contains(user, fragment) {
			t.Errorf("user prompt missing %q:\n%s", fragment, user)
		}
	}
	// Sorted action order keeps prompts reproducible.
	if strings.Index(user, "archive_files") > strings.Index(user, "fetch_url") {
		t.Error("actions not sorted by name")
	}
}

func TestDecomposeParseFailureLeavesGraphUntouched(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse("I could not come up with a plan, sorry.")
	p := New(provider, nil)
	g := graph.New()

	if _, err := p.Decompose(context.Background(), g, "do something", nil, testEnv()); err == nil {
		t.Fatal("expected error for unparseable response")
	}
	if g.Len() != 0 {
		t.Errorf("graph mutated despite parse failure: %d nodes", g.Len())
	}
}

func TestDecomposeProviderError(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetError(context.DeadlineExceeded)
	p := New(provider, nil)

	if _, err := p.Decompose(context.Background(), graph.New(), "do something", nil, testEnv()); err == nil {
		t.Fatal("expected provider error to propagate")
	}
}

func TestReplanSplicesBeforeFailingTask(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(decomposition)
	p := New(provider, nil)
	g := graph.New()
	if _, err := p.Decompose(context.Background(), g, "summarize the dataset", nil, testEnv()); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	provider.SetResponse(`{
		"install_curl": {"description": "Install curl via the package manager", "type": "shell", "dependencies": []},
		"verify_curl": {"description": "Check curl responds to --version", "type": "shell", "dependencies": ["install_curl"]}
	}`)
	order, err := p.Replan(context.Background(), g, "curl: command not found", "download_dataset", nil, testEnv())
	if err != nil {
		t.Fatalf("Replan failed: %v", err)
	}

	pos := make(map[string]int, len(order))
	for i, name := range order {
		pos[name] = i
	}
	if pos["install_curl"] > pos["verify_curl"] || pos["verify_curl"] > pos["download_dataset"] {
		t.Errorf("corrective tasks not ordered before failing task: %v", order)
	}

	deps := g.Dependencies("download_dataset")
	found := false
	for _, d := range deps {
		if d == "verify_curl" {
			found = true
		}
	}
	if !found {
		t.Errorf("failing task does not wait on last corrective task: deps %v", deps)
	}
}

func TestReplanUnknownTask(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(decomposition)
	p := New(provider, nil)

	_, err := p.Replan(context.Background(), graph.New(), "diagnosis", "no_such_task", nil, testEnv())
	if err == nil {
		t.Fatal("expected error for unknown failing task")
	}
}

func TestReplanPromptContents(t *testing.T) {
	provider := llm.NewMockProvider()
	provider.SetResponse(decomposition)
	p := New(provider, nil)
	g := graph.New()
	if _, err := p.Decompose(context.Background(), g, "summarize the dataset", nil, testEnv()); err != nil {
		t.Fatalf("Decompose failed: %v", err)
	}

	provider.SetResponse(`{"fix_it": {"description": "Fix the problem", "type": "shell", "dependencies": []}}`)
	if _, err := p.Replan(context.Background(), g, "disk full on /tmp", "extract_dataset", nil, testEnv()); err != nil {
		t.Fatalf("Replan failed: %v", err)
	}

	user := provider.LastRequest().Messages[1].Content
	if !strings.Contains(user, "Failed subtask: extract_dataset") {
		t.Errorf("prompt missing failing task name:\n%s", user)
	}
	if !strings.Contains(user, "disk full on /tmp") {
		t.Errorf("prompt missing diagnosis:\n%s", user)
	}
	if !strings.Contains(user, "(none)") {
		t.Errorf("prompt missing empty-candidates marker:\n%s", user)
	}
}

func TestFormatActionsEmpty(t *testing.T) {
	if got := formatActions(nil); got != "(none)\n" {
		t.Errorf("formatActions(nil) = %q", got)
	}
}
