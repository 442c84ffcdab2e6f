package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openclaw/taskforge/internal/sandbox"
)

const validManifest = `---
name: line-count
description: Count the lines of a file
command: wc -l $path
metadata:
  author: ops
---

Pass the file to count as $path.
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest(validManifest)
	if err != nil {
		t.Fatalf("ParseManifest failed: %v", err)
	}

	if m.Name != "line-count" {
		t.Errorf("unexpected name: %q", m.Name)
	}
	if m.Description != "Count the lines of a file" {
		t.Errorf("unexpected description: %q", m.Description)
	}
	if m.Command != "wc -l $path" {
		t.Errorf("unexpected command: %q", m.Command)
	}
	if m.Metadata["author"] != "ops" {
		t.Errorf("unexpected metadata: %v", m.Metadata)
	}
	if m.Instructions != "Pass the file to count as $path." {
		t.Errorf("unexpected instructions: %q", m.Instructions)
	}
}

func TestParseManifestErrors(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"no frontmatter", "just some text"},
		{"unterminated frontmatter", "---\nname: x\n"},
		{"missing name", "---\ndescription: d\ncommand: true\n---\n"},
		{"missing description", "---\nname: a-tool\ncommand: true\n---\n"},
		{"missing command", "---\nname: a-tool\ndescription: d\n---\n"},
		{"bad name", "---\nname: Bad_Name\ndescription: d\ncommand: true\n---\n"},
		{"consecutive hyphens", "---\nname: a--tool\ndescription: d\ncommand: true\n---\n"},
	}

	for _, tc := range cases {
		if _, err := ParseManifest(tc.content); err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
	}
}

func TestLoadManifestNameMustMatchDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "word-count")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "TOOL.md"), []byte(validManifest), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	if _, err := LoadManifest(dir); err == nil {
		t.Error("expected error when manifest name does not match directory")
	}
}

func TestLoadManifests(t *testing.T) {
	root := t.TempDir()

	// Valid tool.
	lineCount := filepath.Join(root, "line-count")
	if err := os.MkdirAll(lineCount, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(lineCount, "TOOL.md"), []byte(validManifest), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Broken manifest, should be skipped.
	broken := filepath.Join(root, "broken")
	if err := os.MkdirAll(broken, 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(broken, "TOOL.md"), []byte("no frontmatter"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// Directory without a manifest and a stray file, both ignored.
	if err := os.MkdirAll(filepath.Join(root, "not-a-tool"), 0755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("hi"), 0644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	runner := sandbox.NewMockRunner()
	r := New(nil)
	registered := r.LoadManifests(runner, []string{root, filepath.Join(root, "does-not-exist")})

	if registered != 1 {
		t.Fatalf("expected 1 registered tool, got %d", registered)
	}
	if r.Get("line-count") == nil {
		t.Fatal("line-count tool not registered")
	}
}

func TestManifestCapabilityInterpolatesArgs(t *testing.T) {
	runner := sandbox.NewMockRunner()
	runner.SetObservation(sandbox.Observation{Result: "42 data.txt"})

	tool := &manifestCapability{
		manifest: &Manifest{Name: "line-count", Description: "count lines", Command: "wc -l $path"},
		runner:   runner,
	}

	result, err := tool.Run(context.Background(), map[string]interface{}{"path": "data.txt"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if obs := result.(sandbox.Observation); obs.Result != "42 data.txt" {
		t.Errorf("unexpected observation: %+v", obs)
	}
	if runner.LastRun() != "wc -l data.txt" {
		t.Errorf("expected interpolated command, got %q", runner.LastRun())
	}
}

func TestInterpolateCommand(t *testing.T) {
	out, unresolved := interpolateCommand("cp $src $dst && echo $done", map[string]interface{}{
		"src": "a.txt",
		"dst": "b.txt",
	})
	if out != "cp a.txt b.txt && echo $done" {
		t.Errorf("unexpected interpolation: %q", out)
	}
	if len(unresolved) != 1 || unresolved[0] != "done" {
		t.Errorf("unexpected unresolved list: %v", unresolved)
	}
}
