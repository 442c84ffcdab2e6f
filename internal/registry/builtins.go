package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/openclaw/taskforge/internal/sandbox"
)

const maxFetchBytes = 1 << 20

// DirEntry is one entry from list_dir.
type DirEntry struct {
	Name  string `json:"name"`
	IsDir bool   `json:"is_dir"`
	Size  int64  `json:"size"`
}

// RegisterBuiltins registers the built-in capabilities. File
// capabilities are confined to the workspace; shell runs through the
// given runner.
func (r *Registry) RegisterBuiltins(runner sandbox.Runner, workspace string) {
	r.Register(&shellCapability{runner: runner})
	r.Register(&readFileCapability{workspace: workspace})
	r.Register(&writeFileCapability{workspace: workspace})
	r.Register(&listDirCapability{workspace: workspace})
	r.Register(&httpGetCapability{client: &http.Client{Timeout: 30 * time.Second}})
}

// resolvePath resolves a path against the workspace root and rejects
// anything that would land outside it.
func resolvePath(root, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path is required")
	}
	resolved := path
	if !filepath.IsAbs(resolved) {
		resolved = filepath.Join(root, resolved)
	}
	resolved = filepath.Clean(resolved)
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes the workspace: %s", path)
	}
	return resolved, nil
}

// stringArg extracts a required string argument.
func stringArg(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key].(string)
	if !ok || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

type shellCapability struct {
	runner sandbox.Runner
}

func (c *shellCapability) Name() string { return "shell" }

func (c *shellCapability) Describe() string {
	return "Run a shell command in the workspace and observe its output."
}

func (c *shellCapability) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return nil, err
	}
	if c.runner == nil {
		return nil, fmt.Errorf("no runner configured")
	}
	return c.runner.Run(ctx, command), nil
}

type readFileCapability struct {
	workspace string
}

func (c *readFileCapability) Name() string { return "read_file" }

func (c *readFileCapability) Describe() string {
	return "Read the contents of a file inside the workspace."
}

func (c *readFileCapability) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	resolved, err := resolvePath(c.workspace, path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return string(content), nil
}

type writeFileCapability struct {
	workspace string
}

func (c *writeFileCapability) Name() string { return "write_file" }

func (c *writeFileCapability) Describe() string {
	return "Write content to a file inside the workspace, creating parent directories."
}

func (c *writeFileCapability) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return nil, err
	}
	content, ok := args["content"].(string)
	if !ok {
		return nil, fmt.Errorf("content is required")
	}
	resolved, err := resolvePath(c.workspace, path)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0644); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	return "ok", nil
}

type listDirCapability struct {
	workspace string
}

func (c *listDirCapability) Name() string { return "list_dir" }

func (c *listDirCapability) Describe() string {
	return "List the entries of a directory inside the workspace."
}

func (c *listDirCapability) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	path, _ := args["path"].(string)
	if path == "" {
		path = "."
	}
	resolved, err := resolvePath(c.workspace, path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	result := make([]DirEntry, 0, len(entries))
	for _, e := range entries {
		entry := DirEntry{Name: e.Name(), IsDir: e.IsDir()}
		if info, err := e.Info(); err == nil {
			entry.Size = info.Size()
		}
		result = append(result, entry)
	}
	return result, nil
}

type httpGetCapability struct {
	client *http.Client
}

func (c *httpGetCapability) Name() string { return "http_get" }

func (c *httpGetCapability) Describe() string {
	return "Fetch a URL with HTTP GET and return the response body."
}

func (c *httpGetCapability) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url, err := stringArg(args, "url")
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	return string(body), nil
}
