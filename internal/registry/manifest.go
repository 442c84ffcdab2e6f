package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/openclaw/taskforge/internal/sandbox"
)

// Manifest describes an external tool declared by a TOOL.md file. The
// frontmatter names the tool and gives the shell command template it
// runs; the body holds free-form usage notes.
type Manifest struct {
	// From frontmatter
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Command     string            `yaml:"command"`
	Metadata    map[string]string `yaml:"metadata,omitempty"`

	// From content
	Instructions string `yaml:"-"`

	// Location
	Path string `yaml:"-"`
}

// LoadManifest loads a tool manifest from a directory.
func LoadManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, "TOOL.md")

	content, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read TOOL.md: %w", err)
	}

	m, err := ParseManifest(string(content))
	if err != nil {
		return nil, err
	}

	m.Path = dir

	// Validate name matches directory
	dirName := filepath.Base(dir)
	if m.Name != dirName {
		return nil, fmt.Errorf("tool name %q does not match directory name %q", m.Name, dirName)
	}

	return m, nil
}

// ParseManifest parses a TOOL.md file content.
func ParseManifest(content string) (*Manifest, error) {
	frontmatter, body, err := splitFrontmatter(content)
	if err != nil {
		return nil, err
	}

	m := &Manifest{}
	if err := yaml.Unmarshal([]byte(frontmatter), m); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}

	if m.Name == "" {
		return nil, fmt.Errorf("missing required field: name")
	}
	if m.Description == "" {
		return nil, fmt.Errorf("missing required field: description")
	}
	if m.Command == "" {
		return nil, fmt.Errorf("missing required field: command")
	}
	if err := validateManifestName(m.Name); err != nil {
		return nil, err
	}

	m.Instructions = strings.TrimSpace(body)
	return m, nil
}

// splitFrontmatter extracts YAML frontmatter from markdown.
func splitFrontmatter(content string) (frontmatter, body string, err error) {
	lines := strings.Split(content, "\n")

	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", "", fmt.Errorf("missing frontmatter delimiter")
	}

	var fmLines []string
	var bodyStart int
	inFrontmatter := true

	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			inFrontmatter = false
			bodyStart = i + 1
			break
		}
		if inFrontmatter {
			fmLines = append(fmLines, lines[i])
		}
	}

	if inFrontmatter {
		return "", "", fmt.Errorf("unterminated frontmatter")
	}

	frontmatter = strings.Join(fmLines, "\n")
	if bodyStart < len(lines) {
		body = strings.Join(lines[bodyStart:], "\n")
	}
	return frontmatter, body, nil
}

// validateManifestName checks tool name format.
func validateManifestName(name string) error {
	if len(name) == 0 || len(name) > 64 {
		return fmt.Errorf("name must be 1-64 characters")
	}
	if strings.HasPrefix(name, "-") || strings.HasSuffix(name, "-") {
		return fmt.Errorf("name cannot start or end with hyphen")
	}
	if strings.Contains(name, "--") {
		return fmt.Errorf("name cannot contain consecutive hyphens")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-') {
			return fmt.Errorf("name can only contain lowercase letters, numbers, and hyphens")
		}
	}
	return nil
}

var varPattern = regexp.MustCompile(`\$([a-zA-Z_][a-zA-Z0-9_]*)`)

// interpolateCommand replaces $var placeholders in a command template
// with argument values. Unresolved placeholders are left as-is and
// reported so callers can warn about them.
func interpolateCommand(template string, args map[string]interface{}) (string, []string) {
	var unresolved []string
	out := varPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := strings.TrimPrefix(match, "$")
		if val, ok := args[name]; ok {
			return fmt.Sprintf("%v", val)
		}
		unresolved = append(unresolved, name)
		return match
	})
	return out, unresolved
}

// manifestCapability runs a manifest's command template through the
// sandbox runner.
type manifestCapability struct {
	manifest *Manifest
	runner   sandbox.Runner
	registry *Registry
}

func (c *manifestCapability) Name() string     { return c.manifest.Name }
func (c *manifestCapability) Describe() string { return c.manifest.Description }

func (c *manifestCapability) Run(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if c.runner == nil {
		return nil, fmt.Errorf("no runner configured")
	}

	command, unresolved := interpolateCommand(c.manifest.Command, args)
	if len(unresolved) > 0 && c.registry != nil && c.registry.log != nil {
		c.registry.log.Warn("Unresolved placeholders in tool command", map[string]interface{}{
			"tool":      c.manifest.Name,
			"variables": unresolved,
		})
	}

	return c.runner.Run(ctx, command), nil
}

// LoadManifests scans each root for subdirectories containing TOOL.md
// and registers the declared tools. Invalid manifests are skipped with
// a warning; missing roots are ignored. Returns how many tools were
// registered.
func (r *Registry) LoadManifests(runner sandbox.Runner, roots []string) int {
	registered := 0
	for _, root := range roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			if !os.IsNotExist(err) && r.log != nil {
				r.log.Warn("Failed to read tool directory", map[string]interface{}{
					"path":  root,
					"error": err.Error(),
				})
			}
			continue
		}

		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			dir := filepath.Join(root, e.Name())
			if _, err := os.Stat(filepath.Join(dir, "TOOL.md")); err != nil {
				continue
			}

			m, err := LoadManifest(dir)
			if err != nil {
				if r.log != nil {
					r.log.Warn("Skipping invalid tool manifest", map[string]interface{}{
						"path":  dir,
						"error": err.Error(),
					})
				}
				continue
			}

			r.Register(&manifestCapability{manifest: m, runner: runner, registry: r})
			registered++
		}
	}
	return registered
}
