package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/openclaw/taskforge/internal/config"
	"github.com/openclaw/taskforge/internal/replay"
	"github.com/openclaw/taskforge/internal/session"
)

// Run replays one or more sessions for forensic analysis.
func (c *ReplayCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}

	opts, err := parseCostSpecs(c.Cost)
	if err != nil {
		return err
	}

	paths, err := resolveSessionArgs(cfg, c.Session)
	if err != nil {
		return err
	}

	if c.Follow {
		if len(paths) != 1 {
			return fmt.Errorf("--follow works with a single session file")
		}
		r := replay.New(os.Stdout, c.Verbose, opts...)
		return r.ReplayFileLive(paths[0])
	}

	r := replay.NewMulti(os.Stdout, c.Verbose, opts...)
	if !c.NoPager && isTerminal(os.Stdout) {
		return r.ReplayFilesInteractive(paths)
	}
	return r.ReplayFiles(paths)
}

// resolveSessionArgs turns file paths, directories, and bare session
// IDs into session file paths.
func resolveSessionArgs(cfg *config.Config, args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		switch {
		case err == nil && info.IsDir():
			expanded, err := sessionFilesIn(arg)
			if err != nil {
				return nil, err
			}
			paths = append(paths, expanded...)
		case err == nil:
			paths = append(paths, arg)
		default:
			path, err := resolveSessionID(cfg, arg)
			if err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no session files found")
	}
	return paths, nil
}

// sessionFilesIn lists the session files in a directory.
func sessionFilesIn(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	return files, nil
}

// resolveSessionID looks a bare ID, or a unique ID prefix, up in the
// configured sessions directory.
func resolveSessionID(cfg *config.Config, id string) (string, error) {
	store, err := session.NewFileStore(cfg.SessionsDir())
	if err != nil {
		return "", err
	}
	infos, err := store.List()
	if err != nil {
		return "", err
	}

	var matches []string
	for _, info := range infos {
		if info.ID == id {
			return store.Path(info.ID), nil
		}
		if strings.HasPrefix(info.ID, id) {
			matches = append(matches, info.ID)
		}
	}
	switch len(matches) {
	case 1:
		return store.Path(matches[0]), nil
	case 0:
		return "", fmt.Errorf("no session %q under %s", id, cfg.SessionsDir())
	default:
		return "", fmt.Errorf("session ID %q is ambiguous (%d matches)", id, len(matches))
	}
}

// parseCostSpecs parses cost specifications into replay options.
func parseCostSpecs(specs []string) ([]replay.Option, error) {
	var opts []replay.Option
	for _, spec := range specs {
		model, inPrice, outPrice, err := parseCostSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid --cost %q: %w", spec, err)
		}
		opts = append(opts, replay.WithModelPricing(model, inPrice, outPrice))
	}
	return opts, nil
}

// parseCostSpec parses "model:input,output" format.
// Returns model name, input price per 1M, output price per 1M.
func parseCostSpec(spec string) (string, float64, float64, error) {
	parts := strings.SplitN(spec, ":", 2)
	if len(parts) != 2 {
		return "", 0, 0, fmt.Errorf("expected model:input,output format")
	}
	model := parts[0]
	if model == "" {
		return "", 0, 0, fmt.Errorf("model name cannot be empty")
	}

	prices := strings.Split(parts[1], ",")
	if len(prices) != 2 {
		return "", 0, 0, fmt.Errorf("expected input,output prices")
	}

	inPrice, err := strconv.ParseFloat(strings.TrimSpace(prices[0]), 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid input price: %w", err)
	}
	outPrice, err := strconv.ParseFloat(strings.TrimSpace(prices[1]), 64)
	if err != nil {
		return "", 0, 0, fmt.Errorf("invalid output price: %w", err)
	}

	return model, inPrice, outPrice, nil
}

// Run lists recorded sessions, newest first.
func (c *SessionsCmd) Run() error {
	cfg, err := loadConfig(c.Config)
	if err != nil {
		return err
	}
	store, closeStore, err := openSessionStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	lister, ok := store.(interface {
		List() ([]session.SessionInfo, error)
	})
	if !ok {
		return fmt.Errorf("session store does not support listing")
	}
	infos, err := lister.List()
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Println("no sessions recorded")
		return nil
	}
	if c.Limit > 0 && len(infos) > c.Limit {
		infos = infos[:c.Limit]
	}

	for _, info := range infos {
		sess, err := store.Load(info.ID)
		if err != nil {
			fmt.Printf("%s  %s  (unreadable: %v)\n",
				shortID(info.ID), info.ModTime.Format("2006-01-02 15:04"), err)
			continue
		}
		fmt.Printf("%s  %s  %-9s  %s\n",
			shortID(info.ID),
			info.ModTime.Format("2006-01-02 15:04"),
			sess.Status,
			truncate(sess.Goal, 60))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
