// Package library persists reusable shell actions and serves ranked
// similarity lookups over their descriptions.
//
// On disk a library is a directory:
//
//	actions.json      metadata (name -> code, description)
//	index.bleve/      full-text index over descriptions
//	code/             one .sh file per action, mirror of metadata
//	descriptions/     one .txt file per action, mirror of metadata
//	args/             parameter documentation, written when known
//
// The index and the metadata must always agree on the set of action
// names. The invariant is checked when a library is opened and after
// every mutation; a mismatch means the directory was edited by hand or
// a write was torn, and the library refuses to operate on it.
package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/openclaw/taskforge/internal/logging"
)

var (
	// ErrNotFound is returned when a named action is not in the library.
	ErrNotFound = errors.New("action not found")

	// ErrCorrupt is returned when the index and the metadata disagree.
	ErrCorrupt = errors.New("library corrupt")
)

const (
	metadataFile   = "actions.json"
	indexDirName   = "index.bleve"
	codeDirName    = "code"
	descDirName    = "descriptions"
	argsDirName    = "args"
	codeFileSuffix = ".sh"
	textFileSuffix = ".txt"
)

// Action is a stored, reusable shell action.
type Action struct {
	Name        string `json:"name"`
	Code        string `json:"code"`
	Description string `json:"description"`
}

// actionRecord is the metadata persisted per action in actions.json.
type actionRecord struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// actionDocument is what gets indexed for similarity search.
type actionDocument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Match is one search result, best first.
type Match struct {
	Name  string
	Score float64
}

// Config configures a library.
type Config struct {
	// Dir is the library directory. Created if missing.
	Dir string

	// Embedder re-ranks text search candidates by semantic similarity.
	// Nil disables re-ranking.
	Embedder EmbeddingProvider

	// Logger for library operations. Nil means silent.
	Logger *logging.Logger
}

// Library is a durable store of named shell actions.
type Library struct {
	mu       sync.RWMutex
	dir      string
	index    bleve.Index
	actions  map[string]actionRecord
	embedder EmbeddingProvider
	log      *logging.Logger
}

// Open loads the library at cfg.Dir, creating an empty one if the
// directory does not exist yet. It fails with ErrCorrupt when the
// search index and the metadata file disagree about what is stored.
func Open(cfg Config) (*Library, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("library dir is required")
	}

	for _, sub := range []string{"", codeDirName, descDirName, argsDirName} {
		if err := os.MkdirAll(filepath.Join(cfg.Dir, sub), 0755); err != nil {
			return nil, fmt.Errorf("failed to create library directory: %w", err)
		}
	}

	actions := make(map[string]actionRecord)
	metaPath := filepath.Join(cfg.Dir, metadataFile)
	if data, err := os.ReadFile(metaPath); err == nil {
		if err := json.Unmarshal(data, &actions); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", metadataFile, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read %s: %w", metadataFile, err)
	}

	indexPath := filepath.Join(cfg.Dir, indexDirName)
	var index bleve.Index
	var err error
	if _, statErr := os.Stat(indexPath); os.IsNotExist(statErr) {
		index, err = bleve.New(indexPath, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create search index: %w", err)
		}
	} else {
		index, err = bleve.Open(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open search index: %w", err)
		}
	}

	lib := &Library{
		dir:      cfg.Dir,
		index:    index,
		actions:  actions,
		embedder: cfg.Embedder,
		log:      cfg.Logger,
	}

	if err := lib.verifyCounts(); err != nil {
		index.Close()
		return nil, err
	}

	return lib, nil
}

// buildIndexMapping creates the index mapping for action documents.
func buildIndexMapping() mapping.IndexMapping {
	actionMapping := bleve.NewDocumentMapping()

	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	keywordFieldMapping := bleve.NewKeywordFieldMapping()

	actionMapping.AddFieldMappingsAt("name", keywordFieldMapping)
	actionMapping.AddFieldMappingsAt("description", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = actionMapping
	indexMapping.DefaultAnalyzer = standard.Name

	return indexMapping
}

// Close releases the search index.
func (l *Library) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.index.Close()
}

// Add stores an action, replacing any existing action of the same name.
// The index entry is refreshed, the metadata is persisted atomically,
// and the code and description mirror files are rewritten.
func (l *Library) Add(name, code, description string) error {
	if err := validateName(name); err != nil {
		return fmt.Errorf("invalid action name %q: %v", name, err)
	}
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("action %q has empty code", name)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Replacing an action must not leave a stale index entry behind.
	if _, exists := l.actions[name]; exists {
		if err := l.index.Delete(name); err != nil {
			return fmt.Errorf("failed to drop stale index entry for %q: %w", name, err)
		}
	}

	doc := actionDocument{Name: name, Description: description}
	if err := l.index.Index(name, doc); err != nil {
		return fmt.Errorf("failed to index action %q: %w", name, err)
	}

	l.actions[name] = actionRecord{Code: code, Description: description}

	if err := l.verifyCounts(); err != nil {
		return err
	}

	if err := l.persistMetadata(); err != nil {
		return err
	}

	codePath := filepath.Join(l.dir, codeDirName, name+codeFileSuffix)
	if err := os.WriteFile(codePath, []byte(code), 0644); err != nil {
		return fmt.Errorf("failed to write code file for %q: %w", name, err)
	}
	descPath := filepath.Join(l.dir, descDirName, name+textFileSuffix)
	if err := os.WriteFile(descPath, []byte(description), 0644); err != nil {
		return fmt.Errorf("failed to write description file for %q: %w", name, err)
	}

	if l.log != nil {
		l.log.ActionStored(name)
	}
	return nil
}

// Remove deletes an action from the index, the metadata, and the mirror
// files. Missing mirror files are tolerated; a missing action is not.
func (l *Library) Remove(name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.actions[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	if err := l.index.Delete(name); err != nil {
		return fmt.Errorf("failed to remove index entry for %q: %w", name, err)
	}
	delete(l.actions, name)

	if err := l.verifyCounts(); err != nil {
		return err
	}
	if err := l.persistMetadata(); err != nil {
		return err
	}

	for _, path := range []string{
		filepath.Join(l.dir, codeDirName, name+codeFileSuffix),
		filepath.Join(l.dir, descDirName, name+textFileSuffix),
		filepath.Join(l.dir, argsDirName, name+textFileSuffix),
	} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}

	return nil
}

// SetArgsDoc records parameter documentation for a stored action.
func (l *Library) SetArgsDoc(name, doc string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.actions[name]; !exists {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	path := filepath.Join(l.dir, argsDirName, name+textFileSuffix)
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return fmt.Errorf("failed to write args doc for %q: %w", name, err)
	}
	return nil
}

// ArgsDoc returns the parameter documentation for an action, or the
// empty string when none was recorded.
func (l *Library) ArgsDoc(name string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	data, err := os.ReadFile(filepath.Join(l.dir, argsDirName, name+textFileSuffix))
	if err != nil {
		return ""
	}
	return string(data)
}

// Contains reports whether an action with the given name is stored.
func (l *Library) Contains(name string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.actions[name]
	return ok
}

// Get returns the full stored action.
func (l *Library) Get(name string) (Action, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.actions[name]
	if !ok {
		return Action{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Action{Name: name, Code: rec.Code, Description: rec.Description}, nil
}

// Code returns the shell code of a stored action.
func (l *Library) Code(name string) (string, error) {
	a, err := l.Get(name)
	if err != nil {
		return "", err
	}
	return a.Code, nil
}

// Description returns the description of a stored action.
func (l *Library) Description(name string) (string, error) {
	a, err := l.Get(name)
	if err != nil {
		return "", err
	}
	return a.Description, nil
}

// Descriptions returns a copy of the name -> description table.
func (l *Library) Descriptions() map[string]string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[string]string, len(l.actions))
	for name, rec := range l.actions {
		out[name] = rec.Description
	}
	return out
}

// Names returns all stored action names, sorted.
func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.actions))
	for name := range l.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of stored actions.
func (l *Library) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.actions)
}

// Search returns up to k actions whose descriptions best match the
// given text, best first. k is clamped to the number of stored actions,
// so an empty library always yields an empty result. When an embedder
// is configured the text-search candidates are re-ranked by semantic
// similarity to the query.
func (l *Library) Search(ctx context.Context, text string, k int) ([]Match, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if k > len(l.actions) {
		k = len(l.actions)
	}
	if k <= 0 {
		return nil, nil
	}

	// Fetch extra candidates when re-ranking so the embedder has
	// something to reorder.
	fetch := k
	if l.embedder != nil {
		fetch = k * 2
	}

	searchReq := bleve.NewSearchRequest(bleve.NewMatchQuery(text))
	searchReq.Size = fetch
	searchReq.Fields = []string{"*"}

	searchResult, err := l.index.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	matches := make([]Match, 0, len(searchResult.Hits))
	for _, hit := range searchResult.Hits {
		matches = append(matches, Match{Name: hit.ID, Score: hit.Score})
	}

	if l.embedder != nil && len(matches) > 1 {
		reranked, err := l.rerank(ctx, text, matches)
		if err != nil {
			// Text-search order is still usable; fall back to it.
			if l.log != nil {
				l.log.Warn("Semantic re-rank failed, using text order", map[string]interface{}{
					"error": err.Error(),
				})
			}
		} else {
			matches = reranked
		}
	}

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// rerank reorders candidates by cosine similarity between the query
// embedding and each candidate's description embedding.
func (l *Library) rerank(ctx context.Context, text string, candidates []Match) ([]Match, error) {
	texts := make([]string, 0, len(candidates)+1)
	texts = append(texts, text)
	for _, m := range candidates {
		texts = append(texts, l.actions[m.Name].Description)
	}

	vecs, err := l.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
	}

	queryVec := vecs[0]
	out := make([]Match, len(candidates))
	for i, m := range candidates {
		out[i] = Match{Name: m.Name, Score: float64(cosineSimilarity(queryVec, vecs[i+1]))}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// verifyCounts checks the index/metadata consistency invariant.
// Callers hold the lock.
func (l *Library) verifyCounts() error {
	n, err := l.index.DocCount()
	if err != nil {
		return fmt.Errorf("failed to count index entries: %w", err)
	}
	if int(n) != len(l.actions) {
		return fmt.Errorf("%w: index holds %d entries, metadata holds %d", ErrCorrupt, n, len(l.actions))
	}
	return nil
}

// persistMetadata writes actions.json atomically. Callers hold the lock.
func (l *Library) persistMetadata() error {
	data, err := json.MarshalIndent(l.actions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	path := filepath.Join(l.dir, metadataFile)
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", metadataFile, err)
	}
	return nil
}

// writeFileAtomic writes data to a file atomically by writing to a
// temporary file first, fsyncing, and then renaming it to the target
// path. This prevents corruption from crashes mid-write.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// validateName rejects names that would not survive as filenames or
// shell function identifiers.
func validateName(name string) error {
	if len(name) == 0 || len(name) > 64 {
		return fmt.Errorf("name must be 1-64 characters")
	}
	if name[0] >= '0' && name[0] <= '9' {
		return fmt.Errorf("name cannot start with a digit")
	}
	if strings.HasPrefix(name, "_") || strings.HasSuffix(name, "_") {
		return fmt.Errorf("name cannot start or end with underscore")
	}
	for _, r := range name {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_') {
			return fmt.Errorf("name can only contain lowercase letters, numbers, and underscores")
		}
	}
	return nil
}
