// Package session records what happened during a run: every plan,
// execution, verdict, and repair, in order. The session file is the
// forensic record replay and analysis tools read from.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Status constants for sessions.
const (
	StatusRunning   = "running"
	StatusComplete  = "complete"
	StatusEscalated = "escalated"
	StatusFailed    = "failed"
)

// Event types for the session log.
const (
	// Run lifecycle
	EventRunStart = "run_start"
	EventRunEnd   = "run_end"
	EventReset    = "reset"

	// Planning
	EventPlan   = "plan"   // Goal decomposed into tasks
	EventReplan = "replan" // Failing task re-decomposed

	// Task lifecycle
	EventNodeStart = "node_start"
	EventNodeEnd   = "node_end"

	// Task steps
	EventRetrieve = "retrieve" // Library lookup for reusable actions
	EventGenerate = "generate" // Code produced for a task
	EventExecute  = "execute"  // Code ran in the sandbox
	EventJudge    = "judge"    // Outcome evaluated
	EventAmend    = "amend"    // Code revised after a failed verdict
	EventAnalyze  = "analyze"  // Failure classified before rerouting
	EventStore    = "store"    // Action saved to the library
	EventEscalate = "escalate" // Task given up after repeated failure

	// Diagnostics
	EventWarning = "warning"
)

// Session represents one run of the agent against a goal.
type Session struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Status    string    `json:"status"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	Events    []Event   `json:"events"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal state (not persisted)
	seqCounter uint64
	mu         sync.Mutex
}

// Event represents a single entry in the session log.
type Event struct {
	// Core fields - always present
	SeqID     uint64    `json:"seq"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// Context - where in the run this happened
	Node    string `json:"node,omitempty"`    // Task name
	Attempt int    `json:"attempt,omitempty"` // 1-based attempt number

	// Content - the actual data
	Content string `json:"content,omitempty"`

	// Outcome
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`

	// Forensic metadata
	Meta *EventMeta `json:"meta,omitempty"`
}

// EventMeta contains detailed forensic information per event type.
type EventMeta struct {
	// Planning
	Tasks  []string `json:"tasks,omitempty"`  // Scheduled or newly added task names
	Anchor string   `json:"anchor,omitempty"` // Task a replan was spliced in front of

	// Retrieval
	Candidates []string `json:"candidates,omitempty"` // Ranked library matches
	Selected   string   `json:"selected,omitempty"`   // Chosen reference action

	// Execution
	Kind        string `json:"kind,omitempty"` // Task kind
	Code        string `json:"code,omitempty"`
	ExitCode    int    `json:"exit_code,omitempty"`
	Output      string `json:"output,omitempty"`
	ReturnValue string `json:"return_value,omitempty"`

	// Judgment
	Pass      bool    `json:"pass,omitempty"`
	Score     float64 `json:"score,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`
	Route     string  `json:"route,omitempty"` // amend or replan

	// Library
	Action string `json:"action,omitempty"`

	// LLM details
	Model     string `json:"model,omitempty"`
	LatencyMs int64  `json:"latency_ms,omitempty"`
	TokensIn  int    `json:"tokens_in,omitempty"`
	TokensOut int    `json:"tokens_out,omitempty"`

	// Full LLM interaction (for forensic replay)
	Prompt   string `json:"prompt,omitempty"`
	Response string `json:"response,omitempty"`
}

// nextSeqID returns the next sequence ID for this session.
func (s *Session) nextSeqID() uint64 {
	return atomic.AddUint64(&s.seqCounter, 1)
}

// CurrentSeqID returns the current (last used) sequence ID without
// incrementing. Returns 0 if no events have been added yet.
func (s *Session) CurrentSeqID() uint64 {
	return atomic.LoadUint64(&s.seqCounter)
}

// AddEvent adds a new event to the session with automatic sequencing.
func (s *Session) AddEvent(event Event) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.SeqID = s.nextSeqID()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	s.Events = append(s.Events, event)
	s.UpdatedAt = time.Now()
	return event.SeqID
}

// Store is the interface for session persistence.
type Store interface {
	Save(sess *Session) error
	Load(id string) (*Session, error)
}

// Manager manages sessions on top of a store.
type Manager struct {
	store Store
	mu    sync.Mutex
}

// NewManager creates a new session manager.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// Create creates a new running session for a goal.
func (m *Manager) Create(goal string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	sess := &Session{
		ID:        generateID(),
		Goal:      goal,
		Status:    StatusRunning,
		Events:    []Event{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := m.store.Save(sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	return m.store.Load(id)
}

// Update saves changes to a session.
func (m *Manager) Update(sess *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess.UpdatedAt = time.Now()
	return m.store.Save(sess)
}

// generateID creates a unique session ID.
func generateID() string {
	return uuid.NewString()
}

// JSONL record types for the streaming format
const (
	RecordTypeHeader = "header" // Session metadata (first line)
	RecordTypeEvent  = "event"  // Individual event
	RecordTypeFooter = "footer" // Final state (last line, optional)
)

// JSONLRecord is a wrapper for JSONL lines with type discrimination.
type JSONLRecord struct {
	RecordType string `json:"_type"` // header, event, footer

	// Header fields (when _type == "header")
	ID        string    `json:"id,omitempty"`
	Goal      string    `json:"goal,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`

	// Event fields (when _type == "event") - embedded Event
	*Event `json:",omitempty"`

	// Footer fields (when _type == "footer")
	Status    string    `json:"status,omitempty"`
	Result    string    `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// FileStore implements Store using one JSONL file per session.
type FileStore struct {
	dir string
}

// NewFileStore creates a new file-based store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

// Path returns the on-disk path for a session ID.
func (s *FileStore) Path(id string) string {
	return filepath.Join(s.dir, id+".jsonl")
}

// Save persists a session to disk in JSONL format.
func (s *FileStore) Save(sess *Session) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	f, err := os.Create(s.Path(sess.ID))
	if err != nil {
		return fmt.Errorf("failed to create session file: %w", err)
	}
	defer f.Close()

	header := JSONLRecord{
		RecordType: RecordTypeHeader,
		ID:         sess.ID,
		Goal:       sess.Goal,
		CreatedAt:  sess.CreatedAt,
	}
	if err := s.writeLine(f, header); err != nil {
		return err
	}

	for _, evt := range sess.Events {
		evtCopy := evt // copy to avoid pointer issues
		record := JSONLRecord{
			RecordType: RecordTypeEvent,
			Event:      &evtCopy,
		}
		if err := s.writeLine(f, record); err != nil {
			return err
		}
	}

	footer := JSONLRecord{
		RecordType: RecordTypeFooter,
		Status:     sess.Status,
		Result:     sess.Result,
		Error:      sess.Error,
		UpdatedAt:  sess.UpdatedAt,
	}
	return s.writeLine(f, footer)
}

// writeLine writes a single JSONL record.
func (s *FileStore) writeLine(f *os.File, record JSONLRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}
	return nil
}

// Load reads a session from disk.
func (s *FileStore) Load(id string) (*Session, error) {
	return LoadFile(s.Path(id))
}

// LoadFile reads a session from an arbitrary JSONL path.
func LoadFile(path string) (*Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	sess := &Session{Events: []Event{}}

	// bufio.Reader instead of Scanner - no line length limits
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				if len(bytes.TrimSpace(line)) > 0 {
					if parseErr := parseJSONLLine(line, sess); parseErr != nil {
						return nil, parseErr
					}
				}
				break
			}
			return nil, fmt.Errorf("error reading session file: %w", err)
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if err := parseJSONLLine(line, sess); err != nil {
			return nil, err
		}
	}

	// Restore sequence counter from last event
	if len(sess.Events) > 0 {
		sess.seqCounter = sess.Events[len(sess.Events)-1].SeqID
	}

	return sess, nil
}

// parseJSONLLine parses a single JSONL line into the session.
func parseJSONLLine(line []byte, sess *Session) error {
	var record JSONLRecord
	if err := json.Unmarshal(line, &record); err != nil {
		return fmt.Errorf("failed to parse session line: %w", err)
	}

	switch record.RecordType {
	case RecordTypeHeader:
		sess.ID = record.ID
		sess.Goal = record.Goal
		sess.CreatedAt = record.CreatedAt

	case RecordTypeEvent:
		if record.Event != nil {
			sess.Events = append(sess.Events, *record.Event)
		}

	case RecordTypeFooter:
		sess.Status = record.Status
		sess.Result = record.Result
		sess.Error = record.Error
		sess.UpdatedAt = record.UpdatedAt
	}

	return nil
}

// SessionInfo is a listing entry for stored sessions.
type SessionInfo struct {
	ID      string
	ModTime time.Time
}

// List returns stored session IDs, newest first.
func (s *FileStore) List() ([]SessionInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []SessionInfo
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info := SessionInfo{ID: strings.TrimSuffix(e.Name(), ".jsonl")}
		if fi, err := e.Info(); err == nil {
			info.ModTime = fi.ModTime()
		}
		infos = append(infos, info)
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].ModTime.After(infos[j].ModTime) })
	return infos, nil
}
