package session

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)

	sess := &Session{
		ID:        "run-1",
		Goal:      "summarize the report",
		Status:    StatusRunning,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	sess.AddEvent(Event{Type: EventRunStart, Content: "summarize the report"})
	sess.AddEvent(Event{
		Type: EventExecute, Node: "extract_text", Attempt: 2,
		DurationMs: 40,
		Meta:       &EventMeta{Code: "pdftotext report.pdf -", ExitCode: 0, Output: "text"},
	})

	if err := store.Save(sess); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load("run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if loaded.Goal != "summarize the report" || loaded.Status != StatusRunning {
		t.Errorf("session fields mismatch: %+v", loaded)
	}
	if len(loaded.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(loaded.Events))
	}

	evt := loaded.Events[1]
	if evt.Type != EventExecute || evt.Node != "extract_text" || evt.Attempt != 2 {
		t.Errorf("event fields mismatch: %+v", evt)
	}
	if evt.Meta == nil || evt.Meta.Code != "pdftotext report.pdf -" {
		t.Errorf("event meta lost: %+v", evt.Meta)
	}
	if evt.SeqID != 2 {
		t.Errorf("expected seq 2, got %d", evt.SeqID)
	}

	// Sequence counter continues after reload.
	if seq := loaded.AddEvent(Event{Type: EventRunEnd}); seq != 3 {
		t.Errorf("expected next seq 3, got %d", seq)
	}
}

func TestSQLiteUpsert(t *testing.T) {
	store := newTestSQLiteStore(t)

	sess := &Session{ID: "run-2", Goal: "g", Status: StatusRunning, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	sess.AddEvent(Event{Type: EventRunStart})
	if err := store.Save(sess); err != nil {
		t.Fatalf("first Save failed: %v", err)
	}

	sess.Status = StatusComplete
	sess.Result = "done"
	sess.AddEvent(Event{Type: EventRunEnd})
	if err := store.Save(sess); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, err := store.Load("run-2")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Status != StatusComplete || loaded.Result != "done" {
		t.Errorf("update not persisted: %+v", loaded)
	}
	if len(loaded.Events) != 2 {
		t.Errorf("expected events to be replaced, got %d", len(loaded.Events))
	}
}

func TestSQLiteLoadMissing(t *testing.T) {
	store := newTestSQLiteStore(t)

	if _, err := store.Load("no-such-run"); err == nil {
		t.Error("expected error for missing session")
	}
}

func TestSQLiteList(t *testing.T) {
	store := newTestSQLiteStore(t)

	older := &Session{ID: "older", Goal: "g", Status: StatusComplete, CreatedAt: time.Now(), UpdatedAt: time.Now().Add(-time.Hour)}
	newer := &Session{ID: "newer", Goal: "g", Status: StatusRunning, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	if err := store.Save(older); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := store.Save(newer); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(infos) != 2 || infos[0].ID != "newer" {
		t.Errorf("expected newest first, got %v", infos)
	}
}
