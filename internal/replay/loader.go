package replay

import (
	"fmt"

	"github.com/openclaw/taskforge/internal/session"
)

// loadSession loads a session from a JSONL file and caps oversized
// content fields so huge transcripts replay without exhausting memory.
func (r *Replayer) loadSession(path string) (*session.Session, error) {
	sess, err := session.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not load session %s: %w", path, err)
	}

	if r.maxContentSize > 0 {
		for i := range sess.Events {
			sess.Events[i].Content = r.capContent(sess.Events[i].Content)
			if meta := sess.Events[i].Meta; meta != nil {
				meta.Prompt = r.capContent(meta.Prompt)
				meta.Response = r.capContent(meta.Response)
				meta.Output = r.capContent(meta.Output)
			}
		}
	}
	return sess, nil
}

func (r *Replayer) capContent(s string) string {
	if len(s) <= r.maxContentSize {
		return s
	}
	return s[:r.maxContentSize] + fmt.Sprintf("\n... [truncated, %d bytes total]", len(s))
}
