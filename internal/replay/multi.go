package replay

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/openclaw/taskforge/internal/session"
)

// MultiReplayer renders several session files as one chronological view.
type MultiReplayer struct {
	output    io.Writer
	verbosity int
	opts      []Option
}

// NewMulti creates a new MultiReplayer. Options apply to every session.
func NewMulti(output io.Writer, verbosity int, opts ...Option) *MultiReplayer {
	return &MultiReplayer{
		output:    output,
		verbosity: verbosity,
		opts:      opts,
	}
}

// sessionInfo holds a parsed session with its source path.
type sessionInfo struct {
	Session *session.Session
	Source  string
	Label   string
}

// ReplayFiles outputs multiple sessions to the writer.
func (m *MultiReplayer) ReplayFiles(paths []string) error {
	sessions, err := m.loadSessions(paths)
	if err != nil {
		return err
	}
	return m.replayAll(sessions)
}

// ReplayFilesInteractive shows multiple sessions in the interactive pager.
func (m *MultiReplayer) ReplayFilesInteractive(paths []string) error {
	sessions, err := m.loadSessions(paths)
	if err != nil {
		return err
	}

	var buf strings.Builder
	oldOutput := m.output
	m.output = &buf
	err = m.replayAll(sessions)
	m.output = oldOutput
	if err != nil {
		return err
	}

	title := fmt.Sprintf("%d session(s)", len(sessions))
	if len(sessions) == 1 {
		title = sessions[0].Label
	}
	p := NewPager(title)
	return p.Run(buf.String())
}

// loadSessions loads all session files and orders them by creation time.
func (m *MultiReplayer) loadSessions(paths []string) ([]sessionInfo, error) {
	r := New(m.output, m.verbosity, m.opts...)

	var sessions []sessionInfo
	for _, path := range paths {
		sess, err := r.loadSession(path)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sessionInfo{
			Session: sess,
			Source:  path,
			Label:   runLabel(sess, path),
		})
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Session.CreatedAt.Before(sessions[j].Session.CreatedAt)
	})
	return sessions, nil
}

// runLabel derives a short label from the goal or the filename.
func runLabel(sess *session.Session, path string) string {
	if sess.Goal != "" {
		return truncateContent(sess.Goal, 40)
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// replayAll renders all sessions in order.
func (m *MultiReplayer) replayAll(sessions []sessionInfo) error {
	r := New(m.output, m.verbosity, m.opts...)

	for i, info := range sessions {
		if len(sessions) > 1 {
			m.printSessionHeader(info, i+1, len(sessions))
		}
		if err := r.Replay(info.Session); err != nil {
			return fmt.Errorf("could not replay %s: %w", info.Source, err)
		}
		if i < len(sessions)-1 {
			fmt.Fprintln(m.output)
		}
	}
	return nil
}

var (
	sessionHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("6")) // Cyan background

	sessionDividerStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("6")) // Cyan
)

// printSessionHeader prints a distinctive banner between sessions.
func (m *MultiReplayer) printSessionHeader(info sessionInfo, num, total int) {
	shortID := info.Session.ID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}

	header := fmt.Sprintf(" %s │ %s │ %s ",
		info.Label,
		shortID,
		info.Session.CreatedAt.Format("2006-01-02 15:04:05"))
	if total > 1 {
		header = fmt.Sprintf(" [%d/%d]%s", num, total, header)
	}

	fmt.Fprintln(m.output)
	fmt.Fprintln(m.output, sessionDividerStyle.Render(strings.Repeat("━", 70)))
	fmt.Fprintln(m.output, sessionHeaderStyle.Render(header))
	fmt.Fprintln(m.output, sessionDividerStyle.Render(strings.Repeat("━", 70)))
}
