package replay

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/openclaw/taskforge/internal/session"
)

// Replayer reads and formats session events for forensic analysis.
type Replayer struct {
	output         io.Writer
	verbosity      int     // 0=normal, 1=verbose (-v), 2=very verbose (-vv)
	maxContentSize int     // Maximum size for content fields (0 = unlimited)
	pricing        Pricing // Optional per-model rates for cost calculation
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithMaxContentSize limits event content size to avoid OOM on large sessions.
func WithMaxContentSize(size int) Option {
	return func(r *Replayer) {
		r.maxContentSize = size
	}
}

// WithModelPricing registers per-million-token rates for a model so the
// summary can estimate cost. Repeatable for multi-model sessions.
func WithModelPricing(model string, inputPer1M, outputPer1M float64) Option {
	return func(r *Replayer) {
		if r.pricing == nil {
			r.pricing = make(Pricing)
		}
		r.pricing[model] = ModelRate{
			InputPer1M:  inputPer1M,
			OutputPer1M: outputPer1M,
		}
	}
}

// New creates a new Replayer.
func New(output io.Writer, verbosity int, opts ...Option) *Replayer {
	r := &Replayer{
		output:         output,
		verbosity:      verbosity,
		maxContentSize: 50 * 1024,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ReplayFile loads and replays a session from a JSONL file.
func (r *Replayer) ReplayFile(path string) error {
	sess, err := r.loadSession(path)
	if err != nil {
		return err
	}
	return r.Replay(sess)
}

// ReplayFileInteractive loads and replays with the interactive pager.
func (r *Replayer) ReplayFileInteractive(path string) error {
	sess, err := r.loadSession(path)
	if err != nil {
		return err
	}
	return r.ReplayInteractive(sess)
}

// ReplayInteractive renders the timeline into the interactive pager.
func (r *Replayer) ReplayInteractive(sess *session.Session) error {
	content, err := r.render(sess)
	if err != nil {
		return err
	}
	p := NewPager(fmt.Sprintf("Session: %s", sess.ID))
	return p.Run(content)
}

// ReplayFileLive replays with live re-rendering as the session file grows.
func (r *Replayer) ReplayFileLive(path string) error {
	renderFunc := func() (string, error) {
		sess, err := r.loadSession(path)
		if err != nil {
			return "", err
		}
		return r.render(sess)
	}

	sess, err := r.loadSession(path)
	if err != nil {
		return err
	}

	p := NewPager(fmt.Sprintf("Session: %s (LIVE)", sess.ID))
	return p.RunLive(path, renderFunc)
}

// render produces the full timeline as a string.
func (r *Replayer) render(sess *session.Session) (string, error) {
	var buf strings.Builder
	oldOutput := r.output
	r.output = &buf
	err := r.Replay(sess)
	r.output = oldOutput
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Replay outputs a formatted timeline of session events.
func (r *Replayer) Replay(sess *session.Session) error {
	r.printHeader(sess)
	r.printTimeline(sess)
	r.printSummary(sess)
	return nil
}

func (r *Replayer) printHeader(sess *session.Session) {
	fmt.Fprintln(r.output)
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("SESSION"), valueStyle.Render(sess.ID))
	fmt.Fprintln(r.output, divider)
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Goal:   "), valueStyle.Render(sess.Goal))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Status: "), statusStyle(sess.Status).Render(sess.Status))
	fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Created:"), valueStyle.Render(sess.CreatedAt.Format(time.RFC3339)))
	fmt.Fprintln(r.output)
}

func (r *Replayer) printTimeline(sess *session.Session) {
	fmt.Fprintf(r.output, "%s %s\n", titleStyle.Render("TIMELINE"), dimStyle.Render(fmt.Sprintf("(%d events)", len(sess.Events))))
	fmt.Fprintln(r.output, divider)

	var lastTask string
	for i, event := range sess.Events {
		r.formatEvent(i+1, &event, &lastTask)
	}
}

func (r *Replayer) printSummary(sess *session.Session) {
	fmt.Fprintln(r.output)
	fmt.Fprintln(r.output, divider)

	switch sess.Status {
	case session.StatusComplete:
		fmt.Fprintln(r.output, successStyle.Render("COMPLETED"))
		if sess.Result != "" {
			fmt.Fprintf(r.output, "%s %s\n", labelStyle.Render("Result:"), valueStyle.Render(sess.Result))
		}
	case session.StatusEscalated:
		fmt.Fprintf(r.output, "%s %s\n", warnStyle.Render("ESCALATED:"), valueStyle.Render(sess.Error))
	case session.StatusFailed:
		fmt.Fprintf(r.output, "%s %s\n", errorStyle.Render("FAILED:"), valueStyle.Render(sess.Error))
	default:
		fmt.Fprintln(r.output, warnStyle.Render("RUNNING"))
	}

	stats := ComputeStats(sess)
	PrintStats(r.output, stats)
	PrintTokenUsage(r.output, stats, r.pricing)
}
