package replay

import (
	"fmt"
	"strings"

	"github.com/openclaw/taskforge/internal/session"
)

// formatEvent formats a single event for display.
func (r *Replayer) formatEvent(seq int, event *session.Event, lastTask *string) {
	// Show task transitions
	if event.Node != "" && event.Node != *lastTask {
		fmt.Fprintln(r.output)
		fmt.Fprintf(r.output, "%s %s\n", taskStyle.Render("TASK:"), valueStyle.Render(event.Node))
		fmt.Fprintln(r.output)
		*lastTask = event.Node
	}

	ts := timeStyle.Render(event.Timestamp.Format("15:04:05"))
	seqNum := seqStyle.Render(fmt.Sprintf("%d", seq))

	switch event.Type {
	case session.EventRunStart:
		r.fmtRunStart(seqNum, ts, event)
	case session.EventRunEnd:
		r.fmtRunEnd(seqNum, ts, event)
	case session.EventReset:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts, dimStyle.Render("RESET"))
	case session.EventPlan:
		r.fmtPlan(seqNum, ts, event)
	case session.EventReplan:
		r.fmtReplan(seqNum, ts, event)
	case session.EventNodeStart:
		r.fmtNodeStart(seqNum, ts, event)
	case session.EventNodeEnd:
		r.fmtNodeEnd(seqNum, ts, event)
	case session.EventRetrieve:
		r.fmtRetrieve(seqNum, ts, event)
	case session.EventGenerate:
		r.fmtGenerate(seqNum, ts, event)
	case session.EventExecute:
		r.fmtExecute(seqNum, ts, event)
	case session.EventJudge:
		r.fmtJudge(seqNum, ts, event)
	case session.EventAmend:
		r.fmtAmend(seqNum, ts, event)
	case session.EventAnalyze:
		r.fmtAnalyze(seqNum, ts, event)
	case session.EventStore:
		r.fmtStore(seqNum, ts, event)
	case session.EventEscalate:
		r.fmtEscalate(seqNum, ts, event)
	case session.EventWarning:
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
			warnStyle.Render("WARNING"),
			dimStyle.Render(truncateContent(event.Content, 100)))
	default:
		fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts, dimStyle.Render(event.Type))
	}
}

func (r *Replayer) fmtRunStart(seqNum, ts string, event *session.Event) {
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
		flowStyle.Render("RUN START:"),
		valueStyle.Render(truncateContent(event.Content, 80)))
}

func (r *Replayer) fmtRunEnd(seqNum, ts string, event *session.Event) {
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
		flowStyle.Render("RUN END:"),
		statusStyle(event.Content).Render(event.Content),
		dimStyle.Render(fmt.Sprintf("(%s)", formatDuration(event.DurationMs))))
	if event.Error != "" {
		r.printError(event.Error)
	}
}

func (r *Replayer) fmtPlan(seqNum, ts string, event *session.Event) {
	count := 0
	if event.Meta != nil {
		count = len(event.Meta.Tasks)
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
		planStyle.Render("PLAN"),
		dimStyle.Render(fmt.Sprintf("(%d tasks)", count)))
	if event.Meta != nil && len(event.Meta.Tasks) > 0 {
		fmt.Fprintf(r.output, "      │          │   %s\n",
			dimStyle.Render(truncateContent(strings.Join(event.Meta.Tasks, " → "), 100)))
	}
}

func (r *Replayer) fmtReplan(seqNum, ts string, event *session.Event) {
	added := 0
	anchor := event.Node
	if event.Meta != nil {
		added = len(event.Meta.Tasks)
		if event.Meta.Anchor != "" {
			anchor = event.Meta.Anchor
		}
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
		planStyle.Render("REPLAN:"),
		valueStyle.Render(anchor),
		dimStyle.Render(fmt.Sprintf("(%d scheduled)", added)))
	if event.Content != "" {
		fmt.Fprintf(r.output, "      │          │   %s %s\n",
			dimStyle.Render("diagnosis:"),
			dimStyle.Render(truncateContent(event.Content, 100)))
	}
}

func (r *Replayer) fmtNodeStart(seqNum, ts string, event *session.Event) {
	kind := ""
	if event.Meta != nil && event.Meta.Kind != "" {
		kind = dimStyle.Render(fmt.Sprintf(" [%s]", event.Meta.Kind))
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s%s\n", seqNum, ts,
		taskStyle.Render("START:"),
		valueStyle.Render(truncateContent(event.Content, 80)),
		kind)
}

func (r *Replayer) fmtNodeEnd(seqNum, ts string, event *session.Event) {
	status := event.Content
	styled := statusDoneStyle(status).Render(status)
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
		taskStyle.Render("END:"),
		styled,
		dimStyle.Render(fmt.Sprintf("(attempt %d, %s)", event.Attempt, formatDuration(event.DurationMs))))
	if r.verbosity >= 1 && event.Meta != nil && event.Meta.ReturnValue != "" {
		fmt.Fprintf(r.output, "      │          │   %s %s\n",
			dimStyle.Render("returned:"),
			valueStyle.Render(truncateContent(event.Meta.ReturnValue, 100)))
	}
}

func (r *Replayer) fmtRetrieve(seqNum, ts string, event *session.Event) {
	candidates := 0
	selected := ""
	if event.Meta != nil {
		candidates = len(event.Meta.Candidates)
		selected = event.Meta.Selected
	}

	if selected != "" {
		fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
			libStyle.Render("RETRIEVE:"),
			valueStyle.Render(selected),
			dimStyle.Render(fmt.Sprintf("(%d candidates)", candidates)))
	} else {
		fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
			libStyle.Render("RETRIEVE:"),
			dimStyle.Render(fmt.Sprintf("no reuse (%d candidates)", candidates)))
	}
	if r.verbosity >= 1 && event.Meta != nil && len(event.Meta.Candidates) > 0 {
		fmt.Fprintf(r.output, "      │          │   %s %s\n",
			dimStyle.Render("ranked:"),
			dimStyle.Render(strings.Join(event.Meta.Candidates, ", ")))
	}
}

func (r *Replayer) fmtGenerate(seqNum, ts string, event *session.Event) {
	if event.Error != "" {
		fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
			flowStyle.Render("GENERATE"),
			errorStyle.Render("unusable"),
			dimStyle.Render(fmt.Sprintf("(attempt %d)", event.Attempt)))
		r.printError(event.Error)
		return
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
		flowStyle.Render("GENERATE"),
		dimStyle.Render(fmt.Sprintf("(attempt %d)", event.Attempt)))
	if event.Meta != nil {
		if r.verbosity >= 1 && event.Meta.Code != "" {
			r.printCodeBlock(event.Meta.Code)
		}
		r.printLLMMeta(event.Meta)
	}
}

func (r *Replayer) fmtExecute(seqNum, ts string, event *session.Event) {
	exit := successStyle.Render("exit 0")
	if event.Meta != nil && event.Meta.ExitCode != 0 {
		exit = errorStyle.Render(fmt.Sprintf("exit %d", event.Meta.ExitCode))
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s %s\n", seqNum, ts,
		flowStyle.Render("EXECUTE:"),
		valueStyle.Render(truncateContent(event.Content, 60)),
		exit,
		dimStyle.Render(fmt.Sprintf("(%s)", formatDuration(event.DurationMs))))
	if event.Error != "" {
		r.printError(truncateContent(event.Error, 200))
	}
	if r.verbosity >= 1 && event.Meta != nil && event.Meta.Output != "" {
		fmt.Fprintf(r.output, "      │          │   %s\n", blockHeaderStyle.Render("── OUTPUT ──"))
		r.printContent(event.Meta.Output)
	}
}

func (r *Replayer) fmtJudge(seqNum, ts string, event *session.Event) {
	verdict := errorStyle.Render("fail")
	score := ""
	reasoning := ""
	if event.Meta != nil {
		if event.Meta.Pass {
			verdict = successStyle.Render("pass")
		}
		score = dimStyle.Render(fmt.Sprintf("(score %.2f)", event.Meta.Score))
		reasoning = event.Meta.Reasoning
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
		judgeStyle.Render("JUDGE"),
		verdict,
		score)
	if reasoning != "" {
		fmt.Fprintf(r.output, "      │          │   %s\n",
			dimStyle.Render(truncateContent(reasoning, 120)))
	}
	if r.verbosity >= 2 && event.Meta != nil {
		r.printLLMDetails(event.Meta)
	}
}

func (r *Replayer) fmtAmend(seqNum, ts string, event *session.Event) {
	if event.Error != "" {
		fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
			repairStyle.Render("AMEND"),
			errorStyle.Render("unusable"),
			dimStyle.Render(fmt.Sprintf("(attempt %d)", event.Attempt)))
		r.printError(event.Error)
		return
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
		repairStyle.Render("AMEND"),
		dimStyle.Render(fmt.Sprintf("(attempt %d)", event.Attempt)))
	if event.Meta != nil {
		if r.verbosity >= 1 && event.Meta.Code != "" {
			r.printCodeBlock(event.Meta.Code)
		}
		r.printLLMMeta(event.Meta)
	}
}

func (r *Replayer) fmtAnalyze(seqNum, ts string, event *session.Event) {
	route := ""
	if event.Meta != nil {
		route = event.Meta.Route
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s\n", seqNum, ts,
		repairStyle.Render("ANALYZE:"),
		routeStyle(route).Render(route))
	if event.Content != "" {
		fmt.Fprintf(r.output, "      │          │   %s\n",
			dimStyle.Render(truncateContent(event.Content, 120)))
	}
}

func (r *Replayer) fmtStore(seqNum, ts string, event *session.Event) {
	action := ""
	if event.Meta != nil {
		action = event.Meta.Action
	}
	fmt.Fprintf(r.output, "%s │ %s │ %s %s %s\n", seqNum, ts,
		libStyle.Render("STORE:"),
		valueStyle.Render(action),
		dimStyle.Render(truncateContent(event.Content, 60)))
}

func (r *Replayer) fmtEscalate(seqNum, ts string, event *session.Event) {
	fmt.Fprintf(r.output, "%s │ %s │ %s\n", seqNum, ts,
		errorStyle.Render("ESCALATE"))
	if event.Content != "" {
		fmt.Fprintf(r.output, "      │          │   %s\n",
			dimStyle.Render(truncateContent(event.Content, 120)))
	}
}
