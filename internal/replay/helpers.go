package replay

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/openclaw/taskforge/internal/session"
)

// printContent prints verbose content with timeline indentation.
func (r *Replayer) printContent(content string) {
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(r.output, "      │          │   %s\n", line)
	}
}

// printCodeBlock prints shell code with a block header.
func (r *Replayer) printCodeBlock(code string) {
	fmt.Fprintf(r.output, "      │          │   %s\n", blockHeaderStyle.Render("── CODE ──"))
	r.printContent(code)
}

// printError prints an error line.
func (r *Replayer) printError(err string) {
	fmt.Fprintf(r.output, "      │          │   %s\n", errorStyle.Render(err))
}

// printLLMMeta prints model, token, and latency details for an LLM call.
func (r *Replayer) printLLMMeta(meta *session.EventMeta) {
	if meta == nil || r.verbosity < 1 {
		return
	}

	if meta.Model != "" || meta.LatencyMs > 0 {
		fmt.Fprintf(r.output, "      │          │   %s %s",
			labelStyle.Render("model:"), valueStyle.Render(meta.Model))
		if meta.TokensIn > 0 || meta.TokensOut > 0 {
			fmt.Fprintf(r.output, "  %s %d→%d",
				labelStyle.Render("tokens:"), meta.TokensIn, meta.TokensOut)
		}
		if meta.LatencyMs > 0 {
			fmt.Fprintf(r.output, "  %s %dms",
				labelStyle.Render("latency:"), meta.LatencyMs)
		}
		fmt.Fprintf(r.output, "\n")
	}

	if r.verbosity >= 2 {
		r.printLLMDetails(meta)
	}
}

// printLLMDetails prints the full prompt and response blocks.
func (r *Replayer) printLLMDetails(meta *session.EventMeta) {
	if meta == nil {
		return
	}

	if meta.Prompt != "" {
		fmt.Fprintf(r.output, "      │          │\n")
		fmt.Fprintf(r.output, "      │          │   %s\n", blockHeaderStyle.Render("── PROMPT ──"))
		r.printContent(meta.Prompt)
	}

	if meta.Response != "" {
		fmt.Fprintf(r.output, "      │          │\n")
		fmt.Fprintf(r.output, "      │          │   %s\n", blockHeaderStyle.Render("── RESPONSE ──"))
		r.printContent(meta.Response)
	}
}

// statusStyle returns the style for a session status.
func statusStyle(status string) lipgloss.Style {
	switch status {
	case session.StatusComplete:
		return successStyle
	case session.StatusFailed:
		return errorStyle
	case session.StatusEscalated:
		return warnStyle
	default:
		return valueStyle
	}
}

// statusDoneStyle returns the style for a task outcome.
func statusDoneStyle(status string) lipgloss.Style {
	switch status {
	case "done":
		return successStyle
	case "escalate":
		return warnStyle
	case "failed":
		return errorStyle
	default:
		return valueStyle
	}
}

// routeStyle returns the style for a failure classification route.
func routeStyle(route string) lipgloss.Style {
	switch route {
	case "amend":
		return warnStyle
	case "replan":
		return errorStyle
	default:
		return valueStyle
	}
}

// truncateContent flattens newlines and truncates a string for display.
func truncateContent(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
