package replay

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/openclaw/taskforge/internal/session"
)

// Stats holds aggregate statistics for a session.
type Stats struct {
	// Total run duration
	TotalDurationMs int64

	// Per-task durations, summed over attempts
	TaskDurations map[string]int64

	// LLM traffic
	LLMCallCount int
	LLMTotalMs   int64
	LLMAvgMs     int64
	TokensIn     int
	TokensOut    int
	ModelTokens  map[string]ModelUsage

	// Pipeline counters
	GenerateCount int
	JudgePasses   int
	JudgeFails    int
	AmendCount    int
	ReplanCount   int
	EscalateCount int

	// Library traffic
	RetrieveCount int
	ReuseCount    int
	StoreCount    int
}

// ModelUsage accumulates token counts for one model.
type ModelUsage struct {
	TokensIn  int
	TokensOut int
}

// ModelRate is the per-million-token price for one model.
type ModelRate struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Pricing maps model names to their token rates.
type Pricing map[string]ModelRate

// ComputeStats calculates aggregate statistics from session events.
func ComputeStats(sess *session.Session) *Stats {
	stats := &Stats{
		TaskDurations: make(map[string]int64),
		ModelTokens:   make(map[string]ModelUsage),
	}

	var firstEvent, lastEvent time.Time

	for _, event := range sess.Events {
		if firstEvent.IsZero() || event.Timestamp.Before(firstEvent) {
			firstEvent = event.Timestamp
		}
		if lastEvent.IsZero() || event.Timestamp.After(lastEvent) {
			lastEvent = event.Timestamp
		}

		if event.Meta != nil {
			stats.TokensIn += event.Meta.TokensIn
			stats.TokensOut += event.Meta.TokensOut
			if event.Meta.Model != "" && (event.Meta.TokensIn > 0 || event.Meta.TokensOut > 0) {
				usage := stats.ModelTokens[event.Meta.Model]
				usage.TokensIn += event.Meta.TokensIn
				usage.TokensOut += event.Meta.TokensOut
				stats.ModelTokens[event.Meta.Model] = usage
			}
			if event.Meta.LatencyMs > 0 {
				stats.LLMCallCount++
				stats.LLMTotalMs += event.Meta.LatencyMs
			}
		}

		switch event.Type {
		case session.EventNodeEnd:
			if event.DurationMs > 0 {
				stats.TaskDurations[event.Node] += event.DurationMs
			}

		case session.EventGenerate:
			stats.GenerateCount++

		case session.EventJudge:
			if event.Meta != nil && event.Meta.Pass {
				stats.JudgePasses++
			} else {
				stats.JudgeFails++
			}

		case session.EventAmend:
			stats.AmendCount++

		case session.EventReplan:
			stats.ReplanCount++

		case session.EventEscalate:
			stats.EscalateCount++

		case session.EventRetrieve:
			stats.RetrieveCount++
			if event.Meta != nil && event.Meta.Selected != "" {
				stats.ReuseCount++
			}

		case session.EventStore:
			stats.StoreCount++
		}
	}

	if !firstEvent.IsZero() && !lastEvent.IsZero() {
		stats.TotalDurationMs = lastEvent.Sub(firstEvent).Milliseconds()
	}
	if stats.LLMCallCount > 0 {
		stats.LLMAvgMs = stats.LLMTotalMs / int64(stats.LLMCallCount)
	}

	return stats
}

// PrintStats outputs the statistics to the writer.
func PrintStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("STATISTICS"))
	fmt.Fprintln(w, divider)

	fmt.Fprintf(w, "%s %s\n",
		labelStyle.Render("Total Duration:"),
		valueStyle.Render(formatDuration(stats.TotalDurationMs)))
	fmt.Fprintln(w)

	if len(stats.TaskDurations) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Task Durations:"))
		var tasks []string
		for name := range stats.TaskDurations {
			tasks = append(tasks, name)
		}
		sort.Strings(tasks)
		for _, name := range tasks {
			fmt.Fprintf(w, "  %s %s\n",
				labelStyle.Render(name+":"),
				valueStyle.Render(formatDuration(stats.TaskDurations[name])))
		}
		fmt.Fprintln(w)
	}

	if stats.LLMCallCount > 0 {
		fmt.Fprintln(w, titleStyle.Render("LLM Response Times:"))
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Calls:"),
			valueStyle.Render(fmt.Sprintf("%d", stats.LLMCallCount)))
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Total:"),
			valueStyle.Render(formatDuration(stats.LLMTotalMs)))
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Average:"),
			valueStyle.Render(formatDuration(stats.LLMAvgMs)))
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, titleStyle.Render("Pipeline:"))
	fmt.Fprintf(w, "  %s %s\n",
		labelStyle.Render("Generations:"),
		valueStyle.Render(fmt.Sprintf("%d", stats.GenerateCount)))
	fmt.Fprintf(w, "  %s %s\n",
		labelStyle.Render("Verdicts:"),
		valueStyle.Render(fmt.Sprintf("%d pass / %d fail", stats.JudgePasses, stats.JudgeFails)))
	if stats.AmendCount > 0 {
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Repairs:"),
			valueStyle.Render(fmt.Sprintf("%d", stats.AmendCount)))
	}
	if stats.ReplanCount > 0 {
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Replans:"),
			valueStyle.Render(fmt.Sprintf("%d", stats.ReplanCount)))
	}
	if stats.EscalateCount > 0 {
		fmt.Fprintf(w, "  %s %s\n",
			labelStyle.Render("Escalations:"),
			valueStyle.Render(fmt.Sprintf("%d", stats.EscalateCount)))
	}
	fmt.Fprintln(w)

	if stats.RetrieveCount > 0 || stats.StoreCount > 0 {
		fmt.Fprintln(w, titleStyle.Render("Library:"))
		if stats.RetrieveCount > 0 {
			fmt.Fprintf(w, "  %s %s\n",
				labelStyle.Render("Lookups:"),
				valueStyle.Render(fmt.Sprintf("%d (%d reused)", stats.RetrieveCount, stats.ReuseCount)))
		}
		if stats.StoreCount > 0 {
			fmt.Fprintf(w, "  %s %s\n",
				labelStyle.Render("Stored:"),
				valueStyle.Render(fmt.Sprintf("%d", stats.StoreCount)))
		}
		fmt.Fprintln(w)
	}
}

// PrintTokenUsage outputs token totals and, when pricing covers the models
// seen in the session, the estimated cost.
func PrintTokenUsage(w io.Writer, stats *Stats, pricing Pricing) {
	if stats.TokensIn == 0 && stats.TokensOut == 0 {
		return
	}

	fmt.Fprintln(w, titleStyle.Render("Token Usage:"))
	fmt.Fprintf(w, "  %s %s\n",
		labelStyle.Render("Input:"),
		valueStyle.Render(fmt.Sprintf("%d", stats.TokensIn)))
	fmt.Fprintf(w, "  %s %s\n",
		labelStyle.Render("Output:"),
		valueStyle.Render(fmt.Sprintf("%d", stats.TokensOut)))

	if len(pricing) > 0 {
		var models []string
		for model := range stats.ModelTokens {
			if _, ok := pricing[model]; ok {
				models = append(models, model)
			}
		}
		sort.Strings(models)

		var total float64
		for _, model := range models {
			usage := stats.ModelTokens[model]
			rate := pricing[model]
			cost := float64(usage.TokensIn)/1e6*rate.InputPer1M +
				float64(usage.TokensOut)/1e6*rate.OutputPer1M
			total += cost
			if len(models) > 1 {
				fmt.Fprintf(w, "  %s %s\n",
					labelStyle.Render(model+":"),
					valueStyle.Render(fmt.Sprintf("$%.4f", cost)))
			}
		}
		if len(models) > 0 {
			fmt.Fprintf(w, "  %s %s\n",
				labelStyle.Render("Estimated Cost:"),
				valueStyle.Render(fmt.Sprintf("$%.4f", total)))
		}
	}
	fmt.Fprintln(w)
}

// formatDuration formats milliseconds as a human-readable duration.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.2fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm%ds", mins, secs)
}
