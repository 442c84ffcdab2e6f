// Package logging provides structured, leveled logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents log severity.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Logger provides structured logging to stdout.
type Logger struct {
	mu        sync.Mutex
	output    io.Writer
	minLevel  Level
	component string
	runID     string
}

// levelPriority maps levels to numeric priority for filtering.
var levelPriority = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// New creates a new Logger.
func New() *Logger {
	return &Logger{
		output:   os.Stdout,
		minLevel: LevelInfo,
	}
}

// WithComponent returns a new logger with the given component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: component,
		runID:     l.runID,
	}
}

// WithRunID returns a new logger with the given run ID.
func (l *Logger) WithRunID(runID string) *Logger {
	return &Logger{
		output:    l.output,
		minLevel:  l.minLevel,
		component: l.component,
		runID:     runID,
	}
}

// SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level Level) {
	l.minLevel = level
}

// SetOutput sets the output writer (default: stdout).
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error logs an error message.
func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields...)
}

// formatFields formats a map of fields as key=value pairs.
func formatFields(fields map[string]interface{}) string {
	if len(fields) == 0 {
		return ""
	}
	var parts []string
	for k, v := range fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return " " + strings.Join(parts, " ")
}

// log writes a log entry in traditional format: LEVEL TIMESTAMP [component] message key=value ...
func (l *Logger) log(level Level, msg string, fields ...map[string]interface{}) {
	if levelPriority[level] < levelPriority[l.minLevel] {
		return
	}

	timestamp := time.Now().UTC().Format("2006-01-02T15:04:05.000Z")

	var fieldStr string
	if len(fields) > 0 && fields[0] != nil {
		fieldStr = formatFields(fields[0])
	}

	var line string
	if l.component != "" {
		line = fmt.Sprintf("%-5s %s [%s] %s%s\n", level, timestamp, l.component, msg, fieldStr)
	} else {
		line = fmt.Sprintf("%-5s %s %s%s\n", level, timestamp, msg, fieldStr)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.output.Write([]byte(line))
}

// RunStart logs the start of a goal run.
func (l *Logger) RunStart(goal string) {
	l.Info("run_start", map[string]interface{}{
		"goal": goal,
	})
}

// RunComplete logs the completion of a goal run.
func (l *Logger) RunComplete(goal string, duration time.Duration, status string) {
	l.Info("run_complete", map[string]interface{}{
		"goal":     goal,
		"duration": duration.String(),
		"status":   status,
	})
}

// PlanApplied logs a decomposition being committed to the task graph.
func (l *Logger) PlanApplied(goal string, tasks int) {
	l.Info("plan_applied", map[string]interface{}{
		"goal":  goal,
		"tasks": tasks,
	})
}

// Replan logs a repair plan spliced in around a failing task.
func (l *Logger) Replan(task string, added int) {
	l.Info("replan", map[string]interface{}{
		"task":  task,
		"added": added,
	})
}

// NodeStart logs the start of a task node execution.
func (l *Logger) NodeStart(name, kind string) {
	l.Info("node_start", map[string]interface{}{
		"node": name,
		"kind": kind,
	})
}

// NodeComplete logs the completion of a task node execution.
func (l *Logger) NodeComplete(name string, duration time.Duration, status string) {
	l.Info("node_complete", map[string]interface{}{
		"node":     name,
		"duration": duration.String(),
		"status":   status,
	})
}

// Verdict logs a judgment over a task node's execution output.
func (l *Logger) Verdict(node string, pass bool, score float64) {
	l.Info("verdict", map[string]interface{}{
		"node":  node,
		"pass":  pass,
		"score": fmt.Sprintf("%.2f", score),
	})
}

// Escalation logs a task abandoning local repair because the
// environment cannot satisfy it.
func (l *Logger) Escalation(node, diagnosis string) {
	l.Warn("escalation", map[string]interface{}{
		"node":      node,
		"diagnosis": diagnosis,
	})
}

// ActionStored logs a new action being persisted to the library.
func (l *Logger) ActionStored(name string) {
	l.Info("action_stored", map[string]interface{}{
		"action": name,
	})
}

// CapabilityCall logs an external capability invocation.
func (l *Logger) CapabilityCall(name string) {
	// Don't log args to avoid PII - just log capability name
	l.Info("capability_call", map[string]interface{}{
		"capability": name,
	})
}

// CapabilityResult logs an external capability result.
func (l *Logger) CapabilityResult(name string, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"capability": name,
		"duration":   duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Error("capability_error", fields)
	} else {
		l.Debug("capability_result", fields)
	}
}
