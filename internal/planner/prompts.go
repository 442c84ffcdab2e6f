package planner

import (
	"fmt"
	"sort"
	"strings"
)

const decomposeSystemPrompt = `You are the planning stage of an autonomous shell agent. Break the goal into small subtasks and declare the dependencies between them.

Rules:
- Each subtask must be completable by a single POSIX shell script running in the working directory, or by a single call to an available capability.
- Name subtasks in snake_case. Names must be unique and describe what the subtask does.
- Set "type" to "shell" for script subtasks. When one call to an available capability listed below completes the whole subtask, set "type" to that capability's name instead.
- "dependencies" lists the names of subtasks whose results this one needs. Use [] for independent subtasks.
- When a stored action listed below already covers a subtask, describe that subtask so it matches the stored action's description.

Respond with a single JSON object mapping each subtask name to {"description": ..., "type": ..., "dependencies": [...]}. Order the keys so that no subtask appears before one it depends on. Provide only the JSON object, no additional text.`

const replanSystemPrompt = `You are the repair stage of an autonomous shell agent. A subtask failed and could not be fixed by rewriting its script. The diagnosis below explains why. Produce new subtasks that remove the obstacle so the failed subtask can succeed when it runs again.

Rules:
- Each subtask must be completable by a single POSIX shell script running in the working directory, or by a single call to an available capability.
- Name subtasks in snake_case. Names must not collide with the failed subtask or each other.
- Set "type" to "shell" for script subtasks. When one call to an available capability listed below completes the whole subtask, set "type" to that capability's name instead.
- "dependencies" may only reference subtasks in your response. Use [] for independent subtasks.
- The failed subtask will wait on the LAST subtask in your response, so order the keys accordingly.

Respond with a single JSON object mapping each subtask name to {"description": ..., "type": ..., "dependencies": [...]}. Provide only the JSON object, no additional text.`

// DecomposePrompt renders the planning request for a fresh goal. Output
// is deterministic for identical inputs so prompts can be replayed and
// diffed across runs.
func DecomposePrompt(goal string, actions map[string]string, env Environment) (system, user string) {
	var sb strings.Builder
	sb.WriteString("Goal: " + goal + "\n\n")
	writeEnvironment(&sb, env)
	sb.WriteString("\nStored actions available for reuse:\n")
	sb.WriteString(formatActions(actions))
	return decomposeSystemPrompt, sb.String()
}

// ReplanPrompt renders the repair request for a failed subtask.
func ReplanPrompt(diagnosis, failingTask string, candidates map[string]string, env Environment) (system, user string) {
	var sb strings.Builder
	sb.WriteString("Failed subtask: " + failingTask + "\n\n")
	sb.WriteString("Diagnosis:\n" + diagnosis + "\n\n")
	writeEnvironment(&sb, env)
	sb.WriteString("\nStored actions that may help:\n")
	sb.WriteString(formatActions(candidates))
	return replanSystemPrompt, sb.String()
}

func writeEnvironment(sb *strings.Builder, env Environment) {
	sb.WriteString("Working directory: " + env.WorkingDir + "\n")
	sb.WriteString("Directory contents:\n")
	if len(env.Listing) == 0 {
		sb.WriteString("(empty)\n")
	} else {
		for _, entry := range env.Listing {
			sb.WriteString("- " + entry + "\n")
		}
	}
	if env.Capabilities != "" {
		sb.WriteString("\nAvailable capabilities:\n")
		sb.WriteString(env.Capabilities)
		if !strings.HasSuffix(env.Capabilities, "\n") {
			sb.WriteString("\n")
		}
	}
}

// formatActions renders name/description pairs sorted by name. Map
// iteration order must not leak into prompt text.
func formatActions(actions map[string]string) string {
	if len(actions) == 0 {
		return "(none)\n"
	}
	names := make([]string, 0, len(actions))
	for name := range actions {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", name, actions[name]))
	}
	return sb.String()
}
