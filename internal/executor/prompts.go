package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/openclaw/taskforge/internal/sandbox"
)

const generateSystemPrompt = `You write POSIX shell for the acting stage of an autonomous agent. Produce one shell function that completes the subtask, then show how to call it.

Rules:
- Define exactly one function, named after the subtask.
- Put a "# description:" comment line inside the function summarizing what it does, and a "# args:" comment line documenting its parameters (write "none" when it takes no arguments).
- The function must print its result to stdout and work relative to the current directory.
- Return the code in one fenced code block.
- After the code block, give the exact call with concrete argument values, wrapped in <invoke></invoke>.`

const capabilitySystemPrompt = `You produce the arguments for one capability call by an autonomous agent. The capability is fixed; work out the argument values that complete the subtask.

Respond with a single JSON object of arguments wrapped in <invoke></invoke>. Use {} when the capability takes none. Provide only the invocation, no additional text.`

const judgeSystemPrompt = `You evaluate whether a shell execution satisfied its subtask. Judge only from the captured output and workspace state, not from what the code looks like it should do.

Respond with a single JSON object: {"reasoning": ..., "judge": true or false, "score": a number between 0 and 1}. "judge" is true only when the output shows the subtask is complete. Provide only the JSON object, no additional text.`

const amendSystemPrompt = `You repair a failing shell function. Rewrite it so the subtask succeeds, guided by the captured error and the critique. Keep the function name and keep the "# description:" and "# args:" comments accurate.

Respond with the corrected code in one fenced code block, then the corrected call wrapped in <invoke></invoke>.`

const analyzeSystemPrompt = `You classify why a shell subtask keeps failing. There are two classes:
- "amend": the code is defective and rewriting it can fix the failure.
- "replan": the environment lacks a prerequisite (a missing command, file, permission, or resource) that no rewrite of this code can supply.

Respond with a single JSON object: {"reasoning": ..., "type": "amend" or "replan"}. When you choose "replan", name the missing prerequisite precisely in "reasoning"; it becomes the input to the repair plan. Provide only the JSON object, no additional text.`

// DependencyResult carries one completed prerequisite into prompts.
type DependencyResult struct {
	Name        string
	Description string
	ReturnValue string
}

// GeneratePrompt renders the code-generation request for a subtask.
func GeneratePrompt(name, description string, deps []DependencyResult, reused map[string]string) (system, user string) {
	var sb strings.Builder
	writeSubtask(&sb, name, description)
	writeDependencies(&sb, deps)

	if len(reused) > 0 {
		names := make([]string, 0, len(reused))
		for n := range reused {
			names = append(names, n)
		}
		sort.Strings(names)
		sb.WriteString("\nStored implementations worth adapting:\n")
		for _, n := range names {
			sb.WriteString("\n### " + n + "\n")
			writeCodeBlock(&sb, reused[n])
		}
	}
	return generateSystemPrompt, sb.String()
}

// CapabilityPrompt renders the argument request for a capability-backed
// subtask. The critique from a rejected attempt rides along so the next
// call can correct it.
func CapabilityPrompt(name, description, capability, capabilityDoc string, deps []DependencyResult, critique string) (system, user string) {
	var sb strings.Builder
	writeSubtask(&sb, name, description)

	sb.WriteString("\nCapability to call: " + capability + "\n")
	if capabilityDoc != "" {
		sb.WriteString("Capability description: " + capabilityDoc + "\n")
	}
	writeDependencies(&sb, deps)

	if critique != "" {
		sb.WriteString("\nPrevious call was rejected:\n" + critique + "\n")
	}
	return capabilitySystemPrompt, sb.String()
}

// JudgePrompt renders the evaluation request for one execution attempt.
func JudgePrompt(name, description, code string, obs sandbox.Observation, returnValue string) (system, user string) {
	var sb strings.Builder
	writeSubtask(&sb, name, description)

	sb.WriteString("\nExecuted code:\n")
	writeCodeBlock(&sb, code)
	writeObservation(&sb, obs)
	if returnValue != "" {
		sb.WriteString("\nReturn value: " + returnValue + "\n")
	}
	return judgeSystemPrompt, sb.String()
}

// AmendPrompt renders the repair request after a failed attempt.
func AmendPrompt(name, description, code string, obs sandbox.Observation, critique string) (system, user string) {
	var sb strings.Builder
	writeSubtask(&sb, name, description)

	sb.WriteString("\nCurrent code:\n")
	writeCodeBlock(&sb, code)
	writeObservation(&sb, obs)
	if critique != "" {
		sb.WriteString("\nCritique:\n" + critique + "\n")
	}
	return amendSystemPrompt, sb.String()
}

// AnalyzePrompt renders the failure-classification request.
func AnalyzePrompt(name, description, code string, obs sandbox.Observation, critique string) (system, user string) {
	var sb strings.Builder
	writeSubtask(&sb, name, description)

	sb.WriteString("\nFailing code:\n")
	writeCodeBlock(&sb, code)
	writeObservation(&sb, obs)
	if critique != "" {
		sb.WriteString("\nCritique:\n" + critique + "\n")
	}
	return analyzeSystemPrompt, sb.String()
}

func writeSubtask(sb *strings.Builder, name, description string) {
	sb.WriteString("Subtask: " + name + "\n")
	sb.WriteString("Description: " + description + "\n")
}

func writeDependencies(sb *strings.Builder, deps []DependencyResult) {
	sb.WriteString("\nCompleted prerequisites:\n")
	if len(deps) == 0 {
		sb.WriteString("(none)\n")
		return
	}
	for _, d := range deps {
		sb.WriteString(fmt.Sprintf("\n### %s\n%s\n", d.Name, d.Description))
		if d.ReturnValue != "" {
			sb.WriteString("returned: " + d.ReturnValue + "\n")
		}
	}
}

func writeObservation(sb *strings.Builder, obs sandbox.Observation) {
	if obs.Result != "" {
		sb.WriteString("\nCaptured output:\n" + strings.TrimRight(obs.Result, "\n") + "\n")
	}
	if obs.Error != "" {
		sb.WriteString("\nCaptured error:\n" + strings.TrimRight(obs.Error, "\n") + "\n")
	}
	sb.WriteString("\nWorking directory: " + obs.Cwd + "\n")
	sb.WriteString("Directory contents:\n")
	if len(obs.Listing) == 0 {
		sb.WriteString("(empty)\n")
	} else {
		for _, entry := range obs.Listing {
			sb.WriteString("- " + entry + "\n")
		}
	}
}

func writeCodeBlock(sb *strings.Builder, code string) {
	sb.WriteString("```sh\n" + strings.TrimRight(code, "\n") + "\n```\n")
}
