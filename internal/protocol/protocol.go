// Package protocol parses the structured text embedded in collaborator
// responses and builds the sentinel wire format shared with the sandbox.
// Extraction is exact: the first well-formed match wins, and absence is
// an empty result, never an error.
package protocol

import "strings"

// Marker tags used in collaborator responses.
const (
	TagPlan    = "plan"
	TagSubtask = "subtask"
	TagAction  = "action"
	TagReturn  = "return"
	TagInvoke  = "invoke"
)

// ExtractTag returns the content of the first <tag>...</tag> pair in s,
// or empty string if no complete pair exists.
func ExtractTag(s, tag string) string {
	openTag := "<" + tag + ">"
	closeTag := "</" + tag + ">"

	start := strings.Index(s, openTag)
	if start == -1 {
		return ""
	}
	rest := s[start+len(openTag):]
	end := strings.Index(rest, closeTag)
	if end == -1 {
		return ""
	}
	return rest[:end]
}

// ExtractCode returns the body of the first fenced code block in s.
// The info string on the opening fence (e.g. "sh") is discarded. An
// unterminated fence yields an empty result.
func ExtractCode(s string) string {
	start := strings.Index(s, "```")
	if start == -1 {
		return ""
	}
	rest := s[start+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl == -1 {
		return ""
	}
	body := rest[nl+1:]
	end := strings.Index(body, "```")
	if end == -1 {
		return ""
	}
	return body[:end]
}

// ExtractJSONObject extracts the first balanced JSON object from content
// that may contain surrounding text.
func ExtractJSONObject(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	// Find matching closing brace
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		c := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}

// WrapInvocation assembles the source the sandbox runs for one attempt:
// the generated code, the invocation with its output captured, and the
// sentinel markers that let ExtractReturn recover the value from stdout.
func WrapInvocation(code, invocation string) string {
	var b strings.Builder
	b.WriteString(code)
	if !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(`__out="$(` + invocation + `)"` + "\n")
	b.WriteString(`echo "<` + TagReturn + `>"` + "\n")
	b.WriteString(`printf '%s\n' "$__out"` + "\n")
	b.WriteString(`echo "</` + TagReturn + `>"` + "\n")
	return b.String()
}

// ExtractReturn recovers the invocation's return value from captured
// stdout. The wrapper emits one newline after the opening marker and
// one before the closing marker; both are stripped so the value round
// trips exactly.
func ExtractReturn(stdout string) string {
	inner := ExtractTag(stdout, TagReturn)
	inner = strings.TrimPrefix(inner, "\n")
	inner = strings.TrimSuffix(inner, "\n")
	return inner
}

// ExtractDescription returns the action description embedded in
// generated code as a "# description:" annotation line.
func ExtractDescription(code string) string {
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(trimmed, "# description:"); ok {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}

// ExtractArgsDoc returns the parameter documentation embedded in
// generated code: the "# args:" annotation line plus any comment lines
// immediately following it.
func ExtractArgsDoc(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		rest, ok := strings.CutPrefix(trimmed, "# args:")
		if !ok {
			continue
		}
		parts := []string{strings.TrimSpace(rest)}
		for _, cont := range lines[i+1:] {
			cont = strings.TrimSpace(cont)
			if !strings.HasPrefix(cont, "#") {
				break
			}
			parts = append(parts, strings.TrimSpace(strings.TrimPrefix(cont, "#")))
		}
		// Drop a leading empty segment when "# args:" has no same-line text.
		if parts[0] == "" {
			parts = parts[1:]
		}
		return strings.Join(parts, "\n")
	}
	return ""
}
