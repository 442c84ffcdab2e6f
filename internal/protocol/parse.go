package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// TaskSpec is one entry of a decomposition response: a named subtask
// with its description, kind, and dependency names.
type TaskSpec struct {
	Name         string
	Description  string
	Kind         string
	Dependencies []string
}

// Failure classes produced by error analysis. The value names the
// route the executor takes next.
const (
	ClassAmend  = "amend"  // local code defect, repair in place
	ClassReplan = "replan" // environment insufficiency, needs new prerequisite tasks
)

// Verdict is the judge's decision over one execution result.
type Verdict struct {
	Reasoning string
	Pass      bool
	Score     float64
}

// Classification is the analyzer's decision over one failed attempt.
type Classification struct {
	Reasoning string
	Type      string
}

// ParseTaskSpecs parses a decomposition response: a JSON object mapping
// task name to {description, type, dependencies}. Document key order is
// preserved because it decides scheduling ties among simultaneously
// ready tasks. Returns an error when no well-formed decomposition is
// present; the caller must not mutate any graph in that case.
func ParseTaskSpecs(s string) ([]TaskSpec, error) {
	obj := ExtractJSONObject(s)
	if obj == "" {
		return nil, errors.New("no JSON object in response")
	}

	dec := json.NewDecoder(strings.NewReader(obj))
	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("malformed decomposition: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("decomposition is not a JSON object")
	}

	var specs []TaskSpec
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("malformed decomposition: %w", err)
		}
		name, ok := keyTok.(string)
		if !ok {
			return nil, errors.New("malformed decomposition: non-string task name")
		}
		var body struct {
			Description  string   `json:"description"`
			Type         string   `json:"type"`
			Dependencies []string `json:"dependencies"`
		}
		if err := dec.Decode(&body); err != nil {
			return nil, fmt.Errorf("task %q: %w", name, err)
		}
		specs = append(specs, TaskSpec{
			Name:         name,
			Description:  body.Description,
			Kind:         body.Type,
			Dependencies: body.Dependencies,
		})
	}
	if len(specs) == 0 {
		return nil, errors.New("decomposition contains no tasks")
	}
	return specs, nil
}

// ParseVerdict parses a judge response: {reasoning, judge, score}.
func ParseVerdict(s string) (Verdict, error) {
	obj := ExtractJSONObject(s)
	if obj == "" {
		return Verdict{}, errors.New("no JSON object in judge response")
	}

	var raw struct {
		Reasoning string   `json:"reasoning"`
		Judge     *bool    `json:"judge"`
		Score     *float64 `json:"score"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Verdict{}, fmt.Errorf("malformed judge response: %w", err)
	}
	if raw.Judge == nil {
		return Verdict{}, errors.New("judge response missing judge field")
	}

	v := Verdict{Reasoning: raw.Reasoning, Pass: *raw.Judge}
	if raw.Score != nil {
		v.Score = *raw.Score
	}
	return v, nil
}

// ParseClassification parses an error-analysis response: {reasoning, type}
// where type is "amend" or "replan".
func ParseClassification(s string) (Classification, error) {
	obj := ExtractJSONObject(s)
	if obj == "" {
		return Classification{}, errors.New("no JSON object in analysis response")
	}

	var raw struct {
		Reasoning string `json:"reasoning"`
		Type      string `json:"type"`
	}
	if err := json.Unmarshal([]byte(obj), &raw); err != nil {
		return Classification{}, fmt.Errorf("malformed analysis response: %w", err)
	}

	switch raw.Type {
	case ClassAmend, ClassReplan:
	default:
		return Classification{}, fmt.Errorf("unknown failure class %q", raw.Type)
	}
	return Classification{Reasoning: raw.Reasoning, Type: raw.Type}, nil
}
