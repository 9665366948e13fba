// Package feedback implements the offline trace analyzer (C16, spec
// §4.15): parsing a trajectory JSONL file produced by an agent run,
// classifying its dominant failure mode against a small declarative fault
// ontology, and redacting any secret value a trajectory might have
// captured before it reaches analysis output. This is a read-only tool
// over files C12/C14 already produced — it never participates in the
// request-dispatch hot path.
//
// Grounded on
// _examples/original_source/.claude/scripts/trace_analyzer/{parser,classifier}.py
// for shape and the corruption-tolerance pattern, adapted onto this
// gateway's own event/fault vocabulary (spec §4.15) rather than the
// trace_analyzer's skill-harness-specific fault categories.
package feedback

import (
	"bufio"
	"encoding/json"
	"os"
)

// TrajectoryEvent is one line of a trajectory JSONL file: a tool call,
// tool result, or assistant turn. Extra fields are preserved in Raw so a
// classifier can inspect provider-specific detail without the parser
// needing to know its shape up front.
type TrajectoryEvent struct {
	Type      string         `json:"type"`
	Tool      string         `json:"tool,omitempty"`
	Content   string         `json:"content,omitempty"`
	Error     string         `json:"error,omitempty"`
	Timestamp string         `json:"timestamp,omitempty"`
	Raw       map[string]any `json:"-"`
}

// ParseResult reports how many lines were read and how many were
// malformed, mirroring the ledger reader's corruption-tolerance contract:
// a corrupt line is skipped and counted, never a hard failure.
type ParseResult struct {
	Events       []TrajectoryEvent
	TotalLines   int
	CorruptLines int
}

// ParseTrajectory reads a JSONL trajectory file, tolerating malformed
// lines. A missing file yields an empty, non-error result.
func ParseTrajectory(path string) (ParseResult, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ParseResult{}, nil
		}
		return ParseResult{}, err
	}
	defer f.Close()

	var result ParseResult
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		result.TotalLines++

		var raw map[string]any
		if err := json.Unmarshal(line, &raw); err != nil {
			result.CorruptLines++
			continue
		}

		var event TrajectoryEvent
		if err := json.Unmarshal(line, &event); err != nil {
			result.CorruptLines++
			continue
		}
		event.Raw = raw
		result.Events = append(result.Events, event)
	}

	if err := scanner.Err(); err != nil {
		return result, err
	}
	return result, nil
}
