package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zjrosen/weave/internal/stories/domain"
)

// ParseResponse extracts the decomposition JSON object from a model
// response and validates it. Models wrap JSON in prose or code fences
// despite instructions, so extraction is tolerant: raw JSON first, then
// fenced blocks, then a brace scan.
func ParseResponse(response string) (*Result, error) {
	payload, ok := extractJSON(response)
	if !ok {
		return nil, fmt.Errorf("%w: no JSON object in planner response", domain.ErrParse)
	}

	var result Result
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return nil, fmt.Errorf("%w: decoding planner response: %v", domain.ErrParse, err)
	}

	if err := result.Validate(); err != nil {
		return nil, err
	}
	return &result, nil
}

// extractJSON finds the decomposition object in a model response.
func extractJSON(response string) (string, bool) {
	trimmed := strings.TrimSpace(response)

	// Already bare JSON.
	if strings.HasPrefix(trimmed, "{") && json.Valid([]byte(trimmed)) {
		return trimmed, true
	}

	// Fenced code block, ```json or plain ```.
	if block, ok := fencedBlock(trimmed); ok {
		if strings.HasPrefix(block, "{") && json.Valid([]byte(block)) {
			return block, true
		}
	}

	// Fall back to scanning from the first brace.
	if obj, ok := scanBraces(trimmed); ok {
		return obj, true
	}
	return "", false
}

// fencedBlock returns the contents of the first ``` fence.
func fencedBlock(s string) (string, bool) {
	start := strings.Index(s, "```")
	if start < 0 {
		return "", false
	}
	rest := s[start+3:]
	// Drop an optional language tag on the fence line.
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	}
	end := strings.Index(rest, "```")
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

// scanBraces extracts the first balanced {...} region, respecting
// string literals and escape sequences.
func scanBraces(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
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
				candidate := s[start : i+1]
				if json.Valid([]byte(candidate)) {
					return candidate, true
				}
				return "", false
			}
		}
	}
	return "", false
}
