package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	fenceRe         = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\}|\\[.*\\])\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
)

// RepairJSON recovers a JSON object or array from sloppy model output. The
// cascade: prefer a fenced code block, otherwise slice from the first opening
// bracket to the matching last closing one, then strip trailing commas and
// validate. The result must be a top-level object or array.
func RepairJSON(raw string) (string, error) {
	candidate := strings.TrimSpace(raw)
	if candidate == "" {
		return "", fmt.Errorf("empty output")
	}

	if m := fenceRe.FindStringSubmatch(candidate); m != nil {
		candidate = m[1]
	} else if !isJSONShaped(candidate) {
		sliced, err := sliceBrackets(candidate)
		if err != nil {
			return "", err
		}
		candidate = sliced
	}

	candidate = trailingCommaRe.ReplaceAllString(candidate, "$1")
	if !json.Valid([]byte(candidate)) {
		// One more chance: the shape check can pass on text that still has
		// prose around the payload.
		sliced, err := sliceBrackets(candidate)
		if err != nil {
			return "", fmt.Errorf("output is not valid JSON")
		}
		sliced = trailingCommaRe.ReplaceAllString(sliced, "$1")
		if !json.Valid([]byte(sliced)) {
			return "", fmt.Errorf("output is not valid JSON")
		}
		candidate = sliced
	}
	if !isJSONShaped(candidate) {
		return "", fmt.Errorf("output is valid JSON but not an object or array")
	}
	return candidate, nil
}

func isJSONShaped(s string) bool {
	s = strings.TrimSpace(s)
	return (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) ||
		(strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]"))
}

// sliceBrackets cuts from the first { or [ to the last matching close
// bracket of the same kind.
func sliceBrackets(s string) (string, error) {
	objStart := strings.Index(s, "{")
	arrStart := strings.Index(s, "[")

	start := objStart
	closer := "}"
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start = arrStart
		closer = "]"
	}
	if start < 0 {
		return "", fmt.Errorf("no JSON payload found in output")
	}

	end := strings.LastIndex(s, closer)
	if end <= start {
		return "", fmt.Errorf("mismatched JSON brackets in output")
	}
	return s[start : end+1], nil
}
