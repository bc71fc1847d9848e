// Package flowgram owns the plot workflow model: parsing AI-generated
// responses into typed segments, constructing narrative nodes, and the pure
// merge operations that fold generated content into a plot document.
package flowgram

import (
	"encoding/json"
	"strings"

	"plot-server/internal/models"
)

// ParseAIResponse parses the raw text of a text-generation call into an
// ordered segment list. The text is expected to contain a JSON array, possibly
// wrapped in a fenced code block. Parsing never fails past this boundary:
// empty input, a missing array, or malformed JSON all yield an empty list and
// the caller decides whether that is user-facing ("no usable plot content").
func ParseAIResponse(raw string) models.SegmentList {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil
	}

	candidate := trimmed
	if inner, ok := extractFencedBlock(trimmed); ok {
		candidate = inner
	}

	var segments models.SegmentList
	if err := json.Unmarshal([]byte(candidate), &segments); err != nil {
		return nil
	}
	return segments
}

// extractFencedBlock returns the content of the first ``` fenced block,
// skipping an optional language tag (```json) on the opening line.
func extractFencedBlock(text string) (string, bool) {
	const fence = "```"
	start := strings.Index(text, fence)
	if start == -1 {
		return "", false
	}
	rest := text[start+len(fence):]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		firstLine := strings.TrimSpace(rest[:nl])
		// A bare language tag on the opening line is not content.
		if firstLine == "" || !strings.ContainsAny(firstLine, "[{") {
			rest = rest[nl+1:]
		}
	}
	end := strings.Index(rest, fence)
	if end == -1 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}
