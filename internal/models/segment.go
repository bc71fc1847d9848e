package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// SegmentType discriminates the flowgram segment variants.
type SegmentType string

const (
	SegmentTypeMeta      SegmentType = "meta"
	SegmentTypeNarration SegmentType = "narration"
	SegmentTypeDialogue  SegmentType = "dialogue"
	SegmentTypeChoices   SegmentType = "choices"
)

// Segment is one typed unit parsed out of a raw AI response. The set of
// implementations is closed: MetaSegment, NarrationSegment, DialogueSegment
// and ChoicesSegment.
type Segment interface {
	SegmentType() SegmentType
}

// MetaSegment updates plot metadata. Only fields present in the source JSON
// override existing metadata values.
type MetaSegment struct {
	Title string   `json:"title,omitempty"`
	Genre string   `json:"genre,omitempty"`
	Style string   `json:"style,omitempty"`
	POV   string   `json:"pov,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// NarrationSegment becomes exactly one narration node.
type NarrationSegment struct {
	Text string `json:"text"`
}

// DialogueSegment becomes exactly one dialogue node. The wire field is
// "message"; the node field is "text".
type DialogueSegment struct {
	Character string `json:"character"`
	Message   string `json:"message"`
	Action    string `json:"action,omitempty"`
}

// ChoiceOption is one selectable option at a branch point.
type ChoiceOption struct {
	ID       string   `json:"id"`
	Summary  string   `json:"summary"`
	Hint     string   `json:"hint,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// ChoicesSegment is never converted into nodes; it is surfaced to the caller
// for optional manual insertion.
type ChoicesSegment struct {
	Step    int            `json:"step"`
	Options []ChoiceOption `json:"options"`
}

func (MetaSegment) SegmentType() SegmentType      { return SegmentTypeMeta }
func (NarrationSegment) SegmentType() SegmentType { return SegmentTypeNarration }
func (DialogueSegment) SegmentType() SegmentType  { return SegmentTypeDialogue }
func (ChoicesSegment) SegmentType() SegmentType   { return SegmentTypeChoices }

// SegmentList is an ordered segment sequence that round-trips through JSON
// with a "type" discriminator per element. Elements with an unknown or
// malformed shape are dropped silently on decode.
type SegmentList []Segment

// MarshalJSON encodes each segment with its "type" discriminator.
func (l SegmentList) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(l))
	for _, seg := range l {
		body, err := json.Marshal(seg)
		if err != nil {
			return nil, err
		}
		// Re-encode with the discriminator injected.
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		typeTag, err := json.Marshal(seg.SegmentType())
		if err != nil {
			return nil, err
		}
		fields["type"] = typeTag
		tagged, err := json.Marshal(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, tagged)
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a JSON array of tagged segment objects. Entries that
// are not objects, carry no recognized "type", or fail to decode are skipped
// without error.
func (l *SegmentList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	segments := make(SegmentList, 0, len(raw))
	for _, item := range raw {
		if seg, ok := DecodeSegment(item); ok {
			segments = append(segments, seg)
		}
	}
	*l = segments
	return nil
}

// DecodeSegment decodes a single tagged segment object. The second return is
// false when the entry is unusable and should be dropped.
func DecodeSegment(data []byte) (Segment, bool) {
	var probe struct {
		Type SegmentType `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, false
	}
	switch probe.Type {
	case SegmentTypeMeta:
		var seg MetaSegment
		if err := json.Unmarshal(data, &seg); err != nil {
			return nil, false
		}
		return seg, true
	case SegmentTypeNarration:
		var seg NarrationSegment
		if err := json.Unmarshal(data, &seg); err != nil {
			return nil, false
		}
		return seg, true
	case SegmentTypeDialogue:
		var seg DialogueSegment
		if err := json.Unmarshal(data, &seg); err != nil {
			return nil, false
		}
		return seg, true
	case SegmentTypeChoices:
		// Tolerate both a numeric and a string "step".
		var wire struct {
			Step    any            `json:"step"`
			Options []ChoiceOption `json:"options"`
		}
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, false
		}
		return ChoicesSegment{Step: coerceStep(wire.Step), Options: wire.Options}, true
	default:
		return nil, false
	}
}

func coerceStep(v any) int {
	switch s := v.(type) {
	case float64:
		return int(s)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}
