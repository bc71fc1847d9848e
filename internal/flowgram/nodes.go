package flowgram

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"plot-server/internal/models"
)

// NodeSpec is a caller-supplied node shape before validation. It mirrors
// PlotNode with every field optional.
type NodeSpec struct {
	ID           string          `json:"id,omitempty"`
	Kind         models.NodeKind `json:"kind,omitempty"`
	Text         string          `json:"text,omitempty"`
	Character    string          `json:"character,omitempty"`
	Action       string          `json:"action,omitempty"`
	Prompt       string          `json:"prompt,omitempty"`
	FromOptionID *string         `json:"fromOptionId,omitempty"`
	CreatedAt    time.Time       `json:"createdAt,omitempty"`
}

// NewPlotNode is the single node-construction entry point. It assigns a fresh
// id when none is supplied and stamps CreatedAt only when absent, so a node
// round-tripped through a workflow overwrite keeps its original timestamp.
// Both fields are immutable afterwards.
func NewPlotNode(spec NodeSpec) models.PlotNode {
	id := spec.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := spec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	return models.PlotNode{
		ID:           id,
		Kind:         spec.Kind,
		Text:         spec.Text,
		Character:    spec.Character,
		Action:       spec.Action,
		Prompt:       spec.Prompt,
		FromOptionID: spec.FromOptionID,
		CreatedAt:    createdAt,
	}
}

// SanitizeNodeSpecs applies the drop-invalid policy to a batch of node specs:
// an unrecognized kind falls back to narration, text is trimmed, and any
// non-branch node whose trimmed text is empty is excluded from the batch
// rather than treated as an error. The result preserves input order.
//
// taken holds node ids already present in the target workflow; a spec whose
// id collides with taken or with an earlier node in the batch gets a fresh id
// instead, keeping ids unique within a workflow. taken may be nil and is
// extended with the accepted ids.
func SanitizeNodeSpecs(specs []NodeSpec, taken map[string]bool) []models.PlotNode {
	if taken == nil {
		taken = make(map[string]bool, len(specs))
	}
	nodes := make([]models.PlotNode, 0, len(specs))
	for _, spec := range specs {
		node, ok := sanitizeNodeSpec(spec)
		if !ok {
			continue
		}
		if taken[node.ID] {
			node.ID = uuid.NewString()
		}
		taken[node.ID] = true
		nodes = append(nodes, node)
	}
	return nodes
}

func sanitizeNodeSpec(spec NodeSpec) (models.PlotNode, bool) {
	switch spec.Kind {
	case models.NodeKindDialogue, models.NodeKindBranch:
	default:
		spec.Kind = models.NodeKindNarration
	}
	spec.Text = strings.TrimSpace(spec.Text)
	if spec.Kind != models.NodeKindBranch && spec.Text == "" {
		return models.PlotNode{}, false
	}
	return NewPlotNode(spec), true
}

// NodesFromSegments maps narration and dialogue segments to nodes, one node
// per segment, preserving segment order. Meta and choices segments produce no
// nodes; they are handled by the caller separately.
func NodesFromSegments(segments models.SegmentList) []models.PlotNode {
	nodes := make([]models.PlotNode, 0, len(segments))
	for _, segment := range segments {
		switch seg := segment.(type) {
		case models.NarrationSegment:
			nodes = append(nodes, NewPlotNode(NodeSpec{
				Kind: models.NodeKindNarration,
				Text: seg.Text,
			}))
		case models.DialogueSegment:
			// The segment field is "message"; the node field is "text".
			nodes = append(nodes, NewPlotNode(NodeSpec{
				Kind:      models.NodeKindDialogue,
				Text:      seg.Message,
				Character: seg.Character,
				Action:    seg.Action,
			}))
		}
	}
	return nodes
}
