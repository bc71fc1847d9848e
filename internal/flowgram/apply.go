package flowgram

import (
	"plot-server/internal/models"
)

// ApplyResult is the outcome of folding one generated segment batch into a
// plot document.
type ApplyResult struct {
	Metadata      models.PlotMetadata
	Workflow      models.PlotWorkflow
	AppendedNodes []models.PlotNode
	Choices       []models.ChoicesSegment
}

// ApplyGeneratedSegments merges a parsed segment batch into a plot's metadata
// and workflow. It is pure: the inputs are never mutated, fresh values are
// returned.
//
// Narration/dialogue segments become nodes appended to the workflow tail (even
// nodes referencing an earlier branch option are appended physically; edges
// are reconstructed from FromOptionID, not position). Choices segments are
// extracted unchanged for caller display. Meta segments overlay metadata
// field-by-field in array order, so when several are present the last one
// wins. LastPrompt, PromptID and LastSegments are always refreshed;
// LastSegments is a wholesale replacement, never an accumulation.
func ApplyGeneratedSegments(
	metadata models.PlotMetadata,
	workflow models.PlotWorkflow,
	segments models.SegmentList,
	prompt string,
	promptID *string,
) ApplyResult {
	appended := NodesFromSegments(segments)

	var choices []models.ChoicesSegment
	for _, segment := range segments {
		switch seg := segment.(type) {
		case models.ChoicesSegment:
			choices = append(choices, seg)
		case models.MetaSegment:
			metadata = overlayMeta(metadata, seg)
		}
	}

	metadata.LastPrompt = prompt
	if promptID != nil {
		metadata.PromptID = promptID
	}
	metadata.LastSegments = append(models.SegmentList(nil), segments...)

	nodes := make([]models.PlotNode, 0, len(workflow.Nodes)+len(appended))
	nodes = append(nodes, workflow.Nodes...)
	nodes = append(nodes, appended...)

	return ApplyResult{
		Metadata:      metadata,
		Workflow:      models.PlotWorkflow{Nodes: nodes},
		AppendedNodes: appended,
		Choices:       choices,
	}
}

// overlayMeta copies segment fields onto metadata; empty segment fields keep
// the prior value.
func overlayMeta(metadata models.PlotMetadata, seg models.MetaSegment) models.PlotMetadata {
	if seg.Title != "" {
		metadata.Title = seg.Title
	}
	if seg.Genre != "" {
		metadata.Genre = seg.Genre
	}
	if seg.Style != "" {
		metadata.Style = seg.Style
	}
	if seg.POV != "" {
		metadata.POV = seg.POV
	}
	if len(seg.Tags) > 0 {
		metadata.Tags = append([]string(nil), seg.Tags...)
	}
	return metadata
}
