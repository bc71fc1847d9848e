package models

import (
	"time"

	"github.com/google/uuid"
)

// NodeKind discriminates the narrative node variants.
type NodeKind string

const (
	NodeKindNarration NodeKind = "narration"
	NodeKindDialogue  NodeKind = "dialogue"
	NodeKindBranch    NodeKind = "branch"
)

// DefaultPlotTitle is the placeholder title for plots created without one.
const DefaultPlotTitle = "未命名剧情"

// PlotNode is a single unit of narrative content inside a workflow.
// Nodes live in an ordered sequence; array position is the default "next"
// edge unless FromOptionID points back to an earlier branch choice, in which
// case that choice is the logical parent instead of the physical predecessor.
type PlotNode struct {
	ID           string    `json:"id"`
	Kind         NodeKind  `json:"kind"`
	Text         string    `json:"text,omitempty"`
	Character    string    `json:"character,omitempty"` // dialogue only
	Action       string    `json:"action,omitempty"`    // dialogue only
	Prompt       string    `json:"prompt,omitempty"`    // branch only
	FromOptionID *string   `json:"fromOptionId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// PlotWorkflow is the ordered node sequence of one plot.
type PlotWorkflow struct {
	Nodes []PlotNode `json:"nodes"`
}

// PlotMetadata carries plot-level descriptive fields plus a cache of the most
// recent generation (LastPrompt/LastSegments are replaced wholesale on each
// generation, never appended to).
type PlotMetadata struct {
	Title        string      `json:"title"`
	Genre        string      `json:"genre,omitempty"`
	Style        string      `json:"style,omitempty"`
	POV          string      `json:"pov,omitempty"`
	Tags         []string    `json:"tags,omitempty"`
	PromptID     *string     `json:"promptId,omitempty"`
	LastPrompt   string      `json:"lastPrompt,omitempty"`
	LastSegments SegmentList `json:"lastSegments,omitempty"`
}

// Plot is the persisted record: one plot document owned by a project.
// Workflow and Metadata are stored as JSONB columns.
type Plot struct {
	ID        uuid.UUID    `json:"id"`
	ProjectID uuid.UUID    `json:"projectId"`
	Workflow  PlotWorkflow `json:"workflow"`
	Metadata  PlotMetadata `json:"metadata"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}
