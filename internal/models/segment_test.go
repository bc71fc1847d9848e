package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plot-server/internal/models"
)

func TestSegmentListRoundTrip(t *testing.T) {
	list := models.SegmentList{
		models.MetaSegment{Title: "旧城", Genre: "悬疑", Tags: []string{"雨", "夜"}},
		models.NarrationSegment{Text: "夜幕降临"},
		models.DialogueSegment{Character: "林安", Message: "该走了", Action: "起身"},
		models.ChoicesSegment{Step: 2, Options: []models.ChoiceOption{
			{ID: "opt-1", Summary: "离开", Hint: "稳妥", Keywords: []string{"门"}},
		}},
	}

	raw, err := json.Marshal(list)
	require.NoError(t, err)

	var decoded models.SegmentList
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Len(t, decoded, 4)
	assert.Equal(t, list[0], decoded[0])
	assert.Equal(t, list[1], decoded[1])
	assert.Equal(t, list[2], decoded[2])
	assert.Equal(t, list[3], decoded[3])
}

func TestSegmentListMarshalIncludesType(t *testing.T) {
	raw, err := json.Marshal(models.SegmentList{models.NarrationSegment{Text: "x"}})
	require.NoError(t, err)

	var generic []map[string]any
	require.NoError(t, json.Unmarshal(raw, &generic))
	require.Len(t, generic, 1)
	assert.Equal(t, "narration", generic[0]["type"])
}

func TestPlotWorkflowRoundTrip(t *testing.T) {
	fromOption := "opt-9"
	workflow := models.PlotWorkflow{Nodes: []models.PlotNode{
		{
			ID:        "n1",
			Kind:      models.NodeKindNarration,
			Text:      "rain over the harbor",
			CreatedAt: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			ID:           "n2",
			Kind:         models.NodeKindDialogue,
			Text:         "we should go",
			Character:    "Lin",
			Action:       "whispers",
			FromOptionID: &fromOption,
			CreatedAt:    time.Date(2026, 5, 1, 12, 1, 0, 0, time.UTC),
		},
		{
			ID:        "n3",
			Kind:      models.NodeKindBranch,
			Prompt:    "what happens at the gate?",
			CreatedAt: time.Date(2026, 5, 1, 12, 2, 0, 0, time.UTC),
		},
	}}

	raw, err := json.Marshal(workflow)
	require.NoError(t, err)

	var decoded models.PlotWorkflow
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, workflow, decoded)
}
