package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"plot-server/internal/messaging"
	"plot-server/internal/models"
	"plot-server/internal/service"
)

type memPlotRepo struct {
	mu    sync.Mutex
	plots map[uuid.UUID]*models.Plot
}

func newMemPlotRepo() *memPlotRepo {
	return &memPlotRepo{plots: make(map[uuid.UUID]*models.Plot)}
}

func (r *memPlotRepo) Create(_ context.Context, plot *models.Plot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *plot
	r.plots[plot.ID] = &copied
	return nil
}

func (r *memPlotRepo) GetByID(_ context.Context, id uuid.UUID) (*models.Plot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plot, ok := r.plots[id]
	if !ok {
		return nil, models.ErrPlotNotFound
	}
	copied := *plot
	return &copied, nil
}

func (r *memPlotRepo) ListByProject(_ context.Context, projectID uuid.UUID) ([]*models.Plot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Plot
	for _, plot := range r.plots {
		if plot.ProjectID == projectID {
			copied := *plot
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memPlotRepo) Update(_ context.Context, plot *models.Plot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plots[plot.ID]; !ok {
		return models.ErrPlotNotFound
	}
	copied := *plot
	r.plots[plot.ID] = &copied
	return nil
}

func (r *memPlotRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plots[id]; !ok {
		return models.ErrPlotNotFound
	}
	delete(r.plots, id)
	return nil
}

// stubGenerator returns a canned response or error.
type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (g *stubGenerator) Generate(context.Context, string, string) (string, error) {
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.response, nil
}

func newPlotService(t *testing.T, gen *stubGenerator) (service.PlotService, *memPlotRepo) {
	t.Helper()
	if gen == nil {
		gen = &stubGenerator{}
	}
	repo := newMemPlotRepo()
	svc := service.NewPlotService(repo, gen, messaging.NopPublisher{}, zap.NewNop())
	return svc, repo
}

func seedPlot(t *testing.T, svc service.PlotService, title string) *models.Plot {
	t.Helper()
	plot, err := svc.CreatePlot(context.Background(), uuid.New(), title)
	require.NoError(t, err)
	return plot
}

func TestCreatePlotDefaults(t *testing.T) {
	svc, _ := newPlotService(t, nil)
	plot := seedPlot(t, svc, "")

	assert.Equal(t, models.DefaultPlotTitle, plot.Metadata.Title)
	assert.NotNil(t, plot.Workflow.Nodes)
	assert.Empty(t, plot.Workflow.Nodes)
	assert.Equal(t, plot.CreatedAt, plot.UpdatedAt)
}

func TestDeletePlotUnknown(t *testing.T) {
	svc, _ := newPlotService(t, nil)
	err := svc.DeletePlot(context.Background(), uuid.New())
	assert.ErrorIs(t, err, models.ErrPlotNotFound)
}

func TestPatchPlotReset(t *testing.T) {
	svc, _ := newPlotService(t, nil)
	plot := seedPlot(t, svc, "草稿")

	_, _, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionAppendNodes,
		json.RawMessage(`{"nodes":[{"kind":"narration","text":"夜幕降临"}]}`))
	require.NoError(t, err)

	patched, outcome, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionReset, nil)
	require.NoError(t, err)
	assert.Equal(t, service.ActionReset, outcome.Action)
	assert.Empty(t, patched.Workflow.Nodes)
	assert.Nil(t, patched.Metadata.LastSegments)
	assert.Equal(t, "草稿", patched.Metadata.Title, "reset clears the workflow, not the metadata")

	// Resetting an empty plot is a no-op, not an error.
	again, _, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionReset, nil)
	require.NoError(t, err)
	assert.Empty(t, again.Workflow.Nodes)
}

func TestPatchPlotAppendNodes(t *testing.T) {
	svc, _ := newPlotService(t, nil)
	plot := seedPlot(t, svc, "test")

	payload := json.RawMessage(`{"nodes":[
		{"kind":"narration","text":"  夜幕降临  "},
		{"kind":"dialogue","text":"","character":"林安"},
		{"kind":"unknown-kind","text":"fallback"},
		{"kind":"branch","text":"","prompt":"下一步?"}
	]}`)
	patched, outcome, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionAppendNodes, payload)
	require.NoError(t, err)

	// The empty-text dialogue is dropped; the rest survive in order.
	assert.Equal(t, 3, outcome.AppendedNodes)
	require.Len(t, patched.Workflow.Nodes, 3)
	assert.Equal(t, "夜幕降临", patched.Workflow.Nodes[0].Text)
	assert.Equal(t, models.NodeKindNarration, patched.Workflow.Nodes[1].Kind, "unknown kind falls back to narration")
	assert.Equal(t, models.NodeKindBranch, patched.Workflow.Nodes[2].Kind)

	// Appends accumulate at the tail.
	patched, outcome, err = svc.PatchPlot(context.Background(), plot.ID, service.ActionAppendNodes,
		json.RawMessage(`{"nodes":[{"kind":"narration","text":"第二批"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.AppendedNodes)
	require.Len(t, patched.Workflow.Nodes, 4)
	assert.Equal(t, "第二批", patched.Workflow.Nodes[3].Text)
}

func TestPatchPlotAppendNodesDuplicateIDs(t *testing.T) {
	svc, _ := newPlotService(t, nil)
	plot := seedPlot(t, svc, "test")

	patched, _, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionAppendNodes,
		json.RawMessage(`{"nodes":[{"id":"n1","kind":"narration","text":"原节点"}]}`))
	require.NoError(t, err)
	require.Len(t, patched.Workflow.Nodes, 1)

	// A batch reusing an existing id still appends, under a fresh id.
	patched, outcome, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionAppendNodes,
		json.RawMessage(`{"nodes":[{"id":"n1","kind":"narration","text":"撞号节点"}]}`))
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.AppendedNodes)
	require.Len(t, patched.Workflow.Nodes, 2)
	assert.Equal(t, "n1", patched.Workflow.Nodes[0].ID)
	assert.NotEqual(t, "n1", patched.Workflow.Nodes[1].ID, "workflow ids stay unique")
	assert.Equal(t, "撞号节点", patched.Workflow.Nodes[1].Text)
}

func TestPatchPlotAppendNodesMalformedPayload(t *testing.T) {
	svc, _ := newPlotService(t, nil)
	plot := seedPlot(t, svc, "test")

	patched, outcome, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionAppendNodes,
		json.RawMessage(`{not json`))
	require.NoError(t, err, "malformed append payloads degrade to an empty batch")
	assert.Zero(t, outcome.AppendedNodes)
	assert.Empty(t, patched.Workflow.Nodes)
}

func TestPatchPlotUpdateMetadata(t *testing.T) {
	svc, _ := newPlotService(t, nil)
	plot := seedPlot(t, svc, "旧标题")

	payload := json.RawMessage(`{"title":"新标题","genre":"悬疑","tags":["  都市 ","","爱情"]}`)
	patched, _, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionUpdateMetadata, payload)
	require.NoError(t, err)

	assert.Equal(t, "新标题", patched.Metadata.Title)
	assert.Equal(t, "悬疑", patched.Metadata.Genre)
	assert.Equal(t, []string{"都市", "爱情"}, patched.Metadata.Tags, "tags are trimmed and empties dropped")

	// Absent fields keep their value; an empty title is ignored.
	patched, _, err = svc.PatchPlot(context.Background(), plot.ID, service.ActionUpdateMetadata,
		json.RawMessage(`{"title":"","style":"第一人称日记体"}`))
	require.NoError(t, err)
	assert.Equal(t, "新标题", patched.Metadata.Title)
	assert.Equal(t, "悬疑", patched.Metadata.Genre)
	assert.Equal(t, "第一人称日记体", patched.Metadata.Style)
}

func TestPatchPlotOverwriteWorkflow(t *testing.T) {
	svc, _ := newPlotService(t, nil)
	plot := seedPlot(t, svc, "test")

	_, _, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionAppendNodes,
		json.RawMessage(`{"nodes":[{"kind":"narration","text":"原有节点"}]}`))
	require.NoError(t, err)

	t.Run("replaces the whole workflow", func(t *testing.T) {
		patched, _, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionOverwriteWorkflow,
			json.RawMessage(`{"nodes":[{"kind":"dialogue","text":"你好","character":"林安"}]}`))
		require.NoError(t, err)
		require.Len(t, patched.Workflow.Nodes, 1)
		assert.Equal(t, models.NodeKindDialogue, patched.Workflow.Nodes[0].Kind)
	})

	t.Run("rejects malformed payload with no partial effect", func(t *testing.T) {
		before, err := svc.GetPlot(context.Background(), plot.ID)
		require.NoError(t, err)

		for name, payload := range map[string]json.RawMessage{
			"empty":         nil,
			"invalid json":  json.RawMessage(`{broken`),
			"missing nodes": json.RawMessage(`{}`),
		} {
			_, _, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionOverwriteWorkflow, payload)
			assert.ErrorIs(t, err, models.ErrInvalidWorkflow, name)
		}

		after, err := svc.GetPlot(context.Background(), plot.ID)
		require.NoError(t, err)
		assert.Equal(t, before.Workflow, after.Workflow)
		assert.Equal(t, before.UpdatedAt, after.UpdatedAt)
	})

	t.Run("surviving nodes keep their createdAt", func(t *testing.T) {
		before, err := svc.GetPlot(context.Background(), plot.ID)
		require.NoError(t, err)
		require.NotEmpty(t, before.Workflow.Nodes)
		survivor := before.Workflow.Nodes[0]

		// Overwrite with the plot's own node plus a new one, the way a
		// mid-workflow edit arrives from the client.
		payload, err := json.Marshal(map[string]any{"nodes": []any{
			map[string]any{
				"id":        survivor.ID,
				"kind":      survivor.Kind,
				"text":      survivor.Text,
				"character": survivor.Character,
				"createdAt": survivor.CreatedAt,
			},
			map[string]any{"kind": "narration", "text": "插入的新节点"},
		}})
		require.NoError(t, err)

		patched, _, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionOverwriteWorkflow, payload)
		require.NoError(t, err)
		require.Len(t, patched.Workflow.Nodes, 2)
		assert.Equal(t, survivor.ID, patched.Workflow.Nodes[0].ID)
		assert.Equal(t, survivor.CreatedAt, patched.Workflow.Nodes[0].CreatedAt,
			"an overwrite must not re-stamp nodes it carries over")
		assert.False(t, patched.Workflow.Nodes[1].CreatedAt.IsZero(), "new nodes still get stamped")
	})

	t.Run("accepts an explicitly empty nodes array", func(t *testing.T) {
		patched, _, err := svc.PatchPlot(context.Background(), plot.ID, service.ActionOverwriteWorkflow,
			json.RawMessage(`{"nodes":[]}`))
		require.NoError(t, err)
		assert.Empty(t, patched.Workflow.Nodes)
	})
}

func TestPatchPlotUnknownAction(t *testing.T) {
	svc, _ := newPlotService(t, nil)
	plot := seedPlot(t, svc, "test")

	_, _, err := svc.PatchPlot(context.Background(), plot.ID, "rename-everything", nil)
	assert.ErrorIs(t, err, models.ErrUnknownPatchAction)

	stored, err := svc.GetPlot(context.Background(), plot.ID)
	require.NoError(t, err)
	assert.Equal(t, plot.UpdatedAt, stored.UpdatedAt, "unknown actions leave the plot untouched")
}

func TestGenerateFlow(t *testing.T) {
	gen := &stubGenerator{response: "```json\n[" +
		`{"type":"meta","title":"雨夜灯塔","genre":"悬疑"},` +
		`{"type":"narration","text":"夜幕降临,港口只剩灯塔还亮着。"},` +
		`{"type":"dialogue","character":"林安","message":"我们得在天亮前离开。","action":"压低声音"},` +
		`{"type":"choices","step":2,"options":[{"id":"opt-1","summary":"跟上林安"},{"id":"opt-2","summary":"留在原地"}]}` +
		"]\n```"}
	svc, _ := newPlotService(t, gen)
	plot := seedPlot(t, svc, "草稿")

	promptID := "prompt-7"
	result, err := svc.GenerateFlow(context.Background(), plot.ID, "继续", &promptID)
	require.NoError(t, err)
	assert.False(t, result.Degraded())

	require.Len(t, result.AppendedNodes, 2)
	assert.Equal(t, "夜幕降临,港口只剩灯塔还亮着。", result.AppendedNodes[0].Text)
	assert.Equal(t, "林安", result.AppendedNodes[1].Character)
	assert.Equal(t, "我们得在天亮前离开。", result.AppendedNodes[1].Text)
	require.Len(t, result.Choices, 1)
	assert.Len(t, result.Choices[0].Options, 2)

	assert.Equal(t, "雨夜灯塔", result.Plot.Metadata.Title)
	assert.Equal(t, "继续", result.Plot.Metadata.LastPrompt)
	require.NotNil(t, result.Plot.Metadata.PromptID)
	assert.Equal(t, promptID, *result.Plot.Metadata.PromptID)

	// The new state is persisted.
	stored, err := svc.GetPlot(context.Background(), plot.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Workflow.Nodes, 2)
	assert.Len(t, stored.Metadata.LastSegments, 4)
}

func TestGenerateFlowUnusableResponse(t *testing.T) {
	gen := &stubGenerator{response: "抱歉,我无法以JSON格式回答这个问题。"}
	svc, _ := newPlotService(t, gen)
	plot := seedPlot(t, svc, "草稿")

	result, err := svc.GenerateFlow(context.Background(), plot.ID, "继续", nil)
	require.NoError(t, err, "an unusable response degrades, it does not fail")
	assert.True(t, result.Degraded())
	assert.Equal(t, gen.response, result.Raw)
	assert.Empty(t, result.AppendedNodes)

	// The plot is untouched.
	stored, err := svc.GetPlot(context.Background(), plot.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Workflow.Nodes)
	assert.Equal(t, plot.UpdatedAt, stored.UpdatedAt)
}

func TestGenerateFlowGeneratorError(t *testing.T) {
	gen := &stubGenerator{err: errors.New("upstream timeout")}
	svc, _ := newPlotService(t, gen)
	plot := seedPlot(t, svc, "草稿")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := svc.GenerateFlow(ctx, plot.ID, "继续", nil)
	require.Error(t, err)
	assert.Equal(t, 1, gen.calls)
}
