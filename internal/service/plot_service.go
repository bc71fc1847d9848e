// Package service implements the plot workflow engine and the version
// snapshot engine on top of the repository boundary.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plot-server/internal/clients"
	"plot-server/internal/flowgram"
	"plot-server/internal/messaging"
	"plot-server/internal/models"
	"plot-server/internal/repository"
)

// Patch action names accepted by PatchPlot.
const (
	ActionReset             = "reset"
	ActionAppendNodes       = "append-nodes"
	ActionUpdateMetadata    = "update-metadata"
	ActionOverwriteWorkflow = "overwrite-workflow"
)

// AppendNodesPayload is the payload of the append-nodes action.
type AppendNodesPayload struct {
	Nodes        []flowgram.NodeSpec `json:"nodes"`
	LastSegments *models.SegmentList `json:"lastSegments,omitempty"`
}

// MetadataPatch is the payload of the update-metadata action; nil fields keep
// the existing value.
type MetadataPatch struct {
	Title    *string   `json:"title,omitempty"`
	Genre    *string   `json:"genre,omitempty"`
	Style    *string   `json:"style,omitempty"`
	POV      *string   `json:"pov,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	PromptID *string   `json:"promptId,omitempty"`
}

// OverwriteWorkflowPayload is the payload of the overwrite-workflow action.
type OverwriteWorkflowPayload struct {
	Nodes []flowgram.NodeSpec `json:"nodes"`
}

// PatchOutcome reports what a patch action actually did.
type PatchOutcome struct {
	Action        string `json:"action"`
	AppendedNodes int    `json:"appendedNodes"`
}

// GenerateResult is the outcome of one generation round-trip.
type GenerateResult struct {
	Plot          *models.Plot            `json:"plot"`
	AppendedNodes []models.PlotNode       `json:"appendedNodes"`
	Choices       []models.ChoicesSegment `json:"choices,omitempty"`
	// Raw carries the model output verbatim when it yielded no usable
	// segments, so the caller can surface it for diagnostics.
	Raw string `json:"raw,omitempty"`
}

// Degraded reports whether generation produced no usable plot content.
func (r *GenerateResult) Degraded() bool {
	return r.Raw != ""
}

// PlotService owns the plot document lifecycle and the patch-action state
// machine.
type PlotService interface {
	CreatePlot(ctx context.Context, projectID uuid.UUID, title string) (*models.Plot, error)
	GetPlot(ctx context.Context, id uuid.UUID) (*models.Plot, error)
	ListPlots(ctx context.Context, projectID uuid.UUID) ([]*models.Plot, error)
	DeletePlot(ctx context.Context, id uuid.UUID) error
	PatchPlot(ctx context.Context, id uuid.UUID, action string, payload json.RawMessage) (*models.Plot, *PatchOutcome, error)
	GenerateFlow(ctx context.Context, id uuid.UUID, prompt string, promptID *string) (*GenerateResult, error)
}

// Compile-time check
var _ PlotService = (*plotServiceImpl)(nil)

type plotServiceImpl struct {
	plotRepo  repository.PlotRepository
	generator clients.TextGenerator
	publisher messaging.UpdatePublisher
	logger    *zap.Logger
}

// NewPlotService wires the plot service dependencies.
func NewPlotService(
	plotRepo repository.PlotRepository,
	generator clients.TextGenerator,
	publisher messaging.UpdatePublisher,
	logger *zap.Logger,
) PlotService {
	return &plotServiceImpl{
		plotRepo:  plotRepo,
		generator: generator,
		publisher: publisher,
		logger:    logger.Named("PlotService"),
	}
}

func (s *plotServiceImpl) CreatePlot(ctx context.Context, projectID uuid.UUID, title string) (*models.Plot, error) {
	if title == "" {
		title = models.DefaultPlotTitle
	}
	now := time.Now().UTC()
	plot := &models.Plot{
		ID:        uuid.New(),
		ProjectID: projectID,
		Workflow:  models.PlotWorkflow{Nodes: []models.PlotNode{}},
		Metadata:  models.PlotMetadata{Title: title},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.plotRepo.Create(ctx, plot); err != nil {
		return nil, err
	}
	s.publishUpdate(ctx, messaging.EventPlotUpdated, plot)
	return plot, nil
}

func (s *plotServiceImpl) GetPlot(ctx context.Context, id uuid.UUID) (*models.Plot, error) {
	return s.plotRepo.GetByID(ctx, id)
}

func (s *plotServiceImpl) ListPlots(ctx context.Context, projectID uuid.UUID) ([]*models.Plot, error) {
	return s.plotRepo.ListByProject(ctx, projectID)
}

func (s *plotServiceImpl) DeletePlot(ctx context.Context, id uuid.UUID) error {
	plot, err := s.plotRepo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.plotRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.publishUpdate(ctx, messaging.EventPlotDeleted, plot)
	return nil
}

// PatchPlot runs one patch action against a plot, persisting the new state.
// Unknown actions and a structurally invalid overwrite-workflow payload fail
// the whole action with no partial effect; other malformed inputs degrade to
// an empty effective set.
func (s *plotServiceImpl) PatchPlot(ctx context.Context, id uuid.UUID, action string, payload json.RawMessage) (*models.Plot, *PatchOutcome, error) {
	plot, err := s.plotRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	outcome := &PatchOutcome{Action: action}
	switch action {
	case ActionReset:
		plot.Workflow.Nodes = []models.PlotNode{}
		plot.Metadata.LastSegments = nil

	case ActionAppendNodes:
		var body AppendNodesPayload
		// Malformed payloads degrade to an empty batch, they are not errors.
		_ = json.Unmarshal(payload, &body)
		appended := flowgram.SanitizeNodeSpecs(body.Nodes, takenNodeIDs(plot.Workflow.Nodes))
		plot.Workflow.Nodes = append(plot.Workflow.Nodes, appended...)
		if body.LastSegments != nil {
			plot.Metadata.LastSegments = *body.LastSegments
		}
		outcome.AppendedNodes = len(appended)

	case ActionUpdateMetadata:
		var patch MetadataPatch
		_ = json.Unmarshal(payload, &patch)
		plot.Metadata = mergeMetadataPatch(plot.Metadata, patch)

	case ActionOverwriteWorkflow:
		var body OverwriteWorkflowPayload
		if len(payload) == 0 {
			return nil, nil, fmt.Errorf("%w: overwrite-workflow requires a payload", models.ErrInvalidWorkflow)
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", models.ErrInvalidWorkflow, err)
		}
		if body.Nodes == nil {
			return nil, nil, fmt.Errorf("%w: missing nodes array", models.ErrInvalidWorkflow)
		}
		plot.Workflow.Nodes = flowgram.SanitizeNodeSpecs(body.Nodes, nil)

	default:
		return nil, nil, fmt.Errorf("%w: %q", models.ErrUnknownPatchAction, action)
	}

	plot.UpdatedAt = time.Now().UTC()
	if err := s.plotRepo.Update(ctx, plot); err != nil {
		return nil, nil, err
	}
	plotPatchesTotal.WithLabelValues(action).Inc()
	s.publishUpdate(ctx, messaging.EventPlotUpdated, plot)
	s.logger.Info("Plot patched",
		zap.String("plotID", id.String()),
		zap.String("action", action),
		zap.Int("appendedNodes", outcome.AppendedNodes),
	)
	return plot, outcome, nil
}

// GenerateFlow asks the text generator for new plot content, parses it and
// folds it into the plot. When the response yields no usable segments the
// plot is left untouched and the raw text is returned for diagnostics.
func (s *plotServiceImpl) GenerateFlow(ctx context.Context, id uuid.UUID, prompt string, promptID *string) (*GenerateResult, error) {
	plot, err := s.plotRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := s.generator.Generate(ctx, flowSystemPrompt(plot.Metadata), prompt)
	if err != nil {
		return nil, fmt.Errorf("flow generation failed: %w", err)
	}

	segments := flowgram.ParseAIResponse(raw)
	if len(segments) == 0 {
		s.logger.Warn("Generation yielded no usable segments",
			zap.String("plotID", id.String()),
			zap.Int("rawLength", len(raw)),
		)
		return &GenerateResult{Plot: plot, Raw: raw}, nil
	}

	applied := flowgram.ApplyGeneratedSegments(plot.Metadata, plot.Workflow, segments, prompt, promptID)
	plot.Metadata = applied.Metadata
	plot.Workflow = applied.Workflow
	plot.UpdatedAt = time.Now().UTC()

	if err := s.plotRepo.Update(ctx, plot); err != nil {
		return nil, err
	}
	s.publishUpdate(ctx, messaging.EventPlotUpdated, plot)
	s.logger.Info("Flow generated",
		zap.String("plotID", id.String()),
		zap.Int("appendedNodes", len(applied.AppendedNodes)),
		zap.Int("choices", len(applied.Choices)),
	)
	return &GenerateResult{
		Plot:          plot,
		AppendedNodes: applied.AppendedNodes,
		Choices:       applied.Choices,
	}, nil
}

func (s *plotServiceImpl) publishUpdate(ctx context.Context, event string, plot *models.Plot) {
	payload := messaging.UpdatePayload{
		Event:     event,
		ProjectID: plot.ProjectID,
		PlotID:    &plot.ID,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.PublishUpdate(ctx, payload); err != nil {
		s.logger.Warn("Failed to publish plot update", zap.String("event", event), zap.Error(err))
	}
}

func takenNodeIDs(nodes []models.PlotNode) map[string]bool {
	taken := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		taken[node.ID] = true
	}
	return taken
}

func mergeMetadataPatch(metadata models.PlotMetadata, patch MetadataPatch) models.PlotMetadata {
	if patch.Title != nil && *patch.Title != "" {
		metadata.Title = *patch.Title
	}
	if patch.Genre != nil {
		metadata.Genre = *patch.Genre
	}
	if patch.Style != nil {
		metadata.Style = *patch.Style
	}
	if patch.POV != nil {
		metadata.POV = *patch.POV
	}
	if patch.Tags != nil {
		tags := make([]string, 0, len(*patch.Tags))
		for _, tag := range *patch.Tags {
			if trimmed := strings.TrimSpace(tag); trimmed != "" {
				tags = append(tags, trimmed)
			}
		}
		metadata.Tags = tags
	}
	if patch.PromptID != nil {
		metadata.PromptID = patch.PromptID
	}
	return metadata
}

// flowSystemPrompt frames the generation request; the prompt text itself is
// an external concern, this only pins the output contract the parser expects.
func flowSystemPrompt(metadata models.PlotMetadata) string {
	return fmt.Sprintf(
		"You are continuing the plot %q. Respond with a JSON array of segments "+
			"(type: meta|narration|dialogue|choices) and nothing else.",
		metadata.Title,
	)
}
