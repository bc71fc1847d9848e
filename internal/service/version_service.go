package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plot-server/internal/jsondiff"
	"plot-server/internal/lock"
	"plot-server/internal/messaging"
	"plot-server/internal/models"
	"plot-server/internal/repository"
)

// maxChainDepth bounds base-reference walks so a corrupted chain cannot loop
// forever.
const maxChainDepth = 10000

// VersionService owns the per-project snapshot chain: delta storage, chain
// replay, comparison and rollback.
type VersionService interface {
	// CreateSnapshot appends a version capturing state. It returns (nil, nil)
	// when state equals the latest reconstructed state (idempotent no-op).
	CreateSnapshot(ctx context.Context, projectID uuid.UUID, state any, source models.VersionSource) (*models.Version, error)
	// ReconstructVersion replays the chain from the root to the target and
	// returns the full state at that version.
	ReconstructVersion(ctx context.Context, versionID uuid.UUID) (any, error)
	// CompareVersions reconstructs both states independently and diffs them;
	// neither needs to be an ancestor of the other.
	CompareVersions(ctx context.Context, versionID1, versionID2 uuid.UUID) (*jsondiff.Delta, error)
	// RollbackToVersion writes the target's reconstructed state back into
	// live project storage and snapshots it (manual), so the rollback is
	// itself a new version and history stays intact.
	RollbackToVersion(ctx context.Context, projectID, versionID uuid.UUID) (any, error)
	ListVersions(ctx context.Context, projectID uuid.UUID) ([]*models.Version, error)
}

// Compile-time check
var _ VersionService = (*versionServiceImpl)(nil)

type versionServiceImpl struct {
	versionRepo repository.VersionRepository
	stateRepo   repository.ProjectStateRepository
	locker      lock.Locker
	publisher   messaging.UpdatePublisher
	differ      *jsondiff.Differ
	logger      *zap.Logger
}

// NewVersionService wires the version engine dependencies.
func NewVersionService(
	versionRepo repository.VersionRepository,
	stateRepo repository.ProjectStateRepository,
	locker lock.Locker,
	publisher messaging.UpdatePublisher,
	logger *zap.Logger,
) VersionService {
	return &versionServiceImpl{
		versionRepo: versionRepo,
		stateRepo:   stateRepo,
		locker:      locker,
		publisher:   publisher,
		differ:      jsondiff.New(),
		logger:      logger.Named("VersionService"),
	}
}

func (s *versionServiceImpl) CreateSnapshot(ctx context.Context, projectID uuid.UUID, state any, source models.VersionSource) (*models.Version, error) {
	release, err := s.locker.Acquire(ctx, snapshotLockKey(projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to acquire snapshot lock: %w", err)
	}
	defer release()

	newState, err := jsondiff.Normalize(state)
	if err != nil {
		return nil, fmt.Errorf("%w: state is not JSON-serializable: %v", models.ErrInvalidInput, err)
	}

	logFields := []zap.Field{zap.String("projectID", projectID.String()), zap.String("source", string(source))}

	latest, err := s.versionRepo.GetLatest(ctx, projectID)
	if err != nil && !errors.Is(err, models.ErrVersionNotFound) {
		return nil, err
	}

	version := &models.Version{
		ID:        uuid.New(),
		ProjectID: projectID,
		Source:    source,
		CreatedAt: time.Now().UTC(),
	}

	if latest == nil {
		// Root version: full state, no base, seq 0.
		snapshot, err := json.Marshal(newState)
		if err != nil {
			return nil, fmt.Errorf("failed to encode root snapshot: %w", err)
		}
		version.Snapshot = snapshot
		s.logger.Info("Creating root version", logFields...)
	} else {
		// Diff against the reconstructed full state of the latest version,
		// never against its stored snapshot: for non-root versions the
		// stored snapshot is a delta and diffing against it would corrupt
		// the chain.
		prevState, err := s.reconstructFrom(ctx, latest)
		if err != nil {
			return nil, err
		}
		delta := s.differ.Diff(prevState, newState)
		if delta == nil {
			snapshotsSkippedTotal.Inc()
			s.logger.Debug("Snapshot skipped, state unchanged", logFields...)
			return nil, nil
		}
		snapshot, err := json.Marshal(delta)
		if err != nil {
			return nil, fmt.Errorf("failed to encode snapshot delta: %w", err)
		}
		version.Snapshot = snapshot
		version.BaseVersionID = &latest.ID
		version.Seq = latest.Seq + 1
	}

	if err := s.versionRepo.Create(ctx, version); err != nil {
		return nil, err
	}
	snapshotsCreatedTotal.WithLabelValues(string(source)).Inc()
	s.publishVersionCreated(ctx, version)
	return version, nil
}

func (s *versionServiceImpl) ReconstructVersion(ctx context.Context, versionID uuid.UUID) (any, error) {
	version, err := s.versionRepo.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return s.reconstructFrom(ctx, version)
}

// reconstructFrom walks base references back to the root, then replays the
// chain root-to-target. Reconstruction depends only on the stored chain.
func (s *versionServiceImpl) reconstructFrom(ctx context.Context, target *models.Version) (any, error) {
	chain := []*models.Version{target}
	seen := map[uuid.UUID]bool{target.ID: true}
	current := target
	for current.BaseVersionID != nil {
		if len(chain) > maxChainDepth {
			return nil, fmt.Errorf("%w: chain depth exceeds %d", models.ErrBrokenChain, maxChainDepth)
		}
		base, err := s.versionRepo.GetByID(ctx, *current.BaseVersionID)
		if err != nil {
			if errors.Is(err, models.ErrVersionNotFound) {
				return nil, fmt.Errorf("%w: base version %s is missing", models.ErrBrokenChain, *current.BaseVersionID)
			}
			return nil, err
		}
		if seen[base.ID] {
			return nil, fmt.Errorf("%w: base reference cycle at %s", models.ErrBrokenChain, base.ID)
		}
		seen[base.ID] = true
		chain = append(chain, base)
		current = base
	}

	// chain is target..root; replay root-to-target.
	root := chain[len(chain)-1]
	var state any
	if err := json.Unmarshal(root.Snapshot, &state); err != nil {
		return nil, fmt.Errorf("%w: root snapshot of %s is unreadable: %v", models.ErrBrokenChain, root.ID, err)
	}
	for i := len(chain) - 2; i >= 0; i-- {
		var delta jsondiff.Delta
		if err := json.Unmarshal(chain[i].Snapshot, &delta); err != nil {
			return nil, fmt.Errorf("%w: delta of %s is unreadable: %v", models.ErrBrokenChain, chain[i].ID, err)
		}
		patched, err := s.differ.Patch(state, &delta)
		if err != nil {
			return nil, fmt.Errorf("%w: delta of %s does not apply: %v", models.ErrBrokenChain, chain[i].ID, err)
		}
		state = patched
	}
	return state, nil
}

func (s *versionServiceImpl) CompareVersions(ctx context.Context, versionID1, versionID2 uuid.UUID) (*jsondiff.Delta, error) {
	state1, err := s.ReconstructVersion(ctx, versionID1)
	if err != nil {
		return nil, err
	}
	state2, err := s.ReconstructVersion(ctx, versionID2)
	if err != nil {
		return nil, err
	}
	return s.differ.Diff(state1, state2), nil
}

func (s *versionServiceImpl) RollbackToVersion(ctx context.Context, projectID, versionID uuid.UUID) (any, error) {
	version, err := s.versionRepo.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if version.ProjectID != projectID {
		return nil, fmt.Errorf("%w: version %s does not belong to project %s", models.ErrVersionNotFound, versionID, projectID)
	}

	state, err := s.reconstructFrom(ctx, version)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode rolled-back state: %w", err)
	}
	if err := s.stateRepo.Save(ctx, projectID, raw); err != nil {
		return nil, err
	}

	// The rollback itself becomes a new manual version; intervening history
	// is never deleted or edited. CreateSnapshot may return nil when the
	// project was already at the target state, which is still a success.
	if _, err := s.CreateSnapshot(ctx, projectID, state, models.VersionSourceManual); err != nil {
		return nil, err
	}
	s.logger.Info("Rolled back project state",
		zap.String("projectID", projectID.String()),
		zap.String("targetVersionID", versionID.String()),
	)
	return state, nil
}

func (s *versionServiceImpl) ListVersions(ctx context.Context, projectID uuid.UUID) ([]*models.Version, error) {
	return s.versionRepo.ListByProject(ctx, projectID)
}

func (s *versionServiceImpl) publishVersionCreated(ctx context.Context, version *models.Version) {
	payload := messaging.UpdatePayload{
		Event:     messaging.EventVersionCreated,
		ProjectID: version.ProjectID,
		VersionID: &version.ID,
		Timestamp: time.Now().UTC(),
	}
	if err := s.publisher.PublishUpdate(ctx, payload); err != nil {
		s.logger.Warn("Failed to publish version event", zap.Error(err))
	}
}

func snapshotLockKey(projectID uuid.UUID) string {
	return fmt.Sprintf("project-snapshot:%s", projectID)
}
