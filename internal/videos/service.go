package videos

import (
	"context"

	"github.com/kravtofly/svr-backend/pkg/db"
	"github.com/kravtofly/svr-backend/pkg/db/models"
	"github.com/kravtofly/svr-backend/pkg/enums"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
	"github.com/kravtofly/svr-backend/pkg/logger"
	"github.com/kravtofly/svr-backend/pkg/mux"
)

// ProviderClient is the narrow slice of the vendor API the reducer needs.
type ProviderClient interface {
	GetAsset(ctx context.Context, assetID string) (*mux.Asset, error)
	CreatePlaybackID(ctx context.Context, assetID, policy string) (*mux.PlaybackID, error)
}

// ApplyOutcome reports what a delivery did to the store.
type ApplyOutcome string

const (
	OutcomeApplied ApplyOutcome = "applied"
	OutcomeNoOp    ApplyOutcome = "noop"
	OutcomeIgnored ApplyOutcome = "ignored"
)

// ApplyResult carries the row a transition landed on, if any.
type ApplyResult struct {
	Video   *models.Video
	Outcome ApplyOutcome
}

type ServiceParams struct {
	Repo     *Repository
	Provider ProviderClient
	Logger   *logger.Logger
}

// Service is the event router and state reducer: it maps parsed lifecycle
// events onto Video transitions. All writes go through the unique keys on
// upload_id/asset_id; a lost insert race resolves by re-reading the winner.
type Service struct {
	repo     *Repository
	provider ProviderClient
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "video repo required")
	}
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:     params.Repo,
		provider: params.Provider,
		logg:     params.Logger,
	}, nil
}

// StatusFromProvider maps the provider's asset status onto the local enum.
func StatusFromProvider(providerStatus string) enums.VideoStatus {
	switch providerStatus {
	case "ready":
		return enums.VideoStatusReady
	case "errored":
		return enums.VideoStatusErrored
	default:
		return enums.VideoStatusProcessing
	}
}

// Apply routes one parsed event to its transition. Applying the same event
// twice leaves the row identical to applying it once.
func (s *Service) Apply(ctx context.Context, evt Event) (*ApplyResult, error) {
	switch evt.Kind {
	case EventAssetCreated:
		return s.applyCreated(ctx, evt)
	case EventAssetReady:
		return s.applyReady(ctx, evt)
	case EventAssetErrored:
		return s.applyErrored(ctx, evt)
	case EventAssetDeleted:
		return s.applyDeleted(ctx, evt)
	default:
		return &ApplyResult{Outcome: OutcomeIgnored}, nil
	}
}

func (s *Service) applyCreated(ctx context.Context, evt Event) (*ApplyResult, error) {
	row, err := s.resolveRow(ctx, evt.UploadID, evt.AssetID)
	if err != nil {
		return nil, err
	}

	changed := false
	if row == nil {
		row = &models.Video{Status: enums.VideoStatusProcessing}
		if evt.UploadID != "" {
			row.UploadID = strPtr(evt.UploadID)
		}
		if evt.AssetID != "" {
			row.AssetID = strPtr(evt.AssetID)
		}
		created, err := s.createToleratingRace(ctx, row, evt)
		if err != nil {
			return nil, err
		}
		row = created
		changed = true
	}

	if row.Status == enums.VideoStatusDeleted {
		return &ApplyResult{Video: row, Outcome: OutcomeNoOp}, nil
	}

	if row.AssetID == nil && evt.AssetID != "" {
		if err := s.claimAsset(ctx, row, evt.AssetID); err != nil {
			return nil, err
		}
		if row.Status == enums.VideoStatusDeleted {
			return &ApplyResult{Video: row, Outcome: OutcomeNoOp}, nil
		}
		changed = true
	}

	// Best effort: a missing handle here is repaired by the ready event or
	// the reconciliation sweep, so a provider hiccup does not fail the
	// delivery.
	if row.PlaybackID == nil && row.AssetID != nil {
		if playbackID, err := s.EnsureSignedPlayback(ctx, *row.AssetID); err != nil {
			s.logg.Warn(s.logg.WithAssetID(ctx, *row.AssetID), "ensure playback handle failed, deferring to sweep")
		} else if playbackID != "" {
			row.PlaybackID = strPtr(playbackID)
			changed = true
		}
	}

	if row.Status == "" || row.Status == enums.VideoStatusUploading {
		row.Status = enums.VideoStatusProcessing
		changed = true
	}

	if !changed {
		return &ApplyResult{Video: row, Outcome: OutcomeNoOp}, nil
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist asset created transition")
	}
	return &ApplyResult{Video: row, Outcome: OutcomeApplied}, nil
}

func (s *Service) applyReady(ctx context.Context, evt Event) (*ApplyResult, error) {
	// Ready resolves strictly by asset id, so it succeeds even when it
	// overtakes the created event; the row is upserted if absent.
	row, err := s.resolveRow(ctx, evt.UploadID, evt.AssetID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		row = &models.Video{
			AssetID: strPtr(evt.AssetID),
			Status:  enums.VideoStatusProcessing,
		}
		if evt.UploadID != "" {
			row.UploadID = strPtr(evt.UploadID)
		}
		created, err := s.createToleratingRace(ctx, row, evt)
		if err != nil {
			return nil, err
		}
		row = created
	}

	if row.Status == enums.VideoStatusDeleted {
		return &ApplyResult{Video: row, Outcome: OutcomeNoOp}, nil
	}

	changed := false
	if row.AssetID == nil {
		if err := s.claimAsset(ctx, row, evt.AssetID); err != nil {
			return nil, err
		}
		if row.Status == enums.VideoStatusDeleted {
			return &ApplyResult{Video: row, Outcome: OutcomeNoOp}, nil
		}
		changed = true
	}

	playbackID := evt.PlaybackID
	if playbackID == "" && row.PlaybackID != nil {
		playbackID = *row.PlaybackID
	}
	if playbackID == "" {
		playbackID, err = s.EnsureSignedPlayback(ctx, evt.AssetID)
		if err != nil {
			return nil, err
		}
	}
	if row.PlaybackID == nil || *row.PlaybackID != playbackID {
		row.PlaybackID = strPtr(playbackID)
		changed = true
	}
	if row.Status != enums.VideoStatusReady {
		row.Status = enums.VideoStatusReady
		changed = true
	}
	if evt.Duration != nil && (row.DurationSeconds == nil || *row.DurationSeconds != *evt.Duration) {
		row.DurationSeconds = evt.Duration
		changed = true
	}
	if evt.Title != "" && row.Title == nil {
		row.Title = strPtr(evt.Title)
		changed = true
	}

	if !changed {
		return &ApplyResult{Video: row, Outcome: OutcomeNoOp}, nil
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist asset ready transition")
	}
	return &ApplyResult{Video: row, Outcome: OutcomeApplied}, nil
}

func (s *Service) applyErrored(ctx context.Context, evt Event) (*ApplyResult, error) {
	row, err := s.repo.FindByAssetID(ctx, evt.AssetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load video by asset id")
	}
	if row == nil {
		row = &models.Video{
			AssetID: strPtr(evt.AssetID),
			Status:  enums.VideoStatusErrored,
		}
		created, err := s.createToleratingRace(ctx, row, evt)
		if err != nil {
			return nil, err
		}
		if created.Status == enums.VideoStatusErrored {
			return &ApplyResult{Video: created, Outcome: OutcomeApplied}, nil
		}
		row = created
	}
	if row.Status == enums.VideoStatusDeleted || row.Status == enums.VideoStatusErrored {
		return &ApplyResult{Video: row, Outcome: OutcomeNoOp}, nil
	}
	row.Status = enums.VideoStatusErrored
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist asset errored transition")
	}
	return &ApplyResult{Video: row, Outcome: OutcomeApplied}, nil
}

func (s *Service) applyDeleted(ctx context.Context, evt Event) (*ApplyResult, error) {
	row, err := s.repo.FindByAssetID(ctx, evt.AssetID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load video by asset id")
	}
	if row == nil {
		row = &models.Video{
			AssetID: strPtr(evt.AssetID),
			Status:  enums.VideoStatusDeleted,
		}
		created, err := s.createToleratingRace(ctx, row, evt)
		if err != nil {
			return nil, err
		}
		if created.Status == enums.VideoStatusDeleted {
			return &ApplyResult{Video: created, Outcome: OutcomeApplied}, nil
		}
		row = created
	}
	if row.Status == enums.VideoStatusDeleted && row.PlaybackID == nil {
		return &ApplyResult{Video: row, Outcome: OutcomeNoOp}, nil
	}
	row.Status = enums.VideoStatusDeleted
	// A token must never be issuable for a gone asset.
	row.PlaybackID = nil
	if err := s.repo.Save(ctx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist asset deleted transition")
	}
	return &ApplyResult{Video: row, Outcome: OutcomeApplied}, nil
}

// ApplyProviderAsset converges a row onto the provider's view of its asset.
// The reconciliation sweep and the webhook path share this mapping so both
// reach the same end state regardless of ordering.
func (s *Service) ApplyProviderAsset(ctx context.Context, row *models.Video, asset *mux.Asset) (bool, error) {
	if row == nil || asset == nil {
		return false, pkgerrors.New(pkgerrors.CodeInternal, "row and asset are required")
	}
	if row.Status == enums.VideoStatusDeleted {
		return false, nil
	}

	changed := false
	if row.AssetID == nil {
		if err := s.claimAsset(ctx, row, asset.ID); err != nil {
			return false, err
		}
		if row.Status == enums.VideoStatusDeleted {
			return true, nil
		}
		changed = true
	}

	target := StatusFromProvider(asset.Status)

	playbackID := asset.SignedPlaybackID()
	if playbackID == "" && target != enums.VideoStatusErrored {
		created, err := s.provider.CreatePlaybackID(ctx, asset.ID, mux.PolicySigned)
		if err != nil {
			return false, err
		}
		playbackID = created.ID
	}
	if playbackID != "" && (row.PlaybackID == nil || *row.PlaybackID != playbackID) {
		row.PlaybackID = strPtr(playbackID)
		changed = true
	}

	if row.Status != target && allowTransition(row.Status, target) {
		row.Status = target
		changed = true
	}

	if asset.Duration != nil && row.DurationSeconds == nil {
		row.DurationSeconds = asset.Duration
		changed = true
	}
	if title := titleFromPassthrough(asset.Passthrough); title != "" && row.Title == nil {
		row.Title = strPtr(title)
		changed = true
	}

	if !changed {
		return false, nil
	}
	if err := s.repo.Save(ctx, row); err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist reconciled state")
	}
	return true, nil
}

// EnsureSignedPlayback returns the asset's signed playback handle, creating
// one only when none exists. Listing first keeps the operation idempotent
// under concurrent delivery of the same notification.
func (s *Service) EnsureSignedPlayback(ctx context.Context, assetID string) (string, error) {
	asset, err := s.provider.GetAsset(ctx, assetID)
	if err != nil {
		return "", err
	}
	if existing := asset.SignedPlaybackID(); existing != "" {
		return existing, nil
	}
	created, err := s.provider.CreatePlaybackID(ctx, assetID, mux.PolicySigned)
	if err != nil {
		return "", err
	}
	return created.ID, nil
}

// claimAsset links an asset id onto an unlinked row. When another row already
// owns the asset id, setting the link would trip the unique index and the row
// would re-fail on every delivery and sweep. An owner can only exist because
// an asset event arrived before the upload link was known, so the owner wins:
// the upload row folds into it and inherits nothing but the upload id.
func (s *Service) claimAsset(ctx context.Context, row *models.Video, assetID string) error {
	owner, err := s.repo.FindByAssetID(ctx, assetID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load video by asset id")
	}
	if owner == nil || owner.ID == row.ID {
		row.AssetID = strPtr(assetID)
		return nil
	}

	uploadID := row.UploadID
	if err := s.repo.Delete(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "absorb duplicate video row")
	}
	*row = *owner
	if row.UploadID == nil && uploadID != nil {
		row.UploadID = uploadID
	}
	return nil
}

// resolveRow looks up the target row upload-id first, then by asset id. A
// row found by upload id but already linked to a different asset is not the
// target; the asset id lookup decides then.
func (s *Service) resolveRow(ctx context.Context, uploadID, assetID string) (*models.Video, error) {
	if uploadID != "" {
		row, err := s.repo.FindByUploadID(ctx, uploadID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load video by upload id")
		}
		if row != nil && (assetID == "" || row.AssetID == nil || *row.AssetID == assetID) {
			return row, nil
		}
	}
	if assetID != "" {
		row, err := s.repo.FindByAssetID(ctx, assetID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load video by asset id")
		}
		return row, nil
	}
	return nil, nil
}

// createToleratingRace inserts the row, and on a unique violation re-reads
// whichever concurrent delivery won. Either way the caller ends up holding
// the authoritative row.
func (s *Service) createToleratingRace(ctx context.Context, row *models.Video, evt Event) (*models.Video, error) {
	err := s.repo.Create(ctx, row)
	if err == nil {
		return row, nil
	}
	if !db.IsUniqueViolation(err, "") {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert video row")
	}
	winner, findErr := s.resolveRow(ctx, evt.UploadID, evt.AssetID)
	if findErr != nil {
		return nil, findErr
	}
	if winner == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert video row")
	}
	return winner, nil
}

// allowTransition enforces lifecycle ordering: deleted is terminal and
// processing never overwrites an outcome status.
func allowTransition(from, to enums.VideoStatus) bool {
	if from == enums.VideoStatusDeleted {
		return false
	}
	if to == enums.VideoStatusProcessing {
		return from == "" || from == enums.VideoStatusUploading
	}
	return true
}

func strPtr(s string) *string {
	return &s
}
