package videos

import (
	"context"
	"errors"

	"github.com/kravtofly/svr-backend/pkg/db/models"
	"github.com/kravtofly/svr-backend/pkg/enums"
	"gorm.io/gorm"
)

// Repository persists Video rows. Uniqueness on upload_id and asset_id is
// enforced by the schema; callers treat a unique violation as a lost race,
// not a failure.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a video repository bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new video row.
func (r *Repository) Create(ctx context.Context, video *models.Video) error {
	return r.db.WithContext(ctx).Create(video).Error
}

// Save writes the full row back.
func (r *Repository) Save(ctx context.Context, video *models.Video) error {
	return r.db.WithContext(ctx).Save(video).Error
}

// Delete removes a row. The only caller is the duplicate merge, which folds
// an unlinked upload row into the row that already owns its asset.
func (r *Repository) Delete(ctx context.Context, video *models.Video) error {
	return r.db.WithContext(ctx).Delete(video).Error
}

// FindByUploadID returns the row owning the upload slot, or nil when no row
// matches.
func (r *Repository) FindByUploadID(ctx context.Context, uploadID string) (*models.Video, error) {
	if uploadID == "" {
		return nil, nil
	}
	var v models.Video
	err := r.db.WithContext(ctx).First(&v, "upload_id = ?", uploadID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindByAssetID returns the row owning the asset, or nil when no row matches.
func (r *Repository) FindByAssetID(ctx context.Context, assetID string) (*models.Video, error) {
	if assetID == "" {
		return nil, nil
	}
	var v models.Video
	err := r.db.WithContext(ctx).First(&v, "asset_id = ?", assetID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// FindByPlaybackID returns the row holding the playback handle, or nil when
// no row matches.
func (r *Repository) FindByPlaybackID(ctx context.Context, playbackID string) (*models.Video, error) {
	if playbackID == "" {
		return nil, nil
	}
	var v models.Video
	err := r.db.WithContext(ctx).First(&v, "playback_id = ?", playbackID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ListPendingUploads returns rows whose upload slot has no linked asset yet,
// newest first. The reconciliation discovery pass pages through these.
func (r *Repository) ListPendingUploads(ctx context.Context, limit int) ([]models.Video, error) {
	var rows []models.Video
	err := r.db.WithContext(ctx).
		Where("upload_id IS NOT NULL AND asset_id IS NULL").
		Where("status <> ?", enums.VideoStatusDeleted).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ListUnready returns rows with a linked asset that are not fully playable:
// not ready, or ready without a playback handle. Deleted rows are excluded;
// errored rows stay in the set so a late provider recovery can still win.
func (r *Repository) ListUnready(ctx context.Context, limit int) ([]models.Video, error) {
	var rows []models.Video
	err := r.db.WithContext(ctx).
		Where("asset_id IS NOT NULL").
		Where("status <> ?", enums.VideoStatusDeleted).
		Where("status <> ? OR playback_id IS NULL", enums.VideoStatusReady).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
