package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kravtofly/svr-backend/pkg/enums"
)

// Video is the authoritative record of one student submission. UploadID is
// assigned when the direct-upload slot is created; AssetID and PlaybackID
// arrive later from the provider and are immutable once set. Uniqueness on
// upload_id and asset_id is the only concurrency control the webhook path
// relies on.
type Video struct {
	ID              uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UploadID        *string           `gorm:"column:upload_id;uniqueIndex"`
	AssetID         *string           `gorm:"column:asset_id;uniqueIndex"`
	PlaybackID      *string           `gorm:"column:playback_id"`
	Status          enums.VideoStatus `gorm:"column:status;not null;default:uploading"`
	Title           *string           `gorm:"column:title"`
	DurationSeconds *float64          `gorm:"column:duration_seconds"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Video) BeforeCreate(_ *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}
