package reconcile

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kravtofly/svr-backend/internal/videos"
	"github.com/kravtofly/svr-backend/pkg/db/models"
	"github.com/kravtofly/svr-backend/pkg/enums"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
	"github.com/kravtofly/svr-backend/pkg/logger"
	"github.com/kravtofly/svr-backend/pkg/metrics"
	"github.com/kravtofly/svr-backend/pkg/mux"
)

// stubProvider serves uploads and assets from maps. Unknown ids return the
// same not-found error the real client produces.
type stubProvider struct {
	uploads map[string]*mux.Upload
	assets  map[string]*mux.Asset
}

func (s *stubProvider) GetUpload(_ context.Context, uploadID string) (*mux.Upload, error) {
	if u, ok := s.uploads[uploadID]; ok {
		return u, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider resource not found")
}

func (s *stubProvider) GetAsset(_ context.Context, assetID string) (*mux.Asset, error) {
	if a, ok := s.assets[assetID]; ok {
		return a, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider resource not found")
}

func (s *stubProvider) CreatePlaybackID(_ context.Context, assetID, _ string) (*mux.PlaybackID, error) {
	pb := &mux.PlaybackID{ID: "pb_" + assetID, Policy: mux.PolicySigned}
	if a, ok := s.assets[assetID]; ok {
		a.PlaybackIDs = append(a.PlaybackIDs, *pb)
	}
	return pb, nil
}

func newFixture(t *testing.T, provider *stubProvider) (*Service, *videos.Repository) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.Video{}))

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	repo := videos.NewRepository(gdb)

	videoSvc, err := videos.NewService(videos.ServiceParams{
		Repo:     repo,
		Provider: provider,
		Logger:   logg,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Videos:   videoSvc,
		Provider: provider,
		Metrics:  metrics.NewLifecycleMetrics(nil),
		Logger:   logg,
		PageSize: 10,
	})
	require.NoError(t, err)
	return svc, repo
}

func TestRunLinksPendingUpload(t *testing.T) {
	provider := &stubProvider{
		uploads: map[string]*mux.Upload{
			"upl_1": {ID: "upl_1", Status: "asset_created", AssetID: "asset_1"},
		},
		assets: map[string]*mux.Asset{
			"asset_1": {
				ID:     "asset_1",
				Status: "ready",
				PlaybackIDs: []mux.PlaybackID{
					{ID: "pb_signed", Policy: mux.PolicySigned},
				},
			},
		},
	}
	svc, repo := newFixture(t, provider)
	ctx := context.Background()

	uploadID := "upl_1"
	require.NoError(t, repo.Create(ctx, &models.Video{
		UploadID: &uploadID,
		Status:   enums.VideoStatusUploading,
	}))

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	require.Len(t, result.Details, 1)

	detail := result.Details[0]
	assert.True(t, detail.OK)
	assert.Equal(t, "upl_1", detail.UploadID)
	assert.Equal(t, "asset_1", detail.AssetID)
	assert.Equal(t, "pb_signed", detail.PlaybackID)
	assert.Equal(t, string(enums.VideoStatusReady), detail.Status)

	row, err := repo.FindByUploadID(ctx, "upl_1")
	require.NoError(t, err)
	assert.Equal(t, enums.VideoStatusReady, row.Status)
}

func TestRunLeavesPendingUploadAlone(t *testing.T) {
	provider := &stubProvider{
		uploads: map[string]*mux.Upload{
			"upl_1": {ID: "upl_1", Status: "waiting"},
		},
	}
	svc, repo := newFixture(t, provider)
	ctx := context.Background()

	uploadID := "upl_1"
	require.NoError(t, repo.Create(ctx, &models.Video{
		UploadID: &uploadID,
		Status:   enums.VideoStatusUploading,
	}))

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Updated)
	require.Len(t, result.Details, 1)
	assert.True(t, result.Details[0].OK)
	assert.Contains(t, result.Details[0].Note, "pending")
}

func TestRunSweepsUnreadyAsset(t *testing.T) {
	provider := &stubProvider{
		assets: map[string]*mux.Asset{
			"asset_1": {ID: "asset_1", Status: "ready"},
		},
	}
	svc, repo := newFixture(t, provider)
	ctx := context.Background()

	assetID := "asset_1"
	require.NoError(t, repo.Create(ctx, &models.Video{
		AssetID: &assetID,
		Status:  enums.VideoStatusProcessing,
	}))

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	row, err := repo.FindByAssetID(ctx, "asset_1")
	require.NoError(t, err)
	assert.Equal(t, enums.VideoStatusReady, row.Status)
	require.NotNil(t, row.PlaybackID)
	assert.Equal(t, "pb_asset_1", *row.PlaybackID, "sweep must create the missing signed handle")
}

func TestRunMarksMissingAssetDeleted(t *testing.T) {
	provider := &stubProvider{assets: map[string]*mux.Asset{}}
	svc, repo := newFixture(t, provider)
	ctx := context.Background()

	assetID := "asset_gone"
	playbackID := "pb_old"
	require.NoError(t, repo.Create(ctx, &models.Video{
		AssetID:    &assetID,
		PlaybackID: &playbackID,
		Status:     enums.VideoStatusProcessing,
	}))

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)

	row, err := repo.FindByAssetID(ctx, "asset_gone")
	require.NoError(t, err)
	assert.Equal(t, enums.VideoStatusDeleted, row.Status)
	assert.Nil(t, row.PlaybackID)
}

func TestRunIsolatesRowFailures(t *testing.T) {
	provider := &stubProvider{
		uploads: map[string]*mux.Upload{},
		assets: map[string]*mux.Asset{
			"asset_ok": {ID: "asset_ok", Status: "ready", PlaybackIDs: []mux.PlaybackID{{ID: "pb", Policy: mux.PolicySigned}}},
		},
	}
	svc, repo := newFixture(t, provider)
	ctx := context.Background()

	// GetUpload on this row fails: the stub knows no uploads.
	brokenUpload := "upl_broken"
	require.NoError(t, repo.Create(ctx, &models.Video{
		UploadID: &brokenUpload,
		Status:   enums.VideoStatusUploading,
	}))
	healthyAsset := "asset_ok"
	require.NoError(t, repo.Create(ctx, &models.Video{
		AssetID: &healthyAsset,
		Status:  enums.VideoStatusProcessing,
	}))

	result, err := svc.Run(ctx)
	require.Error(t, err, "row failures are aggregated for the caller to log")
	require.Len(t, result.Details, 2)
	assert.Equal(t, 1, result.Updated, "healthy row still converges")

	var failed, succeeded int
	for _, d := range result.Details {
		if d.OK {
			succeeded++
		} else {
			failed++
			assert.NotEmpty(t, d.Error)
		}
	}
	assert.Equal(t, 1, failed)
	assert.Equal(t, 1, succeeded)
}

func TestRunEmptyStore(t *testing.T) {
	svc, _ := newFixture(t, &stubProvider{})

	result, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.Updated)
	assert.Empty(t, result.Details)
}

func TestRunMergesUploadRowIntoExistingAssetRow(t *testing.T) {
	provider := &stubProvider{
		uploads: map[string]*mux.Upload{
			"upl_1": {ID: "upl_1", Status: "asset_created", AssetID: "asset_1"},
		},
		assets: map[string]*mux.Asset{
			"asset_1": {
				ID:     "asset_1",
				Status: "ready",
				PlaybackIDs: []mux.PlaybackID{
					{ID: "pb_signed", Policy: mux.PolicySigned},
				},
			},
		},
	}
	svc, repo := newFixture(t, provider)
	ctx := context.Background()

	uploadID := "upl_1"
	require.NoError(t, repo.Create(ctx, &models.Video{
		UploadID: &uploadID,
		Status:   enums.VideoStatusUploading,
	}))
	// An errored event with no upload link already created a row for the asset.
	assetID := "asset_1"
	require.NoError(t, repo.Create(ctx, &models.Video{
		AssetID: &assetID,
		Status:  enums.VideoStatusErrored,
	}))

	result, err := svc.Run(ctx)
	require.NoError(t, err, "linking must merge with the row that already owns the asset, not collide with it")
	assert.Equal(t, 1, result.Updated)

	row, err := repo.FindByAssetID(ctx, "asset_1")
	require.NoError(t, err)
	require.NotNil(t, row.UploadID)
	assert.Equal(t, "upl_1", *row.UploadID)
	assert.Equal(t, enums.VideoStatusReady, row.Status)

	byUpload, err := repo.FindByUploadID(ctx, "upl_1")
	require.NoError(t, err)
	require.NotNil(t, byUpload)
	assert.Equal(t, row.ID, byUpload.ID)

	// A second run has nothing left to repair.
	again, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Updated)
}

func TestRunSkipsRowTouchedByDiscovery(t *testing.T) {
	provider := &stubProvider{
		uploads: map[string]*mux.Upload{
			"upl_1": {ID: "upl_1", Status: "asset_created", AssetID: "asset_1"},
		},
		assets: map[string]*mux.Asset{
			// Still processing at the provider, so after discovery the row
			// is also in the unready set.
			"asset_1": {ID: "asset_1", Status: "preparing"},
		},
	}
	svc, repo := newFixture(t, provider)
	ctx := context.Background()

	uploadID := "upl_1"
	require.NoError(t, repo.Create(ctx, &models.Video{
		UploadID: &uploadID,
		Status:   enums.VideoStatusUploading,
	}))

	result, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, result.Details, 1, "one detail line per row per run")
}
