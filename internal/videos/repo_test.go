package videos

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravtofly/svr-backend/pkg/db"
	"github.com/kravtofly/svr-backend/pkg/db/models"
	"github.com/kravtofly/svr-backend/pkg/enums"
)

func TestRepositoryFindByUploadID(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	uploadID := "upl_1"
	require.NoError(t, repo.Create(ctx, &models.Video{
		UploadID: &uploadID,
		Status:   enums.VideoStatusUploading,
	}))

	row, err := repo.FindByUploadID(ctx, "upl_1")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, enums.VideoStatusUploading, row.Status)

	missing, err := repo.FindByUploadID(ctx, "upl_other")
	require.NoError(t, err)
	assert.Nil(t, missing)

	empty, err := repo.FindByUploadID(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestRepositoryUniqueAssetID(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	assetID := "asset_1"
	require.NoError(t, repo.Create(ctx, &models.Video{
		AssetID: &assetID,
		Status:  enums.VideoStatusProcessing,
	}))

	duplicate := assetID
	err := repo.Create(ctx, &models.Video{
		AssetID: &duplicate,
		Status:  enums.VideoStatusProcessing,
	})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRepositoryListPendingUploads(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	pendingUpload := "upl_pending"
	linkedUpload := "upl_linked"
	linkedAsset := "asset_linked"
	deletedUpload := "upl_deleted"

	require.NoError(t, repo.Create(ctx, &models.Video{
		UploadID: &pendingUpload,
		Status:   enums.VideoStatusUploading,
	}))
	require.NoError(t, repo.Create(ctx, &models.Video{
		UploadID: &linkedUpload,
		AssetID:  &linkedAsset,
		Status:   enums.VideoStatusProcessing,
	}))
	require.NoError(t, repo.Create(ctx, &models.Video{
		UploadID: &deletedUpload,
		Status:   enums.VideoStatusDeleted,
	}))

	rows, err := repo.ListPendingUploads(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pendingUpload, *rows[0].UploadID)
}

func TestRepositoryListUnready(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	processing := "asset_processing"
	errored := "asset_errored"
	readyNoHandle := "asset_ready_no_handle"
	ready := "asset_ready"
	deleted := "asset_deleted"
	handle := "pb_signed"

	require.NoError(t, repo.Create(ctx, &models.Video{AssetID: &processing, Status: enums.VideoStatusProcessing}))
	require.NoError(t, repo.Create(ctx, &models.Video{AssetID: &errored, Status: enums.VideoStatusErrored}))
	require.NoError(t, repo.Create(ctx, &models.Video{AssetID: &readyNoHandle, Status: enums.VideoStatusReady}))
	require.NoError(t, repo.Create(ctx, &models.Video{AssetID: &ready, PlaybackID: &handle, Status: enums.VideoStatusReady}))
	require.NoError(t, repo.Create(ctx, &models.Video{AssetID: &deleted, Status: enums.VideoStatusDeleted}))

	rows, err := repo.ListUnready(ctx, 10)
	require.NoError(t, err)

	got := map[string]bool{}
	for _, row := range rows {
		got[*row.AssetID] = true
	}
	assert.True(t, got[processing])
	assert.True(t, got[errored], "errored rows stay eligible for repair")
	assert.True(t, got[readyNoHandle], "ready without a handle is not playable")
	assert.False(t, got[ready])
	assert.False(t, got[deleted])
}

func TestRepositoryListLimit(t *testing.T) {
	repo := NewRepository(newTestDB(t))
	ctx := context.Background()

	for _, id := range []string{"asset_a", "asset_b", "asset_c"} {
		assetID := id
		require.NoError(t, repo.Create(ctx, &models.Video{
			AssetID: &assetID,
			Status:  enums.VideoStatusProcessing,
		}))
	}

	rows, err := repo.ListUnready(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
