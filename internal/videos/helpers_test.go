package videos

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kravtofly/svr-backend/pkg/db/models"
	"github.com/kravtofly/svr-backend/pkg/logger"
	"github.com/kravtofly/svr-backend/pkg/mux"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&models.Video{}))
	return gdb
}

func newTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

// stubProvider scripts the provider responses and records what was called.
type stubProvider struct {
	asset    *mux.Asset
	assetErr error

	created    *mux.PlaybackID
	createErr  error
	getCalls   int
	createCall int
}

func (s *stubProvider) GetAsset(_ context.Context, _ string) (*mux.Asset, error) {
	s.getCalls++
	if s.assetErr != nil {
		return nil, s.assetErr
	}
	return s.asset, nil
}

func (s *stubProvider) CreatePlaybackID(_ context.Context, assetID, policy string) (*mux.PlaybackID, error) {
	s.createCall++
	if policy != mux.PolicySigned {
		return nil, fmt.Errorf("unexpected policy %q", policy)
	}
	if s.createErr != nil {
		return nil, s.createErr
	}
	if s.created != nil {
		return s.created, nil
	}
	return &mux.PlaybackID{ID: "pb_" + assetID, Policy: mux.PolicySigned}, nil
}

func newTestService(t *testing.T, provider ProviderClient) (*Service, *Repository) {
	t.Helper()
	repo := NewRepository(newTestDB(t))
	svc, err := NewService(ServiceParams{
		Repo:     repo,
		Provider: provider,
		Logger:   newTestLogger(),
	})
	require.NoError(t, err)
	return svc, repo
}
