package controllers

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kravtofly/svr-backend/internal/playback"
	"github.com/kravtofly/svr-backend/internal/reconcile"
	"github.com/kravtofly/svr-backend/internal/videos"
	"github.com/kravtofly/svr-backend/pkg/config"
	"github.com/kravtofly/svr-backend/pkg/db/models"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
	"github.com/kravtofly/svr-backend/pkg/logger"
	"github.com/kravtofly/svr-backend/pkg/metrics"
	"github.com/kravtofly/svr-backend/pkg/mux"
	"github.com/kravtofly/svr-backend/pkg/signing"
)

const testWebhookSecret = "whsec_test"

// stubProvider serves scripted uploads and assets.
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
	return &mux.PlaybackID{ID: "pb_" + assetID, Policy: mux.PolicySigned}, nil
}

type fixture struct {
	repo      *videos.Repository
	videos    *videos.Service
	playback  *playback.Service
	reconcile *reconcile.Service
	metrics   *metrics.LifecycleMetrics
	logg      *logger.Logger
	signer    *signing.Signer
}

func newFixture(t *testing.T, provider *stubProvider) *fixture {
	t.Helper()
	if provider == nil {
		provider = &stubProvider{}
	}

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

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	signer, err := signing.NewSigner(config.MuxConfig{
		SigningKeyID: "key_test",
		SigningKey: string(pem.EncodeToMemory(&pem.Block{
			Type:  "RSA PRIVATE KEY",
			Bytes: x509.MarshalPKCS1PrivateKey(key),
		})),
	})
	require.NoError(t, err)

	playbackSvc, err := playback.NewService(playback.ServiceParams{
		Repo:   repo,
		Signer: signer,
		Config: config.PlaybackConfig{
			DefaultTTL: time.Hour,
			MaxTTL:     12 * time.Hour,
			StreamBase: "https://stream.mux.com",
		},
		Logger: logg,
	})
	require.NoError(t, err)

	lifecycleMetrics := metrics.NewLifecycleMetrics(nil)
	reconcileSvc, err := reconcile.NewService(reconcile.ServiceParams{
		Repo:     repo,
		Videos:   videoSvc,
		Provider: provider,
		Metrics:  lifecycleMetrics,
		Logger:   logg,
		PageSize: 10,
	})
	require.NoError(t, err)

	return &fixture{
		repo:      repo,
		videos:    videoSvc,
		playback:  playbackSvc,
		reconcile: reconcileSvc,
		metrics:   lifecycleMetrics,
		logg:      logg,
		signer:    signer,
	}
}
