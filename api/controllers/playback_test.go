package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kravtofly/svr-backend/pkg/db/models"
	"github.com/kravtofly/svr-backend/pkg/enums"
)

type signEnvelope struct {
	Data struct {
		Token string `json:"token"`
		URL   string `json:"url"`
	} `json:"data"`
	Error struct {
		Code string `json:"code"`
	} `json:"error"`
}

func decodeSign(t *testing.T, rec *httptest.ResponseRecorder) signEnvelope {
	t.Helper()
	var env signEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestSignPlaybackGetWithAlias(t *testing.T) {
	f := newFixture(t, nil)
	handler := SignPlayback(f.playback, f.logg)

	for _, alias := range []string{"id", "playbackId", "pid"} {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/playback/sign?"+alias+"=pb_1", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, "alias %s", alias)
		env := decodeSign(t, rec)
		assert.NotEmpty(t, env.Data.Token)
		assert.True(t, strings.HasPrefix(env.Data.URL, "https://stream.mux.com/pb_1.m3u8?token="))
	}
}

func TestSignPlaybackPostBody(t *testing.T) {
	f := newFixture(t, nil)
	handler := SignPlayback(f.playback, f.logg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/playback/sign",
		strings.NewReader(`{"playbackId":"pb_2","ttl":600}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	env := decodeSign(t, rec)

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(env.Data.Token, claims, func(tok *jwt.Token) (any, error) {
		return f.signer.PublicKey(), nil
	}, jwt.WithValidMethods([]string{"RS256"}))
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	assert.Equal(t, "pb_2", claims.Subject)
	assert.Contains(t, claims.Audience, "v")
}

func TestSignPlaybackMissingID(t *testing.T) {
	f := newFixture(t, nil)
	handler := SignPlayback(f.playback, f.logg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/playback/sign", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decodeSign(t, rec)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestSignPlaybackUnreadyVideo(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	assetID := "asset_1"
	playbackID := "pb_processing"
	require.NoError(t, f.repo.Create(ctx, &models.Video{
		AssetID:    &assetID,
		PlaybackID: &playbackID,
		Status:     enums.VideoStatusProcessing,
	}))

	handler := SignPlayback(f.playback, f.logg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/playback/sign?id=pb_processing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	env := decodeSign(t, rec)
	assert.Equal(t, "STATE_CONFLICT", env.Error.Code)
}

func TestSignPlaybackRejectsOutOfRangeTTL(t *testing.T) {
	f := newFixture(t, nil)
	handler := SignPlayback(f.playback, f.logg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/playback/sign?id=pb_1&ttl=999999999", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
