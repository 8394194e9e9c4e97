package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/kravtofly/svr-backend/api/responses"
	"github.com/kravtofly/svr-backend/api/validators"
	"github.com/kravtofly/svr-backend/internal/playback"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
	"github.com/kravtofly/svr-backend/pkg/logger"
)

const maxTTLSeconds = 12 * 60 * 60

type signPlaybackBody struct {
	ID         string `json:"id"`
	PlaybackID string `json:"playbackId"`
	PID        string `json:"pid"`
	TTL        int    `json:"ttl" validate:"omitempty,min=1"`
}

func (b signPlaybackBody) playbackID() string {
	for _, candidate := range []string{b.ID, b.PlaybackID, b.PID} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

// SignPlayback mints a viewing token. Players reach this from both link
// handlers and fetch calls, so the playback id is accepted as id, playbackId
// or pid, via query string on GET and JSON body on POST.
func SignPlayback(svc *playback.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var playbackID string
		var ttlSeconds int

		switch r.Method {
		case http.MethodGet:
			playbackID = firstQueryValue(r, "id", "playbackId", "pid")
			ttl, err := validators.ParseQueryInt(r, "ttl", 0, 1, maxTTLSeconds)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			ttlSeconds = ttl
		default:
			var body signPlaybackBody
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			playbackID = body.playbackID()
			ttlSeconds = body.TTL
		}

		if playbackID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "playback id is required").
				WithDetails(map[string]any{"aliases": []string{"id", "playbackId", "pid"}}))
			return
		}

		result, err := svc.Sign(ctx, playback.SignRequest{
			PlaybackID: playbackID,
			TTL:        time.Duration(ttlSeconds) * time.Second,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

func firstQueryValue(r *http.Request, keys ...string) string {
	for _, key := range keys {
		if value := strings.TrimSpace(r.URL.Query().Get(key)); value != "" {
			return value
		}
	}
	return ""
}
