package controllers

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/kravtofly/svr-backend/api/responses"
	"github.com/kravtofly/svr-backend/internal/videos"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
	"github.com/kravtofly/svr-backend/pkg/logger"
	"github.com/kravtofly/svr-backend/pkg/metrics"
	"github.com/kravtofly/svr-backend/pkg/mux"
)

const webhookBodyLimit int64 = 1 << 20

// MuxWebhook receives provider lifecycle deliveries. Only a failed signature
// check is rejected; everything past that point is acknowledged with 2xx so
// the provider never retries deliveries we have already judged, and drift is
// left to the reconciliation sweep.
func MuxWebhook(svc *videos.Service, secret string, m *metrics.LifecycleMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		body, err := io.ReadAll(io.LimitReader(r.Body, webhookBodyLimit))
		if err != nil {
			m.ObserveWebhookEvent("unknown", "read_error")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read webhook body"))
			return
		}

		header := r.Header.Get(mux.SignatureHeader)
		if err := mux.VerifyWebhookSignature(body, header, secret, time.Now()); err != nil {
			m.ObserveWebhookEvent("unknown", "invalid_signature")
			logg.Warn(ctx, "webhook signature rejected")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook signature"))
			return
		}

		evt, err := videos.ParseEvent(body)
		if err != nil {
			// Authenticated but unusable: acknowledge so the provider stops
			// retrying a payload that will never parse.
			m.ObserveWebhookEvent("unknown", "malformed")
			logg.Warn(logg.WithField(ctx, "parse_error", err.Error()), "webhook payload rejected by parser")
			responses.WriteSuccess(w, map[string]any{"received": true})
			return
		}

		ctx = logg.WithEventType(ctx, evt.RawType)
		if evt.AssetID != "" {
			ctx = logg.WithAssetID(ctx, evt.AssetID)
		}

		// Once the delivery is authenticated the transition must land even if
		// the caller disconnects; a half-applied row would otherwise wait for
		// the next sweep. Detaching keeps the logger fields but not the cancel.
		result, err := svc.Apply(context.WithoutCancel(ctx), evt)
		if err != nil {
			m.ObserveWebhookEvent(evt.RawType, "error")
			logg.Error(ctx, "webhook apply failed", err)
			responses.WriteSuccess(w, map[string]any{"received": true})
			return
		}

		m.ObserveWebhookEvent(evt.RawType, string(result.Outcome))
		logg.Info(logg.WithField(ctx, "outcome", string(result.Outcome)), "webhook applied")
		responses.WriteSuccess(w, map[string]any{
			"received": true,
			"outcome":  string(result.Outcome),
		})
	}
}
