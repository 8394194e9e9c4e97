package controllers

import (
	"crypto/subtle"
	"net/http"

	"github.com/kravtofly/svr-backend/api/responses"
	"github.com/kravtofly/svr-backend/internal/reconcile"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
	"github.com/kravtofly/svr-backend/pkg/logger"
)

const adminKeyHeader = "X-Admin-Key"

// Reconcile triggers one drift-repair run. The endpoint is operator-only,
// guarded by a shared admin key; per-row failures are reported inside the
// result, not as a request failure.
func Reconcile(svc *reconcile.Service, adminKey string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if adminKey == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "reconcile admin key is not configured"))
			return
		}
		provided := r.Header.Get(adminKeyHeader)
		if subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "admin key rejected"))
			return
		}

		result, err := svc.Run(ctx)
		if err != nil {
			if result == nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			// Partial failure: the details carry per-row errors.
			logg.Error(ctx, "reconcile completed with row errors", err)
		}

		responses.WriteSuccess(w, result)
	}
}
