package reconcile

import (
	"context"
	"time"

	"go.uber.org/multierr"

	"github.com/kravtofly/svr-backend/internal/videos"
	"github.com/kravtofly/svr-backend/pkg/db/models"
	"github.com/kravtofly/svr-backend/pkg/enums"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
	"github.com/kravtofly/svr-backend/pkg/logger"
	"github.com/kravtofly/svr-backend/pkg/metrics"
	"github.com/kravtofly/svr-backend/pkg/mux"
)

const defaultPageSize = 50

// ProviderClient is the provider surface the sweep needs on top of what the
// reducer already uses.
type ProviderClient interface {
	GetUpload(ctx context.Context, uploadID string) (*mux.Upload, error)
	GetAsset(ctx context.Context, assetID string) (*mux.Asset, error)
}

// RowDetail is one line of the operator report. The field names mirror what
// the admin tooling already consumes.
type RowDetail struct {
	ID         string `json:"id"`
	UploadID   string `json:"uploadId,omitempty"`
	AssetID    string `json:"assetId,omitempty"`
	PlaybackID string `json:"playback_id,omitempty"`
	Status     string `json:"status,omitempty"`
	Note       string `json:"note,omitempty"`
	Error      string `json:"error,omitempty"`
	OK         bool   `json:"ok"`
}

// Result summarizes one sweep invocation.
type Result struct {
	Updated int         `json:"updated"`
	Details []RowDetail `json:"details"`
}

type ServiceParams struct {
	Repo     *videos.Repository
	Videos   *videos.Service
	Provider ProviderClient
	Metrics  *metrics.LifecycleMetrics
	Logger   *logger.Logger
	PageSize int
}

// Service repairs drift between the local store and the provider: uploads
// whose asset link never arrived, and assets stuck short of playable. It is
// operator-invoked and safe to run while webhooks are flowing, because every
// write funnels through the same reducer rules.
type Service struct {
	repo     *videos.Repository
	videos   *videos.Service
	provider ProviderClient
	metrics  *metrics.LifecycleMetrics
	logg     *logger.Logger
	pageSize int
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "video repo required")
	}
	if params.Videos == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "video service required")
	}
	if params.Provider == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "provider client required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Service{
		repo:     params.Repo,
		videos:   params.Videos,
		provider: params.Provider,
		metrics:  params.Metrics,
		logg:     params.Logger,
		pageSize: pageSize,
	}, nil
}

// Run executes the discovery pass then the sweep pass. A failing row is
// reported in its detail line and never aborts the rest of the run; the
// aggregated error is returned for logging alongside the full Result.
func (s *Service) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{Details: []RowDetail{}}
	var errs error

	seen := map[string]bool{}

	pending, err := s.repo.ListPendingUploads(ctx, s.pageSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pending uploads")
	}
	for i := range pending {
		row := &pending[i]
		seen[row.ID.String()] = true
		detail := s.resolveUpload(ctx, row, result)
		// Resolution may have merged the row into the one owning its asset.
		seen[row.ID.String()] = true
		result.Details = append(result.Details, detail)
		if detail.Error != "" {
			errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeDependency, detail.Error))
		}
	}

	unready, err := s.repo.ListUnready(ctx, s.pageSize)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list unready assets")
	}
	for i := range unready {
		row := &unready[i]
		// Discovery may have already converged this row in the same run.
		if seen[row.ID.String()] {
			continue
		}
		detail := s.sweepAsset(ctx, row, result)
		result.Details = append(result.Details, detail)
		if detail.Error != "" {
			errs = multierr.Append(errs, pkgerrors.New(pkgerrors.CodeDependency, detail.Error))
		}
	}

	s.metrics.ObserveReconcileRun(time.Since(start))
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"updated": result.Updated,
		"rows":    len(result.Details),
	}), "reconcile run completed")
	return result, errs
}

// resolveUpload asks the provider whether the upload slot has produced an
// asset yet and, if so, converges the row onto the asset state.
func (s *Service) resolveUpload(ctx context.Context, row *models.Video, result *Result) RowDetail {
	detail := newDetail(row)

	upload, err := s.provider.GetUpload(ctx, *row.UploadID)
	if err != nil {
		return s.failRow(detail, "fetch upload: "+err.Error())
	}
	if upload.AssetID == "" {
		detail.OK = true
		detail.Note = "upload still pending at provider"
		s.metrics.ObserveReconcileRow("unchanged")
		return detail
	}

	asset, err := s.provider.GetAsset(ctx, upload.AssetID)
	if err != nil {
		return s.failRow(detail, "fetch asset: "+err.Error())
	}

	changed, err := s.videos.ApplyProviderAsset(ctx, row, asset)
	if err != nil {
		return s.failRow(detail, "apply asset state: "+err.Error())
	}
	return s.finishRow(detail, row, changed, "linked asset from upload", result)
}

// sweepAsset re-reads the asset and converges the row. An asset the provider
// no longer knows is treated as deleted, matching the terminal rule for
// delete notifications.
func (s *Service) sweepAsset(ctx context.Context, row *models.Video, result *Result) RowDetail {
	detail := newDetail(row)

	asset, err := s.provider.GetAsset(ctx, *row.AssetID)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			row.Status = enums.VideoStatusDeleted
			row.PlaybackID = nil
			if saveErr := s.repo.Save(ctx, row); saveErr != nil {
				return s.failRow(detail, "mark deleted: "+saveErr.Error())
			}
			return s.finishRow(detail, row, true, "asset gone at provider, marked deleted", result)
		}
		return s.failRow(detail, "fetch asset: "+err.Error())
	}

	changed, err := s.videos.ApplyProviderAsset(ctx, row, asset)
	if err != nil {
		return s.failRow(detail, "apply asset state: "+err.Error())
	}
	return s.finishRow(detail, row, changed, "converged to provider state", result)
}

func (s *Service) failRow(detail RowDetail, msg string) RowDetail {
	detail.Error = msg
	detail.OK = false
	s.metrics.ObserveReconcileRow("error")
	return detail
}

func (s *Service) finishRow(detail RowDetail, row *models.Video, changed bool, note string, result *Result) RowDetail {
	detail = refreshDetail(detail, row)
	detail.OK = true
	if changed {
		detail.Note = note
		result.Updated++
		s.metrics.ObserveReconcileRow("updated")
	} else {
		detail.Note = "already up to date"
		s.metrics.ObserveReconcileRow("unchanged")
	}
	return detail
}

func newDetail(row *models.Video) RowDetail {
	return refreshDetail(RowDetail{ID: row.ID.String()}, row)
}

func refreshDetail(detail RowDetail, row *models.Video) RowDetail {
	if row.UploadID != nil {
		detail.UploadID = *row.UploadID
	}
	if row.AssetID != nil {
		detail.AssetID = *row.AssetID
	}
	if row.PlaybackID != nil {
		detail.PlaybackID = *row.PlaybackID
	}
	detail.Status = string(row.Status)
	return detail
}
