package playback

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kravtofly/svr-backend/internal/videos"
	"github.com/kravtofly/svr-backend/pkg/config"
	"github.com/kravtofly/svr-backend/pkg/enums"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
	"github.com/kravtofly/svr-backend/pkg/logger"
	"github.com/kravtofly/svr-backend/pkg/signing"
)

// SignRequest asks for a viewing grant on one playback handle. TTL of zero
// means "use the configured default".
type SignRequest struct {
	PlaybackID string
	TTL        time.Duration
}

// SignResponse carries the minted token and the ready-to-use stream URL.
type SignResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type ServiceParams struct {
	Repo   *videos.Repository
	Signer *signing.Signer
	Config config.PlaybackConfig
	Logger *logger.Logger
}

// Service mints short-lived playback tokens. A handle that resolves to a
// local row is gated on the row being ready; handles the store has never
// seen are signed as-is, since the provider is the authority on their
// existence.
type Service struct {
	repo   *videos.Repository
	signer *signing.Signer
	cfg    config.PlaybackConfig
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "video repo required")
	}
	if params.Signer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "token signer required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	cfg := params.Config
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.MaxTTL <= 0 {
		cfg.MaxTTL = 12 * time.Hour
	}
	if cfg.StreamBase == "" {
		cfg.StreamBase = "https://stream.mux.com"
	}
	return &Service{
		repo:   params.Repo,
		signer: params.Signer,
		cfg:    cfg,
		logg:   params.Logger,
		now:    time.Now,
	}, nil
}

// Sign validates the request, applies the ready gate, and mints the token.
func (s *Service) Sign(ctx context.Context, req SignRequest) (*SignResponse, error) {
	playbackID := strings.TrimSpace(req.PlaybackID)
	if playbackID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "playback id is required")
	}

	ttl := req.TTL
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	if ttl > s.cfg.MaxTTL {
		ttl = s.cfg.MaxTTL
	}

	row, err := s.repo.FindByPlaybackID(ctx, playbackID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load video by playback id")
	}
	if row != nil && row.Status != enums.VideoStatusReady {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "video is not ready for playback").
			WithDetails(map[string]any{"status": string(row.Status)})
	}

	token, err := s.signer.SignPlaybackToken(playbackID, ttl, s.now())
	if err != nil {
		return nil, err
	}

	return &SignResponse{
		Token: token,
		URL:   s.streamURL(playbackID, token),
	}, nil
}

func (s *Service) streamURL(playbackID, token string) string {
	base := strings.TrimRight(s.cfg.StreamBase, "/")
	return fmt.Sprintf("%s/%s.m3u8?token=%s", base, url.PathEscape(playbackID), url.QueryEscape(token))
}
