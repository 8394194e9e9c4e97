package signing

import (
	"crypto/rsa"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kravtofly/svr-backend/pkg/config"
	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
)

// PlaybackAudience is the provider's audience claim for video playback.
const PlaybackAudience = "v"

var tokenSigningMethod = jwt.SigningMethodRS256

// Signer holds the parsed private key and its provider-assigned key id. It is
// constructed once at boot and read concurrently without synchronization; the
// key never changes at runtime.
type Signer struct {
	key   *rsa.PrivateKey
	keyID string
}

// NewSigner loads the configured private key and binds it to the key id the
// provider uses to select the verification key.
func NewSigner(cfg config.MuxConfig) (*Signer, error) {
	keyID := strings.TrimSpace(cfg.SigningKeyID)
	if keyID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signing key id is required")
	}
	key, err := LoadPrivateKey(cfg.SigningKey)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, keyID: keyID}, nil
}

// KeyID returns the provider-assigned signing key identifier.
func (s *Signer) KeyID() string {
	if s == nil {
		return ""
	}
	return s.keyID
}

// PublicKey exposes the verification half of the key pair; used by tests.
func (s *Signer) PublicKey() *rsa.PublicKey {
	if s == nil || s.key == nil {
		return nil
	}
	return &s.key.PublicKey
}

// SignPlaybackToken mints an RS256 JWT authorizing playback of exactly one
// handle: sub = playback id, aud = "v", exp = now + ttl. The kid header must
// always carry the provider key id or the token verifies against nothing.
func (s *Signer) SignPlaybackToken(playbackID string, ttl time.Duration, now time.Time) (string, error) {
	if s == nil || s.key == nil {
		return "", pkgerrors.New(pkgerrors.CodeInternal, "signer is not initialized")
	}
	if strings.TrimSpace(playbackID) == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "playback id is required")
	}
	if ttl <= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "token ttl must be positive")
	}

	claims := jwt.RegisteredClaims{
		Subject:   playbackID,
		Audience:  jwt.ClaimStrings{PlaybackAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(tokenSigningMethod, claims)
	token.Header["kid"] = s.keyID

	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "sign playback token")
	}
	return signed, nil
}
