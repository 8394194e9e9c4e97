package mux

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
)

// SignatureHeader is the header the provider signs deliveries with.
const SignatureHeader = "Mux-Signature"

// DefaultSignatureTolerance bounds how far a delivery timestamp may drift
// from the receiver's clock. Deliveries outside the window are replays.
const DefaultSignatureTolerance = 300 * time.Second

// VerifyWebhookSignature authenticates a raw delivery against the shared
// secret. The header format is "t=<unix>,v1=<hex hmac>", and the signed
// message is "<t>.<raw body>". Malformed input is a verification failure,
// never a panic; the comparison is constant time.
func VerifyWebhookSignature(payload []byte, header, secret string, now time.Time) error {
	return VerifyWebhookSignatureTolerance(payload, header, secret, now, DefaultSignatureTolerance)
}

// VerifyWebhookSignatureTolerance is VerifyWebhookSignature with an explicit
// replay window, used by tests to probe the boundary.
func VerifyWebhookSignatureTolerance(payload []byte, header, secret string, now time.Time, tolerance time.Duration) error {
	if secret == "" {
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook secret is not configured")
	}

	timestamp, signature, err := parseSignatureHeader(header)
	if err != nil {
		return err
	}

	drift := now.Unix() - timestamp
	if drift < 0 {
		drift = -drift
	}
	if drift > int64(tolerance/time.Second) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook timestamp outside tolerance")
	}

	expected := computeSignature(payload, timestamp, secret)
	provided, err := hex.DecodeString(signature)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature is not valid hex")
	}
	if !hmac.Equal(expected, provided) {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature mismatch")
	}
	return nil
}

// SignPayload produces a header value for the given payload; used by tests
// and local tooling to forge authentic-looking deliveries.
func SignPayload(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(computeSignature(payload, ts, secret)))
}

func computeSignature(payload []byte, timestamp int64, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return mac.Sum(nil)
}

func parseSignatureHeader(header string) (int64, string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature missing")
	}

	var rawTimestamp, signature string
	for _, pair := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			rawTimestamp = value
		case "v1":
			signature = value
		}
	}
	if rawTimestamp == "" || signature == "" {
		return 0, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook signature malformed")
	}

	timestamp, err := strconv.ParseInt(rawTimestamp, 10, 64)
	if err != nil {
		return 0, "", pkgerrors.New(pkgerrors.CodeUnauthorized, "webhook timestamp malformed")
	}
	return timestamp, signature, nil
}
