package signing

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"

	pkgerrors "github.com/kravtofly/svr-backend/pkg/errors"
)

// LoadPrivateKey parses the playback signing key from configuration. The key
// has historically been pasted into env vars in several shapes: raw PEM,
// base64-wrapped PEM, PKCS#8 or legacy PKCS#1 blocks, with literal "\n"
// sequences instead of newlines. All of them must normalize to one usable
// RSA key; anything else fails with an error an operator can act on.
func LoadPrivateKey(raw string) (*rsa.PrivateKey, error) {
	key := strings.TrimSpace(raw)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "signing key is empty")
	}

	if !strings.Contains(key, "-----BEGIN") {
		if decoded, err := base64.StdEncoding.DecodeString(key); err == nil {
			key = strings.TrimSpace(string(decoded))
		}
	}

	key = normalizePEM(key)

	block, _ := pem.Decode([]byte(key))
	if block == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal,
			"unrecognized signing key format: expected a PEM private key (raw or base64 encoded)")
	}

	switch block.Type {
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse PKCS#8 signing key")
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "signing key is not an RSA key")
		}
		return rsaKey, nil
	case "RSA PRIVATE KEY":
		rsaKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse PKCS#1 signing key")
		}
		return rsaKey, nil
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal,
			"unrecognized signing key format: unsupported PEM block \""+block.Type+"\"")
	}
}

// normalizePEM repairs the damage env-var transport does to PEM text:
// escaped newlines and underscore-mangled header words.
func normalizePEM(key string) string {
	replacer := strings.NewReplacer(
		"BEGIN_PRIVATE_KEY", "BEGIN PRIVATE KEY",
		"END_PRIVATE_KEY", "END PRIVATE KEY",
		"BEGIN_RSA_PRIVATE_KEY", "BEGIN RSA PRIVATE KEY",
		"END_RSA_PRIVATE_KEY", "END RSA PRIVATE KEY",
	)
	key = replacer.Replace(key)
	if strings.Contains(key, `\n`) {
		key = strings.ReplaceAll(key, `\n`, "\n")
	}
	return key
}
