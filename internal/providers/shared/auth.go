package shared

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrMissingSignature  = errors.New("missing webhook signature header")
	ErrMalformedHeader   = errors.New("malformed webhook signature header")
	ErrSignatureMismatch = errors.New("webhook signature mismatch")
)

// VerifySHA256Signature checks an X-Hub-Signature-256 style header
// (`sha256=<hex>`) against the raw body under the primary secret and,
// when configured, a secondary secret kept alive during rotation.
// A secondary equal to the primary is skipped.
func VerifySHA256Signature(body []byte, header, primary, secondary string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}
	parts := strings.SplitN(header, "=", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "sha256") {
		return ErrMalformedHeader
	}
	provided, err := hex.DecodeString(strings.TrimSpace(parts[1]))
	if err != nil {
		return ErrMalformedHeader
	}
	if matchesSecret(body, provided, primary) {
		return nil
	}
	if secondary != "" && secondary != primary && matchesSecret(body, provided, secondary) {
		return nil
	}
	return ErrSignatureMismatch
}

func matchesSecret(body, provided []byte, secret string) bool {
	if secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hmac.Equal(mac.Sum(nil), provided)
}
