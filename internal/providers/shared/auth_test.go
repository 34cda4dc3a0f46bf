package shared

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"
)

func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySHA256Signature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account","entry":[]}`)

	if err := VerifySHA256Signature(body, signBody(body, "primary"), "primary", ""); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}

	// Flipping a single byte of the body must break the match.
	tampered := append([]byte{}, body...)
	tampered[0] ^= 0x01
	if err := VerifySHA256Signature(tampered, signBody(body, "primary"), "primary", ""); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("tampered body got %v want ErrSignatureMismatch", err)
	}
}

func TestVerifySHA256SignatureSecondarySecret(t *testing.T) {
	body := []byte(`{"object":"page"}`)

	if err := VerifySHA256Signature(body, signBody(body, "old-secret"), "new-secret", "old-secret"); err != nil {
		t.Fatalf("secondary secret rejected during rotation: %v", err)
	}
	if err := VerifySHA256Signature(body, signBody(body, "new-secret"), "new-secret", "old-secret"); err != nil {
		t.Fatalf("primary secret rejected during rotation: %v", err)
	}
	if err := VerifySHA256Signature(body, signBody(body, "stale"), "new-secret", "old-secret"); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("unknown secret got %v want ErrSignatureMismatch", err)
	}
}

func TestVerifySHA256SignatureHeaderShapes(t *testing.T) {
	body := []byte(`{}`)
	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing", "", ErrMissingSignature},
		{"whitespace only", "   ", ErrMissingSignature},
		{"no scheme", "deadbeef", ErrMalformedHeader},
		{"wrong scheme", "sha1=deadbeef", ErrMalformedHeader},
		{"bad hex", "sha256=zzzz", ErrMalformedHeader},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifySHA256Signature(body, tt.header, "secret", ""); !errors.Is(err, tt.want) {
				t.Fatalf("got %v want %v", err, tt.want)
			}
		})
	}
}

func TestVerifySHA256SignatureSchemeCaseInsensitive(t *testing.T) {
	body := []byte(`{"object":"instagram"}`)
	header := "SHA256=" + signBody(body, "secret")[len("sha256="):]
	if err := VerifySHA256Signature(body, header, "secret", ""); err != nil {
		t.Fatalf("uppercase scheme rejected: %v", err)
	}
}
