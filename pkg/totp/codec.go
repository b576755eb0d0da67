package totp

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

// Secrets are exchanged in unpadded uppercase base32, the form authenticator
// apps expect in otpauth URIs.
var secretEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodeSecret encodes raw secret bytes as unpadded uppercase base32
func EncodeSecret(raw []byte) string {
	return secretEncoding.EncodeToString(raw)
}

// DecodeSecret decodes a base32 secret, tolerating lowercase, spaces, and
// trailing padding some issuers include
func DecodeSecret(secret string) ([]byte, error) {
	normalized := strings.ToUpper(strings.ReplaceAll(secret, " ", ""))
	normalized = strings.TrimRight(normalized, "=")

	raw, err := secretEncoding.DecodeString(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base32 secret: %w", err)
	}
	return raw, nil
}

func randomBytes(n int) ([]byte, error) {
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return nil, err
	}
	return raw, nil
}
