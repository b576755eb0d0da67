package devicetrust

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
)

// FingerprintData contains the components used to generate a device fingerprint
type FingerprintData struct {
	UserAgent     string
	AcceptHeaders string
	Timezone      string
	DeviceID      string // Explicit client-supplied identifier, wins when present
}

// GenerateFingerprint creates a stable fingerprint from the provided data.
// When an explicit device ID is present it is used alone; otherwise the
// fingerprint is a SHA-256 hash over the header combination.
func GenerateFingerprint(data FingerprintData) string {
	var combined string
	if data.DeviceID != "" {
		combined = data.DeviceID
	} else {
		combined = fmt.Sprintf("%s|%s|%s",
			data.UserAgent,
			data.AcceptHeaders,
			data.Timezone,
		)
	}

	hash := sha256.Sum256([]byte(combined))
	return hex.EncodeToString(hash[:])
}

// ExtractFingerprintDataFromRequest extracts fingerprint data from an HTTP request
func ExtractFingerprintDataFromRequest(r *http.Request) FingerprintData {
	acceptHeaders := r.Header.Get("Accept") + "|" +
		r.Header.Get("Accept-Language") + "|" +
		r.Header.Get("Accept-Encoding")

	return FingerprintData{
		UserAgent:     r.UserAgent(),
		AcceptHeaders: acceptHeaders,
		Timezone:      r.Header.Get("Timezone"),
		DeviceID:      r.Header.Get("X-Device-ID"),
	}
}

// GetRequestFingerprint extracts data from a request and generates a
// fingerprint in one step
func GetRequestFingerprint(r *http.Request) string {
	return GenerateFingerprint(ExtractFingerprintDataFromRequest(r))
}
