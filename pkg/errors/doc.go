// Package errors provides structured error handling with error codes for the
// second-factor service.
//
// This package standardizes error handling across all packages with typed error
// codes, structured error details, and automatic HTTP status code mapping.
//
// # Basic Usage
//
// Creating errors with codes:
//
//	import "github.com/vaultshare/mfa/pkg/errors"
//
//	// Create a simple error
//	err := errors.New(errors.ErrCodeInvalidCode, "passcode rejected")
//
//	// Create error with formatted message
//	err := errors.Newf(errors.ErrCodeInvalidInput, "invalid method: %s", method)
//
//	// Wrap an existing error
//	err := errors.Wrap(dbErr, errors.ErrCodeInternal, "failed to query database")
//
//	// Use convenience constructors
//	err := errors.NotFound("enrollment", userID)
//	err := errors.RateLimited("14m30s")
//
// Inspecting errors:
//
//	if errors.IsCode(err, errors.ErrCodeRateLimited) {
//		retryAfter := errors.GetDetails(err)["retry_after"]
//		...
//	}
//
// Handlers map errors to HTTP responses with MapErrorCodeToHTTPStatus or the
// HTTPStatusCode method; rate-limit errors become 429 with the retry_after
// detail, directive errors become 410 Gone.
package errors
