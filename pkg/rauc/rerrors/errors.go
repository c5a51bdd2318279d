// Package rerrors defines the error classes shared across the update core.
// Callers branch on failure kind with errors.Is; sites wrap these with
// fmt.Errorf("...: %w", ...) to add context.
package rerrors

import "errors"

var (
	// Format errors
	ErrManifestFormat = errors.New("invalid manifest format")
	ErrConfigFormat   = errors.New("invalid system config format")
	ErrStatusFormat   = errors.New("invalid slot status format")

	// Integrity errors
	ErrNoChecksum       = errors.New("no checksum to verify")
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// Security errors
	ErrMissingSignature = errors.New("missing signature")
	ErrSignatureInvalid = errors.New("invalid signature")

	// Caller contract errors
	ErrContractViolation = errors.New("signing credentials not configured")
)
