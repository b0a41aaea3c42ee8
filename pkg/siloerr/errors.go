// Package siloerr defines the error-kind taxonomy that silo's public
// contract distinguishes. Callers should match on these with errors.Is;
// the concrete wrapped errors carry additional context (the offending
// SQL template or a file path; bind parameter values and their count
// are not attached) that is not part of the contract and may change
// between versions.
package siloerr

import "errors"

var (
	// ErrBusyTimeout means the backend could not acquire a write lock
	// within the configured busy timeout.
	ErrBusyTimeout = errors.New("silo: busy timeout acquiring write lock")

	// ErrIoFailure covers any other backend failure on open, execute, or
	// commit.
	ErrIoFailure = errors.New("silo: io failure")

	// ErrSchemaDropFailed means a DropContainer call failed. It is
	// surfaced to the caller but treated as non-fatal upstream.
	ErrSchemaDropFailed = errors.New("silo: drop container failed")

	// ErrDecodeRefused means the codec saw an unknown format
	// discriminator or a corrupt payload. The affected row is skipped; it
	// will be absent from a map result rather than cause the whole query
	// to fail.
	ErrDecodeRefused = errors.New("silo: decode refused")

	// ErrIllegalCopy means a cross-file copy's source and destination
	// coincide.
	ErrIllegalCopy = errors.New("silo: illegal copy: source and destination coincide")

	// ErrIntegerOverflowOnKid means the backend's primary-key space is
	// exhausted. Unreachable in practice, defined for completeness.
	ErrIntegerOverflowOnKid = errors.New("silo: kid space exhausted")
)
