package util

import "errors"

// Error taxonomy shared by the organize and restore pipelines.
// Concrete error types wrap or match one of these so callers can use errors.Is.
var (
	// ErrValidation indicates an unreadable file or a missing required path
	ErrValidation = errors.New("validation failed")

	// ErrMetadata indicates tags that could not be parsed
	ErrMetadata = errors.New("metadata error")

	// ErrCollision indicates a track-slot or destination conflict
	ErrCollision = errors.New("collision")

	// ErrPersistence indicates a state store write failure
	ErrPersistence = errors.New("persistence error")

	// ErrIO indicates a move, copy or read failure
	ErrIO = errors.New("i/o error")

	// ErrInterrupted indicates the run was cancelled by a signal
	ErrInterrupted = errors.New("interrupted")

	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrSchemaMismatch indicates a state database written by a newer version
	ErrSchemaMismatch = errors.New("schema mismatch")
)

// Reason returns a short machine-friendly code for an error, used in
// per-unit results and event logs.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrMetadata):
		return "metadata"
	case errors.Is(err, ErrCollision):
		return "collision"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrInterrupted):
		return "interrupted"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "error"
	}
}
