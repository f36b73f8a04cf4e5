// Package errors provides error types and handling for asset publishing
// operations.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Error represents an asset publishing error with context about the operation
// and the asset that failed. It wraps the underlying error for error chaining.
type Error struct {
	// Op is the operation that failed (e.g., "build", "publish", "check")
	Op string

	// AssetID is the manifest entry identifier (if applicable)
	AssetID string

	// Err is the underlying error
	Err error
}

// Error implements the error interface by providing a formatted error message.
func (e *Error) Error() string {
	if e.AssetID != "" {
		return fmt.Sprintf("assets.%s %s: %v", e.Op, e.AssetID, e.Err)
	}
	return fmt.Sprintf("assets.%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error chaining support.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithAssetID adds asset context to an existing error.
func (e *Error) WithAssetID(id string) *Error {
	e.AssetID = id
	return e
}

// NewError creates a new Error with the given operation and underlying error.
func NewError(op string, err error) *Error {
	return &Error{
		Op:  op,
		Err: err,
	}
}

// Sentinel errors for publishing failures. These can be used with errors.Is()
// for error checking.
var (
	// ErrAborted indicates that publishing was cancelled cooperatively
	ErrAborted = errors.New("assets: operation aborted")

	// ErrTaskCancelled indicates that a queued task was cancelled before it started
	ErrTaskCancelled = errors.New("assets: task has been cancelled")

	// ErrUnexpectedBucketOwner indicates that a destination bucket no longer
	// belongs to the expected account
	ErrUnexpectedBucketOwner = errors.New("assets: unexpected bucket owner detected")

	// ErrBucketMissing indicates that a destination bucket does not exist
	ErrBucketMissing = errors.New("assets: destination bucket does not exist")

	// ErrBucketNoAccess indicates that a destination bucket exists but is not accessible
	ErrBucketNoAccess = errors.New("assets: no access to destination bucket")

	// ErrRepositoryMissing indicates that a destination repository could not be resolved
	ErrRepositoryMissing = errors.New("assets: destination repository not found")

	// ErrManifestNotFound indicates that no manifest file exists at the given path
	ErrManifestNotFound = errors.New("assets: manifest not found")

	// ErrManifestInvalid indicates that the manifest file could not be parsed
	ErrManifestInvalid = errors.New("assets: manifest invalid")

	// ErrUnknownAssetKind indicates a manifest entry of an unsupported kind
	ErrUnknownAssetKind = errors.New("assets: unknown asset kind")
)

// IsAborted checks if an error indicates cooperative cancellation.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}

// PublishError aggregates all per-asset failures of one publishing pass.
// It is returned by Publish when failures occurred and failing on error is
// enabled.
type PublishError struct {
	// Messages holds one failure message per failed asset, in completion order
	Messages []string
}

// Error implements the error interface.
func (e *PublishError) Error() string {
	return fmt.Sprintf("error publishing: %s", strings.Join(e.Messages, ", "))
}
