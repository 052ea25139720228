// Package errdefs defines the error taxonomy shared by every tenantrag
// component.
//
// Packages declare narrower sentinels that wrap one of these kinds, so callers
// can test either the specific condition or the broad class:
//
//	var ErrCollectionNotFound = fmt.Errorf("collection %w", errdefs.ErrNotFound)
//
//	errors.Is(err, vectorstore.ErrCollectionNotFound) // specific
//	errors.Is(err, errdefs.ErrNotFound)               // class
package errdefs

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates a malformed request or unsupported document.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound indicates an unknown tenant, collection or document.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a duplicate filename or collection name.
	ErrAlreadyExists = errors.New("already exists")

	// ErrEmptyDocument indicates a document with no extractable text.
	ErrEmptyDocument = errors.New("empty document")

	// ErrCountMismatch indicates the embedding provider returned a different
	// number of vectors than texts it was given.
	ErrCountMismatch = errors.New("embedding count mismatch")

	// ErrUpstream indicates a failing or unreachable collaborator
	// (embedding provider, vector store, generative model).
	ErrUpstream = errors.New("upstream failure")

	// ErrInternal is the class of every error that matches no other kind.
	ErrInternal = errors.New("internal error")
)

// kinds is ordered by precedence: an error wrapping several kinds reports
// the first one listed.
var kinds = []error{
	ErrInvalidInput,
	ErrEmptyDocument,
	ErrCountMismatch,
	ErrNotFound,
	ErrAlreadyExists,
	ErrUpstream,
	ErrInternal,
}

// Kind classifies err into one member of the taxonomy.
// A nil error has no kind and returns nil.
func Kind(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrUpstream
	}
	return ErrInternal
}

// Upstream wraps a collaborator failure as ErrUpstream, keeping the cause
// reachable through errors.Is and errors.As. Errors that already carry a
// taxonomy kind other than ErrInternal are returned unchanged.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if k := Kind(err); k != ErrInternal && k != ErrUpstream {
		return err
	}
	if errors.Is(err, ErrUpstream) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// InvalidInput returns an ErrInvalidInput with a formatted message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// IsRetryable reports whether a caller may retry the failed operation.
// Only upstream failures (including timeouts) qualify.
func IsRetryable(err error) bool {
	return Kind(err) == ErrUpstream
}
