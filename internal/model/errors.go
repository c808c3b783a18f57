package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidToken indicates authorization failed.
	ErrInvalidToken = errors.New("invalid token")
	// ErrResourceExists indicates the target already exists.
	ErrResourceExists = errors.New("resource exists")
	// ErrResourceNotAvailable indicates the target does not exist or cannot be reached.
	ErrResourceNotAvailable = errors.New("resource not available")
	// ErrQueuePluginMissing is a boot-time error: enqueue mode without a queue backend.
	ErrQueuePluginMissing = errors.New("commands are configured to work with queues, but no queue backend is enabled")
	// ErrInvalidFormat indicates a malformed payload.
	ErrInvalidFormat = errors.New("invalid format")
)

// InvalidTokenError carries the reason of an authorization failure.
type InvalidTokenError struct {
	Token  TokenUUID
	Reason string
}

func (e *InvalidTokenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("invalid token %q", e.Token)
	}
	return fmt.Sprintf("invalid token %q: %s", e.Token, e.Reason)
}

func (e *InvalidTokenError) Is(target error) bool { return target == ErrInvalidToken }

// NewInvalidToken builds an InvalidTokenError.
func NewInvalidToken(token TokenUUID, reason string) error {
	return &InvalidTokenError{Token: token, Reason: reason}
}

// ResourceError names the resource involved in a lifecycle conflict.
type ResourceError struct {
	Kind error
	Ref  RepositoryReference
	Err  error
}

func (e *ResourceError) Error() string {
	msg := fmt.Sprintf("%v: %s", e.Kind, e.Ref.Compose())
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ResourceError) Is(target error) bool { return target == e.Kind }

func (e *ResourceError) Unwrap() error { return e.Err }

// IndexExists reports an index creation conflict.
func IndexExists(ref RepositoryReference) error {
	return &ResourceError{Kind: ErrResourceExists, Ref: ref}
}

// IndexNotAvailable reports a missing or unreachable index.
func IndexNotAvailable(ref RepositoryReference, cause error) error {
	return &ResourceError{Kind: ErrResourceNotAvailable, Ref: ref, Err: cause}
}

// TransportError wraps a failure of an external backend (index store, queue, counters).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Transport wraps err as a TransportError, passing nil through.
func Transport(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// IsTransport reports whether err originates from a backend failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
