package model

import (
	"context"
	"errors"
)

// ErrorKind classifies failures from the remote collaborators
// (summarizer, mailbox, delivery) into a small taxonomy shared by the
// scheduler and the dispatcher.
type ErrorKind int

const (
	// KindUnknown covers unrecognized errors. It is treated as
	// transient so unclassified failures never silently drop work.
	KindUnknown ErrorKind = iota

	// KindAuth means invalid or expired credentials or configuration.
	KindAuth

	// KindNotFound means a referenced resource or model is missing.
	KindNotFound

	// KindRateLimited means the remote asked us to back off.
	KindRateLimited

	// KindNetworkTimeout means the call timed out or the connection
	// was lost mid-flight.
	KindNetworkTimeout
)

// String returns the snake_case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindNetworkTimeout:
		return "network_timeout"
	default:
		return "unknown"
	}
}

// Fatal reports whether a failure of this kind should abort the
// remaining batch rather than being isolated to one item.
func (k ErrorKind) Fatal() bool {
	return k == KindAuth || k == KindNotFound
}

// KindedError is implemented by collaborator errors that carry an
// ErrorKind classification.
type KindedError interface {
	error
	ErrorKind() ErrorKind
}

// ClassifyError extracts the ErrorKind from err. Collaborator errors
// implementing KindedError report their own kind; context deadline and
// cancellation errors map to a network timeout; everything else is
// unknown (transient).
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var kinded KindedError
	if errors.As(err, &kinded) {
		return kinded.ErrorKind()
	}

	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return KindNetworkTimeout
	}

	return KindUnknown
}
