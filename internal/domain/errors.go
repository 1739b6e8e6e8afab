package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies provider failures by how the caller should react.
type ErrorKind int

const (
	// ErrKindPermanent is a protocol-level failure (malformed response,
	// unknown symbol). Never retried.
	ErrKindPermanent ErrorKind = iota
	// ErrKindTransient is a connection reset, timeout or server-busy error.
	// Retried once after a short fixed delay.
	ErrKindTransient
	// ErrKindRateLimited means the request budget was exceeded. Retried after
	// a mandatory cooldown, a bounded number of times.
	ErrKindRateLimited
	// ErrKindConnectionLost is a dead stream transport. Not retried in place;
	// the supervisor performs a full reconnect.
	ErrKindConnectionLost
)

func (k ErrorKind) String() string {
	switch k {
	case ErrKindTransient:
		return "transient"
	case ErrKindRateLimited:
		return "rate_limited"
	case ErrKindConnectionLost:
		return "connection_lost"
	default:
		return "permanent"
	}
}

// ProviderError is a classified failure from the market data provider.
type ProviderError struct {
	Kind ErrorKind
	Op   string // request that failed, e.g. "get_ticker"
	Code string // provider error code, if any
	Err  error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code %s): %v", e.Op, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// KindOf extracts the ErrorKind from err, defaulting to permanent for
// unclassified errors.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ErrKindPermanent
}
