package session

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"time"
)

// ErrUnknownProvider is returned when no adapter matches a provider tag
var ErrUnknownProvider = errors.New("unknown provider")

// Adapter encapsulates refresh and authorization behavior for one identity provider
type Adapter interface {
	// Provider returns the tag this adapter serves
	Provider() Provider

	// Enabled reports whether the provider's feature flag is on
	Enabled() bool

	// CheckName names the upstream authorization check, or "" when the provider
	// has no upstream authorization concept
	CheckName() string

	// NeedsRefresh reports whether the record's access token must be refreshed at now
	NeedsRefresh(rec *CredentialRecord, now time.Time) bool

	// Refresh obtains new credential material. It must not modify rec.
	Refresh(ctx context.Context, rec *CredentialRecord, now time.Time) (TokenSet, error)

	// CheckAuthorization re-verifies the principal's authorization
	CheckAuthorization(ctx context.Context, rec *CredentialRecord, in Input) Decision
}

// Origin describes where a request came from on the network
type Origin struct {
	RemoteAddr netip.Addr
	Proxied    bool
}

// IsLocal reports whether the request arrived directly from a loopback or private address
func (o Origin) IsLocal() bool {
	addr := o.RemoteAddr.Unmap()
	if !addr.IsValid() || o.Proxied {
		return false
	}
	return addr.IsLoopback() || addr.IsPrivate()
}

// Input carries the per-request parameters of a validation
type Input struct {
	Now    time.Time
	Origin Origin
}

// DecisionKind classifies the result of an authorization check
type DecisionKind int

const (
	DecisionGranted DecisionKind = iota
	DecisionDenied
	DecisionTerminate
	DecisionUnavailable
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionGranted:
		return "granted"
	case DecisionDenied:
		return "denied"
	case DecisionTerminate:
		return "terminate"
	case DecisionUnavailable:
		return "unavailable"
	default:
		return fmt.Sprintf("DecisionKind(%d)", int(k))
	}
}

// Decision is the outcome of Adapter.CheckAuthorization
type Decision struct {
	Kind   DecisionKind
	Facts  AuthorizationFacts
	Reason Reason

	// Err and Fallback are set for DecisionUnavailable. Fallback marks failures
	// for which a stale cache entry may stand in.
	Err      error
	Fallback bool
}

// Granted returns a successful decision
func Granted(facts AuthorizationFacts) Decision {
	return Decision{Kind: DecisionGranted, Facts: facts}
}

// Denied returns a non-destructive denial
func Denied(reason Reason) Decision {
	return Decision{Kind: DecisionDenied, Reason: reason}
}

// Terminate returns a denial that must end the session
func Terminate(reason Reason) Decision {
	return Decision{Kind: DecisionTerminate, Reason: reason}
}

// Unavailable returns a decision for a check that could not complete
func Unavailable(check string, err error) Decision {
	return Decision{
		Kind:     DecisionUnavailable,
		Reason:   FetchFailedReason(check),
		Err:      err,
		Fallback: IsTransient(err),
	}
}

// ErrorClass tells the validator whether a failure may be retried on a later request
type ErrorClass int

const (
	Transient ErrorClass = iota
	Permanent
)

func (c ErrorClass) String() string {
	if c == Permanent {
		return "permanent"
	}
	return "transient"
}

// AdapterError is a classified provider failure
type AdapterError struct {
	Provider    Provider
	Op          string
	Class       ErrorClass
	StatusCode  int
	RateLimited bool
	Err         error
}

func (e *AdapterError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is safe to retry on the next request. Unclassified
// errors count as transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae.Class == Transient
	}
	return true
}

// IsRateLimited reports whether err came from an upstream rate-limit response
func IsRateLimited(err error) bool {
	var ae *AdapterError
	return errors.As(err, &ae) && ae.RateLimited
}
