// Package memerr defines the error taxonomy shared by every layer of the
// memory engine. Every error is an *Error whose Kind field classifies it,
// so callers compare kinds (KindOf, errors.As/errors.Is) rather than
// matching strings.
package memerr

import "fmt"

// Kind classifies a memory-engine error for logging and retry decisions.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindInvalidState   Kind = "InvalidState"
	KindNotFound       Kind = "NotFound"
	KindCapacity       Kind = "Capacity"
	KindQuality        Kind = "Quality"
	KindUnavailable    Kind = "StorageUnavailable"
	KindCommitFailed   Kind = "CommitFailed"
	KindDataTooLarge   Kind = "DataTooLarge"
	KindUnsupportedVer Kind = "UnsupportedVersion"
	KindDeserialize    Kind = "DeserializationError"
	KindCancelled      Kind = "Cancelled"
	KindUnknown        Kind = "Unknown"
)

// Error is the concrete error type carried through the engine. Operation
// and EpisodeID are optional context used for structured logging (§7).
type Error struct {
	Kind      Kind
	Operation string
	EpisodeID string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Operation, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Operation, e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, memerr.New(memerr.KindUnknown, "", "", nil))
// style comparisons: two *Error values match when their Kinds are equal.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func New(kind Kind, operation, episodeID string, cause error) *Error {
	return &Error{Kind: kind, Operation: operation, EpisodeID: episodeID, Cause: cause}
}

func Validation(op string, cause error) error   { return New(KindValidation, op, "", cause) }
func InvalidState(op, id string) error          { return New(KindInvalidState, op, id, nil) }
func NotFound(op, id string) error              { return New(KindNotFound, op, id, nil) }
func Capacity(op string, cause error) error     { return New(KindCapacity, op, "", cause) }
func Quality(op, id string) error               { return New(KindQuality, op, id, nil) }
func Unavailable(op string, cause error) error  { return New(KindUnavailable, op, "", cause) }
func CommitFailed(op, id string, cause error) error {
	return New(KindCommitFailed, op, id, cause)
}
func DataTooLarge(op string, cause error) error { return New(KindDataTooLarge, op, "", cause) }
func UnsupportedVersion(op string, got, max int) error {
	return New(KindUnsupportedVer, op, "", fmt.Errorf("schema version %d > supported %d", got, max))
}
func Deserialize(op string, cause error) error { return New(KindDeserialize, op, "", cause) }
func Cancelled(op, id string) error            { return New(KindCancelled, op, id, nil) }
func Unknown(op string, cause error) error     { return New(KindUnknown, op, "", cause) }

// KindOf extracts the Kind of err if it (or something it wraps) is an *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if ok := As(err, &e); ok {
		return e.Kind, true
	}
	return "", false
}

// As is a tiny local shim so callers don't need to import errors for the
// common case; it mirrors errors.As for *Error specifically.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Retriable reports whether an error kind should be retried with backoff
// per §7's propagation policy.
func Retriable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	switch k {
	case KindUnavailable:
		return true
	default:
		return false
	}
}
