package errors

import (
	"context"
	"slices"
	"strings"
)

// Kind names a class of failure. A retry policy lists the kinds it retries;
// errors without a kind are never retried.
type Kind string

const (
	// Transient covers conditions expected to clear on their own, such as
	// network hiccups or object store 5xx responses.
	Transient Kind = "transient"
	// Panic is attached to failures recovered from a crashing unit of work.
	Panic Kind = "panic"
)

// DefaultRetryable is the retryable set used when a policy declares none.
var DefaultRetryable = []Kind{Transient}

type kindError struct {
	kind  Kind
	cause error
}

func (e *kindError) Error() string { return e.cause.Error() }
func (e *kindError) Unwrap() error { return e.cause }

// MarkKind attaches kind k to err. The outermost kind wins when several are attached.
func MarkKind(err error, k Kind) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: k, cause: err}
}

// KindOf returns the kind attached to err, or "" if none is.
func KindOf(err error) Kind {
	var ke *kindError
	if As(err, &ke) {
		return ke.kind
	}
	return ""
}

// IsRetryable reports whether err carries one of the given kinds.
// Context cancellation and deadline errors are never retryable.
func IsRetryable(err error, kinds []Kind) bool {
	if err == nil {
		return false
	}
	if Is(err, context.Canceled) || Is(err, context.DeadlineExceeded) {
		return false
	}
	k := KindOf(err)
	return k != "" && slices.Contains(kinds, k)
}

// ParseKinds converts kind names to Kinds, trimming blanks and dropping duplicates.
func ParseKinds(names []string) []Kind {
	kinds := make([]Kind, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || slices.Contains(kinds, Kind(n)) {
			continue
		}
		kinds = append(kinds, Kind(n))
	}
	return kinds
}

// KindName returns the kind of err for logging, "none" if it has no kind.
func KindName(err error) string {
	if k := KindOf(err); k != "" {
		return string(k)
	}
	return "none"
}
