// Package errors provides error handling for shardwork.
//
// It re-exports github.com/cockroachdb/errors and adds the failure taxonomy the
// engine relies on:
//
//   - configuration errors, marked with ErrConfig and raised before any work starts
//   - failure kinds, attached with MarkKind and matched against a retry policy
//
// Usage:
//
//	if len(sources) == 0 {
//	    return errors.Configf("at least one source prefix must be provided")
//	}
//
//	// inside a unit of work
//	if err := fetch(); err != nil {
//	    return errors.MarkKind(errors.Wrap(err, "fetching shard"), errors.Transient)
//	}
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint     = crdb.WithHint
	WithHintf    = crdb.WithHintf
	WithDetail   = crdb.WithDetail
	WithDetailf  = crdb.WithDetailf
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Mark      = crdb.Mark
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// ErrConfig marks configuration errors. They are fatal, never retried, and
// always raised before any worker is started.
var ErrConfig = New("configuration error")

// ErrNoWork is returned when resolution yields nothing to process and nothing
// was skipped because it had already been completed.
var ErrNoWork = Mark(New("no files found to process"), ErrConfig)

// Configf creates a configuration error with a formatted message.
func Configf(format string, args ...interface{}) error {
	return Mark(Newf(format, args...), ErrConfig)
}

// WrapConfig marks err as a configuration error and adds context.
func WrapConfig(err error, msg string) error {
	if err == nil {
		return nil
	}
	return Mark(Wrap(err, msg), ErrConfig)
}

// IsConfig reports whether err is or wraps a configuration error.
func IsConfig(err error) bool {
	return err != nil && Is(err, ErrConfig)
}
