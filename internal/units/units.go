// Package units holds the built-in units of work the CLI can run.
package units

import (
	"slices"

	"go.uber.org/zap"

	"shardwork/internal/errors"
	"shardwork/internal/storage"
	"shardwork/internal/worker"
)

type factory func(fs storage.FileSystem, logger *zap.Logger) worker.Unit

var registry = map[string]factory{
	CopyKind: func(fs storage.FileSystem, logger *zap.Logger) worker.Unit {
		return NewCopy(fs, logger)
	},
	CharLengthKind: func(fs storage.FileSystem, logger *zap.Logger) worker.Unit {
		return NewCharLength(fs, logger)
	},
}

// New builds the unit registered under kind
func New(kind string, fs storage.FileSystem, logger *zap.Logger) (worker.Unit, error) {
	f, ok := registry[kind]
	if !ok {
		return nil, errors.WithHintf(
			errors.Configf("unknown unit %q", kind),
			"available units: %v", Kinds(),
		)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return f(fs, logger.With(zap.String("unit", kind))), nil
}

// Kinds lists the registered unit names, sorted
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

func stringArg(kwargs map[string]any, key, def string) (string, error) {
	v, ok := kwargs[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Newf("argument %q must be a string, got %T", key, v)
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}
