package config

import (
	"maps"
	"slices"

	"shardwork/internal/errors"
)

// Merge combines two processors of the same unit into one that runs the
// groups of both. a's seed wins; the rest follows the most permissive or
// most conservative choice per option.
func Merge(a, b Processor) (Processor, error) {
	if a.Unit != b.Unit {
		return Processor{}, errors.Configf("cannot merge processors of different units: %q and %q", a.Unit, b.Unit)
	}

	a.Normalize()
	b.Normalize()

	out := Processor{
		Unit:         a.Unit,
		Sources:      concat(a.Sources, b.Sources),
		Destinations: concat(a.Destinations, b.Destinations),
		Metadata:     concat(a.Metadata, b.Metadata),
		Kwargs:       concatKwargs(a.Kwargs, b.Kwargs),

		Workers:        max(a.Workers, b.Workers),
		Debug:          a.Debug || b.Debug,
		Seed:           a.Seed,
		BatchSize:      max(a.BatchSize, b.BatchSize),
		ReportEvery:    max(a.ReportEvery, b.ReportEvery),
		ReportInterval: max(a.ReportInterval, b.ReportInterval),

		IgnoreExisting: a.IgnoreExisting || b.IgnoreExisting,
		SkipSourceGlob: a.SkipSourceGlob || b.SkipSourceGlob,
		Shuffle:        a.Shuffle || b.Shuffle,
		Include:        canonicalSet(concat(a.Include, b.Include)),
		Exclude:        canonicalSet(concat(a.Exclude, b.Exclude)),
		Regex:          mergeRegex(a.Regex, b.Regex),

		Retry: Retry{
			MaxTries:        min(a.Retry.MaxTries, b.Retry.MaxTries),
			MaxTime:         minBound(a.Retry.MaxTime, b.Retry.MaxTime),
			InitialInterval: max(a.Retry.InitialInterval, b.Retry.InitialInterval),
			Retryable:       canonicalSet(concat(a.Retry.Retryable, b.Retry.Retryable)),
		},
	}
	return out, nil
}

// MergeAll folds Merge over ps in order
func MergeAll(ps ...Processor) (Processor, error) {
	if len(ps) == 0 {
		return Processor{}, errors.Configf("no processors to merge")
	}
	out := ps[0]
	out.Normalize()
	for _, p := range ps[1:] {
		var err error
		if out, err = Merge(out, p); err != nil {
			return Processor{}, err
		}
	}
	return out, nil
}

func concat[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	return append(append(out, a...), b...)
}

func concatKwargs(a, b []map[string]any) []map[string]any {
	out := make([]map[string]any, 0, len(a)+len(b))
	for _, kw := range slices.Concat(a, b) {
		out = append(out, maps.Clone(kw))
	}
	return out
}

func mergeRegex(a, b string) string {
	switch {
	case a != "" && b != "" && a != b:
		return "(" + a + "|" + b + ")"
	case a != "":
		return a
	default:
		return b
	}
}

// minBound treats 0 as "no bound"
func minBound[T ~int64](a, b T) T {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	default:
		return min(a, b)
	}
}
