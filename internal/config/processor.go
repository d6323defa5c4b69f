package config

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"shardwork/internal/errors"
)

// Processor describes one processing job: aligned groups of source,
// destination, and metadata prefixes plus the options shared by all groups.
type Processor struct {
	Unit         string           `yaml:"unit"`
	Sources      []string         `yaml:"sources"`
	Destinations []string         `yaml:"destinations"`
	Metadata     []string         `yaml:"metadata"`
	Kwargs       []map[string]any `yaml:"kwargs"`
	// SharedKwargs is applied to every group underneath its own kwargs.
	SharedKwargs map[string]any `yaml:"shared_kwargs"`

	Workers        int           `yaml:"workers"`
	Debug          bool          `yaml:"debug"`
	Seed           int64         `yaml:"seed"`
	BatchSize      int           `yaml:"batch_size"`
	ReportEvery    int           `yaml:"report_every"`
	ReportInterval time.Duration `yaml:"report_interval"`

	IgnoreExisting bool     `yaml:"ignore_existing"`
	SkipSourceGlob bool     `yaml:"skip_source_glob"`
	Shuffle        bool     `yaml:"shuffle"`
	Include        []string `yaml:"include"`
	Exclude        []string `yaml:"exclude"`
	Regex          string   `yaml:"regex"`

	Retry Retry `yaml:"retry"`
}

// Retry is the per-item retry policy
type Retry struct {
	MaxTries        int           `yaml:"max_tries"`
	MaxTime         time.Duration `yaml:"max_time"` // 0 means unbounded
	InitialInterval time.Duration `yaml:"initial_interval"`
	Retryable       []string      `yaml:"retryable"`
}

// DefaultProcessor returns a processor with every option at its default
func DefaultProcessor() Processor {
	return Processor{
		Workers:        1,
		Seed:           0,
		BatchSize:      1,
		ReportEvery:    10_000,
		ReportInterval: time.Second,
		Shuffle:        true,
		Retry: Retry{
			MaxTries:        1,
			InitialInterval: 500 * time.Millisecond,
			Retryable:       []string{"transient"},
		},
	}
}

// UnmarshalYAML fills absent keys with defaults
func (p *Processor) UnmarshalYAML(node *yaml.Node) error {
	type plain Processor
	v := plain(DefaultProcessor())
	if err := node.Decode(&v); err != nil {
		return err
	}
	*p = Processor(v)
	return nil
}

// Normalize fills per-group kwargs, folds SharedKwargs into them and canonicalizes
// the filter sets. It is idempotent.
func (p *Processor) Normalize() {
	groups := p.Kwargs
	if len(groups) == 0 {
		groups = make([]map[string]any, len(p.Sources))
	}
	// fresh slice and maps: p is usually a copy sharing the caller's backing arrays
	kwargs := make([]map[string]any, len(groups))
	for i, kw := range groups {
		merged := maps.Clone(p.SharedKwargs)
		if merged == nil {
			merged = make(map[string]any, len(kw))
		}
		maps.Copy(merged, kw)
		kwargs[i] = merged
	}
	p.Kwargs = kwargs
	p.SharedKwargs = nil

	p.Include = canonicalSet(p.Include)
	p.Exclude = canonicalSet(p.Exclude)

	if len(p.Retry.Retryable) == 0 {
		p.Retry.Retryable = []string{"transient"}
	} else {
		p.Retry.Retryable = canonicalSet(p.Retry.Retryable)
	}
}

// canonicalSet sorts and dedupes; an empty set becomes nil
func canonicalSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Validate checks the processor invariants. All failures are configuration errors.
func (p *Processor) Validate() error {
	if p.Unit == "" {
		return errors.Configf("unit is required")
	}
	if len(p.Sources) == 0 {
		return errors.Configf("at least one source prefix must be provided")
	}
	if len(p.Destinations) != len(p.Sources) ||
		len(p.Metadata) != len(p.Sources) ||
		(len(p.Kwargs) != 0 && len(p.Kwargs) != len(p.Sources)) {
		return errors.Configf(
			"sources, destinations, metadata and kwargs must have the same length (got %d, %d, %d, %d)",
			len(p.Sources), len(p.Destinations), len(p.Metadata), len(p.Kwargs))
	}

	for i := range p.Sources {
		if p.Sources[i] == "" || p.Destinations[i] == "" || p.Metadata[i] == "" {
			return errors.Configf("group %d has an empty prefix", i)
		}
		if hasWildcard(p.Destinations[i]) {
			return errors.Configf("destination prefix %q must not contain wildcards", p.Destinations[i])
		}
		if hasWildcard(p.Metadata[i]) {
			return errors.Configf("metadata prefix %q must not contain wildcards", p.Metadata[i])
		}
	}

	if p.Regex != "" {
		if _, err := regexp.Compile(p.Regex); err != nil {
			return errors.WrapConfig(err, "invalid regex filter")
		}
	}

	if p.Workers < 1 {
		return errors.Configf("workers must be at least 1 (got %d)", p.Workers)
	}
	if p.BatchSize < 1 {
		return errors.Configf("batch_size must be at least 1 (got %d)", p.BatchSize)
	}
	if p.ReportEvery < 1 {
		return errors.Configf("report_every must be at least 1 (got %d)", p.ReportEvery)
	}
	if p.ReportInterval <= 0 {
		return errors.Configf("report_interval must be positive")
	}

	if p.Retry.MaxTries < 1 {
		return errors.Configf("retry.max_tries must be at least 1 (got %d)", p.Retry.MaxTries)
	}
	if p.Retry.MaxTime < 0 {
		return errors.Configf("retry.max_time must not be negative")
	}
	if p.Retry.InitialInterval <= 0 {
		return errors.Configf("retry.initial_interval must be positive")
	}
	return nil
}

// CompiledRegex returns the compiled filename filter, nil when unset.
// Call only after Validate.
func (p *Processor) CompiledRegex() *regexp.Regexp {
	if p.Regex == "" {
		return nil
	}
	return regexp.MustCompile(p.Regex)
}

func hasWildcard(p string) bool {
	return strings.ContainsAny(p, "*?[")
}
