package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"shardwork/internal/errors"
)

func validProcessor() Processor {
	p := DefaultProcessor()
	p.Unit = "copy"
	p.Sources = []string{"data/*.jsonl"}
	p.Destinations = []string{"out/"}
	p.Metadata = []string{"meta/"}
	return p
}

func TestProcessorValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *Processor)
	}{
		{"missing unit", func(p *Processor) { p.Unit = "" }},
		{"no groups", func(p *Processor) { p.Sources, p.Destinations, p.Metadata = nil, nil, nil }},
		{"length mismatch", func(p *Processor) { p.Destinations = append(p.Destinations, "out2/") }},
		{"kwargs mismatch", func(p *Processor) { p.Kwargs = []map[string]any{{}, {}} }},
		{"wildcard destination", func(p *Processor) { p.Destinations = []string{"out/*"} }},
		{"wildcard metadata", func(p *Processor) { p.Metadata = []string{"meta/[ab]"} }},
		{"empty prefix", func(p *Processor) { p.Metadata = []string{""} }},
		{"bad regex", func(p *Processor) { p.Regex = "(" }},
		{"zero tries", func(p *Processor) { p.Retry.MaxTries = 0 }},
		{"negative max time", func(p *Processor) { p.Retry.MaxTime = -time.Second }},
		{"zero workers", func(p *Processor) { p.Workers = 0 }},
		{"zero batch", func(p *Processor) { p.BatchSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validProcessor()
			tt.mutate(&p)
			err := p.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsConfig(err), "expected a configuration error, got %v", err)
		})
	}

	p := validProcessor()
	require.NoError(t, p.Validate())
}

func TestProcessorNormalize(t *testing.T) {
	p := validProcessor()
	p.Sources = append(p.Sources, "more/*.gz")
	p.Destinations = append(p.Destinations, "out2/")
	p.Metadata = append(p.Metadata, "meta2/")
	p.SharedKwargs = map[string]any{"text_field": "text", "id_field": "id"}
	p.Include = []string{"b", "a", "b", " "}
	p.Exclude = []string{}
	p.Retry.Retryable = nil

	p.Normalize()
	require.NoError(t, p.Validate())

	require.Len(t, p.Kwargs, 2)
	assert.Equal(t, "text", p.Kwargs[1]["text_field"])
	assert.Nil(t, p.SharedKwargs)
	assert.Equal(t, []string{"a", "b"}, p.Include)
	assert.Nil(t, p.Exclude)
	assert.Equal(t, []string{"transient"}, p.Retry.Retryable)

	// groups keep their own values over shared ones
	q := validProcessor()
	q.Kwargs = []map[string]any{{"text_field": "body"}}
	q.SharedKwargs = map[string]any{"text_field": "text", "id_field": "id"}
	q.Normalize()
	assert.Equal(t, map[string]any{"text_field": "body", "id_field": "id"}, q.Kwargs[0])

	// idempotent
	q.Normalize()
	assert.Equal(t, map[string]any{"text_field": "body", "id_field": "id"}, q.Kwargs[0])
}

func TestProcessorUnmarshalDefaults(t *testing.T) {
	var p Processor
	err := yaml.Unmarshal([]byte(`
unit: copy
sources: [data/*.jsonl]
destinations: [out/]
metadata: [meta/]
workers: 4
retry:
  max_tries: 3
  max_time: 30s
`), &p)
	require.NoError(t, err)

	assert.Equal(t, 4, p.Workers)
	assert.True(t, p.Shuffle, "absent shuffle keeps its default")
	assert.Equal(t, 1, p.BatchSize)
	assert.Equal(t, 10_000, p.ReportEvery)
	assert.Equal(t, 3, p.Retry.MaxTries)
	assert.Equal(t, 30*time.Second, p.Retry.MaxTime)
	assert.Equal(t, 500*time.Millisecond, p.Retry.InitialInterval)
}

func TestCompiledRegex(t *testing.T) {
	p := validProcessor()
	assert.Nil(t, p.CompiledRegex())
	p.Regex = `\.jsonl$`
	assert.True(t, p.CompiledRegex().MatchString("a.jsonl"))
}
