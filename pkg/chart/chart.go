// Package chart models the declarative chart definitions produced by the
// reasoning service and validates them against aggregate result shapes.
// Chart validation is lenient where plan validation is strict: an invalid
// chart is dropped, never fatal, so the run degrades to fewer charts.
package chart

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spiceroute/reportpipe/pkg/reason"
	"github.com/spiceroute/reportpipe/pkg/table"
)

// Kind is the visual form of a chart.
type Kind string

const (
	KindBar          Kind = "bar"
	KindLine         Kind = "line"
	KindDistribution Kind = "distribution"
)

// Known reports whether the kind is supported.
func (k Kind) Known() bool {
	switch k {
	case KindBar, KindLine, KindDistribution:
		return true
	}
	return false
}

// Channel is a visual channel a column can be encoded to.
type Channel string

const (
	ChannelCategory Channel = "category"
	ChannelValue    Channel = "value"
	ChannelTime     Channel = "time"
)

// Known reports whether the channel is supported.
func (c Channel) Known() bool {
	switch c {
	case ChannelCategory, ChannelValue, ChannelTime:
		return true
	}
	return false
}

// Encoding binds one column of the referenced aggregate result to a
// visual channel.
type Encoding struct {
	Column  string  `json:"column"`
	Channel Channel `json:"channel"`
}

// Spec is one declarative chart definition, bound by name to a single
// aggregate result table.
type Spec struct {
	Title     string     `json:"title"`
	Result    string     `json:"result"`
	Kind      Kind       `json:"kind"`
	Encodings []Encoding `json:"encodings"`
}

// Decode parses a list of chart specs from reasoning-service output.
// The response is untrusted; a decode failure is recoverable by
// re-prompting once before the run degrades to zero charts.
func Decode(text string) ([]Spec, error) {
	var raw string
	// Tolerate a single bare object. It must win over array extraction
	// when it opens first, or the extraction latches onto an array nested
	// inside it (such as its encodings field).
	objIdx, arrIdx := strings.IndexByte(text, '{'), strings.IndexByte(text, '[')
	if objIdx != -1 && (arrIdx == -1 || objIdx < arrIdx) {
		if obj := reason.ExtractJSONObject(text); obj != "" {
			raw = "[" + obj + "]"
		}
	} else {
		raw = reason.ExtractJSONArray(text)
	}
	if raw == "" {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	var specs []Spec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, fmt.Errorf("invalid chart spec JSON: %w", err)
	}
	return specs, nil
}

// Validate keeps the specs that reference a known aggregate result, known
// columns, and a known kind and channels. dropped explains each discarded
// spec; the caller records these as run warnings.
func Validate(specs []Spec, results []*table.Table) (valid []Spec, dropped []string) {
	byName := make(map[string]*table.Table, len(results))
	for _, r := range results {
		byName[r.Name] = r
	}

	for i, s := range specs {
		if why := invalidReason(s, byName); why != "" {
			dropped = append(dropped, fmt.Sprintf("chart %d (%q): %s", i+1, s.Title, why))
			continue
		}
		valid = append(valid, s)
	}
	return valid, dropped
}

func invalidReason(s Spec, byName map[string]*table.Table) string {
	if !s.Kind.Known() {
		return fmt.Sprintf("unknown chart kind %q", s.Kind)
	}
	result, ok := byName[s.Result]
	if !ok {
		return fmt.Sprintf("references unknown aggregate result %q", s.Result)
	}
	if len(s.Encodings) == 0 {
		return "no encodings"
	}
	for _, e := range s.Encodings {
		if !e.Channel.Known() {
			return fmt.Sprintf("unknown channel %q", e.Channel)
		}
		if !result.HasColumn(e.Column) {
			return fmt.Sprintf("references unknown column %q of result %q", e.Column, s.Result)
		}
	}
	return ""
}
