// Package config defines the canonical, JSON-serializable configuration model
// for the census aggregation pipeline. It is intentionally small, explicit,
// and dependency-free so that pipelines can be loaded from disk and passed
// through the program without additional glue code.
//
// Design goals:
//
//  1. Stability: Changes to this package should be additive and backwards-
//     compatible whenever possible.
//  2. Clarity: Field names in Go mirror the JSON structure used in pipeline
//     files under configs/pipelines/*.json.
//  3. Minimalism: No third-party config libraries; decoding is performed by
//     the standard library, with a light Options helper for typed access.
//
// Example (trimmed):
//
//	{
//	  "job":    "eldoria-census",
//	  "source": { "kind": "file", "file": { "path": "eldoria.csv" } },
//	  "parser": { "kind": "csv", "options": { "comma": ";" } },
//	  "census": { "chunk_size": 500000, "top_flows": 10000 },
//	  "report": { "chart_path": "piramide_edades.png" }
//	}
package config

import "encoding/json"

// Pipeline describes a full aggregation run in JSON. It is the top-level
// object decoded from a pipeline file (e.g., configs/pipelines/*.json).
type Pipeline struct {
	// Job names the run; it labels metrics and log output.
	Job string `json:"job"`

	// Source describes where input data comes from (local file).
	Source Source `json:"source"`

	// Parser configures how raw bytes are turned into row chunks (CSV).
	Parser Parser `json:"parser"`

	// Census holds the aggregation parameters (chunking, reference year,
	// top-k bound, pyramid gender labels).
	Census Census `json:"census"`

	// Report configures the textual report and the chart artifact.
	Report Report `json:"report"`

	// Export optionally persists the final aggregate to a local database.
	// Leave the zero value to disable.
	Export Export `json:"export"`

	// Runtime controls concurrency and channel buffer sizes.
	Runtime RuntimeConfig `json:"runtime"`
}

// RuntimeConfig controls concurrency and buffering. Zero values mean
// "derive a default" (workers defaults to the host's core count).
type RuntimeConfig struct {
	Workers       int `json:"workers"`
	ChannelBuffer int `json:"channel_buffer"`
}

// Source identifies the data source. Additional kinds can be added over time.
type Source struct {
	// Kind selects the source implementation. Current value: "file".
	Kind string `json:"kind"`

	// File carries options for the "file" source kind.
	File SourceFile `json:"file"`
}

// SourceFile holds configuration for the "file" source kind.
type SourceFile struct {
	// Path is the local filesystem path to the input file.
	Path string `json:"path"`
}

// Parser selects how to parse the raw source into logical rows/columns.
type Parser struct {
	// Kind selects the parser implementation. Current value: "csv".
	Kind string `json:"kind"`

	// Options is a free-form map interpreted by the parser implementation.
	// For CSV, typical keys include:
	//   has_header (bool), comma (string), trim_space (bool),
	//   header_map (object)
	Options Options `json:"options"`
}

// Census holds the aggregation parameters for a run.
type Census struct {
	// ChunkSize bounds the number of rows per chunk dispatched to one
	// worker. 0 means the default (500000).
	ChunkSize int `json:"chunk_size"`

	// ReferenceYear is the year ages are computed against. 0 means the
	// current wall-clock year at run start.
	ReferenceYear int `json:"reference_year"`

	// TopFlows bounds the ranked (origin, destination) travel-flow list
	// retained in the final aggregate. 0 means the default (10000).
	TopFlows int `json:"top_flows"`

	// DateLayouts lists accepted birth-date layouts, tried in order after
	// the built-in fast paths. Empty means the built-in default set.
	DateLayouts []string `json:"date_layouts"`

	// LeftGender and RightGender name the pyramid series drawn on the
	// negative and positive halves of the chart. Defaults: HEMBRA / MACHO.
	LeftGender  string `json:"left_gender"`
	RightGender string `json:"right_gender"`
}

// Report configures run outputs.
type Report struct {
	// ChartPath is where the age-pyramid PNG is written.
	// Empty means the default ("piramide_edades.png").
	ChartPath string `json:"chart_path"`
}

// Export selects an optional sink for the final aggregate tables.
type Export struct {
	// Kind selects the export implementation. Current value: "sqlite".
	// Empty disables exporting.
	Kind string `json:"kind"`

	// DSN is passed to database/sql (for sqlite, a file path or file: URI).
	DSN string `json:"dsn"`
}

// Enabled reports whether an export sink is configured.
func (e Export) Enabled() bool { return e.Kind != "" }

// Options is a small helper to fetch typed values from arbitrary JSON maps
// without introducing third-party configuration libraries. It purposefully
// performs only minimal type coercion and returns provided defaults when a key
// is absent or of an unexpected type.
//
// Options is used for parser-specific configuration where the shape varies by
// implementation.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. JSON numbers are decoded as
// float64 by encoding/json, so this method accepts float64 and casts to int.
// If the value is neither float64 nor int, def is returned.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. This is useful for single-character parser settings such
// as a CSV delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty
// map when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// StringSlice returns a []string for key when the value is an array of strings
// (or an array of interface values containing strings). Returns nil when the
// key is missing or the value is not an array.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler so that a missing or null
// "options" object in JSON decodes to a non-nil, empty Options map. This
// simplifies call sites by removing the need to nil-check Options values.
func (o *Options) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		raw = map[string]any{}
	}
	*o = raw
	return nil
}

// Default knob values applied by WithDefaults and the validators.
const (
	DefaultChunkSize   = 500_000
	DefaultTopFlows    = 10_000
	DefaultChartPath   = "piramide_edades.png"
	DefaultLeftGender  = "HEMBRA"
	DefaultRightGender = "MACHO"
)

// WithDefaults returns a copy of p with zero-valued census/report knobs
// replaced by their documented defaults. Runtime knobs are resolved at run
// time (workers depends on the host).
func (p Pipeline) WithDefaults() Pipeline {
	if p.Census.ChunkSize <= 0 {
		p.Census.ChunkSize = DefaultChunkSize
	}
	if p.Census.TopFlows <= 0 {
		p.Census.TopFlows = DefaultTopFlows
	}
	if p.Census.LeftGender == "" {
		p.Census.LeftGender = DefaultLeftGender
	}
	if p.Census.RightGender == "" {
		p.Census.RightGender = DefaultRightGender
	}
	if p.Report.ChartPath == "" {
		p.Report.ChartPath = DefaultChartPath
	}
	return p
}
