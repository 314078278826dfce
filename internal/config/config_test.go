package config

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestOptions_TypedAccess(t *testing.T) {
	t.Parallel()

	o := Options{
		"comma":      ";",
		"has_header": true,
		"chunk":      float64(500000), // as decoded by encoding/json
		"header_map": map[string]any{"CP ORIGEN": "cp_origen", "bad": 7},
		"layouts":    []any{"2006-01-02", "02/01/2006", 3},
	}

	if got := o.String("comma", ","); got != ";" {
		t.Errorf("String(comma) = %q, want %q", got, ";")
	}
	if got := o.String("missing", "def"); got != "def" {
		t.Errorf("String(missing) = %q, want default", got)
	}
	if got := o.Bool("has_header", false); !got {
		t.Errorf("Bool(has_header) = false, want true")
	}
	if got := o.Int("chunk", 0); got != 500000 {
		t.Errorf("Int(chunk) = %d, want 500000", got)
	}
	if got := o.Rune("comma", ','); got != ';' {
		t.Errorf("Rune(comma) = %q, want ';'", got)
	}
	if got := o.Rune("missing", ','); got != ',' {
		t.Errorf("Rune(missing) = %q, want ','", got)
	}

	hm := o.StringMap("header_map")
	if want := map[string]string{"CP ORIGEN": "cp_origen"}; !reflect.DeepEqual(hm, want) {
		t.Errorf("StringMap(header_map) = %v, want %v (non-strings ignored)", hm, want)
	}

	ls := o.StringSlice("layouts")
	if want := []string{"2006-01-02", "02/01/2006"}; !reflect.DeepEqual(ls, want) {
		t.Errorf("StringSlice(layouts) = %v, want %v", ls, want)
	}
}

func TestOptions_UnmarshalNull(t *testing.T) {
	t.Parallel()

	var p Parser
	if err := json.Unmarshal([]byte(`{"kind":"csv","options":null}`), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if p.Options == nil {
		t.Fatal("Options is nil after decoding null; want empty map")
	}
	if got := p.Options.Bool("has_header", true); !got {
		t.Errorf("default lookup on empty Options failed")
	}
}

func TestPipeline_DecodeRoundTrip(t *testing.T) {
	t.Parallel()

	raw := `{
	  "job": "eldoria-census",
	  "source": {"kind": "file", "file": {"path": "eldoria.csv"}},
	  "parser": {"kind": "csv", "options": {"comma": ";", "has_header": true}},
	  "census": {"chunk_size": 250000, "reference_year": 2025, "top_flows": 500},
	  "report": {"chart_path": "out/pyramid.png"},
	  "export": {"kind": "sqlite", "dsn": "census.db"},
	  "runtime": {"workers": 8, "channel_buffer": 4}
	}`

	var p Pipeline
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}

	if p.Job != "eldoria-census" {
		t.Errorf("Job = %q", p.Job)
	}
	if p.Source.Kind != "file" || p.Source.File.Path != "eldoria.csv" {
		t.Errorf("Source = %+v", p.Source)
	}
	if got := p.Parser.Options.Rune("comma", ','); got != ';' {
		t.Errorf("parser comma = %q, want ';'", got)
	}
	if p.Census.ChunkSize != 250000 || p.Census.TopFlows != 500 {
		t.Errorf("Census = %+v", p.Census)
	}
	if !p.Export.Enabled() || p.Export.DSN != "census.db" {
		t.Errorf("Export = %+v", p.Export)
	}
	if p.Runtime.Workers != 8 {
		t.Errorf("Runtime = %+v", p.Runtime)
	}
}

func TestPipeline_WithDefaults(t *testing.T) {
	t.Parallel()

	p := Pipeline{}.WithDefaults()

	if p.Census.ChunkSize != DefaultChunkSize {
		t.Errorf("ChunkSize = %d, want %d", p.Census.ChunkSize, DefaultChunkSize)
	}
	if p.Census.TopFlows != DefaultTopFlows {
		t.Errorf("TopFlows = %d, want %d", p.Census.TopFlows, DefaultTopFlows)
	}
	if p.Census.LeftGender != DefaultLeftGender || p.Census.RightGender != DefaultRightGender {
		t.Errorf("genders = %q/%q", p.Census.LeftGender, p.Census.RightGender)
	}
	if p.Report.ChartPath != DefaultChartPath {
		t.Errorf("ChartPath = %q", p.Report.ChartPath)
	}

	// Explicit values survive.
	p2 := Pipeline{Census: Census{ChunkSize: 1234, TopFlows: 7}}.WithDefaults()
	if p2.Census.ChunkSize != 1234 || p2.Census.TopFlows != 7 {
		t.Errorf("explicit knobs overwritten: %+v", p2.Census)
	}
}
