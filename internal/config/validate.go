// Package config provides configuration models and helpers for census
// pipelines.
//
// This file adds a lightweight linter/validator for Pipeline values. It
// performs static checks over a decoded Pipeline and returns a list of issues
// (errors and warnings) that callers can surface in a CLI or tests.
package config

import (
	"fmt"
	"strings"
	"time"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a configuration warning that should be surfaced
	// to users but may not necessarily block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation/lint finding for a Pipeline.
//
// Path is a dotted path into the config (e.g. "census.chunk_size",
// "parser.options.comma"). Message is human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// ValidatePipeline performs static validation / linting of a Pipeline.
//
// It does not mutate the pipeline. Instead it returns a slice of Issue values.
// Callers may decide whether to treat warnings as fatal or not.
//
// Example:
//
//	var p config.Pipeline
//	if err := json.NewDecoder(r).Decode(&p); err != nil { ... }
//	issues := config.ValidatePipeline(p)
//	for _, iss := range issues {
//	    fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
//	}
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	addErr := func(path, msg string) {
		issues = append(issues, Issue{Severity: SeverityError, Path: path, Message: msg})
	}
	addWarn := func(path, msg string) {
		issues = append(issues, Issue{Severity: SeverityWarning, Path: path, Message: msg})
	}

	// Top-level pipeline checks.
	if strings.TrimSpace(p.Job) == "" {
		addErr("job", "job must not be empty")
	}

	// Source checks.
	switch p.Source.Kind {
	case "file":
		if strings.TrimSpace(p.Source.File.Path) == "" {
			addErr("source.file.path", "path must not be empty for source.kind=file")
		}
	case "":
		addErr("source.kind", "source.kind must be set (supported: file)")
	default:
		addErr("source.kind", fmt.Sprintf("unsupported source.kind %q (supported: file)", p.Source.Kind))
	}

	// Parser checks.
	switch p.Parser.Kind {
	case "csv":
		if c := p.Parser.Options.String("comma", ""); len([]rune(c)) > 1 {
			addWarn("parser.options.comma", fmt.Sprintf("comma %q has more than one character; only the first is used", c))
		}
	case "":
		addErr("parser.kind", "parser.kind must be set (supported: csv)")
	default:
		addErr("parser.kind", fmt.Sprintf("unsupported parser.kind %q (supported: csv)", p.Parser.Kind))
	}

	// Census checks.
	if p.Census.ChunkSize < 0 {
		addErr("census.chunk_size", "chunk_size must not be negative")
	} else if p.Census.ChunkSize > 0 && p.Census.ChunkSize < 1000 {
		addWarn("census.chunk_size", "chunk_size below 1000 defeats the purpose of chunking; expect scheduling overhead")
	}
	if p.Census.TopFlows < 0 {
		addErr("census.top_flows", "top_flows must not be negative")
	}
	if y := p.Census.ReferenceYear; y != 0 {
		now := time.Now().Year()
		if y < 1000 || y > now+1 {
			addWarn("census.reference_year", fmt.Sprintf("reference_year %d looks implausible (current year is %d)", y, now))
		}
	}
	for i, layout := range p.Census.DateLayouts {
		if strings.TrimSpace(layout) == "" {
			addErr(fmt.Sprintf("census.date_layouts[%d]", i), "layout must not be empty")
		}
	}
	if p.Census.LeftGender != "" && p.Census.LeftGender == p.Census.RightGender {
		addErr("census.left_gender", "left_gender and right_gender must differ")
	}

	// Export checks.
	switch p.Export.Kind {
	case "", "sqlite":
		if p.Export.Kind == "sqlite" && strings.TrimSpace(p.Export.DSN) == "" {
			addErr("export.dsn", "dsn must not be empty for export.kind=sqlite")
		}
	default:
		addErr("export.kind", fmt.Sprintf("unsupported export.kind %q (supported: sqlite)", p.Export.Kind))
	}

	// Runtime checks.
	if p.Runtime.Workers < 0 {
		addErr("runtime.workers", "workers must not be negative")
	}
	if p.Runtime.ChannelBuffer < 0 {
		addErr("runtime.channel_buffer", "channel_buffer must not be negative")
	}

	return issues
}
