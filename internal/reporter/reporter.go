// Package reporter renders run reports for human and machine consumption.
//
// Supported output formats:
//   - Console: human-readable summary for terminal display
//   - JSON: structured format for programmatic consumption
package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"claims-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
)

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON:
		return true
	default:
		return false
	}
}

// Config holds configuration options for report generation
type Config struct {
	Format OutputFormat `json:"format"`

	// IncludeDiagnostics controls whether ambiguous keys and failed pairs
	// are listed individually rather than just counted.
	IncludeDiagnostics bool `json:"include_diagnostics"`
}

// DefaultConfig returns a default report configuration
func DefaultConfig() *Config {
	return &Config{
		Format:             FormatConsole,
		IncludeDiagnostics: true,
	}
}

// Validate validates the report configuration
func (c *Config) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	return nil
}

// Generator renders run reports in the configured format
type Generator struct {
	config *Config
}

// NewGenerator creates a report generator with the specified configuration
func NewGenerator(config *Config) (*Generator, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &Generator{config: config}, nil
}

// Write renders the run report to the given writer
func (g *Generator) Write(report *reconciler.RunReport, w io.Writer) error {
	if report == nil {
		return fmt.Errorf("run report cannot be nil")
	}

	switch g.config.Format {
	case FormatJSON:
		return g.writeJSON(report, w)
	default:
		return g.writeConsole(report, w)
	}
}

func (g *Generator) writeConsole(report *reconciler.RunReport, w io.Writer) error {
	fmt.Fprintln(w, "RECONCILIATION RUN SUMMARY")
	fmt.Fprintln(w, "==========================")
	fmt.Fprintf(w, "Started:            %s\n", report.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(w, "Elapsed:            %v\n", report.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Payments seen:      %d\n", report.PaymentsSeen)
	fmt.Fprintf(w, "Payments matched:   %d\n", report.PaymentsMatched)
	fmt.Fprintf(w, "No claim marker:    %d\n", report.SkippedNoClaim)
	fmt.Fprintf(w, "Ambiguous groups:   %d\n", len(report.AmbiguousKeys))
	fmt.Fprintf(w, "Failed attempts:    %d\n", len(report.FailedPairs))

	if !g.config.IncludeDiagnostics {
		return nil
	}

	if len(report.AmbiguousKeys) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Groups requiring manual review (duplicate amounts):")
		for _, key := range report.AmbiguousKeys {
			fmt.Fprintf(w, "  - %s\n", key)
		}
	}

	if len(report.FailedPairs) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Failed match attempts:")
		for _, pair := range report.FailedPairs {
			fmt.Fprintf(w, "  - payment %s / deduction %s: %s\n",
				pair.PaymentID, pair.DeductionID, pair.Reason)
		}
	}

	return nil
}

func (g *Generator) writeJSON(report *reconciler.RunReport, w io.Writer) error {
	out := struct {
		*reconciler.RunReport
		ElapsedMillis int64 `json:"elapsedMillis"`
	}{
		RunReport:     report,
		ElapsedMillis: report.Elapsed.Milliseconds(),
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(&out)
}
