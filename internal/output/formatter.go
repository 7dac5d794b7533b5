// Package output renders inventory rows and batch summaries as tables,
// YAML or JSON.
package output

import (
	"fmt"

	"github.com/jbweber/hvctl/internal/batch"
	"github.com/jbweber/hvctl/internal/inventory"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Formatter formats hvctl resources for output.
type Formatter interface {
	FormatDomain(d inventory.DomainInfo) (string, error)
	FormatDomainList(ds []inventory.DomainInfo) (string, error)
	FormatPool(p inventory.PoolInfo) (string, error)
	FormatPoolList(ps []inventory.PoolInfo) (string, error)
	FormatVolume(v inventory.VolumeInfo) (string, error)
	FormatVolumeList(vs []inventory.VolumeInfo) (string, error)
	// FormatSummary renders the results of a lifecycle verb.
	FormatSummary(s batch.Summary) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable, "":
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
