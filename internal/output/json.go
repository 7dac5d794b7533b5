package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/hvctl/internal/batch"
	"github.com/jbweber/hvctl/internal/inventory"
)

// JSONFormatter formats resources as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) FormatDomain(d inventory.DomainInfo) (string, error) {
	return marshalJSON("domain", d)
}

// FormatDomainList outputs a JSON array; an empty list is "[]".
func (f *JSONFormatter) FormatDomainList(ds []inventory.DomainInfo) (string, error) {
	return marshalJSON("domains", nonNil(ds))
}

func (f *JSONFormatter) FormatPool(p inventory.PoolInfo) (string, error) {
	return marshalJSON("storage pool", p)
}

func (f *JSONFormatter) FormatVolume(v inventory.VolumeInfo) (string, error) {
	return marshalJSON("volume", v)
}

func (f *JSONFormatter) FormatPoolList(ps []inventory.PoolInfo) (string, error) {
	return marshalJSON("storage pools", nonNil(ps))
}

func (f *JSONFormatter) FormatVolumeList(vs []inventory.VolumeInfo) (string, error) {
	return marshalJSON("volumes", nonNil(vs))
}

func (f *JSONFormatter) FormatSummary(s batch.Summary) (string, error) {
	return marshalJSON("summary", s)
}

func marshalJSON(what string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data) + "\n", nil
}
