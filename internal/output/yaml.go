package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/hvctl/internal/batch"
	"github.com/jbweber/hvctl/internal/inventory"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatDomain(d inventory.DomainInfo) (string, error) {
	return marshalYAML("domain", d)
}

// FormatDomainList outputs a YAML sequence; an empty list is "[]".
func (f *YAMLFormatter) FormatDomainList(ds []inventory.DomainInfo) (string, error) {
	return marshalYAML("domains", nonNil(ds))
}

func (f *YAMLFormatter) FormatPool(p inventory.PoolInfo) (string, error) {
	return marshalYAML("storage pool", p)
}

func (f *YAMLFormatter) FormatVolume(v inventory.VolumeInfo) (string, error) {
	return marshalYAML("volume", v)
}

func (f *YAMLFormatter) FormatPoolList(ps []inventory.PoolInfo) (string, error) {
	return marshalYAML("storage pools", nonNil(ps))
}

func (f *YAMLFormatter) FormatVolumeList(vs []inventory.VolumeInfo) (string, error) {
	return marshalYAML("volumes", nonNil(vs))
}

func (f *YAMLFormatter) FormatSummary(s batch.Summary) (string, error) {
	return marshalYAML("summary", s)
}

func marshalYAML(what string, v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to YAML: %w", what, err)
	}
	return string(data), nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
