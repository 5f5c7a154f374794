package deid

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// PHIFieldsPath is the default location of the PHI field configuration.
const PHIFieldsPath = "PHI_Fields.json"

// Supported configuration formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatTOML = "toml"
)

// tomlDocument is the TOML layout: a top-level array of [[field]] tables.
type tomlDocument struct {
	Fields []*ConfigItem `toml:"field"`
}

// LoadPHI reads the PHI field configuration at path. The format follows the
// file extension (.json, .yaml/.yml, .toml); the items are validated before
// they are returned.
func LoadPHI(path string) ([]*ConfigItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deid: read PHI fields: %w", err)
	}

	items, err := ParsePHI(data, FormatOf(path))
	if err != nil {
		return nil, fmt.Errorf("deid: %s: %w", path, err)
	}
	return items, nil
}

// FormatOf maps a file name to its configuration format. Unknown extensions
// are treated as JSON.
func FormatOf(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// ParsePHI decodes and validates a PHI field configuration.
func ParsePHI(data []byte, format string) ([]*ConfigItem, error) {
	var items []*ConfigItem

	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&items); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		var doc tomlDocument
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
		items = doc.Fields
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}

	if err := ValidateItems(items); err != nil {
		return nil, err
	}
	return items, nil
}

// ValidateItems checks every item and reports all problems at once. Items
// naming both a generator and a static value are accepted: the generator
// takes precedence.
func ValidateItems(items []*ConfigItem) error {
	var errs error
	seen := make(map[string]int, len(items))

	for i, it := range items {
		if it == nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: item %d is empty", ErrInvalidConfig, i))
			continue
		}
		if it.ID == "" {
			errs = multierr.Append(errs, fmt.Errorf("%w: item %d has no id", ErrInvalidConfig, i))
			continue
		}
		cid, err := it.ComponentID()
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%w: item %d: %w", ErrInvalidConfig, i, err))
			continue
		}
		key := strings.ToUpper(cid.String())
		if prev, ok := seen[key]; ok {
			errs = multierr.Append(errs, fmt.Errorf("%w: item %d repeats %s from item %d", ErrInvalidConfig, i, it.ID, prev))
			continue
		}
		seen[key] = i
		for j, r := range it.PreReplace {
			if r.Match == "" {
				errs = multierr.Append(errs, fmt.Errorf("%w: %s preReplace %d has no match", ErrInvalidConfig, it.ID, j))
			}
		}
	}
	return errs
}
