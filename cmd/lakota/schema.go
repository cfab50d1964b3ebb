package main

import (
	"fmt"
	"os"

	"github.com/bertrandchenal/lakota/pkg/schema"
	"gopkg.in/yaml.v3"
)

// columnSpec is the YAML shape of one schema.Column: a small YAML struct
// decoded with gopkg.in/yaml.v3 rather than a bespoke string DSL. It is
// the CLI wrapper around schema.Builder, nothing more.
type columnSpec struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Unit    string `yaml:"unit,omitempty"`
	Index   bool   `yaml:"index,omitempty"`
	DictMax int    `yaml:"dict_max,omitempty"`
}

type schemaFile struct {
	Columns []columnSpec `yaml:"columns"`
}

// loadSchemaFile reads and parses a YAML schema file, returning both the
// built schema.Schema and the raw bytes -- the raw bytes are what gets
// stashed as a collection's registry meta, so re-opening the collection
// later reproduces the identical schema without a second file.
func loadSchemaFile(path string) (schema.Schema, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schema.Schema{}, nil, fmt.Errorf("read schema file %q: %w", path, err)
	}
	s, err := parseSchemaBytes(raw)
	if err != nil {
		return schema.Schema{}, nil, err
	}
	return s, raw, nil
}

// parseSchemaBytes parses YAML schema bytes, as stored in a collection's
// registry meta column, back into a schema.Schema.
func parseSchemaBytes(raw []byte) (schema.Schema, error) {
	var sf schemaFile
	if err := yaml.Unmarshal(raw, &sf); err != nil {
		return schema.Schema{}, fmt.Errorf("parse schema YAML: %w", err)
	}

	b := schema.NewBuilder()
	for _, c := range sf.Columns {
		typ := schema.Type(c.Type)
		if typ == schema.Timestamp {
			unit := schema.TimeUnit(c.Unit)
			if c.Index {
				b.IndexTimestamp(c.Name, unit)
			} else {
				b.FieldTimestamp(c.Name, unit)
			}
			continue
		}
		if c.Index {
			b.Index(c.Name, typ)
		} else {
			b.Field(c.Name, typ)
		}
	}
	s, err := b.Build()
	if err != nil {
		return schema.Schema{}, fmt.Errorf("build schema: %w", err)
	}
	return s, nil
}
