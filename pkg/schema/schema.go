// Package schema defines the column types and ordered column lists that
// every Frame, Segment and Commit in lakota conforms to.
//
// Schemas are built programmatically with Builder; this package does not
// parse a string DSL. Callers that accept textual schemas (the CLI's YAML
// files, for one) translate them into Builder calls themselves.
package schema

import "fmt"

// Type is a logical column type.
type Type string

const (
	Int64     Type = "int64"
	Float64   Type = "float64"
	Bool      Type = "bool"
	Timestamp Type = "timestamp"
	Date      Type = "date"
	String    Type = "string"
	Bytes     Type = "bytes"
)

// TimeUnit is the resolution of a Timestamp column.
type TimeUnit string

const (
	Nanosecond  TimeUnit = "ns"
	Microsecond TimeUnit = "us"
	Millisecond TimeUnit = "ms"
	Second      TimeUnit = "s"
)

// Column describes a single field of a Schema.
type Column struct {
	Name    string
	Type    Type
	Unit    TimeUnit // only meaningful when Type == Timestamp
	Index   bool     // part of the sort key
	DictMax int      // optional dictionary-size hint for String columns
}

// Schema is the ordered sequence of columns shared by every series in a
// collection.
type Schema struct {
	Columns []Column
}

// IndexColumns returns the columns, in declared order, that make up the
// sort key.
func (s Schema) IndexColumns() []Column {
	var out []Column
	for _, c := range s.Columns {
		if c.Index {
			out = append(out, c)
		}
	}
	return out
}

// ColumnNames returns the schema's column names in declared order.
func (s Schema) ColumnNames() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// ColumnIndex returns the position of name in s.Columns, or -1.
func (s Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Validate enforces the schema invariants from the design: unique column
// names, at least one index column, and index columns ordered before
// non-index columns.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema: no columns defined")
	}

	seen := make(map[string]struct{}, len(s.Columns))
	sawNonIndex := false
	indexCount := 0

	for _, c := range s.Columns {
		if _, dup := seen[c.Name]; dup {
			return fmt.Errorf("schema: duplicate column %q", c.Name)
		}
		seen[c.Name] = struct{}{}

		if err := validType(c); err != nil {
			return fmt.Errorf("schema: column %q: %w", c.Name, err)
		}

		if c.Index {
			if sawNonIndex {
				return fmt.Errorf("schema: index column %q must precede non-index columns", c.Name)
			}
			indexCount++
		} else {
			sawNonIndex = true
		}
	}

	if indexCount == 0 {
		return fmt.Errorf("schema: at least one index column is required")
	}

	return nil
}

func validType(c Column) error {
	switch c.Type {
	case Int64, Float64, Bool, Date, String, Bytes:
		return nil
	case Timestamp:
		switch c.Unit {
		case Nanosecond, Microsecond, Millisecond, Second:
			return nil
		default:
			return fmt.Errorf("timestamp column requires a valid Unit, got %q", c.Unit)
		}
	default:
		return fmt.Errorf("unknown type %q", c.Type)
	}
}

// Builder assembles a Schema column by column and validates on Build.
type Builder struct {
	columns []Column
}

// NewBuilder returns an empty schema Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Index appends an index (sort key) column.
func (b *Builder) Index(name string, typ Type) *Builder {
	b.columns = append(b.columns, Column{Name: name, Type: typ, Index: true})
	return b
}

// IndexTimestamp appends a timestamp index column with an explicit unit.
func (b *Builder) IndexTimestamp(name string, unit TimeUnit) *Builder {
	b.columns = append(b.columns, Column{Name: name, Type: Timestamp, Unit: unit, Index: true})
	return b
}

// Field appends a non-index (value) column.
func (b *Builder) Field(name string, typ Type) *Builder {
	b.columns = append(b.columns, Column{Name: name, Type: typ})
	return b
}

// FieldTimestamp appends a non-index timestamp column with an explicit unit.
func (b *Builder) FieldTimestamp(name string, unit TimeUnit) *Builder {
	b.columns = append(b.columns, Column{Name: name, Type: Timestamp, Unit: unit})
	return b
}

// Build validates and returns the assembled Schema.
func (b *Builder) Build() (Schema, error) {
	s := Schema{Columns: append([]Column(nil), b.columns...)}
	if err := s.Validate(); err != nil {
		return Schema{}, err
	}
	return s, nil
}
