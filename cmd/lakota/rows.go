package main

import (
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/bertrandchenal/lakota/pkg/frame"
	"github.com/bertrandchenal/lakota/pkg/schema"
)

// readCSVFrame parses a CSV stream (header row naming schema columns,
// order-independent) into a frame.Frame conforming to s. It is a minimal
// CLI-side row builder, not a dataframe binding.
func readCSVFrame(s schema.Schema, r io.Reader) (*frame.Frame, error) {
	cr := csv.NewReader(r)
	header, err := cr.Read()
	if err == io.EOF {
		return frame.New(s, emptyColumns(s)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	colForField := make([]int, len(header))
	for i, name := range header {
		idx := s.ColumnIndex(name)
		if idx < 0 {
			return nil, fmt.Errorf("CSV column %q is not in the schema", name)
		}
		colForField[i] = idx
	}

	builders := make([]columnBuilder, len(s.Columns))
	for i, col := range s.Columns {
		builders[i] = newColumnBuilder(col)
	}

	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}
		if len(record) != len(colForField) {
			return nil, fmt.Errorf("CSV row has %d fields, header has %d", len(record), len(colForField))
		}
		for i, v := range record {
			ci := colForField[i]
			if err := builders[ci].append(v); err != nil {
				return nil, fmt.Errorf("column %q: %w", s.Columns[ci].Name, err)
			}
		}
	}

	columns := make([]frame.Array, len(s.Columns))
	for i, b := range builders {
		columns[i] = b.build()
	}
	return frame.New(s, columns), nil
}

func emptyColumns(s schema.Schema) []frame.Array {
	columns := make([]frame.Array, len(s.Columns))
	for i, col := range s.Columns {
		columns[i] = newColumnBuilder(col).build()
	}
	return columns
}

// writeCSVFrame renders f as CSV with a header row, the inverse of
// readCSVFrame, using each schema column's formatter.
func writeCSVFrame(s schema.Schema, f *frame.Frame, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.ColumnNames()); err != nil {
		return err
	}
	n := f.Len()
	for row := 0; row < n; row++ {
		record := make([]string, len(s.Columns))
		for i, col := range s.Columns {
			record[i] = formatValue(col, f.Column(i), row)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// columnBuilder accumulates CSV string fields into a typed frame.Array.
type columnBuilder interface {
	append(v string) error
	build() frame.Array
}

func newColumnBuilder(col schema.Column) columnBuilder {
	switch col.Type {
	case schema.Int64:
		return &int64Builder{}
	case schema.Float64:
		return &float64Builder{}
	case schema.Bool:
		return &boolBuilder{}
	case schema.Timestamp:
		return &timeBuilder{unit: col.Unit, isDate: false}
	case schema.Date:
		return &timeBuilder{isDate: true}
	case schema.String:
		return &stringBuilder{}
	case schema.Bytes:
		return &bytesBuilder{}
	default:
		return &stringBuilder{}
	}
}

type int64Builder struct{ vals frame.Int64Array }

func (b *int64Builder) append(v string) error {
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("parse int64 %q: %w", v, err)
	}
	b.vals = append(b.vals, i)
	return nil
}
func (b *int64Builder) build() frame.Array { return b.vals }

type float64Builder struct{ vals frame.Float64Array }

func (b *float64Builder) append(v string) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("parse float64 %q: %w", v, err)
	}
	b.vals = append(b.vals, f)
	return nil
}
func (b *float64Builder) build() frame.Array { return b.vals }

type boolBuilder struct{ vals frame.BoolArray }

func (b *boolBuilder) append(v string) error {
	bv, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("parse bool %q: %w", v, err)
	}
	b.vals = append(b.vals, bv)
	return nil
}
func (b *boolBuilder) build() frame.Array { return b.vals }

// timeBuilder parses RFC3339 timestamps (or YYYY-MM-DD dates) into the raw
// integer ticks frame.TimeArray stores, scaled by the column's unit.
type timeBuilder struct {
	vals   frame.TimeArray
	unit   schema.TimeUnit
	isDate bool
}

func (b *timeBuilder) append(v string) error {
	if b.isDate {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return fmt.Errorf("parse date %q: %w", v, err)
		}
		b.vals = append(b.vals, t.Unix()/86400)
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", v, err)
	}
	b.vals = append(b.vals, ticksForUnit(t, b.unit))
	return nil
}
func (b *timeBuilder) build() frame.Array { return b.vals }

func ticksForUnit(t time.Time, unit schema.TimeUnit) int64 {
	ns := t.UnixNano()
	switch unit {
	case schema.Microsecond:
		return ns / 1_000
	case schema.Millisecond:
		return ns / 1_000_000
	case schema.Second:
		return ns / 1_000_000_000
	default: // Nanosecond
		return ns
	}
}

func timeForTicks(ticks int64, unit schema.TimeUnit) time.Time {
	switch unit {
	case schema.Microsecond:
		return time.Unix(0, ticks*1_000).UTC()
	case schema.Millisecond:
		return time.Unix(0, ticks*1_000_000).UTC()
	case schema.Second:
		return time.Unix(ticks, 0).UTC()
	default: // Nanosecond
		return time.Unix(0, ticks).UTC()
	}
}

type stringBuilder struct{ vals frame.StringArray }

func (b *stringBuilder) append(v string) error {
	b.vals = append(b.vals, v)
	return nil
}
func (b *stringBuilder) build() frame.Array { return b.vals }

type bytesBuilder struct{ vals frame.BytesArray }

func (b *bytesBuilder) append(v string) error {
	raw, err := hex.DecodeString(v)
	if err != nil {
		return fmt.Errorf("parse hex bytes %q: %w", v, err)
	}
	b.vals = append(b.vals, raw)
	return nil
}
func (b *bytesBuilder) build() frame.Array { return b.vals }

// formatValue renders one cell back to its CSV string form.
func formatValue(col schema.Column, arr frame.Array, row int) string {
	switch a := arr.(type) {
	case frame.Int64Array:
		return strconv.FormatInt(a[row], 10)
	case frame.Float64Array:
		return strconv.FormatFloat(a[row], 'g', -1, 64)
	case frame.BoolArray:
		return strconv.FormatBool(a[row])
	case frame.TimeArray:
		if col.Type == schema.Date {
			return time.Unix(a[row]*86400, 0).UTC().Format("2006-01-02")
		}
		return timeForTicks(a[row], col.Unit).Format(time.RFC3339Nano)
	case frame.StringArray:
		return a[row]
	case frame.BytesArray:
		return hex.EncodeToString(a[row])
	default:
		return ""
	}
}
