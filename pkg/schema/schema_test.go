package schema

import "testing"

func TestBuilderValid(t *testing.T) {
	s, err := NewBuilder().
		IndexTimestamp("timestamp", Microsecond).
		Field("value", Float64).
		Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(s.IndexColumns()) != 1 {
		t.Fatalf("IndexColumns() = %d, want 1", len(s.IndexColumns()))
	}
	if s.ColumnIndex("value") != 1 {
		t.Fatalf("ColumnIndex(value) = %d, want 1", s.ColumnIndex("value"))
	}
	if s.ColumnIndex("missing") != -1 {
		t.Fatalf("ColumnIndex(missing) should be -1")
	}
}

func TestValidateRequiresIndex(t *testing.T) {
	s := Schema{Columns: []Column{{Name: "value", Type: Float64}}}
	if err := s.Validate(); err == nil {
		t.Fatal("Validate() should reject a schema with no index column")
	}
}

func TestValidateRejectsDuplicateNames(t *testing.T) {
	s := Schema{Columns: []Column{
		{Name: "k", Type: Int64, Index: true},
		{Name: "k", Type: Float64},
	}}
	if err := s.Validate(); err == nil {
		t.Fatal("Validate() should reject duplicate column names")
	}
}

func TestValidateRejectsIndexAfterField(t *testing.T) {
	s := Schema{Columns: []Column{
		{Name: "k", Type: Int64, Index: true},
		{Name: "v", Type: Float64},
		{Name: "k2", Type: Int64, Index: true},
	}}
	if err := s.Validate(); err == nil {
		t.Fatal("Validate() should reject an index column after a non-index column")
	}
}

func TestValidateRejectsTimestampWithoutUnit(t *testing.T) {
	s := Schema{Columns: []Column{{Name: "ts", Type: Timestamp, Index: true}}}
	if err := s.Validate(); err == nil {
		t.Fatal("Validate() should reject a timestamp column with no unit")
	}
}
