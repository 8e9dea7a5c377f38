package catalog

import (
	"errors"
	"fmt"
	"heapdb/catalog/db_types"
	"heapdb/common"
	"strings"
)

var (
	ErrFieldNotFound   = errors.New("no field with given name")
	ErrIndexOutOfRange = errors.New("field index out of range")
)

// Schema describes the ordered fields of the tuples of a table. A schema is immutable after construction and is
// shared by every page and tuple built against it.
type Schema struct {
	columns []Column
	size    int
}

// NewSchema creates a schema from parallel type and name lists. names may be nil, in which case every field is
// anonymous.
func NewSchema(types []db_types.Type, names []string) (*Schema, error) {
	if len(types) == 0 {
		return nil, errors.New("schema must have at least one field")
	}
	if names != nil && len(names) != len(types) {
		return nil, fmt.Errorf("got %d types but %d names", len(types), len(names))
	}

	cols := make([]Column, len(types))
	for i, t := range types {
		cols[i].Type = t
		if names != nil {
			cols[i].Name = names[i]
		}
	}

	return NewSchemaFromColumns(cols)
}

func NewSchemaFromColumns(cols []Column) (*Schema, error) {
	if len(cols) == 0 {
		return nil, errors.New("schema must have at least one field")
	}

	size := 0
	for i, col := range cols {
		if !col.Type.Valid() {
			return nil, fmt.Errorf("field %d has invalid type %v", i, col.Type)
		}
		size += col.Type.Size()
	}

	return &Schema{
		columns: append([]Column(nil), cols...),
		size:    size,
	}, nil
}

// MustSchema is NewSchema that panics on error. It is meant for schemas known at compile time.
func MustSchema(types []db_types.Type, names []string) *Schema {
	s, err := NewSchema(types, names)
	common.PanicIfErr(err)
	return s
}

func (s *Schema) NumFields() int {
	return len(s.columns)
}

func (s *Schema) FieldName(i int) (string, error) {
	if err := s.checkIdx(i); err != nil {
		return "", err
	}
	return s.columns[i].Name, nil
}

func (s *Schema) FieldType(i int) (db_types.Type, error) {
	if err := s.checkIdx(i); err != nil {
		return db_types.Type{}, err
	}
	return s.columns[i].Type, nil
}

// FieldNameToIndex returns the index of the first field named name.
func (s *Schema) FieldNameToIndex(name string) (int, error) {
	for i, column := range s.columns {
		if column.Name == name {
			return i, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrFieldNotFound, name)
}

// Size returns the number of bytes a tuple of this schema occupies on a page.
func (s *Schema) Size() int {
	return s.size
}

// Columns returns a copy of the schema's columns.
func (s *Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

func (s *Schema) Types() []db_types.Type {
	res := make([]db_types.Type, len(s.columns))
	for i, col := range s.columns {
		res[i] = col.Type
	}
	return res
}

// Equals reports whether both schemas have the same number of fields and the same type at every position. Field
// names are not compared.
func (s *Schema) Equals(other *Schema) bool {
	if s == other {
		return true
	}
	if s == nil || other == nil || len(s.columns) != len(other.columns) {
		return false
	}

	for i := range s.columns {
		if s.columns[i].Type != other.columns[i].Type {
			return false
		}
	}
	return true
}

// String renders the schema as "name(type), name(type), ...".
func (s *Schema) String() string {
	parts := make([]string, len(s.columns))
	for i, col := range s.columns {
		parts[i] = col.String()
	}
	return strings.Join(parts, ", ")
}

func (s *Schema) checkIdx(i int) error {
	if i < 0 || i >= len(s.columns) {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrIndexOutOfRange, i, len(s.columns))
	}
	return nil
}

// Merge returns a schema with the fields of left followed by the fields of right.
func Merge(left, right *Schema) *Schema {
	cols := make([]Column, 0, left.NumFields()+right.NumFields())
	cols = append(cols, left.columns...)
	cols = append(cols, right.columns...)

	return &Schema{
		columns: cols,
		size:    left.size + right.size,
	}
}
