package catalog

import (
	"fmt"
	"heapdb/catalog/db_types"
	"heapdb/common"
	"strings"
)

// Tuple is an ordered list of field values matching a schema. Its record id is nil until the tuple is placed on
// a page.
type Tuple struct {
	schema *Schema
	fields []db_types.Field
	rid    *common.RecordID
}

// NewTuple returns a tuple of schema with all fields unset.
func NewTuple(schema *Schema) *Tuple {
	return &Tuple{
		schema: schema,
		fields: make([]db_types.Field, schema.NumFields()),
	}
}

// NewTupleWithValues creates a tuple and sets its fields in order.
func NewTupleWithValues(schema *Schema, values ...db_types.Field) (*Tuple, error) {
	if len(values) != schema.NumFields() {
		return nil, fmt.Errorf("schema has %d fields but %d values are given", schema.NumFields(), len(values))
	}

	t := NewTuple(schema)
	for i, val := range values {
		if err := t.SetField(i, val); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func (t *Tuple) Schema() *Schema {
	return t.schema
}

// SetField sets the ith field. The value must have exactly the type of the schema's ith field.
func (t *Tuple) SetField(i int, f db_types.Field) error {
	typ, err := t.schema.FieldType(i)
	if err != nil {
		return err
	}
	if f.Type() != typ {
		return common.Errorf(common.SchemaMismatchError, "set field", "field %d is %v, got %v", i, typ, f.Type())
	}

	t.fields[i] = f
	return nil
}

func (t *Tuple) Field(i int) (db_types.Field, error) {
	if err := t.schema.checkIdx(i); err != nil {
		return nil, err
	}
	return t.fields[i], nil
}

func (t *Tuple) Fields() []db_types.Field {
	return append([]db_types.Field(nil), t.fields...)
}

// RecordID returns the tuple's location or nil if it is not stored on a page.
func (t *Tuple) RecordID() *common.RecordID {
	return t.rid
}

func (t *Tuple) SetRecordID(rid *common.RecordID) {
	t.rid = rid
}

// Serialize writes the tuple's fields back to back into dest, which must be at least Schema().Size() bytes.
func (t *Tuple) Serialize(dest []byte) error {
	if len(dest) < t.schema.Size() {
		return common.Errorf(common.FormatError, "serialize tuple", "need %d bytes, got %d", t.schema.Size(), len(dest))
	}

	offset := 0
	for i, f := range t.fields {
		if f == nil {
			return common.Errorf(common.StateError, "serialize tuple", "field %d is not set", i)
		}
		f.Serialize(dest[offset:])
		offset += f.Type().Size()
	}
	return nil
}

// DeserializeTuple decodes a tuple of schema from the beginning of src.
func DeserializeTuple(schema *Schema, src []byte) (*Tuple, error) {
	if len(src) < schema.Size() {
		return nil, common.Errorf(common.FormatError, "deserialize tuple", "need %d bytes, got %d", schema.Size(), len(src))
	}

	t := NewTuple(schema)
	offset := 0
	for i, col := range schema.columns {
		f, err := db_types.Deserialize(col.Type, src[offset:])
		if err != nil {
			return nil, err
		}
		t.fields[i] = f
		offset += col.Type.Size()
	}
	return t, nil
}

// Equals reports whether both tuples have equal schemas and equal values. Record ids are not compared.
func (t *Tuple) Equals(other *Tuple) bool {
	if !t.schema.Equals(other.schema) {
		return false
	}
	for i := range t.fields {
		a, b := t.fields[i], other.fields[i]
		if a == nil || b == nil {
			if a != b {
				return false
			}
			continue
		}
		if !a.Equals(b) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the tuple that shares no mutable state with it.
func (t *Tuple) Clone() *Tuple {
	c := &Tuple{
		schema: t.schema,
		fields: append([]db_types.Field(nil), t.fields...),
	}
	if t.rid != nil {
		rid := *t.rid
		c.rid = &rid
	}
	return c
}

// String renders the field values separated by tabs.
func (t *Tuple) String() string {
	parts := make([]string, len(t.fields))
	for i, f := range t.fields {
		if f == nil {
			parts[i] = "null"
			continue
		}
		parts[i] = f.String()
	}
	return strings.Join(parts, "\t")
}
