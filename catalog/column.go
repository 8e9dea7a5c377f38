package catalog

import "heapdb/catalog/db_types"

// Column is one field of a schema. Name may be empty for anonymous fields.
type Column struct {
	Name string
	Type db_types.Type
}

func (c Column) String() string {
	return c.Name + "(" + c.Type.String() + ")"
}
