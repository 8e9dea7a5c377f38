package db_types

// Field is a typed value of a tuple. Fields are immutable once created.
type Field interface {
	Type() Type

	// Serialize writes exactly Type().Size() bytes to dest.
	Serialize(dest []byte)

	// Equals reports whether other has the same type and value.
	Equals(other Field) bool

	// Compare orders fields of the same kind. Fields of different kinds are ordered by kind.
	Compare(other Field) int

	String() string
}

// NewField builds a field from a go value. Supported values are int, int32, string, float64 and bool; strings
// become CHAR fields exactly as long as the string.
func NewField(v any) Field {
	switch val := v.(type) {
	case int:
		return IntField(int32(val))
	case int32:
		return IntField(val)
	case string:
		return NewCharField(val, len(val))
	case float64:
		return FloatField(val)
	case bool:
		return BoolField(val)
	default:
		panic("not supported type")
	}
}

func compareKinds(a, b Kind) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
