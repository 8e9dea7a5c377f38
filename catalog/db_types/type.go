package db_types

import (
	"fmt"
	"heapdb/common"
)

// Kind is the closed set of field kinds the storage layer can encode.
type Kind uint8

const (
	IntKind Kind = iota + 1
	CharKind
	FloatKind
	BoolKind
)

const (
	intSize   = 4
	floatSize = 8
	boolSize  = 1

	// charHeaderSize is the length prefix written before the bytes of a char field.
	charHeaderSize = 4
)

// Type is a field type with a fixed encoded width. Len is only meaningful for CharKind, where it is the maximum
// number of bytes the field holds. Types are comparable with ==.
type Type struct {
	Kind Kind
	Len  uint32
}

var (
	IntType   = Type{Kind: IntKind}
	FloatType = Type{Kind: FloatKind}
	BoolType  = Type{Kind: BoolKind}
)

// CharType returns the type of fixed width text fields holding at most n bytes.
func CharType(n int) Type {
	if n < 0 {
		panic("char length cannot be negative")
	}
	return Type{Kind: CharKind, Len: uint32(n)}
}

// Size returns the number of bytes a field of this type occupies when serialized.
func (t Type) Size() int {
	switch t.Kind {
	case IntKind:
		return intSize
	case CharKind:
		return charHeaderSize + int(t.Len)
	case FloatKind:
		return floatSize
	case BoolKind:
		return boolSize
	default:
		return 0
	}
}

func (t Type) Valid() bool {
	return t.Kind >= IntKind && t.Kind <= BoolKind
}

func (t Type) String() string {
	switch t.Kind {
	case IntKind:
		return "INT"
	case CharKind:
		return fmt.Sprintf("CHAR(%d)", t.Len)
	case FloatKind:
		return "FLOAT"
	case BoolKind:
		return "BOOL"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", t.Kind)
	}
}

// Deserialize decodes one field of type t from the beginning of src.
func Deserialize(t Type, src []byte) (Field, error) {
	if len(src) < t.Size() {
		return nil, common.Errorf(common.FormatError, "deserialize field", "%v needs %d bytes, got %d", t, t.Size(), len(src))
	}

	switch t.Kind {
	case IntKind:
		return deserializeInt(src), nil
	case CharKind:
		return deserializeChar(t, src)
	case FloatKind:
		return deserializeFloat(src), nil
	case BoolKind:
		return deserializeBool(src)
	default:
		return nil, common.Errorf(common.FormatError, "deserialize field", "unknown type kind %d", t.Kind)
	}
}
