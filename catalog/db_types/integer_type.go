package db_types

import (
	"encoding/binary"
	"strconv"
)

// IntField is a 32 bit signed integer stored big-endian.
type IntField int32

func (i IntField) Type() Type {
	return IntType
}

func (i IntField) Serialize(dest []byte) {
	binary.BigEndian.PutUint32(dest, uint32(i))
}

func (i IntField) Equals(other Field) bool {
	o, ok := other.(IntField)
	return ok && o == i
}

func (i IntField) Compare(other Field) int {
	o, ok := other.(IntField)
	if !ok {
		return compareKinds(IntKind, other.Type().Kind)
	}
	switch {
	case i < o:
		return -1
	case i > o:
		return 1
	}
	return 0
}

func (i IntField) Value() int32 {
	return int32(i)
}

func (i IntField) String() string {
	return strconv.Itoa(int(i))
}

func deserializeInt(src []byte) IntField {
	return IntField(int32(binary.BigEndian.Uint32(src)))
}
