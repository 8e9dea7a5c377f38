package db_types

import (
	"encoding/binary"
	"heapdb/common"
	"strings"
)

// CharField is a text value of a CHAR(n) column. It is serialized as a 4 byte big-endian length followed by n
// bytes, of which the ones after the value are zero.
type CharField struct {
	value  string
	maxLen uint32
}

// NewCharField creates a CHAR(maxLen) field. Values longer than maxLen bytes are truncated.
func NewCharField(value string, maxLen int) CharField {
	if len(value) > maxLen {
		value = value[:maxLen]
	}
	return CharField{value: value, maxLen: uint32(maxLen)}
}

func (c CharField) Type() Type {
	return CharType(int(c.maxLen))
}

func (c CharField) Serialize(dest []byte) {
	binary.BigEndian.PutUint32(dest, uint32(len(c.value)))
	n := copy(dest[charHeaderSize:], c.value)
	clear(dest[charHeaderSize+n : charHeaderSize+int(c.maxLen)])
}

func (c CharField) Equals(other Field) bool {
	o, ok := other.(CharField)
	return ok && o.maxLen == c.maxLen && o.value == c.value
}

func (c CharField) Compare(other Field) int {
	o, ok := other.(CharField)
	if !ok {
		return compareKinds(CharKind, other.Type().Kind)
	}
	return strings.Compare(c.value, o.value)
}

func (c CharField) Value() string {
	return c.value
}

func (c CharField) String() string {
	return c.value
}

func deserializeChar(t Type, src []byte) (Field, error) {
	l := binary.BigEndian.Uint32(src)
	if l > t.Len {
		return nil, common.Errorf(common.FormatError, "deserialize field", "char length %d exceeds %v", l, t)
	}
	return CharField{
		value:  string(src[charHeaderSize : charHeaderSize+int(l)]),
		maxLen: t.Len,
	}, nil
}
