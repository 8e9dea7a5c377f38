package db_types

import (
	"heapdb/common"
	"strconv"
)

type BoolField bool

func (b BoolField) Type() Type {
	return BoolType
}

func (b BoolField) Serialize(dest []byte) {
	if b {
		dest[0] = 1
	} else {
		dest[0] = 0
	}
}

func (b BoolField) Equals(other Field) bool {
	o, ok := other.(BoolField)
	return ok && o == b
}

func (b BoolField) Compare(other Field) int {
	o, ok := other.(BoolField)
	if !ok {
		return compareKinds(BoolKind, other.Type().Kind)
	}
	switch {
	case b == o:
		return 0
	case !bool(b):
		return -1
	}
	return 1
}

func (b BoolField) Value() bool {
	return bool(b)
}

func (b BoolField) String() string {
	return strconv.FormatBool(bool(b))
}

func deserializeBool(src []byte) (Field, error) {
	switch src[0] {
	case 0:
		return BoolField(false), nil
	case 1:
		return BoolField(true), nil
	}
	return nil, common.Errorf(common.FormatError, "deserialize field", "invalid bool byte %d", src[0])
}
