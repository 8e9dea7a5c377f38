package db_types

import (
	"encoding/binary"
	"math"
	"strconv"
)

// FloatField is a float64 stored as its big-endian IEEE 754 bits.
type FloatField float64

func (f FloatField) Type() Type {
	return FloatType
}

func (f FloatField) Serialize(dest []byte) {
	binary.BigEndian.PutUint64(dest, math.Float64bits(float64(f)))
}

func (f FloatField) Equals(other Field) bool {
	o, ok := other.(FloatField)
	return ok && math.Float64bits(float64(o)) == math.Float64bits(float64(f))
}

func (f FloatField) Compare(other Field) int {
	o, ok := other.(FloatField)
	if !ok {
		return compareKinds(FloatKind, other.Type().Kind)
	}
	switch {
	case f < o:
		return -1
	case f > o:
		return 1
	}
	return 0
}

func (f FloatField) Value() float64 {
	return float64(f)
}

func (f FloatField) String() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}

func deserializeFloat(src []byte) FloatField {
	return FloatField(math.Float64frombits(binary.BigEndian.Uint64(src)))
}
