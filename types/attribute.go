package types

import (
	"math"
	"unsafe"

	"github.com/pkg/errors"

	"github.com/outofforest/photon"
)

// AttrType enumerates supported attribute value types.
type AttrType uint8

const (
	// TypeInvalid is the zero value, never assigned to a registered attribute.
	TypeInvalid AttrType = iota

	// TypeByte is the 1-byte signed integer.
	TypeByte

	// TypeShort is the 2-byte signed integer.
	TypeShort

	// TypeInt is the 4-byte signed integer.
	TypeInt

	// TypeLong is the 8-byte signed integer.
	TypeLong

	// TypeFloat is the 32-bit float.
	TypeFloat

	// TypeDouble is the 64-bit float.
	TypeDouble
)

var typeCodes = map[string]AttrType{
	"b":  TypeByte,
	"i2": TypeShort,
	"i":  TypeInt,
	"i4": TypeInt,
	"i8": TypeLong,
	"f":  TypeFloat,
	"d":  TypeDouble,
}

// ParseAttrType converts type code used in schema documents to attribute type.
func ParseAttrType(code string) (AttrType, error) {
	t, exists := typeCodes[code]
	if !exists {
		return TypeInvalid, errors.Wrapf(ErrInvalidSchema, "unknown attribute type %q", code)
	}
	return t, nil
}

// Valid reports whether type is one of the supported ones.
func (t AttrType) Valid() bool {
	return t >= TypeByte && t <= TypeDouble
}

// Code returns the canonical type code.
func (t AttrType) Code() string {
	switch t {
	case TypeByte:
		return "b"
	case TypeShort:
		return "i2"
	case TypeInt:
		return "i"
	case TypeLong:
		return "i8"
	case TypeFloat:
		return "f"
	case TypeDouble:
		return "d"
	default:
		return ""
	}
}

func (t AttrType) String() string {
	switch t {
	case TypeByte:
		return "byte"
	case TypeShort:
		return "short"
	case TypeInt:
		return "int"
	case TypeLong:
		return "long"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	default:
		return "invalid"
	}
}

// Value is the set of Go types attribute values are exchanged as.
type Value interface {
	int8 | int16 | int32 | int64 | float32 | float64
}

// TypeOf returns attribute type corresponding to Go type.
func TypeOf[T Value]() AttrType {
	var t T
	switch any(t).(type) {
	case int8:
		return TypeByte
	case int16:
		return TypeShort
	case int32:
		return TypeInt
	case int64:
		return TypeLong
	case float32:
		return TypeFloat
	default:
		return TypeDouble
	}
}

// AttributeSize is the number of bytes taken by one attribute cell.
const AttributeSize = int(unsafe.Sizeof(Attribute{}))

// Attribute is the single typed value cell.
type Attribute struct {
	Bits uint64
	Type AttrType
	_    [7]byte
}

// NewAttribute returns zeroed cell of the type.
func NewAttribute(t AttrType) Attribute {
	return Attribute{Type: t}
}

// Get returns the value stored in the cell.
func Get[T Value](a *Attribute) (T, error) {
	var v T
	if t := TypeOf[T](); t != a.Type {
		return v, errors.Wrapf(ErrTypeMismatch, "attribute is %s, requested %s", a.Type, t)
	}

	switch p := any(&v).(type) {
	case *int8:
		*p = int8(uint8(a.Bits))
	case *int16:
		*p = int16(uint16(a.Bits))
	case *int32:
		*p = int32(uint32(a.Bits))
	case *int64:
		*p = int64(a.Bits)
	case *float32:
		*p = math.Float32frombits(uint32(a.Bits))
	case *float64:
		*p = math.Float64frombits(a.Bits)
	}
	return v, nil
}

// Set stores the value in the cell.
func Set[T Value](a *Attribute, v T) error {
	if t := TypeOf[T](); t != a.Type {
		return errors.Wrapf(ErrTypeMismatch, "attribute is %s, provided %s", a.Type, t)
	}

	switch x := any(v).(type) {
	case int8:
		a.Bits = uint64(uint8(x))
	case int16:
		a.Bits = uint64(uint16(x))
	case int32:
		a.Bits = uint64(uint32(x))
	case int64:
		a.Bits = uint64(x)
	case float32:
		a.Bits = uint64(math.Float32bits(x))
	case float64:
		a.Bits = math.Float64bits(x)
	}
	return nil
}

// Float64 converts stored value to float64 regardless of its type.
func (a Attribute) Float64() float64 {
	switch a.Type {
	case TypeByte:
		return float64(int8(uint8(a.Bits)))
	case TypeShort:
		return float64(int16(uint16(a.Bits)))
	case TypeInt:
		return float64(int32(uint32(a.Bits)))
	case TypeLong:
		return float64(int64(a.Bits))
	case TypeFloat:
		return float64(math.Float32frombits(uint32(a.Bits)))
	case TypeDouble:
		return math.Float64frombits(a.Bits)
	default:
		return 0
	}
}

// Bytes returns raw byte view of the cells. No copy is made.
func Bytes(attributes []Attribute) []byte {
	if len(attributes) == 0 {
		return nil
	}
	return photon.SliceFromPointer[byte](unsafe.Pointer(&attributes[0]), len(attributes)*AttributeSize)
}
