package pdi

import (
	"fmt"
	"math"

	"github.com/distributed/ecatmaster/netdesc"
)

// Value is a typed scalar carried by a Mapping. It stores every supported
// scalar (spec.md §4.2: signed/unsigned 8/16/32-bit, 32/64-bit float,
// 64-bit signed, single-bit bool) in a single 64-bit pattern so Mapping
// can hold it in a lock-free atomic word (spec.md §5: output/input scalar
// access needs "atomic word access or equivalent discipline").
type Value struct {
	Type netdesc.DataType
	bits uint64
}

func BoolValue(v bool) Value {
	var b uint64
	if v {
		b = 1
	}
	return Value{Type: netdesc.Bool, bits: b}
}

func Int8Value(v int8) Value   { return Value{Type: netdesc.Int8, bits: uint64(uint8(v))} }
func Uint8Value(v uint8) Value { return Value{Type: netdesc.Uint8, bits: uint64(v)} }
func Int16Value(v int16) Value { return Value{Type: netdesc.Int16, bits: uint64(uint16(v))} }
func Uint16Value(v uint16) Value { return Value{Type: netdesc.Uint16, bits: uint64(v)} }
func Int32Value(v int32) Value { return Value{Type: netdesc.Int32, bits: uint64(uint32(v))} }
func Uint32Value(v uint32) Value { return Value{Type: netdesc.Uint32, bits: uint64(v)} }
func Int64Value(v int64) Value { return Value{Type: netdesc.Int64, bits: uint64(v)} }
func Float32Value(v float32) Value {
	return Value{Type: netdesc.Float32, bits: uint64(math.Float32bits(v))}
}
func Float64Value(v float64) Value {
	return Value{Type: netdesc.Float64, bits: math.Float64bits(v)}
}

func (v Value) Bool() bool       { return v.bits != 0 }
func (v Value) Int8() int8       { return int8(uint8(v.bits)) }
func (v Value) Uint8() uint8     { return uint8(v.bits) }
func (v Value) Int16() int16     { return int16(uint16(v.bits)) }
func (v Value) Uint16() uint16   { return uint16(v.bits) }
func (v Value) Int32() int32     { return int32(uint32(v.bits)) }
func (v Value) Uint32() uint32   { return uint32(v.bits) }
func (v Value) Int64() int64     { return int64(v.bits) }
func (v Value) Float32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) Float64() float64 { return math.Float64frombits(v.bits) }

func (v Value) String() string {
	switch v.Type {
	case netdesc.Bool:
		return fmt.Sprintf("%v", v.Bool())
	case netdesc.Int8:
		return fmt.Sprintf("%d", v.Int8())
	case netdesc.Uint8:
		return fmt.Sprintf("%d", v.Uint8())
	case netdesc.Int16:
		return fmt.Sprintf("%d", v.Int16())
	case netdesc.Uint16:
		return fmt.Sprintf("%d", v.Uint16())
	case netdesc.Int32:
		return fmt.Sprintf("%d", v.Int32())
	case netdesc.Uint32:
		return fmt.Sprintf("%d", v.Uint32())
	case netdesc.Int64:
		return fmt.Sprintf("%d", v.Int64())
	case netdesc.Float32:
		return fmt.Sprintf("%g", v.Float32())
	case netdesc.Float64:
		return fmt.Sprintf("%g", v.Float64())
	default:
		return "?"
	}
}
