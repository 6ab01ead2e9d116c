package pdi

import (
	"encoding/binary"
	"fmt"

	"github.com/distributed/ecatmaster/netdesc"
)

// Encode writes v into buf starting at byteOffset. All multi-byte
// integers and floats are little-endian, per spec.md §4.2. For Bool,
// bitOffset selects the bit within buf[byteOffset] and every other bit in
// that byte is preserved via read-modify-write (spec.md §4.2, and the
// mask-preservation property of spec.md §8).
//
// This replaces the teacher's ecfr/marshalling.go big-endian
// getUint16/putUint32 cursor helpers: the wire and PDI convention here is
// little-endian, so reusing those functions verbatim would silently
// violate spec.md's invariant I3-adjacent little-endian requirement.
func Encode(buf []byte, byteOffset, bitOffset int, dt netdesc.DataType, v Value) error {
	switch dt {
	case netdesc.Bool:
		if byteOffset < 0 || byteOffset >= len(buf) {
			return fmt.Errorf("pdi: encode BOOL: offset %d out of range (len %d)", byteOffset, len(buf))
		}
		if bitOffset < 0 || bitOffset > 7 {
			return fmt.Errorf("pdi: encode BOOL: bit offset %d out of range", bitOffset)
		}
		mask := byte(1) << uint(bitOffset)
		if v.Bool() {
			buf[byteOffset] |= mask
		} else {
			buf[byteOffset] &^= mask
		}
		return nil
	case netdesc.Int8, netdesc.Uint8:
		if err := needBytes(buf, byteOffset, 1); err != nil {
			return err
		}
		buf[byteOffset] = v.Uint8()
		return nil
	case netdesc.Int16, netdesc.Uint16:
		if err := needBytes(buf, byteOffset, 2); err != nil {
			return err
		}
		binary.LittleEndian.PutUint16(buf[byteOffset:], v.Uint16())
		return nil
	case netdesc.Int32, netdesc.Uint32:
		if err := needBytes(buf, byteOffset, 4); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[byteOffset:], v.Uint32())
		return nil
	case netdesc.Float32:
		if err := needBytes(buf, byteOffset, 4); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[byteOffset:], uint32(v.bits))
		return nil
	case netdesc.Int64:
		if err := needBytes(buf, byteOffset, 8); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(buf[byteOffset:], v.Uint64())
		return nil
	case netdesc.Float64:
		if err := needBytes(buf, byteOffset, 8); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(buf[byteOffset:], v.bits)
		return nil
	default:
		return fmt.Errorf("pdi: encode: unsupported data type %v", dt)
	}
}

// Decode reads dt back out of buf starting at byteOffset, mirroring Encode.
func Decode(buf []byte, byteOffset, bitOffset int, dt netdesc.DataType) (Value, error) {
	switch dt {
	case netdesc.Bool:
		if byteOffset < 0 || byteOffset >= len(buf) {
			return Value{}, fmt.Errorf("pdi: decode BOOL: offset %d out of range (len %d)", byteOffset, len(buf))
		}
		if bitOffset < 0 || bitOffset > 7 {
			return Value{}, fmt.Errorf("pdi: decode BOOL: bit offset %d out of range", bitOffset)
		}
		bit := buf[byteOffset]&(1<<uint(bitOffset)) != 0
		return BoolValue(bit), nil
	case netdesc.Int8:
		if err := needBytes(buf, byteOffset, 1); err != nil {
			return Value{}, err
		}
		return Int8Value(int8(buf[byteOffset])), nil
	case netdesc.Uint8:
		if err := needBytes(buf, byteOffset, 1); err != nil {
			return Value{}, err
		}
		return Uint8Value(buf[byteOffset]), nil
	case netdesc.Int16:
		if err := needBytes(buf, byteOffset, 2); err != nil {
			return Value{}, err
		}
		return Int16Value(int16(binary.LittleEndian.Uint16(buf[byteOffset:]))), nil
	case netdesc.Uint16:
		if err := needBytes(buf, byteOffset, 2); err != nil {
			return Value{}, err
		}
		return Uint16Value(binary.LittleEndian.Uint16(buf[byteOffset:])), nil
	case netdesc.Int32:
		if err := needBytes(buf, byteOffset, 4); err != nil {
			return Value{}, err
		}
		return Int32Value(int32(binary.LittleEndian.Uint32(buf[byteOffset:]))), nil
	case netdesc.Uint32:
		if err := needBytes(buf, byteOffset, 4); err != nil {
			return Value{}, err
		}
		return Uint32Value(binary.LittleEndian.Uint32(buf[byteOffset:])), nil
	case netdesc.Float32:
		if err := needBytes(buf, byteOffset, 4); err != nil {
			return Value{}, err
		}
		bits := binary.LittleEndian.Uint32(buf[byteOffset:])
		return Value{Type: netdesc.Float32, bits: uint64(bits)}, nil
	case netdesc.Int64:
		if err := needBytes(buf, byteOffset, 8); err != nil {
			return Value{}, err
		}
		return Int64Value(int64(binary.LittleEndian.Uint64(buf[byteOffset:]))), nil
	case netdesc.Float64:
		if err := needBytes(buf, byteOffset, 8); err != nil {
			return Value{}, err
		}
		bits := binary.LittleEndian.Uint64(buf[byteOffset:])
		return Value{Type: netdesc.Float64, bits: bits}, nil
	default:
		return Value{}, fmt.Errorf("pdi: decode: unsupported data type %v", dt)
	}
}

func needBytes(buf []byte, offset, n int) error {
	if offset < 0 || offset+n > len(buf) {
		return fmt.Errorf("pdi: need %d bytes at offset %d, buffer is %d bytes", n, offset, len(buf))
	}
	return nil
}

// Uint64 exposes the raw bit pattern for callers (e.g. Encode's Int64
// case) that need the full 64-bit width; unexported field access stays
// inside the package otherwise.
func (v Value) Uint64() uint64 { return v.bits }
