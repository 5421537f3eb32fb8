// Package modbus is the Modbus TCP/RTU reference Adapter: function codes
// 1/2/3/4/5/6/15/16 over a shared byte-order/format codec, plus
// bit-position addressing for boolean points packed into a 16-bit
// register.
//
// No Modbus library exists anywhere in the retrieval pack this module was
// grounded on, so the codec below is implemented directly on
// encoding/binary — the one standard-library exception in the domain
// stack (see DESIGN.md). Transport framing follows the byte-oriented
// Transport interface convention (WriteRaw/ReadRaw/Close) found in the
// example pack.
package modbus

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format is the on-wire representation of a register value.
type Format string

const (
	FormatBool    Format = "Bool"
	FormatUInt16  Format = "UInt16"
	FormatInt16   Format = "Int16"
	FormatUInt32  Format = "UInt32"
	FormatInt32   Format = "Int32"
	FormatUInt64  Format = "UInt64"
	FormatInt64   Format = "Int64"
	FormatFloat32 Format = "Float32"
	FormatFloat64 Format = "Float64"
)

// RegisterCount returns how many 16-bit registers a value of this format
// occupies.
func (f Format) RegisterCount() int {
	switch f {
	case FormatBool, FormatUInt16, FormatInt16:
		return 1
	case FormatUInt32, FormatInt32, FormatFloat32:
		return 2
	case FormatUInt64, FormatInt64, FormatFloat64:
		return 4
	default:
		return 0
	}
}

// ByteOrder names the word/byte permutation applied to a multi-register
// value. Abcd is big-endian (register order and byte order both
// increasing); Dcba is little-endian (both reversed); Badc swaps bytes
// within each word but keeps word order; Cdab swaps word order but keeps
// byte order within each word. 8-byte formats extend the same 2-register
// pattern across 4 registers.
type ByteOrder string

const (
	Abcd ByteOrder = "Abcd"
	Dcba ByteOrder = "Dcba"
	Badc ByteOrder = "Badc"
	Cdab ByteOrder = "Cdab"
)

// registersToBytes reorders raw register words into a big-endian byte
// stream according to order, then decodes it per format.
func registersToBytes(order ByteOrder, regs []uint16) []byte {
	n := len(regs)
	words := make([]uint16, n)
	switch order {
	case Abcd:
		copy(words, regs)
	case Dcba:
		for i, r := range regs {
			words[n-1-i] = swapBytes(r)
		}
	case Badc:
		for i, r := range regs {
			words[i] = swapBytes(r)
		}
	case Cdab:
		for i, r := range regs {
			words[n-1-i] = r
		}
	default:
		copy(words, regs)
	}

	buf := make([]byte, n*2)
	for i, w := range words {
		binary.BigEndian.PutUint16(buf[i*2:], w)
	}
	return buf
}

// bytesToRegisters is the inverse of registersToBytes: given a big-endian
// byte stream, produce the register words a device expecting the given
// order would receive.
func bytesToRegisters(order ByteOrder, data []byte) []uint16 {
	n := len(data) / 2
	words := make([]uint16, n)
	for i := 0; i < n; i++ {
		words[i] = binary.BigEndian.Uint16(data[i*2:])
	}

	regs := make([]uint16, n)
	switch order {
	case Abcd:
		copy(regs, words)
	case Dcba:
		for i, w := range words {
			regs[n-1-i] = swapBytes(w)
		}
	case Badc:
		for i, w := range words {
			regs[i] = swapBytes(w)
		}
	case Cdab:
		for i, w := range words {
			regs[n-1-i] = w
		}
	default:
		copy(regs, words)
	}
	return regs
}

func swapBytes(w uint16) uint16 {
	return (w << 8) | (w >> 8)
}

// Decode converts raw register words (in wire order) to an engineering
// float64, per format and byte order.
func Decode(format Format, order ByteOrder, regs []uint16) (float64, error) {
	if format.RegisterCount() != 0 && len(regs) != format.RegisterCount() {
		return 0, fmt.Errorf("modbus: decode %s: expected %d registers, got %d", format, format.RegisterCount(), len(regs))
	}
	buf := registersToBytes(order, regs)

	switch format {
	case FormatBool, FormatUInt16:
		return float64(binary.BigEndian.Uint16(buf)), nil
	case FormatInt16:
		return float64(int16(binary.BigEndian.Uint16(buf))), nil
	case FormatUInt32:
		return float64(binary.BigEndian.Uint32(buf)), nil
	case FormatInt32:
		return float64(int32(binary.BigEndian.Uint32(buf))), nil
	case FormatUInt64:
		return float64(binary.BigEndian.Uint64(buf)), nil
	case FormatInt64:
		return float64(int64(binary.BigEndian.Uint64(buf))), nil
	case FormatFloat32:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(buf))), nil
	case FormatFloat64:
		return math.Float64frombits(binary.BigEndian.Uint64(buf)), nil
	default:
		return 0, fmt.Errorf("modbus: unknown format %q", format)
	}
}

// Encode converts an engineering float64 to raw register words (in wire
// order), per format and byte order.
func Encode(format Format, order ByteOrder, value float64) ([]uint16, error) {
	buf := make([]byte, format.RegisterCount()*2)
	if len(buf) == 0 {
		return nil, fmt.Errorf("modbus: unknown format %q", format)
	}

	switch format {
	case FormatBool, FormatUInt16:
		binary.BigEndian.PutUint16(buf, uint16(value))
	case FormatInt16:
		binary.BigEndian.PutUint16(buf, uint16(int16(value)))
	case FormatUInt32:
		binary.BigEndian.PutUint32(buf, uint32(value))
	case FormatInt32:
		binary.BigEndian.PutUint32(buf, uint32(int32(value)))
	case FormatUInt64:
		binary.BigEndian.PutUint64(buf, uint64(value))
	case FormatInt64:
		binary.BigEndian.PutUint64(buf, uint64(int64(value)))
	case FormatFloat32:
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(value)))
	case FormatFloat64:
		binary.BigEndian.PutUint64(buf, math.Float64bits(value))
	default:
		return nil, fmt.Errorf("modbus: unknown format %q", format)
	}

	return bytesToRegisters(order, buf), nil
}
