package modbus

import "fmt"

// FunctionCode identifies a Modbus request type.
type FunctionCode byte

const (
	FuncReadCoils           FunctionCode = 1
	FuncReadDiscreteInputs  FunctionCode = 2
	FuncReadHoldingRegs     FunctionCode = 3
	FuncReadInputRegs       FunctionCode = 4
	FuncWriteSingleCoil     FunctionCode = 5
	FuncWriteSingleReg      FunctionCode = 6
	FuncWriteMultipleCoils  FunctionCode = 15
	FuncWriteMultipleRegs   FunctionCode = 16
)

// IsRead reports whether this function code reads from the device.
func (f FunctionCode) IsRead() bool {
	switch f {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegs, FuncReadInputRegs:
		return true
	default:
		return false
	}
}

// IsBitLevel reports whether this function code addresses single-bit coils
// or discrete inputs rather than 16-bit registers.
func (f FunctionCode) IsBitLevel() bool {
	switch f {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncWriteSingleCoil, FuncWriteMultipleCoils:
		return true
	default:
		return false
	}
}

// Address locates one point on a Modbus device: a slave, a function code,
// a starting register/coil number, the register format, and byte order.
// BitPosition is only meaningful when Format is FormatBool and the point
// is packed into one bit of a 16-bit holding/input register rather than
// addressed as its own coil — the bit-level addressing extension noted in
// SPEC_FULL.md, for devices that expose status flags as bitfields instead
// of discrete coils.
type Address struct {
	SlaveID      byte
	Function     FunctionCode
	Register     uint16
	Format       Format
	ByteOrder    ByteOrder
	BitPosition  *uint8 // 0-15, nil when the point occupies the whole register
}

// Validate checks internal consistency of the address: the format must be
// a known one, and BitPosition (if set) must be in range and only used
// with FormatBool on a register-level function code.
func (a Address) Validate() error {
	if a.BitPosition != nil {
		if *a.BitPosition > 15 {
			return fmt.Errorf("modbus: bit position %d out of range 0-15", *a.BitPosition)
		}
		if a.Format != FormatBool {
			return fmt.Errorf("modbus: bit position is only valid with FormatBool, got %s", a.Format)
		}
		if a.Function.IsBitLevel() {
			return fmt.Errorf("modbus: bit position is for register-packed bits, not coil function %d", a.Function)
		}
	}
	if a.Format.RegisterCount() == 0 {
		return fmt.Errorf("modbus: unknown format %q", a.Format)
	}
	return nil
}

// ExtractBit reads the bit at position from a register word.
func ExtractBit(reg uint16, position uint8) bool {
	return (reg>>position)&1 == 1
}

// SetBit returns reg with the bit at position set to value, leaving every
// other bit untouched — used when writing a single flag back into a
// register shared by several bit-packed points.
func SetBit(reg uint16, position uint8, value bool) uint16 {
	if value {
		return reg | (1 << position)
	}
	return reg &^ (1 << position)
}
