package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddress_ValidateRejectsBitPositionOutOfRange(t *testing.T) {
	pos := uint8(16)
	addr := Address{Function: FuncReadHoldingRegs, Format: FormatBool, BitPosition: &pos}
	require.Error(t, addr.Validate())
}

func TestAddress_ValidateRejectsBitPositionOnCoilFunction(t *testing.T) {
	pos := uint8(3)
	addr := Address{Function: FuncReadCoils, Format: FormatBool, BitPosition: &pos}
	require.Error(t, addr.Validate())
}

func TestAddress_ValidateRejectsBitPositionWithNonBoolFormat(t *testing.T) {
	pos := uint8(3)
	addr := Address{Function: FuncReadHoldingRegs, Format: FormatUInt16, BitPosition: &pos}
	require.Error(t, addr.Validate())
}

func TestAddress_ValidateAcceptsWellFormedBitAddress(t *testing.T) {
	pos := uint8(7)
	addr := Address{Function: FuncReadHoldingRegs, Format: FormatBool, BitPosition: &pos}
	require.NoError(t, addr.Validate())
}

func TestExtractAndSetBit(t *testing.T) {
	var reg uint16 = 0
	reg = SetBit(reg, 3, true)
	assert.True(t, ExtractBit(reg, 3))
	assert.False(t, ExtractBit(reg, 4))

	reg = SetBit(reg, 3, false)
	assert.False(t, ExtractBit(reg, 3))
}

func TestFunctionCode_IsReadAndIsBitLevel(t *testing.T) {
	assert.True(t, FuncReadHoldingRegs.IsRead())
	assert.False(t, FuncWriteSingleReg.IsRead())
	assert.True(t, FuncReadCoils.IsBitLevel())
	assert.False(t, FuncReadHoldingRegs.IsBitLevel())
}
