package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	cases := []struct {
		format Format
		order  ByteOrder
		value  float64
	}{
		{FormatUInt16, Abcd, 1234},
		{FormatInt16, Abcd, -1234},
		{FormatUInt32, Abcd, 123456789},
		{FormatUInt32, Dcba, 123456789},
		{FormatUInt32, Badc, 123456789},
		{FormatUInt32, Cdab, 123456789},
		{FormatInt32, Abcd, -123456789},
		{FormatFloat32, Abcd, 3.14},
		{FormatFloat32, Cdab, 3.14},
		{FormatUInt64, Abcd, 123456789012},
		{FormatInt64, Abcd, -123456789012},
		{FormatFloat64, Abcd, 2.71828182845},
		{FormatFloat64, Dcba, 2.71828182845},
	}

	for _, c := range cases {
		regs, err := Encode(c.format, c.order, c.value)
		require.NoError(t, err, "%s/%s", c.format, c.order)

		got, err := Decode(c.format, c.order, regs)
		require.NoError(t, err, "%s/%s", c.format, c.order)
		assert.InDelta(t, c.value, got, 1e-4, "%s/%s", c.format, c.order)
	}
}

func TestDecode_WrongRegisterCountErrors(t *testing.T) {
	_, err := Decode(FormatUInt32, Abcd, []uint16{1})
	require.Error(t, err)
}

func TestByteOrder_WordSwapDiffersFromByteSwap(t *testing.T) {
	regs, err := Encode(FormatUInt32, Abcd, 0x11223344)
	require.NoError(t, err)
	require.Len(t, regs, 2)
	assert.Equal(t, uint16(0x1122), regs[0])
	assert.Equal(t, uint16(0x3344), regs[1])

	cdab, err := Encode(FormatUInt32, Cdab, 0x11223344)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x3344), cdab[0])
	assert.Equal(t, uint16(0x1122), cdab[1])

	badc, err := Encode(FormatUInt32, Badc, 0x11223344)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x2211), badc[0])
	assert.Equal(t, uint16(0x4433), badc[1])
}
