package modbus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCRC16_KnownVector(t *testing.T) {
	// Read Holding Registers request, slave 1, addr 0, qty 10 — a
	// commonly cited Modbus RTU CRC test vector.
	req := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}
	crc := crc16(req)
	assert.Equal(t, uint16(0xCDC5), crc)
}

func TestCRC16_DifferentPayloadsDifferentCRC(t *testing.T) {
	a := crc16([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	b := crc16([]byte{0x01, 0x03, 0x00, 0x01, 0x00, 0x0A})
	assert.NotEqual(t, a, b)
}
