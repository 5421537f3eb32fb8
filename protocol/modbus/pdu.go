package modbus

import (
	"context"
	"encoding/binary"
	"fmt"
)

// buildReadRequest constructs a Modbus PDU (function code + starting
// address + quantity) for one of the four read function codes. Transport
// framing (MBAP header or RTU CRC) is added by the Transport, not here.
func (a *Adapter) buildReadRequest(addr Address, quantity uint16) []byte {
	pdu := make([]byte, 5)
	pdu[0] = byte(addr.Function)
	binary.BigEndian.PutUint16(pdu[1:], addr.Register)
	binary.BigEndian.PutUint16(pdu[3:], quantity)
	return withSlaveID(addr.SlaveID, pdu)
}

func withSlaveID(slaveID byte, pdu []byte) []byte {
	return append([]byte{slaveID}, pdu...)
}

// parseReadResponse extracts the register words from a read response:
// for register functions, byteCount/2 words (count is not consulted).
// For bit-level functions (coils/discrete inputs) the packed response
// bytes are unpacked into count slots, one bit per register slot, so
// callers can treat both families uniformly.
func parseReadResponse(resp []byte, fn FunctionCode, count int) ([]uint16, error) {
	if len(resp) < 2 {
		return nil, fmt.Errorf("modbus: response too short")
	}
	// slave id, function code, byte count, data...
	if len(resp) < 3 {
		return nil, fmt.Errorf("modbus: response missing byte count")
	}
	byteCount := int(resp[2])
	data := resp[3:]
	if len(data) < byteCount {
		return nil, fmt.Errorf("modbus: response data shorter than byte count")
	}
	data = data[:byteCount]

	if fn.IsBitLevel() {
		regs := make([]uint16, count)
		for i := 0; i < count; i++ {
			byteIdx := i / 8
			bitIdx := uint(i % 8)
			if byteIdx >= len(data) {
				break
			}
			if (data[byteIdx]>>bitIdx)&1 == 1 {
				regs[i] = 1
			}
		}
		return regs, nil
	}

	regs := make([]uint16, byteCount/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(data[i*2:])
	}
	return regs, nil
}

// writeCoil writes a single boolean point: FuncWriteSingleCoil for a true
// coil address, or a read-modify-write against the holding register when
// BitPosition addresses a flag packed into a shared register.
func (a *Adapter) writeCoil(ctx context.Context, tr Transport, addr Address, value bool) error {
	if addr.BitPosition != nil {
		return a.writeBitInRegister(ctx, tr, addr, value)
	}

	coilValue := uint16(0x0000)
	if value {
		coilValue = 0xFF00
	}
	pdu := make([]byte, 5)
	pdu[0] = byte(FuncWriteSingleCoil)
	binary.BigEndian.PutUint16(pdu[1:], addr.Register)
	binary.BigEndian.PutUint16(pdu[3:], coilValue)

	return a.roundTrip(ctx, tr, withSlaveID(addr.SlaveID, pdu))
}

// writeBitInRegister reads the current register, flips one bit, and
// writes the whole register back — the only safe way to change a single
// bit-packed flag without clobbering its siblings.
func (a *Adapter) writeBitInRegister(ctx context.Context, tr Transport, addr Address, value bool) error {
	readReq := a.buildReadRequest(Address{SlaveID: addr.SlaveID, Function: FuncReadHoldingRegs, Register: addr.Register}, 1)
	if err := tr.WriteRaw(ctx, readReq); err != nil {
		return err
	}
	resp, err := tr.ReadRaw(ctx)
	if err != nil {
		return err
	}
	regs, err := parseReadResponse(resp, FuncReadHoldingRegs, 1)
	if err != nil {
		return err
	}

	updated := SetBit(regs[0], *addr.BitPosition, value)
	pdu := make([]byte, 5)
	pdu[0] = byte(FuncWriteSingleReg)
	binary.BigEndian.PutUint16(pdu[1:], addr.Register)
	binary.BigEndian.PutUint16(pdu[3:], updated)
	return a.roundTrip(ctx, tr, withSlaveID(addr.SlaveID, pdu))
}

// writeRegisters writes an analog adjustment point, encoding value per
// the point's format and byte order and using FuncWriteSingleReg for a
// one-register value or FuncWriteMultipleRegs otherwise.
func (a *Adapter) writeRegisters(ctx context.Context, tr Transport, addr Address, value float64) error {
	regs, err := Encode(addr.Format, addr.ByteOrder, value)
	if err != nil {
		return err
	}

	if len(regs) == 1 {
		pdu := make([]byte, 5)
		pdu[0] = byte(FuncWriteSingleReg)
		binary.BigEndian.PutUint16(pdu[1:], addr.Register)
		binary.BigEndian.PutUint16(pdu[3:], regs[0])
		return a.roundTrip(ctx, tr, withSlaveID(addr.SlaveID, pdu))
	}

	byteCount := len(regs) * 2
	pdu := make([]byte, 6+byteCount)
	pdu[0] = byte(FuncWriteMultipleRegs)
	binary.BigEndian.PutUint16(pdu[1:], addr.Register)
	binary.BigEndian.PutUint16(pdu[3:], uint16(len(regs)))
	pdu[5] = byte(byteCount)
	for i, r := range regs {
		binary.BigEndian.PutUint16(pdu[6+i*2:], r)
	}
	return a.roundTrip(ctx, tr, withSlaveID(addr.SlaveID, pdu))
}

func (a *Adapter) roundTrip(ctx context.Context, tr Transport, req []byte) error {
	if err := tr.WriteRaw(ctx, req); err != nil {
		return err
	}
	_, err := tr.ReadRaw(ctx)
	return err
}
