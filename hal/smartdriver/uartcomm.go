//go:build tinygo

package smartdriver

import (
	"machine"
	"time"
)

// syncByte is the fixed UART datagram sync byte every TMC2209 frame
// (read request, write request, and read reply) starts with.
const syncByte = 0x05

// UARTComm implements RegisterComm over a single-wire UART: a 4-byte
// read request or an 8-byte write datagram, each terminated by a CRC8
// checksum over the preceding bytes.
type UARTComm struct {
	uart    machine.UART
	address uint8
	timeout time.Duration
}

// NewUARTComm binds communication to an already-Configure'd UART.
func NewUARTComm(uart machine.UART, address uint8) *UARTComm {
	return &UARTComm{uart: uart, address: address, timeout: 100 * time.Millisecond}
}

// Setup configures the UART's baud rate. The caller is responsible for
// wiring the TX/RX pins beforehand.
func (c *UARTComm) Setup() error {
	return c.uart.Configure(machine.UARTConfig{BaudRate: 115200})
}

// WriteRegister sends an 8-byte write datagram: sync, address, register
// with the write bit set, the 4-byte big-endian value, and a trailing
// CRC8 checksum over the first 7 bytes.
func (c *UARTComm) WriteRegister(register uint8, value uint32, driverIndex uint8) error {
	buf := [8]byte{
		syncByte,
		driverIndex,
		register | 0x80,
		byte(value >> 24),
		byte(value >> 16),
		byte(value >> 8),
		byte(value),
	}
	buf[7] = calculateCRC(buf[:7])

	done := make(chan error, 1)
	go func() {
		_, err := c.uart.Write(buf[:])
		done <- err
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(c.timeout):
		return CustomError("smartdriver: write timeout")
	}
}

// ReadRegister sends a 4-byte read request and expects an 8-byte reply
// echoing sync/address/register before the 4-byte value and checksum.
func (c *UARTComm) ReadRegister(register uint8, driverIndex uint8) (uint32, error) {
	req := [4]byte{syncByte, driverIndex, register & 0x7F, 0}
	req[3] = calculateCRC(req[:3])

	type result struct {
		buf [8]byte
		err error
	}
	done := make(chan result, 1)
	go func() {
		if _, err := c.uart.Write(req[:]); err != nil {
			done <- result{err: err}
			return
		}
		var r result
		_, r.err = c.uart.Read(r.buf[:])
		done <- r
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return 0, r.err
		}
		if calculateCRC(r.buf[:7]) != r.buf[7] {
			return 0, CustomError("smartdriver: checksum mismatch")
		}
		return uint32(r.buf[3])<<24 | uint32(r.buf[4])<<16 | uint32(r.buf[5])<<8 | uint32(r.buf[6]), nil
	case <-time.After(c.timeout):
		return 0, CustomError("smartdriver: read timeout")
	}
}
