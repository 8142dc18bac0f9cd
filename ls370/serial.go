/*
Author: Paul Côté
Last Change Author: Paul Côté
Last Date Changed: 2022/08/19
*/

package ls370

import (
	"bytes"
	"fmt"
	"time"

	bg "github.com/SSSOCPaulCote/blunderguard"
	"go.bug.st/serial"
)

const (
	defaultReadTimeout = 2 * time.Second

	ErrInvalidBaudRate = bg.Error("baud rate must be 300, 1200 or 9600")
)

var lineDelim = []byte("\r\n")

// Channel is the duplex byte stream a Connection drives. A Connection holds
// it only for the duration of one operation; opening and closing belong to
// the transport owner.
type Channel interface {
	// Write transmits a complete command line including its terminator.
	Write(p []byte) error
	// ReadLine reads the next CR+LF terminated line, without the
	// terminator. An expired read timeout returns an empty line and no
	// error; the interpreter collapses that to NoResponse.
	ReadLine() (string, error)
	// ResetInput discards stale bytes left over from a prior unterminated
	// response. Called before every transmit.
	ResetInput() error
}

// SerialChannel is the serial port transport for the bridge: odd parity,
// one stop bit, data bits per the command dialect.
type SerialChannel struct {
	port serial.Port
}

var _ Channel = (*SerialChannel)(nil)

// Dial opens the named serial port with the 370's framing. The bridge only
// speaks 300, 1200 or 9600 baud.
func Dial(portName string, baudRate int, dialect Dialect) (*SerialChannel, error) {
	switch baudRate {
	case 300, 1200, 9600:
	default:
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBaudRate, baudRate)
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: dialect.DataBits(),
		Parity:   serial.OddParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	if err := port.SetReadTimeout(defaultReadTimeout); err != nil {
		port.Close()
		return nil, err
	}
	return &SerialChannel{port: port}, nil
}

func (s *SerialChannel) Write(p []byte) error {
	_, err := s.port.Write(p)
	return err
}

// ReadLine accumulates bytes until the CR+LF terminator or the port read
// timeout. Whatever arrived before an expired timeout is returned as-is;
// with nothing buffered that is the empty line.
func (s *SerialChannel) ReadLine() (string, error) {
	var buf []byte
	tmp := make([]byte, 64)
	for {
		n, err := s.port.Read(tmp)
		if err != nil {
			return "", err
		}
		if n == 0 {
			// read timeout expired
			return string(buf), nil
		}
		buf = append(buf, tmp[:n]...)
		if bytes.HasSuffix(buf, lineDelim) {
			return string(buf[:len(buf)-len(lineDelim)]), nil
		}
	}
}

func (s *SerialChannel) ResetInput() error {
	return s.port.ResetInputBuffer()
}

// Close releases the port. Owned by whoever dialed, not by the Connection.
func (s *SerialChannel) Close() error {
	return s.port.Close()
}
