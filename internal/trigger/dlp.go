// Package trigger sends TTL markers to a DLP-IO8-G box so stimulus onsets and
// offsets can be aligned with external recordings.
package trigger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"go.bug.st/serial"
)

// DefaultBaud is the DLP-IO8-G factory baud rate.
const DefaultBaud = 9600

const (
	cmdPing   = 0x27 // '
	cmdBinary = 0x5C // \
	pingReply = 'Q'
)

// ErrNoReply is returned when the device does not answer the ping.
var ErrNoReply = errors.New("trigger: device did not respond to ping")

// unsetCodes maps a line digit to the command that drives it low.
var unsetCodes = map[byte]byte{
	'1': 'Q', '2': 'W', '3': 'E', '4': 'R',
	'5': 'T', '6': 'Y', '7': 'U', '8': 'I',
}

// DLP drives the digital lines of a DLP-IO8-G.
type DLP struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

// Open opens the serial device and performs the handshake.
func Open(device string, baud int) (*DLP, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("opening trigger device %s: %w", device, err)
	}
	return New(port)
}

// New performs the handshake on an already open port. The port is closed if
// the handshake fails.
func New(port io.ReadWriteCloser) (*DLP, error) {
	d := &DLP{port: port}
	if err := d.Ping(); err != nil {
		port.Close()
		return nil, err
	}
	if _, err := port.Write([]byte{cmdBinary}); err != nil {
		port.Close()
		return nil, fmt.Errorf("switching trigger to binary mode: %w", err)
	}
	return d, nil
}

// Ping checks that the device answers.
func (d *DLP) Ping() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, err := d.port.Write([]byte{cmdPing}); err != nil {
		return fmt.Errorf("pinging trigger: %w", err)
	}
	buf := make([]byte, 1)
	n, err := d.port.Read(buf)
	if err != nil || n != 1 || buf[0] != pingReply {
		return ErrNoReply
	}
	return nil
}

// Set drives the given lines high, e.g. "1" or "13".
func (d *DLP) Set(lines string) error {
	if err := validLines(lines); err != nil {
		return err
	}
	return d.write([]byte(lines))
}

// Unset drives the given lines low.
func (d *DLP) Unset(lines string) error {
	if err := validLines(lines); err != nil {
		return err
	}
	cmd := make([]byte, len(lines))
	for i := range lines {
		cmd[i] = unsetCodes[lines[i]]
	}
	return d.write(cmd)
}

// Close closes the serial port.
func (d *DLP) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.port.Close()
}

func (d *DLP) write(cmd []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, err := d.port.Write(cmd); err != nil {
		slog.Warn("trigger write failed", "error", err)
		return fmt.Errorf("writing trigger command: %w", err)
	}
	return nil
}

func validLines(lines string) error {
	if lines == "" {
		return errors.New("trigger: no lines given")
	}
	for i := range lines {
		if _, ok := unsetCodes[lines[i]]; !ok {
			return fmt.Errorf("trigger: invalid line %q", lines[i])
		}
	}
	return nil
}
