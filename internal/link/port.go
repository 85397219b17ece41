package link

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/danmuck/uartframe/internal/config"
	"go.bug.st/serial"
)

// Port is the byte sink collaborator. A read that times out returns 0, nil.
type Port interface {
	io.ReadWriteCloser
}

// Opener yields a freshly opened port. It is called again on reconnect.
type Opener func() (Port, error)

// SerialOpener opens cfg.Device with go.bug.st/serial.
func SerialOpener(cfg config.PortConfig) Opener {
	return func() (Port, error) {
		return OpenSerial(cfg)
	}
}

func OpenSerial(cfg config.PortConfig) (serial.Port, error) {
	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}
	timeout, err := cfg.Timeout()
	if err != nil {
		return nil, fmt.Errorf("link: read_timeout: %w", err)
	}
	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("link: open %s: %w", cfg.Device, err)
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("link: set read timeout on %s: %w", cfg.Device, err)
	}
	return port, nil
}

func serialMode(cfg config.PortConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Parity)) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("link: unknown parity %q", cfg.Parity)
	}
	switch strings.TrimSpace(cfg.StopBits) {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("link: unknown stop bits %q", cfg.StopBits)
	}
	return mode, nil
}

// ListPorts returns the serial devices visible to the host.
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("link: list ports: %w", err)
	}
	return ports, nil
}

// lockedWriter serializes whole frames onto the tx half.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw lockedWriter) Write(p []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(p)
}
