package packet

import (
	"fmt"
	"io"
)

// Sender writes frames to a byte sink one byte at a time. It keeps no state
// between calls and never retries; the first sink failure is returned as a
// *SinkError.
type Sender struct {
	sink    io.ByteWriter
	textCap int
}

func NewSender(sink io.ByteWriter) *Sender {
	return &Sender{sink: sink, textCap: DefaultTextCapacity}
}

// WithTextCapacity bounds SendTextFrame payloads to the peer's text store,
// NUL slot included. Values below 2 keep the default.
func (s *Sender) WithTextCapacity(n int) *Sender {
	if n > 1 {
		s.textCap = n
	}
	return s
}

// MaxTextPayload is the longest payload SendTextFrame accepts.
func (s *Sender) MaxTextPayload() int {
	return s.textCap - 1
}

// Send transmits a binary frame. The payload must be exactly 4 bytes.
func (s *Sender) Send(payload []byte) error {
	wire, err := EncodeBinary(payload)
	if err != nil {
		return fmt.Errorf("send binary frame: %w", err)
	}
	return s.write(wire)
}

// SendTextFrame transmits '@' payload "\r\n".
func (s *Sender) SendTextFrame(payload string) error {
	if len(payload) > s.MaxTextPayload() {
		return fmt.Errorf("send text frame: %w", ErrPayloadTooLong)
	}
	wire, err := EncodeText([]byte(payload))
	if err != nil {
		return fmt.Errorf("send text frame: %w", err)
	}
	return s.write(wire)
}

// SendText transmits line verbatim. Responses such as "LED_ON_OK\r\n" carry
// their own terminator.
func (s *Sender) SendText(line string) error {
	return s.write([]byte(line))
}

func (s *Sender) write(wire []byte) error {
	for i, b := range wire {
		if err := s.sink.WriteByte(b); err != nil {
			return &SinkError{Offset: i, Err: err}
		}
	}
	return nil
}

// WriterSink adapts an io.Writer to a blocking, unbuffered io.ByteWriter.
func WriterSink(w io.Writer) io.ByteWriter {
	return writerSink{w: w}
}

type writerSink struct {
	w io.Writer
}

func (ws writerSink) WriteByte(b byte) error {
	one := [1]byte{b}
	n, err := ws.w.Write(one[:])
	if err != nil {
		return err
	}
	if n != 1 {
		return io.ErrShortWrite
	}
	return nil
}
