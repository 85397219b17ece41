package scan

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/danmuck/uartframe/internal/config"
)

// ErrNoSample means the source timed out without a full sample. The scanner
// retries the same channel.
var ErrNoSample = errors.New("scan: no sample ready")

// ReaderSampler decodes little-endian 16-bit samples from a byte stream such
// as an ADC bridge on a serial port. The stream is already channel ordered,
// so the channel argument is not consulted. A half-received sample is kept
// across read timeouts.
type ReaderSampler struct {
	r   io.Reader
	buf [2]byte
	n   int
}

func NewReaderSampler(r io.Reader) *ReaderSampler {
	return &ReaderSampler{r: r}
}

func (s *ReaderSampler) Sample(int) (uint16, error) {
	for s.n < len(s.buf) {
		n, err := s.r.Read(s.buf[s.n:])
		s.n += n
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, ErrNoSample
		}
	}
	s.n = 0
	return binary.LittleEndian.Uint16(s.buf[:]), nil
}

// FromConfig builds a scanner over sampler from a validated scan block.
func FromConfig(cfg config.ScanConfig, sampler Sampler) (*Scanner, error) {
	if err := config.ValidateScanConfig(cfg); err != nil {
		return nil, err
	}
	s, err := NewScanner(cfg.Name, cfg.Channels, cfg.Rounds, sampler)
	if err != nil {
		return nil, err
	}
	interval, err := cfg.Every()
	if err != nil {
		return nil, err
	}
	s.Interval = interval
	return s, nil
}
