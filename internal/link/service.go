package link

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/danmuck/uartframe/internal/config"
	"github.com/danmuck/uartframe/internal/observability"
	"github.com/danmuck/uartframe/internal/packet"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrInvalidPollInterval = errors.New("link: invalid poll interval")
	ErrUnknownMode         = errors.New("link: unknown mode")
	ErrNotConnected        = errors.New("link: port not connected")
	ErrNoHandler           = errors.New("link: framed mode requires a handler")
)

// Handler acts on a consumed frame in the foreground. tx is valid only for the
// duration of the call.
type Handler interface {
	HandleFrame(f packet.Frame, tx *packet.Sender) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(f packet.Frame, tx *packet.Sender) error

func (fn HandlerFunc) HandleFrame(f packet.Frame, tx *packet.Sender) error {
	return fn(f, tx)
}

// Config configures one link.
type Config struct {
	Name          string
	Mode          string
	PollInterval  time.Duration
	FrameDeadline time.Duration
	TextCapacity  int
	EchoCapacity  int
	Reconnect     bool
	Backoff       BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Name:          "usart1",
		Mode:          config.ModeText,
		PollInterval:  time.Millisecond,
		FrameDeadline: packet.DefaultTextDeadline,
		TextCapacity:  packet.DefaultTextCapacity,
		EchoCapacity:  DefaultEchoCapacity,
		Reconnect:     true,
		Backoff:       DefaultBackoff(),
	}
}

// ConfigFromFile converts a loaded link config.
func ConfigFromFile(fc config.LinkConfig) (Config, error) {
	cfg := DefaultConfig()
	cfg.Name = strings.TrimSpace(fc.Name)
	cfg.Mode = fc.Mode
	cfg.TextCapacity = fc.TextCapacity
	cfg.EchoCapacity = fc.EchoCapacity
	cfg.Reconnect = fc.Reconnect
	poll, err := fc.PollEvery()
	if err != nil {
		return Config{}, fmt.Errorf("parse poll_interval: %w", err)
	}
	cfg.PollInterval = poll
	deadline, err := fc.Deadline()
	if err != nil {
		return Config{}, fmt.Errorf("parse frame_deadline: %w", err)
	}
	cfg.FrameDeadline = deadline
	return cfg, nil
}

// Status is a point-in-time view for the status API.
type Status struct {
	Link           string            `json:"link"`
	Mode           string            `json:"mode"`
	Connected      bool              `json:"connected"`
	State          string            `json:"state,omitempty"`
	Flag           string            `json:"flag,omitempty"`
	FramesReceived uint64            `json:"frames_received"`
	FramesSent     uint64            `json:"frames_sent"`
	ErrorCount     uint64            `json:"error_count"`
	ErrorsByKind   map[string]uint64 `json:"errors_by_kind"`
	LastError      string            `json:"last_error,omitempty"`
	Uptime         string            `json:"uptime"`
}

// Service owns one receiver for the process lifetime and runs it against
// successive port sessions.
type Service struct {
	cfg      Config
	open     Opener
	handler  Handler
	receiver packet.Receiver
	errs     *packet.ErrorLog
	logger   zerolog.Logger
	started  time.Time
	rng      *rand.Rand

	txMu sync.Mutex
	port Port

	connected      atomic.Bool
	framesReceived atomic.Uint64
	framesSent     atomic.Uint64

	// seenErrors is touched only by the foreground loop.
	seenErrors uint64
}

func NewService(cfg Config, open Opener, handler Handler) (*Service, error) {
	if cfg.PollInterval <= 0 {
		return nil, ErrInvalidPollInterval
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = DefaultConfig().Name
	}
	s := &Service{
		cfg:     cfg,
		open:    open,
		handler: handler,
		errs:    &packet.ErrorLog{},
		logger:  log.Logger.With().Str("link", cfg.Name).Str("mode", cfg.Mode).Logger(),
		started: time.Now(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	opts := []packet.Option{
		packet.WithDeadline(cfg.FrameDeadline),
		packet.WithErrorLog(s.errs),
	}
	switch cfg.Mode {
	case config.ModeText:
		opts = append(opts, packet.WithCapacity(cfg.TextCapacity))
		s.receiver = packet.NewTextReceiver(opts...)
	case config.ModeHex:
		s.receiver = packet.NewBinaryReceiver(opts...)
	case config.ModeEcho:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, cfg.Mode)
	}
	if s.receiver != nil && handler == nil {
		return nil, ErrNoHandler
	}
	return s, nil
}

func (s *Service) Name() string {
	return s.cfg.Name
}

// Receiver is nil in echo mode.
func (s *Service) Receiver() packet.Receiver {
	return s.receiver
}

func (s *Service) Errors() *packet.ErrorLog {
	return s.errs
}

func (s *Service) variant() string {
	if s.receiver == nil {
		return "echo"
	}
	return string(s.receiver.Variant())
}

// Run opens the port and serves sessions until ctx ends. With Reconnect set,
// a failed open or a dead port is retried with backoff.
func (s *Service) Run(ctx context.Context) error {
	attempt := 0
	for {
		port, err := s.open()
		if err != nil {
			observability.RecordReconnect(s.cfg.Name, false)
			if !s.cfg.Reconnect {
				return err
			}
			attempt++
			delay := NextBackoffDelay(s.cfg.Backoff, attempt, s.rng)
			s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("port_open_failed")
			if !waitBackoff(ctx, delay) {
				return nil
			}
			continue
		}
		if attempt > 0 {
			observability.RecordReconnect(s.cfg.Name, true)
		}
		attempt = 0
		s.logger.Info().Msg("port_opened")

		err = s.session(ctx, port)
		if ctx.Err() != nil {
			return nil
		}
		if !s.cfg.Reconnect {
			return err
		}
		s.logger.Warn().Err(err).Msg("port_lost")
		attempt++
		if !waitBackoff(ctx, NextBackoffDelay(s.cfg.Backoff, attempt, s.rng)) {
			return nil
		}
	}
}

// session runs one pump plus the foreground loop over an open port.
func (s *Service) session(ctx context.Context, port Port) error {
	s.txMu.Lock()
	s.port = port
	s.txMu.Unlock()
	s.connected.Store(true)

	defer func() {
		s.connected.Store(false)
		s.txMu.Lock()
		s.port = nil
		s.txMu.Unlock()
	}()

	var consumer Consumer = s.receiver
	if s.receiver == nil {
		consumer = NewEcho(s.cfg.Name, s.cfg.EchoCapacity, lockedWriter{mu: &s.txMu, w: port}, s.logger)
	}
	pump := NewPump(s.cfg.Name, s.variant(), port, consumer, s.logger)

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pumpErr := make(chan error, 1)
	go func() {
		pumpErr <- pump.Run(pumpCtx)
	}()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			cancel()
			port.Close()
			<-pumpErr
			return nil
		case err := <-pumpErr:
			port.Close()
			s.PollOnce()
			if err == nil {
				err = ErrRxClosed
			}
			return err
		case <-ticker.C:
			s.PollOnce()
		}
	}
}

// PollOnce is one pass of the foreground loop: report new framing errors, then
// consume at most one frame.
func (s *Service) PollOnce() {
	s.observeErrors()
	if s.receiver == nil {
		return
	}
	f, ok := s.receiver.Poll()
	if !ok {
		return
	}
	s.framesReceived.Add(1)
	observability.RecordFrameReceived(s.cfg.Name, string(f.Variant))
	s.logger.Debug().Int("bytes", len(f.Payload)).Msg("frame_received")

	err := s.Transmit(func(tx *packet.Sender) error {
		return s.handler.HandleFrame(f, tx)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("frame_handler_failed")
	}
}

func (s *Service) observeErrors() {
	count := s.errs.Count()
	if count == s.seenErrors {
		return
	}
	delta := count - s.seenErrors
	s.seenErrors = count
	event := s.logger.Warn().Uint64("new", delta).Uint64("total", count)
	if last := s.errs.Last(); last != nil {
		event = event.Err(last)
	}
	event.Msg("framing_errors")
}

// Transmit runs fn with exclusive use of the tx half.
func (s *Service) Transmit(fn func(tx *packet.Sender) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if s.port == nil {
		return ErrNotConnected
	}
	counted := &countingSink{sink: packet.WriterSink(s.port)}
	err := fn(packet.NewSender(counted).WithTextCapacity(s.cfg.TextCapacity))
	if counted.n > 0 || err != nil {
		success := err == nil
		if success {
			s.framesSent.Add(1)
		}
		observability.RecordFrameSent(s.cfg.Name, s.variant(), success)
	}
	return err
}

func (s *Service) Send(payload []byte) error {
	return s.Transmit(func(tx *packet.Sender) error {
		return tx.Send(payload)
	})
}

func (s *Service) SendText(line string) error {
	return s.Transmit(func(tx *packet.Sender) error {
		return tx.SendText(line)
	})
}

func (s *Service) SendTextFrame(payload string) error {
	return s.Transmit(func(tx *packet.Sender) error {
		return tx.SendTextFrame(payload)
	})
}

// ClearError drops the sticky last framing error and returns it.
func (s *Service) ClearError() *packet.FramingError {
	return s.errs.Clear()
}

func (s *Service) Status() Status {
	st := Status{
		Link:           s.cfg.Name,
		Mode:           s.cfg.Mode,
		Connected:      s.connected.Load(),
		FramesReceived: s.framesReceived.Load(),
		FramesSent:     s.framesSent.Load(),
		ErrorCount:     s.errs.Count(),
		ErrorsByKind:   make(map[string]uint64),
		Uptime:         time.Since(s.started).Truncate(time.Second).String(),
	}
	for _, kind := range []packet.ErrorKind{
		packet.KindUnexpectedTrailer,
		packet.KindPayloadTooLong,
		packet.KindOverrun,
		packet.KindFrameTimeout,
	} {
		st.ErrorsByKind[kind.String()] = s.errs.CountKind(kind)
	}
	if s.receiver != nil {
		st.State = s.receiver.State().String()
		st.Flag = s.receiver.Flag().String()
	}
	if last := s.errs.Last(); last != nil {
		st.LastError = last.Error()
	}
	return st
}

type countingSink struct {
	sink interface{ WriteByte(byte) error }
	n    int
}

func (c *countingSink) WriteByte(b byte) error {
	if err := c.sink.WriteByte(b); err != nil {
		return err
	}
	c.n++
	return nil
}
