package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Link modes.
const (
	ModeText = "text"
	ModeHex  = "hex"
	ModeEcho = "echo"
)

type LinkConfig struct {
	Name          string     `toml:"name"`
	Mode          string     `toml:"mode"`
	StatusAddr    string     `toml:"status_addr"`
	CorsOrigins   []string   `toml:"cors_origins"`
	PollInterval  string     `toml:"poll_interval"`
	FrameDeadline string     `toml:"frame_deadline"`
	TextCapacity  int        `toml:"text_capacity"`
	EchoCapacity  int        `toml:"echo_capacity"`
	Reconnect     bool       `toml:"reconnect"`
	Port          PortConfig `toml:"port"`
	Scan          ScanConfig `toml:"scan"`
}

// ScanConfig describes an ADC bridge streaming little-endian 16-bit samples,
// channel 0..channels-1 in order, over its own serial port.
type ScanConfig struct {
	Enabled  bool       `toml:"enabled"`
	Name     string     `toml:"name"`
	Channels int        `toml:"channels"`
	Rounds   int        `toml:"rounds"`
	Interval string     `toml:"interval"`
	Port     PortConfig `toml:"port"`
}

type PortConfig struct {
	Device      string `toml:"device"`
	BaudRate    int    `toml:"baud_rate"`
	DataBits    int    `toml:"data_bits"`
	Parity      string `toml:"parity"`
	StopBits    string `toml:"stop_bits"`
	ReadTimeout string `toml:"read_timeout"`
}

// DefaultLinkConfig mirrors the reference board: USART1 at 9600 baud, 2 stop bits.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Name:          "usart1",
		Mode:          ModeText,
		PollInterval:  "1ms",
		FrameDeadline: "100ms",
		TextCapacity:  1024,
		EchoCapacity:  4096,
		Reconnect:     true,
		Port: PortConfig{
			BaudRate:    9600,
			DataBits:    8,
			Parity:      "none",
			StopBits:    "2",
			ReadTimeout: "20ms",
		},
		Scan: ScanConfig{
			Name:     "adc1",
			Channels: 8,
			Rounds:   1,
			Interval: "0s",
			Port: PortConfig{
				BaudRate:    115200,
				DataBits:    8,
				Parity:      "none",
				StopBits:    "1",
				ReadTimeout: "20ms",
			},
		},
	}
}

func LoadLinkConfig(path string) (LinkConfig, error) {
	cfg := DefaultLinkConfig()
	if err := loadToml(path, &cfg); err != nil {
		return LinkConfig{}, err
	}
	if err := ValidateLinkConfig(cfg); err != nil {
		return LinkConfig{}, err
	}
	return cfg, nil
}

func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if err := toml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateLinkConfig(cfg LinkConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: link config missing name", ErrInvalidConfig)
	}
	switch cfg.Mode {
	case ModeText, ModeHex, ModeEcho:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, cfg.Mode)
	}
	if d, err := cfg.PollEvery(); err != nil || d <= 0 {
		return fmt.Errorf("%w: poll_interval must be a positive duration", ErrInvalidConfig)
	}
	if d, err := cfg.Deadline(); err != nil || d < 0 {
		return fmt.Errorf("%w: frame_deadline must be a non-negative duration", ErrInvalidConfig)
	}
	if cfg.TextCapacity < 2 {
		return fmt.Errorf("%w: text_capacity must hold a payload byte and its terminator", ErrInvalidConfig)
	}
	if cfg.EchoCapacity < 2 {
		return fmt.Errorf("%w: echo_capacity too small", ErrInvalidConfig)
	}
	if err := ValidatePortConfig(cfg.Port); err != nil {
		return fmt.Errorf("port invalid: %w", err)
	}
	if err := ValidateScanConfig(cfg.Scan); err != nil {
		return fmt.Errorf("scan invalid: %w", err)
	}
	return nil
}

// ValidateScanConfig checks the scan block only when it is enabled.
func ValidateScanConfig(cfg ScanConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: scan name is required", ErrInvalidConfig)
	}
	if cfg.Channels < 1 || cfg.Rounds < 1 {
		return fmt.Errorf("%w: channels and rounds must be positive", ErrInvalidConfig)
	}
	if d, err := cfg.Every(); err != nil || d < 0 {
		return fmt.Errorf("%w: interval must be a non-negative duration", ErrInvalidConfig)
	}
	return ValidatePortConfig(cfg.Port)
}

func ValidatePortConfig(cfg PortConfig) error {
	if strings.TrimSpace(cfg.Device) == "" {
		return fmt.Errorf("%w: device is required", ErrInvalidConfig)
	}
	if cfg.BaudRate <= 0 {
		return fmt.Errorf("%w: baud_rate must be positive", ErrInvalidConfig)
	}
	switch cfg.DataBits {
	case 5, 6, 7, 8:
	default:
		return fmt.Errorf("%w: data_bits must be 5..8", ErrInvalidConfig)
	}
	switch strings.ToLower(cfg.Parity) {
	case "none", "odd", "even", "mark", "space":
	default:
		return fmt.Errorf("%w: unknown parity %q", ErrInvalidConfig, cfg.Parity)
	}
	switch cfg.StopBits {
	case "1", "1.5", "2":
	default:
		return fmt.Errorf("%w: stop_bits must be 1, 1.5 or 2", ErrInvalidConfig)
	}
	if d, err := cfg.Timeout(); err != nil || d <= 0 {
		return fmt.Errorf("%w: read_timeout must be a positive duration", ErrInvalidConfig)
	}
	return nil
}

func (c LinkConfig) PollEvery() (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(c.PollInterval))
}

// Deadline parses frame_deadline; "0s" disables the stall deadline.
func (c LinkConfig) Deadline() (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(c.FrameDeadline))
}

func (c PortConfig) Timeout() (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(c.ReadTimeout))
}

// Every parses the scan interval; "0s" samples back to back.
func (c ScanConfig) Every() (time.Duration, error) {
	return time.ParseDuration(strings.TrimSpace(c.Interval))
}
