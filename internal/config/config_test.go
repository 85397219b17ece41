package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danmuck/uartframe/internal/testutil/testlog"
)

func TestLinkTemplateLoads(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "framectl.toml")
	if err := WriteTemplate(path, "link", false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := LoadLinkConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Name != "usart1" || cfg.Mode != ModeText {
		t.Fatalf("unexpected link: %+v", cfg)
	}
	if cfg.Port.Device != "/dev/ttyUSB0" || cfg.Port.BaudRate != 9600 || cfg.Port.StopBits != "2" {
		t.Fatalf("unexpected port: %+v", cfg.Port)
	}
	if d, _ := cfg.Deadline(); d != 100*time.Millisecond {
		t.Fatalf("unexpected deadline %v", d)
	}
	if err := WriteTemplate(path, "link", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
}

func TestLoadLinkConfigDefaultsFillGaps(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "framectl.toml")
	data := "mode = \"hex\"\n[port]\ndevice = \"/dev/ttyACM0\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadLinkConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeHex || cfg.Name != "usart1" || cfg.Port.BaudRate != 9600 || cfg.TextCapacity != 1024 {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestValidateLinkConfig(t *testing.T) {
	testlog.Start(t)
	base := DefaultLinkConfig()
	base.Port.Device = "/dev/ttyUSB0"
	if err := ValidateLinkConfig(base); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cases := map[string]func(*LinkConfig){
		"mode":     func(c *LinkConfig) { c.Mode = "binary" },
		"device":   func(c *LinkConfig) { c.Port.Device = " " },
		"baud":     func(c *LinkConfig) { c.Port.BaudRate = 0 },
		"parity":   func(c *LinkConfig) { c.Port.Parity = "weird" },
		"stop":     func(c *LinkConfig) { c.Port.StopBits = "3" },
		"deadline": func(c *LinkConfig) { c.FrameDeadline = "soon" },
		"poll":     func(c *LinkConfig) { c.PollInterval = "0s" },
		"capacity": func(c *LinkConfig) { c.TextCapacity = 1 },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := ValidateLinkConfig(cfg); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestLoadLinkConfigMissingFile(t *testing.T) {
	testlog.Start(t)
	if _, err := LoadLinkConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatalf("expected load error")
	}
}

func TestScanConfig(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "framectl.toml")
	data := "[port]\ndevice = \"/dev/ttyUSB0\"\n[scan]\nenabled = true\nchannels = 4\ninterval = \"5ms\"\n[scan.port]\ndevice = \"/dev/ttyUSB1\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadLinkConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sc := cfg.Scan
	if !sc.Enabled || sc.Name != "adc1" || sc.Channels != 4 || sc.Rounds != 1 {
		t.Fatalf("unexpected scan config: %+v", sc)
	}
	if sc.Port.Device != "/dev/ttyUSB1" || sc.Port.BaudRate != 115200 {
		t.Fatalf("scan port defaults not applied: %+v", sc.Port)
	}
	if d, _ := sc.Every(); d != 5*time.Millisecond {
		t.Fatalf("unexpected interval %v", d)
	}

	disabled := DefaultLinkConfig().Scan
	if err := ValidateScanConfig(disabled); err != nil {
		t.Fatalf("disabled scan should validate without a device: %v", err)
	}
	bad := sc
	bad.Channels = 0
	if err := ValidateScanConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	bad = sc
	bad.Port.Device = ""
	if err := ValidateScanConfig(bad); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig for missing device, got %v", err)
	}
}
