package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "link":
		return linkTemplate, nil
	case "commands":
		return commandsTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const linkTemplate = `name = "usart1"
mode = "text"
status_addr = "127.0.0.1:9300"
cors_origins = ["http://localhost:3000"]
poll_interval = "1ms"
frame_deadline = "100ms"
text_capacity = 1024
echo_capacity = 4096
reconnect = true

[port]
device = "/dev/ttyUSB0"
baud_rate = 9600
data_bits = 8
parity = "none"
stop_bits = "2"
read_timeout = "20ms"

[scan]
enabled = false
name = "adc1"
channels = 8
rounds = 1
interval = "0s"

[scan.port]
device = "/dev/ttyUSB1"
baud_rate = 115200
data_bits = 8
parity = "none"
stop_bits = "1"
read_timeout = "20ms"
`

const commandsTemplate = `unknown_reply = "ERROR_COMMAND"

[commands.LED_ON]
reply = "LED_ON_OK"
indicator = "on"

[commands.LED_OFF]
reply = "LED_OFF_OK"
indicator = "off"
`
