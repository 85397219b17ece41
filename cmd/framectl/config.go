package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/uartframe/internal/responder"
)

type commandEntry struct {
	Reply     string `toml:"reply"`
	Indicator string `toml:"indicator"`
}

type commandsFile struct {
	UnknownReply string                  `toml:"unknown_reply"`
	Commands     map[string]commandEntry `toml:"commands"`
}

// loadCommands reads the text responder's command table. An empty path
// yields the LED defaults.
func loadCommands(path string) (map[string]responder.Command, string, error) {
	commands := responder.DefaultCommands()
	unknown := responder.DefaultUnknownReply
	if strings.TrimSpace(path) == "" {
		return commands, unknown, nil
	}

	var raw commandsFile
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, "", fmt.Errorf("load commands: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, "", fmt.Errorf("load commands: unknown key %s", undecoded[0])
	}

	if meta.IsDefined("unknown_reply") {
		if v := strings.TrimSpace(raw.UnknownReply); v != "" {
			unknown = v
		}
	}

	if meta.IsDefined("commands") {
		commands = make(map[string]responder.Command, len(raw.Commands))
		for name, entry := range raw.Commands {
			name = strings.TrimSpace(name)
			if !meta.IsDefined("commands", name, "reply") {
				return nil, "", fmt.Errorf("load commands: %s missing reply", name)
			}
			cmd := responder.Command{Reply: strings.TrimSpace(entry.Reply)}
			if meta.IsDefined("commands", name, "indicator") {
				cmd.Indicator = strings.ToLower(strings.TrimSpace(entry.Indicator))
			}
			commands[name] = cmd
		}
	}
	return commands, unknown, nil
}
