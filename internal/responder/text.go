package responder

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/uartframe/internal/packet"
	"github.com/rs/zerolog/log"
)

const (
	DefaultUnknownReply = "ERROR_COMMAND"
	lineEnd             = "\r\n"
)

// Indicator actions a command may apply.
const (
	IndicatorNone = ""
	IndicatorOn   = "on"
	IndicatorOff  = "off"
)

// Command is one entry of the text command table.
type Command struct {
	Reply     string
	Indicator string
}

// Indicator is the output a command switches, the board LED on the reference
// hardware.
type Indicator interface {
	Set(on bool)
	On() bool
}

// DefaultCommands is the LED command set.
func DefaultCommands() map[string]Command {
	return map[string]Command{
		"LED_ON":  {Reply: "LED_ON_OK", Indicator: IndicatorOn},
		"LED_OFF": {Reply: "LED_OFF_OK", Indicator: IndicatorOff},
	}
}

// Text answers text frames from a command table. Replies are sent as bare
// lines terminated by "\r\n".
type Text struct {
	commands     map[string]Command
	unknownReply string
	indicator    Indicator
}

func NewText(commands map[string]Command, unknownReply string, indicator Indicator) (*Text, error) {
	if len(commands) == 0 {
		commands = DefaultCommands()
	}
	for name, cmd := range commands {
		if strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("responder: empty command name")
		}
		switch cmd.Indicator {
		case IndicatorNone, IndicatorOn, IndicatorOff:
		default:
			return nil, fmt.Errorf("responder: command %s: unknown indicator %q", name, cmd.Indicator)
		}
	}
	if strings.TrimSpace(unknownReply) == "" {
		unknownReply = DefaultUnknownReply
	}
	if indicator == nil {
		indicator = &LogIndicator{}
	}
	return &Text{
		commands:     commands,
		unknownReply: unknownReply,
		indicator:    indicator,
	}, nil
}

// Reply resolves a payload to its response line and applies the indicator.
func (r *Text) Reply(payload string) string {
	cmd, ok := r.commands[payload]
	if !ok {
		return r.unknownReply + lineEnd
	}
	switch cmd.Indicator {
	case IndicatorOn:
		r.indicator.Set(true)
	case IndicatorOff:
		r.indicator.Set(false)
	}
	return cmd.Reply + lineEnd
}

func (r *Text) HandleFrame(f packet.Frame, tx *packet.Sender) error {
	reply := r.Reply(f.Text())
	log.Debug().Str("command", f.Text()).Str("reply", strings.TrimSuffix(reply, lineEnd)).Msg("text_command")
	return tx.SendText(reply)
}

// Commands lists the known command names in order.
func (r *Text) Commands() []string {
	out := make([]string, 0, len(r.commands))
	for name := range r.commands {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LogIndicator stands in for the LED on the host and logs each change.
type LogIndicator struct {
	mu sync.Mutex
	on bool
}

func (l *LogIndicator) Set(on bool) {
	l.mu.Lock()
	changed := l.on != on
	l.on = on
	l.mu.Unlock()
	if changed {
		log.Info().Bool("on", on).Msg("indicator")
	}
}

func (l *LogIndicator) On() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.on
}
