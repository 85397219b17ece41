package packet

// State is the receive state machine position.
type State uint32

const (
	StateWait State = iota
	StateReceiving
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateWait:
		return "wait"
	case StateReceiving:
		return "receiving"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// RxFlag signals whether the store holds a committed frame.
type RxFlag uint32

const (
	// FlagStart means the store is free for the receive context.
	FlagStart RxFlag = iota
	// FlagEnd means a complete payload is waiting for the foreground.
	FlagEnd
)

func (f RxFlag) String() string {
	if f == FlagEnd {
		return "end"
	}
	return "start"
}

// Variant names the wire framing.
type Variant string

const (
	VariantBinary Variant = "binary"
	VariantText   Variant = "text"
)

// EventKind classifies what a single byte (or an expiry) did to the machine.
type EventKind uint8

const (
	EventNone EventKind = iota
	// EventStarted: a start marker opened a new frame.
	EventStarted
	// EventCommitted: a trailer completed the frame and set RxFlag to End.
	EventCommitted
	// EventDropped: the partial or incoming frame was discarded.
	EventDropped
)

func (k EventKind) String() string {
	switch k {
	case EventStarted:
		return "started"
	case EventCommitted:
		return "committed"
	case EventDropped:
		return "dropped"
	default:
		return "none"
	}
}

// Event is the outcome of one receive-context step. Err is set when the step
// recorded a framing error; it may accompany any Kind.
type Event struct {
	Kind EventKind
	Err  error
}

// Frame is a consumed payload handed to the foreground.
type Frame struct {
	Variant Variant
	Payload []byte
}

// Text returns the payload as a string.
func (f Frame) Text() string {
	return string(f.Payload)
}
