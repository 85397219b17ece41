package responder

import (
	"sync"

	"github.com/danmuck/uartframe/internal/packet"
	"github.com/rs/zerolog/log"
)

// Hex answers each binary frame by bumping every byte of its own tx packet
// and sending it, the host analogue of the key press on the board.
type Hex struct {
	mu   sync.Mutex
	tx   [packet.BinaryPayloadLen]byte
	last [packet.BinaryPayloadLen]byte
}

func NewHex(initial [packet.BinaryPayloadLen]byte) *Hex {
	return &Hex{tx: initial}
}

// Next advances the tx packet and returns it.
func (h *Hex) Next() [packet.BinaryPayloadLen]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.tx {
		h.tx[i]++
	}
	return h.tx
}

// Last is the most recently received payload.
func (h *Hex) Last() [packet.BinaryPayloadLen]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Hex) HandleFrame(f packet.Frame, tx *packet.Sender) error {
	h.mu.Lock()
	copy(h.last[:], f.Payload)
	h.mu.Unlock()

	out := h.Next()
	log.Debug().Hex("rx", f.Payload).Hex("tx", out[:]).Msg("hex_packet")
	return tx.Send(out[:])
}
