package driver

import (
	"sync"
	"sync/atomic"

	"main/internal/schema"
)

// FrameSource produces the next inbound frame into buf, returning the
// frame length or 0 when no frame is available right now.
type FrameSource func(queue schema.QueueID, buf []byte) int

// Sim is an in-memory driver for tests and paper runs. Inbound frames
// come from a FrameSource; outbound frames are captured per queue so a
// test can assert on exactly what would have hit the wire. A transmit
// budget simulates partial sends.
type Sim struct {
	source FrameSource
	clock  uint64

	mu       sync.Mutex
	sent     map[schema.QueueID][][]byte
	txBudget int // per-burst accept limit; 0 means unlimited
}

// NewSim creates a simulator fed by source.
func NewSim(source FrameSource) *Sim {
	return &Sim{
		source: source,
		sent:   make(map[schema.QueueID][][]byte),
	}
}

// SetTransmitBudget caps how many frames each TransmitBurst accepts.
func (s *Sim) SetTransmitBudget(n int) {
	s.mu.Lock()
	s.txBudget = n
	s.mu.Unlock()
}

// ReceiveBurst pulls frames from the source until it runs dry or the
// burst is full.
func (s *Sim) ReceiveBurst(queue schema.QueueID, bufs [][]byte) int {
	if s.source == nil {
		return 0
	}
	n := 0
	for ; n < len(bufs); n++ {
		frameLen := s.source(queue, bufs[n][:cap(bufs[n])])
		if frameLen == 0 {
			break
		}
		bufs[n] = bufs[n][:frameLen]
	}
	return n
}

// TransmitBurst records accepted frames by copy.
func (s *Sim) TransmitBurst(queue schema.QueueID, frames [][]byte) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	accept := len(frames)
	if s.txBudget > 0 && accept > s.txBudget {
		accept = s.txBudget
	}
	for _, frame := range frames[:accept] {
		copied := make([]byte, len(frame))
		copy(copied, frame)
		s.sent[queue] = append(s.sent[queue], copied)
	}
	return accept
}

// Sent returns the frames accepted for transmission on a queue.
func (s *Sim) Sent(queue schema.QueueID) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent[queue]))
	copy(out, s.sent[queue])
	return out
}

// ReadHardwareTimestamp is a strictly increasing fake device clock.
func (s *Sim) ReadHardwareTimestamp() uint64 {
	return atomic.AddUint64(&s.clock, 1)
}
