// Package driver defines the narrow boundary to NIC-class hardware. Any
// concrete transport (kernel-bypass userspace driver, raw socket, replay
// file, simulator) satisfies the same three calls; the ingestion engine
// is agnostic to which one is wired in.
package driver

import "main/internal/schema"

// Driver is the receive/transmit boundary. ReceiveBurst fills the
// caller's buffers with up to len(bufs) frames, re-slicing each filled
// buffer to its frame length, and returns how many were filled; zero
// means no traffic, never an error. TransmitBurst submits count frames
// and returns how many the hardware accepted — a short count is a
// normal partial send, and the caller owns the unsent frames.
// ReadHardwareTimestamp returns the device clock in nanoseconds.
//
// Implementations must be safe for one receive worker and one transmit
// worker per queue, which is the pipeline's threading model.
type Driver interface {
	ReceiveBurst(queue schema.QueueID, bufs [][]byte) int
	TransmitBurst(queue schema.QueueID, frames [][]byte) int
	ReadHardwareTimestamp() uint64
}
