package driver

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"
	"sync/atomic"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Capture file layout: 8-byte header (magic, version, reserved), then
// length-prefixed frames. Everything little-endian.
const captureVersion uint16 = 1

var captureMagic = [4]byte{'C', 'A', 'P', '1'}

var (
	ErrCaptureMagic   = errors.New("capture: invalid magic")
	ErrCaptureVersion = errors.New("capture: unsupported version")
	ErrCaptureFrame   = errors.New("capture: truncated frame")
)

// maxCaptureFrame bounds a single frame length so a corrupt length
// prefix cannot force a giant allocation.
const maxCaptureFrame = 1 << 16

// CaptureWriter appends frames to a capture file.
type CaptureWriter struct {
	f *os.File
	w *bufio.Writer
}

// NewCaptureWriter creates path and writes the header.
func NewCaptureWriter(path string) (*CaptureWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, "create capture")
	}
	w := bufio.NewWriter(f)
	var header [8]byte
	copy(header[0:4], captureMagic[:])
	binary.LittleEndian.PutUint16(header[4:6], captureVersion)
	if _, err := w.Write(header[:]); err != nil {
		f.Close()
		return nil, errors.Wrap(err, "write capture header")
	}
	return &CaptureWriter{f: f, w: w}, nil
}

// Append writes one frame.
func (c *CaptureWriter) Append(frame []byte) error {
	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(frame)))
	if _, err := c.w.Write(prefix[:]); err != nil {
		return errors.Wrap(err, "write frame prefix")
	}
	if _, err := c.w.Write(frame); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// Close flushes and closes the file.
func (c *CaptureWriter) Close() error {
	if err := c.w.Flush(); err != nil {
		c.f.Close()
		return errors.Wrap(err, "flush capture")
	}
	return c.f.Close()
}

// Replay is a Driver that serves frames from a capture file, in file
// order, across every queue. Transmitted frames are counted and
// discarded. The whole capture is loaded at construction so replay adds
// no I/O to the receive path.
type Replay struct {
	frames [][]byte
	next   uint64
	clock  uint64
	txped  uint64
}

// NewReplay loads a capture file.
func NewReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open capture")
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, errors.Wrap(err, "read capture header")
	}
	if header[0] != captureMagic[0] || header[1] != captureMagic[1] ||
		header[2] != captureMagic[2] || header[3] != captureMagic[3] {
		return nil, ErrCaptureMagic
	}
	if binary.LittleEndian.Uint16(header[4:6]) != captureVersion {
		return nil, ErrCaptureVersion
	}

	var frames [][]byte
	for {
		var prefix [4]byte
		if _, err := io.ReadFull(r, prefix[:]); err != nil {
			if err == io.EOF {
				break
			}
			return nil, ErrCaptureFrame
		}
		frameLen := binary.LittleEndian.Uint32(prefix[:])
		if frameLen == 0 || frameLen > maxCaptureFrame {
			return nil, ErrCaptureFrame
		}
		frame := make([]byte, frameLen)
		if _, err := io.ReadFull(r, frame); err != nil {
			return nil, ErrCaptureFrame
		}
		frames = append(frames, frame)
	}
	return &Replay{frames: frames}, nil
}

// Remaining reports how many frames are left to serve.
func (r *Replay) Remaining() int {
	served := atomic.LoadUint64(&r.next)
	if served >= uint64(len(r.frames)) {
		return 0
	}
	return len(r.frames) - int(served)
}

// Transmitted reports how many frames were accepted for transmit.
func (r *Replay) Transmitted() uint64 { return atomic.LoadUint64(&r.txped) }

// ReceiveBurst serves the next frames from the capture.
func (r *Replay) ReceiveBurst(queue schema.QueueID, bufs [][]byte) int {
	n := 0
	for n < len(bufs) {
		idx := atomic.AddUint64(&r.next, 1) - 1
		if idx >= uint64(len(r.frames)) {
			break
		}
		frame := r.frames[idx]
		if len(frame) > cap(bufs[n]) {
			continue // oversized for the caller's buffer, skip it
		}
		copy(bufs[n][:len(frame)], frame)
		bufs[n] = bufs[n][:len(frame)]
		n++
	}
	return n
}

// TransmitBurst accepts and discards every frame.
func (r *Replay) TransmitBurst(queue schema.QueueID, frames [][]byte) int {
	atomic.AddUint64(&r.txped, uint64(len(frames)))
	return len(frames)
}

// ReadHardwareTimestamp is a strictly increasing fake device clock.
func (r *Replay) ReadHardwareTimestamp() uint64 {
	return atomic.AddUint64(&r.clock, 1)
}
