// Package ingest moves frames between the NIC driver and the pipeline
// rings: burst receive with parse and timestamp stamping on the way in,
// burst transmit with fire-and-forget drop accounting on the way out.
package ingest

import (
	"encoding/binary"

	"github.com/yanun0323/errors"
)

// Wire framing is fixed: Ethernet II, IPv4 without options, UDP. Frames
// that deviate are dropped, not interpreted.
const (
	ethHeaderSize = 14
	ipHeaderSize  = 20
	udpHeaderSize = 8

	// FrameHeaderSize is the byte offset of the record payload.
	FrameHeaderSize = ethHeaderSize + ipHeaderSize + udpHeaderSize

	etherTypeIPv4 = 0x0800
	protoUDP      = 17
	defaultTTL    = 64
)

var (
	ErrFrameTruncated = errors.New("ingest: frame shorter than headers")
	ErrNotIPv4        = errors.New("ingest: ethertype is not IPv4")
	ErrBadIPHeader    = errors.New("ingest: malformed IPv4 header")
	ErrBadIPChecksum  = errors.New("ingest: IPv4 header checksum mismatch")
	ErrNotUDP         = errors.New("ingest: protocol is not UDP")
	ErrLengthMismatch = errors.New("ingest: header lengths disagree with frame")
)

// Endpoint describes the static addressing of one frame stream.
type Endpoint struct {
	SrcMAC  [6]byte
	DstMAC  [6]byte
	SrcIP   [4]byte
	DstIP   [4]byte
	SrcPort uint16
	DstPort uint16
}

// Framer builds outbound frames from a prebuilt header template, so the
// per-frame work is two length patches, one checksum, and a payload copy.
type Framer struct {
	tmpl [FrameHeaderSize]byte
}

// NewFramer prebuilds the header template for one endpoint pair.
func NewFramer(ep Endpoint) *Framer {
	f := &Framer{}
	h := f.tmpl[:]

	copy(h[0:6], ep.DstMAC[:])
	copy(h[6:12], ep.SrcMAC[:])
	binary.BigEndian.PutUint16(h[12:14], etherTypeIPv4)

	ip := h[ethHeaderSize:]
	ip[0] = 0x45 // version 4, 20-byte header
	ip[8] = defaultTTL
	ip[9] = protoUDP
	copy(ip[12:16], ep.SrcIP[:])
	copy(ip[16:20], ep.DstIP[:])

	udp := h[ethHeaderSize+ipHeaderSize:]
	binary.BigEndian.PutUint16(udp[0:2], ep.SrcPort)
	binary.BigEndian.PutUint16(udp[2:4], ep.DstPort)

	return f
}

// Build writes one complete frame around payload, reusing dst's backing
// array when large enough.
func (f *Framer) Build(dst []byte, payload []byte) []byte {
	total := FrameHeaderSize + len(payload)
	if cap(dst) < total {
		dst = make([]byte, total)
	} else {
		dst = dst[:total]
	}
	copy(dst, f.tmpl[:])
	copy(dst[FrameHeaderSize:], payload)

	ip := dst[ethHeaderSize:]
	binary.BigEndian.PutUint16(ip[2:4], uint16(ipHeaderSize+udpHeaderSize+len(payload)))
	binary.BigEndian.PutUint16(ip[10:12], 0)
	binary.BigEndian.PutUint16(ip[10:12], ipChecksum(ip[:ipHeaderSize]))

	udp := dst[ethHeaderSize+ipHeaderSize:]
	binary.BigEndian.PutUint16(udp[4:6], uint16(udpHeaderSize+len(payload)))

	return dst
}

// ParseFrame validates the Ethernet/IPv4/UDP envelope and returns the
// UDP payload. Checks run cheapest-first so malformed frames cost as
// little as possible: length, ethertype, IP header shape, IP checksum,
// protocol, then length consistency.
func ParseFrame(frame []byte) ([]byte, error) {
	if len(frame) < FrameHeaderSize {
		return nil, ErrFrameTruncated
	}
	if binary.BigEndian.Uint16(frame[12:14]) != etherTypeIPv4 {
		return nil, ErrNotIPv4
	}

	ip := frame[ethHeaderSize:]
	if ip[0] != 0x45 { // options are not part of the wire contract
		return nil, ErrBadIPHeader
	}
	if ipChecksum(ip[:ipHeaderSize]) != 0 {
		return nil, ErrBadIPChecksum
	}
	if ip[9] != protoUDP {
		return nil, ErrNotUDP
	}

	ipTotal := int(binary.BigEndian.Uint16(ip[2:4]))
	if ipTotal < ipHeaderSize+udpHeaderSize || ethHeaderSize+ipTotal > len(frame) {
		return nil, ErrLengthMismatch
	}
	udp := frame[ethHeaderSize+ipHeaderSize:]
	udpLen := int(binary.BigEndian.Uint16(udp[4:6]))
	if udpLen < udpHeaderSize || udpLen != ipTotal-ipHeaderSize {
		return nil, ErrLengthMismatch
	}

	return frame[FrameHeaderSize : ethHeaderSize+ipTotal], nil
}

// ipChecksum is the RFC 791 ones'-complement header checksum. Over a
// header whose checksum field is filled in, a valid header sums to zero.
func ipChecksum(hdr []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(hdr); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(hdr[i : i+2]))
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}
