//go:build linux

package driver

import (
	"net"
	"time"

	"github.com/yanun0323/errors"
	"golang.org/x/sys/unix"

	"main/internal/schema"
)

// AFPacket is the raw-socket fallback driver: an AF_PACKET socket bound
// to one interface, polled non-blocking. It has none of the bypass
// stack's latency properties but satisfies the same Driver contract, so
// the pipeline runs unmodified on commodity hosts.
type AFPacket struct {
	fd      int
	ifindex int
}

// NewAFPacket opens a raw socket on the named interface.
func NewAFPacket(ifname string) (*AFPacket, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, errors.Wrap(err, "lookup interface")
	}
	proto := htons(unix.ETH_P_ALL)
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_NONBLOCK, int(proto))
	if err != nil {
		return nil, errors.Wrap(err, "open packet socket")
	}
	sll := &unix.SockaddrLinklayer{
		Protocol: proto,
		Ifindex:  iface.Index,
	}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "bind packet socket")
	}
	return &AFPacket{fd: fd, ifindex: iface.Index}, nil
}

// Close releases the socket.
func (d *AFPacket) Close() error {
	return unix.Close(d.fd)
}

// ReceiveBurst drains up to len(bufs) pending frames without blocking.
func (d *AFPacket) ReceiveBurst(queue schema.QueueID, bufs [][]byte) int {
	n := 0
	for ; n < len(bufs); n++ {
		size, _, err := unix.Recvfrom(d.fd, bufs[n][:cap(bufs[n])], unix.MSG_DONTWAIT)
		if err != nil || size <= 0 {
			break
		}
		bufs[n] = bufs[n][:size]
	}
	return n
}

// TransmitBurst submits frames until the socket pushes back.
func (d *AFPacket) TransmitBurst(queue schema.QueueID, frames [][]byte) int {
	sll := &unix.SockaddrLinklayer{
		Protocol: htons(unix.ETH_P_ALL),
		Ifindex:  d.ifindex,
	}
	n := 0
	for ; n < len(frames); n++ {
		if err := unix.Sendto(d.fd, frames[n], unix.MSG_DONTWAIT, sll); err != nil {
			break
		}
	}
	return n
}

// ReadHardwareTimestamp approximates the device clock with the wall
// clock; a raw socket exposes no NIC timestamp register.
func (d *AFPacket) ReadHardwareTimestamp() uint64 {
	return uint64(time.Now().UnixNano())
}

func htons(v int) uint16 {
	return uint16(v)<<8 | uint16(v)>>8
}
