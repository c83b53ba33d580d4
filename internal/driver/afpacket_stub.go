//go:build !linux

package driver

import (
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// AFPacket is only available on Linux; this stub satisfies the Driver
// contract so callers type-check on other platforms.
type AFPacket struct{}

func NewAFPacket(ifname string) (*AFPacket, error) {
	return nil, errors.New("afpacket driver requires linux")
}

func (d *AFPacket) Close() error { return nil }

func (d *AFPacket) ReceiveBurst(queue schema.QueueID, bufs [][]byte) int { return 0 }

func (d *AFPacket) TransmitBurst(queue schema.QueueID, frames [][]byte) int { return 0 }

func (d *AFPacket) ReadHardwareTimestamp() uint64 { return 0 }
