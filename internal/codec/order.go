package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

// OrderRecordSize is the wire size of one order record.
const OrderRecordSize = 64

var orderMagic = [4]byte{'O', 'R', 'D', '1'}

// EncodeOrder serializes an order record into dst, reusing its backing
// array when large enough.
func EncodeOrder(dst []byte, e schema.OrderEvent) []byte {
	if cap(dst) < OrderRecordSize {
		dst = make([]byte, OrderRecordSize)
	} else {
		dst = dst[:OrderRecordSize]
	}

	copy(dst[0:4], orderMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], RecordVersion)
	dst[6] = byte(e.Side)
	dst[7] = byte(e.OrderType)
	binary.LittleEndian.PutUint64(dst[8:16], e.OrderID)
	binary.LittleEndian.PutUint64(dst[16:24], e.ClientOrderID)
	binary.LittleEndian.PutUint32(dst[24:28], uint32(e.SymbolID))
	binary.LittleEndian.PutUint16(dst[28:30], e.VenueID)
	binary.LittleEndian.PutUint16(dst[30:32], 0)
	binary.LittleEndian.PutUint64(dst[32:40], uint64(e.Price))
	binary.LittleEndian.PutUint64(dst[40:48], uint64(e.Qty))
	binary.LittleEndian.PutUint64(dst[48:56], e.Timestamp.DeviceNanos)
	binary.LittleEndian.PutUint32(dst[56:60], 0)
	binary.LittleEndian.PutUint32(dst[60:64], checksum(dst[:60]))

	return dst
}

// DecodeOrder parses an order record. Returns false on any malformed
// input.
func DecodeOrder(src []byte) (schema.OrderEvent, bool) {
	var e schema.OrderEvent
	if len(src) < OrderRecordSize {
		return e, false
	}
	if src[0] != orderMagic[0] || src[1] != orderMagic[1] ||
		src[2] != orderMagic[2] || src[3] != orderMagic[3] {
		return e, false
	}
	if binary.LittleEndian.Uint16(src[4:6]) != RecordVersion {
		return e, false
	}
	if binary.LittleEndian.Uint32(src[60:64]) != checksum(src[:60]) {
		return e, false
	}

	e.Side = schema.Side(src[6])
	e.OrderType = schema.OrderType(src[7])
	e.OrderID = binary.LittleEndian.Uint64(src[8:16])
	e.ClientOrderID = binary.LittleEndian.Uint64(src[16:24])
	e.SymbolID = schema.SymbolID(binary.LittleEndian.Uint32(src[24:28]))
	e.VenueID = binary.LittleEndian.Uint16(src[28:30])
	e.Price = schema.Price(binary.LittleEndian.Uint64(src[32:40]))
	e.Qty = schema.Quantity(binary.LittleEndian.Uint64(src[40:48]))
	e.Timestamp.DeviceNanos = binary.LittleEndian.Uint64(src[48:56])
	return e, true
}
