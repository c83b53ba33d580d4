package codec

import (
	"encoding/binary"

	"main/internal/schema"
)

// MarketDataRecordSize is the wire size of one market data record.
const MarketDataRecordSize = 48

var marketDataMagic = [4]byte{'M', 'K', 'T', '1'}

// EncodeMarketData serializes a market data record into dst, reusing its
// backing array when large enough.
func EncodeMarketData(dst []byte, e schema.MarketDataEvent) []byte {
	if cap(dst) < MarketDataRecordSize {
		dst = make([]byte, MarketDataRecordSize)
	} else {
		dst = dst[:MarketDataRecordSize]
	}

	copy(dst[0:4], marketDataMagic[:])
	binary.LittleEndian.PutUint16(dst[4:6], RecordVersion)
	dst[6] = byte(e.MsgType)
	dst[7] = byte(e.Side)
	binary.LittleEndian.PutUint64(dst[8:16], e.Seq)
	binary.LittleEndian.PutUint32(dst[16:20], uint32(e.SymbolID))
	binary.LittleEndian.PutUint64(dst[20:28], uint64(e.Price))
	binary.LittleEndian.PutUint64(dst[28:36], uint64(e.Qty))
	binary.LittleEndian.PutUint64(dst[36:44], e.Timestamp.DeviceNanos)
	binary.LittleEndian.PutUint32(dst[44:48], checksum(dst[:44]))

	return dst
}

// DecodeMarketData parses a market data record. It fills the fields that
// travel on the wire; the caller stamps arrival timestamps and the raw
// payload prefix. Returns false on any malformed input.
func DecodeMarketData(src []byte) (schema.MarketDataEvent, bool) {
	var e schema.MarketDataEvent
	if len(src) < MarketDataRecordSize {
		return e, false
	}
	if src[0] != marketDataMagic[0] || src[1] != marketDataMagic[1] ||
		src[2] != marketDataMagic[2] || src[3] != marketDataMagic[3] {
		return e, false
	}
	if binary.LittleEndian.Uint16(src[4:6]) != RecordVersion {
		return e, false
	}
	if binary.LittleEndian.Uint32(src[44:48]) != checksum(src[:44]) {
		return e, false
	}

	e.MsgType = schema.MsgType(src[6])
	e.Side = schema.Side(src[7])
	e.Seq = binary.LittleEndian.Uint64(src[8:16])
	e.SymbolID = schema.SymbolID(binary.LittleEndian.Uint32(src[16:20]))
	e.Price = schema.Price(binary.LittleEndian.Uint64(src[20:28]))
	e.Qty = schema.Quantity(binary.LittleEndian.Uint64(src[28:36]))
	e.Timestamp.DeviceNanos = binary.LittleEndian.Uint64(src[36:44])
	return e, true
}
