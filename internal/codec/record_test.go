package codec

import (
	"testing"

	"main/internal/schema"
)

func TestMarketDataRoundTrip(t *testing.T) {
	orig := schema.MarketDataEvent{
		Seq:      42,
		SymbolID: 7,
		MsgType:  schema.MsgQuote,
		Side:     schema.SideBuy,
		Price:    101_500_000,
		Qty:      3_000_000,
	}
	orig.Timestamp.DeviceNanos = 1_700_000_000_000_000_001

	encoded := EncodeMarketData(nil, orig)
	if len(encoded) != MarketDataRecordSize {
		t.Fatalf("encoded size mismatch: got %d want %d", len(encoded), MarketDataRecordSize)
	}
	decoded, ok := DecodeMarketData(encoded)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded.Seq != orig.Seq || decoded.SymbolID != orig.SymbolID {
		t.Fatalf("decoded identity mismatch: got %+v want %+v", decoded, orig)
	}
	if decoded.Price != orig.Price || decoded.Qty != orig.Qty {
		t.Fatalf("decoded amounts mismatch: got %d/%d want %d/%d",
			decoded.Price, decoded.Qty, orig.Price, orig.Qty)
	}
	if decoded.MsgType != orig.MsgType || decoded.Side != orig.Side {
		t.Fatalf("decoded enums mismatch: got %d/%d want %d/%d",
			decoded.MsgType, decoded.Side, orig.MsgType, orig.Side)
	}
	if decoded.Timestamp.DeviceNanos != orig.Timestamp.DeviceNanos {
		t.Fatalf("device timestamp mismatch: got %d want %d",
			decoded.Timestamp.DeviceNanos, orig.Timestamp.DeviceNanos)
	}
}

func TestMarketDataRejectsCorruption(t *testing.T) {
	encoded := EncodeMarketData(nil, schema.MarketDataEvent{Seq: 1, SymbolID: 1, Price: 1, Qty: 1})

	short := encoded[:MarketDataRecordSize-1]
	if _, ok := DecodeMarketData(short); ok {
		t.Fatalf("truncated record decoded")
	}

	flipped := make([]byte, len(encoded))
	copy(flipped, encoded)
	flipped[20] ^= 0xFF // price byte
	if _, ok := DecodeMarketData(flipped); ok {
		t.Fatalf("corrupt record passed checksum")
	}

	badMagic := make([]byte, len(encoded))
	copy(badMagic, encoded)
	badMagic[0] = 'X'
	if _, ok := DecodeMarketData(badMagic); ok {
		t.Fatalf("wrong magic decoded")
	}
}

func TestOrderRoundTrip(t *testing.T) {
	orig := schema.OrderEvent{
		OrderID:       9001,
		ClientOrderID: 77,
		SymbolID:      3,
		VenueID:       2,
		Side:          schema.SideSell,
		OrderType:     schema.OrderTypeLimit,
		Price:         99_990_000,
		Qty:           1_500_000,
	}
	orig.Timestamp.DeviceNanos = 12345

	encoded := EncodeOrder(nil, orig)
	if len(encoded) != OrderRecordSize {
		t.Fatalf("encoded size mismatch: got %d want %d", len(encoded), OrderRecordSize)
	}
	decoded, ok := DecodeOrder(encoded)
	if !ok {
		t.Fatalf("decode failed")
	}
	if decoded.OrderID != orig.OrderID || decoded.ClientOrderID != orig.ClientOrderID {
		t.Fatalf("decoded ids mismatch: got %+v want %+v", decoded, orig)
	}
	if decoded.Price != orig.Price || decoded.Qty != orig.Qty || decoded.VenueID != orig.VenueID {
		t.Fatalf("decoded fields mismatch: got %+v want %+v", decoded, orig)
	}
	if decoded.Side != orig.Side || decoded.OrderType != orig.OrderType {
		t.Fatalf("decoded enums mismatch: got %+v want %+v", decoded, orig)
	}
}

func TestOrderRejectsChecksumMismatch(t *testing.T) {
	encoded := EncodeOrder(nil, schema.OrderEvent{OrderID: 1, SymbolID: 1, Price: 1, Qty: 1})
	encoded[40] ^= 0x01 // qty byte
	if _, ok := DecodeOrder(encoded); ok {
		t.Fatalf("corrupt order passed checksum")
	}
}

func TestEncodeReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 128)
	out := EncodeMarketData(buf, schema.MarketDataEvent{Seq: 5, SymbolID: 1, Price: 10, Qty: 20})
	if &out[0] != &buf[:1][0] {
		t.Fatalf("encode did not reuse provided buffer")
	}
}
