package feedgen

import (
	"testing"

	"main/internal/codec"
	"main/internal/ingest"
	"main/internal/schema"
)

func TestGeneratorIsDeterministic(t *testing.T) {
	cfg := Config{
		Symbols:    []schema.SymbolID{1, 2},
		StartPrice: "4500.25",
		TickSize:   "0.25",
		Seed:       42,
		Count:      50,
	}
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	b, err := New(cfg)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 0; i < 50; i++ {
		ea, oka := a.Next()
		eb, okb := b.Next()
		if oka != okb || ea != eb {
			t.Fatalf("event %d diverged: %+v vs %+v", i, ea, eb)
		}
	}
	if _, ok := a.Next(); ok {
		t.Fatalf("generator exceeded its count")
	}
}

func TestGeneratorAlternatesSymbols(t *testing.T) {
	g, err := New(Config{Symbols: []schema.SymbolID{7, 8, 9}, StartPrice: "10", Count: 6})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	want := []schema.SymbolID{7, 8, 9, 7, 8, 9}
	for i, sym := range want {
		e, ok := g.Next()
		if !ok || e.SymbolID != sym {
			t.Fatalf("event %d: symbol %d want %d", i, e.SymbolID, sym)
		}
		if e.Seq != uint64(i+1) {
			t.Fatalf("event %d: seq %d", i, e.Seq)
		}
		if e.Price == 0 || e.Qty == 0 {
			t.Fatalf("event %d: empty price or qty: %+v", i, e)
		}
	}
}

func TestFrameSourceProducesParsableFrames(t *testing.T) {
	g, err := New(Config{Symbols: []schema.SymbolID{1}, StartPrice: "100", Count: 3})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	f := ingest.NewFramer(ingest.Endpoint{SrcPort: 1, DstPort: 2})
	source := g.FrameSource(f)

	buf := make([]byte, 0, 2048)
	for i := 0; i < 3; i++ {
		n := source(0, buf)
		if n == 0 {
			t.Fatalf("frame %d not produced", i)
		}
		payload, err := ingest.ParseFrame(buf[:n])
		if err != nil {
			t.Fatalf("frame %d does not parse: %v", i, err)
		}
		e, ok := codec.DecodeMarketData(payload)
		if !ok {
			t.Fatalf("frame %d does not decode", i)
		}
		if e.Seq != uint64(i+1) || e.SymbolID != 1 {
			t.Fatalf("frame %d event: %+v", i, e)
		}
	}
	if n := source(0, buf); n != 0 {
		t.Fatalf("spent generator produced a frame")
	}
	if n := source(0, make([]byte, 0, 8)); n != 0 {
		t.Fatalf("tiny buffer accepted")
	}
}

func TestGeneratorRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{StartPrice: "10"}); err == nil {
		t.Fatalf("no symbols accepted")
	}
	if _, err := New(Config{Symbols: []schema.SymbolID{1}}); err == nil {
		t.Fatalf("zero start price accepted")
	}
	if _, err := New(Config{Symbols: []schema.SymbolID{1}, StartPrice: "-5"}); err == nil {
		t.Fatalf("negative start price accepted")
	}
}
