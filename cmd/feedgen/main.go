// Command feedgen writes a capture file of synthetic market data frames
// for replay through the capture driver.
package main

import (
	"flag"
	"log"
	"net"
	"strings"

	"github.com/yanun0323/logs"

	"main/internal/driver"
	"main/internal/feedgen"
	"main/internal/ingest"
	"main/internal/schema"
)

func main() {
	out := flag.String("out", "frames.cap", "Output capture path")
	symbols := flag.String("symbols", "ES,NQ", "Comma-separated symbol names")
	count := flag.Int("count", 10000, "Events to generate")
	price := flag.String("price", "4500.25", "Starting price")
	tick := flag.String("tick", "0.25", "Price step")
	seed := flag.Int64("seed", 1, "Random walk seed")
	srcMAC := flag.String("src-mac", "02:00:00:00:00:01", "Source MAC")
	dstMAC := flag.String("dst-mac", "02:00:00:00:00:02", "Destination MAC")
	flag.Parse()

	names := strings.Split(*symbols, ",")
	reg := schema.NewRegistry(len(names))
	ids := make([]schema.SymbolID, 0, len(names))
	for _, name := range names {
		id, err := reg.Add(strings.TrimSpace(name))
		if err != nil {
			log.Fatalf("symbol %q: %v", name, err)
		}
		ids = append(ids, id)
	}

	gen, err := feedgen.New(feedgen.Config{
		Symbols:    ids,
		StartPrice: *price,
		TickSize:   *tick,
		Seed:       *seed,
		Count:      *count,
	})
	if err != nil {
		log.Fatalf("generator init failed: %v", err)
	}

	ep := ingest.Endpoint{SrcPort: 9100, DstPort: 9200, SrcIP: [4]byte{10, 0, 0, 1}, DstIP: [4]byte{10, 0, 0, 2}}
	if err := parseMACInto(&ep.SrcMAC, *srcMAC); err != nil {
		log.Fatalf("src-mac: %v", err)
	}
	if err := parseMACInto(&ep.DstMAC, *dstMAC); err != nil {
		log.Fatalf("dst-mac: %v", err)
	}

	w, err := driver.NewCaptureWriter(*out)
	if err != nil {
		log.Fatalf("capture open failed: %v", err)
	}
	source := gen.FrameSource(ingest.NewFramer(ep))

	buf := make([]byte, 2048)
	written := 0
	for {
		n := source(0, buf)
		if n == 0 {
			break
		}
		if err := w.Append(buf[:n]); err != nil {
			log.Fatalf("capture append failed: %v", err)
		}
		written++
	}
	if err := w.Close(); err != nil {
		log.Fatalf("capture close failed: %v", err)
	}
	logs.Infof("wrote %d frames for %d symbols to %s", written, len(ids), *out)
}

func parseMACInto(dst *[6]byte, s string) error {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return err
	}
	copy(dst[:], hw)
	return nil
}
