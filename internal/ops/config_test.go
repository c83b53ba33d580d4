package ops

import (
	"os"
	"path/filepath"
	"testing"

	"main/internal/schema"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pipeline.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const fullConfig = `{
	"symbols": ["ES", "NQ", "CL"],
	"limits": {
		"maxPositionValue": "5000000",
		"maxOrderValue": "1000000.50",
		"maxDailyVolume": "250.5",
		"maxOrdersPerSec": 500,
		"maxCancelRatioPct": 60,
		"maxPortfolioValue": "20000000",
		"maxVaRPct": 8,
		"maxConcentrationPct": 40,
		"volatilityPct": 15,
		"marginPct": 25,
		"softWarnings": true,
		"version": 3
	},
	"pipeline": {
		"ringCapacity": 4096,
		"burst": 32,
		"riskCore": 4,
		"maxSymbols": 128,
		"queues": [
			{"queue": 0, "rxCore": 2, "txCore": 3},
			{"queue": 1, "rxCore": 6, "txCore": 7}
		]
	},
	"memory": {"arenaMB": 16, "hugePages": true, "poolBuffers": 64},
	"driver": {
		"kind": "sim",
		"srcMac": "02:00:00:00:00:01",
		"dstMac": "02:00:00:00:00:02",
		"srcIp": "10.1.0.1",
		"dstIp": "10.1.0.2",
		"srcPort": 9100,
		"dstPort": 9200
	},
	"journal": {"dsn": "host=localhost dbname=risk", "batchSize": 64},
	"features": {"accelerator": true, "journal": true}
}`

func TestLoadResolvesConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, fullConfig))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Registry.Count() != 3 {
		t.Fatalf("symbols: %d", cfg.Registry.Count())
	}
	if id, ok := cfg.Registry.Lookup("NQ"); !ok || id != 2 {
		t.Fatalf("symbol NQ: id %d ok %v", id, ok)
	}

	if cfg.Limits.MaxOrderValue != schema.Notional(1_000_000_500_000) {
		t.Fatalf("max order value: %d", cfg.Limits.MaxOrderValue)
	}
	if cfg.Limits.MaxDailyVolume != schema.Quantity(250_500_000) {
		t.Fatalf("max daily volume: %d", cfg.Limits.MaxDailyVolume)
	}
	if cfg.Limits.MaxOrdersPerSec != 500 || !cfg.Limits.SoftWarnings || cfg.Limits.Version != 3 {
		t.Fatalf("limits: %+v", cfg.Limits)
	}
	if cfg.Limits.MaxCancelRatioPct != 60 || cfg.Limits.MaxVaRPct != 8 {
		t.Fatalf("ratio limits: %+v", cfg.Limits)
	}

	if cfg.RingCapacity != 4096 || cfg.Burst != 32 || cfg.RiskCore != 4 {
		t.Fatalf("pipeline plan: %+v", cfg)
	}
	if len(cfg.Queues) != 2 || cfg.Queues[1].RxCore != 6 {
		t.Fatalf("queues: %+v", cfg.Queues)
	}
	if cfg.ArenaBytes != 16<<20 || !cfg.HugePages || cfg.PoolBuffers != 64 {
		t.Fatalf("memory plan: %+v", cfg)
	}
	if cfg.Endpoint.SrcMAC != [6]byte{2, 0, 0, 0, 0, 1} || cfg.Endpoint.DstIP != [4]byte{10, 1, 0, 2} {
		t.Fatalf("endpoint: %+v", cfg.Endpoint)
	}
	if cfg.Journal.BatchSize != 64 || cfg.Journal.QueueDepth != defaultQueueDepth {
		t.Fatalf("journal plan: %+v", cfg.Journal)
	}
	if !cfg.Features.Accelerator || !cfg.Features.Journal {
		t.Fatalf("features: %+v", cfg.Features)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"symbols": ["ES"]}`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.RingCapacity != defaultRingCapacity || cfg.MaxSymbols != defaultMaxSymbols {
		t.Fatalf("defaults: %+v", cfg)
	}
	if cfg.Driver.Kind != "sim" {
		t.Fatalf("default driver: %q", cfg.Driver.Kind)
	}
	if len(cfg.Queues) != 1 || cfg.Queues[0].RxCore != -1 {
		t.Fatalf("default queue plan: %+v", cfg.Queues)
	}
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"ring capacity not power of two", `{"pipeline": {"ringCapacity": 1000}}`},
		{"unknown driver", `{"driver": {"kind": "dpdk"}}`},
		{"capture without path", `{"driver": {"kind": "capture"}}`},
		{"afpacket without interface", `{"driver": {"kind": "afpacket"}}`},
		{"negative limit", `{"limits": {"maxOrderValue": "-5"}}`},
		{"garbled limit", `{"limits": {"maxOrderValue": "lots"}}`},
		{"margin out of range", `{"limits": {"marginPct": 150}}`},
		{"cancel ratio out of range", `{"limits": {"maxCancelRatioPct": 120}}`},
		{"bad mac", `{"driver": {"srcMac": "zz:00"}}`},
		{"bad ip", `{"driver": {"srcIp": "fe80::1"}}`},
		{"duplicate symbol", `{"symbols": ["ES", "ES"]}`},
	}
	for _, tc := range cases {
		if _, err := Load(writeConfig(t, tc.body)); err == nil {
			t.Fatalf("%s: config accepted", tc.name)
		}
	}
}

func TestReloadLimits(t *testing.T) {
	path := writeConfig(t, fullConfig)
	lim, err := ReloadLimits(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if lim.MaxPositionValue != schema.Notional(5_000_000_000_000) {
		t.Fatalf("max position value: %d", lim.MaxPositionValue)
	}
	if _, err := ReloadLimits(writeConfig(t, `{"limits": {"volatilityPct": 200}}`)); err == nil {
		t.Fatalf("invalid limits reloaded")
	}
}
