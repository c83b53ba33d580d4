// Package ops loads and validates the pipeline's JSON configuration and
// resolves it into the typed plans the process wires itself from.
// Configuration errors are the only errors this system treats as fatal:
// a process that cannot trust its limits must not start.
package ops

import (
	"net"
	"os"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/ingest"
	"main/internal/risk"
	"main/internal/schema"
)

// FileConfig mirrors the JSON config layout. Money fields are decimal
// strings ("1000000.50") converted to fixed-point at load time; the hot
// path never sees a decimal.
type FileConfig struct {
	Symbols  []string       `json:"symbols"`
	Limits   LimitsConfig   `json:"limits"`
	Pipeline PipelineConfig `json:"pipeline"`
	Memory   MemoryConfig   `json:"memory"`
	Driver   DriverConfig   `json:"driver"`
	Journal  JournalConfig  `json:"journal"`
	Profile  ProfileConfig  `json:"profile"`
	Features FeatureFlags   `json:"features"`
}

// LimitsConfig holds the risk limit set. Empty strings and zeroes
// disable the corresponding check.
type LimitsConfig struct {
	MaxPositionValue  string `json:"maxPositionValue"`
	MaxOrderValue     string `json:"maxOrderValue"`
	MaxDailyVolume    string `json:"maxDailyVolume"`
	MaxOrdersPerSec   uint32 `json:"maxOrdersPerSec"`
	MaxCancelRatioPct uint32 `json:"maxCancelRatioPct"`
	MaxPortfolioValue string `json:"maxPortfolioValue"`
	MaxVaRPct         uint32 `json:"maxVaRPct"`
	MaxConcentration  uint32 `json:"maxConcentrationPct"`
	VolatilityPct     uint32 `json:"volatilityPct"`
	MarginPct         uint32 `json:"marginPct"`
	SoftWarnings      bool   `json:"softWarnings"`
	Version           uint32 `json:"version"`
}

// QueueConfig pins one receive/transmit queue pair to cores.
type QueueConfig struct {
	Queue  uint16 `json:"queue"`
	RxCore int    `json:"rxCore"`
	TxCore int    `json:"txCore"`
}

// PipelineConfig shapes the rings and worker placement.
type PipelineConfig struct {
	RingCapacity int           `json:"ringCapacity"`
	Burst        int           `json:"burst"`
	RiskCore     int           `json:"riskCore"`
	Queues       []QueueConfig `json:"queues"`
	MaxSymbols   int           `json:"maxSymbols"`
}

// MemoryConfig shapes the NUMA allocator.
type MemoryConfig struct {
	ArenaMB     int  `json:"arenaMB"`
	HugePages   bool `json:"hugePages"`
	PoolBuffers int  `json:"poolBuffers"`
}

// DriverConfig selects and addresses the packet driver.
type DriverConfig struct {
	Kind        string `json:"kind"` // sim, capture, afpacket
	Interface   string `json:"interface"`
	CapturePath string `json:"capturePath"`
	SrcMAC      string `json:"srcMac"`
	DstMAC      string `json:"dstMac"`
	SrcIP       string `json:"srcIp"`
	DstIP       string `json:"dstIp"`
	SrcPort     uint16 `json:"srcPort"`
	DstPort     uint16 `json:"dstPort"`
}

// JournalConfig wires the decision journal.
type JournalConfig struct {
	DSN        string `json:"dsn"`
	BatchSize  int    `json:"batchSize"`
	QueueDepth int    `json:"queueDepth"`
}

// ProfileConfig wires continuous profiling.
type ProfileConfig struct {
	ServerAddress string `json:"serverAddress"`
	AppName       string `json:"appName"`
}

// FeatureFlags are runtime toggles.
type FeatureFlags struct {
	Accelerator bool `json:"accelerator"`
	Journal     bool `json:"journal"`
	MetricsLog  bool `json:"metricsLog"`
}

// Loaded is the resolved configuration ready for wiring.
type Loaded struct {
	Registry        *schema.Registry
	Limits          risk.Limits
	MaxSymbols      int
	RingCapacity    int
	Burst           int
	RiskCore        int
	Queues          []QueuePlan
	ArenaBytes      int
	HugePages       bool
	PoolBuffers     int
	Driver          DriverConfig
	Endpoint        ingest.Endpoint
	Journal         JournalConfig
	Profile         ProfileConfig
	Features        FeatureFlags
	MetricsInterval time.Duration
}

// QueuePlan is one resolved queue pinning.
type QueuePlan struct {
	Queue  schema.QueueID
	RxCore int
	TxCore int
}

const (
	defaultRingCapacity = 1 << 14
	defaultMaxSymbols   = 1 << 12
	defaultArenaMB      = 64
	defaultPoolBuffers  = 256
	defaultBatchSize    = 128
	defaultQueueDepth   = 1 << 12
)

// Load reads and resolves a JSON config file.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := sonic.ConfigFastest.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config")
	}
	return resolve(cfg)
}

// ReloadLimits re-reads only the limit set, for live reload. The rest of
// the config is wiring and cannot change without a restart.
func ReloadLimits(path string) (risk.Limits, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return risk.Limits{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := sonic.ConfigFastest.Unmarshal(data, &cfg); err != nil {
		return risk.Limits{}, errors.Wrap(err, "parse config")
	}
	return resolveLimits(cfg.Limits)
}

func resolve(cfg FileConfig) (Loaded, error) {
	out := Loaded{
		MaxSymbols:      cfg.Pipeline.MaxSymbols,
		RingCapacity:    cfg.Pipeline.RingCapacity,
		Burst:           cfg.Pipeline.Burst,
		RiskCore:        cfg.Pipeline.RiskCore,
		ArenaBytes:      cfg.Memory.ArenaMB << 20,
		HugePages:       cfg.Memory.HugePages,
		PoolBuffers:     cfg.Memory.PoolBuffers,
		Driver:          cfg.Driver,
		Journal:         cfg.Journal,
		Profile:         cfg.Profile,
		Features:        cfg.Features,
		MetricsInterval: 10 * time.Second,
	}
	if out.RingCapacity == 0 {
		out.RingCapacity = defaultRingCapacity
	}
	if out.RingCapacity&(out.RingCapacity-1) != 0 {
		return Loaded{}, errors.Errorf("ring capacity %d is not a power of two", out.RingCapacity)
	}
	if out.MaxSymbols <= 0 {
		out.MaxSymbols = defaultMaxSymbols
	}
	if out.ArenaBytes <= 0 {
		out.ArenaBytes = defaultArenaMB << 20
	}
	if out.PoolBuffers <= 0 {
		out.PoolBuffers = defaultPoolBuffers
	}
	if out.Journal.BatchSize <= 0 {
		out.Journal.BatchSize = defaultBatchSize
	}
	if out.Journal.QueueDepth <= 0 {
		out.Journal.QueueDepth = defaultQueueDepth
	}

	reg := schema.NewRegistry(out.MaxSymbols)
	for _, name := range cfg.Symbols {
		if _, err := reg.Add(name); err != nil {
			return Loaded{}, errors.Wrapf(err, "symbol %q", name)
		}
	}
	out.Registry = reg

	lim, err := resolveLimits(cfg.Limits)
	if err != nil {
		return Loaded{}, err
	}
	out.Limits = lim

	switch cfg.Driver.Kind {
	case "", "sim":
		out.Driver.Kind = "sim"
	case "capture":
		if cfg.Driver.CapturePath == "" {
			return Loaded{}, errors.New("capture driver needs capturePath")
		}
	case "afpacket":
		if cfg.Driver.Interface == "" {
			return Loaded{}, errors.New("afpacket driver needs interface")
		}
	default:
		return Loaded{}, errors.Errorf("unknown driver kind %q", cfg.Driver.Kind)
	}

	ep, err := resolveEndpoint(cfg.Driver)
	if err != nil {
		return Loaded{}, err
	}
	out.Endpoint = ep

	if len(cfg.Pipeline.Queues) == 0 {
		cfg.Pipeline.Queues = []QueueConfig{{Queue: 0, RxCore: -1, TxCore: -1}}
	}
	for _, q := range cfg.Pipeline.Queues {
		out.Queues = append(out.Queues, QueuePlan{
			Queue:  schema.QueueID(q.Queue),
			RxCore: q.RxCore,
			TxCore: q.TxCore,
		})
	}
	return out, nil
}

func resolveLimits(cfg LimitsConfig) (risk.Limits, error) {
	lim := risk.Limits{
		MaxOrdersPerSec:   cfg.MaxOrdersPerSec,
		MaxCancelRatioPct: cfg.MaxCancelRatioPct,
		MaxVaRPct:         cfg.MaxVaRPct,
		MaxConcentration:  cfg.MaxConcentration,
		VolatilityPct:     cfg.VolatilityPct,
		MarginPct:         cfg.MarginPct,
		SoftWarnings:      cfg.SoftWarnings,
		Version:           cfg.Version,
	}
	var err error
	if lim.MaxPositionValue, err = parseNotional(cfg.MaxPositionValue); err != nil {
		return lim, errors.Wrap(err, "maxPositionValue")
	}
	if lim.MaxOrderValue, err = parseNotional(cfg.MaxOrderValue); err != nil {
		return lim, errors.Wrap(err, "maxOrderValue")
	}
	if lim.MaxPortfolioValue, err = parseNotional(cfg.MaxPortfolioValue); err != nil {
		return lim, errors.Wrap(err, "maxPortfolioValue")
	}
	vol, err := parseFixed(cfg.MaxDailyVolume)
	if err != nil {
		return lim, errors.Wrap(err, "maxDailyVolume")
	}
	lim.MaxDailyVolume = schema.Quantity(vol)
	if err := lim.Validate(); err != nil {
		return lim, err
	}
	return lim, nil
}

func parseNotional(s string) (schema.Notional, error) {
	v, err := parseFixed(s)
	return schema.Notional(v), err
}

// parseFixed converts a decimal string to a PriceScale fixed-point
// value. Empty means zero (check disabled).
func parseFixed(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, errors.Wrap(err, "parse decimal")
	}
	if d.IsNegative() {
		return 0, errors.New("value must not be negative")
	}
	scaled := d.Shift(6).Truncate(0)
	if !scaled.BigInt().IsUint64() {
		return 0, errors.New("value out of range")
	}
	return scaled.BigInt().Uint64(), nil
}

func resolveEndpoint(cfg DriverConfig) (ingest.Endpoint, error) {
	var ep ingest.Endpoint
	var err error
	if ep.SrcMAC, err = parseMAC(cfg.SrcMAC); err != nil {
		return ep, errors.Wrap(err, "srcMac")
	}
	if ep.DstMAC, err = parseMAC(cfg.DstMAC); err != nil {
		return ep, errors.Wrap(err, "dstMac")
	}
	if ep.SrcIP, err = parseIPv4(cfg.SrcIP); err != nil {
		return ep, errors.Wrap(err, "srcIp")
	}
	if ep.DstIP, err = parseIPv4(cfg.DstIP); err != nil {
		return ep, errors.Wrap(err, "dstIp")
	}
	ep.SrcPort = cfg.SrcPort
	ep.DstPort = cfg.DstPort
	return ep, nil
}

func parseMAC(s string) ([6]byte, error) {
	var out [6]byte
	if s == "" {
		return out, nil
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		return out, err
	}
	if len(hw) != 6 {
		return out, errors.New("MAC must be 6 bytes")
	}
	copy(out[:], hw)
	return out, nil
}

func parseIPv4(s string) ([4]byte, error) {
	var out [4]byte
	if s == "" {
		return out, nil
	}
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return out, errors.Errorf("%q is not an IPv4 address", s)
	}
	copy(out[:], ip.To4())
	return out, nil
}
