package main

import (
	"flag"
	"log"
	"os"
	"sync/atomic"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/logs"
	"github.com/yanun0323/pkg/sys"

	"main/internal/driver"
	"main/internal/feedgen"
	"main/internal/ingest"
	"main/internal/journal"
	"main/internal/obs"
	"main/internal/ops"
	"main/internal/pipeline"
	"main/internal/risk"
	"main/internal/schema"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON config")
	configReload := flag.Duration("config-reload-interval", 2*time.Second, "Limit reload interval (0=disable)")
	runFor := flag.Duration("run-for", 0, "Exit after this duration (0=run until signal)")
	tradeOnTick := flag.Bool("trade-on-tick", false, "Submit one unit order per inbound tick (paper mode)")
	feedCount := flag.Int("feed-count", 0, "Sim driver: synthetic events to generate (0=unbounded)")
	feedPrice := flag.String("feed-price", "100", "Sim driver: starting price")
	feedTick := flag.String("feed-tick", "0.25", "Sim driver: price step")
	feedSeed := flag.Int64("feed-seed", 1, "Sim driver: random walk seed")
	flag.Parse()

	if *configPath == "" {
		log.Fatalf("-config is required")
	}
	loaded, err := ops.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if loaded.Profile.ServerAddress != "" {
		appName := loaded.Profile.AppName
		if appName == "" {
			appName = "risk-pipeline"
		}
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: appName,
			ServerAddress:   loaded.Profile.ServerAddress,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileAllocSpace,
			},
		})
		if err != nil {
			log.Fatalf("pyroscope start failed: %v", err)
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	drv, closeDrv, err := openDriver(loaded, *feedCount, *feedPrice, *feedTick, *feedSeed)
	if err != nil {
		log.Fatalf("driver open failed: %v", err)
	}
	defer closeDrv()

	var jnl *journal.Journal
	if loaded.Features.Journal && loaded.Journal.DSN != "" {
		store, err := journal.OpenStore(journal.Option{ConnString: loaded.Journal.DSN})
		if err != nil {
			// The journal is an audit sink; its database being down must
			// not keep the risk path from starting.
			logs.Errorf("journal disabled, store open failed: %v", err)
		} else {
			jnl, err = journal.New(journal.Config{
				Store:      store,
				Registry:   loaded.Registry,
				BatchSize:  loaded.Journal.BatchSize,
				QueueDepth: loaded.Journal.QueueDepth,
			})
			if err != nil {
				log.Fatalf("journal start failed: %v", err)
			}
		}
	}

	var p *pipeline.Pipeline
	var orderID uint64
	cfg := pipeline.Config{
		Loaded:  loaded,
		Driver:  drv,
		Journal: jnl,
		OnPortfolio: func(r risk.PortfolioRisk) {
			if r.Breaches != 0 {
				logs.Errorf("portfolio breach: exposure=%d var=%d concentration=%dbps mask=%b",
					r.TotalExposure, r.VaREstimate, r.ConcentrationBps, r.Breaches)
			}
		},
	}
	if *tradeOnTick {
		cfg.OnMarketData = func(e *schema.MarketDataEvent) {
			p.SubmitOrder(schema.OrderEvent{
				OrderID:  atomic.AddUint64(&orderID, 1),
				SymbolID: e.SymbolID,
				Side:     e.Side,
				Price:    e.Price,
				Qty:      schema.Quantity(schema.PriceScale),
			})
		}
	}

	p, err = pipeline.New(cfg)
	if err != nil {
		log.Fatalf("pipeline init failed: %v", err)
	}
	p.Start()
	logs.Infof("pipeline started: %d queues, %d symbols, driver=%s",
		len(loaded.Queues), loaded.Registry.Count(), loaded.Driver.Kind)

	stopWatch := make(chan struct{})
	if *configReload > 0 {
		go watchLimits(*configPath, *configReload, p.Engine(), stopWatch)
	}

	var sink obs.Sink = obs.NopSink{}
	if loaded.Features.MetricsLog {
		sink = obs.LogSink{}
	}
	flushTicker := time.NewTicker(loaded.MetricsInterval)
	defer flushTicker.Stop()

	var deadline <-chan time.Time
	if *runFor > 0 {
		deadline = time.After(*runFor)
	}

loop:
	for {
		select {
		case <-sys.Shutdown():
			break loop
		case <-deadline:
			break loop
		case <-flushTicker.C:
			p.Metrics().Flush(sink)
		}
	}

	close(stopWatch)
	p.Stop()
	if jnl != nil {
		if err := jnl.Close(); err != nil {
			logs.Errorf("journal close: %v", err)
		}
		if drops := jnl.Drops(); drops > 0 {
			logs.Errorf("journal dropped %d decisions under pressure", drops)
		}
	}

	s := p.Metrics().Snapshot()
	logs.Infof("rx=%d parse_drops=%d queue_drops=%d tx=%d tx_drops=%d pass=%d fail=%d warn=%d",
		s.PacketsReceived, s.ParseDrops, s.QueueDrops, s.PacketsSent, s.TxDrops,
		s.DecisionsPassed, s.DecisionsFailed, s.DecisionsWarned)
	as := p.AllocStats()
	logs.Infof("alloc bump=%d bitmap=%d general=%d failures=%d",
		as.BumpAllocs, as.BitmapAllocs, as.GeneralAllocs, as.Failures)
}

// openDriver builds the configured packet driver. The sim driver is fed
// by a synthetic walk over every configured symbol.
func openDriver(loaded ops.Loaded, feedCount int, feedPrice, feedTick string, feedSeed int64) (driver.Driver, func(), error) {
	noop := func() {}
	switch loaded.Driver.Kind {
	case "sim":
		symbols := make([]schema.SymbolID, 0, loaded.Registry.Count())
		for id := 1; id <= loaded.Registry.Count(); id++ {
			symbols = append(symbols, schema.SymbolID(id))
		}
		gen, err := feedgen.New(feedgen.Config{
			Symbols:    symbols,
			StartPrice: feedPrice,
			TickSize:   feedTick,
			Seed:       feedSeed,
			Count:      feedCount,
		})
		if err != nil {
			return nil, noop, err
		}
		return driver.NewSim(gen.FrameSource(ingest.NewFramer(loaded.Endpoint))), noop, nil
	case "capture":
		replay, err := driver.NewReplay(loaded.Driver.CapturePath)
		if err != nil {
			return nil, noop, err
		}
		return replay, noop, nil
	case "afpacket":
		af, err := driver.NewAFPacket(loaded.Driver.Interface)
		if err != nil {
			return nil, noop, err
		}
		return af, func() { _ = af.Close() }, nil
	}
	return nil, noop, os.ErrInvalid
}

// watchLimits polls the config file and hot-swaps the limit set. Only
// limits reload; topology and driver wiring need a restart.
func watchLimits(path string, interval time.Duration, engine *risk.Engine, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastMod time.Time
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			info, err := os.Stat(path)
			if err != nil {
				logs.Errorf("config stat failed: %v", err)
				continue
			}
			if !info.ModTime().After(lastMod) {
				continue
			}
			lim, err := ops.ReloadLimits(path)
			if err != nil {
				logs.Errorf("limit reload failed: %v", err)
				continue
			}
			if err := engine.ReplaceLimits(lim); err != nil {
				logs.Errorf("limit swap rejected: %v", err)
				continue
			}
			lastMod = info.ModTime()
			logs.Infof("limits reloaded: version=%d", lim.Version)
		}
	}
}
