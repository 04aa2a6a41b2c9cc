package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blackforestdev/njord-quant/internal/broker"
	"github.com/blackforestdev/njord-quant/internal/bus"
	"github.com/blackforestdev/njord-quant/internal/journal"
	"github.com/blackforestdev/njord-quant/internal/killswitch"
	"github.com/blackforestdev/njord-quant/internal/market"
	"github.com/blackforestdev/njord-quant/internal/paperoms"
	"github.com/blackforestdev/njord-quant/internal/risk"
	"github.com/blackforestdev/njord-quant/internal/strategy"
	"github.com/blackforestdev/njord-quant/pkg/config"
	"github.com/blackforestdev/njord-quant/pkg/exchanges/binance/spot"
	marketbinance "github.com/blackforestdev/njord-quant/pkg/market/binance"
	venuebinance "github.com/blackforestdev/njord-quant/pkg/venue/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting njord-quant, env=%s bus=%s", cfg.Env, cfg.BusBackend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventBus := newBus(cfg)

	journalDir := journal.NewDir(cfg.JournalDir)
	defer func() {
		if err := journalDir.Close(); err != nil {
			log.Printf("journal dir close: %v", err)
		}
	}()

	riskJournal, err := journalDir.WriterFor("risk.decisions.ndjson")
	if err != nil {
		log.Fatalf("open risk journal: %v", err)
	}
	ordersJournal, err := journalDir.WriterFor("broker.orders.ndjson")
	if err != nil {
		log.Fatalf("open orders journal: %v", err)
	}

	sw := killswitch.New(cfg.KillSwitchPath, eventBus)

	riskCfg := risk.Config{
		OrdersPerMinCap: cfg.RiskOrdersPerMinCap,
		PerOrderUSDCap:  cfg.RiskPerOrderUSDCap,
		DailyLossUSDCap: cfg.RiskDailyLossUSDCap,
		DailyResetUTC:   true,
	}
	riskMgr := risk.NewManager(eventBus, sw, riskCfg, risk.RealClock{}, riskJournal)

	oms := paperoms.NewOMS(eventBus, nil, journalDir)

	venue, brokerEnv := newVenue(cfg)
	dispatcher := broker.NewDispatcher(eventBus, sw, venue, broker.Config{Env: brokerEnv}, nil, ordersJournal, nil)

	feed := newFeed(cfg, eventBus)

	strategyMgr := strategy.NewManager(eventBus, cfg.StrategyManifestPath, cfg.StrategyReloadEvery)

	go mustRun("risk manager", func() error { return riskMgr.Run(ctx) })
	go mustRun("paper oms", func() error { return oms.Run(ctx) })
	go mustRun("broker dispatcher", func() error { return dispatcher.Run(ctx) })
	go mustRun("strategy manager", func() error { return strategyMgr.Run(ctx) })
	feed.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
	cancel()
}

// mustRun logs a component's terminal error instead of crashing the whole
// process; every Run loop already exits cleanly on context cancellation.
func mustRun(name string, run func() error) {
	if err := run(); err != nil {
		log.Printf("%s: exited with error: %v", name, err)
	}
}

func newBus(cfg *config.Config) bus.Bus {
	if cfg.BusBackend == "redis" {
		rcfg := bus.DefaultConfig()
		rcfg.Addr = cfg.RedisAddr
		rcfg.Password = cfg.RedisPasswd
		rcfg.DB = cfg.RedisDB
		log.Printf("bus: redis at %s", rcfg.Addr)
		return bus.NewRedisBus(rcfg)
	}
	log.Println("bus: in-memory")
	return bus.NewMemoryBus()
}

// newVenue wires the live Binance spot adapter only when the operator has
// asked for live trading; otherwise Run deals exclusively in dry-run
// decisions and the dispatcher is handed a nil Venue.
func newVenue(cfg *config.Config) (broker.Venue, string) {
	if cfg.Env != "live" {
		return nil, cfg.Env
	}
	if cfg.BinanceAPIKey == "" || cfg.BinanceAPISecret == "" {
		log.Println("broker: live env requested but no API credentials set, falling back to paper")
		return nil, "paper"
	}
	client := spot.New(spot.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})
	v := venuebinance.New(client)
	v.Testnet = cfg.BinanceTestnet
	return v, cfg.Env
}

func newFeed(cfg *config.Config, b bus.Bus) interface{ Start(context.Context) } {
	if cfg.UseMockFeed {
		log.Println("market feed: mock")
		return &market.MockFeed{Bus: b, Symbols: cfg.Symbols, Interval: time.Second}
	}
	log.Println("market feed: binance live stream")
	stream := marketbinance.NewStreamClient(cfg.BinanceTestnet)
	return market.NewFeed(stream, b, "binance-spot", cfg.Symbols)
}
