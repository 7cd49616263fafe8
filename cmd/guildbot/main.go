package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/guildex/guildex/params"
	"github.com/guildex/guildex/pkg/activity"
	"github.com/guildex/guildex/pkg/api"
	"github.com/guildex/guildex/pkg/app/core/market"
	"github.com/guildex/guildex/pkg/app/core/orderbook"
	"github.com/guildex/guildex/pkg/app/exchange"
	"github.com/guildex/guildex/pkg/command"
	"github.com/guildex/guildex/pkg/events"
	"github.com/guildex/guildex/pkg/metrics"
	"github.com/guildex/guildex/pkg/storage"
	"github.com/guildex/guildex/pkg/util"
)

// store is what both the pebble and in-memory backends provide.
type store interface {
	exchange.Store
	api.TradeSource
}

func main() {
	// Priority: ENV > .env in the working directory > defaults
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Storage.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Storage.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Storage ----
	var st store
	if cfg.Storage.DataDir == "" {
		st = storage.NewMemStore()
		sugar.Warnw("state_in_memory", "reason", "DATA_DIR is empty")
	} else {
		ps, err := storage.NewPebbleStore(cfg.Storage.DataDir)
		if err != nil {
			sugar.Fatalw("store_open_failed", "dir", cfg.Storage.DataDir, "err", err)
		}
		defer ps.Close()
		st = ps
	}

	var wal exchange.WAL = storage.NewNopWAL()
	if cfg.Storage.JournalFile != "" {
		fw, err := storage.NewFileWAL(cfg.Storage.JournalFile)
		if err != nil {
			sugar.Fatalw("journal_open_failed", "file", cfg.Storage.JournalFile, "err", err)
		}
		defer fw.Close()
		wal = fw
	}

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// ---- Exchange ----
	engine := exchange.NewEngine(engineConfig(cfg))
	engine.Logger = sugar
	engine.Store = st
	engine.WAL = wal
	engine.Metrics = metrics.New(reg)
	if err := engine.Load(); err != nil {
		sugar.Fatalw("state_load_failed", "err", err)
	}

	tracker := activity.NewTracker()
	dispatcher := command.NewDispatcher(engine, sugar)

	server := api.NewServer(api.Deps{
		Engine:      engine,
		Dispatcher:  dispatcher,
		Tracker:     tracker,
		Trades:      st,
		Gatherer:    reg,
		CORSOrigins: cfg.API.CORSOrigins,
		Logger:      sugar,
	})

	// ---- Event fan-out ----
	publishers := events.Fanout{server.Hub()}
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(events.KafkaConfig{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic}, sugar)
		defer kp.Close()
		publishers = append(publishers, kp)
		sugar.Infow("kafka_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}
	engine.Publisher = publishers

	// ---- Activity job ----
	job := &activity.Job{
		Tracker:  tracker,
		Engine:   engine,
		Interval: cfg.Activity.Interval,
		Logger:   sugar,
	}
	cancelJob := job.Start(ctx)
	defer cancelJob()

	sugar.Infow("guildbot_starting",
		"securities", len(engine.Securities()),
		"halted", engine.Halted(),
		"admins", len(cfg.Exchange.Admins),
		"activity_interval", cfg.Activity.Interval.String())

	if err := server.Start(ctx, cfg.API.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Errorw("api_server_failed", "err", err)
	}
	sugar.Infow("guildbot_stopped")
}

func engineConfig(cfg params.Config) exchange.Config {
	admins := make([]orderbook.UserID, 0, len(cfg.Exchange.Admins))
	for _, id := range cfg.Exchange.Admins {
		admins = append(admins, orderbook.UserID(id))
	}
	return exchange.Config{
		StartingCoins: cfg.Exchange.StartingCoins,
		IPOShares:     cfg.Exchange.IPOShares,
		Admins:        admins,
		Pricing: market.Pricing{
			Base:          cfg.Pricing.Base,
			MemberWeight:  cfg.Pricing.MemberWeight,
			MessageWeight: cfg.Pricing.MessageWeight,
			AuthorWeight:  cfg.Pricing.AuthorWeight,
			DriftWeight:   cfg.Pricing.DriftWeight,
			Window:        cfg.Pricing.SampleWindow,
		},
	}
}
