package main

import (
	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/infrastructure/broker"
	"chat-router/infrastructure/grpc/server"
	"chat-router/infrastructure/storage"
	"chat-router/observability"
	"chat-router/runtime"
	"chat-router/runtime/workers"
	"chat-router/sink"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Router terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a broker failure.
// Returning instead of exiting lets the deferred cleanups run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Monitoring and its optional journal
	telemetry := make(chan event.Event, config.BufferSize)
	monitoring := observability.NewMonitoringService(log, config.ErrorRateThreshold, telemetry)

	var sinks []contract.EventSink
	if config.JournalEnabled {
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return exitRuntime, fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()

		blugeWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
		if err != nil {
			return exitRuntime, fmt.Errorf("failed to open bluge writer: %w", err)
		}
		defer func() {
			log.Info("Closing Bluge index...")
			_ = blugeWriter.Close()
		}()
		sinks = append(sinks, sink.NewJournalSink(storage.NewJournalRepository(db, blugeWriter, log)))
	}

	// 3. Broker
	naming := domain.Naming{QueuePrefix: config.QueuePrefix, InboxPrefix: config.InboxPrefix}
	b, err := openBroker(log, config, naming, monitoring)
	if err != nil {
		return exitRuntime, err
	}
	defer func() {
		log.Info("Closing broker connection...")
		_ = b.Close()
	}()

	// 4. Routing engine
	router := runtime.NewRouter(log,
		runtime.NewDirectory(runtime.ShortIDGenerator{}),
		runtime.NewGroupRegistry(),
		runtime.NewMessageCache(config.MessageCacheSize, config.MessageCacheTTL),
		b, monitoring,
		runtime.WithNaming(naming),
		runtime.WithGroupEditFanout(config.FanoutGroupEdits),
	)

	// 5. Supervision & Orchestration
	sup := workers.NewSupervisor(log, config.RestartInterval).OnRestart(monitoring.WorkerRestarted)
	orchestrator := runtime.NewOrchestrator(log, sup, b, router, monitoring,
		config.NumberOfWorkers, config.BufferSize)
	orchestrator.Add(
		workers.NewTelemetryWorker(log, telemetry, config.SinkTimeout, sinks...),
		workers.NewChannelCapacityWorker(log, orchestrator.Channels(), monitoring, config.MetricInterval),
	)
	if config.StatsInterval > 0 {
		orchestrator.Add(workers.NewStatsReporterWorker(os.Stdout, monitoring, config.StatsInterval))
	}
	if config.HealthPort > 0 {
		healthServer := server.NewHealthServer(log, config.HealthPort)
		orchestrator.Add(
			healthServer,
			workers.NewHealthWorker(log, monitoring, healthServer.Status(), server.ServiceName, config.MetricInterval),
		)
	}

	// 6. Run until a signal arrives or the broker goes away
	log.Info("Router started", "transport", config.Transport, "exchange", config.Exchange,
		"workers", config.NumberOfWorkers)
	if err = orchestrator.Start(ctx); err != nil {
		return exitRuntime, fmt.Errorf("orchestrator stopped: %w", err)
	}
	log.Info("Router stopped")
	return exitOK, nil
}

func openBroker(log *slog.Logger, config Config, naming domain.Naming,
	monitoring *observability.MonitoringService) (contract.Broker, error) {
	if config.Transport == transportMemory {
		log.Warn("Using the in-memory broker, nothing leaves this process")
		return broker.NewMemoryBroker(config.BufferSize), nil
	}
	b, err := broker.DialAMQP(log, broker.AMQPConfig{
		URL:          config.AMQPURL,
		Exchange:     config.Exchange,
		ExchangeKind: config.ExchangeKind,
		Naming:       naming,
		Prefetch:     config.Prefetch,
		Confirms:     config.DeliveryConfirms,
		OnConfirm:    monitoring.DeliveryConfirmed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker %s: %w", config.AMQPURL, err)
	}
	return b, nil
}
