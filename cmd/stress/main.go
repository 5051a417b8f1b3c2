package main

import (
	healthclient "chat-router/infrastructure/grpc/client"
	"chat-router/infrastructure/grpc/server"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	amqp "github.com/rabbitmq/amqp091-go"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Stress run failed: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if cfg.Clients < 2 {
		return exitConfig, fmt.Errorf("STRESS_CLIENTS must be at least 2, got %d", cfg.Clients)
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HealthAddr != "" {
		healthCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
		status, err := healthclient.CheckHealth(healthCtx, cfg.HealthAddr, server.ServiceName)
		cancel()
		if err != nil {
			return exitRuntime, fmt.Errorf("router health check failed: %w", err)
		}
		if status != healthpb.HealthCheckResponse_SERVING {
			return exitRuntime, fmt.Errorf("router is %s", status)
		}
	}

	conn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to connect to broker: %w", err)
	}
	defer func() { _ = conn.Close() }()

	// 1. Register everybody and open the inboxes
	clients := make([]*client, 0, cfg.Clients)
	for i := 0; i < cfg.Clients; i++ {
		c, err := newClient(log, cfg, conn, fmt.Sprintf("stress-%d", i))
		if err != nil {
			return exitRuntime, err
		}
		defer c.close()
		if err = c.register(ctx); err != nil {
			return exitRuntime, err
		}
		if err = c.listen(ctx); err != nil {
			return exitRuntime, err
		}
		clients = append(clients, c)
	}
	log.Info("Clients registered", "count", len(clients))

	// 2. One group for everybody
	groupID := fmt.Sprintf("stress-%d", time.Now().Unix())
	if err = clients[0].createGroup(ctx, groupID); err != nil {
		return exitRuntime, err
	}
	time.Sleep(cfg.Interval)
	for _, c := range clients[1:] {
		if err = c.joinGroup(ctx, groupID); err != nil {
			return exitRuntime, err
		}
	}
	time.Sleep(cfg.Interval * time.Duration(len(clients)))

	// 3. Everybody talks at once
	start := time.Now()
	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			c.chat(ctx, groupID, cfg.Messages, cfg.Interval)
		}(c)
	}
	wg.Wait()
	log.Info("Messages published, waiting for deliveries", "settle", cfg.Settle)
	select {
	case <-ctx.Done():
	case <-time.After(cfg.Settle):
	}

	if complete := report(cfg, clients, time.Since(start)); !complete {
		return exitRuntime, fmt.Errorf("some deliveries are missing")
	}
	return exitOK, nil
}

// report prints one row per client and tells whether every message reached every other member.
func report(cfg Config, clients []*client, elapsed time.Duration) bool {
	var totalSent int64
	for _, c := range clients {
		totalSent += c.sent.Load()
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Client", "User ID", "Sent", "Received", "Expected", "Notices"})
	table.SetBorder(false)
	complete := true
	for _, c := range clients {
		expected := totalSent - c.sent.Load()
		received := c.received.Load()
		if received < expected {
			complete = false
		}
		table.Append([]string{c.name, c.id,
			strconv.FormatInt(c.sent.Load(), 10),
			strconv.FormatInt(received, 10),
			strconv.FormatInt(expected, 10),
			strconv.FormatInt(c.notices.Load(), 10),
		})
	}
	table.Render()

	summary := fmt.Sprintf(" %d clients, %d messages sent in %s ", len(clients), totalSent, elapsed.Round(time.Millisecond))
	if cfg.Colours {
		style := color.New(color.BgBlack, color.FgGreen)
		if !complete {
			style = color.New(color.BgBlack, color.FgRed)
		}
		summary = style.Render(summary)
	}
	fmt.Println(summary)
	return complete
}
