package workers

import (
	"bytes"
	"chat-router/observability"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type capacitySample struct {
	name             string
	length, capacity int
}

type recordingReporter struct {
	mu      sync.Mutex
	samples []capacitySample
}

func (r *recordingReporter) ChannelCapacity(name string, length, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, capacitySample{name, length, capacity})
}

func (r *recordingReporter) last() (capacitySample, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.samples) == 0 {
		return capacitySample{}, false
	}
	return r.samples[len(r.samples)-1], true
}

func TestChannelCapacityWorker_Samples_Channels(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbound := make(chan int, 10)
	inbound <- 1
	inbound <- 2
	reporter := &recordingReporter{}
	channels := []NamedChannel{{Name: "inbound", Channel: inbound}, {Name: "not a channel", Channel: 42}}

	go func() {
		_ = NewChannelCapacityWorker(slog.New(slog.DiscardHandler), channels, reporter, 5*time.Millisecond).Run(ctx)
	}()

	req.Eventually(func() bool { _, ok := reporter.last(); return ok }, time.Second, 5*time.Millisecond)
	sample, _ := reporter.last()
	req.Equal(capacitySample{"inbound", 2, 10}, sample)
}

type stubSource struct {
	stats  observability.Stats
	health observability.Health
}

func (s stubSource) Stats() observability.Stats   { return s.stats }
func (s stubSource) Health() observability.Health { return s.health }

func TestStatsReporterWorker_Print(t *testing.T) {
	req := require.New(t)
	var out bytes.Buffer
	source := stubSource{
		stats: observability.Stats{
			Uptime:   time.Minute,
			Counters: observability.Counters{MessagesSent: 3, MessagesReceived: 6, Errors: 1},
			ActiveUsers: []observability.UserSession{
				{UserID: "A1", Username: "Alice", LastActivity: time.Now()},
			},
			ActiveGroups: []observability.GroupInfo{
				{GroupID: "g1", Name: "Friends", MemberCount: 2, CreatedAt: time.Now()},
			},
		},
		health: observability.Health{Status: observability.Healthy, ErrorRate: 1.0 / 3},
	}

	NewStatsReporterWorker(&out, source, time.Hour).Print()

	printed := out.String()
	req.Contains(printed, "HEALTHY")
	req.Contains(printed, "33.33%")
	req.Contains(printed, "Alice")
	req.Contains(printed, "Friends")
	req.Regexp(`message\s+3\s+6`, printed)
}

type recordingSetter struct {
	mu       sync.Mutex
	statuses []healthpb.HealthCheckResponse_ServingStatus
}

func (r *recordingSetter) SetServingStatus(_ string, status healthpb.HealthCheckResponse_ServingStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

func (r *recordingSetter) all() []healthpb.HealthCheckResponse_ServingStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]healthpb.HealthCheckResponse_ServingStatus(nil), r.statuses...)
}

func TestHealthWorker_Follows_Monitoring(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	setter := &recordingSetter{}
	source := stubSource{health: observability.Health{Status: observability.Unhealthy}}

	done := make(chan error, 1)
	go func() {
		done <- NewHealthWorker(slog.New(slog.DiscardHandler), source, setter, "chat.router", time.Hour).Run(ctx)
	}()

	// Then the first check happens right away
	req.Eventually(func() bool { return len(setter.all()) == 1 }, time.Second, 5*time.Millisecond)
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, setter.all()[0])

	// And shutting down reports not serving
	cancel()
	req.NoError(<-done)
	statuses := setter.all()
	req.Equal(healthpb.HealthCheckResponse_NOT_SERVING, statuses[len(statuses)-1])
}
