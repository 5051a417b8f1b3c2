// Package observability keeps track of what the router does: counters,
// active users and groups, processing times and health.
// It only observes, routing never depends on it.
package observability

import (
	"chat-router/domain"
	"chat-router/domain/event"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/samber/lo"
	"github.com/shirou/gopsutil/process"
)

const (
	maxProcessingTimes        = 1000
	DefaultErrorRateThreshold = 0.1
	queueWarnRatio            = 0.8
)

type HealthStatus string

const (
	Healthy   HealthStatus = "HEALTHY"
	Unhealthy HealthStatus = "UNHEALTHY"
)

type UserSession struct {
	UserID       string
	Username     string
	LoginTime    time.Time
	LastActivity time.Time
}

type GroupInfo struct {
	GroupID     string
	Name        string
	CreatedAt   time.Time
	MemberCount int
}

type Counters struct {
	MessagesSent     uint64
	MessagesReceived uint64
	FilesSent        uint64
	FilesReceived    uint64
	ImagesSent       uint64
	ImagesReceived   uint64
	EditsSent        uint64
	EditsReceived    uint64
	UsersRegistered  uint64
	GroupsCreated    uint64
	GroupJoins       uint64
	GroupLeaves      uint64
	Errors           uint64
	DeliveryNacks    uint64
}

// TotalSent counts every payload accepted for routing, whatever its kind.
func (c Counters) TotalSent() uint64 {
	return c.MessagesSent + c.FilesSent + c.ImagesSent + c.EditsSent
}

func (c Counters) TotalReceived() uint64 {
	return c.MessagesReceived + c.FilesReceived + c.ImagesReceived + c.EditsReceived
}

type Stats struct {
	Uptime            time.Duration
	ActiveUsers       []UserSession
	ActiveGroups      []GroupInfo
	Counters          Counters
	AvgProcessingTime time.Duration
	MaxProcessingTime time.Duration
	ProcessedCount    int
	QueueLength       int
	QueueCapacity     int
}

type Health struct {
	Status            HealthStatus
	ErrorRate         float64
	ActiveConnections int
	TotalMessages     uint64
	TotalErrors       uint64
	MemoryRSS         uint64
	MemoryPercent     float32
	Uptime            time.Duration
}

type counters struct {
	messagesSent, messagesReceived atomic.Uint64
	filesSent, filesReceived       atomic.Uint64
	imagesSent, imagesReceived     atomic.Uint64
	editsSent, editsReceived       atomic.Uint64
	usersRegistered, groupsCreated atomic.Uint64
	groupJoins, groupLeaves        atomic.Uint64
	errors, deliveryNacks          atomic.Uint64
}

// MonitoringService implements contract.Monitor.
// Every notification becomes an event.Event, logged and forwarded to the
// telemetry channel when one is given. A full channel drops the event.
type MonitoringService struct {
	log                *slog.Logger
	startedAt          time.Time
	errorRateThreshold float64
	telemetry          chan<- event.Event
	proc               *process.Process

	mu     sync.RWMutex
	users  map[string]*UserSession
	groups map[string]*GroupInfo

	timesMu sync.Mutex
	times   []time.Duration
	next    int

	queueLength   atomic.Int64
	queueCapacity atomic.Int64
	counters      counters
}

func NewMonitoringService(log *slog.Logger, errorRateThreshold float64, telemetry chan<- event.Event) *MonitoringService {
	if errorRateThreshold <= 0 || errorRateThreshold > 1 {
		errorRateThreshold = DefaultErrorRateThreshold
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		log.Warn("Process metrics unavailable", "error", err)
	}
	return &MonitoringService{
		log:                log,
		startedAt:          time.Now(),
		errorRateThreshold: errorRateThreshold,
		telemetry:          telemetry,
		proc:               proc,
		users:              make(map[string]*UserSession),
		groups:             make(map[string]*GroupInfo),
		times:              make([]time.Duration, 0, maxProcessingTimes),
	}
}

func (m *MonitoringService) UserRegistered(userID, username string) {
	now := time.Now()
	m.mu.Lock()
	m.users[userID] = &UserSession{UserID: userID, Username: username, LoginTime: now, LastActivity: now}
	m.mu.Unlock()
	m.counters.usersRegistered.Add(1)
	m.emit(event.LevelInfo, event.UserRegisterType, "User registered: "+username,
		map[string]any{"userId": userID, "username": username})
}

// UserRemoved drops a session. Unknown users are ignored.
func (m *MonitoringService) UserRemoved(userID string) {
	m.mu.Lock()
	session, ok := m.users[userID]
	delete(m.users, userID)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.emit(event.LevelInfo, event.SystemType, "User disconnected: "+session.Username,
		map[string]any{"userId": userID, "sessionDuration": time.Since(session.LoginTime).String()})
}

func (m *MonitoringService) GroupCreated(groupID, name string) {
	m.mu.Lock()
	m.groups[groupID] = &GroupInfo{GroupID: groupID, Name: name, CreatedAt: time.Now(), MemberCount: 1}
	m.mu.Unlock()
	m.counters.groupsCreated.Add(1)
	m.emit(event.LevelInfo, event.GroupCreatedType, "Group created: "+name,
		map[string]any{"groupId": groupID, "groupName": name})
}

func (m *MonitoringService) GroupJoined(groupID, userID string, memberCount int) {
	m.setMemberCount(groupID, memberCount)
	m.touch(userID)
	m.counters.groupJoins.Add(1)
	m.emit(event.LevelInfo, event.GroupJoinedType, "User joined group",
		map[string]any{"groupId": groupID, "userId": userID, "memberCount": memberCount})
}

func (m *MonitoringService) GroupLeft(groupID, userID string, memberCount int) {
	m.setMemberCount(groupID, memberCount)
	m.counters.groupLeaves.Add(1)
	m.emit(event.LevelInfo, event.GroupLeftType, "User left group",
		map[string]any{"groupId": groupID, "userId": userID, "memberCount": memberCount})
}

func (m *MonitoringService) GroupRemoved(groupID string) {
	m.mu.Lock()
	group, ok := m.groups[groupID]
	delete(m.groups, groupID)
	m.mu.Unlock()
	name := groupID
	if ok {
		name = group.Name
	}
	m.emit(event.LevelInfo, event.GroupRemovedType, "Group deleted: "+name,
		map[string]any{"groupId": groupID, "groupName": name})
}

func (m *MonitoringService) Sent(kind domain.RoutingKey, senderID, targetID string, size int, details map[string]any) {
	m.touch(senderID)
	var t event.Type
	switch kind {
	case domain.FileKey:
		m.counters.filesSent.Add(1)
		t = event.FileSentType
	case domain.ImageKey:
		m.counters.imagesSent.Add(1)
		t = event.ImageSentType
	case domain.EditKey:
		m.counters.editsSent.Add(1)
		t = event.EditSentType
	default:
		m.counters.messagesSent.Add(1)
		t = event.MessageSentType
	}
	m.emit(event.LevelInfo, t, fmt.Sprintf("%s sent", kind),
		lo.Assign(details, map[string]any{"senderId": senderID, "targetId": targetID, "size": size}))
}

func (m *MonitoringService) Received(kind domain.RoutingKey, receiverID, senderID string, size int) {
	m.touch(receiverID)
	var t event.Type
	switch kind {
	case domain.FileKey:
		m.counters.filesReceived.Add(1)
		t = event.FileRecvType
	case domain.ImageKey:
		m.counters.imagesReceived.Add(1)
		t = event.ImageRecvType
	case domain.EditKey:
		m.counters.editsReceived.Add(1)
		t = event.EditRecvType
	default:
		m.counters.messagesReceived.Add(1)
		t = event.MessageRecvType
	}
	m.emit(event.LevelDebug, t, fmt.Sprintf("%s received", kind),
		map[string]any{"receiverId": receiverID, "senderId": senderID, "size": size})
}

func (m *MonitoringService) Error(message string, err error, details map[string]any) {
	m.counters.errors.Add(1)
	extra := map[string]any{}
	if err != nil {
		extra["error"] = err.Error()
	}
	m.emit(event.LevelError, event.ErrorType, message, lo.Assign(details, extra))
}

func (m *MonitoringService) ProcessingTime(d time.Duration) {
	m.timesMu.Lock()
	defer m.timesMu.Unlock()
	if len(m.times) < maxProcessingTimes {
		m.times = append(m.times, d)
		return
	}
	m.times[m.next] = d
	m.next = (m.next + 1) % maxProcessingTimes
}

// DeliveryConfirmed matches domain.ConfirmFunc. Only negative confirmations are recorded.
func (m *MonitoringService) DeliveryConfirmed(destination string, acked bool) {
	if acked {
		return
	}
	m.counters.deliveryNacks.Add(1)
	m.emit(event.LevelWarn, event.DeliveryNackType, "Broker refused a delivery",
		map[string]any{"destination": destination})
}

// WorkerRestarted is given to the supervisor, a crash counts as an error.
func (m *MonitoringService) WorkerRestarted(workerName string, err error) {
	m.Error("worker restarted", err, map[string]any{"worker": workerName})
}

// ChannelCapacity records the inbound buffer fill level and warns when it is nearly full.
func (m *MonitoringService) ChannelCapacity(name string, length, capacity int) {
	m.queueLength.Store(int64(length))
	m.queueCapacity.Store(int64(capacity))
	if capacity > 0 && float64(length) >= float64(capacity)*queueWarnRatio {
		m.emit(event.LevelWarn, event.ChannelCapacityType, "Channel nearly full: "+name,
			map[string]any{"channel": name, "length": length, "capacity": capacity})
	}
}

func (m *MonitoringService) Stats() Stats {
	m.mu.RLock()
	users := lo.MapToSlice(m.users, func(_ string, s *UserSession) UserSession { return *s })
	groups := lo.MapToSlice(m.groups, func(_ string, g *GroupInfo) GroupInfo { return *g })
	m.mu.RUnlock()
	sort.Slice(users, func(i, j int) bool { return users[i].UserID < users[j].UserID })
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupID < groups[j].GroupID })

	avg, maxTime, processed := m.processingTimes()
	return Stats{
		Uptime:            time.Since(m.startedAt),
		ActiveUsers:       users,
		ActiveGroups:      groups,
		Counters:          m.snapshot(),
		AvgProcessingTime: avg,
		MaxProcessingTime: maxTime,
		ProcessedCount:    processed,
		QueueLength:       int(m.queueLength.Load()),
		QueueCapacity:     int(m.queueCapacity.Load()),
	}
}

// Health is HEALTHY while errors stay below the threshold ratio of sent payloads.
func (m *MonitoringService) Health() Health {
	c := m.snapshot()
	rate := 0.0
	if sent := c.TotalSent(); sent > 0 {
		rate = float64(c.Errors) / float64(sent)
	}
	status := Healthy
	if rate >= m.errorRateThreshold {
		status = Unhealthy
	}
	m.mu.RLock()
	active := len(m.users)
	m.mu.RUnlock()

	health := Health{
		Status:            status,
		ErrorRate:         rate,
		ActiveConnections: active,
		TotalMessages:     c.TotalSent() + c.TotalReceived(),
		TotalErrors:       c.Errors,
		Uptime:            time.Since(m.startedAt),
	}
	if m.proc != nil {
		if mem, err := m.proc.MemoryInfo(); err == nil {
			health.MemoryRSS = mem.RSS
		}
		if percent, err := m.proc.MemoryPercent(); err == nil {
			health.MemoryPercent = percent
		}
	}
	return health
}

func (m *MonitoringService) snapshot() Counters {
	return Counters{
		MessagesSent:     m.counters.messagesSent.Load(),
		MessagesReceived: m.counters.messagesReceived.Load(),
		FilesSent:        m.counters.filesSent.Load(),
		FilesReceived:    m.counters.filesReceived.Load(),
		ImagesSent:       m.counters.imagesSent.Load(),
		ImagesReceived:   m.counters.imagesReceived.Load(),
		EditsSent:        m.counters.editsSent.Load(),
		EditsReceived:    m.counters.editsReceived.Load(),
		UsersRegistered:  m.counters.usersRegistered.Load(),
		GroupsCreated:    m.counters.groupsCreated.Load(),
		GroupJoins:       m.counters.groupJoins.Load(),
		GroupLeaves:      m.counters.groupLeaves.Load(),
		Errors:           m.counters.errors.Load(),
		DeliveryNacks:    m.counters.deliveryNacks.Load(),
	}
}

func (m *MonitoringService) processingTimes() (avg, maxTime time.Duration, count int) {
	m.timesMu.Lock()
	defer m.timesMu.Unlock()
	if len(m.times) == 0 {
		return 0, 0, 0
	}
	var total time.Duration
	for _, d := range m.times {
		total += d
		maxTime = max(maxTime, d)
	}
	return total / time.Duration(len(m.times)), maxTime, len(m.times)
}

func (m *MonitoringService) touch(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.users[userID]; ok {
		session.LastActivity = time.Now()
	}
}

func (m *MonitoringService) setMemberCount(groupID string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if group, ok := m.groups[groupID]; ok {
		group.MemberCount = count
	}
}

func (m *MonitoringService) emit(level event.Level, t event.Type, message string, details map[string]any) {
	evt := event.New(level, t, message, details)
	m.log.Log(context.Background(), toSlogLevel(level), message, "type", t, "details", details)
	if m.telemetry == nil {
		return
	}
	select {
	case m.telemetry <- evt:
	default:
		m.log.Debug("Telemetry event lost", "type", t)
	}
}

func toSlogLevel(level event.Level) slog.Level {
	switch level {
	case event.LevelError:
		return slog.LevelError
	case event.LevelWarn:
		return slog.LevelWarn
	default:
		// routing already logs at info level
		return slog.LevelDebug
	}
}
