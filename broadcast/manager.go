// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package broadcast orchestrates message distribution: the targeting
// patterns, the background drain loop, interest narrowing, compression and
// reliable delivery with ack-driven retries.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/absmach/gamecast/compress"
	"github.com/absmach/gamecast/filter"
	"github.com/absmach/gamecast/message"
	"github.com/absmach/gamecast/monitor"
	"github.com/absmach/gamecast/queue"
	"github.com/absmach/gamecast/registry"
)

// Manager defaults.
const (
	DefaultMaxRetryAttempts = 3
	DefaultRetryTimeout     = 5 * time.Second
	DefaultProximityRange   = 100.0

	idlePollDelay = time.Millisecond
	sweepInterval = 500 * time.Millisecond
)

// Circuit breaker thresholds for one client link.
const (
	breakerFailures = 5
	breakerCooldown = 5 * time.Second
)

// Options is the plain configuration struct for a Manager.
type Options struct {
	MaxQueueSize     int
	BatchSize        int
	BatchTimeout     time.Duration
	Compression      bool
	SpatialFiltering bool
	ReliableDelivery bool
	MaxRetryAttempts int
	RetryTimeout     time.Duration
	ChunkBroadcast   bool
	ProximityRange   float64

	// Interest and compression tunables; zero values use package defaults.
	ChunkSize         int32
	ChunkRadius       int32
	MaxDistance       float64
	DeliveryRate      float64
	FullStateInterval time.Duration

	Logger  *slog.Logger
	Monitor monitor.Monitor
}

// Manager owns the distribution pipeline. Producers call the Broadcast
// entry points concurrently; one background worker drains the queue and a
// second sweeps the reliable table. Entry points report admission, never
// delivery.
type Manager struct {
	opts Options

	registry   *registry.Registry
	filters    *filter.Manager
	compressor *compress.Compressor
	queue      *queue.Queue
	monitor    monitor.Monitor
	logger     *slog.Logger

	reliable *reliableTable

	breakerMu sync.Mutex
	breakers  map[string]*gobreaker.CircuitBreaker

	stats     Stats
	admitting atomic.Bool
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	now       func() time.Time
}

// NewManager wires the pipeline together and starts the background loops.
// Call Shutdown to stop them.
func NewManager(opts Options) *Manager {
	m := newManager(opts)
	m.start()
	return m
}

// newManager wires the pipeline without starting the background loops.
func newManager(opts Options) *Manager {
	if opts.MaxRetryAttempts <= 0 {
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if opts.RetryTimeout <= 0 {
		opts.RetryTimeout = DefaultRetryTimeout
	}
	if opts.ProximityRange <= 0 {
		opts.ProximityRange = DefaultProximityRange
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Monitor == nil {
		opts.Monitor = monitor.Nop{}
	}
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = registry.DefaultChunkSize
	}

	m := &Manager{
		opts:     opts,
		registry: registry.New(opts.ChunkSize),
		filters: filter.NewManager(filter.Config{
			MaxDistance:  opts.MaxDistance,
			ChunkSize:    opts.ChunkSize,
			ChunkRadius:  opts.ChunkRadius,
			DeliveryRate: opts.DeliveryRate,
			Logger:       opts.Logger,
		}),
		compressor: compress.New(opts.FullStateInterval),
		queue: queue.New(queue.Options{
			MaxQueueSize: opts.MaxQueueSize,
			BatchSize:    opts.BatchSize,
			BatchMaxAge:  opts.BatchTimeout,
		}),
		monitor:  opts.Monitor,
		logger:   opts.Logger,
		reliable: newReliableTable(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
	m.admitting.Store(true)
	return m
}

func (m *Manager) start() {
	m.wg.Add(1)
	go m.drainLoop()
	if m.opts.ReliableDelivery {
		m.wg.Add(1)
		go m.sweepLoop()
	}
}

// RegisterClient adds a client to the registry at an initial position.
func (m *Manager) RegisterClient(clientID string, link registry.ClientLink, x, y float64) {
	m.registry.Register(clientID, link, x, y)
	m.logger.Info("client registered",
		slog.String("client_id", clientID),
		slog.Float64("x", x),
		slog.Float64("y", y))
}

// UnregisterClient removes a client and every piece of per-client state:
// registry entry, rate limiter bucket, outstanding reliable targets, delta
// baselines and the send breaker.
func (m *Manager) UnregisterClient(clientID string) {
	m.registry.Unregister(clientID)
	m.filters.RemoveClient(clientID)
	m.reliable.drop(clientID)
	m.compressor.ClearHistory(clientID)

	m.breakerMu.Lock()
	delete(m.breakers, clientID)
	m.breakerMu.Unlock()

	m.logger.Info("client unregistered", slog.String("client_id", clientID))
}

// UpdateClientPosition moves a client in the registry.
func (m *Manager) UpdateClientPosition(clientID string, x, y float64) error {
	return m.registry.UpdatePosition(clientID, x, y)
}

// BroadcastToAll enqueues a message for every registered client. A
// non-empty excludeSender is skipped during dispatch.
func (m *Manager) BroadcastToAll(payload message.Payload, priority message.Priority, excludeSender string) bool {
	return m.admit(&queue.Message{
		Priority:      priority,
		Kind:          payload.Kind(),
		Payload:       payload,
		Pattern:       queue.PatternAll,
		SenderID:      excludeSender,
		ExcludeSender: excludeSender != "",
	})
}

// BroadcastToClient enqueues a unicast message and returns its handle. The
// handle identifies the message for Acknowledge when reliable is set; an
// empty handle means the queue refused the message.
func (m *Manager) BroadcastToClient(clientID string, payload message.Payload, priority message.Priority, reliable bool) string {
	reliable = reliable && m.opts.ReliableDelivery
	msg := &queue.Message{
		ID:          uuid.NewString(),
		Priority:    priority,
		Kind:        payload.Kind(),
		Payload:     payload,
		Pattern:     queue.PatternUnicast,
		Targets:     []string{clientID},
		Reliable:    reliable,
		MaxAttempts: m.opts.MaxRetryAttempts,
	}
	if !m.admit(msg) {
		return ""
	}
	return msg.ID
}

// BroadcastToClients enqueues a multicast message to an explicit target
// set.
func (m *Manager) BroadcastToClients(clientIDs []string, payload message.Payload, priority message.Priority) bool {
	if len(clientIDs) == 0 {
		return false
	}
	return m.admit(&queue.Message{
		Priority: priority,
		Kind:     payload.Kind(),
		Payload:  payload,
		Pattern:  queue.PatternMulticast,
		Targets:  append([]string(nil), clientIDs...),
	})
}

// BroadcastToChunk enqueues a message for the clients inside one chunk.
// When chunk broadcast is disabled it degrades to a broadcast to all.
func (m *Manager) BroadcastToChunk(chunkX, chunkY int32, payload message.Payload, priority message.Priority, excludeSender string) bool {
	pattern := queue.PatternChunk
	if !m.opts.ChunkBroadcast {
		pattern = queue.PatternAll
	}
	return m.admit(&queue.Message{
		Priority:      priority,
		Kind:          payload.Kind(),
		Payload:       payload,
		Pattern:       pattern,
		SenderID:      excludeSender,
		ExcludeSender: excludeSender != "",
		ChunkX:        chunkX,
		ChunkY:        chunkY,
	})
}

// BroadcastProximity enqueues a message for the clients within radius of a
// point. The boundary is inclusive; a non-positive radius falls back to the
// configured proximity range.
func (m *Manager) BroadcastProximity(x, y, radius float64, payload message.Payload, priority message.Priority, excludeSender string) bool {
	if radius <= 0 {
		radius = m.opts.ProximityRange
	}
	return m.admit(&queue.Message{
		Priority:      priority,
		Kind:          payload.Kind(),
		Payload:       payload,
		Pattern:       queue.PatternProximity,
		SenderID:      excludeSender,
		ExcludeSender: excludeSender != "",
		OriginX:       x,
		OriginY:       y,
		Radius:        radius,
	})
}

// Acknowledge records a client's receipt of a reliable message.
func (m *Manager) Acknowledge(messageID, clientID string) {
	if m.reliable.ack(messageID, clientID) {
		m.logger.Debug("reliable message fully acknowledged",
			slog.String("message_id", messageID))
	}
}

// Statistics aggregates counters from every pipeline stage.
func (m *Manager) Statistics() map[string]any {
	return map[string]any{
		"broadcast":        m.stats.snapshot(),
		"queue":            m.queue.Statistics(),
		"filters":          m.filters.Statistics(),
		"compression":      m.compressor.Statistics(),
		"pending_reliable": m.reliable.size(),
		"clients":          m.registry.Len(),
	}
}

// Shutdown stops admission immediately, lets the worker finish its current
// batch, then clears the queue and abandons in-flight reliable messages.
// It is idempotent.
func (m *Manager) Shutdown() {
	m.stopOnce.Do(func() {
		m.admitting.Store(false)
		close(m.stopCh)
		m.wg.Wait()

		m.queue.Clear(nil)
		if n := m.reliable.clear(); n > 0 {
			m.logger.Warn("abandoning reliable messages on shutdown",
				slog.Int("count", n))
		}
		m.logger.Info("broadcast manager stopped")
	})
}

func (m *Manager) admit(msg *queue.Message) bool {
	if !m.admitting.Load() || !msg.Priority.Valid() {
		m.stats.Rejected.Add(1)
		return false
	}
	if m.queue.Enqueue(msg) {
		m.stats.Accepted.Add(1)
		return true
	}
	m.stats.Rejected.Add(1)
	return false
}

// drainLoop is the single background worker. It polls the queue, sleeping
// briefly when nothing is ready, and always finishes the batch in hand
// before honoring a stop signal.
func (m *Manager) drainLoop() {
	defer m.wg.Done()

	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		batch := m.queue.DequeueBatch()
		if batch == nil {
			time.Sleep(idlePollDelay)
			continue
		}
		m.dispatchBatch(batch)
	}
}

func (m *Manager) dispatchBatch(batch *queue.Batch) {
	start := m.now()
	for _, msg := range batch.Messages() {
		m.dispatch(msg)
	}
	m.stats.Batches.Add(1)
	m.monitor.RecordEvent("broadcast.batch_ms",
		float64(m.now().Sub(start).Microseconds())/1000.0, nil)
	m.monitor.RecordEvent("broadcast.batch_size", float64(batch.Len()), nil)
}

// dispatch resolves one message's targets, narrows them through the filter
// chain, compresses the payload once and fans the bytes out per target.
func (m *Manager) dispatch(msg *queue.Message) {
	targets := m.resolveTargets(msg)
	if len(targets) == 0 {
		return
	}

	now := m.now()
	var survivors []string
	for _, id := range targets {
		if msg.ExcludeSender && id == msg.SenderID {
			continue
		}
		info, ok := m.registry.Get(id)
		if !ok || !info.Active {
			continue
		}
		if m.opts.SpatialFiltering && !m.filters.ShouldDeliver(filter.Context{
			ClientID:     id,
			ClientX:      info.X,
			ClientY:      info.Y,
			ClientChunkX: info.ChunkX,
			ClientChunkY: info.ChunkY,
			Kind:         msg.Kind,
			Payload:      msg.Payload,
			SenderID:     msg.SenderID,
			Timestamp:    now,
		}) {
			m.stats.Filtered.Add(1)
			continue
		}
		survivors = append(survivors, id)
	}
	if len(survivors) == 0 {
		return
	}

	data := m.encodePayload(msg)
	if data == nil {
		return
	}

	for _, id := range survivors {
		m.sendTo(id, msg.Kind, data)
	}

	if msg.Reliable && msg.ID != "" {
		m.reliable.record(msg, survivors, now)
	}
}

// encodePayload serializes a message once per fan-out. Compression failures
// fall back to an uncompressed frame on the same wire format and never
// abort the dispatch.
func (m *Manager) encodePayload(msg *queue.Message) []byte {
	if !m.opts.Compression {
		data, err := json.Marshal(msg.Payload)
		if err != nil {
			m.logger.Error("payload encoding failed, dropping message",
				slog.String("kind", string(msg.Kind)),
				slog.Any("error", err))
			return nil
		}
		return data
	}

	entityID := ""
	if e, ok := msg.Payload.(message.Entity); ok {
		entityID = e.EntityID()
	}
	frame, _, err := m.compressor.Compress(msg.Kind, msg.Payload, entityID)
	if err == nil {
		return frame
	}
	m.logger.Warn("compression failed, sending uncompressed",
		slog.String("kind", string(msg.Kind)),
		slog.Any("error", err))

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		m.logger.Error("payload encoding failed, dropping message",
			slog.String("kind", string(msg.Kind)),
			slog.Any("error", err))
		return nil
	}
	return compress.RawFrame(data)
}

func (m *Manager) resolveTargets(msg *queue.Message) []string {
	switch msg.Pattern {
	case queue.PatternAll:
		return m.registry.All()
	case queue.PatternUnicast, queue.PatternMulticast:
		return msg.Targets
	case queue.PatternChunk:
		return m.registry.ClientsInChunk(msg.ChunkX, msg.ChunkY)
	case queue.PatternProximity:
		return m.registry.ClientsInRadius(msg.OriginX, msg.OriginY, msg.Radius)
	default:
		return nil
	}
}

// sendTo pushes bytes down one client link behind that client's circuit
// breaker. Failures are soft: logged, counted and folded into the client's
// connection quality.
func (m *Manager) sendTo(clientID string, kind message.Kind, data []byte) {
	link, ok := m.registry.Link(clientID)
	if !ok {
		return
	}

	_, err := m.breakerFor(clientID).Execute(func() (any, error) {
		return nil, link.Send(kind, data)
	})
	if err != nil {
		m.stats.SendErrors.Add(1)
		m.registry.ReportSend(clientID, false)
		m.logger.Debug("send failed",
			slog.String("client_id", clientID),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
		return
	}

	m.stats.Sent.Add(1)
	m.stats.BytesOut.Add(uint64(len(data)))
	m.registry.ReportSend(clientID, true)
}

func (m *Manager) breakerFor(clientID string) *gobreaker.CircuitBreaker {
	m.breakerMu.Lock()
	defer m.breakerMu.Unlock()

	cb, ok := m.breakers[clientID]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    clientID,
			Timeout: breakerCooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= breakerFailures
			},
		})
		m.breakers[clientID] = cb
	}
	return cb
}

// sweepLoop periodically retries reliable messages that missed their ack
// window.
func (m *Manager) sweepLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.sweepReliable(m.now())
		}
	}
}

// sweepReliable re-enqueues overdue reliable messages to their outstanding
// targets at the same or higher priority. Messages past their attempt
// budget are dropped and logged as failed.
func (m *Manager) sweepReliable(now time.Time) {
	for _, c := range m.reliable.expire(now, m.opts.RetryTimeout, m.opts.MaxRetryAttempts) {
		if c.abandoned {
			m.stats.Abandoned.Add(1)
			m.logger.Warn("reliable delivery failed",
				slog.String("message_id", c.msg.ID),
				slog.Int("attempts", c.attempts),
				slog.Int("unacked", len(c.targets)))
			continue
		}

		priority := c.msg.Priority
		if priority > message.High {
			priority = message.High
		}
		retry := &queue.Message{
			ID:          c.msg.ID,
			Priority:    priority,
			Kind:        c.msg.Kind,
			Payload:     c.msg.Payload,
			Pattern:     queue.PatternMulticast,
			Targets:     c.targets,
			Reliable:    true,
			Attempts:    c.attempts,
			MaxAttempts: c.msg.MaxAttempts,
		}
		if m.admit(retry) {
			m.stats.Retries.Add(1)
			m.monitor.RecordEvent("broadcast.retry", 1, nil)
		}
	}
}
