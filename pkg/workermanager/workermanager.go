// Package workermanager implements the per-worker session state and the
// WorkerManager: one receive-goroutine per connected
// worker feeding a demultiplexer, one send-goroutine draining each worker's
// outbound queue, and heartbeat-timeout reclaim.
package workermanager

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/log"
	"github.com/hodei/orchestrator/pkg/metrics"
	"github.com/hodei/orchestrator/pkg/wireproto"
)

const outboundQueueDepth = 64

// Session is the orchestrator-side state for one connected worker.
type Session struct {
	WorkerID	string
	PoolID	string
	RegisteredAt	time.Time
	LastHeartbeat	time.Time
	CurrentExecID	string
	outbound	chan *wireproto.OrchestratorMessage
	cancel	context.CancelFunc
	mu	sync.Mutex
	closed	bool
}

func (s *Session) touchHeartbeat() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastHeartbeat = time.Now()
}

func (s *Session) isHealthy(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.LastHeartbeat) <= timeout
}

// InboundHandler is how the execution engine subscribes to demuxed inbound
// messages, keyed by message kind, without ever touching the raw stream.
type InboundHandler func(workerID string, msg *wireproto.WorkerMessage)

// RegisterHandler vets a worker's RegisterRequest and performs any
// side-effect the engine needs before the RegisterAck is sent (persisting
// the domain.Worker, signaling a pending provisioning wait). Returning
// accept=false closes the stream with the given reason.
type RegisterHandler func(workerID, poolID string, caps domain.WorkerCapabilities) (accept bool, reason string)

// Manager owns the workerId -> Session map behind a single mutex: read lock
// for lookups, write lock for register/disconnect.
type Manager struct {
	mu	sync.RWMutex
	sessions	map[string]*Session
	heartbeatTimeout	time.Duration
	handlers	map[wireproto.WorkerMessageKind][]InboundHandler
	onLost func(workerID string)
	onRegister	RegisterHandler
	logger	zerolog.Logger
}

func New(heartbeatTimeout time.Duration, onLost func(workerID string)) *Manager {
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = domain.DefaultHeartbeatTimeout
	}
	return &Manager{
		sessions: make(map[string]*Session),
		heartbeatTimeout: heartbeatTimeout,
		handlers: make(map[wireproto.WorkerMessageKind][]InboundHandler),
		onLost: onLost,
		logger: log.WithComponent("workermanager"),
	}
}

// SetOnLost wires the heartbeat-reclaim callback after construction, so the
// engine (which the manager must exist before, to break the construction
// cycle) can supply it once it exists.
func (m *Manager) SetOnLost(fn func(workerID string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLost = fn
}

// SetOnRegister wires the registration hook after construction, for the
// same reason SetOnLost exists: the engine needs this manager to exist
// before it can be built.
func (m *Manager) SetOnRegister(fn RegisterHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onRegister = fn
}

// OnMessage registers a demultiplexed inbound handler for one message kind.
func (m *Manager) OnMessage(kind wireproto.WorkerMessageKind, handler InboundHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[kind] = append(m.handlers[kind], handler)
}

// Register creates a new session for workerID, replacing any prior session
// for the same id (a stale reconnect always wins over a zombie).
func (m *Manager) Register(workerID, poolID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[workerID]; ok {
		old.mu.Lock()
		old.closed = true
		old.mu.Unlock()
		if old.cancel != nil {
			old.cancel()
		}
	}
	now := time.Now()
	s := &Session{
		WorkerID: workerID,
		PoolID: poolID,
		RegisteredAt: now,
		LastHeartbeat: now,
		outbound: make(chan *wireproto.OrchestratorMessage, outboundQueueDepth),
	}
	m.sessions[workerID] = s
	metrics.WorkerSessionsActive.Set(float64(len(m.sessions)))
	return	s
}

func (m *Manager) get(workerID string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[workerID]
	return	s, ok
}

// Dispatch feeds one inbound WorkerMessage through the demultiplexer keyed
// by message kind. Heartbeats additionally refresh the session's liveness.
// A panic inside any handler is caught here rather than crashing the
// session's goroutine: it's converted to a ProtocolError and the session is
// closed, exactly as a malformed message on the wire would be.
func (m *Manager) Dispatch(workerID string, msg *wireproto.WorkerMessage) {
	defer func() {
		if r := recover(); r != nil {
			err := hodeierr.Protocol("panic in worker session handler for kind %q: %v", msg.Kind, r)
			m.logger.Error().Str("worker_id", workerID).Err(err).Msg("recovered panic in dispatch, closing session")
			m.Disconnect(workerID)
		}
	}()
	if s, ok := m.get(workerID); ok {
		if msg.Kind == wireproto.KindHeartbeat {
			s.touchHeartbeat()
		}
	}
	m.mu.RLock()
	handlers := append([]InboundHandler(nil), m.handlers[msg.Kind]...)
	m.mu.RUnlock()
	for _, h := range handlers {
		h(workerID, msg)
	}
}

// SendTo enqueues msg on workerID's outbound queue. Returns false if the
// worker is not currently connected
func (m *Manager) SendTo(workerID string, msg *wireproto.OrchestratorMessage) bool {
	s, ok := m.get(workerID)
	if !ok {
		return	false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if	s.closed {
		return	false
	}
	select	{
	case s.outbound <- msg:
		return	true
	default:
		m.logger.Warn().Str("worker_id", workerID).Msg("outbound queue full, dropping message")
		return	false
	}
}

// Broadcast sends msg to every connected worker, returning the ids it
// reached.
func (m *Manager) Broadcast(msg *wireproto.OrchestratorMessage) []string {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	var	sent []string
	for _, id := range ids {
		if m.SendTo(id, msg) {
			sent = append(sent, id)
		}
	}
	return	sent
}

// Disconnect removes workerID's session and cancels its stream context.
func (m *Manager) Disconnect(workerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[workerID]
	if !ok {
		return
	}
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	delete(m.sessions, workerID)
	metrics.WorkerSessionsActive.Set(float64(len(m.sessions)))
}

// ConnectedWorkers returns every currently-registered worker id.
func (m *Manager) ConnectedWorkers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return	ids
}

// Outbound exposes a session's outbound channel to the send-goroutine that
// owns the physical grpc stream; callers outside this package only obtain
// it through a session returned by Register.
func (s *Session) Outbound() <-chan *wireproto.OrchestratorMessage {
	return	s.outbound
}

// ReapLoop runs until ctx is cancelled, checking every interval for
// sessions whose heartbeat has exceeded the timeout and invoking onLost for
// each ("if >= 2 consecutive heartbeats are missed... the
// orchestrator marks the worker Error and reclaims its execution").
func (m *Manager) ReapLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for	{
		select	{
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapOnce()
		}
	}
}

func (m *Manager) reapOnce() {
	now := time.Now()
	m.mu.RLock()
	var	lost []string
	for id, s := range m.sessions {
		if !s.isHealthy(now, m.heartbeatTimeout) {
			lost = append(lost, id)
		}
	}
	m.mu.RUnlock()

	m.mu.RLock()
	onLost := m.onLost
	m.mu.RUnlock()

	for _, id := range lost {
		m.logger.Warn().Str("worker_id", id).Msg("worker heartbeat timeout, reclaiming")
		m.Disconnect(id)
		metrics.WorkerSessionsReapedTotal.Inc()
		if onLost != nil {
			onLost(id)
		}
	}
}

// ProtocolViolation is returned by session handlers (pkg/wireproto server
// loop) when a worker's first message is not RegisterRequest.
func ProtocolViolation(reason string) error {
	return hodeierr.Protocol(reason)
}

// Session implements wireproto.WorkerServiceServer: the single
// bidirectional RPC every worker opens. The first message on
// the stream must be RegisterRequest; every message after that is
// demultiplexed through Dispatch, and a second goroutine drains the
// session's outbound queue onto the same stream.
func (m *Manager) Session(stream wireproto.WorkerService_SessionServer) error {
	first, err := stream.Recv()
	if err != nil {
		return	err
	}
	if first.Kind != wireproto.KindRegisterRequest || first.RegisterRequest == nil {
		return ProtocolViolation("first message must be register_request")
	}
	req := first.RegisterRequest

	m.mu.RLock()
	onRegister := m.onRegister
	m.mu.RUnlock()

	accept, reason := true, ""
	if onRegister != nil {
		accept, reason = onRegister(req.WorkerID, req.PoolID, req.Capabilities)
	}
	if err := stream.Send(&wireproto.OrchestratorMessage{
		Kind: wireproto.KindRegisterAck,
		RegisterAck: &wireproto.RegisterAck{Accepted: accept, Reason: reason},
	}); err != nil {
		return	err
	}
	if !accept {
		return ProtocolViolation("registration rejected: " + reason)
	}

	ctx, cancel := context.WithCancel(stream.Context())
	session := m.Register(req.WorkerID, req.PoolID)
	session.mu.Lock()
	session.cancel = cancel
	session.mu.Unlock()

	go m.drainOutbound(ctx, req.WorkerID, session, stream)

	for	{
		msg, err := stream.Recv()
		if err != nil {
			m.Disconnect(req.WorkerID)
			if ctx.Err() != nil {
				return	nil
			}
			return	err
		}
		m.Dispatch(req.WorkerID, msg)
	}
}

// drainOutbound feeds one session's outbound queue onto its physical
// stream until the session is cancelled or a send fails.
func (m *Manager) drainOutbound(ctx context.Context, workerID string, s *Session, stream wireproto.WorkerService_SessionServer) {
	for	{
		select	{
		case <-ctx.Done():
			return
		case msg, ok := <-s.Outbound():
			if !ok {
				return
			}
			if err := stream.Send(msg); err != nil {
				m.logger.Warn().Str("worker_id", workerID).Err(err).Msg("send failed, disconnecting")
				m.Disconnect(workerID)
				return
			}
		}
	}
}
