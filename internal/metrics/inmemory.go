package metrics

import (
	"sync/atomic"
	"time"
)

// Snapshot captures current in-memory counters.
type Snapshot struct {
	ChatsCommitted         uint64
	ChatsRejected          uint64
	ChatsRolledBack        uint64
	RollbacksFailed        uint64
	PersistsFailed         uint64
	GatewayCalls           uint64
	GatewayFailures        uint64
	GatewayDurationTotalNs int64
	AuthCacheHits          uint64
	AuthCacheMisses        uint64
	AuthFailures           uint64
	Registrations          uint64
	LoginsSucceeded        uint64
	LoginsFailed           uint64
	EventsPublished        uint64
	EventsDropped          uint64
	HTTPRequests           uint64
}

// InMemoryRecorder stores metrics in memory for tests.
type InMemoryRecorder struct {
	chatsCommitted         atomic.Uint64
	chatsRejected          atomic.Uint64
	chatsRolledBack        atomic.Uint64
	rollbacksFailed        atomic.Uint64
	persistsFailed         atomic.Uint64
	gatewayCalls           atomic.Uint64
	gatewayFailures        atomic.Uint64
	gatewayDurationTotalNs atomic.Int64
	authCacheHits          atomic.Uint64
	authCacheMisses        atomic.Uint64
	authFailures           atomic.Uint64
	registrations          atomic.Uint64
	loginsSucceeded        atomic.Uint64
	loginsFailed           atomic.Uint64
	eventsPublished        atomic.Uint64
	eventsDropped          atomic.Uint64
	httpRequests           atomic.Uint64
}

var (
	_ Recorder    = (*InMemoryRecorder)(nil)
	_ Snapshotter = (*InMemoryRecorder)(nil)
)

// NewInMemory returns a Recorder that stores counters in memory.
func NewInMemory() *InMemoryRecorder {
	return &InMemoryRecorder{}
}

// Snapshot returns a copy of the counters.
func (m *InMemoryRecorder) Snapshot() Snapshot {
	return Snapshot{
		ChatsCommitted:         m.chatsCommitted.Load(),
		ChatsRejected:          m.chatsRejected.Load(),
		ChatsRolledBack:        m.chatsRolledBack.Load(),
		RollbacksFailed:        m.rollbacksFailed.Load(),
		PersistsFailed:         m.persistsFailed.Load(),
		GatewayCalls:           m.gatewayCalls.Load(),
		GatewayFailures:        m.gatewayFailures.Load(),
		GatewayDurationTotalNs: m.gatewayDurationTotalNs.Load(),
		AuthCacheHits:          m.authCacheHits.Load(),
		AuthCacheMisses:        m.authCacheMisses.Load(),
		AuthFailures:           m.authFailures.Load(),
		Registrations:          m.registrations.Load(),
		LoginsSucceeded:        m.loginsSucceeded.Load(),
		LoginsFailed:           m.loginsFailed.Load(),
		EventsPublished:        m.eventsPublished.Load(),
		EventsDropped:          m.eventsDropped.Load(),
		HTTPRequests:           m.httpRequests.Load(),
	}
}

func (m *InMemoryRecorder) IncChatCommitted() { m.chatsCommitted.Add(1) }
func (m *InMemoryRecorder) IncChatRejected() { m.chatsRejected.Add(1) }
func (m *InMemoryRecorder) IncChatRolledBack() { m.chatsRolledBack.Add(1) }
func (m *InMemoryRecorder) IncRollbackFailed() { m.rollbacksFailed.Add(1) }
func (m *InMemoryRecorder) IncPersistFailed() { m.persistsFailed.Add(1) }

// ObserveGatewayDuration records one upstream call.
func (m *InMemoryRecorder) ObserveGatewayDuration(duration time.Duration, ok bool) {
	m.gatewayCalls.Add(1)
	if !ok {
		m.gatewayFailures.Add(1)
	}
	m.gatewayDurationTotalNs.Add(duration.Nanoseconds())
}

func (m *InMemoryRecorder) IncAuthCacheHit() { m.authCacheHits.Add(1) }
func (m *InMemoryRecorder) IncAuthCacheMiss() { m.authCacheMisses.Add(1) }
func (m *InMemoryRecorder) IncAuthFailure() { m.authFailures.Add(1) }
func (m *InMemoryRecorder) IncRegistration() { m.registrations.Add(1) }

// IncLogin counts a login attempt by result.
func (m *InMemoryRecorder) IncLogin(success bool) {
	if success {
		m.loginsSucceeded.Add(1)
		return
	}
	m.loginsFailed.Add(1)
}

// IncEventPublished counts a metering event by publish status.
func (m *InMemoryRecorder) IncEventPublished(status string) {
	if status == "success" {
		m.eventsPublished.Add(1)
		return
	}
	m.eventsDropped.Add(1)
}

// ObserveHTTPRequest counts served requests.
func (m *InMemoryRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {
	m.httpRequests.Add(1)
}
