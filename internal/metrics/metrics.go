// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Recorder captures metric events for the application.
// Implementations can expose these to Prometheus or keep them in memory.
type Recorder interface {
	// Metering outcomes
	IncChatCommitted()
	IncChatRejected()
	IncChatRolledBack()
	IncRollbackFailed()
	IncPersistFailed()
	ObserveGatewayDuration(duration time.Duration, ok bool)

	// Credential resolution
	IncAuthCacheHit()
	IncAuthCacheMiss()
	IncAuthFailure()

	// Accounts
	IncRegistration()
	IncLogin(success bool)

	// Metering event stream
	IncEventPublished(status string) // status: "success" or "dropped"

	// HTTP
	ObserveHTTPRequest(method, route string, status int, duration time.Duration)
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
