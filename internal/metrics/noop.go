package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncChatCommitted() {}
func (n *NoopRecorder) IncChatRejected() {}
func (n *NoopRecorder) IncChatRolledBack() {}
func (n *NoopRecorder) IncRollbackFailed() {}
func (n *NoopRecorder) IncPersistFailed() {}
func (n *NoopRecorder) ObserveGatewayDuration(time.Duration, bool) {}
func (n *NoopRecorder) IncAuthCacheHit() {}
func (n *NoopRecorder) IncAuthCacheMiss() {}
func (n *NoopRecorder) IncAuthFailure() {}
func (n *NoopRecorder) IncRegistration() {}
func (n *NoopRecorder) IncLogin(bool) {}
func (n *NoopRecorder) IncEventPublished(string) {}
func (n *NoopRecorder) ObserveHTTPRequest(string, string, int, time.Duration) {}
