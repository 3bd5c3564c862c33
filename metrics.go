package dtlspsk

import "sync/atomic"

// MetricsCollector is an optional pluggable sink for endpoint- and
// session-level counters. A nil MetricsCollector disables instrumentation
// entirely at zero cost to the hot path: every call site guards on nil
// before calling out.
type MetricsCollector interface {
	RecordBytesSent(n int)
	RecordBytesReceived(n int)
	RecordSessionCreated()
	RecordSessionClosed()
	RecordHandshakeFailure()
	RecordResolveFailure()
}

// CounterMetrics is a minimal in-process MetricsCollector backed by atomic
// counters, useful for tests and for operators who just want numbers
// without wiring a full metrics backend.
type CounterMetrics struct {
	bytesSent         int64
	bytesReceived     int64
	sessionsCreated   int64
	sessionsClosed    int64
	handshakeFailures int64
	resolveFailures   int64
}

func NewCounterMetrics() *CounterMetrics {
	return &CounterMetrics{}
}

func (m *CounterMetrics) RecordBytesSent(n int)      { atomic.AddInt64(&m.bytesSent, int64(n)) }
func (m *CounterMetrics) RecordBytesReceived(n int)  { atomic.AddInt64(&m.bytesReceived, int64(n)) }
func (m *CounterMetrics) RecordSessionCreated()      { atomic.AddInt64(&m.sessionsCreated, 1) }
func (m *CounterMetrics) RecordSessionClosed()       { atomic.AddInt64(&m.sessionsClosed, 1) }
func (m *CounterMetrics) RecordHandshakeFailure()    { atomic.AddInt64(&m.handshakeFailures, 1) }
func (m *CounterMetrics) RecordResolveFailure()      { atomic.AddInt64(&m.resolveFailures, 1) }

func (m *CounterMetrics) BytesSent() int64         { return atomic.LoadInt64(&m.bytesSent) }
func (m *CounterMetrics) BytesReceived() int64     { return atomic.LoadInt64(&m.bytesReceived) }
func (m *CounterMetrics) SessionsCreated() int64   { return atomic.LoadInt64(&m.sessionsCreated) }
func (m *CounterMetrics) SessionsClosed() int64    { return atomic.LoadInt64(&m.sessionsClosed) }
func (m *CounterMetrics) HandshakeFailures() int64 { return atomic.LoadInt64(&m.handshakeFailures) }
func (m *CounterMetrics) ResolveFailures() int64   { return atomic.LoadInt64(&m.resolveFailures) }
