package dtlspsk

import "testing"

func TestCounterMetricsAccumulate(t *testing.T) {
	m := NewCounterMetrics()

	m.RecordBytesSent(10)
	m.RecordBytesSent(5)
	m.RecordBytesReceived(7)
	m.RecordSessionCreated()
	m.RecordSessionCreated()
	m.RecordSessionClosed()
	m.RecordHandshakeFailure()
	m.RecordResolveFailure()

	if got := m.BytesSent(); got != 15 {
		t.Fatalf("BytesSent = %d, want 15", got)
	}
	if got := m.BytesReceived(); got != 7 {
		t.Fatalf("BytesReceived = %d, want 7", got)
	}
	if got := m.SessionsCreated(); got != 2 {
		t.Fatalf("SessionsCreated = %d, want 2", got)
	}
	if got := m.SessionsClosed(); got != 1 {
		t.Fatalf("SessionsClosed = %d, want 1", got)
	}
	if got := m.HandshakeFailures(); got != 1 {
		t.Fatalf("HandshakeFailures = %d, want 1", got)
	}
	if got := m.ResolveFailures(); got != 1 {
		t.Fatalf("ResolveFailures = %d, want 1", got)
	}
}
