package dtlspsk

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// SessionState enumerates the client-side handshake state machine named in
// the protocol description.
type SessionState int

const (
	StateNotConnected SessionState = iota
	StateClientHelloSent
	StateFinishedSent
	StateConnected
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateNotConnected:
		return "NotConnected"
	case StateClientHelloSent:
		return "ClientHelloSent"
	case StateFinishedSent:
		return "FinishedSent"
	case StateConnected:
		return "Connected"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// SessionCallbacks carries the three notifications a session's owner
// receives over its lifetime.
type SessionCallbacks struct {
	// OnConnected fires once the handshake completes and application data
	// may be sent.
	OnConnected func(*Session)
	// OnDatagram fires once per received, decrypted application datagram.
	OnDatagram func(*Session, []byte)
	// OnClosed fires when the session is torn down, with the cause (nil
	// for a clean local Close).
	OnClosed func(*Session, error)
}

// SessionDiagnostics holds read-only counters exposed through
// Session.Diagnostics (they are not passed to the MetricsCollector); they
// never gate protocol behavior.
type SessionDiagnostics struct {
	mu              sync.Mutex
	FlightsSent     int
	FlightsReceived int
	BytesEncrypted  int
	BytesDecrypted  int
	LastActivity    time.Time
}

func (d *SessionDiagnostics) recordSent(n int) {
	d.mu.Lock()
	d.FlightsSent++
	d.BytesEncrypted += n
	d.LastActivity = nowFunc()
	d.mu.Unlock()
}

func (d *SessionDiagnostics) recordReceived(n int) {
	d.mu.Lock()
	d.FlightsReceived++
	d.BytesDecrypted += n
	d.LastActivity = nowFunc()
	d.mu.Unlock()
}

// nowFunc is indirected so tests can freeze time if needed.
var nowFunc = time.Now

// Session is one client-side DTLS-PSK association with a single peer
// address. All mutation happens on the endpoint's owning goroutine; Session
// itself holds no additional locking beyond SessionDiagnostics's counters,
// which tests and metrics exporters may read from other goroutines.
type Session struct {
	id   ulid.ULID // correlation id only, never on the wire
	peer net.Addr

	// lookupKey is the endpoint's session-table key, captured at
	// registration time since psk is wiped once the master secret is
	// derived and must not be needed again to find this session later.
	lookupKey uint64

	identity []byte
	psk      []byte

	state SessionState

	clientRandom [clientRandomLength]byte
	serverRandom [serverRandomLength]byte
	cookie       []byte
	cipherSuite  uint16

	writeDir *cipherDirection
	readDir  *cipherDirection

	// pendingReadCipher holds the read-direction cipher derived in
	// sendSecondFlight until the server's own ChangeCipherSpec arrives and
	// onChangeCipherSpec installs it into readDir.
	pendingReadCipher *cbcCipherState

	transcript *handshakeTranscript
	messageSeq uint16

	masterSecret []byte

	// appQueue holds outbound application payloads submitted before the
	// handshake reached Connected. Drained FIFO once connected.
	appQueue [][]byte

	callbacks *SessionCallbacks
	diag      *SessionDiagnostics
	metrics   MetricsCollector

	endpoint *Endpoint
	crypto   *Crypto

	tracer     trace.Tracer
	rootSpan   trace.Span
	spanCtx    context.Context
}

// SessionID returns the session's log-correlation identifier.
func (s *Session) SessionID() string {
	return s.id.String()
}

// State returns the session's current handshake state.
func (s *Session) State() SessionState {
	return s.state
}

// Diagnostics returns the session's read-only counters.
func (s *Session) Diagnostics() *SessionDiagnostics {
	return s.diag
}

func newSession(endpoint *Endpoint, peer net.Addr, identity, psk []byte, callbacks *SessionCallbacks, metrics MetricsCollector) *Session {
	s := &Session{
		id:         ulid.Make(),
		peer:       peer,
		identity:   identity,
		psk:        psk,
		state:      StateNotConnected,
		transcript: newHandshakeTranscript(),
		writeDir:   &cipherDirection{},
		readDir:    &cipherDirection{},
		callbacks:  callbacks,
		diag:       &SessionDiagnostics{},
		metrics:    metrics,
		endpoint:   endpoint,
		crypto:     NewCrypto(),
		tracer:     otel.Tracer("dtlspsk"),
	}
	s.spanCtx, s.rootSpan = s.tracer.Start(context.Background(), "session")
	s.rootSpan.SetAttributes()
	return s
}

// SendApplication enqueues payload for encrypted delivery to the peer. If
// the handshake has not yet reached Connected, payload is queued FIFO and
// flushed in order once it does; this is the "queue until connected"
// behavior the protocol description calls for.
func (s *Session) SendApplication(payload []byte) error {
	return s.endpoint.invoke(func() error {
		if s.state == StateFailed {
			return ErrSessionClosed
		}
		if s.state != StateConnected {
			s.appQueue = append(s.appQueue, append([]byte{}, payload...))
			return nil
		}
		return s.sendApplicationNow(payload)
	})
}

func (s *Session) sendApplicationNow(payload []byte) error {
	rec, err := sealRecord(s.writeDir, contentTypeApplicationData, payload)
	if err != nil {
		return newRecordError(s.SessionID(), s.writeDir.epoch, err)
	}
	s.diag.recordSent(len(payload))
	if s.metrics != nil {
		s.metrics.RecordBytesSent(len(payload))
	}
	return s.endpoint.transmit(s, rec)
}

// flushAppQueue drains queued application payloads in FIFO order once the
// handshake reaches Connected.
func (s *Session) flushAppQueue() error {
	for len(s.appQueue) > 0 {
		payload := s.appQueue[0]
		s.appQueue = s.appQueue[1:]
		if err := s.sendApplicationNow(payload); err != nil {
			return err
		}
	}
	return nil
}

// Close tears the session down locally, emitting a close_notify alert if
// the handshake had progressed far enough to have a write cipher.
func (s *Session) Close() error {
	return s.endpoint.invoke(s.closeLocked)
}

// closeLocked is Close's body, factored out so code already running on the
// endpoint's owning goroutine (CloseAll) can call it directly instead of
// deadlocking on invoke from inside invoke.
func (s *Session) closeLocked() error {
	if s.state == StateFailed {
		return nil
	}
	if s.writeDir.cipher != nil {
		_ = s.sendAlert(alertLevelWarning, alertDescCloseNotify)
	}
	s.fail(nil)
	return nil
}

func (s *Session) sendAlert(level, description uint8) error {
	a := &alert{level: level, description: description}
	rec, err := sealRecord(s.writeDir, contentTypeAlert, a.encode())
	if err != nil {
		return err
	}
	return s.endpoint.transmit(s, rec)
}

// fail transitions the session to Failed and invokes OnClosed exactly once.
func (s *Session) fail(cause error) {
	if s.state == StateFailed {
		return
	}
	s.state = StateFailed
	if s.rootSpan != nil {
		if cause != nil {
			s.rootSpan.RecordError(cause)
		}
		s.rootSpan.End()
	}
	if s.callbacks != nil && s.callbacks.OnClosed != nil {
		s.callbacks.OnClosed(s, cause)
	}
	s.endpoint.forget(s)
}
