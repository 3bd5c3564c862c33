package dtlspsk

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

// EndpointOptions configures a new Endpoint. All fields are optional;
// zero values fall back to sensible defaults, matching the "programmatic
// options, no config file" ambient stack decision for this package.
type EndpointOptions struct {
	Resolver                   Resolver
	Metrics                    MetricsCollector
	MaxResolveRetries          int
	ResolveBackoff             time.Duration
	CircuitBreakerMaxFailures  int
	CircuitBreakerResetTimeout time.Duration
}

func (o *EndpointOptions) withDefaults() *EndpointOptions {
	out := *o
	if out.Resolver == nil {
		out.Resolver = NewResolver()
	}
	if out.MaxResolveRetries == 0 {
		out.MaxResolveRetries = 3
	}
	if out.ResolveBackoff == 0 {
		out.ResolveBackoff = 250 * time.Millisecond
	}
	if out.CircuitBreakerMaxFailures == 0 {
		out.CircuitBreakerMaxFailures = 5
	}
	if out.CircuitBreakerResetTimeout == 0 {
		out.CircuitBreakerResetTimeout = 30 * time.Second
	}
	return &out
}

// Endpoint multiplexes many sessions, to many peers, over one PacketConn.
// A single goroutine (loop, started by NewEndpoint) owns the socket's read
// loop and every session's mutable state; calls made from other goroutines
// (SendApplication, Close, Dial's registration step) are marshalled onto it
// through a buffered command channel rather than guarded with a mutex,
// since the socket itself is single-reader anyway.
type Endpoint struct {
	conn     PacketConn
	resolver Resolver
	breaker  *circuitBreaker
	metrics  MetricsCollector

	maxResolveRetries int
	resolveBackoff    time.Duration

	sessions map[uint64]*Session

	cmdCh   chan func()
	recvCh  chan recvDatagram
	closeCh chan struct{}
	closeOnce sync.Once
	wg      sync.WaitGroup
}

type recvDatagram struct {
	data []byte
	addr net.Addr
}

// NewEndpoint wraps conn and starts its owning goroutines. Callers are
// responsible for conn's lifetime being tied to the returned Endpoint's
// Close.
func NewEndpoint(conn PacketConn, opts *EndpointOptions) *Endpoint {
	if opts == nil {
		opts = &EndpointOptions{}
	}
	opts = opts.withDefaults()

	e := &Endpoint{
		conn:              conn,
		resolver:          opts.Resolver,
		breaker:           newCircuitBreaker(opts.CircuitBreakerMaxFailures, opts.CircuitBreakerResetTimeout),
		metrics:           opts.Metrics,
		maxResolveRetries: opts.MaxResolveRetries,
		resolveBackoff:    opts.ResolveBackoff,
		sessions:          make(map[uint64]*Session),
		cmdCh:             make(chan func(), 64),
		recvCh:            make(chan recvDatagram, 64),
		closeCh:           make(chan struct{}),
	}

	e.wg.Add(2)
	go e.loop()
	go e.readLoop()
	return e
}

// Dial resolves host, creates a session keyed by (resolved address, port,
// identity, psk), sends its first ClientHello, and registers it for inbound
// dispatch. The handshake continues asynchronously; callbacks.OnConnected
// fires once it completes.
func (e *Endpoint) Dial(ctx context.Context, host string, port int, identity, psk []byte, family Family, callbacks *SessionCallbacks) (*Session, error) {
	if len(identity) == 0 || len(psk) == 0 {
		return nil, ErrInvalidArgument
	}

	addr, err := e.resolveLiteralOrLookup(ctx, host, port, family)
	if err != nil {
		return nil, err
	}

	key := sessionKey(addr, identity, psk)
	session := newSession(e, addr, identity, psk, callbacks, e.metrics)
	session.lookupKey = key
	if err := session.startHandshake(); err != nil {
		return nil, err
	}

	regErr := e.invoke(func() error {
		e.sessions[key] = session
		if e.metrics != nil {
			e.metrics.RecordSessionCreated()
		}
		return nil
	})
	if regErr != nil {
		return nil, regErr
	}
	return session, nil
}

// resolveLiteralOrLookup implements the addressing step of §4.6's send
// algorithm: any literal IP address is used directly, skipping the resolver
// (and its retry/circuit-breaker guard) entirely; anything else goes through
// Resolve. A literal's address family is not checked against family.
func (e *Endpoint) resolveLiteralOrLookup(ctx context.Context, host string, port int, family Family) (net.Addr, error) {
	if ip := net.ParseIP(host); ip != nil {
		return &net.UDPAddr{IP: ip, Port: port}, nil
	}

	var ips []net.IP
	err := e.breaker.execute(func() error {
		return retryWithBackoff(ctx, e.maxResolveRetries, e.resolveBackoff, func() error {
			resolved, rerr := e.resolver.Resolve(ctx, host, family)
			if rerr != nil {
				return fmt.Errorf("%w: %v", ErrResolveFailed, rerr)
			}
			ips = resolved
			return nil
		})
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordResolveFailure()
		}
		return nil, oops.
			In("dtlspsk").
			Tags("resolve").
			With("host", host).
			With("port", port).
			Wrap(err)
	}
	return &net.UDPAddr{IP: ips[0], Port: port}, nil
}

// Send is the package's top-level convenience entry point, matching the
// conceptual API surface named in the protocol description:
// endpoint.send(payload, peer_host, peer_port, identity, psk, cb). It finds
// or creates the session addressed by (resolved host, port, identity, psk)
// and hands payload to it; SendApplication's own FIFO queue covers the
// "queue until Connected" behavior for a freshly created session.
func (e *Endpoint) Send(ctx context.Context, payload []byte, host string, port int, identity, psk []byte, family Family, callbacks *SessionCallbacks) error {
	session, err := e.findOutboundSession(ctx, host, port, identity, psk, family, callbacks)
	if err != nil {
		return err
	}
	return session.SendApplication(payload)
}

// findOutboundSession returns the session already registered for
// (resolved address, port, identity, psk), or creates one via Dial on a
// miss.
func (e *Endpoint) findOutboundSession(ctx context.Context, host string, port int, identity, psk []byte, family Family, callbacks *SessionCallbacks) (*Session, error) {
	addr, err := e.resolveLiteralOrLookup(ctx, host, port, family)
	if err != nil {
		return nil, err
	}
	key := sessionKey(addr, identity, psk)

	var existing *Session
	if lookupErr := e.invoke(func() error {
		existing = e.sessions[key]
		return nil
	}); lookupErr != nil {
		return nil, lookupErr
	}
	if existing != nil {
		return existing, nil
	}
	return e.Dial(ctx, host, port, identity, psk, family, callbacks)
}

// CloseAll closes every session currently addressed to peer, using
// samber/lo to select the matching subset instead of a hand-rolled loop.
func (e *Endpoint) CloseAll(peer net.Addr) error {
	return e.invoke(func() error {
		targets := lo.Filter(lo.Values(e.sessions), func(s *Session, _ int) bool {
			return s.peer.String() == peer.String()
		})
		for _, s := range targets {
			_ = s.closeLocked()
		}
		return nil
	})
}

// Close tears down every session and closes the underlying PacketConn.
func (e *Endpoint) Close() error {
	var err error
	e.closeOnce.Do(func() {
		close(e.closeCh)
		err = e.conn.Close()
		e.wg.Wait()
	})
	return err
}

// invoke marshals fn onto the owning goroutine and waits for it to run,
// the mechanism every externally-called, state-mutating method uses.
func (e *Endpoint) invoke(fn func() error) error {
	resultCh := make(chan error, 1)
	select {
	case e.cmdCh <- func() { resultCh <- fn() }:
	case <-e.closeCh:
		return ErrSessionClosed
	}
	select {
	case err := <-resultCh:
		return err
	case <-e.closeCh:
		return ErrSessionClosed
	}
}

// transmit writes one already-encoded record to s's peer. Safe to call
// directly from the owning goroutine (record dispatch, handshake flight
// sends); net.UDPConn's WriteTo is additionally safe for concurrent use by
// multiple goroutines, so this never needs to go through invoke itself.
func (e *Endpoint) transmit(s *Session, rec *record) error {
	buf, err := rec.encode()
	if err != nil {
		return newRecordError(s.SessionID(), rec.epoch, err)
	}
	if _, err := e.conn.WriteTo(buf, s.peer); err != nil {
		return newRecordError(s.SessionID(), rec.epoch, err)
	}
	return nil
}

// forget removes s from the session table. Always called from the owning
// goroutine (via Session.fail, itself reached from handleDatagram or from
// an invoke()-wrapped external call).
func (e *Endpoint) forget(s *Session) {
	delete(e.sessions, s.lookupKey)
	if e.metrics != nil {
		e.metrics.RecordSessionClosed()
	}
}

func (e *Endpoint) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.closeCh:
			return
		case cmd := <-e.cmdCh:
			cmd()
		case dg := <-e.recvCh:
			e.handleDatagram(dg.data, dg.addr)
		}
	}
}

func (e *Endpoint) readLoop() {
	defer e.wg.Done()
	for {
		buf := globalBufferPool.get(maxPlaintextRecordLength + 256)
		n, addr, err := e.conn.ReadFrom(buf)
		if err != nil {
			globalBufferPool.put(buf)
			select {
			case <-e.closeCh:
				return
			default:
				Warning("dtlspsk: packet conn read error: %v", err)
				return
			}
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		globalBufferPool.put(buf)

		select {
		case e.recvCh <- recvDatagram{data: data, addr: addr}:
		case <-e.closeCh:
			return
		}
	}
}

// handleDatagram decodes every record in one datagram and dispatches each
// to the session registered for its source address, creating nothing on a
// miss: this client only ever originates sessions via Dial.
func (e *Endpoint) handleDatagram(data []byte, addr net.Addr) {
	session := e.lookupByAddr(addr)
	if session == nil {
		Debug("dtlspsk: datagram from unknown peer %s dropped", addr)
		return
	}

	remaining := data
	for len(remaining) > 0 {
		rec, rest, err := decodeRecord(remaining)
		if err != nil {
			Debug("dtlspsk: session %s: dropping malformed record: %v", session.SessionID(), err)
			return
		}
		remaining = rest

		dir := session.readDir
		plaintext, err := openRecord(dir, rec)
		if err != nil {
			Debug("dtlspsk: session %s: dropping %s record and abandoning remainder of datagram: %v", session.SessionID(), contentTypeName(rec.contentType), err)
			return
		}
		if err := session.onRecord(rec, plaintext); err != nil {
			Debug("dtlspsk: session %s: %v", session.SessionID(), err)
		}
	}
}

// lookupByAddr finds the session registered for a source address. The
// session table is keyed by a hash of (address, identity, psk), but a
// PacketConn delivers no way to know the sender's claimed identity before
// decrypting, so lookup here falls back to a linear scan over all sessions,
// returning the first whose peer address matches.
func (e *Endpoint) lookupByAddr(addr net.Addr) *Session {
	for _, s := range e.sessions {
		if s.peer.String() == addr.String() {
			return s
		}
	}
	return nil
}

// sessionKey hashes (address, identity, psk) with xxhash rather than using
// a composite struct map key, giving an explicit point — right here, a
// one-shot hash over a throwaway blob — after which the identity and PSK
// bytes are no longer needed in their original form for lookup purposes.
func sessionKey(addr net.Addr, identity, psk []byte) uint64 {
	h := xxhash.New()
	h.WriteString(addr.String())
	h.Write([]byte{0})
	h.Write(identity)
	h.Write([]byte{0})
	h.Write(psk)
	return h.Sum64()
}
