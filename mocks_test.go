package dtlspsk

// mocks_test.go - shared test helpers, fakes, and stubs used across
// multiple test files.

import (
	"context"
	"net"
	"sync"
	"time"
)

// fakePacketConn stands in for the UDP socket in end-to-end tests: ReadFrom
// blocks on an inbox channel fed by the test via deliver(), and WriteTo
// appends to an outbox slice the test can read with sent().
type fakePacketConn struct {
	peer net.Addr

	mu     sync.Mutex
	outbox [][]byte

	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakePacketConn(peer net.Addr) *fakePacketConn {
	return &fakePacketConn{
		peer:   peer,
		inbox:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakePacketConn) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case data := <-c.inbox:
		n := copy(p, data)
		return n, c.peer, nil
	case <-c.closed:
		return 0, nil, net.ErrClosed
	}
}

func (c *fakePacketConn) WriteTo(p []byte, addr net.Addr) (int, error) {
	c.mu.Lock()
	c.outbox = append(c.outbox, append([]byte{}, p...))
	c.mu.Unlock()
	return len(p), nil
}

func (c *fakePacketConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

// deliver pushes a raw datagram into the conn's read path, as if it had
// arrived from c.peer.
func (c *fakePacketConn) deliver(datagram []byte) {
	c.inbox <- datagram
}

// sent returns every datagram written so far, in order.
func (c *fakePacketConn) sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.outbox))
	copy(out, c.outbox)
	return out
}

// waitForSent waits until at least n datagrams have been written, or returns what
// it has after a bounded number of attempts; tests use it instead of a
// fixed sleep since the endpoint's owning goroutine processes asynchronously.
func (c *fakePacketConn) waitForSent(n int) [][]byte {
	for i := 0; i < 10000; i++ {
		out := c.sent()
		if len(out) >= n {
			return out
		}
		time.Sleep(100 * time.Microsecond)
	}
	return c.sent()
}

// fakeResolver returns a fixed set of addresses for every host, never
// touching the network.
type fakeResolver struct {
	ips []net.IP
	err error
}

func (r *fakeResolver) Resolve(ctx context.Context, host string, family Family) ([]net.IP, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.ips, nil
}

// zeroReader produces an infinite stream of zero bytes, used where a test
// needs Crypto's randomness pinned to a known value without caring about
// its distribution.
type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// seqReader produces bytes 0,1,2,...,255,0,1,... so successive reads are
// distinguishable from each other in test assertions.
type seqReader struct{ n byte }

func (r *seqReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.n
		r.n++
	}
	return len(p), nil
}
