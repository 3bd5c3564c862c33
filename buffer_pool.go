package dtlspsk

import "sync"

// bufferPool reduces GC pressure on the endpoint's read loop, which
// allocates one receive buffer per ReadFrom call. Two size classes cover
// the datagrams this package actually handles: typical Ethernet-MTU-sized
// records, and the rare record near the 16 KB plaintext ceiling plus CBC
// and MAC overhead.
type bufferPool struct {
	small sync.Pool // 2048 bytes, the common case
	large sync.Pool // 16384 + 256 bytes, worst-case record size
}

var globalBufferPool = newBufferPool()

func newBufferPool() *bufferPool {
	return &bufferPool{
		small: sync.Pool{New: func() interface{} {
			b := make([]byte, 2048)
			return &b
		}},
		large: sync.Pool{New: func() interface{} {
			b := make([]byte, maxPlaintextRecordLength+256)
			return &b
		}},
	}
}

// get returns a buffer with length >= size. Callers must return it with put
// when done.
func (p *bufferPool) get(size int) []byte {
	if size <= 2048 {
		buf := p.small.Get().(*[]byte)
		return (*buf)[:2048]
	}
	buf := p.large.Get().(*[]byte)
	return (*buf)[:maxPlaintextRecordLength+256]
}

func (p *bufferPool) put(buf []byte) {
	switch len(buf) {
	case 2048:
		p.small.Put(&buf)
	case maxPlaintextRecordLength + 256:
		p.large.Put(&buf)
	}
}
