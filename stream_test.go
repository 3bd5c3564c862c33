package dtlspsk

import (
	"bytes"
	"errors"
	"testing"
)

func TestStreamUint8RoundTrip(t *testing.T) {
	for _, v := range []uint8{0, 1, 127, 255} {
		s := NewStream(nil)
		if err := s.WriteUint8(v); err != nil {
			t.Fatalf("WriteUint8(%d): %v", v, err)
		}
		r := NewStream(s.Bytes())
		got, err := r.ReadUint8()
		if err != nil {
			t.Fatalf("ReadUint8: %v", err)
		}
		if got != v {
			t.Fatalf("got %d, want %d", got, v)
		}
	}
}

func TestStreamUint16RoundTrip(t *testing.T) {
	for _, v := range []uint16{0, 1, 0x00FF, 0xFFFF, 0x008C} {
		s := NewStream(nil)
		s.WriteUint16(v)
		r := NewStream(s.Bytes())
		got, err := r.ReadUint16()
		if err != nil {
			t.Fatalf("ReadUint16: %v", err)
		}
		if got != v {
			t.Fatalf("got %#x, want %#x", got, v)
		}
	}
}

func TestStreamUint24RoundTrip(t *testing.T) {
	for _, v := range []uint32{0, 1, 0xFFFFFF, 0x010203} {
		s := NewStream(nil)
		if err := s.WriteUint24(v); err != nil {
			t.Fatalf("WriteUint24(%d): %v", v, err)
		}
		r := NewStream(s.Bytes())
		got, err := r.ReadUint24()
		if err != nil {
			t.Fatalf("ReadUint24: %v", err)
		}
		if got != v {
			t.Fatalf("got %#x, want %#x", got, v)
		}
	}
}

func TestStreamUint24OutOfRange(t *testing.T) {
	s := NewStream(nil)
	err := s.WriteUint24(0x1000000)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestStreamUint48RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 0xFFFFFFFFFFFF, 0x0102030405} {
		s := NewStream(nil)
		if err := s.WriteUint48(v); err != nil {
			t.Fatalf("WriteUint48(%d): %v", v, err)
		}
		r := NewStream(s.Bytes())
		got, err := r.ReadUint48()
		if err != nil {
			t.Fatalf("ReadUint48: %v", err)
		}
		if got != v {
			t.Fatalf("got %#x, want %#x", got, v)
		}
	}
}

func TestStreamUint48OutOfRange(t *testing.T) {
	s := NewStream(nil)
	err := s.WriteUint48(1 << 48)
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestStreamOpaque8RoundTrip(t *testing.T) {
	for _, b := range [][]byte{nil, []byte("x"), bytes.Repeat([]byte{0xAB}, 255)} {
		s := NewStream(nil)
		if err := s.WriteOpaque8(b); err != nil {
			t.Fatalf("WriteOpaque8: %v", err)
		}
		r := NewStream(s.Bytes())
		got, err := r.ReadOpaque8()
		if err != nil {
			t.Fatalf("ReadOpaque8: %v", err)
		}
		if !bytes.Equal(got, b) {
			t.Fatalf("got %x, want %x", got, b)
		}
	}
}

func TestStreamOpaque8TooLong(t *testing.T) {
	s := NewStream(nil)
	err := s.WriteOpaque8(bytes.Repeat([]byte{1}, 256))
	if !errors.Is(err, ErrOutOfRange) {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}

func TestStreamOpaque16RoundTrip(t *testing.T) {
	body := bytes.Repeat([]byte{0x01, 0x02}, 4)
	s := NewStream(nil)
	if err := s.WriteOpaque16(body); err != nil {
		t.Fatalf("WriteOpaque16: %v", err)
	}
	r := NewStream(s.Bytes())
	got, err := r.ReadOpaque16()
	if err != nil {
		t.Fatalf("ReadOpaque16: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("got %x, want %x", got, body)
	}
}

func TestStreamShortBufferIsNeedMore(t *testing.T) {
	r := NewStream([]byte{0x01})
	if _, err := r.ReadUint16(); !errors.Is(err, ErrNeedMore) {
		t.Fatalf("expected ErrNeedMore, got %v", err)
	}
}
