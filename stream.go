package dtlspsk

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Stream wraps bytes.Buffer with the big-endian integer widths the record
// and handshake wire formats use, including the 24-bit and 48-bit fields
// DTLS borrows from TLS 1.0 and introduces for its sequence numbers. Every
// message type's encode/decode in this package is a thin user of this one
// primitive layer rather than scattered encoding/binary calls.
type Stream struct {
	*bytes.Buffer
}

// NewStream creates a Stream over buf. Reads consume buf; writes append to
// a copy via bytes.Buffer's usual semantics.
func NewStream(buf []byte) *Stream {
	return &Stream{bytes.NewBuffer(buf)}
}

func (s *Stream) ReadUint8() (uint8, error) {
	b, err := s.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("%w: reading uint8: %v", ErrNeedMore, err)
	}
	return b, nil
}

func (s *Stream) ReadUint16() (uint16, error) {
	buf := make([]byte, 2)
	if _, err := readFull(s, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf), nil
}

// ReadUint24 reads a 24-bit big-endian integer, used by handshake message
// length fields.
func (s *Stream) ReadUint24() (uint32, error) {
	buf := make([]byte, 3)
	if _, err := readFull(s, buf); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<16 | uint32(buf[1])<<8 | uint32(buf[2]), nil
}

// ReadUint48 reads a 48-bit big-endian integer, used by the record layer's
// sequence number field. Follows the zero-pad-then-shift technique common
// to Go DTLS record-header codecs: read into the low 6 bytes of an 8-byte
// buffer and decode as uint64.
func (s *Stream) ReadUint48() (uint64, error) {
	buf := make([]byte, 8)
	if _, err := readFull(s, buf[2:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}

func (s *Stream) ReadUint64() (uint64, error) {
	buf := make([]byte, 8)
	if _, err := readFull(s, buf); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf), nil
}

// ReadBytes reads exactly n bytes.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := readFull(s, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *Stream) WriteUint8(v uint8) error {
	return s.WriteByte(v)
}

func (s *Stream) WriteUint16(v uint16) error {
	buf := make([]byte, 2)
	binary.BigEndian.PutUint16(buf, v)
	_, err := s.Write(buf)
	return err
}

// WriteUint24 writes the low 24 bits of v big-endian. Returns ErrOutOfRange
// if v does not fit in 24 bits.
func (s *Stream) WriteUint24(v uint32) error {
	if v > 0xFFFFFF {
		return fmt.Errorf("%w: %d does not fit in 24 bits", ErrOutOfRange, v)
	}
	buf := []byte{byte(v >> 16), byte(v >> 8), byte(v)}
	_, err := s.Write(buf)
	return err
}

// WriteUint48 writes the low 48 bits of v big-endian. Returns ErrOutOfRange
// if v does not fit in 48 bits.
func (s *Stream) WriteUint48(v uint64) error {
	if v > 0xFFFFFFFFFFFF {
		return fmt.Errorf("%w: %d does not fit in 48 bits", ErrOutOfRange, v)
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	_, err := s.Write(buf[2:])
	return err
}

func (s *Stream) WriteUint64(v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	_, err := s.Write(buf)
	return err
}

// WriteOpaque8 writes a length-prefixed (one byte) opaque blob, the
// <0..255> vector encoding TLS uses for the session id, cookie, and
// compression-methods fields.
func (s *Stream) WriteOpaque8(b []byte) error {
	if len(b) > 0xFF {
		return fmt.Errorf("%w: opaque vector of %d bytes exceeds 255-byte limit", ErrOutOfRange, len(b))
	}
	if err := s.WriteUint8(uint8(len(b))); err != nil {
		return err
	}
	_, err := s.Write(b)
	return err
}

// ReadOpaque8 reads a length-prefixed (one byte) opaque blob.
func (s *Stream) ReadOpaque8() ([]byte, error) {
	n, err := s.ReadUint8()
	if err != nil {
		return nil, err
	}
	return s.ReadBytes(int(n))
}

// WriteOpaque16 writes a length-prefixed (two byte) opaque blob, used for
// the cipher_suites list and similar vectors.
func (s *Stream) WriteOpaque16(b []byte) error {
	if len(b) > 0xFFFF {
		return fmt.Errorf("%w: opaque vector of %d bytes exceeds 65535-byte limit", ErrOutOfRange, len(b))
	}
	if err := s.WriteUint16(uint16(len(b))); err != nil {
		return err
	}
	_, err := s.Write(b)
	return err
}

func (s *Stream) ReadOpaque16() ([]byte, error) {
	n, err := s.ReadUint16()
	if err != nil {
		return nil, err
	}
	return s.ReadBytes(int(n))
}

// readFull is a small adapter mapping bytes.Buffer's io.EOF-on-short-read
// behavior onto ErrNeedMore, since "not enough bytes yet" is an expected,
// non-fatal condition at every wire-codec call site.
func readFull(s *Stream, buf []byte) (int, error) {
	n, err := s.Read(buf)
	if err != nil || n != len(buf) {
		return n, fmt.Errorf("%w: needed %d bytes, got %d", ErrNeedMore, len(buf), n)
	}
	return n, nil
}
