package dtlspsk

import (
	"fmt"
)

// record is one DTLS record: a 13-byte header (RFC 4347 §4.1) followed by a
// content-type-specific fragment, which is ciphertext once a CipherState
// has been installed for the record's epoch.
type record struct {
	contentType uint8
	epoch       uint16
	sequence    uint64 // 48-bit
	fragment    []byte
}

func (r *record) encode() ([]byte, error) {
	if r.sequence > 0xFFFFFFFFFFFF {
		return nil, fmt.Errorf("%w: sequence number %d exceeds 48 bits", ErrEpochExhausted, r.sequence)
	}
	if len(r.fragment) > maxPlaintextRecordLength+2048 {
		return nil, fmt.Errorf("%w: fragment of %d bytes exceeds record size limit", ErrOutOfRange, len(r.fragment))
	}
	s := NewStream(nil)
	if err := s.WriteUint8(r.contentType); err != nil {
		return nil, err
	}
	if err := s.WriteUint8(versionMajor); err != nil {
		return nil, err
	}
	if err := s.WriteUint8(versionMinor); err != nil {
		return nil, err
	}
	if err := s.WriteUint16(r.epoch); err != nil {
		return nil, err
	}
	if err := s.WriteUint48(r.sequence); err != nil {
		return nil, err
	}
	if err := s.WriteUint16(uint16(len(r.fragment))); err != nil {
		return nil, err
	}
	if _, err := s.Write(r.fragment); err != nil {
		return nil, err
	}
	return s.Bytes(), nil
}

func decodeRecord(buf []byte) (*record, []byte, error) {
	if len(buf) < recordHeaderLength {
		return nil, nil, ErrNeedMore
	}
	s := NewStream(buf)
	contentType, _ := s.ReadUint8()
	major, _ := s.ReadUint8()
	minor, _ := s.ReadUint8()
	if major != versionMajor || minor != versionMinor {
		return nil, nil, fmt.Errorf("%w: unexpected record version %d.%d", ErrMalformed, major, minor)
	}
	epoch, _ := s.ReadUint16()
	seq, _ := s.ReadUint48()
	length, err := s.ReadUint16()
	if err != nil {
		return nil, nil, ErrNeedMore
	}
	if s.Len() < int(length) {
		return nil, nil, ErrNeedMore
	}
	fragment, err := s.ReadBytes(int(length))
	if err != nil {
		return nil, nil, ErrNeedMore
	}
	return &record{
		contentType: contentType,
		epoch:       epoch,
		sequence:    seq,
		fragment:    fragment,
	}, s.Bytes(), nil
}

// macInput reconstructs the associated data TLS's MAC covers: seq_num (8
// bytes, epoch in the high 16 bits per DTLS's adaptation) || type ||
// version || length, RFC 2246 §6.2.3.1 as adapted by RFC 4347 §4.1.2.6.
func macInput(epoch uint16, seq uint64, contentType uint8, length int) []byte {
	s := NewStream(nil)
	s.WriteUint16(epoch)
	s.WriteUint48(seq)
	s.WriteUint8(contentType)
	s.WriteUint8(versionMajor)
	s.WriteUint8(versionMinor)
	s.WriteUint16(uint16(length))
	return s.Bytes()
}

// cipherDirection holds one direction's (read or write) negotiated cipher
// state plus the epoch and next-sequence-number counters that advance
// independently per direction, per the protocol description's epoch/seq
// invariants.
type cipherDirection struct {
	epoch    uint16
	nextSeq  uint64
	cipher   *cbcCipherState // nil before the handshake installs keys
}

// sealRecord encrypts plaintext into a ready-to-send record for the given
// content type under dir's current epoch/cipher, then advances dir's
// sequence counter. Returns ErrEpochExhausted if the 48-bit sequence space
// for this epoch is exhausted, per the protocol's refusal to wrap.
func sealRecord(dir *cipherDirection, contentType uint8, plaintext []byte) (*record, error) {
	if dir.nextSeq > 0xFFFFFFFFFFFF {
		return nil, ErrEpochExhausted
	}
	seq := dir.nextSeq
	dir.nextSeq++

	if dir.cipher == nil {
		return &record{contentType: contentType, epoch: dir.epoch, sequence: seq, fragment: plaintext}, nil
	}

	mInput := macInput(dir.epoch, seq, contentType, len(plaintext))
	fragment, err := dir.cipher.seal(mInput, plaintext)
	if err != nil {
		return nil, err
	}
	return &record{contentType: contentType, epoch: dir.epoch, sequence: seq, fragment: fragment}, nil
}

// openRecord decrypts and authenticates r's fragment using dir, the
// session's inbound (read) direction. It does not itself enforce
// epoch/sequence monotonicity — RFC 4347-mandated anti-replay windowing is
// a named non-goal. It uses dir's current cipher whatever r.epoch is; the
// only epoch check is that a record with a nonzero epoch arriving before
// any read cipher is installed fails with ErrCryptoUnavailable.
func openRecord(dir *cipherDirection, r *record) ([]byte, error) {
	if dir.cipher == nil {
		if r.epoch != 0 {
			return nil, ErrCryptoUnavailable
		}
		return r.fragment, nil
	}
	mInput := macInput(r.epoch, r.sequence, r.contentType, 0) // length patched inside open()
	return dir.cipher.open(mInput, r.fragment)
}
