package dtlspsk

import "fmt"

// handshakeHeader is the 12-byte DTLS handshake fragment header (RFC 4347
// §4.3.2): msg_type(1) || length(3) || message_seq(2) || fragment_offset(3)
// || fragment_length(3). Handshake fragmentation/reassembly is a named
// non-goal, so every message this client sends or parses has
// fragment_offset 0 and fragment_length == length.
type handshakeHeader struct {
	msgType        uint8
	length         uint32
	messageSeq     uint16
	fragmentOffset uint32
	fragmentLength uint32
}

func encodeHandshakeMessage(msgType uint8, messageSeq uint16, body []byte) []byte {
	s := NewStream(nil)
	s.WriteUint8(msgType)
	s.WriteUint24(uint32(len(body)))
	s.WriteUint16(messageSeq)
	s.WriteUint24(0)
	s.WriteUint24(uint32(len(body)))
	s.Write(body)
	return s.Bytes()
}

func decodeHandshakeHeader(s *Stream) (*handshakeHeader, error) {
	msgType, err := s.ReadUint8()
	if err != nil {
		return nil, err
	}
	length, err := s.ReadUint24()
	if err != nil {
		return nil, err
	}
	messageSeq, err := s.ReadUint16()
	if err != nil {
		return nil, err
	}
	fragOffset, err := s.ReadUint24()
	if err != nil {
		return nil, err
	}
	fragLength, err := s.ReadUint24()
	if err != nil {
		return nil, err
	}
	if fragOffset != 0 || fragLength != length {
		return nil, fmt.Errorf("%w: fragmented handshake message (offset=%d length=%d total=%d)", ErrMalformed, fragOffset, fragLength, length)
	}
	return &handshakeHeader{
		msgType:        msgType,
		length:         length,
		messageSeq:     messageSeq,
		fragmentOffset: fragOffset,
		fragmentLength: fragLength,
	}, nil
}

// clientHello is the client's first (and, after a HelloVerifyRequest, second)
// handshake flight. session_id is always empty: session resumption by id is
// a named non-goal.
type clientHello struct {
	random       [clientRandomLength]byte
	cookie       []byte
	cipherSuites []uint16
}

func (c *clientHello) encode() []byte {
	s := NewStream(nil)
	s.WriteUint8(versionMajor)
	s.WriteUint8(versionMinor)
	s.Write(c.random[:])
	s.WriteOpaque8(nil) // session_id
	s.WriteOpaque8(c.cookie)

	cs := NewStream(nil)
	for _, suite := range c.cipherSuites {
		cs.WriteUint16(suite)
	}
	s.WriteOpaque16(cs.Bytes())

	s.WriteOpaque8([]byte{compressionMethodNull})
	return s.Bytes()
}

// serverHello is the server's response selecting a cipher suite and
// returning its own random.
type serverHello struct {
	random      [serverRandomLength]byte
	sessionID   []byte
	cipherSuite uint16
}

func decodeServerHello(body []byte) (*serverHello, error) {
	s := NewStream(body)
	major, err := s.ReadUint8()
	if err != nil {
		return nil, err
	}
	minor, err := s.ReadUint8()
	if err != nil {
		return nil, err
	}
	if major != versionMajor || minor != versionMinor {
		return nil, fmt.Errorf("%w: ServerHello version %d.%d", ErrMalformed, major, minor)
	}
	randomBytes, err := s.ReadBytes(serverRandomLength)
	if err != nil {
		return nil, err
	}
	sessionID, err := s.ReadOpaque8()
	if err != nil {
		return nil, err
	}
	suite, err := s.ReadUint16()
	if err != nil {
		return nil, err
	}
	compression, err := s.ReadUint8()
	if err != nil {
		return nil, err
	}
	if compression != compressionMethodNull {
		return nil, fmt.Errorf("%w: compression method %d", ErrMalformed, compression)
	}
	sh := &serverHello{sessionID: sessionID, cipherSuite: suite}
	copy(sh.random[:], randomBytes)
	return sh, nil
}

// helloVerifyRequest carries the server's anti-amplification cookie, RFC
// 4347 §4.2.1.
type helloVerifyRequest struct {
	cookie []byte
}

func decodeHelloVerifyRequest(body []byte) (*helloVerifyRequest, error) {
	s := NewStream(body)
	major, err := s.ReadUint8()
	if err != nil {
		return nil, err
	}
	minor, err := s.ReadUint8()
	if err != nil {
		return nil, err
	}
	if major != versionMajor || minor != versionMinor {
		return nil, fmt.Errorf("%w: HelloVerifyRequest version %d.%d", ErrMalformed, major, minor)
	}
	cookie, err := s.ReadOpaque8()
	if err != nil {
		return nil, err
	}
	if len(cookie) > cookieMaxLength {
		return nil, fmt.Errorf("%w: cookie of %d bytes", ErrOutOfRange, len(cookie))
	}
	return &helloVerifyRequest{cookie: cookie}, nil
}

// pskClientKeyExchange carries the client's PSK identity, RFC 4279 §2.
type pskClientKeyExchange struct {
	identity []byte
}

func (k *pskClientKeyExchange) encode() []byte {
	s := NewStream(nil)
	s.WriteOpaque16(k.identity)
	return s.Bytes()
}

// finished carries the 12-byte verify_data computed over the handshake
// transcript, RFC 2246 §7.4.9.
type finished struct {
	verifyData []byte
}

func (f *finished) encode() []byte {
	return append([]byte{}, f.verifyData...)
}

func decodeFinished(body []byte) (*finished, error) {
	if len(body) != verifyDataLength {
		return nil, fmt.Errorf("%w: Finished verify_data length %d", ErrMalformed, len(body))
	}
	return &finished{verifyData: append([]byte{}, body...)}, nil
}

// changeCipherSpec is the single-byte ChangeCipherSpec record content,
// content type 20, RFC 2246 §7.1.
const changeCipherSpecMessage uint8 = 1

// alert is the two-byte Alert record content, RFC 2246 §7.2.
type alert struct {
	level       uint8
	description uint8
}

func (a *alert) encode() []byte {
	return []byte{a.level, a.description}
}

func decodeAlert(body []byte) (*alert, error) {
	if len(body) != 2 {
		return nil, fmt.Errorf("%w: alert record of %d bytes", ErrMalformed, len(body))
	}
	return &alert{level: body[0], description: body[1]}, nil
}
