package dtlspsk

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"
)

// startHandshake sends the client's first ClientHello flight and moves the
// session into ClientHelloSent. Called once, when the session is created.
func (s *Session) startHandshake() error {
	random, err := s.crypto.ClientRandom()
	if err != nil {
		return newHandshakeError(s.SessionID(), "ClientHello", err)
	}
	s.clientRandom = random
	return s.sendClientHello()
}

func (s *Session) sendClientHello() error {
	_, span := s.tracer.Start(s.spanCtx, "flight:ClientHello")
	defer span.End()
	span.SetAttributes(attribute.String("dtlspsk.session_id", s.SessionID()))

	ch := &clientHello{
		random:       s.clientRandom,
		cookie:       s.cookie,
		cipherSuites: offeredCipherSuites(),
	}
	body := ch.encode()
	msg := encodeHandshakeMessage(handshakeTypeClientHello, s.nextMessageSeq(), body)
	s.transcript.write(msg)

	rec, err := sealRecord(s.writeDir, contentTypeHandshake, msg)
	if err != nil {
		return newHandshakeError(s.SessionID(), "ClientHello", err)
	}
	s.diag.recordSent(len(msg))
	s.state = StateClientHelloSent
	return s.endpoint.transmit(s, rec)
}

func (s *Session) nextMessageSeq() uint16 {
	seq := s.messageSeq
	s.messageSeq++
	return seq
}

// onRecord dispatches a decoded, already-decrypted record fragment by
// content type. The endpoint has already matched the record to this
// session and run it through openRecord.
func (s *Session) onRecord(r *record, plaintext []byte) error {
	s.diag.recordReceived(len(plaintext))
	if s.metrics != nil {
		s.metrics.RecordBytesReceived(len(plaintext))
	}

	switch r.contentType {
	case contentTypeHandshake:
		return s.onHandshakeFragment(plaintext)
	case contentTypeChangeCipherSpec:
		return s.onChangeCipherSpec(plaintext)
	case contentTypeAlert:
		return s.onAlertRecord(plaintext)
	case contentTypeApplicationData:
		return s.onApplicationData(plaintext)
	default:
		return newRecordError(s.SessionID(), r.epoch, fmt.Errorf("%w: content type %d", ErrMalformed, r.contentType))
	}
}

// onHandshakeFragment parses one handshake message (fragmentation is a
// named non-goal, so one record fragment is one complete message) and
// routes it by type and current state.
func (s *Session) onHandshakeFragment(body []byte) error {
	st := NewStream(body)
	hdr, err := decodeHandshakeHeader(st)
	if err != nil {
		return newHandshakeError(s.SessionID(), "unknown", err)
	}
	msgBody, err := st.ReadBytes(int(hdr.length))
	if err != nil {
		return newHandshakeError(s.SessionID(), messageTypeName(hdr.msgType), err)
	}

	switch hdr.msgType {
	case handshakeTypeHelloVerifyRequest:
		return s.handleHelloVerifyRequest(body, msgBody)
	case handshakeTypeServerHello:
		return s.handleServerHello(body, msgBody)
	case handshakeTypeServerHelloDone:
		return s.handleServerHelloDone(body)
	case handshakeTypeFinished:
		return s.handleServerFinished(msgBody)
	case handshakeTypeCertificate, handshakeTypeServerKeyExchange, handshakeTypeCertificateRequest:
		// PSK-only cipher suites never trigger these; a server sending
		// them has violated the negotiated suite.
		s.abort(ErrHandshakeAbort)
		return newHandshakeError(s.SessionID(), messageTypeName(hdr.msgType), fmt.Errorf("%w: unexpected for PSK cipher suite", ErrHandshakeAbort))
	default:
		s.abort(ErrHandshakeAbort)
		return newHandshakeError(s.SessionID(), messageTypeName(hdr.msgType), fmt.Errorf("%w: unexpected in state %s", ErrHandshakeAbort, s.state))
	}
}

// handleHelloVerifyRequest resets the transcript (RFC 4347 §4.2.1: the
// unverified first ClientHello never happened, cryptographically speaking)
// and resends ClientHello with the server's cookie attached.
func (s *Session) handleHelloVerifyRequest(rawMsg, body []byte) error {
	if s.state != StateClientHelloSent {
		s.abort(ErrHandshakeAbort)
		return newHandshakeError(s.SessionID(), "HelloVerifyRequest", fmt.Errorf("%w: unexpected in state %s", ErrHandshakeAbort, s.state))
	}
	hvr, err := decodeHelloVerifyRequest(body)
	if err != nil {
		s.abort(err)
		return newHandshakeError(s.SessionID(), "HelloVerifyRequest", err)
	}
	s.cookie = hvr.cookie
	s.transcript.reset()
	s.messageSeq = 0
	return s.sendClientHello()
}

func (s *Session) handleServerHello(rawMsg, body []byte) error {
	if s.state != StateClientHelloSent {
		s.abort(ErrHandshakeAbort)
		return newHandshakeError(s.SessionID(), "ServerHello", fmt.Errorf("%w: unexpected in state %s", ErrHandshakeAbort, s.state))
	}
	sh, err := decodeServerHello(body)
	if err != nil {
		s.abort(err)
		return newHandshakeError(s.SessionID(), "ServerHello", err)
	}
	if !isKnownCipherSuite(sh.cipherSuite) {
		s.abort(ErrUnsupportedCipherSuite)
		return newHandshakeError(s.SessionID(), "ServerHello", ErrUnsupportedCipherSuite)
	}
	s.serverRandom = sh.random
	s.cipherSuite = sh.cipherSuite
	s.transcript.write(rawMsg)
	return nil
}

// handleServerHelloDone marks the end of the server's first flight. For
// this PSK-only client that flight is ServerHello followed directly by
// ServerHelloDone (no Certificate/ServerKeyExchange), so this is also where
// the client derives keys and sends its own second flight.
func (s *Session) handleServerHelloDone(rawMsg []byte) error {
	if s.state != StateClientHelloSent {
		s.abort(ErrHandshakeAbort)
		return newHandshakeError(s.SessionID(), "ServerHelloDone", fmt.Errorf("%w: unexpected in state %s", ErrHandshakeAbort, s.state))
	}
	s.transcript.write(rawMsg)
	return s.sendSecondFlight()
}

// sendSecondFlight sends PskClientKeyExchange, ChangeCipherSpec, and
// Finished back to back, deriving the master secret and installing the
// client's write cipher in between, per the protocol description's flight
// sequencing.
func (s *Session) sendSecondFlight() error {
	_, span := s.tracer.Start(s.spanCtx, "flight:ClientKeyExchange+Finished")
	defer span.End()

	kex := &pskClientKeyExchange{identity: s.identity}
	kexBody := kex.encode()
	kexMsg := encodeHandshakeMessage(handshakeTypeClientKeyExchange, s.nextMessageSeq(), kexBody)
	s.transcript.write(kexMsg)

	kexRec, err := sealRecord(s.writeDir, contentTypeHandshake, kexMsg)
	if err != nil {
		return newHandshakeError(s.SessionID(), "ClientKeyExchange", err)
	}
	if err := s.endpoint.transmit(s, kexRec); err != nil {
		return err
	}

	premaster := pskPremasterSecret(s.psk)
	s.masterSecret = masterSecret(premaster, s.clientRandom[:], s.serverRandom[:])
	wipe(premaster)
	// The PSK itself is never needed again once the premaster secret has
	// been derived from it.
	wipe(s.psk)

	keyLen := cipherSuiteKeyLength(s.cipherSuite)
	block := keyBlock(s.masterSecret, s.clientRandom[:], s.serverRandom[:], 2*macKeyLengthSHA1+2*keyLen)
	clientMAC := block[0:macKeyLengthSHA1]
	serverMAC := block[macKeyLengthSHA1 : 2*macKeyLengthSHA1]
	clientKey := block[2*macKeyLengthSHA1 : 2*macKeyLengthSHA1+keyLen]
	serverKey := block[2*macKeyLengthSHA1+keyLen : 2*macKeyLengthSHA1+2*keyLen]

	writeCipher, err := newCBCCipherState(clientMAC, clientKey)
	if err != nil {
		return newHandshakeError(s.SessionID(), "KeyDerivation", err)
	}
	readCipher, err := newCBCCipherState(serverMAC, serverKey)
	if err != nil {
		return newHandshakeError(s.SessionID(), "KeyDerivation", err)
	}

	ccsRec, err := sealRecord(s.writeDir, contentTypeChangeCipherSpec, []byte{changeCipherSpecMessage})
	if err != nil {
		return newHandshakeError(s.SessionID(), "ChangeCipherSpec", err)
	}
	if err := s.endpoint.transmit(s, ccsRec); err != nil {
		return err
	}

	// The write side's epoch and cipher advance together, immediately
	// after sending our own ChangeCipherSpec, per RFC 4347 §4.1.
	s.writeDir.epoch++
	s.writeDir.nextSeq = 0
	s.writeDir.cipher = writeCipher
	// The read side's cipher only becomes current once the server's own
	// ChangeCipherSpec is actually received (onChangeCipherSpec installs
	// it from here); next_in_epoch is deliberately left unbumped there,
	// per the protocol description's documented non-compliance.
	s.pendingReadCipher = readCipher

	md5Sum, sha1Sum := s.transcript.sums()
	verifyData := clientFinishedVerifyData(s.masterSecret, md5Sum, sha1Sum)
	finMsg := encodeHandshakeMessage(handshakeTypeFinished, s.nextMessageSeq(), (&finished{verifyData: verifyData}).encode())
	s.transcript.write(finMsg)

	finRec, err := sealRecord(s.writeDir, contentTypeHandshake, finMsg)
	if err != nil {
		return newHandshakeError(s.SessionID(), "Finished", err)
	}
	s.state = StateFinishedSent
	return s.endpoint.transmit(s, finRec)
}

// onChangeCipherSpec installs the negotiated read cipher state derived back
// in sendSecondFlight. This is the one call site implementing the
// documented, intentional non-compliance named in the protocol description:
// the read direction's next_in_epoch counter is not advanced here, only the
// cipher state is.
func (s *Session) onChangeCipherSpec(body []byte) error {
	if len(body) != 1 || body[0] != changeCipherSpecMessage {
		return newRecordError(s.SessionID(), s.readDir.epoch, ErrMalformed)
	}
	if s.pendingReadCipher == nil {
		s.abort(ErrHandshakeAbort)
		return newHandshakeError(s.SessionID(), "ChangeCipherSpec", fmt.Errorf("%w: unexpected before key derivation", ErrHandshakeAbort))
	}
	s.readDir.cipher = s.pendingReadCipher
	return nil
}

func (s *Session) handleServerFinished(body []byte) error {
	if s.state != StateFinishedSent {
		s.abort(ErrHandshakeAbort)
		return newHandshakeError(s.SessionID(), "Finished", fmt.Errorf("%w: unexpected in state %s", ErrHandshakeAbort, s.state))
	}
	fin, err := decodeFinished(body)
	if err != nil {
		s.abort(err)
		return newHandshakeError(s.SessionID(), "Finished", err)
	}
	md5Sum, sha1Sum := s.transcript.sums()
	want := serverFinishedVerifyData(s.masterSecret, md5Sum, sha1Sum)
	if !constantTimeEqual(fin.verifyData, want) {
		s.abort(ErrHandshakeAbort)
		return newHandshakeError(s.SessionID(), "Finished", fmt.Errorf("%w: server Finished verify_data mismatch", ErrHandshakeAbort))
	}
	s.state = StateConnected
	if s.callbacks != nil && s.callbacks.OnConnected != nil {
		s.callbacks.OnConnected(s)
	}
	return s.flushAppQueue()
}

// onAlertRecord implements the protocol description's alert policy:
// CloseNotify tears the session down cleanly, BadRecordMac is always fatal
// regardless of level, and every other description is ignored.
func (s *Session) onAlertRecord(body []byte) error {
	a, err := decodeAlert(body)
	if err != nil {
		return newRecordError(s.SessionID(), s.readDir.epoch, err)
	}
	switch a.description {
	case alertDescCloseNotify:
		s.fail(ErrPeerClosed)
	case alertDescBadRecordMAC:
		s.fail(fmt.Errorf("%w: peer reported bad_record_mac", ErrMacFailure))
	}
	return nil
}

func (s *Session) onApplicationData(payload []byte) error {
	if s.state != StateConnected {
		return newRecordError(s.SessionID(), s.readDir.epoch, fmt.Errorf("%w: application data before Connected", ErrHandshakeAbort))
	}
	if s.callbacks != nil && s.callbacks.OnDatagram != nil {
		s.callbacks.OnDatagram(s, payload)
	}
	return nil
}

// abort moves the session to Failed in response to a local handshake
// decision, distinct from fail's use for peer- or transport-caused closure,
// so call sites can both fail() the session and still return the
// triggering error to their own caller for logging.
func (s *Session) abort(cause error) {
	s.fail(cause)
}
