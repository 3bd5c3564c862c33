package dtlspsk

// messageTypeName returns a human-readable name for a handshake message
// type, for log lines and wrapped-error context.
func messageTypeName(msgType uint8) string {
	switch msgType {
	case handshakeTypeHelloRequest:
		return "HelloRequest"
	case handshakeTypeClientHello:
		return "ClientHello"
	case handshakeTypeServerHello:
		return "ServerHello"
	case handshakeTypeHelloVerifyRequest:
		return "HelloVerifyRequest"
	case handshakeTypeCertificate:
		return "Certificate"
	case handshakeTypeServerKeyExchange:
		return "ServerKeyExchange"
	case handshakeTypeCertificateRequest:
		return "CertificateRequest"
	case handshakeTypeServerHelloDone:
		return "ServerHelloDone"
	case handshakeTypeCertificateVerify:
		return "CertificateVerify"
	case handshakeTypeClientKeyExchange:
		return "ClientKeyExchange"
	case handshakeTypeFinished:
		return "Finished"
	default:
		return "Unknown"
	}
}

// contentTypeName returns a human-readable name for a record content type.
func contentTypeName(ct uint8) string {
	switch ct {
	case contentTypeChangeCipherSpec:
		return "ChangeCipherSpec"
	case contentTypeAlert:
		return "Alert"
	case contentTypeHandshake:
		return "Handshake"
	case contentTypeApplicationData:
		return "ApplicationData"
	default:
		return "Unknown"
	}
}
