// Package dtlspsk implements the client side of a partial DTLS 1.0
// handshake and record layer authenticated with a pre-shared key (RFC 4279),
// suitable for applications that want confidential, integrity-protected
// datagrams over UDP without the weight of certificate-based TLS.
//
// Only the client role is implemented. The cipher suites are fixed to
// TLS_PSK_WITH_AES_128_CBC_SHA and TLS_PSK_WITH_AES_256_CBC_SHA; there is no
// renegotiation, session resumption, record retransmission, or fragment
// reassembly.
//
// An Endpoint owns one UDP socket and multiplexes any number of Sessions
// over it. Call NewEndpoint with a PacketConn (ListenPacketConn for the
// default net.UDPConn-backed one), then Dial a Session per peer.
package dtlspsk
