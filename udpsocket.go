package dtlspsk

import "net"

// PacketConn is this package's collaborator seam standing in for "the UDP
// socket": every record this package sends or receives passes through one.
// The default implementation wraps net.ListenUDP/net.UDPConn; the
// end-to-end tests substitute a fake that feeds canned server flights
// without opening a real socket.
type PacketConn interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	Close() error
}

// ListenPacketConn opens a UDP socket on the given local address (":0" for
// an ephemeral port) and returns it wrapped as a PacketConn.
func ListenPacketConn(localAddr string) (PacketConn, error) {
	addr, err := net.ResolveUDPAddr("udp", localAddr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
