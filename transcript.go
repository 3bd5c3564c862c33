package dtlspsk

import (
	"crypto/md5"
	"crypto/sha1"
	"hash"
)

// handshakeTranscript accumulates the raw handshake-message bytes (header
// included, record layer excluded) exchanged so far, feeding both hashes
// the dual PRF's Finished derivation needs. Receiving a HelloVerifyRequest
// resets the transcript to empty: RFC 4347 §4.2.1 treats the first,
// unverified ClientHello as not having happened for transcript purposes.
type handshakeTranscript struct {
	md5  hash.Hash
	sha1 hash.Hash
}

func newHandshakeTranscript() *handshakeTranscript {
	return &handshakeTranscript{md5: md5.New(), sha1: sha1.New()}
}

func (t *handshakeTranscript) write(msg []byte) {
	t.md5.Write(msg)
	t.sha1.Write(msg)
}

func (t *handshakeTranscript) reset() {
	t.md5.Reset()
	t.sha1.Reset()
}

func (t *handshakeTranscript) sums() (md5Sum, sha1Sum []byte) {
	return t.md5.Sum(nil), t.sha1.Sum(nil)
}
