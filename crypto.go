package dtlspsk

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/sha1"
	"encoding/binary"
	"hash"
	"io"
	"time"
)

// Crypto is a thin adapter over the randomness source the handshake engine
// needs for the ClientHello random; the key-derivation steps themselves are
// the package-level functions below. It holds no session state of its own.
type Crypto struct {
	rng io.Reader
}

func NewCrypto() *Crypto {
	return &Crypto{rng: rand.Reader}
}

// NewCryptoWithRand returns a Crypto drawing from r instead of crypto/rand,
// the same "indirect the nondeterministic source" seam session.go's nowFunc
// applies to wall-clock time, here applied to randomness so tests can drive
// deterministic ClientHello randoms. Record IVs do not come from here: the
// record layer's seal reads crypto/rand directly.
func NewCryptoWithRand(r io.Reader) *Crypto {
	return &Crypto{rng: r}
}

// Random fills b with bytes from c's randomness source, used for the
// ClientHello random.
func (c *Crypto) Random(b []byte) error {
	_, err := io.ReadFull(c.rng, b)
	return err
}

// clientRandomNow is nowFunc's counterpart for the ClientHello random's
// time-based prefix; indirected so tests can freeze it alongside nowFunc.
var clientRandomNow = time.Now

// ClientRandom builds the 32-byte ClientHello random per the handshake
// engine's construction: a 4-byte big-endian field equal to the current
// Unix time offset by a signed 24-bit CSPRNG-drawn value in
// [-2^23, 2^23), intended to deter passive fingerprinting of the client's
// true clock, followed by 28 CSPRNG bytes.
func (c *Crypto) ClientRandom() ([clientRandomLength]byte, error) {
	var out [clientRandomLength]byte

	var offsetBuf [3]byte
	if err := c.Random(offsetBuf[:]); err != nil {
		return out, err
	}
	// Sign-extend the 24-bit draw into a signed 32-bit offset.
	raw := int32(offsetBuf[0])<<16 | int32(offsetBuf[1])<<8 | int32(offsetBuf[2])
	if raw >= 1<<23 {
		raw -= 1 << 24
	}

	t := uint32(clientRandomNow().Unix() + int64(raw))
	binary.BigEndian.PutUint32(out[:4], t)

	if err := c.Random(out[4:]); err != nil {
		return out, err
	}
	return out, nil
}

// pHash implements the TLS 1.0 P_hash expansion function (RFC 2246 §5):
//
//	A(0) = seed
//	A(i) = HMAC_hash(secret, A(i-1))
//	P_hash(secret, seed) = HMAC_hash(secret, A(1) || seed) ||
//	                       HMAC_hash(secret, A(2) || seed) || ...
//
// truncated to outLen bytes.
func pHash(newHash func() hash.Hash, secret, seed []byte, outLen int) []byte {
	out := make([]byte, 0, outLen)
	a := seed
	for len(out) < outLen {
		mac := hmac.New(newHash, secret)
		mac.Write(a)
		a = mac.Sum(nil)

		mac = hmac.New(newHash, secret)
		mac.Write(a)
		mac.Write(seed)
		out = append(out, mac.Sum(nil)...)
	}
	return out[:outLen]
}

// prf implements the TLS 1.0 dual PRF (RFC 2246 §5): the secret is split
// into two halves (overlapping by one byte if its length is odd), P_MD5 is
// applied to the first half and P_SHA1 to the second, and the two output
// streams are XORed together.
func prf(secret, label, seed []byte, outLen int) []byte {
	labelSeed := append(append([]byte{}, label...), seed...)

	half := (len(secret) + 1) / 2
	s1 := secret[:half]
	s2 := secret[len(secret)-half:]

	md5Out := pHash(md5.New, s1, labelSeed, outLen)
	sha1Out := pHash(sha1.New, s2, labelSeed, outLen)

	out := make([]byte, outLen)
	for i := range out {
		out[i] = md5Out[i] ^ sha1Out[i]
	}
	return out
}

// pskPremasterSecret builds the PSK premaster secret per RFC 4279 §2:
// a 2-byte length-prefixed block of zero bytes the length of the PSK,
// followed by a 2-byte length-prefixed copy of the PSK itself.
func pskPremasterSecret(psk []byte) []byte {
	n := len(psk)
	out := make([]byte, 0, 4+2*n)
	out = append(out, byte(n>>8), byte(n))
	out = append(out, make([]byte, n)...)
	out = append(out, byte(n>>8), byte(n))
	out = append(out, psk...)
	return out
}

// masterSecret derives the 48-byte TLS 1.0 master secret from the premaster
// secret and the client/server hello randoms, RFC 2246 §8.1.
func masterSecret(premaster, clientRandom, serverRandom []byte) []byte {
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return prf(premaster, []byte("master secret"), seed, masterSecretLength)
}

// keyBlock derives the key_block material (client/server MAC keys, then
// client/server write keys; no IV material since DTLS's explicit per-record
// IV makes the implicit key_block IVs unnecessary) per RFC 2246 §6.3.
func keyBlock(secret, clientRandom, serverRandom []byte, length int) []byte {
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	return prf(secret, []byte("key expansion"), seed, length)
}

// clientFinishedVerifyData derives the client's Finished message
// verify_data per RFC 2246 §7.4.9, from the MD5 and SHA1 digests of the
// full handshake transcript so far.
func clientFinishedVerifyData(secret, transcriptMD5, transcriptSHA1 []byte) []byte {
	seed := append(append([]byte{}, transcriptMD5...), transcriptSHA1...)
	return prf(secret, []byte("client finished"), seed, verifyDataLength)
}

// serverFinishedVerifyData derives the server's expected Finished
// verify_data, used by the client to validate the server's Finished flight.
func serverFinishedVerifyData(secret, transcriptMD5, transcriptSHA1 []byte) []byte {
	seed := append(append([]byte{}, transcriptMD5...), transcriptSHA1...)
	return prf(secret, []byte("server finished"), seed, verifyDataLength)
}
