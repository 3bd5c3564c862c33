package dtlspsk

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha1"
	"testing"
	"time"
)

func TestPHashMatchesManualHMACChain(t *testing.T) {
	secret := []byte("secret")
	seed := []byte("seed-value")

	mac := hmac.New(sha1.New, secret)
	mac.Write(seed)
	a1 := mac.Sum(nil)

	mac = hmac.New(sha1.New, secret)
	mac.Write(a1)
	a2 := mac.Sum(nil)

	mac = hmac.New(sha1.New, secret)
	mac.Write(a1)
	mac.Write(seed)
	block1 := mac.Sum(nil)

	mac = hmac.New(sha1.New, secret)
	mac.Write(a2)
	mac.Write(seed)
	block2 := mac.Sum(nil)

	want := append(append([]byte{}, block1...), block2...)
	got := pHash(sha1.New, secret, seed, len(want))
	if !bytes.Equal(got, want) {
		t.Fatalf("pHash mismatch:\ngot  %x\nwant %x", got, want)
	}
}

func TestPRFIsPrefixStable(t *testing.T) {
	secret := []byte("a shared premaster secret of some length")
	label := []byte("master secret")
	seed := bytes.Repeat([]byte{0x01}, 64)

	full := prf(secret, label, seed, 200)
	for _, n := range []int{1, 16, 48, 100, 199, 200} {
		got := prf(secret, label, seed, n)
		if !bytes.Equal(got, full[:n]) {
			t.Fatalf("prf(...,%d) is not a prefix of prf(...,200)", n)
		}
	}
}

func TestPRFDeterministic(t *testing.T) {
	secret := []byte("secret")
	label := []byte("client finished")
	seed := []byte("transcript-hash-bytes")

	a := prf(secret, label, seed, 12)
	b := prf(secret, label, seed, 12)
	if !bytes.Equal(a, b) {
		t.Fatalf("prf is not deterministic for identical inputs")
	}
}

func TestPRFOddSecretLengthSplitsWithOverlap(t *testing.T) {
	// RFC 2246 §5: for an odd-length secret, the two halves overlap by one
	// byte (the middle byte is used by both P_MD5 and P_SHA1).
	secret := []byte{1, 2, 3} // half = 2, s1 = secret[:2], s2 = secret[1:]
	label := []byte("l")
	seed := []byte("s")

	out := prf(secret, label, seed, 16)
	if len(out) != 16 {
		t.Fatalf("got %d bytes, want 16", len(out))
	}

	labelSeed := append(append([]byte{}, label...), seed...)
	md5Part := pHash(md5.New, secret[:2], labelSeed, 16)
	sha1Part := pHash(sha1.New, secret[1:], labelSeed, 16)
	for i := range out {
		if out[i] != md5Part[i]^sha1Part[i] {
			t.Fatalf("byte %d = %#x, want P_MD5(secret[:2]) xor P_SHA1(secret[1:]) = %#x", i, out[i], md5Part[i]^sha1Part[i])
		}
	}
}

func TestPskPremasterSecret(t *testing.T) {
	psk := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	got := pskPremasterSecret(psk)

	n := len(psk)
	want := make([]byte, 0, 4+2*n)
	want = append(want, byte(n>>8), byte(n))
	want = append(want, make([]byte, n)...)
	want = append(want, byte(n>>8), byte(n))
	want = append(want, psk...)

	if !bytes.Equal(got, want) {
		t.Fatalf("premaster mismatch:\ngot  %x\nwant %x", got, want)
	}
}

func TestMasterSecretLengthAndDeterminism(t *testing.T) {
	premaster := pskPremasterSecret([]byte{1, 2, 3, 4})
	clientRandom := bytes.Repeat([]byte{0xAA}, clientRandomLength)
	serverRandom := bytes.Repeat([]byte{0xBB}, serverRandomLength)

	a := masterSecret(premaster, clientRandom, serverRandom)
	b := masterSecret(premaster, clientRandom, serverRandom)
	if len(a) != masterSecretLength {
		t.Fatalf("master secret length = %d, want %d", len(a), masterSecretLength)
	}
	if !bytes.Equal(a, b) {
		t.Fatalf("master secret is not deterministic")
	}

	otherServerRandom := bytes.Repeat([]byte{0xCC}, serverRandomLength)
	c := masterSecret(premaster, clientRandom, otherServerRandom)
	if bytes.Equal(a, c) {
		t.Fatalf("master secret did not change with server random")
	}
}

func TestKeyBlockSplitLengthsMatchCipherSuite(t *testing.T) {
	master := bytes.Repeat([]byte{0x01}, masterSecretLength)
	clientRandom := bytes.Repeat([]byte{0x02}, clientRandomLength)
	serverRandom := bytes.Repeat([]byte{0x03}, serverRandomLength)

	for _, suite := range []uint16{cipherSuitePSKWithAES128CBCSHA, cipherSuitePSKWithAES256CBCSHA} {
		keyLen := cipherSuiteKeyLength(suite)
		total := 2*macKeyLengthSHA1 + 2*keyLen
		block := keyBlock(master, clientRandom, serverRandom, total)
		if len(block) != total {
			t.Fatalf("suite %#x: key block length %d, want %d", suite, len(block), total)
		}
		clientMAC := block[0:macKeyLengthSHA1]
		serverMAC := block[macKeyLengthSHA1 : 2*macKeyLengthSHA1]
		clientKey := block[2*macKeyLengthSHA1 : 2*macKeyLengthSHA1+keyLen]
		serverKey := block[2*macKeyLengthSHA1+keyLen : 2*macKeyLengthSHA1+2*keyLen]
		if len(clientMAC) != macKeyLengthSHA1 || len(serverMAC) != macKeyLengthSHA1 {
			t.Fatalf("suite %#x: MAC key length mismatch", suite)
		}
		if len(clientKey) != keyLen || len(serverKey) != keyLen {
			t.Fatalf("suite %#x: write key length %d, want %d", suite, len(clientKey), keyLen)
		}
	}
}

func TestFinishedVerifyDataLength(t *testing.T) {
	master := bytes.Repeat([]byte{0x04}, masterSecretLength)
	md5Sum := bytes.Repeat([]byte{0x05}, 16)
	sha1Sum := bytes.Repeat([]byte{0x06}, 20)

	client := clientFinishedVerifyData(master, md5Sum, sha1Sum)
	server := serverFinishedVerifyData(master, md5Sum, sha1Sum)
	if len(client) != verifyDataLength || len(server) != verifyDataLength {
		t.Fatalf("verify data lengths: client=%d server=%d, want %d", len(client), len(server), verifyDataLength)
	}
	if bytes.Equal(client, server) {
		t.Fatalf("client and server finished labels must diverge")
	}
}

func TestClientRandomFormat(t *testing.T) {
	defer func() { clientRandomNow = time.Now }()
	fixed := time.Unix(1_700_000_000, 0)
	clientRandomNow = func() time.Time { return fixed }

	c := NewCryptoWithRand(&seqReader{})
	random, err := c.ClientRandom()
	if err != nil {
		t.Fatalf("ClientRandom: %v", err)
	}

	// The first 3 bytes drawn by seqReader are 0x00, 0x01, 0x02, a small
	// positive offset, so the encoded time should be fixed.Unix() + that
	// offset.
	offset := int32(0)<<16 | int32(1)<<8 | int32(2)
	wantSeconds := uint32(fixed.Unix() + int64(offset))

	gotSeconds := uint32(random[0])<<24 | uint32(random[1])<<16 | uint32(random[2])<<8 | uint32(random[3])
	if gotSeconds != wantSeconds {
		t.Fatalf("encoded time = %d, want %d", gotSeconds, wantSeconds)
	}
	if len(random) != clientRandomLength {
		t.Fatalf("random length = %d, want %d", len(random), clientRandomLength)
	}
}

func TestWipeZeroesBuffer(t *testing.T) {
	b := bytes.Repeat([]byte{0xFF}, 32)
	wipe(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not wiped: %#x", i, v)
		}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	a := []byte{1, 2, 3}
	b := []byte{1, 2, 3}
	c := []byte{1, 2, 4}
	if !constantTimeEqual(a, b) {
		t.Fatalf("expected equal")
	}
	if constantTimeEqual(a, c) {
		t.Fatalf("expected not equal")
	}
	if constantTimeEqual(a, []byte{1, 2}) {
		t.Fatalf("expected length mismatch to be unequal")
	}
}
