package dtlspsk

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/subtle"
	"fmt"
)

// No example library in the reference pack implements TLS 1.0's legacy
// CBC-with-explicit-IV-plus-HMAC construction or its dual MD5/SHA1 PRF —
// the pack's crypto dependencies target modern AEAD and curve primitives
// instead. This file and crypto.go are therefore built directly on the
// standard library's crypto/aes, crypto/cipher, crypto/hmac, crypto/sha1,
// crypto/md5, and crypto/subtle, which is the justification DESIGN.md
// records for every standard-library crypto primitive in this package.

// cbcCipherState holds the symmetric key material needed to encrypt or
// decrypt one direction (read or write) of one session's traffic under one
// cipher suite. It keeps no IV: seal draws a fresh explicit IV per record.
type cbcCipherState struct {
	macKey    []byte
	encKey    []byte
	block     cipher.Block
	macKeyLen int
}

func newCBCCipherState(macKey, encKey []byte) (*cbcCipherState, error) {
	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("dtlspsk: constructing AES cipher: %w", err)
	}
	return &cbcCipherState{
		macKey:    macKey,
		encKey:    encKey,
		block:     block,
		macKeyLen: len(macKey),
	}, nil
}

// seal produces the ciphertext fragment for one record: HMAC-SHA1(macInput
// || plaintext) appended to plaintext, padded to the AES block size with
// TLS CBC padding (n+1 bytes, each holding the value n), then CBC-encrypted behind a fresh random explicit IV which is prepended
// to the returned fragment, per RFC 2246 §6.2.3.2 as adapted by RFC 4347
// §4.1.2.5 (explicit IV).
func (c *cbcCipherState) seal(macInput, plaintext []byte) ([]byte, error) {
	mac := computeMAC(c.macKey, macInput, plaintext)
	padded := pkcs7Pad(append(append([]byte{}, plaintext...), mac...), aes.BlockSize)

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("dtlspsk: generating record IV: %w", err)
	}

	out := make([]byte, aes.BlockSize+len(padded))
	copy(out, iv)
	mode := cipher.NewCBCEncrypter(c.block, iv)
	mode.CryptBlocks(out[aes.BlockSize:], padded)
	return out, nil
}

// open reverses seal, verifying the MAC and padding in constant time with
// respect to their validity so that failure reasons are indistinguishable
// to a network observer (the padding-oracle defense named in the protocol
// description). macInput is the record's associated data (seq/type/version/
// length) used to recompute the expected MAC.
func (c *cbcCipherState) open(macInput, fragment []byte) ([]byte, error) {
	if len(fragment) < aes.BlockSize || (len(fragment)-aes.BlockSize)%aes.BlockSize != 0 {
		return nil, ErrMalformed
	}
	iv := fragment[:aes.BlockSize]
	ciphertext := fragment[aes.BlockSize:]
	if len(ciphertext) == 0 {
		return nil, ErrMalformed
	}

	plain := make([]byte, len(ciphertext))
	mode := cipher.NewCBCDecrypter(c.block, iv)
	mode.CryptBlocks(plain, ciphertext)

	unpadded, padOK := pkcs7Unpad(plain, aes.BlockSize)
	// Always compute against a validly-shaped slice, even on bad padding,
	// so the MAC computation's cost does not itself leak which check
	// failed.
	macLen := c.macKeyLen
	dataLen := len(unpadded) - macLen
	if dataLen < 0 {
		dataLen = 0
		unpadded = plain
		padOK = false
	}
	data := unpadded[:dataLen]
	gotMAC := unpadded[dataLen:]
	if len(gotMAC) != macLen {
		gotMAC = make([]byte, macLen)
		padOK = false
	}

	wantMAC := computeMACWithLength(c.macKey, macInput, data, dataLen)
	macOK := subtle.ConstantTimeCompare(gotMAC, wantMAC) == 1

	if !padOK || !macOK {
		return nil, ErrMacFailure
	}
	return data, nil
}

func computeMAC(key, macInput, data []byte) []byte {
	return computeMACWithLength(key, macInput, data, len(data))
}

// computeMACWithLength recomputes HMAC-SHA1 over macInput with its length
// field patched to dataLen, then over data itself. This lets open() verify
// against the plaintext length implied by the (unverified) padding while
// always hashing a fixed-shape buffer.
func computeMACWithLength(key, macInput, data []byte, dataLen int) []byte {
	input := append([]byte{}, macInput...)
	if len(input) >= 2 {
		input[len(input)-2] = byte(dataLen >> 8)
		input[len(input)-1] = byte(dataLen)
	}
	h := hmac.New(sha1.New, key)
	h.Write(input)
	h.Write(data)
	return h.Sum(nil)
}

// wipe zeroes b in place. Used to scrub premaster-secret material as soon
// as the master secret has been derived from it.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// constantTimeEqual reports whether a and b hold the same bytes, taking
// time independent of where they first differ.
func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen - 1)
	}
	return padded
}

// pkcs7Unpad strips PKCS#7-style CBC padding, returning ok=false (without
// early-returning) on any malformed padding so callers can fold the
// failure into a constant-time MAC comparison instead of branching early.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return data, false
	}
	padLen := int(data[len(data)-1]) + 1
	if padLen <= 0 || padLen > len(data) || padLen > 255 {
		return data, false
	}
	ok := 1
	for i := len(data) - padLen; i < len(data); i++ {
		ok &= subtle.ConstantTimeByteEq(data[i], byte(padLen-1))
	}
	return data[:len(data)-padLen], ok == 1
}
