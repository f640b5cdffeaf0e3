package trust

import (
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"io"
	"os"

	"golang.org/x/crypto/ed25519"
)

const (
	Ed25519PublicKeySize  = ed25519.PublicKeySize
	Ed25519PrivateKeySize = ed25519.PrivateKeySize
	Ed25519SignatureSize  = ed25519.SignatureSize
)

// GenerateEd25519Keypair is a thin wrapper kept mainly for tests and
// for tooling that needs to mint throwaway keys for fixtures.
func GenerateEd25519Keypair() (pub, priv []byte, err error) {
	p, s, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, nil, newErr(CategoryCrypto, "", "generating ed25519 keypair", err)
	}
	return []byte(p), []byte(s), nil
}

// Sign produces a raw ed25519 signature over data.
func Sign(data, priv []byte) ([]byte, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return nil, newErr(CategoryCrypto, "", "signing key has wrong size", nil)
	}
	return ed25519.Sign(ed25519.PrivateKey(priv), data), nil
}

// Verify checks a raw ed25519 signature. It never panics on malformed
// input; a bad key or signature length is simply not valid.
func Verify(data, pub, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), data, sig)
}

// VerifyGPG checks a PGP v4 detached-signature trailer the way mamba's
// validation::verify_gpg does: the digest actually signed is SHA-256
// over data, then the raw trailer bytes, then the two-byte PGP v4
// final-packet marker {0x04, 0xFF}, then a 4-byte big-endian length of
// the trailer.
func VerifyGPG(data, pgpTrailer, pub, sig []byte) bool {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(pgpTrailer)))
	h := sha256.New()
	h.Write(data)
	h.Write(pgpTrailer)
	h.Write([]byte{0x04, 0xFF})
	h.Write(lenBuf[:])
	return Verify(h.Sum(nil), pub, sig)
}

// SHA256File and MD5File stream the file through the digest rather
// than reading it fully into memory, matching tools.cpp's sha256sum
// and md5sum which both operate on an ifstream in chunks.
func SHA256File(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(CategoryFetching, path, "opening file for sha256", err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, newErr(CategoryFetching, path, "hashing file", err)
	}
	return h.Sum(nil), nil
}

func MD5File(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newErr(CategoryFetching, path, "opening file for md5", err)
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, newErr(CategoryFetching, path, "hashing file", err)
	}
	return h.Sum(nil), nil
}

func HexEncode(b []byte) string { return hex.EncodeToString(b) }

func HexDecode(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, newErr(CategoryEncoding, "", "invalid hex string", err)
	}
	return b, nil
}

func Base64Encode(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

func Base64Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, newErr(CategoryEncoding, "", "invalid base64 string", err)
	}
	return b, nil
}

// ConstantTimeEqual avoids timing side-channels when comparing digests
// and keys, the same guarantee the teacher's second FileIntegrityMeta
// (tuf/fim.go) gets from crypto/subtle.
func ConstantTimeEqual(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
