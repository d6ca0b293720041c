package chain

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"os"
)

// Signer signs oracle-gated chain calls (cycle creation, result submission)
// with an ECDSA private key, the curve the chain's oracle role requires.
type Signer struct {
	privateKey *ecdsa.PrivateKey
}

// NewSignerFromFile loads an ECDSA private key from a PEM file. Returns
// (nil, nil) when path is empty, allowing callers to run unsigned (e.g. in
// a read-only monitor process).
func NewSignerFromFile(path string) (*Signer, error) {
	if path == "" {
		return nil, nil
	}

	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chain: read key file %s: %w", path, err)
	}

	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("chain: no PEM block found in %s", path)
	}

	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		parsed, perr := x509.ParsePKCS8PrivateKey(block.Bytes)
		if perr != nil {
			return nil, fmt.Errorf("chain: parse EC key in %s: not SEC1 or PKCS#8", path)
		}
		var ok bool
		key, ok = parsed.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("chain: key in %s is not ECDSA (got %T)", path, parsed)
		}
	}

	return &Signer{privateKey: key}, nil
}

// Enabled reports whether this signer has a key loaded.
func (s *Signer) Enabled() bool {
	return s != nil && s.privateKey != nil
}

// Sign produces a randomized ECDSA signature (ASN.1 DER, hex
// encoded) over the SHA-256 digest of payload. No-op (empty string) when s
// is nil.
func (s *Signer) Sign(payload []byte) (string, error) {
	if s == nil {
		return "", nil
	}
	digest := sha256.Sum256(payload)
	sig, err := ecdsa.SignASN1(rand.Reader, s.privateKey, digest[:])
	if err != nil {
		return "", fmt.Errorf("chain: ecdsa sign: %w", err)
	}
	return "0x" + hex.EncodeToString(sig), nil
}

// PublicKeyHex returns the uncompressed public key, hex encoded, for
// registering the oracle address out of band.
func (s *Signer) PublicKeyHex() string {
	if !s.Enabled() {
		return ""
	}
	pub := s.privateKey.PublicKey
	raw := elliptic.Marshal(pub.Curve, pub.X, pub.Y)
	return "0x" + hex.EncodeToString(raw)
}
