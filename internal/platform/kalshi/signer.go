package kalshi

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"
)

// Request auth headers.
const (
	headerAccessKey = "KALSHI-ACCESS-KEY"
	headerSignature = "KALSHI-ACCESS-SIGNATURE"
	headerTimestamp = "KALSHI-ACCESS-TIMESTAMP"
)

// Signer produces Kalshi's RSA-PSS-SHA256 request signatures over
// timestamp(ms) + METHOD + path (path without query string).
type Signer struct {
	keyID string
	key   *rsa.PrivateKey
	now   func() time.Time
}

// NewSigner creates a Signer from an API key id and an RSA private key.
func NewSigner(keyID string, key *rsa.PrivateKey) *Signer {
	return &Signer{keyID: keyID, key: key, now: time.Now}
}

// LoadSigner reads a PEM private key (PKCS#8 or PKCS#1) from path.
func LoadSigner(keyID, path string) (*Signer, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kalshi: read private key %s: %w", path, err)
	}
	key, err := ParsePrivateKey(pemBytes)
	if err != nil {
		return nil, err
	}
	return NewSigner(keyID, key), nil
}

// ParsePrivateKey decodes a PEM-encoded RSA private key.
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("kalshi: no PEM block found in private key")
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		pkcs1Key, pkcs1Err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, fmt.Errorf("kalshi: parse private key: %w (pkcs1: %v)", err, pkcs1Err)
		}
		return pkcs1Key, nil
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("kalshi: expected RSA private key, got %T", key)
	}
	return rsaKey, nil
}

// Headers returns the three auth headers for a request.
func (s *Signer) Headers(method, path string) (http.Header, error) {
	ts := strconv.FormatInt(s.now().UnixMilli(), 10)
	digest := sha256.Sum256([]byte(ts + method + path))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
	if err != nil {
		return nil, fmt.Errorf("kalshi: rsa sign: %w", err)
	}

	h := http.Header{}
	h.Set(headerAccessKey, s.keyID)
	h.Set(headerSignature, base64.StdEncoding.EncodeToString(sig))
	h.Set(headerTimestamp, ts)
	return h, nil
}

// Verify checks a signature produced by Headers.
func (s *Signer) Verify(method, path, ts, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("kalshi: decode signature: %w", err)
	}
	digest := sha256.Sum256([]byte(ts + method + path))
	return rsa.VerifyPSS(&s.key.PublicKey, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
	})
}
