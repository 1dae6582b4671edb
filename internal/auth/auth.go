// Package auth signs and verifies calendar API requests with RSA-PSS.
//
// Signed message: timestamp_ms + METHOD + path, hashed with SHA-256.
// Headers: X-ACCESS-KEY, X-ACCESS-TIMESTAMP, X-ACCESS-SIGNATURE.
package auth

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const (
	HeaderKey       = "X-ACCESS-KEY"
	HeaderTimestamp = "X-ACCESS-TIMESTAMP"
	HeaderSignature = "X-ACCESS-SIGNATURE"
)

// WebSocketPath is the path signed when dialing the snapshot stream.
const WebSocketPath = "/ws"

var pssOptions = &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash}

// Credentials sign outgoing requests under a registered key ID.
type Credentials struct {
	KeyID      string
	PrivateKey *rsa.PrivateKey

	now func() time.Time
}

// LoadCredentials pairs keyID with the private key at privateKey, which may
// be a PEM file path or inline PEM.
func LoadCredentials(keyID, privateKey string) (*Credentials, error) {
	if keyID == "" {
		return nil, errors.New("key ID is required")
	}
	if privateKey == "" {
		return nil, errors.New("private key is required")
	}
	key, err := LoadPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("load private key: %w", err)
	}
	return &Credentials{KeyID: keyID, PrivateKey: key}, nil
}

// SignRequest returns the three access headers for method and path.
func (c *Credentials) SignRequest(method, path string) (map[string]string, error) {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	ts := now().UnixMilli()

	sig, err := sign(c.PrivateKey, ts, method, path)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderKey:       c.KeyID,
		HeaderTimestamp: strconv.FormatInt(ts, 10),
		HeaderSignature: sig,
	}, nil
}

// SignWebSocket signs the stream upgrade request.
func (c *Credentials) SignWebSocket() (map[string]string, error) {
	return c.SignRequest(http.MethodGet, WebSocketPath)
}

func digest(ts int64, method, path string) []byte {
	sum := sha256.Sum256([]byte(strconv.FormatInt(ts, 10) + method + path))
	return sum[:]
}

func sign(key *rsa.PrivateKey, ts int64, method, path string) (string, error) {
	if key == nil {
		return "", errors.New("no private key")
	}
	sig, err := rsa.SignPSS(rand.Reader, key, crypto.SHA256, digest(ts, method, path), pssOptions)
	if err != nil {
		return "", fmt.Errorf("sign message: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}
