package auth

import (
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

var (
	ErrMissingHeaders = errors.New("auth: missing signature headers")
	ErrUnknownKey     = errors.New("auth: unknown key id")
	ErrStale          = errors.New("auth: timestamp outside allowed skew")
	ErrBadSignature   = errors.New("auth: signature mismatch")
)

// Verifier checks signed requests against registered public keys.
type Verifier struct {
	keys    map[string]*rsa.PublicKey
	maxSkew time.Duration
	now     func() time.Time
	logger  *slog.Logger
}

// NewVerifier creates a Verifier. maxSkew <= 0 defaults to 30s.
func NewVerifier(keys map[string]*rsa.PublicKey, maxSkew time.Duration, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	if maxSkew <= 0 {
		maxSkew = 30 * time.Second
	}
	return &Verifier{keys: keys, maxSkew: maxSkew, now: time.Now, logger: logger}
}

// Verify checks the signature headers on r.
func (v *Verifier) Verify(r *http.Request) error {
	keyID := r.Header.Get(HeaderKey)
	ts := r.Header.Get(HeaderTimestamp)
	sig := r.Header.Get(HeaderSignature)
	if keyID == "" || ts == "" || sig == "" {
		return ErrMissingHeaders
	}

	pub, ok := v.keys[keyID]
	if !ok {
		return ErrUnknownKey
	}

	timestampMs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("auth: bad timestamp: %w", err)
	}
	skew := v.now().Sub(time.UnixMilli(timestampMs))
	if skew < -v.maxSkew || skew > v.maxSkew {
		return ErrStale
	}

	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return ErrBadSignature
	}
	if err := rsa.VerifyPSS(pub, crypto.SHA256, digest(timestampMs, r.Method, r.URL.Path), raw, pssOptions); err != nil {
		return ErrBadSignature
	}
	return nil
}

// Middleware rejects unsigned or badly signed requests with 401.
func (v *Verifier) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := v.Verify(r); err != nil {
			v.logger.Warn("rejected request", "path", r.URL.Path, "key", r.Header.Get(HeaderKey), "error", err)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
