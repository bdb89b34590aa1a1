// Package signing implements the HMAC helper behind expiring local media
// URLs. When no object storage is configured the API serves artifacts itself,
// and signed query parameters keep those links scoped and short-lived.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Signer generates and validates HMAC based signatures over artifact names.
type Signer struct {
	secret []byte
}

// NewSigner creates a Signer.
func NewSigner(secret []byte) *Signer {
	return &Signer{secret: secret}
}

// Sign returns the hex signature for an artifact name and expiry.
func (s *Signer) Sign(artifact string, expiresUnix int64) string {
	mac := hmac.New(sha256.New, s.secret)
	payload := fmt.Sprintf("%s:%d", artifact, expiresUnix)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// SignedQuery builds the query string appended to a local media URL.
func (s *Signer) SignedQuery(artifact string, ttl time.Duration) string {
	expires := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("expires=%d&sig=%s", expires, s.Sign(artifact, expires))
}

// Validate checks a signature and that the expiry has not passed.
func (s *Signer) Validate(artifact, expires, signature string) bool {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return false
	}
	if time.Now().Unix() > exp {
		return false
	}
	expected := s.Sign(artifact, exp)
	return hmac.Equal([]byte(expected), []byte(signature))
}
