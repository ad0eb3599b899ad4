package backend

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// Header names carried on every signed request.
const (
	HeaderKey       = "X-PERP-KEY"
	HeaderSign      = "X-PERP-SIGN"
	HeaderTimestamp = "X-PERP-TIMESTAMP"
	HeaderSession   = "X-PERP-SESSION"
)

// Signer signs backend requests with HMAC-SHA256.
type Signer struct {
	apiKey    string
	apiSecret string
	now       func() time.Time
}

// NewSigner creates a new Signer instance
func NewSigner(apiKey, apiSecret string) *Signer {
	return &Signer{apiKey: apiKey, apiSecret: apiSecret, now: time.Now}
}

// GenerateHeaders returns the auth headers for a request.
// Payload: timestamp(ms) + method + path + body
func (s *Signer) GenerateHeaders(method, path, body string) map[string]string {
	timestamp := fmt.Sprintf("%d", s.now().UnixMilli())
	payload := timestamp + method + path + body

	return map[string]string{
		HeaderKey:       s.apiKey,
		HeaderSign:      computeHmacSha256(payload, s.apiSecret),
		HeaderTimestamp: timestamp,
		"Content-Type":  "application/json",
	}
}

// Verify checks a signature produced by GenerateHeaders.
func (s *Signer) Verify(method, path, body, timestamp, sign string) bool {
	expected := computeHmacSha256(timestamp+method+path+body, s.apiSecret)
	return hmac.Equal([]byte(expected), []byte(sign))
}

// sessionProof proves possession of the private key without sending it.
func sessionProof(privateKey, wallet, timestamp string) string {
	return computeHmacSha256(wallet+timestamp, privateKey)
}

func computeHmacSha256(message string, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
