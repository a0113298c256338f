package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrAuthRequired is returned when a connection presents no valid
// credential. The connection is failed before any topic routing occurs.
var ErrAuthRequired = errors.New("AUTH_REQUIRED")

// TokenVerifier validates the bearer credential issued by the login
// service: base64url(address|expiresUnix) + "." + base64url(hmac-sha256)
// over that payload with the shared secret.
type TokenVerifier struct {
	secret []byte
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret)}
}

// Sign issues a credential for an address. The gateway only verifies;
// signing exists for the login boundary and tests.
func (v *TokenVerifier) Sign(address string, expires time.Time) string {
	payload := fmt.Sprintf("%s|%d", strings.ToLower(address), expires.Unix())
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	return encoded + "." + v.signature(encoded)
}

// Verify checks the credential and returns the authenticated address.
func (v *TokenVerifier) Verify(token string, now time.Time) (string, error) {
	encoded, sig, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || encoded == "" || sig == "" {
		return "", ErrAuthRequired
	}
	if !hmac.Equal([]byte(v.signature(encoded)), []byte(sig)) {
		return "", ErrAuthRequired
	}

	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrAuthRequired
	}
	address, expiresStr, ok := strings.Cut(string(raw), "|")
	if !ok || address == "" {
		return "", ErrAuthRequired
	}
	expires, err := strconv.ParseInt(expiresStr, 10, 64)
	if err != nil {
		return "", ErrAuthRequired
	}
	if now.Unix() > expires {
		return "", ErrAuthRequired
	}
	return address, nil
}

func (v *TokenVerifier) signature(payload string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
