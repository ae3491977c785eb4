package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	CookieName = "session"
	cookieTTL  = 7 * 24 * time.Hour
)

// Signer signs and verifies session cookie values with HMAC-SHA256.
type Signer struct {
	secret []byte
	secure bool
}

func NewSigner(secret string, secure bool) *Signer {
	return &Signer{secret: []byte(secret), secure: secure}
}

// Sign creates a signed cookie value in the format "value|signature".
func (s *Signer) Sign(value string) string {
	return fmt.Sprintf("%s|%s", base64.URLEncoding.EncodeToString([]byte(value)), base64.URLEncoding.EncodeToString(s.mac(value)))
}

// Verify checks the signed value and returns the original value.
func (s *Signer) Verify(signedValue string) (string, error) {
	parts := strings.Split(signedValue, "|")
	if len(parts) != 2 {
		return "", errors.New("invalid cookie format")
	}

	valueBytes, err := base64.URLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", errors.New("invalid value encoding")
	}
	value := string(valueBytes)

	signature, err := base64.URLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", errors.New("invalid signature encoding")
	}

	if !hmac.Equal(signature, s.mac(value)) {
		return "", errors.New("invalid signature")
	}
	return value, nil
}

func (s *Signer) mac(value string) []byte {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(value))
	return mac.Sum(nil)
}

// SessionCookie returns the cookie that logs userID in.
func (s *Signer) SessionCookie(userID string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    s.Sign(userID),
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(cookieTTL),
	}
}

// ClearCookie returns a cookie that removes the session.
func (s *Signer) ClearCookie() *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	}
}
