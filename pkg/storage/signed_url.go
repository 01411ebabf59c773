package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidToken covers malformed tokens and signature mismatches.
	ErrInvalidToken = errors.New("invalid signed token")
	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("signed token expired")
)

// SignedURLSigner issues HMAC-SHA256 tokens granting time-limited access to one stored file.
// Token layout: subject.expiryUnix.base64(ref).hexSignature
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer. ttl defaults to 30 minutes.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate signs a token binding subject (the owning record) to ref.
func (s *SignedURLSigner) Generate(subject, ref string) (string, time.Time, error) {
	if subject == "" || ref == "" {
		return "", time.Time{}, errors.New("subject and ref are required")
	}
	if strings.Contains(subject, ".") {
		return "", time.Time{}, errors.New("subject must not contain '.'")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, errors.New("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedRef := base64.RawURLEncoding.EncodeToString([]byte(ref))
	token := strings.Join([]string{subject, ts, encodedRef, s.sign(subject, ts, encodedRef)}, ".")
	return token, expiresAt, nil
}

// Parse verifies the signature first, then the expiry, and returns the bound subject and ref.
func (s *SignedURLSigner) Parse(token string) (subject, ref string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 || len(s.secret) == 0 {
		return "", "", ErrInvalidToken
	}
	subject, ts, encodedRef, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.sign(subject, ts, encodedRef)), []byte(signature)) {
		return "", "", ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", ErrInvalidToken
	}
	rawRef, err := base64.RawURLEncoding.DecodeString(encodedRef)
	if err != nil || len(rawRef) == 0 {
		return "", "", ErrInvalidToken
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", "", ErrTokenExpired
	}
	return subject, string(rawRef), nil
}

func (s *SignedURLSigner) sign(subject, ts, encodedRef string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(subject + "|" + ts + "|" + encodedRef))
	return hex.EncodeToString(mac.Sum(nil))
}
