package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token errors.
var (
	ErrTokenMalformed = errors.New("invalid token format")
	ErrTokenSignature = errors.New("invalid token signature")
	ErrTokenExpired   = errors.New("token expired")
)

// SignedURLSigner creates and validates signed attachment download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a token binding the owning request id to a stored reference.
// Token layout: ownerID.expiresUnix.base64(ref).hexHMAC
func (s *SignedURLSigner) Generate(ownerID, ref string) (string, time.Time, error) {
	if ownerID == "" || ref == "" {
		return "", time.Time{}, fmt.Errorf("owner id and reference required")
	}
	if strings.Contains(ownerID, ".") {
		return "", time.Time{}, fmt.Errorf("owner id must not contain '.'")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedRef := base64.RawURLEncoding.EncodeToString([]byte(ref))
	token := strings.Join([]string{ownerID, ts, encodedRef, s.sign(ownerID, ts, encodedRef)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the owner id and reference it carries.
func (s *SignedURLSigner) Parse(token string) (ownerID, ref string, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return "", "", ErrTokenMalformed
	}
	ownerID, ts, encodedRef, signature := parts[0], parts[1], parts[2], parts[3]

	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return "", "", ErrTokenMalformed
	}
	rawRef, err := base64.RawURLEncoding.DecodeString(encodedRef)
	if err != nil {
		return "", "", ErrTokenMalformed
	}
	if !hmac.Equal([]byte(s.sign(ownerID, ts, encodedRef)), []byte(signature)) {
		return "", "", ErrTokenSignature
	}
	if s.now().After(time.Unix(expUnix, 0)) {
		return "", "", ErrTokenExpired
	}
	return ownerID, string(rawRef), nil
}

func (s *SignedURLSigner) sign(ownerID, ts, encodedRef string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(ownerID + "|" + ts + "|" + encodedRef))
	return hex.EncodeToString(mac.Sum(nil))
}
