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

var (
	ErrInvalidToken = errors.New("invalid share token")
	ErrTokenExpired = errors.New("share token expired")
)

// SharedObject is the content a share token grants access to.
type SharedObject struct {
	Subject   string
	Name      string
	ExpiresAt time.Time
}

// SignedURLSigner creates and validates signed download tokens.
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

// Generate returns a signed token binding subject (a document id) to a stored file name.
func (s *SignedURLSigner) Generate(subject, name string) (string, time.Time, error) {
	if subject == "" || name == "" {
		return "", time.Time{}, fmt.Errorf("subject and name required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	encodedName := base64.RawURLEncoding.EncodeToString([]byte(name))
	token := strings.Join([]string{subject, ts, encodedName, s.sign(subject, ts, encodedName)}, ".")
	return token, expiresAt, nil
}

// Parse validates a token and returns the object it references.
func (s *SignedURLSigner) Parse(token string) (SharedObject, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return SharedObject{}, ErrInvalidToken
	}
	subject, ts, encodedName, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.sign(subject, ts, encodedName)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return SharedObject{}, ErrInvalidToken
	}

	rawName, err := base64.RawURLEncoding.DecodeString(encodedName)
	if err != nil {
		return SharedObject{}, ErrInvalidToken
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return SharedObject{}, ErrInvalidToken
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return SharedObject{}, ErrTokenExpired
	}
	return SharedObject{Subject: subject, Name: string(rawName), ExpiresAt: expiresAt}, nil
}

func (s *SignedURLSigner) sign(subject, ts, encodedName string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(subject + "|" + ts + "|" + encodedName))
	return hex.EncodeToString(mac.Sum(nil))
}
