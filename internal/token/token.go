// Package token issues and verifies cache tokens: signed snapshots of a
// resolved session that let later requests skip session resolution.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pagetrail/internal/db"
)

// HeaderName carries the cache token on collect requests.
const HeaderName = "X-Pagetrail-Cache"

// Claims embeds the session snapshot.
type Claims struct {
	Session db.Session `json:"session"`
	jwt.RegisteredClaims
}

// Codec signs with HS256 using the shared application secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec builds a codec. ttl <= 0 issues tokens without an expiry.
func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source used for issuing and verifying.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	if now != nil {
		c.now = now
	}
	return c
}

// Issue signs a token for the session.
func (c *Codec) Issue(session *db.Session) (string, error) {
	if session == nil || session.ID == "" {
		return "", errors.New("session is required")
	}

	now := c.now()
	claims := &Claims{
		Session: *session,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if c.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign cache token: %w", err)
	}
	return signed, nil
}

// Parse verifies raw and returns the embedded session. Every failure
// (empty, malformed, bad signature, expired) yields nil, false.
func (c *Codec) Parse(raw string) (*db.Session, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !token.Valid || claims.Session.ID == "" {
		return nil, false
	}

	session := claims.Session
	return &session, true
}
