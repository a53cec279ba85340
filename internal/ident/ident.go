// Package ident derives stable identifiers and secrets for visitor tracking.
package ident

import (
	"crypto/sha512"
	"encoding/hex"
	"strings"
	"time"

	"github.com/google/uuid"
)

// partSeparator keeps ("ab","c") and ("a","bc") from hashing to the same value.
const partSeparator = "\x00"

// Hash returns the hex SHA-512 of the joined parts.
func Hash(parts ...string) string {
	sum := sha512.Sum512([]byte(strings.Join(parts, partSeparator)))
	return hex.EncodeToString(sum[:])
}

// UUID maps the parts plus salt to a name-based (v5) UUID. Identical inputs
// always produce the same id.
func UUID(salt string, parts ...string) string {
	all := make([]string, 0, len(parts)+1)
	all = append(append(all, parts...), salt)
	name := Hash(all...)
	return uuid.NewSHA1(uuid.NameSpaceDNS, []byte(name)).String()
}

// canonicalLen is the dashed 8-4-4-4-12 form. uuid.Validate alone also
// accepts braced, urn:uuid: and undashed ids.
const canonicalLen = 36

// Valid reports whether id is a UUID in canonical dashed form.
func Valid(id string) bool {
	return len(id) == canonicalLen && uuid.Validate(id) == nil
}

// Secret derives the shared signing secret. appSecret wins; the database
// url is the fallback so a zero-config install still gets a stable value.
func Secret(appSecret, databaseURL string) string {
	if s := strings.TrimSpace(appSecret); s != "" {
		return Hash(s)
	}
	return Hash(strings.TrimSpace(databaseURL))
}

// Salter yields the salt mixed into session ids.
type Salter struct {
	secret  string
	monthly bool
	now     func() time.Time
}

// NewSalter returns a fixed salt, or one that rotates at the start of every UTC month.
func NewSalter(secret string, monthly bool) *Salter {
	return &Salter{secret: secret, monthly: monthly, now: time.Now}
}

// WithClock replaces the time source.
func (s *Salter) WithClock(now func() time.Time) *Salter {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Salter) Salt() string {
	if !s.monthly {
		return Hash(s.secret)
	}
	t := s.now().UTC()
	monthStart := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Hash(s.secret, monthStart.Format(time.RFC3339))
}
