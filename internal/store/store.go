// Package store is the persistent-storage side of session resolution.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/pagetrail/internal/db"
	"gorm.io/gorm"
)

// CreateResult is the outcome of an insert that may lose a race on its primary key.
type CreateResult int

const (
	Created CreateResult = iota + 1
	AlreadyExists
)

func (r CreateResult) String() string {
	switch r {
	case Created:
		return "created"
	case AlreadyExists:
		return "already_exists"
	default:
		return "unknown"
	}
}

// Store reads websites and sessions and inserts sessions.
type Store struct {
	db *gorm.DB
}

// New wraps a gorm connection opened with TranslateError enabled.
func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

// GetWebsite returns nil, nil when no row matches. Soft-deleted rows are returned as-is.
func (s *Store) GetWebsite(ctx context.Context, id string) (*db.Website, error) {
	var website db.Website
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&website).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get website %s: %w", id, err)
	}
	return &website, nil
}

// GetSession returns nil, nil when no row matches.
func (s *Store) GetSession(ctx context.Context, id string) (*db.Session, error) {
	var session db.Session
	err := s.db.WithContext(ctx).Where("id = ?", id).Take(&session).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return &session, nil
}

// CreateSession inserts the session. A primary-key collision reports
// AlreadyExists instead of an error.
func (s *Store) CreateSession(ctx context.Context, session *db.Session) (CreateResult, error) {
	err := s.db.WithContext(ctx).Create(session).Error
	switch {
	case err == nil:
		return Created, nil
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return AlreadyExists, nil
	default:
		return 0, fmt.Errorf("create session %s: %w", session.ID, err)
	}
}
