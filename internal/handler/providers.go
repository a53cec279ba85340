package handler

import (
	"context"
	"net/http"

	"github.com/pagetrail/internal/db"
	"github.com/pagetrail/internal/detect"
)

type sessionFinder interface {
	FindSession(ctx context.Context, r *http.Request, body *detect.CollectBody) (*db.Session, error)
}

type eventRecorder interface {
	RecordEvent(ctx context.Context, session *db.Session, p *detect.Payload) (*db.WebsiteEvent, error)
}

type tokenIssuer interface {
	Issue(session *db.Session) (string, error)
}

type teamJoiner interface {
	Join(ctx context.Context, accessCode string, userID uint) (*db.Team, error)
}

type authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*db.User, error)
	GetUser(ctx context.Context, id uint) (*db.User, error)
}
