package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pagetrail/internal/db"
	"github.com/pagetrail/internal/detect"
	applog "github.com/pagetrail/internal/logger"
	"github.com/pagetrail/internal/service"
)

type sessionFinderStub struct {
	session *db.Session
	err     error
	calls   int
	body    *detect.CollectBody
}

func (s *sessionFinderStub) FindSession(_ context.Context, _ *http.Request, body *detect.CollectBody) (*db.Session, error) {
	s.calls++
	s.body = body
	return s.session, s.err
}

type eventRecorderStub struct {
	calls   int
	err     error
	payload *detect.Payload
}

func (e *eventRecorderStub) RecordEvent(_ context.Context, session *db.Session, p *detect.Payload) (*db.WebsiteEvent, error) {
	e.calls++
	e.payload = p
	if e.err != nil {
		return nil, e.err
	}
	return &db.WebsiteEvent{ID: "event-1", SessionID: session.ID}, nil
}

type tokenIssuerStub struct {
	err error
}

func (t *tokenIssuerStub) Issue(session *db.Session) (string, error) {
	if t.err != nil {
		return "", t.err
	}
	return "token-for-" + session.ID, nil
}

type teamJoinerStub struct {
	team   *db.Team
	err    error
	userID uint
	code   string
}

func (t *teamJoinerStub) Join(_ context.Context, accessCode string, userID uint) (*db.Team, error) {
	t.code = accessCode
	t.userID = userID
	return t.team, t.err
}

type authenticatorStub struct {
	user *db.User
}

func (a *authenticatorStub) Authenticate(_ context.Context, username, password string) (*db.User, error) {
	if a.user == nil || username != a.user.Username || password != "secret" {
		return nil, service.ErrInvalidCredentials
	}
	return a.user, nil
}

func (a *authenticatorStub) GetUser(_ context.Context, id uint) (*db.User, error) {
	if a.user == nil || a.user.ID != id {
		return nil, service.ErrUserNotFound
	}
	return a.user, nil
}

type handlerStubs struct {
	sessions *sessionFinderStub
	events   *eventRecorderStub
	tokens   *tokenIssuerStub
	teams    *teamJoinerStub
	users    *authenticatorStub
}

func newHandlerStubs() *handlerStubs {
	user := &db.User{Username: "alice", Role: db.RoleUser}
	user.ID = 7
	return &handlerStubs{
		sessions: &sessionFinderStub{},
		events:   &eventRecorderStub{},
		tokens:   &tokenIssuerStub{},
		teams:    &teamJoinerStub{},
		users:    &authenticatorStub{user: user},
	}
}

func (s *handlerStubs) api() *API {
	return NewAPI(s.sessions, s.events, s.tokens, s.teams, s.users, applog.Discard())
}

func newTestEngine(api *API) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(sessions.Sessions("pagetrail_session", cookie.NewStore([]byte("test-secret"))))

	r.POST("/api/send", api.Send)
	r.POST("/api/auth/login", api.Login)
	r.POST("/api/auth/logout", api.Logout)

	auth := r.Group("/api")
	auth.Use(AuthRequired())
	auth.POST("/teams/join", api.JoinTeam)
	auth.GET("/auth/me", api.Me)
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any, mutate func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if raw, ok := body.(string); ok {
			buf.WriteString(raw)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if mutate != nil {
		mutate(req)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}
