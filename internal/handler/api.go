package handler

import (
	"log/slog"

	applog "github.com/pagetrail/internal/logger"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	sessions sessionFinder
	events   eventRecorder
	tokens   tokenIssuer
	teams    teamJoiner
	users    authenticator
	botCheck bool
	logger   *slog.Logger
}

// NewAPI constructs a handler set with shared services. Bot filtering is on by default.
func NewAPI(sessions sessionFinder, events eventRecorder, tokens tokenIssuer, teams teamJoiner, users authenticator, logger *slog.Logger) *API {
	if logger == nil {
		logger = applog.WithComponent("handler")
	}
	return &API{
		sessions: sessions,
		events:   events,
		tokens:   tokens,
		teams:    teams,
		users:    users,
		botCheck: true,
		logger:   logger,
	}
}

// WithBotCheck toggles dropping collect requests from crawlers.
func (a *API) WithBotCheck(enabled bool) *API {
	a.botCheck = enabled
	return a
}
