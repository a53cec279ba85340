package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pagetrail/internal/service"
)

type joinTeamRequest struct {
	AccessCode string `json:"accessCode"`
}

// JoinTeam 通过邀请码加入团队
func (a *API) JoinTeam(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		respondError(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req joinTeamRequest
	if !bindJSON(c, &req, "invalid join payload") {
		return
	}

	team, err := a.teams.Join(c.Request.Context(), req.AccessCode, userID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTeamNotFound):
			respondError(c, http.StatusNotFound, "team-not-found")
		case errors.Is(err, service.ErrAccessCodeMiss):
			respondError(c, http.StatusBadRequest, "access code is required")
		default:
			a.logger.Error("join team failed", "user_id", userID, "error", err)
			respondError(c, http.StatusInternalServerError, "internal-error")
		}
		return
	}

	c.JSON(http.StatusOK, team)
}
