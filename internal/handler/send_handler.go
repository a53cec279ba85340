package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pagetrail/internal/detect"
	"github.com/pagetrail/internal/service"
)

const (
	collectTypeEvent    = "event"
	collectTypeIdentify = "identify"
)

// Send 处理追踪脚本上报：解析会话、记录事件，并返回新的缓存令牌。
func (a *API) Send(c *gin.Context) {
	// 缺失或无法解析的请求体交给 FindSession，结果为无会话
	body := detect.ReadCollectBody(c.Request)
	if body != nil {
		switch body.Type {
		case "", collectTypeEvent, collectTypeIdentify:
		default:
			respondError(c, http.StatusBadRequest, "unknown-type")
			return
		}
	}

	if a.botCheck && detect.IsBot(c.Request.UserAgent()) {
		c.JSON(http.StatusOK, gin.H{"beep": "boop"})
		return
	}

	ctx := c.Request.Context()
	session, err := a.sessions.FindSession(ctx, c.Request, body)
	if err != nil {
		if errors.Is(err, service.ErrWebsiteNotFound) {
			respondError(c, http.StatusNotFound, "website-not-found")
			return
		}
		a.logger.Error("find session failed", "error", err)
		respondError(c, http.StatusInternalServerError, "internal-error")
		return
	}
	if session == nil {
		c.Status(http.StatusNoContent)
		return
	}

	if body != nil && body.Type != collectTypeIdentify {
		if _, err := a.events.RecordEvent(ctx, session, body.Payload); err != nil {
			if errors.Is(err, service.ErrInvalidEvent) {
				respondError(c, http.StatusBadRequest, "invalid-event")
				return
			}
			a.logger.Error("record event failed", "session_id", session.ID, "error", err)
			respondError(c, http.StatusInternalServerError, "internal-error")
			return
		}
	}

	cacheToken, err := a.tokens.Issue(session)
	if err != nil {
		a.logger.Error("issue cache token failed", "session_id", session.ID, "error", err)
		respondError(c, http.StatusInternalServerError, "internal-error")
		return
	}
	c.String(http.StatusOK, cacheToken)
}

// PreflightSend 允许跨域的追踪脚本发送 JSON。
func PreflightSend(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
