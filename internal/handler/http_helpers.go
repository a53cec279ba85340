package handler

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionUserIDKey   = "user_id"
	sessionUsernameKey = "username"
)

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// currentUserID 读取登录会话中的用户 ID。
func currentUserID(c *gin.Context) (uint, bool) {
	switch v := sessions.Default(c).Get(sessionUserIDKey).(type) {
	case uint:
		return v, v != 0
	case int:
		return uint(v), v > 0
	default:
		return 0, false
	}
}
