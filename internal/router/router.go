package router

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/pagetrail/internal/handler"
	applog "github.com/pagetrail/internal/logger"
	"github.com/pagetrail/internal/token"
)

const sessionCookieName = "pagetrail_session"

// SetupRouter 配置 Gin 引擎和路由
func SetupRouter(api *handler.API, sessionSecret string, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = applog.WithComponent("http")
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Recovery(), requestLogger(logger))

	// 配置会话中间件
	store := cookie.NewStore([]byte(sessionSecret))
	store.Options(sessions.Options{Path: "/", HttpOnly: true, SameSite: http.SameSiteLaxMode, MaxAge: 86400 * 7})
	r.Use(sessions.Sessions(sessionCookieName, store))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	apiGroup := r.Group("/api")
	{
		// 追踪脚本跨域上报
		collect := apiGroup.Group("")
		collect.Use(collectCORS())
		collect.POST("/send", api.Send)
		collect.OPTIONS("/send", handler.PreflightSend)

		apiGroup.POST("/auth/login", api.Login)
		apiGroup.POST("/auth/logout", api.Logout)

		auth := apiGroup.Group("")
		auth.Use(handler.AuthRequired())
		{
			auth.POST("/teams/join", api.JoinTeam)
			auth.GET("/auth/me", api.Me)
		}
	}

	return r
}

func collectCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type, "+token.HeaderName)
		h.Set("Access-Control-Max-Age", "86400")
		c.Next()
	}
}

// requestLogger 通过 slog 记录每个请求。
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", attrs...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", attrs...)
		default:
			logger.Info("request", attrs...)
		}
	}
}
