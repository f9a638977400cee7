package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/adboard/adboard/pkg/config"
	"github.com/adboard/adboard/pkg/response"
)

// RequireUser resolves the caller identity from the X-User-ID header and
// stores it in both gin.Context and the request context (key: "user_id").
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader("X-User-ID"))
		if userID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.ErrorT(response.APIResponseCodeBadRequest, "missing X-User-ID"))
			return
		}
		c.Set("user_id", userID)
		ctx := context.WithValue(c.Request.Context(), "user_id", userID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAdmin guards admin routes with the static bearer token from config.
func RequireAdmin(cfg *cfgpkg.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if cfg.AdminToken == "" || token != cfg.AdminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				response.ErrorT(response.APIResponseCodeBadRequest, "unauthorized"))
			return
		}
		c.Next()
	}
}
