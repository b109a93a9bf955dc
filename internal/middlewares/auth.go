package middlewares

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Gopher0727/ProjectChat/internal/authz"
	"github.com/Gopher0727/ProjectChat/middleware/jwt"
	logger "github.com/Gopher0727/ProjectChat/middleware/log"
)

// TokenParser 解析 JWT
type TokenParser interface {
	ParseToken(token string) (*jwt.Claims, error)
}

// ProfileSyncer 缓存 token 中的显示名
type ProfileSyncer interface {
	Sync(ctx context.Context, userID int64, displayName string)
}

// AuthMiddleware JWT 认证中间件。
// 认证通过后 gin 上下文带 user_id / display_name，请求上下文带 authz.Principal。
func AuthMiddleware(tokens TokenParser, profiles ProfileSyncer) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		// WebSocket 握手无法带自定义头，允许 query 传 token
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			abortUnauthorized(c, "missing authentication token")
			return
		}

		claims, err := tokens.ParseToken(token)
		if err != nil {
			msg := "invalid token"
			if errors.Is(err, jwt.ErrExpiredToken) {
				msg = "token has expired"
			}
			abortUnauthorized(c, msg)
			return
		}
		if claims.UserID == 0 {
			abortUnauthorized(c, "token has no subject")
			return
		}

		ctx := authz.WithPrincipal(c.Request.Context(), &authz.Principal{
			UserID:      claims.UserID,
			DisplayName: claims.DisplayName,
			Permissions: claims.Permissions,
		})
		ctx = logger.WithUserID(ctx, claims.UserID)
		c.Request = c.Request.WithContext(ctx)

		c.Set("user_id", claims.UserID)
		c.Set("display_name", claims.DisplayName)

		if profiles != nil {
			profiles.Sync(ctx, claims.UserID, claims.DisplayName)
		}
		c.Next()
	}
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": msg,
	})
}
