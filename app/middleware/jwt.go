package middleware

import (
	"net/http"
	"strings"

	"torrent-monitor/app/auth"

	"github.com/gin-gonic/gin"
)

// JWTAuth 校验 Bearer 令牌，并把用户信息写入上下文
func JWTAuth(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, "缺少 Authorization 头")
			return
		}

		scheme, token, found := strings.Cut(authHeader, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
			abort(c, "Authorization 格式必须为 Bearer {token}")
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			abort(c, "无效的令牌: "+err.Error())
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("username", claims.Username)
		c.Next()
	}
}

func abort(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    401,
		"message": message,
		"data":    nil,
	})
}
