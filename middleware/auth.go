package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/hancat/sora2api/setting"
)

// ApiKeyAuth /v1 接口的 bearer 鉴权。未配置 api_key 时放行所有请求
func ApiKeyAuth() func(c *gin.Context) {
	return func(c *gin.Context) {
		expected := setting.ApiKey()
		if expected == "" {
			c.Next()
			return
		}
		key := strings.TrimPrefix(c.Request.Header.Get("Authorization"), "Bearer ")
		if key == "" {
			key = c.Request.Header.Get("X-API-Key")
		}
		if key != expected {
			abortWithOpenAiMessage(c, http.StatusUnauthorized, "无效的 API Key")
			return
		}
		c.Next()
	}
}

// AdminAuth 管理接口的会话鉴权
func AdminAuth() func(c *gin.Context) {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		username := session.Get("username")
		if username == nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "无权进行此操作，未登录",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
