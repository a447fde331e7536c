package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/logger"
)

func abortWithOpenAiMessage(c *gin.Context, statusCode int, message string, code ...string) {
	codeStr := ""
	if len(code) > 0 {
		codeStr = code[0]
	}
	// 先记录真实错误日志
	logger.LogError(c.Request.Context(), fmt.Sprintf("%s | %s", c.ClientIP(), message))
	c.JSON(statusCode, gin.H{
		"error": gin.H{
			"message": common.MessageWithRequestId(message, c.GetString(common.RequestIdKey)),
			"type":    "sora2api_error",
			"code":    codeStr,
		},
	})
	c.Abort()
}
