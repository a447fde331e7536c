package middleware

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/constant"
	"github.com/hancat/sora2api/logger"
)

// AccessLog 每个请求打一行访问日志，生成类请求会带上生成类型和任务 id
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		common.SetContextKey(c, constant.ContextKeyRequestStartTime, int(time.Now().UnixMilli()))
		c.Next()
		start := common.GetContextKeyInt(c, constant.ContextKeyRequestStartTime)
		elapsed := time.Now().UnixMilli() - int64(start)
		line := fmt.Sprintf("%s %s | %d | %dms", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), elapsed)
		if kind := common.GetContextKeyString(c, constant.ContextKeyGenerationKind); kind != "" {
			line += " | kind=" + kind
		}
		if taskId := common.GetContextKeyString(c, constant.ContextKeyTaskId); taskId != "" {
			line += " | task=" + taskId
		}
		logger.LogInfo(c.Request.Context(), line)
	}
}
