package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hancat/sora2api/common"
)

const (
	loggerDEBUG = "DEBUG"
	loggerINFO  = "INFO"
	loggerWarn  = "WARN"
	loggerError = "ERR"
)

func LogDebug(ctx context.Context, args ...interface{}) {
	if common.DebugEnabled {
		logHelper(ctx, loggerDEBUG, sprint(args...))
	}
}

func LogInfo(ctx context.Context, args ...interface{}) {
	logHelper(ctx, loggerINFO, sprint(args...))
}

func LogWarn(ctx context.Context, args ...interface{}) {
	logHelper(ctx, loggerWarn, sprint(args...))
}

func LogError(ctx context.Context, args ...interface{}) {
	logHelper(ctx, loggerError, sprint(args...))
}

func sprint(args ...interface{}) string {
	return strings.TrimSuffix(fmt.Sprintln(args...), "\n")
}

func logHelper(ctx context.Context, level string, msg string) {
	writer := gin.DefaultErrorWriter
	if level == loggerINFO || level == loggerDEBUG {
		writer = gin.DefaultWriter
	}
	id := ""
	if ctx != nil {
		if v := ctx.Value(common.RequestIdKey); v != nil {
			id, _ = v.(string)
		}
	}
	now := time.Now()
	_, _ = fmt.Fprintf(writer, "[%s] %v | %s | %s \n", level, now.Format("2006/01/02 - 15:04:05"), id, msg)
}
