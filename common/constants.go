package common

import (
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

var StartTime = time.Now().Unix() // unit: second
var Version = "v0.3.6"
var SystemName = "sora2api"

// SessionSecret 不配置时每次启动随机生成，重启后管理端会话失效
var SessionSecret = GetEnvOrDefaultString("SESSION_SECRET", uuid.New().String())

var DebugEnabled = strings.ToLower(os.Getenv("DEBUG")) == "true"

// ServerAddress 对外地址，用于拼接本地缓存文件的下载链接
var ServerAddress = "http://localhost:8899"

const RequestIdKey = "X-Sora2api-Request-Id"

const (
	ItemsPerPage    = 10
	MaxItemsPerPage = 100
)

// 连续失败自动停用阈值，可被 setting 覆盖
var AccountErrorBanThreshold = 3
