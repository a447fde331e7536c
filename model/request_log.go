package model

import (
	"time"

	"github.com/bytedance/gopkg/util/gopool"

	"github.com/hancat/sora2api/common"
)

// RequestLog 一次上游调用的审计记录，body 字段仅在 debug 模式下保留
type RequestLog struct {
	Id           int       `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	AccountId    int       `json:"account_id" gorm:"index"`
	Operation    string    `json:"operation" gorm:"size:64;index"`
	TaskId       string    `json:"task_id" gorm:"size:128"`
	StatusCode   int       `json:"status_code"`
	DurationMs   int64     `json:"duration_ms"`
	RequestBody  string    `json:"request_body" gorm:"type:text"`
	ResponseBody string    `json:"response_body" gorm:"type:text"`
	Error        string    `json:"error" gorm:"size:1024"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}

// RecordRequestLog persists asynchronously; logging must never slow a request.
func RecordRequestLog(entry *RequestLog) {
	if entry == nil {
		return
	}
	if !common.DebugEnabled {
		entry.RequestBody = ""
		entry.ResponseBody = ""
	}
	gopool.Go(func() {
		if err := DB.Create(entry).Error; err != nil {
			common.SysError("failed to record request log: " + err.Error())
		}
	})
}

func GetRequestLogsPaged(startIdx int, num int) ([]*RequestLog, int64, error) {
	var logs []*RequestLog
	var total int64
	if err := DB.Model(&RequestLog{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := DB.Order("id desc").Limit(num).Offset(startIdx).Find(&logs).Error
	return logs, total, err
}
