package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hancat/sora2api/common"
)

// 对外的模型名只是两种生成形态的别名
var supportedModels = []string{"sora-2", "sora-2-image"}

func ListModels(c *gin.Context) {
	data := make([]gin.H, 0, len(supportedModels))
	for _, m := range supportedModels {
		data = append(data, gin.H{
			"id":       m,
			"object":   "model",
			"created":  common.StartTime,
			"owned_by": common.SystemName,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   data,
	})
}
