package controller

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"github.com/shopspring/decimal"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/model"
)

// GetStats 对外的池子总览，/v1/stats
func GetStats(c *gin.Context) {
	snap, err := accountCache.Snapshot()
	if err != nil {
		common.ApiError(c, err)
		return
	}
	totals, err := model.SumAccountStats()
	if err != nil {
		common.ApiError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": gin.H{
			"total_accounts":  len(snap.All),
			"active_accounts": len(snap.Active),
			"today_images":    totals.TodayImageCount,
			"total_images":    totals.ImageCount,
			"today_videos":    totals.TodayVideoCount,
			"total_videos":    totals.VideoCount,
			"today_errors":    totals.TodayErrorCount,
			"total_errors":    totals.ErrorCount,
		},
	})
}

// successRate 计算历史成功率，保留两位小数
func successRate(totals *model.StatsTotals) float64 {
	success := int64(totals.ImageCount + totals.VideoCount)
	total := success + int64(totals.ErrorCount)
	if total == 0 {
		return 100
	}
	rate := decimal.NewFromInt(success).
		Div(decimal.NewFromInt(total)).
		Mul(decimal.NewFromInt(100)).
		Round(2)
	f, _ := rate.Float64()
	return f
}

// GetStatus 公开的存活探针
func GetStatus(c *gin.Context) {
	common.ApiSuccess(c, gin.H{
		"version":    common.Version,
		"start_time": common.StartTime,
	})
}

// GetSystemStatus 管理端进程与宿主机概况
func GetSystemStatus(c *gin.Context) {
	totals, err := model.SumAccountStats()
	if err != nil {
		common.ApiError(c, err)
		return
	}
	imageInFlight, videoInFlight := concurrencyMgr.Totals()

	cpuPercent := float64(0)
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		cpuPercent = percents[0]
	}
	memPercent := float64(0)
	memUsed := uint64(0)
	memTotal := uint64(0)
	if vm, err := mem.VirtualMemory(); err == nil {
		memPercent = vm.UsedPercent
		memUsed = vm.Used
		memTotal = vm.Total
	}

	common.ApiSuccess(c, gin.H{
		"version":         common.Version,
		"start_time":      common.StartTime,
		"goroutines":      runtime.NumGoroutine(),
		"cpu_percent":     cpuPercent,
		"mem_percent":     memPercent,
		"mem_used":        memUsed,
		"mem_total":       memTotal,
		"image_in_flight": imageInFlight,
		"video_in_flight": videoInFlight,
		"success_rate":    successRate(totals),
	})
}
