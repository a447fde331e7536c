package controller

import (
	"math/rand"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/model"
)

// GetInviteCode 随机挑一个还有剩余名额的 Sora2 邀请码
func GetInviteCode(c *gin.Context) {
	snap, err := accountCache.Snapshot()
	if err != nil {
		common.ApiError(c, err)
		return
	}
	candidates := lo.Filter(snap.All, func(a *model.Account, _ int) bool {
		if !a.IsActive || !a.SupportsSora2() {
			return false
		}
		if a.Sora2InviteCode == nil || *a.Sora2InviteCode == "" {
			return false
		}
		return a.Sora2TotalCount-a.Sora2RedeemedCount > 0
	})
	if len(candidates) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"message": "No available invite codes with remaining quota",
		})
		return
	}
	picked := candidates[rand.Intn(len(candidates))]
	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"invite_code":     *picked.Sora2InviteCode,
		"remaining_count": picked.Sora2TotalCount - picked.Sora2RedeemedCount,
		"total_count":     picked.Sora2TotalCount,
		"email":           picked.Email,
	})
}
