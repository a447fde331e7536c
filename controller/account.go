package controller

import (
	"context"
	"strconv"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/gin-gonic/gin"
	"github.com/jinzhu/copier"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/dto"
	"github.com/hancat/sora2api/logger"
	"github.com/hancat/sora2api/model"
	"github.com/hancat/sora2api/service"
)

func buildAccountView(account *model.Account) dto.AccountView {
	var view dto.AccountView
	_ = copier.Copy(&view, account)
	view.TokenMasked = maskToken(account.Token)
	return view
}

func maskToken(token string) string {
	if len(token) <= 12 {
		return token
	}
	return token[:6] + "..." + token[len(token)-6:]
}

func GetAllAccounts(c *gin.Context) {
	pageInfo := common.GetPageQuery(c)
	accounts, total, err := model.GetAccountsPaged(pageInfo.GetStartIdx(), pageInfo.GetPageSize())
	if err != nil {
		common.ApiError(c, err)
		return
	}
	views := make([]dto.AccountView, 0, len(accounts))
	for _, account := range accounts {
		views = append(views, buildAccountView(account))
	}
	pageInfo.SetTotal(int(total))
	pageInfo.SetItems(views)
	common.ApiSuccess(c, pageInfo)
}

func GetAccount(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.ApiErrorMsg(c, "无效的账号 id")
		return
	}
	account, err := model.GetAccountById(id)
	if err != nil {
		common.ApiError(c, err)
		return
	}
	stats, err := model.GetAccountStats(id)
	if err != nil {
		common.ApiError(c, err)
		return
	}
	common.ApiSuccess(c, gin.H{
		"account": buildAccountView(account),
		"stats":   stats,
	})
}

func AddAccount(c *gin.Context) {
	var req dto.AddAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ApiErrorMsg(c, "参数错误："+err.Error())
		return
	}

	account := &model.Account{
		Token:            req.Token,
		Email:            req.Email,
		Username:         req.Username,
		Name:             req.Name,
		RT:               req.RT,
		ClientId:         req.ClientId,
		ProxyUrl:         req.ProxyUrl,
		Remark:           req.Remark,
		IsActive:         true,
		ImageEnabled:     true,
		VideoEnabled:     true,
		ImageConcurrency: -1,
		VideoConcurrency: -1,
	}
	if req.ImageConcurrency != nil {
		account.ImageConcurrency = *req.ImageConcurrency
	}
	if req.VideoConcurrency != nil {
		account.VideoConcurrency = *req.VideoConcurrency
	}
	// 过期时间和邮箱从 access token 的 JWT 载荷里推导
	if expiry, email, err := service.ParseAccessTokenClaims(req.Token); err == nil {
		if !expiry.IsZero() {
			account.ExpiryTime = &expiry
		}
		if account.Email == "" && email != "" {
			account.Email = email
		}
	}

	if err := account.Insert(); err != nil {
		common.ApiError(c, err)
		return
	}
	accountCache.ApplyUpdate(account)

	// 异步探测上游概况，失败不影响入池
	gopool.Go(func() {
		fresh, err := model.GetAccountById(account.Id)
		if err != nil {
			return
		}
		if _, err := generation.InspectAccount(context.Background(), fresh); err != nil {
			logger.LogWarn(context.Background(), "账号", account.Id, "入池探测失败:", err.Error())
		}
	})

	common.ApiSuccess(c, buildAccountView(account))
}

func UpdateAccount(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.ApiErrorMsg(c, "无效的账号 id")
		return
	}
	var req dto.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.ApiErrorMsg(c, "参数错误："+err.Error())
		return
	}

	fields := map[string]interface{}{}
	if req.Token != nil {
		fields["token"] = *req.Token
		if expiry, _, err := service.ParseAccessTokenClaims(*req.Token); err == nil && !expiry.IsZero() {
			fields["expiry_time"] = expiry
		}
	}
	if req.IsActive != nil {
		fields["is_active"] = *req.IsActive
	}
	if req.ImageEnabled != nil {
		fields["image_enabled"] = *req.ImageEnabled
	}
	if req.VideoEnabled != nil {
		fields["video_enabled"] = *req.VideoEnabled
	}
	if req.ImageConcurrency != nil {
		fields["image_concurrency"] = *req.ImageConcurrency
	}
	if req.VideoConcurrency != nil {
		fields["video_concurrency"] = *req.VideoConcurrency
	}
	if req.ProxyUrl != nil {
		fields["proxy_url"] = *req.ProxyUrl
	}
	if req.Remark != nil {
		fields["remark"] = *req.Remark
	}
	if len(fields) == 0 {
		common.ApiErrorMsg(c, "没有需要更新的字段")
		return
	}

	if err := model.UpdateAccountFields(id, fields); err != nil {
		common.ApiError(c, err)
		return
	}
	account, err := model.GetAccountById(id)
	if err != nil {
		common.ApiError(c, err)
		return
	}
	accountCache.ApplyUpdate(account)
	common.ApiSuccess(c, buildAccountView(account))
}

func DeleteAccount(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.ApiErrorMsg(c, "无效的账号 id")
		return
	}
	account, err := model.GetAccountById(id)
	if err != nil {
		common.ApiError(c, err)
		return
	}
	if err := account.Delete(); err != nil {
		common.ApiError(c, err)
		return
	}
	accountCache.ApplyRemoval(id)
	common.ApiSuccess(c, gin.H{"message": "账号已删除"})
}

// RefreshAccountQuota 手动触发一次配额对齐
func RefreshAccountQuota(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.ApiErrorMsg(c, "无效的账号 id")
		return
	}
	account, err := model.GetAccountById(id)
	if err != nil {
		common.ApiError(c, err)
		return
	}
	generation.RefreshAccountQuota(c.Request.Context(), account)
	fresh, err := model.GetAccountById(id)
	if err != nil {
		common.ApiError(c, err)
		return
	}
	common.ApiSuccess(c, buildAccountView(fresh))
}

// RefreshAccountCredential 手动用 refresh token 续期 access token
func RefreshAccountCredential(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.ApiErrorMsg(c, "无效的账号 id")
		return
	}
	if err := tokenRefresher.RefreshCredential(c.Request.Context(), id); err != nil {
		common.ApiError(c, err)
		return
	}
	fresh, err := model.GetAccountById(id)
	if err != nil {
		common.ApiError(c, err)
		return
	}
	common.ApiSuccess(c, buildAccountView(fresh))
}

// InspectAccount 手动拉一次上游账号概况
func InspectAccount(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.ApiErrorMsg(c, "无效的账号 id")
		return
	}
	account, err := model.GetAccountById(id)
	if err != nil {
		common.ApiError(c, err)
		return
	}
	profile, err := generation.InspectAccount(c.Request.Context(), account)
	if err != nil {
		common.ApiError(c, err)
		return
	}
	common.ApiSuccess(c, profile)
}

// GetRequestLogs 上游调用审计记录
func GetRequestLogs(c *gin.Context) {
	pageInfo := common.GetPageQuery(c)
	logs, total, err := model.GetRequestLogsPaged(pageInfo.GetStartIdx(), pageInfo.GetPageSize())
	if err != nil {
		common.ApiError(c, err)
		return
	}
	pageInfo.SetTotal(int(total))
	pageInfo.SetItems(logs)
	common.ApiSuccess(c, pageInfo)
}
