package router

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/hancat/sora2api/controller"
	"github.com/hancat/sora2api/middleware"
	"github.com/hancat/sora2api/setting"
)

func orientationRule(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "", "portrait", "landscape":
		return true
	}
	return false
}

// SetRouter 注册全部路由，调用前配置必须已经加载
func SetRouter(server *gin.Engine) {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("orientation", orientationRule)
	}

	// 生成产物的本地缓存直接走静态文件
	server.Static("/files", setting.FileCacheDir())

	v1 := server.Group("/v1")
	{
		v1.GET("/stats", controller.GetStats)
		v1.GET("/invite-codes", controller.GetInviteCode)
		v1.GET("/models", middleware.ApiKeyAuth(), controller.ListModels)
		v1.POST("/chat/completions", middleware.ApiKeyAuth(), controller.ChatCompletions)
	}

	api := server.Group("/api")
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		api.GET("/status", controller.GetStatus)
		api.POST("/login", controller.Login)
		api.POST("/logout", controller.Logout)

		admin := api.Group("")
		admin.Use(middleware.AdminAuth())
		{
			admin.GET("/account", controller.GetAllAccounts)
			admin.POST("/account", controller.AddAccount)
			admin.GET("/account/:id", controller.GetAccount)
			admin.PUT("/account/:id", controller.UpdateAccount)
			admin.DELETE("/account/:id", controller.DeleteAccount)
			admin.POST("/account/:id/quota", controller.RefreshAccountQuota)
			admin.POST("/account/:id/credential", controller.RefreshAccountCredential)
			admin.POST("/account/:id/inspect", controller.InspectAccount)
			admin.GET("/logs", controller.GetRequestLogs)
			admin.GET("/system", controller.GetSystemStatus)
		}
	}
}
