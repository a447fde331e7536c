package controller

import (
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/setting"
)

// Login 管理端登录，凭证来自配置文件
func Login(c *gin.Context) {
	var loginRequest struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&loginRequest); err != nil {
		common.ApiErrorMsg(c, "参数错误")
		return
	}
	if loginRequest.Username != setting.AdminUsername() || loginRequest.Password != setting.AdminPassword() {
		common.ApiErrorMsg(c, "用户名或密码错误")
		return
	}
	session := sessions.Default(c)
	session.Set("username", loginRequest.Username)
	if err := session.Save(); err != nil {
		common.ApiError(c, err)
		return
	}
	common.ApiSuccess(c, gin.H{"username": loginRequest.Username})
}

// Logout 注销当前会话
func Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		common.ApiError(c, err)
		return
	}
	common.ApiSuccess(c, nil)
}
