package common

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/hancat/sora2api/constant"
)

func ApiError(c *gin.Context, err error) {
	c.JSON(http.StatusOK, gin.H{
		"success": false,
		"message": err.Error(),
	})
}

func ApiErrorMsg(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, gin.H{
		"success": false,
		"message": msg,
	})
}

func ApiSuccess(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "",
		"data":    data,
	})
}

type PageInfo struct {
	Page     int `json:"page"`
	PageSize int `json:"page_size"`

	Total int         `json:"total"`
	Items interface{} `json:"items"`
}

func (p *PageInfo) GetStartIdx() int {
	return (p.Page - 1) * p.PageSize
}

func (p *PageInfo) GetPageSize() int {
	return p.PageSize
}

func (p *PageInfo) SetTotal(total int) {
	p.Total = total
}

func (p *PageInfo) SetItems(items interface{}) {
	p.Items = items
}

func GetPageQuery(c *gin.Context) *PageInfo {
	page, _ := strconv.Atoi(c.Query("page"))
	pageSize, _ := strconv.Atoi(c.Query("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = ItemsPerPage
	}
	if pageSize > MaxItemsPerPage {
		pageSize = MaxItemsPerPage
	}
	return &PageInfo{
		Page:     page,
		PageSize: pageSize,
	}
}

func SetContextKey(c *gin.Context, key constant.ContextKey, value interface{}) {
	c.Set(string(key), value)
}

func GetContextKeyString(c *gin.Context, key constant.ContextKey) string {
	return c.GetString(string(key))
}

func GetContextKeyInt(c *gin.Context, key constant.ContextKey) int {
	return c.GetInt(string(key))
}
