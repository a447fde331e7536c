package controller

import (
	"github.com/hancat/sora2api/model"
	"github.com/hancat/sora2api/service"
)

// 服务实例在 main 里构造，这里只持有引用
var (
	accountCache   *model.AccountCache
	concurrencyMgr *service.ConcurrencyManager
	tokenRefresher *service.TokenRefresher
	generation     *service.GenerationHandler
)

// Setup 注入依赖，启动时调用一次
func Setup(cache *model.AccountCache, cm *service.ConcurrencyManager,
	refresher *service.TokenRefresher, handler *service.GenerationHandler) {
	accountCache = cache
	concurrencyMgr = cm
	tokenRefresher = refresher
	generation = handler
}
