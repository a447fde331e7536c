package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/hancat/sora2api/common"
	"github.com/hancat/sora2api/controller"
	"github.com/hancat/sora2api/middleware"
	"github.com/hancat/sora2api/model"
	"github.com/hancat/sora2api/router"
	"github.com/hancat/sora2api/service"
	"github.com/hancat/sora2api/setting"
)

func main() {
	_ = godotenv.Load()
	common.SetupLogger()
	common.SysLog(common.SystemName + " " + common.Version + " started")

	if err := setting.LoadConfig(common.GetEnvOrDefaultString("CONFIG_FILE", "setting.toml")); err != nil {
		common.FatalLog("failed to load config: " + err.Error())
	}
	if os.Getenv("GIN_MODE") != gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if common.DebugEnabled {
		common.SysLog("running in debug mode")
	}
	common.ServerAddress = common.GetEnvOrDefaultString("SERVER_ADDRESS", common.ServerAddress)
	setupPyroscope()

	if err := model.InitDB(); err != nil {
		common.FatalLog("failed to initialize database: " + err.Error())
	}
	defer func() {
		if err := model.CloseDB(); err != nil {
			common.SysError("failed to close database: " + err.Error())
		}
	}()
	if err := common.InitRedisClient(); err != nil {
		common.FatalLog("failed to initialize redis: " + err.Error())
	}

	// 组装账号池与生成链路
	store := model.NewAccountStore()
	cache := model.NewAccountCache(store, setting.AccountCacheTTL())
	concurrency := service.NewConcurrencyManager()
	locker := service.NewAccountLocker()
	refresher := service.NewTokenRefresher(store, cache)
	balancer := service.NewLoadBalancer(cache, concurrency, locker, refresher)
	sentinel := service.NewSentinelTokenBuilder(service.GetHttpClient(), setting.ChatGPTBaseURL())

	var fileCache *service.FileCache
	if setting.FileCacheEnabled() {
		fc, err := service.NewFileCache(setting.FileCacheDir())
		if err != nil {
			common.FatalLog("failed to prepare file cache dir: " + err.Error())
		}
		fileCache = fc
	}

	handler := service.NewGenerationHandler(balancer, concurrency, locker, sentinel, fileCache, cache, store)
	controller.Setup(cache, concurrency, refresher, handler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return setting.WatchConfig(groupCtx)
	})
	if fileCache != nil {
		group.Go(func() error {
			fileCache.CleanupLoop(groupCtx)
			return nil
		})
	}

	server := gin.New()
	server.Use(gin.CustomRecovery(func(c *gin.Context, err any) {
		common.SysError(fmt.Sprintf("panic detected: %v", err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"message": fmt.Sprintf("Panic detected, error: %v.", err),
				"type":    "sora2api_panic",
			},
		})
	}))
	server.Use(middleware.RequestId())
	server.Use(middleware.AccessLog())
	server.Use(middleware.CORS())
	sessionStore := cookie.NewStore([]byte(common.SessionSecret))
	server.Use(sessions.Sessions("session", sessionStore))
	router.SetRouter(server)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", setting.ServerHost(), setting.ServerPort()),
		Handler: server,
	}
	group.Go(func() error {
		common.SysLog("http server listening on " + httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		common.FatalLog("server exited abnormally: " + err.Error())
	}
	common.SysLog("server exited")
}

// setupPyroscope 设了 PYROSCOPE_URL 才启用持续剖析
func setupPyroscope() {
	url := os.Getenv("PYROSCOPE_URL")
	if url == "" {
		return
	}
	hostname, _ := os.Hostname()
	_, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: common.SystemName,
		ServerAddress:   url,
		Tags:            map[string]string{"hostname": hostname},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
	if err != nil {
		common.SysError("failed to start pyroscope: " + err.Error())
		return
	}
	common.SysLog("pyroscope profiling enabled")
}
