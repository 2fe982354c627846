// Package api 提供执行记录查询、指标与事件流的HTTP接口
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/LENAX/eoflow/internal/logger"
	"github.com/LENAX/eoflow/pkg/api/handler"
	"github.com/LENAX/eoflow/pkg/api/middleware"
)

// Dependencies 路由依赖，未提供的部分对应接口返回错误
type Dependencies struct {
	Executions handler.ExecutionReader
	Events     handler.Subscriber
	Metrics    http.Handler
	Version    string
	Logger     logrus.FieldLogger
}

// SetupRouter 设置路由
func SetupRouter(deps Dependencies) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = logger.Discard()
	}

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Logger(log))

	healthHandler := handler.NewHealthHandler(deps.Version)
	executionHandler := handler.NewExecutionHandler(deps.Executions)
	eventsHandler := handler.NewEventsHandler(deps.Events, log)

	// 健康检查与指标（不带前缀）
	router.GET("/health", healthHandler.Health)
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		executions := v1.Group("/executions")
		{
			executions.GET("", executionHandler.List)
			executions.GET("/:id", executionHandler.Get)
		}
		v1.GET("/events", eventsHandler.Stream)
	}

	return router
}
