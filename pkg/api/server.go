package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ServerConfig API服务器配置
type ServerConfig struct {
	Host        string        // 监听地址
	Port        int           // 监听端口
	ReadTimeout time.Duration // 读取超时
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:        "0.0.0.0",
		Port:        8080,
		ReadTimeout: 30 * time.Second,
	}
}

// APIServer HTTP API服务器
type APIServer struct {
	deps       Dependencies
	httpServer *http.Server
	config     ServerConfig
}

// NewAPIServer 创建API服务器
func NewAPIServer(deps Dependencies, config ServerConfig) *APIServer {
	return &APIServer{deps: deps, config: config}
}

// Start 启动服务器，阻塞到服务器关闭
// 事件流是长连接，不设置写超时
func (s *APIServer) Start() error {
	gin.SetMode(gin.ReleaseMode)
	router := SetupRouter(s.deps)

	s.httpServer = &http.Server{
		Addr:        s.Addr(),
		Handler:     router,
		ReadTimeout: s.config.ReadTimeout,
	}

	if s.deps.Logger != nil {
		s.deps.Logger.WithField("addr", s.Addr()).Info("API服务启动")
	}
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen failed: %w", err)
	}
	return nil
}

// Shutdown 优雅关闭服务器
func (s *APIServer) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Addr 获取服务器地址
func (s *APIServer) Addr() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
