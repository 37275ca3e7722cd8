// Package metrics 提供 Prometheus /metrics HTTP 服务
package metrics

import (
	"errors"
	"net/http"
	"time"
)

// Path 指标路径
const Path = "/metrics"

// NewServer 创建只暴露 /metrics 的HTTP服务器
func NewServer(addr string, h http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(Path, h)
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Serve 在后台启动服务器。返回的通道在服务器退出后关闭；
// 监听失败时先送出错误（正常 Shutdown 不报错）。
func Serve(srv *http.Server) <-chan error {
	errc := make(chan error, 1)
	go func() {
		defer close(errc)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()
	return errc
}
