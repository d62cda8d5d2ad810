package ioc

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/logging"
)

// ShutdownTimeout 关闭容器的超时时间
var ShutdownTimeout = 30 * time.Second

// Run 启动应用程序，阻塞直到收到 SIGINT/SIGTERM 或容器请求退出
func Run(opts ...core.Option) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunContext(ctx, opts...)
}

// RunContext 与 Run 相同，ctx 取消时退出
//
// 返回值包含刷新失败的错误、触发退出的服务错误以及关闭时的错误。
func RunContext(ctx context.Context, opts ...core.Option) error {
	c, err := New(opts...)
	if err != nil {
		return err
	}
	return Serve(ctx, c)
}

// Serve 刷新已创建的容器并阻塞到退出
func Serve(ctx context.Context, c *core.Context) error {
	if err := c.Refresh(ctx); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		c.Logger().Info("Shutdown signal received")
	case <-c.Done():
		// 容器内部请求退出 (例如关键服务崩溃)
		if err := c.Err(); err != nil {
			c.Logger().Error("Application is shutting down", logging.Err(err))
		}
	}
	cause := c.Err()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ShutdownTimeout)
	defer cancel()
	return errors.Join(cause, c.Close(shutdownCtx))
}
