// Package ioc 是应用的入口：创建容器、刷新、等待退出信号并关闭。
package ioc

import (
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/logging"
)

// New 创建应用容器，默认使用控制台日志和包含环境变量的 Environment
// 传入的选项在默认值之后应用，可以覆盖它们
func New(opts ...core.Option) (*core.Context, error) {
	defaults := []core.Option{
		core.WithID("application"),
		core.WithLogger(logging.NewLogger()),
	}
	return core.New(append(defaults, opts...)...)
}
