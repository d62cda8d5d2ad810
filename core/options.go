package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
)

// Option 配置 Context
type Option func(c *Context) error

// WithID 设置容器标识，用于日志
func WithID(id string) Option {
	return func(c *Context) error {
		c.id = id
		return nil
	}
}

// WithParent 设置父容器，本地找不到的 bean 回退到父容器，事件也会传播到父容器
func WithParent(parent *Context) Option {
	return func(c *Context) error {
		if parent == nil {
			return errors.New("core: parent context is nil")
		}
		c.parent = parent
		return nil
	}
}

// WithEnvironment 设置 Environment，默认为 config.NewStandardEnvironment 或父容器的 Environment
func WithEnvironment(env config.Environment) Option {
	return func(c *Context) error {
		c.env = env
		return nil
	}
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) Option {
	return func(c *Context) error {
		c.logger = logger
		return nil
	}
}

// WithFactoryOptions 追加创建 beans.Factory 时的选项
func WithFactoryOptions(opts ...beans.FactoryOption) Option {
	return func(c *Context) error {
		c.factoryOpts = append(c.factoryOpts, opts...)
		return nil
	}
}

// WithFactoryPostProcessor 添加编程注册的定义级后处理器，先于容器中定义的处理器执行
func WithFactoryPostProcessor(processors ...beans.FactoryPostProcessor) Option {
	return func(c *Context) error {
		c.factoryProcessors = append(c.factoryProcessors, processors...)
		return nil
	}
}

// WithListener 添加事件监听器
func WithListener(listeners ...Listener) Option {
	return func(c *Context) error {
		c.listeners = append(c.listeners, listeners...)
		return nil
	}
}

// WithPostProcessFactory 在工厂准备好之后、定义级后处理器之前修改工厂
func WithPostProcessFactory(fn func(f *beans.Factory) error) Option {
	return func(c *Context) error {
		c.postProcessFactory = append(c.postProcessFactory, fn)
		return nil
	}
}

// WithRegistrar 在容器创建后向注册表注册定义
//
//	core.WithRegistrar(func(r beans.Registry) error {
//		return beans.Provide(r, "userService", NewUserService)
//	})
func WithRegistrar(fn func(r beans.Registry) error) Option {
	return func(c *Context) error {
		c.setup = append(c.setup, func(c *Context) error { return fn(c.factory) })
		return nil
	}
}

// OnRefresh 注册刷新钩子
func OnRefresh(fn func(ctx context.Context) error) Option {
	return func(c *Context) error {
		c.hooks.OnRefresh(fn)
		return nil
	}
}

// OnClose 注册关闭钩子
func OnClose(fn func(ctx context.Context) error) Option {
	return func(c *Context) error {
		c.hooks.OnClose(fn)
		return nil
	}
}

// WithPhaseTimeout 设置每个生命周期阶段停止的超时
func WithPhaseTimeout(d time.Duration) Option {
	return func(c *Context) error {
		if d <= 0 {
			return errors.New("core: phase timeout must be positive")
		}
		c.phaseTimeout = d
		return nil
	}
}

// WithConfigurationProperties 把 section 下的配置绑定为 *T 单例，bean 名称为 name
// 使用示例: core.WithConfigurationProperties[AppSetting]("appSetting", "app")
func WithConfigurationProperties[T any](name, section string) Option {
	return func(c *Context) error {
		c.setup = append(c.setup, func(c *Context) error {
			env := c.env
			err := beans.Provide(c.factory, name, func() (*T, error) {
				v, err := config.Bind[T](env, section)
				if err != nil {
					return nil, fmt.Errorf("bind section %s: %w", section, err)
				}
				return &v, nil
			})
			if err != nil {
				return err
			}
			var zero T
			c.logger.Debug("Configured properties",
				logging.F("type", fmt.Sprintf("%T", zero)),
				logging.F("section", section))
			return nil
		})
		return nil
	}
}
