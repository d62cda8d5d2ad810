package core

import (
	"fmt"
	"reflect"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/hosting"
)

var hostedServiceType = beans.TypeOf[hosting.HostedService]()

// WithHostedService 注册一个托管服务
// constructor 返回实现 hosting.HostedService 的类型，服务本身以 name+"Service" 注册为普通 bean，
// 可以注入依赖；name 对应的 bean 是包装它的 *hosting.Hosted。
// 服务的 Start 在独立的 goroutine 中运行，返回错误时触发应用退出。
func WithHostedService(name string, constructor any, opts ...beans.Option) Option {
	return func(c *Context) error {
		fn := reflect.ValueOf(constructor)
		if fn.Kind() != reflect.Func || fn.Type().NumOut() == 0 {
			return fmt.Errorf("WithHostedService: constructor must be a function, got %T", constructor)
		}
		if out := fn.Type().Out(0); !out.Implements(hostedServiceType) {
			return fmt.Errorf("WithHostedService: service %v does not implement hosting.HostedService", out)
		}

		serviceName := name + "Service"
		c.setup = append(c.setup, func(c *Context) error {
			if err := beans.Provide(c.factory, serviceName, constructor, opts...); err != nil {
				return fmt.Errorf("WithHostedService: failed to provide service: %w", err)
			}
			return c.registerHosted(name, beans.Ref(serviceName))
		})
		return nil
	}
}

// WithWorker 将一个阻塞的函数注册为后台服务
// 框架会自动将其适配为 hosting.Hosted (异步启动，Cancel 停止)
func WithWorker(name string, fn hosting.WorkerFunc) Option {
	return func(c *Context) error {
		if fn == nil {
			return fmt.Errorf("WithWorker: worker %s is nil", name)
		}
		c.setup = append(c.setup, func(c *Context) error {
			return c.registerHosted(name, fn)
		})
		return nil
	}
}

// registerHosted 注册 *hosting.Hosted 定义，service 可以是 BeanRef 或服务实例
func (c *Context) registerHosted(name string, service any) error {
	def := beans.NewConstructorDefinition(func(svc hosting.HostedService) *hosting.Hosted {
		h := hosting.NewHosted(name, svc)
		h.OnError = c.Shutdown
		h.Logger = c.logger.WithCategory("hosting")
		return h
	}, beans.WithArg(0, service), beans.WithDescription("hosted service "+name))
	return c.factory.RegisterBeanDefinition(name, def)
}
