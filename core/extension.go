package core

import (
	"context"
	"fmt"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
)

// Extension 定义容器扩展的基础接口
// 扩展模块应该实现 DefinitionRegistrar 或 ContextConfigurator 接口（或两者都实现）
type Extension interface {
	// Name 返回扩展的名称，用于日志记录和调试
	Name() string
}

// DefinitionRegistrar 负责注册 bean 定义
type DefinitionRegistrar interface {
	RegisterDefinitions(r beans.Registry, env config.Environment) error
}

// ContextConfigurator 负责配置容器本身，例如添加监听器、钩子或后处理器
type ContextConfigurator interface {
	ConfigureContext(c *Context) error
}

// validateExtension 验证扩展是否实现了支持的接口
func validateExtension(ext Extension) error {
	_, isRegistrar := ext.(DefinitionRegistrar)
	_, isConfigurator := ext.(ContextConfigurator)

	if !isRegistrar && !isConfigurator {
		return fmt.Errorf("core: extension '%s' does not implement any supported interfaces (DefinitionRegistrar, ContextConfigurator)", ext.Name())
	}
	return nil
}

// WithExtension 添加扩展，扩展在工厂创建后按添加顺序应用
func WithExtension(exts ...Extension) Option {
	return func(c *Context) error {
		for _, ext := range exts {
			if err := validateExtension(ext); err != nil {
				return err
			}
			c.extensions = append(c.extensions, ext)
			c.setup = append(c.setup, func(c *Context) error {
				return c.applyExtension(ext)
			})
		}
		return nil
	}
}

func (c *Context) applyExtension(ext Extension) error {
	c.logger.Debug("Applying extension", logging.F("extension", ext.Name()))
	if cc, ok := ext.(ContextConfigurator); ok {
		if err := cc.ConfigureContext(c); err != nil {
			return fmt.Errorf("core: extension '%s': %w", ext.Name(), err)
		}
	}
	if dr, ok := ext.(DefinitionRegistrar); ok {
		if err := dr.RegisterDefinitions(c.factory, c.env); err != nil {
			return fmt.Errorf("core: extension '%s': %w", ext.Name(), err)
		}
	}
	return nil
}

// Extensions 返回已添加的扩展
func (c *Context) Extensions() []Extension {
	return append([]Extension(nil), c.extensions...)
}

// AddFactoryPostProcessor 添加编程注册的定义级后处理器，必须在刷新前调用
func (c *Context) AddFactoryPostProcessor(p beans.FactoryPostProcessor) {
	c.factoryProcessors = append(c.factoryProcessors, p)
}

// OnRefresh 注册刷新钩子，必须在刷新前调用
func (c *Context) OnRefresh(fn func(ctx context.Context) error) {
	c.hooks.OnRefresh(fn)
}

// OnClose 注册关闭钩子
func (c *Context) OnClose(fn func(ctx context.Context) error) {
	c.hooks.OnClose(fn)
}
