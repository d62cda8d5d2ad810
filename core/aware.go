package core

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/logging"
)

// EnvironmentAware 接收容器的 Environment
type EnvironmentAware interface {
	SetEnvironment(env config.Environment)
}

// EmbeddedValueResolverAware 接收解析 ${...} 占位符的函数
type EmbeddedValueResolverAware interface {
	SetEmbeddedValueResolver(resolver beans.ValueResolver)
}

// PublisherAware 接收事件发布者
type PublisherAware interface {
	SetPublisher(publisher Publisher)
}

// ContextAware 接收所属容器
type ContextAware interface {
	SetContext(c *Context)
}

var awareInterfaces = []reflect.Type{
	beans.TypeOf[EnvironmentAware](),
	beans.TypeOf[EmbeddedValueResolverAware](),
	beans.TypeOf[PublisherAware](),
	beans.TypeOf[ContextAware](),
}

// contextAwareProcessor 在初始化前按固定顺序调用容器级 Aware 回调
type contextAwareProcessor struct {
	beans.BasePostProcessor
	ctx *Context
}

func (p *contextAwareProcessor) PostProcessBeforeInitialization(bean any, _ string) (any, error) {
	if a, ok := bean.(EnvironmentAware); ok {
		a.SetEnvironment(p.ctx.env)
	}
	if a, ok := bean.(EmbeddedValueResolverAware); ok {
		a.SetEmbeddedValueResolver(p.ctx.factory.ResolveEmbeddedValue)
	}
	if a, ok := bean.(PublisherAware); ok {
		a.SetPublisher(p.ctx)
	}
	if a, ok := bean.(ContextAware); ok {
		a.SetContext(p.ctx)
	}
	return bean, nil
}

// listenerDetector 把单例监听器 bean 注册到容器，销毁时移除
type listenerDetector struct {
	beans.BasePostProcessor
	ctx        *Context
	singletons sync.Map // bean 名称 -> 是否单例
}

var (
	_ beans.MergedDefinitionPostProcessor = (*listenerDetector)(nil)
	_ beans.DestructionAwarePostProcessor = (*listenerDetector)(nil)
)

func (d *listenerDetector) PostProcessMergedDefinition(def *beans.BeanDefinition, typ reflect.Type, name string) error {
	if typ != nil && typ.Implements(listenerType) {
		d.singletons.Store(name, def.IsSingleton())
	}
	return nil
}

func (d *listenerDetector) ResetDefinition(name string) {
	d.singletons.Delete(name)
}

func (d *listenerDetector) PostProcessAfterInitialization(bean any, name string) (any, error) {
	l, ok := bean.(Listener)
	if !ok {
		return bean, nil
	}
	singleton, known := d.singletons.Load(name)
	switch {
	case !known:
	case singleton.(bool):
		d.ctx.AddListener(l)
	default:
		d.ctx.logger.Warn("Listener bean is not reachable for event multicasting because it does not have singleton scope",
			logging.F("bean", name))
		d.singletons.Delete(name)
	}
	return bean, nil
}

func (d *listenerDetector) PostProcessBeforeDestruction(bean any, name string) error {
	if l, ok := bean.(Listener); ok {
		d.ctx.RemoveListener(l)
		d.ctx.logger.Trace("Listener removed on destruction", logging.F("bean", name))
	}
	return nil
}

func (d *listenerDetector) RequiresDestruction(bean any) bool {
	_, ok := bean.(Listener)
	return ok
}

// postProcessorChecker 记录未经过全部实例级后处理器的 bean
type postProcessorChecker struct {
	beans.BasePostProcessor
	factory *beans.Factory
	target  int
	logger  logging.Logger
}

func (c *postProcessorChecker) PostProcessAfterInitialization(bean any, name string) (any, error) {
	if _, ok := bean.(beans.BeanPostProcessor); ok || c.isInfrastructure(name) {
		return bean, nil
	}
	if c.factory.BeanPostProcessorCount() < c.target {
		c.logger.Info("Bean is not eligible for getting processed by all BeanPostProcessors",
			logging.F("bean", name),
			logging.F("type", fmt.Sprintf("%T", bean)))
	}
	return bean, nil
}

func (c *postProcessorChecker) isInfrastructure(name string) bool {
	if name == "" || !c.factory.ContainsBeanDefinition(name) {
		return false
	}
	def, err := c.factory.MergedBeanDefinition(name)
	return err == nil && def.Role == beans.RoleInfrastructure
}
