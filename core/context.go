package core

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
)

const (
	// EnvironmentBeanName Environment 单例的名称
	EnvironmentBeanName = "environment"
	// MulticasterBeanName 自定义事件分发器的 bean 名称
	MulticasterBeanName = "eventMulticaster"
	// LifecycleProcessorBeanName 自定义生命周期处理器的 bean 名称
	LifecycleProcessorBeanName = "lifecycleProcessor"
	// AutowiredProcessorBeanName 标签注入处理器的 bean 名称
	AutowiredProcessorBeanName = "internalAutowiredTagProcessor"
)

var contextSeq atomic.Int64

// Context 应用容器，负责刷新和关闭的编排
//
// Context 实现 beans.ListableBeanFactory 和 beans.Registry，可以直接配合 beans.Register、beans.Get 使用。
// bean 查询只在刷新之后、关闭之前可用，其余时间返回 ErrInactive。
type Context struct {
	id      string
	parent  *Context
	env     config.Environment
	factory *beans.Factory
	logger  logging.Logger

	factoryOpts        []beans.FactoryOption
	factoryProcessors  []beans.FactoryPostProcessor
	postProcessFactory []func(f *beans.Factory) error
	setup              []func(c *Context) error
	extensions         []Extension
	hooks              hooks
	phaseTimeout       time.Duration

	// startupShutdownMu 保证刷新与关闭互斥
	startupShutdownMu sync.Mutex
	state             atomic.Int32
	active            atomic.Bool
	closed            atomic.Bool
	refreshed         atomic.Bool
	startedAt         time.Time

	eventMu        sync.Mutex
	listeners      []Listener
	earlyListeners []Listener
	earlyEvents    []Event
	eventsReady    bool
	multicaster    Multicaster

	lifecycle hosting.LifecycleProcessor

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	shutdownErr  error
}

var (
	_ beans.ListableBeanFactory     = (*Context)(nil)
	_ beans.HierarchicalBeanFactory = (*Context)(nil)
	_ beans.Registry                = (*Context)(nil)
	_ Publisher                     = (*Context)(nil)
	_ hosting.Lifecycle             = (*Context)(nil)
)

// New 创建容器，选项依次应用；注册类选项在工厂创建后执行
func New(opts ...Option) (*Context, error) {
	c := &Context{
		phaseTimeout: hosting.DefaultPhaseTimeout,
		shutdownCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.id == "" {
		c.id = fmt.Sprintf("context-%d", contextSeq.Add(1))
	}
	if c.logger == nil {
		c.logger = logging.NewNop()
	}
	if c.env == nil {
		if c.parent != nil {
			c.env = c.parent.env
		} else {
			c.env = config.NewStandardEnvironment()
		}
	}

	fopts := []beans.FactoryOption{beans.WithLogger(c.logger)}
	c.factory = beans.NewFactory(append(fopts, c.factoryOpts...)...)
	if c.parent != nil {
		if err := c.factory.SetParentBeanFactory(c.parent); err != nil {
			return nil, err
		}
	}

	for _, fn := range c.setup {
		if err := fn(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew 与 New 相同，失败时 panic
func MustNew(opts ...Option) *Context {
	c, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Context) ID() string                      { return c.id }
func (c *Context) Parent() *Context                { return c.parent }
func (c *Context) Environment() config.Environment { return c.env }
func (c *Context) Logger() logging.Logger          { return c.logger }
func (c *Context) State() State                    { return State(c.state.Load()) }
func (c *Context) IsActive() bool                  { return c.active.Load() }
func (c *Context) StartedAt() time.Time            { return c.startedAt }
func (c *Context) setState(s State)                { c.state.Store(int32(s)) }

func (c *Context) ParentBeanFactory() beans.BeanFactory {
	if c.parent == nil {
		return nil
	}
	return c.parent
}

// Factory 返回内部工厂，刷新前可用于编程注册
func (c *Context) Factory() *beans.Factory { return c.factory }

// Refresh 执行完整的刷新流程，每个 Context 只能刷新一次
func (c *Context) Refresh(ctx context.Context) error {
	c.startupShutdownMu.Lock()
	defer c.startupShutdownMu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("core: context %s closed already: %w", c.id, ErrInactive)
	}
	if !c.refreshed.CompareAndSwap(false, true) {
		return ErrAlreadyRefreshed
	}

	start := time.Now()
	c.logger.Info("Refreshing context", logging.F("context", c.id))
	if err := c.refresh(ctx); err != nil {
		c.logger.Warn("Exception encountered during context initialization - cancelling refresh attempt",
			logging.F("context", c.id), logging.Err(err))
		// 停止刷新过程中已经启动的组件
		if c.lifecycle != nil {
			c.lifecycle.OnClose(context.WithoutCancel(ctx))
		}
		c.factory.DestroySingletons()
		c.active.Store(false)
		c.setState(StateClosed)
		return err
	}
	c.logger.Info("Context refreshed",
		logging.F("context", c.id),
		logging.F("beans", c.factory.BeanDefinitionCount()),
		logging.F("elapsed", time.Since(start).String()))
	return nil
}

func (c *Context) refresh(ctx context.Context) error {
	c.prepareRefresh()
	if err := c.env.ValidateRequiredProperties(); err != nil {
		return err
	}

	if err := c.prepareFactory(); err != nil {
		return err
	}
	c.setState(StateFactoryReady)

	for _, fn := range c.postProcessFactory {
		if err := fn(c.factory); err != nil {
			return err
		}
	}
	if err := invokeFactoryPostProcessors(c.factory, c.factoryProcessors, c.logger); err != nil {
		return err
	}
	c.setState(StatePostProcessed)

	if err := registerBeanPostProcessors(c.factory, c.detector(), c.logger); err != nil {
		return err
	}
	if err := c.initMulticaster(); err != nil {
		return err
	}
	if err := c.hooks.refresh(ctx); err != nil {
		return err
	}
	c.registerListeners()

	if !c.factory.HasEmbeddedValueResolver() {
		c.factory.AddEmbeddedValueResolver(c.env.ResolveRequiredPlaceholders)
	}
	c.factory.FreezeConfiguration()
	if err := c.factory.PreInstantiateSingletons(); err != nil {
		return err
	}
	c.setState(StateInitialized)

	if err := c.initLifecycleProcessor(); err != nil {
		return err
	}
	if err := c.lifecycle.OnRefresh(ctx); err != nil {
		return err
	}

	c.Publish(RefreshedEvent{newContextEvent(c)})
	c.setState(StateRunning)
	return nil
}

func (c *Context) prepareRefresh() {
	c.startedAt = time.Now()
	c.closed.Store(false)
	c.active.Store(true)
	c.setState(StatePreparing)

	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	if c.earlyListeners == nil {
		c.earlyListeners = slices.Clone(c.listeners)
	} else {
		c.listeners = slices.Clone(c.earlyListeners)
	}
	c.eventsReady = false
}

func (c *Context) prepareFactory() error {
	f := c.factory
	f.AddBeanPostProcessor(&contextAwareProcessor{ctx: c})
	for _, typ := range awareInterfaces {
		f.IgnoreDependencyInterface(typ)
	}

	f.RegisterResolvableDependency(beans.TypeOf[*Context](), c)
	f.RegisterResolvableDependency(beans.TypeOf[Publisher](), c)
	f.RegisterResolvableDependency(beans.TypeOf[config.Environment](), c.env)
	f.RegisterResolvableDependency(beans.TypeOf[logging.Logger](), c.logger)

	f.AddBeanPostProcessor(c.detector())

	if !f.ContainsLocalBean(EnvironmentBeanName) {
		if err := f.RegisterSingleton(EnvironmentBeanName, c.env); err != nil {
			return err
		}
	}
	if !f.ContainsBeanDefinition(AutowiredProcessorBeanName) {
		err := beans.Provide(f, AutowiredProcessorBeanName, func() *beans.AutowiredTagPostProcessor {
			return beans.NewAutowiredTagPostProcessor(f)
		}, beans.WithRole(beans.RoleInfrastructure))
		if err != nil {
			return err
		}
	}
	return nil
}

// detector 返回唯一的监听器探测器
func (c *Context) detector() *listenerDetector {
	for _, p := range c.factory.BeanPostProcessors() {
		if d, ok := p.(*listenerDetector); ok {
			return d
		}
	}
	return &listenerDetector{ctx: c}
}

func (c *Context) initMulticaster() error {
	var m Multicaster
	if c.factory.ContainsLocalBean(MulticasterBeanName) {
		bean, err := c.factory.GetTypedBean(MulticasterBeanName, multicasterType)
		if err != nil {
			return err
		}
		m = bean.(Multicaster)
		c.logger.Debug("Using custom event multicaster", logging.F("type", fmt.Sprintf("%T", m)))
	} else {
		m = NewSimpleMulticaster(c.factory, c.logger)
		if err := c.factory.RegisterSingleton(MulticasterBeanName, m); err != nil {
			return err
		}
	}
	c.eventMu.Lock()
	c.multicaster = m
	c.eventMu.Unlock()
	return nil
}

// registerListeners 注册监听器并按发布顺序重放早期事件
func (c *Context) registerListeners() {
	c.eventMu.Lock()
	m := c.multicaster
	for _, l := range c.listeners {
		m.AddListener(l)
	}
	for _, name := range c.factory.BeanNamesForType(listenerType, true, false) {
		m.AddListenerBean(name)
	}
	early := c.earlyEvents
	c.earlyEvents = nil
	c.eventsReady = true
	c.eventMu.Unlock()

	for _, event := range early {
		m.Multicast(event)
	}
}

func (c *Context) initLifecycleProcessor() error {
	if c.factory.ContainsLocalBean(LifecycleProcessorBeanName) {
		bean, err := c.factory.GetBean(LifecycleProcessorBeanName)
		if err != nil {
			return err
		}
		lp, ok := bean.(hosting.LifecycleProcessor)
		if !ok {
			return fmt.Errorf("core: bean '%s' is %T, not a hosting.LifecycleProcessor", LifecycleProcessorBeanName, bean)
		}
		c.lifecycle = lp
		return nil
	}
	p := hosting.NewProcessor(c.factory,
		hosting.WithPhaseTimeout(c.phaseTimeout),
		hosting.WithLogger(c.logger.WithCategory("lifecycle")))
	c.lifecycle = p
	return c.factory.RegisterSingleton(LifecycleProcessorBeanName, p)
}

// Close 关闭容器：发布 ClosedEvent，停止生命周期 bean，按依赖顺序销毁单例
// 重复调用无副作用
func (c *Context) Close(ctx context.Context) error {
	c.startupShutdownMu.Lock()
	defer c.startupShutdownMu.Unlock()
	defer c.Shutdown(nil)

	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	if !c.active.Load() {
		c.setState(StateClosed)
		return nil
	}

	c.setState(StateClosing)
	c.logger.Info("Closing context", logging.F("context", c.id))
	c.Publish(ClosedEvent{newContextEvent(c)})

	if c.lifecycle != nil {
		c.lifecycle.OnClose(ctx)
	}
	c.factory.DestroySingletons()
	err := c.hooks.close(ctx)

	c.eventMu.Lock()
	if c.earlyListeners != nil {
		c.listeners = slices.Clone(c.earlyListeners)
	}
	c.eventMu.Unlock()

	c.active.Store(false)
	c.setState(StateClosed)
	if err != nil {
		c.logger.Error("Close hooks failed", logging.F("context", c.id), logging.Err(err))
	}
	return err
}

// Start 显式启动所有 Lifecycle bean，包括非自动启动的
func (c *Context) Start(ctx context.Context) error {
	if err := c.assertActive(); err != nil {
		return err
	}
	if err := c.lifecycle.Start(ctx); err != nil {
		return err
	}
	c.Publish(StartedEvent{newContextEvent(c)})
	return nil
}

// Stop 显式停止所有 Lifecycle bean
func (c *Context) Stop(ctx context.Context) error {
	if err := c.assertActive(); err != nil {
		return err
	}
	if err := c.lifecycle.Stop(ctx); err != nil {
		return err
	}
	c.Publish(StoppedEvent{newContextEvent(c)})
	return nil
}

func (c *Context) IsRunning() bool {
	return c.lifecycle != nil && c.active.Load() && c.lifecycle.IsRunning()
}

// Publish 发布事件；事件分发器就绪前发布的事件会被缓存，就绪后按顺序重放
func (c *Context) Publish(event Event) {
	c.eventMu.Lock()
	if !c.eventsReady {
		c.earlyEvents = append(c.earlyEvents, event)
		c.eventMu.Unlock()
	} else {
		m := c.multicaster
		c.eventMu.Unlock()
		m.Multicast(event)
	}
	if c.parent != nil {
		c.parent.Publish(event)
	}
}

// AddListener 添加监听器，刷新后添加的监听器立即生效
func (c *Context) AddListener(l Listener) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	if c.multicaster != nil {
		c.multicaster.AddListener(l)
	}
	if !slices.ContainsFunc(c.listeners, func(x Listener) bool { return sameInstance(x, l) }) {
		c.listeners = append(c.listeners, l)
	}
}

// RemoveListener 移除监听器
func (c *Context) RemoveListener(l Listener) {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	if c.multicaster != nil {
		c.multicaster.RemoveListener(l)
	}
	c.listeners = slices.DeleteFunc(c.listeners, func(x Listener) bool { return sameInstance(x, l) })
}

// Listeners 返回当前静态注册的监听器
func (c *Context) Listeners() []Listener {
	c.eventMu.Lock()
	defer c.eventMu.Unlock()
	return slices.Clone(c.listeners)
}

// Shutdown 请求应用退出，err 为 nil 表示正常退出
// 只有第一次调用生效
func (c *Context) Shutdown(err error) {
	c.shutdownOnce.Do(func() {
		c.shutdownErr = err
		close(c.shutdownCh)
	})
}

// Done 返回一个通道，当应用需要退出时该通道会关闭
func (c *Context) Done() <-chan struct{} {
	return c.shutdownCh
}

// Err 返回触发退出的错误，在 Done 关闭之后才有意义
func (c *Context) Err() error {
	select {
	case <-c.shutdownCh:
		return c.shutdownErr
	default:
		return nil
	}
}

func (c *Context) assertActive() error {
	if c.active.Load() {
		return nil
	}
	if c.closed.Load() {
		return fmt.Errorf("core: context %s closed already: %w", c.id, ErrInactive)
	}
	return fmt.Errorf("core: context %s not refreshed yet: %w", c.id, ErrInactive)
}

func (c *Context) GetBean(name string) (any, error) {
	if err := c.assertActive(); err != nil {
		return nil, err
	}
	return c.factory.GetBean(name)
}

func (c *Context) GetBeanWithArgs(name string, args ...any) (any, error) {
	if err := c.assertActive(); err != nil {
		return nil, err
	}
	return c.factory.GetBeanWithArgs(name, args...)
}

func (c *Context) GetTypedBean(name string, typ reflect.Type) (any, error) {
	if err := c.assertActive(); err != nil {
		return nil, err
	}
	return c.factory.GetTypedBean(name, typ)
}

func (c *Context) GetBeanOfType(typ reflect.Type) (any, error) {
	if err := c.assertActive(); err != nil {
		return nil, err
	}
	return c.factory.GetBeanOfType(typ)
}

func (c *Context) BeansOfType(typ reflect.Type, includeNonSingletons, allowEagerInit bool) (map[string]any, error) {
	if err := c.assertActive(); err != nil {
		return nil, err
	}
	return c.factory.BeansOfType(typ, includeNonSingletons, allowEagerInit)
}

func (c *Context) ContainsBean(name string) bool      { return c.factory.ContainsBean(name) }
func (c *Context) ContainsLocalBean(name string) bool { return c.factory.ContainsLocalBean(name) }
func (c *Context) Aliases(name string) []string       { return c.factory.Aliases(name) }
func (c *Context) ContainsBeanDefinition(name string) bool {
	return c.factory.ContainsBeanDefinition(name)
}
func (c *Context) BeanDefinitionCount() int      { return c.factory.BeanDefinitionCount() }
func (c *Context) BeanDefinitionNames() []string { return c.factory.BeanDefinitionNames() }

func (c *Context) IsSingleton(name string) (bool, error) {
	if err := c.assertActive(); err != nil {
		return false, err
	}
	return c.factory.IsSingleton(name)
}

func (c *Context) IsPrototype(name string) (bool, error) {
	if err := c.assertActive(); err != nil {
		return false, err
	}
	return c.factory.IsPrototype(name)
}

func (c *Context) IsTypeMatch(name string, typ reflect.Type) (bool, error) {
	if err := c.assertActive(); err != nil {
		return false, err
	}
	return c.factory.IsTypeMatch(name, typ)
}

func (c *Context) Type(name string) (reflect.Type, error) {
	if err := c.assertActive(); err != nil {
		return nil, err
	}
	return c.factory.Type(name)
}

func (c *Context) BeanNamesForType(typ reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	return c.factory.BeanNamesForType(typ, includeNonSingletons, allowEagerInit)
}

func (c *Context) RegisterBeanDefinition(name string, def *beans.BeanDefinition) error {
	return c.factory.RegisterBeanDefinition(name, def)
}

func (c *Context) RemoveBeanDefinition(name string) error {
	return c.factory.RemoveBeanDefinition(name)
}

func (c *Context) BeanDefinition(name string) (*beans.BeanDefinition, error) {
	return c.factory.BeanDefinition(name)
}

func (c *Context) IsBeanNameInUse(name string) bool { return c.factory.IsBeanNameInUse(name) }
func (c *Context) RegisterAlias(name, alias string) error {
	return c.factory.RegisterAlias(name, alias)
}
func (c *Context) RemoveAlias(alias string) error { return c.factory.RemoveAlias(alias) }
func (c *Context) IsAlias(name string) bool       { return c.factory.IsAlias(name) }

// IsInactive 报告错误是否由于容器不可用
func IsInactive(err error) bool {
	return errors.Is(err, ErrInactive)
}

// MergedBeanDefinition 返回合并父定义后的副本，子容器的定义可以继承父容器中的定义
func (c *Context) MergedBeanDefinition(name string) (*beans.BeanDefinition, error) {
	return c.factory.MergedBeanDefinition(name)
}
