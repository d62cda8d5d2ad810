package core

import (
	"fmt"
	"reflect"
	"slices"
	"sync"
	"time"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/logging"
)

// Event 容器事件，可以是任意值
type Event any

// ContextEvent 由容器自身发布的事件
type ContextEvent struct {
	Context   *Context
	Timestamp time.Time
}

type (
	// RefreshedEvent 刷新完成
	RefreshedEvent struct{ ContextEvent }
	// StartedEvent 显式启动
	StartedEvent struct{ ContextEvent }
	// StoppedEvent 显式停止
	StoppedEvent struct{ ContextEvent }
	// ClosedEvent 开始关闭
	ClosedEvent struct{ ContextEvent }
)

func newContextEvent(c *Context) ContextEvent {
	return ContextEvent{Context: c, Timestamp: time.Now()}
}

// Listener 事件监听器，实现 beans.Ordered 可以控制顺序
type Listener interface {
	OnEvent(event Event)
}

// ListenerFunc 函数形式的监听器
type ListenerFunc func(event Event)

func (fn ListenerFunc) OnEvent(event Event) { fn(event) }

// typedListener 只接收类型为 E 的事件
type typedListener[E any] struct {
	fn func(E)
}

func (l *typedListener[E]) OnEvent(event Event) {
	if e, ok := event.(E); ok {
		l.fn(e)
	}
}

// On 创建只接收 E 类型事件的监听器
//
//	core.On(func(e core.RefreshedEvent) { ... })
func On[E any](fn func(E)) Listener {
	return &typedListener[E]{fn: fn}
}

// Publisher 事件发布者
type Publisher interface {
	Publish(event Event)
}

// Multicaster 把事件分发给监听器
type Multicaster interface {
	AddListener(l Listener)
	AddListenerBean(name string)
	RemoveListener(l Listener)
	RemoveAllListeners()
	Multicast(event Event)
}

var (
	listenerType    = reflect.TypeOf((*Listener)(nil)).Elem()
	multicasterType = reflect.TypeOf((*Multicaster)(nil)).Elem()
)

// SimpleMulticaster 同步分发事件，监听器的 panic 被记录后继续分发
type SimpleMulticaster struct {
	factory beans.BeanFactory
	logger  logging.Logger

	mu        sync.RWMutex
	listeners []Listener
	beanNames []string
}

var _ Multicaster = (*SimpleMulticaster)(nil)

// NewSimpleMulticaster 创建分发器，factory 用于按名称获取监听器 bean
func NewSimpleMulticaster(factory beans.BeanFactory, logger logging.Logger) *SimpleMulticaster {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SimpleMulticaster{factory: factory, logger: logger}
}

func (m *SimpleMulticaster) AddListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = slices.DeleteFunc(m.listeners, func(x Listener) bool { return sameInstance(x, l) })
	m.listeners = append(m.listeners, l)
}

func (m *SimpleMulticaster) AddListenerBean(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.beanNames, name) {
		m.beanNames = append(m.beanNames, name)
	}
}

func (m *SimpleMulticaster) RemoveListener(l Listener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = slices.DeleteFunc(m.listeners, func(x Listener) bool { return sameInstance(x, l) })
}

func (m *SimpleMulticaster) RemoveAllListeners() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = nil
	m.beanNames = nil
}

// Listeners 返回实例监听器与监听器 bean 的合集，按 Ordered 排序
func (m *SimpleMulticaster) Listeners() []Listener {
	m.mu.RLock()
	all := slices.Clone(m.listeners)
	names := slices.Clone(m.beanNames)
	m.mu.RUnlock()

	for _, name := range names {
		if m.factory == nil {
			break
		}
		bean, err := m.factory.GetBean(name)
		if err != nil {
			m.logger.Debug("Skipping listener bean", logging.F("bean", name), logging.Err(err))
			continue
		}
		l, ok := bean.(Listener)
		if !ok {
			continue
		}
		if !slices.ContainsFunc(all, func(x Listener) bool { return sameInstance(x, l) }) {
			all = append(all, l)
		}
	}
	beans.SortByOrder(all)
	return all
}

func (m *SimpleMulticaster) Multicast(event Event) {
	for _, l := range m.Listeners() {
		m.invoke(l, event)
	}
}

func (m *SimpleMulticaster) invoke(l Listener, event Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Event listener panicked",
				logging.F("listener", fmt.Sprintf("%T", l)),
				logging.F("event", fmt.Sprintf("%T", event)),
				logging.F("panic", r))
		}
	}()
	l.OnEvent(event)
}

// sameInstance 比较两个值是否为同一实例，不可比较的类型永远不同
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}
	switch va.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	return va.Type().Comparable() && a == b
}
