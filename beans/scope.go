package beans

import (
	"sync"
	"sync/atomic"
)

// Scope 是自定义作用域，决定一个名称在何时复用、何时重新创建实例。
type Scope interface {
	// Get 返回作用域内名为 name 的对象，不存在时调用 factory 创建。
	Get(name string, factory ObjectFactory) (any, error)
	// Remove 从作用域中移除对象，返回被移除的对象。
	Remove(name string) (any, bool)
	// RegisterDestructionCallback 注册对象离开作用域时的销毁回调。
	RegisterDestructionCallback(name string, callback func())
}

type scopeEntry struct {
	val atomic.Value // 实例（尚未创建时为空）
	mu  sync.Mutex   // 创建此实例的锁
}

// SimpleScope 是一个线程安全的作用域：同一作用域实例内每个名称只创建一次。
// 典型用法是为每个请求或会话创建一个 SimpleScope，结束时调用 Destroy。
type SimpleScope struct {
	mu        sync.Mutex
	entries   map[string]*scopeEntry
	callbacks map[string]func()
	order     []string
}

// NewSimpleScope 创建空作用域。
func NewSimpleScope() *SimpleScope {
	return &SimpleScope{
		entries:   make(map[string]*scopeEntry),
		callbacks: make(map[string]func()),
	}
}

func (s *SimpleScope) entry(name string) *scopeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		e = &scopeEntry{}
		s.entries[name] = e
	}
	return e
}

// Get 实现 Scope。
func (s *SimpleScope) Get(name string, factory ObjectFactory) (any, error) {
	e := s.entry(name)

	// 快速路径
	if val := e.val.Load(); val != nil {
		return val.(*scopedValue).obj, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// 双重检查
	if val := e.val.Load(); val != nil {
		return val.(*scopedValue).obj, nil
	}

	obj, err := factory()
	if err != nil {
		return nil, err
	}
	e.val.Store(&scopedValue{obj: obj})

	s.mu.Lock()
	s.order = append(s.order, name)
	s.mu.Unlock()
	return obj, nil
}

// scopedValue 包装实例，使 atomic.Value 可以存储任意具体类型。
type scopedValue struct {
	obj any
}

// Remove 实现 Scope。被移除对象的销毁回调也一并移除，由调用方负责销毁。
func (s *SimpleScope) Remove(name string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	if !ok {
		return nil, false
	}
	delete(s.entries, name)
	delete(s.callbacks, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	val := e.val.Load()
	if val == nil {
		return nil, false
	}
	return val.(*scopedValue).obj, true
}

// RegisterDestructionCallback 实现 Scope。
func (s *SimpleScope) RegisterDestructionCallback(name string, callback func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callbacks[name] = callback
}

// Len 返回作用域内已创建的对象数量。
func (s *SimpleScope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Destroy 按创建的逆序执行销毁回调并清空作用域。
func (s *SimpleScope) Destroy() {
	s.mu.Lock()
	order := s.order
	callbacks := s.callbacks
	s.entries = make(map[string]*scopeEntry)
	s.callbacks = make(map[string]func())
	s.order = nil
	s.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		if cb, ok := callbacks[order[i]]; ok {
			cb()
		}
	}
}
