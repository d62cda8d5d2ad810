package beans

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gocrud/ioc/logging"
)

// ObjectFactory 延迟产生一个对象。
type ObjectFactory func() (any, error)

// inflight 表示一个正在创建中的单例。
type inflight struct {
	owner *chain
	done  chan struct{}
}

// disposer 在单例销毁时被调用。
type disposer interface {
	destroy() error
}

// singletonRegistry 维护三级单例缓存。
//
// 一级 singletons 保存完全初始化的实例，可无锁读取；
// 二级 early 保存为打破循环而提前暴露的引用；
// 三级 earlyFactories 保存尚未调用的提前引用生产者。
// 二、三级只对持有该创建过程的链（或与之形成等待环的链）可见。
type singletonRegistry struct {
	singletons sync.Map

	mu             sync.Mutex
	early          map[string]any
	earlyFactories map[string]ObjectFactory
	inCreation     map[string]*inflight
	producing      map[string]*inflight
	registered     []string
	inDestruction  bool

	disposables     map[string]disposer
	disposableOrder []string
	dependents      map[string][]string
	dependencies    map[string][]string
	contained       map[string][]string

	logger logging.Logger
}

func newSingletonRegistry(logger logging.Logger) *singletonRegistry {
	return &singletonRegistry{
		early:          make(map[string]any),
		earlyFactories: make(map[string]ObjectFactory),
		inCreation:     make(map[string]*inflight),
		producing:      make(map[string]*inflight),
		disposables:    make(map[string]disposer),
		dependents:     make(map[string][]string),
		dependencies:   make(map[string][]string),
		contained:      make(map[string][]string),
		logger:         logger,
	}
}

// register 注册一个已经存在的单例对象。
func (r *singletonRegistry) register(name string, obj any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.singletons.Load(name); ok {
		return fmt.Errorf("beans: could not register object [%T] under bean name '%s': there is already object [%T] bound",
			obj, name, existing)
	}
	r.addLocked(name, obj)
	return nil
}

func (r *singletonRegistry) addLocked(name string, obj any) {
	r.singletons.Store(name, obj)
	delete(r.early, name)
	delete(r.earlyFactories, name)
	if !slices.Contains(r.registered, name) {
		r.registered = append(r.registered, name)
	}
}

// get 返回完全初始化的单例。
func (r *singletonRegistry) get(name string) (any, bool) {
	return r.singletons.Load(name)
}

func (r *singletonRegistry) contains(name string) bool {
	_, ok := r.singletons.Load(name)
	return ok
}

func (r *singletonRegistry) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.registered)
}

func (r *singletonRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.registered)
}

// lookup 查找单例。找不到完全初始化的实例时，若该单例正由 c（或与 c 构成等待环的链）创建，
// 且 allowEarly 为 true，则返回提前暴露的引用。
func (r *singletonRegistry) lookup(name string, c *chain, allowEarly bool) (any, error) {
	if obj, ok := r.singletons.Load(name); ok {
		return obj, nil
	}
	if !allowEarly {
		return nil, nil
	}

	c.goroutine()
	r.mu.Lock()
	if obj, ok := r.singletons.Load(name); ok {
		r.mu.Unlock()
		return obj, nil
	}
	f := r.inCreation[name]
	if f == nil || !r.reachableLocked(f.owner, c) {
		r.mu.Unlock()
		return nil, nil
	}
	if obj, ok := r.early[name]; ok {
		r.mu.Unlock()
		return obj, nil
	}
	factory, ok := r.earlyFactories[name]
	if !ok {
		r.mu.Unlock()
		return nil, nil
	}
	delete(r.earlyFactories, name)
	r.mu.Unlock()

	obj, err := factory()
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.early[name] = obj
	r.mu.Unlock()
	return obj, nil
}

// reachableLocked 报告 owner 是否就是 c（或与 c 在同一调用栈），或 owner 正在（间接）等待 c。
func (r *singletonRegistry) reachableLocked(owner, c *chain) bool {
	seen := make(map[*chain]bool)
	for x := owner; x != nil && !seen[x]; {
		if c.sameStack(x) {
			return true
		}
		seen[x] = true
		if x.waiting == nil {
			return false
		}
		x = x.waiting.owner
	}
	return false
}

// getOrCreate 返回单例，必要时调用 create 创建。
// 同一单例同时只有一个创建者，其他链阻塞等待；等待会形成环时返回 CurrentlyInCreationError。
func (r *singletonRegistry) getOrCreate(name string, c *chain, create ObjectFactory) (any, error) {
	c.goroutine()
	for {
		if obj, ok := r.singletons.Load(name); ok {
			return obj, nil
		}

		r.mu.Lock()
		if obj, ok := r.singletons.Load(name); ok {
			r.mu.Unlock()
			return obj, nil
		}
		if r.inDestruction {
			r.mu.Unlock()
			return nil, &CreationError{Bean: name, Err: ErrCreationNotAllowed}
		}
		if f := r.inCreation[name]; f != nil {
			if r.reachableLocked(f.owner, c) {
				r.mu.Unlock()
				return nil, &CurrentlyInCreationError{Bean: name}
			}
			c.waiting = f
			r.mu.Unlock()

			<-f.done

			r.mu.Lock()
			c.waiting = nil
			r.mu.Unlock()
			continue
		}

		f := &inflight{owner: c, done: make(chan struct{})}
		r.inCreation[name] = f
		r.mu.Unlock()

		obj, err := r.run(name, create)

		r.mu.Lock()
		delete(r.inCreation, name)
		if err == nil {
			r.addLocked(name, obj)
		} else {
			delete(r.early, name)
			delete(r.earlyFactories, name)
		}
		close(f.done)
		r.mu.Unlock()
		return obj, err
	}
}

func (r *singletonRegistry) run(name string, create ObjectFactory) (obj any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &CreationError{Bean: name, Msg: "panic during creation", Err: fmt.Errorf("%v", p)}
		}
	}()
	return create()
}

// beginProduct 登记 c 为 FactoryBean 产物 name 的创建者。
//
// 返回非 nil 的 inflight 时由 c 负责创建，结束后调用 endProduct；
// 返回 reentrant 表示创建者与 c 在同一调用栈（或形成等待环），c 直接重入创建；
// 两者皆空表示已等到其他链创建结束，调用方应重新检查产物缓存。
func (r *singletonRegistry) beginProduct(name string, c *chain) (f *inflight, reentrant bool) {
	c.goroutine()
	r.mu.Lock()
	existing := r.producing[name]
	if existing == nil {
		f = &inflight{owner: c, done: make(chan struct{})}
		r.producing[name] = f
		r.mu.Unlock()
		return f, false
	}
	if r.reachableLocked(existing.owner, c) {
		r.mu.Unlock()
		return nil, true
	}
	c.waiting = existing
	r.mu.Unlock()

	<-existing.done

	r.mu.Lock()
	c.waiting = nil
	r.mu.Unlock()
	return nil, false
}

func (r *singletonRegistry) endProduct(name string, f *inflight) {
	r.mu.Lock()
	if r.producing[name] == f {
		delete(r.producing, name)
	}
	close(f.done)
	r.mu.Unlock()
}

// inCreationBy 报告 name 是否正由链 c 创建。
func (r *singletonRegistry) inCreationBy(name string, c *chain) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.inCreation[name]
	return f != nil && f.owner == c
}

func (r *singletonRegistry) isInCreation(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inCreation[name] != nil
}

func (r *singletonRegistry) addEarlyFactory(name string, factory ObjectFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.singletons.Load(name); ok {
		return
	}
	r.earlyFactories[name] = factory
	delete(r.early, name)
}

// earlyReference 返回已经交给其他 bean 的提前引用。
func (r *singletonRegistry) earlyReference(name string) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	obj, ok := r.early[name]
	return obj, ok
}

func (r *singletonRegistry) registerDisposable(name string, d disposer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.disposables[name]; !ok {
		r.disposableOrder = append(r.disposableOrder, name)
	}
	r.disposables[name] = d
}

// registerContained 记录内部 bean 与其外部 bean 的包含关系，外部 bean 销毁时内部 bean 先被销毁。
func (r *singletonRegistry) registerContained(contained, containing string) {
	r.mu.Lock()
	if !slices.Contains(r.contained[containing], contained) {
		r.contained[containing] = append(r.contained[containing], contained)
	}
	r.mu.Unlock()
	r.registerDependent(contained, containing)
}

// registerDependent 记录 dependent 依赖 name。
func (r *singletonRegistry) registerDependent(name, dependent string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.dependents[name], dependent) {
		r.dependents[name] = append(r.dependents[name], dependent)
	}
	if !slices.Contains(r.dependencies[dependent], name) {
		r.dependencies[dependent] = append(r.dependencies[dependent], name)
	}
}

// isDependent 报告 dependent 是否（传递地）依赖 name。
func (r *singletonRegistry) isDependent(name, dependent string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isDependentLocked(name, dependent, make(map[string]bool))
}

func (r *singletonRegistry) isDependentLocked(name, dependent string, seen map[string]bool) bool {
	if seen[name] {
		return false
	}
	seen[name] = true
	for _, d := range r.dependents[name] {
		if d == dependent || r.isDependentLocked(d, dependent, seen) {
			return true
		}
	}
	return false
}

func (r *singletonRegistry) dependentsOf(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dependents[name])
}

func (r *singletonRegistry) dependenciesOf(name string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.dependencies[name])
}

// destroyAll 按注册的逆序销毁全部单例并清空缓存。
func (r *singletonRegistry) destroyAll() {
	r.mu.Lock()
	r.inDestruction = true
	names := slices.Clone(r.disposableOrder)
	r.mu.Unlock()

	for i := len(names) - 1; i >= 0; i-- {
		r.destroySingleton(names[i])
	}

	r.mu.Lock()
	r.contained = make(map[string][]string)
	r.dependents = make(map[string][]string)
	r.dependencies = make(map[string][]string)
	r.singletons.Range(func(key, _ any) bool {
		r.singletons.Delete(key)
		return true
	})
	r.early = make(map[string]any)
	r.earlyFactories = make(map[string]ObjectFactory)
	r.registered = nil
	r.inDestruction = false
	r.mu.Unlock()
}

// destroySingleton 移除并销毁单例，依赖它的 bean 先被销毁。
func (r *singletonRegistry) destroySingleton(name string) {
	r.mu.Lock()
	r.singletons.Delete(name)
	delete(r.early, name)
	delete(r.earlyFactories, name)
	r.registered = slices.DeleteFunc(r.registered, func(n string) bool { return n == name })
	d := r.disposables[name]
	delete(r.disposables, name)
	r.disposableOrder = slices.DeleteFunc(r.disposableOrder, func(n string) bool { return n == name })
	r.mu.Unlock()

	r.destroyBean(name, d)
}

func (r *singletonRegistry) destroyBean(name string, d disposer) {
	r.mu.Lock()
	dependents := r.dependents[name]
	delete(r.dependents, name)
	r.mu.Unlock()

	for i := len(dependents) - 1; i >= 0; i-- {
		r.destroySingleton(dependents[i])
	}

	if d != nil {
		if err := d.destroy(); err != nil {
			r.logger.Warn("Destruction of bean failed",
				logging.Field{Key: "bean", Value: name},
				logging.Field{Key: "error", Value: err})
		}
	}

	r.mu.Lock()
	contained := r.contained[name]
	delete(r.contained, name)
	r.mu.Unlock()

	for _, inner := range contained {
		r.destroySingleton(inner)
	}

	r.mu.Lock()
	for key, deps := range r.dependents {
		deps = slices.DeleteFunc(deps, func(n string) bool { return n == name })
		if len(deps) == 0 {
			delete(r.dependents, key)
		} else {
			r.dependents[key] = deps
		}
	}
	delete(r.dependencies, name)
	r.mu.Unlock()
}
