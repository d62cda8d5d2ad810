package beans

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gocrud/ioc/logging"
)

// Factory 是定义注册表与依赖解析、生命周期引擎的默认实现。
//
// 所有方法都可以被多个 goroutine 并发调用。
type Factory struct {
	singletons *singletonRegistry
	aliases    *aliasRegistry

	defMu       sync.RWMutex
	defs        map[string]*BeanDefinition
	names       []string
	frozen      atomic.Bool
	frozenNames []string

	mergedMu sync.Mutex
	merged   map[string]*mergedDefinition
	created  sync.Map

	ppMu              sync.RWMutex
	postProcessors    []BeanPostProcessor
	ignoredInterfaces []reflect.Type

	products     sync.Map
	productTypes sync.Map
	failedTypes  sync.Map
	typeNames    sync.Map

	resolvableMu sync.RWMutex
	resolvable   map[reflect.Type]any

	scopeMu sync.RWMutex
	scopes  map[string]Scope

	valueMu        sync.RWMutex
	valueResolvers []ValueResolver

	parent             BeanFactory
	allowOverriding    bool
	allowCircular      bool
	priorityComparator bool
	logger             logging.Logger
}

// FactoryOption 配置 Factory。
type FactoryOption func(*Factory)

// WithLogger 设置日志记录器。
func WithLogger(logger logging.Logger) FactoryOption {
	return func(f *Factory) {
		f.logger = logger
	}
}

// WithParentFactory 设置父工厂，本地找不到定义时回退到父工厂。
func WithParentFactory(parent BeanFactory) FactoryOption {
	return func(f *Factory) {
		f.parent = parent
	}
}

// WithAllowOverriding 设置是否允许同名定义覆盖，默认允许。
func WithAllowOverriding(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowOverriding = allow
	}
}

// WithAllowCircularReferences 设置是否允许通过提前暴露引用解决单例循环依赖，默认允许。
func WithAllowCircularReferences(allow bool) FactoryOption {
	return func(f *Factory) {
		f.allowCircular = allow
	}
}

// WithPriorityComparator 启用按 Priority 在多个候选中决出唯一 bean。
func WithPriorityComparator() FactoryOption {
	return func(f *Factory) {
		f.priorityComparator = true
	}
}

// NewFactory 创建一个空的 Factory。
func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		aliases:         newAliasRegistry(),
		defs:            make(map[string]*BeanDefinition),
		merged:          make(map[string]*mergedDefinition),
		resolvable:      make(map[reflect.Type]any),
		scopes:          make(map[string]Scope),
		allowOverriding: true,
		allowCircular:   true,
		logger:          logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.singletons = newSingletonRegistry(f.logger)
	return f
}

// ParentBeanFactory 返回父工厂。
func (f *Factory) ParentBeanFactory() BeanFactory {
	return f.parent
}

// parentFactory 返回父工厂背后的 *Factory，父工厂是包装类型时通过 Factory() 取出。
func (f *Factory) parentFactory() (*Factory, bool) {
	switch p := f.parent.(type) {
	case *Factory:
		return p, true
	case interface{ Factory() *Factory }:
		return p.Factory(), p.Factory() != nil
	}
	return nil, false
}

// SetParentBeanFactory 设置父工厂，只能设置一次。
func (f *Factory) SetParentBeanFactory(parent BeanFactory) error {
	if f.parent != nil && f.parent != parent {
		return errors.New("beans: parent bean factory already associated")
	}
	f.parent = parent
	return nil
}

// AllowBeanDefinitionOverriding 报告是否允许覆盖定义。
func (f *Factory) AllowBeanDefinitionOverriding() bool {
	return f.allowOverriding
}

// Logger 返回工厂使用的日志记录器。
func (f *Factory) Logger() logging.Logger {
	return f.logger
}

// GetBean 按名称获取 bean。名称可以是别名，也可以带 & 前缀请求 FactoryBean 本身。
func (f *Factory) GetBean(name string) (any, error) {
	return f.doGetBean(newChain(), name, nil, nil)
}

// GetBeanWithArgs 使用显式构造参数获取 bean，主要用于原型。
func (f *Factory) GetBeanWithArgs(name string, args ...any) (any, error) {
	return f.doGetBean(newChain(), name, nil, args)
}

// GetTypedBean 按名称获取 bean 并检查其类型。
func (f *Factory) GetTypedBean(name string, typ reflect.Type) (any, error) {
	return f.doGetBean(newChain(), name, typ, nil)
}

// GetBeanOfType 按类型获取唯一的 bean。
func (f *Factory) GetBeanOfType(typ reflect.Type) (any, error) {
	return f.resolveNamedBean(newChain(), typ)
}

func isFactoryDereference(name string) bool {
	return strings.HasPrefix(name, FactoryBeanPrefix)
}

func stripFactoryPrefix(name string) string {
	return strings.TrimLeft(name, FactoryBeanPrefix)
}

// transformedName 去掉 & 前缀并解析别名。
func (f *Factory) transformedName(name string) string {
	return f.aliases.canonical(stripFactoryPrefix(name))
}

// originalName 返回用于父工厂查找的名称，保留 & 前缀。
func (f *Factory) originalName(name string) string {
	beanName := f.transformedName(name)
	if isFactoryDereference(name) {
		return FactoryBeanPrefix + beanName
	}
	return beanName
}

func (f *Factory) doGetBean(c *chain, name string, required reflect.Type, args []any) (any, error) {
	beanName := f.transformedName(name)

	if len(args) == 0 {
		shared, err := f.singletons.lookup(beanName, c, true)
		if err != nil {
			return nil, f.creationError(c, beanName, "failed to obtain early reference", err)
		}
		if shared != nil {
			bean, err := f.objectForInstance(c, shared, name, beanName, true)
			if err != nil {
				return nil, err
			}
			return f.checkRequiredType(name, bean, required)
		}
	}

	if c.prototypeInCreation(beanName) {
		return nil, &CurrentlyInCreationError{Bean: beanName}
	}

	if f.parent != nil && !f.ContainsBeanDefinition(beanName) {
		return f.getFromParent(name, required, args)
	}

	mbd, err := f.mergedDefinition(beanName)
	if err != nil {
		return nil, err
	}
	if mbd.def.Abstract {
		return nil, &BeanIsAbstractError{Name: beanName}
	}
	f.created.Store(beanName, true)

	for _, dep := range mbd.def.DependsOn {
		dep = f.transformedName(dep)
		if f.singletons.isDependent(beanName, dep) {
			return nil, f.creationError(c, beanName,
				fmt.Sprintf("circular depends-on relationship between '%s' and '%s'", beanName, dep), nil)
		}
		f.singletons.registerDependent(dep, beanName)
		if _, err := f.doGetBean(c, dep, nil, nil); err != nil {
			return nil, f.creationError(c, beanName, fmt.Sprintf("'%s' depends on missing bean '%s'", beanName, dep), err)
		}
	}

	var instance any
	switch {
	case mbd.def.IsSingleton():
		if len(args) > 0 && f.singletons.contains(beanName) {
			return nil, &DefinitionStoreError{Name: beanName,
				Msg: "cannot apply explicit arguments to an already created singleton"}
		}
		instance, err = f.singletons.getOrCreate(beanName, c, func() (any, error) {
			obj, err := f.createBean(c, beanName, mbd, args)
			if err != nil {
				f.destroySingleton(beanName)
			}
			return obj, err
		})
		if err != nil {
			return nil, err
		}
	case mbd.def.IsPrototype():
		c.beforePrototype(beanName)
		instance, err = f.createBean(c, beanName, mbd, args)
		c.afterPrototype(beanName)
		if err != nil {
			return nil, err
		}
	default:
		scope, ok := f.RegisteredScope(mbd.def.Scope)
		if !ok {
			return nil, f.creationError(c, beanName, fmt.Sprintf("no scope registered for scope name '%s'", mbd.def.Scope), nil)
		}
		instance, err = scope.Get(beanName, func() (any, error) {
			c.beforePrototype(beanName)
			defer c.afterPrototype(beanName)
			return f.createBean(c, beanName, mbd, args)
		})
		if err != nil {
			return nil, f.creationError(c, beanName, fmt.Sprintf("scope '%s' failed", mbd.def.Scope), err)
		}
	}

	bean, err := f.objectForInstance(c, instance, name, beanName, true)
	if err != nil {
		return nil, err
	}
	return f.checkRequiredType(name, bean, required)
}

func (f *Factory) getFromParent(name string, required reflect.Type, args []any) (any, error) {
	original := f.originalName(name)
	switch {
	case len(args) > 0:
		return f.parent.GetBeanWithArgs(original, args...)
	case required != nil:
		return f.parent.GetTypedBean(original, required)
	default:
		return f.parent.GetBean(original)
	}
}

func (f *Factory) checkRequiredType(name string, bean any, required reflect.Type) (any, error) {
	if required == nil || bean == nil {
		return bean, nil
	}
	actual := reflect.TypeOf(bean)
	if !actual.AssignableTo(required) {
		return nil, &NotOfRequiredTypeError{Name: name, Required: required, Actual: actual}
	}
	return bean, nil
}

// objectForInstance 对 FactoryBean 返回其产物，对 & 请求返回工厂本身。
func (f *Factory) objectForInstance(c *chain, instance any, name, beanName string, postProcess bool) (any, error) {
	if isFactoryDereference(name) {
		if _, ok := instance.(FactoryBean); !ok {
			return nil, &NotAFactoryError{Name: beanName, Actual: reflect.TypeOf(instance)}
		}
		return instance, nil
	}
	fb, ok := instance.(FactoryBean)
	if !ok {
		return instance, nil
	}
	return f.objectFromFactoryBean(c, fb, beanName, postProcess)
}

func (f *Factory) creationError(c *chain, beanName, msg string, err error) error {
	var ce *CreationError
	if errors.As(err, &ce) && ce.Bean == beanName && msg == "" {
		return err
	}
	chain := c.snapshot()
	if len(chain) == 0 || chain[len(chain)-1] != beanName {
		chain = append(chain, beanName)
	}
	return &CreationError{Bean: beanName, Chain: chain, Msg: msg, Err: err}
}

// ContainsBean 报告本工厂或父工厂能否提供名为 name 的 bean。
func (f *Factory) ContainsBean(name string) bool {
	beanName := f.transformedName(name)
	if f.singletons.contains(beanName) || f.ContainsBeanDefinition(beanName) {
		return !isFactoryDereference(name) || f.isFactoryBean(beanName)
	}
	if f.parent != nil {
		return f.parent.ContainsBean(f.originalName(name))
	}
	return false
}

// ContainsLocalBean 只在本工厂中查找，不回退父工厂。
func (f *Factory) ContainsLocalBean(name string) bool {
	beanName := f.transformedName(name)
	return (f.singletons.contains(beanName) || f.ContainsBeanDefinition(beanName)) &&
		(!isFactoryDereference(name) || f.isFactoryBean(beanName))
}

// ContainsSingleton 报告单例是否已经完全创建。
func (f *Factory) ContainsSingleton(name string) bool {
	return f.singletons.contains(f.transformedName(name))
}

// SingletonNames 按注册顺序返回已创建的单例名称。
func (f *Factory) SingletonNames() []string {
	return f.singletons.names()
}

// IsSingleton 报告 name 是否总是返回同一实例。
func (f *Factory) IsSingleton(name string) (bool, error) {
	beanName := f.transformedName(name)
	deref := isFactoryDereference(name)

	if inst, ok := f.singletons.get(beanName); ok {
		if fb, ok := inst.(FactoryBean); ok {
			return deref || fb.IsSingleton(), nil
		}
		return !deref, nil
	}

	if f.parent != nil && !f.ContainsBeanDefinition(beanName) {
		return f.parent.IsSingleton(f.originalName(name))
	}

	mbd, err := f.mergedDefinition(beanName)
	if err != nil {
		return false, err
	}
	if !mbd.def.IsSingleton() {
		return false, nil
	}
	if f.isFactoryBeanDef(beanName, mbd) {
		if deref {
			return true, nil
		}
		fb, err := f.factoryBeanInstance(beanName)
		if err != nil {
			return false, err
		}
		return fb.IsSingleton(), nil
	}
	return !deref, nil
}

// IsPrototype 报告 name 是否每次返回新实例。
func (f *Factory) IsPrototype(name string) (bool, error) {
	beanName := f.transformedName(name)
	deref := isFactoryDereference(name)

	if f.parent != nil && !f.ContainsBeanDefinition(beanName) {
		return f.parent.IsPrototype(f.originalName(name))
	}

	mbd, err := f.mergedDefinition(beanName)
	if err != nil {
		return false, err
	}
	if mbd.def.IsPrototype() {
		return !deref || f.isFactoryBeanDef(beanName, mbd), nil
	}
	if deref || !f.isFactoryBeanDef(beanName, mbd) {
		return false, nil
	}
	fb, err := f.factoryBeanInstance(beanName)
	if err != nil {
		return false, err
	}
	if smart, ok := fb.(SmartFactoryBean); ok {
		return smart.IsPrototype(), nil
	}
	return !fb.IsSingleton(), nil
}

func (f *Factory) factoryBeanInstance(beanName string) (FactoryBean, error) {
	inst, err := f.GetBean(FactoryBeanPrefix + beanName)
	if err != nil {
		return nil, err
	}
	return inst.(FactoryBean), nil
}

// Aliases 返回 name 的别名；若 name 本身是别名，还包括规范名称。
func (f *Factory) Aliases(name string) []string {
	beanName := f.transformedName(name)
	prefix := ""
	if isFactoryDereference(name) {
		prefix = FactoryBeanPrefix
	}
	var out []string
	fullName := stripFactoryPrefix(name)
	if fullName != beanName {
		out = append(out, prefix+beanName)
	}
	for _, alias := range f.aliases.aliasesOf(beanName) {
		if alias != fullName {
			out = append(out, prefix+alias)
		}
	}
	if !f.ContainsLocalBean(beanName) && f.parent != nil {
		out = append(out, f.parent.Aliases(f.originalName(name))...)
	}
	return out
}

// RegisterSingleton 直接注册一个已创建的对象。
func (f *Factory) RegisterSingleton(name string, obj any) error {
	if name == "" || obj == nil {
		return errors.New("beans: singleton name and object must not be empty")
	}
	if err := f.singletons.register(name, obj); err != nil {
		return err
	}
	f.clearTypeCaches()
	return nil
}

// RegisterResolvableDependency 让 typ 类型的依赖直接解析为 value，而 value 本身不是容器中的 bean。
func (f *Factory) RegisterResolvableDependency(typ reflect.Type, value any) {
	f.resolvableMu.Lock()
	defer f.resolvableMu.Unlock()
	f.resolvable[typ] = value
}

// RegisterScope 注册自定义作用域。
func (f *Factory) RegisterScope(name string, scope Scope) error {
	if name == ScopeSingleton || name == ScopePrototype {
		return fmt.Errorf("beans: cannot replace built-in scope '%s'", name)
	}
	f.scopeMu.Lock()
	defer f.scopeMu.Unlock()
	if old, ok := f.scopes[name]; ok && old != scope {
		f.logger.Debug("Replacing scope", logging.Field{Key: "scope", Value: name})
	}
	f.scopes[name] = scope
	return nil
}

// RegisteredScope 返回已注册的作用域。
func (f *Factory) RegisteredScope(name string) (Scope, bool) {
	f.scopeMu.RLock()
	defer f.scopeMu.RUnlock()
	s, ok := f.scopes[name]
	return s, ok
}

// RegisteredScopeNames 返回自定义作用域名称。
func (f *Factory) RegisteredScopeNames() []string {
	f.scopeMu.RLock()
	defer f.scopeMu.RUnlock()
	names := make([]string, 0, len(f.scopes))
	for n := range f.scopes {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// AddEmbeddedValueResolver 添加内嵌值解析器，例如占位符解析。
func (f *Factory) AddEmbeddedValueResolver(r ValueResolver) {
	f.valueMu.Lock()
	defer f.valueMu.Unlock()
	f.valueResolvers = append(f.valueResolvers, r)
}

// HasEmbeddedValueResolver 报告是否注册了内嵌值解析器。
func (f *Factory) HasEmbeddedValueResolver() bool {
	f.valueMu.RLock()
	defer f.valueMu.RUnlock()
	return len(f.valueResolvers) > 0
}

// ResolveEmbeddedValue 依次应用所有内嵌值解析器。
func (f *Factory) ResolveEmbeddedValue(value string) (string, error) {
	f.valueMu.RLock()
	resolvers := slices.Clone(f.valueResolvers)
	f.valueMu.RUnlock()

	result := value
	for _, r := range resolvers {
		var err error
		if result, err = r(result); err != nil {
			return "", err
		}
	}
	return result, nil
}

// PreInstantiateSingletons 创建所有非抽象、非延迟的单例，然后回调 SmartInitializingSingleton。
func (f *Factory) PreInstantiateSingletons() error {
	names := f.BeanDefinitionNames()

	for _, name := range names {
		mbd, err := f.mergedDefinition(name)
		if err != nil {
			return err
		}
		if mbd.def.Abstract || !mbd.def.IsSingleton() || mbd.def.LazyInit {
			continue
		}
		if f.isFactoryBeanDef(name, mbd) {
			inst, err := f.GetBean(FactoryBeanPrefix + name)
			if err != nil {
				return err
			}
			if smart, ok := inst.(SmartFactoryBean); ok && smart.IsEagerInit() {
				if _, err := f.GetBean(name); err != nil {
					return err
				}
			}
			continue
		}
		if _, err := f.GetBean(name); err != nil {
			return err
		}
	}

	for _, name := range names {
		inst, ok := f.singletons.get(name)
		if !ok {
			continue
		}
		if smart, ok := inst.(SmartInitializingSingleton); ok {
			if err := smart.AfterSingletonsInstantiated(); err != nil {
				return &CreationError{Bean: name, Msg: "AfterSingletonsInstantiated failed", Err: err}
			}
		}
	}
	return nil
}

// DestroySingletons 销毁所有单例：依赖方先于被依赖方，其余按创建的逆序。
func (f *Factory) DestroySingletons() {
	f.logger.Debug("Destroying singletons")
	f.singletons.destroyAll()
	f.clearProducts()
	f.clearTypeCaches()
}

// DestroySingleton 销毁单个单例及依赖它的 bean。
func (f *Factory) DestroySingleton(name string) {
	f.destroySingleton(f.transformedName(name))
}

func (f *Factory) destroySingleton(beanName string) {
	f.singletons.destroySingleton(beanName)
	f.products.Delete(beanName)
}

// DestroyScopedBean 从自定义作用域中移除并销毁 bean。
func (f *Factory) DestroyScopedBean(name string) error {
	beanName := f.transformedName(name)
	mbd, err := f.mergedDefinition(beanName)
	if err != nil {
		return err
	}
	if mbd.def.IsSingleton() || mbd.def.IsPrototype() {
		return fmt.Errorf("beans: bean '%s' does not have a custom scope", beanName)
	}
	scope, ok := f.RegisteredScope(mbd.def.Scope)
	if !ok {
		return fmt.Errorf("beans: no scope registered for scope name '%s'", mbd.def.Scope)
	}
	if inst, ok := scope.Remove(beanName); ok {
		return f.DestroyBean(beanName, inst)
	}
	return nil
}

// DestroyBean 对一个不由容器管理生命周期的实例（例如原型）执行销毁回调。
func (f *Factory) DestroyBean(name string, bean any) error {
	var def *BeanDefinition
	if mbd, err := f.mergedDefinition(f.transformedName(name)); err == nil {
		def = mbd.def
	}
	return newDisposableAdapter(name, bean, def, f.destructionProcessors()).destroy()
}

// DependentBeans 返回依赖 name 的 bean。
func (f *Factory) DependentBeans(name string) []string {
	return f.singletons.dependentsOf(f.transformedName(name))
}

// DependenciesForBean 返回 name 依赖的 bean。
func (f *Factory) DependenciesForBean(name string) []string {
	return f.singletons.dependenciesOf(f.transformedName(name))
}

// RegisterDependentBean 手动记录依赖关系。
func (f *Factory) RegisterDependentBean(name, dependent string) {
	f.singletons.registerDependent(f.transformedName(name), f.transformedName(dependent))
}

// ResolveDependency 解析一个注入点。ctx 中携带创建链时复用该链。
func (f *Factory) ResolveDependency(ctx context.Context, desc DependencyDescriptor) (any, error) {
	return f.resolveDependency(chainFrom(ctx), desc)
}

// AutowireBean 对外部创建的对象应用属性级后处理器（例如标签注入）。
func (f *Factory) AutowireBean(ctx context.Context, existing any) error {
	if existing == nil {
		return errors.New("beans: cannot autowire nil")
	}
	name := reflect.TypeOf(existing).String()
	c := chainFrom(ctx)
	pvs := &PropertyValues{}
	var err error
	for _, p := range f.instantiationAwareProcessors() {
		if pvs, err = p.PostProcessProperties(withChain(ctx, c), pvs, existing, name); err != nil {
			return err
		}
		if pvs == nil {
			return nil
		}
	}
	return f.applyPropertyValues(c, name, nil, existing, pvs)
}

func (f *Factory) clearTypeCaches() {
	f.typeNames.Range(func(key, _ any) bool {
		f.typeNames.Delete(key)
		return true
	})
}

func (f *Factory) clearProducts() {
	f.products.Range(func(key, _ any) bool {
		f.products.Delete(key)
		return true
	})
}
