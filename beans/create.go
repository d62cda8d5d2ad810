package beans

import (
	"context"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/gocrud/ioc/logging"
)

// createBean 创建、填充并初始化一个 bean 实例。
func (f *Factory) createBean(c *chain, beanName string, mbd *mergedDefinition, args []any) (any, error) {
	c.push(beanName)
	defer c.pop()

	f.logger.Debug("Creating instance of bean", logging.Field{Key: "bean", Value: beanName})

	if bean, err := f.resolveBeforeInstantiation(beanName, mbd); err != nil {
		return nil, f.creationError(c, beanName, "BeanPostProcessor before instantiation of bean failed", err)
	} else if bean != nil {
		return bean, nil
	}

	bean, err := f.doCreateBean(c, beanName, mbd, args)
	if err != nil {
		return nil, f.creationError(c, beanName, "", err)
	}
	return bean, nil
}

func (f *Factory) resolveBeforeInstantiation(beanName string, mbd *mergedDefinition) (any, error) {
	processors := f.instantiationAwareProcessors()
	if len(processors) == 0 {
		return nil, nil
	}
	typ := f.predictBeanType(beanName, mbd.def)
	if typ == nil {
		return nil, nil
	}
	for _, p := range processors {
		bean, err := p.PostProcessBeforeInstantiation(typ, beanName)
		if err != nil {
			return nil, err
		}
		if bean != nil {
			return f.applyAfterInitialization(bean, beanName)
		}
	}
	return nil, nil
}

func (f *Factory) doCreateBean(c *chain, beanName string, mbd *mergedDefinition, args []any) (any, error) {
	instance, err := f.createInstance(c, beanName, mbd, args)
	if err != nil {
		return nil, err
	}

	mbd.postProcessOnce.Do(func() {
		typ := reflect.TypeOf(instance)
		for _, p := range f.mergedDefinitionProcessors() {
			if err := p.PostProcessMergedDefinition(mbd.def, typ, beanName); err != nil {
				mbd.postProcessErr = err
				return
			}
		}
	})
	if mbd.postProcessErr != nil {
		return nil, f.creationError(c, beanName, "post-processing of merged bean definition failed", mbd.postProcessErr)
	}

	earlyExposure := mbd.def.IsSingleton() && f.allowCircular && f.singletons.inCreationBy(beanName, c)
	if earlyExposure {
		f.logger.Trace("Eagerly caching bean to allow for resolving potential circular references",
			logging.Field{Key: "bean", Value: beanName})
		f.singletons.addEarlyFactory(beanName, func() (any, error) {
			return f.earlyBeanReference(beanName, instance)
		})
	}

	if err := f.populateBean(c, beanName, mbd, instance); err != nil {
		return nil, err
	}

	exposed, err := f.initializeBean(beanName, instance, mbd.def)
	if err != nil {
		return nil, f.creationError(c, beanName, "initialization of bean failed", err)
	}

	if earlyExposure {
		if early, ok := f.singletons.earlyReference(beanName); ok {
			if sameInstance(exposed, instance) {
				exposed = early
			} else if deps := f.singletons.dependentsOf(beanName); len(deps) > 0 {
				return nil, &CurrentlyInCreationError{Bean: beanName, Msg: fmt.Sprintf(
					"bean has been injected into other beans [%s] in its raw version as part of a circular reference, but has eventually been wrapped",
					strings.Join(deps, ","))}
			}
		}
	}

	f.registerDisposableIfNecessary(beanName, exposed, mbd.def)
	return exposed, nil
}

func (f *Factory) earlyBeanReference(beanName string, bean any) (any, error) {
	exposed := bean
	for _, p := range f.earlyReferenceProcessors() {
		ref, err := p.EarlyBeanReference(exposed, beanName)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			exposed = ref
		}
	}
	return exposed, nil
}

// createInstance 通过工厂方法、构造函数或零值实例化 bean。
func (f *Factory) createInstance(c *chain, beanName string, mbd *mergedDefinition, args []any) (any, error) {
	def := mbd.def
	if def.FactoryMethodName != "" {
		return f.instantiateUsingFactoryMethod(c, beanName, def, args)
	}
	if len(def.Constructors) > 0 {
		return f.autowireConstructor(c, beanName, def, args)
	}

	typ := def.Type
	if typ == nil {
		return nil, f.creationError(c, beanName, "no bean type, constructor or factory method specified", nil)
	}
	if len(args) > 0 || !def.ConstructorArgs.IsEmpty() {
		return nil, f.creationError(c, beanName,
			fmt.Sprintf("type %v has no constructor to receive explicit arguments", typ), nil)
	}
	switch typ.Kind() {
	case reflect.Interface:
		return nil, f.creationError(c, beanName, fmt.Sprintf("specified type %v is an interface", typ), nil)
	case reflect.Ptr:
		return reflect.New(typ.Elem()).Interface(), nil
	case reflect.Func, reflect.Chan, reflect.Map, reflect.Slice, reflect.UnsafePointer:
		return nil, f.creationError(c, beanName,
			fmt.Sprintf("type %v cannot be instantiated without a constructor", typ), nil)
	default:
		return reflect.New(typ).Elem().Interface(), nil
	}
}

// populateBean 应用自动装配和属性值。
func (f *Factory) populateBean(c *chain, beanName string, mbd *mergedDefinition, bean any) error {
	def := mbd.def
	processors := f.instantiationAwareProcessors()
	for _, p := range processors {
		cont, err := p.PostProcessAfterInstantiation(bean, beanName)
		if err != nil {
			return f.creationError(c, beanName, "PostProcessAfterInstantiation failed", err)
		}
		if !cont {
			return nil
		}
	}

	pvs := def.Properties.clone()

	switch def.AutowireMode {
	case AutowireByName:
		if err := f.autowireByName(c, beanName, def, bean, &pvs); err != nil {
			return err
		}
	case AutowireByType:
		if err := f.autowireByType(c, beanName, def, bean, &pvs); err != nil {
			return err
		}
	}

	ctx := withChain(context.Background(), c)
	current := &pvs
	for _, p := range processors {
		next, err := p.PostProcessProperties(ctx, current, bean, beanName)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		current = next
	}

	return f.applyPropertyValues(c, beanName, def, bean, current)
}

// unsatisfiedProperties 返回未被显式设置的非简单类型可写属性。
func (f *Factory) unsatisfiedProperties(bean any, pvs *PropertyValues) []propertyDescriptor {
	var out []propertyDescriptor
	for _, pd := range describeProperties(reflect.TypeOf(bean)) {
		if pvs.Contains(pd.name) || isSimpleType(pd.typ) || f.isIgnoredSetter(pd.setter) {
			continue
		}
		out = append(out, pd)
	}
	return out
}

func (f *Factory) autowireByName(c *chain, beanName string, def *BeanDefinition, bean any, pvs *PropertyValues) error {
	for _, pd := range f.unsatisfiedProperties(bean, pvs) {
		if !f.ContainsBean(pd.name) {
			if def.DependencyCheck {
				return &UnsatisfiedDependencyError{Bean: beanName, Injection: "property '" + pd.name + "'",
					Err: &NoSuchBeanError{Name: pd.name}}
			}
			f.logger.Trace("Not autowiring property by name: no matching bean found",
				logging.Field{Key: "bean", Value: beanName},
				logging.Field{Key: "property", Value: pd.name})
			continue
		}
		dep, err := f.doGetBean(c, pd.name, nil, nil)
		if err != nil {
			return &UnsatisfiedDependencyError{Bean: beanName, Injection: "property '" + pd.name + "'", Err: err}
		}
		pvs.Set(pd.name, dep)
		f.singletons.registerDependent(f.transformedName(pd.name), beanName)
	}
	return nil
}

func (f *Factory) autowireByType(c *chain, beanName string, def *BeanDefinition, bean any, pvs *PropertyValues) error {
	for _, pd := range f.unsatisfiedProperties(bean, pvs) {
		desc := DependencyDescriptor{
			Type:     pd.typ,
			Name:     pd.name,
			Required: def.DependencyCheck,
			Origin:   beanName,
		}
		dep, err := f.resolveDependency(c, desc)
		if err != nil {
			return &UnsatisfiedDependencyError{Bean: beanName, Injection: "property '" + pd.name + "'", Err: err}
		}
		if dep != nil {
			pvs.Set(pd.name, dep)
		}
	}
	return nil
}

// applyPropertyValues 解析属性值中的引用、内部定义和集合，并写入 bean。
func (f *Factory) applyPropertyValues(c *chain, beanName string, def *BeanDefinition, bean any, pvs *PropertyValues) error {
	if pvs.Len() == 0 {
		return nil
	}
	typ := reflect.TypeOf(bean)
	for _, pv := range pvs.All() {
		pd, ok := findProperty(typ, pv.Name)
		if !ok {
			return f.creationError(c, beanName, "error setting property values",
				fmt.Errorf("invalid property '%s' of bean type [%v]: no setter or exported field", pv.Name, typ))
		}
		value, err := f.resolveValue(c, beanName, def, "property '"+pv.Name+"'", pv.Value, pd.typ)
		if err != nil {
			return err
		}
		if err := setProperty(bean, pd, value); err != nil {
			return f.creationError(c, beanName, "error setting property values", err)
		}
	}
	return nil
}

// initializeBean 依次执行 Aware 回调、初始化前处理、初始化方法、初始化后处理。
func (f *Factory) initializeBean(beanName string, bean any, def *BeanDefinition) (any, error) {
	f.invokeAwareMethods(beanName, bean)

	wrapped, err := f.applyBeforeInitialization(bean, beanName)
	if err != nil {
		return nil, err
	}

	if err := f.invokeInitMethods(beanName, wrapped, def); err != nil {
		return nil, err
	}

	return f.applyAfterInitialization(wrapped, beanName)
}

func (f *Factory) invokeAwareMethods(beanName string, bean any) {
	if a, ok := bean.(BeanNameAware); ok {
		a.SetBeanName(beanName)
	}
	if a, ok := bean.(BeanFactoryAware); ok {
		a.SetBeanFactory(f)
	}
}

func (f *Factory) invokeInitMethods(beanName string, bean any, def *BeanDefinition) error {
	_, isInitializing := bean.(InitializingBean)
	if isInitializing {
		f.logger.Trace("Invoking AfterPropertiesSet", logging.Field{Key: "bean", Value: beanName})
		if err := bean.(InitializingBean).AfterPropertiesSet(); err != nil {
			return fmt.Errorf("AfterPropertiesSet: %w", err)
		}
	}
	if def == nil || def.InitMethodName == "" || (isInitializing && def.InitMethodName == "AfterPropertiesSet") {
		return nil
	}
	found, err := invokeCallback(bean, def.InitMethodName)
	if !found {
		return fmt.Errorf("could not find an init method named '%s' on bean with name '%s'", def.InitMethodName, beanName)
	}
	return err
}

func (f *Factory) registerDisposableIfNecessary(beanName string, bean any, def *BeanDefinition) {
	if def.IsPrototype() {
		return
	}
	processors := f.destructionProcessors()
	if !requiresDestruction(bean, def, processors) {
		return
	}
	adapter := newDisposableAdapter(beanName, bean, def, processors)
	adapter.logger = f.logger
	if def.IsSingleton() {
		f.singletons.registerDisposable(beanName, adapter)
		return
	}
	if scope, ok := f.RegisteredScope(def.Scope); ok {
		scope.RegisterDestructionCallback(beanName, func() {
			if err := adapter.destroy(); err != nil {
				f.logger.Warn("Destruction of scoped bean failed",
					logging.Field{Key: "bean", Value: beanName},
					logging.Field{Key: "error", Value: err})
			}
		})
	}
}

// IgnoreDependencyInterface 让按名称/类型自动装配忽略 typ 声明的 setter（通常是 Aware 接口）。
func (f *Factory) IgnoreDependencyInterface(typ reflect.Type) {
	f.ppMu.Lock()
	defer f.ppMu.Unlock()
	if !slices.Contains(f.ignoredInterfaces, typ) {
		f.ignoredInterfaces = append(f.ignoredInterfaces, typ)
	}
}

func (f *Factory) isIgnoredSetter(setter string) bool {
	if setter == "" {
		return false
	}
	if setter == "SetBeanName" || setter == "SetBeanFactory" {
		return true
	}
	f.ppMu.RLock()
	defer f.ppMu.RUnlock()
	for _, t := range f.ignoredInterfaces {
		if _, ok := t.MethodByName(setter); ok {
			return true
		}
	}
	return false
}
