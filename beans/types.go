package beans

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/gocrud/ioc/logging"
)

// predictBeanType 根据定义推断实例类型，不创建任何对象。
func (f *Factory) predictBeanType(beanName string, def *BeanDefinition) reflect.Type {
	if def.FactoryMethodName != "" {
		ownerType := f.typeForName(def.FactoryBeanName)
		if ownerType == nil {
			return def.Type
		}
		if m, ok := ownerType.MethodByName(def.FactoryMethodName); ok && m.Type.NumOut() > 0 {
			return m.Type.Out(0)
		}
		return def.Type
	}
	if def.Type != nil {
		return def.Type
	}
	if len(def.Constructors) > 0 {
		var t reflect.Type
		for _, ctor := range def.Constructors {
			out := reflect.TypeOf(ctor).Out(0)
			if t == nil {
				t = out
			} else if t != out {
				return t
			}
		}
		return t
	}
	return nil
}

// typeForName 返回名为 name 的 bean 的原始类型（对 FactoryBean 返回工厂类型）。
func (f *Factory) typeForName(name string) reflect.Type {
	beanName := f.transformedName(name)
	if inst, ok := f.singletons.get(beanName); ok {
		return reflect.TypeOf(inst)
	}
	if !f.ContainsBeanDefinition(beanName) {
		return nil
	}
	mbd, err := f.mergedDefinition(beanName)
	if err != nil {
		return nil
	}
	return f.predictBeanType(beanName, mbd.def)
}

func (f *Factory) isFactoryBean(beanName string) bool {
	if inst, ok := f.singletons.get(beanName); ok {
		_, is := inst.(FactoryBean)
		return is
	}
	if !f.ContainsBeanDefinition(beanName) {
		if parent, ok := f.parentFactory(); ok {
			return parent.isFactoryBean(beanName)
		}
		return false
	}
	mbd, err := f.mergedDefinition(beanName)
	if err != nil {
		return false
	}
	return f.isFactoryBeanDef(beanName, mbd)
}

func (f *Factory) isFactoryBeanDef(beanName string, mbd *mergedDefinition) bool {
	t := f.predictBeanType(beanName, mbd.def)
	return t != nil && t.Implements(factoryBeanType)
}

// IsFactoryBean 报告 name 是否为 FactoryBean。
func (f *Factory) IsFactoryBean(name string) bool {
	return f.isFactoryBean(f.transformedName(name))
}

// Type 返回 name 对应 bean 的类型，尽量不触发创建。
// 对 FactoryBean 返回产物类型：优先使用 ObjectType 提示或零值工厂的静态报告，必要时才实例化工厂。
func (f *Factory) Type(name string) (reflect.Type, error) {
	return f.typeOf(name, true)
}

func (f *Factory) typeOf(name string, allowInit bool) (reflect.Type, error) {
	beanName := f.transformedName(name)
	deref := isFactoryDereference(name)

	if inst, ok := f.singletons.get(beanName); ok {
		if fb, ok := inst.(FactoryBean); ok && !deref {
			return fb.ObjectType(), nil
		}
		return reflect.TypeOf(inst), nil
	}

	if !f.ContainsBeanDefinition(beanName) {
		if f.parent != nil {
			return f.parent.Type(f.originalName(name))
		}
		return nil, &NoSuchBeanError{Name: name}
	}

	mbd, err := f.mergedDefinition(beanName)
	if err != nil {
		return nil, err
	}
	t := f.predictBeanType(beanName, mbd.def)
	if t != nil && t.Implements(factoryBeanType) && !deref {
		return f.factoryProductType(beanName, mbd, allowInit), nil
	}
	return t, nil
}

// factoryProductType 推断 FactoryBean 的产物类型。
func (f *Factory) factoryProductType(beanName string, mbd *mergedDefinition, allowInit bool) reflect.Type {
	if mbd.def.ObjectType != nil {
		return mbd.def.ObjectType
	}
	if t, ok := f.productTypes.Load(beanName); ok {
		return t.(reflect.Type)
	}

	factoryType := f.predictBeanType(beanName, mbd.def)
	if t := staticObjectType(factoryType); t != nil {
		f.productTypes.Store(beanName, t)
		return t
	}

	if !allowInit || mbd.def.Abstract {
		return nil
	}
	if _, failed := f.failedTypes.Load(beanName); failed {
		return nil
	}
	inst, err := f.GetBean(FactoryBeanPrefix + beanName)
	if err != nil {
		f.failedTypes.Store(beanName, true)
		f.logger.Debug("Bean currently not creatable for type check",
			logging.Field{Key: "bean", Value: beanName},
			logging.Field{Key: "error", Value: err})
		return nil
	}
	t := inst.(FactoryBean).ObjectType()
	if t != nil {
		f.productTypes.Store(beanName, t)
	}
	return t
}

// staticObjectType 在零值工厂上调用 ObjectType；工厂依赖内部状态时（panic 或返回 nil）视为无法静态报告。
func staticObjectType(factoryType reflect.Type) (t reflect.Type) {
	if factoryType == nil {
		return nil
	}
	defer func() {
		if recover() != nil {
			t = nil
		}
	}()
	var zero reflect.Value
	if factoryType.Kind() == reflect.Ptr {
		zero = reflect.New(factoryType.Elem())
	} else {
		zero = reflect.New(factoryType).Elem()
	}
	fb, ok := zero.Interface().(FactoryBean)
	if !ok {
		return nil
	}
	return fb.ObjectType()
}

// IsTypeMatch 报告 name 对应的 bean 是否可以赋值给 typ。
func (f *Factory) IsTypeMatch(name string, typ reflect.Type) (bool, error) {
	return f.isTypeMatch(name, typ, true)
}

func (f *Factory) isTypeMatch(name string, typ reflect.Type, allowInit bool) (bool, error) {
	beanName := f.transformedName(name)
	deref := isFactoryDereference(name)

	if inst, ok := f.singletons.get(beanName); ok {
		if fb, ok := inst.(FactoryBean); ok {
			if deref {
				return reflect.TypeOf(inst).AssignableTo(typ), nil
			}
			pt := fb.ObjectType()
			return pt != nil && pt.AssignableTo(typ), nil
		}
		return !deref && reflect.TypeOf(inst).AssignableTo(typ), nil
	}

	if !f.ContainsBeanDefinition(beanName) {
		if f.parent != nil {
			return f.parent.IsTypeMatch(f.originalName(name), typ)
		}
		return false, &NoSuchBeanError{Name: name}
	}

	mbd, err := f.mergedDefinition(beanName)
	if err != nil {
		return false, err
	}
	predicted := f.predictBeanType(beanName, mbd.def)
	if predicted == nil {
		return false, nil
	}
	if predicted.Implements(factoryBeanType) {
		if deref {
			return predicted.AssignableTo(typ), nil
		}
		pt := f.factoryProductType(beanName, mbd, allowInit)
		return pt != nil && pt.AssignableTo(typ), nil
	}
	if deref {
		return false, nil
	}
	return predicted.AssignableTo(typ), nil
}

type typeKey struct {
	typ                  reflect.Type
	includeNonSingletons bool
	allowEagerInit       bool
}

// BeanNamesForType 返回类型匹配 typ 的 bean 名称：先按定义注册顺序，再是手工注册的单例。
// FactoryBean 按产物类型匹配；若产物不匹配而工厂本身匹配，则返回带 & 前缀的名称。
// allowEagerInit 为 false 时不会为了判断类型而实例化 FactoryBean。
func (f *Factory) BeanNamesForType(typ reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	key := typeKey{typ, includeNonSingletons, allowEagerInit}
	if f.frozen.Load() {
		if cached, ok := f.typeNames.Load(key); ok {
			return slices.Clone(cached.([]string))
		}
	}
	names := f.doBeanNamesForType(typ, includeNonSingletons, allowEagerInit)
	if f.frozen.Load() {
		f.typeNames.Store(key, slices.Clone(names))
	}
	return names
}

func (f *Factory) doBeanNamesForType(typ reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	var result []string
	defNames := f.BeanDefinitionNames()

	for _, name := range defNames {
		if f.aliases.isAlias(name) {
			continue
		}
		mbd, err := f.mergedDefinition(name)
		if err != nil {
			f.logger.Debug("Ignoring bean definition in type lookup",
				logging.Field{Key: "bean", Value: name},
				logging.Field{Key: "error", Value: err})
			continue
		}
		if mbd.def.Abstract {
			continue
		}

		isFactory := f.isFactoryBeanDef(name, mbd)
		allowFactoryInit := allowEagerInit || f.singletons.contains(name)

		matched := false
		if !isFactory {
			if includeNonSingletons || mbd.def.IsSingleton() {
				ok, _ := f.isTypeMatch(name, typ, allowFactoryInit)
				matched = ok
			}
		} else {
			if includeNonSingletons || f.isProductSingleton(name, mbd) {
				ok, _ := f.isTypeMatch(name, typ, allowFactoryInit)
				matched = ok
			}
			if !matched {
				ok, _ := f.isTypeMatch(FactoryBeanPrefix+name, typ, false)
				if ok && (includeNonSingletons || mbd.def.IsSingleton()) {
					result = append(result, FactoryBeanPrefix+name)
				}
				continue
			}
		}
		if matched {
			result = append(result, name)
		}
	}

	for _, name := range f.singletons.names() {
		if slices.Contains(defNames, name) {
			continue
		}
		inst, ok := f.singletons.get(name)
		if !ok {
			continue
		}
		if fb, ok := inst.(FactoryBean); ok {
			if (includeNonSingletons || fb.IsSingleton()) && fb.ObjectType() != nil && fb.ObjectType().AssignableTo(typ) {
				result = append(result, name)
				continue
			}
			if reflect.TypeOf(inst).AssignableTo(typ) {
				result = append(result, FactoryBeanPrefix+name)
			}
			continue
		}
		if reflect.TypeOf(inst).AssignableTo(typ) {
			result = append(result, name)
		}
	}
	return result
}

// isProductSingleton 在不实例化工厂的前提下判断产物是否为单例。
func (f *Factory) isProductSingleton(name string, mbd *mergedDefinition) bool {
	if inst, ok := f.singletons.get(name); ok {
		if fb, ok := inst.(FactoryBean); ok {
			return fb.IsSingleton()
		}
	}
	return mbd.def.IsSingleton()
}

// beanNamesForTypeIncludingAncestors 合并父工厂的结果，本地同名 bean 覆盖父工厂的。
func (f *Factory) beanNamesForTypeIncludingAncestors(typ reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	names := f.BeanNamesForType(typ, includeNonSingletons, allowEagerInit)
	parent, ok := f.parent.(ListableBeanFactory)
	if !ok {
		return names
	}
	for _, pn := range parent.BeanNamesForType(typ, includeNonSingletons, allowEagerInit) {
		if !slices.Contains(names, pn) && !f.ContainsLocalBean(pn) {
			names = append(names, pn)
		}
	}
	return names
}

// BeansOfType 返回类型匹配的所有 bean 实例。
func (f *Factory) BeansOfType(typ reflect.Type, includeNonSingletons, allowEagerInit bool) (map[string]any, error) {
	names := f.BeanNamesForType(typ, includeNonSingletons, allowEagerInit)
	out := make(map[string]any, len(names))
	for _, name := range names {
		bean, err := f.GetBean(name)
		if err != nil {
			var cic *CurrentlyInCreationError
			if errors.As(err, &cic) {
				f.logger.Debug("Ignoring match to currently created bean",
					logging.Field{Key: "bean", Value: name})
				continue
			}
			return nil, fmt.Errorf("beans: failed to get bean '%s' of type %v: %w", name, typ, err)
		}
		out[name] = bean
	}
	return out, nil
}
