package beans

import "reflect"

// chainView 是注入给构造参数的工厂视图。
// 通过它发起的查找沿用注入时的创建链，因此在构造函数内部回查正在创建的 bean 也能正确检测循环。
// 视图不应在其他 goroutine 中使用。
type chainView struct {
	f *Factory
	c *chain
}

var (
	_ ListableBeanFactory     = (*chainView)(nil)
	_ HierarchicalBeanFactory = (*chainView)(nil)
)

func (v *chainView) GetBean(name string) (any, error) {
	return v.f.doGetBean(v.c, name, nil, nil)
}

func (v *chainView) GetBeanWithArgs(name string, args ...any) (any, error) {
	return v.f.doGetBean(v.c, name, nil, args)
}

func (v *chainView) GetTypedBean(name string, typ reflect.Type) (any, error) {
	return v.f.doGetBean(v.c, name, typ, nil)
}

func (v *chainView) GetBeanOfType(typ reflect.Type) (any, error) {
	return v.f.resolveNamedBean(v.c, typ)
}

func (v *chainView) ContainsBean(name string) bool { return v.f.ContainsBean(name) }

func (v *chainView) IsSingleton(name string) (bool, error) { return v.f.IsSingleton(name) }

func (v *chainView) IsPrototype(name string) (bool, error) { return v.f.IsPrototype(name) }

func (v *chainView) IsTypeMatch(name string, typ reflect.Type) (bool, error) {
	return v.f.IsTypeMatch(name, typ)
}

func (v *chainView) Type(name string) (reflect.Type, error) { return v.f.Type(name) }

func (v *chainView) Aliases(name string) []string { return v.f.Aliases(name) }

func (v *chainView) ContainsBeanDefinition(name string) bool {
	return v.f.ContainsBeanDefinition(name)
}

func (v *chainView) BeanDefinitionCount() int { return v.f.BeanDefinitionCount() }

func (v *chainView) BeanDefinitionNames() []string { return v.f.BeanDefinitionNames() }

func (v *chainView) BeanNamesForType(typ reflect.Type, includeNonSingletons, allowEagerInit bool) []string {
	return v.f.BeanNamesForType(typ, includeNonSingletons, allowEagerInit)
}

func (v *chainView) BeansOfType(typ reflect.Type, includeNonSingletons, allowEagerInit bool) (map[string]any, error) {
	names := v.f.BeanNamesForType(typ, includeNonSingletons, allowEagerInit)
	out := make(map[string]any, len(names))
	for _, name := range names {
		bean, err := v.GetBean(name)
		if err != nil {
			return nil, err
		}
		out[name] = bean
	}
	return out, nil
}

func (v *chainView) ParentBeanFactory() BeanFactory { return v.f.ParentBeanFactory() }

func (v *chainView) ContainsLocalBean(name string) bool { return v.f.ContainsLocalBean(name) }

// Unwrap 返回底层工厂。
func (v *chainView) Unwrap() *Factory { return v.f }
