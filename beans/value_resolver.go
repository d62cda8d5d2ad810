package beans

import (
	"fmt"
	"reflect"
	"sort"
)

// resolveValue 把定义中的值解析为运行时对象：引用、内部定义、集合按需递归解析，字面量原样返回。
// target 用于推断集合元素类型，可以为 nil。
func (f *Factory) resolveValue(c *chain, beanName string, def *BeanDefinition, argName string, value any, target reflect.Type) (any, error) {
	switch v := value.(type) {
	case BeanRef:
		return f.resolveReference(c, beanName, argName, v)
	case *BeanRef:
		return f.resolveReference(c, beanName, argName, *v)
	case *BeanDefinition:
		return f.resolveInnerBean(c, beanName, def, argName, v)
	case List:
		return f.resolveList(c, beanName, def, argName, v, target)
	case Map:
		return f.resolveMap(c, beanName, def, argName, v, target)
	default:
		return value, nil
	}
}

func (f *Factory) resolveReference(c *chain, beanName, argName string, ref BeanRef) (any, error) {
	refName, err := f.ResolveEmbeddedValue(ref.Name)
	if err != nil {
		return nil, f.creationError(c, beanName, "cannot resolve reference name while setting "+argName, err)
	}
	bean, err := f.doGetBean(c, refName, nil, nil)
	if err != nil {
		return nil, f.creationError(c, beanName,
			fmt.Sprintf("cannot resolve reference to bean '%s' while setting %s", refName, argName), err)
	}
	f.singletons.registerDependent(f.transformedName(refName), beanName)
	return bean, nil
}

func (f *Factory) resolveInnerBean(c *chain, beanName string, outer *BeanDefinition, argName string, inner *BeanDefinition) (any, error) {
	innerName := fmt.Sprintf("(inner bean)#%p", inner)
	if err := inner.Validate(); err != nil {
		return nil, f.creationError(c, beanName, "invalid inner bean definition while setting "+argName, err)
	}
	inner.normalize()
	merged, err := f.merge(innerName, inner, outer, map[string]bool{innerName: true})
	if err != nil {
		return nil, f.creationError(c, beanName, "cannot merge inner bean definition while setting "+argName, err)
	}

	for _, dep := range merged.DependsOn {
		dep = f.transformedName(dep)
		f.singletons.registerDependent(dep, innerName)
		if _, err := f.doGetBean(c, dep, nil, nil); err != nil {
			return nil, f.creationError(c, beanName, "cannot create inner bean dependency "+dep, err)
		}
	}

	inst, err := f.createBean(c, innerName, &mergedDefinition{def: merged}, nil)
	if err != nil {
		return nil, f.creationError(c, beanName, "cannot create inner bean while setting "+argName, err)
	}
	if merged.IsSingleton() && beanName != "" {
		f.singletons.registerContained(innerName, beanName)
	}
	return f.objectForInstance(c, inst, innerName, innerName, true)
}

func (f *Factory) resolveList(c *chain, beanName string, def *BeanDefinition, argName string, l List, target reflect.Type) (any, error) {
	var elemType reflect.Type
	if target != nil && (target.Kind() == reflect.Slice || target.Kind() == reflect.Array) {
		elemType = target.Elem()
	}
	out := make([]any, 0, len(l.Elements))
	for i, e := range l.Elements {
		v, err := f.resolveValue(c, beanName, def, fmt.Sprintf("%s[%d]", argName, i), e, elemType)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (f *Factory) resolveMap(c *chain, beanName string, def *BeanDefinition, argName string, m Map, target reflect.Type) (any, error) {
	var elemType reflect.Type
	if target != nil && target.Kind() == reflect.Map {
		elemType = target.Elem()
	}
	keys := make([]string, 0, len(m.Entries))
	for k := range m.Entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m.Entries))
	for _, k := range keys {
		v, err := f.resolveValue(c, beanName, def, fmt.Sprintf("%s[%s]", argName, k), m.Entries[k], elemType)
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}
