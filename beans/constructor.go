package beans

import (
	"fmt"
	"reflect"
	"slices"
	"strings"
)

// autowireConstructor 从候选构造函数中选出参数最多且全部可满足的一个并调用。
// 参数个数相同的两个构造函数都可满足时视为歧义。
func (f *Factory) autowireConstructor(c *chain, beanName string, def *BeanDefinition, explicit []any) (any, error) {
	candidates := make([]reflect.Value, 0, len(def.Constructors))
	for _, ctor := range def.Constructors {
		candidates = append(candidates, reflect.ValueOf(ctor))
	}

	if len(explicit) > 0 {
		return f.invokeWithExplicitArgs(c, beanName, candidates, explicit)
	}

	slices.SortStableFunc(candidates, func(a, b reflect.Value) int {
		return b.Type().NumIn() - a.Type().NumIn()
	})

	autowire := def.AutowireMode == AutowireConstructor || len(candidates) == 1
	minArgs := def.ConstructorArgs.MinArgs()

	var (
		chosen     reflect.Value
		chosenArgs []reflect.Value
		chosenN    = -1
		ambiguous  []string
		firstErr   error
	)
	for _, ctor := range candidates {
		n := ctor.Type().NumIn()
		if chosenN >= 0 && n < chosenN {
			break
		}
		if n < minArgs {
			continue
		}
		args, err := f.createArgumentArray(c, beanName, def, ctor.Type(), autowire)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if chosenN == n {
			ambiguous = append(ambiguous, ctor.Type().String())
			continue
		}
		chosen, chosenArgs, chosenN = ctor, args, n
		ambiguous = []string{ctor.Type().String()}
	}

	if !chosen.IsValid() {
		if firstErr != nil {
			return nil, firstErr
		}
		return nil, f.creationError(c, beanName,
			fmt.Sprintf("could not resolve matching constructor (hint: specify index arguments for simple parameters; at least %d required)", minArgs), nil)
	}
	if len(ambiguous) > 1 {
		return nil, f.creationError(c, beanName,
			"ambiguous constructor matches found: "+strings.Join(ambiguous, ", "), nil)
	}

	bean, err := invoke(chosen, chosenArgs, "constructor")
	if err != nil {
		return nil, f.creationError(c, beanName, "instantiation of bean failed", err)
	}
	return bean, nil
}

func (f *Factory) invokeWithExplicitArgs(c *chain, beanName string, candidates []reflect.Value, explicit []any) (any, error) {
	for _, ctor := range candidates {
		t := ctor.Type()
		if t.NumIn() != len(explicit) {
			continue
		}
		args := make([]reflect.Value, len(explicit))
		ok := true
		for i, a := range explicit {
			v, err := convertValue(a, t.In(i))
			if err != nil {
				ok = false
				break
			}
			args[i] = v
		}
		if !ok {
			continue
		}
		bean, err := invoke(ctor, args, "constructor")
		if err != nil {
			return nil, f.creationError(c, beanName, "instantiation of bean failed", err)
		}
		return bean, nil
	}
	return nil, f.creationError(c, beanName,
		fmt.Sprintf("no constructor accepts the %d explicit arguments given", len(explicit)), nil)
}

// instantiateUsingFactoryMethod 调用另一个 bean 的方法创建实例。
func (f *Factory) instantiateUsingFactoryMethod(c *chain, beanName string, def *BeanDefinition, explicit []any) (any, error) {
	factoryName := def.FactoryBeanName
	if f.transformedName(factoryName) == beanName {
		return nil, f.creationError(c, beanName, "factory-bean reference points back to the same bean definition", nil)
	}
	owner, err := f.doGetBean(c, factoryName, nil, nil)
	if err != nil {
		return nil, f.creationError(c, beanName, fmt.Sprintf("cannot resolve factory bean '%s'", factoryName), err)
	}
	f.singletons.registerDependent(f.transformedName(factoryName), beanName)

	method := reflect.ValueOf(owner).MethodByName(def.FactoryMethodName)
	if !method.IsValid() {
		return nil, f.creationError(c, beanName,
			fmt.Sprintf("no factory method '%s' found on factory bean '%s' of type %T", def.FactoryMethodName, factoryName, owner), nil)
	}

	var args []reflect.Value
	if len(explicit) > 0 {
		t := method.Type()
		if t.NumIn() != len(explicit) {
			return nil, f.creationError(c, beanName,
				fmt.Sprintf("factory method '%s' takes %d arguments, %d given", def.FactoryMethodName, t.NumIn(), len(explicit)), nil)
		}
		for i, a := range explicit {
			v, err := convertValue(a, t.In(i))
			if err != nil {
				return nil, f.creationError(c, beanName, fmt.Sprintf("argument %d", i), err)
			}
			args = append(args, v)
		}
	} else {
		args, err = f.createArgumentArray(c, beanName, def, method.Type(), true)
		if err != nil {
			return nil, err
		}
	}

	bean, err := invoke(method, args, "factory method "+def.FactoryMethodName)
	if err != nil {
		return nil, f.creationError(c, beanName, "instantiation of bean failed", err)
	}
	return bean, nil
}

// createArgumentArray 为函数类型 fnType 准备参数：先用下标参数，再用按类型匹配的参数，最后自动装配。
func (f *Factory) createArgumentArray(c *chain, beanName string, def *BeanDefinition, fnType reflect.Type, autowire bool) ([]reflect.Value, error) {
	n := fnType.NumIn()
	args := make([]reflect.Value, n)
	used := make([]bool, len(def.ConstructorArgs.Generic))

	for i := range n {
		pt := fnType.In(i)
		injection := fmt.Sprintf("parameter %d of type [%v]", i, pt)

		holder, ok := def.ConstructorArgs.Indexed[i]
		if ok && holder.Type != nil && holder.Type != pt {
			ok = false
		}
		if !ok {
			holder, ok = matchGeneric(def.ConstructorArgs.Generic, used, pt)
		}

		if ok {
			value, err := f.resolveValue(c, beanName, def, fmt.Sprintf("constructor argument %d", i), holder.Value, pt)
			if err != nil {
				return nil, &UnsatisfiedDependencyError{Bean: beanName, Injection: injection, Err: err}
			}
			v, err := convertValue(value, pt)
			if err != nil {
				return nil, &UnsatisfiedDependencyError{Bean: beanName, Injection: injection, Err: err}
			}
			args[i] = v
			continue
		}

		if !autowire {
			return nil, &UnsatisfiedDependencyError{Bean: beanName, Injection: injection,
				Err: fmt.Errorf("ambiguous argument values: no argument given and autowiring is not enabled")}
		}

		dep, err := f.resolveDependency(c, DependencyDescriptor{
			Type:     pt,
			Required: true,
			Origin:   beanName,
		})
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Bean: beanName, Injection: injection, Err: err}
		}
		v, err := convertValue(dep, pt)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Bean: beanName, Injection: injection, Err: err}
		}
		args[i] = v
	}
	return args, nil
}

// matchGeneric 为参数类型 pt 选择一个未使用的按类型参数：先匹配显式类型，再匹配可赋值的字面量，最后取任意无类型参数。
func matchGeneric(generic []ArgValue, used []bool, pt reflect.Type) (ArgValue, bool) {
	pick := func(match func(ArgValue) bool) (ArgValue, bool) {
		for i, g := range generic {
			if !used[i] && match(g) {
				used[i] = true
				return g, true
			}
		}
		return ArgValue{}, false
	}
	if v, ok := pick(func(g ArgValue) bool { return g.Type == pt }); ok {
		return v, true
	}
	if v, ok := pick(func(g ArgValue) bool {
		if g.Type != nil || g.Value == nil {
			return false
		}
		switch g.Value.(type) {
		case BeanRef, *BeanDefinition, List, Map, string:
			return false
		}
		return reflect.TypeOf(g.Value).AssignableTo(pt)
	}); ok {
		return v, true
	}
	return pick(func(g ArgValue) bool { return g.Type == nil })
}
