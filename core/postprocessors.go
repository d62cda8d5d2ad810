package core

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/logging"
)

var (
	registryProcessorType = beans.TypeOf[beans.RegistryPostProcessor]()
	factoryProcessorType  = beans.TypeOf[beans.FactoryPostProcessor]()
	beanProcessorType     = beans.TypeOf[beans.BeanPostProcessor]()
	priorityOrderedType   = beans.TypeOf[beans.PriorityOrdered]()
	orderedType           = beans.TypeOf[beans.Ordered]()
)

// namedProcessor 带名称的处理器，名称用于错误信息
type namedProcessor[T any] struct {
	name string
	p    T
}

// sortNamed 按处理器自身的排序值稳定排序
func sortNamed[T any](items []namedProcessor[T]) {
	slices.SortStableFunc(items, func(a, b namedProcessor[T]) int {
		return cmp.Compare(beans.OrderOf(a.p), beans.OrderOf(b.p))
	})
}

// invokeFactoryPostProcessors 执行定义级后处理器
//
// 先执行 RegistryPostProcessor：编程注册的按注册顺序，容器中定义的按 PriorityOrdered、Ordered、其余分层，
// 每层执行后重新扫描注册表直到不再出现该层的新处理器。之后统一调用 PostProcessFactory。
func invokeFactoryPostProcessors(f *beans.Factory, static []beans.FactoryPostProcessor, logger logging.Logger) error {
	processed := make(map[string]bool)
	var (
		registryProcessors []namedProcessor[beans.RegistryPostProcessor]
		regularStatic      []namedProcessor[beans.FactoryPostProcessor]
	)

	for i, p := range static {
		name := fmt.Sprintf("%T#%d", p, i)
		if rp, ok := p.(beans.RegistryPostProcessor); ok {
			if err := rp.PostProcessRegistry(f); err != nil {
				return processorError(name, err)
			}
			registryProcessors = append(registryProcessors, namedProcessor[beans.RegistryPostProcessor]{name, rp})
		} else {
			regularStatic = append(regularStatic, namedProcessor[beans.FactoryPostProcessor]{name, p})
		}
	}

	runTier := func(match func(name string) bool) (bool, error) {
		var current []namedProcessor[beans.RegistryPostProcessor]
		for _, name := range f.BeanNamesForType(registryProcessorType, true, false) {
			if processed[name] || !match(name) {
				continue
			}
			bean, err := f.GetTypedBean(name, registryProcessorType)
			if err != nil {
				return false, err
			}
			processed[name] = true
			current = append(current, namedProcessor[beans.RegistryPostProcessor]{name, bean.(beans.RegistryPostProcessor)})
		}
		if len(current) == 0 {
			return false, nil
		}
		sortNamed(current)
		for _, rp := range current {
			logger.Debug("Invoking registry post-processor", logging.F("bean", rp.name))
			if err := rp.p.PostProcessRegistry(f); err != nil {
				return false, processorError(rp.name, err)
			}
		}
		registryProcessors = append(registryProcessors, current...)
		return true, nil
	}

	tiers := []func(string) bool{
		func(name string) bool { return isTypeMatch(f, name, priorityOrderedType) },
		func(name string) bool { return isTypeMatch(f, name, orderedType) },
		func(string) bool { return true },
	}
	for _, match := range tiers {
		for {
			found, err := runTier(match)
			if err != nil {
				return err
			}
			if !found {
				break
			}
		}
	}

	for _, rp := range registryProcessors {
		if err := rp.p.PostProcessFactory(f); err != nil {
			return processorError(rp.name, err)
		}
	}
	for _, p := range regularStatic {
		if err := p.p.PostProcessFactory(f); err != nil {
			return processorError(p.name, err)
		}
	}

	var priority, ordered, plain []namedProcessor[beans.FactoryPostProcessor]
	for _, name := range f.BeanNamesForType(factoryProcessorType, true, false) {
		if processed[name] {
			continue
		}
		switch {
		case isTypeMatch(f, name, priorityOrderedType):
			bean, err := f.GetTypedBean(name, factoryProcessorType)
			if err != nil {
				return err
			}
			priority = append(priority, namedProcessor[beans.FactoryPostProcessor]{name, bean.(beans.FactoryPostProcessor)})
		case isTypeMatch(f, name, orderedType):
			ordered = append(ordered, namedProcessor[beans.FactoryPostProcessor]{name: name})
		default:
			plain = append(plain, namedProcessor[beans.FactoryPostProcessor]{name: name})
		}
	}

	sortNamed(priority)
	if err := invokeFactoryTier(f, priority); err != nil {
		return err
	}
	// Ordered 与普通处理器在上一层执行之后才实例化
	for _, tier := range [][]namedProcessor[beans.FactoryPostProcessor]{ordered, plain} {
		for i := range tier {
			bean, err := f.GetTypedBean(tier[i].name, factoryProcessorType)
			if err != nil {
				return err
			}
			tier[i].p = bean.(beans.FactoryPostProcessor)
		}
		sortNamed(tier)
		if err := invokeFactoryTier(f, tier); err != nil {
			return err
		}
	}

	// 处理器可能修改了定义，清空合并缓存
	f.ClearMetadataCache()
	return nil
}

func invokeFactoryTier(f *beans.Factory, tier []namedProcessor[beans.FactoryPostProcessor]) error {
	for _, p := range tier {
		if err := p.p.PostProcessFactory(f); err != nil {
			return processorError(p.name, err)
		}
	}
	return nil
}

// registerBeanPostProcessors 实例化并注册容器中定义的实例级后处理器
//
// 顺序：检查器、PriorityOrdered、Ordered、其余；同时实现 MergedDefinitionPostProcessor 的
// 处理器最后重新注册一次，排在末尾。
func registerBeanPostProcessors(f *beans.Factory, detector *listenerDetector, logger logging.Logger) error {
	names := f.BeanNamesForType(beanProcessorType, true, false)
	target := f.BeanPostProcessorCount() + 1 + len(names)
	f.AddBeanPostProcessor(&postProcessorChecker{factory: f, target: target, logger: logger})

	var (
		priority, internal []namedProcessor[beans.BeanPostProcessor]
		orderedNames       []string
		plainNames         []string
	)
	get := func(name string) (namedProcessor[beans.BeanPostProcessor], error) {
		bean, err := f.GetTypedBean(name, beanProcessorType)
		if err != nil {
			return namedProcessor[beans.BeanPostProcessor]{}, err
		}
		np := namedProcessor[beans.BeanPostProcessor]{name, bean.(beans.BeanPostProcessor)}
		if _, ok := np.p.(beans.MergedDefinitionPostProcessor); ok {
			internal = append(internal, np)
		}
		return np, nil
	}

	for _, name := range names {
		switch {
		case isTypeMatch(f, name, priorityOrderedType):
			np, err := get(name)
			if err != nil {
				return err
			}
			priority = append(priority, np)
		case isTypeMatch(f, name, orderedType):
			orderedNames = append(orderedNames, name)
		default:
			plainNames = append(plainNames, name)
		}
	}

	sortNamed(priority)
	addAll(f, priority)

	ordered := make([]namedProcessor[beans.BeanPostProcessor], 0, len(orderedNames))
	for _, name := range orderedNames {
		np, err := get(name)
		if err != nil {
			return err
		}
		ordered = append(ordered, np)
	}
	sortNamed(ordered)
	addAll(f, ordered)

	plain := make([]namedProcessor[beans.BeanPostProcessor], 0, len(plainNames))
	for _, name := range plainNames {
		np, err := get(name)
		if err != nil {
			return err
		}
		plain = append(plain, np)
	}
	addAll(f, plain)

	sortNamed(internal)
	addAll(f, internal)

	// 监听器探测器始终在最后
	f.AddBeanPostProcessor(detector)
	logger.Debug("Bean post-processors registered", logging.F("count", f.BeanPostProcessorCount()))
	return nil
}

func addAll(f *beans.Factory, items []namedProcessor[beans.BeanPostProcessor]) {
	for _, np := range items {
		f.AddBeanPostProcessor(np.p)
	}
}

func isTypeMatch(f *beans.Factory, name string, typ reflect.Type) bool {
	ok, err := f.IsTypeMatch(name, typ)
	return err == nil && ok
}

func processorError(name string, err error) error {
	return fmt.Errorf("core: post-processor %s failed: %w", name, err)
}
