package beans

import (
	"cmp"
	"context"
	"math"
	"reflect"
	"slices"
)

const (
	// HighestPrecedence 是最高的排序优先级。
	HighestPrecedence = math.MinInt32
	// LowestPrecedence 是最低的排序优先级，未实现 Ordered 的对象使用该值。
	LowestPrecedence = math.MaxInt32
)

// Ordered 提供排序值，越小越先执行。
type Ordered interface {
	Order() int
}

// PriorityOrdered 属于优先层，总是先于只实现 Ordered 的对象执行。
type PriorityOrdered interface {
	Ordered
	PriorityOrdered()
}

// OrderOf 返回对象的排序值。
func OrderOf(v any) int {
	if o, ok := v.(Ordered); ok {
		return o.Order()
	}
	return LowestPrecedence
}

// SortByOrder 稳定排序：PriorityOrdered 在前，其次按 Order 升序。
func SortByOrder[T any](items []T) {
	slices.SortStableFunc(items, func(a, b T) int {
		_, pa := any(a).(PriorityOrdered)
		_, pb := any(b).(PriorityOrdered)
		if pa != pb {
			if pa {
				return -1
			}
			return 1
		}
		return cmp.Compare(OrderOf(a), OrderOf(b))
	})
}

// BeanPostProcessor 在每个 bean 初始化前后被调用，可以返回替换后的对象。
// 返回 nil 表示停止后续处理器并沿用当前对象。
type BeanPostProcessor interface {
	PostProcessBeforeInitialization(bean any, name string) (any, error)
	PostProcessAfterInitialization(bean any, name string) (any, error)
}

// InstantiationAwarePostProcessor 参与实例化和属性填充。
type InstantiationAwarePostProcessor interface {
	BeanPostProcessor
	// PostProcessBeforeInstantiation 返回非 nil 对象时跳过常规创建流程。
	PostProcessBeforeInstantiation(typ reflect.Type, name string) (any, error)
	// PostProcessAfterInstantiation 返回 false 时跳过属性填充。
	PostProcessAfterInstantiation(bean any, name string) (bool, error)
	// PostProcessProperties 可以修改将要应用的属性；ctx 携带当前创建链，嵌套解析应使用它。
	PostProcessProperties(ctx context.Context, pvs *PropertyValues, bean any, name string) (*PropertyValues, error)
}

// MergedDefinitionPostProcessor 在实例化后、属性填充前对每个合并定义调用一次。
type MergedDefinitionPostProcessor interface {
	BeanPostProcessor
	PostProcessMergedDefinition(def *BeanDefinition, typ reflect.Type, name string) error
	ResetDefinition(name string)
}

// EarlyReferenceProcessor 决定为打破循环而提前暴露的引用。
type EarlyReferenceProcessor interface {
	BeanPostProcessor
	EarlyBeanReference(bean any, name string) (any, error)
}

// DestructionAwarePostProcessor 在单例销毁前被调用。
type DestructionAwarePostProcessor interface {
	BeanPostProcessor
	PostProcessBeforeDestruction(bean any, name string) error
	RequiresDestruction(bean any) bool
}

// FactoryPostProcessor 在实例化任何普通 bean 之前修改定义。
type FactoryPostProcessor interface {
	PostProcessFactory(f *Factory) error
}

// RegistryPostProcessor 可以在普通 FactoryPostProcessor 之前注册更多定义。
type RegistryPostProcessor interface {
	FactoryPostProcessor
	PostProcessRegistry(r Registry) error
}

// BasePostProcessor 提供所有回调的空实现，便于嵌入。
type BasePostProcessor struct{}

func (BasePostProcessor) PostProcessBeforeInitialization(bean any, _ string) (any, error) {
	return bean, nil
}

func (BasePostProcessor) PostProcessAfterInitialization(bean any, _ string) (any, error) {
	return bean, nil
}

// AddBeanPostProcessor 添加实例级后处理器；已存在的同一处理器会被移到末尾。
func (f *Factory) AddBeanPostProcessor(p BeanPostProcessor) {
	f.ppMu.Lock()
	defer f.ppMu.Unlock()
	list := slices.DeleteFunc(slices.Clone(f.postProcessors), func(x BeanPostProcessor) bool { return sameInstance(x, p) })
	f.postProcessors = append(list, p)
}

// BeanPostProcessorCount 返回实例级后处理器数量。
func (f *Factory) BeanPostProcessorCount() int {
	f.ppMu.RLock()
	defer f.ppMu.RUnlock()
	return len(f.postProcessors)
}

// BeanPostProcessors 返回实例级后处理器副本。
func (f *Factory) BeanPostProcessors() []BeanPostProcessor {
	f.ppMu.RLock()
	defer f.ppMu.RUnlock()
	return slices.Clone(f.postProcessors)
}

func processorsOf[T any](f *Factory) []T {
	f.ppMu.RLock()
	defer f.ppMu.RUnlock()
	var out []T
	for _, p := range f.postProcessors {
		if t, ok := p.(T); ok {
			out = append(out, t)
		}
	}
	return out
}

func (f *Factory) instantiationAwareProcessors() []InstantiationAwarePostProcessor {
	return processorsOf[InstantiationAwarePostProcessor](f)
}

func (f *Factory) mergedDefinitionProcessors() []MergedDefinitionPostProcessor {
	return processorsOf[MergedDefinitionPostProcessor](f)
}

func (f *Factory) earlyReferenceProcessors() []EarlyReferenceProcessor {
	return processorsOf[EarlyReferenceProcessor](f)
}

func (f *Factory) destructionProcessors() []DestructionAwarePostProcessor {
	return processorsOf[DestructionAwarePostProcessor](f)
}

// applyBeforeInitialization 依次调用 PostProcessBeforeInitialization。
func (f *Factory) applyBeforeInitialization(bean any, name string) (any, error) {
	result := bean
	for _, p := range f.BeanPostProcessors() {
		current, err := p.PostProcessBeforeInitialization(result, name)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return result, nil
		}
		result = current
	}
	return result, nil
}

// applyAfterInitialization 依次调用 PostProcessAfterInitialization。
func (f *Factory) applyAfterInitialization(bean any, name string) (any, error) {
	result := bean
	for _, p := range f.BeanPostProcessors() {
		current, err := p.PostProcessAfterInitialization(result, name)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return result, nil
		}
		result = current
	}
	return result, nil
}
