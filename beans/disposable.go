package beans

import (
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/gocrud/ioc/logging"
)

// disposableAdapter 统一执行销毁回调：销毁前处理器、DisposableBean、自定义销毁方法。
type disposableAdapter struct {
	name          string
	bean          any
	destroyMethod string
	processors    []DestructionAwarePostProcessor
	logger        logging.Logger
}

func newDisposableAdapter(name string, bean any, def *BeanDefinition, processors []DestructionAwarePostProcessor) *disposableAdapter {
	a := &disposableAdapter{
		name:   name,
		bean:   bean,
		logger: logging.NewNop(),
	}
	for _, p := range processors {
		if p.RequiresDestruction(bean) {
			a.processors = append(a.processors, p)
		}
	}
	var declared string
	if def != nil {
		declared = def.DestroyMethodName
	}
	a.destroyMethod = inferDestroyMethod(bean, declared)
	return a
}

// inferDestroyMethod 解析实际的销毁方法名。
// 未声明时，实现 io.Closer 的 bean 使用 Close；声明 InferMethod 时依次查找 Close、Shutdown。
func inferDestroyMethod(bean any, declared string) string {
	_, disposable := bean.(DisposableBean)
	switch declared {
	case "":
		if _, ok := bean.(io.Closer); ok && !disposable {
			return "Close"
		}
		return ""
	case InferMethod:
		if disposable {
			return ""
		}
		v := reflect.ValueOf(bean)
		for _, candidate := range []string{"Close", "Shutdown"} {
			if m := v.MethodByName(candidate); m.IsValid() && m.Type().NumIn() == 0 {
				return candidate
			}
		}
		return ""
	default:
		if disposable && declared == "Destroy" {
			return ""
		}
		return declared
	}
}

func requiresDestruction(bean any, def *BeanDefinition, processors []DestructionAwarePostProcessor) bool {
	if _, ok := bean.(DisposableBean); ok {
		return true
	}
	if inferDestroyMethod(bean, def.DestroyMethodName) != "" {
		return true
	}
	for _, p := range processors {
		if p.RequiresDestruction(bean) {
			return true
		}
	}
	return false
}

// destroy 尽力执行所有回调，错误被汇总返回而不中断后续回调。
func (a *disposableAdapter) destroy() error {
	var errs []error

	for _, p := range a.processors {
		if err := p.PostProcessBeforeDestruction(a.bean, a.name); err != nil {
			errs = append(errs, err)
		}
	}

	if d, ok := a.bean.(DisposableBean); ok {
		a.logger.Trace("Invoking Destroy on bean", logging.Field{Key: "bean", Value: a.name})
		if err := d.Destroy(); err != nil {
			errs = append(errs, fmt.Errorf("Destroy: %w", err))
		}
	}

	if a.destroyMethod != "" {
		found, err := invokeCallback(a.bean, a.destroyMethod)
		if !found {
			errs = append(errs, fmt.Errorf("could not find a destroy method named '%s' on bean with name '%s'", a.destroyMethod, a.name))
		} else if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", a.destroyMethod, err))
		}
	}

	return errors.Join(errs...)
}
