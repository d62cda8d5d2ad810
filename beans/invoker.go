package beans

import (
	"fmt"
	"reflect"
)

// invoke 调用构造函数或工厂方法。
// 返回值约定为 T 或 (T, error)：最后一个 error 非空时返回错误，T 为 nil 时视为失败。
func invoke(fn reflect.Value, args []reflect.Value, kind string) (result any, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%s panicked: %v", kind, p)
		}
	}()

	results := fn.Call(args)
	if len(results) == 0 {
		return nil, fmt.Errorf("%s returned no values", kind)
	}

	// 检查 error
	if len(results) > 1 {
		last := results[len(results)-1]
		if last.Type().Implements(errorType) && !last.IsNil() {
			return nil, fmt.Errorf("%s failed: %w", kind, last.Interface().(error))
		}
	}

	// 检查 nil
	first := results[0]
	if isNilValue(first) {
		return nil, fmt.Errorf("%s returned nil instance", kind)
	}
	return first.Interface(), nil
}

// invokeCallback 调用无参回调方法，例如初始化或销毁方法。
func invokeCallback(bean any, method string) (found bool, err error) {
	m := reflect.ValueOf(bean).MethodByName(method)
	if !m.IsValid() {
		return false, nil
	}
	if m.Type().NumIn() != 0 {
		return true, fmt.Errorf("method %s must not take arguments", method)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("method %s panicked: %v", method, p)
		}
	}()
	for _, out := range m.Call(nil) {
		if out.Type().Implements(errorType) && !out.IsNil() {
			return true, out.Interface().(error)
		}
	}
	return true, nil
}

func isNilValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return v.IsNil()
	}
	return !v.IsValid()
}

// sameInstance 判断两个值是否为同一个对象，不可比较的值视为不同。
func sameInstance(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	switch va.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	}
	if ta.Comparable() {
		return a == b
	}
	return false
}
