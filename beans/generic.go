package beans

import (
	"fmt"
	"reflect"
)

// TypeOf 获取类型 T 的 reflect.Type（泛型辅助函数）。
//
// 示例：
//
//	typ := beans.TypeOf[UserService]()
//	bean, _ := factory.GetBeanOfType(typ)
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Register 注册类型为 T 的 bean。T 为结构体时按指针注册。
func Register[T any](r Registry, name string, opts ...Option) error {
	return r.RegisterBeanDefinition(name, NewBeanDefinition(TypeOf[T](), opts...))
}

// Provide 智能注册 bean。
//
// 支持的 target：
//  1. func(...) (T, error?)：构造函数，bean 类型为第一个返回值。
//  2. reflect.Type：按类型零值实例化，之后由属性和标签注入完成装配。
func Provide(r Registry, name string, target any, opts ...Option) error {
	var def *BeanDefinition
	switch t := target.(type) {
	case reflect.Type:
		def = NewBeanDefinition(t, opts...)
	default:
		v := reflect.ValueOf(target)
		if v.Kind() != reflect.Func {
			return fmt.Errorf("beans: unsupported registration target type: %T", target)
		}
		def = NewConstructorDefinition(target, opts...)
	}
	return r.RegisterBeanDefinition(name, def)
}

// Get 按名称获取 bean 并转换为 T。
func Get[T any](f BeanFactory, name string) (T, error) {
	var zero T
	typ := TypeOf[T]()
	val, err := f.GetTypedBean(name, typ)
	if err != nil {
		return zero, err
	}
	if v, ok := val.(T); ok {
		return v, nil
	}
	return zero, &NotOfRequiredTypeError{Name: name, Required: typ, Actual: reflect.TypeOf(val)}
}

// GetByType 获取类型为 T 的唯一 bean。
func GetByType[T any](f BeanFactory) (T, error) {
	var zero T
	typ := TypeOf[T]()
	val, err := f.GetBeanOfType(typ)
	if err != nil {
		return zero, err
	}
	if v, ok := val.(T); ok {
		return v, nil
	}
	return zero, fmt.Errorf("beans: resolved value is %T, expected %v", val, typ)
}

// MustGet 与 Get 相同，失败时 panic。
func MustGet[T any](f BeanFactory, name string) T {
	v, err := Get[T](f, name)
	if err != nil {
		panic(fmt.Sprintf("beans: failed to get bean '%s': %v", name, err))
	}
	return v
}

// BeansOf 返回所有类型匹配 T 的 bean，键为 bean 名称。
func BeansOf[T any](f ListableBeanFactory) (map[string]T, error) {
	all, err := f.BeansOfType(TypeOf[T](), true, true)
	if err != nil {
		return nil, err
	}
	out := make(map[string]T, len(all))
	for name, v := range all {
		if t, ok := v.(T); ok {
			out[name] = t
		}
	}
	return out, nil
}
