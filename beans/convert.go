package beans

import (
	"fmt"
	"reflect"
	"strings"

	"gopkg.in/yaml.v3"
)

// TypeMismatchError 表示值无法转换为目标类型。
type TypeMismatchError struct {
	Value    any
	Required reflect.Type
	Err      error
}

func (e *TypeMismatchError) Error() string {
	s := fmt.Sprintf("beans: cannot convert value of type '%T' to required type '%v'", e.Value, e.Required)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *TypeMismatchError) Unwrap() error { return e.Err }

// convertValue 把 value 转换为 target 类型。
// 字符串通过 YAML 解码转换为数值、布尔、时长、切片等类型。
func convertValue(value any, target reflect.Type) (reflect.Value, error) {
	if target == nil {
		if value == nil {
			return reflect.Value{}, nil
		}
		return reflect.ValueOf(value), nil
	}
	if value == nil {
		return reflect.Zero(target), nil
	}

	rv := reflect.ValueOf(value)
	if rv.Type().AssignableTo(target) {
		return rv, nil
	}

	if s, ok := value.(string); ok {
		return convertString(s, target)
	}

	if isNumeric(rv.Kind()) && isNumeric(target.Kind()) || rv.Kind() == target.Kind() && rv.Type().ConvertibleTo(target) {
		return rv.Convert(target), nil
	}

	if target.Kind() == reflect.Slice && rv.Kind() == reflect.Slice {
		out := reflect.MakeSlice(target, rv.Len(), rv.Len())
		for i := range rv.Len() {
			elem, err := convertValue(rv.Index(i).Interface(), target.Elem())
			if err != nil {
				return reflect.Value{}, &TypeMismatchError{Value: value, Required: target, Err: err}
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	}

	if target.Kind() == reflect.Map && rv.Kind() == reflect.Map && target.Key().Kind() == reflect.String {
		out := reflect.MakeMapWithSize(target, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			key, err := convertValue(fmt.Sprint(iter.Key().Interface()), target.Key())
			if err != nil {
				return reflect.Value{}, &TypeMismatchError{Value: value, Required: target, Err: err}
			}
			elem, err := convertValue(iter.Value().Interface(), target.Elem())
			if err != nil {
				return reflect.Value{}, &TypeMismatchError{Value: value, Required: target, Err: err}
			}
			out.SetMapIndex(key, elem)
		}
		return out, nil
	}

	return reflect.Value{}, &TypeMismatchError{Value: value, Required: target}
}

func convertString(s string, target reflect.Type) (reflect.Value, error) {
	if target.Kind() == reflect.String {
		return reflect.ValueOf(s).Convert(target), nil
	}
	if target.Kind() == reflect.Interface && reflect.TypeOf(s).AssignableTo(target) {
		return reflect.ValueOf(s), nil
	}
	if target.Kind() == reflect.Slice && target.Elem().Kind() != reflect.Uint8 && !strings.HasPrefix(strings.TrimSpace(s), "[") {
		parts := strings.Split(s, ",")
		out := reflect.MakeSlice(target, len(parts), len(parts))
		for i, p := range parts {
			elem, err := convertString(strings.TrimSpace(p), target.Elem())
			if err != nil {
				return reflect.Value{}, &TypeMismatchError{Value: s, Required: target, Err: err}
			}
			out.Index(i).Set(elem)
		}
		return out, nil
	}
	ptr := reflect.New(target)
	if err := yaml.Unmarshal([]byte(s), ptr.Interface()); err != nil {
		return reflect.Value{}, &TypeMismatchError{Value: s, Required: target, Err: err}
	}
	return ptr.Elem(), nil
}

func isNumeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// isSimpleType 报告类型是否为不参与按名称/类型自动装配的简单值类型。
func isSimpleType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool, reflect.String:
		return true
	case reflect.Slice, reflect.Array:
		return isSimpleType(t.Elem())
	case reflect.Map:
		return t.Key().Kind() == reflect.String && isSimpleType(t.Elem())
	}
	return isNumeric(t.Kind()) || t.Kind() == reflect.Complex64 || t.Kind() == reflect.Complex128
}
