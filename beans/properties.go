package beans

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"
	"unsafe"
)

// propertyDescriptor 描述一个可写属性：SetXxx 方法或导出字段。
type propertyDescriptor struct {
	name   string
	typ    reflect.Type
	setter string
	index  []int
}

var propertyCache sync.Map

// describeProperties 返回 t 的可写属性。t 应为指向结构体的指针类型。
// 字段可以用 `bean:"name"` 重命名，`bean:"-"` 排除。
func describeProperties(t reflect.Type) []propertyDescriptor {
	if cached, ok := propertyCache.Load(t); ok {
		return cached.([]propertyDescriptor)
	}

	var props []propertyDescriptor
	seen := make(map[string]bool)

	for i := range t.NumMethod() {
		m := t.Method(i)
		if !strings.HasPrefix(m.Name, "Set") || len(m.Name) == 3 {
			continue
		}
		mt := m.Type
		if mt.NumIn() != 2 || mt.NumOut() > 1 || (mt.NumOut() == 1 && mt.Out(0) != errorType) {
			continue
		}
		name := lowerFirst(strings.TrimPrefix(m.Name, "Set"))
		if seen[name] {
			continue
		}
		seen[name] = true
		props = append(props, propertyDescriptor{name: name, typ: mt.In(1), setter: m.Name})
	}

	st := t
	if st.Kind() == reflect.Ptr {
		st = st.Elem()
	}
	if st.Kind() == reflect.Struct {
		for _, sf := range reflect.VisibleFields(st) {
			if sf.Anonymous || !sf.IsExported() {
				continue
			}
			if _, injected := sf.Tag.Lookup("di"); injected {
				continue
			}
			name := lowerFirst(sf.Name)
			if tag, ok := sf.Tag.Lookup("bean"); ok {
				if tag == "-" {
					continue
				}
				if tag != "" {
					name = tag
				}
			}
			if seen[name] {
				continue
			}
			seen[name] = true
			props = append(props, propertyDescriptor{name: name, typ: sf.Type, index: sf.Index})
		}
	}

	propertyCache.Store(t, props)
	return props
}

func findProperty(t reflect.Type, name string) (propertyDescriptor, bool) {
	props := describeProperties(t)
	for _, p := range props {
		if p.name == name {
			return p, true
		}
	}
	for _, p := range props {
		if strings.EqualFold(p.name, name) {
			return p, true
		}
	}
	return propertyDescriptor{}, false
}

// setProperty 把已解析的值写入 bean 的属性。
func setProperty(bean any, pd propertyDescriptor, value any) error {
	v, err := convertValue(value, pd.typ)
	if err != nil {
		return fmt.Errorf("property '%s': %w", pd.name, err)
	}
	rv := reflect.ValueOf(bean)

	if pd.setter != "" {
		m := rv.MethodByName(pd.setter)
		out := m.Call([]reflect.Value{v})
		if len(out) == 1 && !out[0].IsNil() {
			return fmt.Errorf("property '%s': %w", pd.name, out[0].Interface().(error))
		}
		return nil
	}

	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return fmt.Errorf("property '%s': bean of type %T is not addressable", pd.name, bean)
	}
	field, err := rv.Elem().FieldByIndexErr(pd.index)
	if err != nil {
		return fmt.Errorf("property '%s': %w", pd.name, err)
	}
	field.Set(v)
	return nil
}

// settableField 返回可写的字段值，未导出字段通过 unsafe 获得可写视图。
func settableField(field reflect.Value) reflect.Value {
	if field.CanSet() {
		return field
	}
	return reflect.NewAt(field.Type(), unsafe.Pointer(field.UnsafeAddr())).Elem()
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}
