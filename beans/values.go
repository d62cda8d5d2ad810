package beans

import (
	"maps"
	"reflect"
	"slices"
	"sort"
)

// BeanRef 是对另一个 bean 的运行时引用，在创建时按名称解析。
type BeanRef struct {
	Name string
}

// Ref 创建对名为 name 的 bean 的引用。
func Ref(name string) BeanRef {
	return BeanRef{Name: name}
}

// List 是可以包含引用、内部定义和字面量的列表值。
// Merge 为 true 时子定义的列表会追加在父定义列表之后。
type List struct {
	Elements []any
	Merge    bool
}

// Map 是以字符串为键的映射值，Merge 为 true 时子定义的条目覆盖父定义同名条目。
type Map struct {
	Entries map[string]any
	Merge   bool
}

// Mergeable 表示可与父定义中同名值合并的集合值。
type Mergeable interface {
	MergeEnabled() bool
	MergeWith(parent any) any
}

func (l List) MergeEnabled() bool { return l.Merge }

func (l List) MergeWith(parent any) any {
	p, ok := parent.(List)
	if !ok {
		return l
	}
	out := make([]any, 0, len(p.Elements)+len(l.Elements))
	out = append(out, p.Elements...)
	out = append(out, l.Elements...)
	return List{Elements: out, Merge: l.Merge}
}

func (m Map) MergeEnabled() bool { return m.Merge }

func (m Map) MergeWith(parent any) any {
	p, ok := parent.(Map)
	if !ok {
		return m
	}
	out := make(map[string]any, len(p.Entries)+len(m.Entries))
	maps.Copy(out, p.Entries)
	maps.Copy(out, m.Entries)
	return Map{Entries: out, Merge: m.Merge}
}

func mergeValue(parent, child any) any {
	if mv, ok := child.(Mergeable); ok && mv.MergeEnabled() && parent != nil {
		return mv.MergeWith(parent)
	}
	return child
}

// ArgValue 是一个构造参数。Type 非空时只匹配该类型的参数。
type ArgValue struct {
	Value any
	Type  reflect.Type
}

// ConstructorArgs 保存按下标和按类型匹配的构造参数。
type ConstructorArgs struct {
	Indexed map[int]ArgValue
	Generic []ArgValue
}

// AddIndexed 设置下标 i 的参数，value 也可以是 ArgValue。
func (a *ConstructorArgs) AddIndexed(i int, value any) {
	if a.Indexed == nil {
		a.Indexed = make(map[int]ArgValue)
	}
	a.Indexed[i] = toArgValue(value)
}

// AddGeneric 添加一个按类型匹配的参数。
func (a *ConstructorArgs) AddGeneric(value any) {
	a.Generic = append(a.Generic, toArgValue(value))
}

// IsEmpty 报告是否没有任何参数。
func (a ConstructorArgs) IsEmpty() bool {
	return len(a.Indexed) == 0 && len(a.Generic) == 0
}

// Count 返回参数个数。
func (a ConstructorArgs) Count() int {
	return len(a.Indexed) + len(a.Generic)
}

// MinArgs 返回候选构造函数至少需要的参数个数。
func (a ConstructorArgs) MinArgs() int {
	n := len(a.Generic)
	for i := range a.Indexed {
		if i+1 > n {
			n = i + 1
		}
	}
	if n < a.Count() {
		n = a.Count()
	}
	return n
}

// Indices 返回已设置的下标（升序）。
func (a ConstructorArgs) Indices() []int {
	idx := make([]int, 0, len(a.Indexed))
	for i := range a.Indexed {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func (a ConstructorArgs) clone() ConstructorArgs {
	c := ConstructorArgs{Generic: slices.Clone(a.Generic)}
	if a.Indexed != nil {
		c.Indexed = maps.Clone(a.Indexed)
	}
	return c
}

func (a ConstructorArgs) mergedWith(child ConstructorArgs) ConstructorArgs {
	out := a.clone()
	for i, v := range child.Indexed {
		if prev, ok := out.Indexed[i]; ok {
			v.Value = mergeValue(prev.Value, v.Value)
		}
		out.AddIndexed(i, v)
	}
	out.Generic = append(out.Generic, child.Generic...)
	return out
}

func toArgValue(value any) ArgValue {
	if av, ok := value.(ArgValue); ok {
		return av
	}
	return ArgValue{Value: value}
}

// PropertyValue 是一个命名属性值。
type PropertyValue struct {
	Name  string
	Value any
}

// PropertyValues 是有序的属性集合，同名属性后写覆盖先写。
type PropertyValues struct {
	list []PropertyValue
}

// Add 添加或替换属性；若新值可合并则与旧值合并。
func (p *PropertyValues) Add(name string, value any) *PropertyValues {
	for i := range p.list {
		if p.list[i].Name == name {
			p.list[i].Value = mergeValue(p.list[i].Value, value)
			return p
		}
	}
	p.list = append(p.list, PropertyValue{Name: name, Value: value})
	return p
}

// Set 直接替换属性值，不做合并。
func (p *PropertyValues) Set(name string, value any) {
	for i := range p.list {
		if p.list[i].Name == name {
			p.list[i].Value = value
			return
		}
	}
	p.list = append(p.list, PropertyValue{Name: name, Value: value})
}

// Get 按名称返回属性值。
func (p *PropertyValues) Get(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	for _, pv := range p.list {
		if pv.Name == name {
			return pv.Value, true
		}
	}
	return nil, false
}

// Contains 报告是否包含属性。
func (p *PropertyValues) Contains(name string) bool {
	_, ok := p.Get(name)
	return ok
}

// Remove 删除属性。
func (p *PropertyValues) Remove(name string) {
	p.list = slices.DeleteFunc(p.list, func(pv PropertyValue) bool { return pv.Name == name })
}

// Len 返回属性个数。
func (p *PropertyValues) Len() int {
	if p == nil {
		return 0
	}
	return len(p.list)
}

// All 返回属性副本。
func (p *PropertyValues) All() []PropertyValue {
	if p == nil {
		return nil
	}
	return slices.Clone(p.list)
}

func (p PropertyValues) clone() PropertyValues {
	return PropertyValues{list: slices.Clone(p.list)}
}

func (p PropertyValues) mergedWith(child PropertyValues) PropertyValues {
	out := p.clone()
	for _, pv := range child.list {
		out.Add(pv.Name, pv.Value)
	}
	return out
}
