package beans

import (
	"fmt"
	"reflect"
	"slices"
)

const (
	// ScopeSingleton 每个容器一个共享实例（默认）。
	ScopeSingleton = "singleton"
	// ScopePrototype 每次请求创建一个新实例。
	ScopePrototype = "prototype"
)

// InferMethod 作为销毁方法名时，按 Close、Shutdown 的顺序推断。
const InferMethod = "(inferred)"

// AutowireMode 自动装配模式
type AutowireMode int

const (
	// AutowireNo 不自动装配属性。
	AutowireNo AutowireMode = iota
	// AutowireByName 按属性名查找同名 bean。
	AutowireByName
	// AutowireByType 按属性类型查找唯一候选。
	AutowireByType
	// AutowireConstructor 自动装配构造函数参数。
	AutowireConstructor
)

func (m AutowireMode) String() string {
	switch m {
	case AutowireNo:
		return "no"
	case AutowireByName:
		return "byName"
	case AutowireByType:
		return "byType"
	case AutowireConstructor:
		return "constructor"
	default:
		return fmt.Sprintf("AutowireMode(%d)", int(m))
	}
}

// Role 标记定义的用途，基础设施定义不会出现在某些诊断日志中。
type Role int

const (
	RoleApplication Role = iota
	RoleSupport
	RoleInfrastructure
)

// field 记录被显式设置过的属性，用于父子定义合并。
type field uint32

const (
	fieldType field = 1 << iota
	fieldConstructors
	fieldFactoryBean
	fieldFactoryMethod
	fieldScope
	fieldLazy
	fieldAutowire
	fieldDependencyCheck
	fieldDependsOn
	fieldInit
	fieldDestroy
	fieldPriority
	fieldObjectType
	fieldRole
	fieldDescription
)

// BeanDefinition 描述如何创建一个 bean。
//
// 定义注册后可以被定义级后处理器修改，直到配置被冻结。
// 子定义通过 ParentName 继承父定义，合并规则见 overrideFrom。
type BeanDefinition struct {
	// Type 为 bean 的类型；结构体类型在注册时会被规范化为指针类型。
	Type reflect.Type
	// Constructors 为候选构造函数，参数个数最多且可满足的那个会被选中。
	Constructors []any
	// FactoryBeanName 与 FactoryMethodName 一起表示“调用另一个 bean 的方法来创建”。
	FactoryBeanName   string
	FactoryMethodName string

	Scope           string
	LazyInit        bool
	AutowireMode    AutowireMode
	DependencyCheck bool

	Primary           bool
	AutowireCandidate bool
	Priority          *int

	DependsOn       []string
	ConstructorArgs ConstructorArgs
	Properties      PropertyValues

	InitMethodName    string
	DestroyMethodName string

	Abstract   bool
	ParentName string

	// ObjectType 是 FactoryBean 产物类型的提示，类型查询时避免实例化工厂。
	ObjectType  reflect.Type
	Role        Role
	Description string

	explicit field
}

// NewBeanDefinition 创建一个以 typ 为类型的定义。typ 可以为 nil（例如抽象模板或子定义）。
func NewBeanDefinition(typ reflect.Type, opts ...Option) *BeanDefinition {
	d := &BeanDefinition{AutowireCandidate: true}
	if typ != nil {
		d.Type = typ
		d.explicit |= fieldType
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NewConstructorDefinition 用构造函数创建定义，类型取构造函数的第一个返回值。
func NewConstructorDefinition(constructor any, opts ...Option) *BeanDefinition {
	return NewBeanDefinition(nil, append([]Option{WithConstructor(constructor)}, opts...)...)
}

// NewChildDefinition 创建继承 parent 的子定义。
func NewChildDefinition(parent string, opts ...Option) *BeanDefinition {
	return NewBeanDefinition(nil, append([]Option{WithParent(parent)}, opts...)...)
}

// IsSingleton 报告定义是否为单例作用域。
func (d *BeanDefinition) IsSingleton() bool {
	return d.Scope == "" || d.Scope == ScopeSingleton
}

// IsPrototype 报告定义是否为原型作用域。
func (d *BeanDefinition) IsPrototype() bool {
	return d.Scope == ScopePrototype
}

// HasPriority 报告是否设置了优先级。
func (d *BeanDefinition) HasPriority() bool {
	return d.Priority != nil
}

func (d *BeanDefinition) isSet(f field) bool {
	if d.explicit&f != 0 {
		return true
	}
	switch f {
	case fieldType:
		return d.Type != nil
	case fieldConstructors:
		return len(d.Constructors) > 0
	case fieldFactoryBean:
		return d.FactoryBeanName != ""
	case fieldFactoryMethod:
		return d.FactoryMethodName != ""
	case fieldScope:
		return d.Scope != ""
	case fieldLazy:
		return d.LazyInit
	case fieldAutowire:
		return d.AutowireMode != AutowireNo
	case fieldDependencyCheck:
		return d.DependencyCheck
	case fieldDependsOn:
		return len(d.DependsOn) > 0
	case fieldInit:
		return d.InitMethodName != ""
	case fieldDestroy:
		return d.DestroyMethodName != ""
	case fieldPriority:
		return d.Priority != nil
	case fieldObjectType:
		return d.ObjectType != nil
	case fieldRole:
		return d.Role != RoleApplication
	case fieldDescription:
		return d.Description != ""
	}
	return false
}

// Validate 检查定义自身的一致性。
func (d *BeanDefinition) Validate() error {
	if d.FactoryMethodName != "" && d.FactoryBeanName == "" {
		return fmt.Errorf("factory method %q requires a factory bean name", d.FactoryMethodName)
	}
	if d.FactoryMethodName != "" && len(d.Constructors) > 0 {
		return fmt.Errorf("cannot combine constructors with factory method %q", d.FactoryMethodName)
	}
	for i, c := range d.Constructors {
		if c == nil {
			return fmt.Errorf("constructor %d is nil", i)
		}
		t := reflect.TypeOf(c)
		if t.Kind() != reflect.Func {
			return fmt.Errorf("constructor %d: expected func, got %v", i, t)
		}
		if t.NumOut() == 0 || t.NumOut() > 2 {
			return fmt.Errorf("constructor %d: must return (T) or (T, error), got %v", i, t)
		}
		if t.NumOut() == 2 && t.Out(1) != errorType {
			return fmt.Errorf("constructor %d: second return value must be error, got %v", i, t.Out(1))
		}
	}
	if d.Type == nil && len(d.Constructors) == 0 && d.FactoryMethodName == "" && d.ParentName == "" && !d.Abstract {
		return fmt.Errorf("definition has neither type, constructor, factory method nor parent")
	}
	return nil
}

// normalize 把结构体类型规范化为指针类型，保证实例可寻址。
func (d *BeanDefinition) normalize() {
	if d.Type != nil && d.Type.Kind() == reflect.Struct {
		d.Type = reflect.PointerTo(d.Type)
	}
}

// Clone 返回深拷贝，修改副本不会影响原定义。
func (d *BeanDefinition) Clone() *BeanDefinition {
	c := *d
	c.Constructors = slices.Clone(d.Constructors)
	c.DependsOn = slices.Clone(d.DependsOn)
	c.ConstructorArgs = d.ConstructorArgs.clone()
	c.Properties = d.Properties.clone()
	if d.Priority != nil {
		p := *d.Priority
		c.Priority = &p
	}
	return &c
}

// overrideFrom 用子定义 o 覆盖当前（父）定义。
// 子定义显式设置的值覆盖父值；构造参数按下标覆盖，属性按名称覆盖，
// 可合并的集合与父值合并；Abstract、Primary、AutowireCandidate 始终取子定义。
func (d *BeanDefinition) overrideFrom(o *BeanDefinition) {
	if o.isSet(fieldType) {
		d.Type = o.Type
	}
	if o.isSet(fieldConstructors) {
		d.Constructors = slices.Clone(o.Constructors)
	}
	if o.isSet(fieldFactoryBean) {
		d.FactoryBeanName = o.FactoryBeanName
	}
	if o.isSet(fieldFactoryMethod) {
		d.FactoryMethodName = o.FactoryMethodName
	}
	if o.isSet(fieldScope) {
		d.Scope = o.Scope
	}
	if o.isSet(fieldLazy) {
		d.LazyInit = o.LazyInit
	}
	if o.isSet(fieldAutowire) {
		d.AutowireMode = o.AutowireMode
	}
	if o.isSet(fieldDependencyCheck) {
		d.DependencyCheck = o.DependencyCheck
	}
	if o.isSet(fieldDependsOn) {
		d.DependsOn = slices.Clone(o.DependsOn)
	}
	if o.isSet(fieldInit) {
		d.InitMethodName = o.InitMethodName
	}
	if o.isSet(fieldDestroy) {
		d.DestroyMethodName = o.DestroyMethodName
	}
	if o.isSet(fieldPriority) {
		p := *o.Priority
		d.Priority = &p
	}
	if o.isSet(fieldObjectType) {
		d.ObjectType = o.ObjectType
	}
	if o.isSet(fieldRole) {
		d.Role = o.Role
	}
	if o.isSet(fieldDescription) {
		d.Description = o.Description
	}
	d.Abstract = o.Abstract
	d.Primary = o.Primary
	d.AutowireCandidate = o.AutowireCandidate
	d.ConstructorArgs = d.ConstructorArgs.mergedWith(o.ConstructorArgs)
	d.Properties = d.Properties.mergedWith(o.Properties)
	d.ParentName = ""
	d.explicit |= o.explicit
}

func (d *BeanDefinition) String() string {
	typ := "<nil>"
	if d.Type != nil {
		typ = d.Type.String()
	}
	s := fmt.Sprintf("type=%s; scope=%s; abstract=%t; lazyInit=%t; autowireMode=%s; primary=%t",
		typ, d.scopeName(), d.Abstract, d.LazyInit, d.AutowireMode, d.Primary)
	if d.FactoryBeanName != "" {
		s += fmt.Sprintf("; factoryBean=%s; factoryMethod=%s", d.FactoryBeanName, d.FactoryMethodName)
	}
	if d.ParentName != "" {
		s += "; parent=" + d.ParentName
	}
	return s
}

func (d *BeanDefinition) scopeName() string {
	if d.Scope == "" {
		return ScopeSingleton
	}
	return d.Scope
}
