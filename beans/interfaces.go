package beans

import "reflect"

// FactoryBeanPrefix 加在 FactoryBean 名称前表示请求工厂本身而不是它的产物。
const FactoryBeanPrefix = "&"

// BeanFactory 是按名称或类型获取 bean 的基础接口。
type BeanFactory interface {
	GetBean(name string) (any, error)
	GetBeanWithArgs(name string, args ...any) (any, error)
	GetTypedBean(name string, typ reflect.Type) (any, error)
	GetBeanOfType(typ reflect.Type) (any, error)
	ContainsBean(name string) bool
	IsSingleton(name string) (bool, error)
	IsPrototype(name string) (bool, error)
	IsTypeMatch(name string, typ reflect.Type) (bool, error)
	Type(name string) (reflect.Type, error)
	Aliases(name string) []string
}

// ListableBeanFactory 可以枚举定义和按类型查询名称。
type ListableBeanFactory interface {
	BeanFactory
	ContainsBeanDefinition(name string) bool
	BeanDefinitionCount() int
	BeanDefinitionNames() []string
	BeanNamesForType(typ reflect.Type, includeNonSingletons, allowEagerInit bool) []string
	BeansOfType(typ reflect.Type, includeNonSingletons, allowEagerInit bool) (map[string]any, error)
}

// HierarchicalBeanFactory 支持父工厂回退。
type HierarchicalBeanFactory interface {
	BeanFactory
	ParentBeanFactory() BeanFactory
	ContainsLocalBean(name string) bool
}

// Registry 是定义注册表。
type Registry interface {
	RegisterBeanDefinition(name string, def *BeanDefinition) error
	RemoveBeanDefinition(name string) error
	BeanDefinition(name string) (*BeanDefinition, error)
	ContainsBeanDefinition(name string) bool
	BeanDefinitionNames() []string
	BeanDefinitionCount() int
	IsBeanNameInUse(name string) bool
	RegisterAlias(name, alias string) error
	RemoveAlias(alias string) error
	IsAlias(name string) bool
	Aliases(name string) []string
}

// FactoryBean 是一个负责生产其他对象的 bean。
// 按名称请求得到的是 Object 的产物，加 & 前缀请求得到工厂本身。
type FactoryBean interface {
	Object() (any, error)
	ObjectType() reflect.Type
	IsSingleton() bool
}

// SmartFactoryBean 扩展 FactoryBean，可声明原型产物和启动时立即创建产物。
type SmartFactoryBean interface {
	FactoryBean
	IsPrototype() bool
	IsEagerInit() bool
}

// InitializingBean 在属性填充完成后被回调。
type InitializingBean interface {
	AfterPropertiesSet() error
}

// DisposableBean 在单例销毁时被回调。
type DisposableBean interface {
	Destroy() error
}

// SmartInitializingSingleton 在所有非延迟单例预实例化完成后被回调。
type SmartInitializingSingleton interface {
	AfterSingletonsInstantiated() error
}

// BeanNameAware 接收 bean 自己的名称。
type BeanNameAware interface {
	SetBeanName(name string)
}

// BeanFactoryAware 接收所属工厂。
type BeanFactoryAware interface {
	SetBeanFactory(f *Factory)
}

// Prioritized 是运行时实例提供的优先级，数值越小优先级越高。
type Prioritized interface {
	Priority() int
}

// ValueResolver 解析字符串中的内嵌占位符。
type ValueResolver func(value string) (string, error)

var (
	beanFactoryType     = TypeOf[BeanFactory]()
	listableFactoryType = TypeOf[ListableBeanFactory]()
	factoryBeanType     = TypeOf[FactoryBean]()
	errorType           = TypeOf[error]()
	factoryPtrType      = TypeOf[*Factory]()
)
