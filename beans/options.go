package beans

import "reflect"

// Option 配置 BeanDefinition。
type Option func(*BeanDefinition)

// WithType 设置 bean 类型。
func WithType(typ reflect.Type) Option {
	return func(d *BeanDefinition) {
		d.Type = typ
		d.explicit |= fieldType
	}
}

// WithScope 设置作用域名称。
func WithScope(scope string) Option {
	return func(d *BeanDefinition) {
		d.Scope = scope
		d.explicit |= fieldScope
	}
}

// WithSingleton 将作用域设置为 singleton（默认）。
func WithSingleton() Option {
	return WithScope(ScopeSingleton)
}

// WithPrototype 将作用域设置为 prototype。
func WithPrototype() Option {
	return WithScope(ScopePrototype)
}

// WithLazyInit 设置是否延迟到首次请求时再创建。
func WithLazyInit(lazy bool) Option {
	return func(d *BeanDefinition) {
		d.LazyInit = lazy
		d.explicit |= fieldLazy
	}
}

// WithAutowire 设置自动装配模式。
func WithAutowire(mode AutowireMode) Option {
	return func(d *BeanDefinition) {
		d.AutowireMode = mode
		d.explicit |= fieldAutowire
	}
}

// WithDependencyCheck 要求自动装配的属性必须全部满足。
func WithDependencyCheck() Option {
	return func(d *BeanDefinition) {
		d.DependencyCheck = true
		d.explicit |= fieldDependencyCheck
	}
}

// WithPrimary 标记为按类型解析时的首选候选。
func WithPrimary() Option {
	return func(d *BeanDefinition) {
		d.Primary = true
	}
}

// WithAutowireCandidate 设置能否作为其他 bean 的自动装配候选。
func WithAutowireCandidate(candidate bool) Option {
	return func(d *BeanDefinition) {
		d.AutowireCandidate = candidate
	}
}

// WithPriority 设置优先级，数值越小优先级越高。
func WithPriority(priority int) Option {
	return func(d *BeanDefinition) {
		d.Priority = &priority
		d.explicit |= fieldPriority
	}
}

// WithDependsOn 声明必须先于本 bean 初始化、后于本 bean 销毁的 bean。
func WithDependsOn(names ...string) Option {
	return func(d *BeanDefinition) {
		d.DependsOn = append(d.DependsOn, names...)
		d.explicit |= fieldDependsOn
	}
}

// WithConstructor 添加候选构造函数。
// 构造函数返回 T 或 (T, error)，参数来自构造参数或按类型自动装配。
func WithConstructor(constructors ...any) Option {
	return func(d *BeanDefinition) {
		d.Constructors = append(d.Constructors, constructors...)
		d.explicit |= fieldConstructors
	}
}

// WithFactoryMethod 通过调用 bean factoryBean 的方法 method 创建实例。
func WithFactoryMethod(factoryBean, method string) Option {
	return func(d *BeanDefinition) {
		d.FactoryBeanName = factoryBean
		d.FactoryMethodName = method
		d.explicit |= fieldFactoryBean | fieldFactoryMethod
	}
}

// WithArg 设置指定下标的构造参数。
func WithArg(index int, value any) Option {
	return func(d *BeanDefinition) {
		d.ConstructorArgs.AddIndexed(index, value)
	}
}

// WithGenericArg 添加按类型匹配的构造参数。
func WithGenericArg(value any) Option {
	return func(d *BeanDefinition) {
		d.ConstructorArgs.AddGeneric(value)
	}
}

// WithProperty 设置属性值。
func WithProperty(name string, value any) Option {
	return func(d *BeanDefinition) {
		d.Properties.Add(name, value)
	}
}

// WithInitMethod 设置初始化方法名。
func WithInitMethod(name string) Option {
	return func(d *BeanDefinition) {
		d.InitMethodName = name
		d.explicit |= fieldInit
	}
}

// WithDestroyMethod 设置销毁方法名，可以使用 InferMethod。
func WithDestroyMethod(name string) Option {
	return func(d *BeanDefinition) {
		d.DestroyMethodName = name
		d.explicit |= fieldDestroy
	}
}

// WithAbstract 标记为抽象模板，不能直接实例化。
func WithAbstract() Option {
	return func(d *BeanDefinition) {
		d.Abstract = true
	}
}

// WithParent 设置父定义名称。
func WithParent(name string) Option {
	return func(d *BeanDefinition) {
		d.ParentName = name
	}
}

// WithObjectType 为 FactoryBean 提供产物类型提示。
func WithObjectType(typ reflect.Type) Option {
	return func(d *BeanDefinition) {
		d.ObjectType = typ
		d.explicit |= fieldObjectType
	}
}

// WithRole 设置定义角色。
func WithRole(role Role) Option {
	return func(d *BeanDefinition) {
		d.Role = role
		d.explicit |= fieldRole
	}
}

// WithDescription 设置描述。
func WithDescription(desc string) Option {
	return func(d *BeanDefinition) {
		d.Description = desc
		d.explicit |= fieldDescription
	}
}
