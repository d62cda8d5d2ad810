package config

import (
	"fmt"
	"strings"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/logging"
)

// ConfigurerOption 配置器选项
type ConfigurerOption func(*configurerOptions)

type configurerOptions struct {
	logger             logging.Logger
	ignoreUnresolvable bool
	ignoreInvalidKeys  bool
	order              int
}

// WithConfigurerLogger 设置日志
func WithConfigurerLogger(logger logging.Logger) ConfigurerOption {
	return func(o *configurerOptions) {
		o.logger = logger
	}
}

// IgnoreUnresolvable 无法解析的占位符保持原样而不是报错
func IgnoreUnresolvable() ConfigurerOption {
	return func(o *configurerOptions) {
		o.ignoreUnresolvable = true
	}
}

// IgnoreInvalidKeys 忽略指向不存在 bean 的覆盖键
func IgnoreInvalidKeys() ConfigurerOption {
	return func(o *configurerOptions) {
		o.ignoreInvalidKeys = true
	}
}

// WithOrder 设置执行顺序
func WithOrder(order int) ConfigurerOption {
	return func(o *configurerOptions) {
		o.order = order
	}
}

func newConfigurerOptions(opts []ConfigurerOption) configurerOptions {
	o := configurerOptions{logger: logging.NewNop(), order: beans.LowestPrecedence}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// PlaceholderConfigurer 解析所有定义中的 ${...} 占位符，并注册为工厂的内嵌值解析器。
type PlaceholderConfigurer struct {
	env  Environment
	opts configurerOptions
}

var (
	_ beans.FactoryPostProcessor = (*PlaceholderConfigurer)(nil)
	_ beans.PriorityOrdered      = (*PlaceholderConfigurer)(nil)
)

// NewPlaceholderConfigurer 创建占位符配置器
func NewPlaceholderConfigurer(env Environment, opts ...ConfigurerOption) *PlaceholderConfigurer {
	return &PlaceholderConfigurer{env: env, opts: newConfigurerOptions(opts)}
}

func (c *PlaceholderConfigurer) Order() int { return c.opts.order }

func (c *PlaceholderConfigurer) PriorityOrdered() {}

// Resolve 解析 value 中的占位符
func (c *PlaceholderConfigurer) Resolve(value string) (string, error) {
	if c.opts.ignoreUnresolvable {
		return c.env.ResolvePlaceholders(value), nil
	}
	return c.env.ResolveRequiredPlaceholders(value)
}

// PostProcessFactory 就地修改所有定义，然后添加内嵌值解析器
func (c *PlaceholderConfigurer) PostProcessFactory(f *beans.Factory) error {
	v := &definitionVisitor{resolve: c.Resolve}
	for _, name := range f.BeanDefinitionNames() {
		def, err := f.BeanDefinition(name)
		if err != nil {
			continue
		}
		if err := v.visitDefinition(def); err != nil {
			return &beans.DefinitionStoreError{Name: name, Msg: "could not resolve placeholder", Err: err}
		}
	}
	f.AddEmbeddedValueResolver(c.Resolve)
	c.opts.logger.Debug("Resolved placeholders in bean definitions",
		logging.F("count", f.BeanDefinitionCount()))
	return nil
}

// definitionVisitor 遍历定义中的字符串值
type definitionVisitor struct {
	resolve func(string) (string, error)
}

func (v *definitionVisitor) visitDefinition(def *beans.BeanDefinition) error {
	for _, s := range []*string{
		&def.ParentName,
		&def.FactoryBeanName,
		&def.FactoryMethodName,
		&def.Scope,
		&def.InitMethodName,
		&def.DestroyMethodName,
	} {
		if err := v.visitString(s); err != nil {
			return err
		}
	}
	for i := range def.DependsOn {
		if err := v.visitString(&def.DependsOn[i]); err != nil {
			return err
		}
	}

	for _, pv := range def.Properties.All() {
		resolved, err := v.visitValue(pv.Value)
		if err != nil {
			return fmt.Errorf("property '%s': %w", pv.Name, err)
		}
		def.Properties.Set(pv.Name, resolved)
	}

	for i, arg := range def.ConstructorArgs.Indexed {
		resolved, err := v.visitValue(arg.Value)
		if err != nil {
			return fmt.Errorf("constructor argument %d: %w", i, err)
		}
		arg.Value = resolved
		def.ConstructorArgs.Indexed[i] = arg
	}
	for i, arg := range def.ConstructorArgs.Generic {
		resolved, err := v.visitValue(arg.Value)
		if err != nil {
			return fmt.Errorf("constructor argument: %w", err)
		}
		def.ConstructorArgs.Generic[i].Value = resolved
	}
	return nil
}

func (v *definitionVisitor) visitString(s *string) error {
	if *s == "" {
		return nil
	}
	resolved, err := v.resolve(*s)
	if err != nil {
		return err
	}
	*s = resolved
	return nil
}

func (v *definitionVisitor) visitValue(value any) (any, error) {
	switch t := value.(type) {
	case string:
		return v.resolve(t)
	case beans.BeanRef:
		name, err := v.resolve(t.Name)
		if err != nil {
			return nil, err
		}
		return beans.Ref(name), nil
	case *beans.BeanDefinition:
		return t, v.visitDefinition(t)
	case beans.List:
		elements := make([]any, len(t.Elements))
		for i, e := range t.Elements {
			resolved, err := v.visitValue(e)
			if err != nil {
				return nil, err
			}
			elements[i] = resolved
		}
		return beans.List{Elements: elements, Merge: t.Merge}, nil
	case beans.Map:
		entries := make(map[string]any, len(t.Entries))
		for k, e := range t.Entries {
			key, err := v.resolve(k)
			if err != nil {
				return nil, err
			}
			resolved, err := v.visitValue(e)
			if err != nil {
				return nil, err
			}
			entries[key] = resolved
		}
		return beans.Map{Entries: entries, Merge: t.Merge}, nil
	default:
		return value, nil
	}
}

// OverrideConfigurer 用 prefix.beanName.property=value 形式的属性覆盖定义中的属性值。
type OverrideConfigurer struct {
	env    Environment
	prefix string
	opts   configurerOptions
}

var (
	_ beans.FactoryPostProcessor = (*OverrideConfigurer)(nil)
	_ beans.Ordered              = (*OverrideConfigurer)(nil)
)

// NewOverrideConfigurer 创建覆盖配置器，prefix 不能为空
func NewOverrideConfigurer(env Environment, prefix string, opts ...ConfigurerOption) *OverrideConfigurer {
	return &OverrideConfigurer{env: env, prefix: strings.TrimSuffix(prefix, "."), opts: newConfigurerOptions(opts)}
}

func (c *OverrideConfigurer) Order() int { return c.opts.order }

func (c *OverrideConfigurer) PostProcessFactory(f *beans.Factory) error {
	if c.prefix == "" {
		return fmt.Errorf("config: override prefix must not be empty")
	}
	head := c.prefix + "."
	for _, key := range c.env.PropertySources().Keys() {
		rest, ok := strings.CutPrefix(key, head)
		if !ok || strings.Contains(key, "[") {
			continue
		}
		if err := c.applyOverride(f, key, rest); err != nil {
			if !c.opts.ignoreInvalidKeys {
				return err
			}
			c.opts.logger.Debug("Ignored invalid override key", logging.F("key", key), logging.Err(err))
		}
	}
	return nil
}

func (c *OverrideConfigurer) applyOverride(f *beans.Factory, key, rest string) error {
	beanName, property, ok := strings.Cut(rest, ".")
	if !ok || beanName == "" || property == "" {
		return fmt.Errorf("config: invalid override key '%s': expected '%sbeanName.property'", key, c.prefix+".")
	}
	def, err := f.BeanDefinition(beanName)
	if err != nil {
		return fmt.Errorf("config: invalid override key '%s': %w", key, err)
	}
	value, err := c.env.RequiredProperty(key)
	if err != nil {
		return err
	}
	def.Properties.Set(property, value)
	c.opts.logger.Debug("Overrode bean property",
		logging.F("bean", beanName), logging.F("property", property))
	return nil
}
