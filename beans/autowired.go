package beans

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// AutowiredTagPostProcessor 处理结构体字段上的注入标签。
//
// 支持的标签：
//
//	Repo  UserRepo `di:""`              // 按类型注入
//	Cache Cache    `di:"redisCache"`    // 按名称限定
//	Log   Logger   `di:"?"`             // 可选，没有候选时保持零值
//	Port  int      `value:"${server.port:8080}"` // 内嵌值，经占位符解析后转换为字段类型
//
// 未导出字段同样可以注入。显式设置的同名属性优先于标签。
type AutowiredTagPostProcessor struct {
	BasePostProcessor
	factory *Factory
	cache   sync.Map // reflect.Type -> []fieldInjection
}

// fieldInjection 记录一个字段注入点。
type fieldInjection struct {
	index     int
	field     string
	property  string
	typ       reflect.Type
	qualifier string
	optional  bool
	value     string
	isValue   bool
}

var (
	_ InstantiationAwarePostProcessor = (*AutowiredTagPostProcessor)(nil)
	_ MergedDefinitionPostProcessor   = (*AutowiredTagPostProcessor)(nil)
	_ PriorityOrdered                 = (*AutowiredTagPostProcessor)(nil)
)

// NewAutowiredTagPostProcessor 创建标签注入处理器。f 可以为 nil，由 SetBeanFactory 稍后设置。
func NewAutowiredTagPostProcessor(f *Factory) *AutowiredTagPostProcessor {
	return &AutowiredTagPostProcessor{factory: f}
}

// SetBeanFactory 实现 BeanFactoryAware。
func (p *AutowiredTagPostProcessor) SetBeanFactory(f *Factory) {
	p.factory = f
}

func (p *AutowiredTagPostProcessor) Order() int { return LowestPrecedence - 2 }

func (p *AutowiredTagPostProcessor) PriorityOrdered() {}

func (p *AutowiredTagPostProcessor) PostProcessBeforeInstantiation(reflect.Type, string) (any, error) {
	return nil, nil
}

func (p *AutowiredTagPostProcessor) PostProcessAfterInstantiation(any, string) (bool, error) {
	return true, nil
}

// PostProcessMergedDefinition 预先解析并缓存类型的注入元数据。
func (p *AutowiredTagPostProcessor) PostProcessMergedDefinition(_ *BeanDefinition, typ reflect.Type, _ string) error {
	_, err := p.metadata(typ)
	return err
}

func (p *AutowiredTagPostProcessor) ResetDefinition(string) {}

// PostProcessProperties 解析并写入所有带标签的字段。
func (p *AutowiredTagPostProcessor) PostProcessProperties(ctx context.Context, pvs *PropertyValues, bean any, name string) (*PropertyValues, error) {
	if p.factory == nil {
		return nil, errors.New("beans: AutowiredTagPostProcessor requires a bean factory")
	}
	injections, err := p.metadata(reflect.TypeOf(bean))
	if err != nil {
		return nil, &CreationError{Bean: name, Msg: "injection of tagged fields failed", Err: err}
	}
	if len(injections) == 0 {
		return pvs, nil
	}
	elem := reflect.ValueOf(bean).Elem()

	for _, inj := range injections {
		if pvs != nil && pvs.Contains(inj.property) {
			continue
		}
		injection := fmt.Sprintf("field '%s'", inj.field)

		var value any
		if inj.isValue {
			resolved, err := p.factory.ResolveEmbeddedValue(inj.value)
			if err != nil {
				return nil, &UnsatisfiedDependencyError{Bean: name, Injection: injection, Err: err}
			}
			value = resolved
		} else {
			dep, err := p.factory.ResolveDependency(ctx, DependencyDescriptor{
				Type:      inj.typ,
				Name:      inj.property,
				Qualifier: inj.qualifier,
				Required:  !inj.optional,
				Origin:    name,
			})
			if err != nil {
				return nil, &UnsatisfiedDependencyError{Bean: name, Injection: injection, Err: err}
			}
			if dep == nil {
				continue
			}
			value = dep
		}

		v, err := convertValue(value, inj.typ)
		if err != nil {
			return nil, &UnsatisfiedDependencyError{Bean: name, Injection: injection, Err: err}
		}
		settableField(elem.Field(inj.index)).Set(v)
	}
	return pvs, nil
}

// metadata 返回 typ 的字段注入点，只处理指向结构体的指针。
func (p *AutowiredTagPostProcessor) metadata(typ reflect.Type) ([]fieldInjection, error) {
	if cached, ok := p.cache.Load(typ); ok {
		return cached.([]fieldInjection), nil
	}
	if typ.Kind() != reflect.Ptr || typ.Elem().Kind() != reflect.Struct {
		p.cache.Store(typ, []fieldInjection(nil))
		return nil, nil
	}

	st := typ.Elem()
	var injections []fieldInjection
	for i := range st.NumField() {
		field := st.Field(i)

		if expr, ok := field.Tag.Lookup("value"); ok {
			injections = append(injections, fieldInjection{
				index:    i,
				field:    field.Name,
				property: lowerFirst(field.Name),
				typ:      field.Type,
				value:    expr,
				isValue:  true,
			})
			continue
		}

		tagValue, hasTag := field.Tag.Lookup("di")
		if !hasTag {
			continue
		}

		// 解析 tag: "name,option1,option2"
		parts := strings.Split(tagValue, ",")
		qualifier := strings.TrimSpace(parts[0])
		optional := false

		// 处理 "di:?" 或 "di:optional" 的情况，此时没有名称
		if qualifier == "?" || qualifier == "optional" {
			qualifier = ""
			optional = true
		}
		for _, part := range parts[1:] {
			part = strings.TrimSpace(part)
			switch part {
			case "optional", "?":
				optional = true
			case "":
			default:
				return nil, fmt.Errorf("unknown option '%s' in di tag of field %v.%s", part, st, field.Name)
			}
		}

		injections = append(injections, fieldInjection{
			index:     i,
			field:     field.Name,
			property:  lowerFirst(field.Name),
			typ:       field.Type,
			qualifier: qualifier,
			optional:  optional,
		})
	}

	p.cache.Store(typ, injections)
	return injections, nil
}
