package beans

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// ErrCreationNotAllowed 在容器销毁单例期间请求创建单例时返回。
var ErrCreationNotAllowed = errors.New("beans: singleton creation not allowed while singletons of this factory are in destruction")

// DefinitionStoreError 表示定义本身无效或无法存储。
type DefinitionStoreError struct {
	Name string
	Msg  string
	Err  error
}

func (e *DefinitionStoreError) Error() string {
	s := fmt.Sprintf("beans: invalid bean definition with name '%s': %s", e.Name, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *DefinitionStoreError) Unwrap() error { return e.Err }

// DefinitionOverrideError 在禁止覆盖时重复注册同名定义返回。
type DefinitionOverrideError struct {
	Name     string
	Existing *BeanDefinition
	New      *BeanDefinition
}

func (e *DefinitionOverrideError) Error() string {
	return fmt.Sprintf("beans: cannot register bean definition [%v] for bean '%s': there is already [%v] bound",
		e.New, e.Name, e.Existing)
}

// NoSuchBeanError 表示找不到请求的 bean。
type NoSuchBeanError struct {
	Name string
	Type reflect.Type
	Msg  string
}

func (e *NoSuchBeanError) Error() string {
	var s string
	if e.Name != "" {
		s = fmt.Sprintf("beans: no bean named '%s' available", e.Name)
	} else {
		s = fmt.Sprintf("beans: no qualifying bean of type '%v' available", e.Type)
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

// NoUniqueBeanError 表示按类型解析时存在多个候选且无法决出。
type NoUniqueBeanError struct {
	Type       reflect.Type
	Candidates []string
	Msg        string
}

func (e *NoUniqueBeanError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = fmt.Sprintf("expected single matching bean but found %d: %s",
			len(e.Candidates), strings.Join(e.Candidates, ","))
	}
	return fmt.Sprintf("beans: no qualifying bean of type '%v' available: %s", e.Type, msg)
}

// UnsatisfiedDependencyError 表示某个注入点无法满足。
type UnsatisfiedDependencyError struct {
	Bean      string
	Injection string
	Err       error
}

func (e *UnsatisfiedDependencyError) Error() string {
	return fmt.Sprintf("beans: unsatisfied dependency of bean '%s' expressed through %s: %v",
		e.Bean, e.Injection, e.Err)
}

func (e *UnsatisfiedDependencyError) Unwrap() error { return e.Err }

// CreationError 表示创建 bean 失败。Chain 为失败时从根请求到当前 bean 的创建路径。
type CreationError struct {
	Bean  string
	Chain []string
	Msg   string
	Err   error
}

func (e *CreationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "beans: error creating bean with name '%s'", e.Bean)
	if len(e.Chain) > 1 {
		fmt.Fprintf(&b, " (chain %s)", strings.Join(e.Chain, " -> "))
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *CreationError) Unwrap() error { return e.Err }

// CurrentlyInCreationError 表示请求了一个正在创建、且无法提前暴露的 bean（无法解决的循环依赖）。
type CurrentlyInCreationError struct {
	Bean string
	Msg  string
}

func (e *CurrentlyInCreationError) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = "requested bean is currently in creation: is there an unresolvable circular reference?"
	}
	return fmt.Sprintf("beans: error creating bean with name '%s': %s", e.Bean, msg)
}

// NotOfRequiredTypeError 表示 bean 的实际类型与要求的类型不符。
type NotOfRequiredTypeError struct {
	Name     string
	Required reflect.Type
	Actual   reflect.Type
}

func (e *NotOfRequiredTypeError) Error() string {
	return fmt.Sprintf("beans: bean named '%s' is expected to be of type '%v' but was actually of type '%v'",
		e.Name, e.Required, e.Actual)
}

// AliasError 表示别名注册失败。
type AliasError struct {
	Alias string
	Name  string
	Msg   string
}

func (e *AliasError) Error() string {
	return fmt.Sprintf("beans: cannot register alias '%s' for name '%s': %s", e.Alias, e.Name, e.Msg)
}

// FactoryBeanNotInitializedError 表示 FactoryBean 在完全初始化前被要求提供产物。
type FactoryBeanNotInitializedError struct {
	Name string
}

func (e *FactoryBeanNotInitializedError) Error() string {
	return fmt.Sprintf("beans: FactoryBean '%s' which is currently in creation returned nil from Object", e.Name)
}

// BeanIsAbstractError 表示请求了抽象定义。
type BeanIsAbstractError struct {
	Name string
}

func (e *BeanIsAbstractError) Error() string {
	return fmt.Sprintf("beans: bean definition '%s' is abstract", e.Name)
}

// NotAFactoryError 表示对非 FactoryBean 使用了 & 前缀。
type NotAFactoryError struct {
	Name   string
	Actual reflect.Type
}

func (e *NotAFactoryError) Error() string {
	return fmt.Sprintf("beans: bean named '%s' is expected to be a FactoryBean but was actually of type '%v'",
		e.Name, e.Actual)
}

// CreationChain 返回错误树中最深的创建路径，没有时返回 nil。
func CreationChain(err error) []string {
	var longest []string
	for err != nil {
		var ce *CreationError
		if !errors.As(err, &ce) {
			break
		}
		if len(ce.Chain) >= len(longest) {
			longest = ce.Chain
		}
		err = ce.Err
	}
	return longest
}

// IsNotFound 报告错误是否为找不到 bean。
func IsNotFound(err error) bool {
	var nsb *NoSuchBeanError
	return errors.As(err, &nsb)
}
