package config

import (
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Environment 属性环境接口
type Environment interface {
	// Property 获取属性值，值中的占位符会被解析
	Property(key string) (string, bool)
	// PropertyOr 获取属性值，如果不存在则返回默认值
	PropertyOr(key, defaultValue string) string
	// RequiredProperty 获取必需的属性值
	RequiredProperty(key string) (string, error)
	// ResolvePlaceholders 解析占位符，无法解析的保持原样
	ResolvePlaceholders(text string) string
	// ResolveRequiredPlaceholders 解析占位符，无法解析时返回错误
	ResolveRequiredPlaceholders(text string) (string, error)
	// SetRequiredProperties 设置启动时必须存在的属性
	SetRequiredProperties(keys ...string)
	// ValidateRequiredProperties 校验必需属性
	ValidateRequiredProperties() error
	// PropertySources 返回可修改的属性源集合
	PropertySources() *PropertySources
}

// MissingRequiredPropertiesError 必需属性缺失
type MissingRequiredPropertiesError struct {
	Keys []string
}

func (e *MissingRequiredPropertiesError) Error() string {
	return fmt.Sprintf("config: the following properties were declared as required but could not be resolved: [%s]",
		strings.Join(e.Keys, ", "))
}

// StandardEnvironment 是 Environment 的默认实现
type StandardEnvironment struct {
	sources *PropertySources

	mu       sync.RWMutex
	required []string
}

var _ Environment = (*StandardEnvironment)(nil)

// NewEnvironment 创建不含任何属性源的环境
func NewEnvironment() *StandardEnvironment {
	return &StandardEnvironment{sources: NewPropertySources()}
}

// NewStandardEnvironment 创建包含全部环境变量的环境
func NewStandardEnvironment() *StandardEnvironment {
	env := NewEnvironment()
	// 环境变量源不会返回错误
	_ = env.sources.AddLast(&EnvironmentVariableSource{})
	return env
}

func (e *StandardEnvironment) PropertySources() *PropertySources {
	return e.sources
}

func (e *StandardEnvironment) Property(key string) (string, bool) {
	raw, ok := e.sources.Lookup(key)
	if !ok {
		return "", false
	}
	resolved, err := placeholderResolver{ignoreUnresolvable: true}.replace(raw, e.sources.Lookup)
	if err != nil {
		return raw, true
	}
	return resolved, true
}

func (e *StandardEnvironment) PropertyOr(key, defaultValue string) string {
	if v, ok := e.Property(key); ok {
		return v
	}
	return defaultValue
}

func (e *StandardEnvironment) RequiredProperty(key string) (string, error) {
	raw, ok := e.sources.Lookup(key)
	if !ok {
		return "", fmt.Errorf("config: required key '%s' not found", key)
	}
	return placeholderResolver{}.replace(raw, e.sources.Lookup)
}

func (e *StandardEnvironment) ResolvePlaceholders(text string) string {
	resolved, err := placeholderResolver{ignoreUnresolvable: true}.replace(text, e.sources.Lookup)
	if err != nil {
		return text
	}
	return resolved
}

func (e *StandardEnvironment) ResolveRequiredPlaceholders(text string) (string, error) {
	return placeholderResolver{}.replace(text, e.sources.Lookup)
}

func (e *StandardEnvironment) SetRequiredProperties(keys ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, k := range keys {
		if !slices.Contains(e.required, k) {
			e.required = append(e.required, k)
		}
	}
}

func (e *StandardEnvironment) ValidateRequiredProperties() error {
	e.mu.RLock()
	required := slices.Clone(e.required)
	e.mu.RUnlock()

	var missing []string
	for _, k := range required {
		if _, ok := e.Property(k); !ok {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &MissingRequiredPropertiesError{Keys: missing}
	}
	return nil
}

// AddYamlFile 添加 YAML 文件属性源（最低优先级）
func (e *StandardEnvironment) AddYamlFile(path string, optional ...bool) error {
	return e.sources.AddLast(&YamlFileSource{Path: path, Optional: len(optional) > 0 && optional[0]})
}

// AddJsonFile 添加 JSON 文件属性源（最低优先级）
func (e *StandardEnvironment) AddJsonFile(path string, optional ...bool) error {
	return e.sources.AddLast(&JsonFileSource{Path: path, Optional: len(optional) > 0 && optional[0]})
}

// AddInMemory 添加内存属性源（最高优先级）
func (e *StandardEnvironment) AddInMemory(name string, data map[string]any) error {
	return e.sources.AddFirst(&InMemorySource{SourceName: name, Data: data})
}

// AddEtcd 添加 etcd 属性源（最低优先级）
func (e *StandardEnvironment) AddEtcd(opts EtcdOptions) error {
	return e.sources.AddLast(NewEtcdSource(opts))
}
