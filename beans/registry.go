package beans

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gocrud/ioc/logging"
)

// mergedDefinition 是父子合并后的根定义及其缓存状态。
type mergedDefinition struct {
	def *BeanDefinition

	postProcessOnce sync.Once
	postProcessErr  error
}

// RegisterBeanDefinition 注册定义。同名定义是否可覆盖取决于 WithAllowOverriding。
func (f *Factory) RegisterBeanDefinition(name string, def *BeanDefinition) error {
	if name == "" {
		return &DefinitionStoreError{Name: name, Msg: "bean name must not be empty"}
	}
	if def == nil {
		return &DefinitionStoreError{Name: name, Msg: "bean definition must not be nil"}
	}
	if err := def.Validate(); err != nil {
		return &DefinitionStoreError{Name: name, Msg: "validation of bean definition failed", Err: err}
	}
	def.normalize()

	f.defMu.Lock()
	existing, exists := f.defs[name]
	if exists {
		if !f.allowOverriding {
			f.defMu.Unlock()
			return &DefinitionOverrideError{Name: name, Existing: existing, New: def}
		}
		f.defs[name] = def
	} else {
		if f.aliases.isAlias(name) {
			if !f.allowOverriding {
				f.defMu.Unlock()
				return &DefinitionStoreError{Name: name,
					Msg: fmt.Sprintf("name is already in use as an alias for '%s'", f.aliases.canonical(name))}
			}
			f.aliases.remove(name)
		}
		f.defs[name] = def
		f.names = append(f.names, name)
		f.frozenNames = nil
	}
	f.defMu.Unlock()

	if exists {
		if existing.Role < def.Role {
			f.logger.Info("Overriding user-defined bean definition with a framework-generated one",
				logging.Field{Key: "bean", Value: name})
		} else {
			f.logger.Info("Overriding bean definition",
				logging.Field{Key: "bean", Value: name},
				logging.Field{Key: "existing", Value: existing.String()},
				logging.Field{Key: "replacement", Value: def.String()})
		}
	}

	if exists || f.singletons.contains(name) {
		f.resetBeanDefinition(name)
	}
	f.clearTypeCaches()
	return nil
}

// RemoveBeanDefinition 删除定义并销毁其已创建的单例。
func (f *Factory) RemoveBeanDefinition(name string) error {
	f.defMu.Lock()
	if _, ok := f.defs[name]; !ok {
		f.defMu.Unlock()
		return &NoSuchBeanError{Name: name}
	}
	delete(f.defs, name)
	f.names = slices.DeleteFunc(f.names, func(n string) bool { return n == name })
	f.frozenNames = nil
	f.defMu.Unlock()

	f.resetBeanDefinition(name)
	f.clearTypeCaches()
	return nil
}

// BeanDefinition 返回已注册的原始定义（非合并）。可以就地修改，直到配置冻结。
func (f *Factory) BeanDefinition(name string) (*BeanDefinition, error) {
	f.defMu.RLock()
	defer f.defMu.RUnlock()
	def, ok := f.defs[name]
	if !ok {
		return nil, &NoSuchBeanError{Name: name}
	}
	return def, nil
}

// ContainsBeanDefinition 报告是否注册了名为 name 的定义（不解析别名）。
func (f *Factory) ContainsBeanDefinition(name string) bool {
	f.defMu.RLock()
	defer f.defMu.RUnlock()
	_, ok := f.defs[name]
	return ok
}

// BeanDefinitionNames 按注册顺序返回定义名称。
func (f *Factory) BeanDefinitionNames() []string {
	f.defMu.RLock()
	defer f.defMu.RUnlock()
	if f.frozenNames != nil {
		return slices.Clone(f.frozenNames)
	}
	return slices.Clone(f.names)
}

// BeanDefinitionCount 返回定义数量。
func (f *Factory) BeanDefinitionCount() int {
	f.defMu.RLock()
	defer f.defMu.RUnlock()
	return len(f.defs)
}

// IsBeanNameInUse 报告名称是否已被定义、单例、别名或依赖关系占用。
func (f *Factory) IsBeanNameInUse(name string) bool {
	return f.aliases.isAlias(name) || f.ContainsLocalBean(name) || len(f.singletons.dependentsOf(name)) > 0
}

// RegisterAlias 为 name 注册别名 alias。
func (f *Factory) RegisterAlias(name, alias string) error {
	if alias != "" && f.ContainsBeanDefinition(alias) && alias != name {
		return &AliasError{Alias: alias, Name: name, Msg: "a bean definition with that name already exists"}
	}
	if err := f.aliases.register(name, alias, f.allowOverriding); err != nil {
		return err
	}
	f.clearTypeCaches()
	return nil
}

// RemoveAlias 删除别名。
func (f *Factory) RemoveAlias(alias string) error {
	if !f.aliases.remove(alias) {
		return &AliasError{Alias: alias, Msg: "no alias registered"}
	}
	return nil
}

// IsAlias 报告 name 是否为别名。
func (f *Factory) IsAlias(name string) bool {
	return f.aliases.isAlias(name)
}

// CanonicalName 把别名解析为最终名称。
func (f *Factory) CanonicalName(name string) string {
	return f.aliases.canonical(name)
}

// FreezeConfiguration 冻结定义，此后名称列表和按类型查询结果会被缓存。
func (f *Factory) FreezeConfiguration() {
	f.defMu.Lock()
	f.frozenNames = slices.Clone(f.names)
	f.defMu.Unlock()
	f.frozen.Store(true)
	f.clearTypeCaches()
}

// IsConfigurationFrozen 报告配置是否已冻结。
func (f *Factory) IsConfigurationFrozen() bool {
	return f.frozen.Load()
}

// MergedBeanDefinition 返回合并父定义后的副本。
func (f *Factory) MergedBeanDefinition(name string) (*BeanDefinition, error) {
	beanName := f.transformedName(name)
	if !f.ContainsBeanDefinition(beanName) {
		if parent, ok := f.parent.(interface {
			MergedBeanDefinition(string) (*BeanDefinition, error)
		}); ok {
			return parent.MergedBeanDefinition(beanName)
		}
	}
	mbd, err := f.mergedDefinition(beanName)
	if err != nil {
		return nil, err
	}
	return mbd.def.Clone(), nil
}

// ClearMetadataCache 丢弃尚未开始创建的 bean 的合并定义，定义级后处理器修改定义后调用。
func (f *Factory) ClearMetadataCache() {
	f.mergedMu.Lock()
	for name := range f.merged {
		if _, ok := f.created.Load(name); !ok {
			delete(f.merged, name)
		}
	}
	f.mergedMu.Unlock()
	f.clearTypeCaches()
	f.productTypes.Range(func(key, _ any) bool {
		f.productTypes.Delete(key)
		return true
	})
}

func (f *Factory) mergedDefinition(beanName string) (*mergedDefinition, error) {
	f.mergedMu.Lock()
	if m, ok := f.merged[beanName]; ok {
		f.mergedMu.Unlock()
		return m, nil
	}
	f.mergedMu.Unlock()

	f.defMu.RLock()
	def, ok := f.defs[beanName]
	f.defMu.RUnlock()
	if !ok {
		return nil, &NoSuchBeanError{Name: beanName}
	}

	root, err := f.merge(beanName, def, nil, map[string]bool{beanName: true})
	if err != nil {
		return nil, err
	}

	f.mergedMu.Lock()
	defer f.mergedMu.Unlock()
	if m, ok := f.merged[beanName]; ok {
		return m, nil
	}
	m := &mergedDefinition{def: root}
	f.merged[beanName] = m
	return m, nil
}

// merge 计算合并后的定义。containing 非空表示 def 是内部定义。
func (f *Factory) merge(beanName string, def *BeanDefinition, containing *BeanDefinition, seen map[string]bool) (*BeanDefinition, error) {
	var root *BeanDefinition
	if def.ParentName == "" {
		root = def.Clone()
	} else {
		parentName := f.transformedName(def.ParentName)
		var parentDef *BeanDefinition
		switch {
		case parentName != beanName && f.ContainsBeanDefinition(parentName):
			if seen[parentName] {
				return nil, &DefinitionStoreError{Name: beanName,
					Msg: fmt.Sprintf("circular parent relationship through '%s'", parentName)}
			}
			seen[parentName] = true
			f.defMu.RLock()
			raw := f.defs[parentName]
			f.defMu.RUnlock()
			pd, err := f.merge(parentName, raw, nil, seen)
			if err != nil {
				return nil, err
			}
			parentDef = pd
		default:
			parent, ok := f.parent.(interface {
				MergedBeanDefinition(string) (*BeanDefinition, error)
			})
			if !ok {
				return nil, &DefinitionStoreError{Name: beanName,
					Msg: fmt.Sprintf("parent name '%s' is equal to bean name '%s': cannot be resolved without a parent factory", parentName, beanName)}
			}
			pd, err := parent.MergedBeanDefinition(parentName)
			if err != nil {
				var nsb *NoSuchBeanError
				if errors.As(err, &nsb) {
					return nil, &DefinitionStoreError{Name: beanName,
						Msg: fmt.Sprintf("could not resolve parent bean definition '%s'", parentName), Err: err}
				}
				return nil, err
			}
			parentDef = pd
		}
		root = parentDef.Clone()
		root.overrideFrom(def)
	}

	if root.Scope == "" {
		root.Scope = ScopeSingleton
	}
	if containing != nil && !containing.IsSingleton() && root.IsSingleton() {
		root.Scope = containing.Scope
	}
	root.normalize()
	return root, nil
}

// resetBeanDefinition 丢弃 name 及其子定义的合并缓存和已创建的单例。
func (f *Factory) resetBeanDefinition(name string) {
	f.mergedMu.Lock()
	delete(f.merged, name)
	f.mergedMu.Unlock()
	f.created.Delete(name)
	f.productTypes.Delete(name)
	f.failedTypes.Delete(name)

	f.destroySingleton(name)

	for _, p := range f.mergedDefinitionProcessors() {
		p.ResetDefinition(name)
	}

	f.defMu.RLock()
	var children []string
	for _, n := range f.names {
		if d := f.defs[n]; d != nil && d.ParentName != "" && n != name && f.aliases.canonical(d.ParentName) == name {
			children = append(children, n)
		}
	}
	f.defMu.RUnlock()

	for _, child := range children {
		f.resetBeanDefinition(child)
	}
}
