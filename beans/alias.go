package beans

import (
	"slices"
	"sync"
)

// aliasRegistry 维护 别名 -> 名称 的映射，名称本身也可以是别名。
type aliasRegistry struct {
	mu      sync.RWMutex
	aliases map[string]string
	order   []string
}

func newAliasRegistry() *aliasRegistry {
	return &aliasRegistry{aliases: make(map[string]string)}
}

// register 注册别名。allowOverride 为 false 时不允许把已有别名指向其他名称。
func (r *aliasRegistry) register(name, alias string, allowOverride bool) error {
	if name == "" || alias == "" {
		return &AliasError{Alias: alias, Name: name, Msg: "name and alias must not be empty"}
	}
	if name == alias {
		return &AliasError{Alias: alias, Name: name, Msg: "alias must differ from the name it refers to"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.aliases[alias]; ok {
		if existing == name {
			return nil
		}
		if !allowOverride {
			return &AliasError{Alias: alias, Name: name, Msg: "it is already registered for name '" + existing + "'"}
		}
	}
	if r.hasAliasLocked(alias, name) {
		return &AliasError{Alias: alias, Name: name, Msg: "circular reference: '" + name + "' is a direct or indirect alias for '" + alias + "' already"}
	}
	if _, ok := r.aliases[alias]; !ok {
		r.order = append(r.order, alias)
	}
	r.aliases[alias] = name
	return nil
}

// hasAliasLocked 报告 alias 是否（直接或间接）是 name 的别名。
func (r *aliasRegistry) hasAliasLocked(name, alias string) bool {
	for registered, target := range r.aliases {
		if target == name {
			if registered == alias || r.hasAliasLocked(registered, alias) {
				return true
			}
		}
	}
	return false
}

func (r *aliasRegistry) remove(alias string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.aliases[alias]; !ok {
		return false
	}
	delete(r.aliases, alias)
	r.order = slices.DeleteFunc(r.order, func(a string) bool { return a == alias })
	return true
}

func (r *aliasRegistry) isAlias(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.aliases[name]
	return ok
}

// aliasesOf 返回 name 的所有直接和间接别名，按注册顺序。
func (r *aliasRegistry) aliasesOf(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	r.collectLocked(name, &out)
	return out
}

func (r *aliasRegistry) collectLocked(name string, out *[]string) {
	for _, alias := range r.order {
		if r.aliases[alias] == name && !slices.Contains(*out, alias) {
			*out = append(*out, alias)
			r.collectLocked(alias, out)
		}
	}
}

// canonical 沿别名链解析到最终名称。
func (r *aliasRegistry) canonical(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	current := name
	for range len(r.aliases) + 1 {
		target, ok := r.aliases[current]
		if !ok {
			return current
		}
		current = target
	}
	return current
}
