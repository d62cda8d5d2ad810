package beans

import (
	"fmt"
	"reflect"
	"slices"
)

// DependencyDescriptor 描述一个注入点。
type DependencyDescriptor struct {
	// Type 为需要的类型；切片和以字符串为键的映射会收集所有匹配的 bean。
	Type reflect.Type
	// Name 为字段、属性或参数名，多候选时作为最后的名称回退。
	Name string
	// Qualifier 非空时只接受该名称（或其别名）的 bean。
	Qualifier string
	Required  bool
	// Origin 为发起注入的 bean，解析成功后记录依赖关系。
	Origin string
}

type candidate struct {
	name     string
	instance any
}

func (f *Factory) resolveDependency(c *chain, desc DependencyDescriptor) (any, error) {
	t := desc.Type
	if t == nil {
		return nil, fmt.Errorf("beans: dependency descriptor without type")
	}

	switch t {
	case beanFactoryType, listableFactoryType:
		return &chainView{f: f, c: c}, nil
	case factoryPtrType:
		return f, nil
	}

	if multi, ok, err := f.resolveMultiple(c, desc); ok || err != nil {
		return multi, err
	}

	candidates, err := f.findCandidates(c, desc.Origin, t, desc)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		if desc.Required {
			msg := "expected at least 1 bean which qualifies as autowire candidate"
			if desc.Qualifier != "" {
				msg += fmt.Sprintf(" named '%s'", desc.Qualifier)
			}
			return nil, &NoSuchBeanError{Type: t, Msg: msg}
		}
		return nil, nil
	}

	chosen := candidates[0]
	if len(candidates) > 1 {
		name, err := f.determineAutowireCandidate(t, candidates, desc.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, &NoUniqueBeanError{Type: t, Candidates: candidateNames(candidates)}
		}
		for _, cand := range candidates {
			if cand.name == name {
				chosen = cand
			}
		}
	}

	bean, err := f.candidateInstance(c, chosen)
	if err != nil {
		return nil, err
	}
	f.registerAutowired(chosen.name, desc.Origin)
	return bean, nil
}

// resolveMultiple 处理切片和映射类型的注入点。
func (f *Factory) resolveMultiple(c *chain, desc DependencyDescriptor) (any, bool, error) {
	t := desc.Type
	var elem reflect.Type
	switch {
	case t.Kind() == reflect.Slice && !isSimpleType(t):
		elem = t.Elem()
	case t.Kind() == reflect.Map && t.Key().Kind() == reflect.String && !isSimpleType(t):
		elem = t.Elem()
	default:
		return nil, false, nil
	}

	elemDesc := desc
	elemDesc.Type = elem
	candidates, err := f.findCandidates(c, desc.Origin, elem, elemDesc)
	if err != nil {
		return nil, true, err
	}
	candidates = slices.DeleteFunc(candidates, func(cand candidate) bool {
		return cand.name == desc.Origin
	})
	if len(candidates) == 0 {
		if desc.Required {
			return nil, true, &NoSuchBeanError{Type: elem,
				Msg: fmt.Sprintf("expected at least 1 bean to collect into %v", t)}
		}
		return nil, true, nil
	}

	for i := range candidates {
		bean, err := f.candidateInstance(c, candidates[i])
		if err != nil {
			return nil, true, err
		}
		candidates[i].instance = bean
		f.registerAutowired(candidates[i].name, desc.Origin)
	}

	if t.Kind() == reflect.Slice {
		ordered := slices.Clone(candidates)
		slices.SortStableFunc(ordered, func(a, b candidate) int {
			return compareOrder(f.orderOfCandidate(a), f.orderOfCandidate(b))
		})
		out := reflect.MakeSlice(t, 0, len(ordered))
		for _, cand := range ordered {
			out = reflect.Append(out, reflect.ValueOf(cand.instance))
		}
		return out.Interface(), true, nil
	}

	out := reflect.MakeMapWithSize(t, len(candidates))
	for _, cand := range candidates {
		out.SetMapIndex(reflect.ValueOf(cand.name).Convert(t.Key()), reflect.ValueOf(cand.instance))
	}
	return out.Interface(), true, nil
}

func compareOrder(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func (f *Factory) orderOfCandidate(c candidate) int {
	if o, ok := c.instance.(Ordered); ok {
		return o.Order()
	}
	if mbd, err := f.mergedDefinition(f.transformedName(c.name)); err == nil && mbd.def.Priority != nil {
		return *mbd.def.Priority
	}
	return LowestPrecedence
}

func (f *Factory) registerAutowired(name, origin string) {
	if origin == "" || name == "" {
		return
	}
	target := f.transformedName(name)
	if f.ContainsLocalBean(target) {
		f.singletons.registerDependent(target, origin)
	}
}

func (f *Factory) candidateInstance(c *chain, cand candidate) (any, error) {
	if cand.instance != nil {
		return cand.instance, nil
	}
	return f.doGetBean(c, cand.name, nil, nil)
}

func candidateNames(cands []candidate) []string {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	return names
}

// findCandidates 返回 t 类型的自动装配候选。请求者自身只在没有其他候选时才被考虑。
func (f *Factory) findCandidates(c *chain, requesting string, t reflect.Type, desc DependencyDescriptor) ([]candidate, error) {
	f.resolvableMu.RLock()
	for rt, v := range f.resolvable {
		if rt == t {
			f.resolvableMu.RUnlock()
			return []candidate{{name: "", instance: v}}, nil
		}
	}
	f.resolvableMu.RUnlock()

	names := f.beanNamesForTypeIncludingAncestors(t, true, true)
	if desc.Qualifier != "" {
		q := f.transformedName(desc.Qualifier)
		names = slices.DeleteFunc(names, func(n string) bool {
			return f.transformedName(n) != q
		})
	}

	var result []candidate
	for _, name := range names {
		if !f.isSelfReference(requesting, name) && f.isAutowireCandidate(name) {
			result = append(result, candidate{name: name})
		}
	}
	if len(result) == 0 {
		for _, name := range names {
			if f.isSelfReference(requesting, name) && f.isAutowireCandidate(name) {
				result = append(result, candidate{name: name})
			}
		}
	}
	return result, nil
}

func (f *Factory) isSelfReference(requesting, candidate string) bool {
	if requesting == "" || candidate == "" {
		return false
	}
	name := f.transformedName(candidate)
	if name == requesting {
		return true
	}
	if f.ContainsBeanDefinition(name) {
		if mbd, err := f.mergedDefinition(name); err == nil && mbd.def.FactoryBeanName == requesting {
			return true
		}
	}
	return false
}

func (f *Factory) isAutowireCandidate(name string) bool {
	beanName := f.transformedName(name)
	if f.ContainsBeanDefinition(beanName) {
		mbd, err := f.mergedDefinition(beanName)
		return err == nil && mbd.def.AutowireCandidate
	}
	if f.singletons.contains(beanName) {
		return true
	}
	if parent, ok := f.parentFactory(); ok {
		return parent.isAutowireCandidate(name)
	}
	return true
}

// determineAutowireCandidate 在多个候选中决出一个：先看 primary，再看优先级，最后按名称回退。
// 无法决出时返回空字符串。
func (f *Factory) determineAutowireCandidate(t reflect.Type, candidates []candidate, fallbackName string) (string, error) {
	var primary string
	for _, cand := range candidates {
		if f.isPrimary(cand.name, cand.instance) {
			if primary != "" {
				return "", &NoUniqueBeanError{Type: t, Candidates: candidateNames(candidates),
					Msg: fmt.Sprintf("more than one 'primary' bean found among candidates: %v", candidateNames(candidates))}
			}
			primary = cand.name
		}
	}
	if primary != "" {
		return primary, nil
	}

	if f.priorityComparator {
		name, err := f.highestPriority(t, candidates)
		if err != nil || name != "" {
			return name, err
		}
	}

	if fallbackName != "" {
		for _, cand := range candidates {
			if cand.name == "" {
				continue
			}
			beanName := f.transformedName(cand.name)
			if beanName == fallbackName || slices.Contains(f.aliases.aliasesOf(beanName), fallbackName) {
				return cand.name, nil
			}
		}
	}
	return "", nil
}

// highestPriority 返回优先级数值最小的候选；最小值并列时报错。
func (f *Factory) highestPriority(t reflect.Type, candidates []candidate) (string, error) {
	var (
		best     string
		bestVal  int
		found    bool
		tiedWith string
	)
	for _, cand := range candidates {
		p, ok := f.priorityOf(cand)
		if !ok {
			continue
		}
		switch {
		case !found || p < bestVal:
			best, bestVal, found, tiedWith = cand.name, p, true, ""
		case p == bestVal:
			tiedWith = cand.name
		}
	}
	if tiedWith != "" {
		return "", &NoUniqueBeanError{Type: t, Candidates: candidateNames(candidates),
			Msg: fmt.Sprintf("multiple beans found with the same priority ('%d') among candidates: %v", bestVal, []string{best, tiedWith})}
	}
	return best, nil
}

func (f *Factory) priorityOf(cand candidate) (int, bool) {
	if cand.name != "" {
		beanName := f.transformedName(cand.name)
		if f.ContainsBeanDefinition(beanName) {
			if mbd, err := f.mergedDefinition(beanName); err == nil && mbd.def.Priority != nil {
				return *mbd.def.Priority, true
			}
		}
		if inst, ok := f.singletons.get(beanName); ok {
			if p, ok := inst.(Prioritized); ok {
				return p.Priority(), true
			}
		}
	}
	if p, ok := cand.instance.(Prioritized); ok {
		return p.Priority(), true
	}
	return 0, false
}

func (f *Factory) isPrimary(name string, instance any) bool {
	if name == "" {
		return false
	}
	beanName := f.transformedName(name)
	if f.ContainsBeanDefinition(beanName) {
		mbd, err := f.mergedDefinition(beanName)
		return err == nil && mbd.def.Primary
	}
	if parent, ok := f.parentFactory(); ok {
		return parent.isPrimary(name, instance)
	}
	return false
}

// resolveNamedBean 按类型获取唯一的 bean，没有本地候选时回退父工厂。
func (f *Factory) resolveNamedBean(c *chain, t reflect.Type) (any, error) {
	names := f.BeanNamesForType(t, true, true)
	if len(names) > 1 {
		var filtered []string
		for _, n := range names {
			if !f.ContainsBeanDefinition(n) || f.isAutowireCandidate(n) {
				filtered = append(filtered, n)
			}
		}
		if len(filtered) > 0 {
			names = filtered
		}
	}

	switch len(names) {
	case 0:
		if f.parent != nil {
			return f.parent.GetBeanOfType(t)
		}
		return nil, &NoSuchBeanError{Type: t}
	case 1:
		return f.doGetBean(c, names[0], t, nil)
	}

	candidates := make([]candidate, 0, len(names))
	for _, n := range names {
		cand := candidate{name: n}
		if inst, ok := f.singletons.get(f.transformedName(n)); ok && !isFactoryDereference(n) {
			if _, isFactory := inst.(FactoryBean); !isFactory {
				cand.instance = inst
			}
		}
		candidates = append(candidates, cand)
	}
	name, err := f.determineAutowireCandidate(t, candidates, "")
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, &NoUniqueBeanError{Type: t, Candidates: names}
	}
	return f.doGetBean(c, name, t, nil)
}
