package config

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// loadedSource 是已加载的属性源
type loadedSource struct {
	source PropertySource
	data   map[string]any
}

// snapshot 是所有属性源合并后的只读视图
type snapshot struct {
	tree map[string]any    // 合并后的嵌套数据
	flat map[string]string // 展开后的属性，a.b.c 与 a[0]
	keys []string          // flat 的有序键
}

// PropertySources 是有序的属性源集合，排在前面的属性源优先。
//
// 修改在锁内完成并重建快照，读取通过 atomic.Value 无锁进行。
type PropertySources struct {
	mu      sync.Mutex
	sources []loadedSource
	value   atomic.Value // stores *snapshot
}

// NewPropertySources 创建空集合
func NewPropertySources() *PropertySources {
	s := &PropertySources{}
	s.value.Store(buildSnapshot(nil))
	return s
}

// AddFirst 加载 src 并以最高优先级加入
func (s *PropertySources) AddFirst(src PropertySource) error {
	return s.add(src, true)
}

// AddLast 加载 src 并以最低优先级加入
func (s *PropertySources) AddLast(src PropertySource) error {
	return s.add(src, false)
}

func (s *PropertySources) add(src PropertySource, first bool) error {
	data, err := src.Load()
	if err != nil {
		return fmt.Errorf("failed to load property source %s: %w", src.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = slices.DeleteFunc(s.sources, func(ls loadedSource) bool {
		return ls.source.Name() == src.Name()
	})
	ls := loadedSource{source: src, data: data}
	if first {
		s.sources = slices.Insert(s.sources, 0, ls)
	} else {
		s.sources = append(s.sources, ls)
	}
	s.value.Store(buildSnapshot(s.sources))
	return nil
}

// Remove 按名称移除属性源
func (s *PropertySources) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.sources)
	s.sources = slices.DeleteFunc(s.sources, func(ls loadedSource) bool {
		return ls.source.Name() == name
	})
	if len(s.sources) == n {
		return false
	}
	s.value.Store(buildSnapshot(s.sources))
	return true
}

// Reload 重新加载所有属性源，任何一个失败时保留旧数据
func (s *PropertySources) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reloaded := make([]loadedSource, len(s.sources))
	for i, ls := range s.sources {
		data, err := ls.source.Load()
		if err != nil {
			return fmt.Errorf("failed to reload property source %s: %w", ls.source.Name(), err)
		}
		reloaded[i] = loadedSource{source: ls.source, data: data}
	}
	s.sources = reloaded
	s.value.Store(buildSnapshot(s.sources))
	return nil
}

// Names 按优先级返回属性源名称
func (s *PropertySources) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.sources))
	for i, ls := range s.sources {
		names[i] = ls.source.Name()
	}
	return names
}

// Contains 报告是否存在名为 name 的属性源
func (s *PropertySources) Contains(name string) bool {
	return slices.Contains(s.Names(), name)
}

// Keys 返回所有属性名（升序）
func (s *PropertySources) Keys() []string {
	return slices.Clone(s.load().keys)
}

// Lookup 返回未解析占位符的原始属性值
func (s *PropertySources) Lookup(key string) (string, bool) {
	v, ok := s.load().flat[key]
	return v, ok
}

// Subtree 返回 prefix 下的嵌套数据副本，prefix 为空时返回全部
func (s *PropertySources) Subtree(prefix string) (any, bool) {
	var current any = s.load().tree
	if prefix != "" {
		for _, part := range strings.Split(prefix, ".") {
			m, ok := current.(map[string]any)
			if !ok {
				return nil, false
			}
			if current, ok = m[part]; !ok {
				return nil, false
			}
		}
	}
	return copyValue(current), true
}

func (s *PropertySources) load() *snapshot {
	return s.value.Load().(*snapshot)
}

// buildSnapshot 从低优先级到高优先级合并
func buildSnapshot(sources []loadedSource) *snapshot {
	tree := make(map[string]any)
	for i := len(sources) - 1; i >= 0; i-- {
		mergeMaps(tree, sources[i].data)
	}

	flat := make(map[string]string)
	flatten(flat, "", tree)
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return &snapshot{tree: tree, flat: flat, keys: keys}
}

// flatten 展开嵌套数据。列表既展开为 key[i]，也以逗号连接写入 key。
func flatten(out map[string]string, prefix string, v any) {
	switch t := v.(type) {
	case map[string]any:
		for k, e := range t {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			flatten(out, key, e)
		}
	case []any:
		parts := make([]string, 0, len(t))
		for i, e := range t {
			flatten(out, prefix+"["+strconv.Itoa(i)+"]", e)
			if isScalar(e) {
				parts = append(parts, formatScalar(e))
			}
		}
		if prefix != "" && len(parts) == len(t) {
			out[prefix] = strings.Join(parts, ",")
		}
	default:
		if prefix != "" {
			out[prefix] = formatScalar(t)
		}
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	}
	return true
}

func formatScalar(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}
