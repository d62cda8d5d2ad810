package config

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// Bind 把 prefix 下的属性绑定到 T
//
// 字段按 yaml 标签匹配，字符串中的占位符先被解析，
// 标量按 YAML 规则转换，因此 "8080" 可以绑定到 int，"3s" 可以绑定到 time.Duration。
func Bind[T any](env Environment, prefix string) (T, error) {
	var t T
	err := BindTo(env, prefix, &t)
	return t, err
}

// BindTo 把 prefix 下的属性绑定到 target，target 必须是指针
func BindTo(env Environment, prefix string, target any) error {
	data, ok := env.PropertySources().Subtree(prefix)
	if !ok {
		return fmt.Errorf("config: key %s not found", prefix)
	}
	node := toNode(data, env.ResolvePlaceholders)
	if err := node.Decode(target); err != nil {
		return fmt.Errorf("config: failed to bind '%s': %w", prefix, err)
	}
	return nil
}

// toNode 构建 YAML 节点树，标量不带标签，解码时按值推断类型
func toNode(v any, resolve func(string) string) *yaml.Node {
	switch t := v.(type) {
	case map[string]any:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k},
				toNode(t[k], resolve))
		}
		return node
	case []any:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, e := range t {
			node.Content = append(node.Content, toNode(e, resolve))
		}
		return node
	case nil:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: ""}
	case string:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: resolve(t)}
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Value: formatScalar(t)}
	}
}
