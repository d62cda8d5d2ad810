package config

import (
	"fmt"
	"strings"
)

const (
	placeholderPrefix = "${"
	placeholderSuffix = "}"
	simplePrefix      = "{"
	valueSeparator    = ":"
)

// UnresolvablePlaceholderError 占位符无法解析且没有默认值
type UnresolvablePlaceholderError struct {
	Placeholder string
	Value       string
}

func (e *UnresolvablePlaceholderError) Error() string {
	return fmt.Sprintf("config: could not resolve placeholder '%s' in value \"%s\"", e.Placeholder, e.Value)
}

// CircularPlaceholderError 占位符循环引用
type CircularPlaceholderError struct {
	Placeholder string
}

func (e *CircularPlaceholderError) Error() string {
	return fmt.Sprintf("config: circular placeholder reference '%s' in property definitions", e.Placeholder)
}

// placeholderResolver 替换 ${key} 和 ${key:default}，支持嵌套
type placeholderResolver struct {
	ignoreUnresolvable bool
}

func (r placeholderResolver) replace(value string, lookup func(string) (string, bool)) (string, error) {
	return r.parse(value, lookup, make(map[string]bool))
}

func (r placeholderResolver) parse(value string, lookup func(string) (string, bool), visited map[string]bool) (string, error) {
	start := strings.Index(value, placeholderPrefix)
	for start >= 0 {
		end := findPlaceholderEnd(value, start)
		if end < 0 {
			break
		}
		original := value[start+len(placeholderPrefix) : end]
		if visited[original] {
			return "", &CircularPlaceholderError{Placeholder: original}
		}
		visited[original] = true

		// 先解析键中的占位符
		key, err := r.parse(original, lookup, visited)
		if err != nil {
			return "", err
		}

		resolved, ok := lookup(key)
		if !ok {
			if name, def, found := strings.Cut(key, valueSeparator); found {
				if resolved, ok = lookup(name); !ok {
					resolved, ok = def, true
				}
			}
		}

		switch {
		case ok:
			// 值中可能还有占位符
			if resolved, err = r.parse(resolved, lookup, visited); err != nil {
				return "", err
			}
			value = value[:start] + resolved + value[end+len(placeholderSuffix):]
			start = indexFrom(value, placeholderPrefix, start+len(resolved))
		case r.ignoreUnresolvable:
			start = indexFrom(value, placeholderPrefix, end+len(placeholderSuffix))
		default:
			return "", &UnresolvablePlaceholderError{Placeholder: key, Value: value}
		}
		delete(visited, original)
	}
	return value, nil
}

// findPlaceholderEnd 返回与 start 处前缀匹配的后缀位置
func findPlaceholderEnd(value string, start int) int {
	nested := 0
	for i := start + len(placeholderPrefix); i < len(value); {
		switch {
		case strings.HasPrefix(value[i:], placeholderSuffix):
			if nested == 0 {
				return i
			}
			nested--
			i += len(placeholderSuffix)
		case strings.HasPrefix(value[i:], simplePrefix):
			nested++
			i += len(simplePrefix)
		default:
			i++
		}
	}
	return -1
}

func indexFrom(s, substr string, from int) int {
	if from >= len(s) {
		return -1
	}
	i := strings.Index(s[from:], substr)
	if i < 0 {
		return -1
	}
	return from + i
}
