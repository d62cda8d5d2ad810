package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"gopkg.in/yaml.v3"
)

// PropertySource 属性源接口
//
// Load 返回嵌套的 map，键路径用 "." 连接后即为属性名，例如 server.port。
type PropertySource interface {
	Name() string
	Load() (map[string]any, error)
}

// InMemorySource 内存属性源
type InMemorySource struct {
	SourceName string
	Data       map[string]any
}

func (s *InMemorySource) Name() string {
	if s.SourceName != "" {
		return s.SourceName
	}
	return "InMemory"
}

func (s *InMemorySource) Load() (map[string]any, error) {
	// 返回副本，键中的 "." 展开为嵌套
	return expandKeys(s.Data).(map[string]any), nil
}

// expandKeys 递归复制 v，并把 map 键中的 "." 展开为嵌套
func expandKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			setNestedValue(out, k, expandKeys(e))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = expandKeys(e)
		}
		return out
	default:
		return v
	}
}

// JsonFileSource JSON 文件属性源
type JsonFileSource struct {
	Path     string
	Optional bool
}

func (s *JsonFileSource) Name() string {
	return fmt.Sprintf("JsonFile(%s)", s.Path)
}

func (s *JsonFileSource) Load() (map[string]any, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if s.Optional && os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, err
	}

	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return result, nil
}

// YamlFileSource YAML 文件属性源
type YamlFileSource struct {
	Path     string
	Optional bool
}

func (s *YamlFileSource) Name() string {
	return fmt.Sprintf("YamlFile(%s)", s.Path)
}

func (s *YamlFileSource) Load() (map[string]any, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if s.Optional && os.IsNotExist(err) {
			return make(map[string]any), nil
		}
		return nil, err
	}

	var result map[string]any
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if result == nil {
		result = make(map[string]any)
	}
	return result, nil
}

// EnvironmentVariableSource 环境变量属性源
//
// APP_SERVER_PORT 在前缀 APP_ 下映射为 server.port。
type EnvironmentVariableSource struct {
	Prefix string
}

func (s *EnvironmentVariableSource) Name() string {
	return fmt.Sprintf("EnvironmentVariables(%s)", s.Prefix)
}

func (s *EnvironmentVariableSource) Load() (map[string]any, error) {
	result := make(map[string]any)

	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || key == "" {
			continue
		}

		// 检查前缀
		if s.Prefix != "" {
			if !strings.HasPrefix(key, s.Prefix) {
				continue
			}
			key = strings.TrimPrefix(key, s.Prefix)
		}

		// 转换为小写，_ 转换为 .
		key = strings.ReplaceAll(strings.ToLower(key), "_", ".")
		setNestedValue(result, key, value)
	}

	return result, nil
}

// EtcdOptions etcd 配置选项
type EtcdOptions struct {
	Endpoints   []string      // etcd 服务器地址列表
	Username    string        // 用户名（可选）
	Password    string        // 密码（可选）
	Prefix      string        // 键前缀（可选）
	Timeout     time.Duration // 读取超时时间（默认 5 秒）
	DialTimeout time.Duration // 拨号超时时间（默认 5 秒）

	// Client 不为空时复用已有客户端，且不会关闭它
	Client *clientv3.Client
}

// EtcdSource etcd 属性源
//
// 键 /app/server/port 在前缀 /app 下映射为 server.port，
// 值依次尝试按 JSON、YAML 解析，失败则作为字符串。
type EtcdSource struct {
	Options EtcdOptions
}

// NewEtcdSource 创建 etcd 属性源并补齐默认超时
func NewEtcdSource(opts EtcdOptions) *EtcdSource {
	if opts.Timeout == 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}
	return &EtcdSource{Options: opts}
}

func (s *EtcdSource) Name() string {
	return fmt.Sprintf("Etcd(%v%s)", s.Options.Endpoints, s.Options.Prefix)
}

func (s *EtcdSource) Load() (map[string]any, error) {
	cli := s.Options.Client
	if cli == nil {
		var err error
		cli, err = clientv3.New(clientv3.Config{
			Endpoints:   s.Options.Endpoints,
			Username:    s.Options.Username,
			Password:    s.Options.Password,
			DialTimeout: s.Options.DialTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create etcd client: %w", err)
		}
		defer cli.Close()
	}

	timeout := s.Options.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 获取指定前缀下的所有配置
	prefix := s.Options.Prefix
	if prefix == "" {
		prefix = "/"
	}

	resp, err := cli.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to get config from etcd: %w", err)
	}

	result := make(map[string]any)
	for _, kv := range resp.Kvs {
		s.put(result, string(kv.Key), kv.Value)
	}
	return result, nil
}

// put 把一个 etcd 键值写入 result
func (s *EtcdSource) put(result map[string]any, key string, raw []byte) {
	if s.Options.Prefix != "" {
		key = strings.TrimPrefix(key, s.Options.Prefix)
	}
	key = strings.Trim(key, "/")
	if key == "" {
		return
	}
	key = strings.ReplaceAll(key, "/", ".")

	var jsonValue any
	if err := json.Unmarshal(raw, &jsonValue); err == nil {
		setNestedValue(result, key, jsonValue)
		return
	}
	var yamlValue any
	if err := yaml.Unmarshal(raw, &yamlValue); err == nil && yamlValue != nil {
		setNestedValue(result, key, yamlValue)
		return
	}
	setNestedValue(result, key, string(raw))
}

// setNestedValue 按 "." 路径设置嵌套值，路径中已有非 map 值时放弃
func setNestedValue(data map[string]any, path string, value any) {
	parts := strings.Split(path, ".")
	current := data

	for _, part := range parts[:len(parts)-1] {
		if _, exists := current[part]; !exists {
			current[part] = make(map[string]any)
		}
		m, ok := current[part].(map[string]any)
		if !ok {
			return
		}
		current = m
	}

	last := parts[len(parts)-1]
	if src, ok := value.(map[string]any); ok {
		if dst, ok := current[last].(map[string]any); ok {
			mergeMaps(dst, src)
			return
		}
	}
	current[last] = value
}

// mergeMaps 合并两个 map，src 覆盖 dst
func mergeMaps(dst, src map[string]any) {
	for k, v := range src {
		if dstMap, ok := dst[k].(map[string]any); ok {
			if srcMap, ok := v.(map[string]any); ok {
				mergeMaps(dstMap, srcMap)
				continue
			}
		}
		dst[k] = copyValue(v)
	}
}

// copyValue 深拷贝 map 和切片
func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		mergeMaps(out, t)
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
