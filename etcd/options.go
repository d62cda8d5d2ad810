package etcd

import (
	"fmt"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// EtcdClientOptions etcd 客户端配置选项
type EtcdClientOptions struct {
	Name               string        // 客户端名称
	Endpoints          []string      // etcd 服务器地址列表
	DialTimeout        time.Duration // 连接超时时间
	Username           string        // 用户名（可选）
	Password           string        // 密码（可选）
	AutoSyncInterval   time.Duration // 自动同步间隔（可选）
	MaxCallSendMsgSize int           // 最大发送消息大小（可选）
	MaxCallRecvMsgSize int           // 最大接收消息大小（可选）
	// Primary 为 true 时按类型注入优先选择该客户端，名称为 default 时默认开启
	Primary bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *EtcdClientOptions {
	return &EtcdClientOptions{
		Name:        name,
		Endpoints:   []string{"localhost:2379"},
		DialTimeout: 5 * time.Second,
		Primary:     name == DefaultName,
	}
}

// Validate 验证配置
func (o *EtcdClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("etcd client name is required")
	}
	if len(o.Endpoints) == 0 {
		return fmt.Errorf("etcd endpoints are required")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("etcd dial timeout must be positive")
	}
	return nil
}

func (o *EtcdClientOptions) config() clientv3.Config {
	cfg := clientv3.Config{
		Endpoints:   o.Endpoints,
		DialTimeout: o.DialTimeout,
	}
	if o.Username != "" {
		cfg.Username = o.Username
		cfg.Password = o.Password
	}
	if o.AutoSyncInterval > 0 {
		cfg.AutoSyncInterval = o.AutoSyncInterval
	}
	if o.MaxCallSendMsgSize > 0 {
		cfg.MaxCallSendMsgSize = o.MaxCallSendMsgSize
	}
	if o.MaxCallRecvMsgSize > 0 {
		cfg.MaxCallRecvMsgSize = o.MaxCallRecvMsgSize
	}
	return cfg
}

// Settings 从配置文件绑定的客户端参数
type Settings struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
}

func (s Settings) apply(o *EtcdClientOptions) {
	if len(s.Endpoints) > 0 {
		o.Endpoints = s.Endpoints
	}
	if s.DialTimeout > 0 {
		o.DialTimeout = s.DialTimeout
	}
	if s.Username != "" {
		o.Username = s.Username
		o.Password = s.Password
	}
}
