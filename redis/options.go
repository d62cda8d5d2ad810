package redis

import (
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClientOptions Redis 客户端配置选项
type RedisClientOptions struct {
	Name         string        // 客户端名称
	Addr         string        // Redis 服务器地址 (host:port)
	Password     string        // 密码（可选）
	DB           int           // 数据库编号
	DialTimeout  time.Duration // 连接超时时间
	ReadTimeout  time.Duration // 读取超时时间
	WriteTimeout time.Duration // 写入超时时间
	PoolSize     int           // 连接池大小
	MinIdleConns int           // 最小空闲连接数
	MaxRetries   int           // 最大重试次数
	// PingOnCreate 为 true 时创建客户端后立即 Ping，连接失败则 bean 创建失败
	PingOnCreate bool
	// Primary 为 true 时按类型注入优先选择该客户端，名称为 default 时默认开启
	Primary bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string) *RedisClientOptions {
	return &RedisClientOptions{
		Name:         name,
		Addr:         "localhost:6379",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
		Primary:      name == DefaultName,
	}
}

// Validate 验证配置
func (o *RedisClientOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("redis client name is required")
	}
	if o.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if o.DB < 0 {
		return fmt.Errorf("redis database number must be non-negative")
	}
	if o.DialTimeout <= 0 {
		return fmt.Errorf("redis dial timeout must be positive")
	}
	return nil
}

func (o *RedisClientOptions) clientOptions() *redis.Options {
	return &redis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  o.DialTimeout,
		ReadTimeout:  o.ReadTimeout,
		WriteTimeout: o.WriteTimeout,
		PoolSize:     o.PoolSize,
		MinIdleConns: o.MinIdleConns,
		MaxRetries:   o.MaxRetries,
	}
}

// Settings 从配置文件绑定的客户端参数
type Settings struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

func (s Settings) apply(o *RedisClientOptions) {
	if s.Addr != "" {
		o.Addr = s.Addr
	}
	if s.Password != "" {
		o.Password = s.Password
	}
	if s.DB != 0 {
		o.DB = s.DB
	}
	if s.PoolSize > 0 {
		o.PoolSize = s.PoolSize
	}
}
