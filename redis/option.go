package redis

import (
	"errors"
	"fmt"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
)

// DefaultName 默认客户端的 bean 名称
const DefaultName = "default"

// Builder Redis 客户端配置构建器
type Builder struct {
	clients []client
	errors  []error
}

type client struct {
	name      string
	section   string
	configure []func(*RedisClientOptions)
}

var _ core.DefinitionRegistrar = (*Builder)(nil)

// BuilderOption 用于配置 Redis Builder
type BuilderOption func(*Builder)

// NewBuilder 创建 Redis 构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// AddClient 添加一个 Redis 客户端配置，section 非空时先绑定该配置节
func (b *Builder) AddClient(name, section string, configure ...func(*RedisClientOptions)) *Builder {
	for _, c := range b.clients {
		if c.name == name {
			b.errors = append(b.errors, fmt.Errorf("redis client '%s' already configured", name))
			return b
		}
	}
	b.clients = append(b.clients, client{name: name, section: section, configure: configure})
	return b
}

func (b *Builder) Name() string { return "redis" }

// RegisterDefinitions 为每个客户端注册一个 FactoryBean 定义
func (b *Builder) RegisterDefinitions(r beans.Registry, env config.Environment) error {
	if len(b.errors) > 0 {
		return fmt.Errorf("redis configuration errors: %w", errors.Join(b.errors...))
	}
	for _, c := range b.clients {
		opts := NewDefaultOptions(c.name)
		if c.section != "" {
			settings, err := config.Bind[Settings](env, c.section)
			if err != nil {
				return fmt.Errorf("redis client '%s': %w", c.name, err)
			}
			settings.apply(opts)
		}
		for _, fn := range c.configure {
			fn(opts)
		}
		if err := Register(r, *opts); err != nil {
			return fmt.Errorf("invalid redis configuration for '%s': %w", c.name, err)
		}
	}
	return nil
}

// Register 注册一个 *redis.Client 的 FactoryBean 定义
func Register(r beans.Registry, opts RedisClientOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	beanOpts := []beans.Option{beans.WithDescription("redis client " + opts.Name)}
	if opts.Primary {
		beanOpts = append(beanOpts, beans.WithPrimary())
	}
	return beans.Provide(r, opts.Name, func() *FactoryBean { return NewFactoryBean(opts) }, beanOpts...)
}

// WithClient 添加 Redis 客户端配置
func WithClient(name string, opts ...func(*RedisClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, "", opts...)
	}
}

// WithConfig 添加从配置节读取的客户端
func WithConfig(name, section string, opts ...func(*RedisClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, section, opts...)
	}
}

// New 启用 Redis 能力
func New(opts ...BuilderOption) core.Option {
	builder := NewBuilder()
	for _, opt := range opts {
		opt(builder)
	}
	return core.WithExtension(builder)
}
