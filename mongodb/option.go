package mongodb

import (
	"errors"
	"fmt"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
)

// DefaultName 默认客户端的 bean 名称
const DefaultName = "default"

// Builder MongoDB 客户端配置构建器
type Builder struct {
	clients []client
	errors  []error
}

type client struct {
	name      string
	uri       string
	section   string
	configure []func(*MongoOptions)
}

var _ core.DefinitionRegistrar = (*Builder)(nil)

// BuilderOption 用于配置 MongoDB Builder
type BuilderOption func(*Builder)

// NewBuilder 创建 MongoDB 构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// Add 添加一个客户端
func (b *Builder) Add(name, uri string, configure ...func(*MongoOptions)) *Builder {
	return b.add(client{name: name, uri: uri, configure: configure})
}

// AddFromConfig 添加一个从配置节读取 URI 和认证信息的客户端
func (b *Builder) AddFromConfig(name, section string, configure ...func(*MongoOptions)) *Builder {
	return b.add(client{name: name, section: section, configure: configure})
}

func (b *Builder) add(c client) *Builder {
	for _, existing := range b.clients {
		if existing.name == c.name {
			b.errors = append(b.errors, fmt.Errorf("mongo client '%s' already configured", c.name))
			return b
		}
	}
	b.clients = append(b.clients, c)
	return b
}

func (b *Builder) Name() string { return "mongodb" }

// RegisterDefinitions 为每个客户端注册一个 FactoryBean 定义
func (b *Builder) RegisterDefinitions(r beans.Registry, env config.Environment) error {
	if len(b.errors) > 0 {
		return fmt.Errorf("mongo configuration errors: %w", errors.Join(b.errors...))
	}
	for _, c := range b.clients {
		opts := NewDefaultOptions(c.name, c.uri)
		if c.section != "" {
			settings, err := config.Bind[Settings](env, c.section)
			if err != nil {
				return fmt.Errorf("mongo client '%s': %w", c.name, err)
			}
			settings.apply(opts)
		}
		for _, fn := range c.configure {
			fn(opts)
		}
		if err := Register(r, *opts); err != nil {
			return fmt.Errorf("invalid mongo configuration for '%s': %w", c.name, err)
		}
	}
	return nil
}

// Register 注册一个 *mgo.Client 的 FactoryBean 定义
func Register(r beans.Registry, opts MongoOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	beanOpts := []beans.Option{beans.WithDescription("mongo client " + opts.Name)}
	if opts.Primary {
		beanOpts = append(beanOpts, beans.WithPrimary())
	}
	return beans.Provide(r, opts.Name, func() *FactoryBean { return NewFactoryBean(opts) }, beanOpts...)
}

// WithClient 添加 MongoDB 客户端配置
func WithClient(name string, uri string, opts ...func(*MongoOptions)) BuilderOption {
	return func(b *Builder) {
		b.Add(name, uri, opts...)
	}
}

// WithConfig 添加从配置节读取的客户端
func WithConfig(name, section string, opts ...func(*MongoOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddFromConfig(name, section, opts...)
	}
}

// New 启用 MongoDB 能力
func New(opts ...BuilderOption) core.Option {
	builder := NewBuilder()
	for _, opt := range opts {
		opt(builder)
	}
	return core.WithExtension(builder)
}
