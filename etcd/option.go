package etcd

import (
	"errors"
	"fmt"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
)

// DefaultName 默认客户端的 bean 名称
const DefaultName = "default"

// Builder Etcd 客户端配置构建器
type Builder struct {
	clients []client
	errors  []error
}

type client struct {
	name      string
	section   string
	configure []func(*EtcdClientOptions)
}

var _ core.DefinitionRegistrar = (*Builder)(nil)

// BuilderOption 用于配置 Etcd Builder
type BuilderOption func(*Builder)

// NewBuilder 创建 Etcd 构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// AddClient 添加一个 etcd 客户端配置，section 非空时先绑定该配置节
func (b *Builder) AddClient(name, section string, configure ...func(*EtcdClientOptions)) *Builder {
	for _, c := range b.clients {
		if c.name == name {
			b.errors = append(b.errors, fmt.Errorf("etcd client '%s' already configured", name))
			return b
		}
	}
	b.clients = append(b.clients, client{name: name, section: section, configure: configure})
	return b
}

func (b *Builder) Name() string { return "etcd" }

// RegisterDefinitions 为每个客户端注册一个 FactoryBean 定义
func (b *Builder) RegisterDefinitions(r beans.Registry, env config.Environment) error {
	errs := b.errors
	for _, c := range b.clients {
		opts := NewDefaultOptions(c.name)
		if c.section != "" {
			settings, err := config.Bind[Settings](env, c.section)
			if err != nil {
				errs = append(errs, fmt.Errorf("etcd client '%s': %w", c.name, err))
				continue
			}
			settings.apply(opts)
		}
		for _, fn := range c.configure {
			fn(opts)
		}
		if err := Register(r, *opts); err != nil {
			errs = append(errs, fmt.Errorf("invalid etcd configuration for '%s': %w", c.name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("etcd configuration errors: %w", errors.Join(errs...))
	}
	return nil
}

// Register 注册一个 *clientv3.Client 的 FactoryBean 定义
func Register(r beans.Registry, opts EtcdClientOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	beanOpts := []beans.Option{beans.WithDescription("etcd client " + opts.Name)}
	if opts.Primary {
		beanOpts = append(beanOpts, beans.WithPrimary())
	}
	return beans.Provide(r, opts.Name, func() *FactoryBean { return NewFactoryBean(opts) }, beanOpts...)
}

// WithClient 添加 Etcd 客户端配置
func WithClient(name string, opts ...func(*EtcdClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, "", opts...)
	}
}

// WithConfig 添加从配置节读取的客户端
func WithConfig(name, section string, opts ...func(*EtcdClientOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddClient(name, section, opts...)
	}
}

// New 启用 Etcd 能力
func New(opts ...BuilderOption) core.Option {
	builder := NewBuilder()
	for _, opt := range opts {
		opt(builder)
	}
	return core.WithExtension(builder)
}
