package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
)

// DefaultName 默认数据库的 bean 名称
const DefaultName = "default"

// Builder 收集数据库配置，作为 core.Extension 注册 FactoryBean 定义
type Builder struct {
	entries []entry
	errors  []error
}

// entry 一个数据库定义，section 非空时连接参数从配置中读取
type entry struct {
	name      string
	section   string
	open      func(dsn string) gorm.Dialector
	dialector gorm.Dialector
	configure []func(*DatabaseOptions)
}

var (
	_ core.Extension           = (*Builder)(nil)
	_ core.DefinitionRegistrar = (*Builder)(nil)
)

// BuilderOption 用于配置 Database Builder
type BuilderOption func(*Builder)

// NewBuilder 创建数据库构建器
func NewBuilder() *Builder {
	return &Builder{}
}

// Add 添加一个数据库
func (b *Builder) Add(name string, dialector gorm.Dialector, configure ...func(*DatabaseOptions)) *Builder {
	return b.add(entry{name: name, dialector: dialector, configure: configure})
}

// AddFromConfig 添加一个从配置节读取 DSN 和连接池参数的数据库
func (b *Builder) AddFromConfig(name, section string, open func(dsn string) gorm.Dialector, configure ...func(*DatabaseOptions)) *Builder {
	if open == nil {
		b.errors = append(b.errors, fmt.Errorf("database '%s': dialector constructor is required", name))
		return b
	}
	return b.add(entry{name: name, section: section, open: open, configure: configure})
}

func (b *Builder) add(e entry) *Builder {
	for _, existing := range b.entries {
		if existing.name == e.name {
			b.errors = append(b.errors, fmt.Errorf("database '%s' already configured", e.name))
			return b
		}
	}
	b.entries = append(b.entries, e)
	return b
}

func (b *Builder) Name() string { return "database" }

// RegisterDefinitions 为每个数据库注册一个 FactoryBean 定义
func (b *Builder) RegisterDefinitions(r beans.Registry, env config.Environment) error {
	if len(b.errors) > 0 {
		return fmt.Errorf("database configuration errors: %w", errors.Join(b.errors...))
	}
	for _, e := range b.entries {
		opts, err := e.options(env)
		if err != nil {
			return err
		}
		if err := Register(r, *opts); err != nil {
			return err
		}
	}
	return nil
}

func (e entry) options(env config.Environment) (*DatabaseOptions, error) {
	dialector := e.dialector
	var settings Settings
	if e.section != "" {
		s, err := config.Bind[Settings](env, e.section)
		if err != nil {
			return nil, fmt.Errorf("database '%s': %w", e.name, err)
		}
		if s.DSN == "" {
			return nil, fmt.Errorf("database '%s': %s.dsn is required", e.name, e.section)
		}
		settings = s
		dialector = e.open(s.DSN)
	}

	opts := NewDefaultOptions(e.name, dialector)
	settings.apply(opts)
	for _, fn := range e.configure {
		fn(opts)
	}
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database configuration for '%s': %w", e.name, err)
	}
	return opts, nil
}

// Register 注册一个 *gorm.DB 的 FactoryBean 定义，bean 名称为 opts.Name
func Register(r beans.Registry, opts DatabaseOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	beanOpts := []beans.Option{
		beans.WithObjectType(dbType),
		beans.WithDescription("gorm database " + opts.Name),
	}
	if opts.Primary {
		beanOpts = append(beanOpts, beans.WithPrimary())
	}
	return beans.Provide(r, opts.Name, func() *FactoryBean { return NewFactoryBean(opts) }, beanOpts...)
}

// WithDatabase 添加数据库配置
func WithDatabase(name string, dialector gorm.Dialector, opts ...func(*DatabaseOptions)) BuilderOption {
	return func(b *Builder) {
		b.Add(name, dialector, opts...)
	}
}

// WithConfig 添加从配置节读取的数据库
//
//	database.WithConfig("master", "db.master", sqlite.Open)
func WithConfig(name, section string, open func(dsn string) gorm.Dialector, opts ...func(*DatabaseOptions)) BuilderOption {
	return func(b *Builder) {
		b.AddFromConfig(name, section, open, opts...)
	}
}

// New 启用数据库能力
func New(opts ...BuilderOption) core.Option {
	builder := NewBuilder()
	for _, opt := range opts {
		opt(builder)
	}
	return core.WithExtension(builder)
}
