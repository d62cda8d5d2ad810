package web

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
)

const (
	// ServerBeanName Web 主机的 bean 名称
	ServerBeanName = "webServer"
	// RegistrarBeanName 路由注册器的 bean 名称
	RegistrarBeanName = "webRouteRegistrar"
)

// Settings 从配置文件绑定的主机参数
//
//	server:
//	  host: 127.0.0.1
//	  port: 8080
type Settings struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	Mode string `yaml:"mode"`
}

// Builder Web 主机构建器（基于 Gin）
type Builder struct {
	opts        *Options
	section     string
	controllers []any
}

var _ core.DefinitionRegistrar = (*Builder)(nil)

// BuilderOption 用于配置 Web Builder
type BuilderOption func(*Builder)

// NewBuilder 创建 Web 构建器
func NewBuilder() *Builder {
	return &Builder{opts: NewDefaultOptions()}
}

func (b *Builder) Name() string { return "web" }

// RegisterDefinitions 注册 Server、路由注册器和控制器
func (b *Builder) RegisterDefinitions(r beans.Registry, env config.Environment) error {
	opts := *b.opts
	if b.section != "" {
		settings, err := config.Bind[Settings](env, b.section)
		if err != nil {
			return fmt.Errorf("web: %w", err)
		}
		if settings.Host != "" {
			opts.Host = settings.Host
		}
		if settings.Port != 0 {
			opts.Port = settings.Port
		}
		if settings.Mode != "" {
			opts.Mode = settings.Mode
		}
	}
	if err := opts.Validate(); err != nil {
		return fmt.Errorf("invalid web configuration: %w", err)
	}

	err := beans.Provide(r, ServerBeanName, func() *Server { return NewServer(opts) },
		beans.WithDescription("gin web server"))
	if err != nil {
		return err
	}
	err = beans.Provide(r, RegistrarBeanName, func() *RouteRegistrar { return NewRouteRegistrar(ServerBeanName) },
		beans.WithRole(beans.RoleInfrastructure))
	if err != nil {
		return err
	}

	for _, c := range b.controllers {
		if err := registerController(r, c); err != nil {
			return err
		}
	}
	return nil
}

// registerController 注册控制器，支持构造函数、reflect.Type 和实例指针
func registerController(r beans.Registry, controller any) error {
	var def *beans.BeanDefinition
	var typ reflect.Type
	switch c := controller.(type) {
	case reflect.Type:
		typ = c
		def = beans.NewBeanDefinition(c)
	default:
		v := reflect.ValueOf(controller)
		switch {
		case v.Kind() == reflect.Func && v.Type().NumOut() > 0:
			typ = v.Type().Out(0)
			def = beans.NewConstructorDefinition(controller)
		case v.Kind() == reflect.Pointer && !v.IsNil():
			typ = v.Type()
			ctor := reflect.MakeFunc(reflect.FuncOf(nil, []reflect.Type{typ}, false), func([]reflect.Value) []reflect.Value {
				return []reflect.Value{v}
			})
			def = beans.NewConstructorDefinition(ctor.Interface())
		default:
			return fmt.Errorf("web: unsupported controller %T", controller)
		}
	}
	name := controllerName(typ)
	if err := r.RegisterBeanDefinition(name, def); err != nil {
		return fmt.Errorf("web: failed to register controller %v: %w", typ, err)
	}
	return nil
}

// controllerName 由类型名得到 bean 名称，UserController -> userController
func controllerName(typ reflect.Type) string {
	for typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	name := typ.Name()
	if name == "" {
		name = strings.ReplaceAll(typ.String(), ".", "_")
	}
	runes := []rune(name)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

// WithPort 设置端口，0 表示随机端口
func WithPort(port int) BuilderOption {
	return func(b *Builder) {
		b.opts.Port = port
	}
}

// WithHost 设置监听地址
func WithHost(host string) BuilderOption {
	return func(b *Builder) {
		b.opts.Host = host
	}
}

// WithMode 设置 Gin 模式
func WithMode(mode string) BuilderOption {
	return func(b *Builder) {
		b.opts.Mode = mode
	}
}

// WithConfig 从配置节读取 host、port 和 mode
func WithConfig(section string) BuilderOption {
	return func(b *Builder) {
		b.section = section
	}
}

// Use 使用全局中间件
func Use(middleware ...gin.HandlerFunc) BuilderOption {
	return func(b *Builder) {
		b.opts.Middleware = append(b.opts.Middleware, middleware...)
	}
}

// WithControllers 添加控制器
// 传入参数可以是：
// 1. 控制器的构造函数 (例如 NewUserController) -> 推荐，支持构造函数注入
// 2. 控制器实例指针 (例如 &UserController{}) -> 支持字段注入 (di tag)
// 控制器注册为普通 bean，实现 Routes 的在初始化后挂载路由
func WithControllers(controllers ...any) BuilderOption {
	return func(b *Builder) {
		b.controllers = append(b.controllers, controllers...)
	}
}

// New 启用 Web 能力
func New(opts ...BuilderOption) core.Option {
	builder := NewBuilder()
	for _, opt := range opts {
		opt(builder)
	}
	return core.WithExtension(builder)
}
