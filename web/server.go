package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
)

// Options Web 主机配置
type Options struct {
	Host string
	Port int
	// Mode gin 运行模式，默认 release
	Mode              string
	ReadHeaderTimeout time.Duration
	// Middleware 在路由之前注册的全局中间件
	Middleware []gin.HandlerFunc
	// Phase 生命周期阶段，默认最后启动、最先停止
	Phase int
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions() *Options {
	return &Options{
		Port:              8080,
		Mode:              gin.ReleaseMode,
		ReadHeaderTimeout: 10 * time.Second,
		Phase:             hosting.DefaultPhase,
	}
}

// Validate 验证配置
func (o *Options) Validate() error {
	if o.Port < 0 || o.Port > 65535 {
		return fmt.Errorf("web port %d out of range", o.Port)
	}
	switch o.Mode {
	case gin.ReleaseMode, gin.DebugMode, gin.TestMode:
	default:
		return fmt.Errorf("unknown gin mode %q", o.Mode)
	}
	return nil
}

// Routes 由 RouteRegistrar 自动挂载到 Server 的 bean
type Routes interface {
	RegisterRoutes(router gin.IRouter)
}

// Server 基于 Gin 的 Web 主机
//
// 作为 SmartLifecycle 随容器启动：Start 同步监听端口，在 goroutine 中提供服务；Stop 优雅关闭。
type Server struct {
	Logger logging.Logger `di:"?"`

	opts    Options
	engine  *gin.Engine
	mu      sync.Mutex
	server  *http.Server
	addr    string
	mounted map[string]struct{}
	running atomic.Bool
	done    chan struct{}
}

var (
	_ hosting.SmartLifecycle = (*Server)(nil)
	_ beans.DisposableBean   = (*Server)(nil)
)

// destroyTimeout 销毁时等待进行中请求的时间
const destroyTimeout = 5 * time.Second

// NewServer 创建 Web 主机
func NewServer(opts Options) *Server {
	gin.SetMode(opts.Mode)
	engine := gin.New()
	// 默认中间件：恢复 panic
	engine.Use(gin.Recovery())
	engine.Use(opts.Middleware...)
	return &Server{
		opts:    opts,
		engine:  engine,
		mounted: make(map[string]struct{}),
	}
}

func (s *Server) logger() logging.Logger {
	if s.Logger == nil {
		return logging.NewNop()
	}
	return s.Logger.WithCategory("web")
}

// Engine 获取 Gin 引擎（用于高级定制）
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Mount 挂载 name 对应 bean 的路由，同名只挂载一次
func (s *Server) Mount(name string, routes Routes) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mounted[name]; ok {
		return nil
	}
	// gin 对重复路由 panic
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("web: failed to mount routes of '%s': %v", name, r)
		}
	}()
	routes.RegisterRoutes(s.engine)
	s.mounted[name] = struct{}{}
	s.logger().Debug("Mapped controller routes", logging.F("controller", name))
	return nil
}

// Address 获取监听地址 (e.g., "127.0.0.1:50234")，仅在 Start 后有效
func (s *Server) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Start 监听端口并在后台提供服务
func (s *Server) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return nil
	}
	addr := net.JoinHostPort(s.opts.Host, fmt.Sprint(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("web: failed to listen on %s: %w", addr, err)
	}

	s.server = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}
	s.addr = ln.Addr().String()
	s.done = make(chan struct{})
	s.running.Store(true)

	go func(server *http.Server, done chan struct{}) {
		defer close(done)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger().Error("Web host error", logging.Err(err))
			s.running.Store(false)
		}
	}(s.server, s.done)

	s.logger().Info("Web host started", logging.F("address", s.addr))
	return nil
}

// Stop 优雅关闭，等待进行中的请求完成或 ctx 超时
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	server, done := s.server, s.done
	s.mu.Unlock()

	if server == nil || !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.logger().Info("Stopping web host")
	if err := server.Shutdown(ctx); err != nil {
		s.logger().Error("Failed to shutdown web host gracefully", logging.Err(err))
		return err
	}
	<-done
	s.logger().Info("Web host stopped")
	return nil
}

// Destroy 容器销毁时关闭仍在运行的监听，刷新失败时同样生效
func (s *Server) Destroy() error {
	ctx, cancel := context.WithTimeout(context.Background(), destroyTimeout)
	defer cancel()
	return s.Stop(ctx)
}

func (s *Server) IsRunning() bool { return s.running.Load() }

func (s *Server) AutoStartup() bool { return true }

func (s *Server) Phase() int { return s.opts.Phase }

// RouteRegistrar 把实现 Routes 的 bean 在初始化后挂载到 Server
type RouteRegistrar struct {
	beans.BasePostProcessor

	serverName string
	factory    *beans.Factory
	mu         sync.Mutex
	server     *Server
}

var _ beans.BeanFactoryAware = (*RouteRegistrar)(nil)

// NewRouteRegistrar 创建路由注册器，serverName 是 Server 的 bean 名称
func NewRouteRegistrar(serverName string) *RouteRegistrar {
	return &RouteRegistrar{serverName: serverName}
}

func (r *RouteRegistrar) SetBeanFactory(f *beans.Factory) { r.factory = f }

func (r *RouteRegistrar) serverFor(name string) (*Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.server != nil {
		return r.server, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("web: route registrar has no bean factory")
	}
	s, err := beans.Get[*Server](r.factory, r.serverName)
	if err != nil {
		return nil, fmt.Errorf("web: no server for controller '%s': %w", name, err)
	}
	r.server = s
	return s, nil
}

func (r *RouteRegistrar) PostProcessAfterInitialization(bean any, name string) (any, error) {
	routes, ok := bean.(Routes)
	if !ok {
		return bean, nil
	}
	server, err := r.serverFor(name)
	if err != nil {
		return nil, err
	}
	if err := server.Mount(name, routes); err != nil {
		return nil, err
	}
	return bean, nil
}
