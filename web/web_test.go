package web_test

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/web"
)

// SimpleController 普通控制器
type SimpleController struct{}

func (c *SimpleController) RegisterRoutes(router gin.IRouter) {
	router.GET("/simple", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "simple")
	})
}

// DepService 模拟依赖服务
type DepService struct {
	Value string
}

// ControllerWithDep 带依赖的控制器 (构造函数注入)
type ControllerWithDep struct {
	Svc *DepService
}

func NewControllerWithDep(svc *DepService) *ControllerWithDep {
	return &ControllerWithDep{Svc: svc}
}

func (c *ControllerWithDep) RegisterRoutes(router gin.IRouter) {
	router.GET("/dep", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, c.Svc.Value)
	})
}

// ControllerWithTag 带 Tag 的控制器 (实例注入)
type ControllerWithTag struct {
	Svc *DepService `di:""`
}

func (c *ControllerWithTag) RegisterRoutes(router gin.IRouter) {
	router.GET("/tag", func(ctx *gin.Context) {
		ctx.String(http.StatusOK, "tag:"+c.Svc.Value)
	})
}

// ConflictingController 与 SimpleController 注册相同路由
type ConflictingController struct{}

func (c *ConflictingController) RegisterRoutes(router gin.IRouter) {
	router.GET("/simple", func(ctx *gin.Context) {})
}

func newContext(t *testing.T, opts ...web.BuilderOption) *core.Context {
	opts = append([]web.BuilderOption{web.WithHost("127.0.0.1"), web.WithPort(0), web.WithMode(gin.TestMode)}, opts...)
	c, err := core.New(
		core.WithEnvironment(config.NewEnvironment()),
		core.WithRegistrar(func(r beans.Registry) error {
			return beans.Provide(r, "depService", func() *DepService {
				return &DepService{Value: "injected-value"}
			})
		}),
		web.New(opts...),
	)
	require.NoError(t, err)
	return c
}

func get(t *testing.T, handler http.Handler, path string) (int, string) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	handler.ServeHTTP(w, req)
	return w.Code, w.Body.String()
}

func TestControllersAreMounted(t *testing.T) {
	c := newContext(t, web.WithControllers(NewControllerWithDep, &ControllerWithTag{}, &SimpleController{}))
	require.NoError(t, c.Refresh(t.Context()))
	defer c.Close(t.Context())

	assert.True(t, c.ContainsBean("controllerWithDep"))
	assert.True(t, c.ContainsBean("controllerWithTag"))
	assert.True(t, c.ContainsBean("simpleController"))

	server := beans.MustGet[*web.Server](c, web.ServerBeanName)
	engine := server.Engine()

	code, body := get(t, engine, "/simple")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "simple", body)

	_, body = get(t, engine, "/dep")
	assert.Equal(t, "injected-value", body)

	_, body = get(t, engine, "/tag")
	assert.Equal(t, "tag:injected-value", body)
}

func TestServerLifecycle(t *testing.T) {
	c := newContext(t, web.WithControllers(&SimpleController{}))
	require.NoError(t, c.Refresh(t.Context()))

	server := beans.MustGet[*web.Server](c, web.ServerBeanName)
	require.True(t, server.IsRunning())
	require.NotEmpty(t, server.Address())

	resp, err := http.Get("http://" + server.Address() + "/simple")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, "simple", string(body))

	require.NoError(t, c.Close(t.Context()))
	assert.False(t, server.IsRunning())

	_, err = http.Get("http://" + server.Address() + "/simple")
	assert.Error(t, err)
}

func TestDuplicateRouteFailsRefresh(t *testing.T) {
	c := newContext(t, web.WithControllers(&SimpleController{}, &ConflictingController{}))
	err := c.Refresh(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to mount routes of 'conflictingController'")
}

// failingLifecycle 依赖 Server，与其同阶段、在其后启动并失败
type failingLifecycle struct {
	server *web.Server
}

func (failingLifecycle) Start(context.Context) error { return errors.New("late start failure") }
func (failingLifecycle) Stop(context.Context) error  { return nil }
func (failingLifecycle) IsRunning() bool             { return false }
func (failingLifecycle) AutoStartup() bool           { return true }
func (failingLifecycle) Phase() int                  { return hosting.DefaultPhase }

func TestLateStartFailureStopsServer(t *testing.T) {
	c, err := core.New(
		core.WithEnvironment(config.NewEnvironment()),
		web.New(web.WithHost("127.0.0.1"), web.WithPort(0), web.WithMode(gin.TestMode),
			web.WithControllers(&SimpleController{})),
		core.WithRegistrar(func(r beans.Registry) error {
			return beans.Provide(r, "lateFailure", func(s *web.Server) *failingLifecycle {
				return &failingLifecycle{server: s}
			})
		}),
	)
	require.NoError(t, err)

	var server *web.Server
	c.Factory().AddBeanPostProcessor(&serverCapture{target: &server})

	err = c.Refresh(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "late start failure")
	assert.False(t, c.IsActive())

	require.NotNil(t, server)
	assert.False(t, server.IsRunning())
	require.NotEmpty(t, server.Address())
	_, err = net.DialTimeout("tcp", server.Address(), time.Second)
	assert.Error(t, err)
}

// serverCapture 记录创建出的 Server，刷新失败后容器不再提供查找
type serverCapture struct {
	beans.BasePostProcessor
	target **web.Server
}

func (p *serverCapture) PostProcessAfterInitialization(bean any, _ string) (any, error) {
	if s, ok := bean.(*web.Server); ok {
		*p.target = s
	}
	return bean, nil
}

func TestServerFromConfiguration(t *testing.T) {
	env := config.NewEnvironment()
	require.NoError(t, env.AddInMemory("test", map[string]any{
		"server": map[string]any{"host": "127.0.0.1", "port": 0, "mode": "bogus"},
	}))
	_, err := core.New(core.WithEnvironment(env), web.New(web.WithConfig("server")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown gin mode "bogus"`)
}
