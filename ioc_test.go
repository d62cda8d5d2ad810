package ioc_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/gocrud/ioc"
	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/database"
	"github.com/gocrud/ioc/logging"
	"github.com/gocrud/ioc/web"
)

// TestService 模拟业务服务
type TestService struct {
	DB      *gorm.DB `di:""`
	AppName string   `value:"${app.name:unknown}"`
}

// TestController 模拟控制器
type TestController struct {
	Service *TestService
}

// NewTestController 使用构造函数注入
func NewTestController(svc *TestService) *TestController {
	return &TestController{Service: svc}
}

func (c *TestController) RegisterRoutes(r gin.IRouter) {
	r.GET("/ping", func(ctx *gin.Context) {
		name := c.Service.AppName
		if c.Service.DB == nil {
			name += "-nodb"
		}
		ctx.String(http.StatusOK, "pong: "+name)
	})
}

func TestIntegration(t *testing.T) {
	t.Setenv("TEST_APP_NAME", "IntegrationTest")
	env := config.NewEnvironment()
	require.NoError(t, env.PropertySources().AddLast(&config.EnvironmentVariableSource{Prefix: "TEST_"}))

	c, err := ioc.New(
		core.WithEnvironment(env),
		core.WithLogger(logging.NewNop()),
		database.New(database.WithDatabase("default", sqlite.Open("file:integration?mode=memory&cache=shared"))),
		web.New(web.WithControllers(NewTestController), web.WithHost("127.0.0.1"), web.WithPort(0), web.WithMode(gin.TestMode)),
		core.WithRegistrar(func(r beans.Registry) error {
			return beans.Register[TestService](r, "testService")
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- ioc.Serve(ctx, c) }()

	var server *web.Server
	require.Eventually(t, func() bool {
		if c.State() != core.StateRunning {
			return false
		}
		s, err := beans.Get[*web.Server](c, web.ServerBeanName)
		if err != nil || !s.IsRunning() {
			return false
		}
		server = s
		return true
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(fmt.Sprintf("http://%s/ping", server.Address()))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "pong: IntegrationTest", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
	assert.Equal(t, core.StateClosed, c.State())
	assert.False(t, server.IsRunning())
}

func TestWorkerFailureStopsApplication(t *testing.T) {
	stopped := make(chan struct{})
	err := ioc.RunContext(t.Context(),
		core.WithLogger(logging.NewNop()),
		core.WithEnvironment(config.NewEnvironment()),
		core.WithWorker("failing", func(ctx context.Context) error {
			return errors.New("connection refused")
		}),
		core.OnClose(func(context.Context) error {
			close(stopped)
			return nil
		}),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")

	select {
	case <-stopped:
	default:
		t.Fatal("context should be closed before RunContext returns")
	}
}

func TestRefreshFailureIsReturned(t *testing.T) {
	err := ioc.RunContext(t.Context(),
		core.WithLogger(logging.NewNop()),
		core.WithEnvironment(config.NewEnvironment()),
		core.WithRegistrar(func(r beans.Registry) error {
			return beans.Provide(r, "broken", func() (*TestService, error) {
				return nil, errors.New("cannot build service")
			})
		}),
	)
	require.Error(t, err)
	var creation *beans.CreationError
	assert.ErrorAs(t, err, &creation)
	assert.Contains(t, err.Error(), "cannot build service")
}
