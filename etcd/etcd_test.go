package etcd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/etcd"
)

// MockService 模拟依赖 Etcd 客户端的服务
type MockService struct {
	Master *clientv3.Client `di:"master"`
	Slave  *clientv3.Client `di:"slave,?"`
}

func TestEtcdConfiguration(t *testing.T) {
	env := config.NewEnvironment()
	require.NoError(t, env.AddInMemory("test", map[string]any{
		"etcd": map[string]any{"master": map[string]any{
			"endpoints":    []any{"localhost:2379", "localhost:22379"},
			"dial_timeout": "2s",
		}},
	}))

	c, err := core.New(
		core.WithEnvironment(env),
		etcd.New(etcd.WithConfig("master", "etcd.master")),
		core.WithRegistrar(func(r beans.Registry) error {
			return beans.Register[MockService](r, "service")
		}),
	)
	require.NoError(t, err)
	require.NoError(t, c.Refresh(t.Context()))

	svc := beans.MustGet[*MockService](c, "service")
	require.NotNil(t, svc.Master, "master client should be injected")
	assert.Nil(t, svc.Slave, "slave client is optional and not configured")
	assert.Equal(t, []string{"localhost:2379", "localhost:22379"}, svc.Master.Endpoints())

	master, err := beans.Get[*clientv3.Client](c, "master")
	require.NoError(t, err)
	assert.Same(t, svc.Master, master)

	factory := beans.MustGet[*etcd.FactoryBean](c, "&master")
	assert.Equal(t, "2s", factory.Options.DialTimeout.String())

	require.NoError(t, c.Close(t.Context()))
}

func TestEtcdBuilderErrors(t *testing.T) {
	_, err := core.New(
		core.WithEnvironment(config.NewEnvironment()),
		etcd.New(
			etcd.WithClient("invalid", func(o *etcd.EtcdClientOptions) { o.Endpoints = nil }),
			etcd.WithClient("duplicate"),
			etcd.WithClient("duplicate"),
		),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd client 'duplicate' already configured")
	assert.Contains(t, err.Error(), "etcd endpoints are required")
}
