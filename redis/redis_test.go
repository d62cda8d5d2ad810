package redis_test

import (
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/redis"
)

// MockRedisService 模拟依赖 Redis 客户端的服务
type MockRedisService struct {
	Cache *goredis.Client `di:"cache"`
	Queue *goredis.Client `di:"queue,?"`
}

func TestRedisConfiguration(t *testing.T) {
	env := config.NewEnvironment()
	require.NoError(t, env.AddInMemory("test", map[string]any{
		"redis": map[string]any{"cache": map[string]any{"addr": "cache.internal:6380", "db": 2}},
	}))

	c, err := core.New(
		core.WithEnvironment(env),
		redis.New(redis.WithConfig("cache", "redis.cache", func(o *redis.RedisClientOptions) {
			o.PoolSize = 4
		})),
		core.WithRegistrar(func(r beans.Registry) error {
			return beans.Register[MockRedisService](r, "redisService")
		}),
	)
	require.NoError(t, err)

	typ, err := c.Type("cache")
	require.NoError(t, err)
	assert.Equal(t, beans.TypeOf[*goredis.Client](), typ)

	require.NoError(t, c.Refresh(t.Context()))

	svc := beans.MustGet[*MockRedisService](c, "redisService")
	require.NotNil(t, svc.Cache)
	assert.Nil(t, svc.Queue, "queue is optional and not configured")

	opts := svc.Cache.Options()
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 4, opts.PoolSize)

	require.NoError(t, c.Close(t.Context()))
	assert.ErrorIs(t, svc.Cache.Ping(t.Context()).Err(), goredis.ErrClosed)
}

func TestRedisBuilderErrors(t *testing.T) {
	_, err := core.New(
		core.WithEnvironment(config.NewEnvironment()),
		redis.New(
			redis.WithClient("duplicate"),
			redis.WithClient("duplicate"),
		),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis client 'duplicate' already configured")

	_, err = core.New(
		core.WithEnvironment(config.NewEnvironment()),
		redis.New(redis.WithClient("invalid", func(o *redis.RedisClientOptions) { o.Addr = "" })),
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis address is required")
}

func TestPingOnCreateFailsCreation(t *testing.T) {
	f := beans.NewFactory()
	opts := redis.NewDefaultOptions("unreachable")
	opts.Addr = "127.0.0.1:1"
	opts.MaxRetries = -1
	opts.PingOnCreate = true
	require.NoError(t, redis.Register(f, *opts))

	_, err := f.GetBean("unreachable")
	require.Error(t, err)
	var creation *beans.CreationError
	assert.ErrorAs(t, err, &creation)
	assert.Contains(t, err.Error(), "failed to connect to redis 'unreachable'")
}
