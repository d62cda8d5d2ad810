package redis

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/logging"
)

var clientType = beans.TypeOf[*redis.Client]()

// FactoryBean 生产 *redis.Client，容器销毁时关闭客户端
type FactoryBean struct {
	Options RedisClientOptions
	Logger  logging.Logger `di:"?"`

	mu     sync.Mutex
	client *redis.Client
}

var (
	_ beans.FactoryBean    = (*FactoryBean)(nil)
	_ beans.DisposableBean = (*FactoryBean)(nil)
)

// NewFactoryBean 创建客户端工厂
func NewFactoryBean(opts RedisClientOptions) *FactoryBean {
	return &FactoryBean{Options: opts}
}

func (f *FactoryBean) logger() logging.Logger {
	if f.Logger == nil {
		return logging.NewNop()
	}
	return f.Logger.WithCategory("redis")
}

// Object 创建客户端，PingOnCreate 时测试连接
func (f *FactoryBean) Object() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}
	opts := f.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	client := redis.NewClient(opts.clientOptions())
	if opts.PingOnCreate {
		ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to redis '%s': %w", opts.Name, err)
		}
	}

	f.client = client
	f.logger().Info("Redis client created",
		logging.F("name", opts.Name),
		logging.F("addr", opts.Addr),
		logging.F("db", opts.DB))
	return client, nil
}

func (f *FactoryBean) ObjectType() reflect.Type { return clientType }

func (f *FactoryBean) IsSingleton() bool { return true }

// Destroy 关闭客户端
func (f *FactoryBean) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		return nil
	}
	err := f.client.Close()
	f.client = nil
	if err != nil {
		return fmt.Errorf("failed to close redis client '%s': %w", f.Options.Name, err)
	}
	f.logger().Info("Redis client closed", logging.F("name", f.Options.Name))
	return nil
}
