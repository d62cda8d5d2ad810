package etcd

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	clientv3 "go.etcd.io/etcd/client/v3"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/logging"
)

var clientType = beans.TypeOf[*clientv3.Client]()

// FactoryBean 生产 *clientv3.Client，容器销毁时关闭客户端
type FactoryBean struct {
	Options EtcdClientOptions
	Logger  logging.Logger `di:"?"`

	mu     sync.Mutex
	client *clientv3.Client
}

var (
	_ beans.FactoryBean    = (*FactoryBean)(nil)
	_ beans.DisposableBean = (*FactoryBean)(nil)
)

// NewFactoryBean 创建客户端工厂
func NewFactoryBean(opts EtcdClientOptions) *FactoryBean {
	return &FactoryBean{Options: opts}
}

func (f *FactoryBean) logger() logging.Logger {
	if f.Logger == nil {
		return logging.NewNop()
	}
	return f.Logger.WithCategory("etcd")
}

func (f *FactoryBean) Object() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client != nil {
		return f.client, nil
	}
	if err := f.Options.Validate(); err != nil {
		return nil, err
	}
	client, err := clientv3.New(f.Options.config())
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client '%s': %w", f.Options.Name, err)
	}

	f.client = client
	f.logger().Info("Etcd client created",
		logging.F("name", f.Options.Name),
		logging.F("endpoints", strings.Join(f.Options.Endpoints, ",")))
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
		return fmt.Errorf("failed to close etcd client '%s': %w", f.Options.Name, err)
	}
	f.logger().Info("Etcd client closed", logging.F("name", f.Options.Name))
	return nil
}
