package mongodb

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/gocrud/mgo"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/logging"
)

var clientType = beans.TypeOf[*mgo.Client]()

// FactoryBean 生产 *mgo.Client
//
// 产物在第一次被注入或查找时才创建，容器销毁时断开连接。
type FactoryBean struct {
	Options MongoOptions
	Logger  logging.Logger `di:"?"`

	mu     sync.Mutex
	client *mgo.Client
}

var (
	_ beans.FactoryBean    = (*FactoryBean)(nil)
	_ beans.DisposableBean = (*FactoryBean)(nil)
)

// NewFactoryBean 创建客户端工厂
func NewFactoryBean(opts MongoOptions) *FactoryBean {
	return &FactoryBean{Options: opts}
}

func (f *FactoryBean) logger() logging.Logger {
	if f.Logger == nil {
		return logging.NewNop()
	}
	return f.Logger.WithCategory("mongodb")
}

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

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()
	client, err := mgo.NewClient(ctx, opts.Uri, opts.clientOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to create mongo client '%s': %w", opts.Name, err)
	}

	f.client = client
	f.logger().Info("Mongo client created", logging.F("name", opts.Name))
	return client, nil
}

func (f *FactoryBean) ObjectType() reflect.Type { return clientType }

func (f *FactoryBean) IsSingleton() bool { return true }

// Destroy 断开连接
func (f *FactoryBean) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.Options.Timeout)
	defer cancel()
	err := f.client.Disconnect(ctx)
	f.client = nil
	if err != nil {
		return fmt.Errorf("failed to close mongo client '%s': %w", f.Options.Name, err)
	}
	f.logger().Info("Mongo client disconnected", logging.F("name", f.Options.Name))
	return nil
}
