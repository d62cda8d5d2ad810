package mongodb

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoOptions MongoDB 客户端配置选项
type MongoOptions struct {
	Name        string
	Uri         string
	Username    string
	Password    string
	AuthSource  string
	MaxPoolSize uint64
	MinPoolSize uint64
	Timeout     time.Duration
	// Primary 为 true 时按类型注入优先选择该客户端，名称为 default 时默认开启
	Primary bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, uri string) *MongoOptions {
	return &MongoOptions{
		Name:        name,
		Uri:         uri,
		MaxPoolSize: 100,
		MinPoolSize: 5,
		Timeout:     10 * time.Second,
		Primary:     name == DefaultName,
	}
}

// Validate 验证配置
func (o *MongoOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("mongo client name is required")
	}
	if o.Uri == "" {
		return fmt.Errorf("mongo uri is required")
	}
	if o.MinPoolSize > o.MaxPoolSize && o.MaxPoolSize > 0 {
		return fmt.Errorf("mongo min pool size %d exceeds max pool size %d", o.MinPoolSize, o.MaxPoolSize)
	}
	return nil
}

// clientOptions 构建驱动配置，URI 由 mgo 负责解析
func (o *MongoOptions) clientOptions() *options.ClientOptions {
	clientOpts := options.Client()
	if o.Username != "" || o.Password != "" {
		clientOpts.SetAuth(options.Credential{
			Username:   o.Username,
			Password:   o.Password,
			AuthSource: o.AuthSource,
		})
	}
	if o.MaxPoolSize > 0 {
		clientOpts.SetMaxPoolSize(o.MaxPoolSize)
	}
	if o.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(o.MinPoolSize)
	}
	if o.Timeout > 0 {
		clientOpts.SetConnectTimeout(o.Timeout)
	}
	return clientOpts
}

// Settings 从配置文件绑定的客户端参数
type Settings struct {
	Uri         string `yaml:"uri"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	AuthSource  string `yaml:"auth_source"`
	MaxPoolSize uint64 `yaml:"max_pool_size"`
}

func (s Settings) apply(o *MongoOptions) {
	if s.Uri != "" {
		o.Uri = s.Uri
	}
	if s.Username != "" {
		o.Username = s.Username
		o.Password = s.Password
	}
	if s.AuthSource != "" {
		o.AuthSource = s.AuthSource
	}
	if s.MaxPoolSize > 0 {
		o.MaxPoolSize = s.MaxPoolSize
	}
}
