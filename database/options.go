package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DatabaseOptions 数据库配置选项
type DatabaseOptions struct {
	Name         string
	Dialector    gorm.Dialector
	GormConfig   *gorm.Config
	MaxIdleConns int
	MaxOpenConns int
	MaxLifetime  time.Duration
	AutoMigrate  []any // 需要自动迁移的模型
	// Primary 为 true 时按类型注入 *gorm.DB 优先选择该实例，名称为 default 时默认开启
	Primary bool
	// Lazy 为 true 时首次使用才打开连接
	Lazy bool
}

// NewDefaultOptions 创建默认配置
func NewDefaultOptions(name string, dialector gorm.Dialector) *DatabaseOptions {
	return &DatabaseOptions{
		Name:         name,
		Dialector:    dialector,
		GormConfig:   &gorm.Config{},
		MaxIdleConns: 10,
		MaxOpenConns: 100,
		MaxLifetime:  time.Hour,
		AutoMigrate:  make([]any, 0),
		Primary:      name == DefaultName,
	}
}

// Validate 验证配置
func (o *DatabaseOptions) Validate() error {
	if o.Name == "" {
		return fmt.Errorf("database name is required")
	}
	if o.Dialector == nil {
		return fmt.Errorf("database dialector is required")
	}
	if o.MaxOpenConns > 0 && o.MaxIdleConns > o.MaxOpenConns {
		return fmt.Errorf("database max idle conns %d exceeds max open conns %d", o.MaxIdleConns, o.MaxOpenConns)
	}
	return nil
}

// Settings 从配置文件绑定的连接参数
//
//	db:
//	  master:
//	    dsn: "file::memory:?cache=shared"
//	    max_open_conns: 5
type Settings struct {
	DSN          string        `yaml:"dsn"`
	MaxIdleConns int           `yaml:"max_idle_conns"`
	MaxOpenConns int           `yaml:"max_open_conns"`
	MaxLifetime  time.Duration `yaml:"max_lifetime"`
}

// apply 用非零的配置覆盖默认值
func (s Settings) apply(o *DatabaseOptions) {
	if s.MaxIdleConns > 0 {
		o.MaxIdleConns = s.MaxIdleConns
	}
	if s.MaxOpenConns > 0 {
		o.MaxOpenConns = s.MaxOpenConns
		if o.MaxIdleConns > o.MaxOpenConns {
			o.MaxIdleConns = o.MaxOpenConns
		}
	}
	if s.MaxLifetime > 0 {
		o.MaxLifetime = s.MaxLifetime
	}
}
