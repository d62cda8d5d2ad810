package database

import (
	"fmt"
	"reflect"
	"sync"

	"gorm.io/gorm"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/logging"
)

var dbType = beans.TypeOf[*gorm.DB]()

// FactoryBean 生产 *gorm.DB
//
// 产物类型是静态的，按类型查询 *gorm.DB 不会打开连接；容器销毁时关闭连接池。
type FactoryBean struct {
	Options DatabaseOptions
	Logger  logging.Logger `di:"?"`

	mu sync.Mutex
	db *gorm.DB
}

var (
	_ beans.SmartFactoryBean = (*FactoryBean)(nil)
	_ beans.DisposableBean   = (*FactoryBean)(nil)
)

// NewFactoryBean 创建数据库工厂
func NewFactoryBean(opts DatabaseOptions) *FactoryBean {
	return &FactoryBean{Options: opts}
}

func (f *FactoryBean) logger() logging.Logger {
	if f.Logger == nil {
		return logging.NewNop()
	}
	return f.Logger.WithCategory("database")
}

// Object 打开数据库、配置连接池并执行自动迁移
func (f *FactoryBean) Object() (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.db != nil {
		return f.db, nil
	}
	opts := f.Options
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	db, err := gorm.Open(opts.Dialector, opts.GormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to open database '%s': %w", opts.Name, err)
	}

	// 配置连接池
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB for '%s': %w", opts.Name, err)
	}
	sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(opts.MaxLifetime)

	if len(opts.AutoMigrate) > 0 {
		if err := db.AutoMigrate(opts.AutoMigrate...); err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to auto migrate database '%s': %w", opts.Name, err)
		}
	}

	f.db = db
	f.logger().Info("Database opened",
		logging.F("name", opts.Name),
		logging.F("dialect", opts.Dialector.Name()),
		logging.F("maxOpenConns", opts.MaxOpenConns))
	return db, nil
}

func (f *FactoryBean) ObjectType() reflect.Type { return dbType }

func (f *FactoryBean) IsSingleton() bool { return true }

func (f *FactoryBean) IsPrototype() bool { return false }

func (f *FactoryBean) IsEagerInit() bool { return !f.Options.Lazy }

// Destroy 关闭连接池
func (f *FactoryBean) Destroy() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.db == nil {
		return nil
	}
	sqlDB, err := f.db.DB()
	if err != nil {
		return err
	}
	f.db = nil
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database '%s': %w", f.Options.Name, err)
	}
	f.logger().Info("Database closed", logging.F("name", f.Options.Name))
	return nil
}
