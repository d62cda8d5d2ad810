package cron

import (
	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
)

const (
	// SchedulerBeanName 调度器的 bean 名称
	SchedulerBeanName = "cronScheduler"
	// RegistrarBeanName 任务注册器的 bean 名称
	RegistrarBeanName = "cronJobRegistrar"
)

// Builder Cron 配置构建器
type Builder struct {
	opts Options
	jobs []handlerJob
}

var _ core.DefinitionRegistrar = (*Builder)(nil)

// BuilderOption 用于配置 Cron Builder
type BuilderOption func(*Builder)

// NewBuilder 创建 Cron 构建器
func NewBuilder() *Builder {
	return &Builder{opts: Options{Location: "UTC"}}
}

func (b *Builder) Name() string { return "cron" }

// RegisterDefinitions 注册调度器和任务注册器
func (b *Builder) RegisterDefinitions(r beans.Registry, _ config.Environment) error {
	opts, jobs := b.opts, b.jobs
	err := beans.Provide(r, SchedulerBeanName, func() *Scheduler {
		s := NewScheduler(opts)
		s.handlers = jobs
		return s
	}, beans.WithDescription("cron scheduler"))
	if err != nil {
		return err
	}
	return beans.Provide(r, RegistrarBeanName, func() *JobRegistrar {
		return NewJobRegistrar(SchedulerBeanName)
	}, beans.WithRole(beans.RoleInfrastructure))
}

// WithSeconds 启用秒级精度
func WithSeconds() BuilderOption {
	return func(b *Builder) {
		b.opts.EnableSeconds = true
	}
}

// WithLocation 设置时区
func WithLocation(location string) BuilderOption {
	return func(b *Builder) {
		b.opts.Location = location
	}
}

// WithPhase 设置调度器的生命周期阶段
func WithPhase(phase int) BuilderOption {
	return func(b *Builder) {
		b.opts.Phase = phase
	}
}

// EnableCronLogger 启用 cron 库的内部调度日志
func EnableCronLogger() BuilderOption {
	return func(b *Builder) {
		b.opts.EnableCronLogger = true
	}
}

// AddJob 添加任务，handler 为 func() 或参数从容器解析的函数
//
//	cron.AddJob("0 */5 * * * *", "sync-data", func(svc *DataService, logger logging.Logger) {
//	    svc.Sync()
//	})
func AddJob(spec, name string, handler any) BuilderOption {
	return func(b *Builder) {
		b.jobs = append(b.jobs, handlerJob{spec: spec, name: name, handler: handler})
	}
}

// New 启用 Cron 能力
func New(opts ...BuilderOption) core.Option {
	builder := NewBuilder()
	for _, opt := range opts {
		opt(builder)
	}
	return core.WithExtension(builder)
}
