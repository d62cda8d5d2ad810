package cron

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
)

// Options 调度器配置选项
type Options struct {
	// Location 时区设置，默认 UTC
	Location string
	// EnableSeconds 是否启用秒级精度（默认分钟级）
	EnableSeconds bool
	// EnableCronLogger 是否启用 cron 库的内部调度日志（默认 false）
	EnableCronLogger bool
	// Phase 生命周期阶段，默认 0
	Phase int
}

// Scheduler 定时任务调度器
//
// 作为 SmartLifecycle 随容器启动和停止；任务可以在启动前后随时添加。
type Scheduler struct {
	Logger logging.Logger `di:"?"`

	opts     Options
	factory  *beans.Factory
	cron     *cron.Cron
	mu       sync.Mutex
	jobs     map[string]cron.EntryID
	handlers []handlerJob
	running  atomic.Bool
}

// handlerJob 参数从容器解析的任务函数
type handlerJob struct {
	spec    string
	name    string
	handler any
}

var (
	_ hosting.SmartLifecycle = (*Scheduler)(nil)
	_ beans.DisposableBean   = (*Scheduler)(nil)
	_ beans.InitializingBean = (*Scheduler)(nil)
	_ beans.BeanFactoryAware = (*Scheduler)(nil)
)

// NewScheduler 创建调度器，cron 实例在 AfterPropertiesSet 中创建
func NewScheduler(opts Options) *Scheduler {
	return &Scheduler{opts: opts, jobs: make(map[string]cron.EntryID)}
}

func (s *Scheduler) SetBeanFactory(f *beans.Factory) { s.factory = f }

func (s *Scheduler) logger() logging.Logger {
	if s.Logger == nil {
		return logging.NewNop()
	}
	return s.Logger.WithCategory("cron")
}

// AfterPropertiesSet 创建 cron 实例并注册构建时声明的任务
func (s *Scheduler) AfterPropertiesSet() error {
	location := time.UTC
	if s.opts.Location != "" {
		loc, err := time.LoadLocation(s.opts.Location)
		if err != nil {
			return fmt.Errorf("cron: invalid location %q: %w", s.opts.Location, err)
		}
		location = loc
	}

	logger := newCronLogger(s.logger())
	cronOpts := []cron.Option{
		cron.WithLocation(location),
		cron.WithChain(cron.Recover(logger)),
	}
	// 只在启用时添加 cron 库的日志记录器
	if s.opts.EnableCronLogger {
		cronOpts = append(cronOpts, cron.WithLogger(logger))
	}
	if s.opts.EnableSeconds {
		cronOpts = append(cronOpts, cron.WithSeconds())
	}
	s.cron = cron.New(cronOpts...)

	for _, job := range s.handlers {
		if err := s.ScheduleFunc(job.name, job.spec, job.handler); err != nil {
			return err
		}
	}
	return nil
}

// Schedule 添加或替换名为 name 的任务
// spec: cron 表达式，如 "*/5 * * * *" (每5分钟)，启用秒级精度时为 "0 */5 * * * *"
func (s *Scheduler) Schedule(name, spec string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron == nil {
		return fmt.Errorf("cron: scheduler is not initialized")
	}
	entryID, err := s.cron.AddFunc(spec, func() {
		s.logger().Debug("Cron job started", logging.F("job", name))
		defer s.logger().Debug("Cron job completed", logging.F("job", name))
		job()
	})
	if err != nil {
		return fmt.Errorf("failed to add cron job '%s': %w", name, err)
	}
	if old, exists := s.jobs[name]; exists {
		s.cron.Remove(old)
	}
	s.jobs[name] = entryID
	s.logger().Info("Cron job registered", logging.F("job", name), logging.F("spec", spec))
	return nil
}

// ScheduleFunc 添加参数由容器解析的任务函数
// handler 可以是任何函数，每次执行时按参数类型从容器获取依赖，返回的 error 会被记录
//
//	scheduler.ScheduleFunc("sync-data", "*/5 * * * *", func(svc *DataService) error {
//	    return svc.Sync()
//	})
func (s *Scheduler) ScheduleFunc(name, spec string, handler any) error {
	if fn, ok := handler.(func()); ok {
		return s.Schedule(name, spec, fn)
	}
	fn := reflect.ValueOf(handler)
	if fn.Kind() != reflect.Func {
		return fmt.Errorf("cron: handler of job '%s' must be a function, got %T", name, handler)
	}
	if s.factory == nil {
		return fmt.Errorf("cron: job '%s' needs a bean factory to resolve its parameters", name)
	}
	return s.Schedule(name, spec, func() { s.invoke(name, fn) })
}

// invoke 解析参数并调用任务函数
func (s *Scheduler) invoke(name string, fn reflect.Value) {
	defer func() {
		if r := recover(); r != nil {
			s.logger().Error("Cron job panicked", logging.F("job", name), logging.F("panic", r))
		}
	}()

	fnType := fn.Type()
	args := make([]reflect.Value, fnType.NumIn())
	for i := range args {
		paramType := fnType.In(i)
		instance, err := s.factory.ResolveDependency(context.Background(), beans.DependencyDescriptor{
			Type:     paramType,
			Required: true,
		})
		if err != nil {
			s.logger().Error("Failed to resolve cron job parameter",
				logging.F("job", name),
				logging.F("index", i),
				logging.F("type", paramType.String()),
				logging.Err(err))
			return
		}
		if instance == nil {
			args[i] = reflect.Zero(paramType)
			continue
		}
		args[i] = reflect.ValueOf(instance)
	}

	for _, out := range fn.Call(args) {
		if err, ok := out.Interface().(error); ok && err != nil {
			s.logger().Error("Cron job failed", logging.F("job", name), logging.Err(err))
		}
	}
}

// Remove 移除定时任务
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entryID, exists := s.jobs[name]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, name)
		s.logger().Info("Cron job removed", logging.F("job", name))
	}
}

// Jobs 返回已注册的任务名称
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Next 返回任务下一次执行的时间
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entryID, exists := s.jobs[name]
	if !exists {
		return time.Time{}, false
	}
	return s.cron.Entry(entryID).Next, true
}

func (s *Scheduler) Start(context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return nil
	}
	s.logger().Info("Cron scheduler starting", logging.F("jobs", len(s.Jobs())))
	s.cron.Start()
	return nil
}

// Stop 优雅停止，等待正在运行的任务完成或 ctx 超时
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
		s.logger().Info("Cron scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger().Warn("Cron scheduler stop timeout, running jobs abandoned")
		return ctx.Err()
	}
}

// Destroy 停止仍在运行的调度器，不等待正在执行的任务
func (s *Scheduler) Destroy() error {
	if s.running.CompareAndSwap(true, false) {
		s.cron.Stop()
	}
	return nil
}

func (s *Scheduler) IsRunning() bool { return s.running.Load() }

func (s *Scheduler) AutoStartup() bool { return true }

func (s *Scheduler) Phase() int { return s.opts.Phase }

// cronLogger 适配器：将框架日志接口适配到 cron 的日志接口
type cronLogger struct {
	logger logging.Logger
}

func newCronLogger(logger logging.Logger) cron.Logger {
	return &cronLogger{logger: logger}
}

func (l *cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, convertToFields(keysAndValues)...)
}

func (l *cronLogger) Error(err error, msg string, keysAndValues ...any) {
	fields := convertToFields(keysAndValues)
	fields = append(fields, logging.Err(err))
	l.logger.Error(msg, fields...)
}

func convertToFields(keysAndValues []any) []logging.Field {
	fields := make([]logging.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields = append(fields, logging.F(fmt.Sprint(keysAndValues[i]), keysAndValues[i+1]))
	}
	return fields
}
