package hosting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gocrud/ioc/logging"
)

// HostedService 托管服务接口
// Start 应阻塞执行，直到 context 被取消或发生错误，框架会在独立的 goroutine 中调用它。
type HostedService interface {
	Start(ctx context.Context) error
	// Stop 执行额外的清理工作，Start 的 context 此时已被取消。
	Stop(ctx context.Context) error
}

// WorkerFunc 简单的阻塞后台任务，通过 ctx.Done() 判断退出
type WorkerFunc func(ctx context.Context) error

func (fn WorkerFunc) Start(ctx context.Context) error { return fn(ctx) }

func (fn WorkerFunc) Stop(context.Context) error { return nil }

// Hosted 把 HostedService 适配为 SmartLifecycle
type Hosted struct {
	Name    string
	Service HostedService
	// PhaseValue 为 0 时使用 DefaultPhase
	PhaseValue int
	// OnError 在 Start 返回非取消错误时调用，通常用于触发应用退出
	OnError func(error)
	Logger  logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ SmartLifecycle = (*Hosted)(nil)

// NewHosted 创建托管服务适配器
func NewHosted(name string, svc HostedService) *Hosted {
	return &Hosted{Name: name, Service: svc}
}

func (h *Hosted) AutoStartup() bool { return true }

func (h *Hosted) Phase() int {
	if h.PhaseValue == 0 {
		return DefaultPhase
	}
	return h.PhaseValue
}

func (h *Hosted) logger() logging.Logger {
	if h.Logger == nil {
		return logging.NewNop()
	}
	return h.Logger
}

// Start 在 goroutine 中运行服务，服务生命周期伴随容器而不是 ctx
func (h *Hosted) Start(context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		return nil
	}

	// 使用 Background 确保服务存活到 Stop
	svcCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	h.cancel, h.done = cancel, done

	go func() {
		defer close(done)
		h.logger().Debug("Hosted service starting", logging.F("service", h.Name))
		err := h.Service.Start(svcCtx)
		switch {
		case err == nil:
			h.logger().Info("Hosted service completed", logging.F("service", h.Name))
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			h.logger().Debug("Hosted service stopped (context done)", logging.F("service", h.Name))
		default:
			h.logger().Error("Hosted service error", logging.F("service", h.Name), logging.Err(err))
			if h.OnError != nil {
				h.OnError(fmt.Errorf("hosted service %s exited with error: %w", h.Name, err))
			}
		}
	}()
	return nil
}

// Stop 取消服务的 context，调用 Service.Stop，并等待 Start 返回
func (h *Hosted) Stop(ctx context.Context) error {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	stopErr := h.Service.Stop(ctx)

	select {
	case <-done:
	case <-ctx.Done():
		h.logger().Warn(fmt.Sprintf("Hosted service '%s' stop timeout", h.Name))
		return errors.Join(stopErr, ctx.Err())
	}
	return stopErr
}

func (h *Hosted) IsRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// TimedService 定时托管服务
type TimedService struct {
	name     string
	interval time.Duration
	task     func(ctx context.Context) error
	logger   logging.Logger
}

var _ HostedService = (*TimedService)(nil)

// NewTimedService 创建定时托管服务
func NewTimedService(name string, interval time.Duration, task func(ctx context.Context) error, logger logging.Logger) *TimedService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TimedService{name: name, interval: interval, task: task, logger: logger}
}

// Start 按固定间隔执行任务，直到 ctx 被取消
func (s *TimedService) Start(ctx context.Context) error {
	s.logger.Info(fmt.Sprintf("TimedService '%s' running with interval %v", s.name, s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.logger.Debug(fmt.Sprintf("TimedService '%s' executing task", s.name))
			if err := s.task(ctx); err != nil {
				s.logger.Error(fmt.Sprintf("TimedService '%s' task failed", s.name), logging.Err(err))
			}
		case <-ctx.Done():
			s.logger.Info(fmt.Sprintf("TimedService '%s' context cancelled", s.name))
			return ctx.Err()
		}
	}
}

func (s *TimedService) Stop(context.Context) error { return nil }
