package hosting

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/logging"
)

// DefaultPhaseTimeout 每个阶段停止的默认超时
const DefaultPhaseTimeout = 30 * time.Second

// Processor 负责容器中所有 Lifecycle bean 的启动和停止
type Processor struct {
	factory *beans.Factory
	timeout time.Duration
	logger  logging.Logger

	mu      sync.Mutex
	running bool
}

var _ LifecycleProcessor = (*Processor)(nil)

// ProcessorOption Processor 选项
type ProcessorOption func(*Processor)

// WithPhaseTimeout 设置每个阶段停止的超时
func WithPhaseTimeout(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		p.timeout = d
	}
}

// WithLogger 设置日志
func WithLogger(logger logging.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor 创建生命周期处理器
func NewProcessor(f *beans.Factory, opts ...ProcessorOption) *Processor {
	p := &Processor{
		factory: f,
		timeout: DefaultPhaseTimeout,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnRefresh 在容器刷新完成后启动所有自动启动的组件
func (p *Processor) OnRefresh(ctx context.Context) error {
	if err := p.startBeans(ctx, true); err != nil {
		return err
	}
	p.setRunning(true)
	return nil
}

// OnClose 在容器关闭时停止所有组件
func (p *Processor) OnClose(ctx context.Context) {
	p.stopBeans(ctx)
	p.setRunning(false)
}

// Start 显式启动所有组件，包括非自动启动的
func (p *Processor) Start(ctx context.Context) error {
	if err := p.startBeans(ctx, false); err != nil {
		return err
	}
	p.setRunning(true)
	return nil
}

// Stop 显式停止所有组件
func (p *Processor) Stop(ctx context.Context) error {
	p.stopBeans(ctx)
	p.setRunning(false)
	return nil
}

func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Processor) setRunning(running bool) {
	p.mu.Lock()
	p.running = running
	p.mu.Unlock()
}

// lifecycleBeans 返回已创建的 Lifecycle 单例和所有 SmartLifecycle，按注册顺序
// createdOnly 为 true 时只返回已创建的单例，停止时使用，不会触发新的创建
func (p *Processor) lifecycleBeans(createdOnly bool) (map[string]Lifecycle, []string, error) {
	names := p.factory.BeanNamesForType(lifecycleType, false, false)
	lifecycles := make(map[string]Lifecycle, len(names))
	order := make([]string, 0, len(names))

	for _, name := range names {
		registered := strings.TrimPrefix(name, beans.FactoryBeanPrefix)
		smart, _ := p.factory.IsTypeMatch(name, smartLifecycleType)
		if (createdOnly || !smart) && !p.factory.ContainsSingleton(registered) {
			continue
		}
		bean, err := p.factory.GetBean(name)
		if err != nil {
			return nil, nil, err
		}
		lc, ok := bean.(Lifecycle)
		if !ok || bean == any(p) {
			continue
		}
		if _, seen := lifecycles[registered]; !seen {
			order = append(order, registered)
		}
		lifecycles[registered] = lc
	}
	return lifecycles, order, nil
}

func isAutoStartup(lc Lifecycle) bool {
	smart, ok := lc.(SmartLifecycle)
	return ok && smart.AutoStartup()
}

// groupByPhase 按阶段分组，asc 控制阶段顺序
func groupByPhase(lifecycles map[string]Lifecycle, order []string, include func(Lifecycle) bool, asc bool) ([]int, map[int][]string) {
	groups := make(map[int][]string)
	for _, name := range order {
		lc := lifecycles[name]
		if include != nil && !include(lc) {
			continue
		}
		phase := PhaseOf(lc)
		groups[phase] = append(groups[phase], name)
	}

	phases := make([]int, 0, len(groups))
	for phase := range groups {
		phases = append(phases, phase)
	}
	slices.Sort(phases)
	if !asc {
		slices.Reverse(phases)
	}
	return phases, groups
}

func (p *Processor) startBeans(ctx context.Context, autoStartupOnly bool) error {
	lifecycles, order, err := p.lifecycleBeans(false)
	if err != nil {
		return fmt.Errorf("hosting: failed to collect lifecycle beans: %w", err)
	}

	var include func(Lifecycle) bool
	if autoStartupOnly {
		include = isAutoStartup
	}
	phases, groups := groupByPhase(lifecycles, order, include, true)

	for _, phase := range phases {
		p.logger.Debug("Starting beans in phase", logging.F("phase", phase))
		for _, name := range groups[phase] {
			if err := p.doStart(ctx, lifecycles, name, autoStartupOnly); err != nil {
				return err
			}
		}
	}
	return nil
}

// doStart 先启动 name 依赖的组件，再启动它自己
func (p *Processor) doStart(ctx context.Context, remaining map[string]Lifecycle, name string, autoStartupOnly bool) error {
	lc, ok := remaining[name]
	if !ok {
		return nil
	}
	delete(remaining, name)

	for _, dep := range p.factory.DependenciesForBean(name) {
		if err := p.doStart(ctx, remaining, dep, autoStartupOnly); err != nil {
			return err
		}
	}

	if lc.IsRunning() || (autoStartupOnly && !isAutoStartup(lc)) {
		return nil
	}
	p.logger.Debug("Starting bean", logging.F("bean", name), logging.F("type", fmt.Sprintf("%T", lc)))
	if err := lc.Start(ctx); err != nil {
		return fmt.Errorf("hosting: failed to start bean '%s': %w", name, err)
	}
	p.logger.Debug("Successfully started bean", logging.F("bean", name))
	return nil
}

func (p *Processor) stopBeans(ctx context.Context) {
	lifecycles, order, err := p.lifecycleBeans(true)
	if err != nil {
		p.logger.Warn("Failed to collect lifecycle beans for shutdown", logging.Err(err))
		return
	}

	phases, groups := groupByPhase(lifecycles, order, nil, false)
	for _, phase := range phases {
		p.stopPhase(ctx, phase, groups[phase], lifecycles)
	}
}

// phaseStop 记录一个阶段中仍在停止的组件
type phaseStop struct {
	wg      sync.WaitGroup
	mu      sync.Mutex
	pending map[string]struct{}
}

func (s *phaseStop) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.pending))
	for name := range s.pending {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// stopPhase 依次发起停止，SmartLifecycle 并发执行，整体受超时限制
func (p *Processor) stopPhase(ctx context.Context, phase int, names []string, lifecycles map[string]Lifecycle) {
	p.logger.Debug("Stopping beans in phase", logging.F("phase", phase))

	phaseCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	stop := &phaseStop{pending: make(map[string]struct{})}
	for _, name := range names {
		p.doStop(phaseCtx, lifecycles, name, stop)
	}

	done := make(chan struct{})
	go func() {
		stop.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-phaseCtx.Done():
		p.logger.Warn("Shutdown phase ended before all beans stopped",
			logging.F("phase", phase),
			logging.F("timeout", p.timeout),
			logging.F("beans", stop.names()))
	}
}

// doStop 先停止依赖 name 的组件，再停止它自己
func (p *Processor) doStop(ctx context.Context, remaining map[string]Lifecycle, name string, stop *phaseStop) {
	lc, ok := remaining[name]
	if !ok {
		return
	}
	delete(remaining, name)

	for _, dependent := range p.factory.DependentBeans(name) {
		p.doStop(ctx, remaining, dependent, stop)
	}

	if !lc.IsRunning() {
		return
	}

	if _, smart := lc.(SmartLifecycle); !smart {
		p.logger.Debug("Stopping bean", logging.F("bean", name))
		if err := lc.Stop(ctx); err != nil {
			p.logger.Warn("Failed to stop bean", logging.F("bean", name), logging.Err(err))
		}
		return
	}

	stop.mu.Lock()
	stop.pending[name] = struct{}{}
	stop.mu.Unlock()
	stop.wg.Add(1)

	go func() {
		defer stop.wg.Done()
		p.logger.Debug("Stopping bean", logging.F("bean", name), logging.F("phase", PhaseOf(lc)))
		if err := lc.Stop(ctx); err != nil {
			p.logger.Warn("Failed to stop bean", logging.F("bean", name), logging.Err(err))
		}
		stop.mu.Lock()
		delete(stop.pending, name)
		stop.mu.Unlock()
	}()
}
