package hosting_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/hosting"
	"github.com/gocrud/ioc/logging"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// plainLifecycle 同步停止，可选阶段
type plainLifecycle struct {
	name    string
	phase   int
	rec     *recorder
	running bool
}

func (l *plainLifecycle) Start(context.Context) error {
	l.running = true
	l.rec.add("start:" + l.name)
	return nil
}

func (l *plainLifecycle) Stop(context.Context) error {
	l.running = false
	l.rec.add("stop:" + l.name)
	return nil
}

func (l *plainLifecycle) IsRunning() bool { return l.running }

func (l *plainLifecycle) Phase() int { return l.phase }

type smartLifecycle struct {
	plainLifecycle
	auto     bool
	stopFunc func(ctx context.Context) error
	mu       sync.Mutex
}

func newSmart(name string, phase int, auto bool, rec *recorder) *smartLifecycle {
	return &smartLifecycle{plainLifecycle: plainLifecycle{name: name, phase: phase, rec: rec}, auto: auto}
}

func (l *smartLifecycle) AutoStartup() bool { return l.auto }

func (l *smartLifecycle) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *smartLifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.plainLifecycle.Start(ctx)
}

func (l *smartLifecycle) Stop(ctx context.Context) error {
	if l.stopFunc != nil {
		return l.stopFunc(ctx)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.plainLifecycle.Stop(ctx)
}

func TestAutoStartupByPhase(t *testing.T) {
	rec := &recorder{}
	f := beans.NewFactory()
	require.NoError(t, f.RegisterSingleton("late", newSmart("late", 10, true, rec)))
	require.NoError(t, f.RegisterSingleton("early", newSmart("early", -5, true, rec)))
	require.NoError(t, f.RegisterSingleton("manual", newSmart("manual", 0, false, rec)))
	require.NoError(t, f.RegisterSingleton("plain", &plainLifecycle{name: "plain", rec: rec}))

	p := hosting.NewProcessor(f)
	require.NoError(t, p.OnRefresh(context.Background()))
	assert.Equal(t, []string{"start:early", "start:late"}, rec.list())
	assert.True(t, p.IsRunning())

	p.OnClose(context.Background())
	assert.Equal(t, []string{"start:early", "start:late", "stop:late", "stop:early"}, rec.list())
	assert.False(t, p.IsRunning())
}

func TestExplicitStartIncludesManualBeans(t *testing.T) {
	rec := &recorder{}
	f := beans.NewFactory()
	require.NoError(t, f.RegisterSingleton("late", newSmart("late", 10, true, rec)))
	require.NoError(t, f.RegisterSingleton("early", newSmart("early", -5, true, rec)))
	require.NoError(t, f.RegisterSingleton("manual", newSmart("manual", 0, false, rec)))
	require.NoError(t, f.RegisterSingleton("plain", &plainLifecycle{name: "plain", rec: rec}))

	p := hosting.NewProcessor(f)
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, []string{"start:early", "start:manual", "start:plain", "start:late"}, rec.list())

	// 已运行的组件不会重复启动
	require.NoError(t, p.Start(context.Background()))
	assert.Len(t, rec.list(), 4)
}

func TestDependenciesStartFirstAndStopLast(t *testing.T) {
	rec := &recorder{}
	f := beans.NewFactory()
	require.NoError(t, f.RegisterSingleton("server", &plainLifecycle{name: "server", rec: rec}))
	require.NoError(t, f.RegisterSingleton("db", &plainLifecycle{name: "db", phase: 5, rec: rec}))
	f.RegisterDependentBean("db", "server")

	p := hosting.NewProcessor(f)
	require.NoError(t, p.Start(context.Background()))
	assert.Equal(t, []string{"start:db", "start:server"}, rec.list())

	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, []string{"start:db", "start:server", "stop:server", "stop:db"}, rec.list())
}

func TestLifecycleBeansFromDefinitions(t *testing.T) {
	rec := &recorder{}
	f := beans.NewFactory()
	require.NoError(t, beans.Provide(f, "worker", func() *smartLifecycle {
		return newSmart("worker", 0, true, rec)
	}))

	// SmartLifecycle 定义在刷新时即使尚未创建也会被启动
	p := hosting.NewProcessor(f)
	require.NoError(t, p.OnRefresh(context.Background()))
	assert.Equal(t, []string{"start:worker"}, rec.list())
	assert.True(t, f.ContainsSingleton("worker"))
}

type failingLifecycle struct {
	plainLifecycle
}

func (failingLifecycle) Start(context.Context) error { return errors.New("port in use") }

func (failingLifecycle) AutoStartup() bool { return true }

func TestStartFailureNamesBean(t *testing.T) {
	f := beans.NewFactory()
	require.NoError(t, f.RegisterSingleton("web", &failingLifecycle{}))

	err := hosting.NewProcessor(f).OnRefresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start bean 'web'")
	assert.Contains(t, err.Error(), "port in use")
}

func TestStopPhaseTimeout(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := logging.FromZap(zap.New(core), logging.LogLevelDebug)

	rec := &recorder{}
	stuck := newSmart("stuck", 0, true, rec)
	var stopped atomic.Bool
	release := make(chan struct{})
	stuck.stopFunc = func(context.Context) error {
		<-release
		stopped.Store(true)
		return nil
	}
	f := beans.NewFactory()
	require.NoError(t, f.RegisterSingleton("stuck", stuck))

	p := hosting.NewProcessor(f, hosting.WithPhaseTimeout(20*time.Millisecond), hosting.WithLogger(logger))
	require.NoError(t, p.OnRefresh(context.Background()))

	start := time.Now()
	p.OnClose(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, stopped.Load())
	close(release)
	assert.Eventually(t, stopped.Load, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("Shutdown phase ended before all beans stopped").Len())
}
