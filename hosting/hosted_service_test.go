package hosting_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/hosting"
)

func TestHostedWorkerLifecycle(t *testing.T) {
	var exited atomic.Bool
	worker := hosting.WorkerFunc(func(ctx context.Context) error {
		<-ctx.Done()
		exited.Store(true)
		return ctx.Err()
	})
	h := hosting.NewHosted("worker", worker)
	assert.Equal(t, hosting.DefaultPhase, h.Phase())
	assert.True(t, h.AutoStartup())

	require.NoError(t, h.Start(context.Background()))
	assert.True(t, h.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.Stop(ctx))
	assert.True(t, exited.Load())
	assert.False(t, h.IsRunning())

	// 重复停止是安全的
	require.NoError(t, h.Stop(ctx))
}

func TestHostedReportsErrors(t *testing.T) {
	errCh := make(chan error, 1)
	h := hosting.NewHosted("broken", hosting.WorkerFunc(func(context.Context) error {
		return errors.New("connection lost")
	}))
	h.OnError = func(err error) { errCh <- err }

	require.NoError(t, h.Start(context.Background()))
	select {
	case err := <-errCh:
		assert.Contains(t, err.Error(), "connection lost")
		assert.Contains(t, err.Error(), "broken")
	case <-time.After(time.Second):
		t.Fatal("OnError was not called")
	}
	assert.Eventually(t, func() bool { return !h.IsRunning() }, time.Second, 5*time.Millisecond)
}

func TestTimedServiceUnderProcessor(t *testing.T) {
	var runs atomic.Int32
	svc := hosting.NewTimedService("tick", 5*time.Millisecond, func(context.Context) error {
		runs.Add(1)
		return nil
	}, nil)

	f := beans.NewFactory()
	require.NoError(t, f.RegisterSingleton("tick", hosting.NewHosted("tick", svc)))

	p := hosting.NewProcessor(f)
	require.NoError(t, p.OnRefresh(context.Background()))
	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	p.OnClose(context.Background())
	stopped := runs.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load())
}
