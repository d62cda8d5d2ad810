package cron_test

import (
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gocrud/ioc/beans"
	"github.com/gocrud/ioc/config"
	"github.com/gocrud/ioc/core"
	"github.com/gocrud/ioc/cron"
)

type counter struct {
	n atomic.Int32
}

type tickJob struct {
	Counter *counter `di:""`
	spec    string
}

func (j *tickJob) Spec() string { return j.spec }

func (j *tickJob) Run() { j.Counter.n.Add(1) }

func newContext(t *testing.T, spec string, opts ...cron.BuilderOption) *core.Context {
	c, err := core.New(
		core.WithEnvironment(config.NewEnvironment()),
		cron.New(opts...),
		core.WithRegistrar(func(r beans.Registry) error {
			if err := beans.Register[counter](r, "counter"); err != nil {
				return err
			}
			return beans.Provide(r, "tickJob", func() *tickJob { return &tickJob{spec: spec} })
		}),
	)
	require.NoError(t, err)
	return c
}

func TestJobBeansAreScheduled(t *testing.T) {
	var handled atomic.Int32
	c := newContext(t, "@every 1s", cron.AddJob("@every 1s", "handler", func(c *counter) {
		handled.Add(1)
	}))
	require.NoError(t, c.Refresh(t.Context()))

	scheduler := beans.MustGet[*cron.Scheduler](c, cron.SchedulerBeanName)
	assert.True(t, scheduler.IsRunning())
	assert.Equal(t, []string{"handler", "tickJob"}, scheduler.Jobs())

	next, ok := scheduler.Next("tickJob")
	require.True(t, ok)
	assert.False(t, next.IsZero())

	counter := beans.MustGet[*counter](c, "counter")
	require.Eventually(t, func() bool {
		return counter.n.Load() > 0 && handled.Load() > 0
	}, 5*time.Second, 50*time.Millisecond)

	require.NoError(t, c.Close(t.Context()))
	assert.False(t, scheduler.IsRunning())
	assert.Equal(t, []string{"handler"}, scheduler.Jobs())
}

func TestInvalidSpecFailsRefresh(t *testing.T) {
	c := newContext(t, "not a cron spec")
	err := c.Refresh(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to add cron job 'tickJob'")
	var creation *beans.CreationError
	assert.ErrorAs(t, err, &creation)
}

func TestSecondsAndLocation(t *testing.T) {
	c := newContext(t, "*/1 * * * * *", cron.WithSeconds(), cron.WithLocation("Asia/Shanghai"))
	require.NoError(t, c.Refresh(t.Context()))
	defer c.Close(t.Context())

	scheduler := beans.MustGet[*cron.Scheduler](c, cron.SchedulerBeanName)
	next, ok := scheduler.Next("tickJob")
	require.True(t, ok)
	assert.Equal(t, "Asia/Shanghai", next.Location().String())
}

func TestInvalidLocation(t *testing.T) {
	c := newContext(t, "@every 1s", cron.WithLocation("Mars/Olympus"))
	err := c.Refresh(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid location")
}

func TestDestroyStopsRunningScheduler(t *testing.T) {
	c := newContext(t, "@every 1s")
	require.NoError(t, c.Refresh(t.Context()))

	scheduler := beans.MustGet[*cron.Scheduler](c, cron.SchedulerBeanName)
	require.True(t, scheduler.IsRunning())
	require.NoError(t, scheduler.Destroy())
	assert.False(t, scheduler.IsRunning())
	require.NoError(t, scheduler.Destroy())

	require.NoError(t, c.Close(t.Context()))
}
