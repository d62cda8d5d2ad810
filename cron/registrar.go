package cron

import (
	"fmt"
	"sync"

	"github.com/gocrud/ioc/beans"
)

// Job 由 JobRegistrar 自动调度的 bean
type Job interface {
	// Spec 返回 cron 表达式
	Spec() string
	Run()
}

// JobRegistrar 把实现 Job 的 bean 在初始化后注册到调度器，bean 销毁时移除
type JobRegistrar struct {
	beans.BasePostProcessor

	schedulerName string
	factory       *beans.Factory
	mu            sync.Mutex
	scheduler     *Scheduler
}

var (
	_ beans.DestructionAwarePostProcessor = (*JobRegistrar)(nil)
	_ beans.BeanFactoryAware              = (*JobRegistrar)(nil)
)

// NewJobRegistrar 创建任务注册器，schedulerName 是调度器的 bean 名称
func NewJobRegistrar(schedulerName string) *JobRegistrar {
	return &JobRegistrar{schedulerName: schedulerName}
}

func (r *JobRegistrar) SetBeanFactory(f *beans.Factory) { r.factory = f }

// schedulerFor 第一次遇到任务时才获取调度器
func (r *JobRegistrar) schedulerFor(job string) (*Scheduler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler != nil {
		return r.scheduler, nil
	}
	if r.factory == nil {
		return nil, fmt.Errorf("cron: job registrar has no bean factory")
	}
	s, err := beans.Get[*Scheduler](r.factory, r.schedulerName)
	if err != nil {
		return nil, fmt.Errorf("cron: no scheduler for job '%s': %w", job, err)
	}
	r.scheduler = s
	return s, nil
}

func (r *JobRegistrar) PostProcessAfterInitialization(bean any, name string) (any, error) {
	job, ok := bean.(Job)
	if !ok {
		return bean, nil
	}
	scheduler, err := r.schedulerFor(name)
	if err != nil {
		return nil, err
	}
	if err := scheduler.Schedule(name, job.Spec(), job.Run); err != nil {
		return nil, err
	}
	return bean, nil
}

func (r *JobRegistrar) PostProcessBeforeDestruction(bean any, name string) error {
	r.mu.Lock()
	scheduler := r.scheduler
	r.mu.Unlock()

	if scheduler != nil {
		scheduler.Remove(name)
	}
	return nil
}

func (r *JobRegistrar) RequiresDestruction(bean any) bool {
	_, ok := bean.(Job)
	return ok
}
