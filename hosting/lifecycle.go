package hosting

import (
	"context"
	"math"
	"reflect"
)

// DefaultPhase 是 SmartLifecycle 的默认阶段：最后启动，最先停止
const DefaultPhase = math.MaxInt32

// Lifecycle 可启动和停止的组件
type Lifecycle interface {
	// Start 启动组件，不应阻塞；需要长期运行的工作放到 goroutine 中
	Start(ctx context.Context) error
	// Stop 停止组件，必须遵守 ctx 的超时
	Stop(ctx context.Context) error
	// IsRunning 报告组件是否在运行
	IsRunning() bool
}

// SmartLifecycle 带自动启动和阶段的组件
//
// 容器刷新时 AutoStartup 为 true 的组件按 Phase 升序启动，关闭时按降序停止，
// 同一阶段的组件并发停止。
type SmartLifecycle interface {
	Lifecycle
	AutoStartup() bool
	Phase() int
}

// LifecycleProcessor 由容器在刷新和关闭时驱动
type LifecycleProcessor interface {
	Lifecycle
	OnRefresh(ctx context.Context) error
	OnClose(ctx context.Context)
}

// Phased 只提供阶段的组件
type Phased interface {
	Phase() int
}

var (
	lifecycleType      = reflect.TypeOf((*Lifecycle)(nil)).Elem()
	smartLifecycleType = reflect.TypeOf((*SmartLifecycle)(nil)).Elem()
)

// PhaseOf 返回组件的阶段，未实现 Phased 的为 0
func PhaseOf(v any) int {
	if p, ok := v.(Phased); ok {
		return p.Phase()
	}
	return 0
}
