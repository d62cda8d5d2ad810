package core

import (
	"errors"
	"fmt"
)

// State 容器状态
type State int32

const (
	StateNew State = iota
	StatePreparing
	StateFactoryReady
	StatePostProcessed
	StateInitialized
	StateRunning
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "New"
	case StatePreparing:
		return "Preparing"
	case StateFactoryReady:
		return "FactoryReady"
	case StatePostProcessed:
		return "PostProcessed"
	case StateInitialized:
		return "Initialized"
	case StateRunning:
		return "Running"
	case StateClosing:
		return "Closing"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	// ErrInactive 在容器尚未刷新或已关闭时访问 bean 返回
	ErrInactive = errors.New("core: context is not active")
	// ErrAlreadyRefreshed 重复刷新时返回
	ErrAlreadyRefreshed = errors.New("core: context does not support multiple refresh attempts")
)
