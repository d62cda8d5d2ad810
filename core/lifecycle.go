package core

import (
	"context"
	"errors"
)

// hooks 管理容器刷新和关闭时的回调
type hooks struct {
	onRefresh []func(context.Context) error
	onClose   []func(context.Context) error
}

// OnRefresh 注册刷新钩子，在事件分发器就绪后、单例预实例化前执行
func (h *hooks) OnRefresh(fn func(context.Context) error) {
	h.onRefresh = append(h.onRefresh, fn)
}

// OnClose 注册关闭钩子，在单例销毁后执行
func (h *hooks) OnClose(fn func(context.Context) error) {
	h.onClose = append(h.onClose, fn)
}

func (h *hooks) refresh(ctx context.Context) error {
	for _, fn := range h.onRefresh {
		if err := fn(ctx); err != nil {
			return err
		}
	}
	return nil
}

// close 倒序执行，出错不中断
func (h *hooks) close(ctx context.Context) error {
	var errs []error
	for i := len(h.onClose) - 1; i >= 0; i-- {
		if err := h.onClose[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
