package beans

import (
	"bytes"
	"context"
	"runtime"
	"slices"
	"strconv"
	"sync/atomic"
)

var chainSeq atomic.Uint64

// chain 表示一次顶层查找引发的创建链。
//
// 同一条链上的递归请求视为同一次解析：遇到链上正在创建的单例时可以拿到提前暴露的引用，
// 而其他链则会等待创建完成。链只由发起查找的 goroutine 使用，
// waiting 字段由 singletonRegistry.mu 保护。
//
// 回调（FactoryBean.Object、构造函数、初始化方法）里直接调用 GetBean 会在同一 goroutine 上开启新链，
// 新链与外层链属于同一个调用栈，按 gid 视为同一次解析。
type chain struct {
	id         uint64
	gid        uint64
	path       []string
	prototypes map[string]int
	waiting    *inflight
}

func newChain() *chain {
	return &chain{id: chainSeq.Add(1)}
}

// goroutine 返回创建链所在 goroutine 的编号，第一次调用时解析并缓存。
// 链成为创建者或等待者之前必须先调用，其他 goroutine 在 singletonRegistry.mu 下读取 gid。
func (c *chain) goroutine() uint64 {
	if c.gid == 0 {
		c.gid = goroutineID()
	}
	return c.gid
}

// sameStack 报告 x 与 c 是否处于同一个 goroutine 的调用栈。
func (c *chain) sameStack(x *chain) bool {
	return x == c || (x.gid != 0 && x.gid == c.gid)
}

// goroutineID 从栈信息首行 "goroutine N [...]" 解析当前 goroutine 编号。
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	line := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(line, ' '); i > 0 {
		line = line[:i]
	}
	id, _ := strconv.ParseUint(string(line), 10, 64)
	return id
}

func (c *chain) push(name string) {
	c.path = append(c.path, name)
}

func (c *chain) pop() {
	if len(c.path) > 0 {
		c.path = c.path[:len(c.path)-1]
	}
}

func (c *chain) snapshot() []string {
	return slices.Clone(c.path)
}

func (c *chain) beforePrototype(name string) {
	if c.prototypes == nil {
		c.prototypes = make(map[string]int)
	}
	c.prototypes[name]++
}

func (c *chain) afterPrototype(name string) {
	if c.prototypes[name] <= 1 {
		delete(c.prototypes, name)
		return
	}
	c.prototypes[name]--
}

func (c *chain) prototypeInCreation(name string) bool {
	return c.prototypes[name] > 0
}

type chainKey struct{}

// withChain 把创建链放入 context，供后处理器发起的嵌套解析复用。
func withChain(ctx context.Context, c *chain) context.Context {
	return context.WithValue(ctx, chainKey{}, c)
}

// chainFrom 取出 context 中的创建链，没有时创建新链。
func chainFrom(ctx context.Context) *chain {
	if ctx != nil {
		if c, ok := ctx.Value(chainKey{}).(*chain); ok {
			return c
		}
	}
	return newChain()
}
