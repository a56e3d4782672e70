// Package modelcache 管理进程内已加载的合成模型。
//
// 缓存以 (引擎, 变体) 为键，容量达到上限时整体清空后再加载新模型；
// 加载过程由一把进程级互斥锁串行化，已加载模型的推理不加锁。
// 被清空的条目在最后一个持有者 Release 之后才真正关闭。
package modelcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/iabetor/narrator/internal/logger"
	"github.com/iabetor/narrator/internal/metrics"
	"github.com/iabetor/narrator/internal/runtime"
)

// ErrLoad 表示模型加载失败，此时缓存已被清空。
var ErrLoad = errors.New("模型加载失败")

// DefaultCapacity 为默认的驻留模型数量上限。
const DefaultCapacity = 2

// Key 标识一个缓存条目。
type Key struct {
	Engine  string
	Variant string
}

func (k Key) String() string {
	return k.Engine + "-" + k.Variant
}

// LoadFunc 构建模型并放置到设备上，可能阻塞很久。
type LoadFunc func(ctx context.Context) (runtime.Model, error)

type entry struct {
	key     Key
	model   runtime.Model
	refs    int
	retired bool
}

// Cache 是有容量上限的模型缓存，可被多个编排器共享。
type Cache struct {
	capacity int
	releaser runtime.DeviceReleaser
	device   string

	mu      sync.Mutex
	entries map[Key]*entry

	// loadMu 串行化所有加载与清空
	loadMu sync.Mutex
}

// Option 配置 Cache。
type Option func(*Cache)

// WithReleaser 设置清空缓存后回收设备显存的能力。
func WithReleaser(r runtime.DeviceReleaser, device string) Option {
	return func(c *Cache) {
		c.releaser = r
		c.device = device
	}
}

// New 创建容量为 capacity 的缓存，capacity <= 0 时使用 DefaultCapacity。
func New(capacity int, opts ...Option) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Cache{
		capacity: capacity,
		entries:  make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capacity 返回容量上限。
func (c *Cache) Capacity() int {
	return c.capacity
}

// Len 返回当前驻留的条目数。
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Contains 判断 key 是否驻留。
func (c *Cache) Contains(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

func (c *Cache) acquire(key Key) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	e.refs++
	return &Handle{c: c, e: e}
}

// GetOrLoad 返回 key 对应的模型句柄，未命中时调用 load 加载。
// 调用方用完后需要 Release 句柄。
func (c *Cache) GetOrLoad(ctx context.Context, key Key, load LoadFunc) (*Handle, error) {
	if h := c.acquire(key); h != nil {
		return h, nil
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	// 等锁期间可能已被其他编排器加载
	if h := c.acquire(key); h != nil {
		return h, nil
	}

	if c.Len() >= c.capacity {
		logger.Infof("[modelcache] 缓存已满 (%d/%d)，清空后加载 %s", c.Len(), c.capacity, key)
		c.flush()
	}

	logger.Infof("[modelcache] 加载模型 %s ...", key)
	model, err := load(ctx)
	if err == nil && model == nil {
		err = errors.New("加载函数返回空模型")
	}
	if err != nil {
		metrics.RecordModelLoad(key.Engine, false)
		c.flush()
		return nil, fmt.Errorf("[modelcache] %s: %w: %w", key, ErrLoad, err)
	}
	metrics.RecordModelLoad(key.Engine, true)

	e := &entry{key: key, model: model, refs: 1}
	c.mu.Lock()
	c.entries[key] = e
	n := len(c.entries)
	c.mu.Unlock()
	metrics.SetCachedModels(n)

	logger.Infof("[modelcache] 模型 %s 已加载 (%d/%d)", key, n, c.capacity)
	return &Handle{c: c, e: e}, nil
}

// Flush 清空全部条目并回收设备显存。
func (c *Cache) Flush() {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	c.flush()
}

// Close 清空缓存，用于进程退出。
func (c *Cache) Close() error {
	c.Flush()
	return nil
}

func (c *Cache) flush() {
	c.mu.Lock()
	var idle []*entry
	for key, e := range c.entries {
		e.retired = true
		if e.refs == 0 {
			idle = append(idle, e)
		}
		delete(c.entries, key)
	}
	c.mu.Unlock()

	for _, e := range idle {
		closeEntry(e)
	}
	metrics.RecordCacheFlush()
	metrics.SetCachedModels(0)
	if c.releaser != nil {
		c.releaser.ReleaseDeviceMemory(c.device)
	}
}

func closeEntry(e *entry) {
	if err := e.model.Close(); err != nil {
		logger.Warnf("[modelcache] 关闭模型 %s 失败: %v", e.key, err)
		return
	}
	logger.Debugf("[modelcache] 模型 %s 已关闭", e.key)
}

// Handle 是对缓存条目的一次引用。
type Handle struct {
	c    *Cache
	e    *entry
	once sync.Once
}

// Key 返回条目键。
func (h *Handle) Key() Key {
	return h.e.key
}

// Model 返回模型实例。
func (h *Handle) Model() runtime.Model {
	return h.e.model
}

// Release 归还引用，多次调用只生效一次。
func (h *Handle) Release() {
	h.once.Do(func() {
		h.c.mu.Lock()
		h.e.refs--
		last := h.e.retired && h.e.refs == 0
		h.c.mu.Unlock()
		if last {
			closeEntry(h.e)
		}
	})
}
