package global

import (
	"bytes"
	"sync"
)

// BufferPool 复用事件序列化与 WebSocket 帧读取使用的 bytes.Buffer
//
// 容量达到 maxSize 的 Buffer 不再放回池中, 见 https://golang.org/issue/23199
type BufferPool struct {
	pool    sync.Pool
	maxSize int
}

// NewBufferPool 创建 BufferPool, maxSize <= 0 时不限制放回的容量
func NewBufferPool(maxSize int) *BufferPool {
	return &BufferPool{
		pool:    sync.Pool{New: func() any { return new(bytes.Buffer) }},
		maxSize: maxSize,
	}
}

// Get 取出已清空的 Buffer
func (p *BufferPool) Get() *bytes.Buffer {
	return p.pool.Get().(*bytes.Buffer)
}

// Put 归还 Buffer, 调用后不应再使用 buf
func (p *BufferPool) Put(buf *bytes.Buffer) {
	if buf == nil || (p.maxSize > 0 && buf.Cap() >= p.maxSize) {
		return
	}
	buf.Reset()
	p.pool.Put(buf)
}

var frames = NewBufferPool(1 << 16)

// NewBuffer 从全局池中获取 Buffer
func NewBuffer() *bytes.Buffer {
	return frames.Get()
}

// PutBuffer 将 Buffer 归还全局池
func PutBuffer(buf *bytes.Buffer) {
	frames.Put(buf)
}
