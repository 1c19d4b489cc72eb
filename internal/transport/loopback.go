package transport

import (
	"context"
	"sync"
	"time"
)

// LoopbackConn 进程内链路：Push 注入上行分片，OnWrite 截获下行请求。
// 供会话/监督者测试与协议演练使用，不依赖蓝牙硬件。
type LoopbackConn struct {
	mu      sync.Mutex
	ch      chan Chunk
	closed  bool
	writes  [][]byte
	onWrite func(p []byte)
}

func NewLoopbackConn(queue int) *LoopbackConn {
	if queue <= 0 {
		queue = 64
	}
	return &LoopbackConn{ch: make(chan Chunk, queue)}
}

func (c *LoopbackConn) Chunks() <-chan Chunk { return c.ch }

func (c *LoopbackConn) Write(_ context.Context, p []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrDisconnected
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	fn := c.onWrite
	c.mu.Unlock()
	if fn != nil {
		fn(cp)
	}
	return nil
}

// Close 幂等；关闭后 Chunks 通道不再产出
func (c *LoopbackConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}

// Push 注入一个上行分片；链路已断开返回 false，队列满时丢最旧
func (c *LoopbackConn) Push(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	ck := Chunk{Data: append([]byte(nil), data...), At: time.Now()}
	for {
		select {
		case c.ch <- ck:
			return true
		default:
			select {
			case <-c.ch:
			default:
			}
		}
	}
}

// OnWrite 注册下行回调；回调在写入者 goroutine 内执行
func (c *LoopbackConn) OnWrite(fn func(p []byte)) {
	c.mu.Lock()
	c.onWrite = fn
	c.mu.Unlock()
}

// Writes 已截获的下行帧快照
func (c *LoopbackConn) Writes() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.writes))
	copy(out, c.writes)
	return out
}

// Loopback 进程内链路工厂；Dial 回调决定每次连接的结果
type Loopback struct {
	mu   sync.Mutex
	dial func(addr string) (Conn, error)
}

func NewLoopback(dial func(addr string) (Conn, error)) *Loopback {
	return &Loopback{dial: dial}
}

func (l *Loopback) Connect(_ context.Context, addr string) (Conn, error) {
	l.mu.Lock()
	dial := l.dial
	l.mu.Unlock()
	if dial == nil {
		return nil, ErrDisconnected
	}
	return dial(addr)
}

// SetDial 替换连接行为（模拟重连成功/失败序列）
func (l *Loopback) SetDial(dial func(addr string) (Conn, error)) {
	l.mu.Lock()
	l.dial = dial
	l.mu.Unlock()
}
