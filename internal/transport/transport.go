// Package transport 定义 BLE 链路抽象：会话层只面对分片流与写入口，
// 不感知具体蓝牙栈。分片可在任意字节边界切分。
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrDisconnected 链路已断开
var ErrDisconnected = errors.New("transport disconnected")

// Chunk 一次通知回调携带的原始分片
type Chunk struct {
	Data []byte
	// At 分片到达时刻
	At time.Time
}

// Conn 单设备链路；Chunks 通道在链路断开后由实现方关闭
type Conn interface {
	// Chunks 通知分片流，读端为会话 goroutine 独占
	Chunks() <-chan Chunk
	// Write 向设备写特征下发一帧请求
	Write(ctx context.Context, p []byte) error
	Close() error
}

// Transport 链路工厂；同一地址可多次连接（断开重连）
type Transport interface {
	Connect(ctx context.Context, addr string) (Conn, error)
}
