// Package bleclient 基于 go-ble 实现 transport.Transport：
// 连接设备、发现 GATT 档案、订阅通知特征并提供写入口。
// 实际电池只会暴露一家厂商的服务表，连接时按候选规格依序匹配。
package bleclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/transport"
)

// GATTSpec 一家厂商的服务与特征选择；Notify 与 Write 可指向同一特征
type GATTSpec struct {
	Service string
	Notify  string
	Write   string
}

// Options 链路调节参数；零值取默认
type Options struct {
	// ChunkQueue 单链路通知分片队列长度，满后丢最旧
	ChunkQueue int
}

// Transport 蓝牙链路工厂。specs 键为设备地址，值为候选 GATT 规格，
// 顺序即匹配优先级（与会话的探测顺序保持一致）。
type Transport struct {
	specs map[string][]GATTSpec
	queue int
	log   *zap.Logger

	// HCI 设备全进程只初始化一次
	initOnce sync.Once
	initErr  error
}

func New(specs map[string][]GATTSpec, opts Options, log *zap.Logger) *Transport {
	if log == nil {
		log = zap.NewNop()
	}
	queue := opts.ChunkQueue
	if queue <= 0 {
		queue = 256
	}
	m := make(map[string][]GATTSpec, len(specs))
	for addr, list := range specs {
		m[normalizeAddr(addr)] = list
	}
	return &Transport{specs: m, queue: queue, log: log}
}

// Connect 建立链路并完成 GATT 协商；返回的 Conn 已订阅通知特征
func (t *Transport) Connect(ctx context.Context, addr string) (transport.Conn, error) {
	specs := t.specs[normalizeAddr(addr)]
	if len(specs) == 0 {
		return nil, fmt.Errorf("no gatt spec for address %s", addr)
	}

	t.initOnce.Do(func() {
		dev, err := newDevice()
		if err != nil {
			t.initErr = fmt.Errorf("init ble device: %w", err)
			return
		}
		ble.SetDefaultDevice(dev)
	})
	if t.initErr != nil {
		return nil, t.initErr
	}

	cln, err := ble.Dial(ctx, ble.NewAddr(addr))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	prof, err := cln.DiscoverProfile(true)
	if err != nil {
		_ = cln.CancelConnection()
		return nil, fmt.Errorf("discover profile: %w", err)
	}

	notify, write, spec, err := resolveSpec(prof, specs)
	if err != nil {
		_ = cln.CancelConnection()
		return nil, err
	}

	c := &bleConn{
		cln:   cln,
		write: write,
		// 模块支持免应答写时优先使用，轮询延迟更低
		noRsp: write.Property&ble.CharWriteNR != 0,
		ch:    make(chan transport.Chunk, t.queue),
		log:   t.log.With(zap.String("addr", normalizeAddr(addr))),
	}

	if err := cln.Subscribe(notify, false, c.onNotify); err != nil {
		_ = cln.CancelConnection()
		return nil, fmt.Errorf("subscribe %s: %w", spec.Notify, err)
	}

	c.log.Debug("gatt ready",
		zap.String("service", spec.Service),
		zap.String("notify", spec.Notify),
		zap.String("write", spec.Write),
		zap.Bool("write_no_rsp", c.noRsp),
	)

	go c.watchDisconnect()
	return c, nil
}

// resolveSpec 在发现结果中依序匹配候选规格，返回第一个通知与写特征齐备的。
// 特征除 UUID 还校验属性位，避免把只读特征当写入口。
func resolveSpec(prof *ble.Profile, specs []GATTSpec) (notify, write *ble.Characteristic, spec GATTSpec, err error) {
	for _, sp := range specs {
		svcUUID, e1 := ble.Parse(sp.Service)
		ntfUUID, e2 := ble.Parse(sp.Notify)
		wrUUID, e3 := ble.Parse(sp.Write)
		if e1 != nil || e2 != nil || e3 != nil {
			return nil, nil, GATTSpec{}, fmt.Errorf("bad gatt spec %+v", sp)
		}
		for _, svc := range prof.Services {
			if !uuidEqual(svc.UUID, svcUUID) {
				continue
			}
			var n, w *ble.Characteristic
			for _, ch := range svc.Characteristics {
				if n == nil && uuidEqual(ch.UUID, ntfUUID) && ch.Property&(ble.CharNotify|ble.CharIndicate) != 0 {
					n = ch
				}
				if w == nil && uuidEqual(ch.UUID, wrUUID) && ch.Property&(ble.CharWrite|ble.CharWriteNR) != 0 {
					w = ch
				}
			}
			if n != nil && w != nil {
				return n, w, sp, nil
			}
		}
	}
	return nil, nil, GATTSpec{}, errors.New("no matching battery service in gatt profile")
}

// bleBase 蓝牙 SIG 基础 UUID（小端），16 位短 UUID 展开用
var bleBase = ble.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// uuidEqual 比较 UUID，16 位短形式与 128 位基址展开形式视为相同
func uuidEqual(a, b ble.UUID) bool {
	if len(a) == len(b) {
		return a.Equal(b)
	}
	return expand(a).Equal(expand(b))
}

func expand(u ble.UUID) ble.UUID {
	if len(u) != 2 {
		return u
	}
	out := make(ble.UUID, 16)
	copy(out, bleBase)
	out[12] = u[0]
	out[13] = u[1]
	return out
}

func normalizeAddr(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// bleConn 单设备链路。mu 保护队列与 closed 标志，wmu 串行化下行写；
// 两把锁分开，写特征的往返不会阻塞通知入队。
type bleConn struct {
	cln   ble.Client
	write *ble.Characteristic
	noRsp bool
	log   *zap.Logger

	mu      sync.Mutex
	ch      chan transport.Chunk
	closed  bool
	dropped int

	wmu sync.Mutex
}

func (c *bleConn) Chunks() <-chan transport.Chunk { return c.ch }

// onNotify 通知回调；队列满时丢最旧，保证最新分片始终入队
func (c *bleConn) onNotify(data []byte) {
	ck := transport.Chunk{Data: append([]byte(nil), data...), At: time.Now()}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	for {
		select {
		case c.ch <- ck:
			return
		default:
			select {
			case <-c.ch:
				c.dropped++
				if c.dropped == 1 || c.dropped%256 == 0 {
					c.log.Warn("chunk queue full, dropping oldest", zap.Int("dropped", c.dropped))
				}
			default:
			}
		}
	}
}

func (c *bleConn) Write(ctx context.Context, p []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return transport.ErrDisconnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.cln.WriteCharacteristic(c.write, p, c.noRsp); err != nil {
		return fmt.Errorf("write characteristic: %w", err)
	}
	return nil
}

// Close 幂等；退订并断开物理链路
func (c *bleConn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.ch)
	c.mu.Unlock()

	_ = c.cln.ClearSubscriptions()
	return c.cln.CancelConnection()
}

// watchDisconnect 链路意外断开后关闭分片通道，会话据此退出
func (c *bleConn) watchDisconnect() {
	<-c.cln.Disconnected()
	c.mu.Lock()
	already := c.closed
	if !already {
		c.closed = true
		close(c.ch)
	}
	c.mu.Unlock()
	if !already {
		c.log.Debug("ble link down")
	}
}
