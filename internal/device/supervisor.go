package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/metrics"
	"github.com/driller442/BatteryHub/internal/transport"
)

// ReconnectConfig 重连策略；零值字段取默认
type ReconnectConfig struct {
	ConnectTimeout time.Duration
	// BackoffBase 首次重连等待，此后指数增长
	BackoffBase time.Duration
	// BackoffCap 退避上限
	BackoffCap time.Duration
	// MaxAttempts 连续失败多少次后放弃（会话转终态），0 为无限重试
	MaxAttempts int
}

func (c *ReconnectConfig) normalize() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 15 * time.Second
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 2 * time.Minute
	}
}

// Supervisor 为每个设备维护一条监督 goroutine：连接、运行会话、
// 断开后指数退避重连。各设备完全独立，互不拖累。
type Supervisor struct {
	tr   transport.Transport
	cfg  ReconnectConfig
	log  *zap.Logger
	appm *metrics.AppMetrics

	mu       sync.Mutex
	sessions map[coremodel.DeviceID]*Session
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewSupervisor(tr transport.Transport, cfg ReconnectConfig, log *zap.Logger, appm *metrics.AppMetrics) *Supervisor {
	cfg.normalize()
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{
		tr:       tr,
		cfg:      cfg,
		log:      log,
		appm:     appm,
		sessions: make(map[coremodel.DeviceID]*Session),
	}
}

// Add 注册一个设备会话；必须在 Start 之前完成
func (sv *Supervisor) Add(s *Session) error {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.running {
		return errors.New("supervisor already started")
	}
	if _, ok := sv.sessions[s.ID()]; ok {
		return fmt.Errorf("duplicate device id %q", s.ID())
	}
	sv.sessions[s.ID()] = s
	return nil
}

// Start 为每个已注册设备启动监督循环
func (sv *Supervisor) Start(ctx context.Context) error {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	if sv.running {
		return errors.New("supervisor already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	sv.cancel = cancel
	sv.running = true
	for _, s := range sv.sessions {
		sv.wg.Add(1)
		go sv.supervise(runCtx, s)
	}
	sv.log.Info("supervisor started", zap.Int("devices", len(sv.sessions)))
	return nil
}

// Stop 取消全部监督循环并等待退出；ctx 到期则放弃等待
func (sv *Supervisor) Stop(ctx context.Context) error {
	sv.mu.Lock()
	if !sv.running {
		sv.mu.Unlock()
		return nil
	}
	sv.running = false
	cancel := sv.cancel
	sv.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		sv.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		sv.log.Info("supervisor stopped")
		return nil
	case <-ctx.Done():
		sv.log.Warn("supervisor stop timed out")
		return ctx.Err()
	}
}

// States 各设备当前会话状态快照
func (sv *Supervisor) States() map[coremodel.DeviceID]coremodel.SessionState {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	out := make(map[coremodel.DeviceID]coremodel.SessionState, len(sv.sessions))
	for id, s := range sv.sessions {
		out[id] = s.State()
	}
	return out
}

// supervise 单设备监督循环：连接失败与断开都走同一套退避；
// 会话到达过流式状态即视为链路健康，退避归零
func (sv *Supervisor) supervise(ctx context.Context, s *Session) {
	defer sv.wg.Done()
	log := sv.log.With(zap.String("device", string(s.ID())))

	attempts := 0
	backoff := sv.cfg.BackoffBase
	for {
		if ctx.Err() != nil {
			return
		}

		cctx, cancel := context.WithTimeout(ctx, sv.cfg.ConnectTimeout)
		conn, err := sv.tr.Connect(cctx, s.Addr())
		cancel()
		if err == nil {
			log.Info("device connected", zap.String("addr", s.Addr()))
			runErr := s.run(ctx, conn)
			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			log.Warn("device disconnected", zap.Error(runErr))
			if s.Streamed() {
				attempts = 0
				backoff = sv.cfg.BackoffBase
			}
		} else {
			if ctx.Err() != nil {
				return
			}
			log.Warn("device connect failed", zap.Error(err))
			s.transportLost(fmt.Sprintf("connect failed: %v", err))
		}

		attempts++
		if sv.appm != nil {
			sv.appm.ReconnectTotal.WithLabelValues(string(s.ID())).Inc()
		}
		if sv.cfg.MaxAttempts > 0 && attempts >= sv.cfg.MaxAttempts {
			log.Error("reconnect attempts exhausted", zap.Int("attempts", attempts))
			s.exhausted(attempts)
			return
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		backoff *= 2
		if backoff > sv.cfg.BackoffCap {
			backoff = sv.cfg.BackoffCap
		}
	}
}
