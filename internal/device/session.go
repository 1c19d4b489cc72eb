package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/metrics"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
	"github.com/driller442/BatteryHub/internal/transport"
)

// Config 会话调节参数；零值字段取默认
type Config struct {
	// ConfirmThreshold 连续成功解码多少帧后确认档案
	ConfirmThreshold int
	// DemoteThreshold 流式状态下连续失败多少帧后降级回探测
	DemoteThreshold int
	// NoMatchLimit 探测状态累计丢弃多少字节后上报无匹配档案
	NoMatchLimit int
	// PollInterval 确认后轮询周期
	PollInterval time.Duration
	// ProbeTimeout 探测状态单个候选档案的应答等待
	ProbeTimeout time.Duration
	// WriteRate 下行写限速，帧/秒；部分 BMS 丢弃背靠背写入
	WriteRate float64
}

func (c *Config) normalize() {
	if c.ConfirmThreshold <= 0 {
		c.ConfirmThreshold = 1
	}
	if c.DemoteThreshold <= 0 {
		c.DemoteThreshold = 3
	}
	if c.NoMatchLimit <= 0 {
		c.NoMatchLimit = 2048
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 60 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 3 * time.Second
	}
	if c.WriteRate <= 0 {
		c.WriteRate = 4
	}
}

// Session 单设备采集会话：探测协议档案、轮询、重组、解码、发布读数。
// 除 State/ID/Addr 外的方法都只在会话 goroutine 内执行。
type Session struct {
	id    coremodel.DeviceID
	addr  string
	cands []profile.Profile
	cfg   Config

	bus     *Bus
	log     *zap.Logger
	appm    *metrics.AppMetrics
	limiter *rate.Limiter
	reasm   *profile.Reassembler

	mu    sync.RWMutex
	state coremodel.SessionState
	// confirmed 最近一次确认过的档案，重连后优先探测
	confirmed coremodel.ProfileID

	// 以下仅会话 goroutine 访问
	order         []profile.Profile
	probeIdx      int
	candidate     profile.Profile
	confirmStreak int
	failStreak    int
	noMatchMark   int
	cycle         *profile.Fields
	streamed      bool
}

// NewSession cands 为候选档案，顺序即探测优先级；钉定档案时只传一个
func NewSession(id coremodel.DeviceID, addr string, cands []profile.Profile, cfg Config, bus *Bus, log *zap.Logger, appm *metrics.AppMetrics) *Session {
	cfg.normalize()
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		id:      id,
		addr:    addr,
		cands:   cands,
		cfg:     cfg,
		bus:     bus,
		log:     log.With(zap.String("device", string(id))),
		appm:    appm,
		limiter: rate.NewLimiter(rate.Limit(cfg.WriteRate), 1),
		reasm:   profile.NewReassembler(cands),
		cycle:   &profile.Fields{},
	}
}

func (s *Session) ID() coremodel.DeviceID { return s.id }

func (s *Session) Addr() string { return s.addr }

// State 当前状态；任意 goroutine 可读
func (s *Session) State() coremodel.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Confirmed 最近确认的档案标识，从未确认为空
func (s *Session) Confirmed() coremodel.ProfileID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.confirmed
}

// Streamed 本次连接内是否到达过流式状态（监督者据此重置退避）
func (s *Session) Streamed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamed
}

// run 在一条已建立的链路上运行会话，直到链路断开或 ctx 取消。
// 每次进入都从零开始：空缓冲、重新探测，绝不掺入断开前的残留字节。
func (s *Session) run(ctx context.Context, conn transport.Conn) error {
	s.mu.Lock()
	s.streamed = false
	s.mu.Unlock()
	s.enterDetecting()

	probe := time.NewTimer(0)
	defer probe.Stop()
	poll := time.NewTicker(s.cfg.PollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ck, ok := <-conn.Chunks():
			if !ok {
				s.transportLost("notification stream closed")
				return transport.ErrDisconnected
			}
			s.handleChunk(ck)
		case <-probe.C:
			if s.State() == coremodel.SessionDetecting {
				s.probeNext(ctx, conn)
			}
			probe.Reset(s.cfg.ProbeTimeout)
		case <-poll.C:
			if s.State() == coremodel.SessionStreaming {
				s.startPollCycle(ctx, conn)
			}
		}
	}
}

// enterDetecting 进入（或回到）探测状态：清缓冲、解绑、重排候选
func (s *Session) enterDetecting() {
	s.reasm.Unbind()
	s.reasm.Reset()
	s.cycle = &profile.Fields{}
	s.candidate = nil
	s.confirmStreak = 0
	s.failStreak = 0
	s.noMatchMark = 0
	s.probeIdx = 0
	s.order = s.detectOrder()
	s.setState(coremodel.SessionDetecting)
}

// detectOrder 候选档案探测顺序；确认过的档案置顶，其余保持原优先级
func (s *Session) detectOrder() []profile.Profile {
	confirmed := s.Confirmed()
	if confirmed == "" {
		return s.cands
	}
	order := make([]profile.Profile, 0, len(s.cands))
	for _, p := range s.cands {
		if p.ID() == confirmed {
			order = append(order, p)
		}
	}
	for _, p := range s.cands {
		if p.ID() != confirmed {
			order = append(order, p)
		}
	}
	return order
}

func (s *Session) handleChunk(ck transport.Chunk) {
	if s.appm != nil {
		s.appm.BLEBytesReceived.Add(float64(len(ck.Data)))
	}
	for _, em := range s.reasm.Feed(ck.Data) {
		if em.Err != nil {
			s.onBadFrame(em)
			continue
		}
		s.onFrame(em)
	}
	// 探测状态下持续丢弃且无帧可出：上报一次，推进水位后继续等
	if s.State() == coremodel.SessionDetecting {
		if d := s.reasm.DiscardedSinceFrame(); d-s.noMatchMark >= s.cfg.NoMatchLimit {
			s.noMatchMark = d
			s.fault(coremodel.FaultNoMatchingProfile,
				fmt.Sprintf("%d bytes discarded without a matching profile", d))
		}
	}
}

// onBadFrame 校验失败的帧跨度已被丢弃；流式状态下计入降级
func (s *Session) onBadFrame(em profile.Emit) {
	name := string(em.Profile.ID())
	if s.appm != nil {
		s.appm.FrameTotal.WithLabelValues(name, "checksum").Inc()
	}
	s.log.Debug("corrupt frame span discarded",
		zap.String("profile", name), zap.Error(em.Err))
	if s.State() == coremodel.SessionStreaming {
		s.failStreak++
		s.maybeDemote()
	}
}

func (s *Session) onFrame(em profile.Emit) {
	p := em.Profile
	name := string(p.ID())
	if s.appm != nil {
		s.appm.FrameTotal.WithLabelValues(name, "ok").Inc()
	}

	f, err := p.Decode(em.Frame)
	if err != nil {
		if s.appm != nil {
			s.appm.DecodeTotal.WithLabelValues(name, "error").Inc()
		}
		s.log.Debug("frame decode failed", zap.String("profile", name), zap.Error(err))
		switch s.State() {
		case coremodel.SessionStreaming:
			s.failStreak++
			s.maybeDemote()
		case coremodel.SessionDetecting:
			if s.candidate == p {
				s.confirmStreak = 0
			}
		}
		return
	}
	if s.appm != nil {
		s.appm.DecodeTotal.WithLabelValues(name, "ok").Inc()
	}
	s.noMatchMark = 0

	switch s.State() {
	case coremodel.SessionDetecting:
		if s.candidate != p {
			s.candidate = p
			s.confirmStreak = 0
			s.cycle = &profile.Fields{}
		}
		s.confirmStreak++
		s.cycle.Merge(f)
		if s.confirmStreak >= s.cfg.ConfirmThreshold {
			s.confirm(p)
			s.finishFrame(p, em.At)
		}
	case coremodel.SessionStreaming:
		s.failStreak = 0
		s.cycle.Merge(f)
		s.finishFrame(p, em.At)
	}
}

// confirm 绑定档案并进入流式状态
func (s *Session) confirm(p profile.Profile) {
	s.reasm.Bind(p)
	s.candidate = nil
	s.confirmStreak = 0
	s.failStreak = 0
	s.mu.Lock()
	s.confirmed = p.ID()
	s.streamed = true
	s.mu.Unlock()
	s.log.Info("profile confirmed", zap.String("profile", string(p.ID())))
	s.setState(coremodel.SessionStreaming)
}

// finishFrame 周期凑齐则产出一条规范化读数并清空累积
func (s *Session) finishFrame(p profile.Profile, at time.Time) {
	if !p.CycleComplete(s.cycle) {
		return
	}
	rd, err := profile.BuildReading(p.ID(), s.cycle, at)
	s.cycle = &profile.Fields{}
	if err != nil {
		if s.appm != nil {
			s.appm.ReadingDropped.WithLabelValues(string(s.id), "field_out_of_range").Inc()
		}
		s.fault(coremodel.FaultFieldOutOfRange, err.Error())
		return
	}
	if s.appm != nil {
		s.appm.ReadingTotal.WithLabelValues(string(s.id)).Inc()
	}
	s.bus.PublishReading(s.id, *rd)
}

// maybeDemote 连续失败达到阈值：解除绑定，清缓冲，回到探测
func (s *Session) maybeDemote() {
	if s.failStreak < s.cfg.DemoteThreshold {
		return
	}
	if s.appm != nil {
		s.appm.DemoteTotal.WithLabelValues(string(s.id)).Inc()
	}
	s.log.Warn("confirmed profile demoted",
		zap.String("profile", string(s.Confirmed())),
		zap.Int("failures", s.failStreak))
	s.enterDetecting()
}

// probeNext 轮流向下一个候选档案发出其请求帧
func (s *Session) probeNext(ctx context.Context, conn transport.Conn) {
	if len(s.order) == 0 {
		return
	}
	p := s.order[s.probeIdx%len(s.order)]
	s.probeIdx++
	s.sendRequests(ctx, conn, p)
}

// startPollCycle 新轮询周期：丢弃上周期残余字段再下发请求
func (s *Session) startPollCycle(ctx context.Context, conn transport.Conn) {
	p := s.reasm.Bound()
	if p == nil {
		return
	}
	s.cycle = &profile.Fields{}
	s.sendRequests(ctx, conn, p)
}

func (s *Session) sendRequests(ctx context.Context, conn transport.Conn, p profile.Profile) {
	for _, req := range p.Requests() {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := conn.Write(ctx, req); err != nil {
			s.log.Warn("request write failed",
				zap.String("profile", string(p.ID())), zap.Error(err))
			return
		}
		if s.appm != nil {
			s.appm.PollWriteTotal.WithLabelValues(string(s.id)).Inc()
		}
	}
}

// transportLost 链路断开：进入故障态，等监督者重连
func (s *Session) transportLost(detail string) {
	already := s.State() == coremodel.SessionFaulted
	s.setState(coremodel.SessionFaulted)
	if !already {
		s.fault(coremodel.FaultTransportDisconnected, detail)
	}
}

// exhausted 重连次数耗尽：终态关闭，人工介入前不再自动恢复
func (s *Session) exhausted(attempts int) {
	s.setState(coremodel.SessionClosed)
	s.fault(coremodel.FaultReconnectExhausted,
		fmt.Sprintf("gave up after %d connect attempts", attempts))
}

func (s *Session) fault(kind coremodel.FaultKind, detail string) {
	if s.appm != nil {
		s.appm.FaultTotal.WithLabelValues(string(s.id), string(kind)).Inc()
	}
	s.log.Warn("session fault",
		zap.String("kind", string(kind)), zap.String("detail", detail))
	s.bus.PublishFault(s.id, kind, detail)
}

func (s *Session) setState(st coremodel.SessionState) {
	s.mu.Lock()
	if s.state == st {
		s.mu.Unlock()
		return
	}
	s.state = st
	s.mu.Unlock()
	if s.appm != nil {
		s.appm.SetSessionState(s.id, st)
	}
	s.log.Info("session state changed", zap.String("state", string(st)))
	s.bus.PublishState(s.id, st)
}

// buffered 测试用：当前重组缓冲字节数
func (s *Session) buffered() int { return s.reasm.Buffered() }
