package device

import (
	"sync"

	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/metrics"
)

// Sink 读数、故障与状态变化的订阅者。
// 回调在各自分发 goroutine 内串行执行，实现无需加锁，但不得反向阻塞采集。
type Sink interface {
	OnReading(id coremodel.DeviceID, r coremodel.Reading)
	OnFault(id coremodel.DeviceID, kind coremodel.FaultKind, detail string)
	OnStateChange(id coremodel.DeviceID, state coremodel.SessionState)
}

type eventKind uint8

const (
	evtReading eventKind = iota
	evtFault
	evtState
)

type event struct {
	kind    eventKind
	id      coremodel.DeviceID
	reading coremodel.Reading
	fault   coremodel.FaultKind
	detail  string
	state   coremodel.SessionState
}

// Bus 会话到 Sink 的异步分发：每个 Sink 一条有界队列加专属 goroutine。
// 队列饱和时丢最旧保最新，采集路径永不阻塞在慢 Sink 上。
type Bus struct {
	queue int
	log   *zap.Logger
	appm  *metrics.AppMetrics

	mu      sync.RWMutex
	workers []*sinkWorker
	closed  bool
}

type sinkWorker struct {
	name string
	sink Sink
	ch   chan event
	done chan struct{}
}

func NewBus(queue int, log *zap.Logger, appm *metrics.AppMetrics) *Bus {
	if queue <= 0 {
		queue = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{queue: queue, log: log, appm: appm}
}

// Register 挂入一个 Sink 并启动其分发 goroutine；应在会话启动前完成
func (b *Bus) Register(name string, s Sink) {
	w := &sinkWorker{
		name: name,
		sink: s,
		ch:   make(chan event, b.queue),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.workers = append(b.workers, w)
	b.mu.Unlock()
	go w.run(b.log)
}

func (b *Bus) PublishReading(id coremodel.DeviceID, r coremodel.Reading) {
	b.publish(event{kind: evtReading, id: id, reading: r})
}

func (b *Bus) PublishFault(id coremodel.DeviceID, kind coremodel.FaultKind, detail string) {
	b.publish(event{kind: evtFault, id: id, fault: kind, detail: detail})
}

func (b *Bus) PublishState(id coremodel.DeviceID, state coremodel.SessionState) {
	b.publish(event{kind: evtState, id: id, state: state})
}

func (b *Bus) publish(ev event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, w := range b.workers {
		select {
		case w.ch <- ev:
			continue
		default:
		}
		// 队列饱和：丢最旧再投递
		select {
		case <-w.ch:
		default:
		}
		select {
		case w.ch <- ev:
		default:
		}
		if b.appm != nil {
			b.appm.SinkDropped.WithLabelValues(w.name).Inc()
		}
	}
}

// Close 停止接收并排空各队列，等待全部 Sink goroutine 退出
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	workers := b.workers
	b.mu.Unlock()
	for _, w := range workers {
		close(w.ch)
	}
	for _, w := range workers {
		<-w.done
	}
}

func (w *sinkWorker) run(log *zap.Logger) {
	defer close(w.done)
	for ev := range w.ch {
		w.deliver(ev, log)
	}
}

// deliver 单条投递；Sink panic 只记录，不拖垮分发循环
func (w *sinkWorker) deliver(ev event, log *zap.Logger) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("sink panicked",
				zap.String("sink", w.name),
				zap.Any("panic", r))
		}
	}()
	switch ev.kind {
	case evtReading:
		w.sink.OnReading(ev.id, ev.reading)
	case evtFault:
		w.sink.OnFault(ev.id, ev.fault, ev.detail)
	case evtState:
		w.sink.OnStateChange(ev.id, ev.state)
	}
}
