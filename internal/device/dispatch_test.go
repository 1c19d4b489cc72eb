package device

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// blockingSink 第一条投递挂起直到放行，用于制造队列饱和
type blockingSink struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once

	mu   sync.Mutex
	socs []float64
}

func (bs *blockingSink) OnReading(id coremodel.DeviceID, r coremodel.Reading) {
	bs.once.Do(func() {
		close(bs.entered)
		<-bs.release
	})
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.socs = append(bs.socs, *r.SOC)
}

func (bs *blockingSink) OnFault(coremodel.DeviceID, coremodel.FaultKind, string) {}

func (bs *blockingSink) OnStateChange(coremodel.DeviceID, coremodel.SessionState) {}

func socReading(v float64) coremodel.Reading {
	return coremodel.Reading{At: time.Now(), Profile: coremodel.ProfileJBD, SOC: &v}
}

// TestBusDropOldest 队列饱和时丢最旧保最新，发布方从不阻塞
func TestBusDropOldest(t *testing.T) {
	bs := &blockingSink{entered: make(chan struct{}), release: make(chan struct{})}
	bus := NewBus(2, zap.NewNop(), nil)
	bus.Register("slow", bs)

	bus.PublishReading("battery-1", socReading(1))
	<-bs.entered // 第一条已被取走并挂起，队列空

	for v := 2.0; v <= 6; v++ {
		bus.PublishReading("battery-1", socReading(v))
	}
	close(bs.release)
	bus.Close()

	bs.mu.Lock()
	defer bs.mu.Unlock()
	require.Equal(t, []float64{1, 5, 6}, bs.socs, "oldest queued events must be dropped first")
}

type panicSink struct {
	mu    sync.Mutex
	calls int
}

func (ps *panicSink) OnReading(coremodel.DeviceID, coremodel.Reading) {
	ps.mu.Lock()
	ps.calls++
	ps.mu.Unlock()
	panic("boom")
}

func (ps *panicSink) OnFault(coremodel.DeviceID, coremodel.FaultKind, string) {}

func (ps *panicSink) OnStateChange(coremodel.DeviceID, coremodel.SessionState) {}

// TestBusSinkPanicIsolated Sink panic 不中断后续投递
func TestBusSinkPanicIsolated(t *testing.T) {
	ps := &panicSink{}
	ok := &recordSink{}
	bus := NewBus(8, zap.NewNop(), nil)
	bus.Register("panicky", ps)
	bus.Register("healthy", ok)

	bus.PublishReading("battery-1", socReading(10))
	bus.PublishReading("battery-1", socReading(20))
	bus.Close()

	ps.mu.Lock()
	require.Equal(t, 2, ps.calls, "delivery must continue after sink panic")
	ps.mu.Unlock()
	require.Equal(t, 2, ok.readingCount())
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus(8, zap.NewNop(), nil)
	sink := &recordSink{}
	bus.Register("record", sink)
	bus.Close()
	// 关闭后发布被静默丢弃，不 panic
	bus.PublishReading("battery-1", socReading(1))
	require.Zero(t, sink.readingCount())
}
