package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
	"github.com/driller442/BatteryHub/internal/transport"
)

func testReconnect() ReconnectConfig {
	return ReconnectConfig{
		ConnectTimeout: time.Second,
		BackoffBase:    time.Millisecond,
		BackoffCap:     5 * time.Millisecond,
	}
}

// TestSupervisorConcurrentSessions 两台设备并发出帧，读数归属各自正确
func TestSupervisorConcurrentSessions(t *testing.T) {
	sink := &recordSink{}
	bus := NewBus(128, zap.NewNop(), nil)
	bus.Register("record", sink)
	defer bus.Close()

	var mu sync.Mutex
	conns := map[string]*transport.LoopbackConn{}
	lb := transport.NewLoopback(func(addr string) (transport.Conn, error) {
		c := transport.NewLoopbackConn(32)
		mu.Lock()
		conns[addr] = c
		mu.Unlock()
		return c, nil
	})

	sv := NewSupervisor(lb, testReconnect(), zap.NewNop(), nil)
	profA := &scriptProfile{id: "prof-a", marker: 0xA1}
	profB := &scriptProfile{id: "prof-b", marker: 0xB2}
	sa := NewSession("bank-a", "addr-a", []profile.Profile{profA}, testConfig(), bus, zap.NewNop(), nil)
	sb := NewSession("bank-b", "addr-b", []profile.Profile{profB}, testConfig(), bus, zap.NewNop(), nil)
	require.NoError(t, sv.Add(sa))
	require.NoError(t, sv.Add(sb))
	require.Error(t, sv.Add(NewSession("bank-a", "dup", nil, testConfig(), bus, zap.NewNop(), nil)))

	require.NoError(t, sv.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, sv.Stop(ctx))
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return conns["addr-a"] != nil && conns["addr-b"] != nil
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	ca, cb := conns["addr-a"], conns["addr-b"]
	mu.Unlock()
	for i := 0; i < 5; i++ {
		require.True(t, ca.Push(scriptFrame(0xA1, 10)))
		require.True(t, cb.Push(scriptFrame(0xB2, 20)))
	}

	require.Eventually(t, func() bool { return sink.readingCount() >= 10 },
		2*time.Second, 5*time.Millisecond)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for i, id := range sink.ids {
		v := *sink.readings[i].Voltage
		switch id {
		case "bank-a":
			require.Equal(t, 10.0, v, "reading attributed to wrong session")
		case "bank-b":
			require.Equal(t, 20.0, v, "reading attributed to wrong session")
		default:
			t.Fatalf("unknown device id %q", id)
		}
	}
}

// TestSupervisorReconnectsAfterDrop 断开后自动重连并重新探测
func TestSupervisorReconnectsAfterDrop(t *testing.T) {
	sink := &recordSink{}
	bus := NewBus(64, zap.NewNop(), nil)
	bus.Register("record", sink)
	defer bus.Close()

	var mu sync.Mutex
	var dials int
	var last *transport.LoopbackConn
	lb := transport.NewLoopback(func(addr string) (transport.Conn, error) {
		c := transport.NewLoopbackConn(32)
		mu.Lock()
		dials++
		last = c
		mu.Unlock()
		return c, nil
	})

	sv := NewSupervisor(lb, testReconnect(), zap.NewNop(), nil)
	p := &scriptProfile{id: "script", marker: 0xAB}
	s := NewSession("battery-1", "addr", []profile.Profile{p}, testConfig(), bus, zap.NewNop(), nil)
	require.NoError(t, sv.Add(s))
	require.NoError(t, sv.Start(context.Background()))
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, sv.Stop(ctx))
	}()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials == 1
	}, time.Second, 5*time.Millisecond)
	mu.Lock()
	first := last
	mu.Unlock()
	require.True(t, first.Push(scriptFrame(0xAB, 52)))
	require.Eventually(t, func() bool { return s.State() == coremodel.SessionStreaming },
		time.Second, 5*time.Millisecond)

	_ = first.Close()
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return dials >= 2
	}, 2*time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		st := s.State()
		return st == coremodel.SessionDetecting || st == coremodel.SessionStreaming
	}, time.Second, 5*time.Millisecond)
	require.True(t, sink.faultSeen(coremodel.FaultTransportDisconnected))
}

// TestSupervisorExhaustsReconnects 连接一直失败：达到上限后转终态
func TestSupervisorExhaustsReconnects(t *testing.T) {
	sink := &recordSink{}
	bus := NewBus(64, zap.NewNop(), nil)
	bus.Register("record", sink)
	defer bus.Close()

	lb := transport.NewLoopback(func(addr string) (transport.Conn, error) {
		return nil, errors.New("device unreachable")
	})

	cfg := testReconnect()
	cfg.MaxAttempts = 3
	sv := NewSupervisor(lb, cfg, zap.NewNop(), nil)
	p := &scriptProfile{id: "script", marker: 0xAB}
	s := NewSession("battery-1", "addr", []profile.Profile{p}, testConfig(), bus, zap.NewNop(), nil)
	require.NoError(t, sv.Add(s))
	require.NoError(t, sv.Start(context.Background()))

	require.Eventually(t, func() bool { return s.State() == coremodel.SessionClosed },
		2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return sink.faultSeen(coremodel.FaultReconnectExhausted)
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, sv.Stop(ctx))

	states := sv.States()
	require.Equal(t, coremodel.SessionClosed, states["battery-1"])
}
