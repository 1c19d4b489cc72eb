package alert

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// mockWebhook 捕获推送事件的 Webhook 服务器
type mockWebhook struct {
	*httptest.Server
	mu     sync.Mutex
	events []StandardEvent
}

func newMockWebhook(t *testing.T) *mockWebhook {
	t.Helper()
	mock := &mockWebhook{}
	mock.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer r.Body.Close()

		if r.Header.Get("X-Signature") == "" || r.Header.Get("X-Nonce") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var evt StandardEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		mock.mu.Lock()
		mock.events = append(mock.events, evt)
		mock.mu.Unlock()

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"code":0,"message":"success"}`))
	}))
	t.Cleanup(mock.Close)
	return mock
}

func (m *mockWebhook) types() []EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.EventType)
	}
	return out
}

func newTestNotifier(t *testing.T, mock *mockWebhook) *Notifier {
	t.Helper()
	cfg := NotifierConfig{
		WebhookURL: mock.URL + "/hook",
		SOCLow:     20,
		Timeout:    2 * time.Second,
	}
	return NewNotifier(cfg, NewPusher(nil, "key", "secret"), NewDeduper(nil, nil, time.Hour), nil, nil)
}

func soc(v float64) coremodel.Reading {
	return coremodel.Reading{At: time.Now(), Profile: coremodel.ProfileJBD, SOC: &v}
}

// SOC 告警必须是边沿触发：持续低电量不重复，恢复后再次跌破要再告
func TestNotifierSOCEdge(t *testing.T) {
	mock := newMockWebhook(t)
	n := newTestNotifier(t, mock)

	n.OnReading("bank-a", soc(25)) // 正常
	n.OnReading("bank-a", soc(15)) // 跌破 → soc_low
	n.OnReading("bank-a", soc(12)) // 仍低 → 无事件
	n.OnReading("bank-a", soc(30)) // 回升 → soc_recovered
	n.OnReading("bank-a", soc(10)) // 再次跌破 → soc_low

	require.Equal(t, []EventType{EventSOCLow, EventSOCRecovered, EventSOCLow}, mock.types())

	mock.mu.Lock()
	first := mock.events[0]
	mock.mu.Unlock()
	require.Equal(t, "bank-a", first.DeviceID)
	require.NotEmpty(t, first.EventID)
	require.Equal(t, float64(15), first.Data["soc"])
	require.Equal(t, float64(20), first.Data["threshold"])
}

// 保护标志告警在去重窗口内只推一次
func TestNotifierAlarmDeduped(t *testing.T) {
	mock := newMockWebhook(t)
	n := newTestNotifier(t, mock)

	rd := soc(50)
	rd.Alarms = []string{"cell_overvoltage"}
	n.OnReading("bank-a", rd)
	n.OnReading("bank-a", rd)

	require.Equal(t, []EventType{EventBatteryAlarm}, mock.types())
}

func TestNotifierFaultPerKind(t *testing.T) {
	mock := newMockWebhook(t)
	n := newTestNotifier(t, mock)

	n.OnFault("bank-a", coremodel.FaultTransportDisconnected, "read timeout")
	n.OnFault("bank-a", coremodel.FaultTransportDisconnected, "read timeout")
	n.OnFault("bank-a", coremodel.FaultNoMatchingProfile, "2048 bytes without frame")

	types := mock.types()
	require.Equal(t, []EventType{EventSessionFaulted, EventSessionFaulted}, types)

	mock.mu.Lock()
	defer mock.mu.Unlock()
	require.Equal(t, string(coremodel.FaultTransportDisconnected), mock.events[0].Data["kind"])
	require.Equal(t, string(coremodel.FaultNoMatchingProfile), mock.events[1].Data["kind"])
}

// 只有终态 closed 触发状态事件
func TestNotifierStateOnlyClosed(t *testing.T) {
	mock := newMockWebhook(t)
	n := newTestNotifier(t, mock)

	n.OnStateChange("bank-a", coremodel.SessionStreaming)
	n.OnStateChange("bank-a", coremodel.SessionFaulted)
	n.OnStateChange("bank-a", coremodel.SessionClosed)

	require.Equal(t, []EventType{EventSessionClosed}, mock.types())
}
