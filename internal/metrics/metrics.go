package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// AppMetrics 自定义业务指标
type AppMetrics struct {
	BLEBytesReceived prometheus.Counter
	FrameTotal       *prometheus.CounterVec // labels: profile, result=ok|checksum
	DecodeTotal      *prometheus.CounterVec // labels: profile, result=ok|error
	ReadingTotal     *prometheus.CounterVec // labels: device
	ReadingDropped   *prometheus.CounterVec // labels: device, reason
	FaultTotal       *prometheus.CounterVec // labels: device, kind
	SessionState     *prometheus.GaugeVec   // labels: device, state；当前态为 1 其余为 0
	ReconnectTotal   *prometheus.CounterVec // labels: device
	DemoteTotal      *prometheus.CounterVec // labels: device
	PollWriteTotal   *prometheus.CounterVec // labels: device
	SinkDropped      *prometheus.CounterVec // labels: sink
	AlertPushTotal   *prometheus.CounterVec // labels: event_type, result=success|failed|dedup
}

// NewAppMetrics 注册并返回业务指标
func NewAppMetrics(reg *prometheus.Registry) *AppMetrics {
	m := &AppMetrics{
		BLEBytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ble_bytes_received_total",
			Help: "Total notification payload bytes received over BLE.",
		}),
		FrameTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frame_total",
			Help: "Reassembled frames by profile and validation result.",
		}, []string{"profile", "result"}),
		DecodeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "decode_total",
			Help: "Frame decode attempts by profile.",
		}, []string{"profile", "result"}),
		ReadingTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reading_total",
			Help: "Canonical readings produced per device.",
		}, []string{"device"}),
		ReadingDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reading_dropped_total",
			Help: "Readings dropped before publication.",
		}, []string{"device", "reason"}),
		FaultTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fault_total",
			Help: "Session faults by kind.",
		}, []string{"device", "kind"}),
		SessionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "session_state",
			Help: "Session state indicator, 1 for the current state.",
		}, []string{"device", "state"}),
		ReconnectTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reconnect_total",
			Help: "Reconnect attempts per device.",
		}, []string{"device"}),
		DemoteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_demote_total",
			Help: "Confirmed profiles demoted back to detection.",
		}, []string{"device"}),
		PollWriteTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "poll_write_total",
			Help: "Request frames written to devices.",
		}, []string{"device"}),
		SinkDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sink_dropped_total",
			Help: "Events dropped on saturated sink queues.",
		}, []string{"sink"}),
		AlertPushTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alert_push_total",
			Help: "Webhook alert pushes by event type and result.",
		}, []string{"event_type", "result"}),
	}
	reg.MustRegister(
		m.BLEBytesReceived, m.FrameTotal, m.DecodeTotal,
		m.ReadingTotal, m.ReadingDropped, m.FaultTotal,
		m.SessionState, m.ReconnectTotal, m.DemoteTotal,
		m.PollWriteTotal, m.SinkDropped, m.AlertPushTotal,
	)
	return m
}

// sessionStates SetSessionState 翻转用的全量状态列表
var sessionStates = []coremodel.SessionState{
	coremodel.SessionDetecting,
	coremodel.SessionStreaming,
	coremodel.SessionFaulted,
	coremodel.SessionClosed,
}

// SetSessionState 把指定设备的状态指示置为 cur，其余状态清零
func (m *AppMetrics) SetSessionState(id coremodel.DeviceID, cur coremodel.SessionState) {
	for _, st := range sessionStates {
		v := 0.0
		if st == cur {
			v = 1.0
		}
		m.SessionState.WithLabelValues(string(id), string(st)).Set(v)
	}
}
