package state

import (
	"sync"
	"time"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// DeviceState 单设备最新运行快照
type DeviceState struct {
	State coremodel.SessionState `json:"state"`
	// Reading 最近一条读数；可能来自上次运行（启动时从历史库恢复）
	Reading     *coremodel.Reading  `json:"reading,omitempty"`
	LastFault   coremodel.FaultKind `json:"last_fault,omitempty"`
	FaultDetail string              `json:"fault_detail,omitempty"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Holder 持有每个设备的最新读数与会话状态，供查询接口读取。
// 实现 device.Sink；写入由总线分发 goroutine 串行驱动。
type Holder struct {
	mu   sync.RWMutex
	byID map[coremodel.DeviceID]*DeviceState

	now func() time.Time
}

func NewHolder() *Holder {
	return &Holder{
		byID: make(map[coremodel.DeviceID]*DeviceState),
		now:  time.Now,
	}
}

// Seed 启动时写入历史库中的最后读数，让查询接口在首轮采集前就有数据。
// 仅在设备尚无内存状态时生效，绝不覆盖运行中产生的读数。
func (h *Holder) Seed(id coremodel.DeviceID, rd *coremodel.Reading) {
	if rd == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.byID[id]; ok {
		return
	}
	h.byID[id] = &DeviceState{Reading: rd, UpdatedAt: rd.At}
}

func (h *Holder) OnReading(id coremodel.DeviceID, r coremodel.Reading) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.ensure(id)
	st.Reading = &r
	st.UpdatedAt = h.now()
}

func (h *Holder) OnFault(id coremodel.DeviceID, kind coremodel.FaultKind, detail string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.ensure(id)
	st.LastFault = kind
	st.FaultDetail = detail
	st.UpdatedAt = h.now()
}

func (h *Holder) OnStateChange(id coremodel.DeviceID, state coremodel.SessionState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.ensure(id)
	st.State = state
	// 回到流式说明故障已解除
	if state == coremodel.SessionStreaming {
		st.LastFault = ""
		st.FaultDetail = ""
	}
	st.UpdatedAt = h.now()
}

// Latest 返回设备当前快照的副本
func (h *Holder) Latest(id coremodel.DeviceID) (DeviceState, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	st, ok := h.byID[id]
	if !ok {
		return DeviceState{}, false
	}
	return *st, true
}

// Snapshot 返回全部设备快照的副本
func (h *Holder) Snapshot() map[coremodel.DeviceID]DeviceState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[coremodel.DeviceID]DeviceState, len(h.byID))
	for id, st := range h.byID {
		out[id] = *st
	}
	return out
}

func (h *Holder) ensure(id coremodel.DeviceID) *DeviceState {
	st, ok := h.byID[id]
	if !ok {
		st = &DeviceState{}
		h.byID[id] = st
	}
	return st
}
