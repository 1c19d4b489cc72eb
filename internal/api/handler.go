// Package api 暴露只读查询接口：设备列表、最新读数、历史趋势。
// 数据来自内存状态缓存与可选的历史库，接口本身不触发任何设备交互。
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/driller442/BatteryHub/internal/config"
	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/sink/state"
	"github.com/driller442/BatteryHub/internal/storage"
	"github.com/driller442/BatteryHub/internal/storage/models"
	pgstorage "github.com/driller442/BatteryHub/internal/storage/pg"
)

// timeLayout 趋势接口的时间戳格式，与CSV日志保持一致
const timeLayout = "2006-01-02 15:04:05"

// ReadingHistory 历史趋势查询；database.enabled=false 时为 nil
type ReadingHistory interface {
	History(ctx context.Context, deviceID coremodel.DeviceID, since time.Time, limit int) ([]pgstorage.HistoryPoint, error)
}

// Handler 只读API处理器
type Handler struct {
	states   *state.Holder
	history  ReadingHistory
	registry storage.Registry
	devices  []config.DeviceConfig
	logger   *zap.Logger
}

// NewHandler 创建只读API处理器。history 与 registry 可为 nil（未启用数据库）。
func NewHandler(
	states *state.Holder,
	history ReadingHistory,
	registry storage.Registry,
	devices []config.DeviceConfig,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		states:   states,
		history:  history,
		registry: registry,
		devices:  devices,
		logger:   logger,
	}
}

// deviceSummary 设备列表项
type deviceSummary struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
	// Profile 配置钉定或向导固定的协议档案；空为自动探测
	Profile    string     `json:"profile,omitempty"`
	State      string     `json:"state,omitempty"`
	Voltage    *float64   `json:"voltage,omitempty"`
	SOC        *float64   `json:"soc,omitempty"`
	LastFault  string     `json:"last_fault,omitempty"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

// ListDevices 查询设备列表
// @Summary 查询受管设备列表
// @Description 配置中的全部设备，叠加实时会话状态与注册表持久化字段
// @Tags 设备查询
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} map[string]interface{} "成功"
// @Router /api/devices [get]
func (h *Handler) ListDevices(c *gin.Context) {
	snap := h.states.Snapshot()

	// 注册表可用时叠加持久化字段（固定档案、最近在线时间）
	persisted := map[string]models.Device{}
	if h.registry != nil {
		rows, err := h.registry.ListDevices(c.Request.Context())
		if err != nil {
			h.logger.Warn("查询设备注册表失败", zap.Error(err))
		}
		for _, d := range rows {
			persisted[d.DeviceID] = d
		}
	}

	// 初始化为空数组，避免JSON序列化为null
	list := []deviceSummary{}
	for _, dev := range h.devices {
		item := deviceSummary{
			ID:      dev.ID,
			Name:    dev.Name,
			Address: dev.Address,
			Profile: dev.Profile,
		}

		if st, ok := snap[coremodel.DeviceID(dev.ID)]; ok {
			item.State = string(st.State)
			item.LastFault = string(st.LastFault)
			if !st.UpdatedAt.IsZero() {
				at := st.UpdatedAt
				item.UpdatedAt = &at
			}
			if rd := st.Reading; rd != nil {
				item.Voltage = rd.Voltage
				item.SOC = rd.SOC
				if item.Profile == "" {
					item.Profile = string(rd.Profile)
				}
			}
		}

		if d, ok := persisted[dev.ID]; ok {
			item.LastSeenAt = d.LastSeenAt
			if item.Profile == "" && d.PinnedProfile != nil {
				item.Profile = *d.PinnedProfile
			}
			if item.Name == "" && d.Name != nil {
				item.Name = *d.Name
			}
		}

		list = append(list, item)
	}

	c.JSON(http.StatusOK, gin.H{"devices": list})
}

// GetLatest 查询设备最新状态
// @Summary 查询设备最新读数与会话状态
// @Description 返回内存缓存的最新快照；启动后尚无数据的设备返回历史库种子读数
// @Tags 设备查询
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId path string true "设备逻辑ID"
// @Success 200 {object} state.DeviceState "成功"
// @Router /api/devices/{deviceId}/latest [get]
func (h *Handler) GetLatest(c *gin.Context) {
	id := coremodel.DeviceID(c.Param("deviceId"))

	st, ok := h.states.Latest(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// historyResponse 趋势数据，按列组织；缺失字段为 null
type historyResponse struct {
	Timestamps []string   `json:"timestamps"`
	Voltage    []*float64 `json:"voltage"`
	Current    []*float64 `json:"current"`
	SOC        []*float64 `json:"soc"`
}

// GetHistory 查询设备历史趋势
// @Summary 查询设备历史趋势
// @Description 按时间升序返回电压/电流/SOC数组，供前端图表直接使用
// @Tags 设备查询
// @Produce json
// @Security ApiKeyAuth
// @Param deviceId path string true "设备逻辑ID"
// @Param hours query int false "回溯小时数(默认24，0表示全部)"
// @Success 200 {object} historyResponse "成功"
// @Router /api/devices/{deviceId}/history [get]
func (h *Handler) GetHistory(c *gin.Context) {
	if h.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "history store disabled"})
		return
	}

	id := coremodel.DeviceID(c.Param("deviceId"))

	hours := 24
	if v := c.Query("hours"); v != "" {
		if vv, e := strconv.Atoi(v); e == nil {
			hours = vv
		}
	}

	var since time.Time
	if hours > 0 {
		since = time.Now().Add(-time.Duration(hours) * time.Hour)
	}

	points, err := h.history.History(c.Request.Context(), id, since, 0)
	if err != nil {
		h.logger.Error("查询读数历史失败",
			zap.String("device", string(id)),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return
	}

	resp := historyResponse{
		Timestamps: make([]string, 0, len(points)),
		Voltage:    make([]*float64, 0, len(points)),
		Current:    make([]*float64, 0, len(points)),
		SOC:        make([]*float64, 0, len(points)),
	}
	for _, p := range points {
		resp.Timestamps = append(resp.Timestamps, p.At.Format(timeLayout))
		resp.Voltage = append(resp.Voltage, p.Voltage)
		resp.Current = append(resp.Current, p.Current)
		resp.SOC = append(resp.SOC, p.SOC)
	}

	c.JSON(http.StatusOK, resp)
}
