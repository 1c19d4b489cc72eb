package gormrepo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/driller442/BatteryHub/internal/storage"
	"github.com/driller442/BatteryHub/internal/storage/models"
)

// Repository 基于 GORM 的 Registry 实现
type Repository struct {
	db *gorm.DB
}

// New 返回一个使用给定 *gorm.DB 的 Registry 实例
func New(db *gorm.DB) storage.Registry {
	return &Repository{db: db}
}

// EnsureDevice 若设备不存在则插入；存在则以配置为准刷新地址与名称
func (r *Repository) EnsureDevice(ctx context.Context, deviceID, address, name string) (*models.Device, error) {
	record := &models.Device{
		DeviceID: deviceID,
		Address:  address,
	}
	if name != "" {
		record.Name = &name
	}

	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "device_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"address":    gorm.Expr("excluded.address"),
				"name":       gorm.Expr("excluded.name"),
				"updated_at": gorm.Expr("NOW()"),
			}),
		}).
		Create(record).Error
	if err != nil {
		return nil, err
	}

	return r.GetDevice(ctx, deviceID)
}

// TouchDeviceSeen 刷新设备最近读数时间与会话状态。
// 仅更新已注册设备；未注册返回 gorm.ErrRecordNotFound。
func (r *Repository) TouchDeviceSeen(ctx context.Context, deviceID string, at time.Time, state string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]interface{}{
			"last_seen_at": at,
			"last_state":   state,
			"updated_at":   gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateDeviceState 仅刷新会话状态；last_seen_at 由读数驱动，状态流转不碰它
func (r *Repository) UpdateDeviceState(ctx context.Context, deviceID, state string) error {
	res := r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]interface{}{
			"last_state": state,
			"updated_at": gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetPinnedProfile 固定设备协议档案；profile 为空串时解除固定（写入 NULL）
func (r *Repository) SetPinnedProfile(ctx context.Context, deviceID, profile string) error {
	var val interface{}
	if profile != "" {
		val = profile
	}

	res := r.db.WithContext(ctx).
		Model(&models.Device{}).
		Where("device_id = ?", deviceID).
		Updates(map[string]interface{}{
			"pinned_profile": val,
			"updated_at":     gorm.Expr("NOW()"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetDevice 通过逻辑 ID 查询设备
func (r *Repository) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	var device models.Device
	err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return &device, err
}

// ListDevices 返回全部设备，按 device_id 升序
func (r *Repository) ListDevices(ctx context.Context) ([]models.Device, error) {
	var devices []models.Device
	if err := r.db.WithContext(ctx).Order("device_id ASC").Find(&devices).Error; err != nil {
		return nil, err
	}
	return devices, nil
}
