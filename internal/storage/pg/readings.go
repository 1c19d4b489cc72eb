package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// ReadingsRepo 读数时序仓储（readings 表）
type ReadingsRepo struct {
	Pool *pgxpool.Pool
}

// Insert 追加一条读数。可选字段为 nil 时写入 NULL，与 0 值严格区分。
func (r *ReadingsRepo) Insert(ctx context.Context, deviceID coremodel.DeviceID, rd *coremodel.Reading) error {
	const q = `INSERT INTO readings
               (device_id, at, profile, voltage_v, current_a, soc_pct, remaining_ah, cycles, cell_delta_v, cells_v, temps_c, alarms)
               VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`
	_, err := r.Pool.Exec(ctx, q,
		string(deviceID), rd.At, string(rd.Profile),
		rd.Voltage, rd.Current, rd.SOC, rd.RemainingAh, rd.Cycles, rd.CellDelta,
		rd.Cells, rd.Temps, rd.Alarms)
	return err
}

// HistoryPoint 历史趋势查询的精简投影
type HistoryPoint struct {
	At      time.Time `json:"at"`
	Voltage *float64  `json:"voltage"`
	Current *float64  `json:"current"`
	SOC     *float64  `json:"soc"`
}

// History 返回 since 之后的读数，按时间升序，最多 limit 条
func (r *ReadingsRepo) History(ctx context.Context, deviceID coremodel.DeviceID, since time.Time, limit int) ([]HistoryPoint, error) {
	if limit <= 0 {
		limit = 10000
	}
	const q = `SELECT at, voltage_v, current_a, soc_pct
               FROM readings WHERE device_id=$1 AND at >= $2
               ORDER BY at ASC LIMIT $3`
	rows, err := r.Pool.Query(ctx, q, string(deviceID), since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []HistoryPoint
	for rows.Next() {
		var p HistoryPoint
		if err := rows.Scan(&p.At, &p.Voltage, &p.Current, &p.SOC); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// Latest 返回设备最近一条完整读数（若无返回 nil, nil），用于启动时恢复最新状态
func (r *ReadingsRepo) Latest(ctx context.Context, deviceID coremodel.DeviceID) (*coremodel.Reading, error) {
	const q = `SELECT at, profile, voltage_v, current_a, soc_pct, remaining_ah, cycles, cell_delta_v, cells_v, temps_c, alarms
               FROM readings WHERE device_id=$1
               ORDER BY at DESC LIMIT 1`
	var (
		rd      coremodel.Reading
		profile string
	)
	err := r.Pool.QueryRow(ctx, q, string(deviceID)).Scan(
		&rd.At, &profile,
		&rd.Voltage, &rd.Current, &rd.SOC, &rd.RemainingAh, &rd.Cycles, &rd.CellDelta,
		&rd.Cells, &rd.Temps, &rd.Alarms)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rd.Profile = coremodel.ProfileID(profile)
	return &rd, nil
}
