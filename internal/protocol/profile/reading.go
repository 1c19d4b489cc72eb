package profile

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

// ErrFieldOutOfRange 字段越过合理性界限，整条读数作废（帧校验通过但内容不可信）
var ErrFieldOutOfRange = errors.New("field out of plausible range")

// 合理性界限；越界按坏读数处理而非截断
const (
	maxVoltageV    = 1000.0
	maxCurrentA    = 2000.0
	maxCellV       = 6.0
	minTempC       = -80.0
	maxTempC       = 200.0
	maxRemainingAh = 20000.0
)

// BuildReading 把一个轮询周期累计的原始字段换算为规范化读数。
// at 为完成该周期的最后一帧的出帧时刻。
// 任一已填充字段越界即返回 ErrFieldOutOfRange，调用方应丢弃整条读数。
func BuildReading(id coremodel.ProfileID, f *Fields, at time.Time) (*coremodel.Reading, error) {
	rd := &coremodel.Reading{At: at, Profile: id}

	if f.Voltage != nil {
		v := f.Voltage.Value()
		if err := checkRange("voltage", v, 0, maxVoltageV); err != nil {
			return nil, err
		}
		rd.Voltage = &v
	}
	if f.Current != nil {
		v := f.Current.Value()
		if err := checkRange("current", v, -maxCurrentA, maxCurrentA); err != nil {
			return nil, err
		}
		rd.Current = &v
	}
	if f.SOC != nil {
		v := f.SOC.Value()
		if err := checkRange("soc", v, 0, 100); err != nil {
			return nil, err
		}
		rd.SOC = &v
	}
	if f.RemainingAh != nil {
		v := f.RemainingAh.Value()
		if err := checkRange("remaining_ah", v, 0, maxRemainingAh); err != nil {
			return nil, err
		}
		rd.RemainingAh = &v
	}
	if f.Cycles != nil {
		c := *f.Cycles
		rd.Cycles = &c
	}

	limit := 0
	if f.CellCount != nil {
		limit = *f.CellCount
	}
	cells := f.orderedCells(limit)
	if len(cells) > 0 {
		lo, hi := cells[0], cells[0]
		for _, cv := range cells {
			if err := checkRange("cell", cv, 0, maxCellV); err != nil {
				return nil, err
			}
			if cv < lo {
				lo = cv
			}
			if cv > hi {
				hi = cv
			}
		}
		delta := hi - lo
		rd.Cells = cells
		rd.CellDelta = &delta
	}

	tlimit := 0
	if f.TempCount != nil {
		tlimit = *f.TempCount
	}
	temps := f.orderedTemps(tlimit)
	if len(temps) > 0 {
		for _, tv := range temps {
			if err := checkRange("temp", tv, minTempC, maxTempC); err != nil {
				return nil, err
			}
		}
		rd.Temps = temps
	}

	if len(f.Alarms) > 0 {
		rd.Alarms = append([]string(nil), f.Alarms...)
	}
	return rd, nil
}

func checkRange(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < lo || v > hi {
		return fmt.Errorf("%w: %s=%g", ErrFieldOutOfRange, name, v)
	}
	return nil
}
