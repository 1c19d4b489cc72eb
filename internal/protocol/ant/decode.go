package ant

import (
	"encoding/binary"
	"fmt"

	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

// 快照帧布局，偏移相对帧起点，数值大端
const (
	offVoltage   = 4   // u16, 0.1 V
	offCells     = 6   // 32 槽位 × u16 毫伏
	cellSlots    = 32
	offCurrent   = 70  // i32, 0.1 A, 正=充电
	offSOC       = 74  // u8, %
	offPhysCap   = 75  // u32, 微安时×10（除 1e6 得 Ah）
	offRemaining = 79  // u32, 同上
	offUptime    = 87  // u32, 秒
	offTemps     = 91  // 6 路 × i16, °C
	tempSlots    = 6
	offChargeMOS = 103 // u8 状态码
	offDisMOS    = 104
	offBalance   = 105
	offCellCount = 123 // u8
)

// Decode 全量快照一次解出；循环次数该协议不提供，保持缺失
func (a *BMS) Decode(frame []byte) (*profile.Fields, error) {
	if len(frame) != frameLen {
		return nil, fmt.Errorf("%w: %d bytes", profile.ErrTruncated, len(frame))
	}

	f := &profile.Fields{}
	f.Voltage = &profile.Quantity{Raw: int64(binary.BigEndian.Uint16(frame[offVoltage:])), Scale: 0.1}
	f.Current = &profile.Quantity{Raw: int64(int32(binary.BigEndian.Uint32(frame[offCurrent:]))), Scale: 0.1}
	f.SOC = &profile.Quantity{Raw: int64(frame[offSOC]), Scale: 1}
	f.RemainingAh = &profile.Quantity{Raw: int64(binary.BigEndian.Uint32(frame[offRemaining:])), Scale: 1e-6}

	cc := int(frame[offCellCount])
	if cc > cellSlots {
		return nil, fmt.Errorf("%w: %d cells declared", profile.ErrBadHeader, cc)
	}
	f.CellCount = &cc
	for i := 0; i < cc; i++ {
		raw := int64(binary.BigEndian.Uint16(frame[offCells+2*i:]))
		f.SetCell(i, profile.Quantity{Raw: raw, Scale: 0.001})
	}

	tc := tempSlots
	f.TempCount = &tc
	for i := 0; i < tempSlots; i++ {
		raw := int64(int16(binary.BigEndian.Uint16(frame[offTemps+2*i:])))
		f.SetTemp(i, profile.Quantity{Raw: raw, Scale: 1})
	}
	return f, nil
}
