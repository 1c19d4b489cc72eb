package daly

import (
	"encoding/binary"
	"fmt"

	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

const (
	// 0x95 每帧 3 路电芯，最多 16 帧
	cellsPerFrame = 3
	maxCellFrames = 16
	// 0x96 每帧 7 路温度
	tempsPerFrame = 7
	maxTempFrames = 3
	// 温度原始值偏置 40 °C
	tempBias = 40
	// 电流原始值偏置 30000（0.1 A 单位，非补码）
	currentBias = 30000
)

// Decode 按命令回显分发；data 为帧内 8 字节数据区
func (d *BMS) Decode(frame []byte) (*profile.Fields, error) {
	if len(frame) != frameLen {
		return nil, fmt.Errorf("%w: %d bytes", profile.ErrTruncated, len(frame))
	}
	data := frame[4 : 4+dataLen]
	switch frame[2] {
	case cmdPackStats:
		return decodePackStats(data), nil
	case cmdMOSStatus:
		return decodeMOSStatus(data), nil
	case cmdPackInfo:
		return decodePackInfo(data), nil
	case cmdCellVolts:
		return decodeCellVolts(data)
	case cmdCellTemps:
		return decodeCellTemps(data)
	default:
		return nil, fmt.Errorf("%w: command 0x%02X", profile.ErrBadHeader, frame[2])
	}
}

// decodePackStats 0x90：总压 0.1 V、电流偏置 30000 的 0.1 A、SOC 0.1%
func decodePackStats(data []byte) *profile.Fields {
	f := &profile.Fields{}
	f.Voltage = &profile.Quantity{Raw: int64(binary.BigEndian.Uint16(data[0:2])), Scale: 0.1}
	f.Current = &profile.Quantity{Raw: int64(binary.BigEndian.Uint16(data[4:6])), Scale: 0.1, Bias: currentBias}
	f.SOC = &profile.Quantity{Raw: int64(binary.BigEndian.Uint16(data[6:8])), Scale: 0.1}
	return f
}

// decodeMOSStatus 0x93：剩余容量 mAh（u32）
func decodeMOSStatus(data []byte) *profile.Fields {
	f := &profile.Fields{}
	f.RemainingAh = &profile.Quantity{Raw: int64(binary.BigEndian.Uint32(data[4:8])), Scale: 0.001}
	return f
}

// decodePackInfo 0x94：电芯数、温度路数、循环次数
func decodePackInfo(data []byte) *profile.Fields {
	f := &profile.Fields{}
	cc := int(data[0])
	tc := int(data[1])
	cycles := int(binary.BigEndian.Uint16(data[5:7]))
	f.CellCount = &cc
	f.TempCount = &tc
	f.Cycles = &cycles
	return f
}

// decodeCellVolts 0x95：帧号 1 基，每帧 3 路 u16 毫伏
func decodeCellVolts(data []byte) (*profile.Fields, error) {
	no := int(data[0])
	if no < 1 || no > maxCellFrames {
		return nil, fmt.Errorf("%w: cell frame %d", profile.ErrBadHeader, no)
	}
	f := &profile.Fields{}
	base := (no - 1) * cellsPerFrame
	for j := 0; j < cellsPerFrame; j++ {
		raw := int64(binary.BigEndian.Uint16(data[1+2*j:]))
		f.SetCell(base+j, profile.Quantity{Raw: raw, Scale: 0.001})
	}
	return f, nil
}

// decodeCellTemps 0x96：帧号 1 基，每帧 7 路单字节，°C = 原始值 - 40
func decodeCellTemps(data []byte) (*profile.Fields, error) {
	no := int(data[0])
	if no < 1 || no > maxTempFrames {
		return nil, fmt.Errorf("%w: temp frame %d", profile.ErrBadHeader, no)
	}
	f := &profile.Fields{}
	base := (no - 1) * tempsPerFrame
	for j := 0; j < tempsPerFrame; j++ {
		f.SetTemp(base+j, profile.Quantity{Raw: int64(data[1+j]), Scale: 1, Bias: tempBias})
	}
	return f, nil
}
