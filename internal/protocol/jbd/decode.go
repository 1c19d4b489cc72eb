package jbd

import (
	"encoding/binary"
	"fmt"

	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

// 基本信息（0x03）载荷布局，偏移相对载荷起点，数值大端
const (
	offVoltage    = 0  // u16, 10 mV
	offCurrent    = 2  // i16 补码, 10 mA, 正=充电
	offRemaining  = 4  // u16, 10 mAh
	offNominal    = 6  // u16, 10 mAh
	offCycles     = 8  // u16
	offProdDate   = 10 // u16 位域日期
	offBalance    = 12 // u32 均衡状态位
	offProtection = 16 // u16 保护标志位
	offVersion    = 18 // u8
	offSOC        = 19 // u8, %
	offFET        = 20 // u8 bit0 充电 MOS bit1 放电 MOS
	offCellCount  = 21 // u8
	offNTCCount   = 22 // u8
	offNTC        = 23 // 每路 u16, 0.1 K
)

// Decode 按应答的寄存器回显分发到对应布局
func (b *BMS) Decode(frame []byte) (*profile.Fields, error) {
	if len(frame) < overhead {
		return nil, fmt.Errorf("%w: %d bytes", profile.ErrTruncated, len(frame))
	}
	if frame[2] == statusErr {
		return nil, fmt.Errorf("%w: register 0x%02X", profile.ErrBadStatus, frame[1])
	}
	payload := frame[headerLen : headerLen+int(frame[3])]
	switch frame[1] {
	case regBasicInfo:
		return b.decodeBasic(payload)
	case regCellVolts:
		return decodeCells(payload)
	default:
		return nil, fmt.Errorf("%w: register 0x%02X", profile.ErrBadHeader, frame[1])
	}
}

func (b *BMS) decodeBasic(payload []byte) (*profile.Fields, error) {
	if len(payload) < offNTC {
		return nil, fmt.Errorf("%w: basic payload %d bytes", profile.ErrTruncated, len(payload))
	}
	ntc := int(payload[offNTCCount])
	if len(payload) < offNTC+2*ntc {
		return nil, fmt.Errorf("%w: %d ntc declared, payload %d bytes", profile.ErrTruncated, ntc, len(payload))
	}

	f := &profile.Fields{}
	f.Voltage = &profile.Quantity{Raw: int64(binary.BigEndian.Uint16(payload[offVoltage:])), Scale: 0.01}
	f.Current = &profile.Quantity{Raw: int64(int16(binary.BigEndian.Uint16(payload[offCurrent:]))), Scale: 0.01}
	f.RemainingAh = &profile.Quantity{Raw: int64(binary.BigEndian.Uint16(payload[offRemaining:])), Scale: 0.01}
	cycles := int(binary.BigEndian.Uint16(payload[offCycles:]))
	f.Cycles = &cycles
	f.SOC = &profile.Quantity{Raw: int64(payload[offSOC]), Scale: 1}
	cc := int(payload[offCellCount])
	f.CellCount = &cc
	f.TempCount = &ntc
	for i := 0; i < ntc; i++ {
		// 0.1 K 绝对温标，2731 为 0 °C
		raw := int64(binary.BigEndian.Uint16(payload[offNTC+2*i:]))
		f.SetTemp(i, profile.Quantity{Raw: raw, Scale: 0.1, Bias: 2731})
	}
	f.Alarms = b.reasons.Describe(binary.BigEndian.Uint16(payload[offProtection:]))
	return f, nil
}

// decodeCells 0x04 应答：载荷为 len/2 路电芯电压，每路 u16 毫伏
func decodeCells(payload []byte) (*profile.Fields, error) {
	if len(payload) == 0 || len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: cell payload %d bytes", profile.ErrTruncated, len(payload))
	}
	f := &profile.Fields{}
	for i := 0; i < len(payload)/2; i++ {
		raw := int64(binary.BigEndian.Uint16(payload[2*i:]))
		f.SetCell(i, profile.Quantity{Raw: raw, Scale: 0.001})
	}
	return f, nil
}
