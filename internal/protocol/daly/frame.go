// Package daly 实现 Daly 智能 BMS 的 BLE 协议档案。
// 上下行都是 13 字节定长帧：起始 0xA5 + 地址 + 命令 + 长度 8 + 8 字节数据 + 和校验。
package daly

import (
	"fmt"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

// GATT 特征（16 位短 UUID）
const (
	ServiceUUID = "fff0"
	NotifyUUID  = "fff1"
	WriteUUID   = "fff2"
)

const (
	startMarker = 0xA5
	hostAddr    = 0x80 // 主机 → BMS
	bmsAddr     = 0x01 // BMS → 主机
	dataLen     = 8
	frameLen    = 13

	cmdPackStats = 0x90 // 总压/电流/SOC
	cmdMOSStatus = 0x93 // 充放状态 + 剩余容量
	cmdPackInfo  = 0x94 // 电芯数/温度数/循环次数
	cmdCellVolts = 0x95 // 逐芯电压，每帧 3 路
	cmdCellTemps = 0x96 // 逐路温度，每帧 7 路
)

// BMS Daly 协议档案
type BMS struct{}

func New() *BMS { return &BMS{} }

func (d *BMS) ID() coremodel.ProfileID { return coremodel.ProfileDaly }

func (d *BMS) StartMarker() []byte { return []byte{startMarker} }

func (d *BMS) MinHeader() int { return 4 }

func (d *BMS) MaxFrameSize() int { return frameLen }

// FrameSize 定长 13 字节；应答必须来自 BMS 地址且长度字段为 8
func (d *BMS) FrameSize(header []byte) (int, error) {
	if len(header) < 4 {
		return 0, profile.ErrNeedMore
	}
	if header[1] != bmsAddr || header[3] != dataLen {
		return 0, profile.ErrBadHeader
	}
	return frameLen, nil
}

// Validate 末字节为前 12 字节和的低 8 位
func (d *BMS) Validate(frame []byte) error {
	if len(frame) != frameLen {
		return fmt.Errorf("%w: %d bytes", profile.ErrTruncated, len(frame))
	}
	if want, got := checksum(frame[:frameLen-1]), frame[frameLen-1]; want != got {
		return fmt.Errorf("%w: want %02X got %02X", profile.ErrBadChecksum, want, got)
	}
	return nil
}

// Requests 轮询周期五连发：组信息、状态、配置、逐芯电压、逐路温度
func (d *BMS) Requests() [][]byte {
	return [][]byte{
		buildRequest(cmdPackStats),
		buildRequest(cmdMOSStatus),
		buildRequest(cmdPackInfo),
		buildRequest(cmdCellVolts),
		buildRequest(cmdCellTemps),
	}
}

// CycleComplete 组级数据齐备，且逐芯/逐温分帧已覆盖声明路数
func (d *BMS) CycleComplete(f *profile.Fields) bool {
	if f.Voltage == nil || f.CellCount == nil || f.TempCount == nil {
		return false
	}
	return f.CellsSeen() >= *f.CellCount && f.TempsSeen() >= *f.TempCount
}

func buildRequest(cmd byte) []byte {
	frame := make([]byte, frameLen)
	frame[0] = startMarker
	frame[1] = hostAddr
	frame[2] = cmd
	frame[3] = dataLen
	frame[frameLen-1] = checksum(frame[:frameLen-1])
	return frame
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}
