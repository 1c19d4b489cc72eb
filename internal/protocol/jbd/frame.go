// Package jbd 实现 JBD（佳百达/Xiaoxiang）智能 BMS 的 BLE 协议档案。
// 读请求经 0xFF02 特征写入，应答按通知分片自 0xFF01 返回。
package jbd

import (
	"fmt"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

// GATT 特征（16 位短 UUID）
const (
	ServiceUUID = "ff00"
	NotifyUUID  = "ff01"
	WriteUUID   = "ff02"
)

const (
	startMarker = 0xDD
	endMarker   = 0x77
	cmdRead     = 0xA5

	regBasicInfo = 0x03
	regCellVolts = 0x04

	statusOK  = 0x00
	statusErr = 0x80

	// 应答：DD reg status len payload... chkH chkL 77
	headerLen  = 4
	maxPayload = 0xFF
	overhead   = headerLen + 3 // 校验 2 字节 + 结束符
)

// BMS JBD 协议档案；reasons 负责保护标志位到平台描述的映射
type BMS struct {
	reasons *ReasonMap
}

// New 构造档案；reasons 为 nil 时使用内置默认映射
func New(reasons *ReasonMap) *BMS {
	if reasons == nil {
		reasons = DefaultReasonMap()
	}
	return &BMS{reasons: reasons}
}

func (b *BMS) ID() coremodel.ProfileID { return coremodel.ProfileJBD }

func (b *BMS) StartMarker() []byte { return []byte{startMarker} }

func (b *BMS) MinHeader() int { return headerLen }

func (b *BMS) MaxFrameSize() int { return maxPayload + overhead }

// FrameSize 帧总长 = 头 4 字节 + 载荷 len + 校验 2 + 结束符 1
func (b *BMS) FrameSize(header []byte) (int, error) {
	if len(header) < headerLen {
		return 0, profile.ErrNeedMore
	}
	if header[0] != startMarker {
		return 0, profile.ErrBadHeader
	}
	return int(header[3]) + overhead, nil
}

// Validate 校验结束符与校验和；校验和覆盖 status、len 与载荷
func (b *BMS) Validate(frame []byte) error {
	if len(frame) < overhead {
		return fmt.Errorf("%w: %d bytes", profile.ErrTruncated, len(frame))
	}
	plen := int(frame[3])
	if len(frame) != plen+overhead {
		return fmt.Errorf("%w: payload %d, frame %d", profile.ErrTruncated, plen, len(frame))
	}
	if frame[len(frame)-1] != endMarker {
		return fmt.Errorf("%w: missing end byte", profile.ErrBadHeader)
	}
	want := checksum(frame[2 : headerLen+plen])
	got := uint16(frame[headerLen+plen])<<8 | uint16(frame[headerLen+plen+1])
	if want != got {
		return fmt.Errorf("%w: want %04X got %04X", profile.ErrBadChecksum, want, got)
	}
	return nil
}

// Requests 一个轮询周期：先基本信息（0x03）再逐芯电压（0x04）
func (b *BMS) Requests() [][]byte {
	return [][]byte{buildRequest(regBasicInfo), buildRequest(regCellVolts)}
}

// CycleComplete 组级数据与电芯数据都已合入
func (b *BMS) CycleComplete(f *profile.Fields) bool {
	return f.Voltage != nil && f.CellsSeen() > 0
}

// buildRequest 读请求：DD A5 reg 00 chkH chkL 77
func buildRequest(reg byte) []byte {
	chk := checksum([]byte{reg, 0x00})
	return []byte{startMarker, cmdRead, reg, 0x00, byte(chk >> 8), byte(chk), endMarker}
}

// checksum 0x10000 减去字节和的低 16 位
func checksum(data []byte) uint16 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return uint16(0x10000 - sum)
}
