// Package ant 实现 ANT-BMS 的 BLE 协议档案。
// 单条状态请求换回一个 140 字节全量快照帧，无需多帧合并。
package ant

import (
	"fmt"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

// GATT 特征（16 位短 UUID）；ANT 读写共用一个特征
const (
	ServiceUUID = "ffe0"
	NotifyUUID  = "ffe1"
	WriteUUID   = "ffe1"
)

var (
	startMarker   = []byte{0xAA, 0x55, 0xAA, 0xFF}
	statusRequest = []byte{0xDB, 0xDB, 0x00, 0x00, 0x00, 0x00}
)

const (
	frameLen = 140
	// 校验覆盖区间 [4:138)，和为 u16 大端存于帧尾
	checksumFrom = 4
	checksumAt   = 138
)

// BMS ANT 协议档案
type BMS struct{}

func New() *BMS { return &BMS{} }

func (a *BMS) ID() coremodel.ProfileID { return coremodel.ProfileANT }

func (a *BMS) StartMarker() []byte { return startMarker }

func (a *BMS) MinHeader() int { return len(startMarker) }

func (a *BMS) MaxFrameSize() int { return frameLen }

func (a *BMS) FrameSize(header []byte) (int, error) {
	if len(header) < len(startMarker) {
		return 0, profile.ErrNeedMore
	}
	return frameLen, nil
}

func (a *BMS) Validate(frame []byte) error {
	if len(frame) != frameLen {
		return fmt.Errorf("%w: %d bytes", profile.ErrTruncated, len(frame))
	}
	want := checksum(frame[checksumFrom:checksumAt])
	got := uint16(frame[checksumAt])<<8 | uint16(frame[checksumAt+1])
	if want != got {
		return fmt.Errorf("%w: want %04X got %04X", profile.ErrBadChecksum, want, got)
	}
	return nil
}

func (a *BMS) Requests() [][]byte {
	return [][]byte{append([]byte(nil), statusRequest...)}
}

// CycleComplete 快照帧自足，解码即完整
func (a *BMS) CycleComplete(f *profile.Fields) bool {
	return f.Voltage != nil
}

func checksum(data []byte) uint16 {
	var sum uint32
	for _, b := range data {
		sum += uint32(b)
	}
	return uint16(sum)
}
