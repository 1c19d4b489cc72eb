package daly

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

func makeResponse(cmd byte, data []byte) []byte {
	frame := make([]byte, frameLen)
	frame[0] = startMarker
	frame[1] = bmsAddr
	frame[2] = cmd
	frame[3] = dataLen
	copy(frame[4:12], data)
	frame[12] = checksum(frame[:12])
	return frame
}

func packStatsFrame() []byte {
	data := make([]byte, 8)
	binary.BigEndian.PutUint16(data[0:2], 532)         // 53.2 V
	binary.BigEndian.PutUint16(data[4:6], 30000-123)   // -12.3 A
	binary.BigEndian.PutUint16(data[6:8], 870)         // 87.0 %
	return makeResponse(cmdPackStats, data)
}

func mosStatusFrame() []byte {
	data := make([]byte, 8)
	data[0] = 0x02 // 放电中
	binary.BigEndian.PutUint32(data[4:8], 76430)
	return makeResponse(cmdMOSStatus, data)
}

func packInfoFrame(cells, temps byte, cycles uint16) []byte {
	data := make([]byte, 8)
	data[0] = cells
	data[1] = temps
	binary.BigEndian.PutUint16(data[5:7], cycles)
	return makeResponse(cmdPackInfo, data)
}

func cellVoltFrame(no byte, mv [3]uint16) []byte {
	data := make([]byte, 8)
	data[0] = no
	for j, v := range mv {
		binary.BigEndian.PutUint16(data[1+2*j:], v)
	}
	return makeResponse(cmdCellVolts, data)
}

func cellTempFrame(no byte, degC []int) []byte {
	data := make([]byte, 8)
	data[0] = no
	for j, c := range degC {
		data[1+j] = byte(c + tempBias)
	}
	return makeResponse(cmdCellTemps, data)
}

func TestRequestBytes(t *testing.T) {
	reqs := New().Requests()
	if len(reqs) != 5 {
		t.Fatalf("expected 5 requests, got %d", len(reqs))
	}
	want := []byte{0xA5, 0x80, 0x90, 0x08, 0, 0, 0, 0, 0, 0, 0, 0, 0xBD}
	if !bytes.Equal(reqs[0], want) {
		t.Errorf("pack stats request = % X, want % X", reqs[0], want)
	}
	for _, req := range reqs {
		if len(req) != frameLen {
			t.Errorf("request length = %d, want %d", len(req), frameLen)
		}
		if got := checksum(req[:12]); req[12] != got {
			t.Errorf("request checksum %02X, want %02X", req[12], got)
		}
	}
}

func TestFrameSizeHeader(t *testing.T) {
	d := New()
	if _, err := d.FrameSize([]byte{startMarker, bmsAddr, 0x90}); !errors.Is(err, profile.ErrNeedMore) {
		t.Errorf("short header: got %v, want ErrNeedMore", err)
	}
	if _, err := d.FrameSize([]byte{startMarker, 0x40, 0x90, dataLen}); !errors.Is(err, profile.ErrBadHeader) {
		t.Errorf("wrong source address: got %v, want ErrBadHeader", err)
	}
	size, err := d.FrameSize(packStatsFrame()[:4])
	if err != nil || size != frameLen {
		t.Errorf("FrameSize = %d, %v; want 13, nil", size, err)
	}
}

func TestValidate(t *testing.T) {
	d := New()
	frame := packStatsFrame()
	if err := d.Validate(frame); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}
	bad := append([]byte(nil), frame...)
	bad[5] ^= 0x01
	if err := d.Validate(bad); !errors.Is(err, profile.ErrBadChecksum) {
		t.Errorf("corrupted frame: got %v, want checksum error", err)
	}
}

func TestDecodePackStats(t *testing.T) {
	f, err := New().Decode(packStatsFrame())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Abs(f.Voltage.Value()-53.2) > 1e-9 {
		t.Errorf("voltage = %v, want 53.2", f.Voltage.Value())
	}
	if math.Abs(f.Current.Value()-(-12.3)) > 1e-9 {
		t.Errorf("current = %v, want -12.3", f.Current.Value())
	}
	if math.Abs(f.SOC.Value()-87.0) > 1e-9 {
		t.Errorf("soc = %v, want 87.0", f.SOC.Value())
	}
}

func TestDecodeBadCellFrameNo(t *testing.T) {
	_, err := New().Decode(cellVoltFrame(0, [3]uint16{}))
	if !errors.Is(err, profile.ErrBadHeader) {
		t.Errorf("frame number 0: got %v, want ErrBadHeader", err)
	}
}

// TestFullCycleReading 五类帧合并：16 芯需要 6 个 0x95 帧，最后一帧含补零槽位
func TestFullCycleReading(t *testing.T) {
	d := New()
	acc := &profile.Fields{}
	feed := func(frame []byte) {
		t.Helper()
		f, err := d.Decode(frame)
		if err != nil {
			t.Fatalf("decode % X: %v", frame, err)
		}
		acc.Merge(f)
	}

	feed(packStatsFrame())
	feed(mosStatusFrame())
	feed(packInfoFrame(16, 2, 42))
	if d.CycleComplete(acc) {
		t.Fatal("cycle complete before cell frames")
	}
	for no := byte(1); no <= 6; no++ {
		var mv [3]uint16
		for j := range mv {
			idx := int(no-1)*3 + j
			if idx < 16 {
				mv[j] = uint16(3270 + idx)
			}
		}
		feed(cellVoltFrame(no, mv))
	}
	if d.CycleComplete(acc) {
		t.Fatal("cycle complete before temp frames")
	}
	feed(cellTempFrame(1, []int{25, 26, 0, 0, 0, 0, 0}))
	if !d.CycleComplete(acc) {
		t.Fatal("cycle not complete after all frames")
	}

	rd, err := profile.BuildReading(d.ID(), acc, time.Now())
	if err != nil {
		t.Fatalf("build reading: %v", err)
	}
	if math.Abs(*rd.Voltage-53.2) > 1e-3 {
		t.Errorf("voltage = %v", *rd.Voltage)
	}
	if math.Abs(*rd.RemainingAh-76.43) > 1e-3 {
		t.Errorf("remaining = %v, want 76.43", *rd.RemainingAh)
	}
	if *rd.Cycles != 42 {
		t.Errorf("cycles = %d, want 42", *rd.Cycles)
	}
	// 声明 16 芯：第 6 帧的补零槽位必须被截掉
	if len(rd.Cells) != 16 {
		t.Fatalf("cells = %d, want 16", len(rd.Cells))
	}
	if math.Abs(*rd.CellDelta-0.015) > 1e-9 {
		t.Errorf("cell delta = %v, want 0.015", *rd.CellDelta)
	}
	// 声明 2 路温度：其余 5 个补零槽位同样被截掉
	if len(rd.Temps) != 2 || rd.Temps[0] != 25 || rd.Temps[1] != 26 {
		t.Errorf("temps = %v, want [25 26]", rd.Temps)
	}
}
