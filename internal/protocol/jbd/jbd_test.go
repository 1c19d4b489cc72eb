package jbd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

// makeResponse 构造一条合法应答帧
func makeResponse(reg, status byte, payload []byte) []byte {
	frame := []byte{startMarker, reg, status, byte(len(payload))}
	frame = append(frame, payload...)
	chk := checksum(frame[2:])
	frame = append(frame, byte(chk>>8), byte(chk), endMarker)
	return frame
}

// basicPayload 组基本信息载荷：52.4 V、-12.3 A、76.43 Ah、42 循环、SOC 87%、
// 16 芯、2 路温度（25.0 / 26.5 °C）
func basicPayload(protection uint16) []byte {
	p := make([]byte, 27)
	binary.BigEndian.PutUint16(p[offVoltage:], 5240)
	current := int16(-1230)
	binary.BigEndian.PutUint16(p[offCurrent:], uint16(current))
	binary.BigEndian.PutUint16(p[offRemaining:], 7643)
	binary.BigEndian.PutUint16(p[offNominal:], 10000)
	binary.BigEndian.PutUint16(p[offCycles:], 42)
	binary.BigEndian.PutUint16(p[offProtection:], protection)
	p[offVersion] = 0x25
	p[offSOC] = 87
	p[offFET] = 0x03
	p[offCellCount] = 16
	p[offNTCCount] = 2
	binary.BigEndian.PutUint16(p[offNTC:], 2981)   // 25.0 °C
	binary.BigEndian.PutUint16(p[offNTC+2:], 2996) // 26.5 °C
	return p
}

func cellPayload(n int, baseMV uint16) []byte {
	p := make([]byte, 2*n)
	for i := 0; i < n; i++ {
		binary.BigEndian.PutUint16(p[2*i:], baseMV+uint16(i))
	}
	return p
}

func TestRequestBytes(t *testing.T) {
	reqs := New(nil).Requests()
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	wantBasic := []byte{0xDD, 0xA5, 0x03, 0x00, 0xFF, 0xFD, 0x77}
	wantCells := []byte{0xDD, 0xA5, 0x04, 0x00, 0xFF, 0xFC, 0x77}
	if !bytes.Equal(reqs[0], wantBasic) {
		t.Errorf("basic request = % X, want % X", reqs[0], wantBasic)
	}
	if !bytes.Equal(reqs[1], wantCells) {
		t.Errorf("cell request = % X, want % X", reqs[1], wantCells)
	}
}

func TestValidate(t *testing.T) {
	b := New(nil)
	frame := makeResponse(regBasicInfo, statusOK, basicPayload(0))
	if err := b.Validate(frame); err != nil {
		t.Fatalf("valid frame rejected: %v", err)
	}

	bad := append([]byte(nil), frame...)
	bad[10] ^= 0xFF
	if err := b.Validate(bad); !errors.Is(err, profile.ErrBadChecksum) {
		t.Errorf("corrupted frame: got %v, want checksum error", err)
	}

	noEnd := append([]byte(nil), frame...)
	noEnd[len(noEnd)-1] = 0x00
	if err := b.Validate(noEnd); err == nil {
		t.Error("frame without end byte accepted")
	}
}

func TestFrameSize(t *testing.T) {
	b := New(nil)
	frame := makeResponse(regCellVolts, statusOK, cellPayload(16, 3270))
	size, err := b.FrameSize(frame[:4])
	if err != nil {
		t.Fatalf("FrameSize: %v", err)
	}
	if size != len(frame) {
		t.Errorf("size = %d, want %d", size, len(frame))
	}
	if _, err := b.FrameSize(frame[:3]); !errors.Is(err, profile.ErrNeedMore) {
		t.Errorf("short header: got %v, want ErrNeedMore", err)
	}
}

func TestDecodeBasic(t *testing.T) {
	b := New(nil)
	f, err := b.Decode(makeResponse(regBasicInfo, statusOK, basicPayload(0)))
	if err != nil {
		t.Fatalf("decode basic: %v", err)
	}
	if f.Voltage == nil || math.Abs(f.Voltage.Value()-52.4) > 1e-9 {
		t.Errorf("voltage = %v, want 52.4", f.Voltage)
	}
	if f.Current == nil || math.Abs(f.Current.Value()-(-12.3)) > 1e-9 {
		t.Errorf("current = %v, want -12.3", f.Current)
	}
	if f.SOC == nil || f.SOC.Value() != 87 {
		t.Errorf("soc = %v, want 87", f.SOC)
	}
	if f.RemainingAh == nil || math.Abs(f.RemainingAh.Value()-76.43) > 1e-9 {
		t.Errorf("remaining = %v, want 76.43", f.RemainingAh)
	}
	if f.Cycles == nil || *f.Cycles != 42 {
		t.Errorf("cycles = %v, want 42", f.Cycles)
	}
	if f.CellCount == nil || *f.CellCount != 16 {
		t.Errorf("cell count = %v, want 16", f.CellCount)
	}
	if f.TempsSeen() != 2 {
		t.Errorf("temps seen = %d, want 2", f.TempsSeen())
	}
}

func TestDecodeStatusError(t *testing.T) {
	b := New(nil)
	_, err := b.Decode(makeResponse(regBasicInfo, statusErr, nil))
	if !errors.Is(err, profile.ErrBadStatus) {
		t.Errorf("status 0x80: got %v, want ErrBadStatus", err)
	}
}

func TestDecodeTruncatedNTC(t *testing.T) {
	b := New(nil)
	p := basicPayload(0)
	p[offNTCCount] = 9 // 声明 9 路但载荷只有 2 路
	_, err := b.Decode(makeResponse(regBasicInfo, statusOK, p))
	if !errors.Is(err, profile.ErrTruncated) {
		t.Errorf("over-declared ntc: got %v, want ErrTruncated", err)
	}
}

// TestFullCycleReading 两帧合并后产出的规范化读数
func TestFullCycleReading(t *testing.T) {
	b := New(nil)
	basic, err := b.Decode(makeResponse(regBasicInfo, statusOK, basicPayload(0)))
	if err != nil {
		t.Fatalf("decode basic: %v", err)
	}
	cells, err := b.Decode(makeResponse(regCellVolts, statusOK, cellPayload(16, 3270)))
	if err != nil {
		t.Fatalf("decode cells: %v", err)
	}

	acc := &profile.Fields{}
	acc.Merge(basic)
	if b.CycleComplete(acc) {
		t.Fatal("cycle complete before cell frame")
	}
	acc.Merge(cells)
	if !b.CycleComplete(acc) {
		t.Fatal("cycle not complete after both frames")
	}

	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	rd, err := profile.BuildReading(b.ID(), acc, at)
	if err != nil {
		t.Fatalf("build reading: %v", err)
	}
	if math.Abs(*rd.Voltage-52.4) > 1e-3 {
		t.Errorf("voltage = %v", *rd.Voltage)
	}
	if math.Abs(*rd.Current-(-12.3)) > 1e-3 {
		t.Errorf("current = %v", *rd.Current)
	}
	if *rd.SOC != 87 {
		t.Errorf("soc = %v", *rd.SOC)
	}
	if len(rd.Cells) != 16 {
		t.Fatalf("cells = %d, want 16", len(rd.Cells))
	}
	if math.Abs(*rd.CellDelta-0.015) > 1e-9 {
		t.Errorf("cell delta = %v, want 0.015", *rd.CellDelta)
	}
	if len(rd.Temps) != 2 || math.Abs(rd.Temps[0]-25.0) > 1e-9 || math.Abs(rd.Temps[1]-26.5) > 1e-9 {
		t.Errorf("temps = %v, want [25 26.5]", rd.Temps)
	}
	if rd.Alarms != nil {
		t.Errorf("alarms = %v, want none", rd.Alarms)
	}
	if !rd.At.Equal(at) {
		t.Errorf("at = %v, want %v", rd.At, at)
	}
}

func TestProtectionFlags(t *testing.T) {
	b := New(nil)
	f, err := b.Decode(makeResponse(regBasicInfo, statusOK, basicPayload(1<<0|1<<9)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"cell_overvoltage", "discharge_overcurrent"}
	if len(f.Alarms) != len(want) {
		t.Fatalf("alarms = %v, want %v", f.Alarms, want)
	}
	for i := range want {
		if f.Alarms[i] != want[i] {
			t.Errorf("alarm[%d] = %q, want %q", i, f.Alarms[i], want[i])
		}
	}
}
