package profile

import (
	"errors"
	"testing"
	"time"

	"github.com/driller442/BatteryHub/internal/coremodel"
)

func TestBuildReadingOutOfRange(t *testing.T) {
	at := time.Now()

	f := &Fields{Voltage: &Quantity{Raw: 20010, Scale: 0.1}} // 2001 V
	if _, err := BuildReading(coremodel.ProfileJBD, f, at); !errors.Is(err, ErrFieldOutOfRange) {
		t.Errorf("implausible voltage: got %v, want ErrFieldOutOfRange", err)
	}

	f = &Fields{SOC: &Quantity{Raw: 101, Scale: 1}}
	if _, err := BuildReading(coremodel.ProfileJBD, f, at); !errors.Is(err, ErrFieldOutOfRange) {
		t.Errorf("soc over 100: got %v, want ErrFieldOutOfRange", err)
	}

	f = &Fields{Current: &Quantity{Raw: -30000, Scale: 0.1}} // -3000 A
	if _, err := BuildReading(coremodel.ProfileDaly, f, at); !errors.Is(err, ErrFieldOutOfRange) {
		t.Errorf("implausible current: got %v, want ErrFieldOutOfRange", err)
	}
}

// TestBuildReadingAbsentFields 缺失字段保持 nil，不得出现伪零值
func TestBuildReadingAbsentFields(t *testing.T) {
	f := &Fields{Voltage: &Quantity{Raw: 524, Scale: 0.1}}
	rd, err := BuildReading(coremodel.ProfileANT, f, time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if rd.Voltage == nil {
		t.Fatal("voltage missing")
	}
	if rd.Current != nil || rd.SOC != nil || rd.Cycles != nil || rd.RemainingAh != nil {
		t.Error("absent fields must stay nil")
	}
	// 无电芯序列时压差必须缺失
	if rd.CellDelta != nil {
		t.Error("cell delta without cells must stay nil")
	}
	if rd.HasCells() {
		t.Error("no cells expected")
	}
}

func TestCellDeltaAndClamp(t *testing.T) {
	f := &Fields{Voltage: &Quantity{Raw: 524, Scale: 0.1}}
	cc := 3
	f.CellCount = &cc
	f.SetCell(0, Quantity{Raw: 3301, Scale: 0.001})
	f.SetCell(1, Quantity{Raw: 3288, Scale: 0.001})
	f.SetCell(2, Quantity{Raw: 3295, Scale: 0.001})
	f.SetCell(3, Quantity{Raw: 0, Scale: 0.001}) // 补零槽位，声明数之外
	rd, err := BuildReading(coremodel.ProfileDaly, f, time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(rd.Cells) != 3 {
		t.Fatalf("cells = %d, want 3", len(rd.Cells))
	}
	if d := *rd.CellDelta; d < 0.0129 || d > 0.0131 {
		t.Errorf("delta = %v, want 0.013", d)
	}
}

func TestMergeOverwrites(t *testing.T) {
	a := &Fields{Voltage: &Quantity{Raw: 500, Scale: 0.1}}
	b := &Fields{Voltage: &Quantity{Raw: 524, Scale: 0.1}}
	a.Merge(b)
	if a.Voltage.Value() != 52.4 {
		t.Errorf("merge did not overwrite: %v", a.Voltage.Value())
	}
	a.Merge(nil)
	if a.Voltage == nil {
		t.Error("merge nil cleared fields")
	}
}

func TestQuantityBias(t *testing.T) {
	q := Quantity{Raw: 29877, Scale: 0.1, Bias: 30000}
	if v := q.Value(); v < -12.301 || v > -12.299 {
		t.Errorf("biased value = %v, want -12.3", v)
	}
}
