package protocol

import (
	"testing"

	"github.com/driller442/BatteryHub/internal/coremodel"
	"github.com/driller442/BatteryHub/internal/protocol/profile"
)

func TestPriorityOrder(t *testing.T) {
	want := []coremodel.ProfileID{coremodel.ProfileJBD, coremodel.ProfileDaly, coremodel.ProfileANT}
	all := All(nil)
	if len(all) != len(want) {
		t.Fatalf("profiles = %d, want %d", len(all), len(want))
	}
	for i, p := range all {
		if p.ID() != want[i] {
			t.Errorf("priority[%d] = %s, want %s", i, p.ID(), want[i])
		}
	}
}

func TestByID(t *testing.T) {
	p, ok := ByID(coremodel.ProfileDaly)
	if !ok || p.ID() != coremodel.ProfileDaly {
		t.Fatalf("ByID(daly) = %v, %v", p, ok)
	}
	if _, ok := ByID("nope"); ok {
		t.Error("unknown profile id resolved")
	}
}

// TestDetectAcrossVendors 未绑定重组器在混杂噪声里按真实厂商帧完成归属
func TestDetectAcrossVendors(t *testing.T) {
	// Daly 应答：A5 01 90 08 + 8 字节数据 + 和校验
	frame := []byte{0xA5, 0x01, 0x90, 0x08, 0x02, 0x14, 0x00, 0x00, 0x75, 0x30, 0x03, 0x66, 0x00}
	var sum byte
	for _, b := range frame[:12] {
		sum += b
	}
	frame[12] = sum

	r := profile.NewReassembler(All(nil))
	emits := r.Feed(append([]byte{0x00, 0xFF, 0x13}, frame...))
	if len(emits) != 1 {
		t.Fatalf("emits = %d, want 1", len(emits))
	}
	if emits[0].Err != nil {
		t.Fatalf("unexpected emit error: %v", emits[0].Err)
	}
	if emits[0].Profile.ID() != coremodel.ProfileDaly {
		t.Errorf("detected %s, want daly", emits[0].Profile.ID())
	}
}

func TestGATTDefaults(t *testing.T) {
	svc, notify, write := GATTDefaults(coremodel.ProfileJBD)
	if svc != "ff00" || notify != "ff01" || write != "ff02" {
		t.Errorf("jbd gatt = %s/%s/%s", svc, notify, write)
	}
	if _, notify, _ := GATTDefaults(coremodel.ProfileANT); notify != "ffe1" {
		t.Errorf("ant notify = %s", notify)
	}
}
