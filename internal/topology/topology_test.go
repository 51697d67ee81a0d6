package topology

import (
	"testing"

	"github.com/mczaj/edk2-platforms/pcibus"
)

func TestLoad(t *testing.T) {
	fx, err := Load("testdata/sample.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(fx.HostBridges) != 1 {
		t.Fatalf("HostBridges = %d, want 1", len(fx.HostBridges))
	}
	hb := fx.HostBridges[0]
	if hb.MemBase != 0xC0000000 || hb.MemLimit != 0xDFFFFFFF {
		t.Errorf("host bridge mem window = [%#x, %#x], want [0xC0000000, 0xDFFFFFFF]", hb.MemBase, hb.MemLimit)
	}
	if hb.BusLimit != 0xFF {
		t.Errorf("BusLimit = %#x, want 0xFF", hb.BusLimit)
	}

	if len(fx.Devices) != 2 {
		t.Fatalf("Devices = %d, want 2", len(fx.Devices))
	}
	bridge := fx.Devices[0]
	if !bridge.IsBridge {
		t.Error("first fixture device should be marked as a bridge")
	}
	storage := fx.Devices[1]
	if storage.BaseClass != pcibus.ClassMassStorage {
		t.Errorf("storage device base class = %#x, want mass storage", storage.BaseClass)
	}
	if len(storage.Bars) != 1 || storage.Bars[0].Size != 0x10000 {
		t.Errorf("storage device bars = %+v, want one 0x10000 bar", storage.Bars)
	}
}

func TestHostBridgeInfos(t *testing.T) {
	fx, err := Load("testdata/sample.yaml")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	infos := fx.HostBridgeInfos()
	if len(infos) != 1 {
		t.Fatalf("HostBridgeInfos = %d, want 1", len(infos))
	}
	if infos[0].Segment != 0 || infos[0].IoBase != 0x1000 {
		t.Errorf("converted HostBridgeInfo = %+v, want segment 0 and io base 0x1000", infos[0])
	}
}
