// Package topology loads a host-bridge and device fixture set from YAML, so
// the enumerator can be driven against a described topology instead of
// real or hand-built-in-Go hardware state.
package topology

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mczaj/edk2-platforms/pcibus"
)

// HostBridge is one host bridge's fixed resource windows, as read from
// fixture YAML.
type HostBridge struct {
	Segment  uint16 `yaml:"segment"`
	RootBus  uint8  `yaml:"rootBus"`
	BusLimit uint8  `yaml:"busLimit"`
	MemBase  uint64 `yaml:"memBase"`
	MemLimit uint64 `yaml:"memLimit"`
	IoBase   uint32 `yaml:"ioBase"`
	IoLimit  uint32 `yaml:"ioLimit"`
}

// Device is one function's fixture: its location, identity, and the BAR
// sizes it should report when probed.
type Device struct {
	Segment    uint16 `yaml:"segment"`
	Bus        uint8  `yaml:"bus"`
	Device     uint8  `yaml:"device"`
	Function   uint8  `yaml:"function"`
	VendorID   uint16 `yaml:"vendorId"`
	DeviceID   uint16 `yaml:"deviceId"`
	BaseClass  uint8  `yaml:"baseClass"`
	SubClass   uint8  `yaml:"subClass"`
	IsBridge   bool   `yaml:"isBridge"`
	MultiFunc  bool   `yaml:"multiFunction"`
	Bars       []Bar  `yaml:"bars"`
}

// Bar is one fixture BAR request: Size in bytes, IO vs memory, 64-bit vs
// 32-bit, and prefetchable vs not.
type Bar struct {
	Size         uint64 `yaml:"size"`
	IO           bool   `yaml:"io"`
	Is64Bit      bool   `yaml:"is64bit"`
	Prefetchable bool   `yaml:"prefetchable"`
}

// Fixture is the top-level document shape: the host bridges on the
// platform and the devices attached beneath them.
type Fixture struct {
	HostBridges []HostBridge `yaml:"hostBridges"`
	Devices     []Device     `yaml:"devices"`
}

// Load parses a fixture document from path.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("topology: reading %s: %w", path, err)
	}
	var fx Fixture
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("topology: parsing %s: %w", path, err)
	}
	return &fx, nil
}

// HostBridgeInfos converts the fixture's host bridges into the
// pcibus.HostBridgeInfo values the Orchestrator expects.
func (fx *Fixture) HostBridgeInfos() []pcibus.HostBridgeInfo {
	out := make([]pcibus.HostBridgeInfo, 0, len(fx.HostBridges))
	for _, hb := range fx.HostBridges {
		out = append(out, pcibus.HostBridgeInfo{
			Segment:  hb.Segment,
			RootBus:  hb.RootBus,
			BusLimit: hb.BusLimit,
			MemBase:  hb.MemBase,
			MemLimit: hb.MemLimit,
			IoBase:   hb.IoBase,
			IoLimit:  hb.IoLimit,
		})
	}
	return out
}
