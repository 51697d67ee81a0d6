// Command pcienum drives the enumerator and resource allocator against a
// platform's host bridges and reports the essential devices it published
// facades for.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	log "github.com/golang/glog"

	"github.com/mczaj/edk2-platforms/internal/ecam"
	"github.com/mczaj/edk2-platforms/internal/topology"
	"github.com/mczaj/edk2-platforms/pcibus"
)

var (
	fixturePath = flag.String("fixture", "", "path to a topology YAML fixture (simulated mode)")
	ecamBase    = flag.Uint64("ecam-base", 0, "physical base address of the ECAM window (real hardware mode; mutually exclusive with -fixture)")
	segment     = flag.Uint64("segment", 0, "PCI segment number of the host bridge (real hardware mode)")
	rootBus     = flag.Uint64("root-bus", 0, "root bus number of the host bridge (real hardware mode)")
	busLimit    = flag.Uint64("bus-limit", 0xFF, "highest bus number the host bridge may assign (real hardware mode)")
	memBase     = flag.Uint64("mem-base", 0, "base address of the host bridge's memory window (real hardware mode)")
	memLimit    = flag.Uint64("mem-limit", 0, "inclusive limit address of the host bridge's memory window (real hardware mode)")
	ioBase      = flag.Uint64("io-base", 0, "base address of the host bridge's IO window (real hardware mode)")
	ioLimit     = flag.Uint64("io-limit", 0xFFFF, "inclusive limit address of the host bridge's IO window (real hardware mode)")
)

func main() {
	flag.Parse()
	defer log.Flush()

	if err := run(); err != nil {
		log.Errorf("pcienum: %v", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	if *fixturePath != "" && *ecamBase != 0 {
		return fmt.Errorf("pcienum: -fixture and -ecam-base are mutually exclusive")
	}
	if *fixturePath != "" {
		return runSimulated(*fixturePath)
	}
	if *ecamBase != 0 {
		return runHardware()
	}
	return fmt.Errorf("pcienum: one of -fixture or -ecam-base is required")
}

// runSimulated drives the orchestrator against a topology fixture's
// in-memory config space, MMIO, and port I/O, for development and testing
// without real hardware.
func runSimulated(fixturePath string) error {
	fx, err := topology.Load(fixturePath)
	if err != nil {
		return err
	}

	cfg := seedConfigSpace(fx)
	mmio := ecam.NewSimulatedMMIO()
	pio := ecam.NewSimulatedPIO()
	locate := &ecam.StaticLocateService{
		IOMMU:    ecam.NewIdentityIOMMU(),
		DevPaths: ecam.SimpleDevicePathBuilder{},
		Ready:    ecam.LogReadySignal{},
	}
	timer := &ecam.FakeTimer{}

	orch := pcibus.NewOrchestrator(cfg, mmio, pio, locate, timer, ecam.SimpleDevicePathBuilder{})

	ctx := context.Background()
	for _, hb := range fx.HostBridgeInfos() {
		if err := runHostBridge(ctx, orch, hb); err != nil {
			return err
		}
	}
	return publishReady(locate)
}

// runHardware drives the orchestrator against a real ECAM-mapped config
// space, direct MMIO, and the architecture's port I/O instructions, for a
// single host bridge whose window is given by flags.
func runHardware() error {
	cfg := ecam.NewSpace(uintptr(*ecamBase))
	mmio := ecam.MMIO{}
	pio := ecam.Port{}
	locate := &ecam.StaticLocateService{
		IOMMU:    ecam.NewIdentityIOMMU(),
		DevPaths: ecam.SimpleDevicePathBuilder{},
		Ready:    ecam.LogReadySignal{},
	}
	timer := ecam.RealTimer{}

	orch := pcibus.NewOrchestrator(cfg, mmio, pio, locate, timer, ecam.SimpleDevicePathBuilder{})

	hb := pcibus.HostBridgeInfo{
		Segment:  uint16(*segment),
		RootBus:  uint8(*rootBus),
		BusLimit: uint8(*busLimit),
		MemBase:  *memBase,
		MemLimit: *memLimit,
		IoBase:   uint32(*ioBase),
		IoLimit:  uint32(*ioLimit),
	}

	if err := runHostBridge(context.Background(), orch, hb); err != nil {
		return err
	}
	return publishReady(locate)
}

func runHostBridge(ctx context.Context, orch *pcibus.Orchestrator, hb pcibus.HostBridgeInfo) error {
	result, err := orch.Run(ctx, hb)
	if err != nil {
		return fmt.Errorf("host bridge %04x: %w", hb.Segment, err)
	}
	for sbdf := range result.Facades {
		fmt.Printf("essential device published: %s\n", sbdf)
	}
	return nil
}

func publishReady(locate *ecam.StaticLocateService) error {
	ready, err := locate.LocateReadySignal()
	if err != nil {
		return err
	}
	return ready.PublishPciDevicesReady()
}

// seedConfigSpace materializes fx's device fixtures into a Simulated
// config space: identity/class registers plus a BAR-probe-and-restore
// behavior per declared BAR.
func seedConfigSpace(fx *topology.Fixture) *ecam.Simulated {
	cfg := ecam.NewSimulated()
	for _, d := range fx.Devices {
		sbdf := pcibus.SBDF{Segment: d.Segment, Bus: d.Bus, Device: d.Device, Func: d.Function}
		cfg.PutFunction(sbdf)
		_ = cfg.Write16(sbdf, pcibus.RegVendorID, d.VendorID)
		_ = cfg.Write16(sbdf, pcibus.RegDeviceID, d.DeviceID)
		_ = cfg.Write8(sbdf, pcibus.RegBaseClass, d.BaseClass)
		_ = cfg.Write8(sbdf, pcibus.RegSubClass, d.SubClass)

		headerType := pcibus.HeaderTypeNormal
		if d.IsBridge {
			headerType = pcibus.HeaderTypeBridge
		}
		if d.MultiFunc {
			headerType |= pcibus.HeaderTypeMultiFunction
		}
		_ = cfg.Write8(sbdf, pcibus.RegHeaderType, headerType)

		bar := 0
		for _, b := range d.Bars {
			offset := uint16(pcibus.RegBar0) + uint16(bar)*4
			var typeBits uint32
			var addrMask uint32 = pcibus.BarMemAddrMask
			if b.IO {
				typeBits |= pcibus.BarIoSpaceBit
				addrMask = pcibus.BarIoAddrMask
			} else {
				if b.Is64Bit {
					typeBits |= pcibus.BarMemType64Bit
				}
				if b.Prefetchable {
					typeBits |= pcibus.BarPrefetchBit
				}
			}
			cfg.SeedBar(sbdf, offset, b.Size, typeBits, addrMask)
			bar++
			if !b.IO && b.Is64Bit {
				cfg.SeedBarUpper(sbdf, offset+4, b.Size)
				bar++
			}
		}
	}
	return cfg
}
