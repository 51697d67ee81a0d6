package pcibus

import (
	"context"

	log "github.com/golang/glog"
)

// Orchestrator drives a single host bridge through the full sequence: bus
// assignment, resource discovery and planning, register programming,
// bridge enablement, and facade publication for every essential device
// found underneath it.
type Orchestrator struct {
	Cfg      ConfigSpace
	Mmio     MMIOSpace
	Pio      PIOSpace
	Locate   LocateService
	Timer    Timer
	DevPaths DevicePathBuilder
}

// NewOrchestrator wires the collaborators an Orchestrator needs. Locate is
// used once per Run, after programming, to resolve the IOMMU every facade
// published by that run shares.
func NewOrchestrator(cfg ConfigSpace, mmio MMIOSpace, pio PIOSpace, locate LocateService, timer Timer, devPaths DevicePathBuilder) *Orchestrator {
	return &Orchestrator{Cfg: cfg, Mmio: mmio, Pio: pio, Locate: locate, Timer: timer, DevPaths: devPaths}
}

// RunResult is what one host bridge's enumeration produced: the root of the
// tree built for it (kept mainly for tests and diagnostics) and the set of
// published facades for its essential devices.
type RunResult struct {
	Root     *Bridge
	Facades  map[SBDF]*DeviceFacade
}

// Run executes all seven steps of the pipeline against one host bridge:
//  1. Build the synthetic root bridge from the host bridge's fixed windows.
//  2. Assign bus numbers depth-first across every P2P bridge found.
//  3. Discover every function's BAR requests and plan their offsets.
//  4. Program every BAR and bridge window, widen then tighten.
//  5. Enable memory/IO/bus-master decode on every bridge, children first.
//  6. Classify and publish a DeviceFacade for every essential device.
//  7. Unlink the tree; published facades keep their own ancestor snapshot
//     and do not depend on the tree surviving this call.
func (o *Orchestrator) Run(ctx context.Context, hb HostBridgeInfo) (*RunResult, error) {
	log.Infof("pcibus: enumerating segment %04x bus %02x..%02x mem %#x..%#x io %#x..%#x",
		hb.Segment, hb.RootBus, hb.BusLimit, hb.MemBase, hb.MemLimit, hb.IoBase, hb.IoLimit)

	root := &Bridge{
		Segment:      hb.Segment,
		SecondaryBus: hb.RootBus,
		SubordinateBus: hb.BusLimit,
		MemBase:      hb.MemBase,
		MemLimit:     hb.MemLimit,
		IoBase:       hb.IoBase,
		IoLimit:      hb.IoLimit,
	}

	enumerator := NewEnumerator(o.Cfg)
	nextBus := hb.RootBus
	if err := enumerator.AssignBusNumbers(root, &nextBus, hb.BusLimit); err != nil {
		return nil, err
	}
	root.SubordinateBus = nextBus
	log.V(1).Infof("pcibus: bus numbers assigned, subordinate=%02x", nextBus)

	if err := enumerator.DiscoverResources(root); err != nil {
		return nil, err
	}

	planner := NewResourcePlanner()
	if err := planner.Plan(root); err != nil {
		return nil, err
	}

	programmer := NewProgrammer(o.Cfg)
	if err := programmer.Widen(root, hb.MemBase, hb.MemLimit, hb.IoBase, hb.IoLimit); err != nil {
		return nil, err
	}
	if err := programmer.Tighten(root, hb.MemBase, hb.MemLimit, hb.IoBase, hb.IoLimit); err != nil {
		return nil, err
	}

	if err := enableBridgesRecursive(o.Cfg, root); err != nil {
		return nil, err
	}

	iommu, err := o.Locate.LocateIOMMU()
	if err != nil {
		return nil, newErr(KindUnsupported, "Run", SBDF{Segment: hb.Segment, Bus: hb.RootBus}, err)
	}

	facades := make(map[SBDF]*DeviceFacade)
	if err := publishEssentialFacades(root, nil, nil, o.Cfg, o.Mmio, o.Pio, iommu, o.Timer, o.DevPaths, facades); err != nil {
		return nil, err
	}

	log.V(1).Infof("pcibus: published %d essential device facades", len(facades))

	teardown(root)

	return &RunResult{Root: root, Facades: facades}, nil
}

// enableBridgesRecursive sets memory space, IO space, and bus-master decode
// on every non-root bridge, children first, so a parent's decode is never
// enabled before the subtree behind it can actually answer accesses.
func enableBridgesRecursive(cfg ConfigSpace, bridge *Bridge) error {
	for _, child := range bridge.Children {
		if err := enableBridgesRecursive(cfg, child); err != nil {
			return err
		}
	}
	if bridge.IsRoot() {
		return nil
	}
	cmd, err := cfg.Read16(bridge.Device.Sbdf, RegCommand)
	if err != nil {
		return newErr(KindNoSuchDevice, "enableBridges", bridge.Device.Sbdf, err)
	}
	cmd |= CommandMemSpace | CommandIoSpace | CommandBusMaster
	if err := cfg.Write16(bridge.Device.Sbdf, RegCommand, cmd); err != nil {
		return newErr(KindNoSuchDevice, "enableBridges", bridge.Device.Sbdf, err)
	}
	return nil
}

// publishEssentialFacades walks the tree building an AncestorView chain and
// a device-path prefix as it descends, so that when it reaches an
// essential endpoint it can snapshot the chain onto the Device, build its
// full device path, and capture its own BAR resource assignments before
// constructing its facade.
func publishEssentialFacades(bridge *Bridge, parentView *AncestorView, parentPath []PCIDevicePathNode, cfg ConfigSpace, mmio MMIOSpace, pio PIOSpace, iommu IOMMU, timer Timer, devPaths DevicePathBuilder, out map[SBDF]*DeviceFacade) error {
	view := &AncestorView{Parent: parentView, IsRoot: bridge.IsRoot()}
	path := parentPath
	if !bridge.IsRoot() {
		view.Sbdf = bridge.Device.Sbdf
		node, err := devPaths.Build(bridge.Device.Sbdf)
		if err != nil {
			return newErr(KindUnsupported, "publishEssentialFacades", bridge.Device.Sbdf, err)
		}
		path = append(append([]PCIDevicePathNode{}, parentPath...), node.Segments...)
	}

	for _, dev := range bridge.Endpoints {
		if !dev.Essential {
			continue
		}
		dev.ancestors = []*AncestorView{view}
		dev.barResources = snapshotBarResources(bridge.Resources, dev)

		node, err := devPaths.Build(dev.Sbdf)
		if err != nil {
			return newErr(KindUnsupported, "publishEssentialFacades", dev.Sbdf, err)
		}
		dev.DevicePath = DevicePath{Segments: append(append([]PCIDevicePathNode{}, path...), node.Segments...)}

		supported := AttrIoSpace | AttrMemSpace | AttrBusMaster
		facade := NewDeviceFacade(dev, cfg, mmio, pio, iommu, timer, supported)
		// An essential device is expected to be immediately usable by its
		// consumer once published, so its decode is enabled here rather
		// than left for the caller to remember to turn on.
		facade.Attributes(AttributesEnable, supported)
		out[dev.Sbdf] = facade
	}

	for _, child := range bridge.Children {
		if err := publishEssentialFacades(child, view, path, cfg, mmio, pio, iommu, timer, devPaths, out); err != nil {
			return err
		}
	}
	return nil
}

// snapshotBarResources captures dev's own BAR resource nodes out of
// resources (its owning bridge's resource list) before that list is torn
// down, so a published facade's GetBarAttributes keeps working afterward.
func snapshotBarResources(resources []*ResourceNode, dev *Device) map[BarIndex]BarResourceDescriptor {
	out := make(map[BarIndex]BarResourceDescriptor)
	for _, r := range resources {
		if r.Device != dev || r.Bar == BarIndexNone {
			continue
		}
		out[r.Bar] = BarResourceDescriptor{
			Kind:         r.Kind,
			Length:       r.Length,
			Prefetchable: r.Prefetchable,
			Is64Bit:      r.Is64Bit,
		}
	}
	return out
}

// teardown unlinks every bridge's children and resource list, children
// first. Published facades keep working because they carry their own
// AncestorView snapshot rather than a live pointer into this tree.
func teardown(bridge *Bridge) {
	for _, child := range bridge.Children {
		teardown(child)
	}
	bridge.Children = nil
	bridge.Resources = nil
	bridge.Endpoints = nil
}
