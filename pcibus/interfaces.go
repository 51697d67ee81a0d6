package pcibus

import "context"

// ConfigSpace is the CfgAccess collaborator: byte/word/dword reads and
// writes into a function's PCI configuration space, addressed by SBDF and
// register offset. Implementations decide how the SBDF maps to a physical
// address (ECAM window arithmetic, a simulated backing map, and so on);
// pcibus never computes that address itself.
type ConfigSpace interface {
	Read8(sbdf SBDF, offset uint16) (uint8, error)
	Read16(sbdf SBDF, offset uint16) (uint16, error)
	Read32(sbdf SBDF, offset uint16) (uint32, error)
	Write8(sbdf SBDF, offset uint16, val uint8) error
	Write16(sbdf SBDF, offset uint16, val uint16) error
	Write32(sbdf SBDF, offset uint16, val uint32) error
}

// MMIOSpace backs a memory BAR: reads and writes take an absolute address
// (the DeviceFacade adds the BAR's programmed base to the caller's offset)
// and a width.
type MMIOSpace interface {
	Read(addr uint64, width int) (uint64, error)
	Write(addr uint64, width int, val uint64) error
}

// PIOSpace backs an I/O BAR the same way MMIOSpace backs a memory BAR, but
// over the architecture's port I/O space rather than its memory space.
type PIOSpace interface {
	In(port uint64, width int) (uint64, error)
	Out(port uint64, width int, val uint64) error
}

// IOMMU is the DeviceFacade's mapping collaborator, located through
// LocateService. A platform with no real IOMMU hardware may still supply an
// identity implementation so Map/Unmap/AllocateBuffer/FreeBuffer work.
type IOMMU interface {
	Map(device SBDF, op IOOperation, hostAddr uint64, numBytes uint64) (deviceAddr uint64, mapping IOMMUMapping, err error)
	Unmap(mapping IOMMUMapping) error
	AllocateBuffer(device SBDF, numPages uint64) (hostAddr uint64, err error)
	FreeBuffer(hostAddr uint64, numPages uint64) error
}

// IOOperation describes the direction of a Map request, matching the
// BusMasterRead/BusMasterWrite/BusMasterCommonBuffer distinction the device
// facade exposes.
type IOOperation int

const (
	IOOperationBusMasterRead IOOperation = iota
	IOOperationBusMasterWrite
	IOOperationBusMasterCommonBuffer
)

// IOMMUMapping is an opaque handle returned by Map and consumed by Unmap.
type IOMMUMapping interface{}

// LocateService resolves a named platform collaborator (an IOMMU, a device
// path builder, and so on) the way PeiServicesLocatePpi resolves a PPI by
// GUID in the originating firmware architecture.
type LocateService interface {
	LocateIOMMU() (IOMMU, error)
	LocateDevicePathBuilder() (DevicePathBuilder, error)
	LocateReadySignal() (ReadySignal, error)
}

// ReadySignal publishes the terminator notification that every host bridge
// on the platform has finished enumeration, resource assignment, and
// facade publication. Callers that depend on PCI being usable (device
// drivers, later boot phases) wait on this the way the originating
// firmware's PEIMs waited on a "PCI devices ready" PPI installed once all
// host bridges were done.
type ReadySignal interface {
	PublishPciDevicesReady() error
}

// Allocator hands out bus numbers and aperture base addresses that are
// themselves outside any single host bridge's fixed window (for platforms
// that do MMCFG allocation dynamically). The reference host-bridge windows
// in this module are static: this module ships no Allocator implementation
// and nothing in pcibus calls one.
type Allocator interface {
	AllocateBusRange(count int) (first uint8, err error)
}

// Timer abstracts the microsecond delay PollMem/PollIo use while busy
// waiting, so tests can run the wait loop without actually sleeping.
type Timer interface {
	SleepMicroseconds(ctx context.Context, us uint64)
}

// DevicePathBuilder constructs the single-node device-path fragment for
// one function. The Orchestrator calls Build once per ancestor bridge on
// its way down to an essential device, plus once more for the device
// itself, concatenating the resulting segments in root-to-leaf order to
// produce the device's full published DevicePath.
type DevicePathBuilder interface {
	Build(sbdf SBDF) (DevicePath, error)
}

// DevicePath is an opaque platform device path, passed through unexamined.
type DevicePath struct {
	Segments []PCIDevicePathNode
}

// PCIDevicePathNode is one Device()/Function() node of a PCI device path.
type PCIDevicePathNode struct {
	Device   uint8
	Function uint8
}

// HostBridgeProvider enumerates the host bridges present on the platform,
// each with its own segment number and bus/memory/IO windows.
type HostBridgeProvider interface {
	HostBridges() ([]HostBridgeInfo, error)
}

// HostBridgeInfo describes one host bridge's fixed resource windows, the
// starting point the Orchestrator widens bridge decode windows down from.
type HostBridgeInfo struct {
	Segment     uint16
	RootBus     uint8
	BusLimit    uint8
	MemBase     uint64
	MemLimit    uint64
	IoBase      uint32
	IoLimit     uint32
	Attributes  uint64
	Supports    uint64
}
