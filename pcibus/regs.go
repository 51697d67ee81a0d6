package pcibus

// Config space register offsets and field constants used throughout
// CfgAccess, BarProbe, the Enumerator, and the Programmer. Offsets follow
// the standard PCI/PCIe type 0 and type 1 (bridge) header layouts.
const (
	RegVendorID     = 0x00
	RegDeviceID     = 0x02
	RegCommand      = 0x04
	RegStatus       = 0x06
	RegRevisionID   = 0x08
	RegSubClass     = 0x0A
	RegBaseClass    = 0x0B
	RegHeaderType   = 0x0E
	RegBar0         = 0x10
	RegCapPtr       = 0x34

	// Type 1 (bridge) header fields.
	RegPrimaryBus    = 0x18
	RegSecondaryBus  = 0x19
	RegSubordinateBus = 0x1A
	RegIoBase        = 0x1C
	RegIoLimit       = 0x1E
	RegMemBase       = 0x20
	RegMemLimit      = 0x22
)

// Command register bits.
const (
	CommandIoSpace     uint16 = 0x0001
	CommandMemSpace    uint16 = 0x0002
	CommandBusMaster   uint16 = 0x0004
)

// HeaderType field: low 7 bits are the type, bit 7 marks multi-function.
const (
	HeaderTypeMask         uint8 = 0x7F
	HeaderTypeNormal       uint8 = 0x00
	HeaderTypeBridge       uint8 = 0x01
	HeaderTypeMultiFunction uint8 = 0x80
)

// Base class codes and the subclasses PciIsDeviceEssential checks.
const (
	ClassMassStorage      uint8 = 0x01
	ClassSerialBus        uint8 = 0x0C
	SubclassUSB           uint8 = 0x03
	ClassSystemPeripheral uint8 = 0x08
	SubclassSDHostController uint8 = 0x05
)

// BAR encoding bits.
const (
	BarIoSpaceBit   uint32 = 0x1
	BarMemTypeMask  uint32 = 0x6
	BarMemType64Bit uint32 = 0x4
	BarPrefetchBit  uint32 = 0x8

	BarMemAddrMask uint32 = 0xFFFFFFF0
	BarIoAddrMask  uint32 = 0xFFFFFFFC
)

// NumBars is how many 32-bit BAR registers a type 0 header has.
const NumBars = 6

// Size2GiB is the threshold above which a 64-bit BAR's decoded size makes
// the owning device ineligible for resource assignment in this allocator.
const Size2GiB uint64 = 1 << 31

// aperture rounding granularities used by the ResourcePlanner.
const (
	MemApertureAlign uint64 = 0x100000 // 1 MiB
	IoApertureAlign  uint64 = 0x1000   // 4 KiB
)

// CapIDPCIExpress is the capability ID a PCI Express Capability Structure
// header reports, found by walking the capability list starting at
// RegCapPtr.
const CapIDPCIExpress uint8 = 0x10

// PcieCapRegOffset is the byte offset, relative to a PCI Express capability
// header, of the 16-bit PCI Express Capabilities register carrying the
// Device/Port Type field.
const PcieCapRegOffset uint16 = 0x02

// Device/Port Type field (bits 7:4 of the PCI Express Capabilities
// register).
const (
	PcieDevicePortTypeShift = 4
	PcieDevicePortTypeMask  uint16 = 0xF0
)
