package pcibus

// ResKind is a four-way resource tag (IO resource, MEM resource, IO
// aperture, MEM aperture) represented as two orthogonal bit groups instead
// of four mutually exclusive enum values: one bit says whether the node is
// IO or MEM space, a second, independent bit says whether it's a leaf
// device's BAR request or a bridge's materialized aperture. A query for
// "any MEM-kind node, resource or aperture" becomes a plain bitwise AND
// against ResKindMem instead of an OR of two enum comparisons.
type ResKind uint8

const (
	ResKindIO  ResKind = 1 << 0
	ResKindMem ResKind = 1 << 1

	ResKindDeviceResource ResKind = 0
	ResKindAperture       ResKind = 1 << 2
)

// Is reports whether k carries every bit set in mask, the same test
// BridgeGetFirstResourceNode/NextResourceNode use to filter a resource list
// by type.
func (k ResKind) Is(mask ResKind) bool {
	return k&mask == mask
}

// BarIndex identifies which of a device's up-to-six BAR registers a
// resource node came from; bridges' synthesized apertures use BarIndexNone.
type BarIndex int

const BarIndexNone BarIndex = -1

// ResourceNode is one entry in a bridge's resource list: either a leaf
// device's BAR request (Device != nil, Bar >= 0) or, after planning, a
// bridge's own materialized downstream aperture (Device points at the child
// bridge's Device record, Bar == BarIndexNone).
type ResourceNode struct {
	Kind      ResKind
	Device    *Device
	Bar       BarIndex
	Length    uint64
	Alignment uint64
	Offset    uint64
	Prefetchable bool
	Is64Bit   bool
}

// Device is a single PCI function's enumerated state and the BAR requests
// discovered for it. A Device that turns out to be a bridge's primary
// interface also has a non-nil OwningBridge pointing at the P2P bridge it
// represents; Device records for plain endpoints leave OwningBridge nil.
type Device struct {
	Sbdf         SBDF
	VendorID     uint16
	DeviceID     uint16
	BaseClass    uint8
	SubClass     uint8
	HeaderType   uint8
	Essential    bool
	OwningBridge *Bridge

	// PcieCap is the config-space offset of this function's PCI Express
	// capability header, cached once at probe time so later passes never
	// re-walk the capability list; 0 means no such capability was found
	// (a legacy conventional-PCI function). PortType is only meaningful
	// when PcieCap is non-zero.
	PcieCap  uint16
	PortType DevicePortType

	// DevicePath is the platform device-path fragment for this device,
	// built at publish time by appending a node per ancestor bridge
	// function down to this device's own node. Only populated for devices
	// that get published as a facade.
	DevicePath DevicePath

	// ancestors is a snapshot of the chain from this device's parent bridge
	// up to the root, captured at publish time so a DeviceFacade keeps
	// working after the enumeration tree it came from is torn down. Only
	// populated for devices that get published as a facade.
	ancestors []*AncestorView

	// barResources snapshots each of this device's own BAR resource
	// assignments at publish time, the same moment ancestors is
	// snapshotted, so GetBarAttributes keeps working after the owning
	// bridge's Resources slice is torn down.
	barResources map[BarIndex]BarResourceDescriptor
}

// BarResourceDescriptor is the decoded shape of one BAR's current resource
// assignment, split from its address (which a facade always re-reads fresh
// off the BAR register rather than caching).
type BarResourceDescriptor struct {
	Kind         ResKind
	Base         uint64
	Length       uint64
	Prefetchable bool
	Is64Bit      bool
}

// AncestorView is the minimal slice of a Bridge's state a published
// DeviceFacade needs in order to propagate Attributes() calls upward
// without holding a live pointer into a tree that may later be unlinked.
type AncestorView struct {
	Sbdf       SBDF
	IsRoot     bool
	Attributes uint64
	Supports   uint64
	Parent     *AncestorView
}

// Bridge is a node in the enumeration tree: either the synthetic root
// (Parent == nil, Device == nil) or a real PCI-to-PCI bridge function
// (Device != nil, Device.OwningBridge == this).
type Bridge struct {
	Device   *Device // nil only for the synthetic root
	Parent   *Bridge // nil only for the synthetic root
	Segment  uint16
	PrimaryBus    uint8
	SecondaryBus  uint8
	SubordinateBus uint8

	MemBase, MemLimit uint64
	IoBase, IoLimit   uint32

	Children  []*Bridge
	Endpoints []*Device
	Resources []*ResourceNode
}

// IsRoot reports whether b is the synthetic root bridge of a host bridge's
// tree, standing in for the host bridge itself rather than a real P2P
// bridge function.
func (b *Bridge) IsRoot() bool {
	return b.Parent == nil
}
