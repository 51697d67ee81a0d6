package pcibus

// DevicePortType is the PCI Express Capabilities register's Device/Port
// Type field, identifying what kind of PCIe function a capability
// structure describes.
type DevicePortType uint8

const (
	DevTypeEndpoint             DevicePortType = 0x0
	DevTypeLegacyEndpoint       DevicePortType = 0x1
	DevTypeRootPort             DevicePortType = 0x4
	DevTypeUpstreamPort         DevicePortType = 0x5
	DevTypeDownstreamPort       DevicePortType = 0x6
	DevTypePcieToPciBridge      DevicePortType = 0x7
	DevTypePciToPcieBridge      DevicePortType = 0x8
	DevTypeRCIntegratedEndpoint DevicePortType = 0x9
	DevTypeRCEventCollector     DevicePortType = 0xA
)

// maxCapabilityWalk guards against a corrupted or cyclic next-pointer
// chain: a function's 256-byte legacy config space cannot hold more than
// this many 4-byte-aligned capability headers.
const maxCapabilityWalk = 48

// FindCapability walks sbdf's capability list starting at RegCapPtr,
// returning the config-space offset of the first capability header whose
// ID matches id, or 0 if the list is empty, doesn't contain id, or the
// function predates the capabilities mechanism entirely.
func FindCapability(cfg ConfigSpace, sbdf SBDF, id uint8) (uint16, error) {
	ptr, err := cfg.Read8(sbdf, RegCapPtr)
	if err != nil {
		return 0, newErr(KindNoSuchDevice, "FindCapability", sbdf, err)
	}
	offset := uint16(ptr) &^ 0x3
	for i := 0; offset != 0 && i < maxCapabilityWalk; i++ {
		capID, err := cfg.Read8(sbdf, offset)
		if err != nil {
			return 0, newErr(KindNoSuchDevice, "FindCapability", sbdf, err)
		}
		if capID == id {
			return offset, nil
		}
		next, err := cfg.Read8(sbdf, offset+1)
		if err != nil {
			return 0, newErr(KindNoSuchDevice, "FindCapability", sbdf, err)
		}
		offset = uint16(next) &^ 0x3
	}
	return 0, nil
}

// DevicePortTypeOf reads the Device/Port Type field out of the PCI
// Express Capabilities register at pcieCap (as located by FindCapability).
// found is false when pcieCap is 0, meaning sbdf has no PCI Express
// capability at all (a legacy conventional-PCI function).
func DevicePortTypeOf(cfg ConfigSpace, sbdf SBDF, pcieCap uint16) (portType DevicePortType, found bool, err error) {
	if pcieCap == 0 {
		return 0, false, nil
	}
	reg, err := cfg.Read16(sbdf, pcieCap+PcieCapRegOffset)
	if err != nil {
		return 0, false, newErr(KindNoSuchDevice, "DevicePortTypeOf", sbdf, err)
	}
	return DevicePortType((reg & PcieDevicePortTypeMask) >> PcieDevicePortTypeShift), true, nil
}
