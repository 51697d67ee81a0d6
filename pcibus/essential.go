package pcibus

// PciIsDeviceEssential reports whether a function's class code marks it as
// one of the three device classes this allocator guarantees resources to:
// mass storage controllers, USB controllers, and SD host controllers.
// Every other class is enumerated (for bus numbering) but never gets a
// published DeviceFacade.
func PciIsDeviceEssential(baseClass, subClass uint8) bool {
	switch {
	case baseClass == ClassMassStorage:
		return true
	case baseClass == ClassSerialBus && subClass == SubclassUSB:
		return true
	case baseClass == ClassSystemPeripheral && subClass == SubclassSDHostController:
		return true
	default:
		return false
	}
}
