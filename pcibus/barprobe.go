package pcibus

// ProbeBar determines the size, alignment, and type of the BAR at index
// bar on sbdf by the standard write-all-ones/read-back/restore sequence: the
// original value is saved, 0xFFFFFFFF is written, the size mask is read
// back, and the original value is restored so the BAR's current programming
// (if any) survives probing.
//
// A 64-bit memory BAR consumes the BAR register that follows it; callers
// must skip that register on their next iteration when consumedNext is
// true. tooLarge reports a 64-bit BAR whose decoded size exceeds Size2GiB,
// which disqualifies the whole device from resource assignment per the
// allocator's size policy.
func ProbeBar(cfg ConfigSpace, sbdf SBDF, bar BarIndex) (node *ResourceNode, consumedNext bool, tooLarge bool, err error) {
	offset := uint16(RegBar0) + uint16(bar)*4

	orig, err := cfg.Read32(sbdf, offset)
	if err != nil {
		return nil, false, false, newErr(KindNoSuchDevice, "ProbeBar", sbdf, err)
	}

	if err := cfg.Write32(sbdf, offset, 0xFFFFFFFF); err != nil {
		return nil, false, false, newErr(KindNoSuchDevice, "ProbeBar", sbdf, err)
	}
	probe, err := cfg.Read32(sbdf, offset)
	if err != nil {
		return nil, false, false, newErr(KindNoSuchDevice, "ProbeBar", sbdf, err)
	}
	if err := cfg.Write32(sbdf, offset, orig); err != nil {
		return nil, false, false, newErr(KindNoSuchDevice, "ProbeBar", sbdf, err)
	}

	if probe == 0 {
		// BAR not implemented by this function.
		return nil, false, false, nil
	}

	if orig&BarIoSpaceBit != 0 {
		mask := probe & 0xFFFFFFFC
		size := uint64(^mask + 1)
		return &ResourceNode{
			Kind:      ResKindIO | ResKindDeviceResource,
			Bar:       bar,
			Length:    size,
			Alignment: size - 1,
		}, false, false, nil
	}

	is64 := orig&BarMemTypeMask == BarMemType64Bit
	prefetch := orig&BarPrefetchBit != 0
	maskLow := probe & BarMemAddrMask

	if !is64 {
		size := uint64(^maskLow + 1)
		return &ResourceNode{
			Kind:         ResKindMem | ResKindDeviceResource,
			Bar:          bar,
			Length:       size,
			Alignment:    size - 1,
			Prefetchable: prefetch,
		}, false, false, nil
	}

	upperOffset := offset + 4
	origUpper, err := cfg.Read32(sbdf, upperOffset)
	if err != nil {
		return nil, false, false, newErr(KindNoSuchDevice, "ProbeBar", sbdf, err)
	}
	if err := cfg.Write32(sbdf, upperOffset, 0xFFFFFFFF); err != nil {
		return nil, false, false, newErr(KindNoSuchDevice, "ProbeBar", sbdf, err)
	}
	probeUpper, err := cfg.Read32(sbdf, upperOffset)
	if err != nil {
		return nil, false, false, newErr(KindNoSuchDevice, "ProbeBar", sbdf, err)
	}
	if err := cfg.Write32(sbdf, upperOffset, origUpper); err != nil {
		return nil, false, false, newErr(KindNoSuchDevice, "ProbeBar", sbdf, err)
	}

	maskAll := uint64(probeUpper)<<32 | uint64(maskLow)
	size := ^maskAll + 1

	if size > Size2GiB {
		return nil, true, true, nil
	}

	return &ResourceNode{
		Kind:         ResKindMem | ResKindDeviceResource,
		Bar:          bar,
		Length:       size,
		Alignment:    size - 1,
		Prefetchable: prefetch,
		Is64Bit:      true,
	}, true, false, nil
}
