package pcibus

import "encoding/binary"

// fakeConfigSpace is a minimal in-memory ConfigSpace for these package's
// tests: it behaves like a real BAR when probed (write 0xFFFFFFFF, read
// back a size mask, restore on any other write) without pulling in a
// platform-specific collaborator package. Reading a function nothing has
// ever written to returns all-ones bytes (an absent slot's vendor ID reads
// back as 0xFFFF, the same as real hardware); the first write to a
// function allocates a zero-filled backing buffer for it, so registers
// nothing has touched read back as zero rather than as the absent-slot
// sentinel.
type fakeConfigSpace struct {
	buf      map[SBDF][]byte
	barMasks map[SBDF]map[uint16]uint32
	probing  map[SBDF]map[uint16]bool
}

func newFakeConfigSpace() *fakeConfigSpace {
	return &fakeConfigSpace{
		buf:      make(map[SBDF][]byte),
		barMasks: make(map[SBDF]map[uint16]uint32),
		probing:  make(map[SBDF]map[uint16]bool),
	}
}

// create allocates sbdf's zero-filled backing buffer if it doesn't exist
// yet, marking the function present.
func (f *fakeConfigSpace) create(sbdf SBDF) []byte {
	b, ok := f.buf[sbdf]
	if !ok {
		b = make([]byte, 256)
		f.buf[sbdf] = b
	}
	return b
}

// readBytes returns width bytes at offset, or an all-ones slice if sbdf has
// never been written to.
func (f *fakeConfigSpace) readBytes(sbdf SBDF, offset uint16, width int) []byte {
	b, ok := f.buf[sbdf]
	if !ok {
		missing := make([]byte, width)
		for i := range missing {
			missing[i] = 0xFF
		}
		return missing
	}
	return b[offset : int(offset)+width]
}

func (f *fakeConfigSpace) seedBar(sbdf SBDF, offset uint16, sizeBytes uint64, typeBits, addrMask uint32) {
	f.create(sbdf)
	if f.barMasks[sbdf] == nil {
		f.barMasks[sbdf] = make(map[uint16]uint32)
	}
	mask := uint32(^(sizeBytes - 1))
	f.barMasks[sbdf][offset] = (mask & addrMask) | typeBits
	binary.LittleEndian.PutUint32(f.buf[sbdf][offset:], typeBits)
}

// seedPcieCap installs a single-entry PCI Express capability at capOffset,
// linked from RegCapPtr, with the given Device/Port Type encoded into its
// PCI Express Capabilities register.
func (f *fakeConfigSpace) seedPcieCap(sbdf SBDF, capOffset uint16, portType DevicePortType) {
	f.create(sbdf)
	_ = f.Write8(sbdf, RegCapPtr, uint8(capOffset))
	_ = f.Write8(sbdf, capOffset, CapIDPCIExpress)
	_ = f.Write8(sbdf, capOffset+1, 0)
	_ = f.Write16(sbdf, capOffset+PcieCapRegOffset, uint16(portType)<<PcieDevicePortTypeShift)
}

func (f *fakeConfigSpace) seedBarUpper(sbdf SBDF, offset uint16, sizeBytes uint64) {
	f.create(sbdf)
	if f.barMasks[sbdf] == nil {
		f.barMasks[sbdf] = make(map[uint16]uint32)
	}
	f.barMasks[sbdf][offset] = uint32(^(sizeBytes - 1) >> 32)
	binary.LittleEndian.PutUint32(f.buf[sbdf][offset:], 0)
}

func (f *fakeConfigSpace) Read8(sbdf SBDF, offset uint16) (uint8, error) {
	return f.readBytes(sbdf, offset, 1)[0], nil
}

func (f *fakeConfigSpace) Read16(sbdf SBDF, offset uint16) (uint16, error) {
	return binary.LittleEndian.Uint16(f.readBytes(sbdf, offset, 2)), nil
}

func (f *fakeConfigSpace) Read32(sbdf SBDF, offset uint16) (uint32, error) {
	if f.probing[sbdf] != nil && f.probing[sbdf][offset] {
		return f.barMasks[sbdf][offset], nil
	}
	return binary.LittleEndian.Uint32(f.readBytes(sbdf, offset, 4)), nil
}

func (f *fakeConfigSpace) Write8(sbdf SBDF, offset uint16, val uint8) error {
	f.create(sbdf)[offset] = val
	return nil
}

func (f *fakeConfigSpace) Write16(sbdf SBDF, offset uint16, val uint16) error {
	binary.LittleEndian.PutUint16(f.create(sbdf)[offset:], val)
	return nil
}

// isBarRangeOffset reports whether offset falls within a type 0 header's
// six BAR registers, the range ProbeBar ever probes.
func isBarRangeOffset(offset uint16) bool {
	return offset >= RegBar0 && offset < RegBar0+NumBars*4
}

func (f *fakeConfigSpace) Write32(sbdf SBDF, offset uint16, val uint32) error {
	buf := f.create(sbdf)
	if _, isBar := f.barMasks[sbdf][offset]; isBar {
		if val == 0xFFFFFFFF {
			if f.probing[sbdf] == nil {
				f.probing[sbdf] = make(map[uint16]bool)
			}
			f.probing[sbdf][offset] = true
			return nil
		}
		if f.probing[sbdf] != nil {
			f.probing[sbdf][offset] = false
		}
	} else if isBarRangeOffset(offset) {
		// A BAR register nothing ever registered as implemented is
		// hardwired: probing it (or writing through it at all) has no
		// effect, matching how real unimplemented BARs always read zero.
		return nil
	}
	binary.LittleEndian.PutUint32(buf[offset:], val)
	return nil
}
