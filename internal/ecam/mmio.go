package ecam

import (
	"fmt"
	"unsafe"

	"github.com/mczaj/edk2-platforms/pcibus"
)

// MMIO is an MMIOSpace backed by a direct volatile pointer access, for a
// BAR's address range mapped straight into the running process's address
// space (the pre-boot environment's identity mapping, in the firmware this
// module's algorithms were modeled on).
type MMIO struct{}

func (MMIO) Read(addr uint64, width int) (uint64, error) {
	switch width {
	case 1:
		return uint64(*(*uint8)(unsafe.Pointer(uintptr(addr)))), nil
	case 2:
		return uint64(*(*uint16)(unsafe.Pointer(uintptr(addr)))), nil
	case 4:
		return uint64(*(*uint32)(unsafe.Pointer(uintptr(addr)))), nil
	case 8:
		return *(*uint64)(unsafe.Pointer(uintptr(addr))), nil
	default:
		return 0, fmt.Errorf("unsupported MMIO width %d", width)
	}
}

func (MMIO) Write(addr uint64, width int, val uint64) error {
	switch width {
	case 1:
		*(*uint8)(unsafe.Pointer(uintptr(addr))) = uint8(val)
	case 2:
		*(*uint16)(unsafe.Pointer(uintptr(addr))) = uint16(val)
	case 4:
		*(*uint32)(unsafe.Pointer(uintptr(addr))) = uint32(val)
	case 8:
		*(*uint64)(unsafe.Pointer(uintptr(addr))) = val
	default:
		return fmt.Errorf("unsupported MMIO width %d", width)
	}
	return nil
}

// SimulatedMMIO is an MMIOSpace over a plain byte slice, for tests and for
// cmd/pcienum's -fixture (simulated) mode. It's keyed by address so a test can reuse
// one instance across many BARs without having to carve up offsets itself.
type SimulatedMMIO struct {
	mem map[uint64][]byte
}

func NewSimulatedMMIO() *SimulatedMMIO {
	return &SimulatedMMIO{mem: make(map[uint64][]byte)}
}

func (m *SimulatedMMIO) region(addr uint64, width int) []byte {
	base := addr &^ 0xFFF
	buf, ok := m.mem[base]
	if !ok {
		buf = make([]byte, 0x1000)
		m.mem[base] = buf
	}
	off := addr - base
	return buf[off : off+uint64(width)]
}

func (m *SimulatedMMIO) Read(addr uint64, width int) (uint64, error) {
	b := m.region(addr, width)
	var v uint64
	for i := width - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}

func (m *SimulatedMMIO) Write(addr uint64, width int, val uint64) error {
	b := m.region(addr, width)
	for i := 0; i < width; i++ {
		b[i] = byte(val)
		val >>= 8
	}
	return nil
}

// IdentityIOMMU is a reference IOMMU that performs no translation: the
// device address handed back from Map is the host address passed in. It
// exists so DeviceFacade.Map/Unmap/AllocateBuffer/FreeBuffer work end to
// end on platforms that have no real IOMMU to locate.
type IdentityIOMMU struct {
	next uint64
}

type identityMapping struct {
	hostAddr uint64
	numBytes uint64
}

func NewIdentityIOMMU() *IdentityIOMMU {
	return &IdentityIOMMU{next: 0x1000}
}

func (i *IdentityIOMMU) Map(device pcibus.SBDF, op pcibus.IOOperation, hostAddr uint64, numBytes uint64) (uint64, pcibus.IOMMUMapping, error) {
	return hostAddr, &identityMapping{hostAddr: hostAddr, numBytes: numBytes}, nil
}

func (i *IdentityIOMMU) Unmap(mapping pcibus.IOMMUMapping) error {
	if _, ok := mapping.(*identityMapping); !ok {
		return fmt.Errorf("unmap: foreign mapping handle")
	}
	return nil
}

func (i *IdentityIOMMU) AllocateBuffer(device pcibus.SBDF, numPages uint64) (uint64, error) {
	const pageSize = 0x1000
	addr := i.next
	i.next += numPages * pageSize
	return addr, nil
}

func (i *IdentityIOMMU) FreeBuffer(hostAddr uint64, numPages uint64) error {
	return nil
}
