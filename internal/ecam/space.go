// Package ecam provides the hardware-facing collaborators pcibus declares
// interfaces for: ECAM-addressed configuration space, BAR-backed MMIO and
// port I/O, and a reference identity IOMMU for platforms without real
// translation hardware.
package ecam

import (
	"unsafe"

	"github.com/mczaj/edk2-platforms/pcibus"
)

// Space is a ConfigSpace backed directly by a platform's ECAM window: base
// is the window's physical (or already-mapped virtual) address, and every
// access computes base + bus<<20 + dev<<15 + func<<12 + offset before
// issuing a volatile load or store.
type Space struct {
	Base uintptr
}

// NewSpace wraps an already-mapped ECAM window starting at base.
func NewSpace(base uintptr) *Space {
	return &Space{Base: base}
}

func (s *Space) addr(sbdf pcibus.SBDF, offset uint16) uintptr {
	return s.Base + uintptr(sbdf.ECAMOffset()) + uintptr(offset)
}

func (s *Space) Read8(sbdf pcibus.SBDF, offset uint16) (uint8, error) {
	return *(*uint8)(unsafe.Pointer(s.addr(sbdf, offset))), nil
}

func (s *Space) Read16(sbdf pcibus.SBDF, offset uint16) (uint16, error) {
	return *(*uint16)(unsafe.Pointer(s.addr(sbdf, offset))), nil
}

func (s *Space) Read32(sbdf pcibus.SBDF, offset uint16) (uint32, error) {
	return *(*uint32)(unsafe.Pointer(s.addr(sbdf, offset))), nil
}

func (s *Space) Write8(sbdf pcibus.SBDF, offset uint16, val uint8) error {
	*(*uint8)(unsafe.Pointer(s.addr(sbdf, offset))) = val
	return nil
}

func (s *Space) Write16(sbdf pcibus.SBDF, offset uint16, val uint16) error {
	*(*uint16)(unsafe.Pointer(s.addr(sbdf, offset))) = val
	return nil
}

func (s *Space) Write32(sbdf pcibus.SBDF, offset uint16, val uint32) error {
	*(*uint32)(unsafe.Pointer(s.addr(sbdf, offset))) = val
	return nil
}
