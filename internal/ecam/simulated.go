package ecam

import (
	"encoding/binary"

	"github.com/mczaj/edk2-platforms/pcibus"
)

// functionSpaceSize is the amount of per-function config space the
// simulated backend keeps, matching the legacy (non-extended) 256-byte
// window every function is guaranteed to have regardless of ECAM support.
const functionSpaceSize = 256

// Simulated is a ConfigSpace backed by an in-memory byte slice per
// function, the same fixture shape VMM-side PCI emulation in this corpus
// keeps a config space map for: present functions get a slice, absent ones
// read back as all-ones, which is how read-only-capable vendor IDs (0xFFFF)
// naturally happen without any special-casing in CfgAccess.
type Simulated struct {
	functions map[pcibus.SBDF][]byte
	barMasks  map[pcibus.SBDF]map[uint16]uint32
	probing   map[pcibus.SBDF]map[uint16]bool
}

// NewSimulated returns an empty simulated config space; use PutFunction to
// populate it with fixture devices before running the enumerator against
// it.
func NewSimulated() *Simulated {
	return &Simulated{
		functions: make(map[pcibus.SBDF][]byte),
		barMasks:  make(map[pcibus.SBDF]map[uint16]uint32),
		probing:   make(map[pcibus.SBDF]map[uint16]bool),
	}
}

// SeedBar gives sbdf's BAR at byteOffset (RegBar0 + 4*index) the
// probe-and-restore behavior a real BAR has: writing 0xFFFFFFFF to it and
// reading back yields sizeBytes's encoded size mask, rather than the
// literal 0xFFFFFFFF that was written, and any other write programs a real
// base address that reads back unchanged. typeBits carries the read-only
// low bits (IO-space, memory-type, prefetchable) a real BAR always reports
// regardless of what's been written to its address bits.
func (s *Simulated) SeedBar(sbdf pcibus.SBDF, byteOffset uint16, sizeBytes uint64, typeBits uint32, addrMask uint32) {
	s.PutFunction(sbdf)
	if s.barMasks[sbdf] == nil {
		s.barMasks[sbdf] = make(map[uint16]uint32)
	}
	mask := uint32(^(sizeBytes - 1))
	s.barMasks[sbdf][byteOffset] = (mask & addrMask) | typeBits
	binary.LittleEndian.PutUint32(s.functions[sbdf][byteOffset:], typeBits)
}

// SeedBarUpper records the size mask for the upper dword of a 64-bit BAR
// pair, which carries no type bits of its own.
func (s *Simulated) SeedBarUpper(sbdf pcibus.SBDF, byteOffset uint16, sizeBytes uint64) {
	s.PutFunction(sbdf)
	if s.barMasks[sbdf] == nil {
		s.barMasks[sbdf] = make(map[uint16]uint32)
	}
	s.barMasks[sbdf][byteOffset] = uint32(^(sizeBytes - 1) >> 32)
	binary.LittleEndian.PutUint32(s.functions[sbdf][byteOffset:], 0)
}

// PutFunction installs raw, zero-initialized config space for sbdf if it
// isn't already present, returning the backing slice so a test can seed
// specific register values directly. Registers reset to zero, matching
// real hardware; only a function nothing has ever called PutFunction for
// reads back as all-ones, the way an empty slot's vendor ID does.
func (s *Simulated) PutFunction(sbdf pcibus.SBDF) []byte {
	if buf, ok := s.functions[sbdf]; ok {
		return buf
	}
	buf := make([]byte, functionSpaceSize)
	s.functions[sbdf] = buf
	return buf
}

func (s *Simulated) bytes(sbdf pcibus.SBDF, offset uint16, width int) ([]byte, error) {
	buf, ok := s.functions[sbdf]
	if !ok {
		missing := make([]byte, width)
		for i := range missing {
			missing[i] = 0xFF
		}
		return missing, nil
	}
	if int(offset)+width > len(buf) {
		return nil, &pcibus.Error{Kind: pcibus.KindInvalidParameter, Sbdf: sbdf, Op: "Simulated"}
	}
	return buf[offset : int(offset)+width], nil
}

func (s *Simulated) Read8(sbdf pcibus.SBDF, offset uint16) (uint8, error) {
	b, err := s.bytes(sbdf, offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *Simulated) Read16(sbdf pcibus.SBDF, offset uint16) (uint16, error) {
	b, err := s.bytes(sbdf, offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s *Simulated) Read32(sbdf pcibus.SBDF, offset uint16) (uint32, error) {
	if s.probing[sbdf] != nil && s.probing[sbdf][offset] {
		return s.barMasks[sbdf][offset], nil
	}
	b, err := s.bytes(sbdf, offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *Simulated) Write8(sbdf pcibus.SBDF, offset uint16, val uint8) error {
	buf := s.PutFunction(sbdf)
	if int(offset) >= len(buf) {
		return &pcibus.Error{Kind: pcibus.KindInvalidParameter, Sbdf: sbdf, Op: "Simulated"}
	}
	buf[offset] = val
	return nil
}

func (s *Simulated) Write16(sbdf pcibus.SBDF, offset uint16, val uint16) error {
	buf := s.PutFunction(sbdf)
	if int(offset)+2 > len(buf) {
		return &pcibus.Error{Kind: pcibus.KindInvalidParameter, Sbdf: sbdf, Op: "Simulated"}
	}
	binary.LittleEndian.PutUint16(buf[offset:], val)
	return nil
}

// isBarRangeOffset reports whether offset falls within a type 0 header's
// six BAR registers, the range ProbeBar ever probes.
func isBarRangeOffset(offset uint16) bool {
	return offset >= pcibus.RegBar0 && offset < pcibus.RegBar0+pcibus.NumBars*4
}

func (s *Simulated) Write32(sbdf pcibus.SBDF, offset uint16, val uint32) error {
	buf := s.PutFunction(sbdf)
	if int(offset)+4 > len(buf) {
		return &pcibus.Error{Kind: pcibus.KindInvalidParameter, Sbdf: sbdf, Op: "Simulated"}
	}
	if _, isBar := s.barMasks[sbdf][offset]; isBar {
		if val == 0xFFFFFFFF {
			if s.probing[sbdf] == nil {
				s.probing[sbdf] = make(map[uint16]bool)
			}
			s.probing[sbdf][offset] = true
			return nil
		}
		if s.probing[sbdf] != nil {
			s.probing[sbdf][offset] = false
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
