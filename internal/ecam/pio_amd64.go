//go:build amd64

package ecam

import "fmt"

// Port is a PIOSpace backed by the amd64 IN/OUT instructions, the one
// touchpoint in this module Go's portable subset cannot reach on its own;
// inb/outb and friends are implemented in pio_amd64.s.
type Port struct{}

func (Port) In(port uint64, width int) (uint64, error) {
	switch width {
	case 1:
		return uint64(inb(uint16(port))), nil
	case 2:
		return uint64(inw(uint16(port))), nil
	case 4:
		return uint64(inl(uint16(port))), nil
	default:
		return 0, fmt.Errorf("unsupported port width %d", width)
	}
}

func (Port) Out(port uint64, width int, val uint64) error {
	switch width {
	case 1:
		outb(uint16(port), uint8(val))
	case 2:
		outw(uint16(port), uint16(val))
	case 4:
		outl(uint16(port), uint32(val))
	default:
		return fmt.Errorf("unsupported port width %d", width)
	}
	return nil
}

func inb(port uint16) uint8
func inw(port uint16) uint16
func inl(port uint16) uint32
func outb(port uint16, val uint8)
func outw(port uint16, val uint16)
func outl(port uint16, val uint32)
