//go:build !amd64

package ecam

import "fmt"

// Port is unimplemented on architectures with no port I/O address space
// (aarch64 and friends route everything through MMIO instead); callers on
// those platforms should use SimulatedPIO or an MMIO-mapped device.
type Port struct{}

func (Port) In(port uint64, width int) (uint64, error) {
	return 0, fmt.Errorf("port I/O not available on this architecture")
}

func (Port) Out(port uint64, width int, val uint64) error {
	return fmt.Errorf("port I/O not available on this architecture")
}
