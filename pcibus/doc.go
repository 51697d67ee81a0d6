// Package pcibus implements a pre-boot PCI Express enumerator and resource
// allocator: bus-number assignment across PCI-to-PCI bridges, BAR and
// aperture resource-tree construction with alignment-aware packing,
// two-phase widen-then-tighten register programming, and a per-device
// access facade published for essential devices (mass storage, USB, and SD
// host controllers).
//
// Every hardware touchpoint - configuration space, memory-mapped BARs,
// port I/O, IOMMU mapping - is an interface declared in this package and
// satisfied by a platform-specific implementation elsewhere (see
// internal/ecam for the ones this module ships). pcibus itself never
// reaches past those interfaces, so the whole enumeration pipeline runs
// identically over real hardware and over an in-memory simulation.
package pcibus
