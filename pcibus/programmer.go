package pcibus

// Programmer applies the offsets the ResourcePlanner computed to real
// hardware registers, in two phases. Phase one (Widen) opens every
// non-root bridge's decode window to its parent's full span so that
// phase two's downstream writes route correctly no matter what order
// bridges are visited in. Phase two (Tighten) writes every leaf device's
// BAR and narrows every bridge's window down to the exact aperture the
// planner computed for it.
type Programmer struct {
	Cfg ConfigSpace
}

func NewProgrammer(cfg ConfigSpace) *Programmer {
	return &Programmer{Cfg: cfg}
}

// Widen opens bridge's subtree to decode its parent's entire window,
// top-down, before any leaf BAR has a final address. Without this, a
// bridge programmed with its final (narrow) window before its children's
// BARs are written could silently drop config/MMIO accesses those writes
// need to reach.
func (pr *Programmer) Widen(bridge *Bridge, memBase, memLimit uint64, ioBase, ioLimit uint32) error {
	if !bridge.IsRoot() {
		bridge.MemBase, bridge.MemLimit = memBase, memLimit
		bridge.IoBase, bridge.IoLimit = ioBase, ioLimit
		if err := pr.writeMemWindow(bridge.Device.Sbdf, memBase, memLimit); err != nil {
			return err
		}
		if err := pr.writeIoWindow(bridge.Device.Sbdf, ioBase, ioLimit); err != nil {
			return err
		}
	}
	for _, child := range bridge.Children {
		if err := pr.Widen(child, memBase, memLimit, ioBase, ioLimit); err != nil {
			return err
		}
	}
	return nil
}

// Tighten writes every resource node in bridge's own list against the
// absolute base addresses passed in, then recurses into whichever child
// bridge each aperture resource belongs to with that child's own narrowed
// absolute window. memBase/ioBase are the absolute address this bridge's
// own window starts at (the host bridge's window, for the root); memLimit/
// ioLimit are the absolute address that window must not run past. A
// resource or aperture whose computed end address would exceed its limit
// fails with KindOutOfResources rather than being written.
func (pr *Programmer) Tighten(bridge *Bridge, memBase, memLimit uint64, ioBase, ioLimit uint32) error {
	if err := pr.tightenKind(bridge, memBase, uint64(ioBase), memLimit, uint64(ioLimit), ResKindMem); err != nil {
		return err
	}
	if err := pr.tightenKind(bridge, memBase, uint64(ioBase), memLimit, uint64(ioLimit), ResKindIO); err != nil {
		return err
	}
	return nil
}

func (pr *Programmer) tightenKind(bridge *Bridge, memBase, ioBase, memLimit, ioLimit uint64, kindMask ResKind) error {
	limit := memLimit
	if kindMask == ResKindIO {
		limit = ioLimit
	}

	for node := BridgeGetFirstResourceNode(bridge, kindMask); node != nil; node = BridgeGetNextResourceNode(bridge, node, kindMask) {
		if node.Kind.Is(ResKindAperture) {
			var absBase uint64
			if kindMask == ResKindMem {
				absBase = memBase + node.Offset
			} else {
				absBase = ioBase + node.Offset
			}
			// absLimit is inclusive of the whole span this child bridge
			// owns: base-plus-offset, not base alone, so the child's
			// window always lands inside its own allotted slice of the
			// parent's address space.
			absLimit := absBase + node.Length - 1
			if absLimit > limit {
				return newErr(KindOutOfResources, "Tighten", node.Device.Sbdf, nil)
			}

			child := findChildBridge(bridge, node.Device)
			if child == nil {
				return newErr(KindInvalidParameter, "Tighten", node.Device.Sbdf, nil)
			}

			if kindMask == ResKindMem {
				child.MemBase, child.MemLimit = absBase, absLimit
				if err := pr.writeMemWindow(child.Device.Sbdf, absBase, absLimit); err != nil {
					return err
				}
			} else {
				child.IoBase, child.IoLimit = uint32(absBase), uint32(absLimit)
				if err := pr.writeIoWindow(child.Device.Sbdf, uint32(absBase), uint32(absLimit)); err != nil {
					return err
				}
			}

			if kindMask == ResKindMem {
				if err := pr.Tighten(child, absBase, absLimit, uint32(ioBase), uint32(ioLimit)); err != nil {
					return err
				}
			} else {
				if err := pr.Tighten(child, memBase, memLimit, uint32(absBase), uint32(absLimit)); err != nil {
					return err
				}
			}
			continue
		}

		if node.Device == nil {
			continue
		}
		var abs uint64
		if kindMask == ResKindMem {
			abs = memBase + node.Offset
		} else {
			abs = ioBase + node.Offset
		}
		if abs+node.Length-1 > limit {
			return newErr(KindOutOfResources, "Tighten", node.Device.Sbdf, nil)
		}
		if err := pr.writeBar(node.Device.Sbdf, node.Bar, abs, node.Is64Bit); err != nil {
			return err
		}
	}
	return nil
}

func findChildBridge(bridge *Bridge, device *Device) *Bridge {
	for _, c := range bridge.Children {
		if c.Device == device {
			return c
		}
	}
	return nil
}

func (pr *Programmer) writeBar(sbdf SBDF, bar BarIndex, addr uint64, is64 bool) error {
	offset := uint16(RegBar0) + uint16(bar)*4
	if err := pr.Cfg.Write32(sbdf, offset, uint32(addr)); err != nil {
		return newErr(KindNoSuchDevice, "writeBar", sbdf, err)
	}
	if is64 {
		if err := pr.Cfg.Write32(sbdf, offset+4, uint32(addr>>32)); err != nil {
			return newErr(KindNoSuchDevice, "writeBar", sbdf, err)
		}
	}
	return nil
}

// writeMemWindow encodes a 1MiB-granular base/limit pair into the 16-bit
// memory base and memory limit registers: the top 12 bits carry address
// bits 31:20, the low 4 bits are reserved capability bits (zero for a
// plain 32-bit non-prefetchable window).
func (pr *Programmer) writeMemWindow(sbdf SBDF, base, limit uint64) error {
	baseReg := uint16((base>>16)&0xFFF0) &^ 0xF
	limitReg := uint16((limit>>16)&0xFFF0) &^ 0xF
	if err := pr.Cfg.Write16(sbdf, RegMemBase, baseReg); err != nil {
		return newErr(KindNoSuchDevice, "writeMemWindow", sbdf, err)
	}
	if err := pr.Cfg.Write16(sbdf, RegMemLimit, limitReg); err != nil {
		return newErr(KindNoSuchDevice, "writeMemWindow", sbdf, err)
	}
	return nil
}

// writeIoWindow encodes a 4KiB-granular base/limit pair into the 16-bit IO
// base and IO limit registers: bits 7:4 of each carry address bits 15:12. The
// bridge IO base/limit registers have no 32-bit-capable upper-word variant
// the way the memory window registers do, so a window that doesn't fit in
// 16 bits of address can't be programmed at all; rejecting it here keeps a
// wide window from coming back truncated and silently aliasing over the
// first 64KiB of IO space.
func (pr *Programmer) writeIoWindow(sbdf SBDF, base, limit uint32) error {
	if base > 0xFFFF || limit > 0xFFFF {
		return newErr(KindUnsupported, "writeIoWindow", sbdf, nil)
	}
	baseReg := uint16((base>>8)&0xFFF0) &^ 0xF
	limitReg := (uint16((limit>>8)&0xFFF0) &^ 0xF) | 0xF
	if err := pr.Cfg.Write16(sbdf, RegIoBase, baseReg); err != nil {
		return newErr(KindNoSuchDevice, "writeIoWindow", sbdf, err)
	}
	if err := pr.Cfg.Write16(sbdf, RegIoLimit, limitReg); err != nil {
		return newErr(KindNoSuchDevice, "writeIoWindow", sbdf, err)
	}
	return nil
}
