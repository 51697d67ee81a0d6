package pcibus

import (
	"context"
)

// AttributesOp selects which operation Attributes performs: Get, Supported,
// Set, Enable, or Disable.
type AttributesOp int

const (
	AttributesGet AttributesOp = iota
	AttributesSupported
	AttributesSet
	AttributesEnable
	AttributesDisable
)

// Attribute bits a DeviceFacade can report/enable/disable. The command-
// register bits are handled locally; every other bit is assumed to belong
// to an upstream bridge's own decode state and is propagated to every
// bridge between this device and the root.
const (
	AttrIoSpace      uint64 = 1 << 0
	AttrMemSpace     uint64 = 1 << 1
	AttrBusMaster    uint64 = 1 << 2
	AttrMemoryCached uint64 = 1 << 3
)

var commandAttrBits = AttrIoSpace | AttrMemSpace | AttrBusMaster

// DeviceFacade is the per-device access surface published for every
// essential device: register access, polling, DMA buffer mapping, and
// attribute negotiation, all scoped to one SBDF.
type DeviceFacade struct {
	dev   *Device
	cfg   ConfigSpace
	mmio  MMIOSpace
	pio   PIOSpace
	iommu IOMMU
	timer Timer

	supported uint64
	current   uint64
}

// NewDeviceFacade builds a facade for dev. ancestors must already be
// populated (see publishEssentialFacades in orchestrator.go) so Attributes
// propagation keeps working even after the tree dev came from is torn
// down.
func NewDeviceFacade(dev *Device, cfg ConfigSpace, mmio MMIOSpace, pio PIOSpace, iommu IOMMU, timer Timer, supported uint64) *DeviceFacade {
	return &DeviceFacade{dev: dev, cfg: cfg, mmio: mmio, pio: pio, iommu: iommu, timer: timer, supported: supported}
}

// Location returns the SBDF this facade is bound to.
func (f *DeviceFacade) Location() SBDF { return f.dev.Sbdf }

func (f *DeviceFacade) barBase(bar BarIndex, io bool) (uint64, error) {
	offset := uint16(RegBar0) + uint16(bar)*4
	raw, err := f.cfg.Read32(f.dev.Sbdf, offset)
	if err != nil {
		return 0, newErr(KindNoSuchDevice, "barBase", f.dev.Sbdf, err)
	}
	if io {
		return uint64(raw & BarIoAddrMask), nil
	}
	base := uint64(raw & BarMemMask32(raw))
	if raw&BarMemTypeMask == BarMemType64Bit {
		upper, err := f.cfg.Read32(f.dev.Sbdf, offset+4)
		if err != nil {
			return 0, newErr(KindNoSuchDevice, "barBase", f.dev.Sbdf, err)
		}
		base |= uint64(upper) << 32
	}
	return base, nil
}

// BarMemMask32 isolates the address bits of a just-read memory BAR value.
func BarMemMask32(raw uint32) uint32 { return raw & BarMemAddrMask }

// MemRead/MemWrite resolve bar's current base address fresh on every call
// (rather than caching it at publish time) so a facade user who reprograms
// a BAR still sees consistent reads.
func (f *DeviceFacade) MemRead(bar BarIndex, width int, offset uint64) (uint64, error) {
	base, err := f.barBase(bar, false)
	if err != nil {
		return 0, err
	}
	v, err := f.mmio.Read(base+offset, width)
	if err != nil {
		return 0, newErr(KindUnsupported, "MemRead", f.dev.Sbdf, err)
	}
	return v, nil
}

func (f *DeviceFacade) MemWrite(bar BarIndex, width int, offset uint64, val uint64) error {
	base, err := f.barBase(bar, false)
	if err != nil {
		return err
	}
	if err := f.mmio.Write(base+offset, width, val); err != nil {
		return newErr(KindUnsupported, "MemWrite", f.dev.Sbdf, err)
	}
	return nil
}

func (f *DeviceFacade) IoRead(bar BarIndex, width int, offset uint64) (uint64, error) {
	base, err := f.barBase(bar, true)
	if err != nil {
		return 0, err
	}
	v, err := f.pio.In(base+offset, width)
	if err != nil {
		return 0, newErr(KindUnsupported, "IoRead", f.dev.Sbdf, err)
	}
	return v, nil
}

func (f *DeviceFacade) IoWrite(bar BarIndex, width int, offset uint64, val uint64) error {
	base, err := f.barBase(bar, true)
	if err != nil {
		return err
	}
	if err := f.pio.Out(base+offset, width, val); err != nil {
		return newErr(KindUnsupported, "IoWrite", f.dev.Sbdf, err)
	}
	return nil
}

func (f *DeviceFacade) ConfigRead(width int, offset uint16) (uint64, error) {
	switch width {
	case 1:
		v, err := f.cfg.Read8(f.dev.Sbdf, offset)
		return uint64(v), err
	case 2:
		v, err := f.cfg.Read16(f.dev.Sbdf, offset)
		return uint64(v), err
	case 4:
		v, err := f.cfg.Read32(f.dev.Sbdf, offset)
		return uint64(v), err
	default:
		return 0, newErr(KindInvalidParameter, "ConfigRead", f.dev.Sbdf, nil)
	}
}

func (f *DeviceFacade) ConfigWrite(width int, offset uint16, val uint64) error {
	switch width {
	case 1:
		return f.cfg.Write8(f.dev.Sbdf, offset, uint8(val))
	case 2:
		return f.cfg.Write16(f.dev.Sbdf, offset, uint16(val))
	case 4:
		return f.cfg.Write32(f.dev.Sbdf, offset, uint32(val))
	default:
		return newErr(KindInvalidParameter, "ConfigWrite", f.dev.Sbdf, nil)
	}
}

// PollMem busy-waits until (value-read & mask) == value, sleeping
// delayUs-worth of 10-microsecond ticks between reads, and reports
// ErrTimeout once the delay budget is exhausted without a match.
func (f *DeviceFacade) PollMem(ctx context.Context, bar BarIndex, width int, offset, mask, value, delayUs uint64) (uint64, error) {
	return f.poll(ctx, delayUs, func() (uint64, error) { return f.MemRead(bar, width, offset) }, mask, value)
}

func (f *DeviceFacade) PollIo(ctx context.Context, bar BarIndex, width int, offset, mask, value, delayUs uint64) (uint64, error) {
	return f.poll(ctx, delayUs, func() (uint64, error) { return f.IoRead(bar, width, offset) }, mask, value)
}

func (f *DeviceFacade) poll(ctx context.Context, delayUs uint64, read func() (uint64, error), mask, value uint64) (uint64, error) {
	const tick = 10
	remaining := delayUs
	for {
		result, err := read()
		if err != nil {
			return 0, err
		}
		if result&mask == value {
			return result, nil
		}
		if remaining <= tick {
			return result, newErr(KindTimeout, "Poll", f.dev.Sbdf, nil)
		}
		f.timer.SleepMicroseconds(ctx, tick)
		remaining -= tick
	}
}

// CopyMem copies count elements of width bytes between two offsets of bar,
// reversing iteration direction when the destination range overlaps and
// starts after the source range, so an overlapping forward copy never
// clobbers source bytes it hasn't read yet.
func (f *DeviceFacade) CopyMem(bar BarIndex, destOffset, srcOffset uint64, width int, count uint64) error {
	stride := uint64(width)
	reverse := destOffset > srcOffset && destOffset < srcOffset+count*stride

	if !reverse {
		for i := uint64(0); i < count; i++ {
			v, err := f.MemRead(bar, width, srcOffset+i*stride)
			if err != nil {
				return err
			}
			if err := f.MemWrite(bar, width, destOffset+i*stride, v); err != nil {
				return err
			}
		}
		return nil
	}

	for i := count; i > 0; i-- {
		idx := i - 1
		v, err := f.MemRead(bar, width, srcOffset+idx*stride)
		if err != nil {
			return err
		}
		if err := f.MemWrite(bar, width, destOffset+idx*stride, v); err != nil {
			return err
		}
	}
	return nil
}

func (f *DeviceFacade) Map(op IOOperation, hostAddr, numBytes uint64) (uint64, IOMMUMapping, error) {
	deviceAddr, mapping, err := f.iommu.Map(f.dev.Sbdf, op, hostAddr, numBytes)
	if err != nil {
		return 0, nil, newErr(KindUnsupported, "Map", f.dev.Sbdf, err)
	}
	return deviceAddr, mapping, nil
}

func (f *DeviceFacade) Unmap(mapping IOMMUMapping) error {
	if err := f.iommu.Unmap(mapping); err != nil {
		return newErr(KindUnsupported, "Unmap", f.dev.Sbdf, err)
	}
	return nil
}

func (f *DeviceFacade) AllocateBuffer(numPages uint64) (uint64, error) {
	addr, err := f.iommu.AllocateBuffer(f.dev.Sbdf, numPages)
	if err != nil {
		return 0, newErr(KindOutOfResources, "AllocateBuffer", f.dev.Sbdf, err)
	}
	return addr, nil
}

func (f *DeviceFacade) FreeBuffer(hostAddr uint64, numPages uint64) error {
	if err := f.iommu.FreeBuffer(hostAddr, numPages); err != nil {
		return newErr(KindInvalidParameter, "FreeBuffer", f.dev.Sbdf, err)
	}
	return nil
}

// Attributes implements the Get/Supported/Set/Enable/Disable family. Set is
// implemented as Enable of the requested bits followed by Disable of every
// supported bit the request left out, so a single Set call always leaves
// exactly the requested attribute set active.
func (f *DeviceFacade) Attributes(op AttributesOp, attrs uint64) (uint64, error) {
	switch op {
	case AttributesGet:
		return f.current, nil
	case AttributesSupported:
		return f.supported, nil
	case AttributesSet:
		toDisable := f.supported &^ attrs
		if _, err := f.Attributes(AttributesEnable, attrs); err != nil {
			return 0, err
		}
		if _, err := f.Attributes(AttributesDisable, toDisable); err != nil {
			return 0, err
		}
		return f.current, nil
	case AttributesEnable:
		if attrs&^f.supported != 0 {
			return 0, newErr(KindUnsupported, "Attributes", f.dev.Sbdf, nil)
		}
		if err := f.setCommandBits(attrs&commandAttrBits, true); err != nil {
			return 0, err
		}
		f.current |= attrs
		f.propagateUpstream(attrs, true)
		return f.current, nil
	case AttributesDisable:
		if err := f.setCommandBits(attrs&commandAttrBits, false); err != nil {
			return 0, err
		}
		f.current &^= attrs
		f.propagateUpstream(attrs, false)
		return f.current, nil
	default:
		return 0, newErr(KindInvalidParameter, "Attributes", f.dev.Sbdf, nil)
	}
}

func (f *DeviceFacade) setCommandBits(bits uint64, enable bool) error {
	if bits == 0 {
		return nil
	}
	cmd, err := f.cfg.Read16(f.dev.Sbdf, RegCommand)
	if err != nil {
		return newErr(KindNoSuchDevice, "Attributes", f.dev.Sbdf, err)
	}
	mask := uint16(bits)
	if enable {
		cmd |= mask
	} else {
		cmd &^= mask
	}
	if err := f.cfg.Write16(f.dev.Sbdf, RegCommand, cmd); err != nil {
		return newErr(KindNoSuchDevice, "Attributes", f.dev.Sbdf, err)
	}
	return nil
}

// propagateUpstream pushes every non-command attribute bit to each ancestor
// bridge's own Attributes state, all the way to the root.
func (f *DeviceFacade) propagateUpstream(attrs uint64, enable bool) {
	nonCommand := attrs &^ commandAttrBits
	if nonCommand == 0 {
		return
	}
	for a := f.dev.ancestorHead(); a != nil; a = a.Parent {
		if enable {
			a.Attributes |= nonCommand
		} else {
			a.Attributes &^= nonCommand
		}
	}
}

// GetBarAttributes reports the attributes this controller supports setting
// on bar, plus a descriptor of bar's current resource assignment. The
// address in the returned descriptor is always re-read fresh off the BAR
// register; only the length/type classification comes from the snapshot
// taken at publish time.
func (f *DeviceFacade) GetBarAttributes(bar BarIndex) (uint64, BarResourceDescriptor, error) {
	desc, ok := f.dev.barResources[bar]
	if !ok {
		return 0, BarResourceDescriptor{}, newErr(KindInvalidParameter, "GetBarAttributes", f.dev.Sbdf, nil)
	}
	base, err := f.barBase(bar, desc.Kind.Is(ResKindIO))
	if err != nil {
		return 0, BarResourceDescriptor{}, err
	}
	desc.Base = base
	return f.supported, desc, nil
}

// SetBarAttributes sets attrs for the resource range [offset, offset+length)
// of bar. Every BAR's placement is already fixed by the resource planner
// before a facade is ever published, so there is nothing to actually
// change; this reports the requested range back unmodified.
func (f *DeviceFacade) SetBarAttributes(attrs uint64, bar BarIndex, offset, length uint64) (uint64, uint64, error) {
	if _, ok := f.dev.barResources[bar]; !ok {
		return offset, length, newErr(KindInvalidParameter, "SetBarAttributes", f.dev.Sbdf, nil)
	}
	return offset, length, nil
}

// Flush drains any buffered write-combining state for this device. There
// is none at this stage of boot, so this is a no-op.
func (f *DeviceFacade) Flush() error {
	return nil
}

func (d *Device) ancestorHead() *AncestorView {
	if len(d.ancestors) == 0 {
		return nil
	}
	return d.ancestors[0]
}
