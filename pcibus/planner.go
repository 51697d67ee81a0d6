package pcibus

// ResourcePlanner walks the enumeration tree post-order, assigning every
// resource node an offset within its owning bridge's address space and
// materializing each non-root bridge's own downstream aperture as a
// resource node in its parent's list, so the parent's own offset-assignment
// pass accounts for the bridge's whole subtree as a single span.
type ResourcePlanner struct{}

func NewResourcePlanner() *ResourcePlanner {
	return &ResourcePlanner{}
}

// Plan assigns offsets throughout bridge's subtree. Children are planned
// before their parent so a parent's aperture-materialization step can see
// every child's already-finalized aperture length.
func (p *ResourcePlanner) Plan(bridge *Bridge) error {
	for _, child := range bridge.Children {
		if err := p.Plan(child); err != nil {
			return err
		}
	}

	BridgeSortResourceList(bridge)
	assignOffsets(bridge, ResKindMem)
	assignOffsets(bridge, ResKindIO)

	if !bridge.IsRoot() {
		materializeAperture(bridge, ResKindMem, MemApertureAlign)
		materializeAperture(bridge, ResKindIO, IoApertureAlign)
	}
	return nil
}

// assignOffsets walks bridge's resource list filtered to kindMask (already
// sorted descending by length) and packs each node's offset after the
// previous node's end, aligned up to the node's own alignment requirement.
func assignOffsets(bridge *Bridge, kindMask ResKind) {
	var offset uint64
	for node := BridgeGetFirstResourceNode(bridge, kindMask); node != nil; node = BridgeGetNextResourceNode(bridge, node, kindMask) {
		offset = alignUp(offset, node.Alignment+1)
		node.Offset = offset
		offset += node.Length
	}
}

// materializeAperture rounds the span covered by bridge's kindMask
// resources up to roundTo and appends a single aperture ResourceNode
// describing that span to bridge's parent, tagged with bridge's own Device
// so the Programmer can later find which child bridge an aperture belongs
// to when writing base/limit registers.
func materializeAperture(bridge *Bridge, kindMask ResKind, roundTo uint64) {
	last := BridgeGetLastResourceNode(bridge, kindMask)
	if last == nil {
		return
	}
	first := BridgeGetFirstResourceNode(bridge, kindMask)

	length := alignUp(last.Offset+last.Length, roundTo)
	alignment := length - 1
	if first.Alignment > alignment {
		alignment = first.Alignment
	}

	aperture := &ResourceNode{
		Kind:      kindMask | ResKindAperture,
		Device:    bridge.Device,
		Bar:       BarIndexNone,
		Length:    length,
		Alignment: alignment,
	}
	bridge.Parent.Resources = append(bridge.Parent.Resources, aperture)
}

// alignUp rounds x up to the next multiple of align, which callers must
// guarantee is a nonzero power of two.
func alignUp(x, align uint64) uint64 {
	if align <= 1 {
		return x
	}
	return (x + align - 1) &^ (align - 1)
}
