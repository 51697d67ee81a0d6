package pcibus

// Tree-query helpers over a Bridge's resource list, operating on the
// Resources slice directly; Go slices already give O(1) append and random
// access without any intrusive-list bookkeeping.

// IsBridgeDevice reports whether d is a PCI-to-PCI bridge. A function that
// carries a PCI Express capability is classified by its Device/Port Type
// field: only an upstream or downstream switch port counts as a bridge for
// this allocator's purposes. A function with no PCI Express capability at
// all (conventional PCI) has no port-type field to classify by, so it
// falls back to the legacy header-type bit instead.
func IsBridgeDevice(d *Device) bool {
	if d.PcieCap != 0 {
		return d.PortType == DevTypeUpstreamPort || d.PortType == DevTypeDownstreamPort
	}
	return d.HeaderType&HeaderTypeMask == HeaderTypeBridge
}

// IsDeviceDecodingResources reports whether the device's command register
// already has memory or IO space decode enabled. The Enumerator uses this
// to skip rediscovering BARs for a function (bridge or endpoint) firmware
// already configured upstream of this run.
func IsDeviceDecodingResources(cfg ConfigSpace, sbdf SBDF) (bool, error) {
	cmd, err := cfg.Read16(sbdf, RegCommand)
	if err != nil {
		return false, newErr(KindNoSuchDevice, "IsDeviceDecodingResources", sbdf, err)
	}
	return cmd&(CommandMemSpace|CommandIoSpace) != 0, nil
}

// RemoveResourceNodesBySbdf drops every resource node belonging to sbdf from
// bridge's list, used when a 64-bit BAR larger than Size2GiB disqualifies a
// device partway through discovery and any resources already recorded for
// it must be undone.
func RemoveResourceNodesBySbdf(bridge *Bridge, sbdf SBDF) {
	kept := bridge.Resources[:0]
	for _, r := range bridge.Resources {
		if r.Device != nil && r.Device.Sbdf == sbdf {
			continue
		}
		kept = append(kept, r)
	}
	bridge.Resources = kept
}

// BridgeSortResourceList stable-sorts bridge's resource list into
// descending order by Length, written as an explicit bubble-sort-to-fixpoint
// pass rather than sort.Slice so the "largest first" bin-packing property
// stays obviously stable under ties.
func BridgeSortResourceList(bridge *Bridge) {
	list := bridge.Resources
	for {
		swapped := false
		for i := 0; i+1 < len(list); i++ {
			if list[i+1].Length > list[i].Length {
				list[i], list[i+1] = list[i+1], list[i]
				swapped = true
			}
		}
		if !swapped {
			break
		}
	}
}

// BridgeGetFirstResourceNode returns the first resource node in bridge's
// list whose Kind carries every bit set in kind, or nil if none match.
func BridgeGetFirstResourceNode(bridge *Bridge, kind ResKind) *ResourceNode {
	if bridge == nil {
		return nil
	}
	for _, r := range bridge.Resources {
		if r.Kind.Is(kind) {
			return r
		}
	}
	return nil
}

// BridgeGetNextResourceNode returns the next resource node after node in
// bridge's list matching kind, or nil if node is the last match.
func BridgeGetNextResourceNode(bridge *Bridge, node *ResourceNode, kind ResKind) *ResourceNode {
	if bridge == nil || node == nil {
		return nil
	}
	idx := -1
	for i, r := range bridge.Resources {
		if r == node {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	for _, r := range bridge.Resources[idx+1:] {
		if r.Kind.Is(kind) {
			return r
		}
	}
	return nil
}

// BridgeGetLastResourceNode returns the last resource node in bridge's list
// matching kind, or nil if none match.
func BridgeGetLastResourceNode(bridge *Bridge, kind ResKind) *ResourceNode {
	var last *ResourceNode
	for node := BridgeGetFirstResourceNode(bridge, kind); node != nil; node = BridgeGetNextResourceNode(bridge, node, kind) {
		last = node
	}
	return last
}
