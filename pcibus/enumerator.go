package pcibus

// Enumerator performs two traversals: a
// depth-first bus-number assignment pass, and a separate depth-first
// resource-discovery pass that records BAR requests into each bridge's
// resource list.
type Enumerator struct {
	Cfg ConfigSpace
}

func NewEnumerator(cfg ConfigSpace) *Enumerator {
	return &Enumerator{Cfg: cfg}
}

// probedFunction is what reading a function's identity registers tells the
// enumerator before it decides whether the slot is present, multi-function,
// or a bridge.
type probedFunction struct {
	present    bool
	vendorID   uint16
	headerType uint8
	baseClass  uint8
	subClass   uint8
	pcieCap    uint16
	portType   DevicePortType
}

func (e *Enumerator) probeFunction(sbdf SBDF) (probedFunction, error) {
	vendorID, err := e.Cfg.Read16(sbdf, RegVendorID)
	if err != nil {
		return probedFunction{}, newErr(KindNoSuchDevice, "probeFunction", sbdf, err)
	}
	if vendorID == 0xFFFF {
		return probedFunction{present: false}, nil
	}
	headerType, err := e.Cfg.Read8(sbdf, RegHeaderType)
	if err != nil {
		return probedFunction{}, newErr(KindNoSuchDevice, "probeFunction", sbdf, err)
	}
	baseClass, err := e.Cfg.Read8(sbdf, RegBaseClass)
	if err != nil {
		return probedFunction{}, newErr(KindNoSuchDevice, "probeFunction", sbdf, err)
	}
	subClass, err := e.Cfg.Read8(sbdf, RegSubClass)
	if err != nil {
		return probedFunction{}, newErr(KindNoSuchDevice, "probeFunction", sbdf, err)
	}
	pcieCap, err := FindCapability(e.Cfg, sbdf, CapIDPCIExpress)
	if err != nil {
		return probedFunction{}, err
	}
	portType, _, err := DevicePortTypeOf(e.Cfg, sbdf, pcieCap)
	if err != nil {
		return probedFunction{}, err
	}
	return probedFunction{
		present:    true,
		vendorID:   vendorID,
		headerType: headerType,
		baseClass:  baseClass,
		subClass:   subClass,
		pcieCap:    pcieCap,
		portType:   portType,
	}, nil
}

// AssignBusNumbers walks bridge's secondary bus depth-first, assigning each
// discovered PCI-to-PCI bridge the next unused bus number. It widens each
// bridge's subordinate-bus register to busLimit before recursing into it (so
// downstream bridges can claim bus numbers of their own) and tightens it to
// the actual highest bus number used once the recursion returns, the same
// widen-then-tighten shape the resource Programmer uses for apertures.
// nextBus is threaded by pointer so sibling subtrees never reuse a bus
// number a deeper subtree already claimed.
func (e *Enumerator) AssignBusNumbers(bridge *Bridge, nextBus *uint8, busLimit uint8) error {
	for dev := 0; dev < 32; dev++ {
		numFuncs := 8
		for fn := 0; fn < numFuncs; fn++ {
			sbdf := SBDF{Segment: bridge.Segment, Bus: bridge.SecondaryBus, Device: uint8(dev), Func: uint8(fn)}
			probed, err := e.probeFunction(sbdf)
			if err != nil {
				return err
			}
			if !probed.present {
				if fn == 0 {
					break
				}
				continue
			}
			if fn == 0 && probed.headerType&HeaderTypeMultiFunction == 0 {
				numFuncs = 1
			}

			d := &Device{
				Sbdf:       sbdf,
				VendorID:   probed.vendorID,
				BaseClass:  probed.baseClass,
				SubClass:   probed.subClass,
				HeaderType: probed.headerType,
				PcieCap:    probed.pcieCap,
				PortType:   probed.portType,
				Essential:  PciIsDeviceEssential(probed.baseClass, probed.subClass),
			}

			if !IsBridgeDevice(d) {
				bridge.Endpoints = append(bridge.Endpoints, d)
				continue
			}

			if *nextBus >= busLimit {
				return newErr(KindOutOfResources, "AssignBusNumbers", sbdf, nil)
			}
			secBus := *nextBus + 1
			*nextBus = secBus

			child := &Bridge{
				Device:         d,
				Parent:         bridge,
				Segment:        bridge.Segment,
				PrimaryBus:     bridge.SecondaryBus,
				SecondaryBus:   secBus,
				SubordinateBus: busLimit,
			}
			d.OwningBridge = child

			if err := e.Cfg.Write8(sbdf, RegPrimaryBus, child.PrimaryBus); err != nil {
				return newErr(KindNoSuchDevice, "AssignBusNumbers", sbdf, err)
			}
			if err := e.Cfg.Write8(sbdf, RegSecondaryBus, child.SecondaryBus); err != nil {
				return newErr(KindNoSuchDevice, "AssignBusNumbers", sbdf, err)
			}
			if err := e.Cfg.Write8(sbdf, RegSubordinateBus, child.SubordinateBus); err != nil {
				return newErr(KindNoSuchDevice, "AssignBusNumbers", sbdf, err)
			}

			bridge.Children = append(bridge.Children, child)

			if err := e.AssignBusNumbers(child, nextBus, busLimit); err != nil {
				return err
			}

			child.SubordinateBus = *nextBus
			if err := e.Cfg.Write8(sbdf, RegSubordinateBus, child.SubordinateBus); err != nil {
				return newErr(KindNoSuchDevice, "AssignBusNumbers", sbdf, err)
			}
		}
	}
	return nil
}

// DiscoverResources walks the tree AssignBusNumbers already built and probes
// the BARs of every bridge function and every essential endpoint, recording
// a ResourceNode per implemented BAR in its owning bridge's resource list.
// Non-essential endpoints are not probed. A function that is already decoding
// memory or IO space (per IsDeviceDecodingResources) is left alone: its
// current programming is assumed correct and is never re-probed.
func (e *Enumerator) DiscoverResources(bridge *Bridge) error {
	for _, dev := range bridge.Endpoints {
		if !dev.Essential {
			continue
		}
		decoding, err := IsDeviceDecodingResources(e.Cfg, dev.Sbdf)
		if err != nil {
			return err
		}
		if decoding {
			continue
		}
		if err := e.probeBarsInto(bridge, dev, NumBars); err != nil {
			return err
		}
	}

	for _, child := range bridge.Children {
		decoding, err := IsDeviceDecodingResources(e.Cfg, child.Device.Sbdf)
		if err != nil {
			return err
		}
		if !decoding {
			// A bridge function itself has only two BAR registers.
			if err := e.probeBarsInto(bridge, child.Device, 2); err != nil {
				return err
			}
		}
		if err := e.DiscoverResources(child); err != nil {
			return err
		}
	}
	return nil
}

func (e *Enumerator) probeBarsInto(bridge *Bridge, dev *Device, numBars int) error {
	for bar := BarIndex(0); int(bar) < numBars; {
		node, consumedNext, tooLarge, err := ProbeBar(e.Cfg, dev.Sbdf, bar)
		if err != nil {
			return err
		}
		if tooLarge {
			RemoveResourceNodesBySbdf(bridge, dev.Sbdf)
			dev.Essential = false
			break
		}
		if node != nil {
			node.Device = dev
			bridge.Resources = append(bridge.Resources, node)
		}
		if consumedNext {
			bar += 2
		} else {
			bar++
		}
	}
	return nil
}
