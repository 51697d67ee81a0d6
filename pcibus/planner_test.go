package pcibus

import "testing"

func TestResourcePlannerPlan(t *testing.T) {
	devA := &Device{Sbdf: SBDF{Device: 1}}
	devB := &Device{Sbdf: SBDF{Device: 2}}
	devC := &Device{Sbdf: SBDF{Bus: 1, Device: 1}}
	bridgeDev := &Device{Sbdf: SBDF{Device: 3}}

	root := &Bridge{}
	child := &Bridge{Device: bridgeDev, Parent: root}
	root.Children = []*Bridge{child}

	root.Resources = []*ResourceNode{
		{Kind: ResKindMem | ResKindDeviceResource, Device: devA, Length: 0x2000, Alignment: 0x1FFF},
		{Kind: ResKindMem | ResKindDeviceResource, Device: devB, Length: 0x1000, Alignment: 0xFFF},
	}
	child.Resources = []*ResourceNode{
		{Kind: ResKindMem | ResKindDeviceResource, Device: devC, Length: 0x4000, Alignment: 0x3FFF},
	}

	p := NewResourcePlanner()
	if err := p.Plan(root); err != nil {
		t.Fatalf("Plan: %v", err)
	}

	// The child's own MEM resource packs at offset 0 inside the child.
	if child.Resources[0].Offset != 0 {
		t.Errorf("child leaf offset = %#x, want 0", child.Resources[0].Offset)
	}

	// The child's aperture, rounded up to 1MiB, must appear in the root's
	// list and must have been sorted ahead of root's smaller own resources.
	aperture := BridgeGetFirstResourceNode(root, ResKindMem|ResKindAperture)
	if aperture == nil {
		t.Fatal("no MEM aperture materialized into root's resource list")
	}
	if aperture.Length != MemApertureAlign {
		t.Errorf("aperture length = %#x, want %#x", aperture.Length, MemApertureAlign)
	}
	if aperture.Device != bridgeDev {
		t.Errorf("aperture.Device = %v, want bridgeDev", aperture.Device)
	}
	if aperture.Offset != 0 {
		t.Errorf("aperture offset = %#x, want 0 (largest resource, placed first)", aperture.Offset)
	}

	// devA (0x2000) must follow the 1MiB aperture, aligned to its own size.
	var gotA, gotB *ResourceNode
	for _, r := range root.Resources {
		switch r.Device {
		case devA:
			gotA = r
		case devB:
			gotB = r
		}
	}
	if gotA == nil || gotA.Offset != MemApertureAlign {
		t.Errorf("devA offset = %v, want %#x", gotA, MemApertureAlign)
	}
	if gotB == nil || gotB.Offset != MemApertureAlign+0x2000 {
		t.Errorf("devB offset = %v, want %#x", gotB, MemApertureAlign+0x2000)
	}
}
