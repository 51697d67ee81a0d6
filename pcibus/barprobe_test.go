package pcibus

import "testing"

func TestProbeBar(t *testing.T) {
	sbdf := SBDF{Bus: 1, Device: 2, Func: 0}

	t.Run("unimplemented", func(t *testing.T) {
		cfg := newFakeConfigSpace()
		cfg.seedBar(sbdf, RegBar0, 0, 0, BarMemAddrMask)

		node, consumedNext, tooLarge, err := ProbeBar(cfg, sbdf, 0)
		if err != nil {
			t.Fatalf("ProbeBar: %v", err)
		}
		if node != nil || consumedNext || tooLarge {
			t.Fatalf("got node=%v consumedNext=%v tooLarge=%v, want nil/false/false", node, consumedNext, tooLarge)
		}
	})

	t.Run("32-bit memory BAR", func(t *testing.T) {
		cfg := newFakeConfigSpace()
		cfg.seedBar(sbdf, RegBar0, 0x1000, 0, BarMemAddrMask)

		node, consumedNext, tooLarge, err := ProbeBar(cfg, sbdf, 0)
		if err != nil {
			t.Fatalf("ProbeBar: %v", err)
		}
		if consumedNext || tooLarge {
			t.Fatalf("consumedNext=%v tooLarge=%v, want false/false", consumedNext, tooLarge)
		}
		if node == nil {
			t.Fatal("node = nil, want a resource node")
		}
		if !node.Kind.Is(ResKindMem | ResKindDeviceResource) {
			t.Errorf("Kind = %v, want MEM device resource", node.Kind)
		}
		if node.Length != 0x1000 {
			t.Errorf("Length = %#x, want 0x1000", node.Length)
		}
		if node.Alignment != 0xFFF {
			t.Errorf("Alignment = %#x, want 0xFFF", node.Alignment)
		}
		if node.Is64Bit {
			t.Errorf("Is64Bit = true, want false")
		}
	})

	t.Run("IO BAR", func(t *testing.T) {
		cfg := newFakeConfigSpace()
		cfg.seedBar(sbdf, RegBar0, 0x20, BarIoSpaceBit, BarIoAddrMask)

		node, consumedNext, tooLarge, err := ProbeBar(cfg, sbdf, 0)
		if err != nil {
			t.Fatalf("ProbeBar: %v", err)
		}
		if consumedNext || tooLarge {
			t.Fatalf("consumedNext=%v tooLarge=%v, want false/false", consumedNext, tooLarge)
		}
		if !node.Kind.Is(ResKindIO | ResKindDeviceResource) {
			t.Errorf("Kind = %v, want IO device resource", node.Kind)
		}
		if node.Length != 0x20 {
			t.Errorf("Length = %#x, want 0x20", node.Length)
		}
	})

	t.Run("64-bit memory BAR under size limit", func(t *testing.T) {
		cfg := newFakeConfigSpace()
		cfg.seedBar(sbdf, RegBar0, 0x200000, BarMemType64Bit|BarPrefetchBit, BarMemAddrMask)
		cfg.seedBarUpper(sbdf, RegBar0+4, 0x200000)

		node, consumedNext, tooLarge, err := ProbeBar(cfg, sbdf, 0)
		if err != nil {
			t.Fatalf("ProbeBar: %v", err)
		}
		if !consumedNext {
			t.Error("consumedNext = false, want true for a 64-bit BAR")
		}
		if tooLarge {
			t.Error("tooLarge = true, want false")
		}
		if !node.Is64Bit {
			t.Error("Is64Bit = false, want true")
		}
		if !node.Prefetchable {
			t.Error("Prefetchable = false, want true")
		}
		if node.Length != 0x200000 {
			t.Errorf("Length = %#x, want 0x200000", node.Length)
		}
	})

	t.Run("64-bit memory BAR over size limit is rejected", func(t *testing.T) {
		cfg := newFakeConfigSpace()
		const tooBig = Size2GiB * 2
		cfg.seedBar(sbdf, RegBar0, tooBig, BarMemType64Bit, BarMemAddrMask)
		cfg.seedBarUpper(sbdf, RegBar0+4, tooBig)

		node, consumedNext, tooLarge, err := ProbeBar(cfg, sbdf, 0)
		if err != nil {
			t.Fatalf("ProbeBar: %v", err)
		}
		if node != nil {
			t.Errorf("node = %v, want nil", node)
		}
		if !tooLarge {
			t.Error("tooLarge = false, want true")
		}
		if !consumedNext {
			t.Error("consumedNext = false, want true (upper dword was still probed)")
		}
	})
}
