package vm

import (
	"eduos/hal/simhal"
	"eduos/kconfig"
	"eduos/swap"
	"testing"
)

func newTestFrameTable(npages int, policy kconfig.EvictPolicy) (*FrameTable, *simhal.Allocator) {
	alloc := simhal.NewAllocator(npages)
	swapd := swap.NewDisk(simhal.NewDisk(npages * (kconfig.PageSize / kconfig.SectorSize)))
	return NewFrameTable(alloc, swapd, policy), alloc
}

func newTestSPT() *SPT {
	return NewSPT(simhal.NewPageMap())
}

// TestAnonPageFaultResolvesZeroFilled confirms an anonymous uninit page
// resolves to a zero-filled, present, writable mapping on first fault.
func TestAnonPageFaultResolvesZeroFilled(t *testing.T) {
	ft, _ := newTestFrameTable(4, kconfig.FIFO)
	spt := newTestSPT()
	va := uintptr(0x1000)

	if e := ft.AllocAnon(spt, va, true, false); e != 0 {
		t.Fatalf("AllocAnon: err %d", e)
	}
	if e := ft.Fault(spt, 0, 0, va, false); e != 0 {
		t.Fatalf("Fault: err %d", e)
	}

	kva, writable, ok := spt.PM.Get(va)
	if !ok {
		t.Fatal("page not present in hardware map after Fault")
	}
	if !writable {
		t.Error("anon page not writable after resolution")
	}
	for i, b := range kva {
		if b != 0 {
			t.Fatalf("resolved anon page not zero-filled at byte %d", i)
		}
	}
}

// TestStackGrowthWithinWindow confirms a fault just below rsp within the
// [rsp-8, rsp+32] window and within StackLimit grows the stack.
func TestStackGrowthWithinWindow(t *testing.T) {
	ft, _ := newTestFrameTable(4, kconfig.FIFO)
	spt := newTestSPT()
	stackTop := uintptr(0x7fff0000)
	rsp := stackTop - kconfig.PageSize

	faultVA := rsp - 4 // within [rsp-8, rsp+32]
	if e := ft.Fault(spt, rsp, stackTop, faultVA, false); e != 0 {
		t.Fatalf("Fault (stack growth): err %d", e)
	}
	if _, ok := spt.Lookup(faultVA); !ok {
		t.Error("stack growth did not install a page at the faulting address")
	}
}

// TestStackGrowthOutsideWindowFails confirms a fault far below rsp (not in
// [rsp-8, rsp+32]) is reported as a genuine fault rather than stack growth.
func TestStackGrowthOutsideWindowFails(t *testing.T) {
	ft, _ := newTestFrameTable(4, kconfig.FIFO)
	spt := newTestSPT()
	stackTop := uintptr(0x7fff0000)
	rsp := stackTop - kconfig.PageSize

	faultVA := rsp - 4096 // far beyond the window
	if e := ft.Fault(spt, rsp, stackTop, faultVA, false); e == 0 {
		t.Error("Fault succeeded for an address outside the stack-growth window, want EFAULT")
	}
}

// TestStackGrowthBeyondLimitFails confirms a fault that would grow the
// stack past StackLimit is rejected even though it falls within the
// rsp-relative window.
func TestStackGrowthBeyondLimitFails(t *testing.T) {
	ft, _ := newTestFrameTable(4, kconfig.FIFO)
	spt := newTestSPT()
	stackTop := uintptr(2 * StackLimit)
	rsp := uintptr(8) // rsp-8 == 0, avoiding uintptr underflow

	faultVA := rsp + 4 // within [rsp-8, rsp+32], but stackTop-va > StackLimit
	if e := ft.Fault(spt, rsp, stackTop, faultVA, false); e == 0 {
		t.Error("Fault succeeded beyond StackLimit, want EFAULT")
	}
}

// TestForkSharesThenCOWSplitsOnWrite confirms that after Fork, a write
// fault in the child gives it an independent copy while the parent's
// contents are unaffected.
func TestForkSharesThenCOWSplitsOnWrite(t *testing.T) {
	ft, _ := newTestFrameTable(8, kconfig.FIFO)
	parent := newTestSPT()
	va := uintptr(0x2000)

	if e := ft.AllocAnon(parent, va, true, false); e != 0 {
		t.Fatalf("AllocAnon: err %d", e)
	}
	if e := ft.Fault(parent, 0, 0, va, false); e != 0 {
		t.Fatalf("Fault (parent populate): err %d", e)
	}
	parentKVA, _, _ := parent.PM.Get(va)
	parentKVA[0] = 0xAB

	child := newTestSPT()
	if e := ft.Fork(parent, child); e != 0 {
		t.Fatalf("Fork: err %d", e)
	}

	// Both sides should now be mapped read-only (shared).
	if _, writable, ok := parent.PM.Get(va); !ok || writable {
		t.Errorf("parent page writable=%v after fork, want read-only", writable)
	}
	if _, writable, ok := child.PM.Get(va); !ok || writable {
		t.Errorf("child page writable=%v after fork, want read-only", writable)
	}

	// Child writes, triggering copy-on-write.
	if e := ft.Fault(child, 0, 0, va, true); e != 0 {
		t.Fatalf("Fault (child write, COW): err %d", e)
	}
	childKVA, writable, ok := child.PM.Get(va)
	if !ok || !writable {
		t.Fatalf("child page not writable after COW split")
	}
	childKVA[0] = 0xCD

	if parentKVA[0] != 0xAB {
		t.Errorf("parent's byte changed to %#x after child's COW write, want unchanged 0xAB", parentKVA[0])
	}
	if childKVA[0] != 0xCD {
		t.Errorf("child's byte = %#x after its own write, want 0xCD", childKVA[0])
	}

	// Parent, now the sole remaining sharer, should have regained write
	// access directly without another fault.
	if _, writable, _ := parent.PM.Get(va); !writable {
		t.Error("parent page not restored to writable once it's the sole sharer")
	}
}

// TestKillFreesFrameWhenLastSharerExits confirms tearing down the only
// remaining address space mapping a page returns its frame to the
// allocator.
func TestKillFreesFrameWhenLastSharerExits(t *testing.T) {
	ft, alloc := newTestFrameTable(4, kconfig.FIFO)
	spt := newTestSPT()
	va := uintptr(0x3000)

	before := alloc.NumFree()
	if e := ft.AllocAnon(spt, va, true, false); e != 0 {
		t.Fatalf("AllocAnon: err %d", e)
	}
	if e := ft.Fault(spt, 0, 0, va, false); e != 0 {
		t.Fatalf("Fault: err %d", e)
	}
	if got := alloc.NumFree(); got != before-1 {
		t.Fatalf("NumFree() = %d after one claim, want %d", got, before-1)
	}

	ft.Kill(spt)
	if got := alloc.NumFree(); got != before {
		t.Errorf("NumFree() = %d after Kill, want restored to %d", got, before)
	}
}

// TestSwapUnderPressure drives more anonymous pages through a frame table
// than it has frames, under each eviction policy, and confirms every
// page's original byte pattern survives the swap-out/swap-in round trip.
// It also pins down that claiming a fresh frame after an eviction never
// hands out a physical page that's still backing another resident page:
// if it did, the first re-fault below would read back a stale, overwritten
// pattern instead of its own, and the allocator's free-list accounting
// (checked immediately after the initial fill) would show phantom frames.
func TestSwapUnderPressure(t *testing.T) {
	const nframes = 2
	const npages = 5

	policies := []struct {
		name   string
		policy kconfig.EvictPolicy
	}{
		{"FIFO", kconfig.FIFO},
		{"LRU", kconfig.LRU},
		{"Clock", kconfig.Clock},
	}

	for _, tc := range policies {
		t.Run(tc.name, func(t *testing.T) {
			// The swap disk holds one slot per page, so every evicted page
			// has somewhere to go; only the frame pool is under pressure.
			alloc := simhal.NewAllocator(nframes)
			swapd := swap.NewDisk(simhal.NewDisk(npages * (kconfig.PageSize / kconfig.SectorSize)))
			ft := NewFrameTable(alloc, swapd, tc.policy)
			spt := newTestSPT()

			vas := make([]uintptr, npages)
			for i := 0; i < npages; i++ {
				va := uintptr(0x10000 + i*kconfig.PageSize)
				vas[i] = va
				if e := ft.AllocAnon(spt, va, true, false); e != 0 {
					t.Fatalf("AllocAnon(%d): err %d", i, e)
				}
				if e := ft.Fault(spt, 0, 0, va, true); e != 0 {
					t.Fatalf("Fault(%d) populate: err %d", i, e)
				}
				kva, _, ok := spt.PM.Get(va)
				if !ok {
					t.Fatalf("page %d not present after Fault", i)
				}
				pattern := byte(i + 1)
				for j := range kva {
					kva[j] = pattern
				}
			}

			// Only nframes pages can be resident at once; every claim
			// beyond that evicts, so the allocator should have nothing
			// left free and nothing phantom either.
			if got := alloc.NumFree(); got != 0 {
				t.Fatalf("NumFree() = %d with %d pages live over %d frames, want 0", got, npages, nframes)
			}

			for i := 0; i < npages; i++ {
				if e := ft.Fault(spt, 0, 0, vas[i], false); e != 0 {
					t.Fatalf("Fault(%d) reload: err %d", i, e)
				}
				kva, _, ok := spt.PM.Get(vas[i])
				if !ok {
					t.Fatalf("page %d not present after reload", i)
				}
				want := byte(i + 1)
				for j, b := range kva {
					if b != want {
						t.Fatalf("page %d byte %d = %#x after swap round trip, want %#x", i, j, b, want)
					}
				}
			}
		})
	}
}

// TestMmapRoundTrip confirms a mapped file's bytes are visible after a
// fault resolves the mapping, and Munmap tears it down cleanly.
func TestMmapRoundTrip(t *testing.T) {
	ft, _ := newTestFrameTable(4, kconfig.FIFO)
	spt := newTestSPT()

	content := make([]byte, kconfig.PageSize)
	content[0] = 0x42
	f := simhal.NewFile(content)

	addr := uintptr(0x4000)
	base, e := ft.Mmap(spt, addr, kconfig.PageSize, true, f, 0)
	if e != 0 {
		t.Fatalf("Mmap: err %d", e)
	}
	if base != addr {
		t.Fatalf("Mmap returned base %#x, want %#x", base, addr)
	}

	if e := ft.Fault(spt, 0, 0, addr, false); e != 0 {
		t.Fatalf("Fault (mmap populate): err %d", e)
	}
	kva, _, ok := spt.PM.Get(addr)
	if !ok {
		t.Fatal("mmap'd page not present after Fault")
	}
	if kva[0] != 0x42 {
		t.Errorf("mmap'd page byte 0 = %#x, want 0x42", kva[0])
	}

	if e := ft.Munmap(spt, addr); e != 0 {
		t.Fatalf("Munmap: err %d", e)
	}
	if _, ok := spt.Lookup(addr); ok {
		t.Error("page still present in SPT after Munmap")
	}
}
