package vm

import (
	"eduos/errs"
	"eduos/hal"
	"eduos/kconfig"
	"eduos/swap"
	"sync"
)

// FrameTable is the single global lock guarding every resident page and
// frame across all address spaces: one mutex over the entire physical
// free list, generalized to also own the mapping from frame back to
// owning page, since eviction and copy-on-write both need that link.
type FrameTable struct {
	mu sync.Mutex

	palloc hal.Allocator
	swapd  *swap.Disk
	policy kconfig.EvictPolicy

	frames    []*Frame // exactly the currently-resident frames
	clockHand int
	seq       int64
}

// NewFrameTable returns a frame table backed by palloc for physical pages
// and swapd for eviction of anonymous pages, under the given policy.
func NewFrameTable(palloc hal.Allocator, swapd *swap.Disk, policy kconfig.EvictPolicy) *FrameTable {
	return &FrameTable{palloc: palloc, swapd: swapd, policy: policy}
}

func (ft *FrameTable) nextSeq() int64 { ft.seq++; return ft.seq }

// Alloc installs a fresh uninit page into spt at va: va must not already be in spt, the page starts
// unmapped in hardware and is materialized lazily on first claim.
func (ft *FrameTable) Alloc(spt *SPT, va uintptr, writable bool, target PageKind, init InitFunc, aux interface{}) errs.Err_t {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	va = pageAlign(va)
	if _, ok := spt.pages[va]; ok {
		return errs.EINVAL
	}
	p := &Page{
		VA: va, Writable: writable, Kind: PageUninit,
		uninitTarget: target, uninitInit: init, uninitAux: aux,
		anonSlot: -1,
	}
	p.Share = newShareList(spt)
	spt.pages[va] = p
	return 0
}

// AllocAnon is a convenience wrapper installing an anonymous page that
// zero-fills on first claim; stack marks it as a stack page. Stack growth
// in Fault builds its pages directly rather than through this.
func (ft *FrameTable) AllocAnon(spt *SPT, va uintptr, writable, stack bool) errs.Err_t {
	return ft.Alloc(spt, va, writable, PageAnon, nil, stack)
}

// AllocFile installs an uninit page backed by file bytes at the given
// offset, with validBytes read from the file and the remainder zero
// filled.
func (ft *FrameTable) AllocFile(spt *SPT, va uintptr, writable bool, f hal.File, offset int64, validBytes, zeroBytes int) errs.Err_t {
	aux := &fileAux{file: f, offset: offset, valid: validBytes, zero: zeroBytes}
	return ft.Alloc(spt, va, writable, PageFile, nil, aux)
}

type fileAux struct {
	file   hal.File
	offset int64
	valid  int
	zero   int
}

// Claim resolves va to a resident frame, allocating or evicting as needed
// and dispatching to the page's swap-in path.
func (ft *FrameTable) Claim(spt *SPT, va uintptr) errs.Err_t {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	page, ok := spt.pages[pageAlign(va)]
	if !ok {
		return errs.EFAULT
	}
	return ft.claimLocked(spt, page)
}

func (ft *FrameTable) claimLocked(spt *SPT, page *Page) errs.Err_t {
	if page.Frame != nil {
		return 0
	}
	frame, err := ft.acquireLocked()
	if err != 0 {
		return err
	}
	ft.install(frame, page)
	writable := page.Writable && page.Share.Count() == 1
	page.Share.Each(func(s *SPT) {
		s.PM.Set(page.VA, frame.KVA, writable)
	})
	return ft.swapInLocked(page, frame)
}

func (ft *FrameTable) install(frame *Frame, page *Page) {
	frame.Page = page
	frame.seq = ft.nextSeq()
	page.Frame = frame
	ft.frames = append(ft.frames, frame)
}

func (ft *FrameTable) removeFrame(f *Frame) {
	for i, v := range ft.frames {
		if v == f {
			ft.frames = append(ft.frames[:i], ft.frames[i+1:]...)
			return
		}
	}
}

// acquireLocked gets a fresh frame: try the allocator first, else evict.
func (ft *FrameTable) acquireLocked() (*Frame, errs.Err_t) {
	if kva := ft.palloc.Get(hal.AllocUser); kva != nil {
		return &Frame{KVA: kva}, 0
	}
	return ft.evictLocked()
}

// evictLocked runs the configured eviction policy and returns the now-free frame.
func (ft *FrameTable) evictLocked() (*Frame, errs.Err_t) {
	if len(ft.frames) == 0 {
		errs.Fatal("vm: frame table exhausted with nothing to evict")
	}
	var victim *Frame
	switch ft.policy {
	case kconfig.FIFO:
		victim = ft.oldest()
	case kconfig.LRU:
		ft.sweepAccessed()
		victim = ft.oldest()
	case kconfig.Clock:
		victim = ft.clockVictim()
	default:
		victim = ft.oldest()
	}

	vp := victim.Page
	if e := ft.swapOutLocked(vp); e != 0 {
		return nil, e
	}
	vp.Share.Each(func(s *SPT) { s.PM.Clear(vp.VA) })
	vp.Frame = nil
	ft.removeFrame(victim)
	victim.Page = nil
	return victim, 0
}

func (ft *FrameTable) oldest() *Frame {
	best := ft.frames[0]
	for _, f := range ft.frames[1:] {
		if f.seq < best.seq {
			best = f
		}
	}
	return best
}

// anyAccessed reports whether any SPT in the page's share list has the
// accessed bit set for this page.
func anyAccessed(p *Page) bool {
	accessed := false
	p.Share.Each(func(s *SPT) {
		if s.PM.Accessed(p.VA) {
			accessed = true
		}
	})
	return accessed
}

func anyDirty(p *Page) bool {
	dirty := false
	p.Share.Each(func(s *SPT) {
		if s.PM.Dirty(p.VA) {
			dirty = true
		}
	})
	return dirty
}

func clearAccessed(p *Page) {
	p.Share.Each(func(s *SPT) { s.PM.SetAccessed(p.VA, false) })
}

// sweepAccessed implements "Lenient LRU": walk the frame list; any frame
// whose page was accessed is moved to the tail (by bumping its sequence
// number) with accessed cleared, then FIFO picks the true oldest.
func (ft *FrameTable) sweepAccessed() {
	for _, f := range ft.frames {
		if anyAccessed(f.Page) {
			clearAccessed(f.Page)
			f.seq = ft.nextSeq()
		}
	}
}

// clockVictim implements second-chance eviction over the (conceptually
// circular) frame list: advance the hand, clearing accessed bits, until
// an all-clear frame is found; the hand is left at that slot.
func (ft *FrameTable) clockVictim() *Frame {
	n := len(ft.frames)
	for {
		if ft.clockHand >= n {
			ft.clockHand = 0
		}
		f := ft.frames[ft.clockHand]
		if !anyAccessed(f.Page) {
			return f
		}
		clearAccessed(f.Page)
		ft.clockHand++
	}
}

// swapOutLocked writes a resident page's bytes to its backing store
// before eviction. It never returns the victim's physical page to the
// allocator: evictLocked recycles the Frame (and its KVA) directly into
// the next claim, so handing the same page to palloc here would leave it
// double-booked, free-listed and still backing a live frame at once.
func (ft *FrameTable) swapOutLocked(p *Page) errs.Err_t {
	switch p.Kind {
	case PageAnon:
		slot := ft.swapd.Alloc()
		if e := ft.swapd.WritePage(slot, p.Frame.KVA); e != 0 {
			return e
		}
		p.anonSlot = slot
		return 0
	case PageFile:
		if anyDirty(p) {
			buf := p.Frame.KVA[:p.fileValid]
			if _, e := p.file.WriteAt(buf, p.fileOffset); e != 0 {
				return e
			}
		}
		return 0
	default:
		errs.Fatal("vm: eviction of uninit page %v", p.VA)
		return 0
	}
}

// swapInLocked materializes a just-installed frame's contents.
func (ft *FrameTable) swapInLocked(p *Page, f *Frame) errs.Err_t {
	switch p.Kind {
	case PageUninit:
		target := p.uninitTarget
		aux := p.uninitAux
		p.uninitAux = nil
		if p.uninitInit != nil {
			if e := p.uninitInit(p, f.KVA); e != 0 {
				return e
			}
		} else {
			*f.KVA = hal.Page{}
		}
		p.Kind = target
		switch target {
		case PageAnon:
			p.anonSlot = -1
			if stack, ok := aux.(bool); ok {
				p.anonStack = stack
			}
		case PageFile:
			if fa, ok := aux.(*fileAux); ok {
				p.file = fa.file
				p.fileOffset = fa.offset
				p.fileValid = fa.valid
				p.fileZero = fa.zero
				return ft.readFileLocked(p, f)
			}
		}
		return 0
	case PageAnon:
		if p.anonSlot < 0 {
			*f.KVA = hal.Page{}
			return 0
		}
		if e := ft.swapd.ReadPage(p.anonSlot, f.KVA); e != 0 {
			return e
		}
		ft.swapd.Free(p.anonSlot)
		p.anonSlot = -1
		return 0
	case PageFile:
		return ft.readFileLocked(p, f)
	}
	return 0
}

func (ft *FrameTable) readFileLocked(p *Page, f *Frame) errs.Err_t {
	n, e := p.file.ReadAt(f.KVA[:p.fileValid], p.fileOffset)
	if e != 0 {
		return e
	}
	for i := n; i < kconfig.PageSize; i++ {
		f.KVA[i] = 0
	}
	p.Share.Each(func(s *SPT) {
		s.PM.SetAccessed(p.VA, false)
		s.PM.SetDirty(p.VA, false)
	})
	return 0
}
