package vm

import (
	"eduos/errs"
	"eduos/kconfig"
)

// StackLimit bounds how far stack growth is allowed to extend a user
// stack downward from its original top.
const StackLimit = 1 << 20

// Fault resolves a single page-fault. rsp is the
// faulting thread's saved stack pointer (used to recognize stack growth),
// stackTop is the address the stack was created at (the upper bound
// beyond which growth never extends), va is the faulting address, and
// isWrite reports whether the fault was a write. It returns 0 on success,
// a negative errs.Err_t if the fault is not present-and-resolvable (the
// caller must then terminate the faulting user process), or panics for a
// fatal invariant violation.
func (ft *FrameTable) Fault(spt *SPT, rsp, stackTop, va uintptr, isWrite bool) errs.Err_t {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	pg := pageAlign(va)
	page, ok := spt.pages[pg]
	if ok {
		if isWrite && page.Frame != nil && !hardwareWritable(spt, page) {
			return ft.writeFaultLocked(spt, page)
		}
		return ft.claimLocked(spt, page)
	}

	if !isStackWindow(rsp, va) || !withinStackLimit(stackTop, va) {
		return errs.EFAULT
	}
	// Grow the stack from the faulting page upward, filling every gap up
	// to (but not overlapping) the next already-allocated page -- the
	// stack's current floor, reached in one step unless a single
	// function prologue dropped rsp by more than one page at once.
	for growVA := pg; growVA <= stackTop; growVA += kconfig.PageSize {
		if _, exists := spt.pages[growVA]; exists {
			break
		}
		p := &Page{VA: growVA, Writable: true, Kind: PageAnon, anonSlot: -1, anonStack: true}
		p.Share = newShareList(spt)
		spt.pages[growVA] = p
	}
	page = spt.pages[pg]
	return ft.claimLocked(spt, page)
}

func hardwareWritable(spt *SPT, p *Page) bool {
	_, writable, ok := spt.PM.Get(p.VA)
	return ok && writable
}

// isStackWindow reports whether a fault is interpreted as stack growth:
// only if its address falls within [rsp-8, rsp+32].
func isStackWindow(rsp, va uintptr) bool {
	lo := rsp - 8
	hi := rsp + 32
	return va >= lo && va <= hi
}

func withinStackLimit(stackTop, va uintptr) bool {
	if va > stackTop {
		return false
	}
	return stackTop-va <= StackLimit
}

// writeFaultLocked implements copy-on-write resolution for a write to a
// shared page. Caller holds ft.mu.
func (ft *FrameTable) writeFaultLocked(faultingSPT *SPT, page *Page) errs.Err_t {
	if !page.Writable {
		return errs.EFAULT
	}
	if page.Share.Count() < 2 {
		faultingSPT.PM.SetWritable(page.VA, true)
		return 0
	}

	newFrame, err := ft.acquireLocked()
	if err != 0 {
		return err
	}

	if page.Frame == nil {
		// The source was evicted while we were allocating a fresh frame
		// above; reclaim it before copying out of it. Spanning the frame
		// lock across "acquire" -> "reclaim" -> "memcpy" -> "install"
		// closes the race; a single global lock is acceptable on a
		// single-CPU kernel.
		var owner *SPT
		page.Share.Each(func(s *SPT) {
			if owner == nil {
				owner = s
			}
		})
		if e := ft.claimLocked(owner, page); e != 0 {
			return e
		}
	}

	*newFrame.KVA = *page.Frame.KVA

	newPage := &Page{VA: page.VA, Writable: true, Kind: page.Kind, anonSlot: -1}
	switch page.Kind {
	case PageAnon:
		newPage.anonStack = page.anonStack
	case PageFile:
		newPage.file = page.file
		newPage.fileOffset = page.fileOffset
		newPage.fileValid = page.fileValid
		newPage.fileZero = page.fileZero
	}
	newPage.Share = newShareList(faultingSPT)
	ft.install(newFrame, newPage)

	page.Share.Remove(faultingSPT)
	faultingSPT.pages[page.VA] = newPage
	faultingSPT.PM.Set(page.VA, newFrame.KVA, true)

	switch page.Share.Count() {
	case 0:
		ft.freeOrphanLocked(page)
	case 1:
		var remaining *SPT
		page.Share.Each(func(s *SPT) { remaining = s })
		if page.Frame != nil {
			remaining.PM.SetWritable(page.VA, true)
		}
	}
	return 0
}

// freeOrphanLocked releases a page (and its frame/swap slot, if any) once
// its share count has dropped to zero.
func (ft *FrameTable) freeOrphanLocked(p *Page) {
	if p.Frame != nil {
		ft.removeFrame(p.Frame)
		ft.palloc.Put(p.Frame.KVA)
		p.Frame = nil
	} else if p.Kind == PageAnon && p.anonSlot >= 0 {
		ft.swapd.Free(p.anonSlot)
		p.anonSlot = -1
	}
}

// Fork duplicates src's page table into dst by reference, implementing
// copy-on-write sharing: each
// entry's share-count is incremented, and on the first 1→2 crossing the
// mapping is flipped read-only everywhere it's currently installed.
// Resident pages are installed read-only in the child. The mmap table is
// duplicated with freshly reopened file handles.
func (ft *FrameTable) Fork(src, dst *SPT) errs.Err_t {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	for va, page := range src.pages {
		page.Share.Add(dst)
		dst.pages[va] = page
		if page.Share.Count() == 2 && page.Frame != nil {
			page.Share.Each(func(s *SPT) { s.PM.SetWritable(va, false) })
		}
		if page.Frame != nil {
			dst.PM.Set(va, page.Frame.KVA, false)
		}
	}
	for base, md := range src.mmaps {
		nf, e := md.File.Reopen()
		if e != 0 {
			return e
		}
		dst.mmaps[base] = &MmapDesc{Base: md.Base, Pages: md.Pages, File: nf}
	}
	return 0
}

// Kill tears down an address space: mmaps are
// unwound first (writing back dirty pages), then the remaining page map,
// decrementing share counts and freeing pages/frames that drop to zero.
func (ft *FrameTable) Kill(spt *SPT) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	for base := range spt.mmaps {
		ft.munmapLocked(spt, base)
	}
	for va, page := range spt.pages {
		delete(spt.pages, va)
		spt.PM.Clear(va)
		page.Share.Remove(spt)
		if page.Share.Count() == 0 {
			ft.freeOrphanLocked(page)
		} else if page.Share.Count() == 1 && page.Frame != nil {
			var remaining *SPT
			page.Share.Each(func(s *SPT) { remaining = s })
			if page.Writable {
				remaining.PM.SetWritable(va, true)
			}
		}
	}
}
