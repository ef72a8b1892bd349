package vm

import (
	"eduos/errs"
	"eduos/hal"
	"eduos/kconfig"
	"eduos/util"
)

// Mmap maps length bytes of file starting at offset into the caller's
// address space at addr. Validation runs entirely before any mutation
// (fail closed, no partial mapping left behind on error).
func (ft *FrameTable) Mmap(spt *SPT, addr uintptr, length int, writable bool, file hal.File, offset int64) (uintptr, errs.Err_t) {
	ft.mu.Lock()
	defer ft.mu.Unlock()

	if file == nil || addr == 0 || length == 0 {
		return 0, errs.EINVAL
	}
	if addr%kconfig.PageSize != 0 || offset%kconfig.PageSize != 0 {
		return 0, errs.EINVAL
	}
	flen := file.Length()
	if offset > flen {
		return 0, errs.EINVAL
	}
	npages := int(util.Roundup(int64(length), int64(kconfig.PageSize)) / kconfig.PageSize)
	for i := 0; i < npages; i++ {
		va := addr + uintptr(i*kconfig.PageSize)
		if _, ok := spt.pages[va]; ok {
			return 0, errs.EINVAL
		}
	}

	reopened, e := file.Reopen()
	if e != 0 {
		return 0, e
	}

	remaining := flen - offset
	for i := 0; i < npages; i++ {
		va := addr + uintptr(i*kconfig.PageSize)
		off := offset + int64(i*kconfig.PageSize)
		valid := 0
		if remaining > int64(i*kconfig.PageSize) {
			valid = int(util.Min(int64(kconfig.PageSize), remaining-int64(i*kconfig.PageSize)))
		}
		zero := kconfig.PageSize - valid
		p := &Page{VA: va, Writable: writable, Kind: PageUninit, anonSlot: -1,
			uninitTarget: PageFile, uninitAux: &fileAux{file: reopened, offset: off, valid: valid, zero: zero}}
		p.Share = newShareList(spt)
		spt.pages[va] = p
	}
	spt.mmaps[addr] = &MmapDesc{Base: addr, Pages: npages, File: reopened}
	return addr, 0
}

// Munmap writes back every resident dirty page, removes every covered
// page from the SPT, closes the reopened file handle, and deletes the
// descriptor.
func (ft *FrameTable) Munmap(spt *SPT, addr uintptr) errs.Err_t {
	ft.mu.Lock()
	defer ft.mu.Unlock()
	return ft.munmapLocked(spt, addr)
}

func (ft *FrameTable) munmapLocked(spt *SPT, addr uintptr) errs.Err_t {
	md, ok := spt.mmaps[addr]
	if !ok {
		return errs.EINVAL
	}
	for i := 0; i < md.Pages; i++ {
		va := addr + uintptr(i*kconfig.PageSize)
		page, ok := spt.pages[va]
		if !ok {
			continue
		}
		if page.Frame != nil && anyDirty(page) {
			buf := page.Frame.KVA[:page.fileValid]
			page.file.WriteAt(buf, page.fileOffset)
		}
		delete(spt.pages, va)
		spt.PM.Clear(va)
		page.Share.Remove(spt)
		if page.Share.Count() == 0 {
			ft.freeOrphanLocked(page)
		}
	}
	md.File.Close()
	delete(spt.mmaps, addr)
	return 0
}
