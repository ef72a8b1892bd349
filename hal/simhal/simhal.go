// Package simhal provides reference implementations of the hal contracts:
// a free-list physical allocator (single pool, since there is
// no SMP here and so no need for per-CPU sub-pools), an in-memory sector
// disk, an in-memory file, and a map-backed software page table standing
// in for a real hardware page-table walk. None of this is kernel-core
// logic; it exists so the scheduler/VM packages have something to run
// against in tests and the cmd/eduos demo.
package simhal

import (
	"eduos/errs"
	"eduos/hal"
	"eduos/kconfig"
	"sync"
)

// Allocator is a fixed-size pool of zeroable pages with a LIFO free list,
// the same shape as mem.Physmem_t minus the per-CPU sub-pools that exist
// there only to reduce lock contention across real CPUs.
type Allocator struct {
	mu    sync.Mutex
	pages []hal.Page
	free  []int        // indices of free pages, LIFO
	owner map[*hal.Page]int
}

// NewAllocator builds a pool of n pages.
func NewAllocator(n int) *Allocator {
	a := &Allocator{
		pages: make([]hal.Page, n),
		free:  make([]int, n),
		owner: make(map[*hal.Page]int, n),
	}
	for i := range a.free {
		a.free[i] = i
		a.owner[&a.pages[i]] = i
	}
	return a
}

// NumFree reports how many pages remain, mirroring mem.Physmem_t.Pgcount.
func (a *Allocator) NumFree() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

func (a *Allocator) Get(flags hal.AllocFlags) *hal.Page {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.free) == 0 {
		return nil
	}
	idx := a.free[len(a.free)-1]
	a.free = a.free[:len(a.free)-1]
	pg := &a.pages[idx]
	if flags&hal.AllocZero != 0 {
		*pg = hal.Page{}
	}
	return pg
}

func (a *Allocator) Put(kva *hal.Page) {
	a.mu.Lock()
	defer a.mu.Unlock()
	idx, ok := a.owner[kva]
	if !ok {
		errs.Fatal("simhal: Put of kva not owned by this allocator")
	}
	for _, f := range a.free {
		if f == idx {
			errs.Fatal("simhal: double free of page %d", idx)
		}
	}
	a.free = append(a.free, idx)
}

// Disk is an in-memory sector array implementing hal.Disk, standing in for
// the raw swap disk contract.
type Disk struct {
	mu      sync.Mutex
	sectors [][kconfig.SectorSize]byte
}

// NewDisk allocates a disk of n sectors, all zeroed.
func NewDisk(n int) *Disk {
	return &Disk{sectors: make([][kconfig.SectorSize]byte, n)}
}

func (d *Disk) Size() int { return len(d.sectors) }

func (d *Disk) Read(sector int, buf []byte) errs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sector < 0 || sector >= len(d.sectors) || len(buf) != kconfig.SectorSize {
		return errs.EINVAL
	}
	copy(buf, d.sectors[sector][:])
	return 0
}

func (d *Disk) Write(sector int, buf []byte) errs.Err_t {
	d.mu.Lock()
	defer d.mu.Unlock()
	if sector < 0 || sector >= len(d.sectors) || len(buf) != kconfig.SectorSize {
		return errs.EINVAL
	}
	copy(d.sectors[sector][:], buf)
	return 0
}

// File is an in-memory byte buffer implementing hal.File, standing in for
// the file_open/read/write/reopen contract. Reopen returns a
// view sharing the same backing bytes, matching the original's independent-
// cursor-same-identity semantics (cursors aren't modeled here since the VM
// subsystem only ever does ReadAt/WriteAt).
type File struct {
	mu   *sync.Mutex
	data *[]byte
}

// NewFile wraps an initial byte slice as a hal.File.
func NewFile(initial []byte) *File {
	d := append([]byte(nil), initial...)
	return &File{mu: &sync.Mutex{}, data: &d}
}

func (f *File) ReadAt(buf []byte, off int64) (int, errs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d := *f.data
	if off < 0 || off > int64(len(d)) {
		return 0, errs.EINVAL
	}
	n := copy(buf, d[off:])
	return n, 0
}

func (f *File) WriteAt(buf []byte, off int64) (int, errs.Err_t) {
	f.mu.Lock()
	defer f.mu.Unlock()
	need := off + int64(len(buf))
	d := *f.data
	if int64(len(d)) < need {
		grown := make([]byte, need)
		copy(grown, d)
		d = grown
		*f.data = d
	}
	n := copy(d[off:], buf)
	return n, 0
}

func (f *File) Length() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(*f.data))
}

// Reopen returns an independent handle sharing the same backing data, the
// way file_reopen yields a new struct file over the same inode.
func (f *File) Reopen() (hal.File, errs.Err_t) {
	return &File{mu: f.mu, data: f.data}, 0
}

func (f *File) Close() errs.Err_t { return 0 }

// PageMap is a map-backed software page table implementing hal.PageMap,
// standing in for a real x86-64 PML4 walk without needing actual
// page-table pages.
type PageMap struct {
	mu      sync.Mutex
	entries map[uintptr]*entry
}

type entry struct {
	kva      *hal.Page
	writable bool
	accessed bool
	dirty    bool
}

// NewPageMap returns an empty page map.
func NewPageMap() *PageMap {
	return &PageMap{entries: make(map[uintptr]*entry)}
}

func (p *PageMap) Get(va uintptr) (*hal.Page, bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[va]
	if !ok {
		return nil, false, false
	}
	return e.kva, e.writable, true
}

func (p *PageMap) Set(va uintptr, kva *hal.Page, writable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries[va] = &entry{kva: kva, writable: writable}
}

func (p *PageMap) Clear(va uintptr) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, va)
}

func (p *PageMap) Accessed(va uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[va]
	return ok && e.accessed
}

func (p *PageMap) Dirty(va uintptr) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[va]
	return ok && e.dirty
}

func (p *PageMap) SetAccessed(va uintptr, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[va]; ok {
		e.accessed = v
	}
}

func (p *PageMap) SetDirty(va uintptr, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[va]; ok {
		e.dirty = v
	}
}

func (p *PageMap) SetWritable(va uintptr, v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[va]; ok {
		e.writable = v
	}
}

// MarkAccess is a test/demo helper simulating the CPU setting the accessed
// (and, if write is true, dirty) bit as part of a memory access -- real
// hardware does this on every load/store; our software page map needs it
// done explicitly.
func (p *PageMap) MarkAccess(va uintptr, write bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.entries[va]; ok {
		e.accessed = true
		if write {
			e.dirty = true
		}
	}
}
