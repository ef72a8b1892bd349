// Package vm implements the supplemental page table, global frame table,
// and page-fault/page-type handlers: a lock bracket around page-table
// mutation, paired with a single global lock guarding all frame
// bookkeeping, generalized to support one hardware address space sharing
// pages with several others via per-page share-lists, copy-on-write,
// swap, and mmap.
package vm

import (
	"eduos/errs"
	"eduos/hal"
	"eduos/kconfig"
	"eduos/util"
)

// PageKind tags a Page's backing-state union.
type PageKind int

const (
	PageUninit PageKind = iota
	PageAnon
	PageFile
)

func (k PageKind) String() string {
	switch k {
	case PageUninit:
		return "uninit"
	case PageAnon:
		return "anon"
	case PageFile:
		return "file"
	default:
		return "unknown"
	}
}

// InitFunc materializes an uninit page into its target kind on first
// claim.
type InitFunc func(p *Page, kva *hal.Page) errs.Err_t

// Frame is a resident physical page.
type Frame struct {
	KVA  *hal.Page
	Page *Page
	seq  int64
}

// ShareList is the set of SPTs currently mapping a page.
type ShareList struct {
	spts []*SPT
}

func newShareList(first *SPT) *ShareList {
	return &ShareList{spts: []*SPT{first}}
}

// Count returns the number of address spaces sharing the page.
func (s *ShareList) Count() int { return len(s.spts) }

// Add registers spt as a new sharer.
func (s *ShareList) Add(spt *SPT) { s.spts = append(s.spts, spt) }

// Remove drops spt from the share list.
func (s *ShareList) Remove(spt *SPT) {
	for i, v := range s.spts {
		if v == spt {
			s.spts = append(s.spts[:i], s.spts[i+1:]...)
			return
		}
	}
}

// Each calls f for every sharer.
func (s *ShareList) Each(f func(*SPT)) {
	for _, v := range s.spts {
		f(v)
	}
}

// Page is a per-address-space virtual page descriptor.
type Page struct {
	VA       uintptr
	Writable bool
	Frame    *Frame
	Share    *ShareList
	Kind     PageKind

	// uninit state
	uninitTarget PageKind
	uninitInit   InitFunc
	uninitAux    interface{}

	// anon state
	anonSlot  int
	anonStack bool

	// file state
	file       hal.File
	fileOffset int64
	fileValid  int
	fileZero   int
}

// MmapDesc records one mmap()'d region.
type MmapDesc struct {
	Base  uintptr
	Pages int
	File  hal.File
}

// SPT is a per-address-space supplemental page table: a map from virtual
// page to descriptor, a map from mmap base to descriptor, and the
// hardware page map. SPT itself holds no lock -- every structural
// mutation across one or more SPTs is serialized by the FrameTable's
// single global lock, hoisted above any one address space specifically
// to cover cross-address-space sharing.
type SPT struct {
	PM    hal.PageMap
	pages map[uintptr]*Page
	mmaps map[uintptr]*MmapDesc
}

// NewSPT returns an empty address space backed by pm.
func NewSPT(pm hal.PageMap) *SPT {
	return &SPT{PM: pm, pages: make(map[uintptr]*Page), mmaps: make(map[uintptr]*MmapDesc)}
}

// Lookup finds the page covering va, if any.
func (s *SPT) Lookup(va uintptr) (*Page, bool) {
	p, ok := s.pages[pageAlign(va)]
	return p, ok
}

func pageAlign(va uintptr) uintptr {
	return util.Rounddown(va, uintptr(kconfig.PageSize))
}
