// Package swap implements the anonymous-page swap disk: a flat bitmap of
// fixed-size slots over a hal.Disk, one slot per page -- a plain slice
// guarded by one mutex, since nothing about a slot bitmap benefits from a
// fancier structure at this scale.
package swap

import (
	"eduos/errs"
	"eduos/hal"
	"eduos/kconfig"
	"sync"
)

// Disk wraps a hal.Disk as a bitmap of fixed-size slots, each
// kconfig.PageSize/kconfig.SectorSize sectors. Slot 0 is usable;
// there is no header.
type Disk struct {
	mu         sync.Mutex
	disk       hal.Disk
	used       []bool
	secPerSlot int
}

// NewDisk wraps d as a swap device.
func NewDisk(d hal.Disk) *Disk {
	spp := kconfig.PageSize / kconfig.SectorSize
	nslots := d.Size() / spp
	return &Disk{disk: d, used: make([]bool, nslots), secPerSlot: spp}
}

// Slots returns the total number of swap slots.
func (d *Disk) Slots() int { return len(d.used) }

// Alloc finds and marks the first free slot, fatal if the disk is full.
func (d *Disk) Alloc() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, u := range d.used {
		if !u {
			d.used[i] = true
			return i
		}
	}
	errs.Fatal("swap: disk exhausted, no free slot")
	return -1
}

// Free releases slot back to the pool.
func (d *Disk) Free(slot int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if slot < 0 || slot >= len(d.used) || !d.used[slot] {
		errs.Fatal("swap: free of unallocated slot %d", slot)
	}
	d.used[slot] = false
}

// WritePage writes a full page's worth of bytes to slot, one sector at a
// time.
func (d *Disk) WritePage(slot int, page *hal.Page) errs.Err_t {
	base := slot * d.secPerSlot
	for i := 0; i < d.secPerSlot; i++ {
		lo := i * kconfig.SectorSize
		if e := d.disk.Write(base+i, page[lo:lo+kconfig.SectorSize]); e != 0 {
			return e
		}
	}
	return 0
}

// ReadPage reads slot's full page back into page.
func (d *Disk) ReadPage(slot int, page *hal.Page) errs.Err_t {
	base := slot * d.secPerSlot
	for i := 0; i < d.secPerSlot; i++ {
		lo := i * kconfig.SectorSize
		if e := d.disk.Read(base+i, page[lo:lo+kconfig.SectorSize]); e != 0 {
			return e
		}
	}
	return 0
}
