// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"os"
	"sort"
	"unsafe"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"
)

type region struct {
	mem   []byte
	addr  uint64
	prot  int
	owned bool
}

func (r *region) contains(addr uint64, n int) bool {
	return addr >= r.addr && addr-r.addr <= uint64(len(r.mem)) && uint64(len(r.mem))-(addr-r.addr) >= uint64(n)
}

// Native is the memory of the current process.  Only registered or mapped
// regions are accessible.  Patching a region which isn't writable makes the
// affected pages writable for the duration of the write.
type Native struct {
	regions  []*region
	pageSize uint64
}

func NewNative() *Native {
	return &Native{pageSize: uint64(os.Getpagesize())}
}

// Map anonymous memory with the given protection.
func (n *Native) Map(size, prot int, extraFlags int) (mem []byte, err error) {
	mem, err = unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|extraFlags)
	if err != nil {
		return
	}

	if prot != unix.PROT_READ|unix.PROT_WRITE {
		if err = unix.Mprotect(mem, prot); err != nil {
			unix.Munmap(mem)
			mem = nil
			return
		}
	}

	n.add(&region{mem: mem, prot: prot, owned: true})
	return
}

// Register memory which was mapped elsewhere.  It must be page-aligned, and
// prot must be its current protection.
func (n *Native) Register(mem []byte, prot int) {
	if len(mem) > 0 {
		n.add(&region{mem: mem, prot: prot})
	}
}

func (n *Native) add(r *region) {
	r.addr = uint64(uintptr(unsafe.Pointer(&r.mem[0])))
	n.regions = append(n.regions, r)
	sort.Slice(n.regions, func(i, j int) bool { return n.regions[i].addr < n.regions[j].addr })
}

// Addr of a slice within a region.
func Addr(b []byte) uint64 {
	return uint64(uintptr(unsafe.Pointer(&b[0])))
}

func (n *Native) find(addr uint64, size int) *region {
	i := sort.Search(len(n.regions), func(i int) bool {
		r := n.regions[i]
		return r.addr+uint64(len(r.mem)) > addr
	})
	if i < len(n.regions) && n.regions[i].contains(addr, size) {
		return n.regions[i]
	}
	return nil
}

func (n *Native) ReadAt(b []byte, addr uint64) error {
	r := n.find(addr, len(b))
	if r == nil {
		return ErrUnmapped
	}
	if r.prot&unix.PROT_READ == 0 {
		return xerrors.Errorf("read at 0x%x: %w", addr, unix.EACCES)
	}
	offset := addr - r.addr
	copy(b, r.mem[offset:])
	return nil
}

func (n *Native) Apply(p Patch) (err error) {
	r := n.find(p.Addr, len(p.Bytes))
	if r == nil {
		return ErrUnmapped
	}

	offset := p.Addr - r.addr

	if r.prot&unix.PROT_WRITE != 0 {
		copy(r.mem[offset:], p.Bytes)
		return nil
	}

	pageMask := n.pageSize - 1
	pageStart := offset &^ pageMask
	pageEnd := (offset + uint64(len(p.Bytes)) + pageMask) &^ pageMask
	if pageEnd > uint64(len(r.mem)) {
		pageEnd = uint64(len(r.mem))
	}
	pages := r.mem[pageStart:pageEnd]

	if err = unix.Mprotect(pages, r.prot|unix.PROT_WRITE); err != nil {
		return xerrors.Errorf("making 0x%x writable: %w", p.Addr, err)
	}

	copy(r.mem[offset:], p.Bytes)

	if err = unix.Mprotect(pages, r.prot); err != nil {
		return xerrors.Errorf("restoring protection at 0x%x: %w", p.Addr, err)
	}
	return nil
}

// Close unmaps the regions allocated by Map.
func (n *Native) Close() (first error) {
	for _, r := range n.regions {
		if r.owned {
			if err := unix.Munmap(r.mem); err != nil && first == nil {
				first = err
			}
		}
	}
	n.regions = nil
	return
}
