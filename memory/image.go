// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import (
	"sort"
)

// Segment of an Image.
type Segment struct {
	Addr uint64
	Data []byte
}

func (s *Segment) contains(addr uint64, n int) bool {
	return addr >= s.Addr && addr-s.Addr <= uint64(len(s.Data)) && uint64(len(s.Data))-(addr-s.Addr) >= uint64(n)
}

// Image is a synthetic address space made of byte slices.  It doesn't execute
// anything; it is for constructing trap scenarios and mirroring emulated
// memory.
type Image struct {
	segs []Segment
}

// Map a segment.  The data is used directly.  Segments must not overlap.
func (img *Image) Map(addr uint64, data []byte) {
	img.segs = append(img.segs, Segment{addr, data})
	sort.Slice(img.segs, func(i, j int) bool { return img.segs[i].Addr < img.segs[j].Addr })
}

// Alloc maps a zeroed segment.
func (img *Image) Alloc(addr uint64, size int) []byte {
	data := make([]byte, size)
	img.Map(addr, data)
	return data
}

// Segments in address order.
func (img *Image) Segments() []Segment {
	return img.segs
}

func (img *Image) find(addr uint64, n int) []byte {
	i := sort.Search(len(img.segs), func(i int) bool {
		s := &img.segs[i]
		return s.Addr+uint64(len(s.Data)) > addr
	})
	if i < len(img.segs) {
		s := &img.segs[i]
		if s.contains(addr, n) {
			offset := addr - s.Addr
			return s.Data[offset : offset+uint64(n)]
		}
	}
	return nil
}

// ReadAt fails with ErrUnmapped if the range isn't within a single segment.
func (img *Image) ReadAt(b []byte, addr uint64) error {
	src := img.find(addr, len(b))
	if src == nil && len(b) > 0 {
		return ErrUnmapped
	}
	copy(b, src)
	return nil
}

// Apply fails with ErrUnmapped without writing anything if the range isn't
// within a single segment.
func (img *Image) Apply(p Patch) error {
	dest := img.find(p.Addr, len(p.Bytes))
	if dest == nil && len(p.Bytes) > 0 {
		return ErrUnmapped
	}
	copy(dest, p.Bytes)
	return nil
}
