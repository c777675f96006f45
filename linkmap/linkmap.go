// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package linkmap implements a table-driven resolution authority.
//
// A link map is a TOML document:
//
//	[handles]
//	trap = 0x7000
//
//	[[trap]]
//	addr = 0x1100
//	kind = "virtual"     # or "interface", "field"
//
//	[[method]]
//	origin = 0x1100
//	table = 0x3000       # optional; zero matches any table
//	entry = 0x4050
//
//	[[field]]
//	site = 0x1300
//	addr = 0x6000
//
// An optional [program] table describes a memory image for running the code
// (see Program).
package linkmap

import (
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"golang.org/x/xerrors"

	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/handle"
	"github.com/tsavola/lazylink/trap"
)

type Method struct {
	Origin uint64 `toml:"origin"`
	Table  uint64 `toml:"table"`
	Entry  uint64 `toml:"entry"`
}

type Field struct {
	Site uint64 `toml:"site"`
	Addr uint64 `toml:"addr"`
}

type Trap struct {
	Addr uint64 `toml:"addr"`
	Kind string `toml:"kind"`
}

type methodKey struct {
	origin uint64
	table  uint64
}

// Map is an Authority.  Lookups of unknown sites return zero.
type Map struct {
	Handles map[string]uint64 `toml:"handles"`
	Traps   []Trap            `toml:"trap"`
	Methods []Method          `toml:"method"`
	Fields  []Field           `toml:"field"`
	Program *Program          `toml:"program"`

	traps   map[uint64]trap.Kind
	methods map[methodKey]uint64
	fields  map[uint64]uint64
}

// Load a TOML file.
func Load(filename string) (*Map, error) {
	m := new(Map)
	if _, err := toml.DecodeFile(filename, m); err != nil {
		return nil, xerrors.Errorf("%s: %w", filename, err)
	}
	if err := m.Index(); err != nil {
		return nil, xerrors.Errorf("%s: %w", filename, err)
	}
	return m, nil
}

// Decode a TOML document.
func Decode(r io.Reader) (*Map, error) {
	m := new(Map)
	if _, err := toml.NewDecoder(r).Decode(m); err != nil {
		return nil, err
	}
	if err := m.Index(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseKind accepts the names used in link maps.
func ParseKind(s string) (trap.Kind, error) {
	switch s {
	case "virtual":
		return trap.VirtualDispatch, nil

	case "interface":
		return trap.InterfaceDispatch, nil

	case "field":
		return trap.StaticField, nil

	default:
		return trap.Unclassified, fmt.Errorf("unknown trap kind: %q", s)
	}
}

// Index the tables.  It must be called after modifying them.
func (m *Map) Index() error {
	m.traps = make(map[uint64]trap.Kind, len(m.Traps))
	for _, t := range m.Traps {
		k, err := ParseKind(t.Kind)
		if err != nil {
			return err
		}
		if _, dup := m.traps[t.Addr]; dup {
			return fmt.Errorf("duplicate trap address: 0x%x", t.Addr)
		}
		m.traps[t.Addr] = k
	}

	m.methods = make(map[methodKey]uint64, len(m.Methods))
	for _, x := range m.Methods {
		key := methodKey{x.Origin, x.Table}
		if _, dup := m.methods[key]; dup {
			return fmt.Errorf("duplicate method origin: 0x%x (table 0x%x)", x.Origin, x.Table)
		}
		m.methods[key] = x.Entry
	}

	m.fields = make(map[uint64]uint64, len(m.Fields))
	for _, f := range m.Fields {
		if _, dup := m.fields[f.Site]; dup {
			return fmt.Errorf("duplicate field site: 0x%x", f.Site)
		}
		m.fields[f.Site] = f.Addr
	}

	for name := range m.Handles {
		if _, ok := handleName(name); !ok {
			return fmt.Errorf("unknown handle: %q", name)
		}
	}

	if m.Program != nil {
		if err := m.Program.check(); err != nil {
			return err
		}
	}

	return nil
}

func handleName(s string) (handle.Name, bool) {
	for n := handle.Name(0); n < handle.NumNames; n++ {
		if n.String() == s {
			return n, true
		}
	}
	return 0, false
}

// Populate a handle table.
func (m *Map) Populate(t *handle.Table) {
	for s, ptr := range m.Handles {
		if n, ok := handleName(s); ok {
			t.Set(n, uintptr(ptr))
		}
	}
}

// Contract of the program, or abi.V1.
func (m *Map) Contract() *abi.Contract {
	if m.Program != nil && m.Program.Contract == 2 {
		return &abi.V2
	}
	return &abi.V1
}

// ClassifyTrap looks up the instruction pointer first and the stack origin
// second.
func (m *Map) ClassifyTrap(ip, origin uint64) int {
	if k, found := m.traps[ip]; found {
		return int(k)
	}
	return int(m.traps[origin])
}

// ResolveMethodEntry prefers an entry for the specific table.
func (m *Map) ResolveMethodEntry(origin, tableBase uint64) uint64 {
	if entry, found := m.methods[methodKey{origin, tableBase}]; found {
		return entry
	}
	return m.methods[methodKey{origin, 0}]
}

func (m *Map) ResolveStaticFieldAddress(fault, trapHandle uint64) uint64 {
	return m.fields[fault]
}
