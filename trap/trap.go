// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package trap enumerates fault classes and unresolved site kinds.
package trap

import (
	"fmt"

	"github.com/tsavola/lazylink/abi"
)

// Class of a delivered fault.
type Class int

const (
	IllegalInstruction = Class(iota) // SIGILL
	InvalidAccess                    // SIGSEGV

	NumClasses
)

func (c Class) String() string {
	switch c {
	case IllegalInstruction:
		return "illegal instruction"

	case InvalidAccess:
		return "invalid memory access"

	default:
		return fmt.Sprintf("unknown fault class %d", int(c))
	}
}

// Kind of an unresolved site.  The nonzero values are the codes returned by
// a resolution authority's classification query.
type Kind int

const (
	Unclassified      = Kind(0)
	VirtualDispatch   = Kind(1)
	StaticField       = Kind(2)
	InterfaceDispatch = Kind(4)
	StaticCall        = Kind(8) // Never returned by classification.
)

func (k Kind) String() string {
	switch k {
	case Unclassified:
		return "unclassified"

	case VirtualDispatch:
		return "virtual dispatch"

	case StaticField:
		return "static field access"

	case InterfaceDispatch:
		return "interface dispatch"

	case StaticCall:
		return "static call"

	default:
		return fmt.Sprintf("unknown site kind %d", int(k))
	}
}

// Kinds lists the site kinds in patch protocol order.
var Kinds = [...]Kind{StaticCall, VirtualDispatch, InterfaceDispatch, StaticField}

// Event is the decoded state of one fault.  It lives only for the duration
// of handling.
type Event struct {
	Class Class
	IP    uint64
	SP    uint64

	Carriers [abi.NumCarriers]uint64

	// ReturnAddr is the word at the top of the interrupted stack.
	ReturnAddr uint64

	// StackOrigin is ReturnAddr minus the contract's origin skew: the
	// address of a dispatch stub which called through an unresolved slot.
	StackOrigin uint64
}

func (ev *Event) String() string {
	return fmt.Sprintf("%s at 0x%x (sp 0x%x, origin 0x%x)", ev.Class, ev.IP, ev.SP, ev.StackOrigin)
}
