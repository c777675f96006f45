// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package classify determines which kind of unresolved site caused a fault.
package classify

import (
	"github.com/tsavola/lazylink/errors"
	"github.com/tsavola/lazylink/internal/debug"
	"github.com/tsavola/lazylink/trap"
)

// Classifier is the classification query of a resolution authority.  It is
// given the literal instruction pointer and the stack-derived origin, and
// returns a trap.Kind code.
type Classifier interface {
	ClassifyTrap(ip, origin uint64) int
}

// Kind of the site which caused the fault.  Illegal instruction faults are
// always static call sites and the classifier is not queried.
func Kind(c Classifier, ev *trap.Event) (trap.Kind, error) {
	switch ev.Class {
	case trap.IllegalInstruction:
		return trap.StaticCall, nil

	case trap.InvalidAccess:
		code := c.ClassifyTrap(ev.IP, ev.StackOrigin)
		if debug.Enabled {
			debug.Printf("classify: ip 0x%x origin 0x%x -> %d", ev.IP, ev.StackOrigin, code)
		}

		switch k := trap.Kind(code); k {
		case trap.VirtualDispatch, trap.StaticField, trap.InterfaceDispatch:
			return k, nil
		}

		return trap.Unclassified, &errors.UnclassifiedTrap{Code: code, IP: ev.IP, Origin: ev.StackOrigin}

	default:
		return trap.Unclassified, &errors.UnclassifiedTrap{Code: -1, IP: ev.IP, Origin: ev.StackOrigin}
	}
}
