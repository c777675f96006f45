// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*
Package lazylink binds unresolved call sites and field accesses of generated
machine code on first use.

A code generator leaves static calls, dispatch table slots and static field
addresses unresolved, laid out according to an abi.Contract.  Executing such a
site faults.  The fault is decoded into a trap.Event, the site is classified
and patched in place, and execution resumes as if the site had always been
linked.  Resolved addresses are provided by an external Authority.

See the Install function for hooking an Engine to a fault delivery mechanism,
and Engine.Handle for handling synthetic events.

# Errors

All errors returned by Engine.Handle are fatal; their types are defined in the
errors subpackage.  Trap handlers installed by Install abort the process when
they encounter one.
*/
package lazylink

import (
	"os"
	"strconv"
	"sync/atomic"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"

	"github.com/tsavola/lazylink/abi"
	"github.com/tsavola/lazylink/classify"
	"github.com/tsavola/lazylink/handle"
	"github.com/tsavola/lazylink/memory"
	"github.com/tsavola/lazylink/patch"
	"github.com/tsavola/lazylink/trap"
)

var log = commonlog.GetLogger("lazylink")

// Authority resolves and classifies sites.  The queries must return promptly
// and must not call back into the engine.
type Authority interface {
	classify.Classifier
	patch.Resolver
}

// Engine handles traps raised by unresolved sites.  Zero values are replaced
// with effective defaults during handling.
//
// An Engine is not safe for concurrent use unless Serialize is set.
type Engine struct {
	Contract  *abi.Contract   // Defaults to abi.V1.
	Authority Authority       // Required.
	Memory    memory.Memory   // Required.
	Handles   *handle.Table   // Provides the trap handle for static fields.
	Abort     func(err error) // Defaults to logging and exiting with status 1.

	// Serialize collapses concurrent faults on the same site into one
	// resolution, and resumes sites which were patched by a concurrent fault
	// without aborting.
	Serialize bool

	flight singleflight.Group
	stats  [len(trap.Kinds)]uint64
	shared uint64
	fatal  uint64
}

// Stats of an engine.
type Stats struct {
	Patched map[trap.Kind]uint64 // Successful patches by site kind.
	Shared  uint64               // Faults resolved by a concurrent handler.
	Fatal   uint64
}

func (e *Engine) contract() *abi.Contract {
	if e.Contract == nil {
		return &abi.V1
	}
	return e.Contract
}

func (e *Engine) patcher() *patch.Patcher {
	return &patch.Patcher{
		Contract: e.contract(),
		Resolver: e.Authority,
		Memory:   e.Memory,
		Handles:  e.Handles,
		Tolerant: e.Serialize,
	}
}

// Handle classifies and patches the site which caused the event.  The result
// contains the address where execution must resume.
func (e *Engine) Handle(ev *trap.Event) (res patch.Result, err error) {
	res, err = e.handle(ev)
	if err != nil {
		atomic.AddUint64(&e.fatal, 1)
	}
	return
}

func (e *Engine) handle(ev *trap.Event) (res patch.Result, err error) {
	if err = e.contract().Validate(); err != nil {
		return
	}

	kind, err := classify.Kind(e.Authority, ev)
	if err != nil {
		return
	}

	p := e.patcher()

	if !e.Serialize {
		return e.apply(p, kind, ev)
	}

	site, err := p.Site(kind, ev)
	if err != nil {
		return
	}

	var led bool

	x, err, shared := e.flight.Do(siteKey(kind, site), func() (interface{}, error) {
		led = true
		return e.apply(p, kind, ev)
	})
	res, _ = x.(patch.Result)

	// The leader sees shared set too if others joined.
	if shared && !led {
		atomic.AddUint64(&e.shared, 1)
	}
	return
}

func (e *Engine) apply(p *patch.Patcher, kind trap.Kind, ev *trap.Event) (res patch.Result, err error) {
	res, err = p.Apply(kind, ev)
	if err != nil {
		return
	}

	if len(res.Patch.Bytes) > 0 {
		for i, k := range trap.Kinds {
			if k == kind {
				atomic.AddUint64(&e.stats[i], 1)
			}
		}
	}
	return
}

// Stats snapshot.
func (e *Engine) Stats() Stats {
	s := Stats{
		Patched: make(map[trap.Kind]uint64, len(trap.Kinds)),
		Shared:  atomic.LoadUint64(&e.shared),
		Fatal:   atomic.LoadUint64(&e.fatal),
	}
	for i, k := range trap.Kinds {
		s.Patched[k] = atomic.LoadUint64(&e.stats[i])
	}
	return s
}

func (e *Engine) abort(err error) {
	if e.Abort != nil {
		e.Abort(err)
		return
	}

	log.Criticalf("%v", err)
	os.Exit(1)
}

// siteKey identifies the location patched for a fault.  Polymorphic dispatch
// faults share the instruction pointer and stack origin, but not the slot.
func siteKey(kind trap.Kind, site uint64) string {
	b := make([]byte, 0, 24)
	b = strconv.AppendInt(b, int64(kind), 10)
	b = append(b, ':')
	b = strconv.AppendUint(b, site, 16)
	return string(b)
}
