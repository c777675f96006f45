// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package lazylink

import (
	"errors"

	"github.com/tsavola/lazylink/trap"
	"github.com/tsavola/lazylink/ucontext"
)

// Flags of an installed handler.
type Flags uint

const (
	Rearm   = Flags(1 << iota) // Handler stays installed after delivery.
	Restart                    // Interrupted blocking operations are restarted.
	NoDefer                    // The fault class isn't blocked during handling.
)

// HandlerFlags are used for both trap handlers.
const HandlerFlags = Rearm | Restart | NoDefer

// Handler runs on the faulting thread.  Execution resumes at ctx.IP() when it
// returns.
type Handler func(ctx ucontext.Context)

// Platform delivers faults of generated code.
type Platform interface {
	InstallHandler(class trap.Class, flags Flags, h Handler) error
}

// Install the trap handlers.  It must be called once before running any code
// which contains unresolved sites, and after the engine's handle table has
// been populated.
//
// Handling doesn't support nesting: a fault raised by the authority or by the
// engine itself is not handled.
func Install(p Platform, e *Engine) error {
	if e.Authority == nil {
		return errors.New("lazylink: engine has no authority")
	}
	if e.Memory == nil {
		return errors.New("lazylink: engine has no memory")
	}
	if err := e.contract().Validate(); err != nil {
		return err
	}

	// Illegal instructions are raised only by static call sites; invalid
	// accesses by dispatch and static field sites.
	for _, class := range []trap.Class{trap.IllegalInstruction, trap.InvalidAccess} {
		if err := p.InstallHandler(class, HandlerFlags, e.Handler(class)); err != nil {
			return err
		}
	}

	log.Infof("trap handlers installed (contract %s)", e.contract())
	return nil
}

// Handler for a fault class.  It decodes the context, handles the event and
// sets the resumption address.  A fatal error aborts.
func (e *Engine) Handler(class trap.Class) Handler {
	return func(ctx ucontext.Context) {
		ev, err := ucontext.Decode(class, ctx, e.Memory, e.contract())
		if err != nil {
			e.abort(err)
			return
		}

		res, err := e.Handle(&ev)
		if err != nil {
			e.abort(err)
			return
		}

		ctx.SetIP(res.Resume)
	}
}
