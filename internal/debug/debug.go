// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build debug

package debug

import (
	"fmt"
)

const Enabled = true

// Printf writes a trace line to stderr.
func Printf(format string, args ...interface{}) {
	print("lazylink: ", fmt.Sprintf(format+"\n", args...))
}
