// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

// Journal records successfully applied patches.
type Journal struct {
	Memory
	Patches []Patch
}

func (j *Journal) Apply(p Patch) error {
	if err := j.Memory.Apply(p); err != nil {
		return err
	}
	j.Patches = append(j.Patches, Patch{p.Addr, append([]byte(nil), p.Bytes...)})
	return nil
}
