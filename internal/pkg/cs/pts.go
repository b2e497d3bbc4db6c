// Copyright 2023 The Tai-e Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cs

import (
	"golang.org/x/tools/container/intsets"
)

// PointsToSet is a set of CSObjs, represented as a sparse bitset over
// the manager's dense object indices. Sets only grow during a solve.
type PointsToSet struct {
	mgr  *Manager
	bits intsets.Sparse
}

// Add inserts one object, reporting whether the set grew.
func (s *PointsToSet) Add(o *CSObj) bool {
	return s.bits.Insert(o.index)
}

// AddAll inserts every object of t, reporting whether the set grew.
func (s *PointsToSet) AddAll(t *PointsToSet) bool {
	return s.bits.UnionWith(&t.bits)
}

// DiffNew returns t's objects not already in s, as a fresh set.
func (s *PointsToSet) DiffNew(t *PointsToSet) *PointsToSet {
	d := s.mgr.NewPointsToSet()
	d.bits.Difference(&t.bits, &s.bits)
	return d
}

// Contains reports membership.
func (s *PointsToSet) Contains(o *CSObj) bool {
	return s.bits.Has(o.index)
}

// Len returns the number of objects in the set.
func (s *PointsToSet) Len() int { return s.bits.Len() }

// IsEmpty reports whether the set has no objects.
func (s *PointsToSet) IsEmpty() bool { return s.bits.IsEmpty() }

// Objects returns the members as a slice.
func (s *PointsToSet) Objects() []*CSObj {
	idx := s.bits.AppendTo(nil)
	objs := make([]*CSObj, len(idx))
	for i, x := range idx {
		objs[i] = s.mgr.arena[x]
	}
	return objs
}

// ForEach applies f to every member.
func (s *PointsToSet) ForEach(f func(*CSObj)) {
	for _, x := range s.bits.AppendTo(nil) {
		f(s.mgr.arena[x])
	}
}

// Any reports whether some member satisfies pred.
func (s *PointsToSet) Any(pred func(*CSObj) bool) bool {
	for _, x := range s.bits.AppendTo(nil) {
		if pred(s.mgr.arena[x]) {
			return true
		}
	}
	return false
}

// Filter returns the members satisfying pred as a fresh set.
func (s *PointsToSet) Filter(pred func(*CSObj) bool) *PointsToSet {
	out := s.mgr.NewPointsToSet()
	s.ForEach(func(o *CSObj) {
		if pred(o) {
			out.Add(o)
		}
	})
	return out
}
