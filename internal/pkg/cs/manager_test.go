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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
)

func testMethod(t *testing.T) *ir.Method {
	t.Helper()
	h := ir.NewHierarchy()
	c := h.NewClass("T", nil, true)
	return c.NewStaticMethod("m", nil)
}

func TestCanonicalization(t *testing.T) {
	m := NewManager()
	method := testMethod(t)
	v := method.NewVar("a", method.Class.Type)
	ctx := m.EmptyContext()

	cv1 := m.GetCSVar(ctx, v)
	cv2 := m.GetCSVar(ctx, v)
	if cv1 != cv2 {
		t.Errorf("GetCSVar not canonical: %p != %p", cv1, cv2)
	}

	alloc := &ir.New{To: v, Type: method.Class.Type}
	method.Append(alloc)
	hm := heap.NewModel()
	obj := hm.ObjOf(alloc)
	co1 := m.GetCSObj(ctx, obj)
	co2 := m.GetCSObj(ctx, obj)
	if co1 != co2 {
		t.Errorf("GetCSObj not canonical")
	}

	f := method.Class.NewField("f", method.Class.Type)
	if m.GetInstanceField(co1, f) != m.GetInstanceField(co1, f) {
		t.Errorf("GetInstanceField not canonical")
	}
	if m.GetArrayIndex(co1) != m.GetArrayIndex(co1) {
		t.Errorf("GetArrayIndex not canonical")
	}
	sf := method.Class.NewStaticField("s", method.Class.Type)
	if m.GetStaticField(sf) != m.GetStaticField(sf) {
		t.Errorf("GetStaticField not canonical")
	}
	if m.GetCSMethod(ctx, method) != m.GetCSMethod(ctx, method) {
		t.Errorf("GetCSMethod not canonical")
	}
}

// Canonicalization must survive the inner map switching from its
// array-backed form to the hashed form.
func TestCanonicalizationBeyondHybridThreshold(t *testing.T) {
	m := NewManager()
	method := testMethod(t)
	v := method.NewVar("a", method.Class.Type)

	sites := make([]*ir.Invoke, 0, 2*hybridThreshold)
	firsts := make([]*CSVar, 0, 2*hybridThreshold)
	for i := 0; i < 2*hybridThreshold; i++ {
		site := &ir.Invoke{Kind: ir.InvokeStatic, Ref: method.Class.Ref("m", nil)}
		sites = append(sites, site)
		ctx := m.Interner().Get(site)
		firsts = append(firsts, m.GetCSVar(ctx, v))
	}
	for i, site := range sites {
		ctx := m.Interner().Get(site)
		if got := m.GetCSVar(ctx, v); got != firsts[i] {
			t.Fatalf("context %d lost canonical identity after map growth", i)
		}
	}
}

func TestPointsToSetInstalledOnCreation(t *testing.T) {
	m := NewManager()
	method := testMethod(t)
	v := method.NewVar("a", method.Class.Type)
	cv := m.GetCSVar(m.EmptyContext(), v)
	require.NotNil(t, cv.PointsToSet())
	assert.True(t, cv.PointsToSet().IsEmpty())
	// The set is installed once and never replaced.
	assert.Same(t, cv.PointsToSet(), m.GetCSVar(m.EmptyContext(), v).PointsToSet())
}

func TestPointsToSetMonotonic(t *testing.T) {
	m := NewManager()
	method := testMethod(t)
	v := method.NewVar("a", method.Class.Type)
	hm := heap.NewModel()

	pts := m.NewPointsToSet()
	var added []*CSObj
	for i := 0; i < 40; i++ {
		alloc := &ir.New{To: v, Type: method.Class.Type}
		method.Append(alloc)
		o := m.GetCSObj(m.EmptyContext(), hm.ObjOf(alloc))
		added = append(added, o)
		if !pts.Add(o) {
			t.Fatalf("Add reported no growth for fresh object %d", i)
		}
		if pts.Len() != i+1 {
			t.Fatalf("Len = %d after %d adds", pts.Len(), i+1)
		}
		for _, prev := range added {
			if !pts.Contains(prev) {
				t.Fatalf("set lost object %v", prev)
			}
		}
	}
	if pts.Add(added[0]) {
		t.Errorf("re-adding an object reported growth")
	}
}

func TestPointsToSetDiff(t *testing.T) {
	m := NewManager()
	method := testMethod(t)
	v := method.NewVar("a", method.Class.Type)
	hm := heap.NewModel()
	mkObj := func() *CSObj {
		alloc := &ir.New{To: v, Type: method.Class.Type}
		method.Append(alloc)
		return m.GetCSObj(m.EmptyContext(), hm.ObjOf(alloc))
	}

	o1, o2, o3 := mkObj(), mkObj(), mkObj()
	have := m.NewPointsToSet()
	have.Add(o1)
	incoming := m.NewPointsToSet()
	incoming.Add(o1)
	incoming.Add(o2)
	incoming.Add(o3)

	delta := have.DiffNew(incoming)
	assert.Equal(t, 2, delta.Len())
	assert.True(t, delta.Contains(o2))
	assert.True(t, delta.Contains(o3))
	assert.False(t, delta.Contains(o1))
}

func TestNilArgumentsPanic(t *testing.T) {
	m := NewManager()
	method := testMethod(t)
	v := method.NewVar("a", method.Class.Type)

	for name, fn := range map[string]func(){
		"var":      func() { m.GetCSVar(nil, v) },
		"varNil":   func() { m.GetCSVar(m.EmptyContext(), nil) },
		"obj":      func() { m.GetCSObj(m.EmptyContext(), nil) },
		"method":   func() { m.GetCSMethod(m.EmptyContext(), nil) },
		"callSite": func() { m.GetCSCallSite(m.EmptyContext(), nil) },
		"sfield":   func() { m.GetStaticField(nil) },
		"aindex":   func() { m.GetArrayIndex(nil) },
	} {
		assert.Panics(t, fn, fmt.Sprintf("%s should panic on nil", name))
	}
}

func TestEmptyContextSingleton(t *testing.T) {
	m := NewManager()
	assert.Same(t, m.EmptyContext(), m.EmptyContext())
	assert.Same(t, m.EmptyContext(), m.Interner().Empty())
	assert.Equal(t, 0, m.EmptyContext().Len())
}
