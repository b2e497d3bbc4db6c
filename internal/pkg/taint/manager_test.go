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

package taint

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
)

func TestTaintIdentity(t *testing.T) {
	h := ir.NewHierarchy()
	c := h.NewClass("T", nil, true)
	v := h.Type("V")
	w := h.Type("W")
	src := c.NewStaticMethod("source", v)
	m := c.NewStaticMethod("main", nil)
	r := m.NewVar("r", v)
	call := &ir.Invoke{Result: r, Ref: c.Ref("source", v), Kind: ir.InvokeStatic}
	m.Append(call)

	tm := NewManager(heap.NewModel())
	p1 := CallSourcePoint{Invoke: call, Index: IndexResult}

	t1 := tm.MakeTaint(p1, v)
	t2 := tm.MakeTaint(p1, v)
	assert.Same(t, t1, t2, "equal (source, type) must yield one object")

	t3 := tm.MakeTaint(p1, w)
	assert.NotSame(t, t1, t3, "different type must yield a distinct object")

	p2 := ParamSourcePoint{Method: src, Index: 0}
	t4 := tm.MakeTaint(p2, v)
	assert.NotSame(t, t1, t4, "different source point must yield a distinct object")

	assert.True(t, tm.IsTaint(t1))
	assert.Equal(t, SourcePoint(p1), tm.SourcePointOf(t1))
	assert.Len(t, tm.TaintObjs(), 3)

	plain := heap.NewModel().NewMock("SomethingElse", v, nil)
	assert.False(t, tm.IsTaint(plain))
}
