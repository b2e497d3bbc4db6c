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
	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
)

// hybridThreshold is the inner-map size at which the array-backed
// representation switches to a hash map. The number of contexts per
// entity is small for common sensitivities, so most inner maps never
// switch.
const hybridThreshold = 8

// hybridMap is a small insert-only map: array-backed until
// hybridThreshold entries, hashed beyond.
type hybridMap[K comparable, V any] struct {
	keys []K
	vals []V
	m    map[K]V
}

func (h *hybridMap[K, V]) get(k K) (V, bool) {
	if h.m != nil {
		v, ok := h.m[k]
		return v, ok
	}
	for i, key := range h.keys {
		if key == k {
			return h.vals[i], true
		}
	}
	var zero V
	return zero, false
}

func (h *hybridMap[K, V]) put(k K, v V) {
	if h.m != nil {
		h.m[k] = v
		return
	}
	if len(h.keys) >= hybridThreshold {
		h.m = make(map[K]V, len(h.keys)+1)
		for i, key := range h.keys {
			h.m[key] = h.vals[i]
		}
		h.keys, h.vals = nil, nil
		h.m[k] = v
		return
	}
	h.keys = append(h.keys, k)
	h.vals = append(h.vals, v)
}

func (h *hybridMap[K, V]) each(f func(V)) {
	if h.m != nil {
		for _, v := range h.m {
			f(v)
		}
		return
	}
	for _, v := range h.vals {
		f(v)
	}
}

// Manager is the sole factory of context-sensitive elements. Every
// getter is idempotent: the same arguments return the same element.
// Each pointer-kind element receives its points-to set at creation and
// keeps it for the lifetime of the analysis.
type Manager struct {
	interner *ContextInterner

	vars      map[*ir.Var]*hybridMap[*Context, *CSVar]
	objs      map[*heap.Obj]*hybridMap[*Context, *CSObj]
	callSites map[*ir.Invoke]*hybridMap[*Context, *CSCallSite]
	methods   map[*ir.Method]*hybridMap[*Context, *CSMethod]
	ifields   map[*CSObj]map[*ir.Field]*InstanceField
	aindexes  map[*CSObj]*ArrayIndex
	sfields   map[*ir.Field]*StaticField

	arena []*CSObj
}

func NewManager() *Manager {
	return &Manager{
		interner:  NewContextInterner(),
		vars:      make(map[*ir.Var]*hybridMap[*Context, *CSVar]),
		objs:      make(map[*heap.Obj]*hybridMap[*Context, *CSObj]),
		callSites: make(map[*ir.Invoke]*hybridMap[*Context, *CSCallSite]),
		methods:   make(map[*ir.Method]*hybridMap[*Context, *CSMethod]),
		ifields:   make(map[*CSObj]map[*ir.Field]*InstanceField),
		aindexes:  make(map[*CSObj]*ArrayIndex),
		sfields:   make(map[*ir.Field]*StaticField),
	}
}

// Interner returns the context interner shared by the analysis.
func (m *Manager) Interner() *ContextInterner { return m.interner }

// EmptyContext returns the distinguished empty context.
func (m *Manager) EmptyContext() *Context { return m.interner.Empty() }

// NewPointsToSet allocates an empty points-to set in the configured
// representation.
func (m *Manager) NewPointsToSet() *PointsToSet {
	return &PointsToSet{mgr: m}
}

// GetCSVar returns the canonical context-sensitive variable.
func (m *Manager) GetCSVar(ctx *Context, v *ir.Var) *CSVar {
	if ctx == nil || v == nil {
		panic("cs: GetCSVar with nil argument")
	}
	inner, ok := m.vars[v]
	if !ok {
		inner = &hybridMap[*Context, *CSVar]{}
		m.vars[v] = inner
	}
	if cv, ok := inner.get(ctx); ok {
		return cv
	}
	cv := &CSVar{ctx: ctx, v: v, pts: m.NewPointsToSet()}
	inner.put(ctx, cv)
	return cv
}

// GetCSObj returns the canonical context-sensitive object, assigning a
// dense arena index on first creation.
func (m *Manager) GetCSObj(heapCtx *Context, obj *heap.Obj) *CSObj {
	if heapCtx == nil || obj == nil {
		panic("cs: GetCSObj with nil argument")
	}
	inner, ok := m.objs[obj]
	if !ok {
		inner = &hybridMap[*Context, *CSObj]{}
		m.objs[obj] = inner
	}
	if co, ok := inner.get(heapCtx); ok {
		return co
	}
	co := &CSObj{ctx: heapCtx, obj: obj, index: len(m.arena)}
	m.arena = append(m.arena, co)
	inner.put(heapCtx, co)
	return co
}

// GetCSCallSite returns the canonical context-sensitive call site.
func (m *Manager) GetCSCallSite(ctx *Context, invoke *ir.Invoke) *CSCallSite {
	if ctx == nil || invoke == nil {
		panic("cs: GetCSCallSite with nil argument")
	}
	inner, ok := m.callSites[invoke]
	if !ok {
		inner = &hybridMap[*Context, *CSCallSite]{}
		m.callSites[invoke] = inner
	}
	if s, ok := inner.get(ctx); ok {
		return s
	}
	s := &CSCallSite{ctx: ctx, invoke: invoke}
	inner.put(ctx, s)
	return s
}

// GetCSMethod returns the canonical context-sensitive method.
func (m *Manager) GetCSMethod(ctx *Context, method *ir.Method) *CSMethod {
	if ctx == nil || method == nil {
		panic("cs: GetCSMethod with nil argument")
	}
	inner, ok := m.methods[method]
	if !ok {
		inner = &hybridMap[*Context, *CSMethod]{}
		m.methods[method] = inner
	}
	if cm, ok := inner.get(ctx); ok {
		return cm
	}
	cm := &CSMethod{ctx: ctx, m: method}
	inner.put(ctx, cm)
	return cm
}

// GetInstanceField returns the canonical instance-field pointer.
func (m *Manager) GetInstanceField(base *CSObj, field *ir.Field) *InstanceField {
	if base == nil || field == nil {
		panic("cs: GetInstanceField with nil argument")
	}
	inner, ok := m.ifields[base]
	if !ok {
		inner = make(map[*ir.Field]*InstanceField)
		m.ifields[base] = inner
	}
	if f, ok := inner[field]; ok {
		return f
	}
	f := &InstanceField{base: base, field: field, pts: m.NewPointsToSet()}
	inner[field] = f
	return f
}

// GetArrayIndex returns the canonical array-contents pointer.
func (m *Manager) GetArrayIndex(array *CSObj) *ArrayIndex {
	if array == nil {
		panic("cs: GetArrayIndex with nil argument")
	}
	if a, ok := m.aindexes[array]; ok {
		return a
	}
	a := &ArrayIndex{array: array, pts: m.NewPointsToSet()}
	m.aindexes[array] = a
	return a
}

// GetStaticField returns the canonical static-field pointer.
func (m *Manager) GetStaticField(field *ir.Field) *StaticField {
	if field == nil {
		panic("cs: GetStaticField with nil argument")
	}
	if f, ok := m.sfields[field]; ok {
		return f
	}
	f := &StaticField{field: field, pts: m.NewPointsToSet()}
	m.sfields[field] = f
	return f
}

// CSVars returns every context-sensitive variable created so far.
func (m *Manager) CSVars() []*CSVar {
	var out []*CSVar
	for _, inner := range m.vars {
		inner.each(func(v *CSVar) { out = append(out, v) })
	}
	return out
}

// CSVarsOf returns the context-sensitive instances of one variable.
func (m *Manager) CSVarsOf(v *ir.Var) []*CSVar {
	var out []*CSVar
	if inner, ok := m.vars[v]; ok {
		inner.each(func(cv *CSVar) { out = append(out, cv) })
	}
	return out
}

// InstanceFields returns every instance-field pointer created so far.
func (m *Manager) InstanceFields() []*InstanceField {
	var out []*InstanceField
	for _, inner := range m.ifields {
		for _, f := range inner {
			out = append(out, f)
		}
	}
	return out
}

// ArrayIndexes returns every array pointer created so far.
func (m *Manager) ArrayIndexes() []*ArrayIndex {
	out := make([]*ArrayIndex, 0, len(m.aindexes))
	for _, a := range m.aindexes {
		out = append(out, a)
	}
	return out
}

// StaticFields returns every static-field pointer created so far.
func (m *Manager) StaticFields() []*StaticField {
	out := make([]*StaticField, 0, len(m.sfields))
	for _, f := range m.sfields {
		out = append(out, f)
	}
	return out
}

// Objects returns every context-sensitive object created so far, in
// arena order.
func (m *Manager) Objects() []*CSObj {
	return append([]*CSObj(nil), m.arena...)
}
