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

// Package heap maps allocation sites and synthetic descriptors to
// abstract objects. Allocation-site objects are canonical per site;
// constant objects are canonical per (type, value); mock objects are
// minted on demand by their owners (the taint manager dedupes its own).
package heap

import (
	"fmt"

	"github.com/jiachenhan/taie/internal/pkg/ir"
)

// ObjKind discriminates the variants of Obj.
type ObjKind int

const (
	// AllocObj abstracts a "new T" allocation site.
	AllocObj ObjKind = iota
	// ConstantObj abstracts a string or class constant.
	ConstantObj
	// MockObj is an analyzer-synthesized object: taint carriers,
	// reflection unknowns.
	MockObj
)

// Obj is the analysis-level abstraction of a heap object.
type Obj struct {
	kind      ObjKind
	typ       *ir.Type
	alloc     *ir.New // AllocObj only
	value     string  // ConstantObj only
	desc      string  // MockObj only
	payload   any     // MockObj only, owned by the minting plugin
	container *ir.Method
}

func (o *Obj) Kind() ObjKind { return o.kind }
func (o *Obj) Type() *ir.Type { return o.typ }

// Allocation returns the allocation site for AllocObj objects, nil
// otherwise.
func (o *Obj) Allocation() *ir.New { return o.alloc }

// ConstantValue returns the constant's value for ConstantObj objects.
func (o *Obj) ConstantValue() string { return o.value }

// Descriptor names the minting concern for MockObj objects.
func (o *Obj) Descriptor() string { return o.desc }

// Payload returns the opaque data attached to a MockObj.
func (o *Obj) Payload() any { return o.payload }

// ContainerMethod returns the method containing the allocation, nil
// for constants and mocks.
func (o *Obj) ContainerMethod() *ir.Method { return o.container }

func (o *Obj) String() string {
	switch o.kind {
	case AllocObj:
		return fmt.Sprintf("%s/%s", o.container.Signature(), o.alloc)
	case ConstantObj:
		return fmt.Sprintf("%q:%s", o.value, o.typ.Name)
	default:
		return fmt.Sprintf("%s:%s", o.desc, o.typ.Name)
	}
}

type constKey struct {
	typ   *ir.Type
	value string
}

// Model canonicalizes abstract objects.
type Model struct {
	allocs map[*ir.New]*Obj
	consts map[constKey]*Obj
}

func NewModel() *Model {
	return &Model{
		allocs: make(map[*ir.New]*Obj),
		consts: make(map[constKey]*Obj),
	}
}

// ObjOf returns the canonical object of an allocation site.
func (m *Model) ObjOf(alloc *ir.New) *Obj {
	if o, ok := m.allocs[alloc]; ok {
		return o
	}
	o := &Obj{kind: AllocObj, typ: alloc.Type, alloc: alloc, container: alloc.Container()}
	m.allocs[alloc] = o
	return o
}

// Constant returns the canonical object of a string or class constant.
func (m *Model) Constant(typ *ir.Type, value string) *Obj {
	k := constKey{typ: typ, value: value}
	if o, ok := m.consts[k]; ok {
		return o
	}
	o := &Obj{kind: ConstantObj, typ: typ, value: value}
	m.consts[k] = o
	return o
}

// NewMock mints a fresh mock object. Mocks are not deduplicated here;
// owners with identity semantics (the taint manager) cache their own.
func (m *Model) NewMock(desc string, typ *ir.Type, payload any) *Obj {
	return &Obj{kind: MockObj, typ: typ, desc: desc, payload: payload}
}
