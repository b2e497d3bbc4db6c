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

	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
)

// Pointer is an abstract location holding a points-to set: a
// context-sensitive variable, an instance field, an array slot, or a
// static field.
type Pointer interface {
	fmt.Stringer
	PointsToSet() *PointsToSet
	Type() *ir.Type
}

// CSVar is a (context, variable) pair.
type CSVar struct {
	ctx *Context
	v   *ir.Var
	pts *PointsToSet
}

func (p *CSVar) Context() *Context         { return p.ctx }
func (p *CSVar) Var() *ir.Var              { return p.v }
func (p *CSVar) PointsToSet() *PointsToSet { return p.pts }
func (p *CSVar) Type() *ir.Type            { return p.v.Type }
func (p *CSVar) String() string            { return p.ctx.String() + ":" + p.v.String() }

// CSObj is a (heap context, object) pair. Every CSObj carries a dense
// index into the manager's arena; points-to sets are bitsets over
// these indices.
type CSObj struct {
	ctx   *Context
	obj   *heap.Obj
	index int
}

func (o *CSObj) Context() *Context { return o.ctx }
func (o *CSObj) Obj() *heap.Obj    { return o.obj }
func (o *CSObj) Index() int        { return o.index }
func (o *CSObj) Type() *ir.Type    { return o.obj.Type() }
func (o *CSObj) String() string    { return o.ctx.String() + ":" + o.obj.String() }

// InstanceField is a (base object, field) pair.
type InstanceField struct {
	base  *CSObj
	field *ir.Field
	pts   *PointsToSet
}

func (p *InstanceField) Base() *CSObj              { return p.base }
func (p *InstanceField) Field() *ir.Field          { return p.field }
func (p *InstanceField) PointsToSet() *PointsToSet { return p.pts }
func (p *InstanceField) Type() *ir.Type            { return p.field.Type }
func (p *InstanceField) String() string {
	return fmt.Sprintf("%s.%s", p.base, p.field.Name)
}

// ArrayIndex is the collapsed contents of an array object.
type ArrayIndex struct {
	array *CSObj
	pts   *PointsToSet
}

func (p *ArrayIndex) Array() *CSObj             { return p.array }
func (p *ArrayIndex) PointsToSet() *PointsToSet { return p.pts }
func (p *ArrayIndex) Type() *ir.Type {
	if t := p.array.Type(); t.Kind == ir.ArrayType {
		return t.Elem
	}
	return p.array.Type()
}
func (p *ArrayIndex) String() string { return p.array.String() + "[*]" }

// StaticField is a static field pointer.
type StaticField struct {
	field *ir.Field
	pts   *PointsToSet
}

func (p *StaticField) Field() *ir.Field          { return p.field }
func (p *StaticField) PointsToSet() *PointsToSet { return p.pts }
func (p *StaticField) Type() *ir.Type            { return p.field.Type }
func (p *StaticField) String() string            { return p.field.String() }

// CSCallSite is a (context, invoke) pair.
type CSCallSite struct {
	ctx    *Context
	invoke *ir.Invoke
}

func (s *CSCallSite) Context() *Context  { return s.ctx }
func (s *CSCallSite) Invoke() *ir.Invoke { return s.invoke }
func (s *CSCallSite) String() string     { return s.ctx.String() + ":" + s.invoke.String() }

// CSMethod is a (context, method) pair.
type CSMethod struct {
	ctx *Context
	m   *ir.Method
}

func (m *CSMethod) Context() *Context  { return m.ctx }
func (m *CSMethod) Method() *ir.Method { return m.m }
func (m *CSMethod) String() string     { return m.ctx.String() + ":" + m.m.Signature() }
