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

// Package reflection models the core reflection API at the level of
// solver hooks: class lookup with constant propagation, instantiation
// of known and unknown classes, and recording of call sites the model
// cannot resolve soundly.
package reflection

import (
	"github.com/jiachenhan/taie/internal/pkg/callgraph"
	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
	"github.com/jiachenhan/taie/internal/pkg/solver"
)

const (
	// UnknownObjDescriptor marks objects from reflective operations
	// whose target class could not be determined.
	UnknownObjDescriptor = "UnknownReflectiveObj"
	// reflectiveObjDescriptor marks instantiations of classes named
	// by propagated class constants.
	reflectiveObjDescriptor = "ReflectiveObj"
)

const (
	forNameSig     = "<java.lang.Class: java.lang.Class forName(java.lang.String)>"
	newInstanceSig = "<java.lang.Class: java.lang.Object newInstance()>"
	invokeSig      = "<java.lang.reflect.Method: java.lang.Object invoke(java.lang.Object,java.lang.Object[])>"
)

// Plugin is the reflection model. When the analyzed hierarchy does not
// declare the reflection API the plugin is inert.
type Plugin struct {
	solver.NopPlugin
	s   *solver.Solver
	csm *cs.Manager
	hm  *heap.Model

	forName     *ir.Method
	newInstance *ir.Method
	reflInvoke  *ir.Method
	stringType  *ir.Type
	classType   *ir.Type

	pendingForName map[*cs.CSVar][]*ir.Invoke
	pendingNew     map[*cs.CSVar][]*ir.Invoke
	unknowns       map[*ir.Invoke]*heap.Obj
	instances      map[instanceKey]*heap.Obj
}

type instanceKey struct {
	invoke *ir.Invoke
	typ    *ir.Type
}

var _ solver.Plugin = (*Plugin)(nil)

// New builds the reflection plugin for a solver.
func New(s *solver.Solver) *Plugin {
	p := &Plugin{
		s:              s,
		csm:            s.Manager(),
		hm:             s.HeapModel(),
		pendingForName: make(map[*cs.CSVar][]*ir.Invoke),
		pendingNew:     make(map[*cs.CSVar][]*ir.Invoke),
		unknowns:       make(map[*ir.Invoke]*heap.Obj),
		instances:      make(map[instanceKey]*heap.Obj),
	}
	h := s.Hierarchy()
	if m, err := h.MethodBySignature(forNameSig); err == nil {
		p.forName = m
		p.stringType = m.ParamTypes[0]
		p.classType = m.RetType
	}
	if m, err := h.MethodBySignature(newInstanceSig); err == nil {
		p.newInstance = m
	}
	if m, err := h.MethodBySignature(invokeSig); err == nil {
		p.reflInvoke = m
	}
	return p
}

func (p *Plugin) OnNewCallEdge(e *callgraph.Edge) {
	invoke := e.CallSite.Invoke()
	switch e.Callee.Method() {
	case nil:
		return
	case p.forName:
		if invoke.Result == nil || len(invoke.Args) == 0 {
			return
		}
		arg := p.csm.GetCSVar(e.CallSite.Context(), invoke.Args[0])
		p.pendingForName[arg] = append(p.pendingForName[arg], invoke)
		p.resolveForName(arg, arg.PointsToSet(), invoke)
	case p.newInstance:
		if invoke.Result == nil || invoke.Base == nil {
			return
		}
		base := p.csm.GetCSVar(e.CallSite.Context(), invoke.Base)
		p.pendingNew[base] = append(p.pendingNew[base], invoke)
		p.instantiate(base, base.PointsToSet(), invoke)
	case p.reflInvoke:
		// Reflective dispatch through Method.invoke is deferred;
		// record the site so the report names it.
		p.s.RecordUnsoundCall(invoke)
	}
}

func (p *Plugin) OnNewPointsToSet(v *cs.CSVar, delta *cs.PointsToSet) {
	for _, invoke := range p.pendingForName[v] {
		p.resolveForName(v, delta, invoke)
	}
	for _, invoke := range p.pendingNew[v] {
		p.instantiate(v, delta, invoke)
	}
}

// resolveForName turns string constants reaching a forName argument
// into class constants on its result. Non-constant names yield one
// unknown object and mark the site unsound.
func (p *Plugin) resolveForName(arg *cs.CSVar, objs *cs.PointsToSet, invoke *ir.Invoke) {
	result := p.csm.GetCSVar(arg.Context(), invoke.Result)
	out := p.s.MakePointsToSet()
	objs.ForEach(func(o *cs.CSObj) {
		if o.Obj().Kind() == heap.ConstantObj && o.Obj().Type() == p.stringType {
			cls := p.hm.Constant(p.classType, o.Obj().ConstantValue())
			out.Add(p.csm.GetCSObj(p.csm.EmptyContext(), cls))
			return
		}
		out.Add(p.csm.GetCSObj(p.csm.EmptyContext(), p.unknownFor(invoke, p.classType)))
		p.s.RecordUnsoundCall(invoke)
	})
	if !out.IsEmpty() {
		p.s.AddPointsTo(result, out)
	}
}

// instantiate models newInstance: class constants produce an object of
// the named class when the hierarchy declares it; anything else
// produces one unknown object and marks the site unsound.
func (p *Plugin) instantiate(base *cs.CSVar, objs *cs.PointsToSet, invoke *ir.Invoke) {
	result := p.csm.GetCSVar(base.Context(), invoke.Result)
	out := p.s.MakePointsToSet()
	objs.ForEach(func(o *cs.CSObj) {
		if o.Obj().Kind() == heap.ConstantObj && o.Obj().Type() == p.classType {
			if c, ok := p.s.Hierarchy().ClassByName(o.Obj().ConstantValue()); ok {
				k := instanceKey{invoke: invoke, typ: c.Type}
				obj, ok := p.instances[k]
				if !ok {
					obj = p.hm.NewMock(reflectiveObjDescriptor, c.Type, invoke)
					p.instances[k] = obj
				}
				out.Add(p.csm.GetCSObj(p.csm.EmptyContext(), obj))
				return
			}
		}
		out.Add(p.csm.GetCSObj(p.csm.EmptyContext(), p.unknownFor(invoke, p.newInstance.RetType)))
		p.s.RecordUnsoundCall(invoke)
	})
	if !out.IsEmpty() {
		p.s.AddPointsTo(result, out)
	}
}

// unknownFor returns the single unknown object of a reflective call
// site.
func (p *Plugin) unknownFor(invoke *ir.Invoke, typ *ir.Type) *heap.Obj {
	if o, ok := p.unknowns[invoke]; ok {
		return o
	}
	o := p.hm.NewMock(UnknownObjDescriptor, typ, invoke)
	p.unknowns[invoke] = o
	return o
}

// IsUnknownObj reports whether obj came from an unresolved reflective
// operation.
func IsUnknownObj(obj *heap.Obj) bool {
	return obj.Kind() == heap.MockObj && obj.Descriptor() == UnknownObjDescriptor
}
