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

// Package solver implements the worklist-driven monotone fixpoint over
// a pointer-flow graph built on the fly, with on-demand creation of
// context-sensitive elements and plugin dispatch on every delta.
package solver

import (
	"context"
	"errors"
	"fmt"

	"github.com/jiachenhan/taie/internal/pkg/callgraph"
	"github.com/jiachenhan/taie/internal/pkg/contexts"
	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
)

// ErrCancelled reports that the solve was stopped by the caller's
// context. The partial result is internally consistent.
var ErrCancelled = errors.New("solver: cancelled")

// irError reports an IR invariant violation; it is fatal to the solve.
type irError struct {
	msg string
}

func (e *irError) Error() string { return "solver: malformed IR: " + e.msg }

func irFatal(format string, args ...any) {
	panic(&irError{msg: fmt.Sprintf(format, args...)})
}

// varStmts indexes the statements whose behavior depends on the
// points-to set of one base variable.
type varStmts struct {
	loads   []*ir.LoadField
	stores  []*ir.StoreField
	aloads  []*ir.LoadArray
	astores []*ir.StoreArray
	invokes []*ir.Invoke
}

// Solver drives the fixpoint.
type Solver struct {
	hierarchy *ir.Hierarchy
	heapModel *heap.Model
	csm       *cs.Manager
	selector  contexts.Selector
	cg        *callgraph.Graph
	ofg       *OFG
	wl        workList
	plugin    Plugin

	relevant   map[*ir.Var]*varStmts
	registered map[ir.Stmt]bool
	explored   map[*ir.Method]bool
	filters    map[cs.Pointer][]func(*cs.CSObj) bool
	unsound    []*ir.Invoke
	unsoundSet map[*ir.Invoke]bool
}

// New creates a solver over the given hierarchy, heap model, manager,
// and context selector. Set a plugin before calling Solve.
func New(h *ir.Hierarchy, hm *heap.Model, csm *cs.Manager, sel contexts.Selector) *Solver {
	return &Solver{
		hierarchy:  h,
		heapModel:  hm,
		csm:        csm,
		selector:   sel,
		cg:         callgraph.NewGraph(),
		ofg:        NewOFG(),
		plugin:     NopPlugin{},
		relevant:   make(map[*ir.Var]*varStmts),
		registered: make(map[ir.Stmt]bool),
		explored:   make(map[*ir.Method]bool),
		filters:    make(map[cs.Pointer][]func(*cs.CSObj) bool),
		unsoundSet: make(map[*ir.Invoke]bool),
	}
}

// SetPlugin installs the plugin invoked on solver events.
func (s *Solver) SetPlugin(p Plugin) { s.plugin = p }

// Hierarchy returns the class hierarchy under analysis.
func (s *Solver) Hierarchy() *ir.Hierarchy { return s.hierarchy }

// HeapModel returns the heap model.
func (s *Solver) HeapModel() *heap.Model { return s.heapModel }

// Manager returns the CS manager.
func (s *Solver) Manager() *cs.Manager { return s.csm }

// CallGraph returns the call graph built so far.
func (s *Solver) CallGraph() *callgraph.Graph { return s.cg }

// Solve runs the fixpoint from the entry methods and returns the
// result. Cancellation via ctx yields ErrCancelled with a partial but
// internally consistent result.
func (s *Solver) Solve(ctx context.Context, entries []*ir.Method) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*irError); ok {
				err = ie
				return
			}
			panic(r)
		}
	}()

	for _, m := range entries {
		csM := s.csm.GetCSMethod(s.csm.EmptyContext(), m)
		s.cg.AddEntry(csM)
		s.addReachable(csM)
	}

	for !s.wl.empty() {
		if ctx.Err() != nil {
			return s.result(), fmt.Errorf("%w: %v", ErrCancelled, ctx.Err())
		}
		item := s.wl.pop()
		delta := s.propagate(item.pointer, item.pts)
		if delta.IsEmpty() {
			continue
		}
		if v, ok := item.pointer.(*cs.CSVar); ok {
			s.plugin.OnNewPointsToSet(v, delta)
			s.processInstanceOps(v, delta)
			s.processCalls(v, delta)
		}
	}
	s.plugin.OnFinish()
	return s.result(), nil
}

func (s *Solver) result() *Result {
	return &Result{csm: s.csm, cg: s.cg, ofg: s.ofg, unsound: s.unsound}
}

// propagate merges pts into p's set and pushes the surviving delta
// along p's outgoing flow edges.
func (s *Solver) propagate(p cs.Pointer, pts *cs.PointsToSet) *cs.PointsToSet {
	delta := p.PointsToSet().DiffNew(pts)
	for _, filter := range s.filters[p] {
		delta = delta.Filter(filter)
	}
	if delta.IsEmpty() {
		return delta
	}
	p.PointsToSet().AddAll(delta)
	for _, e := range s.ofg.OutOf(p) {
		s.wl.add(e.Dst, s.filtered(e, delta))
	}
	return delta
}

// filtered applies a cast edge's type filter to a delta.
func (s *Solver) filtered(e *Edge, delta *cs.PointsToSet) *cs.PointsToSet {
	if e.Filter == nil {
		return delta
	}
	return delta.Filter(func(o *cs.CSObj) bool {
		return s.hierarchy.IsSubtype(o.Type(), e.Filter)
	})
}

// addPFGEdge inserts a flow edge and replays the source's current
// points-to set over it.
func (s *Solver) addPFGEdge(src, dst cs.Pointer, kind EdgeKind, filter *ir.Type) {
	e := &Edge{Kind: kind, Src: src, Dst: dst, Filter: filter}
	if !s.ofg.AddEdge(e) {
		return
	}
	if !src.PointsToSet().IsEmpty() {
		s.wl.add(dst, s.filtered(e, src.PointsToSet()))
	}
}

// addReachable marks a context-sensitive method reachable and expands
// its statements.
func (s *Solver) addReachable(csM *cs.CSMethod) {
	if !s.cg.AddReachable(csM) {
		return
	}
	m := csM.Method()
	if !s.explored[m] {
		s.explored[m] = true
		s.plugin.OnNewMethod(m)
	}
	s.plugin.OnNewCSMethod(csM)
	for _, stmt := range m.Body() {
		s.processStmt(csM, stmt)
		s.plugin.OnNewStmt(stmt, csM)
	}
}

// AddStmts injects statements into the reachable body of csM. The
// statements are processed like discovered ones, statement hooks
// included.
func (s *Solver) AddStmts(csM *cs.CSMethod, stmts []ir.Stmt) {
	for _, stmt := range stmts {
		s.processStmt(csM, stmt)
		s.plugin.OnNewStmt(stmt, csM)
	}
}

func (s *Solver) relevantOf(v *ir.Var) *varStmts {
	vs, ok := s.relevant[v]
	if !ok {
		vs = &varStmts{}
		s.relevant[v] = vs
	}
	return vs
}

func (s *Solver) processStmt(csM *cs.CSMethod, stmt ir.Stmt) {
	ctx := csM.Context()
	switch st := stmt.(type) {
	case *ir.New:
		if st.To == nil {
			irFatal("new statement without target in %s", csM)
		}
		obj := s.heapModel.ObjOf(st)
		hctx := s.selector.SelectHeapContext(csM, obj)
		s.AddVarPointsTo(ctx, st.To, s.csm.GetCSObj(hctx, obj))

	case *ir.AssignLiteral:
		if !st.Type.IsReference() {
			return
		}
		obj := s.heapModel.Constant(st.Type, st.Value)
		s.AddVarPointsTo(ctx, st.To, s.csm.GetCSObj(s.csm.EmptyContext(), obj))

	case *ir.Copy:
		s.addPFGEdge(s.csm.GetCSVar(ctx, st.From), s.csm.GetCSVar(ctx, st.To), LocalAssign, nil)

	case *ir.Cast:
		s.addPFGEdge(s.csm.GetCSVar(ctx, st.From), s.csm.GetCSVar(ctx, st.To), CastEdge, st.Type)

	case *ir.LoadField:
		if st.Base == nil {
			if !st.Field.IsStatic {
				irFatal("static load of member field %s", st.Field)
			}
			s.addPFGEdge(s.csm.GetStaticField(st.Field), s.csm.GetCSVar(ctx, st.To), StaticLoad, nil)
			return
		}
		s.registerOnce(st, func(vs *varStmts) { vs.loads = append(vs.loads, st) })
		base := s.csm.GetCSVar(ctx, st.Base)
		base.PointsToSet().ForEach(func(o *cs.CSObj) {
			s.addPFGEdge(s.csm.GetInstanceField(o, st.Field), s.csm.GetCSVar(ctx, st.To), InstanceLoad, nil)
		})

	case *ir.StoreField:
		if st.Base == nil {
			if !st.Field.IsStatic {
				irFatal("static store of member field %s", st.Field)
			}
			s.addPFGEdge(s.csm.GetCSVar(ctx, st.From), s.csm.GetStaticField(st.Field), StaticStore, nil)
			return
		}
		s.registerOnce(st, func(vs *varStmts) { vs.stores = append(vs.stores, st) })
		base := s.csm.GetCSVar(ctx, st.Base)
		base.PointsToSet().ForEach(func(o *cs.CSObj) {
			s.addPFGEdge(s.csm.GetCSVar(ctx, st.From), s.csm.GetInstanceField(o, st.Field), InstanceStore, nil)
		})

	case *ir.LoadArray:
		s.registerOnce(st, func(vs *varStmts) { vs.aloads = append(vs.aloads, st) })
		base := s.csm.GetCSVar(ctx, st.Base)
		base.PointsToSet().ForEach(func(o *cs.CSObj) {
			s.addPFGEdge(s.csm.GetArrayIndex(o), s.csm.GetCSVar(ctx, st.To), ArrayLoad, nil)
		})

	case *ir.StoreArray:
		s.registerOnce(st, func(vs *varStmts) { vs.astores = append(vs.astores, st) })
		base := s.csm.GetCSVar(ctx, st.Base)
		base.PointsToSet().ForEach(func(o *cs.CSObj) {
			s.addPFGEdge(s.csm.GetCSVar(ctx, st.From), s.csm.GetArrayIndex(o), ArrayStore, nil)
		})

	case *ir.Invoke:
		if st.Kind == ir.InvokeStatic {
			if st.Base != nil {
				irFatal("static invoke with receiver: %s", st)
			}
			s.processStaticCall(csM, st)
			return
		}
		if st.Base == nil {
			irFatal("instance invoke without receiver: %s", st)
		}
		s.registerOnce(st, func(vs *varStmts) { vs.invokes = append(vs.invokes, st) })
		site := s.csm.GetCSCallSite(ctx, st)
		base := s.csm.GetCSVar(ctx, st.Base)
		base.PointsToSet().ForEach(func(o *cs.CSObj) {
			s.processCallOn(site, st, o)
		})

	case *ir.Return:
		// Return flow is wired per call edge.
	}
}

// registerOnce puts a base-dependent statement into the per-variable
// index the first time it is seen.
func (s *Solver) registerOnce(stmt ir.Stmt, register func(*varStmts)) {
	if s.registered[stmt] {
		return
	}
	s.registered[stmt] = true
	switch st := stmt.(type) {
	case *ir.LoadField:
		register(s.relevantOf(st.Base))
	case *ir.StoreField:
		register(s.relevantOf(st.Base))
	case *ir.LoadArray:
		register(s.relevantOf(st.Base))
	case *ir.StoreArray:
		register(s.relevantOf(st.Base))
	case *ir.Invoke:
		register(s.relevantOf(st.Base))
	}
}

// processInstanceOps unfolds field and array accesses whose base
// gained new objects.
func (s *Solver) processInstanceOps(v *cs.CSVar, delta *cs.PointsToSet) {
	vs, ok := s.relevant[v.Var()]
	if !ok {
		return
	}
	ctx := v.Context()
	delta.ForEach(func(o *cs.CSObj) {
		for _, ld := range vs.loads {
			s.addPFGEdge(s.csm.GetInstanceField(o, ld.Field), s.csm.GetCSVar(ctx, ld.To), InstanceLoad, nil)
		}
		for _, st := range vs.stores {
			s.addPFGEdge(s.csm.GetCSVar(ctx, st.From), s.csm.GetInstanceField(o, st.Field), InstanceStore, nil)
		}
		for _, ld := range vs.aloads {
			s.addPFGEdge(s.csm.GetArrayIndex(o), s.csm.GetCSVar(ctx, ld.To), ArrayLoad, nil)
		}
		for _, st := range vs.astores {
			s.addPFGEdge(s.csm.GetCSVar(ctx, st.From), s.csm.GetArrayIndex(o), ArrayStore, nil)
		}
	})
}

// processCalls resolves call sites whose receiver gained new objects.
func (s *Solver) processCalls(v *cs.CSVar, delta *cs.PointsToSet) {
	vs, ok := s.relevant[v.Var()]
	if !ok {
		return
	}
	ctx := v.Context()
	for _, invoke := range vs.invokes {
		site := s.csm.GetCSCallSite(ctx, invoke)
		delta.ForEach(func(o *cs.CSObj) {
			s.processCallOn(site, invoke, o)
		})
	}
}

// processCallOn resolves one call site against one receiver object.
// Resolution is cached by the call graph's edge dedup.
func (s *Solver) processCallOn(site *cs.CSCallSite, invoke *ir.Invoke, recv *cs.CSObj) {
	var callee *ir.Method
	var ok bool
	kind := callgraph.KindCall
	switch invoke.Kind {
	case ir.InvokeSpecial:
		callee, ok = invoke.Ref.Resolve()
		kind = callgraph.KindLocal
	case ir.InvokeDynamic:
		kind = callgraph.KindOther
		callee, ok = s.hierarchy.Dispatch(recv.Obj().Type(), invoke.Ref)
	default:
		callee, ok = s.hierarchy.Dispatch(recv.Obj().Type(), invoke.Ref)
	}
	if !ok {
		s.RecordUnsoundCall(invoke)
		return
	}
	calleeCtx := s.selector.SelectContext(site, recv, callee)
	s.addCallEdge(&callgraph.Edge{
		Kind:     kind,
		CallSite: site,
		Callee:   s.csm.GetCSMethod(calleeCtx, callee),
	})
}

func (s *Solver) processStaticCall(csM *cs.CSMethod, invoke *ir.Invoke) {
	callee, ok := invoke.Ref.Resolve()
	if !ok {
		s.RecordUnsoundCall(invoke)
		return
	}
	site := s.csm.GetCSCallSite(csM.Context(), invoke)
	calleeCtx := s.selector.SelectContext(site, nil, callee)
	s.addCallEdge(&callgraph.Edge{
		Kind:     callgraph.KindLocal,
		CallSite: site,
		Callee:   s.csm.GetCSMethod(calleeCtx, callee),
	})
}

// addCallEdge wires parameter, return, and this flow for a new call
// edge, then notifies the plugin. Wiring completes before the hook
// fires.
func (s *Solver) addCallEdge(e *callgraph.Edge) {
	if !s.cg.AddEdge(e) {
		return
	}
	s.addReachable(e.Callee)

	invoke := e.CallSite.Invoke()
	callee := e.Callee.Method()
	callerCtx := e.CallSite.Context()
	calleeCtx := e.Callee.Context()

	if invoke.Base != nil && callee.This() != nil {
		s.addPFGEdge(s.csm.GetCSVar(callerCtx, invoke.Base), s.csm.GetCSVar(calleeCtx, callee.This()), ThisPassing, nil)
	}
	for i, arg := range invoke.Args {
		if i >= len(callee.Params()) {
			irFatal("call %s passes %d arguments to %s", invoke, len(invoke.Args), callee.Signature())
		}
		s.addPFGEdge(s.csm.GetCSVar(callerCtx, arg), s.csm.GetCSVar(calleeCtx, callee.Param(i)), ParameterPassing, nil)
	}
	if invoke.Result != nil {
		for _, rv := range callee.ReturnVars() {
			s.addPFGEdge(s.csm.GetCSVar(calleeCtx, rv), s.csm.GetCSVar(callerCtx, invoke.Result), ReturnEdge, nil)
		}
	}
	s.plugin.OnNewCallEdge(e)
}

// AddVarPointsTo adds one object to the context-sensitive variable.
func (s *Solver) AddVarPointsTo(ctx *cs.Context, v *ir.Var, obj *cs.CSObj) {
	pts := s.csm.NewPointsToSet()
	pts.Add(obj)
	s.AddPointsTo(s.csm.GetCSVar(ctx, v), pts)
}

// AddPointsTo schedules objects to flow into any pointer kind.
func (s *Solver) AddPointsTo(p cs.Pointer, pts *cs.PointsToSet) {
	s.wl.add(p, pts)
}

// MakePointsToSet allocates an empty points-to set in the configured
// representation.
func (s *Solver) MakePointsToSet() *cs.PointsToSet {
	return s.csm.NewPointsToSet()
}

// GetPointsToSetOf returns the pointer's set; never nil.
func (s *Solver) GetPointsToSetOf(p cs.Pointer) *cs.PointsToSet {
	return p.PointsToSet()
}

// AddPointerFilter installs a predicate that every object must satisfy
// to enter p's points-to set. Filters see objects before they are
// merged, so installing one in a call-edge hook precedes any argument
// propagation into the callee.
func (s *Solver) AddPointerFilter(p cs.Pointer, filter func(*cs.CSObj) bool) {
	s.filters[p] = append(s.filters[p], filter)
}

// RecordUnsoundCall records a call site the analysis could not resolve
// soundly. Recorded sites are reported with the result, never fatal.
func (s *Solver) RecordUnsoundCall(invoke *ir.Invoke) {
	if s.unsoundSet[invoke] {
		return
	}
	s.unsoundSet[invoke] = true
	s.unsound = append(s.unsound, invoke)
}
