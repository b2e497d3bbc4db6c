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
	"github.com/jiachenhan/taie/internal/pkg/callgraph"
	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/ir"
	"github.com/jiachenhan/taie/internal/pkg/solver"
)

// TransferTarget is one registered variable-level transfer: taint
// reaching the indexed variable flows to To, re-typed as Type.
type TransferTarget struct {
	To   *cs.CSVar
	Type *ir.Type
}

// transferHandler applies taint transfer rules on new call edges and
// new points-to deltas, and synthesizes back-propagation statements
// for transfers that mutate aliased objects.
type transferHandler struct {
	s   *solver.Solver
	csm *cs.Manager
	tm  *Manager

	rules        map[*ir.Method][]Transfer
	varTransfers map[*cs.CSVar][]TransferTarget
	backPropped  map[*cs.CSVar]bool
}

func newTransferHandler(s *solver.Solver, tm *Manager, cfg *Config) *transferHandler {
	h := &transferHandler{
		s:            s,
		csm:          s.Manager(),
		tm:           tm,
		rules:        make(map[*ir.Method][]Transfer),
		varTransfers: make(map[*cs.CSVar][]TransferTarget),
		backPropped:  make(map[*cs.CSVar]bool),
	}
	for _, r := range cfg.Transfers {
		h.rules[r.Method] = append(h.rules[r.Method], r)
	}
	return h
}

func (h *transferHandler) onNewCallEdge(e *callgraph.Edge) {
	// Transfers matched by OTHER-kind edges (dynamic invokes) are
	// skipped.
	if e.Kind == callgraph.KindOther {
		return
	}
	callee := e.Callee.Method()
	for _, rule := range h.rules[callee] {
		from := actualCSVar(h.csm, e.CallSite, rule.From)
		to := actualCSVar(h.csm, e.CallSite, rule.To)
		if from == nil || to == nil {
			// RESULT requested but the call discards its value.
			continue
		}
		target := TransferTarget{To: to, Type: rule.Type}
		h.varTransfers[from] = append(h.varTransfers[from], target)
		h.transferTaint(from.PointsToSet(), target)
		// A transfer into the receiver or an argument mutates an
		// object reachable through aliases; propagate the write back
		// through the fields that produced it. Constructor receivers
		// are freshly allocated, so the alias concern is vacuous.
		if rule.To != IndexResult && !(rule.To == IndexBase && callee.IsConstructor) {
			h.backPropagate(to)
		}
	}
}

func (h *transferHandler) onNewPointsTo(v *cs.CSVar, delta *cs.PointsToSet) {
	for _, target := range h.varTransfers[v] {
		h.transferTaint(delta, target)
	}
}

// transferTaint re-mints the taint objects of pts under the target
// type and adds them to the target variable.
func (h *transferHandler) transferTaint(pts *cs.PointsToSet, target TransferTarget) {
	out := h.s.MakePointsToSet()
	pts.ForEach(func(o *cs.CSObj) {
		if !h.tm.IsTaint(o.Obj()) {
			return
		}
		t := h.tm.MakeTaint(h.tm.SourcePointOf(o.Obj()), target.Type)
		out.Add(h.csm.GetCSObj(h.csm.EmptyContext(), t))
	})
	if !out.IsEmpty() {
		h.s.AddPointsTo(target.To, out)
	}
}

// backPropagate scans the containing method once for statements that
// loaded the written variable out of a field, and injects synthetic
// stores that write the variable back through a copy of the base. The
// rewrite reduces taint flow through field aliasing to ordinary
// points-to propagation.
func (h *transferHandler) backPropagate(to *cs.CSVar) {
	if h.backPropped[to] {
		return
	}
	h.backPropped[to] = true

	m := to.Var().Method
	csM := h.csm.GetCSMethod(to.Context(), m)
	for _, stmt := range m.Body() {
		ld, ok := stmt.(*ir.LoadField)
		if !ok || ld.To != to.Var() || ld.Base == nil {
			continue
		}
		tmpBase := m.NewTempVar(ld.Base.Type)
		stmts := []ir.Stmt{
			&ir.Copy{To: tmpBase, From: ld.Base, Synthetic: true},
		}
		from := to.Var()
		if ld.Field.Type != from.Type {
			tmpFrom := m.NewTempVar(ld.Field.Type)
			stmts = append(stmts, &ir.Cast{To: tmpFrom, From: from, Type: ld.Field.Type, Synthetic: true})
			from = tmpFrom
		}
		stmts = append(stmts, &ir.StoreField{Base: tmpBase, Field: ld.Field, From: from, Synthetic: true})
		m.Bind(stmts...)
		h.s.AddStmts(csM, stmts)
	}
}
