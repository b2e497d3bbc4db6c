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

package solver

import (
	"github.com/jiachenhan/taie/internal/pkg/callgraph"
	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/ir"
)

// Result is the pointer analysis result surface exposed downstream.
type Result struct {
	csm     *cs.Manager
	cg      *callgraph.Graph
	ofg     *OFG
	unsound []*ir.Invoke
}

// CSManager returns the element manager, for context-sensitive
// queries.
func (r *Result) CSManager() *cs.Manager { return r.csm }

// CallGraph returns the call graph.
func (r *Result) CallGraph() *callgraph.Graph { return r.cg }

// ObjectFlowGraph returns the object flow graph.
func (r *Result) ObjectFlowGraph() *OFG { return r.ofg }

// UnsoundCalls returns the call sites recorded as unsoundly resolved.
func (r *Result) UnsoundCalls() []*ir.Invoke {
	return append([]*ir.Invoke(nil), r.unsound...)
}

// GetPointsToSet returns the context-insensitive points-to set of a
// variable: the union over all of its contexts.
func (r *Result) GetPointsToSet(v *ir.Var) []*cs.CSObj {
	out := r.csm.NewPointsToSet()
	for _, cv := range r.csm.CSVarsOf(v) {
		out.AddAll(cv.PointsToSet())
	}
	return out.Objects()
}

// GetFieldPointsToSet returns the union of base.field points-to sets
// over every object the base variable may point to, in any context.
func (r *Result) GetFieldPointsToSet(base *ir.Var, field *ir.Field) []*cs.CSObj {
	out := r.csm.NewPointsToSet()
	for _, cv := range r.csm.CSVarsOf(base) {
		cv.PointsToSet().ForEach(func(o *cs.CSObj) {
			out.AddAll(r.csm.GetInstanceField(o, field).PointsToSet())
		})
	}
	return out.Objects()
}
