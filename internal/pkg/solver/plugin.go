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

// Plugin observes solver events and may inject new facts through the
// solver's public mutators. Hooks run synchronously on the solver
// goroutine and must not block.
type Plugin interface {
	// OnNewPointsToSet fires after delta has been merged into v's
	// points-to set and before any later delta for v is processed.
	OnNewPointsToSet(v *cs.CSVar, delta *cs.PointsToSet)
	// OnNewCallEdge fires after the edge's parameter, return, and
	// this wiring is complete.
	OnNewCallEdge(e *callgraph.Edge)
	// OnNewMethod fires once per raw method on first reach.
	OnNewMethod(m *ir.Method)
	// OnNewCSMethod fires once per context-sensitive method.
	OnNewCSMethod(m *cs.CSMethod)
	// OnNewStmt fires once per statement and context-sensitive method
	// the solver expands, including injected statements; a method
	// reached in several contexts reports its statements once per
	// context.
	OnNewStmt(stmt ir.Stmt, container *cs.CSMethod)
	// OnFinish fires after the worklist drains.
	OnFinish()
}

// NopPlugin implements Plugin with no behavior; embed it to implement
// a subset of the hooks.
type NopPlugin struct{}

func (NopPlugin) OnNewPointsToSet(*cs.CSVar, *cs.PointsToSet) {}
func (NopPlugin) OnNewCallEdge(*callgraph.Edge)               {}
func (NopPlugin) OnNewMethod(*ir.Method)                      {}
func (NopPlugin) OnNewCSMethod(*cs.CSMethod)                  {}
func (NopPlugin) OnNewStmt(ir.Stmt, *cs.CSMethod)             {}
func (NopPlugin) OnFinish()                                   {}

// Composite fans events out to a list of plugins in order.
type Composite []Plugin

func (c Composite) OnNewPointsToSet(v *cs.CSVar, delta *cs.PointsToSet) {
	for _, p := range c {
		p.OnNewPointsToSet(v, delta)
	}
}

func (c Composite) OnNewCallEdge(e *callgraph.Edge) {
	for _, p := range c {
		p.OnNewCallEdge(e)
	}
}

func (c Composite) OnNewMethod(m *ir.Method) {
	for _, p := range c {
		p.OnNewMethod(m)
	}
}

func (c Composite) OnNewCSMethod(m *cs.CSMethod) {
	for _, p := range c {
		p.OnNewCSMethod(m)
	}
}

func (c Composite) OnNewStmt(stmt ir.Stmt, container *cs.CSMethod) {
	for _, p := range c {
		p.OnNewStmt(stmt, container)
	}
}

func (c Composite) OnFinish() {
	for _, p := range c {
		p.OnFinish()
	}
}
