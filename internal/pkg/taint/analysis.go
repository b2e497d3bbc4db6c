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

// Analysis is the taint plugin. It dispatches solver events to the
// source, sink, transfer, and sanitizer handlers, whose rule tables
// are built once at construction and keyed by callee method.
type Analysis struct {
	tm         *Manager
	sources    *sourceHandler
	sinks      *sinkHandler
	transfers  *transferHandler
	sanitizers *sanitizerHandler
}

var _ solver.Plugin = (*Analysis)(nil)

// NewAnalysis builds the taint plugin for a solver and rule set.
// Install it with the solver's SetPlugin before solving.
func NewAnalysis(s *solver.Solver, tm *Manager, cfg *Config) *Analysis {
	return &Analysis{
		tm:         tm,
		sources:    newSourceHandler(s, tm, cfg),
		sinks:      newSinkHandler(s.Manager(), tm, cfg),
		transfers:  newTransferHandler(s, tm, cfg),
		sanitizers: newSanitizerHandler(s, tm, cfg),
	}
}

// TaintManager returns the taint object manager.
func (a *Analysis) TaintManager() *Manager { return a.tm }

// Flows returns the witnessed taint flows. Complete after the solve
// finishes.
func (a *Analysis) Flows() []Flow {
	return append([]Flow(nil), a.sinks.flows...)
}

// VarTransfers returns the variable-level transfer index recorded
// during the solve, for the flow graph builder.
func (a *Analysis) VarTransfers() map[*cs.CSVar][]TransferTarget {
	return a.transfers.varTransfers
}

func (a *Analysis) OnNewPointsToSet(v *cs.CSVar, delta *cs.PointsToSet) {
	a.transfers.onNewPointsTo(v, delta)
}

func (a *Analysis) OnNewCallEdge(e *callgraph.Edge) {
	a.sources.onNewCallEdge(e)
	a.transfers.onNewCallEdge(e)
	a.sinks.onNewCallEdge(e)
}

func (a *Analysis) OnNewMethod(m *ir.Method) {}

func (a *Analysis) OnNewCSMethod(csM *cs.CSMethod) {
	a.sanitizers.onNewCSMethod(csM)
	a.sources.onNewCSMethod(csM)
}

func (a *Analysis) OnNewStmt(stmt ir.Stmt, container *cs.CSMethod) {}

func (a *Analysis) OnFinish() {
	a.sinks.onFinish()
}
