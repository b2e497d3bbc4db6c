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
	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/ir"
	"github.com/jiachenhan/taie/internal/pkg/solver"
)

// FlowGraphEdge is one edge of the taint flow graph: either an object
// flow edge that carried taint, or a synthetic transfer edge.
type FlowGraphEdge struct {
	Src, Dst cs.Pointer
	// Kind is the object-flow kind; meaningless when IsTransfer.
	Kind       solver.EdgeKind
	IsTransfer bool
	// Type is the transfer's rewritten taint type; nil otherwise.
	Type *ir.Type
}

// FlowGraph is the pruned source-to-sink taint flow graph. It is
// immutable once built.
type FlowGraph struct {
	sources []cs.Pointer
	sinks   []cs.Pointer
	nodes   []cs.Pointer
	edges   []*FlowGraphEdge
	out     map[cs.Pointer][]*FlowGraphEdge
}

func (g *FlowGraph) Sources() []cs.Pointer        { return g.sources }
func (g *FlowGraph) Sinks() []cs.Pointer          { return g.sinks }
func (g *FlowGraph) Nodes() []cs.Pointer          { return g.nodes }
func (g *FlowGraph) Edges() []*FlowGraphEdge      { return g.edges }
func (g *FlowGraph) OutOf(p cs.Pointer) []*FlowGraphEdge {
	return g.out[p]
}

// flowGraphBuilder assembles the complete forward graph from the
// solver's object flow graph plus the recorded transfers, then prunes
// it to the sink-reachable portion.
type flowGraphBuilder struct {
	res          *solver.Result
	tm           *Manager
	varTransfers map[*cs.CSVar][]TransferTarget
	onlyApp      bool
}

// BuildFlowGraph constructs the taint flow graph after the solve.
func BuildFlowGraph(res *solver.Result, tm *Manager, varTransfers map[*cs.CSVar][]TransferTarget, flows []Flow, onlyApp bool) *FlowGraph {
	b := &flowGraphBuilder{res: res, tm: tm, varTransfers: varTransfers, onlyApp: onlyApp}

	sources := b.sourceNodes()
	sinks := b.sinkNodes(flows)

	// Complete forward graph from the sources.
	completeOut := make(map[cs.Pointer][]*FlowGraphEdge)
	visited := make(map[cs.Pointer]bool)
	var queue []cs.Pointer
	for _, n := range sources {
		if !visited[n] {
			visited[n] = true
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range b.outEdges(n) {
			completeOut[n] = append(completeOut[n], e)
			if !visited[e.Dst] {
				visited[e.Dst] = true
				queue = append(queue, e.Dst)
			}
		}
	}

	// Nodes that can reach a sink in the complete graph.
	reachesSink := reverseReach(completeOut, sinks)

	// Second pass from the sources, keeping edges with target in the
	// sink-reaching set.
	g := &FlowGraph{out: make(map[cs.Pointer][]*FlowGraphEdge)}
	kept := make(map[cs.Pointer]bool)
	queue = queue[:0]
	for _, n := range sources {
		if reachesSink[n] && !kept[n] {
			kept[n] = true
			queue = append(queue, n)
			g.sources = append(g.sources, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range completeOut[n] {
			if !reachesSink[e.Dst] {
				continue
			}
			g.out[n] = append(g.out[n], e)
			g.edges = append(g.edges, e)
			if !kept[e.Dst] {
				kept[e.Dst] = true
				queue = append(queue, e.Dst)
			}
		}
	}
	for n := range kept {
		g.nodes = append(g.nodes, n)
	}
	sinkSet := make(map[cs.Pointer]bool)
	for _, n := range sinks {
		if kept[n] && !sinkSet[n] {
			sinkSet[n] = true
			g.sinks = append(g.sinks, n)
		}
	}
	return g
}

// sourceNodes returns the variable nodes of the source variable of
// every taint object.
func (b *flowGraphBuilder) sourceNodes() []cs.Pointer {
	csm := b.res.CSManager()
	var nodes []cs.Pointer
	seen := make(map[cs.Pointer]bool)
	for _, t := range b.tm.TaintObjs() {
		var v *ir.Var
		switch sp := b.tm.SourcePointOf(t).(type) {
		case CallSourcePoint:
			v = varAtIndex(sp.Invoke, sp.Index)
		case ParamSourcePoint:
			v = sp.Method.Param(sp.Index)
		}
		if v == nil {
			continue
		}
		for _, cv := range csm.CSVarsOf(v) {
			if !seen[cv] {
				seen[cv] = true
				nodes = append(nodes, cv)
			}
		}
	}
	return nodes
}

// sinkNodes returns the variable nodes of the indexed actual of every
// witnessed flow's sink call.
func (b *flowGraphBuilder) sinkNodes(flows []Flow) []cs.Pointer {
	csm := b.res.CSManager()
	var nodes []cs.Pointer
	seen := make(map[cs.Pointer]bool)
	for _, f := range flows {
		v := varAtIndex(f.Sink.Invoke, f.Sink.Index)
		if v == nil {
			continue
		}
		for _, cv := range csm.CSVarsOf(v) {
			if !seen[cv] {
				seen[cv] = true
				nodes = append(nodes, cv)
			}
		}
	}
	return nodes
}

func varAtIndex(invoke *ir.Invoke, idx int) *ir.Var {
	switch idx {
	case IndexBase:
		return invoke.Base
	case IndexResult:
		return invoke.Result
	default:
		if idx >= 0 && idx < len(invoke.Args) {
			return invoke.Args[idx]
		}
	}
	return nil
}

// outEdges collects a node's kept out-edges: unconditional object-flow
// edges always, conditional ones only when taint actually reached the
// target, plus the node's registered transfers. Under onlyApp, edges
// into non-application code are dropped.
func (b *flowGraphBuilder) outEdges(n cs.Pointer) []*FlowGraphEdge {
	var edges []*FlowGraphEdge
	for _, e := range b.res.ObjectFlowGraph().OutOf(n) {
		if e.Kind.Conditional() && !b.containsTaint(e.Dst) {
			continue
		}
		if b.onlyApp && !isApplicationNode(e.Dst) {
			continue
		}
		edges = append(edges, &FlowGraphEdge{Src: e.Src, Dst: e.Dst, Kind: e.Kind})
	}
	if cv, ok := n.(*cs.CSVar); ok {
		for _, t := range b.varTransfers[cv] {
			if b.onlyApp && !isApplicationNode(t.To) {
				continue
			}
			edges = append(edges, &FlowGraphEdge{Src: n, Dst: t.To, IsTransfer: true, Type: t.Type})
		}
	}
	return edges
}

func (b *flowGraphBuilder) containsTaint(p cs.Pointer) bool {
	return p.PointsToSet().Any(func(o *cs.CSObj) bool {
		return b.tm.IsTaint(o.Obj())
	})
}

// isApplicationNode reports whether a node belongs to application
// code: variables by their method's class, object slots by the class
// of the method containing the allocation, static fields by their
// declaring class.
func isApplicationNode(p cs.Pointer) bool {
	switch n := p.(type) {
	case *cs.CSVar:
		return n.Var().Method.Class.IsApplication
	case *cs.InstanceField:
		return objInApplication(n.Base())
	case *cs.ArrayIndex:
		return objInApplication(n.Array())
	case *cs.StaticField:
		return n.Field().Class.IsApplication
	}
	return false
}

func objInApplication(o *cs.CSObj) bool {
	m := o.Obj().ContainerMethod()
	return m != nil && m.Class.IsApplication
}

// reverseReach returns the nodes that can reach one of the given
// targets in the edge map.
func reverseReach(out map[cs.Pointer][]*FlowGraphEdge, targets []cs.Pointer) map[cs.Pointer]bool {
	rev := make(map[cs.Pointer][]cs.Pointer)
	for src, edges := range out {
		for _, e := range edges {
			rev[e.Dst] = append(rev[e.Dst], src)
		}
	}
	reached := make(map[cs.Pointer]bool)
	var queue []cs.Pointer
	for _, t := range targets {
		if !reached[t] {
			reached[t] = true
			queue = append(queue, t)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, p := range rev[n] {
			if !reached[p] {
				reached[p] = true
				queue = append(queue, p)
			}
		}
	}
	return reached
}
