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

// Package callgraph holds the context-sensitive call graph the solver
// builds incrementally as virtual dispatch resolves.
package callgraph

import (
	"github.com/jiachenhan/taie/internal/pkg/cs"
)

// Kind labels call graph and interprocedural edges.
type Kind int

const (
	// KindLocal marks statically bound calls (static and special
	// invokes).
	KindLocal Kind = iota
	// KindCall marks calls resolved by virtual dispatch.
	KindCall
	// KindReturn marks return flow; used by downstream consumers of
	// interprocedural edges.
	KindReturn
	// KindOther marks edges of dynamic invokes.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindLocal:
		return "LOCAL"
	case KindCall:
		return "CALL"
	case KindReturn:
		return "RETURN"
	case KindOther:
		return "OTHER"
	}
	return "UNKNOWN"
}

// Edge connects a context-sensitive call site to a resolved callee.
type Edge struct {
	Kind     Kind
	CallSite *cs.CSCallSite
	Callee   *cs.CSMethod
}

// Graph is the context-sensitive call graph.
type Graph struct {
	entries   []*cs.CSMethod
	reachable map[*cs.CSMethod]bool
	order     []*cs.CSMethod

	edges     []*Edge
	outEdges  map[*cs.CSCallSite][]*Edge
	inEdges   map[*cs.CSMethod][]*Edge
	edgeIndex map[*cs.CSCallSite]map[*cs.CSMethod]bool
}

func NewGraph() *Graph {
	return &Graph{
		reachable: make(map[*cs.CSMethod]bool),
		outEdges:  make(map[*cs.CSCallSite][]*Edge),
		inEdges:   make(map[*cs.CSMethod][]*Edge),
		edgeIndex: make(map[*cs.CSCallSite]map[*cs.CSMethod]bool),
	}
}

// AddEntry registers an entry method.
func (g *Graph) AddEntry(m *cs.CSMethod) {
	g.entries = append(g.entries, m)
}

// Entries returns the entry methods.
func (g *Graph) Entries() []*cs.CSMethod { return g.entries }

// AddReachable marks m reachable, reporting whether it was new.
func (g *Graph) AddReachable(m *cs.CSMethod) bool {
	if g.reachable[m] {
		return false
	}
	g.reachable[m] = true
	g.order = append(g.order, m)
	return true
}

// IsReachable reports whether m has been reached.
func (g *Graph) IsReachable(m *cs.CSMethod) bool { return g.reachable[m] }

// ReachableMethods returns reached methods in discovery order.
func (g *Graph) ReachableMethods() []*cs.CSMethod {
	return append([]*cs.CSMethod(nil), g.order...)
}

// AddEdge inserts an edge, reporting whether it was new. Duplicate
// (call site, callee) pairs are suppressed regardless of kind.
func (g *Graph) AddEdge(e *Edge) bool {
	callees, ok := g.edgeIndex[e.CallSite]
	if !ok {
		callees = make(map[*cs.CSMethod]bool)
		g.edgeIndex[e.CallSite] = callees
	}
	if callees[e.Callee] {
		return false
	}
	callees[e.Callee] = true
	g.edges = append(g.edges, e)
	g.outEdges[e.CallSite] = append(g.outEdges[e.CallSite], e)
	g.inEdges[e.Callee] = append(g.inEdges[e.Callee], e)
	return true
}

// Edges returns every edge in insertion order.
func (g *Graph) Edges() []*Edge {
	return append([]*Edge(nil), g.edges...)
}

// CalleesOf returns the edges leaving a call site.
func (g *Graph) CalleesOf(s *cs.CSCallSite) []*Edge {
	return g.outEdges[s]
}

// CallersOf returns the edges entering a method.
func (g *Graph) CallersOf(m *cs.CSMethod) []*Edge {
	return g.inEdges[m]
}
