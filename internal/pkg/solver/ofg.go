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
	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/ir"
)

// EdgeKind classifies object-flow edges by the statement that created
// them.
type EdgeKind int

const (
	LocalAssign EdgeKind = iota
	CastEdge
	InstanceLoad
	InstanceStore
	ArrayLoad
	ArrayStore
	StaticLoad
	StaticStore
	ReturnEdge
	ThisPassing
	ParameterPassing
)

func (k EdgeKind) String() string {
	switch k {
	case LocalAssign:
		return "LOCAL_ASSIGN"
	case CastEdge:
		return "CAST"
	case InstanceLoad:
		return "INSTANCE_LOAD"
	case InstanceStore:
		return "INSTANCE_STORE"
	case ArrayLoad:
		return "ARRAY_LOAD"
	case ArrayStore:
		return "ARRAY_STORE"
	case StaticLoad:
		return "STATIC_LOAD"
	case StaticStore:
		return "STATIC_STORE"
	case ReturnEdge:
		return "RETURN"
	case ThisPassing:
		return "THIS_PASSING"
	case ParameterPassing:
		return "PARAMETER_PASSING"
	}
	return "UNKNOWN"
}

// Conditional reports whether a taint-flow walk over this edge kind
// must check that taint actually passed to the target. Casts, instance
// and array loads, and returns are conditional; assignments, stores,
// static loads, and this and parameter passing are not.
func (k EdgeKind) Conditional() bool {
	switch k {
	case CastEdge, InstanceLoad, ArrayLoad, ReturnEdge:
		return true
	}
	return false
}

// Edge is a directed object-flow edge between two pointers. Cast edges
// carry a filter type: objects incompatible with it do not flow.
type Edge struct {
	Kind     EdgeKind
	Src, Dst cs.Pointer
	Filter   *ir.Type // non-nil only on cast edges
}

type edgeKey struct {
	src, dst cs.Pointer
	kind     EdgeKind
}

// OFG is the object flow graph the solver builds on the fly. It is the
// pointer flow graph during the solve and the result graph afterwards.
type OFG struct {
	out  map[cs.Pointer][]*Edge
	in   map[cs.Pointer][]*Edge
	seen map[edgeKey]bool
}

func NewOFG() *OFG {
	return &OFG{
		out:  make(map[cs.Pointer][]*Edge),
		in:   make(map[cs.Pointer][]*Edge),
		seen: make(map[edgeKey]bool),
	}
}

// AddEdge inserts an edge, reporting whether it was new.
func (g *OFG) AddEdge(e *Edge) bool {
	k := edgeKey{src: e.Src, dst: e.Dst, kind: e.Kind}
	if g.seen[k] {
		return false
	}
	g.seen[k] = true
	g.out[e.Src] = append(g.out[e.Src], e)
	g.in[e.Dst] = append(g.in[e.Dst], e)
	return true
}

// OutOf returns the edges leaving p.
func (g *OFG) OutOf(p cs.Pointer) []*Edge { return g.out[p] }

// InTo returns the edges entering p.
func (g *OFG) InTo(p cs.Pointer) []*Edge { return g.in[p] }

// NumEdges returns the edge count.
func (g *OFG) NumEdges() int { return len(g.seen) }

// Nodes returns every pointer that appears as an edge endpoint.
func (g *OFG) Nodes() []cs.Pointer {
	set := make(map[cs.Pointer]bool, len(g.out)+len(g.in))
	var nodes []cs.Pointer
	add := func(p cs.Pointer) {
		if !set[p] {
			set[p] = true
			nodes = append(nodes, p)
		}
	}
	for p := range g.out {
		add(p)
	}
	for p := range g.in {
		add(p)
	}
	return nodes
}
