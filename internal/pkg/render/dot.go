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

// Package render produces DOT source for the taint flow graph.
package render

import (
	"fmt"
	"strings"

	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/taint"
)

// DOT renders a taint flow graph as DOT source.
func DOT(g *taint.FlowGraph) string {
	return (&renderer{g: g}).render()
}

type renderer struct {
	strings.Builder
	g *taint.FlowGraph
}

func (r *renderer) render() string {
	r.init()
	r.writeNodes()
	r.writeEdges()
	r.finish()
	return r.String()
}

func (r *renderer) init() {
	_, _ = r.WriteString("digraph tfg {\n")
}

func (r *renderer) writeNodes() {
	sources := pointerSet(r.g.Sources())
	sinks := pointerSet(r.g.Sinks())
	for _, n := range r.g.Nodes() {
		_, _ = r.WriteString(fmt.Sprintf("\t%q [shape=%s];\n", n.String(), nodeShape(n, sources, sinks)))
	}
}

func (r *renderer) writeEdges() {
	for _, e := range r.g.Edges() {
		label := e.Kind.String()
		color := "black"
		if e.IsTransfer {
			label = "TRANSFER:" + e.Type.Name
			color = "red"
		}
		_, _ = r.WriteString(fmt.Sprintf("\t%q -> %q [label=%q,color=%s];\n",
			e.Src.String(), e.Dst.String(), label, color))
	}
}

func (r *renderer) finish() {
	_, _ = r.WriteString("}\n")
}

func pointerSet(ps []cs.Pointer) map[cs.Pointer]bool {
	set := make(map[cs.Pointer]bool, len(ps))
	for _, p := range ps {
		set[p] = true
	}
	return set
}

func nodeShape(n cs.Pointer, sources, sinks map[cs.Pointer]bool) string {
	switch {
	case sources[n]:
		return "doublecircle"
	case sinks[n]:
		return "box"
	default:
		return "ellipse"
	}
}
