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

package taie_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/ir"
	"github.com/jiachenhan/taie/internal/pkg/reflection"
	"github.com/jiachenhan/taie/internal/pkg/taint"
	"github.com/jiachenhan/taie/pkg/taie"
)

// world assembles the little class library the scenarios share: a
// source producing V values, a sink consuming them, and a main method
// to fill with statements.
type world struct {
	h              *ir.Hierarchy
	object, tClass *ir.Class
	vClass, wClass *ir.Class
	source, sink   *ir.Method
	main           *ir.Method
}

func newWorld() *world {
	h := ir.NewHierarchy()
	object := h.NewClass("java.lang.Object", nil, false)
	tc := h.NewClass("T", object, true)
	vc := h.NewClass("V", object, true)
	wc := h.NewClass("W", object, true)
	return &world{
		h:      h,
		object: object,
		tClass: tc,
		vClass: vc,
		wClass: wc,
		source: tc.NewStaticMethod("source", vc.Type),
		sink:   tc.NewStaticMethod("sink", nil, vc.Type),
		main:   tc.NewStaticMethod("main", nil),
	}
}

// sourceCall builds "to = source()".
func (w *world) sourceCall(to *ir.Var) *ir.Invoke {
	return &ir.Invoke{Result: to, Ref: w.tClass.Ref("source", w.vClass.Type), Kind: ir.InvokeStatic}
}

// sinkCall builds "sink(arg)".
func (w *world) sinkCall(arg *ir.Var) *ir.Invoke {
	return &ir.Invoke{Ref: w.tClass.Ref("sink", nil, w.vClass.Type), Args: []*ir.Var{arg}, Kind: ir.InvokeStatic}
}

func (w *world) run(cfg *taint.Config, opts ...func(*taie.Options)) *taie.Result {
	GinkgoHelper()
	o := taie.Options{Config: cfg}
	for _, f := range opts {
		f(&o)
	}
	res, err := taie.Run(context.Background(), &ir.Program{Hierarchy: w.h, Entries: []*ir.Method{w.main}}, o)
	Expect(err).NotTo(HaveOccurred())
	return res
}

func (w *world) baseConfig() *taint.Config {
	return &taint.Config{
		CallSources: []taint.CallSource{{Method: w.source, Index: taint.IndexResult, Type: w.vClass.Type}},
		Sinks:       []taint.Sink{{Method: w.sink, Index: 0}},
	}
}

var _ = Describe("Taint analysis", func() {
	Describe("direct flow", func() {
		It("witnesses exactly one flow from the source call to the sink argument", func() {
			w := newWorld()
			a := w.main.NewVar("a", w.vClass.Type)
			srcCall := w.sourceCall(a)
			snkCall := w.sinkCall(a)
			w.main.Append(srcCall, snkCall)

			cfg, err := taint.ParseConfig([]byte(`
sources:
  - kind: call
    method: "<T: V source()>"
    index: "result"
    type: "V"
sinks:
  - method: "<T: void sink(V)>"
    index: "0"
`), w.h)
			Expect(err).NotTo(HaveOccurred())

			res := w.run(cfg)
			Expect(res.Flows).To(HaveLen(1))
			Expect(res.Flows[0].Source).To(Equal(taint.SourcePoint(taint.CallSourcePoint{Invoke: srcCall, Index: taint.IndexResult})))
			Expect(res.Flows[0].Sink).To(Equal(taint.SinkPoint{Invoke: snkCall, Index: 0}))
		})
	})

	Describe("transfer through a wrapper", func() {
		It("re-types the taint while preserving its source point", func() {
			w := newWorld()
			wrap := w.tClass.NewStaticMethod("wrap", w.wClass.Type, w.vClass.Type)
			sinkW := w.tClass.NewStaticMethod("sinkW", nil, w.wClass.Type)

			s := w.main.NewVar("s", w.vClass.Type)
			wrapped := w.main.NewVar("w", w.wClass.Type)
			srcCall := w.sourceCall(s)
			w.main.Append(
				srcCall,
				&ir.Invoke{Result: wrapped, Ref: w.tClass.Ref("wrap", w.wClass.Type, w.vClass.Type), Args: []*ir.Var{s}, Kind: ir.InvokeStatic},
				&ir.Invoke{Ref: w.tClass.Ref("sinkW", nil, w.wClass.Type), Args: []*ir.Var{wrapped}, Kind: ir.InvokeStatic},
			)

			cfg := &taint.Config{
				CallSources: []taint.CallSource{{Method: w.source, Index: taint.IndexResult, Type: w.vClass.Type}},
				Transfers:   []taint.Transfer{{Method: wrap, From: 0, To: taint.IndexResult, Type: w.wClass.Type}},
				Sinks:       []taint.Sink{{Method: sinkW, Index: 0}},
			}
			res := w.run(cfg)
			Expect(res.Flows).To(HaveLen(1))
			Expect(res.Flows[0].Source).To(Equal(taint.SourcePoint(taint.CallSourcePoint{Invoke: srcCall, Index: taint.IndexResult})))

			// The taint at the sink argument carries the rewritten type.
			taintTypes := map[string]bool{}
			for _, o := range res.Pointer.GetPointsToSet(wrapped) {
				if taint.IsTaintObj(o.Obj()) {
					taintTypes[o.Obj().Type().Name] = true
				}
			}
			Expect(taintTypes).To(Equal(map[string]bool{"W": true}))
		})
	})

	Describe("sanitizer", func() {
		It("cuts the flow when the value passes through the sanitized formal", func() {
			w := newWorld()
			sanitize := w.tClass.NewStaticMethod("sanitize", w.vClass.Type, w.vClass.Type)
			sanitize.Append(&ir.Return{Var: sanitize.Param(0)})

			s := w.main.NewVar("s", w.vClass.Type)
			clean := w.main.NewVar("t", w.vClass.Type)
			w.main.Append(
				w.sourceCall(s),
				&ir.Invoke{Result: clean, Ref: w.tClass.Ref("sanitize", w.vClass.Type, w.vClass.Type), Args: []*ir.Var{s}, Kind: ir.InvokeStatic},
				w.sinkCall(clean),
			)

			cfg := w.baseConfig()
			cfg.Sanitizers = []taint.Sanitizer{{Method: sanitize, Index: 0}}
			res := w.run(cfg)
			Expect(res.Flows).To(BeEmpty())

			// No taint is observable on the sanitized formal in any context.
			for _, cv := range res.Pointer.CSManager().CSVarsOf(sanitize.Param(0)) {
				cv.PointsToSet().ForEach(func(o *cs.CSObj) {
					Expect(taint.IsTaintObj(o.Obj())).To(BeFalse())
				})
			}
		})

		It("does not claim path sensitivity for a bypassing edge", func() {
			w := newWorld()
			sanitize := w.tClass.NewStaticMethod("sanitize", nil, w.vClass.Type)

			s := w.main.NewVar("s", w.vClass.Type)
			w.main.Append(
				w.sourceCall(s),
				&ir.Invoke{Ref: w.tClass.Ref("sanitize", nil, w.vClass.Type), Args: []*ir.Var{s}, Kind: ir.InvokeStatic},
				w.sinkCall(s),
			)

			cfg := w.baseConfig()
			cfg.Sanitizers = []taint.Sanitizer{{Method: sanitize, Index: 0}}
			res := w.run(cfg)
			Expect(res.Flows).To(HaveLen(1))
		})
	})

	Describe("back-propagation through a field", func() {
		buildProgram := func() (*world, *ir.Method, *ir.Method) {
			w := newWorld()
			cClass := w.h.NewClass("C", w.object, true)
			holder := w.h.NewClass("H", w.object, true)
			f := holder.NewField("f", cClass.Type)
			appendM := w.tClass.NewStaticMethod("append", nil, cClass.Type, w.vClass.Type)
			sinkC := w.tClass.NewStaticMethod("sinkC", nil, cClass.Type)

			hv := w.main.NewVar("h", holder.Type)
			cv := w.main.NewVar("c", cClass.Type)
			c2 := w.main.NewVar("c2", cClass.Type)
			s := w.main.NewVar("s", w.vClass.Type)
			y := w.main.NewVar("y", cClass.Type)
			w.main.Append(
				&ir.New{To: hv, Type: holder.Type},
				&ir.New{To: cv, Type: cClass.Type},
				&ir.StoreField{Base: hv, Field: f, From: cv},
				w.sourceCall(s),
				&ir.LoadField{To: c2, Base: hv, Field: f},
				&ir.Invoke{Ref: w.tClass.Ref("append", nil, cClass.Type, w.vClass.Type), Args: []*ir.Var{c2, s}, Kind: ir.InvokeStatic},
				&ir.LoadField{To: y, Base: hv, Field: f},
				&ir.Invoke{Ref: w.tClass.Ref("sinkC", nil, cClass.Type), Args: []*ir.Var{y}, Kind: ir.InvokeStatic},
			)
			return w, appendM, sinkC
		}

		It("reports the flow when the transfer mutates the aliased base", func() {
			w, appendM, sinkC := buildProgram()
			cClass, _ := w.h.ClassByName("C")
			cfg := &taint.Config{
				CallSources: []taint.CallSource{{Method: w.source, Index: taint.IndexResult, Type: w.vClass.Type}},
				Transfers:   []taint.Transfer{{Method: appendM, From: 1, To: 0, Type: cClass.Type}},
				Sinks:       []taint.Sink{{Method: sinkC, Index: 0}},
			}
			res := w.run(cfg)
			Expect(res.Flows).To(HaveLen(1))
		})

		It("reports nothing without the transfer rule", func() {
			w, _, sinkC := buildProgram()
			cfg := &taint.Config{
				CallSources: []taint.CallSource{{Method: w.source, Index: taint.IndexResult, Type: w.vClass.Type}},
				Sinks:       []taint.Sink{{Method: sinkC, Index: 0}},
			}
			res := w.run(cfg)
			Expect(res.Flows).To(BeEmpty())
		})
	})

	Describe("reflection", func() {
		buildReflection := func(w *world) (*ir.Class, *ir.Class) {
			cls := w.h.NewClass("java.lang.Class", w.object, false)
			str := w.h.NewClass("java.lang.String", w.object, false)
			cls.NewStaticMethod("forName", cls.Type, str.Type)
			cls.NewMethod("newInstance", w.object.Type)
			return cls, str
		}

		It("yields one unknown object for a non-constant class name and records the site", func() {
			w := newWorld()
			cls, str := buildReflection(w)

			x := w.main.NewVar("x", str.Type)
			c := w.main.NewVar("cls", cls.Type)
			o := w.main.NewVar("o", w.object.Type)
			forNameCall := &ir.Invoke{Result: c, Ref: cls.Ref("forName", cls.Type, str.Type), Args: []*ir.Var{x}, Kind: ir.InvokeStatic}
			newInstCall := &ir.Invoke{Result: o, Base: c, Ref: cls.Ref("newInstance", w.object.Type), Kind: ir.InvokeVirtual}
			w.main.Append(
				&ir.New{To: x, Type: str.Type},
				forNameCall,
				newInstCall,
			)

			res := w.run(&taint.Config{})
			objs := res.Pointer.GetPointsToSet(o)
			Expect(objs).To(HaveLen(1))
			Expect(reflection.IsUnknownObj(objs[0].Obj())).To(BeTrue())
			Expect(res.Unsound).To(ContainElement(forNameCall))
			Expect(res.Flows).To(BeEmpty())
		})

		It("instantiates the named class for a constant class name", func() {
			w := newWorld()
			cls, str := buildReflection(w)

			x := w.main.NewVar("x", str.Type)
			c := w.main.NewVar("cls", cls.Type)
			o := w.main.NewVar("o", w.object.Type)
			w.main.Append(
				&ir.AssignLiteral{To: x, Type: str.Type, Value: "V"},
				&ir.Invoke{Result: c, Ref: cls.Ref("forName", cls.Type, str.Type), Args: []*ir.Var{x}, Kind: ir.InvokeStatic},
				&ir.Invoke{Result: o, Base: c, Ref: cls.Ref("newInstance", w.object.Type), Kind: ir.InvokeVirtual},
			)

			res := w.run(&taint.Config{})
			objs := res.Pointer.GetPointsToSet(o)
			Expect(objs).To(HaveLen(1))
			Expect(objs[0].Obj().Type().Name).To(Equal("V"))
		})
	})

	Describe("taint flow graph", func() {
		It("prunes flows that never reach a sink and keeps the rest sink-reachable", func() {
			w := newWorld()
			source2 := w.tClass.NewStaticMethod("source2", w.vClass.Type)
			dead := w.tClass.NewStaticField("dead", w.vClass.Type)

			s1 := w.main.NewVar("s1", w.vClass.Type)
			s2 := w.main.NewVar("s2", w.vClass.Type)
			w.main.Append(
				w.sourceCall(s1),
				&ir.Invoke{Result: s2, Ref: w.tClass.Ref("source2", w.vClass.Type), Kind: ir.InvokeStatic},
				w.sinkCall(s1),
				&ir.StoreField{Field: dead, From: s2},
			)

			cfg := w.baseConfig()
			cfg.CallSources = append(cfg.CallSources, taint.CallSource{Method: source2, Index: taint.IndexResult, Type: w.vClass.Type})
			res := w.run(cfg)
			Expect(res.Flows).To(HaveLen(1))

			g := res.Graph
			csm := res.Pointer.CSManager()
			s1Nodes := csm.CSVarsOf(s1)
			s2Nodes := csm.CSVarsOf(s2)
			Expect(s1Nodes).NotTo(BeEmpty())

			sourceSet := map[cs.Pointer]bool{}
			for _, n := range g.Sources() {
				sourceSet[n] = true
			}
			Expect(sourceSet[s1Nodes[0]]).To(BeTrue(), "the live source must stay")
			for _, n := range s2Nodes {
				Expect(sourceSet[n]).To(BeFalse(), "the dead source must be pruned")
			}

			// Every retained node reaches a sink.
			sinks := map[cs.Pointer]bool{}
			for _, n := range g.Sinks() {
				sinks[n] = true
			}
			for _, n := range g.Nodes() {
				Expect(reachesAny(g, n, sinks)).To(BeTrue(), "node %v cannot reach a sink", n)
			}

			// Every edge is backed by an object-flow edge or a transfer.
			ofg := res.Pointer.ObjectFlowGraph()
			for _, e := range g.Edges() {
				if e.IsTransfer {
					continue
				}
				backed := false
				for _, oe := range ofg.OutOf(e.Src) {
					if oe.Dst == e.Dst && oe.Kind == e.Kind {
						backed = true
						break
					}
				}
				Expect(backed).To(BeTrue(), "edge %v -> %v has no backing", e.Src, e.Dst)
			}

			// Every witnessed sink appears as a sink node.
			Expect(g.Sinks()).NotTo(BeEmpty())
		})

		It("drops edges into non-application code under onlyApp", func() {
			build := func() (*world, *taint.Config) {
				w := newWorld()
				lib := w.h.NewClass("Lib", w.object, false)
				pass := lib.NewStaticMethod("pass", w.vClass.Type, w.vClass.Type)
				pass.Append(&ir.Return{Var: pass.Param(0)})

				s := w.main.NewVar("s", w.vClass.Type)
				r := w.main.NewVar("r", w.vClass.Type)
				w.main.Append(
					w.sourceCall(s),
					&ir.Invoke{Result: r, Ref: lib.Ref("pass", w.vClass.Type, w.vClass.Type), Args: []*ir.Var{s}, Kind: ir.InvokeStatic},
					w.sinkCall(r),
				)
				return w, w.baseConfig()
			}

			inLib := func(g *taint.FlowGraph) bool {
				for _, n := range g.Nodes() {
					if cv, ok := n.(*cs.CSVar); ok && cv.Var().Method.Class.Name == "Lib" {
						return true
					}
				}
				return false
			}

			w, cfg := build()
			full := w.run(cfg)
			Expect(full.Flows).To(HaveLen(1))
			Expect(inLib(full.Graph)).To(BeTrue(), "without onlyApp the library formal is part of the path")

			w, cfg = build()
			app := w.run(cfg, func(o *taie.Options) { o.OnlyApp = true })
			Expect(app.Flows).To(HaveLen(1), "onlyApp prunes the graph, not the flows")
			Expect(inLib(app.Graph)).To(BeFalse())
		})
	})
})

func reachesAny(g *taint.FlowGraph, from cs.Pointer, targets map[cs.Pointer]bool) bool {
	if targets[from] {
		return true
	}
	seen := map[cs.Pointer]bool{from: true}
	queue := []cs.Pointer{from}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, e := range g.OutOf(n) {
			if targets[e.Dst] {
				return true
			}
			if !seen[e.Dst] {
				seen[e.Dst] = true
				queue = append(queue, e.Dst)
			}
		}
	}
	return false
}
