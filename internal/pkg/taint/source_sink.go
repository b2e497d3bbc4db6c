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

// actualCSVar maps a rule index to the caller-side variable of a call
// site: the receiver, the result, or an argument. Returns nil when the
// designated position is absent (a discarded result in particular).
func actualCSVar(csm *cs.Manager, site *cs.CSCallSite, idx int) *cs.CSVar {
	invoke := site.Invoke()
	var v *ir.Var
	switch idx {
	case IndexBase:
		v = invoke.Base
	case IndexResult:
		v = invoke.Result
	default:
		if idx >= 0 && idx < len(invoke.Args) {
			v = invoke.Args[idx]
		}
	}
	if v == nil {
		return nil
	}
	return csm.GetCSVar(site.Context(), v)
}

// sourceHandler emits taint objects at configured sources.
type sourceHandler struct {
	s           *solver.Solver
	csm         *cs.Manager
	tm          *Manager
	callSources map[*ir.Method][]CallSource
	paramSrcs   map[*ir.Method][]ParamSource
}

func newSourceHandler(s *solver.Solver, tm *Manager, cfg *Config) *sourceHandler {
	h := &sourceHandler{
		s:           s,
		csm:         s.Manager(),
		tm:          tm,
		callSources: make(map[*ir.Method][]CallSource),
		paramSrcs:   make(map[*ir.Method][]ParamSource),
	}
	for _, r := range cfg.CallSources {
		h.callSources[r.Method] = append(h.callSources[r.Method], r)
	}
	for _, r := range cfg.ParamSources {
		h.paramSrcs[r.Method] = append(h.paramSrcs[r.Method], r)
	}
	return h
}

func (h *sourceHandler) onNewCallEdge(e *callgraph.Edge) {
	for _, rule := range h.callSources[e.Callee.Method()] {
		target := actualCSVar(h.csm, e.CallSite, rule.Index)
		if target == nil {
			continue
		}
		t := h.tm.MakeTaint(CallSourcePoint{Invoke: e.CallSite.Invoke(), Index: rule.Index}, rule.Type)
		pts := h.s.MakePointsToSet()
		pts.Add(h.csm.GetCSObj(h.csm.EmptyContext(), t))
		h.s.AddPointsTo(target, pts)
	}
}

func (h *sourceHandler) onNewCSMethod(csM *cs.CSMethod) {
	for _, rule := range h.paramSrcs[csM.Method()] {
		t := h.tm.MakeTaint(ParamSourcePoint{Method: csM.Method(), Index: rule.Index}, rule.Type)
		pts := h.s.MakePointsToSet()
		pts.Add(h.csm.GetCSObj(h.csm.EmptyContext(), t))
		h.s.AddPointsTo(h.csm.GetCSVar(csM.Context(), csM.Method().Param(rule.Index)), pts)
	}
}

// sinkHandler records sink positions and derives the witnessed flows.
type sinkHandler struct {
	csm   *cs.Manager
	tm    *Manager
	sinks map[*ir.Method][]Sink

	sites    []sinkSite
	siteSeen map[sinkSite]bool

	flows    []Flow
	flowSeen map[Flow]bool
}

type sinkSite struct {
	site  *cs.CSCallSite
	index int
}

func newSinkHandler(csm *cs.Manager, tm *Manager, cfg *Config) *sinkHandler {
	h := &sinkHandler{
		csm:      csm,
		tm:       tm,
		sinks:    make(map[*ir.Method][]Sink),
		siteSeen: make(map[sinkSite]bool),
		flowSeen: make(map[Flow]bool),
	}
	for _, r := range cfg.Sinks {
		h.sinks[r.Method] = append(h.sinks[r.Method], r)
	}
	return h
}

func (h *sinkHandler) onNewCallEdge(e *callgraph.Edge) {
	for _, rule := range h.sinks[e.Callee.Method()] {
		ss := sinkSite{site: e.CallSite, index: rule.Index}
		if h.siteSeen[ss] {
			continue
		}
		h.siteSeen[ss] = true
		h.sites = append(h.sites, ss)
		h.observe(ss)
	}
}

// observe records flows for taint objects currently at the sink
// position. Duplicates are suppressed; a final observation pass runs
// at quiescence so late-arriving objects are not missed.
func (h *sinkHandler) observe(ss sinkSite) {
	arg := actualCSVar(h.csm, ss.site, ss.index)
	if arg == nil {
		return
	}
	sp := SinkPoint{Invoke: ss.site.Invoke(), Index: ss.index}
	arg.PointsToSet().ForEach(func(o *cs.CSObj) {
		if !h.tm.IsTaint(o.Obj()) {
			return
		}
		f := Flow{Source: h.tm.SourcePointOf(o.Obj()), Sink: sp}
		if h.flowSeen[f] {
			return
		}
		h.flowSeen[f] = true
		h.flows = append(h.flows, f)
	})
}

func (h *sinkHandler) onFinish() {
	for _, ss := range h.sites {
		h.observe(ss)
	}
}
