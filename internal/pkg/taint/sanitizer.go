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

// sanitizerHandler keeps taint objects off sanitized formals. It is
// implemented as a rewrite filter on the formal's pointer: every
// addition to the sanitized parameter, including ones induced by
// transfers and back-propagation, passes through the filter.
type sanitizerHandler struct {
	s     *solver.Solver
	csm   *cs.Manager
	tm    *Manager
	rules map[*ir.Method][]Sanitizer

	installed map[*cs.CSVar]bool
}

func newSanitizerHandler(s *solver.Solver, tm *Manager, cfg *Config) *sanitizerHandler {
	h := &sanitizerHandler{
		s:         s,
		csm:       s.Manager(),
		tm:        tm,
		rules:     make(map[*ir.Method][]Sanitizer),
		installed: make(map[*cs.CSVar]bool),
	}
	for _, r := range cfg.Sanitizers {
		h.rules[r.Method] = append(h.rules[r.Method], r)
	}
	return h
}

// onNewCSMethod installs the filter the moment a sanitized method
// becomes reachable in a context, before any argument propagation into
// that context is processed.
func (h *sanitizerHandler) onNewCSMethod(csM *cs.CSMethod) {
	for _, rule := range h.rules[csM.Method()] {
		formal := h.csm.GetCSVar(csM.Context(), csM.Method().Param(rule.Index))
		if h.installed[formal] {
			continue
		}
		h.installed[formal] = true
		h.s.AddPointerFilter(formal, func(o *cs.CSObj) bool {
			return !h.tm.IsTaint(o.Obj())
		})
	}
}
