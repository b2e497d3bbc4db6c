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

// Package contexts implements the context selectors of the pointer
// analysis: context insensitivity, k-limited call-site sensitivity,
// and k-limited object sensitivity.
package contexts

import (
	"fmt"

	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
)

// Selector picks the context of a callee method and the heap context
// of an allocation.
type Selector interface {
	// SelectContext picks the context for callee invoked from
	// callSite on receiver recv. recv is nil for static calls.
	SelectContext(callSite *cs.CSCallSite, recv *cs.CSObj, callee *ir.Method) *cs.Context
	// SelectHeapContext picks the heap context for an object
	// allocated in method.
	SelectHeapContext(method *cs.CSMethod, obj *heap.Obj) *cs.Context
}

// New builds a selector by name: "ci", "1-call", "2-call", "1-obj", or
// "2-obj". Other values of k are rejected.
func New(name string, interner *cs.ContextInterner) (Selector, error) {
	switch name {
	case "ci":
		return insensitive{empty: interner.Empty()}, nil
	case "1-call":
		return &kCall{in: interner, k: 1, hk: 0}, nil
	case "2-call":
		return &kCall{in: interner, k: 2, hk: 1}, nil
	case "1-obj":
		return &kObj{in: interner, k: 1, hk: 0}, nil
	case "2-obj":
		return &kObj{in: interner, k: 2, hk: 1}, nil
	}
	return nil, fmt.Errorf("contexts: unknown sensitivity %q", name)
}

type insensitive struct {
	empty *cs.Context
}

func (s insensitive) SelectContext(*cs.CSCallSite, *cs.CSObj, *ir.Method) *cs.Context {
	return s.empty
}

func (s insensitive) SelectHeapContext(*cs.CSMethod, *heap.Obj) *cs.Context {
	return s.empty
}

// kCall is k-limited call-site sensitivity (k-CFA) with hk-limited
// heap contexts.
type kCall struct {
	in    *cs.ContextInterner
	k, hk int
}

func (s *kCall) SelectContext(callSite *cs.CSCallSite, _ *cs.CSObj, _ *ir.Method) *cs.Context {
	return s.in.Append(callSite.Context(), callSite.Invoke(), s.k)
}

func (s *kCall) SelectHeapContext(method *cs.CSMethod, _ *heap.Obj) *cs.Context {
	return truncate(s.in, method.Context(), s.hk)
}

// kObj is k-limited object sensitivity with hk-limited heap contexts.
type kObj struct {
	in    *cs.ContextInterner
	k, hk int
}

func (s *kObj) SelectContext(callSite *cs.CSCallSite, recv *cs.CSObj, _ *ir.Method) *cs.Context {
	if recv == nil {
		// Static calls inherit the caller's context.
		return truncate(s.in, callSite.Context(), s.k)
	}
	return s.in.Append(recv.Context(), recv.Obj(), s.k)
}

func (s *kObj) SelectHeapContext(method *cs.CSMethod, _ *heap.Obj) *cs.Context {
	return truncate(s.in, method.Context(), s.hk)
}

// truncate re-interns the limit most recent elements of c.
func truncate(in *cs.ContextInterner, c *cs.Context, limit int) *cs.Context {
	if limit <= 0 {
		return in.Empty()
	}
	n := c.Len()
	if n <= limit {
		return c
	}
	elems := make([]any, 0, limit)
	for i := n - limit; i < n; i++ {
		elems = append(elems, c.Elem(i))
	}
	return in.Get(elems...)
}
