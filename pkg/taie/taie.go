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

// Package taie is the public entry point of the taint analysis: it
// wires the pointer analysis, the taint plugin, and the reflection
// model together and runs them over an IR program.
package taie

import (
	"context"

	"github.com/jiachenhan/taie/internal/pkg/contexts"
	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
	"github.com/jiachenhan/taie/internal/pkg/reflection"
	"github.com/jiachenhan/taie/internal/pkg/solver"
	"github.com/jiachenhan/taie/internal/pkg/taint"
)

// Options configure a run.
type Options struct {
	// ConfigPath names the taint rule file or directory. Leave empty
	// to pass rules via Config instead.
	ConfigPath string
	// Config holds pre-resolved rules; used when ConfigPath is empty.
	Config *taint.Config
	// ContextSensitivity selects the context policy: "ci", "1-call",
	// "2-call", "1-obj", or "2-obj". Defaults to "ci".
	ContextSensitivity string
	// OnlyApp restricts taint flow graph edges to application code.
	OnlyApp bool
}

// Result bundles the pointer analysis result with the taint findings.
type Result struct {
	Pointer *solver.Result
	Flows   []taint.Flow
	Graph   *taint.FlowGraph
	Unsound []*ir.Invoke
}

// Run executes the analysis. Cancellation through ctx surfaces
// solver.ErrCancelled with a partial pointer result and no taint
// artifacts.
func Run(ctx context.Context, prog *ir.Program, opts Options) (*Result, error) {
	cfg := opts.Config
	if opts.ConfigPath != "" {
		loaded, err := taint.LoadConfig(opts.ConfigPath, prog.Hierarchy)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = &taint.Config{}
	}

	csm := cs.NewManager()
	sensitivity := opts.ContextSensitivity
	if sensitivity == "" {
		sensitivity = "ci"
	}
	sel, err := contexts.New(sensitivity, csm.Interner())
	if err != nil {
		return nil, err
	}

	s := solver.New(prog.Hierarchy, heap.NewModel(), csm, sel)
	tm := taint.NewManager(s.HeapModel())
	analysis := taint.NewAnalysis(s, tm, cfg)
	s.SetPlugin(solver.Composite{analysis, reflection.New(s)})

	ptr, err := s.Solve(ctx, prog.Entries)
	if err != nil {
		return &Result{Pointer: ptr}, err
	}
	flows := analysis.Flows()
	graph := taint.BuildFlowGraph(ptr, tm, analysis.VarTransfers(), flows, opts.OnlyApp)
	return &Result{
		Pointer: ptr,
		Flows:   flows,
		Graph:   graph,
		Unsound: ptr.UnsoundCalls(),
	}, nil
}
