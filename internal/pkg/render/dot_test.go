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

package render

import (
	"context"
	"strings"
	"testing"

	"github.com/jiachenhan/taie/internal/pkg/ir"
	"github.com/jiachenhan/taie/internal/pkg/taint"
	"github.com/jiachenhan/taie/pkg/taie"
)

func TestDOT(t *testing.T) {
	h := ir.NewHierarchy()
	object := h.NewClass("java.lang.Object", nil, false)
	tc := h.NewClass("T", object, true)
	vc := h.NewClass("V", object, true)
	source := tc.NewStaticMethod("source", vc.Type)
	sink := tc.NewStaticMethod("sink", nil, vc.Type)
	main := tc.NewStaticMethod("main", nil)
	a := main.NewVar("a", vc.Type)
	b := main.NewVar("b", vc.Type)
	main.Append(
		&ir.Invoke{Result: a, Ref: tc.Ref("source", vc.Type), Kind: ir.InvokeStatic},
		&ir.Copy{To: b, From: a},
		&ir.Invoke{Ref: tc.Ref("sink", nil, vc.Type), Args: []*ir.Var{b}, Kind: ir.InvokeStatic},
	)

	res, err := taie.Run(context.Background(), &ir.Program{Hierarchy: h, Entries: []*ir.Method{main}}, taie.Options{
		Config: &taint.Config{
			CallSources: []taint.CallSource{{Method: source, Index: taint.IndexResult, Type: vc.Type}},
			Sinks:       []taint.Sink{{Method: sink, Index: 0}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Flows) != 1 {
		t.Fatalf("flows = %v", res.Flows)
	}

	dot := DOT(res.Graph)
	if !strings.HasPrefix(dot, "digraph tfg {") || !strings.HasSuffix(dot, "}\n") {
		t.Errorf("malformed DOT wrapper:\n%s", dot)
	}
	if !strings.Contains(dot, "LOCAL_ASSIGN") {
		t.Errorf("copy edge missing from DOT:\n%s", dot)
	}
	if !strings.Contains(dot, "doublecircle") {
		t.Errorf("source node shape missing:\n%s", dot)
	}
	if !strings.Contains(dot, "shape=box") {
		t.Errorf("sink node shape missing:\n%s", dot)
	}
}
