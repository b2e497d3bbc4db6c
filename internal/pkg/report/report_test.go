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

package report

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jiachenhan/taie/internal/pkg/contexts"
	"github.com/jiachenhan/taie/internal/pkg/cs"
	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
	"github.com/jiachenhan/taie/internal/pkg/solver"
	"github.com/jiachenhan/taie/internal/pkg/taint"
)

func runSimpleSolve(t *testing.T) (*solver.Result, []taint.Flow) {
	t.Helper()
	h := ir.NewHierarchy()
	c := h.NewClass("T", nil, true)
	m := c.NewStaticMethod("main", nil)
	a := m.NewVar("a", c.Type)
	snk := &ir.Invoke{Ref: c.Ref("main", nil), Kind: ir.InvokeStatic}
	m.Append(&ir.New{To: a, Type: c.Type})

	csm := cs.NewManager()
	sel, err := contexts.New("ci", csm.Interner())
	require.NoError(t, err)
	s := solver.New(h, heap.NewModel(), csm, sel)
	res, err := s.Solve(context.Background(), []*ir.Method{m})
	require.NoError(t, err)

	flows := []taint.Flow{{
		Source: taint.CallSourcePoint{Invoke: snk, Index: taint.IndexResult},
		Sink:   taint.SinkPoint{Invoke: snk, Index: 0},
	}}
	return res, flows
}

func TestReportText(t *testing.T) {
	res, flows := runSimpleSolve(t)
	rep := New(res, flows)

	_, err := uuid.Parse(rep.RunID)
	assert.NoError(t, err, "run id must be a UUID")

	var buf bytes.Buffer
	require.NoError(t, rep.WriteText(&buf, false))
	out := buf.String()
	assert.Contains(t, out, rep.RunID)
	assert.Contains(t, out, "1 taint flow(s) detected")
	assert.Contains(t, out, "reachable methods: 1")
}

func TestReportTextNoFlows(t *testing.T) {
	res, _ := runSimpleSolve(t)
	rep := New(res, nil)
	var buf bytes.Buffer
	require.NoError(t, rep.WriteText(&buf, false))
	assert.Contains(t, buf.String(), "no taint flows detected")
}

func TestReportJSON(t *testing.T) {
	res, flows := runSimpleSolve(t)
	rep := New(res, flows)
	var buf bytes.Buffer
	require.NoError(t, rep.WriteJSON(&buf))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, rep.RunID, decoded["runId"])
	assert.Len(t, decoded["flows"], 1)
	stats, ok := decoded["stats"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, stats["reachableMethods"])
	assert.False(t, strings.Contains(buf.String(), "\x1b["), "JSON output must be color free")
}
