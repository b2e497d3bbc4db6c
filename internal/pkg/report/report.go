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

// Package report renders analysis results for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/gookit/color"

	"github.com/jiachenhan/taie/internal/pkg/ir"
	"github.com/jiachenhan/taie/internal/pkg/solver"
	"github.com/jiachenhan/taie/internal/pkg/taint"
)

// Stats summarizes the size of a solve.
type Stats struct {
	ReachableMethods int `json:"reachableMethods"`
	CallEdges        int `json:"callEdges"`
	FlowEdges        int `json:"flowEdges"`
	Objects          int `json:"objects"`
}

// Report is the reportable outcome of one analysis run.
type Report struct {
	RunID   string
	Flows   []taint.Flow
	Unsound []*ir.Invoke
	Stats   Stats
}

// New assembles a report with a fresh run identifier.
func New(res *solver.Result, flows []taint.Flow) *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Flows:   flows,
		Unsound: res.UnsoundCalls(),
		Stats: Stats{
			ReachableMethods: len(res.CallGraph().ReachableMethods()),
			CallEdges:        len(res.CallGraph().Edges()),
			FlowEdges:        res.ObjectFlowGraph().NumEdges(),
			Objects:          len(res.CSManager().Objects()),
		},
	}
}

// WriteText renders a human-readable report. Colors are applied only
// when colored is set.
func (r *Report) WriteText(w io.Writer, colored bool) error {
	paint := func(c color.Color, s string) string {
		if colored {
			return c.Render(s)
		}
		return s
	}
	if _, err := fmt.Fprintf(w, "taint analysis run %s\n", r.RunID); err != nil {
		return err
	}
	if len(r.Flows) == 0 {
		_, err := fmt.Fprintln(w, paint(color.Green, "no taint flows detected"))
		return err
	}
	if _, err := fmt.Fprintf(w, "%s\n", paint(color.Red, fmt.Sprintf("%d taint flow(s) detected", len(r.Flows)))); err != nil {
		return err
	}
	for _, f := range r.Flows {
		if _, err := fmt.Fprintf(w, "  %s\n", f); err != nil {
			return err
		}
	}
	for _, inv := range r.Unsound {
		if _, err := fmt.Fprintf(w, "%s %s\n", paint(color.Yellow, "unsound call:"), inv); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "reachable methods: %d, call edges: %d, flow edges: %d, objects: %d\n",
		r.Stats.ReachableMethods, r.Stats.CallEdges, r.Stats.FlowEdges, r.Stats.Objects)
	return err
}

type jsonFlow struct {
	Source string `json:"source"`
	Sink   string `json:"sink"`
}

type jsonReport struct {
	RunID   string     `json:"runId"`
	Flows   []jsonFlow `json:"flows"`
	Unsound []string   `json:"unsoundCalls,omitempty"`
	Stats   Stats      `json:"stats"`
}

// WriteJSON renders the report as JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	out := jsonReport{RunID: r.RunID, Stats: r.Stats, Flows: []jsonFlow{}}
	for _, f := range r.Flows {
		out.Flows = append(out.Flows, jsonFlow{Source: f.Source.String(), Sink: f.Sink.String()})
	}
	for _, inv := range r.Unsound {
		out.Unsound = append(out.Unsound, inv.String())
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
