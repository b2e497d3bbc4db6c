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

// Package taint implements the taint analysis as a plugin over the
// pointer analysis: taint objects are first-class heap objects, and
// sources, sinks, transfers, and sanitizers are driven by
// configuration.
package taint

import (
	"fmt"

	"github.com/jiachenhan/taie/internal/pkg/heap"
	"github.com/jiachenhan/taie/internal/pkg/ir"
)

// Argument index encoding shared by rules and handlers.
const (
	// IndexBase designates the receiver of a call.
	IndexBase = -1
	// IndexResult designates the result of a call.
	IndexResult = -2
)

// SourcePoint identifies where a taint object entered the program.
type SourcePoint interface {
	sourcePoint()
	fmt.Stringer
}

// CallSourcePoint is the returned value or an argument of a source
// call.
type CallSourcePoint struct {
	Invoke *ir.Invoke
	Index  int
}

func (CallSourcePoint) sourcePoint() {}

func (p CallSourcePoint) String() string {
	return fmt.Sprintf("call-source{%s/%d}", p.Invoke, p.Index)
}

// ParamSourcePoint is a tainted formal parameter on method entry.
type ParamSourcePoint struct {
	Method *ir.Method
	Index  int
}

func (ParamSourcePoint) sourcePoint() {}

func (p ParamSourcePoint) String() string {
	return fmt.Sprintf("param-source{%s/%d}", p.Method.Signature(), p.Index)
}

// SinkPoint identifies an observed sink position.
type SinkPoint struct {
	Invoke *ir.Invoke
	Index  int
}

func (p SinkPoint) String() string {
	return fmt.Sprintf("sink{%s/%d}", p.Invoke, p.Index)
}

// Flow is a witnessed source-to-sink taint flow.
type Flow struct {
	Source SourcePoint
	Sink   SinkPoint
}

func (f Flow) String() string {
	return fmt.Sprintf("%s -> %s", f.Source, f.Sink)
}

// taintDescriptor marks mock objects minted by the taint manager.
const taintDescriptor = "TaintObj"

type taintKey struct {
	source SourcePoint
	typ    *ir.Type
}

// Manager mints and identifies taint objects. Two taint objects are
// equal iff their source points and types are equal, so minting is
// idempotent per (source, type).
type Manager struct {
	heapModel *heap.Model
	taints    map[taintKey]*heap.Obj
}

func NewManager(hm *heap.Model) *Manager {
	return &Manager{heapModel: hm, taints: make(map[taintKey]*heap.Obj)}
}

// MakeTaint returns the canonical taint object for (source, type).
func (m *Manager) MakeTaint(source SourcePoint, typ *ir.Type) *heap.Obj {
	k := taintKey{source: source, typ: typ}
	if o, ok := m.taints[k]; ok {
		return o
	}
	o := m.heapModel.NewMock(taintDescriptor, typ, source)
	m.taints[k] = o
	return o
}

// IsTaintObj reports whether obj is a taint object, regardless of the
// minting manager.
func IsTaintObj(obj *heap.Obj) bool {
	return obj.Kind() == heap.MockObj && obj.Descriptor() == taintDescriptor
}

// IsTaint reports whether obj is a taint object.
func (m *Manager) IsTaint(obj *heap.Obj) bool {
	return IsTaintObj(obj)
}

// SourcePointOf returns the source point of a taint object. Defined
// only when IsTaint(obj).
func (m *Manager) SourcePointOf(obj *heap.Obj) SourcePoint {
	return obj.Payload().(SourcePoint)
}

// TaintObjs returns every taint object minted so far.
func (m *Manager) TaintObjs() []*heap.Obj {
	out := make([]*heap.Obj, 0, len(m.taints))
	for _, o := range m.taints {
		out = append(out, o)
	}
	return out
}
