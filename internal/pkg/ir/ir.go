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

// Package ir defines the normalized three-address intermediate
// representation consumed by the analysis: types, classes, methods,
// variables, fields, and statements, plus signature-based resolution
// over a class hierarchy.
package ir

import (
	"fmt"
	"strings"
)

// TypeKind discriminates the variants of Type.
type TypeKind int

const (
	ClassType TypeKind = iota
	ArrayType
	PrimitiveType
	NullType
)

// Type is an interned reference to a type known to the hierarchy.
// Array types carry their element type; class types are linked to a
// Class once one is declared under the same name.
type Type struct {
	Name string
	Kind TypeKind
	Elem *Type // element type for arrays, nil otherwise
}

func (t *Type) String() string { return t.Name }

// IsReference reports whether values of this type may point to heap objects.
func (t *Type) IsReference() bool {
	return t.Kind == ClassType || t.Kind == ArrayType || t.Kind == NullType
}

// Class is a declared class in the hierarchy.
type Class struct {
	Name          string
	Type          *Type
	Super         *Class
	IsApplication bool

	methods map[string]*Method // keyed by sub-signature
	fields  map[string]*Field
}

func (c *Class) String() string { return c.Name }

// Field declares a member or static field of a class.
type Field struct {
	Class    *Class
	Name     string
	Type     *Type
	IsStatic bool
}

func (f *Field) String() string {
	return fmt.Sprintf("<%s: %s %s>", f.Class.Name, f.Type.Name, f.Name)
}

// Var is a method-local variable of the three-address IR. Identity is
// pointer identity; names are unique within a method.
type Var struct {
	Method *Method
	Name   string
	Type   *Type
}

func (v *Var) String() string {
	return fmt.Sprintf("%s/%s", v.Method.Signature(), v.Name)
}

// Method is a declared method with an optional body. Library methods
// the analysis cannot see into simply have an empty body.
type Method struct {
	Class         *Class
	Name          string
	ParamTypes    []*Type
	RetType       *Type // nil for void
	IsStatic      bool
	IsConstructor bool

	this   *Var
	params []*Var
	body   []Stmt
	vars   map[string]*Var

	tempCount int
	sig       string // cached signature
}

// This returns the receiver variable, nil for static methods.
func (m *Method) This() *Var { return m.this }

// Params returns the formal parameter variables in declaration order.
func (m *Method) Params() []*Var { return m.params }

// Param returns the i-th formal parameter variable.
func (m *Method) Param(i int) *Var { return m.params[i] }

// Body returns the statements of the method.
func (m *Method) Body() []Stmt { return m.body }

// NewVar declares a fresh local variable in this method. Redeclaring a
// name returns the existing variable when the types agree.
func (m *Method) NewVar(name string, t *Type) *Var {
	if v, ok := m.vars[name]; ok {
		if v.Type != t {
			panic(fmt.Sprintf("ir: variable %s redeclared with a different type in %s", name, m.Signature()))
		}
		return v
	}
	v := &Var{Method: m, Name: name, Type: t}
	m.vars[name] = v
	return v
}

// VarByName looks up a declared local variable.
func (m *Method) VarByName(name string) (*Var, bool) {
	v, ok := m.vars[name]
	return v, ok
}

// TempPrefix is the sentinel prefix of variables synthesized by the
// analysis itself. Later passes recognize such variables by name.
const TempPrefix = "%taint-temp"

// NewTempVar mints a fresh synthetic variable carrying the sentinel
// prefix.
func (m *Method) NewTempVar(t *Type) *Var {
	name := fmt.Sprintf("%s-%d", TempPrefix, m.tempCount)
	m.tempCount++
	return m.NewVar(name, t)
}

// IsTempVar reports whether v was synthesized by the analysis.
func IsTempVar(v *Var) bool {
	return strings.HasPrefix(v.Name, TempPrefix)
}

// Append adds statements to the method body, binding their container.
func (m *Method) Append(stmts ...Stmt) {
	for _, s := range stmts {
		s.setContainer(m)
		m.body = append(m.body, s)
	}
}

// Bind sets this method as the container of the given statements
// without appending them to the body. Used for statements injected
// into a single context-sensitive instance of the method.
func (m *Method) Bind(stmts ...Stmt) {
	for _, s := range stmts {
		s.setContainer(m)
	}
}

// ReturnVars returns the variables returned by the method's Return
// statements, in body order.
func (m *Method) ReturnVars() []*Var {
	var rs []*Var
	for _, s := range m.body {
		if r, ok := s.(*Return); ok && r.Var != nil {
			rs = append(rs, r.Var)
		}
	}
	return rs
}

// SubSignature is the dispatch key within a class: "ret name(p1,p2)".
func (m *Method) SubSignature() string {
	return subSignature(m.RetType, m.Name, m.ParamTypes)
}

// Signature is the canonical full signature: "<C: ret name(p1,p2)>".
func (m *Method) Signature() string {
	if m.sig == "" {
		m.sig = fmt.Sprintf("<%s: %s>", m.Class.Name, m.SubSignature())
	}
	return m.sig
}

func (m *Method) String() string { return m.Signature() }

func subSignature(ret *Type, name string, params []*Type) string {
	r := "void"
	if ret != nil {
		r = ret.Name
	}
	ps := make([]string, len(params))
	for i, p := range params {
		ps[i] = p.Name
	}
	return fmt.Sprintf("%s %s(%s)", r, name, strings.Join(ps, ","))
}

// MethodRef names a method at a call site before resolution.
type MethodRef struct {
	Class  *Class
	Name   string
	Params []*Type
	Ret    *Type // nil for void
}

func (r *MethodRef) SubSignature() string {
	return subSignature(r.Ret, r.Name, r.Params)
}

func (r *MethodRef) String() string {
	return fmt.Sprintf("<%s: %s>", r.Class.Name, r.SubSignature())
}

// Resolve finds the statically bound target by walking the declared
// class and its superclasses.
func (r *MethodRef) Resolve() (*Method, bool) {
	sub := r.SubSignature()
	for c := r.Class; c != nil; c = c.Super {
		if m, ok := c.methods[sub]; ok {
			return m, true
		}
	}
	return nil, false
}

// Program is a closed-world IR program: a hierarchy plus entry methods.
type Program struct {
	Hierarchy *Hierarchy
	Entries   []*Method
}
