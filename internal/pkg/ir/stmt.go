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

package ir

import (
	"fmt"
	"strings"
)

// Stmt is a statement of the three-address IR. Statement identity is
// pointer identity; allocation sites and call sites are identified by
// their *New and *Invoke values.
type Stmt interface {
	fmt.Stringer
	Container() *Method
	setContainer(*Method)
}

type stmtBase struct {
	container *Method
}

func (s *stmtBase) Container() *Method     { return s.container }
func (s *stmtBase) setContainer(m *Method) { s.container = m }

// New allocates an object of a class or array type: "to = new T".
type New struct {
	stmtBase
	To   *Var
	Type *Type
}

func (s *New) String() string { return fmt.Sprintf("%s = new %s", s.To.Name, s.Type.Name) }

// AssignLiteral binds a constant to a variable: string literals and
// class literals. The heap model maps (Type, Value) pairs to singleton
// constant objects.
type AssignLiteral struct {
	stmtBase
	To    *Var
	Type  *Type
	Value string
}

func (s *AssignLiteral) String() string {
	return fmt.Sprintf("%s = %q (%s)", s.To.Name, s.Value, s.Type.Name)
}

// Copy is a local assignment: "to = from". Synthetic marks statements
// injected by the analysis itself.
type Copy struct {
	stmtBase
	To, From  *Var
	Synthetic bool
}

func (s *Copy) String() string { return fmt.Sprintf("%s = %s", s.To.Name, s.From.Name) }

// Cast is a checked assignment: "to = (T) from".
type Cast struct {
	stmtBase
	To, From  *Var
	Type      *Type
	Synthetic bool
}

func (s *Cast) String() string {
	return fmt.Sprintf("%s = (%s) %s", s.To.Name, s.Type.Name, s.From.Name)
}

// LoadField reads an instance or static field: "to = base.f" with a
// nil Base for static fields.
type LoadField struct {
	stmtBase
	To    *Var
	Base  *Var // nil for static loads
	Field *Field
}

func (s *LoadField) String() string {
	if s.Base == nil {
		return fmt.Sprintf("%s = %s.%s", s.To.Name, s.Field.Class.Name, s.Field.Name)
	}
	return fmt.Sprintf("%s = %s.%s", s.To.Name, s.Base.Name, s.Field.Name)
}

// StoreField writes an instance or static field: "base.f = from" with
// a nil Base for static fields.
type StoreField struct {
	stmtBase
	Base      *Var // nil for static stores
	Field     *Field
	From      *Var
	Synthetic bool
}

func (s *StoreField) String() string {
	if s.Base == nil {
		return fmt.Sprintf("%s.%s = %s", s.Field.Class.Name, s.Field.Name, s.From.Name)
	}
	return fmt.Sprintf("%s.%s = %s", s.Base.Name, s.Field.Name, s.From.Name)
}

// LoadArray reads an array slot: "to = base[*]". Indices are collapsed.
type LoadArray struct {
	stmtBase
	To, Base *Var
}

func (s *LoadArray) String() string { return fmt.Sprintf("%s = %s[*]", s.To.Name, s.Base.Name) }

// StoreArray writes an array slot: "base[*] = from".
type StoreArray struct {
	stmtBase
	Base, From *Var
}

func (s *StoreArray) String() string { return fmt.Sprintf("%s[*] = %s", s.Base.Name, s.From.Name) }

// InvokeKind distinguishes how a call site binds its target.
type InvokeKind int

const (
	InvokeVirtual InvokeKind = iota
	InvokeStatic
	InvokeSpecial
	InvokeDynamic
)

func (k InvokeKind) String() string {
	switch k {
	case InvokeVirtual:
		return "virtual"
	case InvokeStatic:
		return "static"
	case InvokeSpecial:
		return "special"
	case InvokeDynamic:
		return "dynamic"
	}
	return "unknown"
}

// Invoke is a call site: "result = base.m(args)". Result is nil when
// the call discards its value; Base is nil for static calls.
type Invoke struct {
	stmtBase
	Result *Var // nil when the result is discarded
	Base   *Var // nil for static calls
	Ref    *MethodRef
	Args   []*Var
	Kind   InvokeKind
}

func (s *Invoke) String() string {
	args := make([]string, len(s.Args))
	for i, a := range s.Args {
		args[i] = a.Name
	}
	var b strings.Builder
	if s.Result != nil {
		fmt.Fprintf(&b, "%s = ", s.Result.Name)
	}
	if s.Base != nil {
		fmt.Fprintf(&b, "%s.", s.Base.Name)
	}
	fmt.Fprintf(&b, "%s %s(%s)", s.Kind, s.Ref, strings.Join(args, ","))
	return b.String()
}

// Return leaves the containing method: "return v" or "return".
type Return struct {
	stmtBase
	Var *Var // nil for void returns
}

func (s *Return) String() string {
	if s.Var == nil {
		return "return"
	}
	return "return " + s.Var.Name
}
