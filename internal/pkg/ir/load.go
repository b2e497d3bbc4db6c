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
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// This file loads programs already normalized to the three-address IR
// from a YAML (or JSON) description. Parsing source or bytecode into
// the IR is a front-end concern and lives outside this module.

type rawProgram struct {
	Classes []rawClass `json:"classes"`
	Entries []string   `json:"entries"`
}

type rawClass struct {
	Name        string      `json:"name"`
	Super       string      `json:"super,omitempty"`
	Application bool        `json:"application,omitempty"`
	Fields      []rawField  `json:"fields,omitempty"`
	Methods     []rawMethod `json:"methods,omitempty"`
}

type rawField struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Static bool   `json:"static,omitempty"`
}

type rawMethod struct {
	Name        string    `json:"name"`
	Return      string    `json:"return,omitempty"`
	Params      []string  `json:"params,omitempty"`
	Static      bool      `json:"static,omitempty"`
	Constructor bool      `json:"constructor,omitempty"`
	Vars        []rawVar  `json:"vars,omitempty"`
	Stmts       []rawStmt `json:"stmts,omitempty"`
}

type rawVar struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type rawStmt struct {
	Op     string   `json:"op"`
	To     string   `json:"to,omitempty"`
	From   string   `json:"from,omitempty"`
	Base   string   `json:"base,omitempty"`
	Type   string   `json:"type,omitempty"`
	Value  string   `json:"value,omitempty"`
	Field  string   `json:"field,omitempty"` // "Class.name"
	Method string   `json:"method,omitempty"`
	Kind   string   `json:"kind,omitempty"`
	Result string   `json:"result,omitempty"`
	Args   []string `json:"args,omitempty"`
	Var    string   `json:"var,omitempty"`
}

// LoadProgram reads an IR program description from a file.
func LoadProgram(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ir: reading program: %w", err)
	}
	return ParseProgram(data)
}

// ParseProgram builds a Program from a YAML or JSON description.
func ParseProgram(data []byte) (*Program, error) {
	var raw rawProgram
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("ir: parsing program: %w", err)
	}

	h := NewHierarchy()
	// Declare classes first so supertypes resolve in any order, then
	// fields, then method signatures, then bodies.
	for _, rc := range raw.Classes {
		var super *Class
		if rc.Super != "" {
			s, ok := h.ClassByName(rc.Super)
			if !ok {
				super = h.NewClass(rc.Super, nil, false)
			} else {
				super = s
			}
		}
		if c, ok := h.ClassByName(rc.Name); ok {
			// Declared earlier as a bare supertype.
			c.Super = super
			c.IsApplication = rc.Application
			continue
		}
		h.NewClass(rc.Name, super, rc.Application)
	}
	for _, rc := range raw.Classes {
		c, _ := h.ClassByName(rc.Name)
		for _, rf := range rc.Fields {
			if rf.Static {
				c.NewStaticField(rf.Name, h.TypeByName(rf.Type))
			} else {
				c.NewField(rf.Name, h.TypeByName(rf.Type))
			}
		}
	}
	for _, rc := range raw.Classes {
		c, _ := h.ClassByName(rc.Name)
		for _, rm := range rc.Methods {
			params := make([]*Type, len(rm.Params))
			for i, p := range rm.Params {
				params[i] = h.TypeByName(p)
			}
			switch {
			case rm.Constructor || rm.Name == "<init>":
				c.NewConstructor(params...)
			case rm.Static:
				c.NewStaticMethod(rm.Name, h.TypeByName(rm.Return), params...)
			default:
				c.NewMethod(rm.Name, h.TypeByName(rm.Return), params...)
			}
		}
	}
	for _, rc := range raw.Classes {
		c, _ := h.ClassByName(rc.Name)
		for _, rm := range rc.Methods {
			if err := buildBody(h, c, rm); err != nil {
				return nil, err
			}
		}
	}

	prog := &Program{Hierarchy: h}
	for _, sig := range raw.Entries {
		m, err := h.MethodBySignature(sig)
		if err != nil {
			return nil, fmt.Errorf("ir: entry %s: %w", sig, err)
		}
		prog.Entries = append(prog.Entries, m)
	}
	return prog, nil
}

func buildBody(h *Hierarchy, c *Class, rm rawMethod) error {
	params := make([]*Type, len(rm.Params))
	for i, p := range rm.Params {
		params[i] = h.TypeByName(p)
	}
	name := rm.Name
	if rm.Constructor {
		name = "<init>"
	}
	ret := h.TypeByName(rm.Return)
	if rm.Constructor || name == "<init>" {
		ret = nil
	}
	m, ok := c.MethodBySubSignature(subSignature(ret, name, params))
	if !ok {
		return fmt.Errorf("ir: method %s vanished from %s", name, c.Name)
	}
	for _, rv := range rm.Vars {
		m.NewVar(rv.Name, h.TypeByName(rv.Type))
	}
	for i, rs := range rm.Stmts {
		stmt, err := buildStmt(h, m, rs)
		if err != nil {
			return fmt.Errorf("ir: %s stmt %d: %w", m.Signature(), i, err)
		}
		m.Append(stmt)
	}
	return nil
}

func buildStmt(h *Hierarchy, m *Method, rs rawStmt) (Stmt, error) {
	v := func(name string) (*Var, error) {
		if name == "" {
			return nil, fmt.Errorf("missing variable operand")
		}
		if vv, ok := m.VarByName(name); ok {
			return vv, nil
		}
		return nil, fmt.Errorf("undeclared variable %s", name)
	}
	optional := func(name string) (*Var, error) {
		if name == "" {
			return nil, nil
		}
		return v(name)
	}
	field := func(spec string) (*Field, error) {
		dot := strings.LastIndex(spec, ".")
		if dot < 0 {
			return nil, fmt.Errorf("malformed field %q", spec)
		}
		fc, ok := h.ClassByName(spec[:dot])
		if !ok {
			return nil, fmt.Errorf("unknown class in field %q", spec)
		}
		f, ok := fc.FieldByName(spec[dot+1:])
		if !ok {
			return nil, fmt.Errorf("unknown field %q", spec)
		}
		return f, nil
	}

	switch rs.Op {
	case "new":
		to, err := v(rs.To)
		if err != nil {
			return nil, err
		}
		return &New{To: to, Type: h.TypeByName(rs.Type)}, nil
	case "literal":
		to, err := v(rs.To)
		if err != nil {
			return nil, err
		}
		return &AssignLiteral{To: to, Type: h.TypeByName(rs.Type), Value: rs.Value}, nil
	case "copy":
		to, err := v(rs.To)
		if err != nil {
			return nil, err
		}
		from, err := v(rs.From)
		if err != nil {
			return nil, err
		}
		return &Copy{To: to, From: from}, nil
	case "cast":
		to, err := v(rs.To)
		if err != nil {
			return nil, err
		}
		from, err := v(rs.From)
		if err != nil {
			return nil, err
		}
		return &Cast{To: to, From: from, Type: h.TypeByName(rs.Type)}, nil
	case "load":
		to, err := v(rs.To)
		if err != nil {
			return nil, err
		}
		base, err := optional(rs.Base)
		if err != nil {
			return nil, err
		}
		f, err := field(rs.Field)
		if err != nil {
			return nil, err
		}
		return &LoadField{To: to, Base: base, Field: f}, nil
	case "store":
		from, err := v(rs.From)
		if err != nil {
			return nil, err
		}
		base, err := optional(rs.Base)
		if err != nil {
			return nil, err
		}
		f, err := field(rs.Field)
		if err != nil {
			return nil, err
		}
		return &StoreField{Base: base, Field: f, From: from}, nil
	case "aload":
		to, err := v(rs.To)
		if err != nil {
			return nil, err
		}
		base, err := v(rs.Base)
		if err != nil {
			return nil, err
		}
		return &LoadArray{To: to, Base: base}, nil
	case "astore":
		base, err := v(rs.Base)
		if err != nil {
			return nil, err
		}
		from, err := v(rs.From)
		if err != nil {
			return nil, err
		}
		return &StoreArray{Base: base, From: from}, nil
	case "invoke":
		result, err := optional(rs.Result)
		if err != nil {
			return nil, err
		}
		base, err := optional(rs.Base)
		if err != nil {
			return nil, err
		}
		sig, err := ParseSignature(rs.Method)
		if err != nil {
			return nil, err
		}
		refClass, ok := h.ClassByName(sig.Class)
		if !ok {
			return nil, fmt.Errorf("unknown class in call target %q", rs.Method)
		}
		ps := make([]*Type, len(sig.Params))
		for i, p := range sig.Params {
			ps[i] = h.TypeByName(p)
		}
		ref := &MethodRef{Class: refClass, Name: sig.Name, Params: ps, Ret: h.TypeByName(sig.Ret)}
		args := make([]*Var, len(rs.Args))
		for i, a := range rs.Args {
			if args[i], err = v(a); err != nil {
				return nil, err
			}
		}
		kind, err := parseInvokeKind(rs.Kind, base)
		if err != nil {
			return nil, err
		}
		return &Invoke{Result: result, Base: base, Ref: ref, Args: args, Kind: kind}, nil
	case "return":
		rv, err := optional(rs.Var)
		if err != nil {
			return nil, err
		}
		return &Return{Var: rv}, nil
	}
	return nil, fmt.Errorf("unknown statement op %q", rs.Op)
}

func parseInvokeKind(kind string, base *Var) (InvokeKind, error) {
	switch kind {
	case "":
		if base == nil {
			return InvokeStatic, nil
		}
		return InvokeVirtual, nil
	case "virtual":
		return InvokeVirtual, nil
	case "static":
		return InvokeStatic, nil
	case "special":
		return InvokeSpecial, nil
	case "dynamic":
		return InvokeDynamic, nil
	}
	return 0, fmt.Errorf("unknown invoke kind %q", kind)
}
