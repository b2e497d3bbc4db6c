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

// Signature is the parsed form of "<C: ret name(p1,p2)>".
type Signature struct {
	Class  string
	Ret    string // "void" for no return
	Name   string
	Params []string
}

// ParseSignature parses the canonical method signature syntax.
func ParseSignature(sig string) (Signature, error) {
	var s Signature
	if len(sig) < 2 || sig[0] != '<' || sig[len(sig)-1] != '>' {
		return s, fmt.Errorf("ir: malformed signature %q: missing angle brackets", sig)
	}
	inner := sig[1 : len(sig)-1]
	colon := strings.Index(inner, ": ")
	if colon < 0 {
		return s, fmt.Errorf("ir: malformed signature %q: missing class separator", sig)
	}
	s.Class = inner[:colon]
	rest := inner[colon+2:]
	open := strings.Index(rest, "(")
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return s, fmt.Errorf("ir: malformed signature %q: missing parameter list", sig)
	}
	head := strings.Fields(rest[:open])
	if len(head) != 2 {
		return s, fmt.Errorf("ir: malformed signature %q: expected return type and name", sig)
	}
	s.Ret, s.Name = head[0], head[1]
	params := rest[open+1 : len(rest)-1]
	if params != "" {
		for _, p := range strings.Split(params, ",") {
			s.Params = append(s.Params, strings.TrimSpace(p))
		}
	}
	return s, nil
}

// SubSignature renders the dispatch key "ret name(p1,p2)".
func (s Signature) SubSignature() string {
	return fmt.Sprintf("%s %s(%s)", s.Ret, s.Name, strings.Join(s.Params, ","))
}

func (s Signature) String() string {
	return fmt.Sprintf("<%s: %s>", s.Class, s.SubSignature())
}

// MethodBySignature resolves a full signature to a declared method.
// The class must exist and declare (not inherit) the method.
func (h *Hierarchy) MethodBySignature(sig string) (*Method, error) {
	parsed, err := ParseSignature(sig)
	if err != nil {
		return nil, err
	}
	c, ok := h.ClassByName(parsed.Class)
	if !ok {
		return nil, fmt.Errorf("ir: class %s not in hierarchy", parsed.Class)
	}
	m, ok := c.MethodBySubSignature(parsed.SubSignature())
	if !ok {
		return nil, fmt.Errorf("ir: method %s not declared on %s", parsed.SubSignature(), parsed.Class)
	}
	return m, nil
}

// TypeByName resolves a type name as written in signatures and
// configuration files: trailing "[]" pairs denote array types, "void"
// resolves to nil, known primitives stay primitive, and anything else
// interns as a class type.
func (h *Hierarchy) TypeByName(name string) *Type {
	if name == "" || name == "void" {
		return nil
	}
	if strings.HasSuffix(name, "[]") {
		return h.ArrayType(h.TypeByName(name[:len(name)-2]))
	}
	switch name {
	case "int", "long", "short", "byte", "char", "boolean", "float", "double":
		return h.PrimitiveType(name)
	}
	return h.Type(name)
}
