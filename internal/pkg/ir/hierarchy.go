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
)

// Hierarchy interns types and owns the class table. All type and class
// lookups during a solve go through one hierarchy; it is read-only once
// the program is assembled.
type Hierarchy struct {
	types   map[string]*Type
	classes map[string]*Class
	null    *Type
}

func NewHierarchy() *Hierarchy {
	h := &Hierarchy{
		types:   make(map[string]*Type),
		classes: make(map[string]*Class),
	}
	h.null = &Type{Name: "null-type", Kind: NullType}
	h.types[h.null.Name] = h.null
	return h
}

// Type interns a class type by name.
func (h *Hierarchy) Type(name string) *Type {
	if t, ok := h.types[name]; ok {
		return t
	}
	t := &Type{Name: name, Kind: ClassType}
	h.types[name] = t
	return t
}

// PrimitiveType interns a primitive type by name.
func (h *Hierarchy) PrimitiveType(name string) *Type {
	if t, ok := h.types[name]; ok {
		return t
	}
	t := &Type{Name: name, Kind: PrimitiveType}
	h.types[name] = t
	return t
}

// ArrayType interns the array type of the given element type.
func (h *Hierarchy) ArrayType(elem *Type) *Type {
	name := elem.Name + "[]"
	if t, ok := h.types[name]; ok {
		return t
	}
	t := &Type{Name: name, Kind: ArrayType, Elem: elem}
	h.types[name] = t
	return t
}

// NullType returns the distinguished type of the null constant.
func (h *Hierarchy) NullType() *Type { return h.null }

// NewClass declares a class. The class's type is interned under the
// same name.
func (h *Hierarchy) NewClass(name string, super *Class, application bool) *Class {
	if _, ok := h.classes[name]; ok {
		panic(fmt.Sprintf("ir: class %s declared twice", name))
	}
	c := &Class{
		Name:          name,
		Type:          h.Type(name),
		Super:         super,
		IsApplication: application,
		methods:       make(map[string]*Method),
		fields:        make(map[string]*Field),
	}
	h.classes[name] = c
	return c
}

// ClassByName looks up a declared class.
func (h *Hierarchy) ClassByName(name string) (*Class, bool) {
	c, ok := h.classes[name]
	return c, ok
}

// ClassOf returns the class declaring a type, following array types to
// nothing (arrays have no class).
func (h *Hierarchy) ClassOf(t *Type) (*Class, bool) {
	if t.Kind != ClassType {
		return nil, false
	}
	return h.ClassByName(t.Name)
}

// IsSubtype reports whether sub is assignable to sup. The null type is
// a subtype of every reference type; array types are covariant in
// their element type; class types follow the superclass chain.
func (h *Hierarchy) IsSubtype(sub, sup *Type) bool {
	if sub == sup {
		return true
	}
	switch sub.Kind {
	case NullType:
		return sup.IsReference()
	case ArrayType:
		if sup.Kind == ArrayType {
			return h.IsSubtype(sub.Elem, sup.Elem)
		}
		// Arrays are assignable to the root class type, if declared.
		return h.isRootClass(sup)
	case ClassType:
		if sup.Kind != ClassType {
			return false
		}
		c, ok := h.ClassByName(sub.Name)
		if !ok {
			return false
		}
		for ; c != nil; c = c.Super {
			if c.Name == sup.Name {
				return true
			}
		}
	}
	return false
}

func (h *Hierarchy) isRootClass(t *Type) bool {
	c, ok := h.ClassOf(t)
	return ok && c.Super == nil
}

// Dispatch resolves a virtual call: starting at the dynamic receiver
// type, walk up the superclass chain for a method matching the
// reference's sub-signature. Resolution failures are reported, not
// fatal; the caller decides how to record them.
func (h *Hierarchy) Dispatch(recv *Type, ref *MethodRef) (*Method, bool) {
	sub := ref.SubSignature()
	start, ok := h.ClassOf(recv)
	if !ok {
		// Array receivers dispatch through the declared class.
		start = ref.Class
	}
	for c := start; c != nil; c = c.Super {
		if m, ok := c.methods[sub]; ok {
			return m, true
		}
	}
	return nil, false
}

// NewMethod declares an instance method on c and creates its receiver
// and parameter variables.
func (c *Class) NewMethod(name string, ret *Type, params ...*Type) *Method {
	return c.addMethod(name, ret, params, false)
}

// NewStaticMethod declares a static method on c.
func (c *Class) NewStaticMethod(name string, ret *Type, params ...*Type) *Method {
	return c.addMethod(name, ret, params, true)
}

// NewConstructor declares a constructor ("<init>") on c.
func (c *Class) NewConstructor(params ...*Type) *Method {
	m := c.addMethod("<init>", nil, params, false)
	m.IsConstructor = true
	return m
}

func (c *Class) addMethod(name string, ret *Type, params []*Type, static bool) *Method {
	m := &Method{
		Class:      c,
		Name:       name,
		ParamTypes: params,
		RetType:    ret,
		IsStatic:   static,
		vars:       make(map[string]*Var),
	}
	sub := m.SubSignature()
	if _, ok := c.methods[sub]; ok {
		panic(fmt.Sprintf("ir: method %s declared twice on %s", sub, c.Name))
	}
	c.methods[sub] = m
	if !static {
		m.this = m.NewVar("%this", c.Type)
	}
	for i, pt := range params {
		m.params = append(m.params, m.NewVar(fmt.Sprintf("%%param%d", i), pt))
	}
	return m
}

// MethodBySubSignature looks a method up on this class only.
func (c *Class) MethodBySubSignature(sub string) (*Method, bool) {
	m, ok := c.methods[sub]
	return m, ok
}

// Methods returns the methods declared on this class.
func (c *Class) Methods() []*Method {
	ms := make([]*Method, 0, len(c.methods))
	for _, m := range c.methods {
		ms = append(ms, m)
	}
	return ms
}

// NewField declares a member field on c.
func (c *Class) NewField(name string, t *Type) *Field {
	return c.addField(name, t, false)
}

// NewStaticField declares a static field on c.
func (c *Class) NewStaticField(name string, t *Type) *Field {
	return c.addField(name, t, true)
}

func (c *Class) addField(name string, t *Type, static bool) *Field {
	if _, ok := c.fields[name]; ok {
		panic(fmt.Sprintf("ir: field %s declared twice on %s", name, c.Name))
	}
	f := &Field{Class: c, Name: name, Type: t, IsStatic: static}
	c.fields[name] = f
	return f
}

// FieldByName resolves a field on this class or a superclass.
func (c *Class) FieldByName(name string) (*Field, bool) {
	for cur := c; cur != nil; cur = cur.Super {
		if f, ok := cur.fields[name]; ok {
			return f, true
		}
	}
	return nil, false
}

// Ref builds a method reference declared against this class.
func (c *Class) Ref(name string, ret *Type, params ...*Type) *MethodRef {
	return &MethodRef{Class: c, Name: name, Params: params, Ret: ret}
}
