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

// Package cs defines the context-sensitive elements of the pointer
// analysis (variables, objects, fields, call sites, methods), their
// points-to sets, and the manager that canonicalizes all of them.
package cs

import (
	"fmt"
	"strings"
)

// Context abstracts the calling or allocation history of an element.
// Contexts are interned: two contexts with the same element sequence
// are the same pointer, so they can key maps directly. Elements are
// call sites (*ir.Invoke) or abstract objects (*heap.Obj) depending on
// the selector in use.
type Context struct {
	elems    []any
	children map[any]*Context
}

// Len returns the context depth.
func (c *Context) Len() int { return len(c.elems) }

// Elem returns the i-th context element, oldest first.
func (c *Context) Elem(i int) any { return c.elems[i] }

func (c *Context) String() string {
	if len(c.elems) == 0 {
		return "[]"
	}
	s := make([]string, len(c.elems))
	for i, e := range c.elems {
		s[i] = fmt.Sprintf("%v", e)
	}
	return "[" + strings.Join(s, ";") + "]"
}

func (c *Context) child(elem any) *Context {
	if c.children == nil {
		c.children = make(map[any]*Context)
	}
	if ch, ok := c.children[elem]; ok {
		return ch
	}
	elems := make([]any, len(c.elems)+1)
	copy(elems, c.elems)
	elems[len(c.elems)] = elem
	ch := &Context{elems: elems}
	c.children[elem] = ch
	return ch
}

// ContextInterner canonicalizes contexts in a trie rooted at the
// distinguished empty context.
type ContextInterner struct {
	empty *Context
}

func NewContextInterner() *ContextInterner {
	return &ContextInterner{empty: &Context{}}
}

// Empty returns the single empty context.
func (in *ContextInterner) Empty() *Context { return in.empty }

// Append returns the canonical context obtained by appending elem to c
// and truncating to the limit most recent elements. A limit of zero
// yields the empty context.
func (in *ContextInterner) Append(c *Context, elem any, limit int) *Context {
	if limit <= 0 {
		return in.empty
	}
	elems := append(append([]any(nil), c.elems...), elem)
	if len(elems) > limit {
		elems = elems[len(elems)-limit:]
	}
	cur := in.empty
	for _, e := range elems {
		cur = cur.child(e)
	}
	return cur
}

// Get returns the canonical context for an explicit element sequence.
func (in *ContextInterner) Get(elems ...any) *Context {
	cur := in.empty
	for _, e := range elems {
		cur = cur.child(e)
	}
	return cur
}
