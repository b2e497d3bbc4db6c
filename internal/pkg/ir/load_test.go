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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testProgram = `
classes:
  - name: java.lang.Object
  - name: V
    super: java.lang.Object
    application: true
  - name: T
    super: java.lang.Object
    application: true
    fields:
      - {name: f, type: V}
      - {name: g, type: V, static: true}
    methods:
      - name: source
        static: true
        return: V
      - name: main
        static: true
        vars:
          - {name: a, type: V}
          - {name: t, type: T}
          - {name: b, type: V}
        stmts:
          - {op: new, to: t, type: T}
          - {op: invoke, kind: static, result: a, method: "<T: V source()>"}
          - {op: store, base: t, field: "T.f", from: a}
          - {op: load, to: b, base: t, field: "T.f"}
          - {op: store, field: "T.g", from: b}
          - {op: return}
entries:
  - "<T: void main()>"
`

func TestParseProgram(t *testing.T) {
	prog, err := ParseProgram([]byte(testProgram))
	require.NoError(t, err)
	require.Len(t, prog.Entries, 1)

	main := prog.Entries[0]
	assert.Equal(t, "<T: void main()>", main.Signature())
	assert.Len(t, main.Body(), 6)

	tc, ok := prog.Hierarchy.ClassByName("T")
	require.True(t, ok)
	assert.True(t, tc.IsApplication)
	require.NotNil(t, tc.Super)
	assert.Equal(t, "java.lang.Object", tc.Super.Name)

	f, ok := tc.FieldByName("f")
	require.True(t, ok)
	assert.False(t, f.IsStatic)
	g, ok := tc.FieldByName("g")
	require.True(t, ok)
	assert.True(t, g.IsStatic)

	// Statement shapes survive loading.
	alloc, ok := main.Body()[0].(*New)
	require.True(t, ok)
	assert.Equal(t, "t", alloc.To.Name)
	call, ok := main.Body()[1].(*Invoke)
	require.True(t, ok)
	assert.Equal(t, InvokeStatic, call.Kind)
	require.NotNil(t, call.Result)
	assert.Equal(t, "a", call.Result.Name)
	st, ok := main.Body()[4].(*StoreField)
	require.True(t, ok)
	assert.Nil(t, st.Base)
	assert.Same(t, g, st.Field)

	// Containers are bound on append.
	for _, stmt := range main.Body() {
		assert.Same(t, main, stmt.Container())
	}
}

func TestParseProgramErrors(t *testing.T) {
	cases := map[string]string{
		"unknown op": `
classes:
  - name: T
    methods:
      - name: m
        static: true
        stmts: [{op: frobnicate}]
entries: []
`,
		"undeclared var": `
classes:
  - name: T
    methods:
      - name: m
        static: true
        stmts: [{op: copy, to: a, from: b}]
entries: []
`,
		"unknown entry": `
classes:
  - name: T
entries: ["<T: void main()>"]
`,
		"unknown key": `
classes: []
entrypoints: []
`,
	}
	for name, src := range cases {
		if _, err := ParseProgram([]byte(src)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}
