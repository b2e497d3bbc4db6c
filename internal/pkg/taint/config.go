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

package taint

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/jiachenhan/taie/internal/pkg/ir"
)

// CallSource taints the value at Index of every call to Method.
type CallSource struct {
	Method *ir.Method
	Index  int
	Type   *ir.Type
}

// ParamSource taints the Index-th formal of Method on first reach.
type ParamSource struct {
	Method *ir.Method
	Index  int
	Type   *ir.Type
}

// Sink observes the value at Index of every call to Method.
type Sink struct {
	Method *ir.Method
	Index  int
}

// Transfer propagates taint from one call position to another,
// rewriting the taint's type.
type Transfer struct {
	Method *ir.Method
	From   int
	To     int
	Type   *ir.Type
}

// Sanitizer keeps taint off the Index-th formal of Method.
type Sanitizer struct {
	Method *ir.Method
	Index  int
}

// Config is the resolved rule set of a taint analysis.
type Config struct {
	CallSources  []CallSource
	ParamSources []ParamSource
	Sinks        []Sink
	Transfers    []Transfer
	Sanitizers   []Sanitizer
}

// ConfigError reports a malformed configuration file.
type ConfigError struct {
	File string
	Err  error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("taint: config %s: %v", e.File, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

type rawSource struct {
	Kind   string `json:"kind"`
	Method string `json:"method"`
	Index  string `json:"index"`
	Type   string `json:"type"`
}

type rawSink struct {
	Method string `json:"method"`
	Index  string `json:"index"`
}

type rawTransfer struct {
	Method string `json:"method"`
	From   string `json:"from"`
	To     string `json:"to"`
	Type   string `json:"type"`
}

type rawSanitizer struct {
	Method string `json:"method"`
	Index  string `json:"index"`
}

type rawConfig struct {
	Sources    []rawSource    `json:"sources,omitempty"`
	Sinks      []rawSink      `json:"sinks,omitempty"`
	Transfers  []rawTransfer  `json:"transfers,omitempty"`
	Sanitizers []rawSanitizer `json:"sanitizers,omitempty"`
}

// parseIndex decodes the rule index encoding: "base" is the receiver,
// "result" the returned value, and a non-negative integer an argument
// position.
func parseIndex(s string) (int, error) {
	switch s {
	case "base":
		return IndexBase, nil
	case "result":
		return IndexResult, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	return n, nil
}

// LoadConfig reads taint rules from a YAML file, or from every
// *.yml/*.yaml below a directory, merged by concatenation with
// per-list deduplication. Unresolvable method signatures and rules
// with impossible indices are logged and skipped; malformed YAML is a
// ConfigError.
func LoadConfig(path string, h *ir.Hierarchy) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &ConfigError{File: path, Err: err}
	}
	var files []string
	if info.IsDir() {
		err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(p)) {
			case ".yml", ".yaml":
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, &ConfigError{File: path, Err: err}
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	var merged rawConfig
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, &ConfigError{File: f, Err: err}
		}
		var rc rawConfig
		if err := yaml.UnmarshalStrict(data, &rc); err != nil {
			return nil, &ConfigError{File: f, Err: err}
		}
		merged.Sources = append(merged.Sources, rc.Sources...)
		merged.Sinks = append(merged.Sinks, rc.Sinks...)
		merged.Transfers = append(merged.Transfers, rc.Transfers...)
		merged.Sanitizers = append(merged.Sanitizers, rc.Sanitizers...)
	}
	return resolveConfig(dedup(merged), h)
}

// ParseConfig resolves taint rules from one YAML document.
func ParseConfig(data []byte, h *ir.Hierarchy) (*Config, error) {
	var rc rawConfig
	if err := yaml.UnmarshalStrict(data, &rc); err != nil {
		return nil, &ConfigError{File: "<bytes>", Err: err}
	}
	return resolveConfig(dedup(rc), h)
}

func dedup(rc rawConfig) rawConfig {
	var out rawConfig
	seen := make(map[string]bool)
	once := func(key string) bool {
		if seen[key] {
			return false
		}
		seen[key] = true
		return true
	}
	for _, r := range rc.Sources {
		if once("source|" + r.Kind + "|" + r.Method + "|" + r.Index + "|" + r.Type) {
			out.Sources = append(out.Sources, r)
		}
	}
	for _, r := range rc.Sinks {
		if once("sink|" + r.Method + "|" + r.Index) {
			out.Sinks = append(out.Sinks, r)
		}
	}
	for _, r := range rc.Transfers {
		if once("transfer|" + r.Method + "|" + r.From + "|" + r.To + "|" + r.Type) {
			out.Transfers = append(out.Transfers, r)
		}
	}
	for _, r := range rc.Sanitizers {
		if once("sanitizer|" + r.Method + "|" + r.Index) {
			out.Sanitizers = append(out.Sanitizers, r)
		}
	}
	return out
}

func resolveConfig(rc rawConfig, h *ir.Hierarchy) (*Config, error) {
	cfg := &Config{}
	for _, r := range rc.Sources {
		m, idx, ok := resolveRule(h, r.Method, r.Index)
		if !ok {
			continue
		}
		if !validIndex(m, idx) {
			log.Printf("taint: source on %s has impossible index %s, skipping", r.Method, r.Index)
			continue
		}
		typ := h.TypeByName(r.Type)
		switch r.Kind {
		case "call":
			cfg.CallSources = append(cfg.CallSources, CallSource{Method: m, Index: idx, Type: typ})
		case "param":
			if idx < 0 {
				log.Printf("taint: param source on %s needs an argument index, skipping", r.Method)
				continue
			}
			cfg.ParamSources = append(cfg.ParamSources, ParamSource{Method: m, Index: idx, Type: typ})
		default:
			log.Printf("taint: unknown source kind %q on %s, skipping", r.Kind, r.Method)
		}
	}
	for _, r := range rc.Sinks {
		m, idx, ok := resolveRule(h, r.Method, r.Index)
		if !ok {
			continue
		}
		if !validIndex(m, idx) || idx == IndexResult {
			log.Printf("taint: sink on %s has impossible index %s, skipping", r.Method, r.Index)
			continue
		}
		cfg.Sinks = append(cfg.Sinks, Sink{Method: m, Index: idx})
	}
	for _, r := range rc.Transfers {
		m, from, ok := resolveRule(h, r.Method, r.From)
		if !ok {
			continue
		}
		to, err := parseIndex(r.To)
		if err != nil {
			log.Printf("taint: transfer on %s: %v, skipping", r.Method, err)
			continue
		}
		if !validIndex(m, from) || !validIndex(m, to) {
			log.Printf("taint: transfer on %s has impossible index, skipping", r.Method)
			continue
		}
		cfg.Transfers = append(cfg.Transfers, Transfer{Method: m, From: from, To: to, Type: h.TypeByName(r.Type)})
	}
	for _, r := range rc.Sanitizers {
		m, idx, ok := resolveRule(h, r.Method, r.Index)
		if !ok {
			continue
		}
		if idx < 0 || !validIndex(m, idx) {
			log.Printf("taint: sanitizer on %s needs an argument index, skipping", r.Method)
			continue
		}
		cfg.Sanitizers = append(cfg.Sanitizers, Sanitizer{Method: m, Index: idx})
	}
	return cfg, nil
}

func resolveRule(h *ir.Hierarchy, sig, index string) (*ir.Method, int, bool) {
	m, err := h.MethodBySignature(sig)
	if err != nil {
		log.Printf("taint: %v, skipping rule", err)
		return nil, 0, false
	}
	idx, err := parseIndex(index)
	if err != nil {
		log.Printf("taint: rule on %s: %v, skipping", sig, err)
		return nil, 0, false
	}
	return m, idx, true
}

// validIndex checks an index against the method shape: base requires
// an instance method, result a return value, and argument positions
// must exist.
func validIndex(m *ir.Method, idx int) bool {
	switch idx {
	case IndexBase:
		return !m.IsStatic
	case IndexResult:
		return m.RetType != nil
	default:
		return idx >= 0 && idx < len(m.ParamTypes)
	}
}
