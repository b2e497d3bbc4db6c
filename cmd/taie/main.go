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

// The taie command runs the taint analysis over a normalized IR
// program description and prints the witnessed flows.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/jiachenhan/taie/internal/pkg/ir"
	"github.com/jiachenhan/taie/internal/pkg/render"
	"github.com/jiachenhan/taie/internal/pkg/report"
	"github.com/jiachenhan/taie/internal/pkg/solver"
	"github.com/jiachenhan/taie/pkg/taie"
)

func main() {
	var (
		programPath = flag.String("program", "", "path to the IR program description (YAML or JSON)")
		configPath  = flag.String("config", "", "path to the taint rule file or directory")
		sensitivity = flag.String("cs", "ci", "context sensitivity: ci, 1-call, 2-call, 1-obj, 2-obj")
		onlyApp     = flag.Bool("only-app", false, "restrict the taint flow graph to application code")
		dotPath     = flag.String("dot", "", "write the taint flow graph as DOT to this file")
		jsonOut     = flag.Bool("json", false, "print the report as JSON")
		noColor     = flag.Bool("no-color", false, "disable colored output")
		timeout     = flag.Duration("timeout", 0, "abort the solve after this duration")
	)
	flag.Parse()

	if *programPath == "" {
		fmt.Fprintln(os.Stderr, "usage: taie -program <ir file> [-config <rules>] [flags]")
		flag.PrintDefaults()
		os.Exit(2)
	}

	prog, err := ir.LoadProgram(*programPath)
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	res, err := taie.Run(ctx, prog, taie.Options{
		ConfigPath:         *configPath,
		ContextSensitivity: *sensitivity,
		OnlyApp:            *onlyApp,
	})
	if err != nil {
		if errors.Is(err, solver.ErrCancelled) {
			log.Printf("solve cancelled after %s; results are partial", *timeout)
		} else {
			log.Fatal(err)
		}
	}

	rep := report.New(res.Pointer, res.Flows)
	if *jsonOut {
		if err := rep.WriteJSON(os.Stdout); err != nil {
			log.Fatal(err)
		}
	} else if err := rep.WriteText(os.Stdout, !*noColor); err != nil {
		log.Fatal(err)
	}

	if *dotPath != "" && res.Graph != nil {
		if err := os.WriteFile(*dotPath, []byte(render.DOT(res.Graph)), 0o644); err != nil {
			log.Fatal(err)
		}
	}

	if len(res.Flows) > 0 {
		os.Exit(1)
	}
}
