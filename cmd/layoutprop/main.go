// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// layoutprop compiles operator graph descriptions (YAML or JSON files, see graph.Description) with the layout
// propagation pass, and reports the layouts decided for every tensor.
//
// Usage:
//
//	layoutprop [-kernels catalogue.yaml] [-settings "precision_mode=force_fp16;..."] [-v=N] graph1.yaml [graph2.yaml|dir ...]
//
// Directories are replaced by the graph descriptions they contain. With more than one graph, the graphs are
// compiled in parallel and a progress bar is displayed.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/npucompiler/pkg/compiler"
	"github.com/gomlx/npucompiler/pkg/core/graph"
	"github.com/gomlx/npucompiler/pkg/core/kernels"
	"github.com/gomlx/npucompiler/pkg/support/fsutil"
	"github.com/gomlx/npucompiler/pkg/support/xslices"
	"github.com/janpfeifer/must"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

var (
	flagKernels = flag.String("kernels", "",
		"Kernel capability catalogue (YAML or JSON). If empty, the built-in catalogue is used.")
	flagSettings = flag.String("settings", "",
		fmt.Sprintf("Compilation settings, separated by \";\", e.g. \"precision_mode=force_fp16;max_elements=1_000_000\". "+
			"Settings from a file can be included with \"file:<path>\". They override the settings in $%s. Valid settings: %s.",
			compiler.SettingsEnv, strings.Join(compiler.SettingsNames(), ", ")))
	flagParallelism = flag.Int("parallelism", -1,
		"Number of graphs compiled in parallel. 0 compiles them sequentially, negative values use the number of CPUs.")
	flagSummary   = flag.Bool("summary", true, "Display a summary table per graph.")
	flagSlots     = flag.Bool("slots", false, "Display the layout of the slots of each graph.")
	flagHeavyOnly = flag.Bool("heavy_only", true, "With -slots, only display slots with a heavy layout.")
	flagOps       = xslices.Flag("ops", nil, "Comma-separated list of operator types: with -slots, only "+
		"display the slots of these operators.", func(s string) (string, error) { return s, nil })
	flagOutputDir   = flag.String("output_dir", "", "If set, the compiled graphs are written to this directory, with their layouts.")
	flagDumpKernels = flag.Bool("dump_kernels", false, "Print the kernel catalogue in use and exit.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	store := kernels.Default()
	if *flagKernels != "" {
		store = must.M1(kernels.LoadYAMLFile(fsutil.MustReplaceTildeInDir(*flagKernels)))
	}
	if *flagDumpKernels {
		must.M(store.Dump(os.Stdout))
		return
	}

	cfg, err := compiler.DefaultConfig()
	if err != nil {
		klog.Fatalf("Invalid settings: %+v", err)
	}
	if err = compiler.ParseSettings(&cfg, *flagSettings); err != nil {
		klog.Fatalf("Invalid -settings: %+v", err)
	}
	klog.V(1).Infof("Settings: %s", compiler.Settings(cfg))

	if flag.NArg() == 0 {
		klog.Errorf("Missing graph description files to compile. See 'layoutprop -help'.")
		os.Exit(1)
	}
	files, err := fsutil.ListFiles(flag.Args(), ".yaml", ".yml", ".json")
	if err != nil {
		klog.Fatalf("Failed to list graphs: %+v", err)
	}
	if len(files) == 0 {
		klog.Fatalf("No graph description found in %q", flag.Args())
	}

	results := compileFiles(files, store, cfg)
	var numFailed int
	for _, result := range results {
		if result.Err != nil {
			numFailed++
			klog.Errorf("Failed to compile %q: %+v", result.Name, result.Err)
			if result.Report == nil {
				continue
			}
		}
		report(result)
		if *flagOutputDir != "" && result.Err == nil {
			writeGraph(result)
		}
	}
	if numFailed > 0 {
		klog.Errorf("%d of %d graphs failed to compile", numFailed, len(results))
		os.Exit(1)
	}
}

// compileFiles loads and compiles the graphs in parallel, displaying a progress bar if there is more than one.
func compileFiles(files []string, store kernels.Store, cfg compiler.Config) []compiler.Result {
	var bar *progressbar.ProgressBar
	if len(files) > 1 && isTerminal {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("compiling"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("graphs"),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionClearOnFinish(),
		)
	}
	jobs := xslices.Map(files, func(path string) compiler.Job {
		job := compiler.Job{
			Name:    path,
			Load:    func() (*graph.Graph, error) { return graph.LoadYAMLFile(path) },
			Kernels: store,
		}
		if bar != nil {
			job.Done = func(compiler.Result) { _ = bar.Add(1) }
		}
		return job
	})
	results := compiler.CompileAll(jobs, cfg, *flagParallelism)
	if bar != nil {
		_ = bar.Finish()
	}
	return results
}

// writeGraph writes the compiled graph description to -output_dir, with the name of the source file.
func writeGraph(result compiler.Result) {
	dir := fsutil.MustReplaceTildeInDir(*flagOutputDir)
	must.M(os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, filepath.Base(result.Name))
	f := must.M1(os.Create(path))
	must.M(result.Graph.Dump(f))
	must.M(f.Close())
	klog.V(1).Infof("Compiled graph %q written to %q", result.Graph.Name(), path)
}
