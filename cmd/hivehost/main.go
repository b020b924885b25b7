package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wasmhive/hive/host"
)

func main() {
	var (
		pluginDir   = flag.String("plugins", "", "Directory of plugin .wasm files to load")
		pluginFiles = flag.String("wasm", "", "Plugin .wasm files (comma-separated)")
		ticks       = flag.Int("ticks", 10, "Number of schedule passes to run")
		interval    = flag.Duration("interval", 0, "Delay between passes (0 = as fast as possible)")
		verbose     = flag.Bool("v", false, "Verbose host logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	plugins, err := collectPlugins(*pluginDir, *pluginFiles)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(plugins) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: hivehost -plugins <dir> [-ticks n] [-interval 16ms]")
		fmt.Fprintln(os.Stderr, "       hivehost -wasm a.wasm,b.wasm")
		fmt.Fprintln(os.Stderr, "       hivehost -plugins <dir> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if err := runInteractive(plugins); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(plugins, *ticks, *interval, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// collectPlugins resolves the plugin list: every .wasm in dir plus any
// explicitly named files. The module name is the file name without its
// extension.
func collectPlugins(dir, files string) (map[string]string, error) {
	plugins := make(map[string]string)

	if dir != "" {
		matches, err := filepath.Glob(filepath.Join(dir, "*.wasm"))
		if err != nil {
			return nil, fmt.Errorf("scan plugin dir: %w", err)
		}
		for _, path := range matches {
			plugins[moduleName(path)] = path
		}
	}
	if files != "" {
		for _, path := range strings.Split(files, ",") {
			path = strings.TrimSpace(path)
			if path != "" {
				plugins[moduleName(path)] = path
			}
		}
	}
	return plugins, nil
}

func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func run(plugins map[string]string, ticks int, interval time.Duration, verbose bool) error {
	ctx := context.Background()

	log := zap.NewNop()
	if verbose {
		var err error
		log, err = zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer log.Sync()
	}

	cfg, err := host.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	h, err := host.New(ctx, cfg, host.WithLogger(log))
	if err != nil {
		return fmt.Errorf("create host: %w", err)
	}
	defer h.Close(ctx)

	// Load in name order so runs are reproducible.
	names := make([]string, 0, len(plugins))
	for name := range plugins {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := os.ReadFile(plugins[name])
		if err != nil {
			return fmt.Errorf("read %s: %w", plugins[name], err)
		}
		inst, err := h.Load(ctx, name, data)
		if err != nil {
			return fmt.Errorf("load %s: %w", name, err)
		}
		heap := inst.Heap()
		fmt.Printf("Loaded %s (heap %d+%d)\n", name, heap.Offset, heap.Length)
	}

	sched := h.Scheduler()
	for i := 0; i < ticks; i++ {
		report := sched.Run(ctx)
		for _, out := range report.Outcomes {
			if out.Err != nil {
				fmt.Printf("tick %d: %s trapped: %v\n", report.Tick, out.Module, out.Err)
			}
		}
		if interval > 0 {
			time.Sleep(interval)
		}
	}

	fmt.Printf("\nRan %d passes.\n", sched.Tick())
	printSummary(h)
	return nil
}

func printSummary(h *host.Host) {
	insts := h.Scheduler().Instances()
	fmt.Printf("\nModules:\n")
	for _, inst := range insts {
		line := fmt.Sprintf("  %-16s %s", inst.Name(), inst.State())
		if err := inst.Err(); err != nil {
			line += "  " + err.Error()
		}
		fmt.Println(line)
	}

	cols := h.Store().Columns()
	if len(cols) == 0 {
		return
	}
	fmt.Printf("\nColumns:\n")
	for _, info := range cols {
		desc, err := h.Registry().Describe(info.ID)
		name := "?"
		if err == nil {
			name = desc.Name
		}
		fmt.Printf("  %-16s id=%d base=%d stride=%d rows=%d/%d\n",
			name, info.ID, info.BaseOffset, info.Stride, info.Rows, info.Capacity)
	}
}
