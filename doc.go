// Package hive provides a host runtime that loads independently-compiled
// WebAssembly plugin modules into one shared linear memory region and lets
// them exchange data at zero copy cost.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	hive/              Root package with the Memory and Allocator interfaces
//	├── host/          High-level API for loading plugins and driving the tick loop
//	├── arena/         Free-list span allocator partitioning the shared region
//	├── component/     Runtime component-type registry (name → identifier)
//	├── store/         Columnar component store over raw memory ranges
//	├── link/          Dynamic host-call table resolved at link time
//	└── errors/        Structured error types for debugging
//
// # Quick Start
//
// Load plugins and run the tick loop:
//
//	h, err := host.New(ctx, host.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer h.Close(ctx)
//
//	inst, err := h.Load(ctx, "game", wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	report := h.Scheduler().Run(ctx)
//	for _, out := range report.Outcomes {
//	    fmt.Println(out.Module, out.State)
//	}
//
// # Memory Model
//
// All plugins import one shared linear memory exported by the host. The
// arena package carves that memory into per-module heap and stack regions
// and into component columns; no offset is ever fixed at compile time.
// Column growth relocates the column's span, so consumers must re-query a
// column's base offset after any insert that may have grown it.
//
// # Host Calls
//
// Plugins call into the host through a link table resolved once per module
// at load time. Unresolvable calls abort the load before the module ever
// runs:
//
//	h.Register("roll-dice", link.HostCall{
//	    Params:  []api.ValueType{api.ValueTypeI32},
//	    Results: []api.ValueType{api.ValueTypeI32},
//	    Func: func(ctx context.Context, mod api.Module, stack []uint64) {
//	        stack[0] = uint64(rand.Int31n(int32(stack[0])))
//	    },
//	})
//
// # Thread Safety
//
// Module execution is single-threaded and cooperative: the scheduler runs
// one module's tick to completion (or trap) before the next. Registries are
// mutex-guarded so the embedder may inspect columns from another goroutine,
// but no two modules ever execute concurrently against the shared region.
package hive
