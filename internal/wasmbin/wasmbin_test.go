package wasmbin

import (
	"context"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

func TestEncodeULEB128(t *testing.T) {
	tests := []struct {
		value uint32
		want  []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7f}},
		{128, []byte{0x80, 0x01}},
		{624485, []byte{0xe5, 0x8e, 0x26}},
	}
	for _, tt := range tests {
		got := EncodeULEB128(tt.value)
		if len(got) != len(tt.want) {
			t.Fatalf("EncodeULEB128(%d) = %x, want %x", tt.value, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("EncodeULEB128(%d) = %x, want %x", tt.value, got, tt.want)
			}
		}
	}
}

func TestEncodeSLEB128(t *testing.T) {
	tests := []struct {
		value int32
		want  []byte
	}{
		{0, []byte{0x00}},
		{-1, []byte{0x7f}},
		{63, []byte{0x3f}},
		{64, []byte{0xc0, 0x00}},
		{-64, []byte{0x40}},
		{-123456, []byte{0xc0, 0xbb, 0x78}},
	}
	for _, tt := range tests {
		got := EncodeSLEB128(tt.value)
		if len(got) != len(tt.want) {
			t.Fatalf("EncodeSLEB128(%d) = %x, want %x", tt.value, got, tt.want)
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Fatalf("EncodeSLEB128(%d) = %x, want %x", tt.value, got, tt.want)
			}
		}
	}
}

func TestEnvModule_CompilesAndExports(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	calls := []Func{
		{Name: "hive_alloc", Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}},
		{Name: "hive_log", Params: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}},
	}

	// The env module imports its functions from the synthetic host module.
	hostBuilder := rt.NewHostModuleBuilder("hive")
	hostBuilder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			stack[0] = 1024
		}), calls[0].Params, calls[0].Results).
		Export("hive_alloc")
	hostBuilder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {}),
			calls[1].Params, calls[1].Results).
		Export("hive_log")
	if _, err := hostBuilder.Instantiate(ctx); err != nil {
		t.Fatalf("instantiate host module: %v", err)
	}

	env, err := rt.InstantiateWithConfig(ctx, EnvModule("hive", 16, 64, calls),
		wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		t.Fatalf("instantiate env module: %v", err)
	}

	if env.ExportedMemory("memory") == nil {
		t.Fatal("env module does not export memory")
	}
	if env.ExportedFunction("hive_alloc") == nil {
		t.Fatal("env module does not re-export hive_alloc")
	}
}

func TestGuestBuilder_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	env, err := rt.InstantiateWithConfig(ctx, EnvModule("hive", 1, 16, nil),
		wazero.NewModuleConfig().WithName("env"))
	if err != nil {
		t.Fatalf("instantiate env: %v", err)
	}

	g := NewGuestBuilder()
	// update(tick i64): store 7 at offset 64 in the shared memory.
	var body []byte
	body = append(body, I32Const(64)...)
	body = append(body, I32Const(7)...)
	body = append(body, I32Store(0)...)
	g.Export("update", []api.ValueType{api.ValueTypeI64}, nil, body)

	guest, err := rt.InstantiateWithConfig(ctx, g.Build(),
		wazero.NewModuleConfig().WithName("guest"))
	if err != nil {
		t.Fatalf("instantiate guest: %v", err)
	}

	if _, err := guest.ExportedFunction("update").Call(ctx, 0); err != nil {
		t.Fatalf("call update: %v", err)
	}

	// The guest writes through the imported shared memory; read it back
	// through the env module's export.
	mem := env.ExportedMemory("memory")
	if v, ok := mem.ReadUint32Le(64); !ok || v != 7 {
		t.Fatalf("shared memory at 64 = %d, %v; want 7", v, ok)
	}
}

func TestGuestBuilder_ImportedCall(t *testing.T) {
	ctx := context.Background()
	rt := wazero.NewRuntime(ctx)
	defer rt.Close(ctx)

	got := uint64(0)
	calls := []Func{{Name: "ping", Params: []api.ValueType{api.ValueTypeI32}}}

	rt.NewHostModuleBuilder("hive").
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
			got = stack[0]
		}), calls[0].Params, nil).
		Export("ping").
		Instantiate(ctx)

	if _, err := rt.InstantiateWithConfig(ctx, EnvModule("hive", 1, 16, calls),
		wazero.NewModuleConfig().WithName("env")); err != nil {
		t.Fatalf("instantiate env: %v", err)
	}

	g := NewGuestBuilder()
	ping := g.Import("ping", []api.ValueType{api.ValueTypeI32}, nil)
	var body []byte
	body = append(body, I32Const(99)...)
	body = append(body, Call(ping)...)
	g.Export("update", []api.ValueType{api.ValueTypeI64}, nil, body)

	guest, err := rt.InstantiateWithConfig(ctx, g.Build(), wazero.NewModuleConfig().WithName("g"))
	if err != nil {
		t.Fatalf("instantiate guest: %v", err)
	}
	if _, err := guest.ExportedFunction("update").Call(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if got != 99 {
		t.Fatalf("host call saw %d, want 99", got)
	}
}
