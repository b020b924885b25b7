package store

import (
	"encoding/binary"
	"testing"

	"github.com/wasmhive/hive"
	"github.com/wasmhive/hive/arena"
	"github.com/wasmhive/hive/component"
	"github.com/wasmhive/hive/errors"
)

func newTestStore(t *testing.T, size uint32, opts ...Option) (*Store, *component.Registry) {
	t.Helper()
	mem := hive.NewSliceMemory(size)
	a := arena.New(size)
	reg := component.NewRegistry()
	return New(mem, a, reg, opts...), reg
}

func mustRegister(t *testing.T, reg *component.Registry, name string, size, align uint32) component.ID {
	t.Helper()
	id, err := reg.RegisterOrGet(name, size, align)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestEnsureColumn(t *testing.T) {
	s, reg := newTestStore(t, 1<<20)
	id := mustRegister(t, reg, "position", 8, 4)

	info, err := s.EnsureColumn(id)
	if err != nil {
		t.Fatal(err)
	}
	if info.Stride != 8 {
		t.Fatalf("stride = %d, want 8", info.Stride)
	}
	if info.Capacity != DefaultCapacity {
		t.Fatalf("capacity = %d, want %d", info.Capacity, DefaultCapacity)
	}
	if info.Rows != 0 {
		t.Fatalf("rows = %d, want 0", info.Rows)
	}

	// Idempotent: same column comes back.
	again, err := s.EnsureColumn(id)
	if err != nil {
		t.Fatal(err)
	}
	if again.BaseOffset != info.BaseOffset {
		t.Fatalf("second EnsureColumn moved the column: %d -> %d", info.BaseOffset, again.BaseOffset)
	}
}

func TestEnsureColumn_UnknownComponent(t *testing.T) {
	s, _ := newTestStore(t, 1<<20)
	_, err := s.EnsureColumn(42)
	if !errors.IsKind(err, errors.KindUnknownComponent) {
		t.Fatalf("expected unknown_component, got %v", err)
	}
}

func TestInsertRow_CountsExplicitly(t *testing.T) {
	s, reg := newTestStore(t, 1<<20)
	id := mustRegister(t, reg, "position", 8, 4)

	for i := 0; i < 5; i++ {
		row, err := s.InsertRow(id, uint64(100+i))
		if err != nil {
			t.Fatal(err)
		}
		if row != uint32(i) {
			t.Fatalf("row = %d, want %d", row, i)
		}
	}

	rows, err := s.RowCount(id)
	if err != nil {
		t.Fatal(err)
	}
	if rows != 5 {
		t.Fatalf("RowCount = %d, want 5", rows)
	}
}

func TestInsertRow_GrowthKeepsDataAndBounds(t *testing.T) {
	s, reg := newTestStore(t, 1<<20, WithInitialCapacity(4))
	id := mustRegister(t, reg, "tile", 4, 4)

	// Fill each row with a recognizable value, growing several times.
	const rows = 64
	for i := 0; i < rows; i++ {
		row, err := s.InsertRow(id, uint64(i))
		if err != nil {
			t.Fatal(err)
		}

		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(0xBEEF0000+i))
		if err := s.WriteRow(id, row, buf[:]); err != nil {
			t.Fatal(err)
		}

		// stride * rows never exceeds the allocated span.
		info, err := s.Column(id)
		if err != nil {
			t.Fatal(err)
		}
		if info.Stride*info.Rows > info.Stride*info.Capacity {
			t.Fatalf("rows %d exceed capacity %d", info.Rows, info.Capacity)
		}
	}

	// Re-query the base offset after growth: reads through the fresh
	// offset must see every previously written row.
	for i := 0; i < rows; i++ {
		data, err := s.RowData(id, uint32(i))
		if err != nil {
			t.Fatal(err)
		}
		if got := binary.LittleEndian.Uint32(data); got != uint32(0xBEEF0000+i) {
			t.Fatalf("row %d = %#x after growth, want %#x", i, got, 0xBEEF0000+i)
		}
	}
}

func TestInsertRow_GrowthRelocatesWhenBlocked(t *testing.T) {
	mem := hive.NewSliceMemory(1 << 20)
	a := arena.New(1 << 20)
	reg := component.NewRegistry()
	s := New(mem, a, reg, WithInitialCapacity(2))

	id := mustRegister(t, reg, "position", 8, 4)
	if _, err := s.EnsureColumn(id); err != nil {
		t.Fatal(err)
	}
	before, _ := s.Column(id)

	// Occupy the bytes directly after the column so in-place growth is
	// impossible and the store must relocate.
	if _, err := a.Reserve("blocker", arena.KindHeap, 64); err != nil {
		t.Fatal(err)
	}

	s.InsertRow(id, 1)
	s.InsertRow(id, 2)
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 0xCAFEBABE)
	s.WriteRow(id, 0, buf[:])

	if _, err := s.InsertRow(id, 3); err != nil {
		t.Fatal(err)
	}

	after, err := s.Column(id)
	if err != nil {
		t.Fatal(err)
	}
	if after.BaseOffset == before.BaseOffset {
		t.Fatal("expected relocation to move the column")
	}
	if after.Capacity != 4 {
		t.Fatalf("capacity = %d, want 4", after.Capacity)
	}

	data, err := s.RowData(id, 0)
	if err != nil {
		t.Fatal(err)
	}
	if binary.LittleEndian.Uint64(data) != 0xCAFEBABE {
		t.Fatal("row 0 lost during relocation")
	}
}

func TestRemoveRow_FreeListStableIndices(t *testing.T) {
	s, reg := newTestStore(t, 1<<20)
	id := mustRegister(t, reg, "tile", 4, 4)

	var rows [3]uint32
	for i := range rows {
		r, err := s.InsertRow(id, uint64(i+1))
		if err != nil {
			t.Fatal(err)
		}
		rows[i] = r
	}

	if err := s.RemoveRow(id, rows[1]); err != nil {
		t.Fatal(err)
	}

	// Surviving rows keep their indices.
	if e, ok := s.EntityAt(id, rows[0]); !ok || e != 1 {
		t.Fatalf("row %d = entity %d, %v; want entity 1", rows[0], e, ok)
	}
	if e, ok := s.EntityAt(id, rows[2]); !ok || e != 3 {
		t.Fatalf("row %d = entity %d, %v; want entity 3", rows[2], e, ok)
	}
	if _, ok := s.EntityAt(id, rows[1]); ok {
		t.Fatal("removed row still reports an entity")
	}

	count, _ := s.RowCount(id)
	if count != 2 {
		t.Fatalf("RowCount = %d, want 2", count)
	}

	// The vacated slot is reused by the next insert.
	reused, err := s.InsertRow(id, 9)
	if err != nil {
		t.Fatal(err)
	}
	if reused != rows[1] {
		t.Fatalf("insert reused row %d, want %d", reused, rows[1])
	}
}

func TestRemoveRow_Invalid(t *testing.T) {
	s, reg := newTestStore(t, 1<<20)
	id := mustRegister(t, reg, "tile", 4, 4)
	s.EnsureColumn(id)

	if err := s.RemoveRow(id, 0); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input removing vacant row, got %v", err)
	}
	if err := s.RemoveRow(99, 0); !errors.IsKind(err, errors.KindUnknownComponent) {
		t.Fatalf("expected unknown_component, got %v", err)
	}

	row, _ := s.InsertRow(id, 7)
	if err := s.RemoveRow(id, row); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveRow(id, row); !errors.IsKind(err, errors.KindInvalidInput) {
		t.Fatalf("expected invalid_input on double remove, got %v", err)
	}
}

func TestRemoveRow_ZeroesSlot(t *testing.T) {
	s, reg := newTestStore(t, 1<<20)
	id := mustRegister(t, reg, "tile", 4, 4)

	row, _ := s.InsertRow(id, 1)
	s.WriteRow(id, row, []byte{1, 2, 3, 4})

	info, _ := s.Column(id)
	if err := s.RemoveRow(id, row); err != nil {
		t.Fatal(err)
	}

	// Read the raw slot bytes through the column's base offset.
	mem := s.mem
	data, err := mem.Read(info.BaseOffset+row*info.Stride, info.Stride)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range data {
		if b != 0 {
			t.Fatalf("byte %d of removed slot = %d, want 0", i, b)
		}
	}
}

func TestEnsureColumn_OversizedStrideRejected(t *testing.T) {
	mem := hive.NewSliceMemory(1 << 20)
	a := arena.New(1 << 20)
	reg := component.NewRegistry()
	s := New(mem, a, reg)

	// stride * capacity wraps uint32: 0x10000001 * 16 = 16 (mod 2^32). An
	// unchecked product would reserve a 16-byte span while reporting
	// capacity 16 at stride 0x10000001, handing callers offsets deep inside
	// neighboring regions.
	id := mustRegister(t, reg, "huge", 0x10000001, 8)
	free := a.FreeBytes()

	_, err := s.EnsureColumn(id)
	if !errors.IsKind(err, errors.KindOutOfMemory) {
		t.Fatalf("expected out_of_memory, got %v", err)
	}
	if _, err := s.InsertRow(id, 1); !errors.IsKind(err, errors.KindOutOfMemory) {
		t.Fatalf("InsertRow: expected out_of_memory, got %v", err)
	}
	if got := a.FreeBytes(); got != free {
		t.Fatalf("failed column left %d bytes reserved", free-got)
	}
	if len(s.Columns()) != 0 {
		t.Fatal("rejected column appears in the snapshot")
	}
}

func TestColumn_SpanCoversReportedShape(t *testing.T) {
	s, reg := newTestStore(t, 1<<20, WithInitialCapacity(4))
	id := mustRegister(t, reg, "wide", 4096, 8)

	for i := 0; i < 9; i++ {
		if _, err := s.InsertRow(id, uint64(i)); err != nil {
			t.Fatal(err)
		}
		info, err := s.Column(id)
		if err != nil {
			t.Fatal(err)
		}
		span := uint64(info.Stride) * uint64(info.Capacity)
		if uint64(info.Stride)*uint64(info.Rows) > span {
			t.Fatalf("stride*rows %d exceeds span %d", uint64(info.Stride)*uint64(info.Rows), span)
		}
		if uint64(info.BaseOffset)+span > uint64(s.mem.Size()) {
			t.Fatalf("column [%d,%d) extends past memory size %d",
				info.BaseOffset, uint64(info.BaseOffset)+span, s.mem.Size())
		}
	}
}

func TestPopulatedRows_SkipsVacatedSlots(t *testing.T) {
	s, reg := newTestStore(t, 1<<20)
	id := mustRegister(t, reg, "tile", 4, 4)

	for i := 0; i < 4; i++ {
		if _, err := s.InsertRow(id, uint64(i+1)); err != nil {
			t.Fatal(err)
		}
	}
	s.RemoveRow(id, 0)
	s.RemoveRow(id, 2)

	rows, err := s.PopulatedRows(id)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2 || rows[0] != 1 || rows[1] != 3 {
		t.Fatalf("PopulatedRows = %v, want [1 3]", rows)
	}

	if _, err := s.PopulatedRows(77); !errors.IsKind(err, errors.KindUnknownComponent) {
		t.Fatalf("expected unknown_component, got %v", err)
	}
}

func TestStride_FromDescriptorOnly(t *testing.T) {
	s, reg := newTestStore(t, 1<<20)
	id := mustRegister(t, reg, "cursor", 12, 4)

	stride, err := s.Stride(id)
	if err != nil {
		t.Fatal(err)
	}
	// 12 is deliberately not a power of two: the stride must come from the
	// descriptor as declared, not from any rounding assumption.
	if stride != 12 {
		t.Fatalf("stride = %d, want 12", stride)
	}

	if _, err := s.Stride(404); !errors.IsKind(err, errors.KindUnknownComponent) {
		t.Fatalf("expected unknown_component, got %v", err)
	}
}

func TestColumnByName(t *testing.T) {
	s, reg := newTestStore(t, 1<<20)
	id := mustRegister(t, reg, "position", 8, 4)
	s.EnsureColumn(id)

	info, err := s.ColumnByName("position")
	if err != nil {
		t.Fatal(err)
	}
	if info.ID != id {
		t.Fatalf("ID = %d, want %d", info.ID, id)
	}

	if _, err := s.ColumnByName("absent"); !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestColumns_Snapshot(t *testing.T) {
	s, reg := newTestStore(t, 1<<20)
	a := mustRegister(t, reg, "a", 4, 4)
	b := mustRegister(t, reg, "b", 8, 8)
	s.EnsureColumn(b)
	s.EnsureColumn(a)

	cols := s.Columns()
	if len(cols) != 2 {
		t.Fatalf("len = %d, want 2", len(cols))
	}
	if cols[0].ID != a || cols[1].ID != b {
		t.Fatalf("snapshot not ordered by ID: %+v", cols)
	}
}
