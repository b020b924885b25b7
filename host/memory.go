package host

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// wasmMemory adapts the wazero linear memory to hive.Memory. The arena is
// sized to the memory's max limit, so accesses past the currently committed
// pages grow the memory first; the max limit itself is enforced by wazero.
type wasmMemory struct {
	mem api.Memory
}

func (m *wasmMemory) Size() uint32 {
	return m.mem.Size()
}

func (m *wasmMemory) ensure(offset, length uint32) error {
	end := uint64(offset) + uint64(length)
	size := uint64(m.mem.Size())
	if end <= size {
		return nil
	}
	delta := (end - size + pageSize - 1) / pageSize
	if _, ok := m.mem.Grow(uint32(delta)); !ok {
		return fmt.Errorf("memory access [%d,%d) beyond max limit", offset, end)
	}
	return nil
}

func (m *wasmMemory) Read(offset, length uint32) ([]byte, error) {
	if err := m.ensure(offset, length); err != nil {
		return nil, err
	}
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("memory read [%d,%d) out of range", offset, offset+length)
	}
	return data, nil
}

func (m *wasmMemory) Write(offset uint32, data []byte) error {
	if err := m.ensure(offset, uint32(len(data))); err != nil {
		return err
	}
	if !m.mem.Write(offset, data) {
		return fmt.Errorf("memory write [%d,%d) out of range", offset, offset+uint32(len(data)))
	}
	return nil
}

func (m *wasmMemory) ReadU32(offset uint32) (uint32, error) {
	if err := m.ensure(offset, 4); err != nil {
		return 0, err
	}
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read at %d out of range", offset)
	}
	return v, nil
}

func (m *wasmMemory) ReadU64(offset uint32) (uint64, error) {
	if err := m.ensure(offset, 8); err != nil {
		return 0, err
	}
	v, ok := m.mem.ReadUint64Le(offset)
	if !ok {
		return 0, fmt.Errorf("memory read at %d out of range", offset)
	}
	return v, nil
}

func (m *wasmMemory) WriteU32(offset uint32, value uint32) error {
	if err := m.ensure(offset, 4); err != nil {
		return err
	}
	if !m.mem.WriteUint32Le(offset, value) {
		return fmt.Errorf("memory write at %d out of range", offset)
	}
	return nil
}

func (m *wasmMemory) WriteU64(offset uint32, value uint64) error {
	if err := m.ensure(offset, 8); err != nil {
		return err
	}
	if !m.mem.WriteUint64Le(offset, value) {
		return fmt.Errorf("memory write at %d out of range", offset)
	}
	return nil
}
