package arena

import (
	"sync"

	"github.com/wasmhive/hive/errors"
)

// FreeList is a first-fit allocator over one already-reserved region. It
// backs a module's private heap: hive_alloc and hive_free operate on a
// FreeList nested inside the module's heap region, so one module can never
// hand out offsets inside another module's span.
//
// Offsets returned by Alloc are absolute offsets into the shared memory.
type FreeList struct {
	blocks []span // sorted by offset, coalesced
	base   uint32
	limit  uint32
	mu     sync.Mutex
}

// NewFreeList creates a free list covering [base, base+size).
func NewFreeList(base, size uint32) *FreeList {
	return &FreeList{
		base:  base,
		limit: base + size,
		blocks: []span{
			{offset: base, length: size},
		},
	}
}

// Alloc hands out size bytes aligned to align (power of two, at most
// Alignment is honored for sub-word requests).
func (f *FreeList) Alloc(size, align uint32) (uint32, error) {
	if size == 0 {
		return 0, errors.InvalidInput(errors.PhaseArena, "alloc of zero bytes")
	}
	size = alignUp(size)
	_ = align // every block offset is already Alignment-aligned

	f.mu.Lock()
	defer f.mu.Unlock()

	for i, b := range f.blocks {
		if b.length < size {
			continue
		}
		ptr := b.offset
		if b.length == size {
			f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
		} else {
			f.blocks[i].offset += size
			f.blocks[i].length -= size
		}
		return ptr, nil
	}

	return 0, errors.OutOfMemory(errors.PhaseArena, size)
}

// Free returns a block. Frees outside the list's own bounds are ignored
// rather than trusted, a module cannot seed its free list with foreign
// offsets.
func (f *FreeList) Free(ptr, size uint32) {
	size = alignUp(size)
	if ptr < f.base || ptr+size > f.limit {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	i := 0
	for i < len(f.blocks) && f.blocks[i].offset < ptr {
		i++
	}

	// Reject a range overlapping a block already on the list: a double
	// free would insert an overlapping span and corrupt the bookkeeping.
	if i < len(f.blocks) && ptr+size > f.blocks[i].offset {
		return
	}
	if i > 0 && f.blocks[i-1].offset+f.blocks[i-1].length > ptr {
		return
	}

	f.blocks = append(f.blocks, span{})
	copy(f.blocks[i+1:], f.blocks[i:])
	f.blocks[i] = span{offset: ptr, length: size}

	if i+1 < len(f.blocks) && f.blocks[i].offset+f.blocks[i].length == f.blocks[i+1].offset {
		f.blocks[i].length += f.blocks[i+1].length
		f.blocks = append(f.blocks[:i+1], f.blocks[i+2:]...)
	}
	if i > 0 && f.blocks[i-1].offset+f.blocks[i-1].length == f.blocks[i].offset {
		f.blocks[i-1].length += f.blocks[i].length
		f.blocks = append(f.blocks[:i], f.blocks[i+1:]...)
	}
}

// FreeBytes returns the total unallocated bytes.
func (f *FreeList) FreeBytes() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()

	var total uint32
	for _, b := range f.blocks {
		total += b.length
	}
	return total
}
