package arena

import (
	"sort"
	"sync"

	"github.com/wasmhive/hive/errors"
)

// Alignment is the boundary every span offset and length is rounded to.
const Alignment = 8

// RegionKind identifies what a reserved region is used for.
type RegionKind uint8

const (
	KindHeap RegionKind = iota
	KindStack
	KindColumn
)

func (k RegionKind) String() string {
	switch k {
	case KindHeap:
		return "heap"
	case KindStack:
		return "stack"
	case KindColumn:
		return "column"
	default:
		return "unknown"
	}
}

// Region is a reserved span of the shared memory.
type Region struct {
	Owner  string
	Offset uint32
	Length uint32
	Kind   RegionKind
}

// End returns the first offset past the region.
func (r Region) End() uint32 {
	return r.Offset + r.Length
}

type span struct {
	offset uint32
	length uint32
}

// Arena is a first-fit free-list allocator over one linear memory region.
type Arena struct {
	live map[uint32]Region
	free []span // sorted by offset, adjacent spans coalesced
	size uint32
	mu   sync.Mutex
}

// New creates an arena managing size bytes starting at offset zero.
// The first Alignment bytes are kept reserved so that offset 0 stays
// available as a null sentinel for plugins.
func New(size uint32) *Arena {
	size = alignDown(size)
	a := &Arena{
		size: size,
		live: make(map[uint32]Region),
	}
	if size > Alignment {
		a.free = []span{{offset: Alignment, length: size - Alignment}}
	}
	return a
}

func alignUp(v uint32) uint32 {
	return (v + Alignment - 1) &^ (Alignment - 1)
}

func alignDown(v uint32) uint32 {
	return v &^ (Alignment - 1)
}

// Size returns the total managed size in bytes.
func (a *Arena) Size() uint32 {
	return a.size
}

// Reserve carves a new disjoint region of at least size bytes.
func (a *Arena) Reserve(owner string, kind RegionKind, size uint32) (Region, error) {
	if size == 0 {
		return Region{}, errors.InvalidInput(errors.PhaseArena, "reserve of zero bytes")
	}
	size = alignUp(size)

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, s := range a.free {
		if s.length < size {
			continue
		}
		r := Region{
			Owner:  owner,
			Kind:   kind,
			Offset: s.offset,
			Length: size,
		}
		if s.length == size {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i].offset += size
			a.free[i].length -= size
		}
		a.live[r.Offset] = r
		return r, nil
	}

	return Region{}, errors.OutOfMemory(errors.PhaseArena, size)
}

// Grow extends r in place by at least additional bytes and returns the
// updated region. If the bytes following r are not a sufficiently large
// free span the call fails with a region_growth_blocked error; the caller
// is expected to relocate via Reserve, copy, and Release.
func (a *Arena) Grow(r Region, additional uint32) (Region, error) {
	if additional == 0 {
		return r, nil
	}
	additional = alignUp(additional)

	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.live[r.Offset]
	if !ok || cur.Length != r.Length {
		return Region{}, errors.New(errors.PhaseArena, errors.KindNotFound).
			Detail("region [%d,%d) is not live", r.Offset, r.End()).
			Build()
	}

	end := cur.End()
	for i, s := range a.free {
		if s.offset != end {
			continue
		}
		if s.length < additional {
			break
		}
		if s.length == additional {
			a.free = append(a.free[:i], a.free[i+1:]...)
		} else {
			a.free[i].offset += additional
			a.free[i].length -= additional
		}
		cur.Length += additional
		a.live[cur.Offset] = cur
		return cur, nil
	}

	return Region{}, errors.GrowthBlocked(cur.Offset, cur.Length, additional)
}

// Release returns the region's span to the free list, coalescing with
// adjacent free spans.
func (a *Arena) Release(r Region) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.live[r.Offset]
	if !ok {
		return errors.New(errors.PhaseArena, errors.KindNotFound).
			Detail("region [%d,%d) is not live", r.Offset, r.End()).
			Build()
	}

	delete(a.live, cur.Offset)
	a.insertFree(span{offset: cur.Offset, length: cur.Length})
	return nil
}

// insertFree adds a span keeping the list sorted and coalesced.
// Caller holds a.mu.
func (a *Arena) insertFree(s span) {
	i := sort.Search(len(a.free), func(i int) bool {
		return a.free[i].offset > s.offset
	})
	a.free = append(a.free, span{})
	copy(a.free[i+1:], a.free[i:])
	a.free[i] = s

	// Merge with successor first so the predecessor merge sees the result.
	if i+1 < len(a.free) && a.free[i].offset+a.free[i].length == a.free[i+1].offset {
		a.free[i].length += a.free[i+1].length
		a.free = append(a.free[:i+1], a.free[i+2:]...)
	}
	if i > 0 && a.free[i-1].offset+a.free[i-1].length == a.free[i].offset {
		a.free[i-1].length += a.free[i].length
		a.free = append(a.free[:i], a.free[i+1:]...)
	}
}

// FreeBytes returns the total bytes currently on the free list.
func (a *Arena) FreeBytes() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total uint32
	for _, s := range a.free {
		total += s.length
	}
	return total
}

// LargestFreeSpan returns the size of the largest contiguous free span.
func (a *Arena) LargestFreeSpan() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	var largest uint32
	for _, s := range a.free {
		if s.length > largest {
			largest = s.length
		}
	}
	return largest
}

// Regions returns a snapshot of all live regions sorted by offset.
func (a *Arena) Regions() []Region {
	a.mu.Lock()
	defer a.mu.Unlock()

	regions := make([]Region, 0, len(a.live))
	for _, r := range a.live {
		regions = append(regions, r)
	}
	sort.Slice(regions, func(i, j int) bool {
		return regions[i].Offset < regions[j].Offset
	})
	return regions
}

// ReleaseOwner releases every live region reserved by owner.
func (a *Arena) ReleaseOwner(owner string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for off, r := range a.live {
		if r.Owner != owner {
			continue
		}
		delete(a.live, off)
		a.insertFree(span{offset: r.Offset, length: r.Length})
	}
}
