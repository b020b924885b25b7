package store

import (
	"math"
	"sort"
	"sync"

	"github.com/wasmhive/hive"
	"github.com/wasmhive/hive/arena"
	"github.com/wasmhive/hive/component"
	"github.com/wasmhive/hive/errors"
)

// DefaultCapacity is the row capacity a column starts with.
const DefaultCapacity = 16

// columnOwner is the arena owner recorded for column spans.
const columnOwner = "store"

// ColumnInfo is the queryable shape of a column. BaseOffset is only valid
// until the next growth-triggering insert on the same column.
type ColumnInfo struct {
	ID         component.ID
	BaseOffset uint32
	Stride     uint32
	Rows       uint32 // populated entity slots
	Capacity   uint32 // allocated slots
}

type column struct {
	region   arena.Region
	entities []uint64
	occupied []bool
	freeRows []uint32
	stride   uint32
	capacity uint32
	rows     uint32
	next     uint32 // append cursor past the highest slot ever used
}

// Store owns the columns. One Store serves every module of a host.
type Store struct {
	mem      hive.Memory
	arena    *arena.Arena
	registry *component.Registry
	cols     map[component.ID]*column
	initCap  uint32
	mu       sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithInitialCapacity overrides the row capacity new columns start with.
func WithInitialCapacity(rows uint32) Option {
	return func(s *Store) {
		if rows > 0 {
			s.initCap = rows
		}
	}
}

// New creates a store carving columns from a via mem.
func New(mem hive.Memory, a *arena.Arena, reg *component.Registry, opts ...Option) *Store {
	s := &Store{
		mem:      mem,
		arena:    a,
		registry: reg,
		cols:     make(map[component.ID]*column),
		initCap:  DefaultCapacity,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureColumn creates the column for id with the default capacity if none
// exists and returns its current shape.
func (s *Store) EnsureColumn(id component.ID) (ColumnInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.ensureLocked(id)
	if err != nil {
		return ColumnInfo{}, err
	}
	return s.infoLocked(id, c), nil
}

func (s *Store) ensureLocked(id component.ID) (*column, error) {
	if c, ok := s.cols[id]; ok {
		return c, nil
	}

	desc, err := s.registry.Describe(id)
	if err != nil {
		return nil, err
	}

	size, err := spanBytes(desc.Size, uint64(s.initCap))
	if err != nil {
		return nil, err
	}
	region, err := s.arena.Reserve(columnOwner, arena.KindColumn, size)
	if err != nil {
		return nil, err
	}

	// Zero the span: reused spans must not leak old bytes, and the write
	// commits the range in growable backing memories.
	if err := s.mem.Write(region.Offset, make([]byte, region.Length)); err != nil {
		s.arena.Release(region)
		return nil, errors.Wrap(errors.PhaseStore, errors.KindOutOfMemory, err, "commit column span")
	}

	c := &column{
		region:   region,
		stride:   desc.Size,
		capacity: s.initCap,
		entities: make([]uint64, s.initCap),
		occupied: make([]bool, s.initCap),
	}
	s.cols[id] = c
	return c, nil
}

// spanBytes computes stride*rows without uint32 wraparound. Strides come
// straight from guest registrations, so an unchecked product could reserve
// a span far smaller than the shape reported back to callers.
func spanBytes(stride uint32, rows uint64) (uint32, error) {
	bytes := uint64(stride) * rows
	if bytes > math.MaxUint32 {
		return 0, errors.New(errors.PhaseStore, errors.KindOutOfMemory).
			Detail("column span %d x %d rows exceeds addressable memory", stride, rows).
			Build()
	}
	return uint32(bytes), nil
}

func (s *Store) infoLocked(id component.ID, c *column) ColumnInfo {
	return ColumnInfo{
		ID:         id,
		BaseOffset: c.region.Offset,
		Stride:     c.stride,
		Rows:       c.rows,
		Capacity:   c.capacity,
	}
}

// InsertRow populates a slot for entity and returns its row index. The
// first free-listed slot is reused; otherwise the row is appended, doubling
// capacity when full. Doubling relocates the column, so any base offset
// fetched before this call must be re-queried.
func (s *Store) InsertRow(id component.ID, entity uint64) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.ensureLocked(id)
	if err != nil {
		return 0, err
	}

	var row uint32
	if n := len(c.freeRows); n > 0 {
		row = c.freeRows[n-1]
		c.freeRows = c.freeRows[:n-1]
	} else {
		if c.next == c.capacity {
			if err := s.growLocked(c); err != nil {
				return 0, err
			}
		}
		row = c.next
		c.next++
	}

	c.entities[row] = entity
	c.occupied[row] = true
	c.rows++
	return row, nil
}

// growLocked doubles the column's capacity. In-place extension is tried
// first; when a neighbor blocks it the column relocates to a fresh span and
// the old span is released.
func (s *Store) growLocked(c *column) error {
	additional, err := spanBytes(c.stride, uint64(c.capacity))
	if err != nil {
		return err
	}

	grown, err := s.arena.Grow(c.region, additional)
	if err == nil {
		oldEnd := c.region.End()
		// Keep the column consistent with the arena even if the commit
		// fails: the extra bytes then simply stay unused.
		c.region = grown
		if werr := s.mem.Write(oldEnd, make([]byte, grown.End()-oldEnd)); werr != nil {
			return errors.Wrap(errors.PhaseStore, errors.KindOutOfMemory, werr, "commit grown span")
		}
		c.capacity *= 2
		c.entities = append(c.entities, make([]uint64, c.capacity-uint32(len(c.entities)))...)
		c.occupied = append(c.occupied, make([]bool, c.capacity-uint32(len(c.occupied)))...)
		return nil
	}
	if !errors.IsKind(err, errors.KindRegionGrowthBlocked) {
		return err
	}

	size, err := spanBytes(c.stride, uint64(c.capacity)*2)
	if err != nil {
		return err
	}
	fresh, err := s.arena.Reserve(columnOwner, arena.KindColumn, size)
	if err != nil {
		return err
	}

	if werr := s.mem.Write(fresh.Offset, make([]byte, fresh.Length)); werr != nil {
		s.arena.Release(fresh)
		return errors.Wrap(errors.PhaseStore, errors.KindOutOfMemory, werr, "commit relocated span")
	}

	used := c.next * c.stride
	if used > 0 {
		data, rerr := s.mem.Read(c.region.Offset, used)
		if rerr != nil {
			s.arena.Release(fresh)
			return errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, rerr, "read column during relocation")
		}
		if werr := s.mem.Write(fresh.Offset, data); werr != nil {
			s.arena.Release(fresh)
			return errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, werr, "write column during relocation")
		}
	}

	if err := s.arena.Release(c.region); err != nil {
		return err
	}

	c.region = fresh
	c.capacity *= 2
	c.entities = append(c.entities, make([]uint64, c.capacity-uint32(len(c.entities)))...)
	c.occupied = append(c.occupied, make([]bool, c.capacity-uint32(len(c.occupied)))...)
	return nil
}

// RemoveRow vacates a populated slot. The slot's bytes are zeroed and its
// index is pushed on the column free list; other row indices are unaffected.
func (s *Store) RemoveRow(id component.ID, row uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cols[id]
	if !ok {
		return errors.UnknownComponent(errors.PhaseStore, uint32(id))
	}
	if row >= c.next || !c.occupied[row] {
		return errors.InvalidInput(errors.PhaseStore, "row index is not populated")
	}

	zero := make([]byte, c.stride)
	if err := s.mem.Write(c.region.Offset+row*c.stride, zero); err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "zero removed row")
	}

	c.occupied[row] = false
	c.entities[row] = 0
	c.freeRows = append(c.freeRows, row)
	c.rows--
	return nil
}

// Column returns the current shape of the column for id.
func (s *Store) Column(id component.ID) (ColumnInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cols[id]
	if !ok {
		return ColumnInfo{}, errors.UnknownComponent(errors.PhaseStore, uint32(id))
	}
	return s.infoLocked(id, c), nil
}

// ColumnByName resolves name through the registry and returns the column.
func (s *Store) ColumnByName(name string) (ColumnInfo, error) {
	id, ok := s.registry.Lookup(name)
	if !ok {
		return ColumnInfo{}, errors.NotFound(errors.PhaseStore, "component", name)
	}
	return s.Column(id)
}

// RowCount returns the number of populated slots. It is always the explicit
// insert/remove ledger, never derived from byte lengths.
func (s *Store) RowCount(id component.ID) (uint32, error) {
	info, err := s.Column(id)
	if err != nil {
		return 0, err
	}
	return info.Rows, nil
}

// Stride returns the column's element stride from the descriptor.
func (s *Store) Stride(id component.ID) (uint32, error) {
	desc, err := s.registry.Describe(id)
	if err != nil {
		return 0, err
	}
	return desc.Size, nil
}

// EntityAt reports which entity populates a row.
func (s *Store) EntityAt(id component.ID, row uint32) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cols[id]
	if !ok || row >= c.next || !c.occupied[row] {
		return 0, false
	}
	return c.entities[row], true
}

// PopulatedRows returns the indices of occupied slots in ascending order.
// With free-list removal the populated slots need not be the first Rows
// indices, so iterating 0..Rows-1 skips live rows and visits vacated ones.
func (s *Store) PopulatedRows(id component.ID) ([]uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cols[id]
	if !ok {
		return nil, errors.UnknownComponent(errors.PhaseStore, uint32(id))
	}
	rows := make([]uint32, 0, c.rows)
	for i := uint32(0); i < c.next; i++ {
		if c.occupied[i] {
			rows = append(rows, i)
		}
	}
	return rows, nil
}

// RowData reads the raw bytes of one populated row.
func (s *Store) RowData(id component.ID, row uint32) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cols[id]
	if !ok {
		return nil, errors.UnknownComponent(errors.PhaseStore, uint32(id))
	}
	if row >= c.next || !c.occupied[row] {
		return nil, errors.InvalidInput(errors.PhaseStore, "row index is not populated")
	}
	return s.mem.Read(c.region.Offset+row*c.stride, c.stride)
}

// WriteRow writes the raw bytes of one populated row. len(data) must equal
// the column stride.
func (s *Store) WriteRow(id component.ID, row uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.cols[id]
	if !ok {
		return errors.UnknownComponent(errors.PhaseStore, uint32(id))
	}
	if row >= c.next || !c.occupied[row] {
		return errors.InvalidInput(errors.PhaseStore, "row index is not populated")
	}
	if uint32(len(data)) != c.stride {
		return errors.InvalidInput(errors.PhaseStore, "data length does not match column stride")
	}
	return s.mem.Write(c.region.Offset+row*c.stride, data)
}

// Columns returns a snapshot of every column's shape.
func (s *Store) Columns() []ColumnInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ColumnInfo, 0, len(s.cols))
	for id, c := range s.cols {
		out = append(out, s.infoLocked(id, c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
