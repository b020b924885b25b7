// Package store owns one contiguous, stride-addressed column per component
// identifier inside the shared linear memory.
//
// Strides are always read back from the component descriptor; no consumer
// is ever required (or able) to recover a row count by dividing a raw byte
// length by an assumed element size.
//
// Capacity growth is geometric (doubling) and may relocate a column to a
// new arena span, which invalidates every previously fetched base offset.
// Consumers must re-query Column after any insert that could have grown
// the column.
//
// Row removal policy: a per-column free list with stable indices. A removed
// slot is zeroed and pushed on the free list for reuse by later inserts;
// surviving row indices never shift, so external references to an entity's
// row survive removals elsewhere in the same column.
package store
