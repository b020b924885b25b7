// Package arena partitions the shared linear memory region into disjoint
// spans handed out to modules and component columns.
//
// All offsets are allocator-derived: no region is ever assigned a fixed
// absolute offset, and growth is checked against actual neighbor occupancy.
// Grow extends a region in place only; when the adjacent bytes are occupied
// it fails with a region_growth_blocked error and the caller relocates by
// reserving a new span, copying, and releasing the old one. Growth never
// overwrites a neighboring region's bytes.
package arena
