// Package pool sub-allocates a single fixed-capacity buffer arena.
//
// The allocator keeps an offset-ordered block list and picks the smallest
// free block that fits (best fit). Freed blocks merge with free neighbours
// immediately. When the fragmentation ratio (largest free block / total free
// bytes) drops below the configured threshold, or when an allocation cannot
// be satisfied, the pool compacts: used blocks slide towards offset 0 and the
// free space coalesces into one block at the end. Byte movement during
// compaction is delegated to a Relocator supplied by the owning backend.
//
// Handles carry a pool id, a slot index and a generation. Deallocating a
// handle bumps its slot's generation, so any later use of the old handle (or
// of a handle from another pool) fails with ErrStaleHandle.
//
// A Pool is owned by the render loop and is not safe for concurrent use.
package pool
