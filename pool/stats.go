package pool

import "fmt"

// Stats is a point-in-time snapshot of pool usage.
type Stats struct {
	Capacity      uint64
	UsedBytes     uint64
	FreeBytes     uint64
	LargestFree   uint64
	FreeBlocks    int
	ActiveHandles int

	Allocations   uint64
	Deallocations uint64
	Failures      uint64
	Compactions   uint64
	BytesMoved    uint64

	// Fragmentation is largest_free / free, 1 when nothing is free.
	Fragmentation float64
}

// Utilization returns used / capacity.
func (s Stats) Utilization() float64 {
	if s.Capacity == 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.Capacity)
}

func (s Stats) String() string {
	return fmt.Sprintf("Pool[%.1f%% used, %d/%d KB, %d handles, %d free blocks, frag %.2f, %d compactions]",
		s.Utilization()*100,
		s.UsedBytes/1024,
		s.Capacity/1024,
		s.ActiveHandles,
		s.FreeBlocks,
		s.Fragmentation,
		s.Compactions)
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Capacity:      p.cfg.Capacity,
		UsedBytes:     p.used,
		FreeBytes:     p.cfg.Capacity - p.used,
		LargestFree:   p.largestFree(),
		FreeBlocks:    p.freeBlocks(),
		ActiveHandles: len(p.slots) - len(p.freeSlots),
		Allocations:   p.allocations,
		Deallocations: p.deallocations,
		Failures:      p.failures,
		Compactions:   p.compactions,
		BytesMoved:    p.bytesMoved,
		Fragmentation: p.Fragmentation(),
	}
}
