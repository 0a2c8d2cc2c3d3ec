package pool

import (
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
)

// Pool errors.
var (
	// ErrOutOfMemory is returned when no free block fits even after compaction.
	ErrOutOfMemory = errors.New("pool: out of memory")

	// ErrStaleHandle is returned for a handle whose generation no longer
	// matches, or that belongs to a different pool.
	ErrStaleHandle = errors.New("pool: stale handle")

	// ErrInvalidSize is returned for zero-byte allocations.
	ErrInvalidSize = errors.New("pool: invalid allocation size")

	// ErrInvalidConfig is returned by New for unusable settings.
	ErrInvalidConfig = errors.New("pool: invalid config")
)

// Defaults.
const (
	// DefaultCapacity is 100 MiB.
	DefaultCapacity = 100 << 20

	// DefaultAlignment keeps vertex offsets 4-byte aligned, as required for
	// buffer copies.
	DefaultAlignment = 4

	// DefaultFragmentationThreshold triggers compaction when the largest free
	// block is less than half of the free bytes.
	DefaultFragmentationThreshold = 0.5
)

// Config configures a Pool.
type Config struct {
	Capacity               uint64  `mapstructure:"capacity" yaml:"capacity"`
	Alignment              uint64  `mapstructure:"alignment" yaml:"alignment"`
	FragmentationThreshold float64 `mapstructure:"fragmentation_threshold" yaml:"fragmentation_threshold"`
}

// DefaultConfig returns a 100 MiB pool with 4-byte alignment and a 0.5
// compaction threshold.
func DefaultConfig() Config {
	return Config{
		Capacity:               DefaultCapacity,
		Alignment:              DefaultAlignment,
		FragmentationThreshold: DefaultFragmentationThreshold,
	}
}

// Relocator moves bytes inside the arena during compaction. Ranges may
// overlap; dst is always lower than src.
type Relocator interface {
	Move(dst, src, size uint64) error
}

// Handle identifies one allocation. The zero Handle is never valid.
type Handle struct {
	pool uint32
	slot uint32
	gen  uint32
	size uint64
}

// Size returns the requested size in bytes.
func (h Handle) Size() uint64 { return h.size }

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.pool == 0 }

func (h Handle) String() string {
	return fmt.Sprintf("Handle(pool=%d slot=%d gen=%d size=%d)", h.pool, h.slot, h.gen, h.size)
}

// Region is the location of a live allocation inside the arena.
type Region struct {
	Offset uint64
	Size   uint64
}

type block struct {
	offset uint64
	size   uint64
	used   bool
	slot   uint32
}

type slot struct {
	gen    uint32
	live   bool
	offset uint64
	size   uint64
	alloc  uint64
}

var nextPoolID atomic.Uint32

// Pool is a best-fit allocator over [0, Capacity).
type Pool struct {
	id    uint32
	cfg   Config
	reloc Relocator

	blocks    []block
	slots     []slot
	freeSlots []uint32

	used          uint64
	allocations   uint64
	deallocations uint64
	failures      uint64
	compactions   uint64
	bytesMoved    uint64
}

// New returns an empty pool. reloc may be nil when the arena contents do not
// need to survive compaction.
func New(cfg Config, reloc Relocator) (*Pool, error) {
	if cfg.Alignment == 0 {
		cfg.Alignment = DefaultAlignment
	}
	if cfg.FragmentationThreshold == 0 {
		cfg.FragmentationThreshold = DefaultFragmentationThreshold
	}
	switch {
	case cfg.Capacity == 0:
		return nil, fmt.Errorf("%w: zero capacity", ErrInvalidConfig)
	case cfg.Alignment&(cfg.Alignment-1) != 0:
		return nil, fmt.Errorf("%w: alignment %d is not a power of two", ErrInvalidConfig, cfg.Alignment)
	case cfg.FragmentationThreshold < 0 || cfg.FragmentationThreshold > 1:
		return nil, fmt.Errorf("%w: fragmentation threshold %v", ErrInvalidConfig, cfg.FragmentationThreshold)
	}
	cfg.Capacity = alignDown(cfg.Capacity, cfg.Alignment)
	if cfg.Capacity == 0 {
		return nil, fmt.Errorf("%w: capacity below alignment", ErrInvalidConfig)
	}
	return &Pool{
		id:     nextPoolID.Add(1),
		cfg:    cfg,
		reloc:  reloc,
		blocks: []block{{offset: 0, size: cfg.Capacity}},
	}, nil
}

// Capacity returns the arena size in bytes.
func (p *Pool) Capacity() uint64 { return p.cfg.Capacity }

// Allocate reserves size bytes. If no free block fits, the pool compacts and
// retries once before returning ErrOutOfMemory. A split that leaves the pool
// too fragmented triggers compaction as well; the returned handle stays valid
// even if that compaction fails.
func (p *Pool) Allocate(size uint64) (Handle, error) {
	if size == 0 {
		return Handle{}, ErrInvalidSize
	}
	need := alignUp(size, p.cfg.Alignment)
	if need < size || need > p.cfg.Capacity {
		p.failures++
		return Handle{}, fmt.Errorf("%w: %d bytes exceeds capacity %d", ErrOutOfMemory, size, p.cfg.Capacity)
	}

	i := p.bestFit(need)
	if i < 0 {
		if err := p.compact(); err != nil {
			p.failures++
			return Handle{}, fmt.Errorf("pool: compact before retry: %w", err)
		}
		i = p.bestFit(need)
	}
	if i < 0 {
		p.failures++
		return Handle{}, fmt.Errorf("%w: %d bytes requested, %d free, largest block %d",
			ErrOutOfMemory, size, p.cfg.Capacity-p.used, p.largestFree())
	}

	s := p.takeSlot()
	b := &p.blocks[i]
	if b.size > need {
		rest := block{offset: b.offset + need, size: b.size - need}
		b.size = need
		p.blocks = append(p.blocks, block{})
		copy(p.blocks[i+2:], p.blocks[i+1:])
		p.blocks[i+1] = rest
		b = &p.blocks[i]
	}
	b.used = true
	b.slot = s

	sl := &p.slots[s]
	sl.live = true
	sl.offset = b.offset
	sl.size = size
	sl.alloc = need

	p.used += need
	p.allocations++
	h := Handle{pool: p.id, slot: s, gen: sl.gen, size: size}

	if p.shouldCompact() {
		if err := p.compact(); err != nil {
			slogger().Warn("pool: automatic compaction after allocate", "err", err)
		}
	}
	return h, nil
}

// Deallocate releases h, merges the freed block with free neighbours and
// invalidates h. Compaction runs if the pool became too fragmented.
func (p *Pool) Deallocate(h Handle) error {
	sl, err := p.resolve(h)
	if err != nil {
		return err
	}
	i := p.blockAt(sl.offset)
	if i < 0 || !p.blocks[i].used || p.blocks[i].slot != h.slot {
		return fmt.Errorf("pool: block list out of sync for %v", h)
	}

	p.blocks[i].used = false
	p.used -= sl.alloc
	sl.live = false
	sl.gen++
	p.freeSlots = append(p.freeSlots, h.slot)
	p.deallocations++

	p.mergeAround(i)

	if p.shouldCompact() {
		if err := p.compact(); err != nil {
			return fmt.Errorf("pool: automatic compaction: %w", err)
		}
	}
	return nil
}

// Lookup returns the current region of h. The offset may change after
// compaction, so callers must look it up again each frame.
func (p *Pool) Lookup(h Handle) (Region, error) {
	sl, err := p.resolve(h)
	if err != nil {
		return Region{}, err
	}
	return Region{Offset: sl.offset, Size: sl.size}, nil
}

// Valid reports whether h refers to a live allocation of this pool.
func (p *Pool) Valid(h Handle) bool {
	_, err := p.resolve(h)
	return err == nil
}

// Compact slides every used block towards offset 0 so that all free space
// forms one block at the end of the arena.
func (p *Pool) Compact() error { return p.compact() }

// Fragmentation returns largest_free_block / total_free, or 1 when nothing
// is free.
func (p *Pool) Fragmentation() float64 {
	free := p.cfg.Capacity - p.used
	if free == 0 {
		return 1
	}
	return float64(p.largestFree()) / float64(free)
}

// Reset frees every allocation, invalidating all outstanding handles.
func (p *Pool) Reset() {
	for i := range p.slots {
		if p.slots[i].live {
			p.slots[i].live = false
			p.slots[i].gen++
			p.freeSlots = append(p.freeSlots, uint32(i))
		}
	}
	p.blocks = p.blocks[:1]
	p.blocks[0] = block{offset: 0, size: p.cfg.Capacity}
	p.used = 0
}

func (p *Pool) resolve(h Handle) (*slot, error) {
	if h.pool != p.id || int(h.slot) >= len(p.slots) {
		return nil, fmt.Errorf("%w: %v", ErrStaleHandle, h)
	}
	sl := &p.slots[h.slot]
	if !sl.live || sl.gen != h.gen {
		return nil, fmt.Errorf("%w: %v (current generation %d)", ErrStaleHandle, h, sl.gen)
	}
	return sl, nil
}

func (p *Pool) takeSlot() uint32 {
	if n := len(p.freeSlots); n > 0 {
		s := p.freeSlots[n-1]
		p.freeSlots = p.freeSlots[:n-1]
		return s
	}
	p.slots = append(p.slots, slot{})
	return uint32(len(p.slots) - 1)
}

// bestFit returns the index of the smallest free block of at least need
// bytes, preferring the lowest offset on ties, or -1.
func (p *Pool) bestFit(need uint64) int {
	best := -1
	for i := range p.blocks {
		b := &p.blocks[i]
		if b.used || b.size < need {
			continue
		}
		if best < 0 || b.size < p.blocks[best].size {
			best = i
			if b.size == need {
				break
			}
		}
	}
	return best
}

func (p *Pool) blockAt(offset uint64) int {
	i := sort.Search(len(p.blocks), func(i int) bool { return p.blocks[i].offset >= offset })
	if i < len(p.blocks) && p.blocks[i].offset == offset {
		return i
	}
	return -1
}

func (p *Pool) mergeAround(i int) {
	if i+1 < len(p.blocks) && !p.blocks[i+1].used {
		p.blocks[i].size += p.blocks[i+1].size
		p.blocks = append(p.blocks[:i+1], p.blocks[i+2:]...)
	}
	if i > 0 && !p.blocks[i-1].used {
		p.blocks[i-1].size += p.blocks[i].size
		p.blocks = append(p.blocks[:i], p.blocks[i+1:]...)
	}
}

func (p *Pool) largestFree() uint64 {
	var largest uint64
	for _, b := range p.blocks {
		if !b.used && b.size > largest {
			largest = b.size
		}
	}
	return largest
}

func (p *Pool) freeBlocks() int {
	n := 0
	for _, b := range p.blocks {
		if !b.used {
			n++
		}
	}
	return n
}

// isCompact reports whether no free block precedes a used one.
func (p *Pool) isCompact() bool {
	seenFree := false
	for _, b := range p.blocks {
		if !b.used {
			seenFree = true
		} else if seenFree {
			return false
		}
	}
	return true
}

func (p *Pool) shouldCompact() bool {
	return p.freeBlocks() > 1 && p.Fragmentation() < p.cfg.FragmentationThreshold
}

func (p *Pool) compact() error {
	if p.isCompact() {
		return nil
	}

	out := make([]block, 0, len(p.blocks))
	var cursor uint64
	var moveErr error
	for idx, b := range p.blocks {
		if !b.used {
			continue
		}
		if moveErr == nil && b.offset != cursor {
			if p.reloc != nil {
				moveErr = p.reloc.Move(cursor, b.offset, b.size)
			}
			if moveErr == nil {
				p.bytesMoved += b.size
				p.slots[b.slot].offset = cursor
				b.offset = cursor
			}
		}
		if moveErr != nil {
			// Keep the rest where it is; describe the gap as free space.
			if b.offset > cursor {
				out = append(out, block{offset: cursor, size: b.offset - cursor})
			}
			out = append(out, p.blocks[idx:]...)
			p.blocks = normalize(out)
			return moveErr
		}
		out = append(out, b)
		cursor = b.offset + b.size
	}
	if cursor < p.cfg.Capacity {
		out = append(out, block{offset: cursor, size: p.cfg.Capacity - cursor})
	}
	p.blocks = out
	p.compactions++
	slogger().Debug("pool: compacted",
		"used", p.used, "capacity", p.cfg.Capacity, "moved_total", p.bytesMoved)
	return nil
}

// normalize merges adjacent free blocks left behind by a partial compaction.
func normalize(bs []block) []block {
	out := bs[:0]
	for _, b := range bs {
		if n := len(out); n > 0 && !b.used && !out[n-1].used {
			out[n-1].size += b.size
			continue
		}
		out = append(out, b)
	}
	return out
}

func alignUp(v, a uint64) uint64   { return (v + a - 1) &^ (a - 1) }
func alignDown(v, a uint64) uint64 { return v &^ (a - 1) }
