// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/chart/pool"
)

// State is the lifecycle position of a Surface.
type State int32

const (
	StateUninitialized State = iota
	StateAttempting
	StateActive
	StateLost
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateAttempting:
		return "attempting"
	case StateActive:
		return "active"
	case StateLost:
		return "lost"
	case StateTerminal:
		return "terminal"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// PresentMode is how the host paces presented frames.
type PresentMode uint8

const (
	PresentFifo PresentMode = iota
	PresentMailbox
	PresentImmediate
)

func (m PresentMode) String() string {
	switch m {
	case PresentFifo:
		return "fifo"
	case PresentMailbox:
		return "mailbox"
	case PresentImmediate:
		return "immediate"
	}
	return fmt.Sprintf("PresentMode(%d)", uint8(m))
}

// SurfaceConfig describes the active surface. It is replaced as a whole on
// every reconfiguration and backend switch.
type SurfaceConfig struct {
	Backend     Tag
	Format      gputypes.TextureFormat
	Width       uint32
	Height      uint32
	PresentMode PresentMode
}

// Target is what Initialize renders into.
type Target struct {
	Host        Host
	Width       uint32
	Height      uint32
	PresentMode PresentMode
}

// DefaultAcquireTimeout bounds device acquisition for one backend.
const DefaultAcquireTimeout = 3 * time.Second

type surfaceOptions struct {
	acquireTimeout time.Duration
	fenceTimeout   time.Duration
	pool           pool.Config
}

// SurfaceOption configures a Surface.
type SurfaceOption func(*surfaceOptions)

// WithAcquireTimeout bounds how long one backend may take to produce a
// device. Zero disables the bound.
func WithAcquireTimeout(d time.Duration) SurfaceOption {
	return func(o *surfaceOptions) { o.acquireTimeout = d }
}

// WithFenceTimeout bounds how long a GPU frame may take before the surface
// is considered lost.
func WithFenceTimeout(d time.Duration) SurfaceOption {
	return func(o *surfaceOptions) {
		if d > 0 {
			o.fenceTimeout = d
		}
	}
}

// WithPoolConfig sets the vertex arena size and allocator policy.
func WithPoolConfig(c pool.Config) SurfaceOption {
	return func(o *surfaceOptions) { o.pool = c }
}

// PassResult describes one executed render pass.
type PassResult struct {
	Backend   Tag
	DrawCalls int
	Vertices  int
	Bytes     uint64
}

// Surface owns the active backend device, its vertex arena and the fallback
// chain. It is driven from a single render loop; only State is safe to call
// concurrently.
type Surface struct {
	opts  surfaceOptions
	state atomic.Int32

	cfg    SurfaceConfig
	target Target
	dev    *device
	pool   *pool.Pool
	verts  []byte
	epoch  uint64
	closed bool

	// Session fallback bookkeeping. A tag in failed is never attempted
	// again; after a loss, candidates at or above lost are skipped.
	failed   map[Tag]bool
	lost     Tag
	attempts []Attempt

	terminalErr  error
	terminalCaps CapabilitySet
}

// NewSurface returns an uninitialized surface.
func NewSurface(opts ...SurfaceOption) *Surface {
	o := surfaceOptions{
		acquireTimeout: DefaultAcquireTimeout,
		fenceTimeout:   defaultFenceTimeout,
		pool:           pool.DefaultConfig(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Surface{opts: o, failed: make(map[Tag]bool)}
}

// State returns the current lifecycle state.
func (s *Surface) State() State { return State(s.state.Load()) }

func (s *Surface) setState(st State) { s.state.Store(int32(st)) }

// Config returns the active surface configuration.
func (s *Surface) Config() SurfaceConfig { return s.cfg }

// Attempts returns every failed attempt and loss recorded this session, in
// order.
func (s *Surface) Attempts() []Attempt {
	out := make([]Attempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// Pool returns the vertex arena allocator of the active device, or nil.
// A new pool is created on every activation, so handles never outlive the
// device they were allocated on.
func (s *Surface) Pool() *pool.Pool { return s.pool }

// Epoch increments every time a backend becomes active.
func (s *Surface) Epoch() uint64 { return s.epoch }

// Initialize activates the first usable backend of priority. Failed
// candidates are recorded and skipped for the rest of the session. After a
// loss only backends ranked below the lost one are tried. When nothing is
// left the surface goes Terminal with an *ExhaustedError, and stays there
// until the host reports different capabilities.
func (s *Surface) Initialize(ctx context.Context, t Target, priority []Tag) error {
	if s.closed {
		return ErrNotActive
	}
	if t.Width == 0 || t.Height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, t.Width, t.Height)
	}

	caps := Detect(t.Host)
	switch s.State() {
	case StateActive:
		return nil
	case StateTerminal:
		if caps == s.terminalCaps {
			return s.terminalErr
		}
		slogger().Info("backend: host capabilities changed, restarting fallback chain", "caps", caps)
		s.failed = make(map[Tag]bool)
		s.lost = 0
		s.terminalErr = nil
	}

	prev := s.State()
	start := 0
	if s.lost != 0 {
		start = len(priority)
		for i, tag := range priority {
			if tag == s.lost {
				start = i + 1
				break
			}
		}
	}

	for _, tag := range priority[start:] {
		if err := ctx.Err(); err != nil {
			s.setState(prev)
			return err
		}
		if s.failed[tag] {
			continue
		}
		if !caps.Supports(tag) {
			s.attempts = append(s.attempts, Attempt{Backend: tag, Err: ErrNotSupported})
			continue
		}

		s.setState(StateAttempting)
		s.cfg = SurfaceConfig{Backend: tag}
		slogger().Info("backend: attempting", "backend", tag, "width", t.Width, "height", t.Height)

		if err := s.activate(ctx, tag, t); err != nil {
			s.failed[tag] = true
			s.attempts = append(s.attempts, Attempt{Backend: tag, Err: err})
			slogger().Warn("backend: attempt failed", "backend", tag, "err", err)
			continue
		}
		slogger().Info("backend: active", "backend", tag, "epoch", s.epoch)
		return nil
	}

	s.setState(StateTerminal)
	s.cfg = SurfaceConfig{}
	s.terminalCaps = caps
	s.terminalErr = &ExhaustedError{Attempts: s.Attempts()}
	slogger().Error("backend: no backend available", "err", s.terminalErr)
	return s.terminalErr
}

func (s *Surface) activate(ctx context.Context, tag Tag, t Target) error {
	dev, err := openDevice(ctx, tag, t, s.opts.pool.Capacity, s.opts)
	if err != nil {
		return err
	}
	p, err := pool.New(s.opts.pool, dev)
	if err != nil {
		dev.destroy()
		return deviceErr(tag, SurfaceCreation, err)
	}
	format := gputypes.TextureFormatRGBA8Unorm
	if tag != TagSoftware {
		format = gpuFormat
	}

	s.dev, s.pool, s.target = dev, p, t
	s.cfg = SurfaceConfig{
		Backend:     tag,
		Format:      format,
		Width:       t.Width,
		Height:      t.Height,
		PresentMode: t.PresentMode,
	}
	s.epoch++
	s.setState(StateActive)
	return nil
}

// Reconfigure resizes the active surface. Unchanged dimensions are a no-op.
// A failure to rebuild the targets loses the surface.
func (s *Surface) Reconfigure(width, height uint32) error {
	if s.State() != StateActive {
		return ErrNotActive
	}
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidDimensions, width, height)
	}
	if width == s.cfg.Width && height == s.cfg.Height {
		return nil
	}
	if err := s.dev.resize(width, height); err != nil {
		s.markLost(err)
		return fmt.Errorf("%w: %w", ErrSurfaceLost, err)
	}
	cfg := s.cfg
	cfg.Width, cfg.Height = width, height
	s.cfg = cfg
	s.target.Width, s.target.Height = width, height
	return nil
}

// RenderPass uploads f into the arena region of h, draws it and presents
// the result. Submission, fence and presentation failures mark the surface
// Lost and return an error wrapping ErrSurfaceLost; the next Initialize
// resumes below the lost backend.
func (s *Surface) RenderPass(f Frame, h pool.Handle) (PassResult, error) {
	if s.State() != StateActive {
		return PassResult{}, ErrNotActive
	}
	region, err := s.pool.Lookup(h)
	if err != nil {
		return PassResult{}, err
	}
	need := VertexBytes(len(f.Points))
	if need > region.Size {
		return PassResult{}, fmt.Errorf("%w: frame needs %d bytes, buffer holds %d", pool.ErrInvalidSize, need, region.Size)
	}

	s.verts = tessellate(s.verts[:0], f, s.cfg.Width, s.cfg.Height)
	if len(s.verts) > 0 {
		if err := s.dev.write(region.Offset, s.verts); err != nil {
			return PassResult{}, err
		}
	}
	count := uint32(len(s.verts) / VertexStride)

	img, err := s.dev.draw(region.Offset, count, f)
	if err != nil {
		if errors.Is(err, ErrSurfaceLost) {
			s.markLost(err)
		}
		return PassResult{}, err
	}
	if err := s.target.Host.Presenter().Present(img); err != nil {
		err = fmt.Errorf("%w: present: %w", ErrSurfaceLost, err)
		s.markLost(err)
		return PassResult{}, err
	}

	res := PassResult{Backend: s.cfg.Backend, Vertices: int(count), Bytes: uint64(len(s.verts))}
	if count > 0 {
		res.DrawCalls = 1
	}
	return res, nil
}

// markLost releases the device and remembers which backend went away.
func (s *Surface) markLost(cause error) {
	tag := s.cfg.Backend
	slogger().Warn("backend: surface lost", "backend", tag, "err", cause)
	s.attempts = append(s.attempts, Attempt{Backend: tag, Err: cause})
	s.failed[tag] = true
	s.lost = tag
	s.release()
	s.setState(StateLost)
}

func (s *Surface) release() {
	if s.dev != nil {
		s.dev.destroy()
		s.dev = nil
	}
	// Handles from this activation must not reach the next device.
	if s.pool != nil {
		s.pool.Reset()
		s.pool = nil
	}
	s.verts = nil
}

// Close releases the device. The surface cannot be initialized again.
func (s *Surface) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.release()
	s.cfg = SurfaceConfig{}
	s.setState(StateTerminal)
	return nil
}
