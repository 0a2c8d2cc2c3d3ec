// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package backend

import (
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

//go:embed shaders/line.wgsl
var lineShaderSource string

const (
	// msaaSamples is used by the native tier; the shared tier renders
	// single-sampled so it does not depend on the host's device limits.
	msaaSamples = 4

	lineUniformSize    = 16
	copyPitchAlignment = 256

	defaultFenceTimeout = 5 * time.Second
)

// gpuFormat is the color target format of both GPU tiers.
const gpuFormat = gputypes.TextureFormatBGRA8Unorm

// halDevice draws frames on a HAL device. The native tier owns the device
// and its instance; the shared tier borrows both and never destroys them.
type halDevice struct {
	tag      Tag
	device   hal.Device
	queue    hal.Queue
	instance hal.Instance
	owned    bool
	samples  uint32
	spirv    bool

	shader        hal.ShaderModule
	uniformLayout hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout
	pipeline      hal.RenderPipeline

	uniformBuf hal.Buffer
	bindGroup  hal.BindGroup
	arena      hal.Buffer
	arenaSize  uint64

	msaaTex     hal.Texture
	msaaView    hal.TextureView
	resolveTex  hal.Texture
	resolveView hal.TextureView
	staging     hal.Buffer
	stagingRow  uint32
	width       uint32
	height      uint32

	fenceTimeout time.Duration
}

// openedHAL is the result of acquiring a native device.
type openedHAL struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	name     string
}

func (o openedHAL) release() {
	if o.device != nil {
		o.device.Destroy()
	}
	if o.instance != nil {
		o.instance.Destroy()
	}
}

// openNativeHAL creates an instance and opens the best adapter, preferring
// discrete then integrated GPUs.
func openNativeHAL(f InstanceFactory) (openedHAL, error) {
	instance, err := f.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return openedHAL{}, fmt.Errorf("create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return openedHAL{}, errors.New("no GPU adapters found")
	}
	selected := &adapters[0]
	for _, want := range []gputypes.DeviceType{gputypes.DeviceTypeDiscreteGPU, gputypes.DeviceTypeIntegratedGPU} {
		found := false
		for i := range adapters {
			if adapters[i].Info.DeviceType == want {
				selected, found = &adapters[i], true
				break
			}
		}
		if found {
			break
		}
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return openedHAL{}, fmt.Errorf("open device %q: %w", selected.Info.Name, err)
	}
	return openedHAL{instance: instance, device: openDev.Device, queue: openDev.Queue, name: selected.Info.Name}, nil
}

// newHalDevice builds the pipeline, arena and render targets. On failure
// everything created so far is released, but a borrowed device is left
// alone.
func newHalDevice(tag Tag, device hal.Device, queue hal.Queue, instance hal.Instance, owned bool, arenaSize uint64, w, h uint32) (*halDevice, error) {
	d := &halDevice{
		tag:          tag,
		device:       device,
		queue:        queue,
		instance:     instance,
		owned:        owned,
		samples:      1,
		fenceTimeout: defaultFenceTimeout,
	}
	if tag == TagGPU {
		d.samples = msaaSamples
		d.spirv = true
	}
	if err := d.createPipeline(); err != nil {
		d.destroy()
		return nil, deviceErr(tag, PipelineCreation, err)
	}
	if err := d.createBuffers(arenaSize); err != nil {
		d.destroy()
		return nil, deviceErr(tag, SurfaceCreation, err)
	}
	if err := d.ensureTargets(w, h); err != nil {
		d.destroy()
		return nil, deviceErr(tag, SurfaceCreation, err)
	}
	return d, nil
}

// compileSPIRV turns WGSL into little-endian SPIR-V words.
func compileSPIRV(src string) ([]uint32, error) {
	b, err := naga.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("compile shader: %w", err)
	}
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("compile shader: SPIR-V length %d is not word aligned", len(b))
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words, nil
}

func (d *halDevice) createPipeline() error {
	if lineShaderSource == "" {
		return errors.New("line shader source is empty")
	}
	src := hal.ShaderSource{WGSL: lineShaderSource}
	if d.spirv {
		words, err := compileSPIRV(lineShaderSource)
		if err != nil {
			return err
		}
		src = hal.ShaderSource{SPIRV: words}
	}
	shader, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "chart_line_shader",
		Source: src,
	})
	if err != nil {
		return fmt.Errorf("create line shader: %w", err)
	}
	d.shader = shader

	d.uniformLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "chart_line_uniform_layout",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}},
	})
	if err != nil {
		return fmt.Errorf("create uniform layout: %w", err)
	}

	d.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "chart_line_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{d.uniformLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}

	blend := gputypes.BlendStatePremultiplied()
	d.pipeline, err = d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "chart_line_pipeline",
		Layout: d.pipeLayout,
		Vertex: hal.VertexState{
			Module:     d.shader,
			EntryPoint: "vs_main",
			Buffers: []gputypes.VertexBufferLayout{{
				ArrayStride: VertexStride,
				StepMode:    gputypes.VertexStepModeVertex,
				Attributes: []gputypes.VertexAttribute{
					{Format: gputypes.VertexFormatFloat32x2, Offset: 0, ShaderLocation: 0},
				},
			}},
		},
		Fragment: &hal.FragmentState{
			Module:     d.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    gpuFormat,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: d.samples,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return fmt.Errorf("create line pipeline: %w", err)
	}
	return nil
}

func (d *halDevice) createBuffers(arenaSize uint64) error {
	var err error
	d.arena, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "chart_vertex_arena",
		Size:  arenaSize,
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create vertex arena (%d bytes): %w", arenaSize, err)
	}
	d.arenaSize = arenaSize

	d.uniformBuf, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "chart_line_uniforms",
		Size:  lineUniformSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create uniform buffer: %w", err)
	}

	d.bindGroup, err = d.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "chart_line_bind",
		Layout: d.uniformLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: d.uniformBuf.NativeHandle(), Offset: 0, Size: lineUniformSize,
			}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group: %w", err)
	}
	return nil
}

// ensureTargets (re)creates the color targets and readback buffer for w x h.
func (d *halDevice) ensureTargets(w, h uint32) error {
	if d.resolveTex != nil && d.width == w && d.height == h {
		return nil
	}
	d.destroyTargets()

	size := hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
	var err error
	if d.samples > 1 {
		d.msaaTex, err = d.device.CreateTexture(&hal.TextureDescriptor{
			Label:         "chart_msaa_color",
			Size:          size,
			MipLevelCount: 1,
			SampleCount:   d.samples,
			Dimension:     gputypes.TextureDimension2D,
			Format:        gpuFormat,
			Usage:         gputypes.TextureUsageRenderAttachment,
		})
		if err != nil {
			return fmt.Errorf("create MSAA texture: %w", err)
		}
		d.msaaView, err = d.device.CreateTextureView(d.msaaTex, &hal.TextureViewDescriptor{Label: "chart_msaa_view"})
		if err != nil {
			d.destroyTargets()
			return fmt.Errorf("create MSAA view: %w", err)
		}
	}

	d.resolveTex, err = d.device.CreateTexture(&hal.TextureDescriptor{
		Label:         "chart_resolve",
		Size:          size,
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gpuFormat,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		d.destroyTargets()
		return fmt.Errorf("create resolve texture: %w", err)
	}
	d.resolveView, err = d.device.CreateTextureView(d.resolveTex, &hal.TextureViewDescriptor{Label: "chart_resolve_view"})
	if err != nil {
		d.destroyTargets()
		return fmt.Errorf("create resolve view: %w", err)
	}

	d.stagingRow = (w*4 + copyPitchAlignment - 1) &^ (copyPitchAlignment - 1)
	d.staging, err = d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "chart_readback",
		Size:  uint64(d.stagingRow) * uint64(h),
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		d.destroyTargets()
		return fmt.Errorf("create readback buffer: %w", err)
	}
	d.width, d.height = w, h
	return nil
}

func (d *halDevice) write(offset uint64, data []byte) error {
	if offset+uint64(len(data)) > d.arenaSize {
		return fmt.Errorf("backend: write [%d, %d) outside arena of %d bytes", offset, offset+uint64(len(data)), d.arenaSize)
	}
	d.queue.WriteBuffer(d.arena, offset, data)
	return nil
}

// move copies arena bytes through a scratch buffer, since a buffer cannot be
// both source and destination of one overlapping copy.
func (d *halDevice) move(dst, src, size uint64) error {
	scratch, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "chart_compact_scratch",
		Size:  size,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create scratch buffer: %w", err)
	}
	defer d.device.DestroyBuffer(scratch)

	return d.submit("chart_compact", func(enc hal.CommandEncoder) {
		enc.CopyBufferToBuffer(d.arena, scratch, []hal.BufferCopy{{SrcOffset: src, DstOffset: 0, Size: size}})
		enc.CopyBufferToBuffer(scratch, d.arena, []hal.BufferCopy{{SrcOffset: 0, DstOffset: dst, Size: size}})
	})
}

// submit records commands, submits them and waits on a fence. Submission
// or wait failures wrap ErrSurfaceLost.
func (d *halDevice) submit(label string, record func(hal.CommandEncoder)) error {
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	record(encoder)
	cmd, err := encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.device.FreeCommandBuffer(cmd)

	fence, err := d.device.CreateFence()
	if err != nil {
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.device.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, fence, 1); err != nil {
		return fmt.Errorf("%w: submit: %w", ErrSurfaceLost, err)
	}
	ok, err := d.device.Wait(fence, 1, d.fenceTimeout)
	if err != nil {
		return fmt.Errorf("%w: wait: %w", ErrSurfaceLost, err)
	}
	if !ok {
		return fmt.Errorf("%w: fence not signaled within %v", ErrSurfaceLost, d.fenceTimeout)
	}
	return nil
}

// draw renders vertices [offset, offset+count*VertexStride) of the arena and
// reads the frame back.
func (d *halDevice) draw(offset uint64, count uint32, f Frame) (*image.RGBA, error) {
	col := premultiplied(f.Color)
	var u [lineUniformSize]byte
	for i, c := range col {
		binary.LittleEndian.PutUint32(u[i*4:], math.Float32bits(c))
	}
	d.queue.WriteBuffer(d.uniformBuf, 0, u[:])

	bg := premultiplied(f.Background)
	attachment := hal.RenderPassColorAttachment{
		View:       d.resolveView,
		LoadOp:     gputypes.LoadOpClear,
		StoreOp:    gputypes.StoreOpStore,
		ClearValue: gputypes.Color{R: float64(bg[0]), G: float64(bg[1]), B: float64(bg[2]), A: float64(bg[3])},
	}
	if d.samples > 1 {
		attachment.View = d.msaaView
		attachment.ResolveTarget = d.resolveView
	}

	w, h := d.width, d.height
	err := d.submit("chart_frame", func(enc hal.CommandEncoder) {
		rp := enc.BeginRenderPass(&hal.RenderPassDescriptor{
			Label:            "chart_line_pass",
			ColorAttachments: []hal.RenderPassColorAttachment{attachment},
		})
		if count > 0 {
			rp.SetPipeline(d.pipeline)
			rp.SetBindGroup(0, d.bindGroup, nil)
			rp.SetVertexBuffer(0, d.arena, offset)
			rp.Draw(count, 1, 0, 0)
		}
		rp.End()

		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: d.resolveTex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageRenderAttachment,
				NewUsage: gputypes.TextureUsageCopySrc,
			},
		}})
		enc.CopyTextureToBuffer(d.resolveTex, d.staging, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{Offset: 0, BytesPerRow: d.stagingRow, RowsPerImage: h},
			TextureBase:  hal.ImageCopyTexture{Texture: d.resolveTex, MipLevel: 0},
			Size:         hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}})
		enc.TransitionTextures([]hal.TextureBarrier{{
			Texture: d.resolveTex,
			Usage: hal.TextureUsageTransition{
				OldUsage: gputypes.TextureUsageCopySrc,
				NewUsage: gputypes.TextureUsageRenderAttachment,
			},
		}})
	})
	if err != nil {
		return nil, err
	}

	readback := make([]byte, uint64(d.stagingRow)*uint64(h))
	if err := d.queue.ReadBuffer(d.staging, 0, readback); err != nil {
		return nil, fmt.Errorf("%w: readback: %w", ErrSurfaceLost, err)
	}
	img := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
	for y := 0; y < int(h); y++ {
		src := readback[y*int(d.stagingRow):]
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < int(w); x++ {
			dst[x*4+0] = src[x*4+2]
			dst[x*4+1] = src[x*4+1]
			dst[x*4+2] = src[x*4+0]
			dst[x*4+3] = src[x*4+3]
		}
	}
	return img, nil
}

func (d *halDevice) destroyTargets() {
	if d.device == nil {
		return
	}
	if d.staging != nil {
		d.device.DestroyBuffer(d.staging)
		d.staging = nil
	}
	if d.resolveView != nil {
		d.device.DestroyTextureView(d.resolveView)
		d.resolveView = nil
	}
	if d.resolveTex != nil {
		d.device.DestroyTexture(d.resolveTex)
		d.resolveTex = nil
	}
	if d.msaaView != nil {
		d.device.DestroyTextureView(d.msaaView)
		d.msaaView = nil
	}
	if d.msaaTex != nil {
		d.device.DestroyTexture(d.msaaTex)
		d.msaaTex = nil
	}
	d.width, d.height = 0, 0
}

// destroy releases everything in reverse creation order. Safe to call more
// than once.
func (d *halDevice) destroy() {
	if d.device == nil {
		return
	}
	d.destroyTargets()
	if d.bindGroup != nil {
		d.device.DestroyBindGroup(d.bindGroup)
		d.bindGroup = nil
	}
	if d.uniformBuf != nil {
		d.device.DestroyBuffer(d.uniformBuf)
		d.uniformBuf = nil
	}
	if d.arena != nil {
		d.device.DestroyBuffer(d.arena)
		d.arena = nil
	}
	if d.pipeline != nil {
		d.device.DestroyRenderPipeline(d.pipeline)
		d.pipeline = nil
	}
	if d.pipeLayout != nil {
		d.device.DestroyPipelineLayout(d.pipeLayout)
		d.pipeLayout = nil
	}
	if d.uniformLayout != nil {
		d.device.DestroyBindGroupLayout(d.uniformLayout)
		d.uniformLayout = nil
	}
	if d.shader != nil {
		d.device.DestroyShaderModule(d.shader)
		d.shader = nil
	}
	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
	d.device, d.queue, d.instance = nil, nil, nil
}
