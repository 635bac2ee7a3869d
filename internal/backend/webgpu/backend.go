//go:build windows

package webgpu

import (
	"context"
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/born-ml/ccml/internal/backend"
	"github.com/born-ml/ccml/internal/codegen"
	"github.com/born-ml/ccml/internal/ir"
	"github.com/born-ml/ccml/internal/logger"
	"github.com/born-ml/ccml/internal/tensor"
)

// Backend dispatches WGSL kernels on a WebGPU device.
type Backend struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
	log      logger.Logger

	mu        sync.Mutex
	pipelines map[string]*wgpu.ComputePipeline
	shaders   []*wgpu.ShaderModule
}

// New opens the default high-performance adapter.
func New(log logger.Logger) (b *Backend, err error) {
	// wgpu panics when the native library cannot be loaded.
	defer func() {
		if r := recover(); r != nil {
			b = nil
			err = fmt.Errorf("webgpu: %w: %v", backend.ErrUnavailable, r)
		}
	}()
	if log == nil {
		log = logger.Nop()
	}

	instance, err := wgpu.CreateInstance(nil)
	if err != nil {
		return nil, fmt.Errorf("webgpu: %w: create instance: %w", backend.ErrUnavailable, err)
	}
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: request adapter: %w", err)
	}
	device, err := adapter.RequestDevice(nil)
	if err != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: request device: %w", err)
	}
	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: %w: no queue", backend.ErrUnavailable)
	}

	return &Backend{
		instance:  instance,
		adapter:   adapter,
		device:    device,
		queue:     queue,
		log:       log,
		pipelines: make(map[string]*wgpu.ComputePipeline),
	}, nil
}

// Name returns the backend name.
func (b *Backend) Name() string { return "webgpu" }

// Run uploads every buffer, dispatches the kernels in order and reads all
// buffers back. Only float32 programs are supported.
func (b *Backend) Run(ctx context.Context, p *ir.Program, inputs map[int][]float32) (backend.Results, error) {
	for _, buf := range p.Buffers {
		if buf.DType != tensor.Float32 {
			return nil, fmt.Errorf("webgpu: %w: %s", backend.ErrUnsupportedDType, buf.DType)
		}
	}
	host, err := backend.HostBuffers(p, inputs)
	if err != nil {
		return nil, err
	}
	sources, err := codegen.Emit(codegen.WGSL{}, p)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	device := make(map[int]*wgpu.Buffer, len(p.Buffers))
	defer func() {
		for _, buf := range device {
			buf.Release()
		}
	}()
	for _, buf := range p.Buffers {
		device[buf.ID] = b.upload(backend.Encode(buf.DType, host[buf.ID]))
	}

	for i, k := range p.Kernels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pipeline := b.pipeline(k.Name, sources[i].Code)
		b.dispatch(p, k, pipeline, device)
		b.log.Debug("dispatch", "kernel", k.Name, "grid", fmt.Sprintf("%dx%dx%d", k.Grid.X, k.Grid.Y, k.Grid.Z))
	}

	out := make(backend.Results, len(p.Buffers))
	for _, buf := range p.Buffers {
		raw, err := b.read(device[buf.ID], size(buf))
		if err != nil {
			return nil, fmt.Errorf("webgpu: read %s: %w", ir.BufferName(buf.ID), err)
		}
		out[buf.ID] = backend.Decode(buf.DType, raw)[:buf.Elements]
	}
	return out, nil
}

// Release frees the pipelines and the device.
func (b *Backend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.pipelines {
		p.Release()
	}
	b.pipelines = nil
	for _, s := range b.shaders {
		s.Release()
	}
	b.shaders = nil
	b.queue.Release()
	b.device.Release()
	b.adapter.Release()
	b.instance.Release()
}

// pipeline compiles code once per kernel source; the entry point is the kernel name.
func (b *Backend) pipeline(entry, code string) *wgpu.ComputePipeline {
	key := entry + "\x00" + code
	if p, ok := b.pipelines[key]; ok {
		return p
	}
	shader := b.device.CreateShaderModuleWGSL(code)
	b.shaders = append(b.shaders, shader)
	p := b.device.CreateComputePipelineSimple(nil, shader, entry)
	b.pipelines[key] = p
	return p
}

func (b *Backend) dispatch(p *ir.Program, k *ir.Kernel, pipeline *wgpu.ComputePipeline, device map[int]*wgpu.Buffer) {
	entries := make([]wgpu.BindGroupEntry, len(k.Params))
	for i, prm := range k.Params {
		//nolint:gosec // G115: slots are small
		entries[i] = wgpu.BufferBindingEntry(uint32(prm.Slot), device[prm.Buf], 0, size(p.Buffer(prm.Buf)))
	}
	layout := pipeline.GetBindGroupLayout(0)
	group := b.device.CreateBindGroupSimple(layout, entries)
	defer group.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	pass := encoder.BeginComputePass(nil)
	pass.SetPipeline(pipeline)
	pass.SetBindGroup(0, group, nil)
	//nolint:gosec // G115: grid extents are positive tensor dimensions
	pass.DispatchWorkgroups(uint32(k.Grid.X), uint32(k.Grid.Y), uint32(k.Grid.Z))
	pass.End()
	b.queue.Submit(encoder.Finish(nil))
}

// upload creates a storage buffer holding data.
func (b *Backend) upload(data []byte) *wgpu.Buffer {
	n := padded(len(data))
	buf := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
		Size:             n,
		MappedAtCreation: wgpu.True,
	})
	ptr := buf.GetMappedRange(0, n)
	//nolint:gosec // G103: mapped range is n bytes long
	copy(unsafe.Slice((*byte)(ptr), n), data)
	buf.Unmap()
	return buf
}

// read copies src back through a staging buffer.
func (b *Backend) read(src *wgpu.Buffer, n uint64) ([]byte, error) {
	staging := b.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  n,
	})
	defer staging.Release()

	encoder := b.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, n)
	b.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(b.device, wgpu.MapModeRead, 0, n); err != nil {
		return nil, err
	}
	ptr := staging.GetMappedRange(0, n)
	out := make([]byte, n)
	//nolint:gosec // G103: mapped range is n bytes long
	copy(out, unsafe.Slice((*byte)(ptr), n))
	staging.Unmap()
	return out, nil
}

func size(buf *ir.Buffer) uint64 {
	return padded(buf.Bytes())
}

// padded rounds n up to the 4-byte multiple storage buffers require.
func padded(n int) uint64 {
	return uint64(max((n+3)&^3, 4)) //nolint:gosec // G115: non-negative
}
