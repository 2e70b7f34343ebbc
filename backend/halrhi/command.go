package halrhi

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph/rhi"
)

// CommandBuffer is an rhi.CommandBuffer recording into a hal.CommandEncoder.
//
// A command buffer is reusable: Submit hands the encoded segments to the
// queue and leaves the buffer ready for the next Begin.
type CommandBuffer struct {
	dev       *Device
	label     string
	secondary bool

	enc       hal.CommandEncoder
	recording bool
	err       error

	segments []hal.CommandBuffer
	children []*CommandBuffer
	writes   []bufferWrite
	fences   []*Fence
	markers  []string
}

type bufferWrite struct {
	buf    *Buffer
	offset uint64
	data   []byte
}

var _ rhi.CommandBuffer = (*CommandBuffer)(nil)

// NewCommandBuffer creates a primary command buffer.
func (d *Device) NewCommandBuffer(label string) (*CommandBuffer, error) {
	return d.newCommandBuffer(label, false)
}

func (d *Device) newCommandBuffer(label string, secondary bool) (*CommandBuffer, error) {
	enc, err := d.hal.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("halrhi: create encoder %q: %w", label, err)
	}
	return &CommandBuffer{dev: d, label: label, secondary: secondary, enc: enc}, nil
}

// Label returns the label the command buffer was created with.
func (c *CommandBuffer) Label() string { return c.label }

func (c *CommandBuffer) Begin() error {
	if c.recording {
		return fmt.Errorf("halrhi: %q: %w", c.label, ErrRecording)
	}
	if err := c.enc.BeginEncoding(c.label); err != nil {
		return fmt.Errorf("halrhi: begin %q: %w", c.label, err)
	}
	c.recording = true
	return nil
}

func (c *CommandBuffer) End() error {
	if !c.recording {
		return fmt.Errorf("halrhi: end %q: not recording", c.label)
	}
	c.closeSegment()
	if len(c.markers) > 0 {
		slogger().Warn("halrhi: command buffer ended with open markers",
			"cmd", c.label, "open", len(c.markers))
		c.markers = c.markers[:0]
	}
	err := c.err
	c.err = nil
	return err
}

// closeSegment ends the current encoding and keeps its command buffer.
func (c *CommandBuffer) closeSegment() {
	c.recording = false
	cb, err := c.enc.EndEncoding()
	if err != nil {
		c.fail(fmt.Errorf("halrhi: end %q: %w", c.label, err))
		return
	}
	c.segments = append(c.segments, cb)
}

func (c *CommandBuffer) fail(err error) {
	c.err = errors.Join(c.err, err)
}

func (c *CommandBuffer) BeginMarker(name string, color [4]float32) {
	c.markers = append(c.markers, name)
	slogger().Debug("marker", "cmd", c.label, "name", name, "depth", len(c.markers), "color", color)
}

func (c *CommandBuffer) EndMarker() {
	if n := len(c.markers); n > 0 {
		c.markers = c.markers[:n-1]
	}
}

func (c *CommandBuffer) ResourceBarrier(barriers []rhi.Barrier) {
	var (
		textures []hal.TextureBarrier
		buffers  []hal.BufferBarrier
	)
	for _, b := range barriers {
		switch b.Type {
		case rhi.BarrierImage:
			img := asImage(b.Resource)
			textures = append(textures, hal.TextureBarrier{
				Texture: img.tex,
				Range:   img.fullRange(),
				Usage: hal.TextureUsageTransition{
					OldUsage: textureUsageFor(b.Src),
					NewUsage: textureUsageFor(b.Dst),
				},
			})
		case rhi.BarrierBuffer:
			buf := asBuffer(b.Resource)
			buffers = append(buffers, hal.BufferBarrier{
				Buffer: buf.buf,
				Usage: hal.BufferUsageTransition{
					OldUsage: bufferUsageFor(b.Src.Access),
					NewUsage: bufferUsageFor(b.Dst.Access),
				},
			})
		}
	}
	if len(buffers) > 0 {
		c.enc.TransitionBuffers(buffers)
	}
	if len(textures) > 0 {
		c.enc.TransitionTextures(textures)
	}
}

func (c *CommandBuffer) CopyBuffer(src, dst rhi.Buffer, srcOffset, dstOffset, size uint64) {
	c.enc.CopyBufferToBuffer(asBuffer(src).buf, asBuffer(dst).buf, []hal.BufferCopy{{
		SrcOffset: srcOffset,
		DstOffset: dstOffset,
		Size:      size,
	}})
}

func (c *CommandBuffer) CopyImage(src, dst rhi.Image, width, height, depth uint32) {
	s, d := asImage(src), asImage(dst)
	c.enc.CopyTextureToTexture(s.tex, d.tex, []hal.TextureCopy{{
		SrcBase: hal.ImageCopyTexture{Texture: s.tex, Aspect: gputypes.TextureAspectAll},
		DstBase: hal.ImageCopyTexture{Texture: d.tex, Aspect: gputypes.TextureAspectAll},
		Size:    hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: max(depth, 1)},
	}})
}

func (c *CommandBuffer) CopyImageToBuffer(src rhi.Image, dst rhi.Buffer) {
	img, buf := asImage(src), asBuffer(dst)
	desc := img.desc
	rowBytes := desc.Width * rhi.BytesPerTexel(desc.Format)
	slice := uint64(rowBytes) * uint64(desc.Height)

	var regions []hal.BufferTextureCopy
	if desc.Is3D() {
		regions = append(regions, hal.BufferTextureCopy{
			BufferLayout: hal.ImageDataLayout{BytesPerRow: rowBytes, RowsPerImage: desc.Height},
			TextureBase:  hal.ImageCopyTexture{Texture: img.tex, Aspect: gputypes.TextureAspectAll},
			Size:         hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: desc.DepthCount()},
		})
	} else {
		for layer := range depthOrLayers(desc) {
			regions = append(regions, hal.BufferTextureCopy{
				BufferLayout: hal.ImageDataLayout{
					Offset:       uint64(layer) * slice,
					BytesPerRow:  rowBytes,
					RowsPerImage: desc.Height,
				},
				TextureBase: hal.ImageCopyTexture{
					Texture: img.tex,
					Origin:  hal.Origin3D{Z: layer},
					Aspect:  gputypes.TextureAspectAll,
				},
				Size: hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
			})
		}
	}
	c.enc.CopyTextureToBuffer(img.tex, buf.buf, regions)
}

// ClearImage clears the default view with an empty render pass. Volume
// images cannot be render targets and are left untouched.
func (c *CommandBuffer) ClearImage(img rhi.Image, color [4]float32) {
	i := asImage(img)
	if i.desc.Is3D() {
		slogger().Warn("halrhi: clear of volume image skipped", "image", i.desc.Label)
		return
	}
	desc := &hal.RenderPassDescriptor{Label: "clear " + i.desc.Label}
	if i.desc.IsDepth() {
		desc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:            i.view.view,
			DepthLoadOp:     gputypes.LoadOpClear,
			DepthStoreOp:    gputypes.StoreOpStore,
			DepthClearValue: color[0],
			StencilLoadOp:   gputypes.LoadOpClear,
			StencilStoreOp:  gputypes.StoreOpStore,
		}
	} else {
		desc.ColorAttachments = []hal.RenderPassColorAttachment{{
			View:    i.view.view,
			LoadOp:  gputypes.LoadOpClear,
			StoreOp: gputypes.StoreOpStore,
			ClearValue: gputypes.Color{
				R: float64(color[0]),
				G: float64(color[1]),
				B: float64(color[2]),
				A: float64(color[3]),
			},
		}}
	}
	c.enc.BeginRenderPass(desc).End()
}

// ClearBuffer fills the buffer with value. The HAL only clears to zero, so
// other values are written through the queue before submission.
func (c *CommandBuffer) ClearBuffer(buf rhi.Buffer, value uint32) {
	b := asBuffer(buf)
	if value == 0 {
		c.enc.ClearBuffer(b.buf, 0, b.size)
		return
	}
	var word [4]byte
	binary.LittleEndian.PutUint32(word[:], value)
	c.writes = append(c.writes, bufferWrite{
		buf:  b,
		data: bytes.Repeat(word[:], int(b.size/4)),
	})
}

// WriteBuffer copies data and applies it through the queue right before the
// command buffer is submitted.
func (c *CommandBuffer) WriteBuffer(buf rhi.Buffer, offset uint64, data []byte) {
	c.writes = append(c.writes, bufferWrite{
		buf:    asBuffer(buf),
		offset: offset,
		data:   bytes.Clone(data),
	})
}

func (c *CommandBuffer) Flush(fence rhi.Fence) {
	f, ok := fence.(*Fence)
	if !ok {
		panic(fmt.Sprintf("halrhi: %T is not a halrhi fence", fence))
	}
	c.fences = append(c.fences, f)
}

func (c *CommandBuffer) CreateSecondary() (rhi.CommandBuffer, error) {
	sec, err := c.dev.newCommandBuffer(c.label+" secondary", true)
	if err != nil {
		return nil, err
	}
	return sec, nil
}

// ExecuteSecondaries closes the current segment and appends the encoded
// segments of every secondary in order. Recording continues in a new
// segment. The secondaries must have ended; they are consumed.
func (c *CommandBuffer) ExecuteSecondaries(secondaries []rhi.CommandBuffer) {
	wasRecording := c.recording
	if wasRecording {
		c.closeSegment()
	}
	for _, s := range secondaries {
		sec, ok := s.(*CommandBuffer)
		if !ok {
			panic(fmt.Sprintf("halrhi: %T is not a halrhi command buffer", s))
		}
		if sec.recording {
			c.fail(fmt.Errorf("halrhi: secondary %q executed while recording", sec.label))
			continue
		}
		if sec.err != nil {
			c.fail(sec.err)
		}
		c.segments = append(c.segments, sec.segments...)
		c.writes = append(c.writes, sec.writes...)
		c.fences = append(c.fences, sec.fences...)
		c.children = append(c.children, sec)
		sec.segments, sec.writes, sec.fences, sec.err = nil, nil, nil, nil
	}
	if wasRecording {
		if err := c.enc.BeginEncoding(c.label); err != nil {
			c.fail(fmt.Errorf("halrhi: resume %q: %w", c.label, err))
			return
		}
		c.recording = true
	}
}

// Submit applies pending buffer writes, submits every segment and stamps
// the flushed fences with the submission index. Command buffer memory and
// the encoders of executed secondaries are freed once the submission
// completes.
func (c *CommandBuffer) Submit(ctx context.Context, wait bool) error {
	if c.secondary {
		return fmt.Errorf("halrhi: submit %q: secondary command buffers are executed, not submitted", c.label)
	}
	if c.recording {
		return fmt.Errorf("halrhi: submit %q: %w", c.label, ErrRecording)
	}
	if err := c.err; err != nil {
		c.err = nil
		return err
	}
	for _, w := range c.writes {
		if err := c.dev.queue.WriteBuffer(w.buf.buf, w.offset, w.data); err != nil {
			return fmt.Errorf("halrhi: write %q: %w", w.buf.desc.Label, err)
		}
	}
	idx, err := c.dev.queue.Submit(c.segments)
	if err != nil {
		return fmt.Errorf("halrhi: submit %q: %w", c.label, err)
	}
	c.dev.noteSubmitted(idx)
	for _, f := range c.fences {
		f.index.Store(idx)
	}
	slogger().Debug("halrhi: submitted", "cmd", c.label, "index", idx,
		"segments", len(c.segments), "writes", len(c.writes), "fences", len(c.fences))

	segments, children := c.segments, c.children
	c.segments, c.children, c.writes, c.fences = nil, nil, nil, nil
	c.dev.retire(func() {
		for _, s := range segments {
			c.dev.hal.FreeCommandBuffer(s)
		}
		for _, child := range children {
			child.enc.Destroy()
		}
	})

	if !wait {
		return nil
	}
	if err := c.dev.poll(ctx, func() bool { return c.dev.completed(idx) }); err != nil {
		return err
	}
	c.dev.Collect()
	return nil
}

// Destroy releases the encoder once the GPU is done with everything
// submitted so far.
func (c *CommandBuffer) Destroy() {
	if c.recording {
		c.enc.DiscardEncoding()
		c.recording = false
	}
	enc := c.enc
	c.dev.retire(enc.Destroy)
}
