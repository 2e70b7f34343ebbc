package rhitest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/framegraph/rhi"
)

// ErrRecordingState is returned when Begin, End or Submit is called in the
// wrong state.
var ErrRecordingState = errors.New("rhitest: command buffer in wrong recording state")

// Op identifies a recorded command.
type Op string

// Recorded operations.
const (
	OpBarrier            Op = "Barrier"
	OpBeginMarker        Op = "BeginMarker"
	OpEndMarker          Op = "EndMarker"
	OpCopyBuffer         Op = "CopyBuffer"
	OpCopyImage          Op = "CopyImage"
	OpCopyImageToBuffer  Op = "CopyImageToBuffer"
	OpClearImage         Op = "ClearImage"
	OpClearBuffer        Op = "ClearBuffer"
	OpWriteBuffer        Op = "WriteBuffer"
	OpFlush              Op = "Flush"
	OpExecuteSecondaries Op = "ExecuteSecondaries"
)

// Command is one recorded command.
type Command struct {
	Op        Op
	Name      string
	Barriers  []rhi.Barrier
	Src       rhi.Resource
	Dst       rhi.Resource
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
	Data      []byte
	Fence     rhi.Fence
	// Secondaries holds the replayed buffers of an OpExecuteSecondaries.
	Secondaries []*CommandBuffer
}

// CommandBuffer is a fake rhi.CommandBuffer that records commands.
type CommandBuffer struct {
	device    *Device
	secondary bool

	mu          sync.Mutex
	recording   bool
	begins      int
	cmds        []Command
	secondaries []*CommandBuffer
	submits     int
	waited      bool
}

var _ rhi.CommandBuffer = (*CommandBuffer)(nil)

// NewCommandBuffer creates a primary command buffer bound to device.
func NewCommandBuffer(device *Device) *CommandBuffer {
	return &CommandBuffer{device: device}
}

func (c *CommandBuffer) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording {
		return fmt.Errorf("%w: Begin while recording", ErrRecordingState)
	}
	c.recording = true
	c.begins++
	return nil
}

func (c *CommandBuffer) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		return fmt.Errorf("%w: End without Begin", ErrRecordingState)
	}
	c.recording = false
	return nil
}

func (c *CommandBuffer) record(cmd Command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.recording {
		panic(fmt.Sprintf("rhitest: %s recorded outside Begin/End", cmd.Op))
	}
	c.cmds = append(c.cmds, cmd)
}

func (c *CommandBuffer) BeginMarker(name string, _ [4]float32) {
	c.record(Command{Op: OpBeginMarker, Name: name})
}

func (c *CommandBuffer) EndMarker() {
	c.record(Command{Op: OpEndMarker})
}

func (c *CommandBuffer) ResourceBarrier(barriers []rhi.Barrier) {
	c.record(Command{Op: OpBarrier, Barriers: append([]rhi.Barrier(nil), barriers...)})
}

func (c *CommandBuffer) CopyBuffer(src, dst rhi.Buffer, srcOffset, dstOffset, size uint64) {
	c.record(Command{Op: OpCopyBuffer, Src: src, Dst: dst, SrcOffset: srcOffset, DstOffset: dstOffset, Size: size})
}

func (c *CommandBuffer) CopyImage(src, dst rhi.Image, width, height, depth uint32) {
	c.record(Command{Op: OpCopyImage, Src: src, Dst: dst, Size: uint64(width) * uint64(height) * uint64(depth)})
}

func (c *CommandBuffer) CopyImageToBuffer(src rhi.Image, dst rhi.Buffer) {
	c.record(Command{Op: OpCopyImageToBuffer, Src: src, Dst: dst})
}

func (c *CommandBuffer) ClearImage(img rhi.Image, _ [4]float32) {
	c.record(Command{Op: OpClearImage, Dst: img})
}

func (c *CommandBuffer) ClearBuffer(buf rhi.Buffer, value uint32) {
	c.record(Command{Op: OpClearBuffer, Dst: buf, Size: uint64(value)})
}

func (c *CommandBuffer) WriteBuffer(buf rhi.Buffer, offset uint64, data []byte) {
	c.record(Command{Op: OpWriteBuffer, Dst: buf, DstOffset: offset, Data: append([]byte(nil), data...)})
}

func (c *CommandBuffer) Flush(fence rhi.Fence) {
	c.record(Command{Op: OpFlush, Fence: fence})
}

func (c *CommandBuffer) CreateSecondary() (rhi.CommandBuffer, error) {
	sec := &CommandBuffer{device: c.device, secondary: true}
	c.mu.Lock()
	c.secondaries = append(c.secondaries, sec)
	c.mu.Unlock()
	return sec, nil
}

func (c *CommandBuffer) ExecuteSecondaries(secondaries []rhi.CommandBuffer) {
	list := make([]*CommandBuffer, 0, len(secondaries))
	for _, s := range secondaries {
		list = append(list, s.(*CommandBuffer))
	}
	c.record(Command{Op: OpExecuteSecondaries, Secondaries: list})
}

// Submit replays uploads and copies into the fake buffers and signals
// flushed fences when the device has AutoSignal set.
func (c *CommandBuffer) Submit(_ context.Context, wait bool) error {
	c.mu.Lock()
	if c.recording {
		c.mu.Unlock()
		return fmt.Errorf("%w: Submit while recording", ErrRecordingState)
	}
	if c.secondary {
		c.mu.Unlock()
		return fmt.Errorf("%w: secondary buffers cannot be submitted", ErrRecordingState)
	}
	if c.device != nil && c.device.FailSubmit {
		c.mu.Unlock()
		return fmt.Errorf("%w: submit", ErrInjected)
	}
	c.submits++
	c.waited = c.waited || wait
	c.mu.Unlock()

	for _, cmd := range c.Commands() {
		switch cmd.Op {
		case OpWriteBuffer:
			cmd.Dst.(*Buffer).write(cmd.DstOffset, cmd.Data)
		case OpCopyBuffer:
			tmp := make([]byte, cmd.Size)
			if err := cmd.Src.(*Buffer).Read(cmd.SrcOffset, tmp); err != nil {
				return err
			}
			cmd.Dst.(*Buffer).write(cmd.DstOffset, tmp)
		case OpFlush:
			if c.device != nil && c.device.AutoSignal {
				if f, ok := cmd.Fence.(*Fence); ok {
					f.Signal()
				}
			}
		}
	}
	return nil
}

// Commands returns the recorded commands with secondaries expanded in place.
func (c *CommandBuffer) Commands() []Command {
	c.mu.Lock()
	cmds := append([]Command(nil), c.cmds...)
	c.mu.Unlock()

	var out []Command
	for _, cmd := range cmds {
		if cmd.Op == OpExecuteSecondaries {
			for _, s := range cmd.Secondaries {
				out = append(out, s.Commands()...)
			}
			continue
		}
		out = append(out, cmd)
	}
	return out
}

// Ops returns the operation of every expanded command.
func (c *CommandBuffer) Ops() []Op {
	cmds := c.Commands()
	ops := make([]Op, len(cmds))
	for i, cmd := range cmds {
		ops[i] = cmd.Op
	}
	return ops
}

// Secondaries returns the secondary buffers created from c.
func (c *CommandBuffer) Secondaries() []*CommandBuffer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*CommandBuffer(nil), c.secondaries...)
}

// Submits returns how many times c was submitted.
func (c *CommandBuffer) Submits() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submits
}

// Waited reports whether any submission asked to wait for completion.
func (c *CommandBuffer) Waited() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waited
}

// Begins returns how many times Begin succeeded.
func (c *CommandBuffer) Begins() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.begins
}
