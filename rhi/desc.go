package rhi

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/gogpu/gputypes"
)

// MemoryUsage describes where a resource's memory lives.
type MemoryUsage uint8

// Memory usages.
const (
	MemoryGPUOnly MemoryUsage = iota
	MemoryCPUToGPU
	MemoryGPUToCPU
)

// ImageDesc describes an image. Zero Depth, Layers and Mips mean one.
type ImageDesc struct {
	Label     string                    `yaml:"label"`
	Width     uint32                    `yaml:"width" validate:"gt=0"`
	Height    uint32                    `yaml:"height" validate:"gt=0"`
	Depth     uint32                    `yaml:"depth"`
	Layers    uint32                    `yaml:"layers"`
	Mips      uint32                    `yaml:"mips"`
	Format    gputypes.TextureFormat    `yaml:"format" validate:"ne=0"`
	Dimension gputypes.TextureDimension `yaml:"dimension"`
	Usage     gputypes.TextureUsage     `yaml:"usage"`
	IsCubeMap bool                      `yaml:"cube"`
	Memory    MemoryUsage               `yaml:"memory"`
}

// DepthCount returns the depth in texels, at least one.
func (d ImageDesc) DepthCount() uint32 { return max(d.Depth, 1) }

// LayerCount returns the number of array layers, at least one.
func (d ImageDesc) LayerCount() uint32 { return max(d.Layers, 1) }

// MipCount returns the number of mip levels, at least one.
func (d ImageDesc) MipCount() uint32 { return max(d.Mips, 1) }

// Is3D reports whether the image is a volume texture.
func (d ImageDesc) Is3D() bool { return d.Dimension == gputypes.TextureDimension3D }

// IsDepth reports whether the image has a depth or stencil format.
func (d ImageDesc) IsDepth() bool { return d.Format.IsDepthStencil() }

// ByteSize estimates the memory footprint of the full mip chain.
func (d ImageDesc) ByteSize() uint64 {
	texel := uint64(BytesPerTexel(d.Format))
	w, h, z := uint64(d.Width), uint64(d.Height), uint64(d.DepthCount())
	var total uint64
	for range d.MipCount() {
		total += w * h * z * texel
		w, h = max(w/2, 1), max(h/2, 1)
		if d.Is3D() {
			z = max(z/2, 1)
		}
	}
	return total * uint64(d.LayerCount())
}

// Hash returns the structural hash of the description. The label is not
// part of the hash so differently named images of the same shape share
// backing memory.
func (d ImageDesc) Hash() uint64 {
	var buf [40]byte
	binary.LittleEndian.PutUint32(buf[0:], d.Width)
	binary.LittleEndian.PutUint32(buf[4:], d.Height)
	binary.LittleEndian.PutUint32(buf[8:], d.DepthCount())
	binary.LittleEndian.PutUint32(buf[12:], d.LayerCount())
	binary.LittleEndian.PutUint32(buf[16:], d.MipCount())
	binary.LittleEndian.PutUint32(buf[20:], uint32(d.Format))
	binary.LittleEndian.PutUint32(buf[24:], uint32(d.Dimension))
	binary.LittleEndian.PutUint32(buf[28:], uint32(d.Usage))
	buf[32] = 'I'
	if d.IsCubeMap {
		buf[33] = 1
	}
	buf[34] = byte(d.Memory)
	return xxhash.Sum64(buf[:])
}

// BufferDesc describes a storage or uniform buffer as Count elements of
// ElementSize bytes.
type BufferDesc struct {
	Label       string               `yaml:"label"`
	ElementSize uint64               `yaml:"element_size" validate:"gt=0"`
	Count       uint32               `yaml:"count" validate:"gt=0"`
	Usage       gputypes.BufferUsage `yaml:"usage"`
	Memory      MemoryUsage          `yaml:"memory"`
}

// ByteSize returns ElementSize * Count.
func (d BufferDesc) ByteSize() uint64 { return d.ElementSize * uint64(d.Count) }

// Hash returns the structural hash of the description. The label is not
// part of the hash.
func (d BufferDesc) Hash() uint64 {
	var buf [24]byte
	binary.LittleEndian.PutUint64(buf[0:], d.ElementSize)
	binary.LittleEndian.PutUint32(buf[8:], d.Count)
	binary.LittleEndian.PutUint64(buf[12:], uint64(d.Usage))
	buf[20] = 'B'
	buf[21] = byte(d.Memory)
	return xxhash.Sum64(buf[:])
}

// BytesPerTexel returns the size of one texel for uncompressed formats and 4
// for anything it does not know.
func BytesPerTexel(f gputypes.TextureFormat) uint32 {
	switch f {
	case gputypes.TextureFormatR8Unorm, gputypes.TextureFormatR8Snorm,
		gputypes.TextureFormatR8Uint, gputypes.TextureFormatR8Sint,
		gputypes.TextureFormatStencil8:
		return 1
	case gputypes.TextureFormatR16Unorm, gputypes.TextureFormatR16Snorm,
		gputypes.TextureFormatR16Uint, gputypes.TextureFormatR16Sint,
		gputypes.TextureFormatR16Float, gputypes.TextureFormatRG8Unorm,
		gputypes.TextureFormatRG8Snorm, gputypes.TextureFormatRG8Uint,
		gputypes.TextureFormatRG8Sint, gputypes.TextureFormatDepth16Unorm:
		return 2
	case gputypes.TextureFormatRG32Float, gputypes.TextureFormatRG32Uint,
		gputypes.TextureFormatRG32Sint, gputypes.TextureFormatRGBA16Unorm,
		gputypes.TextureFormatRGBA16Snorm, gputypes.TextureFormatRGBA16Uint,
		gputypes.TextureFormatRGBA16Sint, gputypes.TextureFormatRGBA16Float:
		return 8
	case gputypes.TextureFormatRGBA32Float, gputypes.TextureFormatRGBA32Uint,
		gputypes.TextureFormatRGBA32Sint:
		return 16
	default:
		return 4
	}
}
