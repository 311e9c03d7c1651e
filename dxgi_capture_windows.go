//go:build windows

package dxgiscreengrab

import (
	"fmt"
	"syscall"
	"unsafe"
)

// dxgiFrame borrows one compositor-owned frame between AcquireNextFrame and
// Release. The texture reference is owned (from QueryInterface); the frame
// itself belongs to the duplication session.
type dxgiFrame struct {
	session *dxgiSession
	texture uintptr // ID3D11Texture2D
}

// CopyTo issues a GPU-side copy of the requested sub-rectangle from the
// acquired frame into the staging texture at origin (0,0); the source box
// carries the rectangle. CopySubresourceRegion is void — no HRESULT; copy
// errors surface through a failed Map on the destination.
func (f *dxgiFrame) CopyTo(dst stagingTexture, left, top, width, height uint32) error {
	st := dst.(*dxgiStaging)
	box := d3d11Box{
		Left:   left,
		Top:    top,
		Front:  0,
		Right:  left + width,
		Bottom: top + height,
		Back:   1,
	}
	syscall.SyscallN(
		comVtblFn(f.session.context, d3d11CtxCopySubresourceRegion),
		f.session.context,
		st.texture, // pDstResource
		0,          // DstSubresource
		0, 0, 0,    // DstX, DstY, DstZ
		f.texture, // pSrcResource
		0,         // SrcSubresource
		uintptr(unsafe.Pointer(&box)),
	)
	return nil
}

// Release hands the frame back to the duplication session.
func (f *dxgiFrame) Release() {
	if f.texture != 0 {
		comRelease(f.texture)
		f.texture = 0
	}
	if f.session.duplication != 0 {
		syscall.SyscallN(comVtblFn(f.session.duplication, dxgiDuplReleaseFrame), f.session.duplication)
	}
}

// dxgiStaging is the CPU-readable region texture.
type dxgiStaging struct {
	session *dxgiSession
	texture uintptr // ID3D11Texture2D
	height  uint32
}

func (t *dxgiStaging) Map() (mapped, error) {
	var m d3d11MappedSubresource
	hr, _, _ := syscall.SyscallN(
		comVtblFn(t.session.context, d3d11CtxMap),
		t.session.context,
		t.texture,
		0, // Subresource
		d3d11MapRead,
		0, // Flags
		uintptr(unsafe.Pointer(&m)),
	)
	if int32(hr) < 0 {
		return nil, fmt.Errorf("Map staging texture: 0x%08X", uint32(hr))
	}
	pitch := int(m.RowPitch)
	data := unsafe.Slice((*byte)(unsafe.Pointer(m.PData)), pitch*int(t.height))
	return &dxgiMapped{staging: t, data: data, pitch: pitch}, nil
}

func (t *dxgiStaging) Release() {
	if t.texture != 0 {
		comRelease(t.texture)
		t.texture = 0
	}
}

// dxgiMapped is a staging texture mapped for CPU reads, valid until Unmap.
type dxgiMapped struct {
	staging *dxgiStaging
	data    []byte
	pitch   int
}

func (m *dxgiMapped) Bytes() []byte { return m.data }

func (m *dxgiMapped) Pitch() int { return m.pitch }

func (m *dxgiMapped) Unmap() {
	syscall.SyscallN(
		comVtblFn(m.staging.session.context, d3d11CtxUnmap),
		m.staging.session.context,
		m.staging.texture,
		0, // Subresource
	)
	m.data = nil
}

var (
	_ frame          = (*dxgiFrame)(nil)
	_ stagingTexture = (*dxgiStaging)(nil)
	_ mapped         = (*dxgiMapped)(nil)
)
