//go:build windows

package dxgiscreengrab

import (
	"fmt"
	"syscall"
	"unsafe"
)

// D3D11/DXGI constants
const (
	d3dDriverTypeHardware = 1
	d3dFeatureLevel11_0   = 0xb000
	d3d11SDKVersion       = 7

	d3d11CreateDeviceBGRASupport = 0x20

	d3d11UsageStaging  = 3
	d3d11CPUAccessRead = 0x20000
	d3d11MapRead       = 1

	dxgiFormatR16G16B16A16Float = 10
	dxgiFormatR8G8B8A8          = 28
	dxgiFormatB8G8R8A8          = 87

	dxgiErrDeviceRemoved       = 0x887A0005
	dxgiErrDeviceReset         = 0x887A0007
	dxgiErrAccessLost          = 0x887A0026
	dxgiErrWaitTimeout         = 0x887A0027
	dxgiErrSessionDisconnected = 0x887A0028
)

// DXGI/D3D11 COM vtable indices
const (
	dxgiDeviceGetAdapter          = 7  // IDXGIDevice (after IUnknown+IDXGIObject)
	dxgiAdapterEnumOutputs        = 7  // IDXGIAdapter
	dxgiOutputGetDesc             = 7  // IDXGIOutput
	dxgiOutput5DuplicateOutput1   = 26 // IDXGIOutput5
	dxgiDuplAcquireNextFrame      = 8  // IDXGIOutputDuplication
	dxgiDuplReleaseFrame          = 14 // IDXGIOutputDuplication
	d3d11DeviceCreateTexture2D    = 5  // ID3D11Device
	d3d11CtxMap                   = 14 // ID3D11DeviceContext
	d3d11CtxUnmap                 = 15 // ID3D11DeviceContext
	d3d11CtxCopySubresourceRegion = 46 // ID3D11DeviceContext
)

// windowsRect matches RECT.
type windowsRect struct {
	Left   int32
	Top    int32
	Right  int32
	Bottom int32
}

// dxgiOutputDesc matches DXGI_OUTPUT_DESC.
type dxgiOutputDesc struct {
	DeviceName         [32]uint16
	DesktopCoordinates windowsRect
	AttachedToDesktop  int32 // BOOL
	Rotation           uint32
	Monitor            uintptr
}

// d3d11Texture2DDesc matches D3D11_TEXTURE2D_DESC.
type d3d11Texture2DDesc struct {
	Width          uint32
	Height         uint32
	MipLevels      uint32
	ArraySize      uint32
	Format         uint32
	SampleCount    uint32 // DXGI_SAMPLE_DESC.Count
	SampleQuality  uint32 // DXGI_SAMPLE_DESC.Quality
	Usage          uint32
	BindFlags      uint32
	CPUAccessFlags uint32
	MiscFlags      uint32
}

// d3d11MappedSubresource matches D3D11_MAPPED_SUBRESOURCE.
type d3d11MappedSubresource struct {
	PData      uintptr
	RowPitch   uint32
	DepthPitch uint32
}

// d3d11Box matches D3D11_BOX.
type d3d11Box struct {
	Left   uint32
	Top    uint32
	Front  uint32
	Right  uint32
	Bottom uint32
	Back   uint32
}

// dxgiOutDuplFrameInfo matches DXGI_OUTDUPL_FRAME_INFO.
type dxgiOutDuplFrameInfo struct {
	LastPresentTime           int64
	LastMouseUpdateTime       int64
	AccumulatedFrames         uint32
	RectsCoalesced            int32
	ProtectedContentMaskedOut int32
	PointerPositionX          int32
	PointerPositionY          int32
	PointerVisible            int32
	TotalMetadataBufferSize   uint32
	PointerShapeBufferSize    uint32
}

// duplicationFormats is the negotiation order for DuplicateOutput1: the
// standard 8-bit order first, the alternate 8-bit order next, the HDR float
// format last. First format the output accepts wins.
var duplicationFormats = []struct {
	dxgi   uint32
	format PixelFormat
}{
	{dxgiFormatB8G8R8A8, FormatBGRA8},
	{dxgiFormatR8G8B8A8, FormatRGBA8},
	{dxgiFormatR16G16B16A16Float, FormatRGBA16Float},
}

func (f PixelFormat) dxgi() uint32 {
	switch f {
	case FormatRGBA8:
		return dxgiFormatR8G8B8A8
	case FormatRGBA16Float:
		return dxgiFormatR16G16B16A16Float
	default:
		return dxgiFormatB8G8R8A8
	}
}

// dxgiSession owns the full duplication bundle: D3D11 device, immediate
// context and the live IDXGIOutputDuplication handle. The bundle is created
// whole by newPlatformSession and released whole by Release; no field is
// ever replaced individually.
type dxgiSession struct {
	device      uintptr // ID3D11Device
	context     uintptr // ID3D11DeviceContext
	duplication uintptr // IDXGIOutputDuplication

	outputW uint32
	outputH uint32
	format  PixelFormat
}

// newPlatformSession negotiates a working device/duplication/format
// combination for the configured output.
func newPlatformSession(cfg Config) (session, error) {
	// D3D11CreateDevice
	var device, context uintptr
	featureLevel := uint32(d3dFeatureLevel11_0)
	var actualLevel uint32

	hr, _, _ := procD3D11CreateDevice.Call(
		0,                                      // pAdapter (NULL = default)
		uintptr(d3dDriverTypeHardware),         // DriverType
		0,                                      // Software
		uintptr(d3d11CreateDeviceBGRASupport),  // Flags
		uintptr(unsafe.Pointer(&featureLevel)), // pFeatureLevels
		1,                                      // FeatureLevels count
		uintptr(d3d11SDKVersion),               // SDKVersion
		uintptr(unsafe.Pointer(&device)),       // ppDevice
		uintptr(unsafe.Pointer(&actualLevel)),  // pFeatureLevel
		uintptr(unsafe.Pointer(&context)),      // ppImmediateContext
	)
	if int32(hr) < 0 {
		// Some drivers reject the BGRA flag. Retry with a plain device.
		hr, _, _ = procD3D11CreateDevice.Call(
			0,
			uintptr(d3dDriverTypeHardware),
			0,
			0,
			uintptr(unsafe.Pointer(&featureLevel)),
			1,
			uintptr(d3d11SDKVersion),
			uintptr(unsafe.Pointer(&device)),
			uintptr(unsafe.Pointer(&actualLevel)),
			uintptr(unsafe.Pointer(&context)),
		)
	}
	if int32(hr) < 0 {
		return nil, fmt.Errorf("D3D11CreateDevice failed: 0x%08X", uint32(hr))
	}

	// QueryInterface → IDXGIDevice
	var dxgiDevice uintptr
	_, err := comCall(device, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIDevice)),
		uintptr(unsafe.Pointer(&dxgiDevice)),
	)
	if err != nil {
		comRelease(context)
		comRelease(device)
		return nil, fmt.Errorf("QueryInterface IDXGIDevice: %w", err)
	}
	defer comRelease(dxgiDevice)

	// GetAdapter
	var adapter uintptr
	_, err = comCall(dxgiDevice, dxgiDeviceGetAdapter, uintptr(unsafe.Pointer(&adapter)))
	if err != nil {
		comRelease(context)
		comRelease(device)
		return nil, fmt.Errorf("IDXGIDevice::GetAdapter: %w", err)
	}
	defer comRelease(adapter)

	// EnumOutputs
	var output uintptr
	_, err = comCall(adapter, dxgiAdapterEnumOutputs,
		uintptr(cfg.DisplayIndex),
		uintptr(unsafe.Pointer(&output)),
	)
	if err != nil {
		comRelease(context)
		comRelease(device)
		return nil, fmt.Errorf("IDXGIAdapter::EnumOutputs(%d): %w", cfg.DisplayIndex, err)
	}

	// Output dimensions from the output's desktop rectangle.
	var outputDesc dxgiOutputDesc
	_, err = comCall(output, dxgiOutputGetDesc, uintptr(unsafe.Pointer(&outputDesc)))
	if err != nil {
		comRelease(output)
		comRelease(context)
		comRelease(device)
		return nil, fmt.Errorf("IDXGIOutput::GetDesc: %w", err)
	}
	width := outputDesc.DesktopCoordinates.Right - outputDesc.DesktopCoordinates.Left
	height := outputDesc.DesktopCoordinates.Bottom - outputDesc.DesktopCoordinates.Top
	if width <= 0 || height <= 0 {
		comRelease(output)
		comRelease(context)
		comRelease(device)
		return nil, fmt.Errorf("invalid output dimensions: %dx%d", width, height)
	}

	// QueryInterface → IDXGIOutput5 (DuplicateOutput1 with a format list)
	var output5 uintptr
	_, err = comCall(output, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidIDXGIOutput5)),
		uintptr(unsafe.Pointer(&output5)),
	)
	comRelease(output)
	if err != nil {
		comRelease(context)
		comRelease(device)
		return nil, fmt.Errorf("QueryInterface IDXGIOutput5: %w", err)
	}
	defer comRelease(output5)

	// DuplicateOutput1, trying each candidate format in order.
	var duplication uintptr
	chosen := FormatBGRA8
	for _, cand := range duplicationFormats {
		dxgiFormat := cand.dxgi
		_, err = comCall(output5, dxgiOutput5DuplicateOutput1,
			device,
			0, // Flags
			1, // SupportedFormatsCount
			uintptr(unsafe.Pointer(&dxgiFormat)),
			uintptr(unsafe.Pointer(&duplication)),
		)
		if err == nil {
			chosen = cand.format
			break
		}
	}
	if duplication == 0 {
		comRelease(context)
		comRelease(device)
		return nil, fmt.Errorf("IDXGIOutput5::DuplicateOutput1: no candidate format accepted: %w", err)
	}

	return &dxgiSession{
		device:      device,
		context:     context,
		duplication: duplication,
		outputW:     uint32(width),
		outputH:     uint32(height),
		format:      chosen,
	}, nil
}

func (s *dxgiSession) OutputBounds() (uint32, uint32) { return s.outputW, s.outputH }

func (s *dxgiSession) Format() PixelFormat { return s.format }

// CreateStaging allocates a CPU-readable staging texture of the negotiated
// format with exactly the given dimensions. No GPU bind flags: the texture
// exists only as a readback target.
func (s *dxgiSession) CreateStaging(width, height uint32) (stagingTexture, error) {
	desc := d3d11Texture2DDesc{
		Width:          width,
		Height:         height,
		MipLevels:      1,
		ArraySize:      1,
		Format:         s.format.dxgi(),
		SampleCount:    1,
		SampleQuality:  0,
		Usage:          d3d11UsageStaging,
		BindFlags:      0,
		CPUAccessFlags: d3d11CPUAccessRead,
		MiscFlags:      0,
	}
	var texture uintptr
	_, err := comCall(s.device, d3d11DeviceCreateTexture2D,
		uintptr(unsafe.Pointer(&desc)),
		0, // pInitialData
		uintptr(unsafe.Pointer(&texture)),
	)
	if err != nil {
		return nil, fmt.Errorf("CreateTexture2D staging %dx%d: %w", width, height, err)
	}
	return &dxgiStaging{session: s, texture: texture, height: height}, nil
}

// AcquireFrame polls AcquireNextFrame with zero wait. A wait timeout is the
// intentional "no new frame" case and returns (nil, nil).
func (s *dxgiSession) AcquireFrame() (frame, error) {
	var frameInfo dxgiOutDuplFrameInfo
	var resource uintptr

	hr, _, _ := syscall.SyscallN(
		comVtblFn(s.duplication, dxgiDuplAcquireNextFrame),
		s.duplication,
		0, // TimeoutInMilliseconds: zero-wait poll
		uintptr(unsafe.Pointer(&frameInfo)),
		uintptr(unsafe.Pointer(&resource)),
	)

	hresult := uint32(hr)
	switch {
	case hresult == dxgiErrWaitTimeout:
		return nil, nil
	case isDeviceLost(hresult):
		return nil, fmt.Errorf("%w: AcquireNextFrame 0x%08X", errDeviceLost, hresult)
	case int32(hr) < 0:
		return nil, fmt.Errorf("AcquireNextFrame: 0x%08X", hresult)
	}

	if resource == 0 {
		// Acquisition succeeded but handed back no resource. Treat as an
		// empty poll; the frame must still go back to the duplication.
		syscall.SyscallN(comVtblFn(s.duplication, dxgiDuplReleaseFrame), s.duplication)
		return nil, nil
	}

	// QueryInterface → ID3D11Texture2D
	var texture uintptr
	_, err := comCall(resource, vtblQueryInterface,
		uintptr(unsafe.Pointer(&iidID3D11Texture2D)),
		uintptr(unsafe.Pointer(&texture)),
	)
	comRelease(resource)
	if err != nil {
		syscall.SyscallN(comVtblFn(s.duplication, dxgiDuplReleaseFrame), s.duplication)
		return nil, fmt.Errorf("QueryInterface ID3D11Texture2D: %w", err)
	}

	return &dxgiFrame{session: s, texture: texture}, nil
}

// isDeviceLost reports whether an HRESULT is one of the transient
// device-loss conditions that require full session recreation.
func isDeviceLost(hresult uint32) bool {
	switch hresult {
	case dxgiErrAccessLost, dxgiErrDeviceRemoved, dxgiErrDeviceReset, dxgiErrSessionDisconnected:
		return true
	}
	return false
}

// Release drops the whole bundle. Safe on a partially-released session.
func (s *dxgiSession) Release() {
	if s.duplication != 0 {
		comRelease(s.duplication)
		s.duplication = 0
	}
	if s.context != 0 {
		comRelease(s.context)
		s.context = 0
	}
	if s.device != 0 {
		comRelease(s.device)
		s.device = 0
	}
}

var _ session = (*dxgiSession)(nil)
