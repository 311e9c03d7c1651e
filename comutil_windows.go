//go:build windows

package dxgiscreengrab

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

// COM vtable calling infrastructure for D3D11/DXGI. Pure Go, no cgo:
// interfaces are raw pointers and methods are resolved by vtable index.

var (
	d3d11DLL              = windows.NewLazySystemDLL("d3d11.dll")
	procD3D11CreateDevice = d3d11DLL.NewProc("D3D11CreateDevice")
)

// COM IIDs for the interfaces the engine queries.
var (
	iidIDXGIDevice, _     = windows.GUIDFromString("{54EC77FA-1377-44E6-8C32-88FD5F44C84C}")
	iidIDXGIOutput5, _    = windows.GUIDFromString("{80A07424-AB52-42EB-833C-0C42FD282D98}")
	iidID3D11Texture2D, _ = windows.GUIDFromString("{6F15AAF2-D208-4E89-9AB4-489535D34F9C}")
)

// IUnknown vtable indices.
const (
	vtblQueryInterface = 0
	vtblRelease        = 2
)

// comVtblFn resolves a COM vtable function pointer by index.
func comVtblFn(obj uintptr, idx int) uintptr {
	vtablePtr := *(*uintptr)(unsafe.Pointer(obj))
	return *(*uintptr)(unsafe.Pointer(vtablePtr + uintptr(idx)*unsafe.Sizeof(uintptr(0))))
}

// comCall invokes a COM vtable method at the given index.
// obj is a pointer to a COM interface (pointer to pointer to vtable).
func comCall(obj uintptr, vtableIdx int, args ...uintptr) (uintptr, error) {
	allArgs := make([]uintptr, 0, 1+len(args))
	allArgs = append(allArgs, obj)
	allArgs = append(allArgs, args...)
	ret, _, _ := syscall.SyscallN(comVtblFn(obj, vtableIdx), allArgs...)
	if int32(ret) < 0 {
		return ret, fmt.Errorf("COM vtable[%d] HRESULT 0x%08X", vtableIdx, uint32(ret))
	}
	return ret, nil
}

// comRelease calls IUnknown::Release.
func comRelease(obj uintptr) {
	if obj != 0 {
		syscall.SyscallN(comVtblFn(obj, vtblRelease), obj)
	}
}
