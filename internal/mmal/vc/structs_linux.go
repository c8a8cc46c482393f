//go:build linux && (arm64 || amd64)

package vc

import "unsafe"

// Go mirrors of the MMAL structures the driver reads or writes. Pointers are
// uintptr so the layout follows the C ABI of 64-bit targets.

type cComponent struct {
	priv      uintptr
	userdata  uintptr
	name      uintptr
	isEnabled uint32
	control   uintptr
	inputNum  uint32
	input     uintptr
	outputNum uint32
	output    uintptr
	clockNum  uint32
	clock     uintptr
	portNum   uint32
	port      uintptr
	id        uint32
}

type cPort struct {
	priv                  uintptr
	name                  uintptr
	typ                   uint32
	index                 uint16
	indexAll              uint16
	isEnabled             uint32
	format                uintptr
	bufferNumMin          uint32
	bufferSizeMin         uint32
	bufferAlignmentMin    uint32
	bufferNumRecommended  uint32
	bufferSizeRecommended uint32
	bufferNum             uint32
	bufferSize            uint32
	component             uintptr
	userdata              uintptr
	capabilities          uint32
}

type cFormat struct {
	typ             uint32
	encoding        uint32
	encodingVariant uint32
	es              uintptr
	bitrate         uint32
	flags           uint32
	extradataSize   uint32
	extradata       uintptr
}

type cRect struct {
	x, y, width, height int32
}

type cRational struct {
	num, den int32
}

type cVideoFormat struct {
	width      uint32
	height     uint32
	crop       cRect
	frameRate  cRational
	par        cRational
	colorSpace uint32
}

type cBufferHeader struct {
	next      uintptr
	priv      uintptr
	cmd       uint32
	data      uintptr
	allocSize uint32
	length    uint32
	offset    uint32
	flags     uint32
	pts       int64
	dts       int64
	typ       uintptr
	userData  uintptr
}

type cPool struct {
	queue      uintptr
	headersNum uint32
	header     uintptr
}

type cParameterHeader struct {
	id   uint32
	size uint32
}

type cCameraConfig struct {
	hdr                               cParameterHeader
	maxStillsW                        uint32
	maxStillsH                        uint32
	stillsYUV422                      uint32
	oneShotStills                     uint32
	maxPreviewVideoW                  uint32
	maxPreviewVideoH                  uint32
	numPreviewVideoFrames             uint32
	stillsCaptureCircularBufferHeight uint32
	fastPreviewResume                 uint32
	useSTCTimestamp                   uint32
}

func portAt(addr uintptr) *cPort {
	return (*cPort)(unsafe.Pointer(addr))
}

func componentAt(addr uintptr) *cComponent {
	return (*cComponent)(unsafe.Pointer(addr))
}

func formatAt(addr uintptr) *cFormat {
	return (*cFormat)(unsafe.Pointer(addr))
}

func videoFormatAt(addr uintptr) *cVideoFormat {
	return (*cVideoFormat)(unsafe.Pointer(addr))
}

func bufferAt(addr uintptr) *cBufferHeader {
	return (*cBufferHeader)(unsafe.Pointer(addr))
}

func poolAt(addr uintptr) *cPool {
	return (*cPool)(unsafe.Pointer(addr))
}

// pointerArray views a C array of n pointers.
func pointerArray(base uintptr, n uint32) []uintptr {
	if base == 0 || n == 0 {
		return nil
	}
	return unsafe.Slice((*uintptr)(unsafe.Pointer(base)), n)
}

// goString copies a NUL terminated C string.
func goString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(unsafe.Pointer(addr), n)) != 0 {
		n++
		if n > 256 {
			break
		}
	}
	return string(unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
}
