//go:build linux && (arm64 || amd64)

package vc

import (
	"encoding/binary"
	"syscall"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

func TestStructLayout(t *testing.T) {
	tests := []struct {
		name string
		got  uintptr
		want uintptr
	}{
		{"component size", unsafe.Sizeof(cComponent{}), 112},
		{"component output", unsafe.Offsetof(cComponent{}.output), 64},
		{"port size", unsafe.Sizeof(cPort{}), 96},
		{"port format", unsafe.Offsetof(cPort{}.format), 32},
		{"port buffer_num", unsafe.Offsetof(cPort{}.bufferNum), 60},
		{"port component", unsafe.Offsetof(cPort{}.component), 72},
		{"format size", unsafe.Sizeof(cFormat{}), 48},
		{"format es", unsafe.Offsetof(cFormat{}.es), 16},
		{"video format size", unsafe.Sizeof(cVideoFormat{}), 44},
		{"buffer size", unsafe.Sizeof(cBufferHeader{}), 80},
		{"buffer data", unsafe.Offsetof(cBufferHeader{}.data), 24},
		{"buffer length", unsafe.Offsetof(cBufferHeader{}.length), 36},
		{"buffer flags", unsafe.Offsetof(cBufferHeader{}.flags), 44},
		{"buffer pts", unsafe.Offsetof(cBufferHeader{}.pts), 48},
		{"camera config size", unsafe.Sizeof(cCameraConfig{}), 48},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got, tt.name)
	}
}

// cMemory maps an anonymous page outside the Go heap, standing in for memory
// owned by the userland libraries.
func cMemory(t *testing.T) []byte {
	t.Helper()
	mem, err := syscall.Mmap(-1, 0, syscall.Getpagesize(),
		syscall.PROT_READ|syscall.PROT_WRITE, syscall.MAP_ANON|syscall.MAP_PRIVATE)
	require.NoError(t, err)
	t.Cleanup(func() { syscall.Munmap(mem) })
	return mem
}

func TestGoString(t *testing.T) {
	mem := cMemory(t)
	copy(mem, "vc.ril.camera:out:1\x00")

	assert.Equal(t, "vc.ril.camera:out:1", goString(uintptr(unsafe.Pointer(&mem[0]))))
	assert.Empty(t, goString(0))
}

func TestPointerArray(t *testing.T) {
	mem := cMemory(t)
	want := []uintptr{0x10, 0x20, 0x30}
	for i, p := range want {
		binary.LittleEndian.PutUint64(mem[i*8:], uint64(p))
	}
	base := uintptr(unsafe.Pointer(&mem[0]))

	assert.Equal(t, want, pointerArray(base, 3))
	assert.Nil(t, pointerArray(0, 3))
	assert.Nil(t, pointerArray(base, 0))
}

func TestLibraryPathsHonourOverride(t *testing.T) {
	t.Setenv(LibDirEnv, "/tmp/vc")
	paths := libraryPaths("libmmal_core.so")
	require.NotEmpty(t, paths)
	assert.Equal(t, "/tmp/vc/libmmal_core.so", paths[0])
	assert.Equal(t, "libmmal_core.so", paths[len(paths)-1])
}

func TestDriverWithoutLibraries(t *testing.T) {
	if Available() == nil {
		t.Skip("VideoCore libraries present")
	}
	d := New()
	assert.Equal(t, DriverName, d.Name())
	assert.Error(t, d.Init())

	_, st := d.CreateComponent(mmal.ComponentCamera)
	assert.Equal(t, mmal.ENOSYS, st)
}
