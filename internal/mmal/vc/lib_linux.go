//go:build linux && (arm64 || amd64)

package vc

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ebitengine/purego"
)

var (
	libOnce    sync.Once
	libErr     error
	libHandles []uintptr
)

// Userland entry points. Status results are MMAL_STATUS_T values.
var (
	bcmHostInit func()
	vcosInit    func() int32
	mmalVcInit  func() int32

	mmalComponentCreate  func(name string, component *uintptr) int32
	mmalComponentDestroy func(component uintptr) int32
	mmalComponentEnable  func(component uintptr) int32
	mmalComponentDisable func(component uintptr) int32

	mmalPortEnable              func(port, cb uintptr) int32
	mmalPortDisable             func(port uintptr) int32
	mmalPortFormatCommit        func(port uintptr) int32
	mmalPortParameterSet        func(port uintptr, param *cParameterHeader) int32
	mmalPortParameterSetBoolean func(port uintptr, id uint32, value int32) int32
	mmalPortSendBuffer          func(port, buf uintptr) int32
	mmalPortPoolCreate          func(port uintptr, num, size uint32) uintptr
	mmalPortPoolDestroy         func(port, pool uintptr)

	mmalQueueGet    func(queue uintptr) uintptr
	mmalQueueLength func(queue uintptr) uint32

	mmalBufferHeaderMemLock   func(buf uintptr) int32
	mmalBufferHeaderMemUnlock func(buf uintptr)
	mmalBufferHeaderRelease   func(buf uintptr)

	mmalConnectionCreate  func(conn *uintptr, out, in uintptr, flags uint32) int32
	mmalConnectionEnable  func(conn uintptr) int32
	mmalConnectionDisable func(conn uintptr) int32
	mmalConnectionDestroy func(conn uintptr) int32
)

// Load order matters: later libraries resolve symbols of earlier ones.
var libraries = []string{
	"libvcos.so",
	"libbcm_host.so",
	"libmmal_core.so",
	"libmmal_util.so",
	"libmmal_vc_client.so",
}

// Available loads the userland libraries if needed and reports whether they
// can be used.
func Available() error {
	libOnce.Do(func() {
		libErr = loadLibraries()
	})
	return libErr
}

func loadLibraries() error {
	handles := make(map[string]uintptr, len(libraries))
	for _, name := range libraries {
		h, err := openLibrary(name)
		if err != nil {
			closeHandles(handles)
			return err
		}
		handles[name] = h
	}
	if err := registerSymbols(handles); err != nil {
		closeHandles(handles)
		return err
	}
	for _, h := range handles {
		libHandles = append(libHandles, h)
	}
	return nil
}

func openLibrary(name string) (uintptr, error) {
	var lastErr error
	for _, path := range libraryPaths(name) {
		h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return h, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = errors.New("no search path")
	}
	return 0, fmt.Errorf("failed to load %s: %w", name, lastErr)
}

func libraryPaths(name string) []string {
	var paths []string
	if dir := os.Getenv(LibDirEnv); dir != "" {
		paths = append(paths, filepath.Join(dir, name))
	}
	return append(paths,
		filepath.Join("/opt/vc/lib", name),
		filepath.Join("/usr/lib/aarch64-linux-gnu", name),
		name,
	)
}

func closeHandles(handles map[string]uintptr) {
	for _, h := range handles {
		purego.Dlclose(h)
	}
}

// registerSymbols binds the entry points. RegisterLibFunc panics on a missing
// symbol, which is turned into an error here.
func registerSymbols(h map[string]uintptr) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to resolve VideoCore symbol: %v", r)
		}
	}()

	vcos := h["libvcos.so"]
	purego.RegisterLibFunc(&vcosInit, vcos, "vcos_init")

	purego.RegisterLibFunc(&bcmHostInit, h["libbcm_host.so"], "bcm_host_init")
	purego.RegisterLibFunc(&mmalVcInit, h["libmmal_vc_client.so"], "mmal_vc_init")

	core := h["libmmal_core.so"]
	purego.RegisterLibFunc(&mmalComponentCreate, core, "mmal_component_create")
	purego.RegisterLibFunc(&mmalComponentDestroy, core, "mmal_component_destroy")
	purego.RegisterLibFunc(&mmalComponentEnable, core, "mmal_component_enable")
	purego.RegisterLibFunc(&mmalComponentDisable, core, "mmal_component_disable")
	purego.RegisterLibFunc(&mmalPortEnable, core, "mmal_port_enable")
	purego.RegisterLibFunc(&mmalPortDisable, core, "mmal_port_disable")
	purego.RegisterLibFunc(&mmalPortFormatCommit, core, "mmal_port_format_commit")
	purego.RegisterLibFunc(&mmalPortParameterSet, core, "mmal_port_parameter_set")
	purego.RegisterLibFunc(&mmalPortSendBuffer, core, "mmal_port_send_buffer")
	purego.RegisterLibFunc(&mmalQueueGet, core, "mmal_queue_get")
	purego.RegisterLibFunc(&mmalQueueLength, core, "mmal_queue_length")
	purego.RegisterLibFunc(&mmalBufferHeaderMemLock, core, "mmal_buffer_header_mem_lock")
	purego.RegisterLibFunc(&mmalBufferHeaderMemUnlock, core, "mmal_buffer_header_mem_unlock")
	purego.RegisterLibFunc(&mmalBufferHeaderRelease, core, "mmal_buffer_header_release")

	util := h["libmmal_util.so"]
	purego.RegisterLibFunc(&mmalPortParameterSetBoolean, util, "mmal_port_parameter_set_boolean")
	purego.RegisterLibFunc(&mmalPortPoolCreate, util, "mmal_port_pool_create")
	purego.RegisterLibFunc(&mmalPortPoolDestroy, util, "mmal_port_pool_destroy")
	purego.RegisterLibFunc(&mmalConnectionCreate, util, "mmal_connection_create")
	purego.RegisterLibFunc(&mmalConnectionEnable, util, "mmal_connection_enable")
	purego.RegisterLibFunc(&mmalConnectionDisable, util, "mmal_connection_disable")
	purego.RegisterLibFunc(&mmalConnectionDestroy, util, "mmal_connection_destroy")
	return nil
}
