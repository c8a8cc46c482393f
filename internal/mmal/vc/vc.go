// Package vc drives the VideoCore firmware through the Raspberry Pi userland
// libraries (libmmal_core, libmmal_util, libmmal_vc_client, libvcos and
// libbcm_host). The libraries are opened at run time with purego, so the
// binary builds without cgo and only needs them on the device.
package vc

import "errors"

// ErrUnavailable is returned where the VideoCore libraries cannot be used.
var ErrUnavailable = errors.New("VideoCore libraries are not available on this platform")

// LibDirEnv names a directory searched for the userland libraries before the
// system locations.
const LibDirEnv = "VIDCAPTURE_VC_LIB_DIR"

// DriverName identifies the driver in logs and configuration.
const DriverName = "mmal"
