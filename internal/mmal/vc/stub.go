//go:build !linux || !(arm64 || amd64)

package vc

import "github.com/audiolibrelab/vidcapture/internal/mmal"

// Driver reports ErrUnavailable on platforms without the userland libraries.
type Driver struct{}

var _ mmal.Driver = (*Driver)(nil)

func New() *Driver { return &Driver{} }

// Available reports why the driver cannot be used.
func Available() error { return ErrUnavailable }

func (d *Driver) Name() string { return DriverName }

func (d *Driver) Init() error { return ErrUnavailable }

func (d *Driver) CreateComponent(string) (mmal.Component, mmal.Status) {
	return nil, mmal.ENOSYS
}

func (d *Driver) Connect(mmal.Port, mmal.Port, mmal.ConnectionFlags) (mmal.Connection, mmal.Status) {
	return nil, mmal.ENOSYS
}
