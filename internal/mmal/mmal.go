// Package mmal describes the Multi-Media Abstraction Layer object model of the
// VideoCore coprocessor as Go interfaces.
//
// Two drivers implement it: the vc package talks to the real firmware through
// the userland libraries, and the sim package emulates the coprocessor in
// process. The video package only depends on the interfaces declared here.
package mmal

// Well-known component names.
const (
	ComponentCamera       = "vc.ril.camera"
	ComponentVideoEncoder = "vc.ril.video_encode"
)

// Camera output port indices.
const (
	CameraPreviewPort = 0
	CameraVideoPort   = 1
	CameraCapturePort = 2
)

// ConnectionFlags control how a connection moves buffers between ports.
type ConnectionFlags uint32

const (
	ConnectionFlagTunnelling        ConnectionFlags = 0x1
	ConnectionFlagAllocationOnInput ConnectionFlags = 0x2
)

// BufferFlagEOS marks the last buffer of a stream.
const BufferFlagEOS uint32 = 1 << 0

// ParameterID identifies a port parameter.
type ParameterID uint32

const (
	parameterGroupCamera ParameterID = 1 << 16

	ParameterCapture      ParameterID = parameterGroupCamera + 17
	ParameterCameraConfig ParameterID = parameterGroupCamera + 21
)

// TimestampMode selects how the camera stamps buffers.
type TimestampMode uint32

const (
	TimestampModeZero TimestampMode = iota
	TimestampModeRawSTC
	TimestampModeResetSTC
)

// CameraConfig mirrors MMAL_PARAMETER_CAMERA_CONFIG_T.
type CameraConfig struct {
	MaxStillsW                        uint32
	MaxStillsH                        uint32
	StillsYUV422                      uint32
	OneShotStills                     uint32
	MaxPreviewVideoW                  uint32
	MaxPreviewVideoH                  uint32
	NumPreviewVideoFrames             uint32
	StillsCaptureCircularBufferHeight uint32
	FastPreviewResume                 uint32
	UseSTCTimestamp                   TimestampMode
}

// Driver is the entry point into a coprocessor implementation.
type Driver interface {
	// Name identifies the driver in logs.
	Name() string

	// Init performs the process-wide runtime initialization. It is
	// idempotent: only the first call does any work, later calls return the
	// first result.
	Init() error

	// CreateComponent instantiates a named component.
	CreateComponent(name string) (Component, Status)

	// Connect creates (but does not enable) a connection from an output port
	// to an input port.
	Connect(out, in Port, flags ConnectionFlags) (Connection, Status)
}

// Component is a processing stage owning ports.
type Component interface {
	Name() string
	Control() Port
	Inputs() []Port
	Outputs() []Port
	Enable() Status
	Disable() Status
	Destroy() Status
}

// BufferCallback is invoked by the driver, in its own execution context, for
// every buffer a port hands back to the client.
type BufferCallback func(port Port, buf Buffer)

// Port is a data endpoint of a component.
type Port interface {
	Name() string
	Enabled() bool

	// Format returns a copy of the current format.
	Format() Format

	// CommitFormat applies f and commits it to the hardware in one step. On
	// failure the previous format is left in place.
	CommitFormat(f Format) Status

	// Sizing reports the hardware minimums, recommendations and the values
	// currently configured.
	Sizing() BufferSizing

	// SetBuffers sets the buffer count and size used by the next commit or
	// pool creation.
	SetBuffers(num, size uint32)

	Enable(cb BufferCallback) Status
	Disable() Status

	SetBool(id ParameterID, v bool) Status
	SetCameraConfig(cfg CameraConfig) Status

	SendBuffer(buf Buffer) Status

	// CreatePool allocates a pool of num buffers of size bytes bound to the port.
	CreatePool(num, size uint32) (Pool, Status)
}

// Pool is a fixed set of buffers with a FIFO queue of free headers.
type Pool interface {
	// Get removes the head of the free queue. ok is false if it is empty.
	Get() (buf Buffer, ok bool)
	Len() int
	Destroy()
}

// Buffer is one buffer header exchanged with the hardware.
type Buffer interface {
	Length() uint32
	Offset() uint32
	Flags() uint32

	// Lock maps the payload for reading. The returned slice aliases
	// hardware memory and is only valid until Unlock.
	Lock() ([]byte, Status)
	Unlock()

	// Release hands the header back to its pool. The buffer must not be
	// touched afterwards.
	Release()
}

// Connection is a tunnel between two ports.
type Connection interface {
	Enable() Status
	Disable() Status
	Destroy() Status
}

// BufferSizing groups the buffer fields of a port.
type BufferSizing struct {
	NumMin          uint32
	SizeMin         uint32
	NumRecommended  uint32
	SizeRecommended uint32
	Num             uint32
	Size            uint32
}
