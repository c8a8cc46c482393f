// Package sim emulates the VideoCore coprocessor in process.
//
// The simulated encoder completes output buffers from a script of payload
// sizes once the camera capture flag is set, the tunnel is enabled and the
// client has primed the output port. A size of zero is delivered as the
// end-of-stream buffer. Every ownership rule the real firmware relies on
// (buffers released once, pools destroyed before their component, tunnels
// destroyed before their endpoints) is checked and recorded as a violation.
package sim

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// Op names a driver operation that can be made to fail.
type Op string

const (
	OpCreate           Op = "create"
	OpComponentEnable  Op = "component_enable"
	OpPortEnable       Op = "port_enable"
	OpCommit           Op = "commit"
	OpSetParameter     Op = "set_parameter"
	OpConnect          Op = "connect"
	OpConnectionEnable Op = "connection_enable"
	OpCreatePool       Op = "create_pool"
	OpSend             Op = "send"
)

// Resources counts driver objects.
type Resources struct {
	Components  int
	Connections int
	Pools       int
}

type failure struct {
	after  int
	status mmal.Status
}

// Option configures a Driver.
type Option func(*Driver)

// WithFrames scripts the encoder output. Each value is the payload length of
// one completed buffer; 0 ends the stream.
func WithFrames(sizes ...int) Option {
	return func(d *Driver) {
		d.frames = append([]int(nil), sizes...)
	}
}

// WithContinuousFrames keeps producing frames of size bytes after the script
// is exhausted, until capture stops or the port is disabled.
func WithContinuousFrames(size int) Option {
	return func(d *Driver) {
		d.continuous = size
	}
}

// WithFrameInterval paces frame completion.
func WithFrameInterval(interval time.Duration) Option {
	return func(d *Driver) {
		d.interval = interval
	}
}

// WithFailure makes op on the named object return status.
func WithFailure(op Op, name string, status mmal.Status) Option {
	return WithFailureAfter(op, name, 0, status)
}

// WithFailureAfter lets op on the named object succeed n times before it
// starts returning status.
func WithFailureAfter(op Op, name string, n int, status mmal.Status) Option {
	return func(d *Driver) {
		d.failures[failureKey(op, name)] = &failure{after: n, status: status}
	}
}

// WithInitError makes Init fail.
func WithInitError(err error) Option {
	return func(d *Driver) {
		d.initErr = err
	}
}

// Driver is an in-process mmal.Driver.
type Driver struct {
	mu sync.Mutex

	initOnce  sync.Once
	initErr   error
	initCalls int

	frames     []int
	continuous int
	interval   time.Duration
	encoderOut *mmal.BufferSizing
	failures   map[string]*failure
	producers  map[*port]*producer

	live       Resources
	created    Resources
	sent       map[string]int
	delivered  int
	violations []string
}

var _ mmal.Driver = (*Driver)(nil)

// New creates a simulated driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		failures:  make(map[string]*failure),
		producers: make(map[*port]*producer),
		sent:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Driver) Name() string { return "sim" }

// Init is idempotent; the first result is returned to every caller.
func (d *Driver) Init() error {
	d.mu.Lock()
	d.initCalls++
	d.mu.Unlock()

	d.initOnce.Do(func() {
		slog.Debug("Simulated VideoCore runtime initialized")
	})
	return d.initErr
}

// CreateComponent supports the camera and the video encoder.
func (d *Driver) CreateComponent(name string) (mmal.Component, mmal.Status) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if st := d.failLocked(OpCreate, name); !st.OK() {
		return nil, st
	}

	c := &component{drv: d, name: name}
	c.control = newPort(c, portControl, 0)
	switch name {
	case mmal.ComponentCamera:
		for i := 0; i < 3; i++ {
			c.outputs = append(c.outputs, newPort(c, portOutput, i))
		}
	case mmal.ComponentVideoEncoder:
		c.inputs = append(c.inputs, newPort(c, portInput, 0))
		c.outputs = append(c.outputs, newPort(c, portOutput, 0))
	default:
		return nil, mmal.ENOENT
	}
	c.events = newPool(d, c.control, 1, 4)

	d.live.Components++
	d.created.Components++
	return c, mmal.Success
}

// Connect creates a tunnel between two ports of this driver.
func (d *Driver) Connect(out, in mmal.Port, flags mmal.ConnectionFlags) (mmal.Connection, mmal.Status) {
	src, ok1 := out.(*port)
	dst, ok2 := in.(*port)
	if !ok1 || !ok2 || src.drv() != d || dst.drv() != d {
		return nil, mmal.EINVAL
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	name := src.name + "->" + dst.name
	if st := d.failLocked(OpConnect, name); !st.OK() {
		return nil, st
	}
	if src.kind != portOutput || dst.kind != portInput {
		return nil, mmal.EINVAL
	}
	if src.conn != nil || dst.conn != nil {
		return nil, mmal.EISCONN
	}

	c := &connection{drv: d, name: name, out: src, in: dst, flags: flags}
	src.conn = c
	dst.conn = c
	d.live.Connections++
	d.created.Connections++
	return c, mmal.Success
}

// InitCalls reports how many times Init was called.
func (d *Driver) InitCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initCalls
}

// Live reports the objects currently allocated.
func (d *Driver) Live() Resources {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Created reports every object ever allocated.
func (d *Driver) Created() Resources {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

// Sent reports how many buffers were accepted by the named port.
func (d *Driver) Sent(portName string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sent[portName]
}

// Delivered reports how many buffers the encoder handed back to the client.
func (d *Driver) Delivered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.delivered
}

// Violations lists every ownership rule that was broken.
func (d *Driver) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

func (d *Driver) violationLocked(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Warn("Simulated hardware rule violated", "violation", msg)
	d.violations = append(d.violations, msg)
}

func (d *Driver) failLocked(op Op, name string) mmal.Status {
	f, ok := d.failures[failureKey(op, name)]
	if !ok {
		return mmal.Success
	}
	if f.after > 0 {
		f.after--
		return mmal.Success
	}
	return f.status
}

func failureKey(op Op, name string) string {
	return string(op) + ":" + name
}

// FramePayload returns the bytes the simulated encoder writes for the
// index-th scripted frame.
func FramePayload(index, size int) []byte {
	p := make([]byte, size)
	fillPayload(p, index)
	return p
}
