package sim

import (
	"fmt"

	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

type portKind int

const (
	portControl portKind = iota
	portInput
	portOutput
)

func (k portKind) tag() string {
	switch k {
	case portControl:
		return "ctr"
	case portInput:
		return "in"
	default:
		return "out"
	}
}

var (
	opaqueSizing = mmal.BufferSizing{
		NumMin: 1, SizeMin: 128,
		NumRecommended: 1, SizeRecommended: 128,
		Num: 1, Size: 128,
	}

	// DefaultEncoderOutputSizing matches what the firmware reports for an
	// H.264 output port before any negotiation.
	DefaultEncoderOutputSizing = mmal.BufferSizing{
		NumMin: 1, SizeMin: 2048,
		NumRecommended: 1, SizeRecommended: 65536,
		Num: 1, Size: 2048,
	}
)

// WithEncoderOutputSizing overrides the buffer sizing reported by the encoder
// output port.
func WithEncoderOutputSizing(s mmal.BufferSizing) Option {
	return func(d *Driver) {
		d.encoderOut = &s
	}
}

type component struct {
	drv  *Driver
	name string

	control *port
	inputs  []*port
	outputs []*port
	events  *pool

	enabled   bool
	destroyed bool
}

func (c *component) Name() string { return c.name }

func (c *component) Control() mmal.Port { return c.control }

func (c *component) Inputs() []mmal.Port {
	ports := make([]mmal.Port, len(c.inputs))
	for i, p := range c.inputs {
		ports[i] = p
	}
	return ports
}

func (c *component) Outputs() []mmal.Port {
	ports := make([]mmal.Port, len(c.outputs))
	for i, p := range c.outputs {
		ports[i] = p
	}
	return ports
}

// Enable starts the component. If the control port is enabled the component
// reports one event on it, the way the firmware announces its state.
func (c *component) Enable() mmal.Status {
	d := c.drv
	d.mu.Lock()
	if c.destroyed {
		d.violationLocked("%s enabled after destroy", c.name)
		d.mu.Unlock()
		return mmal.EINVAL
	}
	if st := d.failLocked(OpComponentEnable, c.name); !st.OK() {
		d.mu.Unlock()
		return st
	}
	c.enabled = true

	var (
		cb  mmal.BufferCallback
		evt *buffer
	)
	if c.control.enabled && c.control.cb != nil {
		if b, ok := c.events.getLocked(); ok {
			b.length = 4
			cb, evt = c.control.cb, b
		}
	}
	d.wakeLocked()
	d.mu.Unlock()

	if cb != nil {
		cb(c.control, evt)
	}
	return mmal.Success
}

func (c *component) Disable() mmal.Status {
	d := c.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.destroyed {
		d.violationLocked("%s disabled after destroy", c.name)
		return mmal.EINVAL
	}
	c.enabled = false
	d.wakeLocked()
	return mmal.Success
}

// Destroy disables any port still enabled and frees the component. Pools or
// connections still bound to its ports are reported as violations.
func (c *component) Destroy() mmal.Status {
	d := c.drv
	d.mu.Lock()
	if c.destroyed {
		d.violationLocked("%s destroyed twice", c.name)
		d.mu.Unlock()
		return mmal.EINVAL
	}
	all := append(append([]*port{c.control}, c.inputs...), c.outputs...)
	for _, p := range all {
		if p.conn != nil {
			d.violationLocked("%s destroyed while connection %s is alive", c.name, p.conn.name)
		}
		for _, pl := range p.pools {
			if !pl.destroyed {
				d.violationLocked("%s destroyed before pool on %s", c.name, p.name)
			}
		}
	}
	if len(c.events.queue) != 1 {
		d.violationLocked("%s control event buffer never released", c.name)
	}
	d.mu.Unlock()

	for _, p := range all {
		if p.Enabled() {
			p.Disable()
		}
	}

	d.mu.Lock()
	c.enabled = false
	c.destroyed = true
	d.live.Components--
	d.mu.Unlock()
	return mmal.Success
}

type port struct {
	comp  *component
	kind  portKind
	index int
	name  string

	format    mmal.Format
	committed bool
	sizing    mmal.BufferSizing

	enabled bool
	cb      mmal.BufferCallback
	capture bool
	camera  *mmal.CameraConfig

	conn    *connection
	pools   []*pool
	hwQueue []*buffer

	producer *producer
	next     int
	ended    bool
}

func newPort(c *component, kind portKind, index int) *port {
	p := &port{
		comp:  c,
		kind:  kind,
		index: index,
		name:  fmt.Sprintf("%s:%s:%d", c.name, kind.tag(), index),
	}
	switch {
	case kind == portControl:
	case c.name == mmal.ComponentVideoEncoder && kind == portOutput:
		p.sizing = DefaultEncoderOutputSizing
		if c.drv.encoderOut != nil {
			p.sizing = *c.drv.encoderOut
		}
	default:
		p.sizing = opaqueSizing
	}
	return p
}

func (p *port) drv() *Driver { return p.comp.drv }

func (p *port) Name() string { return p.name }

func (p *port) Enabled() bool {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()
	return p.enabled
}

func (p *port) Format() mmal.Format {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()
	return p.format
}

// CommitFormat validates f against the port and applies it only on success.
func (p *port) CommitFormat(f mmal.Format) mmal.Status {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()

	if st := d.failLocked(OpCommit, p.name); !st.OK() {
		return st
	}
	if p.kind == portControl || f.Encoding == 0 {
		return mmal.EINVAL
	}
	if f.Video.Width == 0 || f.Video.Height == 0 {
		return mmal.EINVAL
	}
	if f.Video.FrameRate.Den == 0 {
		return mmal.EINVAL
	}
	if p.sizing.Num < p.sizing.NumMin || p.sizing.Size < p.sizing.SizeMin {
		return mmal.EINVAL
	}
	p.format = f
	p.committed = true
	return mmal.Success
}

func (p *port) Sizing() mmal.BufferSizing {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()
	return p.sizing
}

func (p *port) SetBuffers(num, size uint32) {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()
	p.sizing.Num = num
	p.sizing.Size = size
}

// Enable installs cb. Enabling the encoder output port starts the simulated
// hardware that completes its buffers.
func (p *port) Enable(cb mmal.BufferCallback) mmal.Status {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()

	if st := d.failLocked(OpPortEnable, p.name); !st.OK() {
		return st
	}
	if p.enabled {
		return mmal.EINVAL
	}
	if p.kind != portControl && !p.committed {
		return mmal.ENOTREADY
	}
	p.enabled = true
	p.cb = cb
	if p.comp.name == mmal.ComponentVideoEncoder && p.kind == portOutput {
		p.producer = startProducer(p)
	}
	return mmal.Success
}

// Disable stops callbacks on the port. When it returns no callback for the
// port is running and every buffer the hardware held is back in its pool.
func (p *port) Disable() mmal.Status {
	d := p.drv()
	d.mu.Lock()
	if !p.enabled {
		d.mu.Unlock()
		return mmal.EINVAL
	}
	p.enabled = false
	p.cb = nil
	prod := p.producer
	p.producer = nil
	d.mu.Unlock()

	if prod != nil {
		prod.stop()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range p.hwQueue {
		b.returnLocked()
	}
	p.hwQueue = nil
	return mmal.Success
}

func (p *port) SetBool(id mmal.ParameterID, v bool) mmal.Status {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()

	if st := d.failLocked(OpSetParameter, p.name); !st.OK() {
		return st
	}
	if id != mmal.ParameterCapture || p.comp.name != mmal.ComponentCamera || p.kind != portOutput {
		return mmal.ENOSYS
	}
	p.capture = v
	d.wakeLocked()
	return mmal.Success
}

func (p *port) SetCameraConfig(cfg mmal.CameraConfig) mmal.Status {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()

	if st := d.failLocked(OpSetParameter, p.name); !st.OK() {
		return st
	}
	if p.comp.name != mmal.ComponentCamera || p.kind != portControl {
		return mmal.ENOSYS
	}
	p.camera = &cfg
	return mmal.Success
}

// CameraConfig returns the last camera configuration applied to a control port.
func CameraConfig(p mmal.Port) (mmal.CameraConfig, bool) {
	sp, ok := p.(*port)
	if !ok {
		return mmal.CameraConfig{}, false
	}
	d := sp.drv()
	d.mu.Lock()
	defer d.mu.Unlock()
	if sp.camera == nil {
		return mmal.CameraConfig{}, false
	}
	return *sp.camera, true
}

// Capturing reports the capture flag of a camera port.
func Capturing(p mmal.Port) bool {
	sp, ok := p.(*port)
	if !ok {
		return false
	}
	d := sp.drv()
	d.mu.Lock()
	defer d.mu.Unlock()
	return sp.capture
}

func (p *port) SendBuffer(mb mmal.Buffer) mmal.Status {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := mb.(*buffer)
	if !ok || b == nil {
		return mmal.EINVAL
	}
	if b.pool.port != p {
		d.violationLocked("buffer %d of %s sent to %s", b.id, b.pool.port.name, p.name)
		return mmal.EINVAL
	}
	if b.state != stateClient {
		d.violationLocked("buffer %d sent while %s", b.id, b.state)
		return mmal.EINVAL
	}
	if !p.enabled {
		return mmal.EINVAL
	}
	if st := d.failLocked(OpSend, p.name); !st.OK() {
		return st
	}
	b.state = stateHardware
	p.hwQueue = append(p.hwQueue, b)
	d.sent[p.name]++
	d.wakeLocked()
	return mmal.Success
}

func (p *port) CreatePool(num, size uint32) (mmal.Pool, mmal.Status) {
	d := p.drv()
	d.mu.Lock()
	defer d.mu.Unlock()

	if st := d.failLocked(OpCreatePool, p.name); !st.OK() {
		return nil, st
	}
	if num == 0 || p.kind == portControl {
		return nil, mmal.EINVAL
	}
	pl := newPool(d, p, int(num), int(size))
	p.pools = append(p.pools, pl)
	d.live.Pools++
	d.created.Pools++
	return pl, mmal.Success
}
