//go:build linux && (arm64 || amd64)

package vc

import (
	"fmt"
	"log/slog"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

var (
	runtimeOnce sync.Once
	runtimeErr  error
)

// Driver talks to the firmware. The VideoCore runtime is process-wide: it is
// initialized once and never torn down.
type Driver struct{}

var _ mmal.Driver = (*Driver)(nil)

func New() *Driver { return &Driver{} }

func (d *Driver) Name() string { return DriverName }

// Init loads the libraries and runs bcm_host_init, vcos_init and
// mmal_vc_init, once per process.
func (d *Driver) Init() error {
	runtimeOnce.Do(func() {
		runtimeErr = initRuntime()
	})
	return runtimeErr
}

func initRuntime() error {
	if err := Available(); err != nil {
		return err
	}
	bcmHostInit()
	if st := vcosInit(); st != 0 {
		return fmt.Errorf("vcos_init failed with status %d", st)
	}
	if st := mmal.Status(mmalVcInit()); !st.OK() {
		return fmt.Errorf("mmal_vc_init failed: %s", st)
	}
	slog.Debug("VideoCore runtime initialized")
	return nil
}

func (d *Driver) CreateComponent(name string) (mmal.Component, mmal.Status) {
	if Available() != nil {
		return nil, mmal.ENOSYS
	}
	addr := new(uintptr)
	if st := mmal.Status(mmalComponentCreate(name, addr)); !st.OK() {
		return nil, st
	}
	return newComponent(*addr, name), mmal.Success
}

func (d *Driver) Connect(out, in mmal.Port, flags mmal.ConnectionFlags) (mmal.Connection, mmal.Status) {
	src, ok1 := out.(*port)
	dst, ok2 := in.(*port)
	if !ok1 || !ok2 {
		return nil, mmal.EINVAL
	}
	addr := new(uintptr)
	if st := mmal.Status(mmalConnectionCreate(addr, src.addr, dst.addr, uint32(flags))); !st.OK() {
		return nil, st
	}
	return &connection{addr: *addr}, mmal.Success
}

// Buffer callbacks arrive on VideoCore threads with only the port and buffer
// pointers, so enabled ports are looked up by address.
var (
	callbackOnce sync.Once
	callbackAddr uintptr

	enabledMu sync.RWMutex
	enabled   = make(map[uintptr]*port)
)

func bufferCallback() uintptr {
	callbackOnce.Do(func() {
		callbackAddr = purego.NewCallback(dispatch)
	})
	return callbackAddr
}

func dispatch(portAddr, bufAddr uintptr) {
	enabledMu.RLock()
	p := enabled[portAddr]
	var cb mmal.BufferCallback
	if p != nil {
		cb = p.cb
	}
	enabledMu.RUnlock()

	if cb == nil {
		if bufAddr != 0 {
			mmalBufferHeaderRelease(bufAddr)
		}
		return
	}
	var buf mmal.Buffer
	if bufAddr != 0 {
		buf = &buffer{addr: bufAddr}
	}
	cb(p, buf)
}

type component struct {
	addr    uintptr
	name    string
	control *port
	inputs  []*port
	outputs []*port
}

func newComponent(addr uintptr, name string) *component {
	cc := componentAt(addr)
	c := &component{addr: addr, name: name, control: newPort(cc.control)}
	for _, p := range pointerArray(cc.input, cc.inputNum) {
		c.inputs = append(c.inputs, newPort(p))
	}
	for _, p := range pointerArray(cc.output, cc.outputNum) {
		c.outputs = append(c.outputs, newPort(p))
	}
	return c
}

func (c *component) Name() string { return c.name }

func (c *component) Control() mmal.Port { return c.control }

func (c *component) Inputs() []mmal.Port { return ports(c.inputs) }

func (c *component) Outputs() []mmal.Port { return ports(c.outputs) }

func ports(ps []*port) []mmal.Port {
	out := make([]mmal.Port, len(ps))
	for i, p := range ps {
		out[i] = p
	}
	return out
}

func (c *component) Enable() mmal.Status {
	return mmal.Status(mmalComponentEnable(c.addr))
}

func (c *component) Disable() mmal.Status {
	return mmal.Status(mmalComponentDisable(c.addr))
}

// Destroy frees the component. The firmware disables any port still
// enabled, so their callbacks are dropped from the dispatch table after.
func (c *component) Destroy() mmal.Status {
	st := mmal.Status(mmalComponentDestroy(c.addr))
	enabledMu.Lock()
	defer enabledMu.Unlock()
	for _, p := range append(append([]*port{c.control}, c.inputs...), c.outputs...) {
		delete(enabled, p.addr)
	}
	return st
}

type port struct {
	addr uintptr
	name string
	cb   mmal.BufferCallback
}

func newPort(addr uintptr) *port {
	return &port{addr: addr, name: goString(portAt(addr).name)}
}

func (p *port) Name() string { return p.name }

func (p *port) Enabled() bool { return portAt(p.addr).isEnabled != 0 }

func (p *port) Format() mmal.Format {
	f := formatAt(portAt(p.addr).format)
	v := videoFormatAt(f.es)
	return mmal.Format{
		Encoding:        mmal.FourCC(f.encoding),
		EncodingVariant: mmal.FourCC(f.encodingVariant),
		Bitrate:         f.bitrate,
		Video: mmal.VideoFormat{
			Width:     v.width,
			Height:    v.height,
			Crop:      mmal.Rect{X: v.crop.x, Y: v.crop.y, Width: v.crop.width, Height: v.crop.height},
			FrameRate: mmal.Rational{Num: v.frameRate.num, Den: v.frameRate.den},
		},
	}
}

// CommitFormat writes f into the port format and commits it. The previous
// values are written back if the firmware rejects the commit.
func (p *port) CommitFormat(f mmal.Format) mmal.Status {
	cf := formatAt(portAt(p.addr).format)
	cv := videoFormatAt(cf.es)
	prevFormat, prevVideo := *cf, *cv

	cf.encoding = uint32(f.Encoding)
	cf.encodingVariant = uint32(f.EncodingVariant)
	cf.bitrate = f.Bitrate
	cv.width = f.Video.Width
	cv.height = f.Video.Height
	cv.crop = cRect{x: f.Video.Crop.X, y: f.Video.Crop.Y, width: f.Video.Crop.Width, height: f.Video.Crop.Height}
	cv.frameRate = cRational{num: f.Video.FrameRate.Num, den: f.Video.FrameRate.Den}

	st := mmal.Status(mmalPortFormatCommit(p.addr))
	if !st.OK() {
		*cf = prevFormat
		*cv = prevVideo
	}
	return st
}

func (p *port) Sizing() mmal.BufferSizing {
	cp := portAt(p.addr)
	return mmal.BufferSizing{
		NumMin:          cp.bufferNumMin,
		SizeMin:         cp.bufferSizeMin,
		NumRecommended:  cp.bufferNumRecommended,
		SizeRecommended: cp.bufferSizeRecommended,
		Num:             cp.bufferNum,
		Size:            cp.bufferSize,
	}
}

func (p *port) SetBuffers(num, size uint32) {
	cp := portAt(p.addr)
	cp.bufferNum = num
	cp.bufferSize = size
}

func (p *port) Enable(cb mmal.BufferCallback) mmal.Status {
	enabledMu.Lock()
	p.cb = cb
	enabled[p.addr] = p
	enabledMu.Unlock()

	st := mmal.Status(mmalPortEnable(p.addr, bufferCallback()))
	if !st.OK() {
		p.forget()
	}
	return st
}

// Disable returns once the firmware has flushed the port, so no callback for
// it runs afterwards.
func (p *port) Disable() mmal.Status {
	st := mmal.Status(mmalPortDisable(p.addr))
	if st.OK() {
		p.forget()
	}
	return st
}

func (p *port) forget() {
	enabledMu.Lock()
	delete(enabled, p.addr)
	p.cb = nil
	enabledMu.Unlock()
}

func (p *port) SetBool(id mmal.ParameterID, v bool) mmal.Status {
	var value int32
	if v {
		value = 1
	}
	return mmal.Status(mmalPortParameterSetBoolean(p.addr, uint32(id), value))
}

func (p *port) SetCameraConfig(cfg mmal.CameraConfig) mmal.Status {
	param := &cCameraConfig{
		hdr: cParameterHeader{
			id:   uint32(mmal.ParameterCameraConfig),
			size: uint32(unsafe.Sizeof(cCameraConfig{})),
		},
		maxStillsW:                        cfg.MaxStillsW,
		maxStillsH:                        cfg.MaxStillsH,
		stillsYUV422:                      cfg.StillsYUV422,
		oneShotStills:                     cfg.OneShotStills,
		maxPreviewVideoW:                  cfg.MaxPreviewVideoW,
		maxPreviewVideoH:                  cfg.MaxPreviewVideoH,
		numPreviewVideoFrames:             cfg.NumPreviewVideoFrames,
		stillsCaptureCircularBufferHeight: cfg.StillsCaptureCircularBufferHeight,
		fastPreviewResume:                 cfg.FastPreviewResume,
		useSTCTimestamp:                   uint32(cfg.UseSTCTimestamp),
	}
	return mmal.Status(mmalPortParameterSet(p.addr, &param.hdr))
}

func (p *port) SendBuffer(b mmal.Buffer) mmal.Status {
	buf, ok := b.(*buffer)
	if !ok || buf == nil {
		return mmal.EINVAL
	}
	return mmal.Status(mmalPortSendBuffer(p.addr, buf.addr))
}

func (p *port) CreatePool(num, size uint32) (mmal.Pool, mmal.Status) {
	addr := mmalPortPoolCreate(p.addr, num, size)
	if addr == 0 {
		return nil, mmal.ENOMEM
	}
	return &pool{port: p, addr: addr}, mmal.Success
}

type pool struct {
	port *port
	addr uintptr
}

func (pl *pool) Get() (mmal.Buffer, bool) {
	addr := mmalQueueGet(poolAt(pl.addr).queue)
	if addr == 0 {
		return nil, false
	}
	return &buffer{addr: addr}, true
}

func (pl *pool) Len() int {
	return int(mmalQueueLength(poolAt(pl.addr).queue))
}

func (pl *pool) Destroy() {
	mmalPortPoolDestroy(pl.port.addr, pl.addr)
}

type buffer struct {
	addr uintptr
}

func (b *buffer) Length() uint32 { return bufferAt(b.addr).length }
func (b *buffer) Offset() uint32 { return bufferAt(b.addr).offset }
func (b *buffer) Flags() uint32  { return bufferAt(b.addr).flags }

// Lock maps the payload. The slice aliases VideoCore memory until Unlock.
func (b *buffer) Lock() ([]byte, mmal.Status) {
	if st := mmal.Status(mmalBufferHeaderMemLock(b.addr)); !st.OK() {
		return nil, st
	}
	h := bufferAt(b.addr)
	if h.length == 0 {
		return nil, mmal.Success
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(h.data+uintptr(h.offset))), h.length), mmal.Success
}

func (b *buffer) Unlock()  { mmalBufferHeaderMemUnlock(b.addr) }
func (b *buffer) Release() { mmalBufferHeaderRelease(b.addr) }

type connection struct {
	addr uintptr
}

func (c *connection) Enable() mmal.Status {
	return mmal.Status(mmalConnectionEnable(c.addr))
}

func (c *connection) Disable() mmal.Status {
	return mmal.Status(mmalConnectionDisable(c.addr))
}

func (c *connection) Destroy() mmal.Status {
	return mmal.Status(mmalConnectionDestroy(c.addr))
}
