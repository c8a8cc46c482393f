package video

import (
	"log/slog"

	"github.com/audiolibrelab/vidcapture/internal/config"
	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// Encoder drives vc.ril.video_encode and owns the pool of its output port.
type Encoder struct {
	component
	cfg config.VideoConfig

	pool *BufferPool
}

func NewEncoder(drv mmal.Driver, cfg config.VideoConfig, log *slog.Logger) *Encoder {
	return &Encoder{
		component: newComponent(drv, mmal.ComponentVideoEncoder, log),
		cfg:       cfg,
	}
}

// Init creates the encoder with its input matching the camera video port,
// commits an H.264 output, enables the component and allocates the output
// pool. On failure everything it created is destroyed.
func (e *Encoder) Init(cam *Camera) error {
	src := cam.VideoPort()
	if src == nil {
		return newError(KindComponentCreate, "create "+e.name, mmal.ENOTREADY, errNotInitialized)
	}
	if err := e.create(1, 1); err != nil {
		return err
	}
	if err := e.configure(src.Format()); err != nil {
		e.rollback()
		return err
	}
	if err := e.enable(); err != nil {
		e.rollback()
		return err
	}

	pool, err := NewBufferPool(e.Output())
	if err != nil {
		e.Disable()
		e.rollback()
		return err
	}
	e.pool = pool
	e.log.Info("Encoder enabled", "bit_rate", e.cfg.BitRate, "buffers", pool.Count(), "buffer_size", pool.Size())
	return nil
}

func (e *Encoder) configure(baseline mmal.Format) error {
	if err := e.enableControl(); err != nil {
		return err
	}
	if err := commitFormat(e.Input(), baseline); err != nil {
		return err
	}

	out := e.Output()
	f := baseline
	f.Encoding = mmal.EncodingH264
	f.EncodingVariant = 0
	f.Bitrate = e.cfg.BitRate

	s := out.Sizing()
	num := max(s.NumRecommended, s.NumMin, minPortBuffers)
	size := max(s.SizeRecommended, s.SizeMin)
	out.SetBuffers(num, size)

	if err := commitFormat(out, f); err != nil {
		return err
	}
	e.state = StateConfigured
	return nil
}

// Input is nil before Init.
func (e *Encoder) Input() mmal.Port {
	if e.handle == nil {
		return nil
	}
	return e.handle.Inputs()[0]
}

// Output is nil before Init.
func (e *Encoder) Output() mmal.Port {
	if e.handle == nil {
		return nil
	}
	return e.handle.Outputs()[0]
}

// Pool is nil before Init.
func (e *Encoder) Pool() *BufferPool { return e.pool }

// DestroyPool frees the output pool. The output port must be disabled so
// every buffer is back in the queue.
func (e *Encoder) DestroyPool() {
	if e.pool != nil {
		e.pool.Destroy()
	}
}

// Destroy frees the pool before the component that backs it.
func (e *Encoder) Destroy() {
	e.DestroyPool()
	e.pool = nil
	e.component.Destroy()
}
