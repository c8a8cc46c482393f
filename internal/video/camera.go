package video

import (
	"log/slog"

	"github.com/audiolibrelab/vidcapture/internal/config"
	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// minPortBuffers is the lowest buffer count committed on the camera ports and
// the encoder output.
const minPortBuffers = 3

// Camera drives vc.ril.camera.
type Camera struct {
	component
	cfg config.VideoConfig

	capturing bool
}

func NewCamera(drv mmal.Driver, cfg config.VideoConfig, log *slog.Logger) *Camera {
	return &Camera{
		component: newComponent(drv, mmal.ComponentCamera, log),
		cfg:       cfg,
	}
}

// Init creates, configures and enables the camera. On failure everything it
// created is destroyed and the camera is left uninitialized.
func (c *Camera) Init() error {
	if err := c.create(0, mmal.CameraVideoPort+1); err != nil {
		return err
	}
	if err := c.configure(); err != nil {
		c.rollback()
		return err
	}
	if err := c.enable(); err != nil {
		c.rollback()
		return err
	}
	c.log.Info("Camera enabled", "width", c.cfg.Width, "height", c.cfg.Height, "frame_rate", c.cfg.FrameRate)
	return nil
}

func (c *Camera) configure() error {
	if err := c.enableControl(); err != nil {
		return err
	}

	ctrl := c.handle.Control()
	if st := ctrl.SetCameraConfig(c.cameraConfig()); !st.OK() {
		return newError(KindFormatCommit, "set camera config", st, nil)
	}

	f := c.portFormat()
	for _, p := range c.handle.Outputs() {
		floorBuffers(p, minPortBuffers)
		if err := commitFormat(p, f); err != nil {
			return err
		}
	}
	c.state = StateConfigured
	return nil
}

func (c *Camera) cameraConfig() mmal.CameraConfig {
	return mmal.CameraConfig{
		MaxStillsW:            c.cfg.Width,
		MaxStillsH:            c.cfg.Height,
		MaxPreviewVideoW:      c.cfg.Width,
		MaxPreviewVideoH:      c.cfg.Height,
		NumPreviewVideoFrames: 3,
		UseSTCTimestamp:       mmal.TimestampModeResetSTC,
	}
}

func (c *Camera) portFormat() mmal.Format {
	return mmal.Format{
		Encoding:        mmal.EncodingOpaque,
		EncodingVariant: mmal.EncodingI420,
		Video: mmal.VideoFormat{
			Width:  c.cfg.Width,
			Height: c.cfg.Height,
			Crop: mmal.Rect{
				Width:  int32(c.cfg.Width),
				Height: int32(c.cfg.Height),
			},
			FrameRate: mmal.Rational{Num: c.cfg.FrameRate, Den: 1},
		},
	}
}

// VideoPort is the output tunnelled into the encoder. It is nil before Init.
func (c *Camera) VideoPort() mmal.Port {
	if c.handle == nil {
		return nil
	}
	return c.handle.Outputs()[mmal.CameraVideoPort]
}

// StartCapture sets the capture flag on the video port. Frames start flowing
// once the tunnel and the encoder output are live.
func (c *Camera) StartCapture() error {
	return c.setCapture(true)
}

// StopCapture clears the capture flag. It does nothing when not capturing.
func (c *Camera) StopCapture() error {
	if !c.capturing {
		return nil
	}
	return c.setCapture(false)
}

// Capturing reports whether the capture flag is set.
func (c *Camera) Capturing() bool { return c.capturing }

func (c *Camera) setCapture(on bool) error {
	p := c.VideoPort()
	if p == nil {
		return newError(KindCapture, "set capture", mmal.ENOTREADY, errNotInitialized)
	}
	if st := p.SetBool(mmal.ParameterCapture, on); !st.OK() {
		return newError(KindCapture, "set capture", st, nil)
	}
	c.capturing = on
	c.log.Debug("Capture flag set", "capture", on)
	return nil
}

// Destroy clears the capture flag, if still set, and releases the handle.
func (c *Camera) Destroy() {
	if c.capturing {
		if err := c.setCapture(false); err != nil {
			c.log.Warn("Failed to stop capture", "error", err)
		}
		c.capturing = false
	}
	c.component.Destroy()
}
