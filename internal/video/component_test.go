package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/vidcapture/internal/config"
	"github.com/audiolibrelab/vidcapture/internal/mmal"
	"github.com/audiolibrelab/vidcapture/internal/mmal/sim"
)

func testVideo() config.VideoConfig {
	return config.VideoConfig{Width: 640, Height: 480, BitRate: 1000000, FrameRate: 25}
}

const (
	cameraControl = "vc.ril.camera:ctr:0"
	cameraVideo   = "vc.ril.camera:out:1"
	encoderInput  = "vc.ril.video_encode:in:0"
	encoderOutput = "vc.ril.video_encode:out:0"
	tunnel        = cameraVideo + "->" + encoderInput
)

func TestCameraInit(t *testing.T) {
	d := sim.New()
	cam := NewCamera(d, testVideo(), nil)
	require.NoError(t, cam.Init())
	assert.Equal(t, StateEnabled, cam.State())

	cfg, ok := sim.CameraConfig(cam.handle.Control())
	require.True(t, ok)
	assert.Equal(t, mmal.CameraConfig{
		MaxStillsW:            640,
		MaxStillsH:            480,
		MaxPreviewVideoW:      640,
		MaxPreviewVideoH:      480,
		NumPreviewVideoFrames: 3,
		UseSTCTimestamp:       mmal.TimestampModeResetSTC,
	}, cfg)

	want := mmal.Format{
		Encoding:        mmal.EncodingOpaque,
		EncodingVariant: mmal.EncodingI420,
		Video: mmal.VideoFormat{
			Width:     640,
			Height:    480,
			Crop:      mmal.Rect{Width: 640, Height: 480},
			FrameRate: mmal.Rational{Num: 25, Den: 1},
		},
	}
	for _, p := range cam.handle.Outputs() {
		assert.Equal(t, want, p.Format(), p.Name())
		assert.GreaterOrEqual(t, p.Sizing().Num, uint32(3), p.Name())
	}

	cam.Disable()
	cam.Disable()
	assert.Equal(t, StateDisabled, cam.State())
	cam.Destroy()
	cam.Destroy()
	assert.Equal(t, StateDestroyed, cam.State())

	assert.Equal(t, sim.Resources{}, d.Live())
	assert.Empty(t, d.Violations())
}

func TestComponentCallsBeforeInit(t *testing.T) {
	d := sim.New()
	cam := NewCamera(d, testVideo(), nil)
	enc := NewEncoder(d, testVideo(), nil)

	cam.Disable()
	cam.Destroy()
	enc.Disable()
	enc.Destroy()
	assert.Equal(t, StateUninitialized, cam.State())
	assert.Nil(t, cam.VideoPort())
	assert.Nil(t, enc.Output())
	assert.Nil(t, enc.Pool())

	err := cam.StartCapture()
	assert.True(t, IsKind(err, KindCapture))
	assert.NoError(t, cam.StopCapture())

	err = enc.Init(cam)
	assert.True(t, IsKind(err, KindComponentCreate))
	assert.Equal(t, sim.Resources{}, d.Created())
}

func TestCameraInitTwice(t *testing.T) {
	d := sim.New()
	cam := NewCamera(d, testVideo(), nil)
	require.NoError(t, cam.Init())

	err := cam.Init()
	assert.True(t, IsKind(err, KindComponentCreate))
	assert.Equal(t, 1, d.Created().Components)

	cam.Destroy()
	assert.Empty(t, d.Violations())
}

func TestCameraInitRollback(t *testing.T) {
	tests := []struct {
		name string
		op   sim.Op
		obj  string
		kind Kind
	}{
		{"create", sim.OpCreate, mmal.ComponentCamera, KindComponentCreate},
		{"control port", sim.OpPortEnable, cameraControl, KindControlPortEnable},
		{"camera config", sim.OpSetParameter, cameraControl, KindFormatCommit},
		{"preview format", sim.OpCommit, "vc.ril.camera:out:0", KindFormatCommit},
		{"capture format", sim.OpCommit, "vc.ril.camera:out:2", KindFormatCommit},
		{"enable", sim.OpComponentEnable, mmal.ComponentCamera, KindComponentEnable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sim.New(sim.WithFailure(tt.op, tt.obj, mmal.ENOSPC))
			cam := NewCamera(d, testVideo(), nil)

			err := cam.Init()
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), err.Error())
			status, ok := StatusOf(err)
			assert.True(t, ok)
			assert.Equal(t, mmal.ENOSPC, status)

			assert.Equal(t, StateUninitialized, cam.State())
			assert.Nil(t, cam.VideoPort())
			assert.Equal(t, sim.Resources{}, d.Live())
			assert.Empty(t, d.Violations())
		})
	}
}

func TestEncoderInit(t *testing.T) {
	d := sim.New()
	cam := NewCamera(d, testVideo(), nil)
	require.NoError(t, cam.Init())
	enc := NewEncoder(d, testVideo(), nil)
	require.NoError(t, enc.Init(cam))
	assert.Equal(t, StateEnabled, enc.State())

	baseline := cam.VideoPort().Format()
	assert.Equal(t, baseline, enc.Input().Format())

	out := enc.Output().Format()
	assert.Equal(t, mmal.EncodingH264, out.Encoding)
	assert.Equal(t, mmal.FourCC(0), out.EncodingVariant)
	assert.Equal(t, uint32(1000000), out.Bitrate)
	assert.Equal(t, baseline.Video, out.Video)

	pool := enc.Pool()
	require.NotNil(t, pool)
	assert.Equal(t, uint32(3), pool.Count())
	assert.Equal(t, sim.DefaultEncoderOutputSizing.SizeRecommended, pool.Size())
	assert.Equal(t, 3, pool.Available())

	enc.Disable()
	cam.Disable()
	enc.Destroy()
	cam.Destroy()
	assert.Equal(t, sim.Resources{}, d.Live())
	assert.Empty(t, d.Violations())
}

func TestEncoderOutputSizing(t *testing.T) {
	d := sim.New(sim.WithEncoderOutputSizing(mmal.BufferSizing{
		NumMin: 2, SizeMin: 4096,
		NumRecommended: 5, SizeRecommended: 1024,
		Num: 1, Size: 512,
	}))
	cam := NewCamera(d, testVideo(), nil)
	require.NoError(t, cam.Init())
	enc := NewEncoder(d, testVideo(), nil)
	require.NoError(t, enc.Init(cam))

	assert.Equal(t, uint32(5), enc.Pool().Count())
	assert.Equal(t, uint32(4096), enc.Pool().Size())

	enc.Destroy()
	cam.Destroy()
	assert.Empty(t, d.Violations())
}

func TestEncoderInitRollback(t *testing.T) {
	tests := []struct {
		name string
		op   sim.Op
		obj  string
		kind Kind
	}{
		{"create", sim.OpCreate, mmal.ComponentVideoEncoder, KindComponentCreate},
		{"control port", sim.OpPortEnable, "vc.ril.video_encode:ctr:0", KindControlPortEnable},
		{"input format", sim.OpCommit, encoderInput, KindFormatCommit},
		{"output format", sim.OpCommit, encoderOutput, KindFormatCommit},
		{"enable", sim.OpComponentEnable, mmal.ComponentVideoEncoder, KindComponentEnable},
		{"pool", sim.OpCreatePool, encoderOutput, KindPoolCreate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := sim.New(sim.WithFailure(tt.op, tt.obj, mmal.ENOMEM))
			cam := NewCamera(d, testVideo(), nil)
			require.NoError(t, cam.Init())
			enc := NewEncoder(d, testVideo(), nil)

			err := enc.Init(cam)
			require.Error(t, err)
			assert.True(t, IsKind(err, tt.kind), err.Error())
			assert.Equal(t, StateUninitialized, enc.State())
			assert.Nil(t, enc.Pool())
			assert.Equal(t, sim.Resources{Components: 1}, d.Live())

			cam.Destroy()
			assert.Equal(t, sim.Resources{}, d.Live())
			assert.Empty(t, d.Violations())
		})
	}
}

func newPipelineParts(t *testing.T, d *sim.Driver) (*Camera, *Encoder) {
	t.Helper()
	cam := NewCamera(d, testVideo(), nil)
	require.NoError(t, cam.Init())
	enc := NewEncoder(d, testVideo(), nil)
	require.NoError(t, enc.Init(cam))
	return cam, enc
}

func TestConnectionInitFailure(t *testing.T) {
	for _, op := range []sim.Op{sim.OpConnect, sim.OpConnectionEnable} {
		t.Run(string(op), func(t *testing.T) {
			d := sim.New(sim.WithFailure(op, tunnel, mmal.ENOTCONN))
			cam, enc := newPipelineParts(t, d)

			conn := NewConnection(d, nil)
			err := conn.Init(cam.VideoPort(), enc.Input())
			assert.True(t, IsKind(err, KindConnection))
			assert.False(t, conn.Enabled())
			assert.Zero(t, d.Live().Connections)

			conn.Destroy()
			enc.Destroy()
			cam.Destroy()
			assert.Empty(t, d.Violations())
		})
	}
}

func TestConnectionLifecycle(t *testing.T) {
	d := sim.New()
	cam, enc := newPipelineParts(t, d)

	conn := NewConnection(d, nil)
	require.NoError(t, conn.Init(cam.VideoPort(), enc.Input()))
	assert.True(t, conn.Enabled())
	assert.True(t, enc.Input().Enabled())

	err := conn.Init(cam.VideoPort(), enc.Input())
	assert.True(t, IsKind(err, KindConnection))

	conn.Disable()
	conn.Disable()
	assert.False(t, enc.Input().Enabled())
	conn.Destroy()
	conn.Destroy()

	enc.Disable()
	cam.Disable()
	enc.Destroy()
	cam.Destroy()
	assert.Equal(t, sim.Resources{}, d.Live())
	assert.Empty(t, d.Violations())
}

func TestPoolRefill(t *testing.T) {
	d := sim.New(sim.WithFailureAfter(sim.OpSend, encoderOutput, 1, mmal.EAGAIN))
	cam, enc := newPipelineParts(t, d)
	pool := enc.Pool()

	err := pool.Refill()
	assert.ErrorIs(t, err, ErrPortDisabled)

	require.True(t, enc.Output().Enable(releaseEvent).OK())
	err = pool.Refill()
	assert.True(t, IsKind(err, KindBufferSubmit))
	assert.Equal(t, 1, d.Sent(encoderOutput))
	assert.Equal(t, int(pool.Count())-1, pool.Available())

	require.True(t, enc.Output().Disable().OK())
	assert.Equal(t, int(pool.Count()), pool.Available())

	enc.Destroy()
	enc.Destroy()
	cam.Destroy()
	assert.Equal(t, sim.Resources{}, d.Live())
	assert.Empty(t, d.Violations())
}
