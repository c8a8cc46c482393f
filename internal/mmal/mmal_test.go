package mmal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFourCC(t *testing.T) {
	assert.Equal(t, "H264", EncodingH264.String())
	assert.Equal(t, "OPQV", EncodingOpaque.String())
	assert.Equal(t, "I420", EncodingI420.String())
	assert.Equal(t, "none", FourCC(0).String())
	assert.Equal(t, FourCC(0x34363248), EncodingH264)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "MMAL_SUCCESS", Success.String())
	assert.Equal(t, "MMAL_EINVAL", EINVAL.String())
	assert.Equal(t, "MMAL_EFAULT", EFAULT.String())
	assert.Equal(t, "MMAL_STATUS_UNKNOWN", Status(99).String())
	assert.True(t, Success.OK())
	assert.False(t, ENOMEM.OK())
}

func TestParameterIDs(t *testing.T) {
	assert.Equal(t, ParameterID(0x10011), ParameterCapture)
	assert.Equal(t, ParameterID(0x10015), ParameterCameraConfig)
}
