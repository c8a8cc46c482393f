// Package backend picks the coprocessor driver a recording runs on.
package backend

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/audiolibrelab/vidcapture/internal/config"
	"github.com/audiolibrelab/vidcapture/internal/mmal"
	"github.com/audiolibrelab/vidcapture/internal/mmal/sim"
	"github.com/audiolibrelab/vidcapture/internal/mmal/vc"
)

// Type represents the type of video backend
type Type string

const (
	TypeMMAL Type = config.BackendMMAL
	TypeSim  Type = config.BackendSim
	TypeAuto Type = config.BackendAuto
)

// Info describes one backend for listing.
type Info struct {
	Type        Type
	Available   bool
	Description string
	Reason      string
}

// libsAvailable reports whether the firmware driver can be loaded. Swapped in tests.
var libsAvailable = vc.Available

// New creates the driver selected by the configuration.
func New(cfg *config.Config) (mmal.Driver, error) {
	typ, err := determine(cfg.Backend)
	if err != nil {
		return nil, err
	}

	switch typ {
	case TypeMMAL:
		if err := libsAvailable(); err != nil {
			return nil, fmt.Errorf("mmal backend unavailable: %w", err)
		}
		return vc.New(), nil
	default:
		return newSim(cfg.Video), nil
	}
}

// newSim paces the simulated encoder at the configured frame rate, each
// frame carrying the bit rate's share of payload.
func newSim(v config.VideoConfig) *sim.Driver {
	fps := max(v.FrameRate, 1)
	size := int(v.BitRate / 8 / uint32(fps))
	size = min(max(size, 1), int(sim.DefaultEncoderOutputSizing.SizeRecommended))
	return sim.New(
		sim.WithContinuousFrames(size),
		sim.WithFrameInterval(time.Second/time.Duration(fps)),
	)
}

// determine resolves "auto" to a concrete backend.
func determine(name string) (Type, error) {
	switch Type(strings.ToLower(name)) {
	case TypeMMAL:
		return TypeMMAL, nil
	case TypeSim:
		return TypeSim, nil
	case TypeAuto, "":
		if err := libsAvailable(); err != nil {
			slog.Debug("VideoCore libraries not found, using simulator", "reason", err)
			return TypeSim, nil
		}
		return TypeMMAL, nil
	default:
		return "", fmt.Errorf("unknown backend %q", name)
	}
}

// Available returns the backends of the current system
func Available() []Info {
	mmalInfo := Info{
		Type:        TypeMMAL,
		Available:   true,
		Description: "VideoCore firmware through the Raspberry Pi userland libraries",
	}
	if err := libsAvailable(); err != nil {
		mmalInfo.Available = false
		mmalInfo.Reason = err.Error()
	}

	return []Info{
		mmalInfo,
		{
			Type:        TypeSim,
			Available:   true,
			Description: "in-process simulated camera and encoder",
		},
	}
}
