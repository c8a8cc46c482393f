package video

import (
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// State is the lifecycle position of a component.
type State int

const (
	StateUninitialized State = iota
	StateCreated
	StateControlEnabled
	StateConfigured
	StateEnabled
	StateDisabled
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateCreated:
		return "created"
	case StateControlEnabled:
		return "control-enabled"
	case StateConfigured:
		return "configured"
	case StateEnabled:
		return "enabled"
	case StateDisabled:
		return "disabled"
	case StateDestroyed:
		return "destroyed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// component holds the lifecycle shared by the camera and the encoder. All
// methods are called from the orchestrating goroutine.
type component struct {
	drv  mmal.Driver
	name string
	log  *slog.Logger

	handle mmal.Component
	state  State
}

func newComponent(drv mmal.Driver, name string, log *slog.Logger) component {
	if log == nil {
		log = slog.Default()
	}
	return component{drv: drv, name: name, log: log.With("component", name)}
}

// State reports the lifecycle state.
func (c *component) State() State { return c.state }

func (c *component) create(minInputs, minOutputs int) error {
	if c.handle != nil {
		return newError(KindComponentCreate, "create "+c.name, mmal.EINVAL, errAlreadyInitialized)
	}
	h, st := c.drv.CreateComponent(c.name)
	if !st.OK() {
		return newError(KindComponentCreate, "create "+c.name, st, nil)
	}
	if len(h.Inputs()) < minInputs || len(h.Outputs()) < minOutputs {
		h.Destroy()
		return newError(KindComponentCreate, "create "+c.name, mmal.ENOSYS,
			fmt.Errorf("component exposes %d inputs and %d outputs", len(h.Inputs()), len(h.Outputs())))
	}
	c.handle = h
	c.state = StateCreated
	c.log.Debug("Component created", "inputs", len(h.Inputs()), "outputs", len(h.Outputs()))
	return nil
}

func (c *component) enableControl() error {
	if st := c.handle.Control().Enable(releaseEvent); !st.OK() {
		return newError(KindControlPortEnable, "enable control port of "+c.name, st, nil)
	}
	c.state = StateControlEnabled
	return nil
}

// releaseEvent hands control port events straight back to the firmware.
func releaseEvent(_ mmal.Port, buf mmal.Buffer) {
	if buf != nil {
		buf.Release()
	}
}

func (c *component) enable() error {
	if st := c.handle.Enable(); !st.OK() {
		return newError(KindComponentEnable, "enable "+c.name, st, nil)
	}
	c.state = StateEnabled
	c.log.Debug("Component enabled")
	return nil
}

// Disable stops the component. It does nothing unless the component is
// enabled.
func (c *component) Disable() {
	if c.handle == nil || c.state != StateEnabled {
		return
	}
	if st := c.handle.Disable(); !st.OK() {
		c.log.Warn("Failed to disable component", "status", st)
	}
	c.state = StateDisabled
}

// Destroy releases the hardware handle. It is safe to call repeatedly.
func (c *component) Destroy() {
	if c.handle == nil {
		return
	}
	if ctrl := c.handle.Control(); ctrl.Enabled() {
		ctrl.Disable()
	}
	if st := c.handle.Destroy(); !st.OK() {
		c.log.Warn("Failed to destroy component", "status", st)
	}
	c.handle = nil
	c.state = StateDestroyed
	c.log.Debug("Component destroyed")
}

// rollback undoes a partial Init.
func (c *component) rollback() {
	c.Destroy()
	c.state = StateUninitialized
}

// commitFormat applies f to p in a single commit.
func commitFormat(p mmal.Port, f mmal.Format) error {
	if st := p.CommitFormat(f); !st.OK() {
		return newError(KindFormatCommit, "commit format on "+p.Name(), st, nil)
	}
	return nil
}

// floorBuffers raises the configured buffer count of p to at least n.
func floorBuffers(p mmal.Port, n uint32) {
	s := p.Sizing()
	if s.Num < n {
		p.SetBuffers(n, s.Size)
	}
}
