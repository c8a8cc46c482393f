package sim

import "github.com/audiolibrelab/vidcapture/internal/mmal"

type connection struct {
	drv   *Driver
	name  string
	out   *port
	in    *port
	flags mmal.ConnectionFlags

	enabled   bool
	destroyed bool
}

// Enable requires both endpoints to be alive with committed formats. The
// output format is propagated to the input port and both ports are enabled.
func (c *connection) Enable() mmal.Status {
	d := c.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.destroyed {
		d.violationLocked("connection %s enabled after destroy", c.name)
		return mmal.EINVAL
	}
	if st := d.failLocked(OpConnectionEnable, c.name); !st.OK() {
		return st
	}
	if c.enabled {
		return mmal.EINVAL
	}
	if c.out.comp.destroyed || c.in.comp.destroyed || !c.out.committed || !c.in.committed {
		return mmal.ENOTREADY
	}
	if c.flags&mmal.ConnectionFlagTunnelling == 0 {
		return mmal.ENOSYS
	}
	c.in.format = c.out.format
	c.out.enabled = true
	c.in.enabled = true
	c.enabled = true
	d.wakeLocked()
	return mmal.Success
}

func (c *connection) Disable() mmal.Status {
	d := c.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if !c.enabled {
		return mmal.EINVAL
	}
	c.enabled = false
	c.out.enabled = false
	c.in.enabled = false
	d.wakeLocked()
	return mmal.Success
}

func (c *connection) Destroy() mmal.Status {
	d := c.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.destroyed {
		d.violationLocked("connection %s destroyed twice", c.name)
		return mmal.EINVAL
	}
	if c.enabled {
		c.enabled = false
		c.out.enabled = false
		c.in.enabled = false
	}
	c.out.conn = nil
	c.in.conn = nil
	c.destroyed = true
	d.live.Connections--
	d.wakeLocked()
	return mmal.Success
}
