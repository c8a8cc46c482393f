package video

import (
	"log/slog"

	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// Connection tunnels the camera video port into the encoder input so frames
// never pass through client memory.
type Connection struct {
	drv mmal.Driver
	log *slog.Logger

	conn    mmal.Connection
	enabled bool
}

func NewConnection(drv mmal.Driver, log *slog.Logger) *Connection {
	if log == nil {
		log = slog.Default()
	}
	return &Connection{drv: drv, log: log}
}

// Init creates and enables the tunnel. Both ports must carry committed
// formats. A tunnel that fails to enable is destroyed.
func (c *Connection) Init(out, in mmal.Port) error {
	if c.conn != nil {
		return newError(KindConnection, "create connection", mmal.EISCONN, errAlreadyInitialized)
	}
	if out == nil || in == nil {
		return newError(KindConnection, "create connection", mmal.EINVAL, errNotInitialized)
	}

	conn, st := c.drv.Connect(out, in, mmal.ConnectionFlagTunnelling|mmal.ConnectionFlagAllocationOnInput)
	if !st.OK() {
		return newError(KindConnection, "create connection "+out.Name()+" -> "+in.Name(), st, nil)
	}
	if st := conn.Enable(); !st.OK() {
		conn.Destroy()
		return newError(KindConnection, "enable connection "+out.Name()+" -> "+in.Name(), st, nil)
	}
	c.conn = conn
	c.enabled = true
	c.log.Debug("Connection enabled", "from", out.Name(), "to", in.Name())
	return nil
}

func (c *Connection) Enabled() bool { return c.enabled }

// Disable does nothing if the tunnel is not enabled.
func (c *Connection) Disable() {
	if c.conn == nil || !c.enabled {
		return
	}
	if st := c.conn.Disable(); !st.OK() {
		c.log.Warn("Failed to disable connection", "status", st)
	}
	c.enabled = false
}

// Destroy disables the tunnel if needed and frees it. It is safe to call
// repeatedly.
func (c *Connection) Destroy() {
	if c.conn == nil {
		return
	}
	c.Disable()
	if st := c.conn.Destroy(); !st.OK() {
		c.log.Warn("Failed to destroy connection", "status", st)
	}
	c.conn = nil
}
