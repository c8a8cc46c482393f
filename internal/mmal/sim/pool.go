package sim

import "github.com/audiolibrelab/vidcapture/internal/mmal"

type bufferState int

const (
	statePool bufferState = iota
	stateHardware
	stateClient
	stateFreed
)

func (s bufferState) String() string {
	switch s {
	case statePool:
		return "in pool"
	case stateHardware:
		return "held by hardware"
	case stateClient:
		return "held by client"
	default:
		return "freed"
	}
}

type pool struct {
	drv  *Driver
	port *port

	buffers []*buffer
	queue   []*buffer

	destroyed bool
}

func newPool(d *Driver, p *port, num, size int) *pool {
	pl := &pool{drv: d, port: p}
	for i := 0; i < num; i++ {
		b := &buffer{pool: pl, id: i, data: make([]byte, size)}
		pl.buffers = append(pl.buffers, b)
		pl.queue = append(pl.queue, b)
	}
	return pl
}

func (pl *pool) Get() (mmal.Buffer, bool) {
	pl.drv.mu.Lock()
	defer pl.drv.mu.Unlock()
	b, ok := pl.getLocked()
	if !ok {
		return nil, false
	}
	return b, true
}

func (pl *pool) getLocked() (*buffer, bool) {
	if pl.destroyed {
		pl.drv.violationLocked("queue get on destroyed pool of %s", pl.port.name)
		return nil, false
	}
	if len(pl.queue) == 0 {
		return nil, false
	}
	b := pl.queue[0]
	pl.queue = pl.queue[1:]
	b.state = stateClient
	return b, true
}

func (pl *pool) Len() int {
	pl.drv.mu.Lock()
	defer pl.drv.mu.Unlock()
	return len(pl.queue)
}

// Destroy frees the pool. Buffers that are not back in the queue are
// reported as violations.
func (pl *pool) Destroy() {
	d := pl.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if pl.destroyed {
		d.violationLocked("pool of %s destroyed twice", pl.port.name)
		return
	}
	outstanding := 0
	for _, b := range pl.buffers {
		if b.state != statePool {
			outstanding++
		}
		b.state = stateFreed
	}
	if outstanding > 0 {
		d.violationLocked("pool of %s destroyed with %d buffers outstanding", pl.port.name, outstanding)
	}
	pl.destroyed = true
	pl.queue = nil
	d.live.Pools--
}

type buffer struct {
	pool *pool
	id   int
	data []byte

	length uint32
	offset uint32
	flags  uint32

	state  bufferState
	locked bool
}

func (b *buffer) Length() uint32 {
	b.pool.drv.mu.Lock()
	defer b.pool.drv.mu.Unlock()
	return b.length
}

func (b *buffer) Offset() uint32 {
	b.pool.drv.mu.Lock()
	defer b.pool.drv.mu.Unlock()
	return b.offset
}

func (b *buffer) Flags() uint32 {
	b.pool.drv.mu.Lock()
	defer b.pool.drv.mu.Unlock()
	return b.flags
}

func (b *buffer) Lock() ([]byte, mmal.Status) {
	d := b.pool.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.state != stateClient {
		d.violationLocked("buffer %d of %s locked while %s", b.id, b.pool.port.name, b.state)
		return nil, mmal.EINVAL
	}
	if b.locked {
		return nil, mmal.EINVAL
	}
	b.locked = true
	return b.data[b.offset : b.offset+b.length], mmal.Success
}

func (b *buffer) Unlock() {
	d := b.pool.drv
	d.mu.Lock()
	defer d.mu.Unlock()
	b.locked = false
}

// Release puts the header back at the tail of its pool queue.
func (b *buffer) Release() {
	d := b.pool.drv
	d.mu.Lock()
	defer d.mu.Unlock()

	if b.state != stateClient {
		d.violationLocked("buffer %d of %s released while %s", b.id, b.pool.port.name, b.state)
		return
	}
	if b.locked {
		d.violationLocked("buffer %d of %s released while locked", b.id, b.pool.port.name)
		b.locked = false
	}
	b.returnLocked()
}

func (b *buffer) returnLocked() {
	b.length = 0
	b.offset = 0
	b.flags = 0
	if b.pool.destroyed {
		b.state = stateFreed
		return
	}
	b.state = statePool
	b.pool.queue = append(b.pool.queue, b)
}
