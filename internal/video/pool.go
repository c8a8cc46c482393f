package video

import (
	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// BufferPool is the fixed set of buffers recycled through a port. A buffer is
// either in the free queue, held by the hardware, or borrowed by the callback.
type BufferPool struct {
	port  mmal.Port
	pool  mmal.Pool
	count uint32
	size  uint32
}

// NewBufferPool allocates a pool matching the committed sizing of port.
func NewBufferPool(port mmal.Port) (*BufferPool, error) {
	s := port.Sizing()
	pool, st := port.CreatePool(s.Num, s.Size)
	if !st.OK() {
		return nil, newError(KindPoolCreate, "create pool on "+port.Name(), st, nil)
	}
	return &BufferPool{port: port, pool: pool, count: s.Num, size: s.Size}, nil
}

// Refill hands every free buffer to the port. It stops at the first buffer
// the port refuses.
func (p *BufferPool) Refill() error {
	if p.pool == nil {
		return newError(KindBufferSubmit, "refill "+p.port.Name(), mmal.EINVAL, errNotInitialized)
	}
	if !p.port.Enabled() {
		return newError(KindBufferSubmit, "refill "+p.port.Name(), mmal.EINVAL, ErrPortDisabled)
	}
	for {
		buf, ok := p.pool.Get()
		if !ok {
			return nil
		}
		if st := p.port.SendBuffer(buf); !st.OK() {
			buf.Release()
			return newError(KindBufferSubmit, "send buffer to "+p.port.Name(), st, nil)
		}
	}
}

// Get borrows the head of the free queue.
func (p *BufferPool) Get() (mmal.Buffer, bool) {
	if p.pool == nil {
		return nil, false
	}
	return p.pool.Get()
}

// Available is the length of the free queue.
func (p *BufferPool) Available() int {
	if p.pool == nil {
		return 0
	}
	return p.pool.Len()
}

func (p *BufferPool) Count() uint32 { return p.count }

func (p *BufferPool) Size() uint32 { return p.size }

// Destroy frees the pool. It is safe to call repeatedly.
func (p *BufferPool) Destroy() {
	if p.pool == nil {
		return
	}
	p.pool.Destroy()
	p.pool = nil
}
