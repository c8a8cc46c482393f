package sim

import (
	"time"

	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// producer is the simulated encoder core. It runs in its own goroutine, the
// way the VideoCore client library delivers callbacks from its own thread.
type producer struct {
	port *port
	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

// startProducer must be called with the driver lock held.
func startProducer(p *port) *producer {
	pr := &producer{
		port: p,
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	p.drv().producers[p] = pr
	go pr.run()
	pr.signal()
	return pr
}

func (pr *producer) signal() {
	select {
	case pr.wake <- struct{}{}:
	default:
	}
}

// stop waits for an in-flight callback to return. It must not be called with
// the driver lock held.
func (pr *producer) stop() {
	close(pr.quit)
	<-pr.done

	d := pr.port.drv()
	d.mu.Lock()
	delete(d.producers, pr.port)
	d.mu.Unlock()
}

func (d *Driver) wakeLocked() {
	for _, pr := range d.producers {
		pr.signal()
	}
}

func (pr *producer) run() {
	defer close(pr.done)

	interval := pr.port.drv().interval
	for {
		select {
		case <-pr.quit:
			return
		default:
		}

		buf, cb, ok := pr.next()
		if !ok {
			return
		}
		cb(pr.port, buf)

		if interval > 0 {
			t := time.NewTimer(interval)
			select {
			case <-pr.quit:
				t.Stop()
				return
			case <-t.C:
			}
		}
	}
}

// next blocks until a frame can be completed into a buffer the client
// submitted, or until the producer is stopped.
func (pr *producer) next() (*buffer, mmal.BufferCallback, bool) {
	p := pr.port
	d := p.drv()
	for {
		d.mu.Lock()
		if p.readyLocked() {
			b := p.hwQueue[0]
			p.hwQueue = p.hwQueue[1:]
			index := p.next
			size := p.frameSizeLocked()
			if size > len(b.data) {
				d.violationLocked("frame %d of %d bytes does not fit a %d byte buffer", index, size, len(b.data))
				size = len(b.data)
			}
			fillPayload(b.data[:size], index)
			b.length = uint32(size)
			b.offset = 0
			b.flags = 0
			if size == 0 {
				b.flags = mmal.BufferFlagEOS
			}
			b.state = stateClient
			d.delivered++
			cb := p.cb
			d.mu.Unlock()
			return b, cb, true
		}
		d.mu.Unlock()

		select {
		case <-pr.quit:
			return nil, nil, false
		case <-pr.wake:
		}
	}
}

// readyLocked reports whether the encoder can complete a frame: capture is
// on, the tunnel from the camera is up, and a buffer is waiting.
func (p *port) readyLocked() bool {
	c := p.comp
	if !p.enabled || p.cb == nil || !c.enabled || c.destroyed || len(p.hwQueue) == 0 {
		return false
	}
	if p.ended || (p.next >= len(c.drv.frames) && c.drv.continuous == 0) {
		return false
	}
	if len(c.inputs) == 0 {
		return false
	}
	conn := c.inputs[0].conn
	if conn == nil || !conn.enabled {
		return false
	}
	src := conn.out
	return src.capture && src.comp.enabled && !src.comp.destroyed
}

func (p *port) frameSizeLocked() int {
	frames := p.comp.drv.frames
	size := p.comp.drv.continuous
	if p.next < len(frames) {
		size = frames[p.next]
	}
	p.next++
	if size == 0 {
		p.ended = true
	}
	return size
}

func fillPayload(dst []byte, index int) {
	for j := range dst {
		dst[j] = byte((index*31 + j) % 251)
	}
}
