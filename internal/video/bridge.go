package video

import (
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/vidcapture/internal/metrics"
	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// OutputRecord is an owned copy of one encoded payload, or the end marker
// that closes the stream. Records carry consecutive sequence numbers.
type OutputRecord struct {
	Seq     uint64
	Payload []byte
	End     bool
}

// BridgeStats counts what the bridge has seen and done.
type BridgeStats struct {
	Callbacks   uint64
	Records     uint64
	EndMarkers  uint64
	Resubmitted uint64
	Bytes       uint64
}

type BridgeConfig struct {
	// SendTimeout is how long a callback waits on a full channel before the
	// consumer is declared stalled.
	SendTimeout time.Duration
	Logger      *slog.Logger
	Metrics     *metrics.Pipeline
}

// CallbackBridge moves completed encoder buffers from the driver's callback
// context to a bounded channel read by a single consumer. Each buffer is
// copied, released, and replaced on the port with a free buffer from the
// pool. Everything the callback needs lives in the bridge value.
type CallbackBridge struct {
	pool        *BufferPool
	records     chan<- OutputRecord
	sendTimeout time.Duration
	log         *slog.Logger
	metrics     *metrics.Pipeline

	port mmal.Port

	mu    sync.Mutex
	seq   uint64
	ended bool
	err   error
	stats BridgeStats

	failed    chan struct{}
	abort     chan struct{}
	abortOnce sync.Once
}

func NewCallbackBridge(pool *BufferPool, records chan<- OutputRecord, cfg BridgeConfig) *CallbackBridge {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &CallbackBridge{
		pool:        pool,
		records:     records,
		sendTimeout: timeout,
		log:         log,
		metrics:     cfg.Metrics,
		failed:      make(chan struct{}),
		abort:       make(chan struct{}),
	}
}

// Install enables port with the bridge as its buffer callback.
func (b *CallbackBridge) Install(port mmal.Port) error {
	if b.port != nil {
		return newError(KindComponentEnable, "enable "+port.Name(), mmal.EISCONN, errAlreadyInitialized)
	}
	if st := port.Enable(b.handle); !st.OK() {
		return newError(KindComponentEnable, "enable "+port.Name(), st, nil)
	}
	b.port = port
	b.log.Debug("Output callback installed", "port", port.Name())
	return nil
}

// Stop disables the port. Once it returns no callback is running and none
// will run again. Records a callback is still trying to emit are delivered,
// so the consumer must keep reading while Stop is in progress.
func (b *CallbackBridge) Stop() error {
	if b.port == nil || !b.port.Enabled() {
		return nil
	}
	if st := b.port.Disable(); !st.OK() {
		return newError(KindComponentEnable, "disable "+b.port.Name(), st, nil)
	}
	return nil
}

// Abort is Stop for a consumer that has stopped reading: pending emits are
// dropped instead of waiting for channel space.
func (b *CallbackBridge) Abort() error {
	b.abortOnce.Do(func() { close(b.abort) })
	return b.Stop()
}

// Finish emits the end marker if neither the hardware nor a failure has
// closed the stream. It must only be called after Stop with the channel
// drained. It reports whether a marker was emitted.
func (b *CallbackBridge) Finish() bool {
	b.mu.Lock()
	failed := b.err != nil
	b.mu.Unlock()
	if failed {
		return false
	}
	return b.emitEnd()
}

// Failed is closed when the bridge hits a fatal error.
func (b *CallbackBridge) Failed() <-chan struct{} { return b.failed }

// Err returns the first fatal error.
func (b *CallbackBridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

func (b *CallbackBridge) Stats() BridgeStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *CallbackBridge) handle(port mmal.Port, buf mmal.Buffer) {
	b.metrics.ObserveCallback()
	b.mu.Lock()
	b.stats.Callbacks++
	closed := b.ended || b.err != nil
	b.mu.Unlock()

	if buf == nil {
		b.fail(newError(KindCallback, "buffer callback on "+port.Name(), mmal.EINVAL, ErrNilBuffer))
		return
	}
	if closed {
		buf.Release()
		return
	}

	length := buf.Length()
	eos := length == 0 || buf.Flags()&mmal.BufferFlagEOS != 0

	var payload []byte
	if length > 0 {
		var err *Error
		if payload, err = copyPayload(buf); err != nil {
			buf.Release()
			b.fail(err)
			return
		}
	}
	buf.Release()

	if payload != nil && !b.emit(OutputRecord{Payload: payload}) {
		return
	}
	if eos {
		// The final buffer is not replaced.
		b.emitEnd()
		return
	}
	b.resupply(port)
}

func copyPayload(buf mmal.Buffer) ([]byte, *Error) {
	data, st := buf.Lock()
	if !st.OK() {
		return nil, newError(KindCallback, "lock buffer", st, nil)
	}
	payload := make([]byte, len(data))
	copy(payload, data)
	buf.Unlock()
	return payload, nil
}

// resupply hands one free buffer back to the port so the encoder never runs
// dry.
func (b *CallbackBridge) resupply(port mmal.Port) {
	if !port.Enabled() {
		return
	}
	next, ok := b.pool.Get()
	if !ok {
		b.fail(newError(KindBufferSubmit, "resupply "+port.Name(), mmal.ENOSPC, ErrPoolExhausted))
		return
	}
	if st := port.SendBuffer(next); !st.OK() {
		next.Release()
		if !port.Enabled() {
			// Lost the race with Stop.
			return
		}
		b.fail(newError(KindBufferSubmit, "resupply "+port.Name(), st, nil))
		return
	}

	b.mu.Lock()
	b.stats.Resubmitted++
	b.mu.Unlock()
	b.metrics.ObserveResubmit()
}

func (b *CallbackBridge) emitEnd() bool {
	b.mu.Lock()
	if b.ended {
		b.mu.Unlock()
		return false
	}
	b.ended = true
	b.mu.Unlock()
	return b.emit(OutputRecord{End: true})
}

// emit never blocks longer than the send timeout.
func (b *CallbackBridge) emit(rec OutputRecord) bool {
	b.mu.Lock()
	rec.Seq = b.seq
	b.seq++
	b.mu.Unlock()

	select {
	case b.records <- rec:
		b.delivered(rec)
		return true
	default:
	}

	timer := time.NewTimer(b.sendTimeout)
	defer timer.Stop()
	select {
	case b.records <- rec:
		b.delivered(rec)
		return true
	case <-b.abort:
		return false
	case <-timer.C:
		b.fail(newError(KindCallback, "emit record", mmal.Success, ErrConsumerStalled))
		return false
	}
}

func (b *CallbackBridge) delivered(rec OutputRecord) {
	b.mu.Lock()
	if rec.End {
		b.stats.EndMarkers++
	} else {
		b.stats.Records++
		b.stats.Bytes += uint64(len(rec.Payload))
	}
	b.mu.Unlock()

	if rec.End {
		b.metrics.ObserveEndMarker()
	} else {
		b.metrics.ObserveRecord(len(rec.Payload))
	}
}

func (b *CallbackBridge) fail(err *Error) {
	b.mu.Lock()
	if b.err != nil {
		b.mu.Unlock()
		return
	}
	b.err = err
	b.mu.Unlock()

	close(b.failed)
	b.log.Error("Encoder output failed", "error", err)
	b.metrics.ObserveError(err.Kind.String())
}
