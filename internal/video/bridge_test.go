package video

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

type fakeBuffer struct {
	data       []byte
	flags      uint32
	lockStatus mmal.Status
	locked     bool
	released   int
}

func (b *fakeBuffer) Length() uint32 { return uint32(len(b.data)) }
func (b *fakeBuffer) Offset() uint32 { return 0 }
func (b *fakeBuffer) Flags() uint32  { return b.flags }

func (b *fakeBuffer) Lock() ([]byte, mmal.Status) {
	if !b.lockStatus.OK() {
		return nil, b.lockStatus
	}
	b.locked = true
	return b.data, mmal.Success
}

func (b *fakeBuffer) Unlock()  { b.locked = false }
func (b *fakeBuffer) Release() { b.released++ }

type fakePool struct {
	free []mmal.Buffer
}

func (p *fakePool) Get() (mmal.Buffer, bool) {
	if len(p.free) == 0 {
		return nil, false
	}
	b := p.free[0]
	p.free = p.free[1:]
	return b, true
}

func (p *fakePool) Len() int { return len(p.free) }
func (p *fakePool) Destroy() {}

// fakePort implements the part of mmal.Port the bridge touches.
type fakePort struct {
	mmal.Port

	enabled    bool
	sendStatus mmal.Status
	sent       []mmal.Buffer
}

func (p *fakePort) Name() string  { return "fake:out:0" }
func (p *fakePort) Enabled() bool { return p.enabled }

func (p *fakePort) Enable(mmal.BufferCallback) mmal.Status {
	p.enabled = true
	return mmal.Success
}

func (p *fakePort) Disable() mmal.Status {
	p.enabled = false
	return mmal.Success
}

func (p *fakePort) SendBuffer(b mmal.Buffer) mmal.Status {
	if !p.sendStatus.OK() {
		return p.sendStatus
	}
	p.sent = append(p.sent, b)
	return mmal.Success
}

func newTestBridge(free, capacity int, timeout time.Duration) (*CallbackBridge, *fakePort, chan OutputRecord) {
	pool := &fakePool{}
	for i := 0; i < free; i++ {
		pool.free = append(pool.free, &fakeBuffer{})
	}
	port := &fakePort{enabled: true}
	ch := make(chan OutputRecord, capacity)
	b := NewCallbackBridge(&BufferPool{port: port, pool: pool, count: uint32(free), size: 64}, ch,
		BridgeConfig{SendTimeout: timeout})
	return b, port, ch
}

func TestBridgeCopiesPayloadAndResupplies(t *testing.T) {
	b, port, ch := newTestBridge(1, 4, time.Second)

	buf := &fakeBuffer{data: []byte("abc")}
	b.handle(port, buf)

	require.Len(t, ch, 1)
	rec := <-ch
	buf.data[0] = 'x'
	assert.Equal(t, []byte("abc"), rec.Payload)
	assert.False(t, rec.End)
	assert.Equal(t, uint64(0), rec.Seq)

	assert.Equal(t, 1, buf.released)
	assert.False(t, buf.locked)
	assert.Len(t, port.sent, 1)
	assert.Equal(t, BridgeStats{Callbacks: 1, Records: 1, Resubmitted: 1, Bytes: 3}, b.Stats())
	assert.NoError(t, b.Err())
}

func TestBridgeSequenceIsConsecutive(t *testing.T) {
	b, port, ch := newTestBridge(3, 8, time.Second)
	for i := 0; i < 3; i++ {
		b.handle(port, &fakeBuffer{data: []byte{byte(i)}})
	}
	b.handle(port, &fakeBuffer{})

	require.Len(t, ch, 4)
	for i := 0; i < 4; i++ {
		rec := <-ch
		assert.Equal(t, uint64(i), rec.Seq)
		assert.Equal(t, i == 3, rec.End)
	}
}

func TestBridgeEmitsOneEndMarker(t *testing.T) {
	b, port, ch := newTestBridge(2, 4, time.Second)

	eos := &fakeBuffer{}
	b.handle(port, eos)
	late := &fakeBuffer{data: []byte("late")}
	b.handle(port, late)

	require.Len(t, ch, 1)
	assert.True(t, (<-ch).End)
	assert.Equal(t, 1, eos.released)
	assert.Equal(t, 1, late.released)
	assert.Empty(t, port.sent)
	assert.False(t, b.Finish())

	st := b.Stats()
	assert.Equal(t, uint64(2), st.Callbacks)
	assert.Equal(t, uint64(1), st.EndMarkers)
	assert.Zero(t, st.Resubmitted)
}

func TestBridgeEOSFlagKeepsFinalPayload(t *testing.T) {
	b, port, ch := newTestBridge(1, 4, time.Second)

	b.handle(port, &fakeBuffer{data: []byte("tail"), flags: mmal.BufferFlagEOS})

	require.Len(t, ch, 2)
	assert.Equal(t, []byte("tail"), (<-ch).Payload)
	assert.True(t, (<-ch).End)
	assert.Empty(t, port.sent)
}

func TestBridgeFinish(t *testing.T) {
	b, _, ch := newTestBridge(1, 2, time.Second)

	assert.True(t, b.Finish())
	assert.False(t, b.Finish())
	require.Len(t, ch, 1)
	assert.True(t, (<-ch).End)
}

func TestBridgeNilBufferIsFatal(t *testing.T) {
	b, port, ch := newTestBridge(1, 4, time.Second)

	b.handle(port, nil)

	select {
	case <-b.Failed():
	default:
		t.Fatal("bridge did not fail")
	}
	assert.True(t, IsKind(b.Err(), KindCallback))
	assert.ErrorIs(t, b.Err(), ErrNilBuffer)

	after := &fakeBuffer{data: []byte("x")}
	b.handle(port, after)
	assert.Equal(t, 1, after.released)
	assert.Empty(t, ch)
	assert.False(t, b.Finish())
}

func TestBridgePoolExhaustedIsFatal(t *testing.T) {
	b, port, ch := newTestBridge(0, 4, time.Second)

	b.handle(port, &fakeBuffer{data: []byte("abc")})

	assert.Len(t, ch, 1)
	assert.True(t, IsKind(b.Err(), KindBufferSubmit))
	assert.ErrorIs(t, b.Err(), ErrPoolExhausted)
}

func TestBridgeSendFailureIsFatal(t *testing.T) {
	b, port, _ := newTestBridge(1, 4, time.Second)
	spare := b.pool.pool.(*fakePool).free[0].(*fakeBuffer)
	port.sendStatus = mmal.EIO

	b.handle(port, &fakeBuffer{data: []byte("abc")})

	status, ok := StatusOf(b.Err())
	require.True(t, ok)
	assert.Equal(t, mmal.EIO, status)
	assert.True(t, IsKind(b.Err(), KindBufferSubmit))
	assert.Equal(t, 1, spare.released)
}

func TestBridgeSkipsResupplyOnDisabledPort(t *testing.T) {
	b, port, ch := newTestBridge(1, 4, time.Second)
	port.enabled = false

	b.handle(port, &fakeBuffer{data: []byte("abc")})

	assert.Len(t, ch, 1)
	assert.Empty(t, port.sent)
	assert.NoError(t, b.Err())
}

func TestBridgeLockFailureIsFatal(t *testing.T) {
	b, port, ch := newTestBridge(1, 4, time.Second)

	buf := &fakeBuffer{data: []byte("abc"), lockStatus: mmal.EFAULT}
	b.handle(port, buf)

	assert.Empty(t, ch)
	assert.Equal(t, 1, buf.released)
	assert.False(t, buf.locked)
	assert.True(t, IsKind(b.Err(), KindCallback))
	status, _ := StatusOf(b.Err())
	assert.Equal(t, mmal.EFAULT, status)
	assert.Empty(t, port.sent)
}

func TestBridgeStalledConsumerIsFatal(t *testing.T) {
	b, port, _ := newTestBridge(1, 0, 20*time.Millisecond)

	buf := &fakeBuffer{data: []byte("abc")}
	start := time.Now()
	b.handle(port, buf)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.ErrorIs(t, b.Err(), ErrConsumerStalled)
	assert.Equal(t, 1, buf.released)
	assert.Empty(t, port.sent)
}

func TestBridgeAbortUnblocksEmit(t *testing.T) {
	b, port, _ := newTestBridge(1, 0, time.Hour)

	done := make(chan struct{})
	go func() {
		defer close(done)
		b.handle(port, &fakeBuffer{data: []byte("abc")})
	}()

	require.NoError(t, b.Abort())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback still blocked after Abort")
	}
	assert.NoError(t, b.Err())
	assert.Zero(t, b.Stats().Records)
}

func TestBridgeInstallAndStop(t *testing.T) {
	b, _, _ := newTestBridge(1, 1, time.Second)
	port := &fakePort{}

	require.NoError(t, b.Install(port))
	assert.True(t, port.enabled)

	err := b.Install(port)
	assert.True(t, IsKind(err, KindComponentEnable))

	require.NoError(t, b.Stop())
	assert.False(t, port.enabled)
	require.NoError(t, b.Stop())
}

func TestErrorFormatting(t *testing.T) {
	err := newError(KindFormatCommit, "commit format on vc.ril.camera:out:1", mmal.EINVAL, nil)
	assert.Equal(t, "format commit: commit format on vc.ril.camera:out:1 failed with MMAL_EINVAL", err.Error())

	wrapped := newError(KindOutputFile, "create output file", mmal.Success, errors.New("exists"))
	assert.Equal(t, "output file: create output file failed: exists", wrapped.Error())
	_, ok := StatusOf(wrapped)
	assert.False(t, ok)
}
