package video

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiolibrelab/vidcapture/internal/config"
	"github.com/audiolibrelab/vidcapture/internal/metrics"
	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// Status represents the current state of the recorder
type Status string

const (
	StatusStandby   Status = "STANDBY"
	StatusRecording Status = "RECORDING"
	StatusError     Status = "ERROR"
)

// Result describes a finished recording session.
type Result struct {
	SessionID      string
	OutputFilePath string
	BytesWritten   int64
	Records        uint64
	Duration       time.Duration
	// Stopped is set when the session ended on cancellation or on the
	// duration cap rather than on the encoder's end of stream.
	Stopped bool
	Stats   BridgeStats
}

// Option configures a Recorder.
type Option func(*Recorder)

func WithLogger(log *slog.Logger) Option {
	return func(r *Recorder) { r.log = log }
}

func WithMetrics(m *metrics.Pipeline) Option {
	return func(r *Recorder) { r.metrics = m }
}

// WithClock replaces the clock used to derive default output file names.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// Recorder runs camera -> encoder -> file sessions on one driver.
type Recorder struct {
	cfg     *config.Config
	driver  mmal.Driver
	log     *slog.Logger
	metrics *metrics.Pipeline
	now     func() time.Time

	mu      sync.Mutex
	status  Status
	lastErr error
}

func NewRecorder(cfg *config.Config, driver mmal.Driver, opts ...Option) *Recorder {
	r := &Recorder{
		cfg:    cfg,
		driver: driver,
		log:    slog.Default(),
		now:    time.Now,
		status: StatusStandby,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Status returns the recorder state and the error of the last session, if
// it failed.
func (r *Recorder) Status() (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status, r.lastErr
}

// Run records one session. It returns when the encoder ends the stream, when
// ctx is cancelled, when the configured duration elapses, or on the first
// error. Cancellation is not an error: what was captured is kept.
func (r *Recorder) Run(ctx context.Context) (*Result, error) {
	r.mu.Lock()
	if r.status == StatusRecording {
		r.mu.Unlock()
		return nil, errors.New("recording already in progress")
	}
	r.status = StatusRecording
	r.lastErr = nil
	r.mu.Unlock()

	res, err := r.run(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.status = StatusError
		r.lastErr = err
	} else {
		r.status = StatusStandby
	}
	return res, err
}

func (r *Recorder) run(ctx context.Context) (*Result, error) {
	id := uuid.NewString()
	log := r.log.With("session", id)
	path := r.cfg.OutputPath(r.now())
	start := time.Now()

	sink, err := CreateFileSink(path)
	if err != nil {
		r.observeError(err)
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	if err := r.driver.Init(); err != nil {
		r.discard(log, sink)
		initErr := newError(KindRuntimeInit, r.driver.Name()+" platform init", mmal.Success, err)
		r.observeError(initErr)
		return nil, fmt.Errorf("failed to initialize %s runtime: %w", r.driver.Name(), initErr)
	}

	s := &session{
		cfg:     r.cfg,
		drv:     r.driver,
		log:     log,
		metrics: r.metrics,
		sink:    sink,
	}
	if err := s.init(); err != nil {
		s.teardown()
		r.discard(log, sink)
		r.observeError(err)
		return nil, fmt.Errorf("failed to initialize pipeline: %w", err)
	}

	log.Info("Recording started", "output", path, "backend", r.driver.Name(),
		"width", r.cfg.Video.Width, "height", r.cfg.Video.Height, "bit_rate", r.cfg.Video.BitRate)
	r.metrics.SessionStarted()

	stopped, runErr := s.drain(ctx)
	s.teardown()
	if closeErr := sink.Close(); runErr == nil {
		runErr = closeErr
	}
	duration := time.Since(start)

	if runErr != nil {
		r.metrics.SessionFinished(metrics.ResultFailed, duration)
		r.observeError(runErr)
		log.Error("Recording failed", "error", runErr, "bytes", s.written)
		return nil, fmt.Errorf("recording to %s failed: %w", path, runErr)
	}

	outcome := metrics.ResultCompleted
	if stopped {
		outcome = metrics.ResultStopped
	}
	r.metrics.SessionFinished(outcome, duration)

	res := &Result{
		SessionID:      id,
		OutputFilePath: path,
		BytesWritten:   s.written,
		Records:        s.records,
		Duration:       duration,
		Stopped:        stopped,
		Stats:          s.bridge.Stats(),
	}
	log.Info("Recording finished", "output", path, "bytes", res.BytesWritten,
		"records", res.Records, "duration", duration.Round(time.Millisecond), "stopped", stopped)
	return res, nil
}

// discard removes an output file nothing was written to.
func (r *Recorder) discard(log *slog.Logger, sink *FileSink) {
	if err := sink.Remove(); err != nil {
		log.Warn("Failed to remove output file", "error", err)
	}
}

func (r *Recorder) observeError(err error) {
	var e *Error
	if errors.As(err, &e) {
		r.metrics.ObserveError(e.Kind.String())
	}
}

// session holds the hardware objects of one Run. Lifecycle methods are only
// called from the goroutine running Run.
type session struct {
	cfg     *config.Config
	drv     mmal.Driver
	log     *slog.Logger
	metrics *metrics.Pipeline
	sink    Sink

	camera  *Camera
	encoder *Encoder
	conn    *Connection
	bridge  *CallbackBridge
	ch      chan OutputRecord

	written int64
	records uint64
}

func (s *session) init() error {
	s.camera = NewCamera(s.drv, s.cfg.Video, s.log)
	if err := s.camera.Init(); err != nil {
		return err
	}

	s.encoder = NewEncoder(s.drv, s.cfg.Video, s.log)
	if err := s.encoder.Init(s.camera); err != nil {
		return err
	}

	s.conn = NewConnection(s.drv, s.log)
	if err := s.conn.Init(s.camera.VideoPort(), s.encoder.Input()); err != nil {
		return err
	}

	pool := s.encoder.Pool()
	s.ch = make(chan OutputRecord, int(pool.Count())+1)
	s.bridge = NewCallbackBridge(pool, s.ch, BridgeConfig{
		SendTimeout: s.cfg.Pipeline.SendTimeout,
		Logger:      s.log,
		Metrics:     s.metrics,
	})
	if err := s.bridge.Install(s.encoder.Output()); err != nil {
		return err
	}
	if err := pool.Refill(); err != nil {
		return err
	}
	return s.camera.StartCapture()
}

// teardown releases everything init created, in the order the firmware
// requires: tunnel, components, pool, then component handles.
func (s *session) teardown() {
	if s.camera != nil {
		if err := s.camera.StopCapture(); err != nil {
			s.log.Warn("Failed to stop capture", "error", err)
		}
	}
	if s.bridge != nil {
		if err := s.bridge.Abort(); err != nil {
			s.log.Warn("Failed to stop encoder output", "error", err)
		}
	}
	if s.conn != nil {
		s.conn.Destroy()
	}
	if s.encoder != nil {
		s.encoder.Disable()
	}
	if s.camera != nil {
		s.camera.Disable()
	}
	if s.encoder != nil {
		s.encoder.DestroyPool()
		s.encoder.Destroy()
	}
	if s.camera != nil {
		s.camera.Destroy()
	}
}

// drain writes records until the end marker. It reports whether the session
// was stopped before the encoder ended the stream.
func (s *session) drain(ctx context.Context) (bool, error) {
	var deadline <-chan time.Time
	if d := s.cfg.MaxDuration(); d > 0 {
		t := time.NewTimer(d)
		defer t.Stop()
		deadline = t.C
	}

	for {
		select {
		case rec := <-s.ch:
			end, err := s.consume(rec)
			if err != nil || end {
				return false, err
			}
		case <-s.bridge.Failed():
			return false, s.bridge.Err()
		case <-ctx.Done():
			return true, s.stop("interrupted")
		case <-deadline:
			return true, s.stop("max duration reached")
		}
	}
}

// stop ends a session cooperatively. The output port is disabled on a helper
// goroutine while this one keeps reading, so a callback waiting for channel
// space always completes. What is buffered is written, then the end marker
// closes the stream if the encoder never sent one.
func (s *session) stop(reason string) error {
	s.log.Info("Stopping recording", "reason", reason)
	if err := s.camera.StopCapture(); err != nil {
		s.log.Warn("Failed to stop capture", "error", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.bridge.Stop() }()

	var (
		ended    bool
		writeErr error
	)
	take := func(rec OutputRecord) {
		if ended || writeErr != nil {
			return
		}
		ended, writeErr = s.consume(rec)
	}
	drainBuffered := func() {
		for {
			select {
			case rec := <-s.ch:
				take(rec)
			default:
				return
			}
		}
	}

	var stopErr error
	for waiting := true; waiting; {
		select {
		case rec := <-s.ch:
			take(rec)
		case stopErr = <-done:
			waiting = false
		}
	}
	drainBuffered()

	switch {
	case writeErr != nil:
		return writeErr
	case stopErr != nil:
		return stopErr
	}
	if err := s.bridge.Err(); err != nil {
		return err
	}
	if !ended {
		s.bridge.Finish()
		drainBuffered()
	}
	if !ended {
		return newError(KindChannelReceive, "receive end marker", mmal.Success, errors.New("stream closed without end marker"))
	}
	return writeErr
}

func (s *session) consume(rec OutputRecord) (bool, error) {
	s.metrics.SetChannelDepth(len(s.ch))
	if rec.End {
		s.log.Debug("End of stream", "seq", rec.Seq)
		return true, nil
	}
	if err := s.sink.Write(rec.Payload); err != nil {
		return false, err
	}
	s.written += int64(len(rec.Payload))
	s.records++
	return false, nil
}
