package video

import (
	"errors"
	"fmt"

	"github.com/audiolibrelab/vidcapture/internal/mmal"
)

// Kind classifies where in the pipeline an error originated.
type Kind int

const (
	KindComponentCreate Kind = iota + 1
	KindControlPortEnable
	KindFormatCommit
	KindComponentEnable
	KindConnection
	KindPoolCreate
	KindBufferSubmit
	KindChannelReceive
	KindOutputFile
	KindCapture
	KindCallback
	KindRuntimeInit
)

var kindNames = map[Kind]string{
	KindComponentCreate:   "component create",
	KindControlPortEnable: "control port enable",
	KindFormatCommit:      "format commit",
	KindComponentEnable:   "component enable",
	KindConnection:        "connection",
	KindPoolCreate:        "pool create",
	KindBufferSubmit:      "buffer submit",
	KindChannelReceive:    "channel receive",
	KindOutputFile:        "output file",
	KindCapture:           "capture",
	KindCallback:          "callback",
	KindRuntimeInit:       "runtime init",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

var (
	ErrPoolExhausted   = errors.New("buffer pool exhausted")
	ErrConsumerStalled = errors.New("record consumer stalled")
	ErrNilBuffer       = errors.New("nil buffer in callback")
	ErrPortDisabled    = errors.New("port is disabled")

	errAlreadyInitialized = errors.New("already initialized")
	errNotInitialized     = errors.New("not initialized")
)

// Error is a pipeline failure. Status is the hardware status when the failure
// came from the driver, or mmal.Success otherwise.
type Error struct {
	Kind   Kind
	Op     string
	Status mmal.Status
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s failed", e.Kind, e.Op)
	if e.Status != mmal.Success {
		msg += " with " + e.Status.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, st mmal.Status, err error) *Error {
	return &Error{Kind: kind, Op: op, Status: st, Err: err}
}

// IsKind reports whether err wraps an *Error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

// StatusOf extracts the hardware status carried by err, if any.
func StatusOf(err error) (mmal.Status, bool) {
	var e *Error
	if errors.As(err, &e) && e.Status != mmal.Success {
		return e.Status, true
	}
	return mmal.Success, false
}
