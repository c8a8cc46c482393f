package mmal

// Status mirrors MMAL_STATUS_T.
type Status int32

const (
	Success Status = iota
	ENOMEM
	ENOSPC
	EINVAL
	ENOSYS
	ENOENT
	ENXIO
	EIO
	ESPIPE
	ECORRUPT
	ENOTREADY
	ECONFIG
	EISCONN
	ENOTCONN
	EAGAIN
	EFAULT
)

var statusNames = [...]string{
	Success:   "MMAL_SUCCESS",
	ENOMEM:    "MMAL_ENOMEM",
	ENOSPC:    "MMAL_ENOSPC",
	EINVAL:    "MMAL_EINVAL",
	ENOSYS:    "MMAL_ENOSYS",
	ENOENT:    "MMAL_ENOENT",
	ENXIO:     "MMAL_ENXIO",
	EIO:       "MMAL_EIO",
	ESPIPE:    "MMAL_ESPIPE",
	ECORRUPT:  "MMAL_ECORRUPT",
	ENOTREADY: "MMAL_ENOTREADY",
	ECONFIG:   "MMAL_ECONFIG",
	EISCONN:   "MMAL_EISCONN",
	ENOTCONN:  "MMAL_ENOTCONN",
	EAGAIN:    "MMAL_EAGAIN",
	EFAULT:    "MMAL_EFAULT",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "MMAL_STATUS_UNKNOWN"
}

// OK reports whether s is Success.
func (s Status) OK() bool { return s == Success }
