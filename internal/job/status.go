package job

// Status is the locally cached outcome of a Job handle.
type Status string

const (
	StatusInitialized Status = "Initialized"
	StatusRunning     Status = "Running"
	StatusComplete    Status = "Complete"
	StatusFailed      Status = "Failed"
	StatusError       Status = "Error"
	StatusCancelled   Status = "Cancelled"
)

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusFailed, StatusError, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	return string(s)
}
